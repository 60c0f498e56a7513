package api

import (
	"net/http"
)

type getStatusResponse struct {
	Version string `json:"version"`
	Watches int    `json:"watches"`
}

func (a *Api) handleGetStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := &getStatusResponse{
			Version: a.version,
			Watches: len(a.watcher.Watches()),
		}

		a.jsonResponse(w, res, http.StatusOK)
	}
}
