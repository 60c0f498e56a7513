package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-errors/errors"
	"github.com/gorilla/mux"
	"github.com/the-lightning-land/reachd/connectivity"
	"github.com/the-lightning-land/reachd/daemon"
	"github.com/the-lightning-land/reachd/reachability"
)

type postWatchRequest struct {
	Name   string `json:"name"`
	Target string `json:"target"`
}

type watchResponse struct {
	Name      string              `json:"name"`
	Target    string              `json:"target"`
	Created   time.Time           `json:"created"`
	Status    connectivity.Status `json:"status"`
	Label     string              `json:"label"`
	Reachable bool                `json:"reachable"`
}

func newWatchResponse(info *daemon.WatchInfo) *watchResponse {
	return &watchResponse{
		Name:      info.Name,
		Target:    info.Target.String(),
		Created:   info.Created,
		Status:    info.Status,
		Label:     info.Status.String(),
		Reachable: info.Status.IsReachable(),
	}
}

func (a *Api) handleGetWatches() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		watches := a.watcher.Watches()

		res := make([]*watchResponse, 0, len(watches))
		for _, info := range watches {
			res = append(res, newWatchResponse(info))
		}

		a.jsonResponse(w, res, http.StatusOK)
	}
}

func (a *Api) handlePostWatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := postWatchRequest{}
		err := json.NewDecoder(r.Body).Decode(&req)
		if err != nil {
			a.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if req.Target == "" {
			a.jsonError(w, "A target is required", http.StatusBadRequest)
			return
		}

		info, err := a.watcher.AddWatch(req.Name, req.Target)
		switch {
		case errors.Is(err, daemon.ErrWatchExists):
			a.jsonError(w, err.Error(), http.StatusConflict)
			return
		case errors.Is(err, reachability.ErrHandleCreation):
			a.jsonError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		case err != nil:
			a.jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}

		a.jsonResponse(w, newWatchResponse(info), http.StatusCreated)
	}
}

func (a *Api) handleGetWatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]

		info, err := a.watcher.WatchStatus(name)
		if errors.Is(err, daemon.ErrWatchNotFound) {
			a.jsonError(w, fmt.Sprintf("No watch with name %s found", name), http.StatusNotFound)
			return
		} else if err != nil {
			a.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		a.jsonResponse(w, newWatchResponse(info), http.StatusOK)
	}
}

func (a *Api) handleDeleteWatch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]

		err := a.watcher.RemoveWatch(name)
		if errors.Is(err, daemon.ErrWatchNotFound) {
			a.jsonError(w, fmt.Sprintf("No watch with name %s found", name), http.StatusNotFound)
			return
		} else if err != nil {
			a.jsonError(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
