package api

import (
	"net"
	"net/http"

	"github.com/go-errors/errors"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/the-lightning-land/reachd/daemon"
)

// check compliance to the interface during compile time
var _ Watcher = (*daemon.Daemon)(nil)

// Watcher is the part of the daemon the api exposes.
type Watcher interface {
	AddWatch(name string, target string) (*daemon.WatchInfo, error)
	RemoveWatch(name string) error
	Watches() []*daemon.WatchInfo
	WatchStatus(name string) (*daemon.WatchInfo, error)
	SubscribeWatch(name string) (*daemon.WatchClient, error)
}

type Config struct {
	Watcher Watcher
	// Gatherer serves /metrics. The route is left out if it is nil.
	Gatherer prometheus.Gatherer
	Version  string
	Log      Logger
}

type Api struct {
	watcher Watcher
	router  *mux.Router
	version string
	log     Logger
}

func New(config *Config) *Api {
	api := &Api{
		watcher: config.Watcher,
		router:  mux.NewRouter(),
		version: config.Version,
	}

	if config.Log != nil {
		api.log = config.Log
	} else {
		api.log = noopLogger{}
	}

	api.router.Handle("/api/v1/status", api.handleGetStatus()).Methods(http.MethodGet)

	api.router.Handle("/api/v1/watches", api.handleGetWatches()).Methods(http.MethodGet)
	api.router.Handle("/api/v1/watches", api.handlePostWatch()).Methods(http.MethodPost)
	api.router.Handle("/api/v1/watches/{name}", api.handleGetWatch()).Methods(http.MethodGet)
	api.router.Handle("/api/v1/watches/{name}", api.handleDeleteWatch()).Methods(http.MethodDelete)
	api.router.Handle("/api/v1/watches/{name}/events", api.handleGetWatchEvents()).Methods(http.MethodGet)

	if config.Gatherer != nil {
		api.router.Handle("/metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return api
}

func (a *Api) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.router.ServeHTTP(w, r)
}

func (a *Api) Serve(l net.Listener) error {
	err := http.Serve(l, a.router)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return errors.Errorf("Unable to serve api: %v", err)
	}

	return nil
}
