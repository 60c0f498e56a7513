package daemon

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/the-lightning-land/reachd/reachability"
	"github.com/the-lightning-land/reachd/reachdb"
)

type Config struct {
	Provider reachability.Provider
	// DB persists watches. Watches only live in memory if it is nil.
	DB     *reachdb.DB
	Logger Logger
	// MonitorLogger is handed to every monitor the daemon creates.
	MonitorLogger reachability.Logger
	// Registerer receives the daemon metrics. A private registry is used
	// if it is nil.
	Registerer prometheus.Registerer
	// MaxConcurrentDeliveries is passed on to every monitor.
	MaxConcurrentDeliveries int64
}
