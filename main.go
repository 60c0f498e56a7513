package main

import (
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"
	"github.com/the-lightning-land/reachd/api"
	"github.com/the-lightning-land/reachd/connectivity"
	"github.com/the-lightning-land/reachd/daemon"
	"github.com/the-lightning-land/reachd/reachability"
	"github.com/the-lightning-land/reachd/reachability/mock"
	"github.com/the-lightning-land/reachd/reachability/nm"
	"github.com/the-lightning-land/reachd/reachdb"

	// Blank import to set up profiling HTTP handlers.
	_ "net/http/pprof"
)

var (
	// Commit stores the current commit hash of this build. This should be set using -ldflags during compilation.
	Commit string
	// Version stores the version string of this build. This should be set using -ldflags during compilation.
	Version string
	// Date stores the date of this build. This should be set using -ldflags during compilation.
	Date string
)

// reachdMain is the true entry point for reachd. This is required since defers
// created in the top-level scope of a main method aren't executed if os.Exit() is called.
func reachdMain() error {
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)

	// Load CLI configuration and defaults
	cfg, err := loadConfig()
	if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		return nil
	} else if err != nil {
		return errors.Errorf("Failed parsing arguments: %v", err)
	}

	// Set logger into debug mode if called with --debug
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
		log.Info("Setting debug mode.")
	}

	log.Debug("Loaded config.")

	// Print version of the daemon
	log.Infof("Version %s (commit %s)", Version, Commit)
	log.Infof("Built on %s", Date)

	// Stop here if only version was requested
	if cfg.ShowVersion {
		return nil
	}

	if cfg.Profiling != "" {
		go func() {
			log.Infof("Starting profiling server on %v", cfg.Profiling)
			// Redirect the root path
			http.Handle("/", http.RedirectHandler("/debug/pprof", http.StatusSeeOther))
			// All other handlers are registered on DefaultServeMux through the import of pprof
			err := http.ListenAndServe(cfg.Profiling, nil)
			if err != nil {
				log.Errorf("Could not run profiler: %v", err)
			}
		}()
	}

	// reach.db persistently stores all watches
	reachDB, err := reachdb.Open(cfg.DataDir)
	if err != nil {
		return errors.Errorf("Could not open reach.db: %v", err)
	}

	log.Infof("Opened reach.db")

	defer func() {
		err := reachDB.Close()
		if err != nil {
			log.Errorf("Could not close reach.db: %v", err)
		} else {
			log.Info("Closed reach.db.")
		}
	}()

	// The reachability provider, which turns system network state into
	// per-target flags
	var provider reachability.Provider

	switch cfg.Net {
	case "networkmanager":
		nmProvider, err := nm.NewProvider(&nm.Config{
			Logger: subsystemLogger("nm"),
		})
		if err != nil {
			return errors.Errorf("Could not create NetworkManager provider: %v", err)
		}

		defer func() {
			err := nmProvider.Close()
			if err != nil {
				log.Errorf("Could not properly close NetworkManager provider: %v", err)
			} else {
				log.Info("Closed NetworkManager provider.")
			}
		}()

		provider = nmProvider

		log.Info("Created NetworkManager provider.")
	case "mock":
		mockFlags, err := connectivity.ParseFlags(cfg.Mock.Flags)
		if err != nil {
			return errors.Errorf("Could not parse mock flags: %v", err)
		}

		provider = mock.NewProvider(mockFlags)

		log.Infof("Created a mock provider with flags %v.", mockFlags)
	default:
		return errors.Errorf("Unknown networking type %v", cfg.Net)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// central controller for all watches
	d, err := daemon.New(&daemon.Config{
		Provider:                provider,
		DB:                      reachDB,
		Logger:                  subsystemLogger("daemon"),
		MonitorLogger:           subsystemLogger("monitor"),
		Registerer:              registry,
		MaxConcurrentDeliveries: cfg.Deliveries,
	})
	if err != nil {
		return errors.Errorf("Could not create daemon: %v", err)
	}

	log.Infof("Created daemon.")

	defs, err := cfg.watchDefinitions()
	if err != nil {
		return errors.Errorf("Could not read watches: %v", err)
	}

	for _, def := range defs {
		info, err := d.AddWatch(def.Name, def.Target)
		if err != nil {
			return errors.Errorf("Could not add watch %v: %v", def.Name, err)
		}

		log.Infof("Watching %v as %v.", info.Target, info.Name)
	}

	a := api.New(&api.Config{
		Watcher:  d,
		Gatherer: registry,
		Version:  Version,
		Log:      subsystemLogger("api"),
	})

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return errors.Errorf("API server unable to listen on %v: %v", cfg.Listen, err)
	}

	defer lis.Close()

	go func() {
		err := a.Serve(lis)
		if err != nil {
			log.Errorf("Could not serve api: %v", err)
		}
	}()

	log.Infof("Serving API on %v", lis.Addr())

	// Handle interrupt signals correctly
	go func() {
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
		sig := <-signals
		log.Info(sig)
		log.Info("Received an interrupt, stopping daemon...")
		d.Shutdown()
	}()

	// blocks until the daemon is shut down
	err = d.Run()
	if err != nil {
		return errors.Errorf("Failed running daemon: %v", err)
	}

	// finish with no error
	return nil
}

// subsystemLogger shares the standard logger, so --debug applies to every
// subsystem.
func subsystemLogger(system string) *log.Entry {
	return log.StandardLogger().WithField("system", system)
}

func main() {
	// Call the "real" main in a nested manner so the defers will properly
	// be executed in the case of a graceful shutdown.
	if err := reachdMain(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
		} else {
			log.WithError(err).Println("Failed running reachd.")
		}
		os.Exit(1)
	}
}
