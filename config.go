package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-errors/errors"
	"github.com/jessevdk/go-flags"
	"github.com/the-lightning-land/reachd/daemon"
)

const (
	defaultDataDirName = ".reachd"
	defaultListen      = "localhost:9000"
	defaultNet         = "networkmanager"
)

type mockConfig struct {
	Flags string `long:"flags" description:"Initial reachability flags of the mock network, e.g. reachable|is-direct" default:"reachable"`
}

type config struct {
	ShowVersion bool       `short:"v" long:"version" description:"Display version information and exit"`
	Debug       bool       `long:"debug" description:"Start in debug mode"`
	DataDir     string     `long:"datadir" description:"The directory to store reachd's data within"`
	Net         string     `long:"net" description:"The networking backend" choice:"networkmanager" choice:"mock"`
	Listen      string     `long:"listen" description:"Address the api listens on"`
	Watches     []string   `long:"watch" description:"Watch a target, given as name=target (repeatable)"`
	WatchFile   string     `long:"watchfile" description:"YAML file with watches to add on startup"`
	Deliveries  int64      `long:"deliveries" description:"Maximum concurrent observer notifications per monitor, 0 for no limit"`
	Profiling   string     `long:"profiling" description:"Enable the profiling server on the given address, e.g. localhost:9090"`
	Mock        mockConfig `group:"Mock" namespace:"mock"`
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultDataDirName
	}

	return filepath.Join(home, defaultDataDirName)
}

func loadConfig() (*config, error) {
	cfg := config{
		DataDir: defaultDataDir(),
		Net:     defaultNet,
		Listen:  defaultListen,
	}

	if _, err := flags.Parse(&cfg); err != nil {
		return nil, err
	}

	if cfg.Deliveries < 0 {
		return nil, errors.Errorf("deliveries must not be negative, got %v", cfg.Deliveries)
	}

	return &cfg, nil
}

// watchDefinitions collects the watches from the command line and the
// watch file. Unnamed watches are named after their target so that they
// keep their identity across restarts.
func (c *config) watchDefinitions() ([]daemon.WatchDefinition, error) {
	var defs []daemon.WatchDefinition

	if c.WatchFile != "" {
		fromFile, err := daemon.LoadWatchFile(c.WatchFile)
		if err != nil {
			return nil, err
		}

		defs = append(defs, fromFile...)
	}

	for _, watch := range c.Watches {
		def, err := parseWatchFlag(watch)
		if err != nil {
			return nil, err
		}

		defs = append(defs, def)
	}

	for i := range defs {
		if defs[i].Name == "" {
			defs[i].Name = defs[i].Target
		}
	}

	return defs, nil
}

// parseWatchFlag accepts name=target or a bare target.
func parseWatchFlag(s string) (daemon.WatchDefinition, error) {
	name, target, found := strings.Cut(s, "=")
	if !found {
		return daemon.WatchDefinition{Target: s}, nil
	}

	if name == "" || target == "" {
		return daemon.WatchDefinition{}, errors.Errorf("invalid watch %q, expected name=target", s)
	}

	return daemon.WatchDefinition{Name: name, Target: target}, nil
}
