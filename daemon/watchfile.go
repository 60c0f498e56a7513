package daemon

import (
	"os"

	"github.com/go-errors/errors"
	"gopkg.in/yaml.v3"
)

// WatchDefinition is a watch as it appears in a watch file or on the
// command line.
type WatchDefinition struct {
	Name   string `yaml:"name"`
	Target string `yaml:"target"`
}

type watchFile struct {
	Watches []WatchDefinition `yaml:"watches"`
}

// LoadWatchFile reads watch definitions from a YAML file of the form
//
//	watches:
//	  - name: upstream
//	    target: host:example.com
func LoadWatchFile(path string) ([]WatchDefinition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("could not read watch file: %v", err)
	}

	file := watchFile{}
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, errors.Errorf("could not parse watch file: %v", err)
	}

	for i, def := range file.Watches {
		if def.Target == "" {
			return nil, errors.Errorf("watch %d in %v has no target", i, path)
		}
	}

	return file.Watches, nil
}
