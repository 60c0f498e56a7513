package reachdb

import (
	"encoding/json"
	"time"

	"github.com/go-errors/errors"
	"go.etcd.io/bbolt"
)

// Watch is a named reachability target.
type Watch struct {
	Name    string    `json:"name"`
	Target  string    `json:"target"`
	Created time.Time `json:"created"`
}

func (db *DB) PutWatch(watch *Watch) error {
	if watch.Name == "" {
		return errors.New("watch has no name")
	}

	err := db.setJSON(watchesBucket, []byte(watch.Name), watch)
	if err != nil {
		return errors.Errorf("could not save watch %v: %v", watch.Name, err)
	}

	return nil
}

// GetWatch returns nil if no watch with that name exists.
func (db *DB) GetWatch(name string) (*Watch, error) {
	watch := &Watch{}

	found, err := db.getJSON(watchesBucket, []byte(name), watch)
	if err != nil {
		return nil, errors.Errorf("could not read watch %v: %v", name, err)
	}

	if !found {
		return nil, nil
	}

	return watch, nil
}

func (db *DB) DeleteWatch(name string) error {
	return db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(watchesBucket)
		if bucket == nil {
			return nil
		}

		return bucket.Delete([]byte(name))
	})
}

// ListWatches returns all watches ordered by name.
func (db *DB) ListWatches() ([]*Watch, error) {
	var watches []*Watch

	err := db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(watchesBucket)
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			watch := &Watch{}
			if err := json.Unmarshal(v, watch); err != nil {
				return errors.Errorf("could not unmarshal watch %s: %v", k, err)
			}

			watches = append(watches, watch)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return watches, nil
}
