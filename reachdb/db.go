package reachdb

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-errors/errors"
	"go.etcd.io/bbolt"
)

const dbName = "reach.db"

var watchesBucket = []byte("watches")

// DB persistently stores the watch definitions of the daemon.
type DB struct {
	*bbolt.DB
}

// Open opens or creates reach.db inside dir.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Errorf("could not create data directory: %v", err)
	}

	path := filepath.Join(dir, dbName)

	bdb, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Errorf("could not open %v: %v", path, err)
	}

	err = bdb.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(watchesBucket)
		return err
	})
	if err != nil {
		_ = bdb.Close()
		return nil, errors.Errorf("could not create buckets: %v", err)
	}

	return &DB{bdb}, nil
}
