package reachdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func TestWatches(t *testing.T) {
	db := openTestDB(t)

	watch, err := db.GetWatch("missing")
	require.NoError(t, err)
	assert.Nil(t, watch)

	created := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.PutWatch(&Watch{Name: "upstream", Target: "host:example.com", Created: created}))
	require.NoError(t, db.PutWatch(&Watch{Name: "gateway", Target: "address:192.168.1.1", Created: created}))

	watch, err = db.GetWatch("upstream")
	require.NoError(t, err)
	require.NotNil(t, watch)
	assert.Equal(t, "host:example.com", watch.Target)
	assert.True(t, created.Equal(watch.Created))

	watches, err := db.ListWatches()
	require.NoError(t, err)
	require.Len(t, watches, 2)
	assert.Equal(t, "gateway", watches[0].Name)
	assert.Equal(t, "upstream", watches[1].Name)

	require.NoError(t, db.DeleteWatch("upstream"))
	require.NoError(t, db.DeleteWatch("upstream"))

	watches, err = db.ListWatches()
	require.NoError(t, err)
	require.Len(t, watches, 1)

	require.Error(t, db.PutWatch(&Watch{}))
}

func TestWatchesSurviveReopen(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, db.PutWatch(&Watch{Name: "internet", Target: "internet"}))
	require.NoError(t, db.Close())

	db, err = Open(dir)
	require.NoError(t, err)
	defer db.Close()

	watch, err := db.GetWatch("internet")
	require.NoError(t, err)
	require.NotNil(t, watch)
	assert.Equal(t, "internet", watch.Target)
}
