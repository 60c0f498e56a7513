package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/reachd/connectivity"
	"github.com/the-lightning-land/reachd/reachability"
	"github.com/the-lightning-land/reachd/reachability/mock"
	"github.com/the-lightning-land/reachd/reachdb"
)

const wifi = connectivity.Reachable

func newDaemon(t *testing.T, db *reachdb.DB) (*Daemon, *mock.Provider, *prometheus.Registry) {
	t.Helper()

	provider := mock.NewProvider(wifi)
	reg := prometheus.NewRegistry()

	d, err := New(&Config{
		Provider:   provider,
		DB:         db,
		Registerer: reg,
	})
	require.NoError(t, err)

	return d, provider, reg
}

func runDaemon(t *testing.T, d *Daemon) <-chan error {
	t.Helper()

	errs := make(chan error, 1)
	go func() {
		errs <- d.Run()
	}()

	return errs
}

func TestAddAndRemoveWatch(t *testing.T) {
	d, provider, _ := newDaemon(t, nil)

	info, err := d.AddWatch("upstream", "host:example.com")
	require.NoError(t, err)
	assert.Equal(t, "upstream", info.Name)
	assert.Equal(t, reachability.HostTarget("example.com"), info.Target)
	assert.Equal(t, connectivity.ViaLocalWireless, info.Status)
	require.Len(t, provider.Handles(), 1)
	assert.True(t, provider.Handles()[0].Scheduled())

	_, err = d.AddWatch("upstream", "internet")
	require.ErrorIs(t, err, ErrWatchExists)

	_, err = d.AddWatch("bad", "address:nope")
	require.Error(t, err)

	require.NoError(t, d.RemoveWatch("upstream"))
	assert.Equal(t, 1, provider.Handles()[0].Closed())
	assert.Empty(t, d.Watches())

	require.ErrorIs(t, d.RemoveWatch("upstream"), ErrWatchNotFound)
}

func TestGeneratedWatchName(t *testing.T) {
	d, _, _ := newDaemon(t, nil)

	info, err := d.AddWatch("", "internet")
	require.NoError(t, err)
	assert.Len(t, info.Name, 36)
}

func TestWatchesShareMonitorPerTarget(t *testing.T) {
	d, provider, reg := newDaemon(t, nil)

	_, err := d.AddWatch("a", "internet")
	require.NoError(t, err)
	_, err = d.AddWatch("b", "internet")
	require.NoError(t, err)
	_, err = d.AddWatch("c", "host:example.com")
	require.NoError(t, err)

	require.Len(t, provider.Handles(), 2)
	assert.Equal(t, 2, d.monitorCount())
	assert.Equal(t, 3, d.subscriptionCount())

	count, err := testutil.GatherAndCount(reg, "reachd_monitors", "reachd_subscriptions")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, d.RemoveWatch("a"))
	assert.Equal(t, 0, provider.Handles()[0].Closed())

	require.NoError(t, d.RemoveWatch("b"))
	assert.Equal(t, 1, provider.Handles()[0].Closed())
	assert.Equal(t, 1, d.monitorCount())

	names := []string{}
	for _, info := range d.Watches() {
		names = append(names, info.Name)
	}
	assert.Equal(t, []string{"c"}, names)
}

func TestWatchStatusAndEvents(t *testing.T) {
	d, provider, reg := newDaemon(t, nil)

	_, err := d.AddWatch("upstream", "internet")
	require.NoError(t, err)

	client, err := d.SubscribeWatch("upstream")
	require.NoError(t, err)

	handle := provider.Handles()[0]
	handle.Set(0)

	select {
	case event := <-client.Events:
		assert.Equal(t, "upstream", event.Watch)
		assert.Equal(t, connectivity.NotReachable, event.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	info, err := d.WatchStatus("upstream")
	require.NoError(t, err)
	assert.Equal(t, connectivity.NotReachable, info.Status)

	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.changes.WithLabelValues("upstream")))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.metrics.status.WithLabelValues("upstream", "not_reachable")))
	assert.Equal(t, 0.0, testutil.ToFloat64(d.metrics.status.WithLabelValues("upstream", "wifi")))

	count, err := testutil.GatherAndCount(reg, "reachd_watch_status")
	require.NoError(t, err)
	assert.Equal(t, 4, count)

	client.Cancel()
	client.Cancel()

	_, ok := <-client.Events
	assert.False(t, ok)

	_, err = d.WatchStatus("missing")
	require.ErrorIs(t, err, ErrWatchNotFound)

	_, err = d.SubscribeWatch("missing")
	require.ErrorIs(t, err, ErrWatchNotFound)
}

func TestRemovingWatchClosesClients(t *testing.T) {
	d, _, _ := newDaemon(t, nil)

	_, err := d.AddWatch("upstream", "internet")
	require.NoError(t, err)

	client, err := d.SubscribeWatch("upstream")
	require.NoError(t, err)

	require.NoError(t, d.RemoveWatch("upstream"))

	_, ok := <-client.Events
	assert.False(t, ok)

	// cancelling after removal is harmless
	client.Cancel()
}

func TestRunRestoresWatches(t *testing.T) {
	db, err := reachdb.Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	d, _, _ := newDaemon(t, db)
	_, err = d.AddWatch("gateway", "address:192.168.1.1")
	require.NoError(t, err)
	require.NoError(t, db.PutWatch(&reachdb.Watch{Name: "broken", Target: "address:nope"}))

	errs := runDaemon(t, d)
	d.Shutdown()
	require.NoError(t, <-errs)

	_, err = d.AddWatch("late", "internet")
	require.ErrorIs(t, err, ErrShutdown)

	restored, provider, _ := newDaemon(t, db)
	errs = runDaemon(t, restored)

	require.Eventually(t, func() bool {
		return len(restored.Watches()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	info := restored.Watches()[0]
	assert.Equal(t, "gateway", info.Name)
	assert.Equal(t, "address:192.168.1.1", info.Target.String())

	restored.Shutdown()
	restored.Shutdown()
	require.NoError(t, <-errs)

	require.Len(t, provider.Handles(), 1)
	assert.Equal(t, 1, provider.Handles()[0].Closed())
}

func TestRemoveWatchDeletesFromDB(t *testing.T) {
	db, err := reachdb.Open(t.TempDir())
	require.NoError(t, err)
	defer db.Close()

	d, _, _ := newDaemon(t, db)

	_, err = d.AddWatch("upstream", "internet")
	require.NoError(t, err)

	saved, err := db.GetWatch("upstream")
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, "internet", saved.Target)

	require.NoError(t, d.RemoveWatch("upstream"))

	saved, err = db.GetWatch("upstream")
	require.NoError(t, err)
	assert.Nil(t, saved)
}

func TestRemoveWatchKeepsWatchWhenDeleteFails(t *testing.T) {
	db, err := reachdb.Open(t.TempDir())
	require.NoError(t, err)

	d, provider, _ := newDaemon(t, db)

	_, err = d.AddWatch("upstream", "internet")
	require.NoError(t, err)

	require.NoError(t, db.Close())

	require.Error(t, d.RemoveWatch("upstream"))

	watches := d.Watches()
	require.Len(t, watches, 1)
	assert.Equal(t, "upstream", watches[0].Name)
	assert.Equal(t, 1, d.monitorCount())
	assert.Equal(t, 0, provider.Handles()[0].Closed())

	client, err := d.SubscribeWatch("upstream")
	require.NoError(t, err)
	client.Cancel()
}

func TestRefusedTarget(t *testing.T) {
	d, provider, _ := newDaemon(t, nil)
	provider.Refuse = func(target reachability.Target) bool {
		return target.Kind == reachability.TargetHost
	}

	_, err := d.AddWatch("refused", "host:example.com")
	require.ErrorIs(t, err, reachability.ErrHandleCreation)
	assert.Empty(t, d.Watches())
	assert.Equal(t, 0, d.monitorCount())
}

func TestLoadWatchFile(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "watches.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
watches:
  - name: upstream
    target: host:example.com
  - target: internet
`), 0o600))

	defs, err := LoadWatchFile(path)
	require.NoError(t, err)
	assert.Equal(t, []WatchDefinition{
		{Name: "upstream", Target: "host:example.com"},
		{Target: "internet"},
	}, defs)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("watches:\n  - name: nothing\n"), 0o600))

	_, err = LoadWatchFile(broken)
	require.Error(t, err)

	_, err = LoadWatchFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
