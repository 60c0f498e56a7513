package daemon

import (
	"sort"
	"sync"
	"time"

	"github.com/go-errors/errors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/the-lightning-land/reachd/connectivity"
	"github.com/the-lightning-land/reachd/reachability"
	"github.com/the-lightning-land/reachd/reachdb"
	"go.uber.org/multierr"
)

var (
	ErrWatchNotFound = errors.New("watch not found")
	ErrWatchExists   = errors.New("watch already exists")
	ErrShutdown      = errors.New("daemon is shut down")
)

// Daemon keeps a set of named watches. Watches on the same target share a
// single monitor.
type Daemon struct {
	log          Logger
	monitorLog   reachability.Logger
	provider     reachability.Provider
	db           *reachdb.DB
	deliveries   int64
	metrics      *metrics
	done         chan struct{}
	shutdownOnce sync.Once

	mtx      sync.Mutex
	closed   bool
	watches  map[string]*watch
	monitors map[string]*sharedMonitor
}

type sharedMonitor struct {
	monitor *reachability.Monitor
	refs    int
}

// WatchInfo describes a watch and its current status.
type WatchInfo struct {
	Name    string
	Target  reachability.Target
	Created time.Time
	Status  connectivity.Status
}

func New(config *Config) (*Daemon, error) {
	if config.Provider == nil {
		return nil, errors.New("no reachability provider configured")
	}

	d := &Daemon{
		log:        config.Logger,
		monitorLog: config.MonitorLogger,
		provider:   config.Provider,
		db:         config.DB,
		deliveries: config.MaxConcurrentDeliveries,
		done:       make(chan struct{}),
		watches:    make(map[string]*watch),
		monitors:   make(map[string]*sharedMonitor),
	}

	if d.log == nil {
		d.log = noopLogger{}
	}

	reg := config.Registerer
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	var err error
	d.metrics, err = newMetrics(reg, d)
	if err != nil {
		return nil, err
	}

	return d, nil
}

// Run restores the persisted watches and blocks until Shutdown is called.
// All monitors are closed before it returns.
func (d *Daemon) Run() error {
	d.log.Infof("Starting daemon...")

	if d.db != nil {
		saved, err := d.db.ListWatches()
		if err != nil {
			return errors.Errorf("could not read saved watches: %v", err)
		}

		for _, w := range saved {
			target, err := reachability.ParseTarget(w.Target)
			if err != nil {
				d.log.Warnf("Skipping saved watch %v with invalid target %v: %v", w.Name, w.Target, err)
				continue
			}

			_, err = d.addWatch(w.Name, target, w.Created, false)
			if errors.Is(err, ErrWatchExists) {
				d.log.Debugf("Watch %v is already present", w.Name)
				continue
			} else if err != nil {
				d.log.Warnf("Could not restore watch %v: %v", w.Name, err)
				continue
			}

			d.log.Infof("Restored watch %v on %v", w.Name, target)
		}
	}

	<-d.done

	d.log.Infof("Stopping daemon...")

	return d.closeAll()
}

func (d *Daemon) Shutdown() {
	d.shutdownOnce.Do(func() {
		close(d.done)
	})
}

// AddWatch starts watching target under name. A name is generated if name
// is empty. The watch is persisted if the daemon has a database.
func (d *Daemon) AddWatch(name string, target string) (*WatchInfo, error) {
	t, err := reachability.ParseTarget(target)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = uuid.New().String()
	}

	return d.addWatch(name, t, time.Now(), true)
}

func (d *Daemon) addWatch(name string, target reachability.Target, created time.Time, persist bool) (*WatchInfo, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if d.closed {
		return nil, ErrShutdown
	}

	if _, ok := d.watches[name]; ok {
		return nil, errors.Errorf("%w: %v", ErrWatchExists, name)
	}

	shared, err := d.acquireMonitor(target)
	if err != nil {
		return nil, err
	}

	if persist && d.db != nil {
		err := d.db.PutWatch(&reachdb.Watch{
			Name:    name,
			Target:  target.String(),
			Created: created,
		})
		if err != nil {
			_ = d.releaseMonitor(target)
			return nil, err
		}
	}

	w := newWatch(name, target, created, shared.monitor, d.log, d.metrics)
	d.watches[name] = w

	status := shared.monitor.Status()
	d.metrics.setStatus(name, status)

	d.log.Infof("Added watch %v on %v, currently %v", name, target, status)

	return &WatchInfo{
		Name:    name,
		Target:  target,
		Created: created,
		Status:  status,
	}, nil
}

// acquireMonitor returns the running monitor for target, creating and
// starting one if needed. Callers hold d.mtx.
func (d *Daemon) acquireMonitor(target reachability.Target) (*sharedMonitor, error) {
	key := target.String()

	if shared, ok := d.monitors[key]; ok {
		shared.refs++
		return shared, nil
	}

	monitor, err := reachability.New(target, &reachability.Config{
		Provider:                d.provider,
		Logger:                  d.monitorLog,
		MaxConcurrentDeliveries: d.deliveries,
	})
	if err != nil {
		return nil, errors.Errorf("could not create monitor for %v: %w", target, err)
	}

	if err := monitor.Start(); err != nil {
		_ = monitor.Close()
		return nil, errors.Errorf("could not start monitor for %v: %w", target, err)
	}

	shared := &sharedMonitor{monitor: monitor, refs: 1}
	d.monitors[key] = shared

	d.log.Debugf("Started monitor for %v", target)

	return shared, nil
}

// releaseMonitor drops a reference and closes the monitor once unused.
// Callers hold d.mtx.
func (d *Daemon) releaseMonitor(target reachability.Target) error {
	key := target.String()

	shared, ok := d.monitors[key]
	if !ok {
		return nil
	}

	shared.refs--
	if shared.refs > 0 {
		return nil
	}

	delete(d.monitors, key)

	d.log.Debugf("Closing unused monitor for %v", target)

	return shared.monitor.Close()
}

func (d *Daemon) RemoveWatch(name string) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	w, ok := d.watches[name]
	if !ok {
		return errors.Errorf("%w: %v", ErrWatchNotFound, name)
	}

	// the watch stays in place if it cannot be deleted from disk
	if d.db != nil {
		err := d.db.DeleteWatch(name)
		if err != nil {
			return errors.Errorf("could not delete watch %v: %v", name, err)
		}
	}

	delete(d.watches, name)
	w.close()
	d.metrics.forget(name)

	err := d.releaseMonitor(w.target)
	if err != nil {
		d.log.Warnf("Could not close monitor for %v: %v", w.target, err)
	}

	d.log.Infof("Removed watch %v", name)

	return nil
}

// Watches returns all watches ordered by name. Status is the last status
// delivered to each watch.
func (d *Daemon) Watches() []*WatchInfo {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	infos := make([]*WatchInfo, 0, len(d.watches))
	for _, w := range d.watches {
		infos = append(infos, w.info())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})

	return infos
}

// WatchStatus queries the current status of the named watch.
func (d *Daemon) WatchStatus(name string) (*WatchInfo, error) {
	d.mtx.Lock()
	w, ok := d.watches[name]
	d.mtx.Unlock()

	if !ok {
		return nil, errors.Errorf("%w: %v", ErrWatchNotFound, name)
	}

	info := w.info()
	info.Status = w.monitor.Status()

	return info, nil
}

// SubscribeWatch returns a client receiving the status changes of the
// named watch until it is cancelled or the watch is removed.
func (d *Daemon) SubscribeWatch(name string) (*WatchClient, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	w, ok := d.watches[name]
	if !ok {
		return nil, errors.Errorf("%w: %v", ErrWatchNotFound, name)
	}

	return w.subscribe(), nil
}

func (d *Daemon) closeAll() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	d.closed = true

	for name, w := range d.watches {
		w.close()
		delete(d.watches, name)
	}

	var err error
	for key, shared := range d.monitors {
		err = multierr.Append(err, shared.monitor.Close())
		delete(d.monitors, key)
	}

	if err != nil {
		return errors.Errorf("could not close all monitors: %v", err)
	}

	return nil
}

func (d *Daemon) monitorCount() int {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	return len(d.monitors)
}

func (d *Daemon) subscriptionCount() int {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	count := 0
	for _, shared := range d.monitors {
		count += shared.monitor.SubscriptionCount()
	}

	return count
}
