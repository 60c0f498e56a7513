package daemon

import (
	"sync"
	"time"

	"github.com/the-lightning-land/reachd/connectivity"
	"github.com/the-lightning-land/reachd/reachability"
)

const clientBuffer = 16

// Event is a status change of a watch.
type Event struct {
	Watch  string
	Target reachability.Target
	Status connectivity.Status
	Time   time.Time
}

type watch struct {
	name    string
	target  reachability.Target
	created time.Time
	monitor *reachability.Monitor
	sub     *reachability.Subscription
	log     Logger
	metrics *metrics

	mtx          sync.Mutex
	last         connectivity.Status
	clients      map[uint32]*WatchClient
	nextClientID uint32
	closed       bool
}

// WatchClient receives the events of one watch. Events is closed when the
// client is cancelled or the watch goes away. Events are dropped for a
// client that does not keep up.
type WatchClient struct {
	Events chan *Event
	Id     uint32
	watch  *watch
}

func newWatch(name string, target reachability.Target, created time.Time, monitor *reachability.Monitor,
	log Logger, metrics *metrics) *watch {

	w := &watch{
		name:    name,
		target:  target,
		created: created,
		monitor: monitor,
		log:     log,
		metrics: metrics,
		clients: make(map[uint32]*WatchClient),
	}

	// the watch holds its subscription for as long as it exists
	w.sub = monitor.Subscribe(w)

	return w
}

func (w *watch) StatusChanged(status connectivity.Status) {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	if w.closed {
		return
	}

	w.log.Infof("Watch %v on %v: %v", w.name, w.target, status)
	w.last = status
	w.metrics.changed(w.name, status)

	event := &Event{
		Watch:  w.name,
		Target: w.target,
		Status: status,
		Time:   time.Now(),
	}

	for _, client := range w.clients {
		select {
		case client.Events <- event:
		default:
			w.log.Warnf("Dropped event of watch %v for slow client %v", w.name, client.Id)
		}
	}
}

func (w *watch) info() *WatchInfo {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	return &WatchInfo{
		Name:    w.name,
		Target:  w.target,
		Created: w.created,
		Status:  w.last,
	}
}

func (w *watch) subscribe() *WatchClient {
	w.mtx.Lock()
	defer w.mtx.Unlock()

	client := &WatchClient{
		Events: make(chan *Event, clientBuffer),
		Id:     w.nextClientID,
		watch:  w,
	}

	if w.closed {
		close(client.Events)
		return client
	}

	w.clients[client.Id] = client
	w.nextClientID++

	return client
}

func (w *watch) close() {
	w.sub.Cancel()

	w.mtx.Lock()
	defer w.mtx.Unlock()

	w.closed = true

	for id, client := range w.clients {
		close(client.Events)
		delete(w.clients, id)
	}
}

// Cancel stops event delivery and closes Events. It is safe to call more
// than once.
func (c *WatchClient) Cancel() {
	w := c.watch

	w.mtx.Lock()
	defer w.mtx.Unlock()

	if _, ok := w.clients[c.Id]; !ok {
		return
	}

	delete(w.clients, c.Id)
	close(c.Events)
}
