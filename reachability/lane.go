package reachability

import (
	"context"
	"sync"

	"github.com/the-lightning-land/reachd/connectivity"
)

// lane serializes notifications for one observer. At most one goroutine
// drains a lane at a time, so an observer sees statuses in the order they
// were pushed, while different observers are notified independently.
type lane struct {
	mtx     sync.Mutex
	pending []connectivity.Status
	running bool
}

// push queues status and reports whether the caller has to start a drain.
func (l *lane) push(status connectivity.Status) bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	l.pending = append(l.pending, status)
	if l.running {
		return false
	}

	l.running = true
	return true
}

func (l *lane) pop() (connectivity.Status, bool) {
	l.mtx.Lock()
	defer l.mtx.Unlock()

	if len(l.pending) == 0 {
		l.running = false
		l.pending = nil
		return connectivity.Unknown, false
	}

	status := l.pending[0]
	l.pending = l.pending[1:]
	return status, true
}

func (m *Monitor) enqueue(e *entry, status connectivity.Status) {
	if e.lane.push(status) {
		go m.drain(e)
	}
}

func (m *Monitor) drain(e *entry) {
	for {
		status, ok := e.lane.pop()
		if !ok {
			return
		}

		if m.deliveries != nil {
			// Acquire only fails on a cancelled context.
			_ = m.deliveries.Acquire(context.Background(), 1)
		}

		// Liveness is checked again right before the call, which covers
		// subscriptions removed after the notification was queued.
		if sub, live := e.live(); live {
			m.notify(sub, status)
		}

		if m.deliveries != nil {
			m.deliveries.Release(1)
		}
	}
}

func (m *Monitor) notify(sub *Subscription, status connectivity.Status) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Errorf("Observer of subscription %v panicked: %v", sub.id, r)
		}
	}()

	sub.observer.StatusChanged(status)
}
