package reachability

import (
	"runtime"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/the-lightning-land/reachd/connectivity"
)

// Observer receives status changes.
type Observer interface {
	StatusChanged(status connectivity.Status)
}

// ObserverFunc adapts a plain function to an Observer.
type ObserverFunc func(status connectivity.Status)

func (f ObserverFunc) StatusChanged(status connectivity.Status) {
	f(status)
}

// Subscription is the caller's handle on a registered observer. The monitor
// only references it weakly: the registration stays active for as long as
// the caller keeps the subscription reachable and has not cancelled it.
// A subscription that is dropped without Cancel is removed once it has
// been garbage collected.
//
// A notification that was already handed to the delivery goroutine when
// the subscription went away may still reach the observer.
type Subscription struct {
	id         uint64
	observer   Observer
	monitor    weak.Pointer[Monitor]
	cancelled  atomic.Bool
	cancelOnce sync.Once
}

// Cancel removes the registration. The entry is gone from the monitor once
// Cancel returns. It is safe to call more than once and from within the
// observer.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(func() {
		s.cancelled.Store(true)

		if m := s.monitor.Value(); m != nil {
			m.registry.remove(s.id)
		}
	})
}

// Active reports whether the subscription was not cancelled yet.
func (s *Subscription) Active() bool {
	return !s.cancelled.Load()
}

// entry is the registry's view of a subscription.
type entry struct {
	id   uint64
	sub  weak.Pointer[Subscription]
	lane lane
}

// live returns the subscription if it is still held and not cancelled.
func (e *entry) live() (*Subscription, bool) {
	sub := e.sub.Value()
	if sub == nil || sub.cancelled.Load() {
		return nil, false
	}

	return sub, true
}

type registry struct {
	mtx     sync.RWMutex
	entries []*entry
	nextID  uint64
}

func (r *registry) add(sub *Subscription) *entry {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	r.nextID++
	sub.id = r.nextID

	e := &entry{
		id:  sub.id,
		sub: weak.Make(sub),
	}
	r.entries = append(r.entries, e)

	return e
}

func (r *registry) remove(id uint64) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}

	return false
}

// snapshot copies the current entries so they can be iterated without
// holding the lock.
func (r *registry) snapshot() []*entry {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	out := make([]*entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *registry) prune(ids []uint64) {
	if len(ids) == 0 {
		return
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()

	stale := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		stale[id] = struct{}{}
	}

	kept := r.entries[:0]
	for _, e := range r.entries {
		if _, ok := stale[e.id]; !ok {
			kept = append(kept, e)
		}
	}

	for i := len(kept); i < len(r.entries); i++ {
		r.entries[i] = nil
	}

	r.entries = kept
}

func (r *registry) len() int {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	return len(r.entries)
}

type releaseArg struct {
	monitor weak.Pointer[Monitor]
	id      uint64
}

// Subscribe registers observer for status changes. The returned
// subscription must be kept reachable for notifications to continue.
func (m *Monitor) Subscribe(observer Observer) *Subscription {
	sub := &Subscription{
		observer: observer,
		monitor:  weak.Make(m),
	}

	m.registry.add(sub)

	runtime.AddCleanup(sub, func(arg releaseArg) {
		if m := arg.monitor.Value(); m != nil {
			m.registry.remove(arg.id)
		}
	}, releaseArg{monitor: weak.Make(m), id: sub.id})

	m.log.Debugf("Added subscription %v for %v", sub.id, m.target)

	return sub
}

// SubscribeFunc is Subscribe for a plain function.
func (m *Monitor) SubscribeFunc(fn func(status connectivity.Status)) *Subscription {
	return m.Subscribe(ObserverFunc(fn))
}

// Unsubscribe removes the registration behind sub. It returns false if sub
// does not belong to this monitor or was already removed.
func (m *Monitor) Unsubscribe(sub *Subscription) bool {
	if sub == nil || sub.monitor.Value() != m {
		return false
	}

	removed := m.registry.remove(sub.id)
	sub.Cancel()

	if removed {
		m.log.Debugf("Removed subscription %v for %v", sub.id, m.target)
	}

	return removed
}

// SubscriptionCount returns the number of registered entries, including
// ones whose subscription was collected but not pruned yet.
func (m *Monitor) SubscriptionCount() int {
	return m.registry.len()
}
