package reachability

import "github.com/the-lightning-land/reachd/connectivity"

// AddCallback registers fn under identifier. Unlike Subscribe, the monitor
// keeps the registration alive itself until RemoveCallback or Close.
// Registering the same identifier again replaces the previous callback.
func (m *Monitor) AddCallback(identifier string, fn func(status connectivity.Status)) {
	sub := m.SubscribeFunc(fn)

	m.callbacksMtx.Lock()
	previous, ok := m.callbacks[identifier]
	m.callbacks[identifier] = sub
	m.callbacksMtx.Unlock()

	if ok {
		previous.Cancel()
	}
}

// RemoveCallback removes the callback registered under identifier.
func (m *Monitor) RemoveCallback(identifier string) bool {
	m.callbacksMtx.Lock()
	sub, ok := m.callbacks[identifier]
	delete(m.callbacks, identifier)
	m.callbacksMtx.Unlock()

	if ok {
		sub.Cancel()
	}

	return ok
}
