package reachability

import (
	"sync"

	"github.com/the-lightning-land/reachd/connectivity"
)

// Token identifies a started monitor towards a platform handle. Handles
// only ever see the token, never the monitor itself.
type Token uint64

// contexts maps tokens of started monitors back to their instance. An
// entry lives from Start until Stop.
var contexts = struct {
	sync.RWMutex
	next     Token
	monitors map[Token]*Monitor
}{
	monitors: make(map[Token]*Monitor),
}

func registerContext(m *Monitor) Token {
	contexts.Lock()
	defer contexts.Unlock()

	contexts.next++
	token := contexts.next
	contexts.monitors[token] = m

	return token
}

func lookupContext(token Token) (*Monitor, bool) {
	contexts.RLock()
	defer contexts.RUnlock()

	m, ok := contexts.monitors[token]
	return m, ok
}

func releaseContext(token Token) bool {
	contexts.Lock()
	defer contexts.Unlock()

	if _, ok := contexts.monitors[token]; !ok {
		return false
	}

	delete(contexts.monitors, token)
	return true
}

// dispatch is the single entry point registered with every handle.
// Callbacks for tokens that were already released are dropped.
func dispatch(token Token, flags connectivity.Flags) {
	m, ok := lookupContext(token)
	if !ok {
		return
	}

	m.deliver(token, flags)
}
