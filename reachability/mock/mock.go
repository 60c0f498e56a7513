// Package mock provides an in-memory reachability provider whose flags are
// set by hand. It is used in tests and by the mock networking mode.
package mock

import (
	"sync"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/reachd/connectivity"
	"github.com/the-lightning-land/reachd/reachability"
)

// check compliance to the interfaces during compile time
var (
	_ reachability.Provider = (*Provider)(nil)
	_ reachability.Handle   = (*Handle)(nil)
)

type Provider struct {
	mtx     sync.Mutex
	flags   connectivity.Flags
	handles []*Handle

	// Refuse, if set, decides which targets cannot get a handle.
	Refuse func(target reachability.Target) bool
}

// NewProvider returns a provider whose handles start out with flags.
func NewProvider(flags connectivity.Flags) *Provider {
	return &Provider{
		flags: flags,
	}
}

func (p *Provider) CreateHandle(target reachability.Target) (reachability.Handle, error) {
	if target.Kind == reachability.TargetHost && target.Host == "" {
		return nil, errors.New("empty host name")
	}

	if p.Refuse != nil && p.Refuse(target) {
		return nil, errors.Errorf("refusing target %v", target)
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()

	h := &Handle{
		target: target,
		flags:  p.flags,
	}
	p.handles = append(p.handles, h)

	return h, nil
}

// Handles returns every handle created so far.
func (p *Provider) Handles() []*Handle {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	out := make([]*Handle, len(p.handles))
	copy(out, p.handles)
	return out
}

// SetAll sets flags on the provider default and on every handle.
func (p *Provider) SetAll(flags connectivity.Flags) {
	p.mtx.Lock()
	p.flags = flags
	handles := make([]*Handle, len(p.handles))
	copy(handles, p.handles)
	p.mtx.Unlock()

	for _, h := range handles {
		h.Set(flags)
	}
}

type Handle struct {
	mtx       sync.Mutex
	target    reachability.Target
	flags     connectivity.Flags
	queryErr  error
	cb        reachability.Callback
	token     reachability.Token
	scheduled bool
	closed    int

	failSetCallback bool
	failSchedule    bool
	setCallbacks    int
	schedules       int
}

func (h *Handle) Target() reachability.Target {
	return h.target
}

func (h *Handle) Flags() (connectivity.Flags, error) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if h.queryErr != nil {
		return 0, h.queryErr
	}

	return h.flags, nil
}

func (h *Handle) SetCallback(cb reachability.Callback, token reachability.Token) bool {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if cb != nil && h.failSetCallback {
		return false
	}

	if cb != nil {
		h.setCallbacks++
	}

	h.cb = cb
	h.token = token
	return true
}

func (h *Handle) Schedule() bool {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if h.failSchedule {
		return false
	}

	h.schedules++
	h.scheduled = true
	return true
}

func (h *Handle) Unschedule() bool {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	h.scheduled = false
	return true
}

func (h *Handle) Close() error {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	h.closed++
	h.scheduled = false
	return nil
}

// Set changes the flags and, if scheduled, invokes the callback on the
// calling goroutine.
func (h *Handle) Set(flags connectivity.Flags) {
	h.mtx.Lock()
	h.flags = flags
	cb, token, scheduled := h.cb, h.token, h.scheduled
	h.mtx.Unlock()

	if scheduled && cb != nil {
		cb(token, flags)
	}
}

// Fire invokes the registered callback with flags regardless of whether
// the handle is scheduled, as a late platform callback would.
func (h *Handle) Fire(flags connectivity.Flags) {
	h.mtx.Lock()
	cb, token := h.cb, h.token
	h.mtx.Unlock()

	if cb != nil {
		cb(token, flags)
	}
}

// Callback returns the registered callback and token, so tests can hold on
// to them across Stop.
func (h *Handle) Callback() (reachability.Callback, reachability.Token) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	return h.cb, h.token
}

// SetQueryError makes Flags fail with err. A nil err restores queries.
func (h *Handle) SetQueryError(err error) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	h.queryErr = err
}

func (h *Handle) FailSetCallback(fail bool) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	h.failSetCallback = fail
}

func (h *Handle) FailSchedule(fail bool) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	h.failSchedule = fail
}

func (h *Handle) Scheduled() bool {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	return h.scheduled
}

// Registrations returns how often a callback was set and how often the
// handle was scheduled.
func (h *Handle) Registrations() (setCallbacks int, schedules int) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	return h.setCallbacks, h.schedules
}

// Closed returns how often Close was called.
func (h *Handle) Closed() int {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	return h.closed
}
