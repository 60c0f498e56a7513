package reachability

import (
	"context"
	"net/netip"
	"sync"

	"github.com/go-errors/errors"
	"github.com/the-lightning-land/reachd/connectivity"
	"golang.org/x/sync/semaphore"
)

// check Monitor compliance to its interface during compile time
var _ connectivity.Reporter = (*Monitor)(nil)

type Config struct {
	Provider Provider
	Logger   Logger

	// MaxConcurrentDeliveries bounds how many observers are notified at the
	// same time across the monitor. Zero means no bound. With a bound, that
	// many slow observers hold every permit and delay the notifications of
	// all other observers until one of them returns.
	MaxConcurrentDeliveries int64
}

// Monitor watches reachability of a single target and fans status changes
// out to subscribers.
//
// Start, Stop, Close, Subscribe, Unsubscribe and Status are meant to be
// called from one owning goroutine; platform callbacks may arrive
// concurrently on any goroutine.
type Monitor struct {
	log        Logger
	target     Target
	handle     Handle
	registry   registry
	deliveries *semaphore.Weighted

	// stateMtx guards the started/stopped transitions.
	stateMtx sync.Mutex
	started  bool
	closed   bool

	// dispatchMtx guards the active token and the cached status, and
	// serializes fan-out so that lanes receive statuses in callback order.
	dispatchMtx sync.Mutex
	token       Token
	cached      connectivity.Status

	closeOnce sync.Once
	closeErr  error

	callbacksMtx sync.Mutex
	callbacks    map[string]*Subscription
}

// New creates a monitor for target. It fails with ErrHandleCreation if the
// provider refuses the target.
func New(target Target, config *Config) (*Monitor, error) {
	if config == nil || config.Provider == nil {
		return nil, errors.Errorf("%w: no provider configured", ErrHandleCreation)
	}

	handle, err := config.Provider.CreateHandle(target)
	if err != nil {
		return nil, errors.Errorf("%w for %v: %v", ErrHandleCreation, target, err)
	}

	if handle == nil {
		return nil, errors.Errorf("%w for %v", ErrHandleCreation, target)
	}

	m := &Monitor{
		target:    target,
		handle:    handle,
		callbacks: make(map[string]*Subscription),
	}

	if config.Logger != nil {
		m.log = config.Logger
	} else {
		m.log = noopLogger{}
	}

	if config.MaxConcurrentDeliveries > 0 {
		m.deliveries = semaphore.NewWeighted(config.MaxConcurrentDeliveries)
	}

	return m, nil
}

// NewForInternet monitors general internet reachability.
func NewForInternet(config *Config) (*Monitor, error) {
	return New(InternetTarget(), config)
}

func NewForAddress(addr netip.AddrPort, config *Config) (*Monitor, error) {
	return New(AddressTarget(addr), config)
}

func NewForHost(host string, config *Config) (*Monitor, error) {
	return New(HostTarget(host), config)
}

// NewForURL monitors reachability of the host component of rawURL.
func NewForURL(rawURL string, config *Config) (*Monitor, error) {
	target, err := URLTarget(rawURL)
	if err != nil {
		return nil, errors.Errorf("%w: %v", ErrHandleCreation, err)
	}

	return New(target, config)
}

func (m *Monitor) Target() Target {
	return m.target
}

// Status queries the platform for the current flags. A failed query yields
// connectivity.Unknown.
func (m *Monitor) Status() connectivity.Status {
	m.stateMtx.Lock()
	closed := m.closed
	m.stateMtx.Unlock()

	if closed {
		return connectivity.Unknown
	}

	flags, err := m.handle.Flags()
	if err != nil {
		m.log.Debugf("Could not query flags for %v: %v", m.target, err)
		return connectivity.Unknown
	}

	return connectivity.Classify(flags)
}

// IsReachable is shorthand for Status().IsReachable().
func (m *Monitor) IsReachable() bool {
	return m.Status().IsReachable()
}

// CachedStatus returns the status delivered by the most recent callback.
// It is connectivity.Unknown before the first callback and after Stop.
func (m *Monitor) CachedStatus() connectivity.Status {
	m.dispatchMtx.Lock()
	defer m.dispatchMtx.Unlock()

	return m.cached
}

// Started reports whether the monitor currently receives callbacks.
func (m *Monitor) Started() bool {
	m.stateMtx.Lock()
	defer m.stateMtx.Unlock()

	return m.started
}

// Start registers for platform callbacks. It does nothing if the monitor
// is already started. On failure the monitor stays stopped.
func (m *Monitor) Start() error {
	m.stateMtx.Lock()
	defer m.stateMtx.Unlock()

	if m.closed {
		return ErrClosed
	}

	if m.started {
		return nil
	}

	token := registerContext(m)

	m.dispatchMtx.Lock()
	m.token = token
	m.dispatchMtx.Unlock()

	if !m.handle.SetCallback(dispatch, token) {
		m.disarm(token)
		return errors.Errorf("%w: could not set callback for %v", ErrRegistration, m.target)
	}

	if !m.handle.Schedule() {
		m.handle.SetCallback(nil, 0)
		m.disarm(token)
		return errors.Errorf("%w: could not schedule %v", ErrRegistration, m.target)
	}

	m.started = true
	m.log.Debugf("Started monitoring %v", m.target)

	return nil
}

// Stop unregisters from platform callbacks. It does nothing if the monitor
// is not started. Start may be called again afterwards.
func (m *Monitor) Stop() {
	m.stateMtx.Lock()
	defer m.stateMtx.Unlock()

	m.stopLocked()
}

func (m *Monitor) stopLocked() {
	if !m.started {
		return
	}

	if !m.handle.Unschedule() {
		m.log.Warnf("Could not unschedule %v", m.target)
	}

	m.handle.SetCallback(nil, 0)

	m.dispatchMtx.Lock()
	token := m.token
	m.dispatchMtx.Unlock()

	m.disarm(token)
	m.started = false

	m.log.Debugf("Stopped monitoring %v", m.target)
}

// disarm releases the callback context and invalidates the cache.
func (m *Monitor) disarm(token Token) {
	releaseContext(token)

	m.dispatchMtx.Lock()
	m.token = 0
	m.cached = connectivity.Unknown
	m.dispatchMtx.Unlock()
}

// Close stops the monitor and releases the platform handle. Subscriptions
// stay registered but receive nothing further.
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() {
		m.stateMtx.Lock()
		m.stopLocked()
		m.closed = true
		m.stateMtx.Unlock()

		m.callbacksMtx.Lock()
		for identifier, sub := range m.callbacks {
			sub.Cancel()
			delete(m.callbacks, identifier)
		}
		m.callbacksMtx.Unlock()

		err := m.handle.Close()
		if err != nil {
			m.closeErr = errors.Errorf("could not close handle for %v: %v", m.target, err)
		}
	})

	return m.closeErr
}

// deliver classifies flags once and queues the result for every live
// subscription. Entries whose subscription is gone are pruned.
func (m *Monitor) deliver(token Token, flags connectivity.Flags) {
	m.dispatchMtx.Lock()
	defer m.dispatchMtx.Unlock()

	if token == 0 || token != m.token {
		return
	}

	status := connectivity.Classify(flags)
	m.cached = status

	m.log.Debugf("Received flags %v for %v: %v", flags, m.target, status)

	var stale []uint64
	for _, e := range m.registry.snapshot() {
		if _, live := e.live(); !live {
			stale = append(stale, e.id)
			continue
		}

		m.enqueue(e, status)
	}

	m.registry.prune(stale)
}

// WaitForStateChange blocks until the monitor reports a status other than
// state, returning false if ctx ends first.
func (m *Monitor) WaitForStateChange(ctx context.Context, state connectivity.Status) bool {
	changes := make(chan connectivity.Status, 1)

	sub := m.SubscribeFunc(func(status connectivity.Status) {
		select {
		case changes <- status:
		default:
			// only the most recent status matters
			select {
			case <-changes:
			default:
			}
			select {
			case changes <- status:
			default:
			}
		}
	})
	defer sub.Cancel()

	if m.Status() != state {
		return true
	}

	for {
		select {
		case status := <-changes:
			if status != state {
				return true
			}
		case <-ctx.Done():
			return false
		}
	}
}
