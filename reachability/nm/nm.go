// Package nm implements reachability handles on top of NetworkManager,
// talking to it over the system D-Bus.
package nm

import (
	"sync"

	"github.com/go-errors/errors"
	"github.com/godbus/dbus/v5"
	"github.com/the-lightning-land/reachd/connectivity"
	"github.com/the-lightning-land/reachd/reachability"
	"golang.org/x/net/idna"
)

const (
	nmService           = "org.freedesktop.NetworkManager"
	nmInterface         = "org.freedesktop.NetworkManager"
	nmPath              = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	propertiesInterface = "org.freedesktop.DBus.Properties"
)

// check compliance to the interfaces during compile time
var (
	_ reachability.Provider = (*Provider)(nil)
	_ reachability.Handle   = (*Handle)(nil)
)

type Config struct {
	Logger Logger
	// Conn is used instead of a private system bus connection if set. It is
	// not closed by the provider.
	Conn *dbus.Conn
}

type Provider struct {
	log      Logger
	conn     *dbus.Conn
	ownsConn bool
}

func NewProvider(config *Config) (*Provider, error) {
	p := &Provider{
		conn: config.Conn,
	}

	if config.Logger != nil {
		p.log = config.Logger
	} else {
		p.log = noopLogger{}
	}

	if p.conn == nil {
		conn, err := dbus.ConnectSystemBus()
		if err != nil {
			return nil, errors.Errorf("could not connect to system bus: %v", err)
		}

		p.conn = conn
		p.ownsConn = true
	}

	return p, nil
}

// CreateHandle refuses targets that cannot be resolved, such as malformed
// host names.
func (p *Provider) CreateHandle(target reachability.Target) (reachability.Handle, error) {
	if err := validateTarget(target); err != nil {
		return nil, err
	}

	return &Handle{
		log:    p.log,
		conn:   p.conn,
		obj:    p.conn.Object(nmService, nmPath),
		target: target,
	}, nil
}

func (p *Provider) Close() error {
	if !p.ownsConn {
		return nil
	}

	err := p.conn.Close()
	if err != nil {
		return errors.Errorf("could not close system bus connection: %v", err)
	}

	return nil
}

func validateTarget(target reachability.Target) error {
	switch target.Kind {
	case reachability.TargetInternet:
		return nil
	case reachability.TargetAddress:
		if !target.Addr.Addr().IsValid() {
			return errors.New("invalid address")
		}
		return nil
	case reachability.TargetHost:
		if target.Host == "" {
			return errors.New("empty host name")
		}

		_, err := idna.Lookup.ToASCII(target.Host)
		if err != nil {
			return errors.Errorf("invalid host name %q: %v", target.Host, err)
		}
		return nil
	default:
		return errors.Errorf("unsupported target kind %v", target.Kind)
	}
}

type Handle struct {
	log    Logger
	conn   *dbus.Conn
	obj    dbus.BusObject
	target reachability.Target

	mtx       sync.Mutex
	cb        reachability.Callback
	token     reachability.Token
	scheduled bool
	closed    bool
	signals   chan *dbus.Signal
	done      chan struct{}
	last      *connectivity.Flags
}

func (h *Handle) properties() (*properties, error) {
	call := h.obj.Call(propertiesInterface+".GetAll", 0, nmInterface)
	if call.Err != nil {
		return nil, errors.Errorf("could not get all properties: %v", call.Err)
	}

	if len(call.Body) == 0 {
		return nil, errors.Errorf("empty reply to GetAll")
	}

	props, ok := call.Body[0].(map[string]dbus.Variant)
	if !ok {
		return nil, errors.Errorf("could not convert output")
	}

	return parseProperties(props)
}

func (h *Handle) Flags() (connectivity.Flags, error) {
	if isLoopback(h.target) {
		return localFlags(), nil
	}

	props, err := h.properties()
	if err != nil {
		return 0, err
	}

	return flagsFor(props, h.target), nil
}

func (h *Handle) SetCallback(cb reachability.Callback, token reachability.Token) bool {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if h.closed && cb != nil {
		return false
	}

	h.cb = cb
	h.token = token
	return true
}

func (h *Handle) Schedule() bool {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if h.closed {
		return false
	}

	if h.scheduled {
		return true
	}

	call := h.conn.BusObject().AddMatchSignal(propertiesInterface, "PropertiesChanged", dbus.WithMatchObjectPath(nmPath))
	if call.Err != nil {
		h.log.Errorf("Could not add PropertiesChanged signal: %v", call.Err)
		return false
	}

	call = h.conn.BusObject().AddMatchSignal(nmInterface, "StateChanged", dbus.WithMatchObjectPath(nmPath))
	if call.Err != nil {
		h.log.Errorf("Could not add StateChanged signal: %v", call.Err)
		_ = h.conn.BusObject().RemoveMatchSignal(propertiesInterface, "PropertiesChanged", dbus.WithMatchObjectPath(nmPath))
		return false
	}

	h.signals = make(chan *dbus.Signal, 16)
	h.done = make(chan struct{})
	h.last = nil
	h.conn.Signal(h.signals)

	go h.run(h.signals, h.done)

	h.scheduled = true
	return true
}

func (h *Handle) Unschedule() bool {
	h.mtx.Lock()
	if !h.scheduled {
		h.mtx.Unlock()
		return true
	}

	signals, done := h.signals, h.done
	h.signals, h.done = nil, nil
	h.scheduled = false
	h.mtx.Unlock()

	h.conn.RemoveSignal(signals)

	ok := true
	if call := h.conn.BusObject().RemoveMatchSignal(propertiesInterface, "PropertiesChanged", dbus.WithMatchObjectPath(nmPath)); call.Err != nil {
		h.log.Warnf("Could not remove PropertiesChanged signal: %v", call.Err)
		ok = false
	}

	if call := h.conn.BusObject().RemoveMatchSignal(nmInterface, "StateChanged", dbus.WithMatchObjectPath(nmPath)); call.Err != nil {
		h.log.Warnf("Could not remove StateChanged signal: %v", call.Err)
		ok = false
	}

	close(signals)
	<-done

	return ok
}

func (h *Handle) Close() error {
	h.Unschedule()

	h.mtx.Lock()
	defer h.mtx.Unlock()

	h.closed = true
	h.cb = nil
	return nil
}

// run reports the current flags once, like the platform does right after
// scheduling, and then again on every relevant signal.
func (h *Handle) run(signals <-chan *dbus.Signal, done chan<- struct{}) {
	defer close(done)

	h.report()

	for signal := range signals {
		if signal.Path != nmPath {
			continue
		}

		switch signal.Name {
		case propertiesInterface + ".PropertiesChanged":
			if len(signal.Body) == 0 {
				continue
			}
			if iface, ok := signal.Body[0].(string); !ok || iface != nmInterface {
				continue
			}
		case nmInterface + ".StateChanged":
		default:
			continue
		}

		h.report()
	}
}

// report invokes the callback if the flags differ from the last report.
func (h *Handle) report() {
	flags, err := h.Flags()
	if err != nil {
		h.log.Warnf("Could not query NetworkManager for %v: %v", h.target, err)
		return
	}

	h.mtx.Lock()
	if h.last != nil && *h.last == flags {
		h.mtx.Unlock()
		return
	}
	h.last = &flags
	cb, token := h.cb, h.token
	h.mtx.Unlock()

	if cb != nil {
		cb(token, flags)
	}
}
