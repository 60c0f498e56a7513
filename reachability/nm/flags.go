package nm

import (
	"github.com/go-errors/errors"
	"github.com/godbus/dbus/v5"
	"github.com/the-lightning-land/reachd/connectivity"
	"github.com/the-lightning-land/reachd/reachability"
)

// NMState values
const (
	stateUnknown         uint32 = 0
	stateConnecting      uint32 = 40
	stateConnectedLocal  uint32 = 50
	stateConnectedSite   uint32 = 60
	stateConnectedGlobal uint32 = 70
)

// NMConnectivityState values
const (
	connectivityNone    uint32 = 1
	connectivityPortal  uint32 = 2
	connectivityLimited uint32 = 3
	connectivityFull    uint32 = 4
)

// NMMetered values
const (
	meteredYes      uint32 = 1
	meteredGuessYes uint32 = 3
)

type properties struct {
	State                 uint32
	Connectivity          uint32
	PrimaryConnectionType string
	Metered               uint32
}

func parseProperties(props map[string]dbus.Variant) (*properties, error) {
	p := &properties{}

	if val, ok := props["State"]; ok {
		if state, ok := val.Value().(uint32); ok {
			p.State = state
		} else {
			return nil, errors.Errorf("could not convert State to uint32: %v", val)
		}
	} else {
		return nil, errors.Errorf("mandatory property State was missing")
	}

	if val, ok := props["Connectivity"]; ok {
		if c, ok := val.Value().(uint32); ok {
			p.Connectivity = c
		} else {
			return nil, errors.Errorf("could not convert Connectivity to uint32: %v", val)
		}
	}

	if val, ok := props["PrimaryConnectionType"]; ok {
		if t, ok := val.Value().(string); ok {
			p.PrimaryConnectionType = t
		} else {
			return nil, errors.Errorf("could not convert PrimaryConnectionType to string: %v", val)
		}
	}

	if val, ok := props["Metered"]; ok {
		if m, ok := val.Value().(uint32); ok {
			p.Metered = m
		} else {
			return nil, errors.Errorf("could not convert Metered to uint32: %v", val)
		}
	}

	return p, nil
}

// cellular also covers tethering through a phone, which NetworkManager
// reports as a metered wifi or ethernet connection.
func (p *properties) cellular() bool {
	switch p.PrimaryConnectionType {
	case "gsm", "cdma":
		return true
	}

	return p.Metered == meteredYes || p.Metered == meteredGuessYes
}

func localFlags() connectivity.Flags {
	return connectivity.Reachable | connectivity.IsLocalAddress | connectivity.IsDirect
}

// flagsFor derives the flag set for target from NetworkManager state.
func flagsFor(p *properties, target reachability.Target) connectivity.Flags {
	if isLoopback(target) {
		return localFlags()
	}

	var flags connectivity.Flags

	if isOnLink(target) {
		if p.State >= stateConnectedLocal {
			flags = connectivity.Reachable
			if target.Addr.Addr().IsLinkLocalUnicast() {
				flags |= connectivity.IsDirect
			}
		}
	} else {
		switch {
		case p.State >= stateConnectedGlobal:
			flags = connectivity.Reachable

			switch p.Connectivity {
			case connectivityNone:
				flags = 0
			case connectivityPortal:
				flags |= connectivity.ConnectionRequired | connectivity.InterventionRequired
			case connectivityLimited:
				flags |= connectivity.ConnectionRequired
			}
		case p.State >= stateConnectedLocal:
			flags = connectivity.Reachable | connectivity.ConnectionRequired
		case p.State >= stateConnecting:
			flags = connectivity.ConnectionRequired | connectivity.ConnectionOnTraffic |
				connectivity.TransientConnection
		case p.State == stateUnknown && p.Connectivity == connectivityFull:
			flags = connectivity.Reachable
		}
	}

	if flags.Has(connectivity.Reachable) && p.cellular() {
		flags |= connectivity.IsCellular
	}

	return flags
}

func isLoopback(target reachability.Target) bool {
	switch target.Kind {
	case reachability.TargetAddress:
		return target.Addr.Addr().IsLoopback()
	case reachability.TargetHost:
		return target.Host == "localhost"
	}

	return false
}

func isOnLink(target reachability.Target) bool {
	if target.Kind != reachability.TargetAddress {
		return false
	}

	addr := target.Addr.Addr()
	return addr.IsPrivate() || addr.IsLinkLocalUnicast()
}
