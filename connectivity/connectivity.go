package connectivity

import (
	"context"

	"github.com/go-errors/errors"
)

// Status is the connectivity class of the host towards a target.
type Status int

const (
	// Unknown means the status was not queried yet or the query failed.
	Unknown Status = iota
	NotReachable
	ViaLocalWireless
	ViaCellular
)

func (s Status) String() string {
	switch s {
	case Unknown:
		return "Unknown"
	case NotReachable:
		return "Not reachable"
	case ViaLocalWireless:
		return "Reachable via wifi"
	case ViaCellular:
		return "Reachable via cellular"
	default:
		return "INVALID STATUS"
	}
}

// IsReachable reports whether traffic can currently flow, either way.
func (s Status) IsReachable() bool {
	return s == ViaLocalWireless || s == ViaCellular
}

var statusKeys = map[Status]string{
	Unknown:          "unknown",
	NotReachable:     "not_reachable",
	ViaLocalWireless: "wifi",
	ViaCellular:      "cellular",
}

// MarshalText encodes the status as a short machine readable key.
func (s Status) MarshalText() ([]byte, error) {
	key, ok := statusKeys[s]
	if !ok {
		return nil, errors.Errorf("invalid status %d", int(s))
	}

	return []byte(key), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	for status, key := range statusKeys {
		if key == string(text) {
			*s = status
			return nil
		}
	}

	return errors.Errorf("unknown status %q", text)
}

// Classify maps a platform flag set to a status. It never returns Unknown.
//
// A connection that has to be established first still counts as usable
// when the platform brings it up on demand or on traffic, unless doing so
// needs the user to step in.
func Classify(flags Flags) Status {
	reachable := flags.Has(Reachable)
	requiresConnection := flags.Has(ConnectionRequired)
	supportsAutoConnect := flags.Has(ConnectionOnDemand) || flags.Has(ConnectionOnTraffic)
	requiresIntervention := flags.Has(InterventionRequired)

	networkReachable := reachable &&
		(!requiresConnection || (supportsAutoConnect && !requiresIntervention))

	if !networkReachable {
		return NotReachable
	} else if flags.Has(IsCellular) {
		return ViaCellular
	}

	return ViaLocalWireless
}

// Reporter exposes the current status and lets callers block until it
// moves away from a known value.
type Reporter interface {
	Status() Status
	WaitForStateChange(context.Context, Status) bool
}
