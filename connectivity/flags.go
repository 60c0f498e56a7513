package connectivity

import (
	"strings"

	"github.com/go-errors/errors"
)

// Flags is the capability bit set reported by the platform for a target.
// Bit positions follow the SystemConfiguration reachability flags.
type Flags uint32

const (
	TransientConnection  Flags = 1 << 0
	Reachable            Flags = 1 << 1
	ConnectionRequired   Flags = 1 << 2
	ConnectionOnTraffic  Flags = 1 << 3
	InterventionRequired Flags = 1 << 4
	ConnectionOnDemand   Flags = 1 << 5
	IsLocalAddress       Flags = 1 << 16
	IsDirect             Flags = 1 << 17
	IsCellular           Flags = 1 << 18
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{TransientConnection, "transient-connection"},
	{Reachable, "reachable"},
	{ConnectionRequired, "connection-required"},
	{ConnectionOnTraffic, "connection-on-traffic"},
	{InterventionRequired, "intervention-required"},
	{ConnectionOnDemand, "connection-on-demand"},
	{IsLocalAddress, "is-local-address"},
	{IsDirect, "is-direct"},
	{IsCellular, "is-cellular"},
}

// Has reports whether every bit of other is set.
func (f Flags) Has(other Flags) bool {
	return f&other == other
}

func (f Flags) String() string {
	if f == 0 {
		return "none"
	}

	var names []string
	for _, n := range flagNames {
		if f.Has(n.flag) {
			names = append(names, n.name)
		}
	}

	return strings.Join(names, "|")
}

// ParseFlags reads a list of flag names separated by "|" or ",".
// "none" and the empty string yield an empty set.
func ParseFlags(s string) (Flags, error) {
	var flags Flags

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == '|' || r == ','
	})

	for _, field := range fields {
		field = strings.TrimSpace(field)
		if field == "" || field == "none" {
			continue
		}

		found := false
		for _, n := range flagNames {
			if n.name == field {
				flags |= n.flag
				found = true
				break
			}
		}

		if !found {
			return 0, errors.Errorf("unknown flag %q", field)
		}
	}

	return flags, nil
}
