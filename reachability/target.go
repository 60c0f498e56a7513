package reachability

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/go-errors/errors"
)

type TargetKind int

const (
	// TargetInternet checks general internet reachability through the
	// wildcard address.
	TargetInternet TargetKind = iota
	TargetAddress
	TargetHost
)

// Target is what a monitor checks reachability for.
type Target struct {
	Kind TargetKind
	// Addr is set for TargetInternet (unspecified address) and TargetAddress.
	// A zero port means any port.
	Addr netip.AddrPort
	// Host is set for TargetHost.
	Host string
}

func InternetTarget() Target {
	return Target{
		Kind: TargetInternet,
		Addr: netip.AddrPortFrom(netip.IPv4Unspecified(), 0),
	}
}

func AddressTarget(addr netip.AddrPort) Target {
	return Target{
		Kind: TargetAddress,
		Addr: addr,
	}
}

func HostTarget(host string) Target {
	return Target{
		Kind: TargetHost,
		Host: host,
	}
}

// URLTarget checks reachability of the host component of rawURL.
func URLTarget(rawURL string) (Target, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Target{}, errors.Errorf("could not parse url %q: %v", rawURL, err)
	}

	host := u.Hostname()
	if host == "" {
		return Target{}, errors.Errorf("url %q has no host", rawURL)
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return AddressTarget(netip.AddrPortFrom(addr.Unmap(), 0)), nil
	}

	return HostTarget(host), nil
}

// ParseTarget reads the representation produced by Target.String. URLs and
// bare addresses or host names are accepted too.
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)

	switch {
	case s == "" || s == "internet":
		return InternetTarget(), nil
	case strings.HasPrefix(s, "address:"):
		return parseAddress(strings.TrimPrefix(s, "address:"))
	case strings.HasPrefix(s, "host:"):
		host := strings.TrimPrefix(s, "host:")
		if host == "" {
			return Target{}, errors.New("empty host")
		}
		return HostTarget(host), nil
	case strings.Contains(s, "://"):
		return URLTarget(s)
	}

	if t, err := parseAddress(s); err == nil {
		return t, nil
	}

	return HostTarget(s), nil
}

func parseAddress(s string) (Target, error) {
	if addrPort, err := netip.ParseAddrPort(s); err == nil {
		return AddressTarget(addrPort), nil
	}

	addr, err := netip.ParseAddr(s)
	if err != nil {
		return Target{}, errors.Errorf("could not parse address %q: %v", s, err)
	}

	return AddressTarget(netip.AddrPortFrom(addr, 0)), nil
}

func (t Target) String() string {
	switch t.Kind {
	case TargetInternet:
		return "internet"
	case TargetAddress:
		if t.Addr.Port() == 0 {
			return "address:" + t.Addr.Addr().String()
		}
		return "address:" + t.Addr.String()
	case TargetHost:
		return "host:" + t.Host
	default:
		return "invalid"
	}
}
