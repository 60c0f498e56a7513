package nm

import (
	"net/netip"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/the-lightning-land/reachd/connectivity"
	"github.com/the-lightning-land/reachd/reachability"
)

func TestParseProperties(t *testing.T) {
	p, err := parseProperties(map[string]dbus.Variant{
		"State":                 dbus.MakeVariant(uint32(70)),
		"Connectivity":          dbus.MakeVariant(uint32(4)),
		"PrimaryConnectionType": dbus.MakeVariant("802-11-wireless"),
		"Metered":               dbus.MakeVariant(uint32(4)),
	})
	require.NoError(t, err)
	assert.Equal(t, &properties{
		State:                 70,
		Connectivity:          4,
		PrimaryConnectionType: "802-11-wireless",
		Metered:               4,
	}, p)

	_, err = parseProperties(map[string]dbus.Variant{})
	require.Error(t, err)

	_, err = parseProperties(map[string]dbus.Variant{
		"State": dbus.MakeVariant("connected"),
	})
	require.Error(t, err)
}

func TestFlagsForInternet(t *testing.T) {
	internet := reachability.InternetTarget()

	tests := []struct {
		name  string
		props properties
		want  connectivity.Status
	}{
		{"global wifi", properties{State: 70, Connectivity: 4, PrimaryConnectionType: "802-11-wireless"}, connectivity.ViaLocalWireless},
		{"global modem", properties{State: 70, Connectivity: 4, PrimaryConnectionType: "gsm"}, connectivity.ViaCellular},
		{"tethered", properties{State: 70, Connectivity: 4, PrimaryConnectionType: "802-11-wireless", Metered: 3}, connectivity.ViaCellular},
		{"captive portal", properties{State: 70, Connectivity: 2}, connectivity.NotReachable},
		{"limited", properties{State: 70, Connectivity: 3}, connectivity.NotReachable},
		{"no connectivity", properties{State: 70, Connectivity: 1}, connectivity.NotReachable},
		{"site only", properties{State: 60}, connectivity.NotReachable},
		{"connecting", properties{State: 40}, connectivity.NotReachable},
		{"disconnected", properties{State: 20}, connectivity.NotReachable},
		{"asleep", properties{State: 10}, connectivity.NotReachable},
		{"unknown state but full connectivity", properties{State: 0, Connectivity: 4}, connectivity.ViaLocalWireless},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := flagsFor(&tt.props, internet)
			assert.Equal(t, tt.want, connectivity.Classify(flags), "flags %v", flags)
		})
	}
}

func TestFlagsForPortalNeedsIntervention(t *testing.T) {
	flags := flagsFor(&properties{State: 70, Connectivity: 2}, reachability.InternetTarget())
	assert.True(t, flags.Has(connectivity.InterventionRequired))
	assert.True(t, flags.Has(connectivity.Reachable))
}

func TestFlagsForLocalTargets(t *testing.T) {
	disconnected := &properties{State: 20}
	local := &properties{State: 50, PrimaryConnectionType: "802-3-ethernet"}

	loopback := reachability.AddressTarget(netip.MustParseAddrPort("127.0.0.1:0"))
	assert.Equal(t, localFlags(), flagsFor(disconnected, loopback))
	assert.Equal(t, localFlags(), flagsFor(disconnected, reachability.HostTarget("localhost")))

	private := reachability.AddressTarget(netip.MustParseAddrPort("192.168.1.10:22"))
	assert.Equal(t, connectivity.NotReachable, connectivity.Classify(flagsFor(disconnected, private)))
	assert.Equal(t, connectivity.ViaLocalWireless, connectivity.Classify(flagsFor(local, private)))

	linkLocal := reachability.AddressTarget(netip.MustParseAddrPort("[fe80::1]:0"))
	assert.True(t, flagsFor(local, linkLocal).Has(connectivity.IsDirect))

	public := reachability.AddressTarget(netip.MustParseAddrPort("192.0.2.1:443"))
	assert.Equal(t, connectivity.NotReachable, connectivity.Classify(flagsFor(local, public)))
}

func TestValidateTarget(t *testing.T) {
	require.NoError(t, validateTarget(reachability.InternetTarget()))
	require.NoError(t, validateTarget(reachability.HostTarget("example.com")))
	require.NoError(t, validateTarget(reachability.HostTarget("bücher.example")))
	require.NoError(t, validateTarget(reachability.AddressTarget(netip.MustParseAddrPort("10.0.0.1:0"))))

	require.Error(t, validateTarget(reachability.HostTarget("")))
	require.Error(t, validateTarget(reachability.HostTarget("bad host")))
	require.Error(t, validateTarget(reachability.AddressTarget(netip.AddrPort{})))
}
