package ifaddr

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sakateka/mdns-relay/internal/config"
	"github.com/sakateka/mdns-relay/internal/xnetip"
)

func TestResolveLiteral(t *testing.T) {
	targets := []netip.Addr{netip.MustParseAddr("224.0.0.251")}

	ifaces, err := Resolve([]config.InterfaceConfig{
		{
			Address:   netip.MustParseAddr("192.168.1.5"),
			Mask:      "255.255.255.0",
			ForwardTo: targets,
			Reverse:   true,
		},
		{
			// No mask configured: single-host segment.
			Address:   netip.MustParseAddr("10.0.0.5"),
			ForwardTo: targets,
		},
	})
	require.NoError(t, err)
	require.Len(t, ifaces, 2)

	require.Equal(t, netip.MustParseAddr("192.168.1.5"), ifaces[0].Net.Addr)
	require.Equal(t, [4]byte{255, 255, 255, 0}, ifaces[0].Net.Mask)
	require.True(t, ifaces[0].Reverse)
	require.Equal(t, targets, ifaces[0].ForwardTo)

	require.Equal(t, xnetip.HostMask, ifaces[1].Net.Mask)
	require.False(t, ifaces[1].Reverse)
}

func TestResolveLiteralBadMask(t *testing.T) {
	_, err := Resolve([]config.InterfaceConfig{
		{
			Address:   netip.MustParseAddr("10.0.0.5"),
			Mask:      "255.255.bad.0",
			ForwardTo: []netip.Addr{netip.MustParseAddr("10.0.0.1")},
		},
	})
	require.Error(t, err)
}

func TestResolveBadPattern(t *testing.T) {
	_, err := Resolve([]config.InterfaceConfig{
		{
			Name:      "[",
			ForwardTo: []netip.Addr{netip.MustParseAddr("10.0.0.1")},
		},
	})
	require.Error(t, err)
}

func TestResolveLoopback(t *testing.T) {
	ifaces, err := Resolve([]config.InterfaceConfig{
		{
			Name:      "lo",
			ForwardTo: []netip.Addr{netip.MustParseAddr("224.0.0.251")},
		},
	})
	require.NoError(t, err)
	require.Len(t, ifaces, 1)
	require.Equal(t, netip.MustParseAddr("127.0.0.1"), ifaces[0].Net.Addr)
}
