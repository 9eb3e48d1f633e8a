package xnetip

import (
	"fmt"
	"net/netip"
)

// HostMask is the mask of a single-host network.
var HostMask = [4]byte{255, 255, 255, 255}

// NetWithMask is an IPv4 address together with an arbitrary netmask.
// Unlike netip.Prefix, this supports non-contiguous masks (e.g. 255.255.0.255).
type NetWithMask struct {
	Addr netip.Addr
	Mask [4]byte
}

// New creates a NetWithMask from an IPv4 address and mask.
func New(addr netip.Addr, mask [4]byte) (NetWithMask, error) {
	addr = addr.Unmap()
	if !addr.Is4() {
		return NetWithMask{}, fmt.Errorf("address %s is not IPv4", addr)
	}
	return NetWithMask{Addr: addr, Mask: mask}, nil
}

// Host returns the single-host (/32) network of addr.
func Host(addr netip.Addr) NetWithMask {
	return NetWithMask{Addr: addr.Unmap(), Mask: HostMask}
}

// ParseMask parses a dotted-quad IPv4 netmask, e.g. "255.255.255.0".
func ParseMask(s string) ([4]byte, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return [4]byte{}, fmt.Errorf("invalid mask %q: %w", s, err)
	}
	if !addr.Is4() {
		return [4]byte{}, fmt.Errorf("mask %q is not IPv4", s)
	}
	return addr.As4(), nil
}

// Network returns the network address, i.e. the address with all host
// bits cleared by the mask.
func (n NetWithMask) Network() netip.Addr {
	octets := n.Addr.As4()
	for idx := range octets {
		octets[idx] &= n.Mask[idx]
	}
	return netip.AddrFrom4(octets)
}

// Contains reports whether addr, masked by this network's mask, falls
// into the same network.
func (n NetWithMask) Contains(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.Is4() {
		return false
	}
	octets := addr.As4()
	for idx := range octets {
		octets[idx] &= n.Mask[idx]
	}
	return netip.AddrFrom4(octets) == n.Network()
}

// IsValid reports whether this value holds an IPv4 address.
func (n NetWithMask) IsValid() bool {
	return n.Addr.IsValid() && n.Addr.Is4()
}

// String returns the "addr/mask" representation with the mask in
// dotted decimal.
func (n NetWithMask) String() string {
	if !n.IsValid() {
		return "invalid"
	}
	return fmt.Sprintf("%s/%s", n.Addr, netip.AddrFrom4(n.Mask))
}
