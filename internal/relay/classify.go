package relay

import "net/netip"

// Verdict is the relay decision for a single received packet.
type Verdict struct {
	// SameAddress is set when the source equals one of our own
	// interface addresses, i.e. the packet is our own retransmission.
	SameAddress bool
	// LocalNetwork is set when the source belongs to at least one
	// configured segment.
	LocalNetwork bool
	// Forward lists the interfaces whose targets should receive a
	// copy, in configuration order.
	Forward []*Interface
}

// ShouldRelay reports whether the packet is accepted for relay: it
// must originate from one of the managed segments and must not be a
// self-echo.
func (v Verdict) ShouldRelay() bool {
	return v.LocalNetwork && !v.SameAddress
}

// Classify decides which interfaces a packet from src should be
// relayed to.
//
// Own retransmissions are detected first, across the whole table: a
// source equal to any interface address stops classification before
// any subnet logic runs. Otherwise an interface receives a copy when
// the source is foreign to its segment, or when the segment matches
// and the interface explicitly allows echo with Reverse.
func Classify(src netip.Addr, ifaces []*Interface) Verdict {
	src = src.Unmap()

	var verdict Verdict
	for _, iface := range ifaces {
		if iface.Net.Addr == src {
			verdict.SameAddress = true
			return verdict
		}
	}

	for _, iface := range ifaces {
		if iface.Net.Contains(src) {
			verdict.LocalNetwork = true
			if !iface.Reverse {
				continue
			}
		}
		verdict.Forward = append(verdict.Forward, iface)
	}

	return verdict
}
