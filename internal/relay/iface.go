package relay

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/sakateka/mdns-relay/internal/xnetip"
)

// Interface describes one relayed network segment: the address the
// relay owns on that segment, the segment mask, and the targets that
// should receive copies of packets arriving from other segments.
//
// The interface table is immutable for the process lifetime.
type Interface struct {
	// Net is the interface address together with the segment mask.
	Net xnetip.NetWithMask
	// ForwardTo lists retransmission targets, either unicast peer
	// addresses or multicast groups, in configuration order.
	ForwardTo []netip.Addr
	// Reverse allows relaying into this segment even when the packet
	// originated from it.
	Reverse bool
}

func (m *Interface) String() string {
	targets := make([]string, len(m.ForwardTo))
	for idx, target := range m.ForwardTo {
		targets[idx] = target.String()
	}
	return fmt.Sprintf("%s -> [%s] reverse=%t", m.Net, strings.Join(targets, ", "), m.Reverse)
}

// Packet is one received datagram. The payload is opaque and is never
// modified, only copied by reference into forward tasks; neither the
// packet nor a task outlives the receive iteration that produced it.
type Packet struct {
	Payload []byte
	Src     netip.AddrPort
}
