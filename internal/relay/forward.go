package relay

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"github.com/sakateka/mdns-relay/internal/xnetip"
)

// Forwarder retransmits a received packet to the targets of one
// interface.
type Forwarder interface {
	Forward(iface *Interface, pkt Packet)
}

// UDPForwarder executes forward tasks by sending the payload from a
// short-lived socket bound to the interface address, one datagram per
// eligible target. Targets equal to the packet source are skipped so a
// packet is never bounced back to the host it came from.
type UDPForwarder struct {
	port uint16
	log  *zap.SugaredLogger
}

// NewUDPForwarder creates a forwarder sending to the given UDP port.
func NewUDPForwarder(port uint16, options ...Option) *UDPForwarder {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	return &UDPForwarder{
		port: port,
		log:  opts.Log,
	}
}

// eligibleTargets filters the interface targets, dropping any target
// whose single-host network equals the packet source's.
func eligibleTargets(iface *Interface, src netip.Addr) []netip.Addr {
	srcHost := xnetip.Host(src).Network()

	targets := make([]netip.Addr, 0, len(iface.ForwardTo))
	for _, target := range iface.ForwardTo {
		if xnetip.Host(target).Network() == srcHost {
			continue
		}
		targets = append(targets, target)
	}
	return targets
}

// Forward sends the payload to every eligible target of iface. Each
// transmission is independent: a failed send is logged and does not
// prevent the remaining targets from being attempted.
func (m *UDPForwarder) Forward(iface *Interface, pkt Packet) {
	targets := eligibleTargets(iface, pkt.Src.Addr())
	if len(targets) == 0 {
		return
	}

	conn, err := m.open(iface)
	if err != nil {
		m.log.Warnw("failed to open forward socket",
			zap.Stringer("iface", iface.Net.Addr),
			zap.Error(err),
		)
		return
	}
	defer conn.Close()

	for _, target := range targets {
		dst := net.UDPAddrFromAddrPort(netip.AddrPortFrom(target, m.port))
		if _, err := conn.WriteTo(pkt.Payload, dst); err != nil {
			m.log.Warnw("failed to forward packet",
				zap.Stringer("src", pkt.Src),
				zap.Stringer("target", dst),
				zap.Error(err),
			)
			continue
		}
		m.log.Debugw("forwarded packet",
			zap.Stringer("src", pkt.Src),
			zap.Stringer("target", dst),
			zap.Int("len", len(pkt.Payload)),
		)
	}
}

// open binds a datagram socket to the interface address on the relay
// port, sharing it with the receiving socket via SO_REUSEADDR, and
// limits outbound multicast to a single hop.
func (m *UDPForwarder) open(iface *Interface) (net.PacketConn, error) {
	listenConfig := net.ListenConfig{Control: reuseAddr}

	local := netip.AddrPortFrom(iface.Net.Addr, m.port)
	conn, err := listenConfig.ListenPacket(context.Background(), "udp4", local.String())
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", local, err)
	}

	if err := ipv4.NewPacketConn(conn).SetMulticastTTL(1); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set multicast TTL: %w", err)
	}

	return conn, nil
}
