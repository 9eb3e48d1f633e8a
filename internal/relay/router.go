package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// RouterConfig carries the socket parameters of the relay router.
type RouterConfig struct {
	// Group is the IPv4 multicast group joined on every interface.
	Group netip.Addr
	// Port is the UDP port the router binds to.
	Port uint16
	// ReceiveTimeout bounds a single blocking receive; expiry is a
	// normal poll cycle, not an error.
	ReceiveTimeout time.Duration
	// BufferSize is the receive buffer size; larger datagrams are
	// silently truncated.
	BufferSize int
}

// Router owns the shared receiving socket and drives the
// receive-classify-forward loop. The interface table is read-only
// after construction and the socket is owned exclusively by the
// router; no other shared state exists.
type Router struct {
	cfg    RouterConfig
	ifaces []*Interface
	fwd    Forwarder
	conn   net.PacketConn
	log    *zap.SugaredLogger
}

// NewRouter opens the receiving socket, binds it to the wildcard
// address on the configured port with SO_REUSEADDR, and joins the
// multicast group once per interface address. Any failure is fatal:
// the router never starts with some interfaces unjoined.
func NewRouter(cfg RouterConfig, ifaces []*Interface, fwd Forwarder, options ...Option) (*Router, error) {
	opts := newOptions()
	for _, o := range options {
		o(opts)
	}

	if len(ifaces) == 0 {
		return nil, fmt.Errorf("no interfaces to relay between")
	}

	listenConfig := net.ListenConfig{Control: reuseAddr}
	conn, err := listenConfig.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return nil, fmt.Errorf("listen udp4 port %d: %w", cfg.Port, err)
	}

	m := &Router{
		cfg:    cfg,
		ifaces: ifaces,
		fwd:    fwd,
		conn:   conn,
		log:    opts.Log,
	}

	for _, iface := range ifaces {
		if err := m.joinGroup(iface.Net.Addr); err != nil {
			conn.Close()
			return nil, fmt.Errorf("join group %s on %s: %w", cfg.Group, iface.Net.Addr, err)
		}
		m.log.Infow("joined multicast group",
			zap.Stringer("group", cfg.Group),
			zap.Stringer("iface", iface.Net.Addr),
		)
	}

	return m, nil
}

// joinGroup issues IP_ADD_MEMBERSHIP for the configured group on the
// interface identified by its address.
func (m *Router) joinGroup(ifaceAddr netip.Addr) error {
	sysConn, ok := m.conn.(syscall.Conn)
	if !ok {
		return fmt.Errorf("connection does not expose a raw socket")
	}
	rawConn, err := sysConn.SyscallConn()
	if err != nil {
		return fmt.Errorf("raw socket access: %w", err)
	}

	mreq := &unix.IPMreq{
		Multiaddr: m.cfg.Group.As4(),
		Interface: ifaceAddr.As4(),
	}

	var sockErr error
	if err := rawConn.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptIPMreq(int(fd), unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq)
	}); err != nil {
		return fmt.Errorf("raw control error: %w", err)
	}
	return sockErr
}

// Close releases the receiving socket.
func (m *Router) Close() error {
	return m.conn.Close()
}

// Run drives the receive-classify-forward loop until the context is
// canceled. Each receive is bounded by the configured timeout so the
// loop observes cancellation between datagrams.
func (m *Router) Run(ctx context.Context) error {
	m.log.Infow("relaying multicast traffic",
		zap.Stringer("group", m.cfg.Group),
		zap.Uint16("port", m.cfg.Port),
		zap.Int("interfaces", len(m.ifaces)),
	)

	buf := make([]byte, m.cfg.BufferSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := m.conn.SetReadDeadline(time.Now().Add(m.cfg.ReceiveTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}

		n, src, err := m.conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				// Cooperative yield point.
				continue
			}
			return fmt.Errorf("receive: %w", err)
		}

		srcUDP, ok := src.(*net.UDPAddr)
		if !ok {
			continue
		}
		srcAddrPort := srcUDP.AddrPort()
		pkt := Packet{
			Payload: buf[:n],
			Src:     netip.AddrPortFrom(srcAddrPort.Addr().Unmap(), srcAddrPort.Port()),
		}

		m.process(pkt)
	}
}

// process classifies one packet and executes the resulting forward
// tasks. Tasks are executed immediately and sequentially; nothing
// about the packet survives this call.
func (m *Router) process(pkt Packet) {
	verdict := Classify(pkt.Src.Addr(), m.ifaces)
	if !verdict.ShouldRelay() {
		if verdict.SameAddress {
			m.log.Debugw("ignoring own retransmission", zap.Stringer("src", pkt.Src))
		} else {
			m.log.Debugw("ignoring packet from unmanaged network", zap.Stringer("src", pkt.Src))
		}
		return
	}

	m.log.Debugw("received packet",
		zap.Stringer("src", pkt.Src),
		zap.Int("len", len(pkt.Payload)),
	)

	for _, iface := range verdict.Forward {
		m.fwd.Forward(iface, pkt)
	}
}
