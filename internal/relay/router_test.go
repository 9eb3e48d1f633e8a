package relay

import (
	"bytes"
	"context"
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// fakeConn feeds a fixed sequence of datagrams to the router and then
// reports receive timeouts, emulating an idle socket.
type fakeConn struct {
	mu    sync.Mutex
	queue []Packet
}

func (m *fakeConn) ReadFrom(p []byte) (int, net.Addr, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.queue) == 0 {
		time.Sleep(time.Millisecond)
		return 0, nil, timeoutError{}
	}

	pkt := m.queue[0]
	m.queue = m.queue[1:]
	n := copy(p, pkt.Payload)
	return n, net.UDPAddrFromAddrPort(pkt.Src), nil
}

func (m *fakeConn) WriteTo([]byte, net.Addr) (int, error) { return 0, nil }
func (m *fakeConn) Close() error                          { return nil }
func (m *fakeConn) LocalAddr() net.Addr                   { return nil }
func (m *fakeConn) SetDeadline(time.Time) error           { return nil }
func (m *fakeConn) SetReadDeadline(time.Time) error       { return nil }
func (m *fakeConn) SetWriteDeadline(time.Time) error      { return nil }

type forwardCall struct {
	iface   netip.Addr
	src     netip.AddrPort
	payload []byte
}

type recordingForwarder struct {
	mu    sync.Mutex
	calls []forwardCall
}

func (m *recordingForwarder) Forward(iface *Interface, pkt Packet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, forwardCall{
		iface:   iface.Net.Addr,
		src:     pkt.Src,
		payload: append([]byte(nil), pkt.Payload...),
	})
}

func (m *recordingForwarder) snapshot() []forwardCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]forwardCall(nil), m.calls...)
}

func TestRouterDispatchesForwardTasks(t *testing.T) {
	ifaces := overlayAndLocal(t)
	payload := mdnsQuery(t)

	conn := &fakeConn{queue: []Packet{
		// Local segment source: relayed via the overlay interface.
		{Payload: payload, Src: netip.MustParseAddrPort("192.168.1.50:5353")},
		// Own retransmission: dropped.
		{Payload: payload, Src: netip.MustParseAddrPort("10.0.0.5:5353")},
		// Unmanaged network: dropped.
		{Payload: payload, Src: netip.MustParseAddrPort("203.0.113.9:5353")},
	}}
	forwarder := &recordingForwarder{}

	router := &Router{
		cfg: RouterConfig{
			Group:          netip.MustParseAddr("224.0.0.251"),
			Port:           5353,
			ReceiveTimeout: 10 * time.Millisecond,
			BufferSize:     4096,
		},
		ifaces: ifaces,
		fwd:    forwarder,
		conn:   conn,
		log:    zap.NewNop().Sugar(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- router.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return len(forwarder.snapshot()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	// Give the loop a chance to drain the queue entirely before
	// asserting nothing else was dispatched.
	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return len(conn.queue) == 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	calls := forwarder.snapshot()
	require.Len(t, calls, 1)
	require.Equal(t, netip.MustParseAddr("10.0.0.5"), calls[0].iface)
	require.Equal(t, netip.MustParseAddrPort("192.168.1.50:5353"), calls[0].src)
	require.Equal(t, payload, calls[0].payload)
}

func TestRouterTruncatesOversizedDatagrams(t *testing.T) {
	payload := bytes.Repeat([]byte{0x5a}, 64)
	conn := &fakeConn{queue: []Packet{
		{Payload: payload, Src: netip.MustParseAddrPort("192.168.1.50:5353")},
	}}
	forwarder := &recordingForwarder{}

	router := &Router{
		cfg: RouterConfig{
			Group:          netip.MustParseAddr("224.0.0.251"),
			Port:           5353,
			ReceiveTimeout: 10 * time.Millisecond,
			BufferSize:     16,
		},
		ifaces: overlayAndLocal(t),
		fwd:    forwarder,
		conn:   conn,
		log:    zap.NewNop().Sugar(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- router.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return len(forwarder.snapshot()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// Everything beyond the receive buffer is silently dropped.
	calls := forwarder.snapshot()
	require.Len(t, calls, 1)
	require.Equal(t, payload[:16], calls[0].payload)
}

func TestRouterTimeoutIsNotAnError(t *testing.T) {
	router := &Router{
		cfg: RouterConfig{
			Group:          netip.MustParseAddr("224.0.0.251"),
			Port:           5353,
			ReceiveTimeout: time.Millisecond,
			BufferSize:     4096,
		},
		ifaces: overlayAndLocal(t),
		fwd:    &recordingForwarder{},
		conn:   &fakeConn{},
		log:    zap.NewNop().Sugar(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// The loop survives many timeout cycles and exits only through
	// context cancellation.
	require.ErrorIs(t, router.Run(ctx), context.DeadlineExceeded)
}
