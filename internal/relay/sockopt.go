package relay

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// reuseAddr is a net.ListenConfig control function enabling
// SO_REUSEADDR, so the relay can share the well-known discovery port
// with local mDNS/SSDP daemons.
func reuseAddr(_, _ string, rawConn syscall.RawConn) error {
	var sockErr error
	if err := rawConn.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return fmt.Errorf("raw control error: %w", err)
	}
	if sockErr != nil {
		return fmt.Errorf("setsockopt SO_REUSEADDR: %w", sockErr)
	}
	return nil
}
