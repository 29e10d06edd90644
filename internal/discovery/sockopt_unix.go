//go:build unix

package discovery

import (
	"net"

	"golang.org/x/sys/unix"
)

// setBroadcast lets the socket send to the LAN broadcast address.
// Harmless for unicast targets.
func setBroadcast(conn *net.UDPConn) error {
	rc, err := conn.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	if err := rc.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	}); err != nil {
		return err
	}
	return serr
}
