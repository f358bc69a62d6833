//go:build !windows

package socket

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// applyOptions sets the Berkeley-sockets options spec.md §4.2 calls for:
// address+port reuse for Listen sockets, broadcast permission for
// Broadcast sockets. Grounded in the teacher pack's per-platform file
// split convention (netutil/interfaces_android.go vs. interfaces_other.go).
func applyOptions(rc syscall.RawConn, role Role) error {
	var sockErr error
	err := rc.Control(func(fd uintptr) {
		switch role {
		case Listen:
			if sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); sockErr != nil {
				return
			}
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		case Broadcast:
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}
