//go:build windows

package socket

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// applyOptions is the Windows counterpart to socket_unix.go. Windows has
// no SO_REUSEPORT; SO_REUSEADDR alone gives Listen sockets the address
// reuse behavior spec.md §4.2 asks for.
func applyOptions(rc syscall.RawConn, role Role) error {
	var sockErr error
	err := rc.Control(func(fd uintptr) {
		switch role {
		case Listen:
			sockErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
		case Broadcast:
			sockErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_BROADCAST, 1)
		}
	})
	if err != nil {
		return err
	}
	return sockErr
}
