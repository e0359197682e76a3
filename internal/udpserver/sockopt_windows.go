//go:build windows

package udpserver

import (
	"syscall"

	"golang.org/x/sys/windows"
)

func controlSocket(_, _ string, c syscall.RawConn) error {
	var opErr error
	err := c.Control(func(fd uintptr) {
		h := windows.Handle(fd)
		if opErr = windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); opErr != nil {
			return
		}
		opErr = windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return opErr
}
