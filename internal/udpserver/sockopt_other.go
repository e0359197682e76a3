//go:build !unix && !windows

package udpserver

import "syscall"

func controlSocket(_, _ string, _ syscall.RawConn) error {
	return nil
}
