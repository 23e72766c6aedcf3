//go:build linux

package service

import (
	"golang.org/x/sys/unix"
)

// peerCredentials reads the SO_PEERCRED credentials of a Unix domain
// socket connection, for diagnostic logging only -- never used for
// authorization decisions. A failure to read credentials is not fatal to
// the connection; it just means the log fields are omitted.
func peerCredentials(fd int) (pid int32, uid uint32, ok bool) {
	ucred, err := unix.GetsockoptUcred(fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return 0, 0, false
	}
	return ucred.Pid, ucred.Uid, true
}
