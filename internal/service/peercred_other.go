//go:build !linux

package service

// peerCredentials is a no-op on platforms without SO_PEERCRED. The
// listener logs without the peer_pid/peer_uid fields in that case.
func peerCredentials(fd int) (pid int32, uid uint32, ok bool) {
	return 0, 0, false
}
