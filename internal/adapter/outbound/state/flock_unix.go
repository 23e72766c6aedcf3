//go:build !windows

package state

import "syscall"

// lockFile takes the exclusive advisory lock backing a BindLock, blocking
// until the previous holder of the bind path exits or releases.
func lockFile(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_EX)
}

// unlockFile drops the advisory lock. The kernel also drops it implicitly
// when the owning process exits, which is what makes a crashed instance's
// lock file harmless.
func unlockFile(fd uintptr) error {
	return syscall.Flock(int(fd), syscall.LOCK_UN)
}
