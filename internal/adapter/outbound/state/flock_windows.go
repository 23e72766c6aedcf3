//go:build windows

package state

import "golang.org/x/sys/windows"

// lockFile takes the exclusive lock backing a BindLock via LockFileEx,
// blocking until available to match the Unix flock semantics.
func lockFile(fd uintptr) error {
	var ol windows.Overlapped
	return windows.LockFileEx(windows.Handle(fd), windows.LOCKFILE_EXCLUSIVE_LOCK, 0, 1, 0, &ol)
}

// unlockFile drops the lock via UnlockFileEx.
func unlockFile(fd uintptr) error {
	var ol windows.Overlapped
	return windows.UnlockFileEx(windows.Handle(fd), 0, 1, 0, &ol)
}
