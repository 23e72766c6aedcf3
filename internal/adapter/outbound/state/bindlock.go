// Package state provides the one piece of on-disk, cross-process
// coordination gubinge needs: an advisory lock guarding the bind socket
// path so two instances never race to create it. It deliberately does
// not persist any policy decision or connection state across restarts.
package state

import (
	"fmt"
	"os"
)

// BindLock is an exclusive, cross-process advisory lock held for the
// lifetime of one running gubinge process, taken on a lock file
// alongside the bind socket (<bind-path>.lock), down to a single
// boolean fact: "an instance is bound here right now."
type BindLock struct {
	file *os.File
	path string
}

// Acquire opens (creating if necessary) the lock file at path and takes
// an exclusive lock on it. It blocks until the lock is available, so a
// second instance started against the same bind path waits rather than
// silently stepping on the first one's accept loop.
func Acquire(path string) (*BindLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("open bind lock %s: %w", path, err)
	}
	if err := lockFile(f.Fd()); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("acquire bind lock %s: %w", path, err)
	}
	return &BindLock{file: f, path: path}, nil
}

// Release unlocks and closes the lock file. It does not remove the lock
// file from disk; a stale lock file with no holder is harmless since
// flock releases automatically when its owning process exits, and the
// next Acquire will simply reopen and relock it.
func (l *BindLock) Release() error {
	err := unlockFile(l.file.Fd())
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	return err
}
