// Package lockfile provides advisory cross-process file locking for the
// snapshot directory. Locks are scoped to a lock file's lifetime and are
// released by the OS if the holding process dies, so a crashed writer
// cannot permanently wedge the store.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrLockTimeout is returned when the lock could not be acquired within
// the configured timeout. Safe to retry with backoff.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// retryInterval is how often a non-blocking acquisition is retried while
// waiting for a contended lock.
const retryInterval = 10 * time.Millisecond

// Lock is a held advisory lock. Release must be called on all exit paths.
type Lock struct {
	f    *os.File
	path string
}

// Acquire takes an exclusive advisory lock on path, creating the lock
// file if needed. A zero timeout blocks indefinitely.
func Acquire(path string, timeout time.Duration) (*Lock, error) {
	return acquire(path, timeout, false)
}

// AcquireShared takes a shared advisory lock on path. On platforms
// without shared-mode locks this degrades to an exclusive lock.
func AcquireShared(path string, timeout time.Duration) (*Lock, error) {
	return acquire(path, timeout, true)
}

// Release drops the lock and closes the lock file. The lock file itself
// is left in place; its presence does not imply a valid snapshot.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlock(l.f)
	closeErr := l.f.Close()
	l.f = nil
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.path, err)
	}
	return closeErr
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

func acquire(path string, timeout time.Duration, shared bool) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file %s: %w", path, err)
	}

	if timeout <= 0 {
		// Block until the lock is granted.
		if err := lockBlocking(f, shared); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to lock %s: %w", path, err)
		}
		return &Lock{f: f, path: path}, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		ok, err := tryLock(f, shared)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to lock %s: %w", path, err)
		}
		if ok {
			return &Lock{f: f, path: path}, nil
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, fmt.Errorf("%w: %s after %s", ErrLockTimeout, path, timeout)
		}
		time.Sleep(retryInterval)
	}
}
