// Package atomicfile implements the locked atomic writer contract from
// spec §4.2: exclusive per-file locking plus write-to-temp-then-rename.
package atomicfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLockContention is returned when the sidecar lock cannot be acquired.
var ErrLockContention = errors.New("cfait: could not acquire file lock")

// WithLock acquires an exclusive lock on "<path>.lock", runs fn, and
// releases the lock on return. Lock acquisition failure is fatal to the
// enclosing operation (spec §4.2).
//
// The lock is a sidecar file rather than a lock on path itself so that fn
// may freely replace path (via AtomicWrite) while holding the lock.
func WithLock(path string, fn func() error) error {
	lockPath := path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrLockContention, err)
	}

	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLockContention, err)
	}
	if !locked {
		// Block until available; a held lock from a crashed process is
		// released by the OS when its file descriptor closes.
		if err := fl.Lock(); err != nil {
			return fmt.Errorf("%w: %v", ErrLockContention, err)
		}
	}
	defer fl.Unlock()

	return fn()
}

// AtomicWrite writes bytes to "<path>.tmp" and renames it over path. A
// rename failure leaves the prior file intact (spec §4.2).
func AtomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
