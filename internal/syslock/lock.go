// Package syslock implements the global busy marker that serialises every
// mutating theli operation on a host.
//
// The marker is a zero-length file whose existence alone means "busy". An
// advisory flock on the marker closes the window between two processes that
// both observe a missing marker. Acquire never waits: a held lock is reported
// as services.ErrLockHeld and the caller is expected to abort.
package syslock

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"theli/internal/services"
)

// Lock guards one marker path.
type Lock struct {
	path string

	mu    sync.Mutex
	flock *flock.Flock
}

// New returns a lock for the marker at path. Nothing is created until Acquire.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Path returns the marker location.
func (l *Lock) Path() string {
	return l.path
}

// Acquire creates the marker and takes the advisory lock. It fails with
// services.ErrLockHeld when the marker already exists.
func (l *Lock) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.flock != nil {
		return services.Wrap(services.ErrLockHeld, "", "acquire", "lock already held by this process: "+l.path, nil)
	}
	if _, err := os.Stat(l.path); err == nil {
		return l.heldError()
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("inspect lock marker: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	fl := flock.New(l.path)
	ok, err := fl.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return l.heldError()
	}
	l.flock = fl
	return nil
}

// Release unlocks and removes the marker. Calling it without holding the lock
// is a no-op, so it is safe to defer on every path.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.flock == nil {
		return nil
	}
	fl := l.flock
	l.flock = nil
	removeErr := os.Remove(l.path)
	if errors.Is(removeErr, fs.ErrNotExist) {
		removeErr = nil
	}
	unlockErr := fl.Unlock()
	if removeErr != nil {
		return fmt.Errorf("remove lock marker: %w", removeErr)
	}
	if unlockErr != nil {
		return fmt.Errorf("release lock: %w", unlockErr)
	}
	return nil
}

// Held reports whether the marker exists, regardless of which process owns it.
func (l *Lock) Held() bool {
	_, err := os.Stat(l.path)
	return err == nil
}

// Owned reports whether this Lock currently holds the marker.
func (l *Lock) Owned() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flock != nil
}

// With runs fn while holding the lock and always releases it afterwards.
func (l *Lock) With(fn func() error) (err error) {
	if err := l.Acquire(); err != nil {
		return err
	}
	defer func() {
		if releaseErr := l.Release(); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()
	return fn()
}

// ForceRemove deletes a marker left behind by a crashed run.
func (l *Lock) ForceRemove() (bool, error) {
	err := os.Remove(l.path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("remove lock marker: %w", err)
	}
}

func (l *Lock) heldError() error {
	return services.Wrap(services.ErrLockHeld, "", "acquire",
		fmt.Sprintf("another theli process is running; remove %s if it is stale", l.path), nil)
}
