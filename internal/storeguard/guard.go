// Package storeguard supplies the ambient piece a real embedding store
// needs around the recovery core: a process-exclusive advisory lock
// held for the duration of a recovery pass. spec.md §5 states that "a
// separate live-transaction system must be quiesced before recovery
// runs" without defining how; this package is the outer store's answer
// to that requirement, kept entirely outside the recovery engine so C3
// and C4 stay ignorant of locking (spec.md §6, "no CLI, no environment
// variables" boundary — the core takes only pagers and callbacks).
package storeguard

import (
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// ErrAlreadyLocked is returned by Acquire when another process already
// holds the guard, matching the "another instance running?" failure
// mode this pattern guards against.
var ErrAlreadyLocked = errors.New("storeguard: store is already locked by another process")

// Guard wraps an advisory file lock scoped to one recovery pass.
type Guard struct {
	lock *flock.Flock
}

// New returns a Guard backed by a lock file at path. The file is
// created on first Acquire if it does not exist; it is never read or
// written to beyond the OS-level advisory lock.
func New(path string) *Guard {
	return &Guard{lock: flock.New(path)}
}

// Acquire takes the exclusive lock without blocking, returning
// ErrAlreadyLocked if another process (or another Guard in this
// process) already holds it.
func (g *Guard) Acquire() error {
	locked, err := g.lock.TryLock()
	if err != nil {
		return errors.Wrap(err, "storeguard: acquire lock")
	}
	if !locked {
		return ErrAlreadyLocked
	}
	return nil
}

// Release drops the lock. Safe to call even if Acquire failed or was
// never called.
func (g *Guard) Release() error {
	if !g.lock.Locked() {
		return nil
	}
	return errors.Wrap(g.lock.Unlock(), "storeguard: release lock")
}

// WithGuard acquires the lock, runs fn, and releases the lock
// regardless of fn's outcome — the shape a recovery pass invocation
// wraps itself in to satisfy the "quiesced before recovery runs"
// requirement.
func WithGuard(path string, fn func() error) error {
	g := New(path)
	if err := g.Acquire(); err != nil {
		return err
	}
	defer g.Release()
	return fn()
}
