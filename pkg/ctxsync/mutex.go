// Package ctxsync provides locks whose waits can be abandoned through a
// context.
package ctxsync

import (
	"context"
)

// A Mutex is a mutual exclusion lock. The zero value is not usable; create
// one with [NewMutex].
type Mutex struct {
	sem chan struct{}
}

// NewMutex creates a new unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{sem: make(chan struct{}, 1)}
}

// Lock blocks until the mutex is acquired or ctx is done. It returns the
// context error in the latter case, and the mutex is not held.
func (m *Mutex) Lock(ctx context.Context) error {
	// a done context never wins against a free lock by chance
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case m.sem <- struct{}{}:
		return nil
	}
}

// TryLock tries to lock m and reports whether it succeeded.
func (m *Mutex) TryLock() bool {
	select {
	case m.sem <- struct{}{}:
		return true
	default:
		return false
	}
}

// Unlock unlocks m. Unlocking an unlocked mutex panics.
func (m *Mutex) Unlock() {
	select {
	case <-m.sem:
	default:
		panic("ctxsync: unlock of unlocked mutex")
	}
}

// Do runs fn while holding m.
func (m *Mutex) Do(ctx context.Context, fn func() error) error {
	if err := m.Lock(ctx); err != nil {
		return err
	}
	defer m.Unlock()
	return fn()
}
