// Package events keeps ordered listener lists per lifecycle event.
package events

import (
	"slices"
	"sync"

	"github.com/vinicius-lino-figueiredo/gedm/domain"
)

// ListenerID identifies a registered listener so it can be removed.
type ListenerID uint64

type entry[F any] struct {
	id ListenerID
	fn F
}

// Registry holds listeners of type F. It is safe for concurrent use;
// listeners are called outside the lock.
type Registry[F any] struct {
	mu        sync.RWMutex
	next      ListenerID
	listeners map[domain.Event][]entry[F]
}

// NewRegistry returns an empty registry.
func NewRegistry[F any]() *Registry[F] {
	return &Registry[F]{listeners: make(map[domain.Event][]entry[F])}
}

// Listen appends fn to the listeners of event.
func (r *Registry[F]) Listen(event domain.Event, fn F) ListenerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	r.listeners[event] = append(r.listeners[event], entry[F]{id: r.next, fn: fn})
	return r.next
}

// StopListening removes the listener. It reports whether it was registered
// for event.
func (r *Registry[F]) StopListening(event domain.Event, id ListenerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.listeners[event]
	i := slices.IndexFunc(list, func(e entry[F]) bool { return e.id == id })
	if i < 0 {
		return false
	}
	r.listeners[event] = slices.Delete(slices.Clone(list), i, i+1)
	return true
}

// Listeners returns a snapshot of the listeners of event in registration
// order.
func (r *Registry[F]) Listeners(event domain.Event) []F {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.listeners[event]
	res := make([]F, len(list))
	for i, e := range list {
		res[i] = e.fn
	}
	return res
}

// Fire calls call for every listener of event in order, stopping at the
// first error.
func (r *Registry[F]) Fire(event domain.Event, call func(F) error) error {
	for _, fn := range r.Listeners(event) {
		if err := call(fn); err != nil {
			return err
		}
	}
	return nil
}
