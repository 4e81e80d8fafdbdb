package store

import "sync"

// Listener receives a state change notification. It is called with the new
// state and the state that preceded it, exactly as the write produced them.
type Listener[T any] func(next, prev T)

// entry is a single registration in a store's listener registry.
type entry[T any] struct {
	id uint64
	fn Listener[T]
}

// Store is an observable container for a single state value.
//
// Unlike an equality-deduplicating signal, a Store notifies on every write:
// setting the current value again still produces a notification. Whether a
// notification is worth reacting to is decided by the subscriber (or by a
// binding policy), never by the store.
type Store[T any] struct {
	// state is the current value.
	state T

	// listeners is the ordered registry of update listeners.
	// Registration order is preserved; notifications iterate it in order.
	listeners []entry[T]

	// nextID issues registry entry identifiers.
	nextID uint64

	// mu protects state, listeners, and nextID.
	mu sync.RWMutex
}

// New creates a Store holding the given initial state.
func New[T any](initial T) *Store[T] {
	return &Store[T]{state: initial}
}

// Get returns the current state.
func (s *Store[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Set replaces the current state and notifies all listeners with the new
// and previous values. It returns the new state.
func (s *Store[T]) Set(next T) T {
	s.mu.Lock()
	prev := s.state
	s.state = next
	subs := s.snapshotLocked()
	s.mu.Unlock()

	notify(subs, next, prev)
	return next
}

// Update applies fn to the current state, stores the result, and then
// notifies all listeners. The read and write are a single atomic step: no other
// write can interleave between fn observing the state and the result being
// stored. Update returns the new state.
//
// fn runs while the store's lock is held, so it must not call back into
// the same store.
func (s *Store[T]) Update(fn func(T) T) T {
	s.mu.Lock()
	prev := s.state
	next := fn(prev)
	s.state = next
	subs := s.snapshotLocked()
	s.mu.Unlock()

	notify(subs, next, prev)
	return next
}

// OnUpdate registers a listener and returns its teardown function.
//
// The teardown removes exactly this registration and is safe to call more
// than once; calls after the first are no-ops. A notification already in
// flight when teardown runs may still invoke the listener one final time.
func (s *Store[T]) OnUpdate(fn Listener[T]) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, entry[T]{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.listeners {
			if e.id == id {
				// Splice rather than swap to keep registration order.
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Len returns the number of registered listeners.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// Setter returns the comparable setter handle for this store.
// Two Setter values compare equal exactly when they were obtained from the
// same Store.
func (s *Store[T]) Setter() Setter[T] {
	return Setter[T]{store: s}
}

// snapshotLocked copies the listener registry. Callers must hold mu.
// Notifying from a copy keeps listener callbacks outside the store's locks.
func (s *Store[T]) snapshotLocked() []entry[T] {
	subs := make([]entry[T], len(s.listeners))
	copy(subs, s.listeners)
	return subs
}

// notify invokes each listener in registration order.
func notify[T any](subs []entry[T], next, prev T) {
	for _, e := range subs {
		e.fn(next, prev)
	}
}

// Setter is a stable, comparable handle to a store's write operations.
//
// A Setter is a value type whose identity is the store it writes to: handles
// for the same store are ==, handles for different stores are not. That
// makes a Setter safe to use as an effect dependency: it only reads as
// changed when the underlying store actually changed.
//
// The zero Setter is not bound to any store; check Valid before use if a
// Setter may be zero.
type Setter[T any] struct {
	store *Store[T]
}

// Set replaces the store's state and returns the new state.
func (f Setter[T]) Set(next T) T {
	return f.store.Set(next)
}

// Update applies fn to the store's state and returns the new state.
func (f Setter[T]) Update(fn func(T) T) T {
	return f.store.Update(fn)
}

// Valid reports whether the Setter is bound to a store.
func (f Setter[T]) Valid() bool {
	return f.store != nil
}
