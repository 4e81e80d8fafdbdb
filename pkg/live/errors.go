package live

import "errors"

// Common errors for session and server operations.
var (
	// ErrSessionClosed is returned when dispatching to a session that has
	// already shut down.
	ErrSessionClosed = errors.New("live: session closed")

	// ErrQueueFull is returned when the session's event queue cannot
	// accept another event.
	ErrQueueFull = errors.New("live: event queue full")

	// ErrMaxSessionsReached is returned when the server is at its
	// configured session limit.
	ErrMaxSessionsReached = errors.New("live: max sessions reached")

	// ErrNoRootComponent is returned when a connection arrives before a
	// root component factory was set.
	ErrNoRootComponent = errors.New("live: no root component configured")
)
