package host

import "errors"

// ErrNoInstance is the panic value when a hook (UseSlot, UseEffect,
// UseHandler, Current) is called outside a component render. Hooks resolve
// the instance being rendered from the goroutine's tracking context; with
// no render in progress there is nothing to resolve.
var ErrNoInstance = errors.New("host: hook called outside a component render")

// ErrHandlerNotFound is returned when an event dispatch names a handler
// token the instance's last render did not register.
var ErrHandlerNotFound = errors.New("host: no handler registered for token")

// ErrUnsettled is returned by Loop.Flush when renders keep invalidating
// themselves and the loop gives up draining. It almost always means a
// component requests a re-render unconditionally during render or commit.
var ErrUnsettled = errors.New("host: render loop did not settle")
