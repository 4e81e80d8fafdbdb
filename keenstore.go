// Package keenstore binds observable stores to server-rendered
// components.
//
// This is the recommended import for most applications:
//
//	import "github.com/keenstore-dev/keenstore"
//
// Usage:
//
//	counter := keenstore.New(0)
//
//	view := keenstore.Func(func() string {
//	    n, setN := keenstore.UseStore(counter)
//	    inc := keenstore.UseHandler("inc", func() {
//	        setN.Update(func(n int) int { return n + 1 })
//	    })
//	    return fmt.Sprintf(`<button data-on-click=%q>%d</button>`, inc, n)
//	})
//
//	srv := keenstore.NewServer(nil)
//	srv.SetRootComponent(func() keenstore.Component { return view })
//	srv.Run()
//
// The subpackages remain importable on their own: pkg/store for the
// store itself, pkg/bind for policies and context resolution, pkg/host
// for the component runtime, pkg/live for the server, and pkg/keentest
// for the test harness.
package keenstore

import (
	"github.com/keenstore-dev/keenstore/pkg/bind"
	"github.com/keenstore-dev/keenstore/pkg/host"
	"github.com/keenstore-dev/keenstore/pkg/live"
	"github.com/keenstore-dev/keenstore/pkg/store"
)

// =============================================================================
// Components (re-export from pkg/host)
// =============================================================================

// Component renders itself to an HTML fragment.
type Component = host.Component

// FuncComponent adapts a render function to Component.
type FuncComponent = host.FuncComponent

// Cleanup undoes what an effect set up.
type Cleanup = host.Cleanup

// Instance is one mounted component.
type Instance = host.Instance

// Loop drives instances outside a live session, primarily in tests and
// embeddings.
type Loop = host.Loop

// Func wraps a render function as a Component.
//
// Example:
//
//	view := keenstore.Func(func() string {
//	    n, _ := keenstore.UseStore(counter)
//	    return fmt.Sprintf("<b>%d</b>", n)
//	})
func Func(render func() string) Component {
	return host.FuncComponent(render)
}

// UseHandler registers an event handler for the current render and
// returns its token.
var UseHandler = host.UseHandler

// UseEffect schedules setup to run after the current render commits,
// re-running when a dependency changes identity.
var UseEffect = host.UseEffect

// NewLoop creates a standalone host loop.
var NewLoop = host.NewLoop

// UseSlot returns per-instance storage for the hook at the current
// call position.
func UseSlot[T any](init func() T) *T {
	return host.UseSlot[T](init)
}

// =============================================================================
// Stores (re-export from pkg/store)
// =============================================================================

// Store is exposed through the New constructor; the concrete type is
// pkg/store.Store.

// New creates a store holding initial.
//
// Example:
//
//	counter := keenstore.New(0)
//	counter.Set(1)
//	value := counter.Get() // 1
func New[T any](initial T) *store.Store[T] {
	return store.New(initial)
}

// =============================================================================
// Bindings (re-export from pkg/bind)
// =============================================================================

// ErrInvalidStore reports a bind call against a nil or unresolvable
// store. It surfaces synchronously at bind time, before any
// subscription exists.
var ErrInvalidStore = bind.ErrInvalidStore

// UseStore binds a store to the component instance currently
// rendering: it returns the current state and a setter whose identity
// is stable for as long as the store handle is.
func UseStore[T any](st *store.Store[T], policy ...bind.Policy[T]) (T, store.Setter[T]) {
	return bind.UseStore(st, policy...)
}

// UseStoreContext resolves a store context for the current instance
// and binds the store it yields, with the same contract as UseStore.
func UseStoreContext[T any](c *bind.StoreContext[T], policy ...bind.Policy[T]) (T, store.Setter[T]) {
	return bind.UseStoreContext(c, policy...)
}

// NewStoreContext creates a context carrying a store through the host,
// with def as the store used when no provider installed one.
func NewStoreContext[T any](def *store.Store[T]) *bind.StoreContext[T] {
	return bind.NewStoreContext(def)
}

// Always re-renders the bound component on every store update. This is
// the default policy.
func Always[T any]() bind.Policy[T] {
	return bind.Always[T]()
}

// Never keeps the binding read-only: no subscription is held and
// external updates never re-render the component.
func Never[T any]() bind.Policy[T] {
	return bind.Never[T]()
}

// When re-renders exactly when pred approves the update.
func When[T any](pred func(next, prev T) bool) bind.Policy[T] {
	return bind.When(pred)
}

// =============================================================================
// Serving (re-export from pkg/live)
// =============================================================================

// Server streams component fragments to browsers over WebSockets.
type Server = live.Server

// ServerConfig configures a Server.
type ServerConfig = live.ServerConfig

// SessionConfig configures individual sessions.
type SessionConfig = live.SessionConfig

// Session is one connected client.
type Session = live.Session

// Middleware wraps session dispatches.
type Middleware = live.Middleware

// NewServer creates a server. A nil config uses defaults.
var NewServer = live.New

// DefaultServerConfig returns a ServerConfig with the defaults
// documented on its fields.
var DefaultServerConfig = live.DefaultServerConfig
