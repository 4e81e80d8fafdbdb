package host

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Component is the interface for renderable components.
// Components produce HTML fragments that represent their current state.
type Component interface {
	// Render returns the HTML fragment for this component.
	Render() string
}

// FuncComponent wraps a render function as a Component.
type FuncComponent func() string

// Render calls the wrapped function.
func (f FuncComponent) Render() string {
	return f()
}

// Scheduler is what an Instance asks for a re-render. Implementations
// queue the instance and render it on their own goroutine.
type Scheduler interface {
	ScheduleRender(*Instance)
}

// Environ is an optional scheduler capability: a value table instances
// consult after their own, used for context-style store resolution.
type Environ interface {
	Value(key any) (any, bool)
}

// Cleanup is a function that releases what an effect set up.
type Cleanup func()

// handlerEntry is one event handler registered during the last render.
type handlerEntry struct {
	name string
	fn   func()
}

// instanceIDCounter issues unique instance identifiers.
var instanceIDCounter atomic.Uint64

// nextInstanceID generates a unique instance ID.
func nextInstanceID() string {
	return fmt.Sprintf("c%d", instanceIDCounter.Add(1))
}

// Instance is a mounted component with its hook state.
//
// The version counter is the instance's render token: every accepted
// re-render request bumps it, so the token is always distinct from the
// value any previous render observed. The token carries no meaning beyond
// that inequality.
type Instance struct {
	id    string
	comp  Component
	sched Scheduler

	// version is the render token. Monotonic; bumped by Invalidate.
	version atomic.Uint64

	// dirty indicates the instance needs re-rendering.
	dirty atomic.Bool

	// disposed indicates the instance has been unmounted.
	disposed atomic.Bool

	// Hook state. Touched only by the rendering goroutine.
	slots      []any
	slotIdx    int
	handlers   map[string]handlerEntry
	handlerIdx int

	// effects in registration order, for reverse-order cleanup on dispose.
	effects []*effectSlot

	// pending are effects scheduled to run at the next commit.
	pending   []*effectSlot
	pendingMu sync.Mutex

	// cleanups are manual teardown functions registered via OnCleanup.
	cleanups   []func()
	cleanupsMu sync.Mutex

	// values stores context values for this instance.
	values   map[any]any
	valuesMu sync.RWMutex

	// lastHTML is the most recent render output.
	lastHTML string
}

// NewInstance creates an unmounted Instance for the component. Callers
// (schedulers) render it with Render and commit with RunPendingEffects.
func NewInstance(comp Component, sched Scheduler) *Instance {
	return &Instance{
		id:       nextInstanceID(),
		comp:     comp,
		sched:    sched,
		handlers: make(map[string]handlerEntry),
	}
}

// ID returns the unique identifier for this instance.
func (c *Instance) ID() string {
	return c.id
}

// Token returns the current render token.
func (c *Instance) Token() uint64 {
	return c.version.Load()
}

// IsDisposed reports whether the instance has been unmounted.
func (c *Instance) IsDisposed() bool {
	return c.disposed.Load()
}

// Invalidate requests a re-render: it bumps the render token and, if the
// instance was clean, hands it to the scheduler. Safe to call from any
// goroutine. After Dispose it is a no-op, so a notification still in
// flight during unmount cannot schedule a render.
func (c *Instance) Invalidate() {
	if c.disposed.Load() {
		return
	}
	c.version.Add(1)
	if c.dirty.CompareAndSwap(false, true) {
		if c.sched != nil {
			c.sched.ScheduleRender(c)
		}
	}
}

// IsDirty reports whether the instance needs re-rendering.
func (c *Instance) IsDirty() bool {
	return c.dirty.Load()
}

// ConsumeDirty clears the dirty flag, reporting whether it was set.
// Renderers call this before rendering so invalidations arriving during
// the render schedule a fresh pass.
func (c *Instance) ConsumeDirty() bool {
	return c.dirty.CompareAndSwap(true, false)
}

// Render renders the component with this instance current on the
// goroutine, and returns the HTML fragment. Hook and handler indexes are
// reset so hook order lines up with the previous render.
func (c *Instance) Render() string {
	if c.disposed.Load() || c.comp == nil {
		return ""
	}

	c.slotIdx = 0
	c.handlerIdx = 0
	clear(c.handlers)

	var html string
	withInstance(c, func() {
		html = c.comp.Render()
	})

	c.lastHTML = html
	return html
}

// LastHTML returns the most recent render output.
func (c *Instance) LastHTML() string {
	return c.lastHTML
}

// Handler returns the handler registered under token by the last render.
func (c *Instance) Handler(token string) (name string, fn func(), ok bool) {
	e, ok := c.handlers[token]
	if !ok {
		return "", nil, false
	}
	return e.name, e.fn, true
}

// scheduleEffect queues an effect for the next commit.
func (c *Instance) scheduleEffect(e *effectSlot) {
	if c.disposed.Load() {
		return
	}
	if !e.pending.CompareAndSwap(false, true) {
		return
	}
	c.pendingMu.Lock()
	c.pending = append(c.pending, e)
	c.pendingMu.Unlock()
}

// RunPendingEffects executes all effects scheduled during the last render.
// Schedulers call this after the render phase; together the two form a
// commit. Cleanups from the previous run of each effect execute before its
// setup runs again.
func (c *Instance) RunPendingEffects() {
	if c.disposed.Load() {
		return
	}

	c.pendingMu.Lock()
	pending := c.pending
	c.pending = nil
	c.pendingMu.Unlock()

	for _, e := range pending {
		if e.pending.CompareAndSwap(true, false) {
			e.run()
		}
	}
}

// OnCleanup registers a teardown function to run when the instance is
// disposed. If the instance is already disposed the function runs
// immediately.
func (c *Instance) OnCleanup(fn func()) {
	if fn == nil {
		return
	}
	if c.disposed.Load() {
		fn()
		return
	}
	c.cleanupsMu.Lock()
	defer c.cleanupsMu.Unlock()
	c.cleanups = append(c.cleanups, fn)
}

// SetValue stores a context value on this instance.
func (c *Instance) SetValue(key, value any) {
	c.valuesMu.Lock()
	defer c.valuesMu.Unlock()
	if c.values == nil {
		c.values = make(map[any]any)
	}
	c.values[key] = value
}

// Value looks up a context value: the instance's own table first, then the
// scheduler's environment if it provides one.
func (c *Instance) Value(key any) (any, bool) {
	c.valuesMu.RLock()
	v, ok := c.values[key]
	c.valuesMu.RUnlock()
	if ok {
		return v, true
	}
	if env, isEnv := c.sched.(Environ); isEnv {
		return env.Value(key)
	}
	return nil, false
}

// Dispose unmounts the instance: effect cleanups run in reverse
// registration order, then manual cleanups, also in reverse. Disposal is
// idempotent. After it returns, Invalidate is a no-op.
func (c *Instance) Dispose() {
	if c.disposed.Swap(true) {
		return
	}

	for i := len(c.effects) - 1; i >= 0; i-- {
		c.effects[i].dispose()
	}
	c.effects = nil

	c.cleanupsMu.Lock()
	cleanups := c.cleanups
	c.cleanups = nil
	c.cleanupsMu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}

	c.pendingMu.Lock()
	c.pending = nil
	c.pendingMu.Unlock()

	c.comp = nil
}
