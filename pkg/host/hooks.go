package host

import (
	"fmt"
	"sync/atomic"
)

// UseSlot returns per-instance storage for the hook at the current call
// position. The first render allocates the slot and fills it with init's
// result (or the zero value when init is nil); every later render returns
// the same pointer, giving the hook stable identity across renders.
//
// Hooks must be called in the same order on every render of a component;
// a slot whose stored type no longer matches panics with a description of
// the mismatch.
func UseSlot[T any](init func() T) *T {
	c := Current()

	idx := c.slotIdx
	c.slotIdx++

	if idx < len(c.slots) {
		p, ok := c.slots[idx].(*T)
		if !ok {
			panic(fmt.Sprintf("host: hook order changed: slot %d holds %T, want %T",
				idx, c.slots[idx], (*T)(nil)))
		}
		return p
	}

	p := new(T)
	if init != nil {
		*p = init()
	}
	c.slots = append(c.slots, p)
	return p
}

// effectSlot is the stored state of one UseEffect call site.
type effectSlot struct {
	// setup is the function to run at commit; it may return a Cleanup.
	setup func() Cleanup

	// cleanup is the teardown from the last run.
	cleanup Cleanup

	// deps are the dependencies the last scheduled run was keyed on.
	deps []any

	// initialized is false until the first render registers the slot.
	initialized bool

	// pending indicates the effect is queued for the next commit.
	pending atomic.Bool

	// disposed indicates the owning instance was unmounted.
	disposed atomic.Bool
}

// run executes the effect: previous cleanup first, then setup.
func (e *effectSlot) run() {
	if e.disposed.Load() {
		return
	}
	if e.cleanup != nil {
		e.cleanup()
		e.cleanup = nil
	}
	if e.setup != nil {
		e.cleanup = e.setup()
	}
}

// dispose tears the effect down: the last cleanup runs exactly once.
func (e *effectSlot) dispose() {
	if e.disposed.Swap(true) {
		return
	}
	if e.cleanup != nil {
		e.cleanup()
		e.cleanup = nil
	}
}

// UseEffect schedules setup to run after the current render commits, and
// again after any later render whose deps differ from the previous run's
// (element-wise; pointers by identity, see valueEqual). The Cleanup
// returned by setup runs before the next setup and on unmount.
//
// With an empty deps list the effect runs once at mount and cleans up at
// unmount.
func UseEffect(setup func() Cleanup, deps ...any) {
	c := Current()
	slot := UseSlot[effectSlot](nil)

	if !slot.initialized {
		slot.initialized = true
		slot.setup = setup
		slot.deps = deps
		c.effects = append(c.effects, slot)
		c.scheduleEffect(slot)
		return
	}

	if depsEqual(slot.deps, deps) {
		return
	}

	slot.setup = setup
	slot.deps = deps
	c.scheduleEffect(slot)
}

// UseHandler registers an event handler for the current render and
// returns its dispatch token ("h0", "h1", … in hook order). Tokens are
// stable across renders as long as hook order is stable, so markup
// produced by one render remains dispatchable after the next. The name is
// carried through to dispatch for logging and tracing.
func UseHandler(name string, fn func()) string {
	c := Current()

	idx := c.handlerIdx
	c.handlerIdx++

	token := fmt.Sprintf("h%d", idx)
	c.handlers[token] = handlerEntry{name: name, fn: fn}
	return token
}
