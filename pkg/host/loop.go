package host

import (
	"fmt"
	"sync"
)

// defaultSettleLimit bounds how many drain passes a single Flush makes
// before concluding the loop is being re-invalidated forever.
const defaultSettleLimit = 100

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithRenderObserver registers a function called after every render with
// the instance and its fresh HTML. Test harnesses use this to count
// renders and capture output.
func WithRenderObserver(fn func(*Instance, string)) LoopOption {
	return func(l *Loop) {
		l.observer = fn
	}
}

// WithSettleLimit overrides the number of drain passes Flush attempts
// before returning ErrUnsettled.
func WithSettleLimit(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.settleLimit = n
		}
	}
}

// Loop is the in-process scheduler. It mounts components and turns
// drained re-render requests into commits, all on the calling goroutine.
// It exists so bindings can be exercised without a transport; the test
// harness and the serve path's session loop follow the same
// mount/flush/unmount shape.
//
// A Loop is not safe for concurrent driving; one goroutine mounts,
// flushes, and unmounts. ScheduleRender alone may be called from any
// goroutine (that is how store updates from elsewhere reach the loop).
type Loop struct {
	// queue holds instances with pending re-render requests.
	queue   []*Instance
	queueMu sync.Mutex

	// instances are the currently mounted components.
	instances []*Instance

	// values is the loop-level context table instances inherit.
	values   map[any]any
	valuesMu sync.RWMutex

	observer    func(*Instance, string)
	settleLimit int
}

// NewLoop creates an in-process render loop.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		values:      make(map[any]any),
		settleLimit: defaultSettleLimit,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ScheduleRender queues an instance for the next Flush.
// Implements Scheduler.
func (l *Loop) ScheduleRender(inst *Instance) {
	l.queueMu.Lock()
	defer l.queueMu.Unlock()
	l.queue = append(l.queue, inst)
}

// Value looks up a loop-level context value. Implements Environ.
func (l *Loop) Value(key any) (any, bool) {
	l.valuesMu.RLock()
	defer l.valuesMu.RUnlock()
	v, ok := l.values[key]
	return v, ok
}

// SetValue stores a loop-level context value, visible to every mounted
// instance that does not shadow the key itself.
func (l *Loop) SetValue(key, value any) {
	l.valuesMu.Lock()
	defer l.valuesMu.Unlock()
	l.values[key] = value
}

// Mount renders the component for the first time and commits its effects.
// A panic during render or commit is recovered and returned as the error;
// the instance is disposed and not mounted in that case.
func (l *Loop) Mount(comp Component) (*Instance, error) {
	inst := NewInstance(comp, l)

	if err := l.renderPass(inst); err != nil {
		inst.Dispose()
		return nil, err
	}

	l.instances = append(l.instances, inst)
	return inst, nil
}

// Unmount disposes the instance and forgets it. Idempotent.
func (l *Loop) Unmount(inst *Instance) {
	if inst == nil {
		return
	}
	inst.Dispose()

	for i, in := range l.instances {
		if in == inst {
			l.instances = append(l.instances[:i], l.instances[i+1:]...)
			return
		}
	}
}

// Instances returns the currently mounted instances.
func (l *Loop) Instances() []*Instance {
	out := make([]*Instance, len(l.instances))
	copy(out, l.instances)
	return out
}

// Flush drains queued re-render requests, rendering and committing each
// dirty instance, until the queue is empty. Renders may queue further
// work (an effect invalidating another instance); Flush keeps draining up
// to the settle limit and returns ErrUnsettled past it.
func (l *Loop) Flush() error {
	for pass := 0; pass < l.settleLimit; pass++ {
		l.queueMu.Lock()
		queue := l.queue
		l.queue = nil
		l.queueMu.Unlock()

		if len(queue) == 0 {
			return nil
		}

		for _, inst := range queue {
			if inst.IsDisposed() {
				continue
			}
			if !inst.ConsumeDirty() {
				continue
			}
			if err := l.renderPass(inst); err != nil {
				return err
			}
		}
	}
	return ErrUnsettled
}

// renderPass renders one instance through RenderInstance and reports the
// commit to the observer.
func (l *Loop) renderPass(inst *Instance) error {
	html, err := RenderInstance(inst)
	if err != nil {
		return err
	}
	if l.observer != nil {
		l.observer(inst, html)
	}
	return nil
}

// RenderInstance renders one instance and runs its commit, converting a
// panic from either phase into an error. This is the error boundary every
// scheduler shares: a failing component surfaces here instead of tearing
// down the process.
func RenderInstance(inst *Instance) (html string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoveredError(r)
		}
	}()

	html = inst.Render()
	inst.RunPendingEffects()
	return html, nil
}

// recoveredError converts a recovered panic value into an error,
// preserving error values for errors.Is inspection.
func recoveredError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("host: render panic: %w", err)
	}
	return fmt.Errorf("host: render panic: %v", r)
}
