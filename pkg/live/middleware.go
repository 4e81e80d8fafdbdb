package live

import (
	"context"

	"github.com/keenstore-dev/keenstore/pkg/host"
)

// Dispatch triggers.
const (
	// TriggerEvent marks dispatches caused by a client event frame.
	TriggerEvent = "event"

	// TriggerDispatch marks dispatches queued through Session.Dispatch.
	TriggerDispatch = "dispatch"
)

// DispatchCtx describes one dispatch on a session's event loop: the
// handler call plus the re-render and patch send it causes. Middleware
// receives it around next().
type DispatchCtx struct {
	// Session is the session the dispatch runs on.
	Session *Session

	// Instance is the component the event targeted. Nil for dispatches
	// queued through Session.Dispatch.
	Instance *host.Instance

	// Trigger is TriggerEvent or TriggerDispatch.
	Trigger string

	// Handler is the registered handler name for events, or "" when the
	// token did not resolve.
	Handler string

	ctx           context.Context
	values        map[any]any
	patchesBefore uint64
}

// Context returns the context for this dispatch, for propagation to
// downstream calls. Defaults to context.Background.
func (d *DispatchCtx) Context() context.Context {
	if d.ctx == nil {
		return context.Background()
	}
	return d.ctx
}

// WithContext replaces the dispatch context, e.g. to carry a trace span.
func (d *DispatchCtx) WithContext(ctx context.Context) {
	d.ctx = ctx
}

// SetValue stores a value scoped to this dispatch.
func (d *DispatchCtx) SetValue(key, value any) {
	if d.values == nil {
		d.values = make(map[any]any)
	}
	d.values[key] = value
}

// Value looks up a dispatch-scoped value.
func (d *DispatchCtx) Value(key any) any {
	return d.values[key]
}

// PatchCount reports how many fragments this dispatch has sent so far.
// Middleware reads it after next() to observe the dispatch's output.
func (d *DispatchCtx) PatchCount() int {
	if d.Session == nil {
		return 0
	}
	return int(d.Session.patchCount.Load() - d.patchesBefore)
}

// Middleware wraps a dispatch on the session loop. Call next to run the
// rest of the chain and the dispatch itself; the returned error is the
// dispatch outcome (handler not found, a recovered panic, a failed
// render).
type Middleware func(ctx *DispatchCtx, next func() error) error

// chain composes middleware around a dispatch, first registered
// outermost.
func chain(mws []Middleware, ctx *DispatchCtx, final func() error) error {
	next := final
	for i := len(mws) - 1; i >= 0; i-- {
		mw := mws[i]
		inner := next
		next = func() error {
			return mw(ctx, inner)
		}
	}
	return next()
}
