// Package demo is the counter application served by the keenstore CLI.
//
// One process-wide store holds CounterState; every session mounts three
// panels bound to it, each with a different render policy:
//
//   - the counter panel re-renders on every update (Always) and owns the
//     increment/decrement handlers,
//   - the audit panel never re-renders on updates (Never) and shows the
//     value it read at its own last render, with a button to re-read,
//   - the milestone panel re-renders only when the counter crosses a
//     multiple of ten (When).
//
// A click in any session therefore updates the counter panel of every
// connected session, while each session's audit panel stays put until
// its own user asks for a fresh read.
package demo

import (
	"context"
	"fmt"

	"github.com/keenstore-dev/keenstore/pkg/bind"
	"github.com/keenstore-dev/keenstore/pkg/host"
	"github.com/keenstore-dev/keenstore/pkg/live"
	"github.com/keenstore-dev/keenstore/pkg/middleware"
	"github.com/keenstore-dev/keenstore/pkg/store"
)

// CounterState is the shared state every panel binds.
type CounterState struct {
	Counter int
}

// Counters resolves the shared counter store for whichever session a
// panel renders under. Server's OnSessionStart hook provides it on each
// session; tests provide it on a harness loop instead.
var Counters = bind.NewStoreContext[CounterState](nil)

// milestonePolicy re-renders the milestone panel only when the update
// crossed a multiple of ten. Updates it declines land in the
// renders-skipped meter. Held in a package variable so every render of
// the panel binds the same policy identity and the subscription
// survives re-renders.
var milestonePolicy = bind.When(func(next, prev CounterState) bool {
	if crossedMilestone(next, prev) {
		return true
	}
	middleware.RecordRenderSkipped()
	return false
})

// App owns the shared store and wires it onto a live server.
type App struct {
	// Store is the process-wide counter state all sessions bind.
	Store *store.Store[CounterState]

	stopMeter func()
}

// New creates the app and starts metering store writes.
func New() *App {
	a := &App{Store: store.New(CounterState{})}
	// Every write lands in the store-update meter, whichever session
	// (or none) performed it.
	a.stopMeter = a.Store.OnUpdate(func(next, prev CounterState) {
		middleware.RecordStoreUpdate()
	})
	return a
}

// Close releases the app's own store subscription. Session bindings are
// torn down by their sessions.
func (a *App) Close() {
	if a.stopMeter != nil {
		a.stopMeter()
		a.stopMeter = nil
	}
}

// Server builds a live server serving the demo. Each new session gets
// the shared store provided and the three panels mounted before its
// init frame, then the legend as the server's root beneath them.
// Hooks already present on cfg keep running first.
func (a *App) Server(cfg *live.ServerConfig) *live.Server {
	if cfg == nil {
		cfg = live.DefaultServerConfig()
	}
	userStart := cfg.OnSessionStart
	cfg.OnSessionStart = func(ctx context.Context, sess *live.Session) {
		if userStart != nil {
			userStart(ctx, sess)
		}
		if err := a.attach(sess); err != nil {
			sess.Logger().Error("demo panels failed to mount", "error", err)
		}
	}
	srv := live.New(cfg)
	srv.SetRootComponent(func() host.Component {
		return host.FuncComponent(legendView)
	})
	return srv
}

// attach provides the shared store to the session and mounts the panels
// in display order.
func (a *App) attach(sess *live.Session) error {
	Counters.Provide(sess, a.Store)
	for _, view := range []host.FuncComponent{counterView, auditView, milestoneView} {
		if _, err := sess.Mount(view); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Panels
// =============================================================================

// counterView is the interactive panel. The default Always policy means
// any session's write re-renders it.
func counterView() string {
	state, setCounter := bind.UseStoreContext(Counters)

	dec := host.UseHandler("dec", func() {
		setCounter.Update(func(s CounterState) CounterState {
			s.Counter--
			return s
		})
	})
	inc := host.UseHandler("inc", func() {
		setCounter.Update(func(s CounterState) CounterState {
			s.Counter++
			return s
		})
	})

	return fmt.Sprintf(
		`<section class="panel counter"><h2>Counter</h2>`+
			`<button data-on-click=%q>-</button>`+
			`<strong>%d</strong>`+
			`<button data-on-click=%q>+</button>`+
			`</section>`,
		dec, state.Counter, inc)
}

// auditView reads the counter without subscribing to it. External
// updates leave it showing the value from its own last render; the
// button re-renders it, and that render reads the store fresh.
func auditView() string {
	state, _ := bind.UseStoreContext(Counters, bind.Never[CounterState]())

	inst := host.Current()
	refresh := host.UseHandler("refresh", inst.Invalidate)

	return fmt.Sprintf(
		`<section class="panel audit"><h2>Audit</h2>`+
			`<p>Counter was <strong>%d</strong> when last audited.</p>`+
			`<button data-on-click=%q>Audit now</button>`+
			`</section>`,
		state.Counter, refresh)
}

// milestoneView re-renders exactly when its displayed value changes:
// the predicate fires iff the update moved the counter past a multiple
// of ten, and the greatest multiple of ten at or below the counter is
// what it shows.
func milestoneView() string {
	state, _ := bind.UseStoreContext(Counters, milestonePolicy)

	return fmt.Sprintf(
		`<section class="panel milestone"><h2>Milestones</h2>`+
			`<p>Last milestone: <strong>%d</strong></p>`+
			`</section>`,
		lastMilestone(state.Counter))
}

// legendView is the static footer the server mounts as its root, after
// the session hook mounted the panels above it.
func legendView() string {
	return `<footer class="legend"><p>` +
		`Three panels share one counter store: the counter re-renders on every update, ` +
		`the audit panel only when you press its button, ` +
		`and the milestone panel when the counter crosses a multiple of ten. ` +
		`Open this page twice and click in either window.` +
		`</p></footer>`
}

// lastMilestone returns the greatest multiple of ten at or below n.
func lastMilestone(n int) int {
	m := n % 10
	if m < 0 {
		m += 10
	}
	return n - m
}

// crossedMilestone reports whether the update moved the counter into a
// different run of ten, so 9 to 10 fires and 10 to 11 does not.
func crossedMilestone(next, prev CounterState) bool {
	return lastMilestone(next.Counter) != lastMilestone(prev.Counter)
}
