package demo

import (
	"testing"

	"github.com/keenstore-dev/keenstore/pkg/host"
	"github.com/keenstore-dev/keenstore/pkg/keentest"
)

// Handler tokens in per-panel registration order.
const (
	decToken     = "h0"
	incToken     = "h1"
	refreshToken = "h0"
)

type panels struct {
	counter   *host.Instance
	audit     *host.Instance
	milestone *host.Instance
}

// mountPanels provides a fresh app's store on the harness loop and
// mounts the three panels the way a session would.
func mountPanels(t *testing.T) (*keentest.Harness, *App, panels) {
	t.Helper()
	app := New()
	t.Cleanup(app.Close)

	h := keentest.New(t)
	Counters.Provide(h.Loop(), app.Store)
	return h, app, panels{
		counter:   h.Mount(host.FuncComponent(counterView)),
		audit:     h.Mount(host.FuncComponent(auditView)),
		milestone: h.Mount(host.FuncComponent(milestoneView)),
	}
}

func TestCounterPanelUpdatesOnEveryClick(t *testing.T) {
	h, _, p := mountPanels(t)

	keentest.ExpectContains(t, p.counter, "<strong>0</strong>")

	h.Fire(p.counter, incToken)
	h.Fire(p.counter, incToken)
	keentest.ExpectContains(t, p.counter, "<strong>2</strong>")
	h.ExpectRequests(p.counter, 2)

	h.Fire(p.counter, decToken)
	keentest.ExpectContains(t, p.counter, "<strong>1</strong>")

	// Neither click crossed a milestone, and the audit panel never
	// subscribes, so the other panels saw nothing.
	h.ExpectRequests(p.audit, 0)
	h.ExpectRequests(p.milestone, 0)
}

func TestAuditPanelRefreshesOnlyOnDemand(t *testing.T) {
	h, app, p := mountPanels(t)

	app.Store.Set(CounterState{Counter: 5})
	h.Flush()

	// The write did not touch the audit panel.
	h.ExpectRequests(p.audit, 0)
	h.ExpectRenders(p.audit, 1)
	keentest.ExpectContains(t, p.audit, "<strong>0</strong>")

	// Its own button re-renders it, and that render reads fresh state.
	h.Fire(p.audit, refreshToken)
	h.ExpectRenders(p.audit, 2)
	keentest.ExpectContains(t, p.audit, "<strong>5</strong>")
}

func TestMilestonePanelRendersOnCrossingsOnly(t *testing.T) {
	h, app, p := mountPanels(t)

	set := func(n int) {
		t.Helper()
		app.Store.Set(CounterState{Counter: n})
		h.Flush()
	}

	set(9)
	h.ExpectRequests(p.milestone, 0)
	keentest.ExpectContains(t, p.milestone, "<strong>0</strong>")

	set(10)
	h.ExpectRequests(p.milestone, 1)
	keentest.ExpectContains(t, p.milestone, "<strong>10</strong>")

	set(19)
	h.ExpectRequests(p.milestone, 1)
	keentest.ExpectContains(t, p.milestone, "<strong>10</strong>")

	set(20)
	h.ExpectRequests(p.milestone, 2)
	keentest.ExpectContains(t, p.milestone, "<strong>20</strong>")

	// Crossings fire going down as well.
	set(15)
	h.ExpectRequests(p.milestone, 3)
	keentest.ExpectContains(t, p.milestone, "<strong>10</strong>")

	set(-1)
	keentest.ExpectContains(t, p.milestone, "<strong>-10</strong>")
}

func TestPanelsShareOneStoreAcrossLoops(t *testing.T) {
	app := New()
	t.Cleanup(app.Close)

	// Two loops stand in for two connected sessions.
	hA := keentest.New(t)
	hB := keentest.New(t)
	Counters.Provide(hA.Loop(), app.Store)
	Counters.Provide(hB.Loop(), app.Store)

	counterA := hA.Mount(host.FuncComponent(counterView))
	counterB := hB.Mount(host.FuncComponent(counterView))
	auditB := hB.Mount(host.FuncComponent(auditView))

	hA.Fire(counterA, incToken)
	hB.Flush()

	keentest.ExpectContains(t, counterA, "<strong>1</strong>")
	keentest.ExpectContains(t, counterB, "<strong>1</strong>")
	hB.ExpectRequests(counterB, 1)

	// The other session's audit panel is as unimpressed as the local one.
	hB.ExpectRequests(auditB, 0)
	keentest.ExpectContains(t, auditB, "<strong>0</strong>")
}

func TestAppCloseReleasesMeter(t *testing.T) {
	app := New()
	if got := app.Store.Len(); got != 1 {
		t.Fatalf("subscriptions after New = %d, want 1", got)
	}
	app.Close()
	if got := app.Store.Len(); got != 0 {
		t.Errorf("subscriptions after Close = %d, want 0", got)
	}
	// Closing twice is fine.
	app.Close()
}

func TestLastMilestone(t *testing.T) {
	tests := []struct {
		n, want int
	}{
		{0, 0},
		{7, 0},
		{10, 10},
		{17, 10},
		{20, 20},
		{-1, -10},
		{-10, -10},
		{-11, -20},
	}
	for _, tt := range tests {
		if got := lastMilestone(tt.n); got != tt.want {
			t.Errorf("lastMilestone(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
}

func TestCrossedMilestone(t *testing.T) {
	tests := []struct {
		prev, next int
		want       bool
	}{
		{9, 10, true},
		{10, 11, false},
		{11, 9, true},
		{0, -1, true},
		{-10, -9, false},
		{19, 20, true},
		{5, 5, false},
	}
	for _, tt := range tests {
		got := crossedMilestone(CounterState{Counter: tt.next}, CounterState{Counter: tt.prev})
		if got != tt.want {
			t.Errorf("crossedMilestone(%d -> %d) = %v, want %v", tt.prev, tt.next, got, tt.want)
		}
	}
}
