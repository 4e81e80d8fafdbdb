package keentest

import (
	"strings"
	"sync"
	"testing"

	"github.com/keenstore-dev/keenstore/pkg/host"
)

// Harness drives a host loop under test. It observes every committed
// render and tracks each instance's render-token baseline, so tests can
// assert on requests and renders separately.
type Harness struct {
	tb   testing.TB
	loop *host.Loop

	mu       sync.Mutex
	renders  map[string]int
	baseline map[string]uint64
}

// New creates a harness around a fresh loop.
//
// Example:
//
//	h := keentest.New(t)
//	inst := h.Mount(myComponent)
func New(tb testing.TB) *Harness {
	h := &Harness{
		tb:       tb,
		renders:  make(map[string]int),
		baseline: make(map[string]uint64),
	}
	h.loop = host.NewLoop(host.WithRenderObserver(func(inst *host.Instance, html string) {
		h.mu.Lock()
		h.renders[inst.ID()]++
		h.mu.Unlock()
	}))
	return h
}

// Loop exposes the underlying loop for advanced scenarios, such as
// providing context values.
func (h *Harness) Loop() *host.Loop {
	return h.loop
}

// Mount mounts a component and fails the test on error. The mount render
// counts as the instance's first render.
func (h *Harness) Mount(comp host.Component) *host.Instance {
	h.tb.Helper()
	inst, err := h.loop.Mount(comp)
	if err != nil {
		h.tb.Fatalf("mount failed: %v", err)
	}
	h.mu.Lock()
	h.baseline[inst.ID()] = inst.Token()
	h.mu.Unlock()
	return inst
}

// MountErr mounts a component and returns the error, for tests that
// expect the first render to fail.
func (h *Harness) MountErr(comp host.Component) (*host.Instance, error) {
	return h.loop.Mount(comp)
}

// Unmount disposes an instance through the loop.
func (h *Harness) Unmount(inst *host.Instance) {
	h.loop.Unmount(inst)
}

// Flush drains pending renders and fails the test if the loop cannot
// settle.
func (h *Harness) Flush() {
	h.tb.Helper()
	if err := h.loop.Flush(); err != nil {
		h.tb.Fatalf("flush failed: %v", err)
	}
}

// Fire invokes the handler the instance registered under token, then
// flushes, the way a client click dispatches and the session re-renders.
func (h *Harness) Fire(inst *host.Instance, token string) {
	h.tb.Helper()
	_, fn, ok := inst.Handler(token)
	if !ok {
		h.tb.Fatalf("no handler registered for token %q", token)
	}
	fn()
	h.Flush()
}

// Renders reports how many renders the instance has committed, the mount
// render included.
func (h *Harness) Renders(inst *host.Instance) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.renders[inst.ID()]
}

// Requests reports how many re-render requests the instance has received
// since Mount or the last ResetRequests, whether or not the loop has
// flushed them yet.
func (h *Harness) Requests(inst *host.Instance) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return inst.Token() - h.baseline[inst.ID()]
}

// ResetRequests zeroes the instance's request count, so a test can scope
// its assertions to one phase.
func (h *Harness) ResetRequests(inst *host.Instance) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.baseline[inst.ID()] = inst.Token()
}

// ExpectRenders asserts the committed render count.
func (h *Harness) ExpectRenders(inst *host.Instance, want int) {
	h.tb.Helper()
	if got := h.Renders(inst); got != want {
		h.tb.Errorf("expected %d renders, got %d", want, got)
	}
}

// ExpectRequests asserts the re-render request count since Mount or the
// last ResetRequests.
func (h *Harness) ExpectRequests(inst *host.Instance, want uint64) {
	h.tb.Helper()
	if got := h.Requests(inst); got != want {
		h.tb.Errorf("expected %d re-render requests, got %d", want, got)
	}
}

// ExpectHTML asserts that the instance's last committed render equals
// want exactly.
//
// Example:
//
//	keentest.ExpectHTML(t, inst, "<b>1</b>")
func ExpectHTML(t testing.TB, inst *host.Instance, want string) {
	t.Helper()
	if got := inst.LastHTML(); got != want {
		t.Errorf("expected rendered output %q, got %q", want, got)
	}
}

// ExpectContains asserts that the last committed render contains the
// expected substring.
//
// Example:
//
//	keentest.ExpectContains(t, inst, "Welcome Admin")
func ExpectContains(t testing.TB, inst *host.Instance, expected string) {
	t.Helper()
	html := inst.LastHTML()
	if !strings.Contains(html, expected) {
		t.Errorf("expected rendered output to contain %q, got:\n%s", expected, truncate(html, 500))
	}
}

// ExpectNotContains asserts that the last committed render does not
// contain the given substring.
//
// Example:
//
//	keentest.ExpectNotContains(t, inst, "Error")
func ExpectNotContains(t testing.TB, inst *host.Instance, unexpected string) {
	t.Helper()
	html := inst.LastHTML()
	if strings.Contains(html, unexpected) {
		t.Errorf("expected rendered output to NOT contain %q, got:\n%s", unexpected, truncate(html, 500))
	}
}

// truncate truncates a string to max length with ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
