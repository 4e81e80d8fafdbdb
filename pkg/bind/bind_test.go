package bind

import (
	"errors"
	"fmt"
	"testing"

	"github.com/keenstore-dev/keenstore/pkg/host"
	"github.com/keenstore-dev/keenstore/pkg/store"
)

func mustMount(t *testing.T, loop *host.Loop, comp host.Component) *host.Instance {
	t.Helper()
	inst, err := loop.Mount(comp)
	if err != nil {
		t.Fatalf("unexpected mount error: %v", err)
	}
	return inst
}

func mustFlush(t *testing.T, loop *host.Loop) {
	t.Helper()
	if err := loop.Flush(); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}
}

func TestResponsiveBindingRequestsOneRenderPerUpdate(t *testing.T) {
	loop := host.NewLoop()
	s := store.New(0)

	inst := mustMount(t, loop, host.FuncComponent(func() string {
		n, _ := UseStore(s)
		return fmt.Sprintf("%d", n)
	}))

	before := inst.Token()
	s.Set(1)
	if got := inst.Token() - before; got != 1 {
		t.Errorf("expected exactly 1 re-render request, got %d", got)
	}

	s.Set(2)
	s.Set(3)
	if got := inst.Token() - before; got != 3 {
		t.Errorf("expected 3 re-render requests for 3 updates, got %d", got)
	}

	mustFlush(t, loop)
	if got := inst.LastHTML(); got != "3" {
		t.Errorf("expected re-render to read latest state, got %q", got)
	}
}

func TestNonResponsiveBindingNeverRequestsRenders(t *testing.T) {
	loop := host.NewLoop()
	s := store.New(10)

	inst := mustMount(t, loop, host.FuncComponent(func() string {
		n, _ := UseStore(s, Never[int]())
		return fmt.Sprintf("%d", n)
	}))

	if got := s.Len(); got != 0 {
		t.Errorf("expected no subscription for Never, got %d listeners", got)
	}

	before := inst.Token()
	s.Set(11)
	s.Set(12)
	if got := inst.Token(); got != before {
		t.Errorf("expected no re-render requests, token moved by %d", got-before)
	}

	// The next natural render still reads the current state.
	inst.Invalidate()
	mustFlush(t, loop)
	if got := inst.LastHTML(); got != "12" {
		t.Errorf("expected natural render to read 12, got %q", got)
	}
}

func TestPredicateGatesRendersExactly(t *testing.T) {
	loop := host.NewLoop()
	s := store.New(0)

	evenOnly := When(func(next, prev int) bool { return next%2 == 0 })

	inst := mustMount(t, loop, host.FuncComponent(func() string {
		n, _ := UseStore(s, evenOnly)
		return fmt.Sprintf("%d", n)
	}))

	steps := []struct {
		set  int
		want uint64 // cumulative requests
	}{
		{set: 1, want: 0},
		{set: 2, want: 1},
		{set: 4, want: 2},
		{set: 5, want: 2},
		{set: 5, want: 2}, // equal write still notifies, but 5 is odd
	}

	before := inst.Token()
	for i, step := range steps {
		s.Set(step.set)
		if got := inst.Token() - before; got != step.want {
			t.Errorf("step %d (set %d): expected %d requests, got %d", i, step.set, step.want, got)
		}
	}
	mustFlush(t, loop)
}

func TestPredicateReceivesRawNextAndPrev(t *testing.T) {
	loop := host.NewLoop()
	s := store.New(5)

	var gotNext, gotPrev int
	rec := When(func(next, prev int) bool {
		gotNext, gotPrev = next, prev
		return false
	})

	mustMount(t, loop, host.FuncComponent(func() string {
		_, _ = UseStore(s, rec)
		return ""
	}))

	s.Set(9)
	if gotNext != 9 || gotPrev != 5 {
		t.Errorf("expected predicate to see (next=9, prev=5), got (next=%d, prev=%d)", gotNext, gotPrev)
	}
}

func TestSetterIsStableAcrossRenders(t *testing.T) {
	loop := host.NewLoop()
	s := store.New(0)

	var setters []store.Setter[int]
	inst := mustMount(t, loop, host.FuncComponent(func() string {
		_, set := UseStore(s)
		setters = append(setters, set)
		return ""
	}))

	inst.Invalidate()
	mustFlush(t, loop)

	if len(setters) != 2 {
		t.Fatalf("expected 2 renders, got %d", len(setters))
	}
	if setters[0] != setters[1] {
		t.Error("expected the setter to be identical across binds of the same store")
	}

	other := store.New(0)
	if setters[0] == other.Setter() {
		t.Error("expected setters of different stores to differ")
	}

	if got := setters[1].Update(func(n int) int { return n + 41 }); got != 41 {
		t.Errorf("expected setter to write through, got %d", got)
	}
}

func TestUnmountTearsDownSubscription(t *testing.T) {
	loop := host.NewLoop()
	s := store.New(0)

	inst := mustMount(t, loop, host.FuncComponent(func() string {
		n, _ := UseStore(s)
		return fmt.Sprintf("%d", n)
	}))

	if got := s.Len(); got != 1 {
		t.Fatalf("expected 1 listener while mounted, got %d", got)
	}

	loop.Unmount(inst)

	if got := s.Len(); got != 0 {
		t.Errorf("expected teardown to remove the listener, got %d", got)
	}

	token := inst.Token()
	s.Set(99)
	if inst.Token() != token {
		t.Error("expected no re-render request after unmount")
	}
}

func TestStoreSwapResubscribes(t *testing.T) {
	loop := host.NewLoop()
	s1 := store.New(1)
	s2 := store.New(2)

	cur := s1
	inst := mustMount(t, loop, host.FuncComponent(func() string {
		n, _ := UseStore(cur)
		return fmt.Sprintf("%d", n)
	}))

	if s1.Len() != 1 {
		t.Fatalf("expected subscription on the first store, got %d", s1.Len())
	}

	cur = s2
	inst.Invalidate()
	mustFlush(t, loop)

	if got := s1.Len(); got != 0 {
		t.Errorf("expected the old store's subscription torn down, got %d listeners", got)
	}
	if got := s2.Len(); got != 1 {
		t.Errorf("expected a subscription on the new store, got %d listeners", got)
	}

	before := inst.Token()
	s1.Set(100)
	if inst.Token() != before {
		t.Error("expected updates to the old store to be ignored")
	}
	s2.Set(200)
	if got := inst.Token() - before; got != 1 {
		t.Errorf("expected the new store to drive renders, got %d requests", got)
	}

	mustFlush(t, loop)
	if got := inst.LastHTML(); got != "200" {
		t.Errorf("expected render to read the new store, got %q", got)
	}
}

func TestNilStoreFailsSynchronously(t *testing.T) {
	loop := host.NewLoop()

	_, err := loop.Mount(host.FuncComponent(func() string {
		_, _ = UseStore[int](nil)
		return ""
	}))

	if err == nil {
		t.Fatal("expected mounting with a nil store to fail")
	}
	if !errors.Is(err, ErrInvalidStore) {
		t.Errorf("expected ErrInvalidStore, got %v", err)
	}
	if len(loop.Instances()) != 0 {
		t.Error("expected the failed instance not to be mounted")
	}
}

func TestUseStoreOutsideRenderPanics(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a panic outside a render")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, host.ErrNoInstance) {
			t.Errorf("expected host.ErrNoInstance, got %v", r)
		}
	}()
	_, _ = UseStore(store.New(0))
}

func TestInlinePredicateResubscribesPerRender(t *testing.T) {
	loop := host.NewLoop()
	s := store.New(0)

	var calls []string
	tagged := func(tag string) Policy[int] {
		return When(func(next, prev int) bool {
			calls = append(calls, tag)
			return true
		})
	}

	pols := []Policy[int]{tagged("first"), tagged("second")}
	active := 0
	inst := mustMount(t, loop, host.FuncComponent(func() string {
		_, _ = UseStore(s, pols[active])
		return ""
	}))

	active = 1
	inst.Invalidate()
	mustFlush(t, loop)

	if got := s.Len(); got != 1 {
		t.Fatalf("expected exactly one live subscription, got %d", got)
	}

	s.Set(1)
	if len(calls) != 1 || calls[0] != "second" {
		t.Errorf("expected only the new predicate to see the update, got %v", calls)
	}
}

func TestHoistedPolicyKeepsItsSubscription(t *testing.T) {
	loop := host.NewLoop()
	s := store.New(0)

	pol := When(func(next, prev int) bool { return true })

	inst := mustMount(t, loop, host.FuncComponent(func() string {
		_, _ = UseStore(s, pol)
		return ""
	}))

	// A listener registered after mount sits behind the binding's listener.
	// If the binding kept its registration, its Invalidate runs first and
	// this observer sees the bumped token; a re-subscription would move the
	// binding behind the observer instead.
	var observed uint64
	s.OnUpdate(func(next, prev int) { observed = inst.Token() })

	inst.Invalidate()
	mustFlush(t, loop)

	before := inst.Token()
	s.Set(1)
	if observed != before+1 {
		t.Errorf("expected the original subscription to fire first (token %d), observed %d", before+1, observed)
	}
	if got := s.Len(); got != 2 {
		t.Errorf("expected binding plus observer, got %d listeners", got)
	}
}

func TestCounterScenarioTwoBindings(t *testing.T) {
	type CounterState struct {
		Counter int
	}

	loop := host.NewLoop()
	s := store.New(CounterState{Counter: 0})

	var setCounter store.Setter[CounterState]
	responsive := mustMount(t, loop, host.FuncComponent(func() string {
		st, set := UseStore(s)
		setCounter = set
		return fmt.Sprintf("%d", st.Counter)
	}))
	audit := mustMount(t, loop, host.FuncComponent(func() string {
		st, _ := UseStore(s, Never[CounterState]())
		return fmt.Sprintf("%d", st.Counter)
	}))

	if responsive.LastHTML() != "0" || audit.LastHTML() != "0" {
		t.Fatalf("expected both bindings to read 0, got %q and %q",
			responsive.LastHTML(), audit.LastHTML())
	}

	respBefore, auditBefore := responsive.Token(), audit.Token()

	setCounter.Update(func(st CounterState) CounterState {
		return CounterState{Counter: st.Counter + 1}
	})

	if got := s.Get().Counter; got != 1 {
		t.Errorf("expected store state 1, got %d", got)
	}
	if got := responsive.Token() - respBefore; got != 1 {
		t.Errorf("expected the responsive binding to get 1 request, got %d", got)
	}
	if audit.Token() != auditBefore {
		t.Error("expected the non-responsive binding to get no request")
	}

	mustFlush(t, loop)
	if got := responsive.LastHTML(); got != "1" {
		t.Errorf("expected responsive render to show 1, got %q", got)
	}

	// The audit binding still reads the new state on its next natural render.
	audit.Invalidate()
	mustFlush(t, loop)
	if got := audit.LastHTML(); got != "1" {
		t.Errorf("expected audit's next render to show 1, got %q", got)
	}
}
