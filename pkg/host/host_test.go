package host

import (
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestMountRendersComponent(t *testing.T) {
	loop := NewLoop()

	inst, err := loop.Mount(FuncComponent(func() string {
		return "<p>hello</p>"
	}))
	if err != nil {
		t.Fatalf("unexpected mount error: %v", err)
	}

	if got := inst.LastHTML(); got != "<p>hello</p>" {
		t.Errorf("expected rendered fragment, got %q", got)
	}
	if len(loop.Instances()) != 1 {
		t.Errorf("expected 1 mounted instance, got %d", len(loop.Instances()))
	}
}

func TestUseSlotIsStableAcrossRenders(t *testing.T) {
	loop := NewLoop()

	var first, second *int
	renders := 0
	inst, err := loop.Mount(FuncComponent(func() string {
		p := UseSlot(func() int { return 7 })
		renders++
		if renders == 1 {
			first = p
		} else {
			second = p
		}
		return ""
	}))
	if err != nil {
		t.Fatalf("unexpected mount error: %v", err)
	}

	inst.Invalidate()
	if err := loop.Flush(); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}

	if first != second {
		t.Error("expected the same slot pointer on both renders")
	}
	if *first != 7 {
		t.Errorf("expected slot to keep initial value 7, got %d", *first)
	}
}

func TestUseSlotPanicsOnHookOrderChange(t *testing.T) {
	loop := NewLoop()

	renders := 0
	inst, err := loop.Mount(FuncComponent(func() string {
		renders++
		if renders == 1 {
			UseSlot(func() int { return 0 })
		} else {
			UseSlot(func() string { return "" })
		}
		return ""
	}))
	if err != nil {
		t.Fatalf("unexpected mount error: %v", err)
	}

	inst.Invalidate()
	err = loop.Flush()
	if err == nil {
		t.Fatal("expected an error from a hook order change")
	}
	if !strings.Contains(err.Error(), "hook order changed") {
		t.Errorf("expected hook order message, got %v", err)
	}
}

func TestInvalidateBumpsTokenAndSchedules(t *testing.T) {
	loop := NewLoop()

	inst, err := loop.Mount(FuncComponent(func() string { return "" }))
	if err != nil {
		t.Fatalf("unexpected mount error: %v", err)
	}

	before := inst.Token()
	inst.Invalidate()
	inst.Invalidate()
	inst.Invalidate()

	if got := inst.Token() - before; got != 3 {
		t.Errorf("expected token to advance by 3, got %d", got)
	}
	if !inst.IsDirty() {
		t.Error("expected instance to be dirty after Invalidate")
	}
}

func TestFlushCoalescesToOneRender(t *testing.T) {
	loop := NewLoop()

	renders := 0
	inst, err := loop.Mount(FuncComponent(func() string {
		renders++
		return ""
	}))
	if err != nil {
		t.Fatalf("unexpected mount error: %v", err)
	}

	inst.Invalidate()
	inst.Invalidate()
	if err := loop.Flush(); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}

	// Initial render plus one coalesced re-render.
	if renders != 2 {
		t.Errorf("expected 2 renders, got %d", renders)
	}
}

func TestUseEffectRunsAfterCommitAndCleansUpInOrder(t *testing.T) {
	loop := NewLoop()

	var order []string
	inst, err := loop.Mount(FuncComponent(func() string {
		UseEffect(func() Cleanup {
			order = append(order, "setup-a")
			return func() { order = append(order, "cleanup-a") }
		})
		UseEffect(func() Cleanup {
			order = append(order, "setup-b")
			return func() { order = append(order, "cleanup-b") }
		})
		return ""
	}))
	if err != nil {
		t.Fatalf("unexpected mount error: %v", err)
	}

	loop.Unmount(inst)

	want := []string{"setup-a", "setup-b", "cleanup-b", "cleanup-a"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestUseEffectSkipsWhenDepsUnchanged(t *testing.T) {
	loop := NewLoop()

	runs := 0
	dep := "fixed"
	inst, err := loop.Mount(FuncComponent(func() string {
		UseEffect(func() Cleanup {
			runs++
			return nil
		}, dep)
		return ""
	}))
	if err != nil {
		t.Fatalf("unexpected mount error: %v", err)
	}

	inst.Invalidate()
	if err := loop.Flush(); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}

	if runs != 1 {
		t.Errorf("expected 1 effect run with unchanged deps, got %d", runs)
	}
}

func TestUseEffectRerunsWhenDepsChange(t *testing.T) {
	loop := NewLoop()

	runs, cleanups := 0, 0
	dep := 1
	inst, err := loop.Mount(FuncComponent(func() string {
		UseEffect(func() Cleanup {
			runs++
			return func() { cleanups++ }
		}, dep)
		return ""
	}))
	if err != nil {
		t.Fatalf("unexpected mount error: %v", err)
	}

	dep = 2
	inst.Invalidate()
	if err := loop.Flush(); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}

	if runs != 2 {
		t.Errorf("expected 2 effect runs, got %d", runs)
	}
	if cleanups != 1 {
		t.Errorf("expected 1 cleanup before the re-run, got %d", cleanups)
	}
}

func TestUseEffectPointerDepsCompareByIdentity(t *testing.T) {
	loop := NewLoop()

	type box struct{ n int }
	a := &box{n: 1}
	b := &box{n: 1} // equal contents, distinct identity

	runs := 0
	dep := a
	inst, err := loop.Mount(FuncComponent(func() string {
		UseEffect(func() Cleanup {
			runs++
			return nil
		}, dep)
		return ""
	}))
	if err != nil {
		t.Fatalf("unexpected mount error: %v", err)
	}

	dep = b
	inst.Invalidate()
	if err := loop.Flush(); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}

	if runs != 2 {
		t.Errorf("expected pointer swap to re-run the effect, got %d runs", runs)
	}
}

func TestUnmountIsIdempotent(t *testing.T) {
	loop := NewLoop()

	cleanups := 0
	inst, err := loop.Mount(FuncComponent(func() string {
		UseEffect(func() Cleanup {
			return func() { cleanups++ }
		})
		return ""
	}))
	if err != nil {
		t.Fatalf("unexpected mount error: %v", err)
	}

	loop.Unmount(inst)
	loop.Unmount(inst)
	inst.Dispose()

	if cleanups != 1 {
		t.Errorf("expected exactly 1 cleanup, got %d", cleanups)
	}
	if len(loop.Instances()) != 0 {
		t.Errorf("expected no mounted instances, got %d", len(loop.Instances()))
	}
}

func TestInvalidateAfterDisposeIsNoOp(t *testing.T) {
	loop := NewLoop()

	renders := 0
	inst, err := loop.Mount(FuncComponent(func() string {
		renders++
		return ""
	}))
	if err != nil {
		t.Fatalf("unexpected mount error: %v", err)
	}

	loop.Unmount(inst)
	token := inst.Token()

	inst.Invalidate()
	if err := loop.Flush(); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}

	if renders != 1 {
		t.Errorf("expected no renders after unmount, got %d total", renders)
	}
	if inst.Token() != token {
		t.Error("expected token to stay put after dispose")
	}
}

func TestOnCleanupRunsImmediatelyWhenDisposed(t *testing.T) {
	loop := NewLoop()

	inst, err := loop.Mount(FuncComponent(func() string { return "" }))
	if err != nil {
		t.Fatalf("unexpected mount error: %v", err)
	}
	loop.Unmount(inst)

	ran := false
	inst.OnCleanup(func() { ran = true })

	if !ran {
		t.Error("expected cleanup registered after dispose to run immediately")
	}
}

func TestUseHandlerTokensAreStable(t *testing.T) {
	loop := NewLoop()

	clicks := 0
	inst, err := loop.Mount(FuncComponent(func() string {
		token := UseHandler("increment", func() { clicks++ })
		return "<button data-on-click=\"" + token + "\">+</button>"
	}))
	if err != nil {
		t.Fatalf("unexpected mount error: %v", err)
	}

	name, fn, ok := inst.Handler("h0")
	if !ok {
		t.Fatal("expected handler h0 to be registered")
	}
	if name != "increment" {
		t.Errorf("expected handler name %q, got %q", "increment", name)
	}
	fn()

	inst.Invalidate()
	if err := loop.Flush(); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}

	if _, _, ok := inst.Handler("h0"); !ok {
		t.Error("expected token h0 to survive a re-render")
	}
	if clicks != 1 {
		t.Errorf("expected 1 click, got %d", clicks)
	}
}

func TestValueLookupFallsBackToLoop(t *testing.T) {
	loop := NewLoop()
	type key struct{}

	loop.SetValue(key{}, "from-loop")

	inst, err := loop.Mount(FuncComponent(func() string { return "" }))
	if err != nil {
		t.Fatalf("unexpected mount error: %v", err)
	}

	if v, ok := inst.Value(key{}); !ok || v != "from-loop" {
		t.Errorf("expected loop value, got %v (ok=%v)", v, ok)
	}

	inst.SetValue(key{}, "from-instance")
	if v, _ := inst.Value(key{}); v != "from-instance" {
		t.Errorf("expected instance value to shadow loop value, got %v", v)
	}
}

func TestMountRecoversRenderPanic(t *testing.T) {
	loop := NewLoop()

	sentinel := errors.New("boom")
	_, err := loop.Mount(FuncComponent(func() string {
		panic(sentinel)
	}))
	if err == nil {
		t.Fatal("expected an error from a panicking component")
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("expected the panic value to be wrapped, got %v", err)
	}
	if len(loop.Instances()) != 0 {
		t.Error("expected no instance mounted after a failed render")
	}
}

func TestCurrentPanicsOutsideRender(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected a panic")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrNoInstance) {
			t.Errorf("expected ErrNoInstance, got %v", r)
		}
	}()
	Current()
}

func TestFlushReportsUnsettledLoop(t *testing.T) {
	loop := NewLoop(WithSettleLimit(5))

	// A component whose commit re-invalidates itself on every render.
	var self *Instance
	n := 0
	inst, err := loop.Mount(FuncComponent(func() string {
		self = Current()
		n++
		UseEffect(func() Cleanup {
			self.Invalidate()
			return nil
		}, n)
		return ""
	}))
	if err != nil {
		t.Fatalf("unexpected mount error: %v", err)
	}
	_ = inst

	if err := loop.Flush(); !errors.Is(err, ErrUnsettled) {
		t.Errorf("expected ErrUnsettled, got %v", err)
	}
}

func TestConcurrentInvalidateIsSafe(t *testing.T) {
	loop := NewLoop()

	inst, err := loop.Mount(FuncComponent(func() string { return "" }))
	if err != nil {
		t.Fatalf("unexpected mount error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				inst.Invalidate()
			}
		}()
	}
	wg.Wait()

	if err := loop.Flush(); err != nil {
		t.Fatalf("unexpected flush error: %v", err)
	}
	if got := inst.Token(); got < 1000 {
		t.Errorf("expected at least 1000 token bumps, got %d", got)
	}
}
