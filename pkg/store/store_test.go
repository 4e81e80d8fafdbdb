package store

import (
	"sync"
	"testing"
)

func TestStoreGetReturnsInitialState(t *testing.T) {
	s := New(42)

	if got := s.Get(); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
}

func TestStoreSetReplacesStateAndReturnsIt(t *testing.T) {
	s := New("a")

	if got := s.Set("b"); got != "b" {
		t.Errorf("expected Set to return %q, got %q", "b", got)
	}
	if got := s.Get(); got != "b" {
		t.Errorf("expected %q, got %q", "b", got)
	}
}

func TestStoreUpdateAppliesFunction(t *testing.T) {
	s := New(10)

	got := s.Update(func(n int) int { return n + 5 })

	if got != 15 {
		t.Errorf("expected Update to return 15, got %d", got)
	}
	if s.Get() != 15 {
		t.Errorf("expected 15, got %d", s.Get())
	}
}

func TestStoreNotifiesWithNextAndPrev(t *testing.T) {
	s := New(1)

	var gotNext, gotPrev int
	calls := 0
	s.OnUpdate(func(next, prev int) {
		gotNext, gotPrev = next, prev
		calls++
	})

	s.Set(2)

	if calls != 1 {
		t.Fatalf("expected 1 notification, got %d", calls)
	}
	if gotNext != 2 || gotPrev != 1 {
		t.Errorf("expected (next=2, prev=1), got (next=%d, prev=%d)", gotNext, gotPrev)
	}
}

func TestStoreNotifiesEvenWhenValueUnchanged(t *testing.T) {
	s := New(7)

	calls := 0
	s.OnUpdate(func(next, prev int) { calls++ })

	s.Set(7)
	s.Set(7)

	if calls != 2 {
		t.Errorf("expected 2 notifications for equal-value writes, got %d", calls)
	}
}

func TestStoreNotifiesEveryListener(t *testing.T) {
	s := New(0)

	a, b := 0, 0
	s.OnUpdate(func(next, prev int) { a++ })
	s.OnUpdate(func(next, prev int) { b++ })

	s.Set(1)

	if a != 1 || b != 1 {
		t.Errorf("expected both listeners notified once, got a=%d b=%d", a, b)
	}
}

func TestStoreListenersRunInRegistrationOrder(t *testing.T) {
	s := New(0)

	var order []string
	s.OnUpdate(func(next, prev int) { order = append(order, "first") })
	s.OnUpdate(func(next, prev int) { order = append(order, "second") })
	s.OnUpdate(func(next, prev int) { order = append(order, "third") })

	s.Set(1)

	want := []string{"first", "second", "third"}
	if len(order) != len(want) {
		t.Fatalf("expected %d calls, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("call %d: expected %q, got %q", i, want[i], order[i])
		}
	}
}

func TestStoreUnsubscribeStopsNotifications(t *testing.T) {
	s := New(0)

	calls := 0
	stop := s.OnUpdate(func(next, prev int) { calls++ })

	s.Set(1)
	stop()
	s.Set(2)

	if calls != 1 {
		t.Errorf("expected 1 notification after unsubscribe, got %d", calls)
	}
}

func TestStoreUnsubscribeIsIdempotent(t *testing.T) {
	s := New(0)

	survivor := 0
	stop := s.OnUpdate(func(next, prev int) {})
	s.OnUpdate(func(next, prev int) { survivor++ })

	stop()
	stop()
	stop()

	s.Set(1)

	if survivor != 1 {
		t.Errorf("expected surviving listener to see 1 notification, got %d", survivor)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 registered listener, got %d", s.Len())
	}
}

func TestStoreUnsubscribeRemovesOnlyItsEntry(t *testing.T) {
	s := New(0)

	var seen []int
	s.OnUpdate(func(next, prev int) { seen = append(seen, 1) })
	stop := s.OnUpdate(func(next, prev int) { seen = append(seen, 2) })
	s.OnUpdate(func(next, prev int) { seen = append(seen, 3) })

	stop()
	s.Set(1)

	if len(seen) != 2 || seen[0] != 1 || seen[1] != 3 {
		t.Errorf("expected listeners 1 and 3 in order, got %v", seen)
	}
}

func TestStoreNilListenerIsIgnored(t *testing.T) {
	s := New(0)

	stop := s.OnUpdate(nil)
	stop()

	if s.Len() != 0 {
		t.Errorf("expected 0 listeners, got %d", s.Len())
	}
	s.Set(1) // must not panic
}

func TestStoreUpdateIsAtomic(t *testing.T) {
	s := New(0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Update(func(n int) int { return n + 1 })
			}
		}()
	}
	wg.Wait()

	if got := s.Get(); got != 1000 {
		t.Errorf("expected 1000, got %d", got)
	}
}

func TestStoreConcurrentSubscribeAndSet(t *testing.T) {
	s := New(0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			stop := s.OnUpdate(func(next, prev int) {})
			stop()
		}()
		go func() {
			defer wg.Done()
			s.Set(1)
		}()
	}
	wg.Wait()
}

func TestStoreWithStructState(t *testing.T) {
	type state struct {
		Counter int
	}
	s := New(state{Counter: 0})

	var gotPrev, gotNext state
	s.OnUpdate(func(next, prev state) {
		gotNext, gotPrev = next, prev
	})

	got := s.Update(func(st state) state {
		return state{Counter: st.Counter + 1}
	})

	if got.Counter != 1 {
		t.Errorf("expected counter 1, got %d", got.Counter)
	}
	if gotPrev.Counter != 0 || gotNext.Counter != 1 {
		t.Errorf("expected (prev=0, next=1), got (prev=%d, next=%d)", gotPrev.Counter, gotNext.Counter)
	}
}

func TestSetterIdentity(t *testing.T) {
	a := New(0)
	b := New(0)

	if a.Setter() != a.Setter() {
		t.Error("expected setters for the same store to be equal")
	}
	if a.Setter() == b.Setter() {
		t.Error("expected setters for different stores to differ")
	}
}

func TestSetterDelegatesToStore(t *testing.T) {
	s := New(1)
	set := s.Setter()

	if got := set.Set(2); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}
	if got := set.Update(func(n int) int { return n * 10 }); got != 20 {
		t.Errorf("expected 20, got %d", got)
	}
	if s.Get() != 20 {
		t.Errorf("expected store state 20, got %d", s.Get())
	}
}

func TestSetterValid(t *testing.T) {
	var zero Setter[int]
	if zero.Valid() {
		t.Error("expected zero Setter to be invalid")
	}
	if !New(0).Setter().Valid() {
		t.Error("expected store-bound Setter to be valid")
	}
}
