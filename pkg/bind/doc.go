// Package bind connects observable stores to rendering components: a
// component that binds a store re-renders when the store's state changes
// in a way its policy cares about.
//
// The whole contract is one hook:
//
//	func Counter() string {
//	    count, setCount := bind.UseStore(counterStore)
//	    token := host.UseHandler("increment", func() {
//	        setCount.Update(func(n int) int { return n + 1 })
//	    })
//	    return fmt.Sprintf(`<button data-on-click=%q>%d</button>`, token, count)
//	}
//
// UseStore reads the state synchronously, hands back a stable setter, and
// keeps exactly one live subscription on the store for the lifetime of the
// component instance. The optional policy filters which updates re-render:
//
//	bind.UseStore(s)                          // every update re-renders
//	bind.UseStore(s, bind.Never[int]())       // reads only, never re-renders
//	bind.UseStore(s, bind.When(func(next, prev int) bool {
//	    return next != prev
//	}))
//
// Policies compare by identity. A When built inline gets a fresh identity
// every render, which tears down and recreates the subscription each
// commit. Hoist the policy to a variable when that churn matters.
package bind
