// Package store provides the observable state container that the rest of
// the module binds to components.
//
// A Store holds a single value of type T and an ordered registry of update
// listeners. Every write notifies every listener with the new and previous
// state, whether or not the value changed. Filtering is the binding
// layer's job, not the store's:
//
//	counter := store.New(0)
//	stop := counter.OnUpdate(func(next, prev int) {
//	    fmt.Println(prev, "->", next)
//	})
//	counter.Set(5)
//	counter.Update(func(n int) int { return n + 1 })
//	stop()
//
// # Thread Safety
//
// All Store operations are safe for concurrent use. Listeners run
// synchronously on the goroutine that performed the write, outside the
// store's locks, in registration order.
package store
