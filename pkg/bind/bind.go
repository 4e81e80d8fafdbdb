package bind

import (
	"fmt"

	"github.com/keenstore-dev/keenstore/pkg/host"
	"github.com/keenstore-dev/keenstore/pkg/store"
)

// UseStore binds a store to the component instance currently rendering.
//
// It returns the store's state, read synchronously at this call, and the
// store's setter handle. The setter compares equal across renders as long
// as the store handle is unchanged, so it is safe to use as an effect
// dependency.
//
// The binding holds at most one live subscription on the store per
// component instance. The subscription follows the policy (default
// Always): Never holds none, Always re-renders on every update, and When
// re-renders on updates its predicate approves. Whenever the store handle
// or the policy identity differs from the previous render, the old
// subscription is torn down before the new one is registered. On unmount
// the subscription is torn down unconditionally, and a notification
// caught mid-flight cannot re-render the unmounted instance.
//
// A nil store panics with ErrInvalidStore immediately, before any
// subscription is attempted, and surfaces through the host's render
// error boundary. Passing a nil Policy behaves as Never.
func UseStore[T any](st *store.Store[T], policy ...Policy[T]) (T, store.Setter[T]) {
	inst := host.Current()
	if st == nil {
		panic(fmt.Errorf("%w: nil store", ErrInvalidStore))
	}

	pol := Policy[T](alwaysPolicy[T]{})
	if len(policy) > 0 {
		pol = policy[0]
		if pol == nil {
			pol = neverPolicy[T]{}
		}
	}

	state := st.Get()

	host.UseEffect(func() host.Cleanup {
		if !pol.subscribe() {
			return nil
		}
		stop := st.OnUpdate(func(next, prev T) {
			if pol.shouldRender(next, prev) {
				inst.Invalidate()
			}
		})
		return host.Cleanup(stop)
	}, st, pol)

	return state, st.Setter()
}
