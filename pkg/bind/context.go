package bind

import (
	"fmt"

	"github.com/keenstore-dev/keenstore/pkg/host"
	"github.com/keenstore-dev/keenstore/pkg/store"
)

// Provider is anywhere a context store can be installed: a host loop, a
// live session, or an individual instance.
type Provider interface {
	SetValue(key, value any)
}

// storeContextKey gives each StoreContext a distinct identity to key the
// host value tables with.
type storeContextKey struct {
	name string
}

// StoreContext carries a store through the host's value tables so
// components deep in a tree can bind it without it being passed down
// explicitly. Passing the store handle itself is always available and
// has zero indirection; this exists for the case where the store is the
// entire context value.
type StoreContext[T any] struct {
	key *storeContextKey
	def *store.Store[T]
}

// NewStoreContext creates a StoreContext with a default store, used when
// no Provider installed one. The default may be nil, in which case
// binding through an unprovided context is an invalid-store error.
func NewStoreContext[T any](def *store.Store[T]) *StoreContext[T] {
	return &StoreContext[T]{
		key: &storeContextKey{name: "bind.StoreContext"},
		def: def,
	}
}

// Provide installs st as this context's store on the given provider.
// Instances rendered under that provider resolve to st.
func (c *StoreContext[T]) Provide(p Provider, st *store.Store[T]) {
	p.SetValue(c.key, st)
}

// resolve returns the store visible to inst through this context.
func (c *StoreContext[T]) resolve(inst *host.Instance) (*store.Store[T], error) {
	v, ok := inst.Value(c.key)
	if !ok {
		return c.def, nil
	}
	st, ok := v.(*store.Store[T])
	if !ok {
		return nil, fmt.Errorf("%w: context value is %T, not a store", ErrInvalidStore, v)
	}
	return st, nil
}

// UseStoreContext resolves the context to a store handle and binds it,
// with a contract otherwise identical to UseStore: same synchronous read,
// same setter stability, same policy handling, same teardown guarantees.
//
// A nil context, or a context that resolves to no store, panics with
// ErrInvalidStore at bind time.
func UseStoreContext[T any](c *StoreContext[T], policy ...Policy[T]) (T, store.Setter[T]) {
	inst := host.Current()
	if c == nil {
		panic(fmt.Errorf("%w: nil store context", ErrInvalidStore))
	}

	st, err := c.resolve(inst)
	if err != nil {
		panic(err)
	}
	if st == nil {
		panic(fmt.Errorf("%w: store context resolves to no store", ErrInvalidStore))
	}

	return UseStore(st, policy...)
}
