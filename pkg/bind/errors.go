package bind

import "errors"

// ErrInvalidStore is the panic value when UseStore or UseStoreContext is
// handed something that is not a usable store: a nil store pointer, a nil
// StoreContext, or a context that resolves to no store. The panic happens
// synchronously at bind time, before any subscription is attempted, and
// surfaces through the host's render error boundary.
var ErrInvalidStore = errors.New("bind: invalid store handle")
