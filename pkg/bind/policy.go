package bind

// Policy decides whether a store update re-renders the bound component.
// The three implementations mirror the boolean-or-predicate shape of the
// original contract: Always (true), Never (false), and When (a predicate
// over the update's next and previous state).
//
// Policies are compared by identity when the binding decides whether to
// re-subscribe. Always and Never are stateless values that always compare
// equal to themselves; each When call produces a distinct identity.
type Policy[T any] interface {
	// subscribe reports whether the binding should hold a subscription
	// at all. Never returns false; everything else true.
	subscribe() bool

	// shouldRender decides, per update, whether to request a re-render.
	shouldRender(next, prev T) bool
}

type alwaysPolicy[T any] struct{}

func (alwaysPolicy[T]) subscribe() bool                { return true }
func (alwaysPolicy[T]) shouldRender(next, prev T) bool { return true }

type neverPolicy[T any] struct{}

func (neverPolicy[T]) subscribe() bool                { return false }
func (neverPolicy[T]) shouldRender(next, prev T) bool { return false }

type predicatePolicy[T any] struct {
	fn func(next, prev T) bool
}

func (p *predicatePolicy[T]) subscribe() bool { return true }

func (p *predicatePolicy[T]) shouldRender(next, prev T) bool {
	return p.fn(next, prev)
}

// Always re-renders on every store update. This is the default policy.
func Always[T any]() Policy[T] {
	return alwaysPolicy[T]{}
}

// Never keeps the binding read-only: state is still returned on each
// render, but no subscription is held and external updates never trigger
// a re-render.
func Never[T any]() Policy[T] {
	return neverPolicy[T]{}
}

// When re-renders exactly when pred returns true for an update. The
// predicate receives the raw next and previous state as the store
// delivered them. A nil predicate behaves as Never.
//
// Every call returns a new policy identity: building the policy inline in
// a render recreates the binding's subscription on each commit, while a
// policy hoisted to a variable keeps one subscription alive.
func When[T any](pred func(next, prev T) bool) Policy[T] {
	if pred == nil {
		return neverPolicy[T]{}
	}
	return &predicatePolicy[T]{fn: pred}
}
