package host

import "reflect"

// depsEqual reports whether two dependency lists are equal element-wise.
// Length differences always read as changed.
func depsEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !valueEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// valueEqual provides type-appropriate equality for a single dependency.
// Uses == for the common comparable types, identity for pointers, and
// reflect.DeepEqual for the rest.
//
// Pointers compare by identity, never by contents: a dependency on a store
// handle must read as changed when the caller swaps in a different store,
// even if the two stores happen to hold equal state.
func valueEqual(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case int:
		bv, ok := b.(int)
		return ok && av == bv
	case int64:
		bv, ok := b.(int64)
		return ok && av == bv
	case uint64:
		bv, ok := b.(uint64)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	default:
		ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
		if ra.Kind() == reflect.Pointer || rb.Kind() == reflect.Pointer {
			if ra.Kind() != rb.Kind() {
				return false
			}
			return ra.Pointer() == rb.Pointer()
		}
		return reflect.DeepEqual(a, b)
	}
}
