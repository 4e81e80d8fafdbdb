package host

import (
	"runtime"
	"sync"
)

// renderContexts stores the instance currently rendering on each goroutine.
// Using sync.Map for concurrent access: many schedulers render on their own
// goroutines at once.
var renderContexts sync.Map

// goroutineID returns a unique identifier for the current goroutine.
// This parses the goroutine ID out of the runtime stack header.
// Note: this is an implementation detail and is never exposed.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	// The stack starts with "goroutine <id> ".
	var id uint64
	for i := 10; i < n; i++ { // Skip "goroutine "
		if buf[i] == ' ' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

// current returns the instance rendering on this goroutine, or nil.
func current() *Instance {
	if v, ok := renderContexts.Load(goroutineID()); ok {
		return v.(*Instance)
	}
	return nil
}

// withInstance runs fn with inst as the current instance for this
// goroutine, restoring the previous one afterwards. The map entry is
// removed when the outermost render finishes so exited goroutines leave
// nothing behind.
func withInstance(inst *Instance, fn func()) {
	gid := goroutineID()

	var prev *Instance
	if v, ok := renderContexts.Load(gid); ok {
		prev = v.(*Instance)
	}

	renderContexts.Store(gid, inst)
	defer func() {
		if prev != nil {
			renderContexts.Store(gid, prev)
		} else {
			renderContexts.Delete(gid)
		}
	}()

	fn()
}

// Current returns the instance being rendered on this goroutine.
// It panics with ErrNoInstance when called outside a render; hooks are
// only meaningful inside a component's Render.
func Current() *Instance {
	inst := current()
	if inst == nil {
		panic(ErrNoInstance)
	}
	return inst
}
