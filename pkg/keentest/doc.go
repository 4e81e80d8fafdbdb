// Package keentest provides testing helpers for store-bound components.
//
// The keentest package reduces boilerplate when testing components that
// bind stores: it wraps a host loop, counts committed renders and
// re-render requests per instance, and fires handlers the way a client
// event would.
//
// # Quick Start
//
//	func TestCounter(t *testing.T) {
//	    h := keentest.New(t)
//	    counter := store.New(0)
//
//	    inst := h.Mount(host.FuncComponent(func() string {
//	        n, setN := bind.UseStore(counter)
//	        inc := host.UseHandler("inc", func() {
//	            setN.Update(func(v int) int { return v + 1 })
//	        })
//	        return fmt.Sprintf(`<button data-on-click=%q>%d</button>`, inc, n)
//	    }))
//
//	    h.Fire(inst, "h0")
//	    keentest.ExpectContains(t, inst, ">1<")
//	    h.ExpectRenders(inst, 2)
//	}
//
// # Requests versus Renders
//
// A re-render request is one bump of the instance's render token, the
// thing a binding issues when its policy accepts an update. A render is one
// committed render pass. The loop coalesces: three requests between
// flushes still produce a single render.
//
//	h.ExpectRequests(inst, 3) // every accepted update counted
//	h.ExpectRenders(inst, 2)  // mount + one coalesced re-render
//
// # Render Assertions
//
// Assert on the committed HTML:
//
//	keentest.ExpectHTML(t, inst, "<b>1</b>")
//	keentest.ExpectContains(t, inst, "Welcome")
//	keentest.ExpectNotContains(t, inst, "Error")
package keentest
