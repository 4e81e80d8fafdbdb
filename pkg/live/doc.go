// Package live serves store-bound components over WebSocket.
//
// Each connection gets a Session: a root component is mounted, its HTML
// is sent in an init frame, and from then on the session's event loop
// turns client events into handler calls and re-renders into fragment
// patches. Sessions implement the host scheduler, so a binding's render
// request wakes the session's loop and the new HTML reaches the
// client, whether the store was written from a handler, another
// session, or a background goroutine.
//
// # Quick Start
//
//	srv := live.New(nil)
//	srv.SetRootComponent(func() host.Component {
//	    return host.FuncComponent(counterView)
//	})
//	log.Fatal(srv.Run())
//
// The server mounts under any router via Handler:
//
//	r := chi.NewRouter()
//	r.Use(middleware.Logger)
//	r.Mount("/", srv.Handler())
//
// # Dispatch Middleware
//
// Middleware wraps every handler dispatch on the session loop, covering
// the handler call, the re-render, and the patch send:
//
//	srv.Use(func(ctx *live.DispatchCtx, next func() error) error {
//	    start := time.Now()
//	    err := next()
//	    log.Printf("%s %s took %s", ctx.Trigger, ctx.Handler, time.Since(start))
//	    return err
//	})
package live
