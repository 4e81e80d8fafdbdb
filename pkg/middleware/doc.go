// Package middleware provides observability middleware for live servers.
//
// Two middlewares ship here, OpenTelemetry tracing and Prometheus
// metrics. Both wrap dispatches on the session loop and can be stacked
// in either order.
//
// # Tracing
//
// The OpenTelemetry middleware traces every dispatch on a session loop.
// Spans carry the session ID, the trigger, the handler name, and the
// number of fragment patches the dispatch produced.
//
//	srv := live.New(nil)
//	srv.Use(middleware.OpenTelemetry())
//
// Options tune the tracer:
//
//	srv.Use(middleware.OpenTelemetry(
//	    middleware.WithTracerName("checkout"),
//	    middleware.WithDispatchFilter(func(ctx *live.DispatchCtx) bool {
//	        return ctx.Trigger == live.TriggerEvent
//	    }),
//	))
//
// # Metrics
//
// The Prometheus middleware collects metrics about a running server:
//   - keenstore_active_sessions: Current number of active sessions
//   - keenstore_dispatches_total: Total dispatches by trigger and status
//   - keenstore_dispatch_duration_seconds: Dispatch duration histogram
//   - keenstore_patches_sent_total: Total fragment patches sent to clients
//   - keenstore_store_updates_total: Total store writes observed
//   - keenstore_renders_skipped_total: Store updates a policy declined to render
//
//	srv := live.New(nil)
//	srv.Use(middleware.Prometheus())
//
// Collectors register on the default registry, so a scrape endpoint is
// just promhttp on whatever listener your admin traffic uses:
//
//	admin := http.NewServeMux()
//	admin.Handle("/metrics", promhttp.Handler())
//	go http.ListenAndServe(":9090", admin)
//
// The active-session gauge rides the server's session hooks:
//
//	cfg := live.DefaultServerConfig()
//	cfg.OnSessionOpen = func(*live.Session) { middleware.RecordSessionOpen() }
//	cfg.OnSessionClose = func(*live.Session) { middleware.RecordSessionClose() }
//
// # Context Propagation
//
// The OpenTelemetry middleware injects the span context into the
// dispatch, so downstream calls made inside a handler inherit the trace:
//
//	srv.Use(func(ctx *live.DispatchCtx, next func() error) error {
//	    req, _ := http.NewRequestWithContext(ctx.Context(), "GET", url, nil)
//	    // ...
//	    return next()
//	})
package middleware
