package middleware

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keenstore-dev/keenstore/pkg/live"
)

const defaultTracerName = "keenstore"

// OTelConfig shapes the tracing middleware.
type OTelConfig struct {
	// TracerName names the tracer obtained from the global provider.
	// Defaults to "keenstore".
	TracerName string

	// Filter, when set, limits tracing to dispatches it returns true
	// for. Nil traces everything.
	Filter func(ctx *live.DispatchCtx) bool

	// AttributeExtractor contributes extra attributes to each span.
	AttributeExtractor func(ctx *live.DispatchCtx) []attribute.KeyValue

	tracer trace.Tracer
}

// OTelOption adjusts OTelConfig.
type OTelOption func(*OTelConfig)

// WithTracerName overrides the tracer name.
func WithTracerName(name string) OTelOption {
	return func(c *OTelConfig) {
		c.TracerName = name
	}
}

// WithDispatchFilter limits which dispatches get spans.
func WithDispatchFilter(filter func(ctx *live.DispatchCtx) bool) OTelOption {
	return func(c *OTelConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor adds per-dispatch span attributes.
func WithAttributeExtractor(extractor func(ctx *live.DispatchCtx) []attribute.KeyValue) OTelOption {
	return func(c *OTelConfig) {
		c.AttributeExtractor = extractor
	}
}

func defaultOTelConfig() OTelConfig {
	return OTelConfig{TracerName: defaultTracerName}
}

// OpenTelemetry returns middleware that opens a span around each dispatch,
// tagged with the trigger, session, instance, and handler, and closes it
// with the dispatch outcome and patch count. The span context is pushed
// into DispatchCtx.Context so handler code propagates the trace.
//
// Spans come from the global tracer provider; set one with
// otel.SetTracerProvider before the server starts, or leave the no-op
// default and pay nothing.
//
// Example:
//
//	srv := live.New(nil)
//	srv.Use(middleware.OpenTelemetry(
//	    middleware.WithTracerName("checkout"),
//	))
func OpenTelemetry(opts ...OTelOption) live.Middleware {
	config := defaultOTelConfig()
	for _, opt := range opts {
		opt(&config)
	}
	config.tracer = otel.Tracer(config.TracerName)

	return func(ctx *live.DispatchCtx, next func() error) error {
		if config.Filter != nil && !config.Filter(ctx) {
			return next()
		}

		attrs := []attribute.KeyValue{
			attribute.String("keenstore.trigger", ctx.Trigger),
		}
		if ctx.Session != nil {
			attrs = append(attrs, attribute.String("keenstore.session_id", ctx.Session.ID))
		}
		if ctx.Instance != nil {
			attrs = append(attrs, attribute.String("keenstore.instance_id", ctx.Instance.ID()))
		}
		if ctx.Handler != "" {
			attrs = append(attrs, attribute.String("keenstore.handler", ctx.Handler))
		}
		if config.AttributeExtractor != nil {
			attrs = append(attrs, config.AttributeExtractor(ctx)...)
		}

		spanCtx, span := config.tracer.Start(
			ctx.Context(),
			formatSpanName(ctx),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attrs...),
		)
		defer span.End()

		// Handler code and later middleware see the span through the
		// dispatch context.
		ctx.WithContext(spanCtx)
		ctx.SetValue(spanContextKey{}, spanCtx)

		err := next()

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.SetAttributes(attribute.Int("keenstore.patch_count", ctx.PatchCount()))

		return err
	}
}

type spanContextKey struct{}

// SpanFromDispatch hands back the dispatch's span, or nil outside a
// traced dispatch. Handlers use it to annotate the span:
//
//	if span := middleware.SpanFromDispatch(ctx); span != nil {
//	    span.SetAttributes(attribute.Int("my.count", 42))
//	}
func SpanFromDispatch(ctx *live.DispatchCtx) trace.Span {
	if spanCtx, ok := ctx.Value(spanContextKey{}).(context.Context); ok {
		return trace.SpanFromContext(spanCtx)
	}
	return nil
}

// TraceContext returns a context carrying the dispatch's span, suitable
// for outgoing requests to services that continue the trace. Falls back
// to the plain dispatch context when tracing is off.
func TraceContext(ctx *live.DispatchCtx) context.Context {
	if spanCtx, ok := ctx.Value(spanContextKey{}).(context.Context); ok {
		return spanCtx
	}
	return ctx.Context()
}

func formatSpanName(ctx *live.DispatchCtx) string {
	if ctx.Handler != "" {
		return fmt.Sprintf("keenstore.%s %s", ctx.Trigger, ctx.Handler)
	}
	return "keenstore." + ctx.Trigger
}
