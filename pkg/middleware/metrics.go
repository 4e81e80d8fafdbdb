package middleware

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/keenstore-dev/keenstore/pkg/host"
	"github.com/keenstore-dev/keenstore/pkg/live"
)

// MetricsConfig shapes what Prometheus() registers and where.
type MetricsConfig struct {
	// Namespace prefixes every metric name. Defaults to "keenstore".
	Namespace string

	// Subsystem slots between namespace and name. Empty by default.
	Subsystem string

	// ConstLabels ride along on every metric.
	ConstLabels prometheus.Labels

	// Buckets for the dispatch duration histogram. Defaults to
	// prometheus.DefBuckets.
	Buckets []float64

	// Registry receives the collectors. Defaults to
	// prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// MetricsOption adjusts MetricsConfig.
type MetricsOption func(*MetricsConfig)

// WithNamespace overrides the metric name prefix.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem inserts a subsystem into metric names.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels attaches fixed labels to every metric.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets replaces the duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry registers the collectors somewhere other than the default
// registerer. Tests use this to get an isolated registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "keenstore",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

type metrics struct {
	dispatchesTotal  *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	dispatchErrors   *prometheus.CounterVec
	patchesSent      prometheus.Counter
	activeSessions   prometheus.Gauge
	storeUpdates     prometheus.Counter
	rendersSkipped   prometheus.Counter
}

// One metrics instance per process. The first Prometheus() call registers
// the collectors; later calls reuse them, since a collector can only be
// registered once per registry.
var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		dispatchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatches_total",
			Help:        "Dispatches run on session loops, by trigger and status",
			ConstLabels: config.ConstLabels,
		}, []string{"trigger", "status"}),

		dispatchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatch_duration_seconds",
			Help:        "Wall time spent per dispatch",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"trigger"}),

		dispatchErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "dispatch_errors_total",
			Help:        "Failed dispatches, by trigger and error class",
			ConstLabels: config.ConstLabels,
		}, []string{"trigger", "error_type"}),

		patchesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "patches_sent_total",
			Help:        "Fragment patches pushed to clients",
			ConstLabels: config.ConstLabels,
		}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Currently connected live sessions",
			ConstLabels: config.ConstLabels,
		}),

		storeUpdates: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "store_updates_total",
			Help:        "Store writes observed via RecordStoreUpdate",
			ConstLabels: config.ConstLabels,
		}),

		rendersSkipped: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "renders_skipped_total",
			Help:        "Store updates a binding policy declined to render",
			ConstLabels: config.ConstLabels,
		}),
	}
}

// Prometheus returns middleware that meters every dispatch on a session
// loop. Dispatch totals and durations carry the trigger as a label and
// errors are counted by class. Pushed patch fragments feed their own
// counter. Session counts arrive through the Record* helpers below
// rather than through the middleware itself.
//
// Example:
//
//	srv := live.New(nil)
//	srv.Use(middleware.Prometheus(
//	    middleware.WithNamespace("acme"),
//	))
//
// See the package documentation for exposing a scrape endpoint.
func Prometheus(opts ...MetricsOption) live.Middleware {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	globalMetricsMu.Lock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	m := globalMetrics
	globalMetricsMu.Unlock()

	return func(ctx *live.DispatchCtx, next func() error) error {
		start := time.Now()

		err := next()

		m.dispatchDuration.WithLabelValues(ctx.Trigger).Observe(time.Since(start).Seconds())

		status := "success"
		if err != nil {
			status = "error"
			m.dispatchErrors.WithLabelValues(ctx.Trigger, categorizeError(err)).Inc()
		}
		m.dispatchesTotal.WithLabelValues(ctx.Trigger, status).Inc()

		// The dispatch context has already counted the fragments this
		// dispatch pushed out.
		if n := ctx.PatchCount(); n > 0 {
			m.patchesSent.Add(float64(n))
		}

		return err
	}
}

// categorizeError folds errors into a handful of label values; raw error
// text would blow up label cardinality.
func categorizeError(err error) string {
	switch {
	case errors.Is(err, host.ErrHandlerNotFound):
		return "handler_not_found"
	case errors.Is(err, live.ErrSessionClosed):
		return "session_closed"
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "panic"):
		return "panic"
	case strings.Contains(msg, "render"):
		return "render"
	case strings.Contains(msg, "timeout"):
		return "timeout"
	default:
		return "internal"
	}
}

// =============================================================================
// Record helpers
// =============================================================================

// RecordSessionOpen bumps the active-session gauge. Wire it to
// ServerConfig.OnSessionOpen. Safe to call before Prometheus(): it no-ops
// until the collectors exist.
func RecordSessionOpen() {
	if globalMetrics != nil {
		globalMetrics.activeSessions.Inc()
	}
}

// RecordSessionClose is RecordSessionOpen's other half, for
// ServerConfig.OnSessionClose.
func RecordSessionClose() {
	if globalMetrics != nil {
		globalMetrics.activeSessions.Dec()
	}
}

// RecordStoreUpdate counts a store write. Call it from a store listener
// to chart write volume next to dispatch volume.
func RecordStoreUpdate() {
	if globalMetrics != nil {
		globalMetrics.storeUpdates.Inc()
	}
}

// RecordRenderSkipped counts a store update that a binding policy
// declined to render.
func RecordRenderSkipped() {
	if globalMetrics != nil {
		globalMetrics.rendersSkipped.Inc()
	}
}
