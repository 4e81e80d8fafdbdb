package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/keenstore-dev/keenstore/internal/config"
	"github.com/keenstore-dev/keenstore/internal/demo"
	interrors "github.com/keenstore-dev/keenstore/internal/errors"
	"github.com/keenstore-dev/keenstore/pkg/live"
	"github.com/keenstore-dev/keenstore/pkg/middleware"
)

func serveCmd() *cobra.Command {
	var (
		configDir   string
		addr        string
		metricsAddr string
		logLevel    string
		logFormat   string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the counter demo server",
		Long: `Start the counter demo server.

Serves the shared-counter page, the WebSocket endpoint sessions stream
over, a /healthz probe, and Prometheus metrics. Every dispatch runs
through the Prometheus and OpenTelemetry middleware.

Configuration is read from keenstore.json in the config directory;
flags override it. Without a config file the defaults serve on :8080
with metrics on the same listener.

Examples:
  keenstore serve
  keenstore serve --addr=:3000 --log-format=json
  keenstore serve --metrics-addr=:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configDir, addr, metricsAddr, logLevel, logFormat)
		},
	}

	cmd.Flags().StringVarP(&configDir, "config", "c", ".", "Directory containing "+config.ConfigFileName)
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Separate metrics listen address (default: metrics on the main listener)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "Log format: text or json")

	return cmd
}

func runServe(configDir, addr, metricsAddr, logLevel, logFormat string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		var structured *interrors.Error
		if stderrors.As(err, &structured) && structured.Code == "config_missing" {
			cfg = config.New()
			warn("no %s found, using defaults", config.ConfigFileName)
		} else {
			return err
		}
	}

	if addr != "" {
		cfg.Addr = addr
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := buildLogger(cfg)
	slog.SetDefault(logger)

	liveCfg := live.DefaultServerConfig().
		WithAddress(cfg.Addr).
		WithBasePath(cfg.Live.BasePath).
		WithMaxSessions(cfg.Live.MaxSessions)
	liveCfg.PageTitle = cfg.Name
	liveCfg.CheckOrigin = originCheck(cfg.Live.Origins)
	liveCfg.SessionConfig.HeartbeatInterval = cfg.PingIntervalDuration()
	if cfg.Live.ReadBufferSize > 0 {
		liveCfg.ReadBufferSize = cfg.Live.ReadBufferSize
	}
	if cfg.Live.WriteBufferSize > 0 {
		liveCfg.WriteBufferSize = cfg.Live.WriteBufferSize
	}
	liveCfg.OnSessionOpen = func(sess *live.Session) {
		middleware.RecordSessionOpen()
	}
	liveCfg.OnSessionClose = func(sess *live.Session) {
		middleware.RecordSessionClose()
	}

	app := demo.New()
	defer app.Close()

	srv := app.Server(liveCfg)
	srv.Use(middleware.Prometheus())
	srv.Use(middleware.OpenTelemetry())

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Get("/healthz", handleHealthz)
	if cfg.MetricsAddr == "" {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.Mount("/", srv.Handler())

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			logger.Info("metrics listening", "address", cfg.MetricsAddr)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	httpServer := &http.Server{Addr: cfg.Addr, Handler: r}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	printBanner()
	success("serving %s on %s", cfg.Name, displayURL(cfg.Addr))
	if cfg.MetricsAddr != "" {
		info("metrics on %s/metrics", displayURL(cfg.MetricsAddr))
	} else {
		info("metrics on %s/metrics", displayURL(cfg.Addr))
	}
	info("press Ctrl+C to stop")

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			return err
		}
		return nil

	case <-shutdown:
		fmt.Println()
		info("shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), liveCfg.ShutdownTimeout)
		defer cancel()

		// Sessions get a bye frame before their connections close.
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("session shutdown error", "error", err)
		}
		if metricsServer != nil {
			_ = metricsServer.Shutdown(ctx)
		}
		return httpServer.Shutdown(ctx)
	}
}

func buildLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// originCheck builds the WebSocket origin filter: an empty allowlist
// keeps the same-origin default, "*" admits any origin, anything else
// must match an entry exactly.
func originCheck(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return live.SameOriginCheck
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	fmt.Fprintf(w, `{"status":"ok","version":%q}`+"\n", version)
}

// displayURL renders a listen address as something clickable.
func displayURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
