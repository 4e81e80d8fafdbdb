package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

// benchProfile is a named workload shape. Flags override its fields.
type benchProfile struct {
	Name     string
	Clients  int
	Duration time.Duration
	Rate     float64
}

var benchProfiles = map[string]benchProfile{
	"fast": {
		Name:     "fast",
		Clients:  10,
		Duration: 5 * time.Second,
		Rate:     2,
	},
	"standard": {
		Name:     "standard",
		Clients:  50,
		Duration: 15 * time.Second,
		Rate:     5,
	},
	"stress": {
		Name:     "stress",
		Clients:  200,
		Duration: 30 * time.Second,
		Rate:     10,
	},
}

type benchConfig struct {
	Profile      string
	URL          string
	BasePath     string
	Clients      int
	Duration     time.Duration
	Rate         float64
	JSONOutput   string
	EventTimeout time.Duration
}

type benchStats struct {
	connects        atomic.Uint64
	eventsSent      atomic.Uint64
	eventsConfirmed atomic.Uint64
	eventBytes      atomic.Uint64
	patchFrames     atomic.Uint64
	patchFrags      atomic.Uint64
	patchBytes      atomic.Uint64
}

type benchFailures struct {
	dialFailures    atomic.Uint64
	initFailures    atomic.Uint64
	writeFailures   atomic.Uint64
	readFailures    atomic.Uint64
	confirmTimeouts atomic.Uint64
	serverFrames    atomic.Uint64
	total           atomic.Uint64
}

func benchCmd() *cobra.Command {
	var (
		profileName string
		url         string
		basePath    string
		clients     int
		duration    time.Duration
		rate        float64
		jsonOutput  string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Load-test a running keenstore server",
		Long: `Drive a running keenstore server with synthetic WebSocket clients.

Each client connects, waits for its init frame, then clicks the demo's
increment button at the target rate, gating each click on the patch
that shows the counter advancing. All clients share the one counter
store, so the run also exercises cross-session fan-out: every click is
broadcast to every connected client.

Reported RTT is click send to confirming patch. Because clients race
the same counter, a peer's click can confirm a target first; the gate
still bounds pacing the way a waiting user would.

Examples:
  keenstore bench
  keenstore bench --profile=stress
  keenstore bench --url=http://demo.internal:8080 --clients=100 --duration=60s
  keenstore bench --json=result.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveBenchConfig(profileName, url, basePath, clients, duration, rate, jsonOutput)
			if err != nil {
				return err
			}
			return runBench(cfg)
		},
	}

	cmd.Flags().StringVarP(&profileName, "profile", "p", "standard", "Workload profile: fast, standard, stress")
	cmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Base URL of the server under test")
	cmd.Flags().StringVar(&basePath, "base-path", "/live", "Live base path on the server")
	cmd.Flags().IntVarP(&clients, "clients", "n", -1, "Concurrent WebSocket clients (overrides profile)")
	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "Run duration (overrides profile)")
	cmd.Flags().Float64VarP(&rate, "rate", "r", -1, "Target clicks per second per client (overrides profile)")
	cmd.Flags().StringVar(&jsonOutput, "json", "", "Write the JSON report to this path ('-' for stdout)")

	return cmd
}

func resolveBenchConfig(profileName, url, basePath string, clients int, duration time.Duration, rate float64, jsonOutput string) (benchConfig, error) {
	name := strings.ToLower(strings.TrimSpace(profileName))
	base, ok := benchProfiles[name]
	if !ok {
		return benchConfig{}, fmt.Errorf("unknown profile %q (want fast, standard, or stress)", profileName)
	}

	cfg := benchConfig{
		Profile:    base.Name,
		URL:        strings.TrimRight(url, "/"),
		BasePath:   basePath,
		Clients:    base.Clients,
		Duration:   base.Duration,
		Rate:       base.Rate,
		JSONOutput: strings.TrimSpace(jsonOutput),
	}
	if clients != -1 {
		cfg.Clients = clients
	}
	if duration != 0 {
		cfg.Duration = duration
	}
	if rate != -1 {
		cfg.Rate = rate
	}

	if cfg.Clients <= 0 {
		return benchConfig{}, errors.New("--clients must be > 0")
	}
	if cfg.Duration <= 0 {
		return benchConfig{}, errors.New("--duration must be > 0")
	}
	if cfg.Rate <= 0 {
		return benchConfig{}, errors.New("--rate must be > 0")
	}
	if !strings.HasPrefix(cfg.URL, "http://") && !strings.HasPrefix(cfg.URL, "https://") {
		return benchConfig{}, fmt.Errorf("--url must start with http:// or https://, got %q", cfg.URL)
	}

	cfg.EventTimeout = benchEventTimeout(cfg.Rate)
	return cfg, nil
}

// benchEventTimeout bounds how long one click may wait for its patch:
// ten periods, with a floor so slow rates stay responsive to failures.
func benchEventTimeout(rate float64) time.Duration {
	period := time.Duration(float64(time.Second) / rate)
	timeout := period * 10
	if timeout < 2*time.Second {
		timeout = 2 * time.Second
	}
	return timeout
}

func runBench(cfg benchConfig) error {
	wsURL := "ws" + strings.TrimPrefix(cfg.URL, "http") + cfg.BasePath + "/ws"

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	rttCh := make(chan time.Duration, sampleCap(cfg.Clients))
	var collected []time.Duration
	var collectMu sync.Mutex
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for d := range rttCh {
			collectMu.Lock()
			collected = append(collected, d)
			collectMu.Unlock()
		}
	}()

	var stats benchStats
	var fails benchFailures

	info("driving %s with %d clients for %s at %.1f clicks/s each", wsURL, cfg.Clients, cfg.Duration, cfg.Rate)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(cfg.Clients)
	for i := 0; i < cfg.Clients; i++ {
		go func() {
			defer wg.Done()
			if err := runBenchClient(ctx, wsURL, cfg, &stats, &fails, rttCh); err != nil {
				fails.total.Add(1)
			}
		}()
	}

	wg.Wait()
	close(rttCh)
	<-drained

	elapsed := time.Since(start)

	collectMu.Lock()
	latencies := append([]time.Duration(nil), collected...)
	collectMu.Unlock()
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	report := buildBenchReport(cfg, elapsed, latencies, &stats, &fails)
	writeBenchSummary(os.Stderr, report)
	if cfg.JSONOutput != "" {
		if err := writeBenchJSON(cfg.JSONOutput, report); err != nil {
			return fmt.Errorf("write json: %w", err)
		}
	}

	if report.Errors.Total > 0 && report.Throughput.EventsTotal == 0 {
		return errors.New("no events completed; is the server running?")
	}
	return nil
}

func sampleCap(clients int) int {
	buf := clients * 4
	if buf < 1024 {
		buf = 1024
	}
	return buf
}

// benchFrame is the client-side view of the wire.
type benchFrame struct {
	T      string `json:"t"`
	SID    string `json:"sid,omitempty"`
	Seq    uint64 `json:"seq,omitempty"`
	Code   string `json:"code,omitempty"`
	Msg    string `json:"msg,omitempty"`
	Reason string `json:"reason,omitempty"`
	Frags  []struct {
		ID   string `json:"id"`
		HTML string `json:"html"`
	} `json:"frags,omitempty"`
}

// The demo's counter panel registers its decrement handler before its
// increment handler, so the increment token is always h1.
const incrementToken = "h1"

func runBenchClient(
	ctx context.Context,
	wsURL string,
	cfg benchConfig,
	stats *benchStats,
	fails *benchFailures,
	samples chan<- time.Duration,
) error {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fails.dialFailures.Add(1)
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close()
	stats.connects.Add(1)

	counterID, lastSeen, err := readBenchInit(conn, cfg.EventTimeout)
	if err != nil {
		fails.initFailures.Add(1)
		return fmt.Errorf("init: %w", err)
	}

	period := time.Duration(float64(time.Second) / cfg.Rate)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		start := time.Now()
		target := lastSeen + 1

		data, err := json.Marshal(map[string]string{"t": "ev", "i": counterID, "h": incrementToken})
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			fails.writeFailures.Add(1)
			return fmt.Errorf("send click: %w", err)
		}
		stats.eventsSent.Add(1)
		stats.eventBytes.Add(uint64(len(data)))

		seen, err := waitForCounter(ctx, conn, cfg.EventTimeout, counterID, target, stats, fails)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if isBenchTimeout(err) {
				fails.confirmTimeouts.Add(1)
				return fmt.Errorf("counter never reached %d", target)
			}
			return err
		}
		lastSeen = seen

		rtt := time.Since(start)
		stats.eventsConfirmed.Add(1)
		samples <- rtt

		// Best-effort pacing, response-gated so queueing shows up in the
		// tail instead of piling unsent work client-side.
		if sleep := period - time.Since(start); sleep > 0 {
			timer := time.NewTimer(sleep)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
		}
	}
}

// readBenchInit waits for the init frame and locates the counter panel
// by its markup, returning its fragment id and starting value.
func readBenchInit(conn *websocket.Conn, timeout time.Duration) (string, int, error) {
	f, _, err := readBenchFrame(conn, timeout)
	if err != nil {
		return "", 0, err
	}
	if f.T != "init" {
		return "", 0, fmt.Errorf("expected init frame, got %q", f.T)
	}
	for _, frag := range f.Frags {
		if !strings.Contains(frag.HTML, "panel counter") {
			continue
		}
		value, ok := parseCounterValue(frag.HTML)
		if !ok {
			return "", 0, fmt.Errorf("counter panel has no value: %s", frag.HTML)
		}
		return frag.ID, value, nil
	}
	return "", 0, errors.New("init frame has no counter panel; is this the demo server?")
}

// waitForCounter reads frames until a patch shows the counter at or
// past target. Peers racing the same counter can satisfy the target
// first; that still means the store has moved at least as far as this
// client's click asked for.
func waitForCounter(
	ctx context.Context,
	conn *websocket.Conn,
	timeout time.Duration,
	counterID string,
	target int,
	stats *benchStats,
	fails *benchFailures,
) (int, error) {
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		f, size, err := readBenchFrame(conn, timeout)
		if err != nil {
			if !isBenchTimeout(err) {
				fails.readFailures.Add(1)
			}
			return 0, err
		}

		switch f.T {
		case "patch":
			stats.patchFrames.Add(1)
			stats.patchBytes.Add(uint64(size))
			stats.patchFrags.Add(uint64(len(f.Frags)))
			for _, frag := range f.Frags {
				if frag.ID != counterID {
					continue
				}
				if value, ok := parseCounterValue(frag.HTML); ok && value >= target {
					return value, nil
				}
			}

		case "err":
			fails.serverFrames.Add(1)
			return 0, fmt.Errorf("server error frame: %s %s", f.Code, f.Msg)

		case "bye":
			fails.serverFrames.Add(1)
			return 0, fmt.Errorf("server closed the session: %s", f.Reason)

		default:
			// Pongs and future frame types.
		}
	}
}

func readBenchFrame(conn *websocket.Conn, timeout time.Duration) (*benchFrame, int, error) {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, 0, err
	}
	var f benchFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, 0, fmt.Errorf("decode frame: %w", err)
	}
	return &f, len(data), nil
}

// parseCounterValue pulls the integer out of the panel's only
// <strong> element.
func parseCounterValue(html string) (int, bool) {
	open := strings.Index(html, "<strong>")
	if open == -1 {
		return 0, false
	}
	rest := html[open+len("<strong>"):]
	end := strings.Index(rest, "</strong>")
	if end == -1 {
		return 0, false
	}
	value, err := strconv.Atoi(rest[:end])
	if err != nil {
		return 0, false
	}
	return value, true
}

func isBenchTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// =============================================================================
// Report
// =============================================================================

type benchReport struct {
	Version    string              `json:"version"`
	Run        benchRunInfo        `json:"run"`
	Workload   benchWorkloadInfo   `json:"workload"`
	LatencyMS  benchLatencyInfo    `json:"latency_ms"`
	Throughput benchThroughputInfo `json:"throughput"`
	Wire       benchWireInfo       `json:"wire"`
	Errors     benchErrorInfo      `json:"errors"`
}

type benchRunInfo struct {
	Timestamp string `json:"timestamp"`
	Go        string `json:"go"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
	CPUCount  int    `json:"cpu_count"`
}

type benchWorkloadInfo struct {
	Profile       string  `json:"profile"`
	URL           string  `json:"url"`
	Clients       int     `json:"clients"`
	DurationMS    int64   `json:"duration_ms"`
	RatePerClient float64 `json:"rate_per_client"`
}

type benchLatencyInfo struct {
	Min float64 `json:"min"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
	Max float64 `json:"max"`
}

type benchThroughputInfo struct {
	EventsTotal     uint64  `json:"events_total"`
	EventsPerSec    float64 `json:"events_per_sec"`
	EventsPerClient float64 `json:"events_per_sec_per_client"`
}

type benchWireInfo struct {
	Connects        uint64  `json:"connects"`
	EventBytesTotal uint64  `json:"event_bytes_total"`
	PatchBytesTotal uint64  `json:"patch_bytes_total"`
	PatchFrames     uint64  `json:"patch_frames_total"`
	PatchFrags      uint64  `json:"patch_fragments_total"`
	AvgPatchBytes   float64 `json:"avg_patch_bytes"`
	FramesPerEvent  float64 `json:"patch_frames_per_event"`
}

type benchErrorInfo struct {
	Total           uint64 `json:"total"`
	DialFailures    uint64 `json:"dial_failures"`
	InitFailures    uint64 `json:"init_failures"`
	WriteFailures   uint64 `json:"write_failures"`
	ReadFailures    uint64 `json:"read_failures"`
	ConfirmTimeouts uint64 `json:"confirm_timeouts"`
	ServerFrames    uint64 `json:"server_frames"`
}

func buildBenchReport(
	cfg benchConfig,
	elapsed time.Duration,
	latencies []time.Duration,
	stats *benchStats,
	fails *benchFailures,
) benchReport {
	confirmed := stats.eventsConfirmed.Load()
	patchFrames := stats.patchFrames.Load()
	patchBytes := stats.patchBytes.Load()

	secs := elapsed.Seconds()
	if secs <= 0 {
		secs = 0.001
	}
	eventsPerSec := float64(confirmed) / secs

	latency := benchLatencyInfo{}
	if len(latencies) > 0 {
		latency = benchLatencyInfo{
			Min: ms(latencies[0]),
			P50: ms(percentile(latencies, 0.50)),
			P95: ms(percentile(latencies, 0.95)),
			P99: ms(percentile(latencies, 0.99)),
			Max: ms(latencies[len(latencies)-1]),
		}
	}

	avgPatchBytes := 0.0
	if patchFrames > 0 {
		avgPatchBytes = float64(patchBytes) / float64(patchFrames)
	}
	framesPerEvent := 0.0
	if confirmed > 0 {
		framesPerEvent = float64(patchFrames) / float64(confirmed)
	}

	return benchReport{
		Version: "1",
		Run: benchRunInfo{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Go:        runtime.Version(),
			OS:        runtime.GOOS,
			Arch:      runtime.GOARCH,
			CPUCount:  runtime.NumCPU(),
		},
		Workload: benchWorkloadInfo{
			Profile:       cfg.Profile,
			URL:           cfg.URL,
			Clients:       cfg.Clients,
			DurationMS:    cfg.Duration.Milliseconds(),
			RatePerClient: cfg.Rate,
		},
		LatencyMS: latency,
		Throughput: benchThroughputInfo{
			EventsTotal:     confirmed,
			EventsPerSec:    eventsPerSec,
			EventsPerClient: eventsPerSec / float64(cfg.Clients),
		},
		Wire: benchWireInfo{
			Connects:        stats.connects.Load(),
			EventBytesTotal: stats.eventBytes.Load(),
			PatchBytesTotal: patchBytes,
			PatchFrames:     patchFrames,
			PatchFrags:      stats.patchFrags.Load(),
			AvgPatchBytes:   avgPatchBytes,
			FramesPerEvent:  framesPerEvent,
		},
		Errors: benchErrorInfo{
			Total:           fails.total.Load(),
			DialFailures:    fails.dialFailures.Load(),
			InitFailures:    fails.initFailures.Load(),
			WriteFailures:   fails.writeFailures.Load(),
			ReadFailures:    fails.readFailures.Load(),
			ConfirmTimeouts: fails.confirmTimeouts.Load(),
			ServerFrames:    fails.serverFrames.Load(),
		},
	}
}

func writeBenchSummary(w io.Writer, report benchReport) {
	fmt.Fprintln(w, "=== keenstore bench ===")
	fmt.Fprintf(w, "Profile:  %s\n", report.Workload.Profile)
	fmt.Fprintf(w, "Server:   %s\n", report.Workload.URL)
	fmt.Fprintf(w, "Clients:  %d\n", report.Workload.Clients)
	fmt.Fprintf(w, "Duration: %s\n", time.Duration(report.Workload.DurationMS)*time.Millisecond)
	fmt.Fprintf(w, "Rate:     %.2f clicks/s per client\n", report.Workload.RatePerClient)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Clicks confirmed: %d\n", report.Throughput.EventsTotal)
	fmt.Fprintf(w, "Throughput: %.1f clicks/s (%.2f per client)\n", report.Throughput.EventsPerSec, report.Throughput.EventsPerClient)
	fmt.Fprintf(w, "Errors: %d\n", report.Errors.Total)
	fmt.Fprintln(w)

	if report.LatencyMS.Max == 0 {
		fmt.Fprintln(w, "No latency samples collected.")
	} else {
		fmt.Fprintln(w, "RTT, click send to confirming patch:")
		for _, row := range [][2]any{
			{"min", report.LatencyMS.Min},
			{"p50", report.LatencyMS.P50},
			{"p95", report.LatencyMS.P95},
			{"p99", report.LatencyMS.P99},
			{"max", report.LatencyMS.Max},
		} {
			fmt.Fprintf(w, "  %s: %.2f ms\n", row[0], row[1])
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Wire:")
	fmt.Fprintf(w, "  patch frames: %d (%.2f per click)\n", report.Wire.PatchFrames, report.Wire.FramesPerEvent)
	fmt.Fprintf(w, "  patch bytes:  %d (%.1f avg)\n", report.Wire.PatchBytesTotal, report.Wire.AvgPatchBytes)
	fmt.Fprintf(w, "  event bytes:  %d\n", report.Wire.EventBytesTotal)
}

func writeBenchJSON(path string, report benchReport) error {
	var out io.Writer
	if path == "-" {
		out = os.Stdout
	} else {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// percentile is nearest-rank over an ascending slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := int(math.Ceil(p*float64(n))) - 1
	switch {
	case rank < 0:
		rank = 0
	case rank >= n:
		rank = n - 1
	}
	return sorted[rank]
}

func ms(d time.Duration) float64 {
	return d.Seconds() * 1000
}
