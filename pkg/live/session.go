package live

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/keenstore-dev/keenstore/pkg/host"
)

// Session represents a single WebSocket connection and its mounted
// components. It is the host scheduler for those components: a binding's
// render request wakes the session's event loop, which re-renders dirty
// instances and sends fragment patches.
type Session struct {
	// Identity
	ID        string
	CreatedAt time.Time

	// Connection
	conn       *websocket.Conn
	mu         sync.Mutex // Protects conn writes
	closed     atomic.Bool
	lastActive atomic.Int64 // Unix nanoseconds

	// Sequence number for patch frames
	sendSeq atomic.Uint64

	// Mounted root components, in mount order
	roots  []*host.Instance
	rootMu sync.RWMutex

	// Channels
	events     chan *clientFrame // Incoming events
	renderCh   chan struct{}     // Signal for re-render
	dispatchCh chan func()       // Functions to run on the event loop
	done       chan struct{}     // Shutdown signal

	started     atomic.Bool
	disposeOnce sync.Once
	closeHook   func(*Session)

	// Dispatch middleware, outermost first
	middleware []Middleware

	// Configuration
	config *SessionConfig

	// Logger
	logger *slog.Logger

	// Session-scoped context values (host.Environ)
	values   map[any]any
	valuesMu sync.RWMutex

	// Metrics
	eventCount atomic.Uint64
	patchCount atomic.Uint64
	bytesSent  atomic.Uint64
	bytesRecv  atomic.Uint64
}

// generateSessionID returns 128 bits of hex. Session IDs are bearer
// tokens on the wire, so a broken entropy source is fatal, never
// silently degraded.
func generateSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

// newSession wraps an upgraded connection. The caller mounts roots and
// calls Start.
func newSession(conn *websocket.Conn, config *SessionConfig, mws []Middleware, logger *slog.Logger) *Session {
	now := time.Now()
	id := generateSessionID()

	s := &Session{
		ID:         id,
		CreatedAt:  now,
		conn:       conn,
		events:     make(chan *clientFrame, config.MaxEventQueue),
		renderCh:   make(chan struct{}, 1),
		dispatchCh: make(chan func(), config.MaxEventQueue),
		done:       make(chan struct{}),
		middleware: mws,
		config:     config,
		logger:     logger.With("session_id", id),
		values:     make(map[any]any),
	}
	s.lastActive.Store(now.UnixNano())
	return s
}

// LastActive reports when the session last saw client traffic.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// IsClosed reports whether the session has shut down.
func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Logger returns the session's logger.
func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// =============================================================================
// Scheduler and Environ
// =============================================================================

// ScheduleRender wakes the event loop for a render pass. Implements
// host.Scheduler; safe from any goroutine, which is how store updates
// made outside this session still reach its client.
func (s *Session) ScheduleRender(_ *host.Instance) {
	if s.closed.Load() {
		return
	}
	select {
	case s.renderCh <- struct{}{}:
	default:
		// A render signal is already pending.
	}
}

// Value looks up a session-scoped context value. Implements host.Environ.
func (s *Session) Value(key any) (any, bool) {
	s.valuesMu.RLock()
	defer s.valuesMu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// SetValue stores a session-scoped context value, visible to every
// instance mounted on this session.
func (s *Session) SetValue(key, value any) {
	s.valuesMu.Lock()
	defer s.valuesMu.Unlock()
	s.values[key] = value
}

// =============================================================================
// Mounting
// =============================================================================

// Mount mounts a component on this session and renders it once. The
// fragment reaches the client with the next init or patch frame.
func (s *Session) Mount(comp host.Component) (*host.Instance, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}

	inst := host.NewInstance(comp, s)
	if _, err := host.RenderInstance(inst); err != nil {
		inst.Dispose()
		return nil, err
	}

	s.rootMu.Lock()
	s.roots = append(s.roots, inst)
	s.rootMu.Unlock()
	return inst, nil
}

// Roots returns the session's mounted root instances in mount order.
func (s *Session) Roots() []*host.Instance {
	s.rootMu.RLock()
	defer s.rootMu.RUnlock()
	out := make([]*host.Instance, len(s.roots))
	copy(out, s.roots)
	return out
}

// instance finds a mounted root by id.
func (s *Session) instance(id string) *host.Instance {
	s.rootMu.RLock()
	defer s.rootMu.RUnlock()
	for _, inst := range s.roots {
		if inst.ID() == id {
			return inst
		}
	}
	return nil
}

// disposeAll tears down every mounted instance, newest first. Disposal
// runs each binding's cleanup, so store subscriptions end here when the
// connection does.
func (s *Session) disposeAll() {
	s.disposeOnce.Do(func() {
		s.rootMu.Lock()
		roots := s.roots
		s.roots = nil
		s.rootMu.Unlock()

		for i := len(roots) - 1; i >= 0; i-- {
			roots[i].Dispose()
		}
	})
}

// =============================================================================
// Dispatch
// =============================================================================

// Dispatch queues fn to run on the session's event loop, followed by a
// render pass for anything it dirtied. Returns ErrSessionClosed if the
// session is shutting down.
func (s *Session) Dispatch(fn func()) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	select {
	case s.dispatchCh <- fn:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// handleEvent processes a single event frame from the client.
func (s *Session) handleEvent(f *clientFrame) {
	s.eventCount.Add(1)
	s.touch()

	inst := s.instance(f.I)
	if inst == nil {
		s.logger.Warn("event for unknown instance", "instance", f.I, "token", f.H)
		s.sendError(errCodeUnknownInstance, "Unknown instance: "+f.I)
		return
	}

	name, fn, ok := inst.Handler(f.H)

	ctx := &DispatchCtx{
		Session:       s,
		Instance:      inst,
		Trigger:       TriggerEvent,
		Handler:       name,
		patchesBefore: s.patchCount.Load(),
	}

	err := chain(s.middleware, ctx, func() error {
		if !ok {
			return fmt.Errorf("%w: %q on %s", host.ErrHandlerNotFound, f.H, inst.ID())
		}
		if err := s.safeExecute(fn); err != nil {
			return err
		}
		s.renderDirty()
		return nil
	})
	if err != nil {
		s.reportDispatchError(err, f)
	}
}

// executeDispatch runs a function queued via Dispatch, with the same
// middleware chain and render pass an event gets.
func (s *Session) executeDispatch(fn func()) {
	ctx := &DispatchCtx{
		Session:       s,
		Trigger:       TriggerDispatch,
		patchesBefore: s.patchCount.Load(),
	}

	err := chain(s.middleware, ctx, func() error {
		if err := s.safeExecute(fn); err != nil {
			return err
		}
		s.renderDirty()
		return nil
	})
	if err != nil {
		s.logger.Error("dispatch failed", "error", err)
	}
}

// safeExecute converts a panicking handler into an error so one bad
// handler cannot take the session loop down.
func (s *Session) safeExecute(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in handler",
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("live: handler panic: %v", r)
		}
	}()

	fn()
	return nil
}

// reportDispatchError logs a failed event dispatch and tells the client.
func (s *Session) reportDispatchError(err error, f *clientFrame) {
	s.logger.Error("event dispatch failed",
		"instance", f.I,
		"token", f.H,
		"error", err)

	if errors.Is(err, host.ErrHandlerNotFound) {
		s.sendError(errCodeHandlerNotFound, "Handler not found: "+f.H)
		return
	}
	s.sendError(errCodeHandlerPanic, "Internal error")
}

// =============================================================================
// Rendering
// =============================================================================

// renderDirty re-renders all dirty instances and sends their fragments
// in one patch frame.
func (s *Session) renderDirty() {
	var frags []Fragment
	for _, inst := range s.Roots() {
		if inst.IsDisposed() || !inst.ConsumeDirty() {
			continue
		}
		html, err := host.RenderInstance(inst)
		if err != nil {
			s.logger.Error("render failed", "instance", inst.ID(), "error", err)
			s.sendError(errCodeRenderFailed, "Render failed")
			continue
		}
		frags = append(frags, Fragment{ID: inst.ID(), HTML: html})
	}

	if len(frags) > 0 {
		sort.Slice(frags, func(i, j int) bool { return frags[i].ID < frags[j].ID })
		s.sendPatches(frags)
	}
}

// =============================================================================
// Outgoing frames
// =============================================================================

// writeFrame serializes and writes one frame under the connection lock.
func (s *Session) writeFrame(f *serverFrame) error {
	data, err := encodeServerFrame(f)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return ErrSessionClosed
	}

	s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	s.bytesSent.Add(uint64(len(data)))
	return nil
}

// sendInit sends the session id and the initial fragments.
func (s *Session) sendInit() error {
	var frags []Fragment
	for _, inst := range s.Roots() {
		frags = append(frags, Fragment{ID: inst.ID(), HTML: inst.LastHTML()})
	}
	return s.writeFrame(&serverFrame{T: frameInit, SID: s.ID, Frags: frags})
}

// sendPatches sends a seq-numbered patch frame.
func (s *Session) sendPatches(frags []Fragment) {
	seq := s.sendSeq.Add(1)
	if err := s.writeFrame(&serverFrame{T: framePatch, Seq: seq, Frags: frags}); err != nil {
		s.logger.Error("frame write failed", "error", err)
		s.Close()
		return
	}
	s.patchCount.Add(uint64(len(frags)))
}

// sendError sends an err frame to the client.
func (s *Session) sendError(code, msg string) {
	if err := s.writeFrame(&serverFrame{T: frameErr, Code: code, Msg: msg}); err != nil {
		s.logger.Debug("error frame not sent", "code", code, "error", err)
	}
}

// sendPong replies to a client ping, echoing its timestamp.
func (s *Session) sendPong(ts int64) {
	if err := s.writeFrame(&serverFrame{T: framePong, TS: ts}); err != nil {
		s.logger.Debug("pong not sent", "error", err)
	}
}

// SendBye tells the client the server is closing the session and why.
// The client does not reconnect after a bye.
func (s *Session) SendBye(reason string) {
	if err := s.writeFrame(&serverFrame{T: frameBye, Reason: reason}); err != nil {
		s.logger.Debug("bye not sent", "error", err)
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

// Close shuts the session down: stops the loops, closes the connection,
// and disposes all mounted instances. Idempotent.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.done)

	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()

	// If the event loop never ran, it cannot dispose for us.
	if !s.started.Load() {
		s.disposeAll()
	}

	if s.closeHook != nil {
		s.closeHook(s)
	}
}

// Stats reports the session's traffic counters.
func (s *Session) Stats() (events, patches, bytesSent, bytesRecv uint64) {
	return s.eventCount.Load(), s.patchCount.Load(), s.bytesSent.Load(), s.bytesRecv.Load()
}
