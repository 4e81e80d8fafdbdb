package live

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/keenstore-dev/keenstore/pkg/host"
)

// Server accepts WebSocket connections and runs one Session per client.
type Server struct {
	// Session registry
	sessions map[string]*Session
	sessMu   sync.RWMutex

	// Root component factory, invoked once per session
	rootComponent func() host.Component

	// Configuration
	config *ServerConfig

	// WebSocket upgrader
	upgrader websocket.Upgrader

	// Dispatch middleware, applied to every session
	middleware []Middleware

	// HTTP server
	httpServer *http.Server

	// Logger
	logger *slog.Logger
}

// New builds a Server. A nil config means all defaults.
func New(config *ServerConfig) *Server {
	if config == nil {
		config = DefaultServerConfig()
	} else {
		// Top up whatever the caller left unset
		defaults := DefaultServerConfig()
		if config.Address == "" {
			config.Address = defaults.Address
		}
		if config.BasePath == "" {
			config.BasePath = defaults.BasePath
		}
		if config.PageTitle == "" {
			config.PageTitle = defaults.PageTitle
		}
		if config.ReadBufferSize == 0 {
			config.ReadBufferSize = defaults.ReadBufferSize
		}
		if config.WriteBufferSize == 0 {
			config.WriteBufferSize = defaults.WriteBufferSize
		}
		if config.CheckOrigin == nil {
			config.CheckOrigin = defaults.CheckOrigin
		}
		if config.SessionConfig == nil {
			config.SessionConfig = defaults.SessionConfig
		}
		if config.ShutdownTimeout == 0 {
			config.ShutdownTimeout = defaults.ShutdownTimeout
		}
	}

	logger := slog.Default().With("component", "live")

	return &Server{
		sessions: make(map[string]*Session),
		config:   config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		logger: logger,
	}
}

// SetRootComponent sets the root component factory. Each new session
// mounts its own instance from this factory.
func (s *Server) SetRootComponent(factory func() host.Component) {
	s.rootComponent = factory
}

// Use adds dispatch middleware to the server. Sessions created after
// this call run the middleware around every dispatch.
func (s *Server) Use(mw Middleware) {
	s.middleware = append(s.middleware, mw)
}

// Config exposes the resolved configuration.
func (s *Server) Config() *ServerConfig {
	return s.config
}

// Logger returns the logger sessions inherit.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// SetLogger replaces the logger. Call before accepting connections.
func (s *Server) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// =============================================================================
// HTTP surface
// =============================================================================

// Handler packages the whole HTTP surface for mounting under an outer
// router.
//
// The handler serves:
//   - GET {BasePath}/ws         → WebSocket upgrade
//   - GET {BasePath}/client.js  → the embedded thin client
//   - GET /                     → the page shell
//
// Example:
//
//	r := chi.NewRouter()
//	r.Get("/healthz", health)
//	r.Mount("/", srv.Handler())
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get(s.config.BasePath+"/ws", s.HandleWebSocket)
	r.Get(s.config.BasePath+"/client.js", s.serveClient)
	r.Get("/", s.servePage)
	return r
}

// pageShell is the minimal page that boots the thin client. The root
// component's HTML arrives over the WebSocket in the init frame.
const pageShell = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
</head>
<body>
<div id="app"></div>
<script>window.__KS_BASE__ = %q;</script>
<script src="%s/client.js" defer></script>
</body>
</html>
`

// servePage serves the page shell.
func (s *Server) servePage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, pageShell,
		html.EscapeString(s.config.PageTitle),
		s.config.BasePath,
		s.config.BasePath)
}

// HandleWebSocket handles WebSocket upgrade and session setup.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(s.config.SessionConfig.MaxMessageSize)

	if s.config.MaxSessions > 0 && s.ActiveSessions() >= s.config.MaxSessions {
		s.logger.Warn("connection rejected", "error", ErrMaxSessionsReached)
		s.refuse(conn, byeReasonServerBusy)
		return
	}

	if s.rootComponent == nil {
		s.logger.Error("connection rejected", "error", ErrNoRootComponent)
		s.refuse(conn, byeReasonMountError)
		return
	}

	session := newSession(conn, s.config.SessionConfig, s.middleware, s.logger)
	session.closeHook = s.onSessionClose
	s.register(session)

	// The context bridge: copy what the session needs out of the HTTP
	// context while it is still alive.
	if s.config.OnSessionStart != nil {
		s.config.OnSessionStart(r.Context(), session)
	}

	if _, err := session.Mount(s.rootComponent()); err != nil {
		s.logger.Error("root mount failed", "session_id", session.ID, "error", err)
		session.SendBye(byeReasonMountError)
		session.Close()
		return
	}

	if err := session.sendInit(); err != nil {
		s.logger.Error("init frame failed", "session_id", session.ID, "error", err)
		session.Close()
		return
	}

	session.Start()

	if s.config.OnSessionOpen != nil {
		s.config.OnSessionOpen(session)
	}

	s.logger.Info("session started", "session_id", session.ID)
}

// refuse sends a bye frame on a connection that never became a session.
func (s *Server) refuse(conn *websocket.Conn, reason string) {
	if data, err := encodeServerFrame(&serverFrame{T: frameBye, Reason: reason}); err == nil {
		conn.WriteMessage(websocket.TextMessage, data)
	}
	conn.Close()
}

// =============================================================================
// Session registry
// =============================================================================

func (s *Server) register(session *Session) {
	s.sessMu.Lock()
	s.sessions[session.ID] = session
	s.sessMu.Unlock()
}

func (s *Server) onSessionClose(session *Session) {
	s.sessMu.Lock()
	delete(s.sessions, session.ID)
	s.sessMu.Unlock()

	if s.config.OnSessionClose != nil {
		s.config.OnSessionClose(session)
	}
	s.logger.Info("session closed", "session_id", session.ID)
}

// ActiveSessions reports how many sessions are currently connected.
func (s *Server) ActiveSessions() int {
	s.sessMu.RLock()
	defer s.sessMu.RUnlock()
	return len(s.sessions)
}

// Sessions returns a snapshot of the connected sessions.
func (s *Server) Sessions() []*Session {
	s.sessMu.RLock()
	defer s.sessMu.RUnlock()
	out := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session)
	}
	return out
}

// =============================================================================
// Lifecycle
// =============================================================================

// Run owns its own http.Server on the configured address and blocks
// until a signal or listener error ends it.
func (s *Server) Run() error {
	s.httpServer = &http.Server{
		Addr:    s.config.Address,
		Handler: s.Handler(),
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "address", s.config.Address)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != http.ErrServerClosed {
			return err
		}
		return nil

	case <-shutdown:
		s.logger.Info("signal received, draining sessions")
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the server: every session gets a bye
// frame before its connection closes.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	for _, session := range s.Sessions() {
		session.SendBye(byeReasonShutdown)
		session.Close()
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("http shutdown failed", "error", err)
			return err
		}
	}

	s.logger.Info("shutdown complete")
	return nil
}
