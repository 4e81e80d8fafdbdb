package live

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// SessionConfig tunes a single WebSocket session.
type SessionConfig struct {
	// ReadTimeout bounds how long the read loop waits for client traffic
	// before giving up on the connection. Defaults to 60s.
	ReadTimeout time.Duration

	// WriteTimeout bounds each outgoing frame write. Defaults to 10s.
	WriteTimeout time.Duration

	// HeartbeatInterval spaces the server's keepalive pings. Defaults to 30s.
	HeartbeatInterval time.Duration

	// MaxMessageSize caps an incoming frame, in bytes. Defaults to 64KiB.
	MaxMessageSize int64

	// MaxEventQueue sizes the buffer between the read loop and the event
	// loop. Events past it are dropped with an error frame. Defaults to 256.
	MaxEventQueue int
}

// DefaultSessionConfig returns the session tuning used when none is given.
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		MaxMessageSize:    64 * 1024,
		MaxEventQueue:     256,
	}
}

// Clone returns a copy. A nil receiver clones to nil.
func (c *SessionConfig) Clone() *SessionConfig {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}

// ServerConfig tunes the live server.
type ServerConfig struct {
	// Address to listen on when the server runs its own http.Server,
	// ":8080" style. Ignored when the handler is mounted elsewhere.
	Address string

	// BasePath prefixes the page, client script, and WebSocket routes.
	// Defaults to "/live".
	BasePath string

	// PageTitle goes into the <title> of the page shell.
	PageTitle string

	// ReadBufferSize and WriteBufferSize are handed to the WebSocket
	// upgrader. Defaults to 4096 each.
	ReadBufferSize  int
	WriteBufferSize int

	// CheckOrigin decides whether an upgrade request's Origin is
	// acceptable. Defaults to SameOriginCheck.
	CheckOrigin func(r *http.Request) bool

	// SessionConfig applies to every session this server accepts.
	SessionConfig *SessionConfig

	// ShutdownTimeout bounds graceful shutdown. Defaults to 30s.
	ShutdownTimeout time.Duration

	// MaxSessions refuses upgrades past this many concurrent sessions.
	// Zero means unbounded.
	MaxSessions int

	// OnSessionStart runs during the upgrade, before the root component
	// mounts, and is the place to seed the session's value table from the
	// request. Provide stores here so context-bound panels see them in
	// their first render. httpCtx is only valid until the hook returns.
	OnSessionStart func(httpCtx context.Context, session *Session)

	// OnSessionOpen runs once the root is mounted and the session loops
	// are up. Suits metrics counters.
	OnSessionOpen func(session *Session)

	// OnSessionClose runs exactly once as a session tears down.
	OnSessionClose func(session *Session)
}

// DefaultServerConfig returns the server tuning used when none is given.
// Origins are same-origin checked unless CheckOrigin is replaced.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:         ":8080",
		BasePath:        "/live",
		PageTitle:       "keenstore",
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     SameOriginCheck,
		SessionConfig:   DefaultSessionConfig(),
		ShutdownTimeout: 30 * time.Second,
		MaxSessions:     0,
	}
}

// SameOriginCheck admits requests whose Origin host equals the request
// host, and requests that carry no Origin at all (non-browser clients).
func SameOriginCheck(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || r.Host == "" {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// Clone returns a deep copy. A nil receiver clones to nil.
func (c *ServerConfig) Clone() *ServerConfig {
	if c == nil {
		return nil
	}
	clone := *c
	clone.SessionConfig = c.SessionConfig.Clone()
	return &clone
}

// WithAddress sets Address, chainable.
func (c *ServerConfig) WithAddress(addr string) *ServerConfig {
	c.Address = addr
	return c
}

// WithBasePath sets BasePath, chainable.
func (c *ServerConfig) WithBasePath(path string) *ServerConfig {
	c.BasePath = path
	return c
}

// WithSessionConfig sets SessionConfig, chainable.
func (c *ServerConfig) WithSessionConfig(sc *SessionConfig) *ServerConfig {
	c.SessionConfig = sc
	return c
}

// WithMaxSessions sets MaxSessions, chainable.
func (c *ServerConfig) WithMaxSessions(max int) *ServerConfig {
	c.MaxSessions = max
	return c
}
