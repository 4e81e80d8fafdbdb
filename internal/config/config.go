package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/keenstore-dev/keenstore/internal/errors"
)

const (
	// ConfigFileName is what Load looks for in the target directory.
	ConfigFileName = "keenstore.json"

	// DefaultAddr is the default listen address for the live server.
	DefaultAddr = ":8080"

	// DefaultMetricsAddr is the default listen address for the metrics
	// listener, used when the metrics section enables a separate port.
	DefaultMetricsAddr = ":9090"

	// DefaultLogLevel is the default slog level name.
	DefaultLogLevel = "info"

	// DefaultLogFormat is the default log output format.
	DefaultLogFormat = "text"
)

// Config represents the complete keenstore.json configuration.
type Config struct {
	// Name is the application name, used as the page title.
	Name string `json:"name,omitempty"`

	// Addr is the listen address for the live server.
	Addr string `json:"addr,omitempty"`

	// MetricsAddr is the listen address for a separate metrics listener.
	// Empty serves /metrics on the main listener instead.
	MetricsAddr string `json:"metricsAddr,omitempty"`

	// LogLevel is the slog level: debug, info, warn, or error.
	LogLevel string `json:"logLevel,omitempty"`

	// LogFormat is the log output format: text or json.
	LogFormat string `json:"logFormat,omitempty"`

	// Live contains WebSocket transport configuration.
	Live LiveConfig `json:"live,omitempty"`

	// configPath remembers where the file came from, for Path and Dir.
	configPath string
}

// LiveConfig contains WebSocket transport settings.
type LiveConfig struct {
	// BasePath is the URL prefix for the live endpoints.
	BasePath string `json:"basePath,omitempty"`

	// Origins lists allowed WebSocket origins in addition to the page's
	// own. Empty keeps the same-origin default.
	Origins []string `json:"origins,omitempty"`

	// ReadBufferSize is the WebSocket read buffer size in bytes.
	ReadBufferSize int `json:"readBufferSize,omitempty"`

	// WriteBufferSize is the WebSocket write buffer size in bytes.
	WriteBufferSize int `json:"writeBufferSize,omitempty"`

	// PingInterval is the server heartbeat interval (e.g., "30s").
	PingInterval string `json:"pingInterval,omitempty"`

	// MaxSessions caps concurrent sessions. Zero means unlimited.
	MaxSessions int `json:"maxSessions,omitempty"`
}

// New returns the built-in defaults, as if an empty file were loaded.
func New() *Config {
	return &Config{
		Name:      "keenstore",
		Addr:      DefaultAddr,
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		Live: LiveConfig{
			BasePath:     "/live",
			PingInterval: "30s",
		},
	}
}

// Load reads keenstore.json out of dir.
// It looks for keenstore.json in the directory.
func Load(dir string) (*Config, error) {
	configPath := filepath.Join(dir, ConfigFileName)
	return LoadFile(configPath)
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New(errors.CategoryConfig, "no "+ConfigFileName+" found").
				WithCode("config_missing").
				WithDetail("No configuration file exists at " + path + ".").
				WithSuggestion("Create " + ConfigFileName + " or pass --config with an explicit path")
		}
		return nil, errors.New(errors.CategoryConfig, "cannot read "+path).
			WithCode("config_read").
			Wrap(err)
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New(errors.CategoryConfig, "cannot parse "+path).
			WithCode("config_parse").
			WithDetail(err.Error()).
			WithSuggestion("Check that " + ConfigFileName + " is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// Path returns the file the config was loaded from, if any.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory the config file sits in.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// applyDefaults backfills anything the file left empty.
func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "keenstore"
	}
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	if c.Live.BasePath == "" {
		c.Live.BasePath = "/live"
	}
	if c.Live.PingInterval == "" {
		c.Live.PingInterval = "30s"
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.Newf(errors.CategoryValidation, "invalid log level %q", c.LogLevel).
			WithCode("config_log_level").
			WithSuggestion("Use one of: debug, info, warn, error")
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return errors.Newf(errors.CategoryValidation, "invalid log format %q", c.LogFormat).
			WithCode("config_log_format").
			WithSuggestion("Use text or json")
	}

	if _, err := time.ParseDuration(c.Live.PingInterval); err != nil {
		return errors.Newf(errors.CategoryValidation, "invalid ping interval %q", c.Live.PingInterval).
			WithCode("config_ping_interval").
			WithSuggestion(`Use a Go duration such as "30s" or "1m"`)
	}

	if c.Live.MaxSessions < 0 {
		return errors.Newf(errors.CategoryValidation, "maxSessions must not be negative, got %d", c.Live.MaxSessions).
			WithCode("config_max_sessions")
	}

	if c.Live.ReadBufferSize < 0 || c.Live.WriteBufferSize < 0 {
		return errors.New(errors.CategoryValidation, "buffer sizes must not be negative").
			WithCode("config_buffers")
	}

	return nil
}

// SlogLevel returns the configured log level as a slog.Level.
// Call Validate first; unknown names fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// PingIntervalDuration returns the heartbeat interval as a duration.
// Call Validate first; unparseable values fall back to 30 seconds.
func (c *Config) PingIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.Live.PingInterval)
	if err != nil {
		return 30 * time.Second
	}
	return d
}
