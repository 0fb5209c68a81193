// Package config loads and validates service configuration from YAML with
// environment variable overrides. Precedence is defaults, then file, then
// environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/skosprobe/errors"
)

// Config is the full service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	NATS    NATSConfig    `yaml:"nats"`
	Probe   ProbeConfig   `yaml:"probe"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig configures the HTTP gateway listener.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// NATSConfig configures the JetStream key-value store. An empty URL runs the
// service on the in-memory store only.
type NATSConfig struct {
	URL    string `yaml:"url"`
	Bucket string `yaml:"bucket"`
}

// ProbeConfig configures the SPARQL probe pipeline.
type ProbeConfig struct {
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	GraphEnumLimit    int           `yaml:"graph_enum_limit"`
	LanguageLimit     int           `yaml:"language_limit"`
	StillRunningAfter time.Duration `yaml:"still_running_after"`

	// Origin is sent with every probe request so cross-origin readability
	// can be verified on behalf of the browser UI. Empty disables the check.
	Origin string `yaml:"origin"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   30 * time.Second,
			AllowedOrigins: []string{"*"},
		},
		NATS: NATSConfig{
			URL:    "",
			Bucket: "skosprobe",
		},
		Probe: ProbeConfig{
			RequestTimeout:    30 * time.Second,
			MaxRetries:        1,
			GraphEnumLimit:    1000,
			LanguageLimit:     50,
			StillRunningAfter: 2 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// SKOSPROBE_* environment overrides, then validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, errors.Wrap(err, "Config", "Load", "read file")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.Wrap(err, "Config", "Load", "parse yaml")
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SKOSPROBE_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SKOSPROBE_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("SKOSPROBE_NATS_BUCKET"); v != "" {
		cfg.NATS.Bucket = v
	}
	if v := os.Getenv("SKOSPROBE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SKOSPROBE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SKOSPROBE_PROBE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Probe.RequestTimeout = d
		}
	}
	if v := os.Getenv("SKOSPROBE_PROBE_ORIGIN"); v != "" {
		cfg.Probe.Origin = v
	}
	if v := os.Getenv("SKOSPROBE_PROBE_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Probe.MaxRetries = n
		}
	}
}

// Validate checks the configuration for usable values.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.Wrap(errors.ErrMissingConfig, "Config", "Validate", "server.addr")
	}
	if c.Probe.RequestTimeout <= 0 {
		return errors.Wrap(errors.ErrInvalidConfig, "Config", "Validate", "probe.request_timeout must be positive")
	}
	if c.Probe.MaxRetries < 0 {
		return errors.Wrap(errors.ErrInvalidConfig, "Config", "Validate", "probe.max_retries must not be negative")
	}
	if c.Probe.GraphEnumLimit <= 0 {
		return errors.Wrap(errors.ErrInvalidConfig, "Config", "Validate", "probe.graph_enum_limit must be positive")
	}
	if c.Probe.LanguageLimit <= 0 {
		return errors.Wrap(errors.ErrInvalidConfig, "Config", "Validate", "probe.language_limit must be positive")
	}
	if c.NATS.URL != "" && c.NATS.Bucket == "" {
		return errors.Wrap(errors.ErrMissingConfig, "Config", "Validate", "nats.bucket")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return errors.Wrap(errors.ErrInvalidConfig, "Config", "Validate",
			fmt.Sprintf("logging.format %q not supported", c.Logging.Format))
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses the configured level name.
func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	switch l.Level {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.Wrap(errors.ErrInvalidConfig, "Config", "SlogLevel",
			fmt.Sprintf("level %q not supported", l.Level))
	}
}

// NewLogger builds the service logger from the logging configuration.
func (l LoggingConfig) NewLogger() *slog.Logger {
	level, err := l.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
