package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 30*time.Second, cfg.Probe.RequestTimeout)
	assert.Equal(t, 1000, cfg.Probe.GraphEnumLimit)
	assert.Equal(t, 50, cfg.Probe.LanguageLimit)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  addr: ":9090"
  allowed_origins: ["http://ui.example.org"]
nats:
  url: "nats://localhost:4222"
  bucket: "probes"
probe:
  request_timeout: 10s
  max_retries: 2
  origin: "http://ui.example.org"
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, []string{"http://ui.example.org"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, "probes", cfg.NATS.Bucket)
	assert.Equal(t, 10*time.Second, cfg.Probe.RequestTimeout)
	assert.Equal(t, 2, cfg.Probe.MaxRetries)
	// Untouched fields keep their defaults.
	assert.Equal(t, 1000, cfg.Probe.GraphEnumLimit)

	level, err := cfg.Logging.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SKOSPROBE_SERVER_ADDR", ":7070")
	t.Setenv("SKOSPROBE_NATS_URL", "nats://env:4222")
	t.Setenv("SKOSPROBE_LOG_LEVEL", "warn")
	t.Setenv("SKOSPROBE_PROBE_TIMEOUT", "5s")
	t.Setenv("SKOSPROBE_PROBE_MAX_RETRIES", "3")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "nats://env:4222", cfg.NATS.URL)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 5*time.Second, cfg.Probe.RequestTimeout)
	assert.Equal(t, 3, cfg.Probe.MaxRetries)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"empty addr", func(c *Config) { c.Server.Addr = "" }, true},
		{"zero timeout", func(c *Config) { c.Probe.RequestTimeout = 0 }, true},
		{"negative retries", func(c *Config) { c.Probe.MaxRetries = -1 }, true},
		{"zero enum limit", func(c *Config) { c.Probe.GraphEnumLimit = 0 }, true},
		{"zero language limit", func(c *Config) { c.Probe.LanguageLimit = 0 }, true},
		{"nats url without bucket", func(c *Config) { c.NATS.URL = "nats://x"; c.NATS.Bucket = "" }, true},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
