package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 18812, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:18812", cfg.ClientEndpoint())
	assert.Equal(t, time.Hour, cfg.ClientTimeout())
	assert.Equal(t, "default", cfg.Client.Session)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 4, cfg.Engine.MinStringLength)
	assert.Equal(t, 200*time.Millisecond, cfg.StabilityThreshold())
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout())
	assert.Equal(t, 5*time.Minute, cfg.WarnAfter())
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{"bad server port", func(c *Config) { c.Server.Port = 0 }, "server: port must be between"},
		{"bad client port", func(c *Config) { c.Client.Port = 70000 }, "client: port must be between"},
		{"empty host", func(c *Config) { c.Server.Host = " " }, "host cannot be empty"},
		{"negative timeout", func(c *Config) { c.Client.Timeout = -1 }, "timeout must be >= 0"},
		{"empty session", func(c *Config) { c.Client.Session = "" }, "session name cannot be empty"},
		{"bad schedule", func(c *Config) { c.Watchdog.Schedule = "whenever" }, "invalid watchdog schedule"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "invalid log level"},
		{"bad string length", func(c *Config) { c.Engine.MinStringLength = 0 }, "min_string_length"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("disabled watchdog skips schedule", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Watchdog.Enabled = false
		cfg.Watchdog.Schedule = "whenever"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("zero timeout disables deadline", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Client.Timeout = 0
		assert.NoError(t, cfg.Validate())
		assert.Equal(t, time.Duration(0), cfg.ClientTimeout())
	})
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		host     string
		port     int
		wantErr  bool
	}{
		{"127.0.0.1:18812", "127.0.0.1", 18812, false},
		{"tcp://example.com:9000", "example.com", 9000, false},
		{":9000", "127.0.0.1", 9000, false},
		{"[::1]:80", "::1", 80, false},
		{"localhost", "", 0, true},
		{"host:http", "", 0, true},
		{"host:0", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			host, port, err := ParseEndpoint(tt.endpoint)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.host, host)
			assert.Equal(t, tt.port, port)
		})
	}
}

func TestConfigString(t *testing.T) {
	s := DefaultConfig().String()
	assert.Contains(t, s, `"port": 18812`)
	assert.Contains(t, s, `"schedule": "@every 30s"`)
}
