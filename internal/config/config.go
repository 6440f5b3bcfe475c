package config

import (
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Default endpoint values
const (
	DefaultHost    = "127.0.0.1"
	DefaultPort    = 18812
	DefaultTimeout = 3600
	DefaultSession = "default"
)

// Config represents the main knife configuration
type Config struct {
	// Server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Client
	Client ClientConfig `json:"client" mapstructure:"client"`

	// Engine
	Engine EngineConfig `json:"engine" mapstructure:"engine"`

	// Sandbox
	Sandbox SandboxConfig `json:"sandbox" mapstructure:"sandbox"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Watchdog
	Watchdog WatchdogConfig `json:"watchdog" mapstructure:"watchdog"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string `json:"host" mapstructure:"host"`
	Port            int    `json:"port" mapstructure:"port"`
	ShutdownTimeout int    `json:"shutdown_timeout" mapstructure:"shutdown_timeout"` // seconds
}

// ClientConfig holds client configuration
type ClientConfig struct {
	Host    string  `json:"host" mapstructure:"host"`
	Port    int     `json:"port" mapstructure:"port"`
	Timeout float64 `json:"timeout" mapstructure:"timeout"` // seconds, 0 disables
	Session string  `json:"session" mapstructure:"session"`
}

// EngineConfig holds analysis engine configuration
type EngineConfig struct {
	WatchDir        string   `json:"watch_dir" mapstructure:"watch_dir"`
	Pinned          []string `json:"pinned" mapstructure:"pinned"`
	MinStringLength int      `json:"min_string_length" mapstructure:"min_string_length"`
	Stability       int      `json:"stability_ms" mapstructure:"stability_ms"`
}

// SandboxConfig holds script interpreter configuration
type SandboxConfig struct {
	MaxCallStackSize int `json:"max_call_stack_size" mapstructure:"max_call_stack_size"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// WatchdogConfig holds long-running request watchdog configuration
type WatchdogConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Schedule  string `json:"schedule" mapstructure:"schedule"`
	WarnAfter int    `json:"warn_after" mapstructure:"warn_after"` // seconds
}

// TracingConfig holds OpenTelemetry configuration
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" mapstructure:"service_name"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ShutdownTimeout: 30,
		},
		Client: ClientConfig{
			Host:    DefaultHost,
			Port:    DefaultPort,
			Timeout: DefaultTimeout,
			Session: DefaultSession,
		},
		Engine: EngineConfig{
			MinStringLength: 4,
			Stability:       200,
			Pinned:          []string{},
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Watchdog: WatchdogConfig{
			Enabled:   true,
			Schedule:  "@every 30s",
			WarnAfter: 300,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "knife",
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if errs := NewValidator().ValidateConfig(c); len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// ServerAddr returns the HOST:PORT the server listens on
func (c *Config) ServerAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// ClientEndpoint returns the HOST:PORT the client connects to
func (c *Config) ClientEndpoint() string {
	return net.JoinHostPort(c.Client.Host, strconv.Itoa(c.Client.Port))
}

// ClientTimeout returns the client timeout (0 = none)
func (c *Config) ClientTimeout() time.Duration {
	if c.Client.Timeout <= 0 {
		return 0
	}
	return time.Duration(c.Client.Timeout * float64(time.Second))
}

// ShutdownTimeout returns the server shutdown timeout
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}

// StabilityThreshold returns the directory watcher debounce interval
func (c *Config) StabilityThreshold() time.Duration {
	return time.Duration(c.Engine.Stability) * time.Millisecond
}

// WarnAfter returns the watchdog warning threshold
func (c *Config) WarnAfter() time.Duration {
	return time.Duration(c.Watchdog.WarnAfter) * time.Second
}

// ParseEndpoint parses HOST:PORT or tcp://HOST:PORT. An empty host selects
// DefaultHost.
func ParseEndpoint(endpoint string) (string, int, error) {
	raw := endpoint
	endpoint = strings.TrimPrefix(strings.TrimSpace(endpoint), "tcp://")

	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return "", 0, fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid endpoint %q: port must be a number", raw)
	}
	if err := NewValidator().ValidatePort(port); err != nil {
		return "", 0, fmt.Errorf("invalid endpoint %q: %w", raw, err)
	}
	if host == "" {
		host = DefaultHost
	}
	return host, port, nil
}
