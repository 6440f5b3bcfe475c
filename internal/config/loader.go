package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. KNIFE_SERVER_PORT
const EnvPrefix = "KNIFE"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// newViper creates a viper instance seeded with defaults so that
// environment overrides apply even without a config file
func newViper(configPath string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := DefaultConfig()
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.shutdown_timeout", def.Server.ShutdownTimeout)
	v.SetDefault("client.host", def.Client.Host)
	v.SetDefault("client.port", def.Client.Port)
	v.SetDefault("client.timeout", def.Client.Timeout)
	v.SetDefault("client.session", def.Client.Session)
	v.SetDefault("engine.watch_dir", def.Engine.WatchDir)
	v.SetDefault("engine.pinned", def.Engine.Pinned)
	v.SetDefault("engine.min_string_length", def.Engine.MinStringLength)
	v.SetDefault("engine.stability_ms", def.Engine.Stability)
	v.SetDefault("sandbox.max_call_stack_size", def.Sandbox.MaxCallStackSize)
	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.file", def.Logging.File)
	v.SetDefault("logging.max_size", def.Logging.MaxSize)
	v.SetDefault("logging.max_age", def.Logging.MaxAge)
	v.SetDefault("logging.compress", def.Logging.Compress)
	v.SetDefault("logging.pretty", def.Logging.Pretty)
	v.SetDefault("logging.redaction", def.Logging.Redaction)
	v.SetDefault("watchdog.enabled", def.Watchdog.Enabled)
	v.SetDefault("watchdog.schedule", def.Watchdog.Schedule)
	v.SetDefault("watchdog.warn_after", def.Watchdog.WarnAfter)
	v.SetDefault("tracing.enabled", def.Tracing.Enabled)
	v.SetDefault("tracing.service_name", def.Tracing.ServiceName)
	v.SetDefault("data_dir", def.DataDir)
	return v
}

// Load loads the configuration from file and environment. A missing file
// yields the defaults with environment overrides applied.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return nil, fmt.Errorf("failed to get home directory")
	}

	v := newViper(configPath)

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set data directory if not specified
	if cfg.DataDir == "" {
		cfg.DataDir = filepath.Dir(configPath)
	}

	return cfg, nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to get home directory")
	}

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("server", cfg.Server)
	v.Set("client", cfg.Client)
	v.Set("engine", cfg.Engine)
	v.Set("sandbox", cfg.Sandbox)
	v.Set("logging", cfg.Logging)
	v.Set("watchdog", cfg.Watchdog)
	v.Set("tracing", cfg.Tracing)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		// If file doesn't exist, create it
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".knife", "knife.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
