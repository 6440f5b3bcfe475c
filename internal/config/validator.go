package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateHost validates a listen or connect host
func (v *Validator) ValidateHost(host string) error {
	if strings.TrimSpace(host) == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if strings.ContainsAny(host, " /") {
		return fmt.Errorf("invalid host: %q", host)
	}
	return nil
}

// ValidateTimeout validates a client timeout in seconds
func (v *Validator) ValidateTimeout(timeout float64) error {
	if timeout < 0 {
		return fmt.Errorf("timeout must be >= 0, got %g", timeout)
	}
	return nil
}

// ValidateSessionName validates a session name
func (v *Validator) ValidateSessionName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("session name cannot be empty")
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSchedule validates a cron expression or descriptor
func (v *Validator) ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid watchdog schedule %q: %w", schedule, err)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	// Validate server
	if err := v.ValidateHost(cfg.Server.Host); err != nil {
		errors = append(errors, fmt.Errorf("server: %w", err))
	}
	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errors = append(errors, fmt.Errorf("server: %w", err))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errors = append(errors, fmt.Errorf("server.shutdown_timeout must be >= 0"))
	}

	// Validate client
	if err := v.ValidateHost(cfg.Client.Host); err != nil {
		errors = append(errors, fmt.Errorf("client: %w", err))
	}
	if err := v.ValidatePort(cfg.Client.Port); err != nil {
		errors = append(errors, fmt.Errorf("client: %w", err))
	}
	if err := v.ValidateTimeout(cfg.Client.Timeout); err != nil {
		errors = append(errors, fmt.Errorf("client: %w", err))
	}
	if err := v.ValidateSessionName(cfg.Client.Session); err != nil {
		errors = append(errors, fmt.Errorf("client: %w", err))
	}

	// Validate engine
	if cfg.Engine.MinStringLength < 1 {
		errors = append(errors, fmt.Errorf("engine.min_string_length must be >= 1"))
	}
	if cfg.Engine.Stability < 0 {
		errors = append(errors, fmt.Errorf("engine.stability_ms must be >= 0"))
	}
	if cfg.Sandbox.MaxCallStackSize < 0 {
		errors = append(errors, fmt.Errorf("sandbox.max_call_stack_size must be >= 0"))
	}

	// Validate watchdog
	if cfg.Watchdog.Enabled {
		if err := v.ValidateSchedule(cfg.Watchdog.Schedule); err != nil {
			errors = append(errors, err)
		}
		if cfg.Watchdog.WarnAfter < 0 {
			errors = append(errors, fmt.Errorf("watchdog.warn_after must be >= 0"))
		}
	}

	// Validate logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
