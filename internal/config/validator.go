package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/harun/toolhost/pkg/tools"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidatePort validates a listen port. Zero picks a free port.
func (v *Validator) ValidatePort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 0-65535)", port)
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

// ValidateSchedule validates a health check schedule in cron syntax
func (v *Validator) ValidateSchedule(schedule string) error {
	if schedule == "" {
		return nil // Use default
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid health check schedule %q: %w", schedule, err)
	}
	return nil
}

// ValidateBuiltins rejects unknown and duplicate built-in tool names
func (v *Validator) ValidateBuiltins(names []string) error {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return fmt.Errorf("duplicate builtin tool: %s", name)
		}
		seen[name] = true

		if _, known := tools.Lookup(name); !known {
			return fmt.Errorf("unknown builtin tool: %s (must be one of: %s)", name, strings.Join(tools.Names(), ", "))
		}
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	// Validate server
	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errors = append(errors, fmt.Errorf("server: %w", err))
	}
	if cfg.Server.ReadTimeout < 0 {
		errors = append(errors, fmt.Errorf("server.read_timeout must be >= 0"))
	}
	if cfg.Server.WriteTimeout < 0 {
		errors = append(errors, fmt.Errorf("server.write_timeout must be >= 0"))
	}
	if cfg.Server.RequestsPerMinute < 0 {
		errors = append(errors, fmt.Errorf("server.requests_per_minute must be >= 0"))
	}
	if cfg.Server.MaxConcurrent < 0 {
		errors = append(errors, fmt.Errorf("server.max_concurrent must be >= 0"))
	}

	// Validate tools
	if cfg.Tools.DefaultTimeoutMS <= 0 {
		errors = append(errors, fmt.Errorf("tools.default_timeout_ms must be > 0"))
	}
	if cfg.Tools.LoadConcurrency < 0 {
		errors = append(errors, fmt.Errorf("tools.load_concurrency must be >= 0"))
	}
	if cfg.Tools.WatchDebounceMS < 0 {
		errors = append(errors, fmt.Errorf("tools.watch_debounce_ms must be >= 0"))
	}
	if cfg.Tools.HealthCheckTimeoutMS < 0 {
		errors = append(errors, fmt.Errorf("tools.health_check_timeout_ms must be >= 0"))
	}
	if cfg.Tools.Watch && strings.TrimSpace(cfg.Tools.Dir) == "" {
		errors = append(errors, fmt.Errorf("tools.watch requires tools.dir"))
	}
	if err := v.ValidateSchedule(cfg.Tools.HealthCheckSchedule); err != nil {
		errors = append(errors, err)
	}
	if err := v.ValidateBuiltins(cfg.Tools.Builtins); err != nil {
		errors = append(errors, err)
	}

	// Validate logging
	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	if cfg.Tracing.Enabled && cfg.Tracing.ServiceName == "" {
		errors = append(errors, fmt.Errorf("tracing.service_name is required when tracing is enabled"))
	}

	return errors
}
