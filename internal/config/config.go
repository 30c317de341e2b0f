package config

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/harun/toolhost/pkg/tools"
)

// Config represents the main toolhost configuration
type Config struct {
	// Server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Tools
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds gateway server configuration
type ServerConfig struct {
	Host              string        `json:"host" mapstructure:"host"`
	Port              int           `json:"port" mapstructure:"port"`
	AuthToken         string        `json:"auth_token" mapstructure:"auth_token"`
	ReadTimeout       time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	RequestsPerMinute int           `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxConcurrent     int           `json:"max_concurrent" mapstructure:"max_concurrent"`
}

// ToolsConfig holds tool loading and execution settings
type ToolsConfig struct {
	// Dir is scanned for plugin tools, one subdirectory per tool.
	Dir                  string   `json:"dir" mapstructure:"dir"`
	DefaultTimeoutMS     int      `json:"default_timeout_ms" mapstructure:"default_timeout_ms"`
	LoadConcurrency      int      `json:"load_concurrency" mapstructure:"load_concurrency"`
	CancelOnTimeout      bool     `json:"cancel_on_timeout" mapstructure:"cancel_on_timeout"`
	Watch                bool     `json:"watch" mapstructure:"watch"`
	WatchDebounceMS      int      `json:"watch_debounce_ms" mapstructure:"watch_debounce_ms"`
	HealthCheckSchedule  string   `json:"health_check_schedule" mapstructure:"health_check_schedule"`
	HealthCheckTimeoutMS int      `json:"health_check_timeout_ms" mapstructure:"health_check_timeout_ms"`
	Builtins             []string `json:"builtins" mapstructure:"builtins"`
}

// DefaultTimeout returns DefaultTimeoutMS as a duration.
func (t ToolsConfig) DefaultTimeout() time.Duration {
	return time.Duration(t.DefaultTimeoutMS) * time.Millisecond
}

// WatchDebounce returns WatchDebounceMS as a duration.
func (t ToolsConfig) WatchDebounce() time.Duration {
	return time.Duration(t.WatchDebounceMS) * time.Millisecond
}

// HealthCheckTimeout returns HealthCheckTimeoutMS as a duration.
func (t ToolsConfig) HealthCheckTimeout() time.Duration {
	return time.Duration(t.HealthCheckTimeoutMS) * time.Millisecond
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	// AuditFile receives one JSON line per execution and reload; empty disables it.
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" mapstructure:"service_name"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              8700,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			RequestsPerMinute: 600,
			MaxConcurrent:     32,
		},
		Tools: ToolsConfig{
			DefaultTimeoutMS:     30000,
			LoadConcurrency:      8,
			Watch:                false,
			WatchDebounceMS:      250,
			HealthCheckSchedule:  "@every 30s",
			HealthCheckTimeoutMS: 5000,
			Builtins:             tools.Names(),
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "toolhost",
		},
	}
}

// String returns a JSON representation of the config with the auth token masked
func (c *Config) String() string {
	masked := *c
	if masked.Server.AuthToken != "" {
		masked.Server.AuthToken = "***"
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	return errors.Join(NewValidator().ValidateConfig(c)...)
}
