package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8700, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Tools.DefaultTimeout())
	assert.Equal(t, 250*time.Millisecond, cfg.Tools.WatchDebounce())
	assert.Equal(t, 5*time.Second, cfg.Tools.HealthCheckTimeout())
	assert.Equal(t, []string{"calculator", "echo", "timezone"}, cfg.Tools.Builtins)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
	assert.NoError(t, cfg.Validate())
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.AuthToken = "super-secret"

	out := cfg.String()
	assert.Contains(t, out, `"auth_token": "***"`)
	assert.NotContains(t, out, "super-secret")
	assert.Equal(t, "super-secret", cfg.Server.AuthToken, "String must not mutate the config")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "invalid port",
		},
		{
			name:    "zero default timeout",
			mutate:  func(c *Config) { c.Tools.DefaultTimeoutMS = 0 },
			wantErr: "tools.default_timeout_ms",
		},
		{
			name:    "watch without dir",
			mutate:  func(c *Config) { c.Tools.Watch = true },
			wantErr: "tools.watch requires tools.dir",
		},
		{
			name:    "bad schedule",
			mutate:  func(c *Config) { c.Tools.HealthCheckSchedule = "every now and then" },
			wantErr: "invalid health check schedule",
		},
		{
			name:    "unknown builtin",
			mutate:  func(c *Config) { c.Tools.Builtins = []string{"weather"} },
			wantErr: "unknown builtin tool",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "invalid log level",
		},
		{
			name: "tracing without service name",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.ServiceName = ""
			},
			wantErr: "tracing.service_name",
		},
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

	t.Run("reports every problem", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Server.Port = -1
		cfg.Logging.Level = "loud"
		errs := NewValidator().ValidateConfig(cfg)
		assert.Len(t, errs, 2)
	})
}
