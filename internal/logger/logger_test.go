package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("console output as JSON", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Config{Level: "info", Console: true, Output: &buf})
		require.NoError(t, err)
		defer l.Close()

		zl := l.Zerolog()
		zl.Info().Str("tool", "echo").Msg("Tool registered")
		zl.Debug().Msg("hidden")

		assert.Contains(t, buf.String(), `"tool":"echo"`)
		assert.Contains(t, buf.String(), `"message":"Tool registered"`)
		assert.NotContains(t, buf.String(), "hidden")
	})

	t.Run("pretty console output", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Config{Level: "info", Console: true, Pretty: true, Output: &buf})
		require.NoError(t, err)
		defer l.Close()

		zl := l.Zerolog()
		zl.Info().Msg("hello")
		assert.Contains(t, buf.String(), "hello")
		assert.NotContains(t, buf.String(), `"message"`)
	})

	t.Run("file output", func(t *testing.T) {
		tmpDir := t.TempDir()
		logFile := filepath.Join(tmpDir, "logs", "toolhost.log")

		l, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)

		zl := l.Zerolog()
		zl.Debug().Msg("test message")
		require.NoError(t, l.Close())

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "test message")
	})

	t.Run("redaction of configured secrets", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Config{
			Level:     "info",
			Console:   true,
			Output:    &buf,
			Redaction: true,
			Secrets:   []string{"gateway-token-123"},
		})
		require.NoError(t, err)
		defer l.Close()

		zl := l.Zerolog()
		zl.Info().Str("header", "Bearer gateway-token-123").Msg("request")
		zl.Info().Msg("token value gateway-token-123 leaked")

		assert.NotContains(t, buf.String(), "gateway-token-123")
		assert.Contains(t, buf.String(), "[REDACTED]")
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		l, err := New(Config{Level: "chatty"})
		require.NoError(t, err)
		defer l.Close()
		assert.Equal(t, zerolog.InfoLevel, l.Zerolog().GetLevel())
	})

	t.Run("installs global logger", func(t *testing.T) {
		l, err := New(Config{Level: "warn"})
		require.NoError(t, err)
		defer l.Close()
		assert.Equal(t, zerolog.WarnLevel, log.Logger.GetLevel())
	})
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Console: true, Output: &buf})
	require.NoError(t, err)
	defer l.Close()

	component := l.Component("executor")
	component.Info().Msg("ready")
	assert.Contains(t, buf.String(), `"component":"executor"`)
}

func TestSetLevel(t *testing.T) {
	l, err := New(Config{Level: "info"})
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.SetLevel("debug"))
	assert.Equal(t, zerolog.DebugLevel, l.Zerolog().GetLevel())

	assert.Error(t, l.SetLevel("bogus"))
	assert.Error(t, l.SetLevel(""))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Pretty)
	assert.True(t, cfg.Redaction)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.Equal(t, 7, cfg.MaxAge)
	assert.True(t, cfg.Compress)
}
