package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blxfer/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blxfer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
	assert.Equal(t, 2*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.WriteTimeout)
	assert.False(t, cfg.WriteWithoutResponse)
	assert.Equal(t, 20, cfg.WriteChunkSize)
	assert.Equal(t, 10*time.Millisecond, cfg.WriteChunkDelay)
	assert.Equal(t, 64, cfg.EventBuffer)
	assert.Equal(t, "15:04:05.000", cfg.EventTimestampFormat)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
		expected logrus.Level
	}{
		{name: "creates logger with debug level", logLevel: "debug", expected: logrus.DebugLevel},
		{name: "creates logger with info level", logLevel: "info", expected: logrus.InfoLevel},
		{name: "creates logger with warn level", logLevel: "warn", expected: logrus.WarnLevel},
		{name: "creates logger with error level", logLevel: "error", expected: logrus.ErrorLevel},
		{name: "falls back to info on garbage", logLevel: "loud", expected: logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.logLevel}

			logger := cfg.NewLogger()

			assert.NotNil(t, logger)
			assert.Equal(t, tt.expected, logger.GetLevel())

			// Verify formatter is set correctly
			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, `
log_level: debug
read_timeout: 500ms
write_timeout: 1m30s
write_without_response: true
write_chunk_size: 244
`))
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.Equal(t, 500*time.Millisecond, cfg.ReadTimeout)
		assert.Equal(t, 90*time.Second, cfg.WriteTimeout)
		assert.True(t, cfg.WriteWithoutResponse)
		assert.Equal(t, 244, cfg.WriteChunkSize)
		// untouched keys keep their defaults
		assert.Equal(t, 30*time.Second, cfg.ConnectTimeout)
		assert.Equal(t, 10*time.Millisecond, cfg.WriteChunkDelay)
	})

	t.Run("empty file returns defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, ""))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := Load(writeConfig(t, "scan_timeout: 10s\n"))
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := Load(writeConfig(t, "read_timeout: 0s\n"))
		assert.ErrorContains(t, err, "read_timeout")

		_, err = Load(writeConfig(t, "log_level: chatty\n"))
		assert.ErrorContains(t, err, "log_level")

		_, err = Load(writeConfig(t, "write_chunk_size: 0\n"))
		assert.ErrorContains(t, err, "write_chunk_size")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "failed to read config")
	})
}

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WriteWithoutResponse = true
	cfg.ReadTimeout = time.Second

	opts := cfg.SessionOptions()
	assert.Equal(t, time.Second, opts.ReadTimeout)
	assert.Equal(t, 60*time.Second, opts.WriteTimeout)
	assert.Equal(t, 30*time.Second, opts.ConnectTimeout)
	assert.Equal(t, 64, opts.EventBuffer)
	assert.Equal(t, device.WriteWithoutResponse, opts.WriteMode)

	popts := cfg.PeripheralOptions()
	assert.Equal(t, 20, popts.WriteChunkSize)
	assert.Equal(t, 10*time.Millisecond, popts.WriteChunkDelay)
}
