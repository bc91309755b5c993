package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blxfer/internal/device"
	goble "github.com/srg/blxfer/internal/device/go-ble"
	"github.com/srg/blxfer/internal/session"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel string `yaml:"log_level" default:"info"`

	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	ReadTimeout    time.Duration `yaml:"read_timeout" default:"2s"`
	WriteTimeout   time.Duration `yaml:"write_timeout" default:"60s"`

	// WriteWithoutResponse selects unacknowledged writes for the transfer script
	WriteWithoutResponse bool          `yaml:"write_without_response" default:"false"`
	WriteChunkSize       int           `yaml:"write_chunk_size" default:"20"`
	WriteChunkDelay      time.Duration `yaml:"write_chunk_delay" default:"10ms"`

	EventBuffer          int    `yaml:"event_buffer" default:"64"`
	EventTimestampFormat string `yaml:"event_timestamp_format" default:"15:04:05.000"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	for name, d := range map[string]time.Duration{
		"connect_timeout": c.ConnectTimeout,
		"read_timeout":    c.ReadTimeout,
		"write_timeout":   c.WriteTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", name, d)
		}
	}
	if c.WriteChunkSize <= 0 {
		return fmt.Errorf("write_chunk_size must be positive, got %d", c.WriteChunkSize)
	}
	if c.WriteChunkDelay < 0 {
		return fmt.Errorf("write_chunk_delay must not be negative, got %v", c.WriteChunkDelay)
	}
	if c.EventBuffer <= 0 {
		return fmt.Errorf("event_buffer must be positive, got %d", c.EventBuffer)
	}
	return nil
}

// Level returns the parsed log level, falling back to info
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}

// SessionOptions maps the config onto session options
func (c *Config) SessionOptions() session.Options {
	mode := device.WriteWithResponse
	if c.WriteWithoutResponse {
		mode = device.WriteWithoutResponse
	}
	return session.Options{
		ConnectTimeout: c.ConnectTimeout,
		ReadTimeout:    c.ReadTimeout,
		WriteTimeout:   c.WriteTimeout,
		EventBuffer:    c.EventBuffer,
		WriteMode:      mode,
	}
}

// PeripheralOptions maps the config onto go-ble adapter options
func (c *Config) PeripheralOptions() goble.PeripheralOptions {
	return goble.PeripheralOptions{
		WriteChunkSize:  c.WriteChunkSize,
		WriteChunkDelay: c.WriteChunkDelay,
	}
}
