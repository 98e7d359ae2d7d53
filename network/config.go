// File: network/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Configuration of the network core. Values are fixed once the Network is
// created.

package network

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/momentics/hioload-net/api"
)

// Config holds parameters immutable per Network.
type Config struct {
	ReadChunkSize        int           `yaml:"read_chunk_size"`        // Bytes read per OnReceivedData call
	ListenBacklog        int           `yaml:"listen_backlog"`         // Backlog passed to listen(2)
	MaxEvents            int           `yaml:"max_events"`             // Events fetched per poll
	PinReactor           bool          `yaml:"pin_reactor"`            // Pin the reactor thread to ReactorCPU
	ReactorCPU           int           `yaml:"reactor_cpu"`            // CPU index used when PinReactor is set
	SeparateIPv4Listener bool          `yaml:"separate_ipv4_listener"` // Listen on v6-only plus a separate IPv4 socket
	NoDelay              bool          `yaml:"no_delay"`               // Set TCP_NODELAY on links
	LookupTimeout        time.Duration `yaml:"lookup_timeout"`         // Upper bound for one DNS lookup
	DNSServers           []string      `yaml:"dns_servers"`            // host:port of resolvers; empty uses the system resolver
	LogLevel             string        `yaml:"log_level"`              // none, debug, info, warn, error
	LogFormat            string        `yaml:"log_format"`             // console or json

	// Logger overrides LogLevel/LogFormat when set.
	Logger *zap.Logger `yaml:"-"`

	// LookupBackend overrides DNSServers and the system resolver when set.
	LookupBackend LookupBackend `yaml:"-"`
}

// DefaultConfig returns default configuration values.
func DefaultConfig() Config {
	return Config{
		ReadChunkSize: 1024,
		ListenBacklog: 128,
		MaxEvents:     128,
		NoDelay:       true,
		LookupTimeout: 10 * time.Second,
		LogLevel:      "none",
		LogFormat:     "console",
	}
}

// LoadConfig reads a YAML file. Environment variables in the file are
// expanded, then defaults are applied to missing fields and the result is
// validated.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.ReadChunkSize == 0 {
		c.ReadChunkSize = def.ReadChunkSize
	}
	if c.ListenBacklog == 0 {
		c.ListenBacklog = def.ListenBacklog
	}
	if c.MaxEvents == 0 {
		c.MaxEvents = def.MaxEvents
	}
	if c.LookupTimeout == 0 {
		c.LookupTimeout = def.LookupTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.LogFormat == "" {
		c.LogFormat = def.LogFormat
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.ReadChunkSize < 1 {
		return fmt.Errorf("read_chunk_size must be positive: %w", api.ErrInvalidArgument)
	}
	if c.ListenBacklog < 1 {
		return fmt.Errorf("listen_backlog must be positive: %w", api.ErrInvalidArgument)
	}
	if c.MaxEvents < 1 {
		return fmt.Errorf("max_events must be positive: %w", api.ErrInvalidArgument)
	}
	if c.ReactorCPU < 0 {
		return fmt.Errorf("reactor_cpu must not be negative: %w", api.ErrInvalidArgument)
	}
	if c.LookupTimeout <= 0 {
		return fmt.Errorf("lookup_timeout must be positive: %w", api.ErrInvalidArgument)
	}
	for _, s := range c.DNSServers {
		if !strings.Contains(s, ":") {
			return fmt.Errorf("dns server %q needs host:port: %w", s, api.ErrInvalidArgument)
		}
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format %q: %w", c.LogFormat, api.ErrInvalidArgument)
	}
	return nil
}

// parseLevel maps a level name; InvalidLevel means logging is disabled.
func parseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(name) {
	case "none", "off":
		return zapcore.InvalidLevel, nil
	}
	lvl, err := zapcore.ParseLevel(name)
	if err != nil {
		return lvl, fmt.Errorf("log_level %q: %w", name, api.ErrInvalidArgument)
	}
	return lvl, nil
}

// buildLogger returns the configured logger, or a no-op one.
func (c *Config) buildLogger() (*zap.Logger, error) {
	if c.Logger != nil {
		return c.Logger, nil
	}
	lvl, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	if lvl == zapcore.InvalidLevel {
		return zap.NewNop(), nil
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.Encoding = c.LogFormat
	if c.LogFormat == "console" {
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	return zc.Build()
}
