// Package config loads the YAML configuration of the timer binaries.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Framing names accepted by the framing key.
const (
	FramingRaw    = "raw"
	FramingLength = "length"
)

// ServerConfig is the configuration of timer-server.
type ServerConfig struct {
	Server  ListenConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ClientConfig is the configuration of timer-client.
type ClientConfig struct {
	Client SessionConfig `yaml:"client"`
	Log    LogConfig     `yaml:"log"`
}

// ListenConfig is the server socket configuration.
type ListenConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	AcceptTimeout  time.Duration `yaml:"accept_timeout"`
	MaxConnections int           `yaml:"max_connections"`
	Framing        string        `yaml:"framing"`
	ReadBufferSize int           `yaml:"read_buffer_size"`
}

// SessionConfig is the client session configuration.
type SessionConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	NumMsgs        int           `yaml:"num_msgs"`
	Framing        string        `yaml:"framing"`
	ReadBufferSize int           `yaml:"read_buffer_size"`
}

// LogConfig is the logging configuration.
type LogConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json, console
	File       string `yaml:"file"`   // rotated log file, empty disables it
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// MetricsConfig is the metrics/health listener configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DefaultServerConfig returns the server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Server: ListenConfig{
			Host:           "0.0.0.0",
			Port:           47945,
			Timeout:        5 * time.Second,
			AcceptTimeout:  5 * time.Second,
			Framing:        FramingRaw,
			ReadBufferSize: 1024,
		},
		Log: defaultLog("logs/ServerTimer.log"),
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9464",
		},
	}
}

// DefaultClientConfig returns the client defaults.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Client: SessionConfig{
			Host:           "127.0.0.1",
			Port:           47945,
			Timeout:        5 * time.Second,
			Framing:        FramingRaw,
			ReadBufferSize: 1024,
		},
		Log: defaultLog("logs/ClientTimerRequester.log"),
	}
}

func defaultLog(file string) LogConfig {
	return LogConfig{
		Level:      "info",
		Format:     "console",
		File:       file,
		MaxSizeMB:  2,
		MaxBackups: 1,
	}
}

// LoadServerConfig reads path over the defaults. An empty path returns the defaults.
func LoadServerConfig(path string) (*ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadClientConfig reads path over the defaults. An empty path returns the defaults.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(path string, cfg any) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read config")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrapf(err, "parse config %s", path)
	}
	return nil
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if err := validatePort(c.Server.Port); err != nil {
		return err
	}
	if c.Server.Timeout <= 0 || c.Server.AcceptTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("metrics enabled without an address")
	}
	return validateFraming(c.Server.Framing)
}

// Validate checks the client configuration.
func (c *ClientConfig) Validate() error {
	if err := validatePort(c.Client.Port); err != nil {
		return err
	}
	if c.Client.Timeout <= 0 {
		return errors.New("client timeout must be positive")
	}
	if c.Client.NumMsgs < 0 {
		return errors.Errorf("num_msgs must not be negative, got %d", c.Client.NumMsgs)
	}
	return validateFraming(c.Client.Framing)
}

func validatePort(port int) error {
	if port < 0 || port > 65535 {
		return errors.Errorf("invalid port %d", port)
	}
	return nil
}

func validateFraming(framing string) error {
	switch framing {
	case FramingRaw, FramingLength:
		return nil
	default:
		return errors.Errorf("unknown framing %q", framing)
	}
}
