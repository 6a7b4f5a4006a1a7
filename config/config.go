package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"go-midipreset/dispatch"
	"go-midipreset/logging"
)

var ErrInvalid = errors.New("config: invalid")

// StoreKind selects the preset store backend
type StoreKind string

const (
	StoreFile  StoreKind = "file"
	StoreRedis StoreKind = "redis"
)

// LogConfig controls the logger
type LogConfig struct {
	Level string `yaml:"level,omitempty"`
	File  string `yaml:"file,omitempty"`
}

// DispatchConfig controls how messages reach the device
type DispatchConfig struct {
	Connection         string `yaml:"connection,omitempty"`
	SendInterval       string `yaml:"send_interval,omitempty"`
	EnumerationTimeout string `yaml:"enumeration_timeout,omitempty"`
}

// RedisConfig locates the Redis preset store
type RedisConfig struct {
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// StoreConfig selects where presets live
type StoreConfig struct {
	Kind  StoreKind   `yaml:"kind,omitempty"`
	Path  string      `yaml:"path,omitempty"`
	Redis RedisConfig `yaml:"redis,omitempty"`
}

// ServeConfig controls the HTTP collaborator
type ServeConfig struct {
	Addr        string `yaml:"addr,omitempty"`
	MaxInflight int    `yaml:"max_inflight,omitempty"`
}

// ThemeConfig points at an optional GIMP palette for card colours
type ThemeConfig struct {
	Palette string `yaml:"palette,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Device   int            `yaml:"device"`
	Log      LogConfig      `yaml:"log,omitempty"`
	Dispatch DispatchConfig `yaml:"dispatch,omitempty"`
	Store    StoreConfig    `yaml:"store,omitempty"`
	Serve    ServeConfig    `yaml:"serve,omitempty"`
	Theme    ThemeConfig    `yaml:"theme,omitempty"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Dispatch: DispatchConfig{
			Connection:         dispatch.PerMessage.String(),
			EnumerationTimeout: "3s",
		},
		Store: StoreConfig{
			Kind: StoreFile,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "midipreset:",
			},
		},
		Serve: ServeConfig{
			Addr:        "127.0.0.1:8080",
			MaxInflight: 8,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "midipreset"), nil
}

// ConfigPath returns the full path to config.yaml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config at path, or the default location when path is empty.
// A missing file yields Default(). ${VAR} references are expanded before
// parsing, and fields absent from the file keep their defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return Default(), nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to path, creating its directory
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Device < 0 {
		return fmt.Errorf("%w: device %d is negative", ErrInvalid, c.Device)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := c.ConnectionPolicy(); err != nil {
		return err
	}
	if _, err := c.SendInterval(); err != nil {
		return err
	}
	if _, err := c.EnumerationTimeout(); err != nil {
		return err
	}
	switch c.Store.Kind {
	case StoreFile, "":
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("%w: store.redis.addr is required", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store kind %q", ErrInvalid, c.Store.Kind)
	}
	if c.Serve.MaxInflight < 0 {
		return fmt.Errorf("%w: serve.max_inflight %d is negative", ErrInvalid, c.Serve.MaxInflight)
	}
	return nil
}

// ConnectionPolicy parses dispatch.connection.
func (c *Config) ConnectionPolicy() (dispatch.ConnectionPolicy, error) {
	p, err := dispatch.ParseConnectionPolicy(c.Dispatch.Connection)
	if err != nil {
		return p, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return p, nil
}

// SendInterval parses dispatch.send_interval. Empty means no pacing.
func (c *Config) SendInterval() (time.Duration, error) {
	return duration("dispatch.send_interval", c.Dispatch.SendInterval)
}

// EnumerationTimeout parses dispatch.enumeration_timeout. Empty means the
// driver default.
func (c *Config) EnumerationTimeout() (time.Duration, error) {
	return duration("dispatch.enumeration_timeout", c.Dispatch.EnumerationTimeout)
}

// PresetPath returns the file store path, defaulting to presets.yaml in the
// config directory.
func (c *Config) PresetPath() (string, error) {
	if c.Store.Path != "" {
		return c.Store.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "presets.yaml"), nil
}

// LogPath returns the debug log file, or "" when file logging is off.
// A relative name is placed in the config directory.
func (c *Config) LogPath() (string, error) {
	if c.Log.File == "" || filepath.IsAbs(c.Log.File) {
		return c.Log.File, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, c.Log.File), nil
}

func duration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrInvalid, field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %s is negative", ErrInvalid, field)
	}
	return d, nil
}
