package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/markcallen/keylog/internal/keylog"
	"gopkg.in/yaml.v3"
)

// Config is the top-level keylog configuration.
type Config struct {
	Listener    ListenerConfig    `yaml:"listener"`
	Script      ScriptConfig      `yaml:"script"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Store       StoreConfig       `yaml:"store"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ListenerConfig struct {
	Source       string   `yaml:"source"`
	Capacity     int      `yaml:"capacity"`
	Overflow     string   `yaml:"overflow"`
	PollInterval string   `yaml:"poll_interval"`
	AllowKeys    []string `yaml:"allow_keys"`
	DenyKeys     []string `yaml:"deny_keys"`
	MaxKeyLen    int      `yaml:"max_key_len"`
}

type ScriptConfig struct {
	Path string `yaml:"path"`
}

type CalibrationConfig struct {
	Profile  string          `yaml:"profile"`
	Channels []ChannelConfig `yaml:"channels"`
}

// ChannelConfig describes one calibration channel. Low and High are optional
// starting bounds; unset ends span the full [0, Max] range.
type ChannelConfig struct {
	Name string `yaml:"name"`
	Max  int    `yaml:"max"`
	Low  *int   `yaml:"low,omitempty"`
	High *int   `yaml:"high,omitempty"`
}

// Bounds returns the starting bounds with unset ends filled in.
func (c ChannelConfig) Bounds() (low, high int) {
	low, high = 0, c.Max
	if c.Low != nil {
		low = *c.Low
	}
	if c.High != nil {
		high = *c.High
	}
	return low, high
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type LoggingConfig struct {
	Level          string   `yaml:"level"`
	Format         string   `yaml:"format"`
	RedactPatterns []string `yaml:"redact_patterns"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseDuration is a helper that parses a duration string with a fallback.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func applyDefaults(cfg *Config) {
	if cfg.Listener.Source == "" {
		cfg.Listener.Source = "terminal"
	}
	if cfg.Listener.Capacity == 0 {
		cfg.Listener.Capacity = 64
	}
	if cfg.Listener.Overflow == "" {
		cfg.Listener.Overflow = "drop-newest"
	}
	if cfg.Listener.PollInterval == "" {
		cfg.Listener.PollInterval = "50ms"
	}
	if cfg.Listener.MaxKeyLen == 0 {
		cfg.Listener.MaxKeyLen = 32
	}
	if len(cfg.Calibration.Channels) == 0 {
		cfg.Calibration.Channels = []ChannelConfig{
			{Name: "H", Max: 179},
			{Name: "S", Max: 255},
			{Name: "V", Max: 255},
		}
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "bolt"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "keylog.db"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	switch c.Listener.Source {
	case "terminal":
	case "script":
		if c.Script.Path == "" {
			errs = append(errs, errors.New("script.path is required when listener.source is script"))
		}
	default:
		errs = append(errs, fmt.Errorf("listener.source %q must be terminal or script", c.Listener.Source))
	}
	if c.Listener.Capacity < 1 {
		errs = append(errs, fmt.Errorf("listener.capacity must be >= 1, got %d", c.Listener.Capacity))
	}
	if _, err := keylog.ParseOverflowPolicy(c.Listener.Overflow); err != nil {
		errs = append(errs, fmt.Errorf("listener.overflow: %w", err))
	}
	if d, err := time.ParseDuration(c.Listener.PollInterval); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("listener.poll_interval %q must be a positive duration", c.Listener.PollInterval))
	}
	filter := c.Filter()
	if err := filter.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(c.Calibration.Channels) != 3 {
		errs = append(errs, fmt.Errorf("calibration.channels must list 3 channels, got %d", len(c.Calibration.Channels)))
	}
	for i, ch := range c.Calibration.Channels {
		if ch.Max < 1 {
			errs = append(errs, fmt.Errorf("calibration.channels[%d] %q: max must be >= 1, got %d", i, ch.Name, ch.Max))
			continue
		}
		if low, high := ch.Bounds(); low < 0 || high > ch.Max || low >= high {
			errs = append(errs, fmt.Errorf("calibration.channels[%d] %q: bounds [%d, %d] outside 0 <= low < high <= %d",
				i, ch.Name, low, high, ch.Max))
		}
	}
	switch c.Store.Driver {
	case "bolt", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q must be bolt or memory", c.Store.Driver))
	}
	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be json or text", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// Overflow returns the parsed overflow policy.
func (c *Config) Overflow() keylog.OverflowPolicy {
	p, _ := keylog.ParseOverflowPolicy(c.Listener.Overflow)
	return p
}

// PollInterval returns the parsed consumer poll interval.
func (c *Config) PollInterval() time.Duration {
	return ParseDuration(c.Listener.PollInterval, 50*time.Millisecond)
}

// Filter builds the listener key filter.
func (c *Config) Filter() keylog.Filter {
	return keylog.Filter{
		Allow:     c.Listener.AllowKeys,
		Deny:      c.Listener.DenyKeys,
		MaxKeyLen: c.Listener.MaxKeyLen,
	}
}

// NewLogger builds a slog logger from the logging section.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	level, _ := parseLevel(l.Level)
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("logging.level %q: %w", s, err)
	}
	return level, nil
}
