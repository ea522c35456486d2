package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr         = ":5000"
	DefaultMaxSessions  = 10
	DefaultIdleTimeout  = 5 * time.Minute
	DefaultTickRate     = 60.0
	DefaultPushRate     = 24.0
	DefaultMinSleep     = time.Millisecond
	DefaultRealtimeRate = 1.0
	DefaultMaxSamples   = 36000
)

// Manual priority variants.
const (
	ManualAdditive  = "additive"
	ManualExclusive = "exclusive"
)

var ErrInvalid = errors.New("config: invalid value")

type Config struct {
	Addr           string        `yaml:"addr"`
	MaxSessions    int           `yaml:"max_sessions"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	TickRate       float64       `yaml:"tick_rate"`
	PushRate       float64       `yaml:"push_rate"`
	MinSleep       time.Duration `yaml:"min_sleep"`
	RealtimeRate   float64       `yaml:"realtime_rate"`
	ManualPriority string        `yaml:"manual_priority"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	VizBaseURL     string        `yaml:"viz_base_url"`
	RecordDir      string        `yaml:"record_dir"`
	MaxSamples     int           `yaml:"max_samples"`
	Log            LogConfig     `yaml:"log"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func DefaultConfig() *Config {
	return &Config{
		Addr:           DefaultAddr,
		MaxSessions:    DefaultMaxSessions,
		IdleTimeout:    DefaultIdleTimeout,
		TickRate:       DefaultTickRate,
		PushRate:       DefaultPushRate,
		MinSleep:       DefaultMinSleep,
		RealtimeRate:   DefaultRealtimeRate,
		ManualPriority: ManualAdditive,
		AllowedOrigins: []string{"*"},
		VizBaseURL:     "http://localhost:7000",
		MaxSamples:     DefaultMaxSamples,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file over the defaults, so a file only needs the keys it
// changes.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	switch {
	case c.MaxSessions <= 0:
		return fmt.Errorf("%w: max_sessions must be positive, got %d", ErrInvalid, c.MaxSessions)
	case c.IdleTimeout <= 0:
		return fmt.Errorf("%w: idle_timeout must be positive, got %s", ErrInvalid, c.IdleTimeout)
	case c.TickRate <= 0:
		return fmt.Errorf("%w: tick_rate must be positive, got %g", ErrInvalid, c.TickRate)
	case c.PushRate <= 0:
		return fmt.Errorf("%w: push_rate must be positive, got %g", ErrInvalid, c.PushRate)
	case c.MinSleep < 0:
		return fmt.Errorf("%w: min_sleep must not be negative, got %s", ErrInvalid, c.MinSleep)
	case c.RealtimeRate <= 0:
		return fmt.Errorf("%w: realtime_rate must be positive, got %g", ErrInvalid, c.RealtimeRate)
	case c.ManualPriority != ManualAdditive && c.ManualPriority != ManualExclusive:
		return fmt.Errorf("%w: manual_priority must be %q or %q, got %q",
			ErrInvalid, ManualAdditive, ManualExclusive, c.ManualPriority)
	case c.MaxSamples <= 0:
		return fmt.Errorf("%w: max_samples must be positive, got %d", ErrInvalid, c.MaxSamples)
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	if f := c.Log.Format; f != "text" && f != "json" {
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalid, f)
	}
	return nil
}

// Period is the session step interval.
func (c *Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.TickRate)
}

func (c *Config) ExclusiveManual() bool {
	return c.ManualPriority == ManualExclusive
}

func (l LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return 0, fmt.Errorf("%w: log.level %q", ErrInvalid, l.Level)
	}
	return lvl, nil
}

// NewLogger builds the process logger described by l.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	lvl, err := l.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
