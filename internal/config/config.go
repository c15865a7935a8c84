// Package config defines process configuration and its loading.
//
// Conventions:
// - New(ctx) builds a Config holding every default.
// - Load(ctx) layers a YAML file and CIVIC_* environment variables on top.
// - The result is validated once and then passed explicitly; nothing else
//   reads the environment.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/okian/civicwatch/internal/domain/model"
	"github.com/okian/civicwatch/internal/domain/rules"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects console or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// MaxConcurrency bounds how many sources are processed at once.
	MaxConcurrency int `koanf:"max_concurrency"`
	// FetchTimeout applies to sources that do not set their own timeout.
	FetchTimeout time.Duration `koanf:"fetch_timeout"`
	// RunInterval is the time between scheduled pipeline runs.
	RunInterval time.Duration `koanf:"run_interval"`
	// UserAgent is sent with every HTTP fetch.
	UserAgent string `koanf:"user_agent"`

	// RulesPath points at a YAML or TOML rule file. Rules lists inline rules;
	// both sources are combined.
	RulesPath string       `koanf:"rules_path"`
	Rules     []rules.Rule `koanf:"rules"`

	Sources []model.SourceConfig `koanf:"sources"`

	// AlertDedupeWindow suppresses repeat (rule, event) alerts inside the
	// window. Zero disables suppression.
	AlertDedupeWindow time.Duration `koanf:"alert_dedupe_window"`
	// AlertDedupeSize caps the in-memory suppression window.
	AlertDedupeSize int `koanf:"alert_dedupe_size"`

	// StoreBackend is memory or postgres.
	StoreBackend string `koanf:"store_backend"`
	// StoreCapacity caps the memory store; zero means unbounded.
	StoreCapacity int    `koanf:"store_capacity"`
	PostgresDSN   string `koanf:"postgres_dsn"`

	// RedisAddr, when set, moves alert suppression into Redis so several
	// processes share one window.
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
}

// New creates a Config holding the defaults. Context is accepted first to
// satisfy the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "console",
		Addr:            ":9080",
		MaxConcurrency:  4,
		FetchTimeout:    30 * time.Second,
		RunInterval:     15 * time.Minute,
		UserAgent:       "civicwatch/1.0",
		AlertDedupeSize: 50_000,
		StoreBackend:    BackendMemory,
	}
}

// Validate checks the loaded configuration. Every error wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.MaxConcurrency < 1 {
		return fmt.Errorf("%w: max_concurrency must be positive, got %d", ErrInvalidConfig, c.MaxConcurrency)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("%w: fetch_timeout must be positive", ErrInvalidConfig)
	}
	if c.RunInterval < 0 || c.AlertDedupeWindow < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	switch c.StoreBackend {
	case BackendMemory:
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: store_backend postgres requires postgres_dsn", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_backend %q", ErrInvalidConfig, c.StoreBackend)
	}

	seen := make(map[string]bool, len(c.Sources))
	for i := range c.Sources {
		s := &c.Sources[i]
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%w: sources[%d]: %w", ErrInvalidConfig, i, err)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate source id %s", ErrInvalidConfig, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// LoadRules returns the inline rules followed by those in RulesPath.
// Individual malformed rules are left for the engine to skip.
func (c *Config) LoadRules() ([]rules.Rule, error) {
	out := append([]rules.Rule(nil), c.Rules...)
	if c.RulesPath == "" {
		return out, nil
	}
	fromFile, err := rules.LoadFile(c.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	return append(out, fromFile...), nil
}
