package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds the complete Rimborsami configuration.
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server"`

	// Profile selects the infrastructure defaults.
	Profile Profile `mapstructure:"profile"`

	// Component configurations
	Repository RepositoryConfig `mapstructure:"repository"`
	Cache      CacheConfig      `mapstructure:"cache"`
	EventBus   EventBusConfig   `mapstructure:"event_bus"`
	Rules      RulesConfig      `mapstructure:"rules"`
	Generator  GeneratorConfig  `mapstructure:"generator"`
	Worker     WorkerConfig     `mapstructure:"worker"`

	// Observability
	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`  // seconds
	WriteTimeout int    `mapstructure:"write_timeout"` // seconds

	// Per-user fixed-window rate limit; zero disables it.
	RateLimit       int           `mapstructure:"rate_limit"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`

	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RulesConfig points at the scoring rule table.
type RulesConfig struct {
	// Path to a YAML rule table. Empty uses the embedded default table.
	Path string `mapstructure:"path"`
}

// GeneratorConfig selects the request-text generator.
type GeneratorConfig struct {
	// Type is "template" or "anthropic"
	Type      string  `mapstructure:"type"`
	APIKey    string  `mapstructure:"api_key"`
	Model     string  `mapstructure:"model"`
	MaxTokens int     `mapstructure:"max_tokens"`
	RPS       float64 `mapstructure:"rps"`
	Burst     int     `mapstructure:"burst"`
}

// WorkerConfig controls the async evaluation worker.
type WorkerConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	WorkerCount int  `mapstructure:"worker_count"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text

	// File, when set, receives logs through a rotating writer.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Profile picks a consistent set of infrastructure defaults.
type Profile string

const (
	// ProfileStandalone is one process on SQLite, the in-memory cache and
	// the channel bus.
	ProfileStandalone Profile = "standalone"

	// ProfileCluster runs API and workers as separate processes sharing
	// PostgreSQL, Redis and NATS.
	ProfileCluster Profile = "cluster"
)

// DefaultConfig returns the standalone profile.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30,
			WriteTimeout:    30,
			RateLimit:       120,
			RateLimitWindow: time.Minute,
			AllowedOrigins:  []string{"*"},
		},
		Profile: ProfileStandalone,
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./rimborsami.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			CatalogTTL:   time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Generator: GeneratorConfig{
			Type:      "template",
			Model:     "claude-haiku-4-5-20251001",
			MaxTokens: 1024,
			RPS:       2,
			Burst:     1,
		},
		Worker: WorkerConfig{
			WorkerCount: 5,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Tracing: TracingConfig{
			ServiceName: "rimborsami",
		},
	}
}

// ClusterConfig returns the cluster profile: DefaultConfig with shared
// infrastructure and the worker enabled.
func ClusterConfig() *Config {
	cfg := DefaultConfig()
	cfg.Profile = ProfileCluster
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "rimborsami",
	}
	cfg.Cache.Type = "redis"
	cfg.Cache.RedisAddr = "localhost:6379"
	cfg.Cache.EnableTwoPhase = true
	cfg.Cache.LocalMaxSize = 1000
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "rimborsami-workers",
	}
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}

// Validate checks every section and returns the first error found.
func (c *Config) Validate() error {
	if c.Profile != ProfileStandalone && c.Profile != ProfileCluster {
		return fmt.Errorf("profile: unsupported value %q", c.Profile)
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Repository.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.EventBus.Validate(); err != nil {
		return err
	}
	if err := c.Generator.Validate(); err != nil {
		return err
	}
	return c.Logging.Validate()
}

// Validate checks the server section.
func (s *ServerConfig) Validate() error {
	if s.Port <= 0 || s.Port > 65535 {
		return fmt.Errorf("server.port: out of range: %d", s.Port)
	}
	if s.RateLimit < 0 {
		return errors.New("server.rate_limit: must not be negative")
	}
	if s.RateLimit > 0 && s.RateLimitWindow <= 0 {
		return errors.New("server.rate_limit_window: must be positive when rate_limit is set")
	}
	return nil
}

// Validate checks the repository section.
func (r *RepositoryConfig) Validate() error {
	switch r.Driver {
	case "sqlite":
		if r.SQLitePath == "" {
			return errors.New("repository.sqlite_path: must be specified")
		}
	case "postgres":
		if r.PostgresHost == "" || r.PostgresDB == "" {
			return errors.New("repository: postgres_host and postgres_db must be specified")
		}
	default:
		return fmt.Errorf("repository.driver: unsupported driver '%s'", r.Driver)
	}
	return nil
}

// Validate checks the cache section.
func (c *CacheConfig) Validate() error {
	switch c.Type {
	case "memory":
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("cache.redis_addr: must be specified")
		}
	default:
		return fmt.Errorf("cache.type: unsupported type '%s'", c.Type)
	}
	if c.CatalogTTL < 0 {
		return errors.New("cache.catalog_ttl: must not be negative")
	}
	return nil
}

// Validate checks the event bus section.
func (e *EventBusConfig) Validate() error {
	switch e.Type {
	case "channel":
	case "nats":
		if e.NATSUrl == "" {
			return errors.New("event_bus.nats_url: must be specified")
		}
	default:
		return fmt.Errorf("event_bus.type: unsupported type '%s'", e.Type)
	}
	return nil
}

// Validate checks the generator section.
func (g *GeneratorConfig) Validate() error {
	switch g.Type {
	case "template":
	case "anthropic":
		if g.APIKey == "" {
			return errors.New("generator.api_key: must be specified for anthropic")
		}
		if g.RPS <= 0 {
			return errors.New("generator.rps: must be positive")
		}
	default:
		return fmt.Errorf("generator.type: unsupported type '%s'", g.Type)
	}
	return nil
}

// Validate checks the logging section. Levels are case-insensitive.
func (l *LoggingConfig) Validate() error {
	valid := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !valid[strings.ToLower(l.Level)] {
		return fmt.Errorf("logging.level: unsupported level '%s'", l.Level)
	}
	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("logging.format: unsupported format '%s'", l.Format)
	}
	return nil
}
