// Package config loads Rimborsami configuration and builds the process logger.
package config

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rimborsami/rimborsami/internal/domain"
)

// EnvPrefix is the prefix of environment overrides, e.g. RIMBORSAMI_SERVER_PORT.
const EnvPrefix = "RIMBORSAMI"

// Load reads configuration from an optional YAML file and the environment.
// An empty path searches ./rimborsami.yaml; a missing file is not an error
// unless the path was given explicitly.
func Load(path string) (*domain.Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("rimborsami")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("profile", string(domain.ProfileStandalone))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	base := domain.DefaultConfig()
	if domain.Profile(v.GetString("profile")) == domain.ProfileCluster {
		base = domain.ClusterConfig()
	}
	setDefaults(v, base)

	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, eris.Wrap(err, "config: validate")
	}
	return cfg, nil
}

// setDefaults registers every key of base so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, base *domain.Config) {
	v.SetDefault("server.host", base.Server.Host)
	v.SetDefault("server.port", base.Server.Port)
	v.SetDefault("server.read_timeout", base.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", base.Server.WriteTimeout)
	v.SetDefault("server.rate_limit", base.Server.RateLimit)
	v.SetDefault("server.rate_limit_window", base.Server.RateLimitWindow)
	v.SetDefault("server.allowed_origins", base.Server.AllowedOrigins)

	v.SetDefault("repository.driver", base.Repository.Driver)
	v.SetDefault("repository.sqlite_path", base.Repository.SQLitePath)
	v.SetDefault("repository.postgres_host", base.Repository.PostgresHost)
	v.SetDefault("repository.postgres_port", base.Repository.PostgresPort)
	v.SetDefault("repository.postgres_user", base.Repository.PostgresUser)
	v.SetDefault("repository.postgres_password", base.Repository.PostgresPassword)
	v.SetDefault("repository.postgres_db", base.Repository.PostgresDB)
	v.SetDefault("repository.postgres_sslmode", base.Repository.PostgresSSLMode)
	v.SetDefault("repository.max_open_conns", base.Repository.MaxOpenConns)
	v.SetDefault("repository.max_idle_conns", base.Repository.MaxIdleConns)
	v.SetDefault("repository.conn_max_lifetime", base.Repository.ConnMaxLifetime)

	v.SetDefault("cache.type", base.Cache.Type)
	v.SetDefault("cache.local_max_size", base.Cache.LocalMaxSize)
	v.SetDefault("cache.local_ttl", base.Cache.LocalTTL)
	v.SetDefault("cache.redis_addr", base.Cache.RedisAddr)
	v.SetDefault("cache.redis_password", base.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", base.Cache.RedisDB)
	v.SetDefault("cache.enable_two_phase", base.Cache.EnableTwoPhase)
	v.SetDefault("cache.catalog_ttl", base.Cache.CatalogTTL)

	v.SetDefault("event_bus.type", base.EventBus.Type)
	v.SetDefault("event_bus.channel_buffer_size", base.EventBus.ChannelBufferSize)
	v.SetDefault("event_bus.nats_url", base.EventBus.NATSUrl)
	v.SetDefault("event_bus.nats_token", base.EventBus.NATSToken)
	v.SetDefault("event_bus.nats_max_reconnects", base.EventBus.NATSMaxReconnects)
	v.SetDefault("event_bus.nats_reconnect_wait", base.EventBus.NATSReconnectWait)
	v.SetDefault("event_bus.nats_queue_group", base.EventBus.NATSQueueGroup)

	v.SetDefault("rules.path", base.Rules.Path)

	v.SetDefault("generator.type", base.Generator.Type)
	v.SetDefault("generator.api_key", base.Generator.APIKey)
	v.SetDefault("generator.model", base.Generator.Model)
	v.SetDefault("generator.max_tokens", base.Generator.MaxTokens)
	v.SetDefault("generator.rps", base.Generator.RPS)
	v.SetDefault("generator.burst", base.Generator.Burst)

	v.SetDefault("worker.enabled", base.Worker.Enabled)
	v.SetDefault("worker.worker_count", base.Worker.WorkerCount)

	v.SetDefault("logging.level", base.Logging.Level)
	v.SetDefault("logging.format", base.Logging.Format)
	v.SetDefault("logging.file", base.Logging.File)
	v.SetDefault("logging.max_size_mb", base.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", base.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", base.Logging.MaxAgeDays)

	v.SetDefault("tracing.enabled", base.Tracing.Enabled)
	v.SetDefault("tracing.service_name", base.Tracing.ServiceName)
}

// NewLogger builds the process logger. When cfg.File is set, records go to
// stdout and to a lumberjack-rotated file; the returned closer releases it.
func NewLogger(cfg domain.LoggingConfig) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotating)
		closer = rotating
	}

	return slog.New(newHandler(out, cfg.Format, level)), closer, nil
}

func newHandler(out io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "text" {
		return slog.NewTextHandler(out, opts)
	}
	return slog.NewJSONHandler(out, opts)
}

// ParseLevel maps debug, info, warn/warning and error (any case) to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, eris.Errorf("config: unknown log level %q", s)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
