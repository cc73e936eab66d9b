// Package config loads service configuration from an optional YAML file and
// LEDGER_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Lock drivers.
const (
	LockLocal    = "local"
	LockRedis    = "redis"
	LockPostgres = "postgres"
)

// Config is the full service configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Log         LogConfig         `mapstructure:"log"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Postgres    PostgresConfig    `mapstructure:"postgres"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Lock        LockConfig        `mapstructure:"lock"`
	Reservation ReservationConfig `mapstructure:"reservation"`
	Retry       RetryConfig       `mapstructure:"retry"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// Development reports whether the service runs in a development environment.
func (c AppConfig) Development() bool {
	return c.Env == "development"
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

type StorageConfig struct {
	// Driver is memory or postgres.
	Driver string `mapstructure:"driver"`
}

type PostgresConfig struct {
	DSN              string        `mapstructure:"dsn"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	AutoMigrate      bool          `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addrs    []string `mapstructure:"addrs"`
	Password string   `mapstructure:"password"`
	DB       int      `mapstructure:"db"`
}

// Enabled reports whether a Redis endpoint is configured.
func (c RedisConfig) Enabled() bool {
	return len(c.Addrs) > 0
}

type LockConfig struct {
	// Driver is local, redis or postgres.
	Driver       string        `mapstructure:"driver"`
	Timeout      time.Duration `mapstructure:"timeout"`
	TTL          time.Duration `mapstructure:"ttl"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	Prefix       string        `mapstructure:"prefix"`
}

type ReservationConfig struct {
	DefaultTTL     time.Duration `mapstructure:"default_ttl"`
	SweepBatchSize int           `mapstructure:"sweep_batch_size"`
}

type RetryConfig struct {
	MaxRetries      uint64        `mapstructure:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

type AuthConfig struct {
	// JWTSecret enables bearer authentication when set.
	JWTSecret string `mapstructure:"jwt_secret"`
}

type NotifyConfig struct {
	// Targets lists notifiers: log, redis, outbox.
	Targets      []string `mapstructure:"targets"`
	RedisChannel string   `mapstructure:"redis_channel"`
}

type WorkerConfig struct {
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	OutboxInterval time.Duration `mapstructure:"outbox_interval"`
	OutboxBatch    int           `mapstructure:"outbox_batch"`
	CleanupEvery   time.Duration `mapstructure:"cleanup_every"`
}

type IdempotencyConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type TelemetryConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Endpoint       string        `mapstructure:"endpoint"`
	Insecure       bool          `mapstructure:"insecure"`
	ExportInterval time.Duration `mapstructure:"export_interval"`
	SamplingRatio  float64       `mapstructure:"sampling_ratio"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "stockledger")
	v.SetDefault("app.env", "development")
	v.SetDefault("log.level", "info")

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)

	v.SetDefault("storage.driver", StorageMemory)

	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.max_conns", 25)
	v.SetDefault("postgres.min_conns", 5)
	v.SetDefault("postgres.statement_timeout", 30*time.Second)
	v.SetDefault("postgres.auto_migrate", false)

	v.SetDefault("redis.addrs", []string{})
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("lock.driver", LockLocal)
	v.SetDefault("lock.timeout", 5*time.Second)
	v.SetDefault("lock.ttl", 30*time.Second)
	v.SetDefault("lock.poll_interval", 10*time.Millisecond)
	v.SetDefault("lock.prefix", "stockledger:lock:")

	v.SetDefault("reservation.default_ttl", 15*time.Minute)
	v.SetDefault("reservation.sweep_batch_size", 100)

	v.SetDefault("retry.max_retries", 5)
	v.SetDefault("retry.initial_interval", 10*time.Millisecond)
	v.SetDefault("retry.max_interval", 250*time.Millisecond)

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("notify.targets", []string{"log"})
	v.SetDefault("notify.redis_channel", "stockledger:alerts")

	v.SetDefault("worker.sweep_interval", time.Minute)
	v.SetDefault("worker.outbox_interval", 5*time.Second)
	v.SetDefault("worker.outbox_batch", 100)
	v.SetDefault("worker.cleanup_every", time.Hour)

	v.SetDefault("idempotency.ttl", 24*time.Hour)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.endpoint", "localhost:4317")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.export_interval", time.Minute)
	v.SetDefault("telemetry.sampling_ratio", 1.0)
}

// Load reads configuration. path may be empty, in which case ./config.yaml is
// used if present. Environment variables override the file, e.g.
// LEDGER_POSTGRES_DSN or LEDGER_LOCK_DRIVER.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("LEDGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks driver selections and their prerequisites.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", c.HTTP.Port)
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Postgres.DSN == "" {
			return errors.New("postgres.dsn is required for the postgres storage driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch c.Lock.Driver {
	case LockLocal:
	case LockRedis:
		if !c.Redis.Enabled() {
			return errors.New("redis.addrs is required for the redis lock driver")
		}
	case LockPostgres:
		if c.Storage.Driver != StoragePostgres {
			return errors.New("the postgres lock driver requires postgres storage")
		}
	default:
		return fmt.Errorf("unknown lock driver %q", c.Lock.Driver)
	}

	if c.Lock.Timeout <= 0 {
		return errors.New("lock.timeout must be positive")
	}

	if c.Worker.SweepInterval <= 0 {
		return errors.New("worker.sweep_interval must be positive")
	}
	if c.Worker.OutboxInterval <= 0 {
		return errors.New("worker.outbox_interval must be positive")
	}
	if c.Worker.CleanupEvery <= 0 {
		return errors.New("worker.cleanup_every must be positive")
	}
	if c.Worker.OutboxBatch <= 0 {
		return errors.New("worker.outbox_batch must be positive")
	}

	for _, target := range c.Notify.Targets {
		switch target {
		case "log":
		case "redis":
			if !c.Redis.Enabled() {
				return errors.New("redis.addrs is required for the redis notifier")
			}
		case "outbox":
			if c.Storage.Driver != StoragePostgres {
				return errors.New("the outbox notifier requires postgres storage")
			}
		default:
			return fmt.Errorf("unknown notify target %q", target)
		}
	}
	return nil
}
