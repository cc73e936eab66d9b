// Package bootstrap assembles a running ledger from configuration. The server
// and the worker share it so both see the same storage, lock and notifier setup.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/app"
	"stockledger/internal/core/idempotency"
	"stockledger/internal/core/lock"
	"stockledger/internal/core/retry"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain/alert"
	"stockledger/internal/domain/reservation"
	"stockledger/internal/infrastructure/cache"
	"stockledger/internal/infrastructure/config"
	"stockledger/internal/infrastructure/http/v1/handlers"
	infralock "stockledger/internal/infrastructure/lock"
	"stockledger/internal/infrastructure/notify"
	"stockledger/internal/infrastructure/storage/memory"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/internal/infrastructure/telemetry"
	"stockledger/pkg/logger"
)

// Runtime holds the assembled ledger and the resources behind it.
type Runtime struct {
	Ledger      *app.Ledger
	Idempotency idempotency.Store
	Telemetry   *telemetry.Provider

	// Pool and TxManager are nil with the memory storage driver.
	Pool      *postgres.Pool
	TxManager *postgres.TxManager

	// Redis is nil unless redis.addrs is configured.
	Redis redis.UniversalClient

	closers []func(context.Context) error
}

// Open connects every configured backend and builds the ledger.
// On error, anything already opened is closed.
func Open(ctx context.Context, cfg *config.Config, version string) (rt *Runtime, err error) {
	rt = &Runtime{}
	defer func() {
		if err != nil {
			_ = rt.Close(context.Background())
			rt = nil
		}
	}()

	rt.Telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.Endpoint,
		Insecure:          cfg.Telemetry.Insecure,
		ServiceName:       cfg.App.Name,
		ServiceVersion:    version,
		ExportInterval:    cfg.Telemetry.ExportInterval,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	rt.closers = append(rt.closers, rt.Telemetry.Shutdown)

	recorder, err := telemetry.NewRecorder(rt.Telemetry.Meter("stockledger"))
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	if cfg.Redis.Enabled() {
		rt.Redis = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, func(context.Context) error { return rt.Redis.Close() })
		if err := rt.Redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		logger.Info(ctx, "redis connection established", "addrs", cfg.Redis.Addrs)
	}

	repos, txm, err := rt.openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	guard, err := rt.guard(cfg, txm)
	if err != nil {
		return nil, err
	}

	notifier, err := rt.notifier(cfg)
	if err != nil {
		return nil, err
	}

	rt.Ledger = app.NewLedger(repos, app.Options{
		Guard:    guard,
		Notifier: notifier,
		Metrics:  recorder,
		Reservation: reservation.Config{
			DefaultTTL:     cfg.Reservation.DefaultTTL,
			SweepBatchSize: cfg.Reservation.SweepBatchSize,
			Retry: retry.Config{
				MaxRetries:      cfg.Retry.MaxRetries,
				InitialInterval: cfg.Retry.InitialInterval,
				MaxInterval:     cfg.Retry.MaxInterval,
			},
		},
	})

	rt.Idempotency = rt.idempotencyStore(cfg)

	logger.Info(ctx, "ledger assembled",
		"storage", cfg.Storage.Driver,
		"lock", cfg.Lock.Driver,
		"notify", cfg.Notify.Targets,
	)
	return rt, nil
}

func (rt *Runtime) openStorage(ctx context.Context, cfg *config.Config) (app.Repositories, tx.Manager, error) {
	if cfg.Storage.Driver == config.StorageMemory {
		db := memory.NewDB()
		logger.Warn(ctx, "using in-memory storage, ledger state is lost on restart")
		return app.Repositories{
			Records:      memory.NewRecordRepo(db),
			Movements:    memory.NewMovementRepo(db),
			Reservations: memory.NewReservationRepo(db),
			Alerts:       memory.NewAlertRepo(db),
		}, db, nil
	}

	if cfg.Postgres.AutoMigrate {
		if err := Migrate(ctx, cfg.Postgres.DSN); err != nil {
			return app.Repositories{}, nil, err
		}
	}

	poolCfg := postgres.DefaultPoolConfig(cfg.Postgres.DSN)
	if cfg.App.Name != "" {
		poolCfg.ApplicationName = cfg.App.Name
	}
	if cfg.Postgres.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Postgres.MaxConns
	}
	if cfg.Postgres.MinConns > 0 {
		poolCfg.MinConns = cfg.Postgres.MinConns
	}
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return app.Repositories{}, nil, fmt.Errorf("connect postgres: %w", err)
	}
	rt.Pool = pool
	rt.closers = append(rt.closers, func(context.Context) error { pool.Close(); return nil })

	txOpts := postgres.DefaultTxOptions()
	if cfg.Postgres.StatementTimeout > 0 {
		txOpts.StatementTimeout = cfg.Postgres.StatementTimeout
	}
	txOpts.LockTimeout = cfg.Lock.Timeout
	rt.TxManager = postgres.NewTxManager(pool, txOpts)

	return app.Repositories{
		Records:      ledger_repo.NewRecordRepo(rt.TxManager),
		Movements:    ledger_repo.NewMovementRepo(rt.TxManager),
		Reservations: ledger_repo.NewReservationRepo(rt.TxManager),
		Alerts:       ledger_repo.NewAlertRepo(rt.TxManager),
	}, rt.TxManager, nil
}

func (rt *Runtime) guard(cfg *config.Config, txm tx.Manager) (lock.Serializer, error) {
	switch cfg.Lock.Driver {
	case config.LockLocal:
		return infralock.NewGuard(infralock.NewLocal(), txm, cfg.Lock.Timeout), nil
	case config.LockRedis:
		locker := infralock.NewRedis(rt.Redis, infralock.RedisConfig{
			Prefix:       cfg.Lock.Prefix,
			TTL:          cfg.Lock.TTL,
			PollInterval: cfg.Lock.PollInterval,
		})
		return infralock.NewGuard(locker, txm, cfg.Lock.Timeout), nil
	case config.LockPostgres:
		if rt.TxManager == nil {
			return nil, errors.New("postgres lock driver requires postgres storage")
		}
		return postgres.NewAdvisoryGuard(rt.TxManager), nil
	}
	return nil, fmt.Errorf("unknown lock driver %q", cfg.Lock.Driver)
}

func (rt *Runtime) notifier(cfg *config.Config) (alert.Notifier, error) {
	var fan notify.Fanout
	for _, target := range cfg.Notify.Targets {
		switch target {
		case "log":
			fan = append(fan, notify.Log{})
		case "redis":
			fan = append(fan, notify.NewRedis(rt.Redis, cfg.Notify.RedisChannel))
		case "outbox":
			if rt.TxManager == nil {
				return nil, errors.New("outbox notifier requires postgres storage")
			}
			fan = append(fan, postgres.NewOutboxNotifier(postgres.NewOutboxPublisher(rt.TxManager)))
		default:
			return nil, fmt.Errorf("unknown notify target %q", target)
		}
	}
	return fan, nil
}

func (rt *Runtime) idempotencyStore(cfg *config.Config) idempotency.Store {
	switch {
	case rt.TxManager != nil:
		return postgres.NewIdempotencyStore(rt.TxManager, cfg.Idempotency.TTL)
	case rt.Redis != nil:
		return cache.NewRedis(rt.Redis, "", cfg.Idempotency.TTL)
	}
	mem := cache.NewMemory(cfg.Idempotency.TTL)
	mem.Start(context.Background(), cfg.Worker.CleanupEvery)
	rt.closers = append(rt.closers, func(context.Context) error { mem.Stop(); return nil })
	return mem
}

// HealthChecks returns the readiness checks of the configured backends.
func (rt *Runtime) HealthChecks() map[string]handlers.Check {
	checks := make(map[string]handlers.Check)
	if rt.Pool != nil {
		checks["database"] = rt.Pool.Ping
	}
	if rt.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return rt.Redis.Ping(ctx).Err() }
	}
	return checks
}

// Close releases resources in reverse order of acquisition.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i](ctx))
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// Migrate applies pending schema migrations to the database at dsn.
func Migrate(ctx context.Context, dsn string) error {
	mg, err := postgres.NewMigrator(dsn)
	if err != nil {
		return err
	}
	defer mg.Close()
	return mg.Up(ctx)
}
