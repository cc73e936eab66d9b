// Package app wires the ledger's domain services on top of a storage backend.
package app

import (
	"time"

	"stockledger/internal/core/lock"
	"stockledger/internal/core/metrics"
	"stockledger/internal/core/retry"
	"stockledger/internal/domain/alert"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/domain/reservation"
	"stockledger/internal/domain/stock"
)

// Repositories is the storage a Ledger runs on.
type Repositories struct {
	Records      stock.RecordRepository
	Movements    stock.MovementRepository
	Reservations reservation.Repository
	Alerts       alert.Repository
}

// Options tunes a Ledger.
type Options struct {
	// Guard serializes per-triple mutations. Required.
	Guard lock.Serializer

	Notifier    alert.Notifier
	Metrics     metrics.Recorder
	Reservation reservation.Config

	// Clock overrides time.Now for every service; used by tests.
	Clock func() time.Time
}

// Ledger groups the domain services.
type Ledger struct {
	Store        *stock.Store
	Log          *stock.Log
	Alerts       *alert.Evaluator
	Reservations *reservation.Engine
	Inventory    *inventory.Service
}

// NewLedger builds the services. The Alert Evaluator is registered as the
// Store's observer so every stock change re-evaluates alert rules.
func NewLedger(repos Repositories, opts Options) *Ledger {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}

	evaluator := alert.NewEvaluator(repos.Alerts, repos.Records, opts.Guard, opts.Notifier)

	storeOpts := []stock.StoreOption{stock.WithObserver(evaluator)}
	var logOpts []stock.LogOption
	engineOpts := []reservation.Option{
		reservation.WithAlerts(evaluator),
		reservation.WithMetrics(opts.Metrics),
	}
	if opts.Clock != nil {
		evaluator.SetClock(opts.Clock)
		storeOpts = append(storeOpts, stock.WithStoreClock(opts.Clock))
		logOpts = append(logOpts, stock.WithLogClock(opts.Clock))
		engineOpts = append(engineOpts, reservation.WithClock(opts.Clock))
	}

	store := stock.NewStore(repos.Records, storeOpts...)
	log := stock.NewLog(repos.Movements, repos.Records, logOpts...)

	return &Ledger{
		Store:        store,
		Log:          log,
		Alerts:       evaluator,
		Reservations: reservation.NewEngine(store, log, repos.Reservations, opts.Guard, opts.Reservation, engineOpts...),
		Inventory:    inventory.NewService(store, log, opts.Guard, evaluator, opts.Metrics, retryConfig(opts.Reservation.Retry)),
	}
}

func retryConfig(cfg retry.Config) retry.Config {
	if cfg.MaxRetries == 0 && cfg.InitialInterval == 0 {
		return retry.DefaultConfig()
	}
	return cfg
}
