// Package main is the entry point for the stock ledger background worker.
// It expires stale reservations, relays alert notifications from the outbox
// and prunes idempotency keys.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"stockledger/internal/bootstrap"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/entity"
	"stockledger/internal/domain/alert"
	"stockledger/internal/infrastructure/config"
	"stockledger/internal/infrastructure/notify"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/pkg/logger"
)

var version = "dev"

// publishedRetention is how long delivered outbox messages are kept.
const publishedRetention = 7 * 24 * time.Hour

func main() {
	configPath := flag.String("config", "", "path to config file (default ./config.yaml if present)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.Development(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Infow("starting stock ledger worker", "version", version)

	rt, err := bootstrap.Open(ctx, cfg, version)
	if err != nil {
		log.Fatalw("failed to assemble ledger", "error", err)
	}
	if rt.Pool == nil {
		log.Warn("worker runs against in-memory storage and only sees its own state")
	}

	worker := NewWorker(rt, cfg, log)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down worker...")
	cancel()
	wg.Wait()

	if err := rt.Close(context.Background()); err != nil {
		log.Warnw("failed to release resources", "error", err)
	}
	log.Info("worker stopped")
}

// Worker runs the periodic ledger jobs.
type Worker struct {
	rt    *bootstrap.Runtime
	cfg   config.WorkerConfig
	relay *postgres.OutboxRelay
	idem  *postgres.IdempotencyStore
	log   *logger.Logger
}

// NewWorker creates a worker. The outbox relay and key cleanup run only with postgres storage.
func NewWorker(rt *bootstrap.Runtime, cfg *config.Config, log *logger.Logger) *Worker {
	w := &Worker{
		rt:  rt,
		cfg: cfg.Worker,
		log: log.WithComponent("worker"),
	}
	if rt.Pool != nil {
		w.relay = postgres.NewOutboxRelay(rt.Pool.Pool, cfg.Worker.OutboxBatch, alertDelivery(deliveryNotifier(rt, cfg)))
		w.idem, _ = rt.Idempotency.(*postgres.IdempotencyStore)
	}
	return w
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	sweep := time.NewTicker(w.cfg.SweepInterval)
	defer sweep.Stop()

	outboxEvery := w.cfg.OutboxInterval
	if w.relay == nil {
		// Nothing to relay; keep the select uniform.
		outboxEvery = time.Hour
	}
	outbox := time.NewTicker(outboxEvery)
	defer outbox.Stop()

	cleanup := time.NewTicker(w.cfg.CleanupEvery)
	defer cleanup.Stop()

	w.expire(jobContext(ctx))

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			w.expire(jobContext(ctx))
		case <-outbox.C:
			w.processOutbox(jobContext(ctx))
		case <-cleanup.C:
			w.cleanup(jobContext(ctx))
		}
	}
}

// jobContext gives each tick its own trace ids for log correlation.
func jobContext(ctx context.Context) context.Context {
	return appctx.WithTrace(ctx, appctx.NewTraceContext(ctx))
}

func (w *Worker) expire(ctx context.Context) {
	n, err := w.rt.Ledger.Reservations.ExpireStale(ctx, time.Now())
	if err != nil {
		w.log.Errorw("reservation sweep failed", "expired", n, "error", err)
		return
	}
	if n > 0 {
		w.log.Infow("expired stale reservations", "count", n)
	}
}

func (w *Worker) processOutbox(ctx context.Context) {
	if w.relay == nil {
		return
	}
	n, err := w.relay.ProcessBatch(ctx)
	if err != nil {
		w.log.Errorw("outbox relay failed", "error", err)
		return
	}
	if n > 0 {
		w.log.Debugw("processed outbox batch", "count", n)
	}
}

func (w *Worker) cleanup(ctx context.Context) {
	if w.relay != nil {
		if n, err := w.relay.MoveToDLQ(ctx); err != nil {
			w.log.Errorw("move to DLQ failed", "error", err)
		} else if n > 0 {
			w.log.Warnw("parked undeliverable alert notifications", "count", n)
		}
		if n, err := w.relay.CleanupPublished(ctx, publishedRetention); err != nil {
			w.log.Errorw("outbox cleanup failed", "error", err)
		} else if n > 0 {
			w.log.Infow("cleaned up published outbox messages", "count", n)
		}
	}
	if w.idem != nil {
		if n, err := w.idem.CleanupExpired(ctx); err != nil {
			w.log.Errorw("idempotency cleanup failed", "error", err)
		} else if n > 0 {
			w.log.Infow("cleaned up idempotency keys", "count", n)
		}
	}
}

// deliveryNotifier is where relayed alerts end up: Redis when configured, the log otherwise.
func deliveryNotifier(rt *bootstrap.Runtime, cfg *config.Config) alert.Notifier {
	if rt.Redis != nil {
		return notify.NewRedis(rt.Redis, cfg.Notify.RedisChannel)
	}
	return notify.Log{}
}

// alertDelivery decodes outbox alert events and hands them to n.
func alertDelivery(n alert.Notifier) postgres.OutboxHandler {
	return postgres.OutboxHandlerFunc(func(ctx context.Context, msg *postgres.OutboxMessage) error {
		if msg.AggregateType != postgres.AggregateStockAlert {
			return fmt.Errorf("unexpected aggregate type %q", msg.AggregateType)
		}
		var tr entity.AlertTransition
		if err := json.Unmarshal(msg.Payload, &tr); err != nil {
			return fmt.Errorf("decode alert transition: %w", err)
		}
		return n.Notify(ctx, []entity.AlertTransition{tr})
	})
}
