// Package reservation implements the hold/commit/release lifecycle of stock reservations.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/lock"
	"stockledger/internal/core/metrics"
	"stockledger/internal/core/retry"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/alert"
	"stockledger/internal/domain/stock"
	"stockledger/pkg/logger"
)

// Config holds engine settings.
type Config struct {
	// DefaultTTL applies when a request carries no TTL. Zero or negative means
	// reservations never expire.
	DefaultTTL time.Duration

	// SweepBatchSize bounds how many expired reservations one ExpireStale query loads.
	SweepBatchSize int

	Retry retry.Config
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:     15 * time.Minute,
		SweepBatchSize: 100,
		Retry:          retry.DefaultConfig(),
	}
}

// ReserveRequest asks to hold Quantity units of a triple for a reference.
type ReserveRequest struct {
	Triple    entity.Triple
	Quantity  types.Quantity
	Reference entity.Reference
	// TTL overrides Config.DefaultTTL when positive.
	TTL time.Duration
}

// Engine reserves, commits, releases and expires stock reservations.
// Every mutation runs under the lock of the reservation's triple.
type Engine struct {
	store   *stock.Store
	log     *stock.Log
	repo    Repository
	guard   lock.Serializer
	alerts  *alert.Evaluator
	metrics metrics.Recorder
	tracer  trace.Tracer
	cfg     Config
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithAlerts dispatches alerts triggered by engine operations.
func WithAlerts(e *alert.Evaluator) Option {
	return func(en *Engine) { en.alerts = e }
}

// WithMetrics records operation outcomes.
func WithMetrics(m metrics.Recorder) Option {
	return func(en *Engine) { en.metrics = m }
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) Option {
	return func(en *Engine) { en.now = now }
}

// NewEngine creates a reservation engine.
func NewEngine(
	store *stock.Store,
	log *stock.Log,
	repo Repository,
	guard lock.Serializer,
	cfg Config,
	opts ...Option,
) *Engine {
	e := &Engine{
		store:   store,
		log:     log,
		repo:    repo,
		guard:   guard,
		metrics: metrics.Nop{},
		tracer:  otel.Tracer("stockledger/reservation"),
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.SweepBatchSize <= 0 {
		e.cfg.SweepBatchSize = 100
	}
	return e
}

// Reserve holds stock for a reference. A repeated request for the same triple,
// reference and quantity returns the reservation already held.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest) (res entity.Reservation, err error) {
	ctx, finish := e.begin(ctx, "reserve", appctx.LedgerScope{Triple: req.Triple.Key()})
	defer func() { finish(err) }()

	if err := req.Triple.Validate(); err != nil {
		return res, apperror.NewInvalidArgument(err.Error())
	}
	if req.Quantity <= 0 {
		return res, apperror.NewInvalidArgument("reservation quantity must be positive").
			WithDetail("quantity", req.Quantity.Int64())
	}
	if err := checkReservable(req.Reference); err != nil {
		return res, err
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = e.cfg.DefaultTTL
	}

	replayed := false
	err = e.mutate(ctx, req.Triple.Key(), func(ctx context.Context) error {
		existing, err := e.repo.FindHeld(ctx, req.Triple, req.Reference)
		if err != nil {
			return fmt.Errorf("find held reservation: %w", err)
		}
		if existing != nil {
			if existing.Quantity != req.Quantity {
				return apperror.NewInvalidState("reservation", existing.ID, string(existing.Status), "reserve a different quantity").
					WithDetail("held_quantity", existing.Quantity.Int64()).
					WithDetail("requested", req.Quantity.Int64())
			}
			res, replayed = *existing, true
			return nil
		}

		rec, err := e.store.Get(ctx, req.Triple)
		if err != nil {
			return err
		}
		if rec.Available() < req.Quantity {
			return apperror.NewInsufficientStock(req.Triple.Key(), req.Quantity.Int64(), rec.Available().Int64())
		}

		if _, err := e.store.ApplyDelta(ctx, req.Triple, 0, req.Quantity); err != nil {
			return err
		}

		r := entity.NewReservation(req.Triple, req.Quantity, req.Reference, e.now(), ttl)
		if err := e.repo.Create(ctx, r); err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}
		res, replayed = r, false
		return nil
	})
	if err != nil {
		return entity.Reservation{}, err
	}

	ctx = appctx.WithLedgerScope(ctx, appctx.LedgerScope{ReservationID: res.ID.String()})
	logger.Info(ctx, "stock reserved",
		"quantity", req.Quantity,
		"reference", req.Reference.Ref(),
		"replayed", replayed,
	)
	return res, nil
}

// Commit turns a held reservation into an outbound movement.
func (e *Engine) Commit(ctx context.Context, reservationID id.ID) (mv entity.Movement, err error) {
	ctx, finish := e.begin(ctx, "commit", appctx.LedgerScope{ReservationID: reservationID.String()})
	defer func() { finish(err) }()

	r, err := e.repo.Get(ctx, reservationID)
	if err != nil {
		return mv, err
	}
	ctx = appctx.WithLedgerScope(ctx, appctx.LedgerScope{Triple: r.Triple.Key()})

	err = e.mutate(ctx, r.Triple.Key(), func(ctx context.Context) error {
		cur, err := e.held(ctx, reservationID, "commit")
		if err != nil {
			return err
		}

		typ, err := commitMovementType(cur.Reference)
		if err != nil {
			return err
		}

		rec, err := e.store.Get(ctx, cur.Triple)
		if err != nil {
			return err
		}

		m := entity.NewMovement(cur.Triple, typ, rec.OnHand, -cur.Quantity, cur.Reference)
		saved, err := e.log.Record(ctx, m)
		if err != nil {
			return err
		}

		if _, err := e.store.ApplyDelta(ctx, cur.Triple, -cur.Quantity, -cur.Quantity); err != nil {
			return err
		}

		cur.Close(entity.ReservationCommitted, "", e.now())
		if err := e.repo.Close(ctx, cur); err != nil {
			return fmt.Errorf("close reservation: %w", err)
		}
		mv = saved
		return nil
	})
	if err != nil {
		return entity.Movement{}, err
	}

	logger.Info(ctx, "reservation committed",
		"movement_id", mv.ID,
		"quantity", r.Quantity,
	)
	return mv, nil
}

// Release returns held stock to availability without a movement.
func (e *Engine) Release(ctx context.Context, reservationID id.ID, reason string) (err error) {
	ctx, finish := e.begin(ctx, "release", appctx.LedgerScope{ReservationID: reservationID.String()})
	defer func() { finish(err) }()

	r, err := e.repo.Get(ctx, reservationID)
	if err != nil {
		return err
	}
	ctx = appctx.WithLedgerScope(ctx, appctx.LedgerScope{Triple: r.Triple.Key()})

	err = e.mutate(ctx, r.Triple.Key(), func(ctx context.Context) error {
		cur, err := e.held(ctx, reservationID, "release")
		if err != nil {
			return err
		}
		return e.close(ctx, cur, entity.ReservationReleased, reason)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "reservation released",
		"quantity", r.Quantity,
		"reason", reason,
	)
	return nil
}

// ExpireStale expires every held reservation whose expiry is at or before now
// and returns how many it expired. Running it twice for the same instant
// expires nothing the second time.
func (e *Engine) ExpireStale(ctx context.Context, now time.Time) (count int, err error) {
	ctx, finish := e.begin(ctx, "expire_stale", appctx.LedgerScope{})
	defer func() { finish(err) }()

	var errs []error
	// Reservations that failed or were left untouched this sweep. They stay
	// at the head of the expiry order, so each page is widened past them.
	skipped := make(map[id.ID]struct{})
	for {
		limit := e.cfg.SweepBatchSize + len(skipped)
		batch, err := e.repo.ListExpired(ctx, now, limit)
		if err != nil {
			return count, fmt.Errorf("list expired reservations: %w", err)
		}

		fresh := 0
		for _, r := range batch {
			if _, ok := skipped[r.ID]; ok {
				continue
			}
			fresh++

			rctx := appctx.WithLedgerScope(ctx, appctx.LedgerScope{
				Triple:        r.Triple.Key(),
				ReservationID: r.ID.String(),
			})
			expired, err := e.expireOne(rctx, r, now)
			if err != nil {
				logger.Warn(rctx, "reservation expiry failed", "error", err)
				errs = append(errs, err)
				skipped[r.ID] = struct{}{}
				continue
			}
			if expired {
				count++
			} else {
				skipped[r.ID] = struct{}{}
			}
		}

		if len(batch) < limit || fresh == 0 {
			break
		}
	}

	if count > 0 {
		logger.Info(ctx, "stale reservations expired", "count", count, "as_of", now)
	}
	return count, errors.Join(errs...)
}

func (e *Engine) expireOne(ctx context.Context, r entity.Reservation, now time.Time) (bool, error) {
	expired := false
	err := e.mutate(ctx, r.Triple.Key(), func(ctx context.Context) error {
		cur, err := e.repo.Get(ctx, r.ID)
		if err != nil {
			return err
		}
		// Committed or released while waiting for the lock.
		if !cur.IsExpiredAt(now) {
			return nil
		}
		if err := e.close(ctx, cur, entity.ReservationExpired, "expired"); err != nil {
			return err
		}
		expired = true
		return nil
	})
	return expired, err
}

// Get returns a reservation by id.
func (e *Engine) Get(ctx context.Context, reservationID id.ID) (entity.Reservation, error) {
	return e.repo.Get(ctx, reservationID)
}

// ListByReference returns every reservation made for the reference.
func (e *Engine) ListByReference(ctx context.Context, ref entity.Reference) ([]entity.Reservation, error) {
	if ref == nil {
		return nil, apperror.NewInvalidArgument("reference is required")
	}
	return e.repo.ListByReference(ctx, ref)
}

// close subtracts a held reservation from reserved and stores its terminal state.
func (e *Engine) close(ctx context.Context, r entity.Reservation, status entity.ReservationStatus, reason string) error {
	if _, err := e.store.ApplyDelta(ctx, r.Triple, 0, -r.Quantity); err != nil {
		return err
	}
	r.Close(status, reason, e.now())
	if err := e.repo.Close(ctx, r); err != nil {
		return fmt.Errorf("close reservation: %w", err)
	}
	return nil
}

func (e *Engine) held(ctx context.Context, reservationID id.ID, attempted string) (entity.Reservation, error) {
	cur, err := e.repo.Get(ctx, reservationID)
	if err != nil {
		return cur, err
	}
	if cur.Status != entity.ReservationHeld {
		return cur, apperror.NewInvalidState("reservation", reservationID, string(cur.Status), attempted)
	}
	return cur, nil
}

// mutate runs fn under the triple lock, retrying lost updates and lock timeouts.
// Alerts raised by a successful attempt are dispatched after the lock is released.
func (e *Engine) mutate(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, e.cfg.Retry, func() error {
		locked := func(ctx context.Context) error {
			return e.guard.Serialize(ctx, key, fn)
		}
		if e.alerts == nil {
			return locked(ctx)
		}
		return e.alerts.Observe(ctx, locked)
	})
}

func (e *Engine) begin(ctx context.Context, op string, scope appctx.LedgerScope) (context.Context, func(error)) {
	start := time.Now()
	scope.Operation = "reservation." + op
	ctx = appctx.WithLedgerScope(ctx, scope)

	var attrs []attribute.KeyValue
	if scope.Triple != "" {
		attrs = append(attrs, attribute.String("triple", scope.Triple))
	}
	if scope.ReservationID != "" {
		attrs = append(attrs, attribute.String("reservation_id", scope.ReservationID))
	}
	ctx, span := e.tracer.Start(ctx, scope.Operation, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.metrics.Observe(ctx, scope.Operation, err, time.Since(start))
	}
}

// checkReservable accepts only references that can back a reservation.
func checkReservable(ref entity.Reference) error {
	switch ref.(type) {
	case entity.OrderReference, entity.TransferReference:
		return nil
	case entity.AdjustmentReference, entity.ReceiptReference:
		return apperror.NewInvalidArgument(fmt.Sprintf("%s reference cannot back a reservation", ref.Kind()))
	case nil:
		return apperror.NewInvalidArgument("reference is required")
	}
	return apperror.NewInvalidArgument(fmt.Sprintf("unsupported reference %T", ref))
}

func commitMovementType(ref entity.Reference) (entity.MovementType, error) {
	switch ref.(type) {
	case entity.OrderReference:
		return entity.MovementOut, nil
	case entity.TransferReference:
		return entity.MovementTransfer, nil
	case entity.AdjustmentReference, entity.ReceiptReference:
		return "", apperror.NewInvariantViolation("", fmt.Sprintf("held reservation backed by %s reference", ref.Kind()))
	}
	return "", apperror.NewInvariantViolation("", fmt.Sprintf("held reservation backed by %T", ref))
}
