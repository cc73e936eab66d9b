package stock

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/pkg/logger"
)

// Store holds the current on-hand and reserved quantities per triple.
// All mutations go through ApplyDelta or ApplyReceipt. Callers must hold the
// triple lock; Store itself only guards against lost updates via the version check.
type Store struct {
	repo     RecordRepository
	observer Observer
	now      func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithObserver registers the component re-evaluated after each write.
func WithObserver(o Observer) StoreOption {
	return func(s *Store) { s.observer = o }
}

// WithStoreClock overrides the time source.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a stock record store.
func NewStore(repo RecordRepository, opts ...StoreOption) *Store {
	s := &Store{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the record of a triple. A triple without stock yields a zero-valued
// record; nothing is created until the first movement.
func (s *Store) Get(ctx context.Context, t entity.Triple) (entity.StockRecord, error) {
	rec, err := s.repo.Get(ctx, t)
	if err != nil {
		return rec, fmt.Errorf("get stock record %s: %w", t, err)
	}
	return rec, nil
}

// ApplyDelta updates on-hand and/or reserved quantities and returns the new record.
func (s *Store) ApplyDelta(ctx context.Context, t entity.Triple, onHandDelta, reservedDelta types.Quantity) (entity.StockRecord, error) {
	return s.apply(ctx, t, onHandDelta, reservedDelta, nil)
}

// ApplyReceipt adds qty to on-hand and blends unitCost into the average cost.
func (s *Store) ApplyReceipt(ctx context.Context, t entity.Triple, qty types.Quantity, unitCost types.Money) (entity.StockRecord, error) {
	return s.apply(ctx, t, qty, 0, func(cur entity.StockRecord) types.Money {
		if cur.OnHand < 0 {
			return cur.AverageCost
		}
		return types.WeightedAverage(cur.AverageCost, cur.OnHand, unitCost, qty)
	})
}

func (s *Store) apply(
	ctx context.Context,
	t entity.Triple,
	onHandDelta, reservedDelta types.Quantity,
	cost func(cur entity.StockRecord) types.Money,
) (entity.StockRecord, error) {
	if onHandDelta == 0 && reservedDelta == 0 {
		return entity.StockRecord{}, apperror.NewInvalidArgument("stock delta must not be zero")
	}

	cur, err := s.repo.Get(ctx, t)
	if err != nil {
		return cur, fmt.Errorf("get stock record %s: %w", t, err)
	}

	if _, ok := cur.OnHand.Add(onHandDelta); !ok {
		return cur, apperror.NewInvalidArgument("on-hand quantity out of range").
			WithDetail("triple", t.Key()).
			WithDetail("on_hand", cur.OnHand.Int64()).
			WithDetail("on_hand_delta", onHandDelta.Int64())
	}
	if _, ok := cur.Reserved.Add(reservedDelta); !ok {
		return cur, apperror.NewInvalidArgument("reserved quantity out of range").
			WithDetail("triple", t.Key()).
			WithDetail("reserved", cur.Reserved.Int64()).
			WithDetail("reserved_delta", reservedDelta.Int64())
	}

	next := cur.WithDelta(onHandDelta, reservedDelta, s.now())
	if cost != nil {
		next.AverageCost = cost(cur)
	}

	if msg := next.CheckInvariant(); msg != "" {
		logger.Error(ctx, "stock invariant violation",
			"triple", t.Key(),
			"on_hand", cur.OnHand,
			"reserved", cur.Reserved,
			"on_hand_delta", onHandDelta,
			"reserved_delta", reservedDelta,
			"version", cur.Version,
			"reason", msg,
		)
		return cur, apperror.NewInvariantViolation(t.Key(), msg).
			WithDetail("on_hand", cur.OnHand.Int64()).
			WithDetail("reserved", cur.Reserved.Int64()).
			WithDetail("on_hand_delta", onHandDelta.Int64()).
			WithDetail("reserved_delta", reservedDelta.Int64())
	}

	saved, err := s.repo.Save(ctx, next)
	if err != nil {
		return cur, fmt.Errorf("save stock record %s: %w", t, err)
	}

	if s.observer != nil {
		if err := s.observer.StockChanged(ctx, saved); err != nil {
			return saved, fmt.Errorf("observe stock change %s: %w", t, err)
		}
	}

	return saved, nil
}

// WarehouseStock returns non-zero records of a warehouse.
func (s *Store) WarehouseStock(ctx context.Context, warehouseID id.ID) ([]entity.StockRecord, error) {
	return s.repo.ListByWarehouse(ctx, warehouseID, RecordFilter{ExcludeZero: true})
}

// ProductAvailability returns total available quantity of a product across warehouses.
func (s *Store) ProductAvailability(ctx context.Context, productID id.ID) (types.Quantity, error) {
	records, err := s.repo.ListByProduct(ctx, productID)
	if err != nil {
		return 0, fmt.Errorf("list records: %w", err)
	}

	var total types.Quantity
	for _, r := range records {
		total += r.Available()
	}
	return total, nil
}
