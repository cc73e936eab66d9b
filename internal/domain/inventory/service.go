// Package inventory records the manual movements that feed the ledger:
// receipts, adjustments, stock counts and warehouse transfers.
package inventory

import (
	"context"
	"time"

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

// ReceiveRequest books goods into a warehouse.
type ReceiveRequest struct {
	Triple   entity.Triple
	Quantity types.Quantity
	UnitCost types.Money
	// ReceiptID identifies the goods receipt. Generated when nil.
	ReceiptID id.ID
}

// AdjustRequest corrects on-hand by a signed delta.
type AdjustRequest struct {
	Triple entity.Triple
	Delta  types.Quantity
	Reason string
	// AdjustmentID is generated when nil.
	AdjustmentID id.ID
}

// CountRequest sets on-hand to a physically counted quantity.
type CountRequest struct {
	Triple  entity.Triple
	Counted types.Quantity
	Reason  string
}

// TransferRequest moves stock between two warehouses of the same SKU.
type TransferRequest struct {
	From        entity.Triple
	ToWarehouse id.ID
	Quantity    types.Quantity
	// TransferID is generated when nil.
	TransferID id.ID
}

// TransferResult holds both legs of a transfer.
type TransferResult struct {
	Outbound entity.Movement `json:"outbound"`
	Inbound  entity.Movement `json:"inbound"`
}

// Service applies manual inventory movements.
type Service struct {
	store   *stock.Store
	log     *stock.Log
	guard   lock.Serializer
	alerts  *alert.Evaluator
	metrics metrics.Recorder
	retry   retry.Config
}

// NewService creates the inventory service. alerts and rec may be nil.
func NewService(
	store *stock.Store,
	log *stock.Log,
	guard lock.Serializer,
	alerts *alert.Evaluator,
	rec metrics.Recorder,
	retryCfg retry.Config,
) *Service {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Service{
		store:   store,
		log:     log,
		guard:   guard,
		alerts:  alerts,
		metrics: rec,
		retry:   retryCfg,
	}
}

// Receive books qty units at unitCost and folds the cost into the weighted average.
func (s *Service) Receive(ctx context.Context, req ReceiveRequest) (mv entity.Movement, err error) {
	ctx = appctx.WithLedgerScope(ctx, appctx.LedgerScope{Operation: "inventory.receive", Triple: req.Triple.Key()})
	defer s.observe(ctx, "inventory.receive", time.Now(), &err)

	if err := req.Triple.Validate(); err != nil {
		return mv, apperror.NewInvalidArgument(err.Error())
	}
	if req.Quantity <= 0 {
		return mv, apperror.NewInvalidArgument("receipt quantity must be positive")
	}
	if req.UnitCost.IsNegative() {
		return mv, apperror.NewInvalidArgument("unit cost must not be negative")
	}
	if id.IsNil(req.ReceiptID) {
		req.ReceiptID = id.New()
	}
	ref := entity.ReceiptReference{ReceiptID: req.ReceiptID}

	err = s.mutate(ctx, []string{req.Triple.Key()}, func(ctx context.Context) error {
		rec, err := s.store.Get(ctx, req.Triple)
		if err != nil {
			return err
		}

		m := entity.NewMovement(req.Triple, entity.MovementIn, rec.OnHand, req.Quantity, ref)
		cost := req.UnitCost
		m.UnitCost = &cost

		saved, err := s.log.Record(ctx, m)
		if err != nil {
			return err
		}
		if _, err := s.store.ApplyReceipt(ctx, req.Triple, req.Quantity, req.UnitCost); err != nil {
			return err
		}
		mv = saved
		return nil
	})
	if err != nil {
		return entity.Movement{}, err
	}

	logger.Info(ctx, "stock received",
		"quantity", req.Quantity,
		"unit_cost", req.UnitCost.String(),
		"receipt_id", req.ReceiptID,
	)
	return mv, nil
}

// Adjust applies a signed correction. A decrease may not cut into reserved stock.
func (s *Service) Adjust(ctx context.Context, req AdjustRequest) (mv entity.Movement, err error) {
	ctx = appctx.WithLedgerScope(ctx, appctx.LedgerScope{Operation: "inventory.adjust", Triple: req.Triple.Key()})
	defer s.observe(ctx, "inventory.adjust", time.Now(), &err)

	if err := req.Triple.Validate(); err != nil {
		return mv, apperror.NewInvalidArgument(err.Error())
	}
	if req.Delta == 0 {
		return mv, apperror.NewInvalidArgument("adjustment delta must not be zero")
	}
	if id.IsNil(req.AdjustmentID) {
		req.AdjustmentID = id.New()
	}
	ref := entity.AdjustmentReference{AdjustmentID: req.AdjustmentID, Reason: req.Reason}

	err = s.mutate(ctx, []string{req.Triple.Key()}, func(ctx context.Context) error {
		saved, err := s.adjustLocked(ctx, req.Triple, req.Delta, ref)
		if err != nil {
			return err
		}
		mv = saved
		return nil
	})
	if err != nil {
		return entity.Movement{}, err
	}

	logger.Info(ctx, "stock adjusted",
		"delta", req.Delta,
		"reason", req.Reason,
	)
	return mv, nil
}

// Count records a stock count. It returns nil when the counted quantity already
// matches on-hand.
func (s *Service) Count(ctx context.Context, req CountRequest) (mv *entity.Movement, err error) {
	ctx = appctx.WithLedgerScope(ctx, appctx.LedgerScope{Operation: "inventory.count", Triple: req.Triple.Key()})
	defer s.observe(ctx, "inventory.count", time.Now(), &err)

	if err := req.Triple.Validate(); err != nil {
		return nil, apperror.NewInvalidArgument(err.Error())
	}
	if req.Counted < 0 {
		return nil, apperror.NewInvalidArgument("counted quantity must not be negative")
	}
	reason := req.Reason
	if reason == "" {
		reason = "count"
	}

	err = s.mutate(ctx, []string{req.Triple.Key()}, func(ctx context.Context) error {
		mv = nil

		rec, err := s.store.Get(ctx, req.Triple)
		if err != nil {
			return err
		}
		delta := req.Counted - rec.OnHand
		if delta == 0 {
			return nil
		}

		ref := entity.AdjustmentReference{AdjustmentID: id.New(), Reason: reason}
		saved, err := s.adjustLocked(ctx, req.Triple, delta, ref)
		if err != nil {
			return err
		}
		mv = &saved
		return nil
	})
	if err != nil {
		return nil, err
	}

	if mv != nil {
		logger.Info(ctx, "stock count applied",
			"counted", req.Counted,
			"delta", mv.QuantityDelta,
		)
	}
	return mv, nil
}

// Transfer moves qty from one warehouse to another. Both triples are locked for
// the whole operation, so total on-hand across them is unchanged.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (res TransferResult, err error) {
	ctx = appctx.WithLedgerScope(ctx, appctx.LedgerScope{Operation: "inventory.transfer", Triple: req.From.Key()})
	defer s.observe(ctx, "inventory.transfer", time.Now(), &err)

	if err := req.From.Validate(); err != nil {
		return res, apperror.NewInvalidArgument(err.Error())
	}
	if id.IsNil(req.ToWarehouse) {
		return res, apperror.NewInvalidArgument("destination warehouse is required")
	}
	if req.ToWarehouse == req.From.WarehouseID {
		return res, apperror.NewInvalidArgument("source and destination warehouse must differ")
	}
	if req.Quantity <= 0 {
		return res, apperror.NewInvalidArgument("transfer quantity must be positive")
	}
	if id.IsNil(req.TransferID) {
		req.TransferID = id.New()
	}

	from := req.From
	to := from.InWarehouse(req.ToWarehouse)
	ref := entity.TransferReference{TransferID: req.TransferID}

	err = s.mutate(ctx, []string{from.Key(), to.Key()}, func(ctx context.Context) error {
		src, err := s.store.Get(ctx, from)
		if err != nil {
			return err
		}
		if src.Available() < req.Quantity {
			return apperror.NewInsufficientStock(from.Key(), req.Quantity.Int64(), src.Available().Int64())
		}

		out, err := s.log.Record(ctx, entity.NewMovement(from, entity.MovementTransfer, src.OnHand, -req.Quantity, ref))
		if err != nil {
			return err
		}
		if _, err := s.store.ApplyDelta(ctx, from, -req.Quantity, 0); err != nil {
			return err
		}

		dst, err := s.store.Get(ctx, to)
		if err != nil {
			return err
		}
		in := entity.NewMovement(to, entity.MovementTransfer, dst.OnHand, req.Quantity, ref)
		cost := src.AverageCost
		in.UnitCost = &cost
		in, err = s.log.Record(ctx, in)
		if err != nil {
			return err
		}
		if _, err := s.store.ApplyReceipt(ctx, to, req.Quantity, cost); err != nil {
			return err
		}

		res = TransferResult{Outbound: out, Inbound: in}
		return nil
	})
	if err != nil {
		return TransferResult{}, err
	}

	logger.Info(ctx, "stock transferred",
		"transfer_id", req.TransferID,
		"to", to.Key(),
		"quantity", req.Quantity,
	)
	return res, nil
}

// adjustLocked writes an adjustment movement. The caller holds the triple lock.
func (s *Service) adjustLocked(ctx context.Context, t entity.Triple, delta types.Quantity, ref entity.AdjustmentReference) (entity.Movement, error) {
	rec, err := s.store.Get(ctx, t)
	if err != nil {
		return entity.Movement{}, err
	}
	if delta < 0 && rec.OnHand+delta < rec.Reserved {
		return entity.Movement{}, apperror.NewInsufficientStock(t.Key(), delta.Abs().Int64(), rec.Available().Int64())
	}

	saved, err := s.log.Record(ctx, entity.NewMovement(t, entity.MovementAdjustment, rec.OnHand, delta, ref))
	if err != nil {
		return entity.Movement{}, err
	}
	if _, err := s.store.ApplyDelta(ctx, t, delta, 0); err != nil {
		return entity.Movement{}, err
	}
	return saved, nil
}

func (s *Service) mutate(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, s.retry, func() error {
		locked := func(ctx context.Context) error {
			return lock.SerializeAll(ctx, s.guard, keys, fn)
		}
		if s.alerts == nil {
			return locked(ctx)
		}
		return s.alerts.Observe(ctx, locked)
	})
}

func (s *Service) observe(ctx context.Context, op string, start time.Time, err *error) {
	s.metrics.Observe(ctx, op, *err, time.Since(start))
}

