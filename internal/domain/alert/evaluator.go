// Package alert keeps low-stock, out-of-stock and overstock rules in sync with
// the stock records they watch.
package alert

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/lock"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/stock"
	"stockledger/pkg/logger"
)

// Evaluator recomputes alert state after every stock change.
//
// It is registered as the stock.Observer of the Store, so evaluation runs in
// the same transaction and under the same triple lock as the mutation.
type Evaluator struct {
	repo     Repository
	records  stock.RecordRepository
	guard    lock.Serializer
	notifier Notifier
	now      func() time.Time
}

// NewEvaluator creates an Evaluator. notifier may be nil.
func NewEvaluator(repo Repository, records stock.RecordRepository, guard lock.Serializer, notifier Notifier) *Evaluator {
	return &Evaluator{
		repo:     repo,
		records:  records,
		guard:    guard,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the evaluation clock.
func (e *Evaluator) SetClock(now func() time.Time) {
	e.now = now
}

var _ stock.Observer = (*Evaluator)(nil)

// StockChanged implements stock.Observer. The caller already holds the triple lock.
func (e *Evaluator) StockChanged(ctx context.Context, rec entity.StockRecord) error {
	transitions, err := e.evaluate(ctx, rec)
	if err != nil {
		return err
	}
	e.collect(ctx, transitions)
	return nil
}

// Reevaluate checks every rule of the triple against its current record.
func (e *Evaluator) Reevaluate(ctx context.Context, t entity.Triple) ([]entity.AlertTransition, error) {
	if err := t.Validate(); err != nil {
		return nil, apperror.NewInvalidArgument(err.Error())
	}

	var out []entity.AlertTransition
	err := e.Observe(ctx, func(ctx context.Context) error {
		return e.guard.Serialize(ctx, t.Key(), func(ctx context.Context) error {
			rec, err := e.records.Get(ctx, t)
			if err != nil {
				return fmt.Errorf("get stock record %s: %w", t, err)
			}
			out, err = e.evaluate(ctx, rec)
			if err != nil {
				return err
			}
			e.collect(ctx, out)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ConfigureRule creates the (triple, type) rule or changes its threshold, then
// evaluates it against the current record.
func (e *Evaluator) ConfigureRule(
	ctx context.Context,
	t entity.Triple,
	typ entity.AlertType,
	threshold types.Quantity,
) (entity.StockAlert, error) {
	if err := t.Validate(); err != nil {
		return entity.StockAlert{}, apperror.NewInvalidArgument(err.Error())
	}
	if !typ.Valid() {
		return entity.StockAlert{}, apperror.NewInvalidArgument(fmt.Sprintf("unknown alert type %q", typ))
	}
	if threshold < 0 {
		return entity.StockAlert{}, apperror.NewInvalidArgument("threshold must not be negative")
	}
	if typ == entity.AlertOverstock && threshold == 0 {
		return entity.StockAlert{}, apperror.NewInvalidArgument("overstock threshold must be positive")
	}

	var saved entity.StockAlert
	err := e.Observe(ctx, func(ctx context.Context) error {
		return e.guard.Serialize(ctx, t.Key(), func(ctx context.Context) error {
			rules, err := e.repo.ListByTriple(ctx, t)
			if err != nil {
				return fmt.Errorf("list alert rules: %w", err)
			}

			rule := entity.NewStockAlert(t, typ, threshold, e.now())
			for _, r := range rules {
				if r.Type == typ {
					rule = r
					if typ != entity.AlertOutOfStock {
						rule.Threshold = threshold
					}
					break
				}
			}

			rec, err := e.records.Get(ctx, t)
			if err != nil {
				return fmt.Errorf("get stock record %s: %w", t, err)
			}

			transition, changed := rule.Evaluate(rec.Available(), e.now())
			if err := e.repo.Save(ctx, rule); err != nil {
				return fmt.Errorf("save alert rule: %w", err)
			}
			if changed {
				e.collect(ctx, []entity.AlertTransition{transition})
			}
			saved = rule
			return nil
		})
	})
	if err != nil {
		return entity.StockAlert{}, err
	}

	logger.Info(ctx, "alert rule configured",
		"alert_id", saved.ID,
		"triple", t.Key(),
		"type", typ,
		"threshold", saved.Threshold,
		"active", saved.IsActive,
	)
	return saved, nil
}

// RemoveRule deletes a rule. Removing an active rule sends no notification.
func (e *Evaluator) RemoveRule(ctx context.Context, alertID id.ID) error {
	rule, err := e.repo.Get(ctx, alertID)
	if err != nil {
		return err
	}
	return e.guard.Serialize(ctx, rule.Triple.Key(), func(ctx context.Context) error {
		return e.repo.Delete(ctx, alertID)
	})
}

// Rules returns the rules configured for a triple.
func (e *Evaluator) Rules(ctx context.Context, t entity.Triple) ([]entity.StockAlert, error) {
	return e.repo.ListByTriple(ctx, t)
}

// ActiveAlerts returns every triggered rule.
func (e *Evaluator) ActiveAlerts(ctx context.Context) ([]entity.StockAlert, error) {
	return e.repo.ListActive(ctx)
}

// Observe runs fn and hands the alerts it triggered to the Notifier once fn has
// returned successfully. Observe calls nest: only the outermost one notifies.
//
// fn is expected to take and release triple locks itself, so the Notifier is
// never called while a lock is held.
func (e *Evaluator) Observe(ctx context.Context, fn func(ctx context.Context) error) error {
	if collectorFrom(ctx) != nil {
		return fn(ctx)
	}

	c := &collector{}
	if err := fn(withCollector(ctx, c)); err != nil {
		return err
	}

	triggered := c.triggered()
	if len(triggered) == 0 || e.notifier == nil {
		return nil
	}
	if err := e.notifier.Notify(ctx, triggered); err != nil {
		// The stock change is committed at this point; delivery failures are only logged.
		logger.Error(ctx, "alert notification failed", "count", len(triggered), "error", err)
	}
	return nil
}

func (e *Evaluator) evaluate(ctx context.Context, rec entity.StockRecord) ([]entity.AlertTransition, error) {
	rules, err := e.repo.ListByTriple(ctx, rec.Triple)
	if err != nil {
		return nil, fmt.Errorf("list alert rules: %w", err)
	}

	now := e.now()
	available := rec.Available()

	var out []entity.AlertTransition
	for _, rule := range rules {
		transition, changed := rule.Evaluate(available, now)
		if !changed {
			continue
		}
		if err := e.repo.Save(ctx, rule); err != nil {
			return nil, fmt.Errorf("save alert %s: %w", rule.ID, err)
		}
		out = append(out, transition)
	}
	return out, nil
}

func (e *Evaluator) collect(ctx context.Context, transitions []entity.AlertTransition) {
	if len(transitions) == 0 {
		return
	}
	if c := collectorFrom(ctx); c != nil {
		c.add(transitions)
		return
	}
	for _, t := range transitions {
		logger.Warn(ctx, "alert transition outside observed operation",
			"alert_id", t.Alert.ID,
			"triple", t.Alert.Triple.Key(),
			"type", t.Alert.Type,
			"change", t.Change,
			"available", t.Available,
		)
	}
}
