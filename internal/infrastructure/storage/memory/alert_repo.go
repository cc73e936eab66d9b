package memory

import (
	"context"
	"sort"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/alert"
)

// AlertRepo implements alert.Repository.
type AlertRepo struct {
	db *DB
}

var _ alert.Repository = (*AlertRepo)(nil)

func NewAlertRepo(db *DB) *AlertRepo {
	return &AlertRepo{db: db}
}

func (r *AlertRepo) Get(_ context.Context, alertID id.ID) (entity.StockAlert, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	a, ok := r.db.alerts[alertID]
	if !ok {
		return entity.StockAlert{}, apperror.NewNotFound("stock alert", alertID)
	}
	return a, nil
}

func (r *AlertRepo) ListByTriple(_ context.Context, t entity.Triple) ([]entity.StockAlert, error) {
	r.db.mu.RLock()
	var out []entity.StockAlert
	for _, a := range r.db.alerts {
		if a.Triple == t {
			out = append(out, a)
		}
	}
	r.db.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (r *AlertRepo) Save(ctx context.Context, a entity.StockAlert) error {
	return r.db.write(ctx, func() (func(), error) {
		for _, other := range r.db.alerts {
			if other.ID != a.ID && other.Triple == a.Triple && other.Type == a.Type {
				return nil, apperror.NewValidation("alert rule already exists for this triple and type").
					WithDetail("alert_id", other.ID)
			}
		}

		prev, existed := r.db.alerts[a.ID]
		r.db.alerts[a.ID] = a
		return func() {
			if existed {
				r.db.alerts[a.ID] = prev
			} else {
				delete(r.db.alerts, a.ID)
			}
		}, nil
	})
}

func (r *AlertRepo) Delete(ctx context.Context, alertID id.ID) error {
	return r.db.write(ctx, func() (func(), error) {
		prev, ok := r.db.alerts[alertID]
		if !ok {
			return nil, apperror.NewNotFound("stock alert", alertID)
		}
		delete(r.db.alerts, alertID)
		return func() { r.db.alerts[alertID] = prev }, nil
	})
}

func (r *AlertRepo) ListActive(_ context.Context) ([]entity.StockAlert, error) {
	r.db.mu.RLock()
	var out []entity.StockAlert
	for _, a := range r.db.alerts {
		if a.IsActive {
			out = append(out, a)
		}
	}
	r.db.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Key() != out[j].Key() {
			return out[i].Key() < out[j].Key()
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}
