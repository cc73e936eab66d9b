package memory

import (
	"context"
	"sort"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/domain/stock"
)

// MovementRepo implements stock.MovementRepository. Movements are append-only:
// the only removal is the undo of an aborted transaction.
type MovementRepo struct {
	db *DB
}

var _ stock.MovementRepository = (*MovementRepo)(nil)

func NewMovementRepo(db *DB) *MovementRepo {
	return &MovementRepo{db: db}
}

func (r *MovementRepo) Append(ctx context.Context, m entity.Movement) (entity.Movement, error) {
	key := m.Triple.Key()
	err := r.db.write(ctx, func() (func(), error) {
		r.db.seq++
		m.Seq = r.db.seq

		n := len(r.db.movements[key])
		r.db.movements[key] = append(r.db.movements[key], m)
		return func() {
			if n == 0 {
				delete(r.db.movements, key)
				return
			}
			r.db.movements[key] = r.db.movements[key][:n]
		}, nil
	})
	return m, err
}

func (r *MovementRepo) History(_ context.Context, t entity.Triple, since *time.Time) ([]entity.Movement, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	all := r.db.movements[t.Key()]
	out := make([]entity.Movement, 0, len(all))
	for _, m := range all {
		if since != nil && m.CreatedAt.Before(*since) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (r *MovementRepo) ByReference(_ context.Context, ref entity.Reference) ([]entity.Movement, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []entity.Movement
	for _, ms := range r.db.movements {
		for _, m := range ms {
			if entity.SameReference(m.Reference, ref) {
				out = append(out, m)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}
