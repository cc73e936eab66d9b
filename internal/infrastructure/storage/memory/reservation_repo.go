package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/domain/reservation"
)

// ReservationRepo implements reservation.Repository.
type ReservationRepo struct {
	db *DB
}

var _ reservation.Repository = (*ReservationRepo)(nil)

func NewReservationRepo(db *DB) *ReservationRepo {
	return &ReservationRepo{db: db}
}

func (r *ReservationRepo) Create(ctx context.Context, res entity.Reservation) error {
	return r.db.write(ctx, func() (func(), error) {
		if _, ok := r.db.reservations[res.ID]; ok {
			return nil, fmt.Errorf("reservation %s already exists", res.ID)
		}
		r.db.reservations[res.ID] = res
		return func() { delete(r.db.reservations, res.ID) }, nil
	})
}

func (r *ReservationRepo) Get(_ context.Context, reservationID id.ID) (entity.Reservation, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	res, ok := r.db.reservations[reservationID]
	if !ok {
		return entity.Reservation{}, apperror.NewNotFound("reservation", reservationID)
	}
	return res, nil
}

func (r *ReservationRepo) Close(ctx context.Context, res entity.Reservation) error {
	return r.db.write(ctx, func() (func(), error) {
		prev, ok := r.db.reservations[res.ID]
		if !ok {
			return nil, apperror.NewNotFound("reservation", res.ID)
		}
		if prev.Status != entity.ReservationHeld {
			return nil, apperror.NewInconsistentLedger(prev.Triple.Key(), 0, 0).
				WithDetail("reservation_id", res.ID).
				WithDetail("status", string(prev.Status))
		}
		r.db.reservations[res.ID] = res
		return func() { r.db.reservations[res.ID] = prev }, nil
	})
}

func (r *ReservationRepo) FindHeld(_ context.Context, t entity.Triple, ref entity.Reference) (*entity.Reservation, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, res := range r.db.reservations {
		if res.Status == entity.ReservationHeld && res.Triple == t && entity.SameReference(res.Reference, ref) {
			found := res
			return &found, nil
		}
	}
	return nil, nil
}

func (r *ReservationRepo) ListExpired(_ context.Context, now time.Time, limit int) ([]entity.Reservation, error) {
	r.db.mu.RLock()
	var out []entity.Reservation
	for _, res := range r.db.reservations {
		if res.IsExpiredAt(now) {
			out = append(out, res)
		}
	}
	r.db.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ReservationRepo) ListByReference(_ context.Context, ref entity.Reference) ([]entity.Reservation, error) {
	r.db.mu.RLock()
	var out []entity.Reservation
	for _, res := range r.db.reservations {
		if entity.SameReference(res.Reference, ref) {
			out = append(out, res)
		}
	}
	r.db.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
