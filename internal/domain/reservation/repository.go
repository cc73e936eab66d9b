package reservation

import (
	"context"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// Repository persists reservations.
type Repository interface {
	Create(ctx context.Context, r entity.Reservation) error

	// Get returns a reservation or a NotFound error.
	Get(ctx context.Context, reservationID id.ID) (entity.Reservation, error)

	// Close persists a terminal transition. It fails InconsistentLedger if the
	// stored reservation is no longer held.
	Close(ctx context.Context, r entity.Reservation) error

	// FindHeld returns the held reservation for the triple and reference, or nil.
	FindHeld(ctx context.Context, t entity.Triple, ref entity.Reference) (*entity.Reservation, error)

	// ListExpired returns up to limit held reservations with expiresAt <= now,
	// oldest expiry first.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]entity.Reservation, error)

	ListByReference(ctx context.Context, ref entity.Reference) ([]entity.Reservation, error)
}
