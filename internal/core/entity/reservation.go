package entity

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// ReservationStatus is the state of a reservation.
// held is the only non-terminal state.
type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "held"
	ReservationCommitted ReservationStatus = "committed"
	ReservationReleased  ReservationStatus = "released"
	ReservationExpired   ReservationStatus = "expired"
)

// IsTerminal reports whether no further transition is possible.
func (s ReservationStatus) IsTerminal() bool {
	return s != ReservationHeld
}

// Reservation is a pending claim on stock of one triple.
// While held, Quantity is counted in StockRecord.Reserved.
type Reservation struct {
	ID id.ID `json:"id"`

	Triple

	Quantity  types.Quantity    `json:"quantity"`
	Reference Reference         `json:"-"`
	Status    ReservationStatus `json:"status"`

	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	ClosedAt      *time.Time `json:"closedAt,omitempty"`
	ReleaseReason string     `json:"releaseReason,omitempty"`
}

// NewReservation creates a held reservation. A zero ttl means no expiry.
func NewReservation(t Triple, qty types.Quantity, ref Reference, now time.Time, ttl time.Duration) Reservation {
	r := Reservation{
		ID:        id.New(),
		Triple:    t,
		Quantity:  qty,
		Reference: ref,
		Status:    ReservationHeld,
		CreatedAt: now,
	}
	if ttl > 0 {
		exp := now.Add(ttl)
		r.ExpiresAt = &exp
	}
	return r
}

// IsExpiredAt reports whether a held reservation has passed its expiry.
func (r Reservation) IsExpiredAt(now time.Time) bool {
	return r.Status == ReservationHeld && r.ExpiresAt != nil && !r.ExpiresAt.After(now)
}

// Close moves a held reservation to a terminal status.
// It returns false when the reservation is not held.
func (r *Reservation) Close(status ReservationStatus, reason string, now time.Time) bool {
	if r.Status != ReservationHeld || status == ReservationHeld {
		return false
	}
	r.Status = status
	r.ReleaseReason = reason
	t := now
	r.ClosedAt = &t
	return true
}
