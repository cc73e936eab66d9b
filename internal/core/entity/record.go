package entity

import (
	"time"

	"stockledger/internal/core/types"
)

// StockRecord holds the quantity state of one triple.
//
// Invariant: 0 <= Reserved <= OnHand. Records are never deleted, only zeroed.
type StockRecord struct {
	Triple

	OnHand      types.Quantity `db:"on_hand" json:"onHand"`
	Reserved    types.Quantity `db:"reserved" json:"reserved"`
	AverageCost types.Money    `db:"average_cost" json:"averageCost"`

	LastMovementAt *time.Time `db:"last_movement_at" json:"lastMovementAt,omitempty"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`

	// Version is bumped on every write; zero means the record was never persisted.
	Version int64 `db:"version" json:"version"`
}

// EmptyRecord returns the zero-valued record of a triple that has no stock yet.
func EmptyRecord(t Triple) StockRecord {
	return StockRecord{Triple: t, AverageCost: types.ZeroMoney()}
}

// Available is the quantity that can be sold right now.
func (r StockRecord) Available() types.Quantity {
	return r.OnHand - r.Reserved
}

// Exists reports whether the record has been persisted.
func (r StockRecord) Exists() bool {
	return r.Version > 0
}

// CheckInvariant reports the first broken quantity rule, or "" when the record is consistent.
func (r StockRecord) CheckInvariant() string {
	switch {
	case r.OnHand < 0:
		return "on-hand quantity would become negative"
	case r.Reserved < 0:
		return "reserved quantity would become negative"
	case r.Reserved > r.OnHand:
		return "reserved quantity would exceed on-hand quantity"
	}
	return ""
}

// WithDelta returns a copy with both deltas applied.
// lastMovementAt moves only when on-hand changes.
func (r StockRecord) WithDelta(onHandDelta, reservedDelta types.Quantity, now time.Time) StockRecord {
	r.OnHand += onHandDelta
	r.Reserved += reservedDelta
	if onHandDelta != 0 {
		t := now
		r.LastMovementAt = &t
	}
	r.UpdatedAt = now
	return r
}
