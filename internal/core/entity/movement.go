package entity

import (
	"fmt"
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// MovementType classifies an on-hand change.
type MovementType string

const (
	MovementIn         MovementType = "in"
	MovementOut        MovementType = "out"
	MovementAdjustment MovementType = "adjustment"
	MovementTransfer   MovementType = "transfer"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementIn, MovementOut, MovementAdjustment, MovementTransfer:
		return true
	}
	return false
}

// Movement is one immutable on-hand change in the ledger.
// Corrections are new offsetting movements, never edits.
type Movement struct {
	ID  id.ID `json:"id"`
	Seq int64 `json:"seq"`

	Triple

	Type           MovementType   `json:"type"`
	QuantityDelta  types.Quantity `json:"quantityDelta"`
	QuantityBefore types.Quantity `json:"quantityBefore"`
	QuantityAfter  types.Quantity `json:"quantityAfter"`
	UnitCost       *types.Money   `json:"unitCost,omitempty"`

	Reference Reference `json:"-"`

	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewMovement builds a movement against the current on-hand quantity.
func NewMovement(t Triple, typ MovementType, before, delta types.Quantity, ref Reference) Movement {
	return Movement{
		Triple:         t,
		Type:           typ,
		QuantityDelta:  delta,
		QuantityBefore: before,
		QuantityAfter:  before + delta,
		Reference:      ref,
	}
}

// Validate checks the arithmetic and the required fields.
func (m Movement) Validate() error {
	if err := m.Triple.Validate(); err != nil {
		return err
	}
	if !m.Type.Valid() {
		return fmt.Errorf("unknown movement type %q", m.Type)
	}
	if m.QuantityDelta == 0 {
		return fmt.Errorf("quantity delta must not be zero")
	}
	if m.QuantityAfter != m.QuantityBefore+m.QuantityDelta {
		return fmt.Errorf("quantity after %d != before %d + delta %d",
			m.QuantityAfter, m.QuantityBefore, m.QuantityDelta)
	}
	if m.Reference == nil {
		return fmt.Errorf("reference is required")
	}
	return nil
}
