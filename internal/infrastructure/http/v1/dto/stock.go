package dto

import (
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// --- Response DTOs for stock records and movements ---

// StockRecordResponse represents a stock record in API responses.
type StockRecordResponse struct {
	ProductID      string     `json:"productId"`
	VariantID      string     `json:"variantId,omitempty"`
	WarehouseID    string     `json:"warehouseId"`
	OnHand         int64      `json:"onHand"`
	Reserved       int64      `json:"reserved"`
	Available      int64      `json:"available"`
	AverageCost    string     `json:"averageCost"`
	LastMovementAt *time.Time `json:"lastMovementAt,omitempty"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
	Version        int64      `json:"version"`
}

// FromStockRecord converts entity to response DTO.
func FromStockRecord(r entity.StockRecord) StockRecordResponse {
	resp := StockRecordResponse{
		ProductID:      r.ProductID.String(),
		WarehouseID:    r.WarehouseID.String(),
		OnHand:         r.OnHand.Int64(),
		Reserved:       r.Reserved.Int64(),
		Available:      r.Available().Int64(),
		AverageCost:    r.AverageCost.StringFixed(4),
		LastMovementAt: r.LastMovementAt,
		Version:        r.Version,
	}
	if !id.IsNil(r.VariantID) {
		resp.VariantID = r.VariantID.String()
	}
	// A record that was never written has no meaningful update time.
	if !r.UpdatedAt.IsZero() {
		updated := r.UpdatedAt
		resp.UpdatedAt = &updated
	}
	return resp
}

// MovementResponse represents a stock movement in API responses.
type MovementResponse struct {
	ID             string             `json:"id"`
	Seq            int64              `json:"seq"`
	ProductID      string             `json:"productId"`
	VariantID      string             `json:"variantId,omitempty"`
	WarehouseID    string             `json:"warehouseId"`
	Type           string             `json:"movementType"`
	QuantityDelta  int64              `json:"quantityDelta"`
	QuantityBefore int64              `json:"quantityBefore"`
	QuantityAfter  int64              `json:"quantityAfter"`
	UnitCost       *string            `json:"unitCost,omitempty"`
	Reference      *ReferenceResponse `json:"reference"`
	CreatedBy      string             `json:"createdBy"`
	CreatedAt      time.Time          `json:"createdAt"`
}

// FromMovement converts entity to response DTO.
func FromMovement(m entity.Movement) MovementResponse {
	resp := MovementResponse{
		ID:             m.ID.String(),
		Seq:            m.Seq,
		ProductID:      m.ProductID.String(),
		WarehouseID:    m.WarehouseID.String(),
		Type:           string(m.Type),
		QuantityDelta:  m.QuantityDelta.Int64(),
		QuantityBefore: m.QuantityBefore.Int64(),
		QuantityAfter:  m.QuantityAfter.Int64(),
		Reference:      FromReference(m.Reference),
		CreatedBy:      m.CreatedBy,
		CreatedAt:      m.CreatedAt,
	}
	if !id.IsNil(m.VariantID) {
		resp.VariantID = m.VariantID.String()
	}
	if m.UnitCost != nil {
		cost := m.UnitCost.StringFixed(4)
		resp.UnitCost = &cost
	}
	return resp
}

// FromMovements converts a slice of movements.
func FromMovements(ms []entity.Movement) []MovementResponse {
	out := make([]MovementResponse, len(ms))
	for i, m := range ms {
		out[i] = FromMovement(m)
	}
	return out
}

// FromStockRecords converts a slice of records.
func FromStockRecords(rs []entity.StockRecord) []StockRecordResponse {
	out := make([]StockRecordResponse, len(rs))
	for i, r := range rs {
		out[i] = FromStockRecord(r)
	}
	return out
}

// ProductAvailabilityResponse is the availability of a product across warehouses.
type ProductAvailabilityResponse struct {
	ProductID string `json:"productId"`
	Available int64  `json:"available"`
}
