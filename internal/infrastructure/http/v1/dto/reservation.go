package dto

import (
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// ReferenceRequest names the business document a reservation serves.
// type is "order" (orderId + itemId) or "transfer" (transferId).
type ReferenceRequest struct {
	Type       string `json:"type" binding:"required,oneof=order transfer"`
	OrderID    string `json:"orderId"`
	ItemID     string `json:"itemId"`
	TransferID string `json:"transferId"`
}

// ToReference parses the reference.
func (r ReferenceRequest) ToReference() (entity.Reference, error) {
	switch entity.ReferenceKind(r.Type) {
	case entity.ReferenceOrder:
		orderID, err := parseID("reference.orderId", r.OrderID)
		if err != nil {
			return nil, err
		}
		itemID, err := parseID("reference.itemId", r.ItemID)
		if err != nil {
			return nil, err
		}
		return entity.OrderReference{OrderID: orderID, ItemID: itemID}, nil
	case entity.ReferenceTransfer:
		transferID, err := parseID("reference.transferId", r.TransferID)
		if err != nil {
			return nil, err
		}
		return entity.TransferReference{TransferID: transferID}, nil
	}
	return nil, apperror.NewValidation("reference.type must be order or transfer")
}

// ReserveRequest places a hold on stock.
type ReserveRequest struct {
	TripleRequest
	Quantity   int64            `json:"quantity" binding:"required"`
	Reference  ReferenceRequest `json:"reference" binding:"required"`
	TTLSeconds int64            `json:"ttlSeconds" binding:"min=0,max=31622400"` // at most 366 days
}

// TTL returns the requested lifetime; zero selects the configured default.
func (r ReserveRequest) TTL() time.Duration {
	return time.Duration(r.TTLSeconds) * time.Second
}

// ReleaseRequest carries the optional release reason.
type ReleaseRequest struct {
	Reason string `json:"reason"`
}

// ExpireRequest runs the sweep as of a given instant (defaults to now).
type ExpireRequest struct {
	Now *time.Time `json:"now"`
}

// ExpireResponse reports how many reservations the sweep expired.
type ExpireResponse struct {
	Expired int `json:"expired"`
}

// ReservationResponse represents a reservation in API responses.
type ReservationResponse struct {
	ID            string             `json:"id"`
	ProductID     string             `json:"productId"`
	VariantID     string             `json:"variantId,omitempty"`
	WarehouseID   string             `json:"warehouseId"`
	Quantity      int64              `json:"quantity"`
	Reference     *ReferenceResponse `json:"reference"`
	Status        string             `json:"status"`
	CreatedAt     time.Time          `json:"createdAt"`
	ExpiresAt     *time.Time         `json:"expiresAt,omitempty"`
	ClosedAt      *time.Time         `json:"closedAt,omitempty"`
	ReleaseReason string             `json:"releaseReason,omitempty"`
}

// FromReservation converts entity to response DTO.
func FromReservation(r entity.Reservation) ReservationResponse {
	resp := ReservationResponse{
		ID:            r.ID.String(),
		ProductID:     r.ProductID.String(),
		WarehouseID:   r.WarehouseID.String(),
		Quantity:      r.Quantity.Int64(),
		Reference:     FromReference(r.Reference),
		Status:        string(r.Status),
		CreatedAt:     r.CreatedAt,
		ExpiresAt:     r.ExpiresAt,
		ClosedAt:      r.ClosedAt,
		ReleaseReason: r.ReleaseReason,
	}
	if !id.IsNil(r.VariantID) {
		resp.VariantID = r.VariantID.String()
	}
	return resp
}

// FromReservations converts a slice of reservations.
func FromReservations(rs []entity.Reservation) []ReservationResponse {
	out := make([]ReservationResponse, len(rs))
	for i, r := range rs {
		out[i] = FromReservation(r)
	}
	return out
}
