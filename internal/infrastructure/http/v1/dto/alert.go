package dto

import (
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// AlertRuleRequest creates or re-thresholds the (triple, type) rule.
type AlertRuleRequest struct {
	TripleRequest
	AlertType string `json:"alertType" binding:"required,oneof=low_stock out_of_stock overstock"`
	Threshold int64  `json:"thresholdQuantity" binding:"min=0"`
}

// AlertResponse represents an alert rule and its state.
type AlertResponse struct {
	ID              string     `json:"id"`
	ProductID       string     `json:"productId"`
	VariantID       string     `json:"variantId,omitempty"`
	WarehouseID     string     `json:"warehouseId"`
	AlertType       string     `json:"alertType"`
	Threshold       int64      `json:"thresholdQuantity"`
	IsActive        bool       `json:"isActive"`
	LastTriggeredAt *time.Time `json:"lastTriggeredAt,omitempty"`
	LastResolvedAt  *time.Time `json:"lastResolvedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// FromAlert converts entity to response DTO.
func FromAlert(a entity.StockAlert) AlertResponse {
	resp := AlertResponse{
		ID:              a.ID.String(),
		ProductID:       a.ProductID.String(),
		WarehouseID:     a.WarehouseID.String(),
		AlertType:       string(a.Type),
		Threshold:       a.Threshold.Int64(),
		IsActive:        a.IsActive,
		LastTriggeredAt: a.LastTriggeredAt,
		LastResolvedAt:  a.LastResolvedAt,
		CreatedAt:       a.CreatedAt,
	}
	if !id.IsNil(a.VariantID) {
		resp.VariantID = a.VariantID.String()
	}
	return resp
}

// FromAlerts converts a slice of alerts.
func FromAlerts(as []entity.StockAlert) []AlertResponse {
	out := make([]AlertResponse, len(as))
	for i, a := range as {
		out[i] = FromAlert(a)
	}
	return out
}

// TransitionResponse reports an alert state change.
type TransitionResponse struct {
	Alert     AlertResponse `json:"alert"`
	Change    string        `json:"change"`
	Available int64         `json:"available"`
	At        time.Time     `json:"at"`
}

// FromTransitions converts alert transitions.
func FromTransitions(ts []entity.AlertTransition) []TransitionResponse {
	out := make([]TransitionResponse, len(ts))
	for i, t := range ts {
		out[i] = TransitionResponse{
			Alert:     FromAlert(t.Alert),
			Change:    string(t.Change),
			Available: t.Available.Int64(),
			At:        t.At,
		}
	}
	return out
}
