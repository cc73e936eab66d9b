package entity

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
)

// AlertType selects the threshold comparison of a stock alert.
type AlertType string

const (
	AlertLowStock   AlertType = "low_stock"
	AlertOutOfStock AlertType = "out_of_stock"
	AlertOverstock  AlertType = "overstock"
)

// Valid reports whether t is a known alert type.
func (t AlertType) Valid() bool {
	switch t {
	case AlertLowStock, AlertOutOfStock, AlertOverstock:
		return true
	}
	return false
}

// StockAlert is a threshold rule on a triple together with its derived state.
// IsActive reflects available vs threshold as of the last evaluation.
type StockAlert struct {
	ID id.ID `json:"id"`

	Triple

	Type      AlertType      `json:"alertType"`
	Threshold types.Quantity `json:"thresholdQuantity"`
	IsActive  bool           `json:"isActive"`

	LastTriggeredAt *time.Time `json:"lastTriggeredAt,omitempty"`
	LastResolvedAt  *time.Time `json:"lastResolvedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// NewStockAlert creates an inactive rule. out_of_stock always uses threshold 0.
func NewStockAlert(t Triple, typ AlertType, threshold types.Quantity, now time.Time) StockAlert {
	if typ == AlertOutOfStock {
		threshold = 0
	}
	return StockAlert{
		ID:        id.New(),
		Triple:    t,
		Type:      typ,
		Threshold: threshold,
		CreatedAt: now,
	}
}

// Breached reports whether available stock meets the alert condition.
func (a StockAlert) Breached(available types.Quantity) bool {
	switch a.Type {
	case AlertLowStock:
		return available <= a.Threshold
	case AlertOutOfStock:
		return available <= 0
	case AlertOverstock:
		return available >= a.Threshold
	}
	return false
}

// AlertChange tells what an evaluation did to an alert.
type AlertChange string

const (
	AlertTriggered AlertChange = "triggered"
	AlertCleared   AlertChange = "cleared"
)

// AlertTransition is produced when an evaluation toggles an alert.
type AlertTransition struct {
	Alert     StockAlert     `json:"alert"`
	Change    AlertChange    `json:"change"`
	Available types.Quantity `json:"available"`
	At        time.Time      `json:"at"`
}

// Evaluate toggles the alert against available stock.
// It returns the transition and true when the state changed.
func (a *StockAlert) Evaluate(available types.Quantity, now time.Time) (AlertTransition, bool) {
	breached := a.Breached(available)
	switch {
	case breached && !a.IsActive:
		a.IsActive = true
		t := now
		a.LastTriggeredAt = &t
		return AlertTransition{Alert: *a, Change: AlertTriggered, Available: available, At: now}, true
	case !breached && a.IsActive:
		a.IsActive = false
		t := now
		a.LastResolvedAt = &t
		return AlertTransition{Alert: *a, Change: AlertCleared, Available: available, At: now}, true
	}
	return AlertTransition{}, false
}
