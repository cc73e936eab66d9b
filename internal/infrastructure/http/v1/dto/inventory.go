package dto

import (
	"stockledger/internal/core/types"
)

// --- Request DTOs for manual inventory movements ---

// ReceiptRequest books goods into a warehouse.
type ReceiptRequest struct {
	TripleRequest
	Quantity  int64       `json:"quantity" binding:"required"`
	UnitCost  types.Money `json:"unitCost"`
	ReceiptID string      `json:"receiptId"`
}

// AdjustmentRequest corrects on-hand by a signed delta.
type AdjustmentRequest struct {
	TripleRequest
	Delta        int64  `json:"delta" binding:"required"`
	Reason       string `json:"reason" binding:"required"`
	AdjustmentID string `json:"adjustmentId"`
}

// CountRequest sets on-hand to a counted quantity.
type CountRequest struct {
	TripleRequest
	Counted int64  `json:"counted" binding:"min=0"`
	Reason  string `json:"reason"`
}

// TransferRequest moves stock between two warehouses.
type TransferRequest struct {
	TripleRequest
	ToWarehouseID string `json:"toWarehouseId" binding:"required"`
	Quantity      int64  `json:"quantity" binding:"required"`
	TransferID    string `json:"transferId"`
}

// CountResponse reports the adjustment a count produced, if any.
type CountResponse struct {
	Changed  bool              `json:"changed"`
	Movement *MovementResponse `json:"movement,omitempty"`
}

// TransferResponse holds both legs of a transfer.
type TransferResponse struct {
	Outbound MovementResponse `json:"outbound"`
	Inbound  MovementResponse `json:"inbound"`
}
