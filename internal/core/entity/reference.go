package entity

import (
	"fmt"
	"strings"

	"stockledger/internal/core/id"
)

// Reference points at the business document that caused a reservation or movement.
// It is a closed set: OrderReference, TransferReference, AdjustmentReference and
// ReceiptReference are the only implementations.
type Reference interface {
	// Kind is the persisted reference_type.
	Kind() ReferenceKind
	// Ref is the persisted reference_id.
	Ref() string

	sealed()
}

// ReferenceKind is the discriminator of a Reference.
type ReferenceKind string

const (
	ReferenceOrder      ReferenceKind = "order"
	ReferenceTransfer   ReferenceKind = "transfer"
	ReferenceAdjustment ReferenceKind = "adjustment"
	ReferenceReceipt    ReferenceKind = "receipt"
)

// OrderReference points at one order item.
type OrderReference struct {
	OrderID id.ID `json:"orderId"`
	ItemID  id.ID `json:"itemId"`
}

func (OrderReference) Kind() ReferenceKind { return ReferenceOrder }
func (r OrderReference) Ref() string       { return r.OrderID.String() + "/" + r.ItemID.String() }
func (OrderReference) sealed()             {}

// TransferReference points at a warehouse-to-warehouse transfer.
type TransferReference struct {
	TransferID id.ID `json:"transferId"`
}

func (TransferReference) Kind() ReferenceKind { return ReferenceTransfer }
func (r TransferReference) Ref() string       { return r.TransferID.String() }
func (TransferReference) sealed()             {}

// AdjustmentReference points at a manual correction or stock count.
type AdjustmentReference struct {
	AdjustmentID id.ID  `json:"adjustmentId"`
	Reason       string `json:"reason,omitempty"`
}

func (AdjustmentReference) Kind() ReferenceKind { return ReferenceAdjustment }
func (r AdjustmentReference) Ref() string {
	if r.Reason == "" {
		return r.AdjustmentID.String()
	}
	return r.AdjustmentID.String() + "/" + r.Reason
}
func (AdjustmentReference) sealed() {}

// ReceiptReference points at a goods receipt.
type ReceiptReference struct {
	ReceiptID id.ID `json:"receiptId"`
}

func (ReceiptReference) Kind() ReferenceKind { return ReferenceReceipt }
func (r ReceiptReference) Ref() string       { return r.ReceiptID.String() }
func (ReceiptReference) sealed()             {}

// DecodeReference rebuilds a Reference from its persisted (type, id) pair.
func DecodeReference(kind ReferenceKind, ref string) (Reference, error) {
	switch kind {
	case ReferenceOrder:
		orderPart, itemPart, ok := strings.Cut(ref, "/")
		if !ok {
			return nil, fmt.Errorf("order reference %q: missing item id", ref)
		}
		orderID, err := id.Parse(orderPart)
		if err != nil {
			return nil, fmt.Errorf("order reference %q: %w", ref, err)
		}
		itemID, err := id.Parse(itemPart)
		if err != nil {
			return nil, fmt.Errorf("order reference %q: %w", ref, err)
		}
		return OrderReference{OrderID: orderID, ItemID: itemID}, nil

	case ReferenceTransfer:
		transferID, err := id.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("transfer reference %q: %w", ref, err)
		}
		return TransferReference{TransferID: transferID}, nil

	case ReferenceAdjustment:
		idPart, reason, _ := strings.Cut(ref, "/")
		adjustmentID, err := id.Parse(idPart)
		if err != nil {
			return nil, fmt.Errorf("adjustment reference %q: %w", ref, err)
		}
		return AdjustmentReference{AdjustmentID: adjustmentID, Reason: reason}, nil

	case ReferenceReceipt:
		receiptID, err := id.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("receipt reference %q: %w", ref, err)
		}
		return ReceiptReference{ReceiptID: receiptID}, nil
	}
	return nil, fmt.Errorf("unknown reference type %q", kind)
}

// SameReference compares two references by kind and persisted id.
func SameReference(a, b Reference) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Kind() == b.Kind() && a.Ref() == b.Ref()
}
