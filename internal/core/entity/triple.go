// Package entity provides the stock ledger domain entities.
package entity

import (
	"fmt"

	"stockledger/internal/core/id"
)

// Triple identifies one stock record: a product, an optional variant and a warehouse.
// A nil VariantID means the product has no variant.
type Triple struct {
	ProductID   id.ID `db:"product_id" json:"productId"`
	VariantID   id.ID `db:"variant_id" json:"variantId"`
	WarehouseID id.ID `db:"warehouse_id" json:"warehouseId"`
}

// NewTriple builds a triple. Pass id.Nil() for a product without variants.
func NewTriple(productID, variantID, warehouseID id.ID) Triple {
	return Triple{ProductID: productID, VariantID: variantID, WarehouseID: warehouseID}
}

// Key returns a stable string form used for lock names and map keys.
func (t Triple) Key() string {
	return fmt.Sprintf("%s:%s:%s", t.ProductID, t.VariantID, t.WarehouseID)
}

// String implements fmt.Stringer.
func (t Triple) String() string {
	return t.Key()
}

// HasVariant reports whether the triple addresses a product variant.
func (t Triple) HasVariant() bool {
	return !id.IsNil(t.VariantID)
}

// InWarehouse returns the same product/variant in another warehouse.
func (t Triple) InWarehouse(warehouseID id.ID) Triple {
	t.WarehouseID = warehouseID
	return t
}

// Validate checks that product and warehouse are set.
func (t Triple) Validate() error {
	if id.IsNil(t.ProductID) {
		return fmt.Errorf("product_id is required")
	}
	if id.IsNil(t.WarehouseID) {
		return fmt.Errorf("warehouse_id is required")
	}
	return nil
}
