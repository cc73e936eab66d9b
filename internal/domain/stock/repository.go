// Package stock provides the stock record store and the movement log.
package stock

import (
	"context"
	"time"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// RecordRepository persists stock records.
type RecordRepository interface {
	// Get returns the record of a triple, or entity.EmptyRecord when none exists.
	Get(ctx context.Context, t entity.Triple) (entity.StockRecord, error)

	// Save writes rec if the stored version still equals rec.Version and returns
	// the record with its new version. A version mismatch is INCONSISTENT_LEDGER.
	Save(ctx context.Context, rec entity.StockRecord) (entity.StockRecord, error)

	// ListByWarehouse returns records of a warehouse ordered by product.
	ListByWarehouse(ctx context.Context, warehouseID id.ID, filter RecordFilter) ([]entity.StockRecord, error)

	// ListByProduct returns non-zero records of a product across warehouses.
	ListByProduct(ctx context.Context, productID id.ID) ([]entity.StockRecord, error)
}

// RecordFilter for warehouse listings.
type RecordFilter struct {
	ExcludeZero bool
	ProductIDs  []id.ID
}

// MovementRepository is the append-only movement store.
// It deliberately exposes no update or delete operation.
type MovementRepository interface {
	// Append stores m and assigns its sequence number.
	Append(ctx context.Context, m entity.Movement) (entity.Movement, error)

	// History returns the movements of a triple in append order.
	History(ctx context.Context, t entity.Triple, since *time.Time) ([]entity.Movement, error)

	// ByReference returns movements caused by one business document, in append order.
	ByReference(ctx context.Context, ref entity.Reference) ([]entity.Movement, error)
}

// Observer is notified synchronously, inside the same transaction, after every
// record write.
type Observer interface {
	StockChanged(ctx context.Context, rec entity.StockRecord) error
}
