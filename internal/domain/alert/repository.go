package alert

import (
	"context"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// Repository persists alert rules together with their derived state.
type Repository interface {
	// Get returns a rule by id or a NotFound error.
	Get(ctx context.Context, alertID id.ID) (entity.StockAlert, error)

	// ListByTriple returns every rule configured for the triple.
	ListByTriple(ctx context.Context, t entity.Triple) ([]entity.StockAlert, error)

	// Save inserts or replaces a rule. (triple, type) is unique.
	Save(ctx context.Context, a entity.StockAlert) error

	Delete(ctx context.Context, alertID id.ID) error

	// ListActive returns rules currently in the triggered state.
	ListActive(ctx context.Context) ([]entity.StockAlert, error)
}

// Notifier delivers triggered alerts to the outside world.
// It is always called after the triple lock has been released.
type Notifier interface {
	Notify(ctx context.Context, transitions []entity.AlertTransition) error
}
