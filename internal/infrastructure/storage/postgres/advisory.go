package postgres

import (
	"context"
	"fmt"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/lock"
)

// AdvisoryGuard serializes per-key work across processes with transaction-scoped
// advisory locks. The lock is taken inside the transaction fn runs in and is
// released by PostgreSQL at commit or rollback. Acquisition is bounded by the
// TxManager's lock_timeout.
//
// Advisory locks are reentrant within a session, so nested Serialize calls on
// the same transaction never block on themselves.
type AdvisoryGuard struct {
	txm *TxManager
}

var _ lock.Serializer = (*AdvisoryGuard)(nil)

// NewAdvisoryGuard creates an AdvisoryGuard.
func NewAdvisoryGuard(txm *TxManager) *AdvisoryGuard {
	return &AdvisoryGuard{txm: txm}
}

// Serialize implements lock.Serializer.
func (g *AdvisoryGuard) Serialize(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return g.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		tx := g.txm.GetTx(ctx)
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", key); err != nil {
			if IsLockNotAvailable(err) {
				return apperror.NewLockTimeout(key).WithCause(err)
			}
			return fmt.Errorf("advisory lock %s: %w", key, err)
		}
		return fn(ctx)
	})
}
