// Package memory is an in-process storage backend. It implements every ledger
// repository and a tx.Manager whose rollback undoes the writes made through ctx.
package memory

import (
	"context"
	"sync"

	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/tx"
)

// DB holds all ledger state.
type DB struct {
	mu sync.RWMutex

	records      map[string]entity.StockRecord
	movements    map[string][]entity.Movement
	seq          int64
	reservations map[id.ID]entity.Reservation
	alerts       map[id.ID]entity.StockAlert
}

// NewDB creates an empty database.
func NewDB() *DB {
	return &DB{
		records:      make(map[string]entity.StockRecord),
		movements:    make(map[string][]entity.Movement),
		reservations: make(map[id.ID]entity.Reservation),
		alerts:       make(map[id.ID]entity.StockAlert),
	}
}

var _ tx.Manager = (*DB)(nil)

type txKey struct{}

type txState struct {
	mu   sync.Mutex
	undo []func()
}

// RunInTransaction implements tx.Manager. Nested calls join the outer transaction.
//
// Isolation comes from the caller's triple lock; the transaction only provides
// all-or-nothing visibility of its own writes.
func (db *DB) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}

	st := &txState{}
	if err := fn(context.WithValue(ctx, txKey{}, st)); err != nil {
		db.rollback(st)
		return err
	}
	return nil
}

func (db *DB) rollback(st *txState) {
	st.mu.Lock()
	undo := st.undo
	st.undo = nil
	st.mu.Unlock()

	db.mu.Lock()
	defer db.mu.Unlock()
	for i := len(undo) - 1; i >= 0; i-- {
		undo[i]()
	}
}

// write applies mutate under the write lock and registers its undo with the
// transaction in ctx, if any.
func (db *DB) write(ctx context.Context, mutate func() (undo func(), err error)) error {
	db.mu.Lock()
	undo, err := mutate()
	db.mu.Unlock()
	if err != nil {
		return err
	}

	if st, ok := ctx.Value(txKey{}).(*txState); ok && undo != nil {
		st.mu.Lock()
		st.undo = append(st.undo, undo)
		st.mu.Unlock()
	}
	return nil
}
