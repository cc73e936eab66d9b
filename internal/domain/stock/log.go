package stock

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
)

// Log is the append-only movement ledger.
type Log struct {
	repo    MovementRepository
	records RecordRepository
	now     func() time.Time
}

// NewLog creates a movement log. records is consulted to detect lost updates.
func NewLog(repo MovementRepository, records RecordRepository, opts ...LogOption) *Log {
	l := &Log{
		repo:    repo,
		records: records,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LogOption configures a Log.
type LogOption func(*Log)

// WithLogClock overrides the clock used for createdAt.
func WithLogClock(now func() time.Time) LogOption {
	return func(l *Log) { l.now = now }
}

// Append validates and writes a movement, returning its id.
func (l *Log) Append(ctx context.Context, m entity.Movement) (id.ID, error) {
	saved, err := l.Record(ctx, m)
	if err != nil {
		return id.Nil(), err
	}
	return saved.ID, nil
}

// Record is Append returning the stored movement.
//
// QuantityBefore must equal the store's current on-hand; a mismatch means another
// writer got in between and is reported as INCONSISTENT_LEDGER.
func (l *Log) Record(ctx context.Context, m entity.Movement) (entity.Movement, error) {
	if err := m.Validate(); err != nil {
		return m, apperror.NewInvalidArgument(err.Error())
	}

	cur, err := l.records.Get(ctx, m.Triple)
	if err != nil {
		return m, fmt.Errorf("get stock record %s: %w", m.Triple, err)
	}
	if cur.OnHand != m.QuantityBefore {
		return m, apperror.NewInconsistentLedger(m.Triple.Key(), m.QuantityBefore.Int64(), cur.OnHand.Int64())
	}

	m.ID = id.New()
	m.CreatedAt = l.now()
	if m.CreatedBy == "" {
		m.CreatedBy = appctx.Actor(ctx)
	}

	saved, err := l.repo.Append(ctx, m)
	if err != nil {
		return m, fmt.Errorf("append movement: %w", err)
	}
	return saved, nil
}

// History returns movements of a triple in append order, optionally from since on.
func (l *Log) History(ctx context.Context, t entity.Triple, since *time.Time) ([]entity.Movement, error) {
	return l.repo.History(ctx, t, since)
}

// ByReference returns the movements caused by one business document.
func (l *Log) ByReference(ctx context.Context, ref entity.Reference) ([]entity.Movement, error) {
	return l.repo.ByReference(ctx, ref)
}
