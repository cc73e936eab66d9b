package stock_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/stock"
	"stockledger/internal/infrastructure/storage/memory"
)

type countingObserver struct {
	seen []entity.StockRecord
}

func (o *countingObserver) StockChanged(_ context.Context, rec entity.StockRecord) error {
	o.seen = append(o.seen, rec)
	return nil
}

func newTriple() entity.Triple {
	return entity.NewTriple(id.New(), id.Nil(), id.New())
}

func TestStore_GetMissingRecordIsZero(t *testing.T) {
	store := stock.NewStore(memory.NewRecordRepo(memory.NewDB()))

	rec, err := store.Get(context.Background(), newTriple())
	require.NoError(t, err)
	assert.False(t, rec.Exists())
	assert.EqualValues(t, 0, rec.Available())
}

func TestStore_ApplyDelta(t *testing.T) {
	obs := &countingObserver{}
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	store := stock.NewStore(memory.NewRecordRepo(memory.NewDB()),
		stock.WithObserver(obs),
		stock.WithStoreClock(func() time.Time { return now }),
	)
	ctx := context.Background()
	tr := newTriple()

	rec, err := store.ApplyDelta(ctx, tr, 10, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 10, rec.OnHand)
	assert.EqualValues(t, 1, rec.Version)
	require.NotNil(t, rec.LastMovementAt)
	assert.Equal(t, now, *rec.LastMovementAt)

	rec, err = store.ApplyDelta(ctx, tr, 0, 4)
	require.NoError(t, err)
	assert.EqualValues(t, 6, rec.Available())
	assert.EqualValues(t, 2, rec.Version)
	assert.Len(t, obs.seen, 2, "observer sees every change")
}

func TestStore_ApplyDeltaRejectsInvariantBreaks(t *testing.T) {
	store := stock.NewStore(memory.NewRecordRepo(memory.NewDB()))
	ctx := context.Background()
	tr := newTriple()

	_, err := store.ApplyDelta(ctx, tr, 5, 3)
	require.NoError(t, err)

	tests := []struct {
		name             string
		onHand, reserved types.Quantity
	}{
		{"negative on-hand", -6, 0},
		{"negative reserved", 0, -4},
		{"reserved above on-hand", -3, 0},
		{"over-reserve", 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.ApplyDelta(ctx, tr, tt.onHand, tt.reserved)
			assert.True(t, apperror.Is(err, apperror.CodeInvariantViolation), "%v", err)
		})
	}

	_, err = store.ApplyDelta(ctx, tr, 0, 0)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument))

	rec, err := store.Get(ctx, tr)
	require.NoError(t, err)
	assert.EqualValues(t, 5, rec.OnHand)
	assert.EqualValues(t, 3, rec.Reserved)
}

func TestStore_ApplyDeltaRejectsOverflow(t *testing.T) {
	store := stock.NewStore(memory.NewRecordRepo(memory.NewDB()))
	ctx := context.Background()
	tr := newTriple()

	_, err := store.ApplyDelta(ctx, tr, 1, 0)
	require.NoError(t, err)

	_, err = store.ApplyDelta(ctx, tr, math.MaxInt64, 0)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument), "%v", err)

	_, err = store.ApplyReceipt(ctx, tr, math.MaxInt64, types.MustMoney("1"))
	assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument), "%v", err)

	rec, err := store.Get(ctx, tr)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rec.OnHand)
}

func TestStore_ProductAvailabilitySumsWarehouses(t *testing.T) {
	store := stock.NewStore(memory.NewRecordRepo(memory.NewDB()))
	ctx := context.Background()
	a := newTriple()
	b := a.InWarehouse(id.New())

	_, err := store.ApplyDelta(ctx, a, 5, 2)
	require.NoError(t, err)
	_, err = store.ApplyDelta(ctx, b, 4, 0)
	require.NoError(t, err)

	total, err := store.ProductAvailability(ctx, a.ProductID)
	require.NoError(t, err)
	assert.EqualValues(t, 7, total)

	recs, err := store.WarehouseStock(ctx, b.WarehouseID)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, b, recs[0].Triple)
}

func TestLog_Append(t *testing.T) {
	db := memory.NewDB()
	records := memory.NewRecordRepo(db)
	store := stock.NewStore(records)
	log := stock.NewLog(memory.NewMovementRepo(db), records)
	ctx := context.Background()
	tr := newTriple()
	ref := entity.ReceiptReference{ReceiptID: id.New()}

	_, err := store.ApplyDelta(ctx, tr, 5, 0)
	require.NoError(t, err)

	t.Run("stale before quantity", func(t *testing.T) {
		_, err := log.Append(ctx, entity.NewMovement(tr, entity.MovementIn, 4, 1, ref))
		assert.True(t, apperror.Is(err, apperror.CodeInconsistentLedger))
	})

	t.Run("broken arithmetic", func(t *testing.T) {
		m := entity.NewMovement(tr, entity.MovementIn, 5, 1, ref)
		m.QuantityAfter = 7
		_, err := log.Append(ctx, m)
		assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument))
	})

	t.Run("zero delta", func(t *testing.T) {
		_, err := log.Append(ctx, entity.NewMovement(tr, entity.MovementIn, 5, 0, ref))
		assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument))
	})

	movementID, err := log.Append(ctx, entity.NewMovement(tr, entity.MovementIn, 5, 2, ref))
	require.NoError(t, err)
	assert.False(t, id.IsNil(movementID))

	history, err := log.History(ctx, tr, nil)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, movementID, history[0].ID)
	assert.Equal(t, "system", history[0].CreatedBy)

	future := time.Now().Add(time.Hour)
	later, err := log.History(ctx, tr, &future)
	require.NoError(t, err)
	assert.Empty(t, later)
}
