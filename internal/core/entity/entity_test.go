package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/id"
)

func testTriple() Triple {
	return NewTriple(id.New(), id.Nil(), id.New())
}

func TestDecodeReference(t *testing.T) {
	refs := []Reference{
		OrderReference{OrderID: id.New(), ItemID: id.New()},
		TransferReference{TransferID: id.New()},
		AdjustmentReference{AdjustmentID: id.New(), Reason: "damaged"},
		AdjustmentReference{AdjustmentID: id.New()},
		ReceiptReference{ReceiptID: id.New()},
	}

	for _, ref := range refs {
		t.Run(string(ref.Kind()), func(t *testing.T) {
			decoded, err := DecodeReference(ref.Kind(), ref.Ref())
			require.NoError(t, err)
			assert.Equal(t, ref, decoded)
		})
	}

	_, err := DecodeReference("invoice", id.New().String())
	assert.Error(t, err)

	_, err = DecodeReference(ReferenceOrder, id.New().String())
	assert.Error(t, err, "order reference needs an item id")
}

func TestStockRecord_CheckInvariant(t *testing.T) {
	tr := testTriple()
	now := time.Now()

	rec := EmptyRecord(tr).WithDelta(10, 4, now)
	assert.Empty(t, rec.CheckInvariant())
	assert.EqualValues(t, 6, rec.Available())
	require.NotNil(t, rec.LastMovementAt)

	assert.NotEmpty(t, rec.WithDelta(-11, 0, now).CheckInvariant())
	assert.NotEmpty(t, rec.WithDelta(0, 7, now).CheckInvariant())
	assert.NotEmpty(t, rec.WithDelta(0, -5, now).CheckInvariant())
}

func TestStockRecord_WithDelta_ReservedOnlyKeepsLastMovement(t *testing.T) {
	rec := EmptyRecord(testTriple())
	rec = rec.WithDelta(0, 0, time.Now())
	assert.Nil(t, rec.LastMovementAt)
}

func TestReservation_Close(t *testing.T) {
	now := time.Now()
	r := NewReservation(testTriple(), 3, OrderReference{OrderID: id.New(), ItemID: id.New()}, now, time.Minute)

	require.NotNil(t, r.ExpiresAt)
	assert.False(t, r.IsExpiredAt(now))
	assert.True(t, r.IsExpiredAt(now.Add(time.Minute)))

	assert.True(t, r.Close(ReservationCommitted, "", now))
	assert.False(t, r.Close(ReservationReleased, "late", now), "terminal states have no way out")
	assert.Equal(t, ReservationCommitted, r.Status)
}

func TestStockAlert_Evaluate(t *testing.T) {
	now := time.Now()

	t.Run("low stock triggers at threshold and clears above", func(t *testing.T) {
		a := NewStockAlert(testTriple(), AlertLowStock, 3, now)

		_, changed := a.Evaluate(5, now)
		assert.False(t, changed)

		tr, changed := a.Evaluate(3, now)
		require.True(t, changed)
		assert.Equal(t, AlertTriggered, tr.Change)
		assert.True(t, a.IsActive)
		assert.NotNil(t, a.LastTriggeredAt)

		_, changed = a.Evaluate(1, now)
		assert.False(t, changed, "already active")

		tr, changed = a.Evaluate(4, now)
		require.True(t, changed)
		assert.Equal(t, AlertCleared, tr.Change)
		assert.NotNil(t, a.LastResolvedAt)
	})

	t.Run("out of stock forces zero threshold", func(t *testing.T) {
		a := NewStockAlert(testTriple(), AlertOutOfStock, 10, now)
		assert.EqualValues(t, 0, a.Threshold)
		assert.False(t, a.Breached(1))
		assert.True(t, a.Breached(0))
	})

	t.Run("overstock inverts the comparison", func(t *testing.T) {
		a := NewStockAlert(testTriple(), AlertOverstock, 100, now)
		assert.False(t, a.Breached(99))
		assert.True(t, a.Breached(100))
	})
}
