package inventory_test

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/domain/reservation"
	"stockledger/internal/ledgertest"
)

func TestReceive_WeightedAverageCost(t *testing.T) {
	env := ledgertest.New(t)
	ctx := context.Background()
	tr := ledgertest.Triple()

	_, err := env.Inventory.Receive(ctx, inventory.ReceiveRequest{Triple: tr, Quantity: 10, UnitCost: types.MustMoney("2.00")})
	require.NoError(t, err)
	mv, err := env.Inventory.Receive(ctx, inventory.ReceiveRequest{Triple: tr, Quantity: 30, UnitCost: types.MustMoney("3.00")})
	require.NoError(t, err)

	assert.Equal(t, entity.MovementIn, mv.Type)
	require.NotNil(t, mv.UnitCost)
	assert.True(t, mv.UnitCost.Equal(types.MustMoney("3")))
	assert.IsType(t, entity.ReceiptReference{}, mv.Reference)

	rec := env.Record(t, tr)
	assert.EqualValues(t, 40, rec.OnHand)
	assert.True(t, rec.AverageCost.Equal(types.MustMoney("2.75")), "got %s", rec.AverageCost)
}

func TestReceive_RejectsBadInput(t *testing.T) {
	env := ledgertest.New(t)
	ctx := context.Background()

	_, err := env.Inventory.Receive(ctx, inventory.ReceiveRequest{Triple: ledgertest.Triple(), Quantity: 0})
	assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument))

	_, err = env.Inventory.Receive(ctx, inventory.ReceiveRequest{Triple: ledgertest.Triple(), Quantity: 1, UnitCost: types.MustMoney("-1")})
	assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument))
}

func TestReceive_HugeQuantityIsInvalidArgument(t *testing.T) {
	env := ledgertest.New(t)
	ctx := context.Background()
	tr := ledgertest.Triple()

	_, err := env.Inventory.Receive(ctx, inventory.ReceiveRequest{Triple: tr, Quantity: 1, UnitCost: types.MustMoney("1")})
	require.NoError(t, err)

	_, err = env.Inventory.Receive(ctx, inventory.ReceiveRequest{Triple: tr, Quantity: math.MaxInt64, UnitCost: types.MustMoney("1")})
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument), "%v", err)
	assert.False(t, apperror.Is(err, apperror.CodeInvariantViolation))

	assert.EqualValues(t, 1, env.Record(t, tr).OnHand)
	assert.Len(t, env.History(t, tr), 1)
}

func TestTransfer_InboundOverflowIsInvalidArgument(t *testing.T) {
	env := ledgertest.New(t)
	ctx := context.Background()
	from := ledgertest.Triple()
	to := from.InWarehouse(id.New())
	env.Seed(t, from, 5)
	env.Seed(t, to, math.MaxInt64-2)

	_, err := env.Inventory.Transfer(ctx, inventory.TransferRequest{From: from, ToWarehouse: to.WarehouseID, Quantity: 5})
	assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument), "%v", err)

	assert.EqualValues(t, 5, env.Record(t, from).OnHand)
	assert.Len(t, env.History(t, from), 1)
}

func TestAdjust_CannotCutIntoReservedStock(t *testing.T) {
	env := ledgertest.New(t)
	ctx := context.Background()
	tr := ledgertest.Triple()
	env.Seed(t, tr, 10)

	_, err := env.Reservations.Reserve(ctx, reservation.ReserveRequest{Triple: tr, Quantity: 7, Reference: ledgertest.OrderRef()})
	require.NoError(t, err)

	_, err = env.Inventory.Adjust(ctx, inventory.AdjustRequest{Triple: tr, Delta: -4, Reason: "damaged"})
	assert.True(t, apperror.Is(err, apperror.CodeInsufficientStock))

	mv, err := env.Inventory.Adjust(ctx, inventory.AdjustRequest{Triple: tr, Delta: -3, Reason: "damaged"})
	require.NoError(t, err)
	assert.Equal(t, entity.MovementAdjustment, mv.Type)
	ref, ok := mv.Reference.(entity.AdjustmentReference)
	require.True(t, ok)
	assert.Equal(t, "damaged", ref.Reason)

	rec := env.Record(t, tr)
	assert.EqualValues(t, 7, rec.OnHand)
	assert.EqualValues(t, 0, rec.Available())
}

func TestCount_SetsAbsoluteQuantity(t *testing.T) {
	env := ledgertest.New(t)
	ctx := context.Background()
	tr := ledgertest.Triple()
	env.Seed(t, tr, 10)

	mv, err := env.Inventory.Count(ctx, inventory.CountRequest{Triple: tr, Counted: 8})
	require.NoError(t, err)
	require.NotNil(t, mv)
	assert.EqualValues(t, -2, mv.QuantityDelta)
	assert.EqualValues(t, 8, env.Record(t, tr).OnHand)

	mv, err = env.Inventory.Count(ctx, inventory.CountRequest{Triple: tr, Counted: 8})
	require.NoError(t, err)
	assert.Nil(t, mv, "matching count writes nothing")
	assert.Len(t, env.History(t, tr), 2)
}

func TestTransfer_ConservesTotal(t *testing.T) {
	env := ledgertest.New(t)
	ctx := context.Background()
	from := ledgertest.Triple()
	to := from.InWarehouse(id.New())
	env.Seed(t, from, 10)

	res, err := env.Inventory.Transfer(ctx, inventory.TransferRequest{From: from, ToWarehouse: to.WarehouseID, Quantity: 4})
	require.NoError(t, err)

	assert.Equal(t, entity.MovementTransfer, res.Outbound.Type)
	assert.Equal(t, entity.MovementTransfer, res.Inbound.Type)
	assert.True(t, entity.SameReference(res.Outbound.Reference, res.Inbound.Reference))

	src, dst := env.Record(t, from), env.Record(t, to)
	assert.EqualValues(t, 6, src.OnHand)
	assert.EqualValues(t, 4, dst.OnHand)
	assert.True(t, dst.AverageCost.Equal(src.AverageCost), "cost travels with the stock")

	byRef, err := env.Log.ByReference(ctx, res.Outbound.Reference)
	require.NoError(t, err)
	assert.Len(t, byRef, 2)

	_, err = env.Inventory.Transfer(ctx, inventory.TransferRequest{From: from, ToWarehouse: to.WarehouseID, Quantity: 7})
	assert.True(t, apperror.Is(err, apperror.CodeInsufficientStock))

	_, err = env.Inventory.Transfer(ctx, inventory.TransferRequest{From: from, ToWarehouse: from.WarehouseID, Quantity: 1})
	assert.True(t, apperror.Is(err, apperror.CodeInvalidArgument))
}

func TestTransfer_OppositeDirectionsDoNotDeadlock(t *testing.T) {
	env := ledgertest.New(t)
	ctx := context.Background()
	a := ledgertest.Triple()
	b := a.InWarehouse(id.New())
	env.Seed(t, a, 100)
	env.Seed(t, b, 100)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := env.Inventory.Transfer(ctx, inventory.TransferRequest{From: a, ToWarehouse: b.WarehouseID, Quantity: 1})
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := env.Inventory.Transfer(ctx, inventory.TransferRequest{From: b, ToWarehouse: a.WarehouseID, Quantity: 1})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 200, env.Record(t, a).OnHand+env.Record(t, b).OnHand)
}
