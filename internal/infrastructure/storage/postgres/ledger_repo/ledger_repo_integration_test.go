//go:build integration

package ledger_repo_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"stockledger/internal/app"
	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/domain/reservation"
	"stockledger/internal/infrastructure/storage/postgres"
	"stockledger/internal/infrastructure/storage/postgres/ledger_repo"
	"stockledger/internal/ledgertest"
)

var testDSN string

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("stockledger_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		panic(err)
	}

	testDSN, err = container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		panic(err)
	}

	migrator, err := postgres.NewMigrator(testDSN)
	if err != nil {
		panic(err)
	}
	if err := migrator.Up(ctx); err != nil {
		panic(err)
	}
	_ = migrator.Close()

	code := m.Run()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

type pgEnv struct {
	*app.Ledger
	txm      *postgres.TxManager
	records  *ledger_repo.RecordRepo
	notifier *ledgertest.Notifier
}

func newPGEnv(t *testing.T) *pgEnv {
	t.Helper()
	ctx := context.Background()

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(testDSN))
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	opts := postgres.DefaultTxOptions()
	opts.LockTimeout = 2 * time.Second
	txm := postgres.NewTxManager(pool, opts)

	records := ledger_repo.NewRecordRepo(txm)
	notifier := &ledgertest.Notifier{}
	ledger := app.NewLedger(app.Repositories{
		Records:      records,
		Movements:    ledger_repo.NewMovementRepo(txm),
		Reservations: ledger_repo.NewReservationRepo(txm),
		Alerts:       ledger_repo.NewAlertRepo(txm),
	}, app.Options{
		Guard:       postgres.NewAdvisoryGuard(txm),
		Notifier:    notifier,
		Reservation: reservation.DefaultConfig(),
	})

	return &pgEnv{Ledger: ledger, txm: txm, records: records, notifier: notifier}
}

func TestPostgres_ReceiveReserveCommit(t *testing.T) {
	env := newPGEnv(t)
	ctx := context.Background()
	tr := ledgertest.Triple()

	_, err := env.Inventory.Receive(ctx, inventory.ReceiveRequest{
		Triple: tr, Quantity: 10, UnitCost: types.MustMoney("2.50"),
	})
	require.NoError(t, err)

	res, err := env.Reservations.Reserve(ctx, reservation.ReserveRequest{
		Triple: tr, Quantity: 4, Reference: ledgertest.OrderRef(),
	})
	require.NoError(t, err)

	rec, err := env.Store.Get(ctx, tr)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(10), rec.OnHand)
	assert.Equal(t, types.Quantity(4), rec.Reserved)
	assert.True(t, rec.AverageCost.Equal(types.MustMoney("2.5")))

	mv, err := env.Reservations.Commit(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.MovementOut, mv.Type)
	assert.Equal(t, types.Quantity(-4), mv.QuantityDelta)

	rec, err = env.Store.Get(ctx, tr)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(6), rec.OnHand)
	assert.Equal(t, types.Quantity(0), rec.Reserved)

	history, err := env.Log.History(ctx, tr, nil)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Less(t, history[0].Seq, history[1].Seq)
	assert.True(t, entity.SameReference(res.Reference, history[1].Reference))

	got, err := env.Reservations.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationCommitted, got.Status)

	_, err = env.Reservations.Commit(ctx, res.ID)
	assert.True(t, apperror.Is(err, apperror.CodeInvalidState))
}

func TestPostgres_RecordSaveRejectsStaleVersion(t *testing.T) {
	env := newPGEnv(t)
	ctx := context.Background()
	tr := ledgertest.Triple()

	first, err := env.records.Save(ctx, entity.EmptyRecord(tr).WithDelta(5, 0, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version)

	_, err = env.records.Save(ctx, entity.EmptyRecord(tr).WithDelta(3, 0, time.Now()))
	assert.True(t, apperror.Is(err, apperror.CodeInconsistentLedger))

	second, err := env.records.Save(ctx, first.WithDelta(1, 0, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.Version)

	_, err = env.records.Save(ctx, first.WithDelta(1, 0, time.Now()))
	assert.True(t, apperror.Is(err, apperror.CodeInconsistentLedger))
}

func TestPostgres_MovementsAreAppendOnly(t *testing.T) {
	env := newPGEnv(t)
	ctx := context.Background()
	tr := ledgertest.Triple()

	_, err := env.Inventory.Receive(ctx, inventory.ReceiveRequest{
		Triple: tr, Quantity: 1, UnitCost: types.MustMoney("1"),
	})
	require.NoError(t, err)

	_, err = env.txm.Pool().Exec(ctx,
		"UPDATE stock_movements SET quantity_delta = 2 WHERE product_id = $1", tr.ProductID)
	assert.Error(t, err)

	_, err = env.txm.Pool().Exec(ctx,
		"DELETE FROM stock_movements WHERE product_id = $1", tr.ProductID)
	assert.Error(t, err)
}

func TestPostgres_ConcurrentReservationsNeverOversell(t *testing.T) {
	env := newPGEnv(t)
	ctx := context.Background()
	tr := ledgertest.Triple()

	_, err := env.Inventory.Receive(ctx, inventory.ReceiveRequest{
		Triple: tr, Quantity: 10, UnitCost: types.MustMoney("1"),
	})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Reservations.Reserve(ctx, reservation.ReserveRequest{
				Triple: tr, Quantity: 3, Reference: ledgertest.OrderRef(),
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.True(t, apperror.Is(err, apperror.CodeInsufficientStock), "unexpected error: %v", err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	rec, err := env.Store.Get(ctx, tr)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(9), rec.Reserved)
}

func TestPostgres_ExpireStale(t *testing.T) {
	env := newPGEnv(t)
	ctx := context.Background()
	tr := ledgertest.Triple()

	_, err := env.Inventory.Receive(ctx, inventory.ReceiveRequest{
		Triple: tr, Quantity: 5, UnitCost: types.MustMoney("1"),
	})
	require.NoError(t, err)

	res, err := env.Reservations.Reserve(ctx, reservation.ReserveRequest{
		Triple: tr, Quantity: 2, Reference: ledgertest.OrderRef(), TTL: time.Minute,
	})
	require.NoError(t, err)

	n, err := env.Reservations.ExpireStale(ctx, time.Now().Add(2*time.Minute))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	got, err := env.Reservations.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ReservationExpired, got.Status)

	rec, err := env.Store.Get(ctx, tr)
	require.NoError(t, err)
	assert.Equal(t, types.Quantity(0), rec.Reserved)
}

func TestPostgres_AlertRulesFollowStock(t *testing.T) {
	env := newPGEnv(t)
	ctx := context.Background()
	tr := ledgertest.Triple()

	_, err := env.Alerts.ConfigureRule(ctx, tr, entity.AlertLowStock, 3)
	require.NoError(t, err)

	_, err = env.Inventory.Receive(ctx, inventory.ReceiveRequest{
		Triple: tr, Quantity: 5, UnitCost: types.MustMoney("1"),
	})
	require.NoError(t, err)

	active, err := env.Alerts.ActiveAlerts(ctx)
	require.NoError(t, err)
	for _, a := range active {
		assert.NotEqual(t, tr, a.Triple)
	}

	_, err = env.Reservations.Reserve(ctx, reservation.ReserveRequest{
		Triple: tr, Quantity: 3, Reference: ledgertest.OrderRef(),
	})
	require.NoError(t, err)

	rules, err := env.Alerts.Rules(ctx, tr)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.True(t, rules[0].IsActive)
}

func TestPostgres_IdempotencyStore(t *testing.T) {
	env := newPGEnv(t)
	ctx := context.Background()
	store := postgres.NewIdempotencyStore(env.txm, time.Hour)
	key := "receipt-" + ledgertest.Triple().Key()

	replay, err := store.AcquireKey(ctx, key, "u1", "POST /stock/receipts", "h1")
	require.NoError(t, err)
	assert.Nil(t, replay)

	_, err = store.AcquireKey(ctx, key, "u1", "POST /stock/receipts", "h1")
	assert.True(t, apperror.Is(err, apperror.CodeIdempotency))

	require.NoError(t, store.CompleteKey(ctx, key, 201, "application/json", []byte(`{"ok":true}`)))

	replay, err = store.AcquireKey(ctx, key, "u1", "POST /stock/receipts", "h1")
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, 201, replay.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(replay.Body))

	_, err = store.AcquireKey(ctx, key, "u1", "POST /stock/receipts", "other")
	assert.True(t, apperror.Is(err, apperror.CodeIdempotency))
}
