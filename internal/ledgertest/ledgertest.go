// Package ledgertest builds a complete in-memory ledger for tests.
package ledgertest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stockledger/internal/app"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/retry"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/inventory"
	"stockledger/internal/domain/reservation"
	infralock "stockledger/internal/infrastructure/lock"
	"stockledger/internal/infrastructure/storage/memory"
)

// Env is an in-memory ledger with a controllable clock and a capturing notifier.
type Env struct {
	*app.Ledger

	DB       *memory.DB
	Repos    app.Repositories
	Guard    *infralock.Guard
	Clock    *Clock
	Notifier *Notifier
}

// New creates an Env. Reservations default to a 15 minute TTL and fast retries.
func New(t testing.TB, opts ...func(*app.Options)) *Env {
	t.Helper()

	db := memory.NewDB()
	repos := app.Repositories{
		Records:      memory.NewRecordRepo(db),
		Movements:    memory.NewMovementRepo(db),
		Reservations: memory.NewReservationRepo(db),
		Alerts:       memory.NewAlertRepo(db),
	}
	guard := infralock.NewGuard(infralock.NewLocal(), db, 2*time.Second)
	clock := NewClock(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))
	notifier := &Notifier{}

	o := app.Options{
		Guard:    guard,
		Notifier: notifier,
		Clock:    clock.Now,
		Reservation: reservation.Config{
			DefaultTTL:     15 * time.Minute,
			SweepBatchSize: 10,
			Retry: retry.Config{
				MaxRetries:      3,
				InitialInterval: time.Millisecond,
				MaxInterval:     5 * time.Millisecond,
			},
		},
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Env{
		Ledger:   app.NewLedger(repos, o),
		DB:       db,
		Repos:    repos,
		Guard:    guard,
		Clock:    clock,
		Notifier: notifier,
	}
}

// Triple returns a fresh triple without a variant.
func Triple() entity.Triple {
	return entity.NewTriple(id.New(), id.Nil(), id.New())
}

// OrderRef returns a fresh order reference.
func OrderRef() entity.OrderReference {
	return entity.OrderReference{OrderID: id.New(), ItemID: id.New()}
}

// Seed receives qty units into t at unit cost 1.
func (e *Env) Seed(t testing.TB, tr entity.Triple, qty types.Quantity) {
	t.Helper()
	_, err := e.Inventory.Receive(context.Background(), inventory.ReceiveRequest{
		Triple:   tr,
		Quantity: qty,
		UnitCost: types.MustMoney("1"),
	})
	require.NoError(t, err)
}

// Record returns the current stock record of t.
func (e *Env) Record(t testing.TB, tr entity.Triple) entity.StockRecord {
	t.Helper()
	rec, err := e.Store.Get(context.Background(), tr)
	require.NoError(t, err)
	return rec
}

// History returns every movement of t.
func (e *Env) History(t testing.TB, tr entity.Triple) []entity.Movement {
	t.Helper()
	ms, err := e.Log.History(context.Background(), tr, nil)
	require.NoError(t, err)
	return ms
}

// Clock is a manually advanced clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Notifier captures notified transitions.
type Notifier struct {
	mu    sync.Mutex
	got   []entity.AlertTransition
	Fails error
}

func (n *Notifier) Notify(_ context.Context, ts []entity.AlertTransition) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, ts...)
	return n.Fails
}

// Transitions returns everything notified so far.
func (n *Notifier) Transitions() []entity.AlertTransition {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]entity.AlertTransition(nil), n.got...)
}
