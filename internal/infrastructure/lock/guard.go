package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"stockledger/internal/core/apperror"
	corelock "stockledger/internal/core/lock"
	"stockledger/internal/core/tx"
)

// Guard serializes callers per key with a Locker and runs each critical
// section in a transaction. A key stays locked until the outermost transaction
// has committed or rolled back, so the next owner always sees committed state.
//
// Nested Serialize calls on the same context reuse keys already held and add
// new ones to the outermost scope.
type Guard struct {
	locker  Locker
	txm     tx.Manager
	timeout time.Duration
}

var _ corelock.Serializer = (*Guard)(nil)

// NewGuard creates a Guard. timeout bounds each lock acquisition; zero disables it.
func NewGuard(locker Locker, txm tx.Manager, timeout time.Duration) *Guard {
	return &Guard{locker: locker, txm: txm, timeout: timeout}
}

// Serialize implements lock.Serializer.
func (g *Guard) Serialize(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if h := heldFrom(ctx); h != nil {
		if h.has(key) {
			return fn(ctx)
		}
		release, err := g.acquire(ctx, key)
		if err != nil {
			return err
		}
		h.add(key, release)
		return fn(ctx)
	}

	h := &heldKeys{}
	defer h.releaseAll()

	release, err := g.acquire(ctx, key)
	if err != nil {
		return err
	}
	h.add(key, release)

	return g.txm.RunInTransaction(withHeld(ctx, h), fn)
}

func (g *Guard) acquire(ctx context.Context, key string) (func(), error) {
	lockCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	release, err := g.locker.Acquire(lockCtx, key)
	if err == nil {
		return release, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, apperror.NewLockTimeout(key)
	}
	return nil, err
}

type heldKeys struct {
	mu       sync.Mutex
	keys     []string
	releases []func()
}

func (h *heldKeys) has(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, k := range h.keys {
		if k == key {
			return true
		}
	}
	return false
}

func (h *heldKeys) add(key string, release func()) {
	h.mu.Lock()
	h.keys = append(h.keys, key)
	h.releases = append(h.releases, release)
	h.mu.Unlock()
}

func (h *heldKeys) releaseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.releases) - 1; i >= 0; i-- {
		h.releases[i]()
	}
	h.keys, h.releases = nil, nil
}

type heldKey struct{}

func withHeld(ctx context.Context, h *heldKeys) context.Context {
	return context.WithValue(ctx, heldKey{}, h)
}

func heldFrom(ctx context.Context) *heldKeys {
	h, _ := ctx.Value(heldKey{}).(*heldKeys)
	return h
}
