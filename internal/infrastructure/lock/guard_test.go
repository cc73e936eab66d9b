package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
	corelock "stockledger/internal/core/lock"
)

// recordingTx counts transactions and notes whether the key was held at commit.
type recordingTx struct {
	started   int
	onCommit  func()
	lastError error
}

func (r *recordingTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	r.started++
	err := fn(ctx)
	r.lastError = err
	if err == nil && r.onCommit != nil {
		r.onCommit()
	}
	return err
}

func TestGuard_HoldsKeyUntilTransactionEnds(t *testing.T) {
	l := NewLocal()
	txm := &recordingTx{}
	g := NewGuard(l, txm, 50*time.Millisecond)

	txm.onCommit = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		defer cancel()
		_, err := l.Acquire(ctx, "k")
		assert.Error(t, err, "key still locked while committing")
	}

	err := g.Serialize(context.Background(), "k", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, txm.started)

	r, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	r()
}

func TestGuard_NestedCallsShareTransaction(t *testing.T) {
	txm := &recordingTx{}
	g := NewGuard(NewLocal(), txm, 50*time.Millisecond)

	calls := 0
	err := corelock.SerializeAll(context.Background(), g, []string{"b", "a", "b"}, func(ctx context.Context) error {
		calls++
		return g.Serialize(ctx, "a", func(ctx context.Context) error {
			calls++
			return nil
		})
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, txm.started, "one transaction for the outermost scope")
}

func TestGuard_TimeoutBecomesLockTimeout(t *testing.T) {
	l := NewLocal()
	g := NewGuard(l, &recordingTx{}, 10*time.Millisecond)

	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	err = g.Serialize(context.Background(), "k", func(ctx context.Context) error {
		t.Fatal("must not run without the lock")
		return nil
	})
	assert.True(t, apperror.Is(err, apperror.CodeLockTimeout))
	assert.True(t, apperror.IsRetryable(err))
}

func TestGuard_CallerCancellationIsNotTimeout(t *testing.T) {
	l := NewLocal()
	g := NewGuard(l, &recordingTx{}, time.Second)

	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	err = g.Serialize(ctx, "k", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGuard_ReleasesOnError(t *testing.T) {
	l := NewLocal()
	g := NewGuard(l, &recordingTx{}, 10*time.Millisecond)
	boom := errors.New("boom")

	err := g.Serialize(context.Background(), "k", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	r, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	r()
}
