package cache

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockledger/internal/core/apperror"
)

func newTestMemory(now *time.Time) *Memory {
	m := NewMemory(time.Hour)
	m.now = func() time.Time { return *now }
	return m
}

func TestMemory_ReplaysCompletedResponse(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newTestMemory(&now)

	replay, err := m.AcquireKey(ctx, "k1", "u1", "POST /api/v1/stock/receipts", "h1")
	require.NoError(t, err)
	assert.Nil(t, replay)

	require.NoError(t, m.CompleteKey(ctx, "k1", http.StatusCreated, "application/json", map[string]int{"quantity": 5}))

	replay, err = m.AcquireKey(ctx, "k1", "u1", "POST /api/v1/stock/receipts", "h1")
	require.NoError(t, err)
	require.NotNil(t, replay)
	assert.Equal(t, http.StatusCreated, replay.StatusCode)
	assert.JSONEq(t, `{"quantity":5}`, string(replay.Body))
}

func TestMemory_PendingKeyConflicts(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newTestMemory(&now)

	_, err := m.AcquireKey(ctx, "k1", "u1", "op", "h1")
	require.NoError(t, err)

	_, err = m.AcquireKey(ctx, "k1", "u1", "op", "h1")
	assert.True(t, apperror.Is(err, apperror.CodeIdempotency))

	now = now.Add(StaleAfter + time.Second)
	replay, err := m.AcquireKey(ctx, "k1", "u1", "op", "h1")
	require.NoError(t, err, "stale pending key is reclaimed")
	assert.Nil(t, replay)
}

func TestMemory_RejectsReuseForDifferentRequest(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newTestMemory(&now)

	_, err := m.AcquireKey(ctx, "k1", "u1", "op", "h1")
	require.NoError(t, err)
	require.NoError(t, m.CompleteKey(ctx, "k1", http.StatusOK, "application/json", nil))

	_, err = m.AcquireKey(ctx, "k1", "u1", "op", "other-body")
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "Idempotency key mismatch", appErr.Message)
}

func TestMemory_CleanupExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	m := newTestMemory(&now)

	_, err := m.AcquireKey(ctx, "k1", "u1", "op", "h1")
	require.NoError(t, err)

	assert.Equal(t, 0, m.CleanupExpired())
	now = now.Add(2 * time.Hour)
	assert.Equal(t, 1, m.CleanupExpired())

	// An expired key is free again, even for another request.
	replay, err := m.AcquireKey(ctx, "k1", "u2", "op", "h2")
	require.NoError(t, err)
	assert.Nil(t, replay)
}

func TestMemory_StartStop(t *testing.T) {
	m := NewMemory(time.Hour)
	m.Start(context.Background(), time.Millisecond)
	m.Start(context.Background(), time.Millisecond)
	m.Stop()
	m.Stop()
}
