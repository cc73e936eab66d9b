// Package cache provides idempotency key caches for deployments without PostgreSQL.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/idempotency"
	"stockledger/pkg/logger"
)

type keyStatus string

const (
	statusPending keyStatus = "pending"
	statusSuccess keyStatus = "success"
	statusFailed  keyStatus = "failed"
)

// StaleAfter is how long a pending key may sit before another request may reclaim it.
const StaleAfter = time.Minute

// entry is the cached state of one idempotency key.
type entry struct {
	UserID      string    `json:"user_id"`
	Operation   string    `json:"operation"`
	RequestHash string    `json:"request_hash"`
	Status      keyStatus `json:"status"`
	StatusCode  int       `json:"status_code,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Body        []byte    `json:"body,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// resolve decides what a request presenting key gets when an entry already exists.
// reclaim reports that a stale pending entry may be taken over.
func (e *entry) resolve(key, userID, operation, requestHash string, now time.Time) (replay *idempotency.Replay, reclaim bool, err error) {
	if e.UserID != userID || e.Operation != operation || e.RequestHash != requestHash {
		return nil, false, apperror.NewIdempotencyMismatch(key).
			WithDetail("stored_operation", e.Operation).
			WithDetail("request_operation", operation)
	}
	switch e.Status {
	case statusSuccess, statusFailed:
		r := &idempotency.Replay{StatusCode: e.StatusCode, ContentType: e.ContentType, Body: e.Body}
		if r.StatusCode == 0 {
			r.StatusCode = http.StatusOK
		}
		if r.ContentType == "" {
			r.ContentType = "application/json"
		}
		return r, false, nil
	}
	if now.Sub(e.UpdatedAt) <= StaleAfter {
		return nil, false, apperror.NewIdempotencyConflict(key)
	}
	return nil, true, nil
}

func (e *entry) finish(status keyStatus, statusCode int, contentType string, body []byte, now time.Time) {
	e.Status = status
	e.StatusCode = statusCode
	e.ContentType = contentType
	e.Body = body
	e.UpdatedAt = now
}

func encodeBody(response any) ([]byte, error) {
	switch v := response.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	}
	b, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return b, nil
}

// Memory keeps idempotency keys in process memory.
// A janitor goroutine evicts expired keys once started.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time

	// Lifecycle
	lifecycleMu sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

var _ idempotency.Store = (*Memory)(nil)

// NewMemory creates an in-memory idempotency store.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Memory{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// AcquireKey implements idempotency.Store.
func (m *Memory) AcquireKey(_ context.Context, key, userID, operation, requestHash string) (*idempotency.Replay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.entries[key]; ok && now.Before(e.ExpiresAt) {
		replay, reclaim, err := e.resolve(key, userID, operation, requestHash, now)
		if err != nil || replay != nil {
			return replay, err
		}
		if reclaim {
			e.UpdatedAt = now
			return nil, nil
		}
	}

	m.entries[key] = &entry{
		UserID:      userID,
		Operation:   operation,
		RequestHash: requestHash,
		Status:      statusPending,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(m.ttl),
	}
	return nil, nil
}

// CompleteKey implements idempotency.Store.
func (m *Memory) CompleteKey(_ context.Context, key string, statusCode int, contentType string, response any) error {
	body, err := encodeBody(response)
	if err != nil {
		return err
	}
	m.finish(key, statusSuccess, statusCode, contentType, body)
	return nil
}

// FailKey implements idempotency.Store.
func (m *Memory) FailKey(_ context.Context, key string, statusCode int, contentType string, response any) error {
	body, err := encodeBody(response)
	if err != nil {
		body, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	m.finish(key, statusFailed, statusCode, contentType, body)
	return nil
}

func (m *Memory) finish(key string, status keyStatus, statusCode int, contentType string, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		e.finish(status, statusCode, contentType, body, m.now())
	}
}

// CleanupExpired evicts expired keys and returns how many were removed.
func (m *Memory) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for k, e := range m.entries {
		if !now.Before(e.ExpiresAt) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// Start launches the janitor. Calling Start twice is a no-op.
func (m *Memory) Start(ctx context.Context, every time.Duration) {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.started {
		return
	}
	if every <= 0 {
		every = time.Hour
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.started = true

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.CleanupExpired(); n > 0 {
					logger.Debug(ctx, "idempotency keys evicted", "count", n)
				}
			}
		}
	}()
}

// Stop halts the janitor and waits for it to exit.
func (m *Memory) Stop() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if !m.started {
		return
	}
	m.cancel()
	m.wg.Wait()
	m.started = false
}
