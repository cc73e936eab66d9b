package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/idempotency"
)

// DefaultRedisPrefix namespaces idempotency keys.
const DefaultRedisPrefix = "stockledger:idem:"

// Redis shares idempotency keys between server replicas.
// Acquisition runs in a WATCH transaction so two replicas cannot both own a key.
type Redis struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

var _ idempotency.Store = (*Redis)(nil)

// NewRedis creates a Redis-backed idempotency store.
func NewRedis(client redis.UniversalClient, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

// AcquireKey implements idempotency.Store.
func (r *Redis) AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*idempotency.Replay, error) {
	redisKey := r.prefix + key
	now := r.now()
	fresh := entry{
		UserID:      userID,
		Operation:   operation,
		RequestHash: requestHash,
		Status:      statusPending,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(r.ttl),
	}

	var replay *idempotency.Replay
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		existing, err := r.load(ctx, tx, redisKey)
		if err != nil {
			return err
		}

		next := fresh
		if existing != nil {
			var reclaim bool
			replay, reclaim, err = existing.resolve(key, userID, operation, requestHash, now)
			if err != nil || replay != nil {
				return err
			}
			if reclaim {
				next = *existing
				next.UpdatedAt = now
			}
		}

		payload, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode idempotency entry: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, redisKey, payload, time.Until(next.ExpiresAt))
			return nil
		})
		return err
	}, redisKey)

	if errors.Is(err, redis.TxFailedErr) {
		return nil, apperror.NewIdempotencyConflict(key)
	}
	if err != nil {
		if _, ok := apperror.AsAppError(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	return replay, nil
}

// CompleteKey implements idempotency.Store.
func (r *Redis) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	body, err := encodeBody(response)
	if err != nil {
		return err
	}
	return r.finish(ctx, key, statusSuccess, statusCode, contentType, body)
}

// FailKey implements idempotency.Store.
func (r *Redis) FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	body, err := encodeBody(response)
	if err != nil {
		body, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return r.finish(ctx, key, statusFailed, statusCode, contentType, body)
}

func (r *Redis) finish(ctx context.Context, key string, status keyStatus, statusCode int, contentType string, body []byte) error {
	redisKey := r.prefix + key
	e, err := r.load(ctx, r.client, redisKey)
	if err != nil {
		return err
	}
	if e == nil {
		return nil
	}
	e.finish(status, statusCode, contentType, body, r.now())

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode idempotency entry: %w", err)
	}
	if err := r.client.Set(ctx, redisKey, payload, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("finish idempotency key: %w", err)
	}
	return nil
}

func (r *Redis) load(ctx context.Context, c redis.Cmdable, redisKey string) (*entry, error) {
	raw, err := c.Get(ctx, redisKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load idempotency key: %w", err)
	}
	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("decode idempotency entry: %w", err)
	}
	return &e, nil
}
