package lock

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"stockledger/pkg/logger"
)

//go:embed release.lua
var releaseLua string

var releaseScript = redis.NewScript(releaseLua)

// RedisConfig configures the Redis locker.
type RedisConfig struct {
	// Prefix is prepended to every lock key.
	Prefix string
	// TTL bounds how long a crashed owner can keep a key.
	TTL time.Duration
	// PollInterval is the delay between acquisition attempts.
	PollInterval time.Duration
}

// Redis is a cross-process locker built on SET NX PX with a per-owner token.
// Waiters poll, so grant order is approximate rather than strictly FIFO.
type Redis struct {
	client redis.UniversalClient
	cfg    RedisConfig
}

var _ Locker = (*Redis)(nil)

// NewRedis creates a Redis locker.
func NewRedis(client redis.UniversalClient, cfg RedisConfig) *Redis {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "stockledger:lock:"
	}
	return &Redis{client: client, cfg: cfg}
}

// Acquire implements Locker.
func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := r.cfg.Prefix + key
	token := uuid.NewString()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}

		ok, err := r.client.SetNX(ctx, redisKey, token, r.cfg.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("redis lock %s: %w", key, err)
		}
		if ok {
			return r.releaser(redisKey, token), nil
		}
		timer.Reset(r.cfg.PollInterval)
	}
}

func (r *Redis) releaser(redisKey, token string) func() {
	return func() {
		// The caller's context may already be cancelled.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := releaseScript.Run(ctx, r.client, []string{redisKey}, token).Err(); err != nil {
			logger.Error(ctx, "redis lock release failed", "key", redisKey, "error", err)
		}
	}
}
