// Package retry repeats operations that failed with a retryable ledger error.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"stockledger/internal/core/apperror"
	"stockledger/pkg/logger"
)

// Config bounds the retry loop.
type Config struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultConfig returns production defaults: 5 retries starting at 10ms.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      5,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     250 * time.Millisecond,
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, the retry budget
// is spent or ctx is done. Only apperror.IsRetryable errors are retried.
func Do(ctx context.Context, cfg Config, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if !apperror.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		logger.Debug(ctx, "retrying ledger operation", "attempt", attempt, "error", err)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, cfg.MaxRetries), ctx))
}
