// Package metrics defines the hook domain services use to report operation outcomes.
package metrics

import (
	"context"
	"time"
)

// Recorder observes one finished ledger operation.
type Recorder interface {
	Observe(ctx context.Context, op string, err error, elapsed time.Duration)
}

// Nop discards observations.
type Nop struct{}

func (Nop) Observe(context.Context, string, error, time.Duration) {}
