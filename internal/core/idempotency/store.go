// Package idempotency defines the replay cache behind the X-Idempotency-Key header.
// Receipts, adjustments and transfers are not naturally idempotent, so a client
// retrying one of them must not book the movement twice.
package idempotency

import "context"

// Replay is a cached HTTP response.
type Replay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Store persists idempotency keys and the responses they produced.
type Store interface {
	// AcquireKey claims key for a request. It returns (nil, nil) when the caller
	// owns the key, a Replay when the request already completed, or an
	// IDEMPOTENCY_CONFLICT error when the key is in flight or was used for a
	// different request.
	AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*Replay, error)

	CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error

	FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error
}
