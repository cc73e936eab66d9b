// Package lock provides per-key lockers and the Guard that combines a locker
// with a transaction manager into a lock.Serializer.
package lock

import "context"

// Locker grants exclusive ownership of a key.
type Locker interface {
	// Acquire blocks until the caller owns key or ctx is done.
	// The returned release function must be called exactly once.
	Acquire(ctx context.Context, key string) (release func(), err error)
}
