// Package lock defines per-key mutual exclusion used to serialize stock mutations.
package lock

import (
	"context"
	"sort"
)

// Serializer runs fn atomically with respect to every other caller using the same key.
//
// Implementations open a transaction for fn (through ctx) and keep the key
// exclusive until that transaction has committed or rolled back. Callers on
// different keys never wait on each other.
type Serializer interface {
	Serialize(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// SerializeAll holds every key while fn runs. Keys are acquired in sorted order
// so two callers locking the same set can never deadlock. Duplicates are ignored.
func SerializeAll(ctx context.Context, s Serializer, keys []string, fn func(ctx context.Context) error) error {
	sorted := dedupe(keys)
	var run func(ctx context.Context, i int) error
	run = func(ctx context.Context, i int) error {
		if i == len(sorted) {
			return fn(ctx)
		}
		return s.Serialize(ctx, sorted[i], func(ctx context.Context) error {
			return run(ctx, i+1)
		})
	}
	return run(ctx, 0)
}

func dedupe(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
