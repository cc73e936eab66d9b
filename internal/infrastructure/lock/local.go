package lock

import (
	"context"
	"sync"
)

// Local is an in-process FIFO lock per key. Waiters are granted the key in
// arrival order, and ownership is handed directly to the next waiter on release.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	held    bool
	waiters []chan struct{}
	// refs counts owners and waiters; the slot is dropped at zero.
	refs int
}

var _ Locker = (*Local)(nil)

// NewLocal creates an empty Local locker.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// Acquire implements Locker.
func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{}
		l.slots[key] = s
	}
	s.refs++

	if !s.held {
		s.held = true
		l.mu.Unlock()
		return l.releaser(key, s), nil
	}

	ch := make(chan struct{})
	s.waiters = append(s.waiters, ch)
	l.mu.Unlock()

	select {
	case <-ch:
		return l.releaser(key, s), nil
	case <-ctx.Done():
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	select {
	case <-ch:
		// Ownership arrived together with cancellation: pass it on.
		l.releaseLocked(key, s)
	default:
		for i, w := range s.waiters {
			if w == ch {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				break
			}
		}
		s.refs--
		if s.refs == 0 {
			delete(l.slots, key)
		}
	}
	return nil, ctx.Err()
}

func (l *Local) releaser(key string, s *slot) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			l.releaseLocked(key, s)
			l.mu.Unlock()
		})
	}
}

func (l *Local) releaseLocked(key string, s *slot) {
	s.refs--
	if len(s.waiters) > 0 {
		next := s.waiters[0]
		s.waiters = s.waiters[1:]
		close(next)
	} else {
		s.held = false
	}
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// waiting reports how many callers are queued on key.
func (l *Local) waiting(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.slots[key]; ok {
		return len(s.waiters)
	}
	return 0
}
