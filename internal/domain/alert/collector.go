package alert

import (
	"context"
	"sync"

	"stockledger/internal/core/entity"
)

// collector buffers transitions raised while an Observe callback runs.
type collector struct {
	mu          sync.Mutex
	transitions []entity.AlertTransition
}

func (c *collector) add(ts []entity.AlertTransition) {
	c.mu.Lock()
	c.transitions = append(c.transitions, ts...)
	c.mu.Unlock()
}

func (c *collector) triggered() []entity.AlertTransition {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]entity.AlertTransition, 0, len(c.transitions))
	for _, t := range c.transitions {
		if t.Change == entity.AlertTriggered {
			out = append(out, t)
		}
	}
	return out
}

type collectorKey struct{}

func withCollector(ctx context.Context, c *collector) context.Context {
	return context.WithValue(ctx, collectorKey{}, c)
}

func collectorFrom(ctx context.Context) *collector {
	c, _ := ctx.Value(collectorKey{}).(*collector)
	return c
}
