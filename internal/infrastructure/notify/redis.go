package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"stockledger/internal/core/entity"
	"stockledger/internal/domain/alert"
)

// DefaultChannel is the pub/sub channel alert transitions are published on.
const DefaultChannel = "stockledger:alerts"

// Publisher is the subset of redis.UniversalClient used by Redis.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Redis publishes each transition as a JSON message.
type Redis struct {
	client  Publisher
	channel string
}

var _ alert.Notifier = (*Redis)(nil)

// NewRedis creates a Redis pub/sub notifier. An empty channel uses DefaultChannel.
func NewRedis(client Publisher, channel string) *Redis {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Redis{client: client, channel: channel}
}

// Notify implements alert.Notifier.
func (r *Redis) Notify(ctx context.Context, transitions []entity.AlertTransition) error {
	for _, tr := range transitions {
		payload, err := json.Marshal(tr)
		if err != nil {
			return fmt.Errorf("marshal alert transition: %w", err)
		}
		if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
			return fmt.Errorf("publish alert %s: %w", tr.Alert.ID, err)
		}
	}
	return nil
}
