package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher delivers outbox entries to a redis pub/sub channel that
// downstream notification consumers (email, dashboards) subscribe to.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = "booking.events"
	}
	return &RedisPublisher{client: client, channel: channel}
}

type wireEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (p *RedisPublisher) Handle(ctx context.Context, entry Entry) error {
	msg, err := json.Marshal(wireEvent{
		ID:      entry.ID.String(),
		Type:    entry.Type,
		Payload: entry.Payload,
	})
	if err != nil {
		return fmt.Errorf("events: marshal wire event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, msg).Err(); err != nil {
		return fmt.Errorf("events: publish %s: %w", entry.Type, err)
	}
	return nil
}
