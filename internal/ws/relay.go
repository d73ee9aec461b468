package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"
)

// RedisRelay fans broadcasts out across nodes over a Redis pub/sub channel.
// Every node runs the subscriber and delivers to its own sessions.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	logger  *slog.Logger
}

func NewRedisRelay(rdb *redis.Client, channel string, hub *Hub, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{rdb: rdb, channel: channel, hub: hub, logger: logger}
}

func (r *RedisRelay) Publish(ctx context.Context, env envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode relay envelope: %w", err)
	}
	if err := r.rdb.Publish(ctx, r.channel, b).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run subscribes and delivers until ctx is done. ready, when non-nil, is
// closed once the subscription is confirmed.
func (r *RedisRelay) Run(ctx context.Context, ready chan<- struct{}) error {
	pubsub := r.rdb.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription %s closed", r.channel)
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Error("relay unmarshal error", "err", err)
				continue
			}
			r.hub.Deliver(env.Recipients, env.Payload, env.Origin)
		}
	}
}
