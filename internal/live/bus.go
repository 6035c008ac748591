package live

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	ws "github.com/pigi/quizmaster/pkg/http/ws"
)

const defaultChannelPrefix = "quiz:events:"

// RedisBus publishes frames on one Pub/Sub channel per session.
type RedisBus struct {
	redis  *redis.Client
	prefix string
}

// NewRedisBus creates a bus. An empty prefix uses "quiz:events:".
func NewRedisBus(redis *redis.Client, prefix string) *RedisBus {
	if prefix == "" {
		prefix = defaultChannelPrefix
	}
	return &RedisBus{redis: redis, prefix: prefix}
}

// Deliver implements Delivery.
func (b *RedisBus) Deliver(ctx context.Context, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if err := b.redis.Publish(ctx, b.prefix+f.SessionID, data).Err(); err != nil {
		return fmt.Errorf("publish frame: %w", err)
	}
	return nil
}

// Relay listens on the session channels and forwards frames into the local hub.
type Relay struct {
	redis   *redis.Client
	hub     *ws.Hub
	pattern string
	logger  zerolog.Logger
}

// NewRelay creates a relay for the channels written by a RedisBus with the same prefix.
func NewRelay(redis *redis.Client, hub *ws.Hub, prefix string, logger zerolog.Logger) *Relay {
	if prefix == "" {
		prefix = defaultChannelPrefix
	}
	return &Relay{
		redis:   redis,
		hub:     hub,
		pattern: prefix + "*",
		logger:  logger.With().Str("component", "event_relay").Logger(),
	}
}

// Run subscribes and blocks until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	if r.redis == nil || r.hub == nil {
		return nil
	}

	sub := r.redis.PSubscribe(ctx, r.pattern)
	defer sub.Close()

	// wait for the subscription so frames published right after Run starts are not lost
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.pattern, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.forward(msg.Payload)
		}
	}
}

func (r *Relay) forward(payload string) {
	var f Frame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		r.logger.Warn().Err(err).Msg("failed to decode event frame")
		return
	}
	if err := Dispatch(r.hub, f); err != nil {
		r.logger.Warn().Err(err).Str("session_id", f.SessionID).Str("type", f.Type).Msg("failed to forward event frame")
	}
}
