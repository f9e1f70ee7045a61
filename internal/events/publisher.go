package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/leadwire/leadwire/pkg/logging"
)

// Publisher delivers domain events to a pub/sub transport. Delivery is
// at-least-once; ordering is best-effort FIFO per channel within one process.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// RedisPublisher publishes envelopes over redis pub/sub, one redis channel
// per event channel name.
type RedisPublisher struct {
	client *redis.Client
	logger *logging.Logger
}

func NewRedisPublisher(client *redis.Client, logger *logging.Logger) *RedisPublisher {
	if client == nil {
		panic("events: redis client required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisPublisher{client: client, logger: logger}
}

func (p *RedisPublisher) Publish(ctx context.Context, evt Event) error {
	env, err := Wrap(evt)
	if err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	if err := p.client.Publish(ctx, string(env.Channel), data).Err(); err != nil {
		return fmt.Errorf("events: redis publish %s: %w", env.Channel, err)
	}
	p.logger.Debug("event published", "channel", env.Channel, "event_id", env.EventID)
	return nil
}

func (p *RedisPublisher) publishRaw(ctx context.Context, channel ChannelName, envelope []byte) error {
	if err := p.client.Publish(ctx, string(channel), envelope).Err(); err != nil {
		return fmt.Errorf("events: redis publish %s: %w", channel, err)
	}
	return nil
}

// CollectingPublisher records events in memory. Used by tests and as a
// fallback when no transport is configured.
type CollectingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *CollectingPublisher) Publish(_ context.Context, evt Event) error {
	if err := ValidatePayload(evt); err != nil {
		return err
	}
	p.mu.Lock()
	p.events = append(p.events, evt)
	p.mu.Unlock()
	return nil
}

// Events returns a snapshot of recorded events in publish order.
func (p *CollectingPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Channels returns the channel names of recorded events in publish order.
func (p *CollectingPublisher) Channels() []ChannelName {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ChannelName, 0, len(p.events))
	for _, evt := range p.events {
		out = append(out, evt.Channel)
	}
	return out
}
