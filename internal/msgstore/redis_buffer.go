package msgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/leadwire/leadwire/internal/debounce"
	"github.com/leadwire/leadwire/internal/schema"
)

const bufferKeyPrefix = "msgbuf:"

// RedisBuffer holds the inbound messages of a conversation that arrived
// since the last successful dispatch. Entries are kept in arrival order and
// expire with the conversation TTL so abandoned bursts don't pile up.
type RedisBuffer struct {
	redis  *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
}

func NewRedisBuffer(client *redis.Client, ttl time.Duration) *RedisBuffer {
	if client == nil {
		panic("msgstore: redis client required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisBuffer{
		redis:  client,
		tracer: otel.Tracer("leadwire.internal.msgstore.buffer"),
		ttl:    ttl,
	}
}

// Append adds one message to the conversation's buffer.
func (b *RedisBuffer) Append(ctx context.Context, key debounce.Key, msg schema.InboundMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("msgstore: marshal message: %w", err)
	}

	ctx, span := b.tracer.Start(ctx, "msgstore.buffer.append")
	defer span.End()

	redisKey := bufferKeyPrefix + key.String()
	pipe := b.redis.TxPipeline()
	pipe.RPush(ctx, redisKey, data)
	pipe.Expire(ctx, redisKey, b.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("msgstore: append message: %w", err)
	}
	return nil
}

// Drain atomically reads and clears the buffer, returning the batch in
// arrival order. An empty conversation yields an empty slice.
func (b *RedisBuffer) Drain(ctx context.Context, key debounce.Key) ([]schema.InboundMessage, error) {
	ctx, span := b.tracer.Start(ctx, "msgstore.buffer.drain")
	defer span.End()

	redisKey := bufferKeyPrefix + key.String()
	pipe := b.redis.TxPipeline()
	listCmd := pipe.LRange(ctx, redisKey, 0, -1)
	pipe.Del(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("msgstore: drain buffer: %w", err)
	}

	raw := listCmd.Val()
	out := make([]schema.InboundMessage, 0, len(raw))
	for _, item := range raw {
		var msg schema.InboundMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			span.RecordError(err)
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

// Restore puts a drained batch back at the front of the buffer, preserving
// order, so a failed dispatch can be retried without losing messages.
func (b *RedisBuffer) Restore(ctx context.Context, key debounce.Key, batch []schema.InboundMessage) error {
	if len(batch) == 0 {
		return nil
	}

	ctx, span := b.tracer.Start(ctx, "msgstore.buffer.restore")
	defer span.End()

	redisKey := bufferKeyPrefix + key.String()
	pipe := b.redis.TxPipeline()
	// LPush reverses, so walk the batch backwards to keep arrival order.
	for i := len(batch) - 1; i >= 0; i-- {
		data, err := json.Marshal(batch[i])
		if err != nil {
			return fmt.Errorf("msgstore: marshal message: %w", err)
		}
		pipe.LPush(ctx, redisKey, data)
	}
	pipe.Expire(ctx, redisKey, b.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("msgstore: restore buffer: %w", err)
	}
	return nil
}
