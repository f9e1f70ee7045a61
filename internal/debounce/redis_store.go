package debounce

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	timerKeyPrefix = "debounce:timer:"
	scheduleSetKey = "debounce:schedule"
	defaultPollCap = 128
)

// Lua keeps reset, claim and completion atomic per key; a plain pipeline
// would let a concurrent reset interleave between the generation bump and
// the schedule update.
var (
	resetScript = redis.NewScript(`
local gen = redis.call('HINCRBY', KEYS[1], 'gen', 1)
redis.call('HSET', KEYS[1], 'fire_at', ARGV[1], 'claimed', '0')
if gen == 1 then
  redis.call('HSET', KEYS[1], 'created_at', ARGV[2])
end
redis.call('ZADD', KEYS[2], ARGV[1], ARGV[3])
return gen
`)

	pollScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
local out = {}
for _, raw in ipairs(due) do
  redis.call('ZREM', KEYS[1], raw)
  local hash = ARGV[3] .. raw
  local gen = redis.call('HGET', hash, 'gen')
  if gen then
    redis.call('HSET', hash, 'claimed', '1')
    out[#out+1] = raw
    out[#out+1] = gen
    out[#out+1] = redis.call('HGET', hash, 'fire_at')
  end
end
return out
`)

	completeScript = redis.NewScript(`
local gen = redis.call('HGET', KEYS[1], 'gen')
if not gen then return 1 end
if gen ~= ARGV[1] then return 0 end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[2])
return 1
`)

	releaseScript = redis.NewScript(`
local gen = redis.call('HGET', KEYS[1], 'gen')
if not gen then return 1 end
if gen ~= ARGV[1] then return 0 end
redis.call('HSET', KEYS[1], 'claimed', '0')
redis.call('ZADD', KEYS[2], redis.call('HGET', KEYS[1], 'fire_at'), ARGV[2])
return 1
`)
)

// RedisTimerStore is the durable TimerStore. Timers live in one hash per
// conversation plus a schedule zset scored by fire time, so pending fires
// survive process restarts.
type RedisTimerStore struct {
	redis   *redis.Client
	tracer  trace.Tracer
	pollCap int
}

func NewRedisTimerStore(client *redis.Client) *RedisTimerStore {
	if client == nil {
		panic("debounce: redis client required")
	}
	return &RedisTimerStore{
		redis:   client,
		tracer:  otel.Tracer("leadwire.internal.debounce.timer_store"),
		pollCap: defaultPollCap,
	}
}

func (s *RedisTimerStore) Reset(ctx context.Context, key Key, delay time.Duration) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "debounce.timer_store.reset")
	defer span.End()

	now := time.Now().UTC()
	fireAt := now.Add(delay)
	raw := key.String()
	gen, err := resetScript.Run(ctx, s.redis,
		[]string{timerKeyPrefix + raw, scheduleSetKey},
		fireAt.UnixMilli(), now.UnixMilli(), raw,
	).Int64()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("debounce: reset timer: %w", err)
	}
	return gen, nil
}

func (s *RedisTimerStore) Cancel(ctx context.Context, key Key) error {
	ctx, span := s.tracer.Start(ctx, "debounce.timer_store.cancel")
	defer span.End()

	raw := key.String()
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, timerKeyPrefix+raw)
	pipe.ZRem(ctx, scheduleSetKey, raw)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("debounce: cancel timer: %w", err)
	}
	return nil
}

func (s *RedisTimerStore) PollElapsed(ctx context.Context, now time.Time) ([]Elapsed, error) {
	ctx, span := s.tracer.Start(ctx, "debounce.timer_store.poll_elapsed")
	defer span.End()

	res, err := pollScript.Run(ctx, s.redis,
		[]string{scheduleSetKey},
		now.UTC().UnixMilli(), s.pollCap, timerKeyPrefix,
	).StringSlice()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("debounce: poll elapsed: %w", err)
	}

	elapsed := make([]Elapsed, 0, len(res)/3)
	for i := 0; i+2 < len(res); i += 3 {
		key, err := ParseKey(res[i])
		if err != nil {
			continue
		}
		gen, err := strconv.ParseInt(res[i+1], 10, 64)
		if err != nil {
			continue
		}
		fireMs, err := strconv.ParseInt(res[i+2], 10, 64)
		if err != nil {
			continue
		}
		elapsed = append(elapsed, Elapsed{
			Key:        key,
			Generation: gen,
			FireAt:     time.UnixMilli(fireMs).UTC(),
		})
	}
	return elapsed, nil
}

func (s *RedisTimerStore) Get(ctx context.Context, key Key) (Timer, error) {
	ctx, span := s.tracer.Start(ctx, "debounce.timer_store.get")
	defer span.End()

	fields, err := s.redis.HGetAll(ctx, timerKeyPrefix+key.String()).Result()
	if err != nil {
		span.RecordError(err)
		return Timer{}, fmt.Errorf("debounce: get timer: %w", err)
	}
	if len(fields) == 0 {
		return Timer{}, ErrTimerNotFound
	}

	gen, _ := strconv.ParseInt(fields["gen"], 10, 64)
	fireMs, _ := strconv.ParseInt(fields["fire_at"], 10, 64)
	createdMs, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	return Timer{
		Key:        key,
		FireAt:     time.UnixMilli(fireMs).UTC(),
		CreatedAt:  time.UnixMilli(createdMs).UTC(),
		Generation: gen,
		Claimed:    fields["claimed"] == "1",
	}, nil
}

func (s *RedisTimerStore) Complete(ctx context.Context, key Key, generation int64) error {
	ctx, span := s.tracer.Start(ctx, "debounce.timer_store.complete")
	defer span.End()

	raw := key.String()
	ok, err := completeScript.Run(ctx, s.redis,
		[]string{timerKeyPrefix + raw, scheduleSetKey},
		generation, raw,
	).Int64()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("debounce: complete timer: %w", err)
	}
	if ok == 0 {
		return ErrStaleGeneration
	}
	return nil
}

func (s *RedisTimerStore) Release(ctx context.Context, key Key, generation int64) error {
	ctx, span := s.tracer.Start(ctx, "debounce.timer_store.release")
	defer span.End()

	raw := key.String()
	ok, err := releaseScript.Run(ctx, s.redis,
		[]string{timerKeyPrefix + raw, scheduleSetKey},
		generation, raw,
	).Int64()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("debounce: release timer: %w", err)
	}
	if ok == 0 {
		return ErrStaleGeneration
	}
	return nil
}
