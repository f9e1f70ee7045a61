package debounce

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memTimer struct {
	fireAt     time.Time
	createdAt  time.Time
	generation int64
	claimed    bool
}

// MemoryTimerStore is a TimerStore backed by a mutex-guarded map. It keeps
// the same claim semantics as the Redis store and is used in tests and
// single-process deployments.
type MemoryTimerStore struct {
	mu     sync.Mutex
	timers map[string]*memTimer
}

func NewMemoryTimerStore() *MemoryTimerStore {
	return &MemoryTimerStore{timers: make(map[string]*memTimer)}
}

func (s *MemoryTimerStore) Reset(_ context.Context, key Key, delay time.Duration) (int64, error) {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[key.String()]
	if !ok {
		t = &memTimer{createdAt: now}
		s.timers[key.String()] = t
	}
	t.generation++
	t.fireAt = now.Add(delay)
	t.claimed = false
	return t.generation, nil
}

func (s *MemoryTimerStore) Cancel(_ context.Context, key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, key.String())
	return nil
}

func (s *MemoryTimerStore) PollElapsed(_ context.Context, now time.Time) ([]Elapsed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Elapsed
	for raw, t := range s.timers {
		if t.claimed || t.fireAt.After(now) {
			continue
		}
		key, err := ParseKey(raw)
		if err != nil {
			continue
		}
		t.claimed = true
		out = append(out, Elapsed{Key: key, Generation: t.generation, FireAt: t.fireAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })
	return out, nil
}

func (s *MemoryTimerStore) Get(_ context.Context, key Key) (Timer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[key.String()]
	if !ok {
		return Timer{}, ErrTimerNotFound
	}
	return Timer{
		Key:        key,
		FireAt:     t.fireAt,
		CreatedAt:  t.createdAt,
		Generation: t.generation,
		Claimed:    t.claimed,
	}, nil
}

func (s *MemoryTimerStore) Complete(_ context.Context, key Key, generation int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[key.String()]
	if !ok {
		return nil
	}
	if t.generation != generation {
		return ErrStaleGeneration
	}
	delete(s.timers, key.String())
	return nil
}

func (s *MemoryTimerStore) Release(_ context.Context, key Key, generation int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.timers[key.String()]
	if !ok {
		return nil
	}
	if t.generation != generation {
		return ErrStaleGeneration
	}
	t.claimed = false
	return nil
}
