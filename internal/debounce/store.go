package debounce

import (
	"context"
	"errors"
	"time"
)

// ErrTimerNotFound is returned by Get when no timer exists for a key.
var ErrTimerNotFound = errors.New("debounce: timer not found")

// ErrStaleGeneration is returned by Complete and Release when the timer's
// current generation no longer matches the caller's claim.
var ErrStaleGeneration = errors.New("debounce: stale generation")

// Timer is the stored state of one pending debounce fire.
type Timer struct {
	Key        Key
	FireAt     time.Time
	CreatedAt  time.Time
	Generation int64
	Claimed    bool
}

// Elapsed is one claimed (key, generation) pair returned by PollElapsed.
type Elapsed struct {
	Key        Key
	Generation int64
	FireAt     time.Time
}

// TimerStore is the durable map of conversation key to pending fire. It is
// the only mutable shared state in the pipeline; implementations must make
// Reset and PollElapsed atomic per key.
type TimerStore interface {
	// Reset arms or re-arms the timer: fire_at = now+delay, generation+1.
	// Returns the new generation.
	Reset(ctx context.Context, key Key, delay time.Duration) (int64, error)

	// Cancel removes the timer if present. Idempotent, safe while claimed.
	Cancel(ctx context.Context, key Key) error

	// PollElapsed atomically claims every timer with fire_at <= now. No two
	// pollers ever receive the same (key, generation) pair.
	PollElapsed(ctx context.Context, now time.Time) ([]Elapsed, error)

	// Get returns the current timer state or ErrTimerNotFound.
	Get(ctx context.Context, key Key) (Timer, error)

	// Complete deletes the timer after a successful dispatch, but only if
	// generation still matches; a concurrent reset survives untouched.
	Complete(ctx context.Context, key Key, generation int64) error

	// Release puts a claimed timer back so a later poll retries the
	// dispatch. No-op if the generation moved on.
	Release(ctx context.Context, key Key, generation int64) error
}
