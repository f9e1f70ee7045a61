package qualify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadwire/leadwire/pkg/logging"
)

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func TestRetryingQualifierSucceedsAfterFailure(t *testing.T) {
	calls := 0
	inner := QualifierFunc(func(_ context.Context, _ Request) (Result, error) {
		calls++
		if calls < 2 {
			return Result{}, errors.New("transient")
		}
		return Result{Score: 0.9, Reply: "ok"}, nil
	})

	q := NewRetryingQualifier(inner, RetryPolicy{MaxRetries: 3, Backoff: time.Second}, logging.Default())
	q.sleep = noSleep

	result, err := q.Qualify(context.Background(), Request{CompanyID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, 0.9, result.Score)
	assert.Equal(t, 2, calls)
}

func TestRetryingQualifierExhaustsBudget(t *testing.T) {
	calls := 0
	inner := QualifierFunc(func(ctx context.Context, _ Request) (Result, error) {
		calls++
		return Result{}, context.DeadlineExceeded
	})

	q := NewRetryingQualifier(inner, RetryPolicy{MaxRetries: 3, Backoff: time.Second}, logging.Default())
	q.sleep = noSleep

	_, err := q.Qualify(context.Background(), Request{CompanyID: "c1"})
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 3, calls)
}

func TestRetryingQualifierStopsOnCallerCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inner := QualifierFunc(func(_ context.Context, _ Request) (Result, error) {
		cancel()
		return Result{}, errors.New("transient")
	})

	q := NewRetryingQualifier(inner, RetryPolicy{MaxRetries: 5, Backoff: time.Second}, logging.Default())
	q.sleep = sleepCtx

	_, err := q.Qualify(ctx, Request{CompanyID: "c1"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRetriesExhausted)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryingQualifierAppliesPerAttemptTimeout(t *testing.T) {
	inner := QualifierFunc(func(ctx context.Context, _ Request) (Result, error) {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 40*time.Millisecond)
		return Result{Score: 0.5}, nil
	})

	q := NewRetryingQualifier(inner, RetryPolicy{MaxRetries: 1, Timeout: 50 * time.Millisecond}, logging.Default())
	_, err := q.Qualify(context.Background(), Request{CompanyID: "c1"})
	require.NoError(t, err)
}
