package qualify

import (
	"context"
	"fmt"
	"time"

	"github.com/leadwire/leadwire/pkg/logging"
)

// RetryPolicy bounds the retry loop around a capability call. Timeout applies
// per attempt; Backoff is the pause between attempts.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	Timeout    time.Duration
}

// DefaultRetryPolicy matches the configured defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Backoff: 2 * time.Second, Timeout: 30 * time.Second}
}

// RetryingQualifier wraps an inner Qualifier with bounded-backoff retries.
// A timeout on the inner call counts as a retryable failure.
type RetryingQualifier struct {
	inner  Qualifier
	policy RetryPolicy
	logger *logging.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewRetryingQualifier(inner Qualifier, policy RetryPolicy, logger *logging.Logger) *RetryingQualifier {
	if inner == nil {
		panic("qualify: inner qualifier required")
	}
	if policy.MaxRetries < 1 {
		policy.MaxRetries = 1
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RetryingQualifier{
		inner:  inner,
		policy: policy,
		logger: logger,
		sleep:  sleepCtx,
	}
}

func (r *RetryingQualifier) Qualify(ctx context.Context, req Request) (Result, error) {
	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxRetries; attempt++ {
		result, err := r.attempt(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("qualify: canceled: %w", ctx.Err())
		}
		r.logger.Warn("qualification attempt failed",
			"company_id", req.CompanyID,
			"attempt", attempt,
			"max_retries", r.policy.MaxRetries,
			"error", err)

		if attempt < r.policy.MaxRetries && r.policy.Backoff > 0 {
			if err := r.sleep(ctx, r.policy.Backoff); err != nil {
				return Result{}, fmt.Errorf("qualify: canceled: %w", err)
			}
		}
	}
	return Result{}, fmt.Errorf("%w: %w", ErrRetriesExhausted, lastErr)
}

func (r *RetryingQualifier) attempt(ctx context.Context, req Request) (Result, error) {
	if r.policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.policy.Timeout)
		defer cancel()
	}
	return r.inner.Qualify(ctx, req)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
