// Package retry runs bounded, deadline-aware retries for outbound calls.
package retry

import (
	"context"
	"fmt"
	"time"

	"lead-engine/internal/common/errors"
)

// Policy is a fixed-delay retry policy.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

var DefaultPolicy = Policy{
	MaxAttempts: 3,
	Delay:       500 * time.Millisecond,
}

// Normalized returns p with zero fields replaced by the defaults.
func (p Policy) Normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultPolicy.MaxAttempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

// OnRetry is called before each retry with the failed attempt number.
type OnRetry func(attempt int, err error)

// Do calls fn until it succeeds, returns a non-retryable error, the attempts are
// exhausted, or ctx is done. Only errors.IsRetryable errors are retried. When
// ctx expires the last error is returned wrapped in a CRM timeout for backend.
func Do(ctx context.Context, p Policy, backend string, fn func(context.Context) error, onRetry OnRetry) error {
	p = p.Normalized()

	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return deadlineError(backend, lastErr, err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return deadlineError(backend, lastErr, ctx.Err())
		}
		if !errors.IsRetryable(err) || attempt == p.MaxAttempts {
			return err
		}

		if onRetry != nil {
			onRetry(attempt, err)
		}

		timer := time.NewTimer(p.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return deadlineError(backend, lastErr, ctx.Err())
		}
	}

	return lastErr
}

// Value is Do for calls that produce a result.
func Value[T any](ctx context.Context, p Policy, backend string, fn func(context.Context) (T, error), onRetry OnRetry) (T, error) {
	var out T
	err := Do(ctx, p, backend, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, onRetry)
	return out, err
}

func deadlineError(backend string, lastErr, ctxErr error) error {
	if errors.HasCode(lastErr, errors.ErrCodeCRMTimeout) {
		return lastErr
	}
	cause := ctxErr
	if lastErr != nil {
		cause = fmt.Errorf("%w (last error: %v)", ctxErr, lastErr)
	}
	return errors.NewCRMTimeoutError(backend, cause)
}
