package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"lead-engine/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = Policy{MaxAttempts: 3, Delay: time.Millisecond}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	var retried []int

	err := Do(context.Background(), fastPolicy, "zoho", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.NewCRMTransientError("zoho", fmt.Errorf("connection reset"))
		}
		return nil
	}, func(attempt int, err error) { retried = append(retried, attempt) })

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy, "zoho", func(ctx context.Context) error {
		calls++
		return errors.NewCRMAuthError("zoho", "401")
	}, nil)

	assert.Equal(t, 1, calls)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCRMAuth))
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy, "records", func(ctx context.Context) error {
		calls++
		return errors.NewCRMRateLimitedError("records", "429")
	}, nil)

	assert.Equal(t, 3, calls)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCRMRateLimited))
}

func TestDo_RespectsDeadlineDuringDelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := Do(ctx, Policy{MaxAttempts: 3, Delay: time.Second}, "docstore", func(ctx context.Context) error {
		return errors.NewCRMTransientError("docstore", fmt.Errorf("503"))
	}, nil)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCRMTimeout))
}

func TestDo_CancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Do(ctx, fastPolicy, "zoho", func(ctx context.Context) error {
		called = true
		return nil
	}, nil)

	assert.False(t, called)
	assert.True(t, errors.HasCode(err, errors.ErrCodeCRMTimeout))
}

func TestValue_ReturnsResult(t *testing.T) {
	id, err := Value(context.Background(), fastPolicy, "zoho", func(ctx context.Context) (string, error) {
		return "ext-1", nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, "ext-1", id)
}

func TestPolicy_Normalized(t *testing.T) {
	p := Policy{}.Normalized()
	assert.Equal(t, 3, p.MaxAttempts)

	p = Policy{MaxAttempts: 5, Delay: -time.Second}.Normalized()
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, time.Duration(0), p.Delay)
}
