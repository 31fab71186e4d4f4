package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	errs "alkoscraper/pkg/errors"
	"alkoscraper/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, 1 * time.Second},
		{6, 1 * time.Second},
	}

	for _, test := range tests {
		if got := backoff.NextDelay(test.attempt); got != test.expected {
			t.Errorf("attempt %d: expected %v, got %v", test.attempt, test.expected, got)
		}
	}
}

func TestExponentialBackoffWithJitter(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:    100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.3,
	}

	delays := make(map[time.Duration]bool)
	for i := 0; i < 20; i++ {
		d := backoff.NextDelay(2)
		assert.GreaterOrEqual(t, d, 140*time.Millisecond)
		assert.LessOrEqual(t, d, 260*time.Millisecond)
		delays[d] = true
	}
	assert.Greater(t, len(delays), 1)
}

func TestErrorTypeBackoff(t *testing.T) {
	b := &ErrorTypeBackoff{
		NetworkErrorBackoff: &ConstantBackoff{Delay: time.Millisecond},
		ServerErrorBackoff:  &ConstantBackoff{Delay: 2 * time.Millisecond},
		DefaultBackoff:      &ConstantBackoff{Delay: 3 * time.Millisecond},
	}

	assert.Equal(t, time.Millisecond, b.DelayForError(1, errs.New(errs.ErrorTypeNetwork, "reset")))
	assert.Equal(t, 2*time.Millisecond, b.DelayForError(1, errs.FromStatus(503, "")))
	assert.Equal(t, 3*time.Millisecond, b.DelayForError(1, errors.New("plain")))
	assert.Equal(t, 3*time.Millisecond, b.NextDelay(1))
}

func TestDoSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	var retried []int

	err := Do(func() error {
		attempts++
		if attempts < 3 {
			return errs.New(errs.ErrorTypeNetwork, "connection reset")
		}
		return nil
	}, &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		OnRetry:     func(attempt int, err error, delay time.Duration) { retried = append(retried, attempt) },
		Logger:      logger.NewNopLogger(),
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDoStopsAtMaxAttempts(t *testing.T) {
	attempts := 0
	log := logger.NewTestLogger()
	cause := errs.FromStatus(502, "https://example.com")

	err := Do(func() error {
		attempts++
		return cause
	}, &Config{
		MaxAttempts: 3,
		Backoff:     &ConstantBackoff{Delay: time.Millisecond},
		Logger:      log,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, 3, attempts)
	assert.Len(t, log.GetMessagesByLevel("WARN"), 2)
	assert.True(t, log.HasMessage("max retry attempts exceeded"))
}

func TestDoDoesNotRetryNonRetryable(t *testing.T) {
	attempts := 0
	err := Do(func() error {
		attempts++
		return errs.New(errs.ErrorTypeParsing, "bad json")
	}, &Config{MaxAttempts: 5, Backoff: &ConstantBackoff{Delay: time.Millisecond}})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDoCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	err := Do(func() error {
		attempts++
		cancel()
		return errs.New(errs.ErrorTypeNetwork, "timeout")
	}, &Config{
		MaxAttempts: 5,
		Backoff:     &ConstantBackoff{Delay: time.Second},
		Context:     ctx,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestDoWithResultKeepsLastResult(t *testing.T) {
	calls := 0
	got, err := DoWithResult(func() (int, error) {
		calls++
		return 500 + calls, errs.FromStatus(500+calls, "")
	}, &Config{MaxAttempts: 2, Backoff: &ConstantBackoff{}})

	require.Error(t, err)
	assert.Equal(t, 502, got)
}

func TestDefaultRetryIf(t *testing.T) {
	assert.False(t, DefaultRetryIf(nil))
	assert.False(t, DefaultRetryIf(context.Canceled))
	assert.False(t, DefaultRetryIf(errs.Wrap(errs.ErrorTypeNetwork, "dial", context.DeadlineExceeded)))
	assert.True(t, DefaultRetryIf(errs.New(errs.ErrorTypeNetwork, "reset")))
	assert.True(t, DefaultRetryIf(errs.FromStatus(504, "")))
	assert.False(t, DefaultRetryIf(errs.FromStatus(403, "")))
	assert.True(t, DefaultRetryIf(errors.New("unknown")))
}

func TestRetrierCopiesConfig(t *testing.T) {
	base := NewRetrier(&Config{MaxAttempts: 2, Backoff: &ConstantBackoff{}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bound := base.WithContext(ctx).WithMaxAttempts(5)
	assert.Equal(t, 2, base.Config().MaxAttempts)
	assert.Nil(t, base.Config().Context)
	assert.Equal(t, 5, bound.Config().MaxAttempts)
	assert.Equal(t, ctx, bound.Config().Context)

	calls := 0
	_ = bound.Do(func() error { calls++; return errors.New("x") })
	assert.Equal(t, 5, calls)
}

func TestWait(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), 0))
	assert.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Minute), context.Canceled)
}
