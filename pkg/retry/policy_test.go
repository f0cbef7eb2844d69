package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyErr struct{ retry bool }

func (e flakyErr) Error() string   { return "flaky" }
func (e flakyErr) Retryable() bool { return e.retry }

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func TestBackoff_ExponentialAndCapped(t *testing.T) {
	p := New(6, time.Second, 5*time.Second).WithRandom(func() float64 { return 0 })

	assert.Equal(t, 1*time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, 5*time.Second, p.Backoff(4))
	assert.Equal(t, 5*time.Second, p.Backoff(10))
}

func TestBackoff_JitterBounds(t *testing.T) {
	p := New(3, 2*time.Second, time.Minute).WithRandom(func() float64 { return 1 })

	// full jitter share removes half of the delay
	assert.Equal(t, 1*time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	var waits []time.Duration
	p := New(4, time.Second, time.Minute).
		WithRandom(func() float64 { return 0 }).
		WithSleeper(func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		})

	calls := 0
	attempts, err := p.Do(context.Background(), func(_ context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return flakyErr{retry: true}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	p := New(5, time.Millisecond, time.Second).WithSleeper(noSleep)

	attempts, err := p.Do(context.Background(), func(context.Context, int) error {
		return flakyErr{retry: false}
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	p := New(3, time.Millisecond, time.Second).WithSleeper(noSleep)

	attempts, err := p.Do(context.Background(), func(context.Context, int) error {
		return flakyErr{retry: true}
	})

	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(3, time.Hour, time.Hour)
	attempts, err := p.Do(ctx, func(context.Context, int) error {
		return flakyErr{retry: true}
	})

	assert.True(t, errors.Is(err, context.Canceled))
	var last flakyErr
	assert.True(t, errors.As(err, &last), "last failure is kept")
	assert.Equal(t, 1, attempts)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(flakyErr{retry: true}))
	assert.True(t, IsRetryable(errors.Join(errors.New("wrap"), flakyErr{retry: true})))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}
