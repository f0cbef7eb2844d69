package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy is the single backoff policy shared by every upstream fetcher
// ⭐ SSOT: 재시도/백오프 규칙은 여기서만
//
// Attempt numbers are 1-based; Backoff(n) is the wait after attempt n failed.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // 0..1, share of each delay that is randomised

	sleep  func(ctx context.Context, d time.Duration) error
	random func() float64
}

// Retryable is implemented by errors that know whether a retry can help
type Retryable interface {
	Retryable() bool
}

// New creates an exponential backoff policy with 50% jitter
func New(maxAttempts int, baseDelay, maxDelay time.Duration) *Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Policy{
		MaxAttempts: maxAttempts,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		Jitter:      0.5,
		sleep:       sleepCtx,
		random:      rand.Float64,
	}
}

// WithSleeper replaces the wait function, used by tests to skip real sleeps
func (p *Policy) WithSleeper(fn func(ctx context.Context, d time.Duration) error) *Policy {
	cp := *p
	cp.sleep = fn
	return &cp
}

// WithRandom replaces the jitter source
func (p *Policy) WithRandom(fn func() float64) *Policy {
	cp := *p
	cp.random = fn
	return &cp
}

// Backoff returns the delay to wait after the given failed attempt
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}

	if p.Jitter > 0 && p.random != nil {
		cut := float64(delay) * p.Jitter * p.random()
		delay -= time.Duration(cut)
	}
	return delay
}

// Wait blocks for Backoff(attempt) or until ctx is done
func (p *Policy) Wait(ctx context.Context, attempt int) error {
	return p.sleep(ctx, p.Backoff(attempt))
}

// CanRetry reports whether another attempt is allowed after attempt
func (p *Policy) CanRetry(attempt int) bool {
	return attempt < p.MaxAttempts
}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts run out.
// It returns the number of attempts consumed. A cancelled wait returns the
// last failure joined with the context error.
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	var err error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err = fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		if !IsRetryable(err) || !p.CanRetry(attempt) {
			return attempt, err
		}
		if werr := p.Wait(ctx, attempt); werr != nil {
			return attempt, errors.Join(err, werr)
		}
	}
	return p.MaxAttempts, err
}

// IsRetryable checks an error chain for a Retryable verdict
func IsRetryable(err error) bool {
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
