// Package retry provides a pluggable retry mechanism for the stateless-HTTP
// transport. It follows the same pattern as the store-capability option
// (context-based injection): by default no retries are performed, and a
// caller opts in by attaching a Retrier to the context.
//
// Example usage:
//
//	retrier := retry.NewExponentialBackoffRetrier().
//	    WithMaxAttempts(3).
//	    WithInitialDelay(100 * time.Millisecond)
//	ctx = retry.ToContext(ctx, retrier)
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"

	"github.com/arvidsson/gitsync/protocol"
)

// Retrier determines when and how long to wait between retries of a
// stateless-HTTP phase. Retries only ever apply before a request's body
// has been fully sent — see SPEC_FULL.md's ambient-stack notes on why a
// persistent-stream conversation is never retried this way.
type Retrier interface {
	// ShouldRetry determines if an error should be retried. attempt is the
	// current attempt number (1-indexed).
	ShouldRetry(err error, attempt int) bool

	// Wait waits before the next retry attempt. Returns an error if the
	// context was cancelled during the wait.
	Wait(ctx context.Context, attempt int) error

	// MaxAttempts returns the maximum number of attempts, including the
	// initial one.
	MaxAttempts() int
}

// NoopRetrier never retries. It is the default when no retrier is attached
// to the context.
type NoopRetrier struct{}

func (r *NoopRetrier) ShouldRetry(err error, attempt int) bool       { return false }
func (r *NoopRetrier) Wait(ctx context.Context, attempt int) error   { return nil }
func (r *NoopRetrier) MaxAttempts() int                              { return 1 }

// ExponentialBackoffRetrier retries on network errors, timeouts, and 5xx /
// 429 responses. It never retries 4xx client errors or context cancellation.
type ExponentialBackoffRetrier struct {
	// MaxAttemptsValue is the maximum number of attempts, including the
	// initial one. Default 3.
	MaxAttemptsValue int

	// InitialDelay is the delay before the first retry. Default 100ms.
	InitialDelay time.Duration

	// MaxDelay caps the backoff. Default 5s.
	MaxDelay time.Duration

	// Multiplier is the exponential backoff factor. Default 2.0.
	Multiplier float64

	// Jitter randomizes the delay to avoid a thundering herd. Default true.
	Jitter bool
}

// NewExponentialBackoffRetrier returns a retrier configured with the
// package defaults.
func NewExponentialBackoffRetrier() *ExponentialBackoffRetrier {
	return &ExponentialBackoffRetrier{
		MaxAttemptsValue: 3,
		InitialDelay:     100 * time.Millisecond,
		MaxDelay:         5 * time.Second,
		Multiplier:       2.0,
		Jitter:           true,
	}
}

// ShouldRetry reports whether err warrants another attempt.
func (r *ExponentialBackoffRetrier) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}

	if maxAttempts := r.MaxAttempts(); maxAttempts > 0 && attempt >= maxAttempts {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if errors.Is(err, protocol.ErrServerUnavailable) {
		return true
	}

	var netErr interface {
		Timeout() bool
	}
	if errors.As(err, &netErr) {
		return true
	}

	return false
}

// Wait sleeps for the backoff delay of the given attempt, honoring context
// cancellation.
func (r *ExponentialBackoffRetrier) Wait(ctx context.Context, attempt int) error {
	delay := float64(r.InitialDelay) * math.Pow(r.Multiplier, float64(attempt-1))
	if delay > float64(r.MaxDelay) {
		delay = float64(r.MaxDelay)
	}

	if r.Jitter {
		jitter := rand.Float64() * delay
		delay = delay*0.5 + jitter*0.5
	}

	timer := time.NewTimer(time.Duration(delay))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MaxAttempts returns the configured maximum, defaulting to 3.
func (r *ExponentialBackoffRetrier) MaxAttempts() int {
	if r.MaxAttemptsValue <= 0 {
		return 3
	}
	return r.MaxAttemptsValue
}

func (r *ExponentialBackoffRetrier) WithMaxAttempts(attempts int) *ExponentialBackoffRetrier {
	r.MaxAttemptsValue = attempts
	return r
}

func (r *ExponentialBackoffRetrier) WithInitialDelay(delay time.Duration) *ExponentialBackoffRetrier {
	r.InitialDelay = delay
	return r
}

func (r *ExponentialBackoffRetrier) WithMaxDelay(delay time.Duration) *ExponentialBackoffRetrier {
	r.MaxDelay = delay
	return r
}

func (r *ExponentialBackoffRetrier) WithMultiplier(multiplier float64) *ExponentialBackoffRetrier {
	r.Multiplier = multiplier
	return r
}

func (r *ExponentialBackoffRetrier) WithJitter() *ExponentialBackoffRetrier {
	r.Jitter = true
	return r
}

func (r *ExponentialBackoffRetrier) WithoutJitter() *ExponentialBackoffRetrier {
	r.Jitter = false
	return r
}
