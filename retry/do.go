package retry

import (
	"context"
	"fmt"
)

// Do runs fn, retrying it according to the Retrier attached to ctx (or
// NoopRetrier if none is attached) until it succeeds, a non-retryable error
// is returned, or the retrier's attempt budget is exhausted.
func Do[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	retrier := FromContextOrNoop(ctx)

	var (
		result T
		err    error
	)

	for attempt := 1; ; attempt++ {
		result, err = fn()
		if err == nil {
			return result, nil
		}

		if !retrier.ShouldRetry(err, attempt) {
			if maxAttempts := retrier.MaxAttempts(); maxAttempts > 0 && attempt >= maxAttempts {
				return result, fmt.Errorf("max retry attempts (%d) reached: %w", maxAttempts, err)
			}
			return result, err
		}

		if waitErr := retrier.Wait(ctx, attempt); waitErr != nil {
			return result, fmt.Errorf("context cancelled while waiting to retry: %w", waitErr)
		}
	}
}

// DoVoid is Do for functions with no return value besides error.
func DoVoid(ctx context.Context, fn func() error) error {
	_, err := Do(ctx, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
