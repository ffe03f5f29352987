package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/arvidsson/gitsync/retry"
)

// HTTPRetrier wraps another retrier and narrows its retry decisions to
// HTTP-specific cases: temporary network errors, and ServerUnavailableError
// where the verb/status combination is actually safe to retry. A stateless
// POST whose body has already been drained by the failed attempt is never
// retried on a 5xx, since resending it would replay a request the remote
// may have partially applied; GET is always safe.
type HTTPRetrier struct {
	wrapped retry.Retrier
}

// NewHTTPRetrier wraps base, defaulting to retry.NoopRetrier if base is nil.
func NewHTTPRetrier(base retry.Retrier) *HTTPRetrier {
	if base == nil {
		base = &retry.NoopRetrier{}
	}
	return &HTTPRetrier{wrapped: base}
}

func (r *HTTPRetrier) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if isTemporaryNetworkError(err) {
		return r.wrapped.ShouldRetry(err, attempt)
	}

	var serverErr *ServerUnavailableError
	if errors.As(err, &serverErr) {
		if !isRetryableOperation(serverErr.Operation, serverErr.StatusCode) {
			return false
		}
		return r.wrapped.ShouldRetry(err, attempt)
	}

	return false
}

func (r *HTTPRetrier) Wait(ctx context.Context, attempt int) error {
	return r.wrapped.Wait(ctx, attempt)
}

func (r *HTTPRetrier) MaxAttempts() int {
	return r.wrapped.MaxAttempts()
}

func isTemporaryNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		var inner net.Error
		if errors.As(urlErr.Err, &inner) && inner.Timeout() {
			return true
		}
	}

	return false
}

// isRetryableOperation decides, given the HTTP method and status code of a
// failed attempt, whether resending is safe. Network failures (statusCode
// 0, the request never got a response) and 429 are always retryable; 5xx
// is only retryable for idempotent verbs.
func isRetryableOperation(operation string, statusCode int) bool {
	if statusCode == 0 {
		return true
	}
	if statusCode == http.StatusTooManyRequests {
		return true
	}

	switch statusCode {
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return operation == http.MethodGet || operation == http.MethodDelete
	default:
		return false
	}
}
