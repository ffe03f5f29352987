package transport

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/arvidsson/gitsync/retry"
)

type alwaysRetrier struct{}

func (alwaysRetrier) ShouldRetry(err error, attempt int) bool     { return true }
func (alwaysRetrier) Wait(ctx context.Context, attempt int) error { return nil }
func (alwaysRetrier) MaxAttempts() int                            { return 5 }

func TestHTTPRetrier_RetriesNetworkTimeouts(t *testing.T) {
	t.Parallel()

	r := NewHTTPRetrier(alwaysRetrier{})
	err := &timeoutError{}
	assert.True(t, r.ShouldRetry(err, 1))
}

func TestHTTPRetrier_DoesNotRetryPostOn5xx(t *testing.T) {
	t.Parallel()

	r := NewHTTPRetrier(alwaysRetrier{})
	err := NewServerUnavailableError(http.MethodPost, http.StatusServiceUnavailable, errors.New("boom"))
	assert.False(t, r.ShouldRetry(err, 1))
}

func TestHTTPRetrier_RetriesGetOn5xx(t *testing.T) {
	t.Parallel()

	r := NewHTTPRetrier(alwaysRetrier{})
	err := NewServerUnavailableError(http.MethodGet, http.StatusServiceUnavailable, errors.New("boom"))
	assert.True(t, r.ShouldRetry(err, 1))
}

func TestHTTPRetrier_RetriesTooManyRequestsRegardlessOfVerb(t *testing.T) {
	t.Parallel()

	r := NewHTTPRetrier(alwaysRetrier{})
	err := NewServerUnavailableError(http.MethodPost, http.StatusTooManyRequests, errors.New("boom"))
	assert.True(t, r.ShouldRetry(err, 1))
}

func TestHTTPRetrier_NeverRetriesContextCancellation(t *testing.T) {
	t.Parallel()

	r := NewHTTPRetrier(alwaysRetrier{})
	assert.False(t, r.ShouldRetry(context.Canceled, 1))
}

func TestHTTPRetrier_DefaultsToNoop(t *testing.T) {
	t.Parallel()

	r := NewHTTPRetrier(nil)
	assert.Equal(t, 1, r.MaxAttempts())
}

var _ retry.Retrier = (*HTTPRetrier)(nil)

type timeoutError struct{}

func (*timeoutError) Error() string   { return "i/o timeout" }
func (*timeoutError) Timeout() bool   { return true }
func (*timeoutError) Temporary() bool { return true }
