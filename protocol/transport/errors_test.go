package transport

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckServerUnavailable(t *testing.T) {
	t.Parallel()

	for _, code := range []int{500, 502, 503, 429} {
		res := &http.Response{StatusCode: code, Status: "err", Request: &http.Request{Method: "GET"}}
		err := CheckServerUnavailable(res)
		require.Error(t, err)
		var unavailable *ServerUnavailableError
		require.ErrorAs(t, err, &unavailable)
		assert.Equal(t, code, unavailable.StatusCode)
	}

	res := &http.Response{StatusCode: 200}
	assert.NoError(t, CheckServerUnavailable(res))
}

func TestCheckHTTPClientError(t *testing.T) {
	t.Parallel()

	u, _ := url.Parse("https://example.com/org/repo.git/info/refs")

	tests := []struct {
		code int
		want any
	}{
		{http.StatusUnauthorized, &UnauthorizedError{}},
		{http.StatusForbidden, &PermissionDeniedError{}},
		{http.StatusNotFound, &RepositoryNotFoundError{}},
	}

	for _, tt := range tests {
		res := &http.Response{
			StatusCode: tt.code,
			Status:     "err",
			Request:    &http.Request{Method: "GET", URL: u},
		}
		err := CheckHTTPClientError(res)
		require.Error(t, err)
		assert.IsType(t, tt.want, err)
	}

	res := &http.Response{StatusCode: 418, Request: &http.Request{Method: "GET", URL: u}}
	assert.NoError(t, CheckHTTPClientError(res))
}

func TestExtractEndpoint(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "info/refs", extractEndpoint("/org/repo.git/info/refs"))
	assert.Equal(t, "git-upload-pack", extractEndpoint("/org/repo.git/git-upload-pack"))
	assert.Equal(t, "git-receive-pack", extractEndpoint("/org/repo.git/git-receive-pack"))
	assert.Equal(t, "unknown", extractEndpoint("/org/repo.git/weird"))
}
