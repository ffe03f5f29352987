package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTransport_Advertisement(t *testing.T) {
	t.Parallel()

	var gotPath, gotQuery, gotUserAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotUserAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/x-git-upload-pack-advertisement")
		_, _ = w.Write([]byte("001e# service=git-upload-pack\n0000"))
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(srv.URL+"/org/repo.git", WithUserAgent("gitsync-test/1.0"))
	require.NoError(t, err)

	rc, err := tr.Advertisement(context.Background(), ServiceUploadPack)
	require.NoError(t, err)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)

	assert.Equal(t, "/org/repo.git/info/refs", gotPath)
	assert.Equal(t, "service=git-upload-pack", gotQuery)
	assert.Equal(t, "gitsync-test/1.0", gotUserAgent)
	assert.Contains(t, string(body), "service=git-upload-pack")
}

func TestHTTPTransport_Advertisement_Unauthorized(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(srv.URL + "/org/repo.git")
	require.NoError(t, err)

	authorized, err := tr.IsAuthorized(context.Background())
	require.NoError(t, err)
	assert.False(t, authorized)
}

func TestHTTPTransport_PhaseRequest_ContentTypes(t *testing.T) {
	t.Parallel()

	var gotContentType, gotAccept, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotAccept = r.Header.Get("Accept")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/x-git-upload-pack-result")
		_, _ = w.Write([]byte("0008NAK\n0000"))
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(srv.URL + "/org/repo.git")
	require.NoError(t, err)

	conv, err := tr.Open(context.Background())
	require.NoError(t, err)
	defer conv.Close()

	require.NoError(t, conv.WriteFrames(context.Background(), ServiceUploadPack, []byte("0009done\n")))
	rc, err := conv.ReadFrames(context.Background())
	require.NoError(t, err)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)

	assert.Equal(t, "application/x-git-upload-pack-request", gotContentType)
	assert.Equal(t, "application/x-git-upload-pack-result", gotAccept)
	assert.Equal(t, "0009done\n", gotBody)
	assert.Contains(t, string(body), "NAK")
	assert.True(t, conv.Stateless())
}

func TestHTTPTransport_ServerUnavailable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tr, err := NewHTTPTransport(srv.URL + "/org/repo.git")
	require.NoError(t, err)

	_, err = tr.Advertisement(context.Background(), ServiceUploadPack)
	require.Error(t, err)

	var unavailable *ServerUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, http.StatusServiceUnavailable, unavailable.StatusCode)
}

func TestHTTPTransport_BasicAndTokenAuthMutuallyExclusive(t *testing.T) {
	t.Parallel()

	_, err := NewHTTPTransport("https://example.com/repo.git",
		WithBasicAuth("user", "pass"),
		WithTokenAuth("tok"),
	)
	require.Error(t, err)
}
