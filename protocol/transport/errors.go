// Package transport adapts pkt-line conversations onto the two carriers
// the Git Smart protocol runs over: a persistent, bidirectional stream
// (git://; SSH is not supported) and stateless HTTP, where every round of
// negotiation is its own independent request/response pair.
package transport

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/arvidsson/gitsync/protocol"
)

// ServerUnavailableError provides structured information about a Git
// server that is unavailable (5xx, 429).
type ServerUnavailableError struct {
	StatusCode int
	Operation  string
	Underlying error
}

func (e *ServerUnavailableError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("server unavailable (operation %s, status code %d): %v", e.Operation, e.StatusCode, e.Underlying)
	}
	return fmt.Sprintf("server unavailable (operation %s, status code %d)", e.Operation, e.StatusCode)
}

func (e *ServerUnavailableError) Unwrap() error { return e.Underlying }

// Is makes errors.Is(err, protocol.ErrServerUnavailable) match, so the
// retry package and the CLI's exit-code mapping recognize a 5xx/429.
func (e *ServerUnavailableError) Is(target error) bool {
	return target == protocol.ErrServerUnavailable
}

// NewServerUnavailableError constructs a ServerUnavailableError.
func NewServerUnavailableError(operation string, statusCode int, underlying error) *ServerUnavailableError {
	return &ServerUnavailableError{Operation: operation, StatusCode: statusCode, Underlying: underlying}
}

// CheckServerUnavailable classifies a response as server-unavailable (5xx
// or 429), returning nil for anything else. The caller remains
// responsible for closing the response body.
func CheckServerUnavailable(res *http.Response) error {
	if res.StatusCode >= 500 || res.StatusCode == http.StatusTooManyRequests {
		operation := ""
		if res.Request != nil {
			operation = res.Request.Method
		}
		return NewServerUnavailableError(operation, res.StatusCode, fmt.Errorf("got status code %d: %s", res.StatusCode, res.Status))
	}
	return nil
}

// UnauthorizedError provides structured information about a 401 response.
type UnauthorizedError struct {
	Operation  string
	Endpoint   string
	Underlying error
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized (operation %s, endpoint %s): %v", e.Operation, e.Endpoint, e.Underlying)
}
func (e *UnauthorizedError) Unwrap() error { return e.Underlying }

// PermissionDeniedError provides structured information about a 403 response.
type PermissionDeniedError struct {
	Operation  string
	Endpoint   string
	Underlying error
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied (operation %s, endpoint %s): %v", e.Operation, e.Endpoint, e.Underlying)
}
func (e *PermissionDeniedError) Unwrap() error { return e.Underlying }

// RepositoryNotFoundError provides structured information about a 404 response.
type RepositoryNotFoundError struct {
	Operation  string
	Endpoint   string
	Underlying error
}

func (e *RepositoryNotFoundError) Error() string {
	return fmt.Sprintf("repository not found (operation %s, endpoint %s): %v", e.Operation, e.Endpoint, e.Underlying)
}
func (e *RepositoryNotFoundError) Unwrap() error { return e.Underlying }

// CheckHTTPClientError classifies a 4xx response into one of
// UnauthorizedError, PermissionDeniedError, RepositoryNotFoundError, or
// nil if it's a 4xx this package doesn't special-case (the caller should
// fall back to a generic error). The caller remains responsible for
// closing the response body.
func CheckHTTPClientError(res *http.Response) error {
	if res.StatusCode < 400 || res.StatusCode >= 500 {
		return nil
	}

	operation, endpoint := "", ""
	if res.Request != nil {
		operation = res.Request.Method
		endpoint = extractEndpoint(res.Request.URL.Path)
	}
	underlying := fmt.Errorf("got status code %d: %s", res.StatusCode, res.Status)

	switch res.StatusCode {
	case http.StatusUnauthorized:
		return &UnauthorizedError{Operation: operation, Endpoint: endpoint, Underlying: underlying}
	case http.StatusForbidden:
		return &PermissionDeniedError{Operation: operation, Endpoint: endpoint, Underlying: underlying}
	case http.StatusNotFound:
		return &RepositoryNotFoundError{Operation: operation, Endpoint: endpoint, Underlying: underlying}
	default:
		return nil
	}
}

// extractEndpoint extracts the Git protocol endpoint from a URL path, for
// use in error messages.
func extractEndpoint(path string) string {
	if idx := strings.Index(path, "?"); idx != -1 {
		path = path[:idx]
	}
	switch {
	case strings.Contains(path, "git-receive-pack"):
		return "git-receive-pack"
	case strings.Contains(path, "git-upload-pack"):
		return "git-upload-pack"
	case strings.Contains(path, "info/refs"):
		return "info/refs"
	default:
		return "unknown"
	}
}
