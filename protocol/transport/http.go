package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/arvidsson/gitsync/retry"
)

// Config holds the tunables of an HTTPTransport, built up by Option
// functions passed to NewHTTPTransport.
type Config struct {
	httpClient *http.Client
	userAgent  string
	basicAuth  *struct{ Username, Password string }
	tokenAuth  *string
}

// Option configures a Config.
type Option func(*Config) error

// WithHTTPClient overrides the *http.Client used for every request. The
// default is http.DefaultClient.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Config) error {
		if client == nil {
			return fmt.Errorf("http client cannot be nil")
		}
		c.httpClient = client
		return nil
	}
}

// WithUserAgent overrides the User-Agent header sent with every request.
func WithUserAgent(userAgent string) Option {
	return func(c *Config) error {
		if userAgent == "" {
			return fmt.Errorf("user agent cannot be empty")
		}
		c.userAgent = userAgent
		return nil
	}
}

// WithBasicAuth sets HTTP Basic Auth credentials.
func WithBasicAuth(username, password string) Option {
	return func(c *Config) error {
		if username == "" {
			return fmt.Errorf("username cannot be empty")
		}
		if c.tokenAuth != nil {
			return fmt.Errorf("cannot use both basic auth and token auth")
		}
		c.basicAuth = &struct{ Username, Password string }{username, password}
		return nil
	}
}

// WithTokenAuth sets the Authorization header to the given token verbatim;
// if the remote expects a "Bearer " or "token " prefix, include it here.
func WithTokenAuth(token string) Option {
	return func(c *Config) error {
		if token == "" {
			return fmt.Errorf("token cannot be empty")
		}
		if c.basicAuth != nil {
			return fmt.Errorf("cannot use both basic auth and token auth")
		}
		c.tokenAuth = &token
		return nil
	}
}

// HTTPTransport implements Transport over stateless HTTP, per the
// http-protocol "smart" mode: the advertisement is one GET, and each phase
// of the conversation that follows is its own complete POST request/response
// pair.
type HTTPTransport struct {
	base   *url.URL
	config Config
}

// NewHTTPTransport builds an HTTPTransport rooted at repo (e.g.
// "https://example.com/org/repo.git").
func NewHTTPTransport(repo string, opts ...Option) (*HTTPTransport, error) {
	base, err := url.Parse(repo)
	if err != nil {
		return nil, fmt.Errorf("parse repository url: %w", err)
	}

	cfg := Config{
		httpClient: http.DefaultClient,
		userAgent:  "gitsync/1.0",
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	return &HTTPTransport{base: base, config: cfg}, nil
}

// Open returns a new stateless conversation. There is no connection to
// establish ahead of time; every phase is its own request.
func (t *HTTPTransport) Open(ctx context.Context) (Conversation, error) {
	return &httpConversation{transport: t}, nil
}

// IsAuthorized performs a cheap connectivity/credential check by fetching
// the upload-pack advertisement and checking for a 401.
func (t *HTTPTransport) IsAuthorized(ctx context.Context) (bool, error) {
	rc, err := t.Advertisement(ctx, ServiceUploadPack)
	if err != nil {
		var unauthorized *UnauthorizedError
		if asUnauthorized(err, &unauthorized) {
			return false, nil
		}
		return false, err
	}
	defer rc.Close()
	return true, nil
}

func asUnauthorized(err error, target **UnauthorizedError) bool {
	for err != nil {
		if u, ok := err.(*UnauthorizedError); ok {
			*target = u
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func (t *HTTPTransport) endpoint(p string) string {
	return strings.TrimRight(t.base.String(), "/") + "/" + p
}

func (t *HTTPTransport) addDefaultHeaders(req *http.Request) {
	req.Header.Set("User-Agent", t.config.userAgent)
	if t.config.basicAuth != nil {
		req.SetBasicAuth(t.config.basicAuth.Username, t.config.basicAuth.Password)
	}
	if t.config.tokenAuth != nil {
		req.Header.Set("Authorization", *t.config.tokenAuth)
	}
}

// Advertisement fetches the capability/ref advertisement for service via
// GET $base/info/refs?service=<service>.
func (t *HTTPTransport) Advertisement(ctx context.Context, service Service) (io.ReadCloser, error) {
	endpoint := t.endpoint("info/refs") + "?service=" + string(service)

	return retry.Do(ctx, func() (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("build advertisement request: %w", err)
		}
		t.addDefaultHeaders(req)

		res, err := t.config.httpClient.Do(req)
		if err != nil {
			return nil, &wrappedTransportError{phase: PhaseAdvertisement, err: err}
		}

		if err := checkResponse(res, string(service)+"-advertisement"); err != nil {
			res.Body.Close()
			return nil, err
		}

		return res.Body, nil
	})
}

// phaseRequest performs one stateless-HTTP phase: POST frames to the
// appropriate service endpoint and return the response body.
func (t *HTTPTransport) phaseRequest(ctx context.Context, phase Phase, service Service, frames []byte) (io.ReadCloser, error) {
	var path, reqContentType, resContentType string
	switch service {
	case ServiceUploadPack:
		path = "git-upload-pack"
		reqContentType = "application/x-git-upload-pack-request"
		resContentType = "application/x-git-upload-pack-result"
	case ServiceReceivePack:
		path = "git-receive-pack"
		reqContentType = "application/x-git-receive-pack-request"
		resContentType = "application/x-git-receive-pack-result"
	default:
		return nil, fmt.Errorf("unknown service %q", service)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint(path), bytes.NewReader(frames))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", path, err)
	}
	t.addDefaultHeaders(req)
	req.Header.Set("Content-Type", reqContentType)
	req.Header.Set("Accept", resContentType)

	res, err := t.config.httpClient.Do(req)
	if err != nil {
		return nil, &wrappedTransportError{phase: phase, err: err}
	}

	if err := checkResponse(res, path); err != nil {
		res.Body.Close()
		return nil, err
	}

	return res.Body, nil
}

func checkResponse(res *http.Response, operation string) error {
	if err := CheckServerUnavailable(res); err != nil {
		return err
	}
	if err := CheckHTTPClientError(res); err != nil {
		return err
	}
	if res.StatusCode >= 400 {
		return fmt.Errorf("%s: unexpected status %s", operation, res.Status)
	}
	return nil
}

// wrappedTransportError wraps a low-level transport failure (DNS, dial,
// TLS, context deadline) with the phase it occurred in.
type wrappedTransportError struct {
	phase Phase
	err   error
}

func (e *wrappedTransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.phase, e.err)
}
func (e *wrappedTransportError) Unwrap() error { return e.err }

// httpConversation implements Conversation over stateless HTTP. Every
// WriteFrames/ReadFrames pair is an independent POST; there is nothing to
// keep open between phases.
type httpConversation struct {
	transport *HTTPTransport

	pendingPhase   Phase
	pendingService Service
	pendingFrames  []byte
}

func (c *httpConversation) Advertisement(ctx context.Context, service Service) (io.ReadCloser, error) {
	return c.transport.Advertisement(ctx, service)
}

func (c *httpConversation) WriteFrames(ctx context.Context, service Service, frames []byte) error {
	c.pendingService = service
	c.pendingFrames = frames
	return nil
}

func (c *httpConversation) ReadFrames(ctx context.Context) (io.ReadCloser, error) {
	phase := PhaseNegotiationRound
	if c.pendingService == ServiceReceivePack {
		phase = PhasePackTransmission
	}
	return c.transport.phaseRequest(ctx, phase, c.pendingService, c.pendingFrames)
}

func (c *httpConversation) Stateless() bool { return true }

func (c *httpConversation) Close() error { return nil }
