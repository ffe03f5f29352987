// Package git implements the high-level operations a caller actually
// drives: Ls, Fetch (and its FetchOne/FetchSome/FetchAll/Clone thin
// layers), Push, and UpdateAndCreate. It wires protocol/transport,
// protocol/negotiate, protocol/sideband, and store together behind a
// single Repository value, following the shape of nanogit's root-package
// httpClient (one type implementing every operation over a configured
// transport and object store).
package git

import (
	"context"
	"fmt"

	"github.com/arvidsson/gitsync/log"
	"github.com/arvidsson/gitsync/protocol"
	"github.com/arvidsson/gitsync/protocol/negotiate"
	"github.com/arvidsson/gitsync/protocol/sideband"
	"github.com/arvidsson/gitsync/protocol/transport"
	"github.com/arvidsson/gitsync/store"
)

// Repository binds one remote (through a Transport) to one local object/ref
// database (through a Store). All of Ls/Fetch/Push/UpdateAndCreate are
// methods on it.
type Repository struct {
	transport transport.Transport
	store     store.Store
	logger    log.Logger

	fetchNegotiator negotiate.Negotiator
	progress        sideband.ProgressSink
	userAgent       string

	deltaWindow   int
	maxDeltaDepth int
}

// Option configures a Repository at construction time.
type Option func(*Repository) error

// WithLogger attaches a logger; the default discards everything.
func WithLogger(l log.Logger) Option {
	return func(r *Repository) error {
		if l == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		r.logger = l
		return nil
	}
}

// WithNegotiator overrides the default fetch negotiator
// (negotiate.HaveAllRefsOnce{}).
func WithNegotiator(n negotiate.Negotiator) Option {
	return func(r *Repository) error {
		if n == nil {
			return fmt.Errorf("negotiator cannot be nil")
		}
		r.fetchNegotiator = n
		return nil
	}
}

// WithProgress attaches a sink that receives side-band channel-2 progress
// text during fetch and push, matching the CLI's --progress surface.
func WithProgress(sink sideband.ProgressSink) Option {
	return func(r *Repository) error {
		r.progress = sink
		return nil
	}
}

// WithUserAgent overrides the agent= capability this client asserts.
// Defaults to "gitsync/1.0".
func WithUserAgent(agent string) Option {
	return func(r *Repository) error {
		if agent == "" {
			return fmt.Errorf("user agent cannot be empty")
		}
		r.userAgent = agent
		return nil
	}
}

// WithDeltaWindow bounds how many prior candidates WritePackfileWithOptions
// considers as a delta base for each object pushed. Defaults to
// protocol.DefaultDeltaWindow.
func WithDeltaWindow(window int) Option {
	return func(r *Repository) error {
		if window <= 0 {
			return fmt.Errorf("delta window must be positive")
		}
		r.deltaWindow = window
		return nil
	}
}

// WithMaxDeltaDepth bounds how deep a resolved delta chain may run, both
// when building a push's packfile and when resolving one received over
// Fetch; a chain deeper than this fails with protocol.ErrDeltaChainTooDeep.
// Defaults to protocol.DefaultMaxDeltaDepth.
func WithMaxDeltaDepth(depth int) Option {
	return func(r *Repository) error {
		if depth <= 0 {
			return fmt.Errorf("max delta depth must be positive")
		}
		r.maxDeltaDepth = depth
		return nil
	}
}

// NewRepository builds a Repository over t (the wire transport) and s (the
// local object/ref database).
func NewRepository(t transport.Transport, s store.Store, opts ...Option) (*Repository, error) {
	if t == nil {
		return nil, fmt.Errorf("git: transport cannot be nil")
	}
	if s == nil {
		return nil, fmt.Errorf("git: store cannot be nil")
	}

	r := &Repository{
		transport:       t,
		store:           s,
		logger:          log.Noop(),
		fetchNegotiator: negotiate.HaveAllRefsOnce{},
		userAgent:       "gitsync/1.0",
		deltaWindow:     protocol.DefaultDeltaWindow,
		maxDeltaDepth:   protocol.DefaultMaxDeltaDepth,
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, fmt.Errorf("git: applying option: %w", err)
		}
	}

	return r, nil
}

// log returns the logger a single call should use: whatever ctx carries
// (so one Repository can log a batch operation's individual steps under a
// caller-supplied request-scoped logger), falling back to the Repository's
// own logger otherwise.
func (r *Repository) log(ctx context.Context) log.Logger {
	if l := log.FromContext(ctx); l != nil {
		return l
	}
	return r.logger
}
