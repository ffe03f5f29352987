package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"

	"github.com/arvidsson/gitsync/protocol"
	"github.com/arvidsson/gitsync/protocol/hash"
	"github.com/arvidsson/gitsync/protocol/negotiate"
	"github.com/arvidsson/gitsync/protocol/sideband"
	"github.com/arvidsson/gitsync/protocol/transport"
)

// WantFunc inspects the advertisement and returns the object hashes the
// caller wants fetched. Returning an empty slice ends the conversation
// with no negotiation and no pack transfer.
type WantFunc func(adv *protocol.Advertisement) []hash.Hash

// NotifyFunc is invoked exactly once per fetch that produced a shallow
// boundary change, with every shallow/unshallow line the server sent.
type NotifyFunc func(shallow, unshallow []hash.Hash)

// FetchOptions configures one Fetch call.
type FetchOptions struct {
	// Haves seeds the negotiator with every object hash the caller
	// already holds, so the server can answer with a minimal pack.
	Haves []hash.Hash

	Deepen      int
	DeepenSince string
	DeepenNot   []string

	// Notify, if set, receives the shallow/unshallow boundary the server
	// reported, if any.
	Notify NotifyFunc
}

// FetchResult reports what a Fetch retrieved.
type FetchResult struct {
	Refs           []protocol.RefAdvertisement
	ObjectsWritten int
	Shallow        []hash.Hash
	Unshallow      []hash.Hash
}

// Fetch opens a conversation, fetches the advertisement, and hands it to
// want; if want returns no hashes, the conversation ends there with no
// further I/O. Otherwise it negotiates, receives the packfile, resolves
// every delta-encoded entry, writes the resulting objects to the store,
// and reports the result. It never updates refs itself — FetchOne/
// FetchSome/FetchAll/Clone do that once the pack is safely stored, so a
// cancelled or failed fetch leaves no ref mutated.
func (r *Repository) Fetch(ctx context.Context, want WantFunc, opts FetchOptions) (FetchResult, error) {
	conv, err := r.transport.Open(ctx)
	if err != nil {
		return FetchResult{}, fmt.Errorf("git: opening conversation: %w", err)
	}
	defer conv.Close()

	adv, err := readAdvertisement(ctx, conv, transport.ServiceUploadPack)
	if err != nil {
		return FetchResult{}, err
	}

	wants := want(adv)
	if len(wants) == 0 {
		r.log(ctx).Debug("fetch: nothing wanted, ending after advertisement")
		return FetchResult{Refs: adv.Refs}, nil
	}
	r.log(ctx).Info("fetch: negotiating", "wants", len(wants), "haves", len(opts.Haves))

	ackMode := negotiate.DetermineAckMode(adv.Capabilities)
	engine := &negotiate.Engine{
		AckMode:    ackMode,
		Negotiator: r.fetchNegotiator,
		Stateless:  conv.Stateless(),
	}

	req := negotiate.Request{
		Want:         wants,
		Capabilities: negotiateWantCapabilities(adv.Capabilities, r.userAgent),
		Deepen:       opts.Deepen,
		DeepenSince:  opts.DeepenSince,
		DeepenNot:    opts.DeepenNot,
		NoDone:       adv.Capabilities.Has("no-done"),
		Haves:        opts.Haves,
	}

	write := func(ctx context.Context, frames []byte) error {
		return conv.WriteFrames(ctx, transport.ServiceUploadPack, frames)
	}
	read := func(ctx context.Context) (*bufio.Reader, func() error, error) {
		rc, err := conv.ReadFrames(ctx)
		if err != nil {
			return nil, nil, err
		}
		return bufio.NewReader(rc), rc.Close, nil
	}

	outcome, err := engine.Run(ctx, write, read, req)
	if err != nil {
		return FetchResult{}, err
	}

	packReader := outcome.PackReader
	closePack := outcome.ClosePack
	if packReader == nil {
		// The negotiator finished via "done" rather than an early-ready
		// ACK; the response carrying the pack hasn't been read yet.
		rc, err := conv.ReadFrames(ctx)
		if err != nil {
			return FetchResult{}, fmt.Errorf("git: reading pack response: %w", err)
		}
		packReader = bufio.NewReader(rc)
		closePack = rc.Close
	}
	if closePack != nil {
		defer closePack()
	}

	var packData bytes.Buffer
	if adv.Capabilities.Has("side-band-64k") || adv.Capabilities.Has("side-band") {
		if err := sideband.Demux(packReader, &packData, r.progress); err != nil {
			return FetchResult{}, fmt.Errorf("git: demultiplexing pack stream: %w", err)
		}
	} else if err := sideband.PassThrough(packReader, &packData); err != nil {
		return FetchResult{}, fmt.Errorf("git: reading pack stream: %w", err)
	}

	written, err := storePack(ctx, r.store, packData.Bytes(), r.maxDeltaDepth)
	if err != nil {
		return FetchResult{}, err
	}
	r.log(ctx).Info("fetch: pack stored", "objects", written)

	if opts.Notify != nil && (len(outcome.Shallows) > 0 || len(outcome.Unshallows) > 0) {
		opts.Notify(outcome.Shallows, outcome.Unshallows)
	}

	return FetchResult{
		Refs:           adv.Refs,
		ObjectsWritten: written,
		Shallow:        outcome.Shallows,
		Unshallow:      outcome.Unshallows,
	}, nil
}
