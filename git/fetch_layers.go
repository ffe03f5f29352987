package git

import (
	"context"
	"fmt"

	"github.com/arvidsson/gitsync/protocol"
	"github.com/arvidsson/gitsync/protocol/hash"
)

// currentHaves returns every object hash reachable from the refs already
// present in the store, so a fetch only needs to transfer what's missing.
func (r *Repository) currentHaves(ctx context.Context) ([]hash.Hash, error) {
	entries, err := r.store.ListRefs(ctx)
	if err != nil {
		return nil, fmt.Errorf("git: listing local refs: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	roots := make([]hash.Hash, len(entries))
	for i, e := range entries {
		roots[i] = e.Hash
	}

	haves, err := r.store.ReachableFrom(ctx, roots)
	if err != nil {
		return nil, fmt.Errorf("git: walking reachable objects: %w", err)
	}
	return haves, nil
}

// updateFetchedRefs applies every advertised ref named in wanted (or every
// advertised ref, if wanted is nil) once the fetch that produced those
// objects has fully completed, via UpdateAndCreate's concurrent
// application.
func (r *Repository) updateFetchedRefs(ctx context.Context, adv *protocol.Advertisement, wanted map[string]bool) error {
	refs := adv.Refs
	if wanted != nil {
		refs = nil
		for _, ref := range adv.Refs {
			if wanted[ref.Name] {
				refs = append(refs, ref)
			}
		}
	}
	return r.UpdateAndCreate(ctx, refs)
}

// FetchOne fetches and applies a single ref by name (e.g.
// "refs/heads/main"), wanting it only if its advertised hash differs from
// what the store already has.
func (r *Repository) FetchOne(ctx context.Context, refName string, opts FetchOptions) (FetchResult, error) {
	return r.FetchSome(ctx, []string{refName}, opts)
}

// FetchSome fetches and applies every named ref present in the
// advertisement, skipping refs already up to date locally.
func (r *Repository) FetchSome(ctx context.Context, refNames []string, opts FetchOptions) (FetchResult, error) {
	wanted := make(map[string]bool, len(refNames))
	for _, n := range refNames {
		wanted[n] = true
	}

	if opts.Haves == nil {
		haves, err := r.currentHaves(ctx)
		if err != nil {
			return FetchResult{}, err
		}
		opts.Haves = haves
	}

	var selected *protocol.Advertisement
	result, err := r.Fetch(ctx, func(adv *protocol.Advertisement) []hash.Hash {
		selected = adv
		var want []hash.Hash
		for _, ref := range adv.Refs {
			if !wanted[ref.Name] {
				continue
			}
			if r.refUpToDate(ctx, ref) {
				continue
			}
			want = append(want, ref.ObjectID)
		}
		return want
	}, opts)
	if err != nil {
		return FetchResult{}, err
	}
	if result.ObjectsWritten == 0 && len(result.Shallow) == 0 && len(result.Unshallow) == 0 {
		return result, nil
	}

	if err := r.updateFetchedRefs(ctx, selected, wanted); err != nil {
		return result, err
	}
	return result, nil
}

// FetchAll fetches and applies every ref in the advertisement, skipping
// any already up to date locally.
func (r *Repository) FetchAll(ctx context.Context, opts FetchOptions) (FetchResult, error) {
	if opts.Haves == nil {
		haves, err := r.currentHaves(ctx)
		if err != nil {
			return FetchResult{}, err
		}
		opts.Haves = haves
	}

	var selected *protocol.Advertisement
	result, err := r.Fetch(ctx, func(adv *protocol.Advertisement) []hash.Hash {
		selected = adv
		var want []hash.Hash
		for _, ref := range adv.Refs {
			if r.refUpToDate(ctx, ref) {
				continue
			}
			want = append(want, ref.ObjectID)
		}
		return want
	}, opts)
	if err != nil {
		return FetchResult{}, err
	}
	if result.ObjectsWritten == 0 && len(result.Shallow) == 0 && len(result.Unshallow) == 0 {
		return result, nil
	}

	if err := r.updateFetchedRefs(ctx, selected, nil); err != nil {
		return result, err
	}
	return result, nil
}

// refUpToDate reports whether the store's ref of the same name already
// points at the advertised hash.
func (r *Repository) refUpToDate(ctx context.Context, ref protocol.RefAdvertisement) bool {
	name, err := protocol.ParseRefName(ref.Name)
	if err != nil {
		return false
	}
	current, err := r.store.ReadRef(ctx, name)
	if err != nil {
		return false
	}
	return current.Is(ref.ObjectID)
}

// Clone fetches every ref the remote advertises into an empty (or
// unrelated) store; it is FetchAll with no local haves to offer.
func (r *Repository) Clone(ctx context.Context, opts FetchOptions) (FetchResult, error) {
	opts.Haves = []hash.Hash{}
	return r.FetchAll(ctx, opts)
}
