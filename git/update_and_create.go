package git

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/arvidsson/gitsync/protocol"
)

// UpdateAndCreate applies every ref in refs to the store concurrently,
// creating refs that don't yet exist and moving ones that do. It is only
// ever called once a fetch's packfile has been fully received and every
// object it contains written to the store — never incrementally during
// pack reception — so a cancelled or failed fetch is guaranteed to leave
// no ref mutated (spec.md §5).
//
// Applying independent refs concurrently rather than one at a time mirrors
// how a receive-pack server itself fans out per-ref work; grounded on the
// same errgroup-based fan-out github-spokes' receive-pack implementation
// uses for its own per-ref and sideband concurrency.
func (r *Repository) UpdateAndCreate(ctx context.Context, refs []protocol.RefAdvertisement) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			name, err := protocol.ParseRefName(ref.Name)
			if err != nil {
				// Not a ref gitsync's store model tracks (e.g. a
				// server-side pseudo-ref); skip rather than fail the
				// whole update.
				return nil
			}
			if err := r.store.WriteRef(ctx, name, ref.ObjectID); err != nil {
				return protocol.NewStoreError("write ref "+ref.Name, err)
			}
			return nil
		})
	}

	return g.Wait()
}
