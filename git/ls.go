package git

import (
	"context"
	"fmt"

	"github.com/arvidsson/gitsync/protocol"
	"github.com/arvidsson/gitsync/protocol/transport"
)

// Ls fetches and returns the upload-pack advertisement without negotiating
// or receiving a pack: capabilities, refs, and symref targets; no shallow
// set is reported. The conversation is closed before returning.
func (r *Repository) Ls(ctx context.Context) (*protocol.Advertisement, error) {
	conv, err := r.transport.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("git: opening conversation: %w", err)
	}
	defer conv.Close()

	adv, err := readAdvertisement(ctx, conv, transport.ServiceUploadPack)
	if err != nil {
		return nil, err
	}
	r.log(ctx).Debug("advertisement received", "refs", len(adv.Refs))
	return adv, nil
}
