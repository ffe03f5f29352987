package git

import (
	"context"
	"crypto"
	"fmt"

	"github.com/arvidsson/gitsync/protocol"
	"github.com/arvidsson/gitsync/protocol/hash"
	"github.com/arvidsson/gitsync/protocol/object"
	"github.com/arvidsson/gitsync/store"
)

// resolvedObject is one packed entry once any delta chain has been
// applied: its final type and content, plus how many deltas deep the
// chain that produced it runs (0 for an object stored whole).
type resolvedObject struct {
	Type  object.Type
	Data  []byte
	Depth int
}

// storePack walks every entry of a received packfile exactly once,
// resolving OFS_DELTA entries against a base recorded earlier in the same
// pack (always true: OFS_DELTA bases precede the delta by byte offset)
// and REF_DELTA entries against either an earlier in-pack object or,
// for a thin pack, an object the store already holds. A chain deeper than
// maxDepth fails with protocol.ErrDeltaChainTooDeep rather than resolving
// indefinitely. Every resolved object is written to s as soon as its
// content is known. Returns the count of objects written.
func storePack(ctx context.Context, s store.Store, data []byte, maxDepth int) (int, error) {
	reader, err := protocol.ParsePackfile(data)
	if err != nil {
		return 0, fmt.Errorf("git: parsing packfile: %w", err)
	}

	byOffset := make(map[int64]resolvedObject)
	byHash := make(map[string]resolvedObject)
	written := 0

	for {
		entry, err := reader.ReadObject()
		if err != nil {
			return written, fmt.Errorf("git: reading packed object: %w", err)
		}
		if entry.Trailer != nil {
			break
		}

		packed := entry.Object
		resolved, err := resolvePackedObject(ctx, s, packed, byOffset, byHash, maxDepth)
		if err != nil {
			return written, err
		}

		byOffset[packed.Offset] = resolved

		h, err := hash.Object(crypto.SHA1, resolved.Type, resolved.Data)
		if err != nil {
			return written, fmt.Errorf("git: hashing resolved object: %w", err)
		}
		byHash[string(h)] = resolved

		if _, err := s.WriteObject(ctx, store.Object{Kind: resolved.Type, Payload: resolved.Data}); err != nil {
			return written, protocol.NewStoreError("write object", err)
		}
		written++
	}

	return written, nil
}

func resolvePackedObject(ctx context.Context, s store.Store, packed *protocol.PackedObject, byOffset map[int64]resolvedObject, byHash map[string]resolvedObject, maxDepth int) (resolvedObject, error) {
	switch packed.Type {
	case object.TypeOfsDelta:
		base, ok := byOffset[packed.BaseOffset]
		if !ok {
			return resolvedObject{}, fmt.Errorf("git: ofs-delta at offset %d has no base at offset %d", packed.Offset, packed.BaseOffset)
		}
		return applyDeltaTo(base, packed.Data, maxDepth)

	case object.TypeRefDelta:
		base, ok := byHash[string(packed.BaseHash)]
		if !ok {
			obj, err := s.ReadObject(ctx, packed.BaseHash)
			if err != nil {
				return resolvedObject{}, fmt.Errorf("git: ref-delta base %s not found in pack or store: %w", packed.BaseHash, err)
			}
			base = resolvedObject{Type: obj.Kind, Data: obj.Payload}
		}
		return applyDeltaTo(base, packed.Data, maxDepth)

	default:
		return resolvedObject{Type: packed.Type, Data: packed.Data}, nil
	}
}

func applyDeltaTo(base resolvedObject, delta []byte, maxDepth int) (resolvedObject, error) {
	depth := base.Depth + 1
	if depth > maxDepth {
		return resolvedObject{}, protocol.NewDeltaChainError(depth, maxDepth)
	}

	data, err := protocol.ApplyDelta(base.Data, delta)
	if err != nil {
		return resolvedObject{}, fmt.Errorf("git: applying delta: %w", err)
	}
	return resolvedObject{Type: base.Type, Data: data, Depth: depth}, nil
}
