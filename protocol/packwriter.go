package protocol

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // packfile trailers are SHA-1 by format, not by choice
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zlib"

	objhash "github.com/arvidsson/gitsync/protocol/hash"
	"github.com/arvidsson/gitsync/protocol/object"
)

// PackObject is one object to encode into an outgoing packfile.
type PackObject struct {
	Type object.Type
	Data []byte
}

// DeltaBase is an object the writer may delta-encode against without
// including it in the outgoing pack: an object the remote is already
// known to hold (one of a push's haves), making the result a thin pack
// whose REF_DELTA entries point outside the pack itself.
type DeltaBase struct {
	Hash objhash.Hash
	Type object.Type
	Data []byte
}

// Defaults for PackWriterOptions, matching git's own pack.window/
// pack.depth defaults.
const (
	DefaultDeltaWindow   = 10
	DefaultMaxDeltaDepth = 50
)

// PackWriterOptions configures WritePackfileWithOptions' delta-selection
// pass.
type PackWriterOptions struct {
	// Bases are haves the remote already holds; an object may be encoded
	// as a REF_DELTA against one of them, producing a thin pack.
	Bases []DeltaBase

	// Window bounds how many preceding candidates (in-pack objects plus
	// Bases) are considered as a delta base for each object. 0 uses
	// DefaultDeltaWindow.
	Window int

	// MaxDepth bounds how many deltas may chain back-to-back before a
	// whole object is written instead. 0 uses DefaultMaxDeltaDepth.
	MaxDepth int
}

// WritePackfile encodes objects into a version-2 packfile with no
// external delta bases, using the package defaults for window and depth.
func WritePackfile(objects []PackObject) ([]byte, error) {
	return WritePackfileWithOptions(objects, PackWriterOptions{})
}

// deltaCandidate is a previously-seen object WritePackfileWithOptions may
// pick as a delta base for a later one: either one already written into
// this pack (offset >= 0, eligible for OFS_DELTA) or an external have
// (offset < 0, eligible for REF_DELTA only).
type deltaCandidate struct {
	typ    object.Type
	data   []byte
	hash   objhash.Hash
	offset int64
	depth  int
}

// WritePackfileWithOptions encodes objects into a version-2 packfile: the
// "PACK" signature, version, object count, each object's type/size header
// and zlib-deflated payload, and the trailing SHA-1 checksum over
// everything preceding it.
//
// Each object is matched against a bounded window of prior candidates
// (opts.Bases, then every object already written into this pack) and, if
// the best match yields a smaller payload, encoded as a delta against it
// rather than written whole. A candidate drawn from opts.Bases produces
// an OBJ_REF_DELTA entry (thin pack: the base travels outside the pack);
// a candidate already written into this pack produces an OBJ_OFS_DELTA
// entry referencing it by byte offset. A chain that would exceed
// opts.MaxDepth falls back to a whole object instead of extending it.
func WritePackfileWithOptions(objects []PackObject, opts PackWriterOptions) ([]byte, error) {
	window := opts.Window
	if window <= 0 {
		window = DefaultDeltaWindow
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDeltaDepth
	}

	var body bytes.Buffer
	body.WriteString(packfileSignature)

	var header [8]byte
	binary.BigEndian.PutUint32(header[:4], 2)
	binary.BigEndian.PutUint32(header[4:], uint32(len(objects)))
	body.Write(header[:])

	numBases := len(opts.Bases)
	candidates := make([]deltaCandidate, 0, numBases+len(objects))
	for _, b := range opts.Bases {
		candidates = append(candidates, deltaCandidate{typ: b.Type, data: b.Data, hash: b.Hash, offset: -1})
	}

	for _, obj := range objects {
		if obj.Type == object.TypeInvalid || obj.Type == object.TypeReserved {
			return nil, fmt.Errorf("writing packfile: invalid object type %s", obj.Type)
		}

		entryOffset := int64(body.Len())

		base, depth := selectDeltaBase(candidates, numBases, obj, window, maxDepth)

		payloadType := obj.Type
		payload := obj.Data

		if base != nil {
			delta := encodeDelta(base.data, obj.Data)
			if len(delta) < len(obj.Data) {
				payload = delta
				if base.offset >= 0 {
					payloadType = object.TypeOfsDelta
				} else {
					payloadType = object.TypeRefDelta
				}
			} else {
				base = nil
				depth = 0
			}
		}

		if err := writePackObjectHeader(&body, payloadType, len(payload)); err != nil {
			return nil, err
		}

		switch payloadType {
		case object.TypeOfsDelta:
			body.Write(encodeOfsDeltaOffset(entryOffset - base.offset))
		case object.TypeRefDelta:
			body.Write(base.hash)
		}

		zw := zlib.NewWriter(&body)
		if _, err := zw.Write(payload); err != nil {
			return nil, fmt.Errorf("deflating object: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("closing zlib stream: %w", err)
		}

		candidates = append(candidates, deltaCandidate{
			typ:    obj.Type,
			data:   obj.Data,
			offset: entryOffset,
			depth:  depth,
		})
	}

	sum := sha1.Sum(body.Bytes()) //nolint:gosec
	body.Write(sum[:])

	return body.Bytes(), nil
}

// selectDeltaBase searches every external have (candidates[:numBases],
// always eligible so a thin pack keeps finding them regardless of how
// many in-pack objects have since been written) plus the most recent
// window in-pack candidates, and returns whichever has the smallest
// payload (a cheap proxy for the smallest delta, without running the
// matcher against every one) along with the depth the resulting chain
// would have. Candidates whose own chain already sits at maxDepth are
// skipped, since deltaing against them would exceed the limit. Returns
// (nil, 0) if no candidate qualifies.
func selectDeltaBase(candidates []deltaCandidate, numBases int, obj PackObject, window, maxDepth int) (*deltaCandidate, int) {
	inPackStart := numBases
	if len(candidates)-numBases > window {
		inPackStart = len(candidates) - window
	}

	var best *deltaCandidate
	consider := func(i int) {
		c := candidates[i]
		if c.typ != obj.Type || c.depth+1 > maxDepth {
			return
		}
		if best == nil || len(c.data) < len(best.data) {
			best = &candidates[i]
		}
	}

	for i := 0; i < numBases; i++ {
		consider(i)
	}
	for i := len(candidates) - 1; i >= inPackStart; i-- {
		consider(i)
	}

	if best == nil {
		return nil, 0
	}
	return best, best.depth + 1
}

// writePackObjectHeader encodes the 3-bit type and variable-length size
// header preceding a packed object's deflated payload, the inverse of
// readObjectHeader.
func writePackObjectHeader(buf *bytes.Buffer, t object.Type, size int) error {
	if t == object.TypeInvalid || t == object.TypeReserved {
		return fmt.Errorf("writing packfile: invalid object type %s", t)
	}

	first := byte(t)<<4 | byte(size&0x0f)
	size >>= 4
	if size > 0 {
		first |= 0x80
	}
	buf.WriteByte(first)

	for size > 0 {
		b := byte(size & 0x7f)
		size >>= 7
		if size > 0 {
			b |= 0x80
		}
		buf.WriteByte(b)
	}

	return nil
}

// encodeOfsDeltaOffset encodes an OBJ_OFS_DELTA negative-offset value (the
// byte distance back from this entry's header to its base object's
// header), the inverse of readOfsDeltaOffset's scheme where every
// continuation digit's accumulated value is incremented before the next
// shift, used to avoid redundant encodings of the same offset.
func encodeOfsDeltaOffset(offset int64) []byte {
	var digits []byte
	cur := offset
	for {
		digits = append(digits, byte(cur&0x7f))
		if cur < 128 {
			break
		}
		cur = cur/128 - 1
	}

	for i, j := 0, len(digits)-1; i < j; i, j = i+1, j-1 {
		digits[i], digits[j] = digits[j], digits[i]
	}
	for i := 0; i < len(digits)-1; i++ {
		digits[i] |= 0x80
	}
	return digits
}
