package protocol

import (
	"errors"
	"fmt"
)

// ErrInvalidDelta is returned when a delta stream is truncated, declares an
// inconsistent source length, or contains a reserved zero opcode.
var ErrInvalidDelta = errors.New("the payload given is not a valid delta")

// ApplyDelta reconstructs an object's content from a base object and an
// OBJ_OFS_DELTA/OBJ_REF_DELTA instruction stream.
//
// A delta stream starts with two base-128 varints: the length the base is
// expected to have, and the length of the reconstructed target. What
// follows is a sequence of instructions, each starting with a single
// opcode byte:
//
//   - If the high bit is unset, the low 7 bits give the count of literal
//     bytes that immediately follow in the delta stream; copy them as-is
//     to the target.
//   - If the high bit is set, this is a copy-from-base instruction. Bits
//     0-3 select which of up to 4 little-endian offset bytes follow, and
//     bits 4-6 select which of up to 3 little-endian size bytes follow;
//     any byte whose bit is unset is treated as zero. A size of zero
//     decodes as 0x10000 (64KiB). The opcode byte 0x00 is reserved and
//     invalid.
//
// See https://git-scm.com/docs/pack-format for the authoritative format.
func ApplyDelta(base, delta []byte) ([]byte, error) {
	srcLen, rest, err := readDeltaVarint(delta)
	if err != nil {
		return nil, err
	}
	if uint(len(base)) != srcLen {
		return nil, fmt.Errorf("%w: base length %d does not match delta's expected source length %d", ErrInvalidDelta, len(base), srcLen)
	}

	targetLen, rest, err := readDeltaVarint(rest)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, targetLen)

	for len(rest) > 0 {
		cmd := rest[0]
		rest = rest[1:]

		if cmd == 0 {
			return nil, fmt.Errorf("%w: reserved opcode 0x00", ErrInvalidDelta)
		}

		if cmd&0x80 == 0 {
			// Insert: cmd is the literal byte count.
			n := int(cmd)
			if len(rest) < n {
				return nil, fmt.Errorf("%w: insert instruction truncated", ErrInvalidDelta)
			}
			out = append(out, rest[:n]...)
			rest = rest[n:]
			continue
		}

		// Copy: decode up to 4 offset bytes and up to 3 size bytes,
		// least-significant byte first, gated by cmd's low 7 bits.
		var offset, size uint
		for i := range uint(4) {
			if cmd&(1<<i) == 0 {
				continue
			}
			if len(rest) == 0 {
				return nil, fmt.Errorf("%w: copy offset truncated", ErrInvalidDelta)
			}
			offset |= uint(rest[0]) << (8 * i)
			rest = rest[1:]
		}
		for i := range uint(3) {
			if cmd&(1<<(4+i)) == 0 {
				continue
			}
			if len(rest) == 0 {
				return nil, fmt.Errorf("%w: copy size truncated", ErrInvalidDelta)
			}
			size |= uint(rest[0]) << (8 * i)
			rest = rest[1:]
		}
		if size == 0 {
			size = 0x10000
		}

		if offset+size > uint(len(base)) {
			return nil, fmt.Errorf("%w: copy instruction reads past end of base (offset %d, size %d, base length %d)", ErrInvalidDelta, offset, size, len(base))
		}
		out = append(out, base[offset:offset+size]...)
	}

	if uint(len(out)) != targetLen {
		return nil, fmt.Errorf("%w: reconstructed %d bytes, expected %d", ErrInvalidDelta, len(out), targetLen)
	}

	return out, nil
}

// readDeltaVarint decodes one of the two base-128, least-significant-group-
// first length headers at the start of a delta stream (source length,
// then target length), returning the decoded value and the remaining
// bytes.
func readDeltaVarint(b []byte) (uint, []byte, error) {
	var size, shift uint
	for i := 0; ; i++ {
		if i >= len(b) {
			return 0, nil, fmt.Errorf("%w: truncated length header", ErrInvalidDelta)
		}
		c := b[i]
		size |= uint(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			return size, b[i+1:], nil
		}
	}
}
