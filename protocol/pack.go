package protocol

import (
	"errors"
	"fmt"
)

// pkt-line framing: every line on the wire, in either direction, is
// prefixed with a 4-byte hex length (the length field counts itself), with
// three reserved zero-length-class special cases (flush, delimiter,
// response-end) used to mark section boundaries.
//
// For more details about Git's packet format, see:
//   - https://git-scm.com/docs/gitprotocol-common
//   - https://git-scm.com/docs/gitprotocol-pack

// A non-binary line SHOULD BE terminated by an LF, which if present MUST be included in the total length.
// Receivers MUST treat pkt-lines with non-binary data the same whether or not they contain the trailing LF (stripping the LF if present, and not complaining when it is missing).
//
// The maximum length of a pkt-line's data component is 65516 bytes.
// Implementations MUST NOT send pkt-line whose length exceeds 65520 (65516 bytes of payload + 4 bytes of length data).
//
// A pkt-line with a length field of 0 ("0000"), called a flush-pkt, is a special case and MUST be handled differently than an empty pkt-line ("0004").

// MaxPktLineDataSize is the maximum size of the data field in a packet (65516 bytes).
const MaxPktLineDataSize = 65516

// ZeroHash is the all-zeros SHA-1 hash Git uses on the wire to stand in
// for a non-existent object, e.g. the old-value of a receive-pack create
// command or the new-value of a delete command.
const ZeroHash = "0000000000000000000000000000000000000000"

// ErrDataTooLarge is returned when attempting to create a packet with data larger than MaxPktLineDataSize.
var ErrDataTooLarge = errors.New("the data field is too large")

// Pack is the interface that wraps the Marshal method.
type Pack interface {
	// Marshal converts the packet into its wire format.
	Marshal() ([]byte, error)
}

// PackLine represents a regular packet line in Git's protocol.
// It contains arbitrary data that will be prefixed with a length field.
type PackLine []byte

var _ Pack = PackLine{}

// Marshal implements the Pack interface for PackLine.
// It prepends a 4-byte hex length field to the data.
// Returns ErrDataTooLarge if the data exceeds MaxPktLineDataSize.
func (p PackLine) Marshal() ([]byte, error) {
	if len(p) > MaxPktLineDataSize {
		return nil, ErrDataTooLarge
	}
	out := make([]byte, len(p)+4)
	copy(out, []byte(fmt.Sprintf("%04x", len(p)+4)))
	copy(out[4:], p)
	return out, nil
}

// SpecialPack represents a special packet type in Git's protocol.
// These packets have predefined formats and don't need length calculation.
type SpecialPack string

var _ Pack = SpecialPack("")

// Marshal implements the Pack interface for SpecialPack.
func (p SpecialPack) Marshal() ([]byte, error) {
	return []byte(p), nil
}

// FlushPacket is a packet of length '0000'. It is a special-case packet that indicates
// the end of a message or the need to flush the output buffer.
const FlushPacket = SpecialPack("0000")

// PackParseError provides structured information about a Git packet parsing error.
type PackParseError struct {
	Line []byte
	Err  error
}

func (e *PackParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("error parsing line %q", e.Line)
	}
	return fmt.Sprintf("error parsing line %q: %s", e.Line, e.Err.Error())
}

// Unwrap exposes the underlying parse failure for errors.Is/errors.As.
func (e *PackParseError) Unwrap() error {
	return e.Err
}

// NewPackParseError creates a new PackParseError with the given line and error.
func NewPackParseError(line []byte, err error) *PackParseError {
	return &PackParseError{
		Line: line,
		Err:  err,
	}
}
