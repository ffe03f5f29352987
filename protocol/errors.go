// Package protocol implements the client-side surface of the Git Smart
// protocol: pkt-line framing, capability negotiation, ref-advertisement
// parsing, and the wire-level error taxonomy shared by every layer above it.
//
// For the wire formats this package encodes/decodes, see:
//   - https://git-scm.com/docs/gitprotocol-common  (pkt-line)
//   - https://git-scm.com/docs/gitprotocol-pack     (pack-protocol, capabilities)
//   - https://git-scm.com/docs/gitprotocol-http     (smart HTTP transport)
package protocol

import (
	"errors"
	"fmt"
	"io"

	"github.com/arvidsson/gitsync/protocol/object"
)

// strError is a simple string-based error type that implements the error
// interface without allocating a struct per instance.
type strError string

func (e strError) Error() string { return string(e) }

// eofIsUnexpected turns a plain io.EOF into io.ErrUnexpectedEOF; any other
// error (including a nil one) passes through unchanged. Useful when a
// frame declares more bytes than the stream actually delivers.
func eofIsUnexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Sentinel errors for the protocol-syntactic and integrity failures of
// SPEC_FULL.md / spec.md §7. Each is paired with a struct carrying context;
// match with errors.Is against the sentinel, not a type assertion on the
// struct.
var (
	// ErrMalformedFrame is returned for a pkt-line whose length prefix is
	// not valid hex, declares a length outside [4, 65524] without being a
	// recognized sentinel, or whose payload is truncated.
	ErrMalformedFrame = errors.New("malformed pkt-line frame")

	// ErrMalformedAdvertisement is returned when the ref advertisement
	// cannot be parsed: a duplicate refname, a ref line not of the form
	// "<object-id> <name>", or an object id that is not valid hex. A first
	// line without a NUL-separated capability list is accepted with an
	// empty capability set.
	ErrMalformedAdvertisement = errors.New("malformed ref advertisement")

	// ErrUnknownCapabilityAsserted is returned when the caller requests a
	// capability absent from the server's advertisement.
	ErrUnknownCapabilityAsserted = errors.New("capability not advertised by server")

	// ErrBadChecksum is returned when a packfile's trailing SHA-1 does not
	// match the hash of the preceding bytes.
	ErrBadChecksum = errors.New("packfile checksum mismatch")

	// ErrDeltaChainTooDeep is returned when resolving an OFS_DELTA/REF_DELTA
	// object would exceed the configured maximum chain depth.
	ErrDeltaChainTooDeep = errors.New("delta chain exceeds maximum depth")

	// ErrBadObjectHeader is returned when a packed object's variable-length
	// type/size header is truncated or declares an invalid type.
	ErrBadObjectHeader = errors.New("malformed packfile object header")

	// ErrNegotiationStalled is returned when the negotiation engine
	// exceeds its round safeguard (256 rounds) without reaching Done.
	ErrNegotiationStalled = errors.New("negotiation did not converge")

	// ErrServerUnavailable is returned when the remote reports a 5xx or
	// 429 status; a persistent transport that cannot reach its peer
	// reports the dial error instead. This is the retry package's retry
	// trigger alongside network timeouts.
	ErrServerUnavailable = errors.New("server unavailable")
)

// RemoteError wraps a side-band channel-3 message or an explicit ERR line
// from the server (spec.md §7's Remote_error(text)).
type RemoteError struct {
	Text string
}

func (e *RemoteError) Error() string { return fmt.Sprintf("remote error: %s", e.Text) }

// NewRemoteError constructs a RemoteError.
func NewRemoteError(text string) *RemoteError { return &RemoteError{Text: text} }

// FrameError carries the offending context alongside ErrMalformedFrame.
type FrameError struct {
	Context string
	Err     error
}

func (e *FrameError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("malformed frame: %s", e.Context)
	}
	return fmt.Sprintf("malformed frame: %s: %v", e.Context, e.Err)
}

func (e *FrameError) Unwrap() error { return ErrMalformedFrame }

// NewFrameError constructs a FrameError.
func NewFrameError(context string, err error) *FrameError {
	return &FrameError{Context: context, Err: err}
}

// AdvertisementError carries the offending ref name alongside
// ErrMalformedAdvertisement.
type AdvertisementError struct {
	RefName string
	Reason  string
}

func (e *AdvertisementError) Error() string {
	if e.RefName != "" {
		return fmt.Sprintf("malformed advertisement (ref %q): %s", e.RefName, e.Reason)
	}
	return fmt.Sprintf("malformed advertisement: %s", e.Reason)
}

func (e *AdvertisementError) Unwrap() error { return ErrMalformedAdvertisement }

// NewAdvertisementError constructs an AdvertisementError.
func NewAdvertisementError(refName, reason string) *AdvertisementError {
	return &AdvertisementError{RefName: refName, Reason: reason}
}

// ChecksumError carries the expected and actual trailer hashes alongside
// ErrBadChecksum.
type ChecksumError struct {
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("packfile checksum mismatch: expected %s, got %s", e.Expected, e.Actual)
}

func (e *ChecksumError) Unwrap() error { return ErrBadChecksum }

// CommandRejectedError carries a per-ref push rejection. git.Push reports
// rejections as RefPushResult entries rather than as this error; the CLI
// returns one for a rejected ref so the process exits with the
// remote-failure code.
type CommandRejectedError struct {
	RefName string
	Reason  string
}

func (e *CommandRejectedError) Error() string {
	return fmt.Sprintf("command rejected for %s: %s", e.RefName, e.Reason)
}

// NewCommandRejectedError constructs a CommandRejectedError.
func NewCommandRejectedError(refName, reason string) *CommandRejectedError {
	return &CommandRejectedError{RefName: refName, Reason: reason}
}

// ObjectHeaderError carries the offending raw type value alongside
// ErrBadObjectHeader.
type ObjectHeaderError struct {
	RawType object.Type
}

func (e *ObjectHeaderError) Error() string {
	return fmt.Sprintf("malformed packfile object header: type %s is invalid or reserved", e.RawType)
}

func (e *ObjectHeaderError) Unwrap() error { return ErrBadObjectHeader }

// NewObjectHeaderError constructs an ObjectHeaderError for an invalid
// 3-bit object type value read off the wire.
func NewObjectHeaderError(rawType object.Type) *ObjectHeaderError {
	return &ObjectHeaderError{RawType: rawType}
}

// DeltaChainError carries the offending depth and configured limit
// alongside ErrDeltaChainTooDeep.
type DeltaChainError struct {
	Depth int
	Max   int
}

func (e *DeltaChainError) Error() string {
	return fmt.Sprintf("delta chain depth %d exceeds maximum of %d", e.Depth, e.Max)
}

func (e *DeltaChainError) Unwrap() error { return ErrDeltaChainTooDeep }

// NewDeltaChainError constructs a DeltaChainError.
func NewDeltaChainError(depth, max int) *DeltaChainError {
	return &DeltaChainError{Depth: depth, Max: max}
}

// StoreError wraps a failure returned by the store capability (§6).
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError constructs a StoreError.
func NewStoreError(op string, err error) *StoreError {
	return &StoreError{Op: op, Err: err}
}

// ServerUnavailableError provides structured information about a Git
// server that reported itself unavailable (5xx, 429), or a
// persistent-stream peer that could not be reached. It satisfies
// errors.Is(err, ErrServerUnavailable).
type ServerUnavailableError struct {
	StatusCode int
	Underlying error
}

func (e *ServerUnavailableError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("server unavailable (status code %d): %v", e.StatusCode, e.Underlying)
	}
	return fmt.Sprintf("server unavailable (status code %d)", e.StatusCode)
}

func (e *ServerUnavailableError) Unwrap() error { return e.Underlying }

func (e *ServerUnavailableError) Is(target error) bool {
	return target == ErrServerUnavailable
}

// NewServerUnavailableError constructs a ServerUnavailableError.
func NewServerUnavailableError(statusCode int, underlying error) *ServerUnavailableError {
	return &ServerUnavailableError{StatusCode: statusCode, Underlying: underlying}
}
