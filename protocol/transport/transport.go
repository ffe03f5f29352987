package transport

import (
	"context"
	"io"
)

// Phase identifies a stage of a Git Smart protocol conversation, for
// per-phase timeout accounting and error reporting.
type Phase string

const (
	PhaseAdvertisement     Phase = "advertisement"
	PhaseNegotiationRound  Phase = "negotiation-round"
	PhasePackReception     Phase = "pack-reception"
	PhasePackTransmission  Phase = "pack-transmission"
)

// Service names the Git protocol service a conversation is addressed to.
type Service string

const (
	ServiceUploadPack  Service = "git-upload-pack"
	ServiceReceivePack Service = "git-receive-pack"
)

// Conversation is one opened transport session: a uniform send/receive
// surface over either a persistent bidirectional stream or a sequence of
// stateless HTTP request/response pairs.
//
// Callers write a phase's outbound frames with WriteFrames, then read the
// phase's inbound frames with ReadFrames. Over the persistent transport
// these are just writes/reads on a shared connection; over stateless HTTP,
// WriteFrames buffers into the next request body and ReadFrames triggers
// that request and streams back the response body.
type Conversation interface {
	// Advertisement fetches (HTTP) or reads off the open connection
	// (persistent) the initial capability/ref advertisement for the
	// given service.
	Advertisement(ctx context.Context, service Service) (io.ReadCloser, error)

	// WriteFrames sends one phase's outbound pkt-line stream.
	WriteFrames(ctx context.Context, service Service, frames []byte) error

	// ReadFrames returns the inbound pkt-line stream for the phase most
	// recently written. The caller must Close it.
	ReadFrames(ctx context.Context) (io.ReadCloser, error)

	// Stateless reports whether this conversation re-sends full
	// accumulated state every round (stateless HTTP) or streams
	// incrementally (persistent).
	Stateless() bool

	// Close releases the conversation's resources. For the persistent
	// transport this closes the underlying connection.
	Close() error
}

// Transport opens conversations against a single remote repository.
type Transport interface {
	Open(ctx context.Context) (Conversation, error)
}
