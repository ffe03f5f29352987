// Package negotiate drives the want/have negotiation loop described by
// the upload-pack side of the Git Smart protocol: it emits want/shallow/
// deepen lines once, then round after round of have lines, interpreting
// the server's ACK/NAK/shallow responses until the negotiator says the
// client has offered enough or the server signals it's ready for the
// client to stop.
package negotiate

import (
	"bufio"
	"bytes"
	"context"
	"fmt"

	"github.com/arvidsson/gitsync/protocol"
	"github.com/arvidsson/gitsync/protocol/hash"
)

// MaxRounds safeguards against a negotiator or a server that never
// converges; exceeding it raises ErrNegotiationStalled.
const MaxRounds = 256

// AckMode selects which of the three historical ACK dialects a
// conversation uses, decided once from the advertised capability set.
type AckMode int

const (
	// AckModeLegacy is the original single-ACK/NAK protocol: the server
	// sends "NAK" until it can build a pack, then one final bare
	// "ACK <sha>" and the packfile.
	AckModeLegacy AckMode = iota
	// AckModeMultiAck lets the server ACK every common object it finds
	// (each bare "ACK <sha>"), not just the final one.
	AckModeMultiAck
	// AckModeMultiAckDetailed additionally qualifies each ACK with
	// common/ready/continue, and supports no-done early termination.
	AckModeMultiAckDetailed
)

// DetermineAckMode picks the richest dialect the advertised capability set
// supports.
func DetermineAckMode(caps protocol.Capabilities) AckMode {
	switch {
	case caps.Has("multi_ack_detailed"):
		return AckModeMultiAckDetailed
	case caps.Has("multi_ack"):
		return AckModeMultiAck
	default:
		return AckModeLegacy
	}
}

// DecisionKind is the negotiator's verdict for the round just concluded.
type DecisionKind int

const (
	// DecisionAgain asks the engine to send another round of have lines
	// drawn from the accompanying hash set.
	DecisionAgain DecisionKind = iota
	// DecisionDone tells the engine to send "done" and stop offering haves.
	DecisionDone
	// DecisionReady tells the engine the negotiator believes the server
	// already has enough; only meaningful alongside "no-done".
	DecisionReady
)

// Decision is what a Negotiator returns after seeing a round's acks.
type Decision struct {
	Kind  DecisionKind
	Haves []hash.Hash
}

// Negotiator selects which "have" lines to offer each round, given the
// acknowledgements the server sent back for the previous round. State is
// opaque to the engine: whatever a Negotiator returns from Next is passed
// back to it on the following call, and a fresh initial state is obtained
// from NewState for each fetch.
type Negotiator interface {
	// NewState returns the negotiator's initial state for a fresh fetch,
	// given the client's full set of known haves.
	NewState(haves []hash.Hash) any
	// Next is called once per round (after round 0) with the
	// acknowledgements from the previous round and the negotiator's own
	// state, and returns the next decision plus updated state.
	Next(acks protocol.Acknowledgements, state any) (Decision, any)
}

// Request describes one fetch's negotiation parameters: the round-0
// want/shallow/deepen lines and the capability string attached to the
// first want.
type Request struct {
	Want         []hash.Hash
	Capabilities string
	Shallow      []hash.Hash
	Deepen       int
	DeepenSince  string
	DeepenNot    []string
	NoDone       bool // true when "no-done" was asserted for this conversation

	// Haves seeds the negotiator's initial state: every object hash the
	// client already holds and can therefore offer (or walk ancestors
	// from). Empty on a fresh clone.
	Haves []hash.Hash
}

// Outcome is the engine's final report once negotiation concludes.
type Outcome struct {
	// Shallows and Unshallows are collected from round-0 responses.
	Shallows   []hash.Hash
	Unshallows []hash.Hash
	// ReadyForPack indicates the server signalled it will now send a
	// packfile (multi_ack_detailed "ready", or the legacy/multi_ack
	// final ACK, or a round ending in a non-NAK response).
	ReadyForPack bool

	// PackReader, when ReadyForPack is true, is positioned exactly where
	// the packfile (or side-band stream carrying it) begins: the reader
	// from the round whose response satisfied readiness. The caller reads
	// the pack from it directly rather than issuing another FrameReader
	// call, which for the stateless-HTTP transport would mean a second,
	// unwanted request — the packfile is already sitting in this same
	// response body, appended after the ACK lines.
	PackReader *bufio.Reader

	// ClosePack releases the resources behind PackReader once the caller
	// has fully drained it. Earlier rounds' readers are closed internally
	// by the engine as soon as they're no longer needed; only the final
	// one is handed off like this. May be nil.
	ClosePack func() error
}

// FrameWriter is the narrow surface the engine needs to emit one phase's
// outbound pkt-line bytes; protocol/transport.Conversation.WriteFrames
// satisfies it once partially applied to a fixed service.
type FrameWriter func(ctx context.Context, frames []byte) error

// FrameReader is the narrow surface the engine needs to read one phase's
// inbound bytes; protocol/transport.Conversation.ReadFrames satisfies it
// (its io.ReadCloser is wrapped in a *bufio.Reader by the caller).
type FrameReader func(ctx context.Context) (*bufio.Reader, func() error, error)

// Engine drives the negotiation loop for one fetch conversation.
type Engine struct {
	AckMode    AckMode
	Negotiator Negotiator
	// Stateless, when true, re-sends the full accumulated have set each
	// round rather than only the newly-offered subset, matching the
	// stateless-HTTP transport's lack of server-side memory across
	// requests.
	Stateless bool
}

// Run executes the full negotiation: round 0's want/shallow/deepen lines,
// then successive have rounds, until the negotiator signals Done, the
// server signals Ready under no-done, or MaxRounds is exceeded.
func (e *Engine) Run(ctx context.Context, write FrameWriter, read FrameReader, req Request) (Outcome, error) {
	if e.Negotiator == nil {
		return Outcome{}, fmt.Errorf("negotiate: no Negotiator configured")
	}

	var outcome Outcome

	if err := write(ctx, round0Frame(req)); err != nil {
		return outcome, fmt.Errorf("negotiate: writing round 0: %w", err)
	}

	r, closeFn, err := read(ctx)
	if err != nil {
		return outcome, fmt.Errorf("negotiate: reading round 0 response: %w", err)
	}
	acks, err := readRoundResponse(r, &outcome, true)
	if err != nil {
		if closeFn != nil {
			closeFn()
		}
		return outcome, err
	}

	if earlyReady(e.AckMode, acks) {
		outcome.ReadyForPack = true
		outcome.PackReader = r
		outcome.ClosePack = closeFn
		return outcome, nil
	}
	if closeFn != nil {
		closeFn()
	}

	state := e.Negotiator.NewState(req.Haves)
	accumulated := make([]hash.Hash, 0)

	for round := 1; round <= MaxRounds; round++ {
		decision, newState := e.Negotiator.Next(acks, state)
		state = newState

		switch decision.Kind {
		case DecisionDone:
			// The server's response to "done" is the final ACK followed
			// directly by the packfile; the caller fetches it with its
			// own subsequent FrameReader call (a fresh one for stateless
			// HTTP, the same stream for the persistent transport), since
			// nothing has read it yet.
			if err := write(ctx, doneFrame()); err != nil {
				return outcome, fmt.Errorf("negotiate: writing done: %w", err)
			}
			outcome.ReadyForPack = true
			return outcome, nil
		case DecisionReady:
			outcome.ReadyForPack = true
			return outcome, nil
		}

		accumulated = append(accumulated, decision.Haves...)
		offer := decision.Haves
		if e.Stateless {
			offer = accumulated
		}

		frame := haveRoundFrame(offer, req.NoDone && e.AckMode != AckModeLegacy)
		if err := write(ctx, frame); err != nil {
			return outcome, fmt.Errorf("negotiate: writing round %d: %w", round, err)
		}

		r, closeRound, err := read(ctx)
		if err != nil {
			return outcome, fmt.Errorf("negotiate: reading round %d response: %w", round, err)
		}
		acks, err = readRoundResponse(r, &outcome, false)
		if err != nil {
			if closeRound != nil {
				closeRound()
			}
			return outcome, err
		}

		if earlyReady(e.AckMode, acks) {
			outcome.ReadyForPack = true
			outcome.PackReader = r
			outcome.ClosePack = closeRound
			return outcome, nil
		}
		if closeRound != nil {
			closeRound()
		}
	}

	return outcome, protocol.ErrNegotiationStalled
}

// earlyReady reports whether the round's acks already signal the server
// is ready to send a pack without the client needing to send "done" —
// multi_ack_detailed's "ready" status under no-done.
func earlyReady(mode AckMode, acks protocol.Acknowledgements) bool {
	if mode != AckModeMultiAckDetailed {
		return false
	}
	for _, a := range acks.Acks {
		if a.Status == protocol.AckStatusReady {
			return true
		}
	}
	return false
}

// round0Frame builds the pre-negotiation frame: the want lines (the first
// carrying the negotiated capability string), shallow lines, and a
// deepen line if requested.
func round0Frame(req Request) []byte {
	var buf bytes.Buffer
	for i, w := range req.Want {
		if i == 0 && req.Capabilities != "" {
			writePktLine(&buf, fmt.Sprintf("want %s %s\n", w.String(), req.Capabilities))
		} else {
			writePktLine(&buf, fmt.Sprintf("want %s\n", w.String()))
		}
	}
	for _, s := range req.Shallow {
		writePktLine(&buf, fmt.Sprintf("shallow %s\n", s.String()))
	}
	switch {
	case req.Deepen > 0:
		writePktLine(&buf, fmt.Sprintf("deepen %d\n", req.Deepen))
	case req.DeepenSince != "":
		writePktLine(&buf, fmt.Sprintf("deepen-since %s\n", req.DeepenSince))
	case len(req.DeepenNot) > 0:
		for _, r := range req.DeepenNot {
			writePktLine(&buf, fmt.Sprintf("deepen-not %s\n", r))
		}
	}
	buf.Write([]byte(protocol.FlushPacket))
	return buf.Bytes()
}

// haveRoundFrame builds a have-phase frame: one "have" line per hash,
// optionally followed by "done" instead of the trailing flush-pkt.
func haveRoundFrame(haves []hash.Hash, done bool) []byte {
	var buf bytes.Buffer
	for _, h := range haves {
		writePktLine(&buf, fmt.Sprintf("have %s\n", h.String()))
	}
	if done {
		writePktLine(&buf, "done\n")
	} else {
		buf.Write([]byte(protocol.FlushPacket))
	}
	return buf.Bytes()
}

func doneFrame() []byte {
	var buf bytes.Buffer
	writePktLine(&buf, "done\n")
	return buf.Bytes()
}

func writePktLine(buf *bytes.Buffer, s string) {
	buf.WriteString(fmt.Sprintf("%04x%s", len(s)+4, s))
}

// readRoundResponse reads one round's pkt-lines, diverting shallow/
// unshallow lines into outcome (round 0 only, per the protocol) and
// parsing the remaining lines as ACK/NAK.
func readRoundResponse(r *bufio.Reader, outcome *Outcome, round0 bool) (protocol.Acknowledgements, error) {
	lines, err := protocol.ReadPktLines(r)
	if err != nil {
		return protocol.Acknowledgements{}, fmt.Errorf("negotiate: reading response: %w", err)
	}

	var acks protocol.Acknowledgements
	for _, line := range lines {
		trimmed := bytes.TrimSpace(line)
		if round0 && (bytes.HasPrefix(trimmed, []byte("shallow ")) || bytes.HasPrefix(trimmed, []byte("unshallow "))) {
			info, err := protocol.ParseShallowLine(line)
			if err != nil {
				return acks, err
			}
			if info.Shallowness == protocol.Shallow {
				outcome.Shallows = append(outcome.Shallows, info.Object)
			} else {
				outcome.Unshallows = append(outcome.Unshallows, info.Object)
			}
			continue
		}

		ack, isNak, err := protocol.ParseAckLine(line)
		if err != nil {
			return acks, err
		}
		if isNak {
			acks.Nack = true
			continue
		}
		acks.Acks = append(acks.Acks, ack)
	}

	return acks, nil
}
