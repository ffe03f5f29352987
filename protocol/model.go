package protocol

import (
	"bytes"
	"fmt"

	"github.com/arvidsson/gitsync/protocol/hash"
)

// Acknowledgements is the decoded result of one round of the negotiation
// phase: either a bare NAK (no common commit found yet, or the legacy
// single-ACK dialect's non-final answer), or zero or more ACK lines under
// the multi_ack / multi_ack_detailed dialects.
//
// Git documentation defines the wire format as:
//
//	acknowledgments = PKT-LINE("acknowledgments" LF)
//	    (nak | *ack)
//	    (ready)
//	ready = PKT-LINE("ready" LF)
//	nak = PKT-LINE("NAK" LF)
//	ack = PKT-LINE("ACK" SP obj-id LF)
type Acknowledgements struct {
	// Invariant: Nack == true => Acks == nil
	Nack bool
	Acks []AckLine
}

// AckStatus qualifies a multi_ack_detailed ACK line. It is empty for the
// legacy and multi_ack dialects, which only ever send a bare, final
// "ACK <sha>".
type AckStatus string

const (
	// AckStatusContinue: object is common; keep negotiating.
	AckStatusContinue AckStatus = "continue"
	// AckStatusCommon: object is common; the server has not yet decided
	// whether it has enough information to build a packfile.
	AckStatusCommon AckStatus = "common"
	// AckStatusReady: the server has enough common objects; the client
	// should stop sending "have" lines and send "done".
	AckStatusReady AckStatus = "ready"
	// AckStatusFinal is the zero value: a bare "ACK <sha>" with no
	// trailing status word, terminating negotiation.
	AckStatusFinal AckStatus = ""
)

// AckLine is one parsed "ACK <object-id>[ <status>]" line.
type AckLine struct {
	ObjectID hash.Hash
	Status   AckStatus
}

// ParseAckLine parses a single decoded pkt-line payload from the
// negotiation phase. isNak reports a bare "NAK" line; in that case ack is
// the zero value.
func ParseAckLine(line []byte) (ack AckLine, isNak bool, err error) {
	line = bytes.TrimSuffix(line, []byte("\n"))

	if string(line) == "NAK" {
		return AckLine{}, true, nil
	}

	fields := bytes.Fields(line)
	if len(fields) < 2 || string(fields[0]) != "ACK" {
		return AckLine{}, false, NewFrameError("ack line", fmt.Errorf("expected ACK or NAK, got %q", line))
	}

	id, err := hash.FromHex(string(fields[1]))
	if err != nil {
		return AckLine{}, false, NewFrameError("ack line object id", err)
	}

	status := AckStatusFinal
	if len(fields) >= 3 {
		status = AckStatus(fields[2])
	}

	return AckLine{ObjectID: id, Status: status}, false, nil
}

// Shallowness distinguishes the two lines a server may send in response to
// a shallow/deepen request.
type Shallowness string

const (
	Shallow   Shallowness = "shallow"
	Unshallow Shallowness = "unshallow"
)

// ShallowInfo is one "shallow <sha>" or "unshallow <sha>" line, sent when
// a shallow fetch/clone is requested or an existing shallow boundary needs
// adjusting.
type ShallowInfo struct {
	Shallowness Shallowness
	Object      hash.Hash
}

// ParseShallowLine parses a single decoded "shallow <sha>" / "unshallow
// <sha>" line.
func ParseShallowLine(line []byte) (ShallowInfo, error) {
	line = bytes.TrimSuffix(line, []byte("\n"))
	fields := bytes.Fields(line)
	if len(fields) != 2 {
		return ShallowInfo{}, NewFrameError("shallow line", fmt.Errorf("malformed line %q", line))
	}

	var kind Shallowness
	switch string(fields[0]) {
	case "shallow":
		kind = Shallow
	case "unshallow":
		kind = Unshallow
	default:
		return ShallowInfo{}, NewFrameError("shallow line", fmt.Errorf("expected shallow/unshallow, got %q", fields[0]))
	}

	id, err := hash.FromHex(string(fields[1]))
	if err != nil {
		return ShallowInfo{}, NewFrameError("shallow line object id", err)
	}

	return ShallowInfo{Shallowness: kind, Object: id}, nil
}
