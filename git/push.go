package git

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/arvidsson/gitsync/protocol"
	"github.com/arvidsson/gitsync/protocol/hash"
	"github.com/arvidsson/gitsync/protocol/sideband"
	"github.com/arvidsson/gitsync/protocol/transport"
)

// Command is one ref update a push asks the remote to perform. A zero-length
// OldHash means "create"; a zero-length NewHash means "delete".
type Command struct {
	RefName string
	OldHash hash.Hash
	NewHash hash.Hash
}

// PushFunc is given the object hashes the remote already has (derived from
// its own advertisement) and returns the ref updates to send. Returning no
// commands ends the conversation with no further I/O.
type PushFunc func(haves []hash.Hash) []Command

// PushOptions carries push-options text (server-defined strings, e.g.
// "ci.skip" or "merge_request.create") threaded onto the wire as their own
// pkt-line block when the remote advertised the push-options capability,
// per spec.md §9's push-cert/push-options decision: push-options round-trip
// since they're just extra pkt-lines; push-cert does not, since signing is
// outside this core's scope.
type PushOptions struct {
	Values []string
}

// RefPushResult is one ref's outcome as reported by the remote's
// report-status response.
type RefPushResult struct {
	RefName string
	OK      bool
	// Reason holds the remote's rejection text when OK is false.
	Reason string
}

// PushResult reports a push's outcome. UnpackOK is false when the remote
// could not apply the packfile at all, independent of any individual ref's
// status (spec.md §7: a rejected ref is data, not a top-level failure).
type PushResult struct {
	UnpackOK    bool
	UnpackError string
	Refs        []RefPushResult
}

// Push opens a conversation, fetches the receive-pack advertisement,
// invokes push to decide what to send, and if it returns any commands,
// transmits them plus the packfile covering every object the commands
// introduce that the remote doesn't already have, then parses and returns
// the report-status response.
func (r *Repository) Push(ctx context.Context, push PushFunc, opts PushOptions) (PushResult, error) {
	conv, err := r.transport.Open(ctx)
	if err != nil {
		return PushResult{}, fmt.Errorf("git: opening conversation: %w", err)
	}
	defer conv.Close()

	adv, err := readAdvertisement(ctx, conv, transport.ServiceReceivePack)
	if err != nil {
		return PushResult{}, err
	}

	haves, err := remoteHaves(ctx, r, adv)
	if err != nil {
		return PushResult{}, err
	}

	commands := push(haves)
	if len(commands) == 0 {
		r.log(ctx).Debug("push: nothing to send, ending after advertisement")
		return PushResult{}, nil
	}
	r.log(ctx).Info("push: sending commands", "commands", len(commands))

	if !adv.Capabilities.Has("report-status") {
		return PushResult{}, fmt.Errorf("git: remote does not support report-status")
	}
	useSideband := adv.Capabilities.Has("side-band-64k") || adv.Capabilities.Has("side-band")

	caps := negotiatePushCapabilities(adv.Capabilities, r.userAgent)
	usePushOptions := len(opts.Values) > 0 && adv.Capabilities.Has("push-options")
	if usePushOptions {
		caps += " push-options"
	}

	frame, err := encodePushCommands(commands, caps)
	if err != nil {
		return PushResult{}, err
	}
	if usePushOptions {
		optFrame, err := encodePushOptions(opts.Values)
		if err != nil {
			return PushResult{}, err
		}
		frame = append(frame, optFrame...)
	}

	pack, err := packForCommands(ctx, r, commands, haves)
	if err != nil {
		return PushResult{}, err
	}
	frame = append(frame, pack...)

	if err := conv.WriteFrames(ctx, transport.ServiceReceivePack, frame); err != nil {
		return PushResult{}, fmt.Errorf("git: sending push: %w", err)
	}

	rc, err := conv.ReadFrames(ctx)
	if err != nil {
		return PushResult{}, fmt.Errorf("git: reading push response: %w", err)
	}
	defer rc.Close()

	var statusLines bytes.Buffer
	br := bufio.NewReader(rc)
	if useSideband {
		if err := sideband.Demux(br, &statusLines, r.progress); err != nil {
			return PushResult{}, fmt.Errorf("git: demultiplexing report-status: %w", err)
		}
	} else if err := sideband.PassThrough(br, &statusLines); err != nil {
		return PushResult{}, fmt.Errorf("git: reading report-status: %w", err)
	}

	result, err := parseReportStatus(statusLines.Bytes())
	if err != nil {
		return PushResult{}, err
	}
	r.log(ctx).Info("push: report-status received", "unpackOK", result.UnpackOK, "refs", len(result.Refs))
	return result, nil
}

// remoteHaves returns the object closure the remote already holds,
// approximated from its own ref advertisement: every hash it is currently
// advertising, walked through the local store (which, for any ref this
// client has previously fetched or pushed, mirrors the remote's history).
// A ref hash the local store doesn't recognize is skipped rather than
// failing the push — it just means that branch's objects get resent.
func remoteHaves(ctx context.Context, r *Repository, adv *protocol.Advertisement) ([]hash.Hash, error) {
	var roots []hash.Hash
	for _, ref := range adv.Refs {
		if ok, err := r.store.HasObject(ctx, ref.ObjectID); err == nil && ok {
			roots = append(roots, ref.ObjectID)
		}
	}
	if len(roots) == 0 {
		return nil, nil
	}
	haves, err := r.store.ReachableFrom(ctx, roots)
	if err != nil {
		return nil, fmt.Errorf("git: walking remote's known objects: %w", err)
	}
	return haves, nil
}

// maxThinPackBases bounds how many of the remote's haves are loaded and
// offered as delta bases for a push's thin pack; haves beyond this count
// still exclude their objects from the pack, they just aren't considered
// as REF_DELTA bases.
const maxThinPackBases = 256

// packForCommands builds the packfile covering every object reachable from
// the commands' new hashes that isn't already in haves, delta-encoding
// against haves where it shrinks the result (a thin pack).
func packForCommands(ctx context.Context, r *Repository, commands []Command, haves []hash.Hash) ([]byte, error) {
	exclude := make(map[string]bool, len(haves))
	for _, h := range haves {
		exclude[string(h)] = true
	}

	var roots []hash.Hash
	for _, c := range commands {
		if len(c.NewHash) > 0 {
			roots = append(roots, c.NewHash)
		}
	}
	if len(roots) == 0 {
		return protocol.WritePackfile(nil)
	}

	reachable, err := r.store.ReachableFrom(ctx, roots)
	if err != nil {
		return nil, fmt.Errorf("git: walking objects to push: %w", err)
	}

	var objs []protocol.PackObject
	for _, h := range reachable {
		if exclude[string(h)] {
			continue
		}
		obj, err := r.store.ReadObject(ctx, h)
		if err != nil {
			return nil, protocol.NewStoreError("read object "+h.String(), err)
		}
		objs = append(objs, protocol.PackObject{Type: obj.Kind, Data: obj.Payload})
	}

	bases := make([]protocol.DeltaBase, 0, min(len(haves), maxThinPackBases))
	for _, h := range haves {
		if len(bases) >= maxThinPackBases {
			break
		}
		obj, err := r.store.ReadObject(ctx, h)
		if err != nil {
			continue
		}
		bases = append(bases, protocol.DeltaBase{Hash: h, Type: obj.Kind, Data: obj.Payload})
	}

	return protocol.WritePackfileWithOptions(objs, protocol.PackWriterOptions{
		Bases:    bases,
		Window:   r.deltaWindow,
		MaxDepth: r.maxDeltaDepth,
	})
}

// encodePushCommands formats every command as a receive-pack command
// line: the first carries caps after a NUL byte, the rest don't.
func encodePushCommands(commands []Command, caps string) ([]byte, error) {
	var buf bytes.Buffer
	for i, c := range commands {
		line := fmt.Sprintf("%s %s %s", hashOrZero(c.OldHash), hashOrZero(c.NewHash), c.RefName)
		if i == 0 {
			line += "\x00" + caps
		}
		line += "\n"

		pkt, err := protocol.PackLine(line).Marshal()
		if err != nil {
			return nil, fmt.Errorf("git: encoding push command: %w", err)
		}
		buf.Write(pkt)
	}
	buf.Write([]byte(protocol.FlushPacket))
	return buf.Bytes(), nil
}

// encodePushOptions formats one pkt-line per push-option value, terminated
// by its own flush-pkt, sent immediately after the command list's flush and
// before the packfile.
func encodePushOptions(values []string) ([]byte, error) {
	var buf bytes.Buffer
	for _, v := range values {
		pkt, err := protocol.PackLine(v + "\n").Marshal()
		if err != nil {
			return nil, fmt.Errorf("git: encoding push option: %w", err)
		}
		buf.Write(pkt)
	}
	buf.Write([]byte(protocol.FlushPacket))
	return buf.Bytes(), nil
}

func hashOrZero(h hash.Hash) string {
	if len(h) == 0 {
		return protocol.ZeroHash
	}
	return h.String()
}

// parseReportStatus parses a receive-pack report-status response: an
// "unpack ok"/"unpack <error>" line followed by one "ok <ref>"/
// "ng <ref> <reason>" line per command.
func parseReportStatus(data []byte) (PushResult, error) {
	br := bufio.NewReader(bytes.NewReader(data))
	lines, err := protocol.ReadPktLines(br)
	if err != nil {
		return PushResult{}, fmt.Errorf("git: parsing report-status: %w", err)
	}

	var result PushResult
	for i, raw := range lines {
		line := string(bytes.TrimSuffix(raw, []byte("\n")))

		if i == 0 {
			switch {
			case line == "unpack ok":
				result.UnpackOK = true
			case strings.HasPrefix(line, "unpack ") && len(line) > len("unpack "):
				result.UnpackOK = false
				result.UnpackError = line[len("unpack "):]
			default:
				return result, fmt.Errorf("git: malformed report-status: %q", line)
			}
			continue
		}

		switch {
		case len(line) > 3 && line[:3] == "ok ":
			result.Refs = append(result.Refs, RefPushResult{RefName: line[3:], OK: true})
		case len(line) > 3 && line[:3] == "ng ":
			name, reason, _ := strings.Cut(line[3:], " ")
			result.Refs = append(result.Refs, RefPushResult{RefName: name, OK: false, Reason: reason})
		default:
			return result, fmt.Errorf("git: malformed ref status line: %q", line)
		}
	}

	return result, nil
}
