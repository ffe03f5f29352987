// Package sideband demultiplexes the side-band / side-band-64k channel
// tagging the Git Smart protocol applies to a packfile stream during
// fetch and push: each pkt-line's first byte routes it to the packfile
// reader (channel 1), a progress sink (channel 2), or a fatal-error abort
// (channel 3).
package sideband

import (
	"bufio"
	"fmt"
	"io"

	"github.com/arvidsson/gitsync/protocol"
)

// Channel identifies one of the three side-band lanes.
type Channel byte

const (
	ChannelPack     Channel = 1
	ChannelProgress Channel = 2
	ChannelError    Channel = 3
)

// MaxFrameSize is the largest pkt-line payload (including the one-byte
// channel tag) a side-band conversation may send. side-band allows 1000
// bytes; side-band-64k raises this to 65519 bytes, a 65523-byte pkt-line
// (999/65518 bytes of actual pack data once the tag byte is subtracted).
func MaxFrameSize(sixtyFourK bool) int {
	if sixtyFourK {
		return 65519
	}
	return 1000
}

// ProgressSink receives channel-2 text as it arrives; implementations
// typically forward it to the CLI's --progress output.
type ProgressSink func(text string)

// Demux reads side-band-tagged pkt-lines from r, writing channel-1 bytes
// to packOut and channel-2 text to progress (which may be nil to discard
// it), until the stream's flush-pkt or a channel-3 fatal message, which
// aborts with a *protocol.RemoteError.
func Demux(r *bufio.Reader, packOut io.Writer, progress ProgressSink) error {
	for {
		line, err := protocol.ReadPktLine(r)
		if err != nil {
			if isFlush(err) {
				return nil
			}
			return fmt.Errorf("sideband: reading frame: %w", err)
		}
		if len(line) == 0 {
			continue
		}

		channel := Channel(line[0])
		payload := line[1:]

		switch channel {
		case ChannelPack:
			if _, err := packOut.Write(payload); err != nil {
				return fmt.Errorf("sideband: writing pack data: %w", err)
			}
		case ChannelProgress:
			if progress != nil {
				progress(string(payload))
			}
		case ChannelError:
			return protocol.NewRemoteError(string(payload))
		default:
			// Not side-band tagged after all; treat the whole line as pack
			// data, matching a server that negotiated no side-band.
			if _, err := packOut.Write(line); err != nil {
				return fmt.Errorf("sideband: writing untagged data: %w", err)
			}
		}
	}
}

func isFlush(err error) bool {
	return err == protocol.ErrFlushPacket
}

// PassThrough copies r directly to packOut with no demultiplexing, for the
// case where neither side-band nor side-band-64k was negotiated and the
// server streams the packfile unframed.
func PassThrough(r io.Reader, packOut io.Writer) error {
	_, err := io.Copy(packOut, r)
	if err != nil {
		return fmt.Errorf("sideband: copying unframed pack stream: %w", err)
	}
	return nil
}
