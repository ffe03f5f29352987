package protocol

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrFlushPacket is returned by ReadPktLine when the line read was a
// flush-pkt ("0000"); it carries no payload and callers use it to detect
// section boundaries without consuming bytes belonging to whatever
// follows on the stream.
var ErrFlushPacket = errors.New("flush packet")

// ReadPktLine reads exactly one pkt-line from r and returns its payload
// (with any trailing LF stripped). It stops after that one line rather
// than reading to EOF, which matters when the stream is a
// persistent connection carrying further phases after this one's
// flush-pkt. Delimiter (0001) and response-end (0002) packets are returned
// as zero-length, non-error payloads; only a true flush yields
// ErrFlushPacket.
func ReadPktLine(r *bufio.Reader) ([]byte, error) {
	lengthBytes := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBytes); err != nil {
		return nil, eofIsUnexpected(err)
	}

	length64, err := strconv.ParseUint(string(lengthBytes), 16, 16)
	if err != nil {
		return nil, NewPackParseError(lengthBytes, NewFrameError("parsing line length", err))
	}
	length := int(length64)

	switch {
	case length == 0:
		return nil, ErrFlushPacket
	case length == 1 || length == 2:
		// delimiter or response-end: no payload to read
		return []byte{}, nil
	case length == 3 || length > 65524:
		return nil, NewPackParseError(lengthBytes, NewFrameError(fmt.Sprintf("line length %d", length), nil))
	case length == 4:
		return []byte{}, nil
	default:
		data := make([]byte, length-4)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, NewPackParseError(lengthBytes, NewFrameError("reading packet data", eofIsUnexpected(err)))
		}
		if len(data) > 0 && data[len(data)-1] == '\n' {
			return data[:len(data)-1], nil
		}
		return data, nil
	}
}

// ReadPktLines reads pkt-lines from r until a flush-pkt is seen, returning
// every non-flush payload read.
func ReadPktLines(r *bufio.Reader) ([][]byte, error) {
	var lines [][]byte
	for {
		line, err := ReadPktLine(r)
		if errors.Is(err, ErrFlushPacket) {
			return lines, nil
		}
		if err != nil {
			return lines, err
		}
		lines = append(lines, line)
	}
}
