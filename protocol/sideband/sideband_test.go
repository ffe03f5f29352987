package sideband

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvidsson/gitsync/protocol"
)

func pktLine(data []byte) []byte {
	out := make([]byte, 0, len(data)+4)
	out = append(out, []byte(sprintfHex(len(data)+4))...)
	out = append(out, data...)
	return out
}

func sprintfHex(n int) string {
	const hex = "0123456789abcdef"
	b := make([]byte, 4)
	for i := 3; i >= 0; i-- {
		b[i] = hex[n&0xf]
		n >>= 4
	}
	return string(b)
}

func TestDemux_SplitsPackAndProgress(t *testing.T) {
	t.Parallel()

	var stream bytes.Buffer
	stream.Write(pktLine(append([]byte{byte(ChannelPack)}, []byte("PACKDATA1")...)))
	stream.Write(pktLine(append([]byte{byte(ChannelProgress)}, []byte("Counting objects: 10\n")...)))
	stream.Write(pktLine(append([]byte{byte(ChannelPack)}, []byte("PACKDATA2")...)))
	stream.Write([]byte(protocol.FlushPacket))

	var pack bytes.Buffer
	var progressMsgs []string

	err := Demux(bufio.NewReader(&stream), &pack, func(text string) {
		progressMsgs = append(progressMsgs, text)
	})
	require.NoError(t, err)

	assert.Equal(t, "PACKDATA1PACKDATA2", pack.String())
	require.Len(t, progressMsgs, 1)
	assert.Equal(t, "Counting objects: 10\n", progressMsgs[0])
}

func TestDemux_ChannelThreeAborts(t *testing.T) {
	t.Parallel()

	var stream bytes.Buffer
	stream.Write(pktLine(append([]byte{byte(ChannelError)}, []byte("fatal: repository not found")...)))
	stream.Write([]byte(protocol.FlushPacket))

	var pack bytes.Buffer
	err := Demux(bufio.NewReader(&stream), &pack, nil)
	require.Error(t, err)

	var remoteErr *protocol.RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "fatal: repository not found", remoteErr.Text)
}

func TestDemux_NilProgressSinkDiscardsChannelTwo(t *testing.T) {
	t.Parallel()

	var stream bytes.Buffer
	stream.Write(pktLine(append([]byte{byte(ChannelProgress)}, []byte("noise\n")...)))
	stream.Write(pktLine(append([]byte{byte(ChannelPack)}, []byte("payload")...)))
	stream.Write([]byte(protocol.FlushPacket))

	var pack bytes.Buffer
	err := Demux(bufio.NewReader(&stream), &pack, nil)
	require.NoError(t, err)
	assert.Equal(t, "payload", pack.String())
}

func TestMaxFrameSize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1000, MaxFrameSize(false))
	assert.Equal(t, 65519, MaxFrameSize(true))
}

func TestPassThrough(t *testing.T) {
	t.Parallel()

	var pack bytes.Buffer
	err := PassThrough(bytes.NewReader([]byte("rawpackbytes")), &pack)
	require.NoError(t, err)
	assert.Equal(t, "rawpackbytes", pack.String())
}
