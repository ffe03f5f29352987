package git

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/arvidsson/gitsync/protocol/transport"
)

// fakeConversation scripts a transport.Conversation's responses for tests:
// one fixed advertisement body, then one ReadFrames response per call, in
// order. Every WriteFrames call is recorded for assertion.
type fakeConversation struct {
	advertisement  []byte
	stateless      bool
	frameResponses [][]byte

	readIdx int
	written [][]byte
	closed  bool
}

func (f *fakeConversation) Advertisement(ctx context.Context, service transport.Service) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.advertisement)), nil
}

func (f *fakeConversation) WriteFrames(ctx context.Context, service transport.Service, frames []byte) error {
	f.written = append(f.written, frames)
	return nil
}

func (f *fakeConversation) ReadFrames(ctx context.Context) (io.ReadCloser, error) {
	if f.readIdx >= len(f.frameResponses) {
		return nil, fmt.Errorf("fakeConversation: no more scripted responses (asked for response %d)", f.readIdx)
	}
	resp := f.frameResponses[f.readIdx]
	f.readIdx++
	return io.NopCloser(bytes.NewReader(resp)), nil
}

func (f *fakeConversation) Stateless() bool { return f.stateless }

func (f *fakeConversation) Close() error {
	f.closed = true
	return nil
}

// fakeTransport always hands out the same scripted conversation.
type fakeTransport struct {
	conv *fakeConversation
}

func (t *fakeTransport) Open(ctx context.Context) (transport.Conversation, error) {
	return t.conv, nil
}

func pktLine(s string) []byte {
	return fmt.Appendf(nil, "%04x%s", len(s)+4, s)
}

const flushPkt = "0000"
