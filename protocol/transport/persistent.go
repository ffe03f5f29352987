package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"
	"time"
)

// PersistentTransport implements Transport over a single long-lived,
// bidirectional stream: the git:// anonymous protocol. The whole
// conversation (advertisement, every negotiation round, the packfile)
// flows over one connection, in contrast to HTTPTransport's one-request-
// per-phase model.
type PersistentTransport struct {
	addr string
	path string

	dialer net.Dialer
}

// NewPersistentTransport builds a PersistentTransport for a "git://"
// repository URL, e.g. "git://example.com/project.git".
func NewPersistentTransport(repo string) (*PersistentTransport, error) {
	u, err := url.Parse(repo)
	if err != nil {
		return nil, fmt.Errorf("parse repository url: %w", err)
	}
	if u.Scheme != "git" {
		return nil, fmt.Errorf("persistent transport only supports the git:// scheme, got %q", u.Scheme)
	}

	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "9418")
	}

	return &PersistentTransport{addr: host, path: u.Path}, nil
}

// Open dials the remote and returns a conversation bound to the resulting
// connection. The caller owns closing it via Conversation.Close.
func (t *PersistentTransport) Open(ctx context.Context) (Conversation, error) {
	conn, err := t.dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return nil, &wrappedTransportError{phase: PhaseAdvertisement, err: err}
	}

	return &persistentConversation{conn: conn, path: t.path, host: t.addr}, nil
}

// persistentConversation implements Conversation over one net.Conn. The
// first request line (git-proto-request) also doubles as the request for
// the advertisement, per the git:// protocol: the server starts sending
// the advertisement as soon as it reads the request line, with no
// additional round trip.
type persistentConversation struct {
	conn net.Conn
	path string
	host string

	requestSent bool
}

// deadlineForPhase returns a reasonable default per-phase deadline. Callers
// needing tighter control should derive ctx with their own deadline before
// calling ReadFrames/WriteFrames; this is only a backstop against a
// wedged remote.
func deadlineForPhase(phase Phase) time.Duration {
	switch phase {
	case PhaseAdvertisement:
		return 30 * time.Second
	case PhasePackReception, PhasePackTransmission:
		return 10 * time.Minute
	default:
		return 60 * time.Second
	}
}

func (c *persistentConversation) applyDeadline(ctx context.Context, phase Phase) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(deadlineForPhase(phase))
	}
	return c.conn.SetDeadline(deadline)
}

// Advertisement sends the initial git-proto-request line and returns the
// connection itself as the source of the advertisement; the caller must
// not close it, since the same connection carries every later phase.
func (c *persistentConversation) Advertisement(ctx context.Context, service Service) (io.ReadCloser, error) {
	if c.requestSent {
		return nil, fmt.Errorf("advertisement already requested on this connection")
	}
	if err := c.applyDeadline(ctx, PhaseAdvertisement); err != nil {
		return nil, err
	}

	line := fmt.Sprintf("%s %s\x00host=%s\x00", service, c.path, c.host)
	pkt := fmt.Sprintf("%04x%s", len(line)+4, line)

	if _, err := c.conn.Write([]byte(pkt)); err != nil {
		return nil, &wrappedTransportError{phase: PhaseAdvertisement, err: err}
	}
	c.requestSent = true

	return io.NopCloser(c.conn), nil
}

// WriteFrames writes one phase's outbound pkt-line stream directly onto the
// connection; the persistent transport streams incrementally rather than
// buffering a whole phase, so this returns as soon as the write completes.
func (c *persistentConversation) WriteFrames(ctx context.Context, service Service, frames []byte) error {
	phase := PhaseNegotiationRound
	if service == ServiceReceivePack {
		phase = PhasePackTransmission
	}
	if err := c.applyDeadline(ctx, phase); err != nil {
		return err
	}
	if _, err := c.conn.Write(frames); err != nil {
		return &wrappedTransportError{phase: phase, err: err}
	}
	return nil
}

// ReadFrames returns the shared connection as the source for the next
// phase's inbound frames. The caller must not close it; Close on the
// Conversation closes the underlying connection once the whole
// conversation is done.
func (c *persistentConversation) ReadFrames(ctx context.Context) (io.ReadCloser, error) {
	if err := c.applyDeadline(ctx, PhasePackReception); err != nil {
		return nil, err
	}
	return io.NopCloser(c.conn), nil
}

func (c *persistentConversation) Stateless() bool { return false }

func (c *persistentConversation) Close() error { return c.conn.Close() }
