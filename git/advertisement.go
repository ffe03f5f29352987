package git

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/arvidsson/gitsync/protocol"
	"github.com/arvidsson/gitsync/protocol/transport"
)

// readAdvertisement requests the advertisement for service over conv and
// parses it. Stateless-HTTP advertisements are prefixed with a
// "# service=<name>\n" pkt-line plus its own flush, which persistent
// connections never send (the git:// request line doubles as the
// advertisement request with no service-announcement framing); conv
// reports which shape to expect via Stateless().
func readAdvertisement(ctx context.Context, conv transport.Conversation, service transport.Service) (*protocol.Advertisement, error) {
	rc, err := conv.Advertisement(ctx, service)
	if err != nil {
		return nil, fmt.Errorf("git: fetching advertisement: %w", err)
	}
	defer rc.Close()

	return parseAdvertisementBody(rc, conv.Stateless())
}

func parseAdvertisementBody(rc io.Reader, stateless bool) (*protocol.Advertisement, error) {
	br := bufio.NewReader(rc)

	if stateless {
		if _, err := protocol.ReadPktLine(br); err != nil {
			return nil, fmt.Errorf("git: reading service announcement: %w", err)
		}
		if _, err := protocol.ReadPktLine(br); err != nil && !errors.Is(err, protocol.ErrFlushPacket) {
			return nil, fmt.Errorf("git: reading service announcement terminator: %w", err)
		}
	}

	lines, err := protocol.ReadPktLines(br)
	if err != nil {
		return nil, fmt.Errorf("git: reading advertisement: %w", err)
	}

	adv, err := protocol.ParseAdvertisement(lines)
	if err != nil {
		return nil, fmt.Errorf("git: parsing advertisement: %w", err)
	}
	return adv, nil
}
