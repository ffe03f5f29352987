package git

import (
	"context"
	"crypto"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvidsson/gitsync/protocol"
	"github.com/arvidsson/gitsync/protocol/hash"
	"github.com/arvidsson/gitsync/protocol/object"
	"github.com/arvidsson/gitsync/protocol/sideband"
	"github.com/arvidsson/gitsync/store"
)

// buildSidebandPackResponse wraps data as a single channel-1 pkt-line
// followed by a flush-pkt, the shape a side-band-64k pack stream takes.
func buildSidebandPackResponse(data []byte) []byte {
	payload := append([]byte{byte(sideband.ChannelPack)}, data...)
	return append(pktLine(string(payload)), []byte(flushPkt)...)
}

func TestRepository_Fetch_EmptyWantEndsWithNoFurtherIO(t *testing.T) {
	t.Parallel()

	conv := &fakeConversation{advertisement: sampleAdvertisement()}
	repo, err := NewRepository(&fakeTransport{conv: conv}, store.NewInMemoryStore())
	require.NoError(t, err)

	result, err := repo.Fetch(context.Background(), func(adv *protocol.Advertisement) []hash.Hash {
		return nil
	}, FetchOptions{})
	require.NoError(t, err)

	assert.Len(t, result.Refs, 1)
	assert.Zero(t, result.ObjectsWritten)
	assert.Empty(t, conv.written, "no negotiation frames should be written when want() returns nothing")
}

func TestRepository_Fetch_CloneSingleBlobNoHaves(t *testing.T) {
	t.Parallel()

	blobData := []byte("hello world")
	blobHash, err := hash.Object(crypto.SHA1, object.TypeBlob, blobData)
	require.NoError(t, err)

	adv := pktLine(fmt.Sprintf("%s capabilities^{}\x00multi_ack_detailed side-band-64k ofs-delta agent=test/1.0\n", blobHash.String()))
	adv = append(adv, pktLine(fmt.Sprintf("%s refs/heads/main\n", blobHash.String()))...)
	adv = append(adv, []byte(flushPkt)...)

	pack, err := protocol.WritePackfile([]protocol.PackObject{{Type: object.TypeBlob, Data: blobData}})
	require.NoError(t, err)

	conv := &fakeConversation{
		advertisement: adv,
		frameResponses: [][]byte{
			append(pktLine("NAK\n"), []byte(flushPkt)...),
			buildSidebandPackResponse(pack),
		},
	}

	repo, err := NewRepository(&fakeTransport{conv: conv}, store.NewInMemoryStore())
	require.NoError(t, err)

	var wanted hash.Hash
	result, err := repo.Fetch(context.Background(), func(adv *protocol.Advertisement) []hash.Hash {
		wanted = adv.Refs[0].ObjectID
		return []hash.Hash{wanted}
	}, FetchOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, result.ObjectsWritten)
	require.Len(t, conv.written, 2, "want/shallow frame, then done")
	assert.True(t, conv.closed)
}

func TestRepository_FetchAll_AppliesRefsAfterSuccessfulFetch(t *testing.T) {
	t.Parallel()

	blobData := []byte("clone me")
	blobHash, err := hash.Object(crypto.SHA1, object.TypeBlob, blobData)
	require.NoError(t, err)

	adv := pktLine(fmt.Sprintf("%s capabilities^{}\x00multi_ack_detailed side-band-64k ofs-delta agent=test/1.0\n", blobHash.String()))
	adv = append(adv, pktLine(fmt.Sprintf("%s refs/heads/main\n", blobHash.String()))...)
	adv = append(adv, []byte(flushPkt)...)

	pack, err := protocol.WritePackfile([]protocol.PackObject{{Type: object.TypeBlob, Data: blobData}})
	require.NoError(t, err)

	conv := &fakeConversation{
		advertisement: adv,
		frameResponses: [][]byte{
			append(pktLine("NAK\n"), []byte(flushPkt)...),
			buildSidebandPackResponse(pack),
		},
	}

	s := store.NewInMemoryStore()
	repo, err := NewRepository(&fakeTransport{conv: conv}, s)
	require.NoError(t, err)

	result, err := repo.FetchAll(context.Background(), FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ObjectsWritten)

	refName, err := protocol.ParseRefName("refs/heads/main")
	require.NoError(t, err)
	got, err := s.ReadRef(context.Background(), refName)
	require.NoError(t, err)
	assert.True(t, got.Is(blobHash))

	has, err := s.HasObject(context.Background(), blobHash)
	require.NoError(t, err)
	assert.True(t, has)
}
