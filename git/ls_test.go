package git

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvidsson/gitsync/store"
)

func sampleAdvertisement() []byte {
	body := pktLine("0000000000000000000000000000000000000000 capabilities^{}\x00multi_ack_detailed side-band-64k ofs-delta agent=test/1.0\n")
	body = append(body, pktLine("1111111111111111111111111111111111111111 refs/heads/main\n")...)
	body = append(body, []byte(flushPkt)...)
	return body
}

func TestRepository_Ls_ReturnsAdvertisementAndCloses(t *testing.T) {
	t.Parallel()

	conv := &fakeConversation{advertisement: sampleAdvertisement()}
	repo, err := NewRepository(&fakeTransport{conv: conv}, store.NewInMemoryStore())
	require.NoError(t, err)

	adv, err := repo.Ls(context.Background())
	require.NoError(t, err)

	require.Len(t, adv.Refs, 1)
	assert.Equal(t, "refs/heads/main", adv.Refs[0].Name)
	assert.True(t, adv.Capabilities.Has("multi_ack_detailed"))
	assert.True(t, conv.closed)
	assert.Empty(t, conv.written, "Ls must not negotiate or write any frames")
}

func TestRepository_Ls_StatelessSkipsServiceAnnouncement(t *testing.T) {
	t.Parallel()

	body := pktLine("# service=git-upload-pack\n")
	body = append(body, []byte(flushPkt)...)
	body = append(body, sampleAdvertisement()...)

	conv := &fakeConversation{advertisement: body, stateless: true}
	repo, err := NewRepository(&fakeTransport{conv: conv}, store.NewInMemoryStore())
	require.NoError(t, err)

	adv, err := repo.Ls(context.Background())
	require.NoError(t, err)
	require.Len(t, adv.Refs, 1)
	assert.Equal(t, "refs/heads/main", adv.Refs[0].Name)
}
