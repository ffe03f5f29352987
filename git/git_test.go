package git

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvidsson/gitsync/protocol"
	"github.com/arvidsson/gitsync/protocol/negotiate"
	"github.com/arvidsson/gitsync/store"
)

func TestNewRepository_RequiresTransportAndStore(t *testing.T) {
	t.Parallel()

	s := store.NewInMemoryStore()
	tr := &fakeTransport{conv: &fakeConversation{}}

	_, err := NewRepository(nil, s)
	assert.Error(t, err)

	_, err = NewRepository(tr, nil)
	assert.Error(t, err)

	repo, err := NewRepository(tr, s)
	require.NoError(t, err)
	assert.Equal(t, "gitsync/1.0", repo.userAgent)
	assert.Equal(t, protocol.DefaultDeltaWindow, repo.deltaWindow)
	assert.Equal(t, protocol.DefaultMaxDeltaDepth, repo.maxDeltaDepth)
}

func TestNewRepository_DeltaOptionsApply(t *testing.T) {
	t.Parallel()

	s := store.NewInMemoryStore()
	tr := &fakeTransport{conv: &fakeConversation{}}

	repo, err := NewRepository(tr, s, WithDeltaWindow(5), WithMaxDeltaDepth(3))
	require.NoError(t, err)
	assert.Equal(t, 5, repo.deltaWindow)
	assert.Equal(t, 3, repo.maxDeltaDepth)

	_, err = NewRepository(tr, s, WithDeltaWindow(0))
	assert.Error(t, err)

	_, err = NewRepository(tr, s, WithMaxDeltaDepth(-1))
	assert.Error(t, err)
}

func TestNewRepository_OptionsApply(t *testing.T) {
	t.Parallel()

	s := store.NewInMemoryStore()
	tr := &fakeTransport{conv: &fakeConversation{}}

	custom := negotiate.HaveAllRefsOnce{}
	repo, err := NewRepository(tr, s, WithUserAgent("custom/2.0"), WithNegotiator(custom))
	require.NoError(t, err)
	assert.Equal(t, "custom/2.0", repo.userAgent)
	assert.Equal(t, custom, repo.fetchNegotiator)

	_, err = NewRepository(tr, s, WithUserAgent(""))
	assert.Error(t, err)

	_, err = NewRepository(tr, s, WithNegotiator(nil))
	assert.Error(t, err)

	_, err = NewRepository(tr, s, WithLogger(nil))
	assert.Error(t, err)
}
