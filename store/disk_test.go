package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvidsson/gitsync/protocol"
	"github.com/arvidsson/gitsync/protocol/hash"
	"github.com/arvidsson/gitsync/store"
)

func TestDiskStore_WriteAndReadObject(t *testing.T) {
	t.Parallel()

	s, err := store.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	h, err := s.WriteObject(ctx, store.Object{Kind: 3, Payload: []byte("hello")})
	require.NoError(t, err)

	has, err := s.HasObject(ctx, h)
	require.NoError(t, err)
	assert.True(t, has)

	obj, err := s.ReadObject(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), obj.Payload)
	assert.EqualValues(t, 3, obj.Kind)
}

func TestDiskStore_ReadObject_MissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	s, err := store.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.ReadObject(context.Background(), []byte{1, 2, 3})
	assert.ErrorIs(t, err, store.ErrObjectNotFound)
}

func TestDiskStore_WriteAndReadRef(t *testing.T) {
	t.Parallel()

	s, err := store.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	name, err := protocol.ParseRefName("refs/heads/main")
	require.NoError(t, err)

	h, err := s.WriteObject(ctx, store.Object{Kind: 1, Payload: []byte("tree 0000000000000000000000000000000000000000\n\nmsg\n")})
	require.NoError(t, err)

	require.NoError(t, s.WriteRef(ctx, name, h))

	got, err := s.ReadRef(ctx, name)
	require.NoError(t, err)
	assert.True(t, got.Is(h))

	refs, err := s.ListRefs(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "refs/heads/main", refs[0].Name.FullName)
}

func TestDiskStore_ReachableFrom_WalksCommitGraph(t *testing.T) {
	t.Parallel()

	s, err := store.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	blobHash, err := s.WriteObject(ctx, store.Object{Kind: 3, Payload: []byte("blob data")})
	require.NoError(t, err)

	treeData := append([]byte("100644 file.txt\x00"), blobHash...)
	treeHash, err := s.WriteObject(ctx, store.Object{Kind: 2, Payload: treeData})
	require.NoError(t, err)

	commitData := []byte("tree " + treeHash.String() + "\n\nmsg\n")
	commitHash, err := s.WriteObject(ctx, store.Object{Kind: 1, Payload: commitData})
	require.NoError(t, err)

	reachable, err := s.ReachableFrom(ctx, []hash.Hash{commitHash})
	require.NoError(t, err)
	assert.Len(t, reachable, 3)
}
