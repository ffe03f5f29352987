package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvidsson/gitsync/protocol"
	"github.com/arvidsson/gitsync/protocol/hash"
	"github.com/arvidsson/gitsync/protocol/object"
)

func TestInMemoryStore_ObjectRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewInMemoryStore()
	h, err := s.WriteObject(ctx, Object{Kind: object.TypeBlob, Payload: []byte("hello world")})
	require.NoError(t, err)

	ok, err := s.HasObject(ctx, h)
	require.NoError(t, err)
	assert.True(t, ok)

	obj, err := s.ReadObject(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, object.TypeBlob, obj.Kind)
	assert.Equal(t, "hello world", string(obj.Payload))
}

func TestInMemoryStore_ReadObjectNotFound(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()
	_, err := s.ReadObject(context.Background(), hash.MustFromHex("0000000000000000000000000000000000000a"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestInMemoryStore_RefRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := NewInMemoryStore()
	ref, err := protocol.ParseRefName("refs/heads/main")
	require.NoError(t, err)

	h, err := s.WriteObject(ctx, Object{Kind: object.TypeCommit, Payload: []byte("tree " + zeroTree + "\n\ninitial\n")})
	require.NoError(t, err)

	require.NoError(t, s.WriteRef(ctx, ref, h))

	got, err := s.ReadRef(ctx, ref)
	require.NoError(t, err)
	assert.True(t, h.Is(got))

	refs, err := s.ListRefs(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "refs/heads/main", refs[0].Name.FullName)
}

func TestInMemoryStore_ReadRefNotFound(t *testing.T) {
	t.Parallel()

	s := NewInMemoryStore()
	ref, err := protocol.ParseRefName("refs/heads/missing")
	require.NoError(t, err)

	_, err = s.ReadRef(context.Background(), ref)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRefNotFound)
}

func TestInMemoryStore_ReachableFrom_WalksCommitTreeBlob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewInMemoryStore()

	blobHash, err := s.WriteObject(ctx, Object{Kind: object.TypeBlob, Payload: []byte("contents")})
	require.NoError(t, err)

	treePayload := append([]byte("100644 file.txt\x00"), []byte(blobHash)...)
	treeHash, err := s.WriteObject(ctx, Object{Kind: object.TypeTree, Payload: treePayload})
	require.NoError(t, err)

	commitPayload := []byte("tree " + treeHash.String() + "\nauthor a <a@b> 0 +0000\n\nmsg\n")
	commitHash, err := s.WriteObject(ctx, Object{Kind: object.TypeCommit, Payload: commitPayload})
	require.NoError(t, err)

	reachable, err := s.ReachableFrom(ctx, []hash.Hash{commitHash})
	require.NoError(t, err)
	assert.Len(t, reachable, 3)
}

func TestInMemoryStore_ReachableFrom_SkipsMissingRoot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewInMemoryStore()

	reachable, err := s.ReachableFrom(ctx, []hash.Hash{hash.MustFromHex("0000000000000000000000000000000000000a")})
	require.NoError(t, err)
	assert.Empty(t, reachable)
}

const zeroTree = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"
