package protocol_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvidsson/gitsync/protocol"
	objhash "github.com/arvidsson/gitsync/protocol/hash"
	"github.com/arvidsson/gitsync/protocol/object"
)

func TestWritePackfile_RoundTripsThroughReader(t *testing.T) {
	t.Parallel()

	objects := []protocol.PackObject{
		{Type: object.TypeBlob, Data: []byte("hello world")},
		{Type: object.TypeTree, Data: []byte("100644 file.txt\x00" + string(make([]byte, 20)))},
		{Type: object.TypeCommit, Data: []byte("tree 0000000000000000000000000000000000000000\n\nmsg\n")},
	}

	data, err := protocol.WritePackfile(objects)
	require.NoError(t, err)

	reader, err := protocol.ParsePackfile(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), reader.Version())
	assert.Equal(t, uint32(len(objects)), reader.NumObjects())

	var got []protocol.PackObject
	for {
		entry, err := reader.ReadObject()
		require.NoError(t, err)
		if entry.Object != nil {
			got = append(got, protocol.PackObject{Type: entry.Object.Type, Data: entry.Object.Data})
			continue
		}
		require.NotNil(t, entry.Trailer)
		break
	}

	require.Len(t, got, len(objects))
	for i, want := range objects {
		assert.Equal(t, want.Type, got[i].Type)
		assert.Equal(t, want.Data, got[i].Data)
	}
}

func TestWritePackfile_EmptyObjectSet(t *testing.T) {
	t.Parallel()

	data, err := protocol.WritePackfile(nil)
	require.NoError(t, err)

	reader, err := protocol.ParsePackfile(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), reader.NumObjects())

	entry, err := reader.ReadObject()
	require.NoError(t, err)
	require.NotNil(t, entry.Trailer)
}

func TestWritePackfile_RejectsInvalidType(t *testing.T) {
	t.Parallel()

	_, err := protocol.WritePackfile([]protocol.PackObject{{Type: object.TypeInvalid, Data: []byte("x")}})
	require.Error(t, err)
}

func TestWritePackfileWithOptions_DeltaEncodesSimilarObjectAgainstItsPredecessor(t *testing.T) {
	t.Parallel()

	base := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog. ", 200))
	similar := append([]byte(nil), base...)
	similar = append(similar, []byte(" plus a little extra content appended at the end")...)

	whole, err := protocol.WritePackfile([]protocol.PackObject{
		{Type: object.TypeBlob, Data: base},
		{Type: object.TypeBlob, Data: similar},
	})
	require.NoError(t, err)

	delta, err := protocol.WritePackfileWithOptions([]protocol.PackObject{
		{Type: object.TypeBlob, Data: base},
		{Type: object.TypeBlob, Data: similar},
	}, protocol.PackWriterOptions{Window: 10, MaxDepth: 50})
	require.NoError(t, err)

	assert.Less(t, len(delta), len(whole), "a near-duplicate object should pack smaller once delta-encoded")

	reader, err := protocol.ParsePackfile(delta)
	require.NoError(t, err)

	var first *protocol.PackedObject
	for i := 0; i < 2; i++ {
		entry, err := reader.ReadObject()
		require.NoError(t, err)
		require.NotNil(t, entry.Object)
		if i == 0 {
			first = entry.Object
			continue
		}
		require.Equal(t, object.TypeOfsDelta, entry.Object.Type, "the second object should delta against the first")
		got, err := protocol.ApplyDelta(first.Data, entry.Object.Data)
		require.NoError(t, err)
		assert.Equal(t, similar, got)
	}
}

func TestWritePackfileWithOptions_ThinPackDeltasAgainstExternalBase(t *testing.T) {
	t.Parallel()

	baseData := []byte("package main\n\nfunc main() {\n\tprintln(\"hello\")\n}\n" + string(make([]byte, 48)))
	targetData := append([]byte(nil), baseData...)
	targetData = append(targetData, []byte("\n// trailing comment added in the new revision\n")...)

	baseHash := objhash.Hash(make([]byte, 20))

	data, err := protocol.WritePackfileWithOptions([]protocol.PackObject{
		{Type: object.TypeBlob, Data: targetData},
	}, protocol.PackWriterOptions{
		Bases: []protocol.DeltaBase{{Hash: baseHash, Type: object.TypeBlob, Data: baseData}},
	})
	require.NoError(t, err)

	reader, err := protocol.ParsePackfile(data)
	require.NoError(t, err)

	entry, err := reader.ReadObject()
	require.NoError(t, err)
	require.NotNil(t, entry.Object)
	require.Equal(t, object.TypeRefDelta, entry.Object.Type)
	assert.True(t, entry.Object.BaseHash.Is(baseHash))

	got, err := protocol.ApplyDelta(baseData, entry.Object.Data)
	require.NoError(t, err)
	assert.Equal(t, targetData, got)
}

func TestWritePackfileWithOptions_RespectsMaxDepth(t *testing.T) {
	t.Parallel()

	filler := string(make([]byte, 64))
	objects := make([]protocol.PackObject, 0, 4)
	prev := "base content " + filler
	objects = append(objects, protocol.PackObject{Type: object.TypeBlob, Data: []byte(prev)})
	for i := 0; i < 3; i++ {
		prev = prev + fmt.Sprintf(" revision %d", i)
		objects = append(objects, protocol.PackObject{Type: object.TypeBlob, Data: []byte(prev)})
	}

	data, err := protocol.WritePackfileWithOptions(objects, protocol.PackWriterOptions{Window: 10, MaxDepth: 1})
	require.NoError(t, err)

	reader, err := protocol.ParsePackfile(data)
	require.NoError(t, err)

	type resolvedEntry struct {
		data  []byte
		depth int
	}
	byOffset := make(map[int64]resolvedEntry)
	resolved := make([][]byte, 0, len(objects))

	for range objects {
		entry, err := reader.ReadObject()
		require.NoError(t, err)
		require.NotNil(t, entry.Object)

		var r resolvedEntry
		switch entry.Object.Type {
		case object.TypeOfsDelta:
			base, ok := byOffset[entry.Object.BaseOffset]
			require.True(t, ok, "ofs-delta base must be an earlier entry in the pack")
			require.LessOrEqual(t, base.depth+1, 1, "no delta chain should exceed the configured max depth")
			got, err := protocol.ApplyDelta(base.data, entry.Object.Data)
			require.NoError(t, err)
			r = resolvedEntry{data: got, depth: base.depth + 1}
		default:
			r = resolvedEntry{data: entry.Object.Data}
		}

		byOffset[entry.Object.Offset] = r
		resolved = append(resolved, r.data)
	}

	for i, obj := range objects {
		assert.Equal(t, obj.Data, resolved[i])
	}
}
