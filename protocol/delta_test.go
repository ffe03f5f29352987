package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDelta_CopyAndInsert(t *testing.T) {
	base := []byte("0123456789")

	delta := []byte{
		10, // source length varint: 10
		7,  // target length varint: 7

		// Copy 4 bytes from base offset 0: offset bits unset (offset=0),
		// size1 bit set (bit 4).
		0x80 | 1<<4,
		4, // size1 = 4

		// Insert 3 literal bytes.
		0x00 | 3,
		0x12, 0x34, 0x45,
	}

	out, err := ApplyDelta(base, delta)
	require.NoError(t, err)
	assert.Equal(t, append([]byte("0123"), 0x12, 0x34, 0x45), out)
}

func TestApplyDelta_CopyWithOffset(t *testing.T) {
	base := []byte("0123456789")

	delta := []byte{
		10, // source length
		3,  // target length

		// Copy from offset 5, size 3: offset1 bit (bit 0) and size1 bit (bit 4).
		0x80 | 1 | 1<<4,
		5, // offset1
		3, // size1
	}

	out, err := ApplyDelta(base, delta)
	require.NoError(t, err)
	assert.Equal(t, []byte("567"), out)
}

func TestApplyDelta_WrongSourceLength(t *testing.T) {
	base := []byte("short")

	delta := []byte{
		10, // claims a 10-byte source, but base is only 5 bytes
		0,
	}

	_, err := ApplyDelta(base, delta)
	require.ErrorIs(t, err, ErrInvalidDelta)
}

func TestApplyDelta_ReservedOpcode(t *testing.T) {
	base := []byte("01234")

	delta := []byte{
		5, // source length
		1, // target length
		0, // reserved opcode
	}

	_, err := ApplyDelta(base, delta)
	require.ErrorIs(t, err, ErrInvalidDelta)
}

func TestApplyDelta_CopyPastEndOfBase(t *testing.T) {
	base := []byte("01234")

	delta := []byte{
		5,  // source length
		10, // target length
		0x80 | 1<<4,
		8, // size1: larger than the base
	}

	_, err := ApplyDelta(base, delta)
	require.ErrorIs(t, err, ErrInvalidDelta)
}
