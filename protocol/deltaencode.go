package protocol

import "bytes"

// deltaBlockSize is the block length indexBlocks hashes base objects by
// and the minimum run length bestMatch will accept; below it a literal
// insert costs no more than a copy instruction would.
const deltaBlockSize = 16

// maxCopySize is the largest length a single copy instruction's 3-byte
// size field can carry; longer runs are split across instructions.
const maxCopySize = 0x00ffffff

// encodeDelta produces the delta instruction stream ApplyDelta(base, delta)
// inverts back into target: two varints giving base and target lengths,
// then a sequence of literal-insert and copy-from-base opcodes.
//
// Matches are found by indexing every deltaBlockSize-byte block of base
// and, while scanning target, extending each block hit as far as it runs;
// the longest match at each position is taken as a copy instruction, and
// everything else falls through as literal bytes.
func encodeDelta(base, target []byte) []byte {
	var buf bytes.Buffer
	writeDeltaVarint(&buf, uint(len(base)))
	writeDeltaVarint(&buf, uint(len(target)))

	index := indexBlocks(base)

	var literal []byte
	flushLiteral := func() {
		for len(literal) > 0 {
			n := len(literal)
			if n > 127 {
				n = 127
			}
			buf.WriteByte(byte(n))
			buf.Write(literal[:n])
			literal = literal[n:]
		}
	}

	tpos := 0
	for tpos < len(target) {
		bpos, length := bestMatch(index, base, target, tpos)
		if length < deltaBlockSize {
			literal = append(literal, target[tpos])
			tpos++
			continue
		}

		flushLiteral()
		writeCopyInstruction(&buf, bpos, length)
		tpos += length
	}
	flushLiteral()

	return buf.Bytes()
}

// indexBlocks maps every deltaBlockSize-byte block of base to the
// positions it occurs at, capped per block to bound the work bestMatch
// does against highly repetitive input.
func indexBlocks(base []byte) map[string][]int {
	index := make(map[string][]int)
	if len(base) < deltaBlockSize {
		return index
	}
	for i := 0; i+deltaBlockSize <= len(base); i++ {
		key := string(base[i : i+deltaBlockSize])
		if len(index[key]) >= 32 {
			continue
		}
		index[key] = append(index[key], i)
	}
	return index
}

// bestMatch finds the longest run starting at target[tpos:] that also
// occurs somewhere in base, using index to find candidate starting
// positions and extending each forward.
func bestMatch(index map[string][]int, base, target []byte, tpos int) (int, int) {
	if tpos+deltaBlockSize > len(target) {
		return 0, 0
	}
	candidates, ok := index[string(target[tpos:tpos+deltaBlockSize])]
	if !ok {
		return 0, 0
	}

	bestPos, bestLen := 0, 0
	for _, bpos := range candidates {
		l := matchLength(base, target, bpos, tpos)
		if l > bestLen {
			bestPos, bestLen = bpos, l
		}
	}
	return bestPos, bestLen
}

// matchLength reports how many consecutive bytes base[bpos:] and
// target[tpos:] share.
func matchLength(base, target []byte, bpos, tpos int) int {
	n := 0
	for bpos+n < len(base) && tpos+n < len(target) && base[bpos+n] == target[tpos+n] {
		n++
	}
	return n
}

// writeCopyInstruction emits a copy-from-base opcode, splitting into
// several instructions if size exceeds what one's 3-byte size field can
// carry. This is the inverse of ApplyDelta's copy-instruction decoding:
// up to 4 little-endian offset bytes and 3 little-endian size bytes, each
// field written from its lowest byte up to its highest nonzero one (a zero
// value writes no bytes), selected by bits 0-3 (offset) and 4-6
// (size) of the leading command byte, whose bit 7 marks it as a copy
// rather than a literal insert.
func writeCopyInstruction(buf *bytes.Buffer, offset, size int) {
	for size > 0 {
		n := size
		if n > maxCopySize {
			n = maxCopySize
		}
		writeOneCopyInstruction(buf, offset, n)
		offset += n
		size -= n
	}
}

func writeOneCopyInstruction(buf *bytes.Buffer, offset, size int) {
	var offBytes, sizeBytes [4]byte
	var offN, sizeN int
	for v := offset; v > 0; v >>= 8 {
		offBytes[offN] = byte(v & 0xff)
		offN++
	}
	for v := size; v > 0; v >>= 8 {
		sizeBytes[sizeN] = byte(v & 0xff)
		sizeN++
	}

	cmd := byte(0x80)
	for i := 0; i < offN; i++ {
		cmd |= 1 << uint(i)
	}
	for i := 0; i < sizeN; i++ {
		cmd |= 1 << uint(4+i)
	}

	buf.WriteByte(cmd)
	buf.Write(offBytes[:offN])
	buf.Write(sizeBytes[:sizeN])
}

// writeDeltaVarint encodes a length as the base-128 varint readDeltaVarint
// decodes: least-significant 7 bits first, with the high bit of each byte
// flagging whether another follows.
func writeDeltaVarint(buf *bytes.Buffer, v uint) {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v > 0 {
			b |= 0x80
		}
		buf.WriteByte(b)
		if v == 0 {
			break
		}
	}
}
