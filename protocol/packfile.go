package protocol

// A Packfile is the compressed, binary format Git uses to transmit object
// graphs over the wire and to store them in .git/objects/pack.
// Its wire-format is defined here: https://git-scm.com/docs/pack-format
// Its negotiation is defined here: https://git-scm.com/docs/pack-protocol#_packfile_negotiation
//
// The wire-format goes as such:
//   - 4-byte signature: `[]byte("PACK")`
//   - 4-byte version number (2 or 3; big-endian)
//   - 4-byte number of objects contained in the pack (big-endian)
//   - The pre-defined number of objects follow.
//   - A trailer of the SHA-1 over all preceding bytes.
//
// Each object entry starts with a variable-length type+size header (3-bit
// type, then a little-endian base-128 varint for the size), followed by
// the zlib-deflated object data. OBJ_OFS_DELTA and OBJ_REF_DELTA entries
// additionally carry a base reference (a negative offset or a full object
// hash, respectively) before the deflated delta stream.
import (
	"bufio"
	"crypto/sha1" //nolint:gosec // packfile trailers are SHA-1 by format, not by choice
	"encoding/binary"
	"errors"
	stdhash "hash"
	"io"

	"github.com/klauspost/compress/zlib"

	objhash "github.com/arvidsson/gitsync/protocol/hash"
	"github.com/arvidsson/gitsync/protocol/object"
)

var (
	// ErrNoPackfileSignature is returned when the input does not begin with
	// the 4-byte "PACK" signature, including when it is truncated before
	// the signature can be read in full.
	ErrNoPackfileSignature = errors.New("missing or truncated PACK signature")

	// ErrUnsupportedPackfileVersion is returned for any packfile version
	// other than 2 or 3.
	ErrUnsupportedPackfileVersion = errors.New("unsupported packfile version")
)

const packfileSignature = "PACK"

// PackedObject is one object entry decoded from a packfile. Data is the
// inflated payload; for OfsDelta and RefDelta objects it is still a delta
// stream against the indicated base, not the final object content. Base
// resolution is a separate step (storePack in git/receive.go).
type PackedObject struct {
	Type   object.Type
	Size   int64 // declared (pre-inflation target) size
	Offset int64 // byte offset of this entry's header within the pack

	// BaseOffset is set for OfsDelta: the byte offset of the base object,
	// computed from the negative offset encoded on the wire.
	BaseOffset int64

	// BaseHash is set for RefDelta: the object hash of the base.
	BaseHash objhash.Hash

	Data []byte
}

// PackfileEntry is what PackfileReader.ReadObject returns: exactly one of
// Object (a decoded entry) or Trailer (the verified checksum, returned
// once after the declared object count has been consumed).
type PackfileEntry struct {
	Object  *PackedObject
	Trailer objhash.Hash
}

// trackingReader wraps the raw transport stream in a single shared
// bufio.Reader so that zlib's read-ahead for one object does not strand
// bytes belonging to the next, while still hashing and counting every
// byte as it is logically consumed (not as it is physically read from the
// source, which may run ahead of what callers have asked for).
type trackingReader struct {
	br  *bufio.Reader
	sum stdhash.Hash
	pos int64
}

func newTrackingReader(r io.Reader) *trackingReader {
	t := &trackingReader{sum: sha1.New()} //nolint:gosec
	t.br = bufio.NewReaderSize(r, 32*1024)
	return t
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.br.Read(p)
	t.sum.Write(p[:n])
	t.pos += int64(n)
	return n, err
}

func (t *trackingReader) ReadByte() (byte, error) {
	b, err := t.br.ReadByte()
	if err == nil {
		t.sum.Write([]byte{b})
		t.pos++
	}
	return b, err
}

// PackfileReader streams PackedObjects out of a packfile one at a time,
// verifying the trailing checksum once the declared object count has been
// consumed.
type PackfileReader struct {
	r       *trackingReader
	version uint32
	total   uint32
	read    uint32
	done    bool
}

// ParsePackfile is a convenience wrapper for NewPackfileReader over an
// in-memory buffer.
func ParsePackfile(data []byte) (*PackfileReader, error) {
	return NewPackfileReader(newByteReader(data))
}

// NewPackfileReader validates the packfile header (signature and version)
// and returns a reader positioned at the first object entry.
func NewPackfileReader(r io.Reader) (*PackfileReader, error) {
	tr := newTrackingReader(r)

	sig := make([]byte, 4)
	if _, err := io.ReadFull(tr, sig); err != nil || string(sig) != packfileSignature {
		return nil, ErrNoPackfileSignature
	}

	var header [8]byte
	if _, err := io.ReadFull(tr, header[:]); err != nil {
		return nil, ErrNoPackfileSignature
	}

	version := binary.BigEndian.Uint32(header[:4])
	if version != 2 && version != 3 {
		return nil, ErrUnsupportedPackfileVersion
	}
	total := binary.BigEndian.Uint32(header[4:])

	return &PackfileReader{r: tr, version: version, total: total}, nil
}

// Version reports the packfile format version (2 or 3).
func (pr *PackfileReader) Version() uint32 { return pr.version }

// NumObjects reports the object count declared in the packfile header.
func (pr *PackfileReader) NumObjects() uint32 { return pr.total }

// ReadObject returns the next object entry, or, once every declared object
// has been returned, the verified trailer entry. It returns io.EOF after
// the trailer has been consumed.
func (pr *PackfileReader) ReadObject() (PackfileEntry, error) {
	if pr.done {
		return PackfileEntry{}, io.EOF
	}

	if pr.read >= pr.total {
		expected := pr.r.sum.Sum(nil)

		trailer := make([]byte, sha1.Size)
		if _, err := io.ReadFull(pr.r, trailer); err != nil {
			return PackfileEntry{}, NewFrameError("packfile trailer", eofIsUnexpected(err))
		}

		pr.done = true
		if !objhash.Hash(trailer).Is(objhash.Hash(expected)) {
			return PackfileEntry{}, NewChecksumError(objhash.Hash(expected).String(), objhash.Hash(trailer).String())
		}
		return PackfileEntry{Trailer: objhash.Hash(trailer)}, nil
	}

	offset := pr.r.pos
	objType, size, err := readObjectHeader(pr.r)
	if err != nil {
		return PackfileEntry{}, err
	}

	obj := &PackedObject{Type: objType, Size: size, Offset: offset}

	switch objType {
	case object.TypeOfsDelta:
		back, err := readOfsDeltaOffset(pr.r)
		if err != nil {
			return PackfileEntry{}, err
		}
		obj.BaseOffset = offset - back

	case object.TypeRefDelta:
		h := make([]byte, 20)
		if _, err := io.ReadFull(pr.r, h); err != nil {
			return PackfileEntry{}, NewFrameError("ref-delta base hash", eofIsUnexpected(err))
		}
		obj.BaseHash = objhash.Hash(h)
	}

	zr, err := zlib.NewReader(pr.r)
	if err != nil {
		return PackfileEntry{}, NewFrameError("zlib stream header", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		return PackfileEntry{}, NewFrameError("inflating packed object", err)
	}
	if err := zr.Close(); err != nil {
		return PackfileEntry{}, NewFrameError("closing zlib stream", err)
	}
	obj.Data = data

	pr.read++
	return PackfileEntry{Object: obj}, nil
}

// readObjectHeader decodes the 3-bit type and variable-length size that
// precede every packed object.
func readObjectHeader(r io.ByteReader) (object.Type, int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, NewFrameError("object header", eofIsUnexpected(err))
	}

	objType := object.Type((b >> 4) & 0x07)
	size := int64(b & 0x0f)
	shift := uint(4)

	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, 0, NewFrameError("object header", eofIsUnexpected(err))
		}
		size |= int64(b&0x7f) << shift
		shift += 7
	}

	if objType == object.TypeInvalid || objType == object.TypeReserved {
		return 0, 0, NewObjectHeaderError(objType)
	}

	return objType, size, nil
}

// readOfsDeltaOffset decodes the OBJ_OFS_DELTA negative-offset encoding: a
// sequence of base-128 digits, most significant first, where every
// continuation byte's value is increased by one before the next shift to
// avoid redundant encodings of the same offset.
func readOfsDeltaOffset(r io.ByteReader) (int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, NewFrameError("ofs-delta offset", eofIsUnexpected(err))
	}

	offset := int64(b & 0x7f)
	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, NewFrameError("ofs-delta offset", eofIsUnexpected(err))
		}
		offset++
		offset = (offset << 7) | int64(b&0x7f)
	}

	return offset, nil
}

// byteReader adapts a byte slice to the io.Reader + io.ByteReader surface
// trackingReader/zlib expect, without pulling in bytes.Reader's wider API.
type byteReader struct {
	data []byte
	pos  int
}

func newByteReader(data []byte) *byteReader { return &byteReader{data: data} }

func (b *byteReader) Read(p []byte) (int, error) {
	if b.pos >= len(b.data) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += n
	return n, nil
}
