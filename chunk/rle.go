package chunk

import (
	"encoding/binary"
	"math"
)

// RunSize is the encoded size of one (id, length) run.
const RunSize = 4

// EncodeRLE run-length encodes blocks as little-endian (u16 id, u16 length) pairs.
// Runs longer than 65535 cells are split into consecutive pairs with the same id.
// A non-empty input always yields at least one pair.
func EncodeRLE(blocks []uint16) []byte {
	if len(blocks) == 0 {
		return nil
	}
	out := make([]byte, 0, 64)
	var pair [RunSize]byte
	emit := func(id uint16, n int) {
		binary.LittleEndian.PutUint16(pair[0:], id)
		binary.LittleEndian.PutUint16(pair[2:], uint16(n))
		out = append(out, pair[:]...)
	}

	cur, run := blocks[0], 1
	for _, b := range blocks[1:] {
		if b == cur && run < math.MaxUint16 {
			run++
			continue
		}
		emit(cur, run)
		cur, run = b, 1
	}
	emit(cur, run)
	return out
}

// DecodeRLE expands an EncodeRLE stream into dst, which must be filled exactly:
// a stream whose runs overrun len(dst) fails at the offending pair, and one that
// stops short fails once the input is exhausted.
func DecodeRLE(data []byte, dst []uint16) error {
	const op = "decompress"
	if len(data) == 0 {
		return serializationErrorf(op, "empty stream")
	}
	if len(data)%RunSize != 0 {
		return serializationErrorf(op, "stream length %d is not a multiple of %d", len(data), RunSize)
	}

	pos := 0
	for off := 0; off < len(data); off += RunSize {
		id := binary.LittleEndian.Uint16(data[off:])
		n := int(binary.LittleEndian.Uint16(data[off+2:]))
		if n == 0 {
			return serializationErrorf(op, "zero-length run at byte %d", off)
		}
		if pos+n > len(dst) {
			return serializationErrorf(op, "run at byte %d overfills chunk: %d cells, want %d", off, pos+n, len(dst))
		}
		run := dst[pos : pos+n]
		for i := range run {
			run[i] = id
		}
		pos += n
	}
	if pos != len(dst) {
		return serializationErrorf(op, "stream underfills chunk: %d cells, want %d", pos, len(dst))
	}
	return nil
}

// Compress encodes the chunk's blocks with EncodeRLE. Metadata and position are
// not carried.
func (c *Chunk) Compress() []byte {
	return EncodeRLE(c.data.Blocks)
}

// Decompress rebuilds a chunk at the origin from a Compress stream. The result has
// default metadata and is not dirty.
func Decompress(data []byte) (*Chunk, error) {
	return DecompressAt(Position{}, data)
}

// DecompressAt is Decompress for a chunk whose position is known to the caller.
func DecompressAt(pos Position, data []byte) (*Chunk, error) {
	d := NewData(pos)
	if err := DecodeRLE(data, d.Blocks); err != nil {
		return nil, err
	}
	return &Chunk{data: d}, nil
}
