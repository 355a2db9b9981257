package archive

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/Tnze/go-mc/nbt"
	"github.com/klauspost/compress/zstd"
	"github.com/willf/bitset"

	"github.com/astei/voxelchunk/chunk"
)

// maxSectionSize caps the sizes a section header may claim before anything is allocated.
const maxSectionSize = 1 << 30

// Read decodes an archive written by Write. Chunks are returned in mask order
// and are not dirty.
func Read(r io.Reader) ([]*chunk.Chunk, error) {
	var h header
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if h.Magic != Magic {
		return nil, ErrBadMagic
	}
	if h.Version != LatestVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if h.Width == 0 || h.Depth == 0 {
		return nil, fmt.Errorf("%w: empty chunk grid", ErrCorrupt)
	}
	if err := checkGridSize(int64(h.Width), int64(h.Depth)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	g := grid{minX: h.MinX, minZ: h.MinZ, width: int(h.Width), depth: int(h.Depth)}

	var wordCount uint32
	if err := binary.Read(r, binary.LittleEndian, &wordCount); err != nil {
		return nil, fmt.Errorf("read mask length: %w", err)
	}
	if int(wordCount) != maskWords(g.cells()) {
		return nil, fmt.Errorf("%w: mask has %d words, want %d", ErrCorrupt, wordCount, maskWords(g.cells()))
	}
	words := make([]uint64, wordCount)
	if err := binary.Read(r, binary.LittleEndian, words); err != nil {
		return nil, fmt.Errorf("read mask: %w", err)
	}
	mask := bitset.From(words)

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer dec.Close()

	blocks, err := readZstdSection(r, dec)
	if err != nil {
		return nil, fmt.Errorf("read blocks section: %w", err)
	}
	chunks, err := decodeBlocks(blocks, g, mask)
	if err != nil {
		return nil, err
	}

	meta, err := readZstdSection(r, dec)
	if err != nil {
		return nil, fmt.Errorf("read metadata section: %w", err)
	}
	if err := applyMetadata(chunks, meta); err != nil {
		return nil, err
	}
	return chunks, nil
}

// ReadFile opens and decodes the archive at path.
func ReadFile(path string) ([]*chunk.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	return Read(bufio.NewReader(f))
}

func readZstdSection(r io.Reader, dec *zstd.Decoder) ([]byte, error) {
	var sizes [2]uint32
	if err := binary.Read(r, binary.LittleEndian, &sizes); err != nil {
		return nil, err
	}
	compressedLen, rawLen := sizes[0], sizes[1]
	if compressedLen > maxSectionSize || rawLen > maxSectionSize {
		return nil, fmt.Errorf("%w: section sizes %d/%d too large", ErrCorrupt, compressedLen, rawLen)
	}

	compressed := make([]byte, compressedLen)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, err
	}
	raw, err := dec.DecodeAll(compressed, make([]byte, 0, rawLen))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if uint32(len(raw)) != rawLen {
		return nil, fmt.Errorf("%w: section decompressed to %d bytes, header says %d", ErrCorrupt, len(raw), rawLen)
	}
	return raw, nil
}

func decodeBlocks(data []byte, g grid, mask *bitset.BitSet) ([]*chunk.Chunk, error) {
	var chunks []*chunk.Chunk
	for bit, ok := mask.NextSet(0); ok; bit, ok = mask.NextSet(bit + 1) {
		if int(bit) >= g.cells() {
			return nil, fmt.Errorf("%w: mask bit %d outside %dx%d grid", ErrCorrupt, bit, g.width, g.depth)
		}
		pos := g.position(bit)
		if len(data) < 4 {
			return nil, fmt.Errorf("%w: blocks section truncated at chunk %v", ErrCorrupt, pos)
		}
		n := binary.LittleEndian.Uint32(data)
		data = data[4:]
		if uint32(len(data)) < n {
			return nil, fmt.Errorf("%w: blocks section truncated at chunk %v", ErrCorrupt, pos)
		}
		c, err := chunk.DecompressAt(pos, data[:n])
		if err != nil {
			return nil, fmt.Errorf("chunk %v: %w", pos, err)
		}
		data = data[n:]
		chunks = append(chunks, c)
	}
	if len(data) != 0 {
		return nil, fmt.Errorf("%w: %d unread bytes in blocks section", ErrCorrupt, len(data))
	}
	return chunks, nil
}

func applyMetadata(chunks []*chunk.Chunk, data []byte) error {
	var root metaRoot
	if err := nbt.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("%w: decode metadata: %v", ErrCorrupt, err)
	}
	if len(root.Chunks) != len(chunks) {
		return fmt.Errorf("%w: %d metadata entries for %d chunks", ErrCorrupt, len(root.Chunks), len(chunks))
	}

	for i, e := range root.Chunks {
		c := chunks[i]
		if c.Position() != (chunk.Position{X: e.X, Z: e.Z}) {
			return fmt.Errorf("%w: metadata entry %d is for (%d, %d), chunk is at %v", ErrCorrupt, i, e.X, e.Z, c.Position())
		}
		next, err := c.WithMetadata(e.metadata())
		if err != nil {
			return fmt.Errorf("%w: chunk %v: %v", ErrCorrupt, c.Position(), err)
		}
		chunks[i] = next
	}
	return nil
}
