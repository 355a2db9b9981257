package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/willf/bitset"

	"github.com/astei/voxelchunk/chunk"
	"github.com/astei/voxelchunk/nbt"
)

// Write encodes chunks as an archive. Positions must be unique and span at most
// 65535 chunks along each axis.
func Write(w io.Writer, chunks []*chunk.Chunk) error {
	g, err := determineGrid(chunks)
	if err != nil {
		return err
	}

	sorted := append([]*chunk.Chunk(nil), chunks...)
	sort.Slice(sorted, func(i, j int) bool {
		return g.bit(sorted[i].Position()) < g.bit(sorted[j].Position())
	})

	mask := bitset.New(uint(g.cells()))
	for i, c := range sorted {
		if i > 0 && sorted[i-1].Position() == c.Position() {
			return fmt.Errorf("archive: duplicate chunk at %v", c.Position())
		}
		mask.Set(g.bit(c.Position()))
	}

	aw := &archiveWriter{w: w}
	if err := aw.writeHeader(g, mask); err != nil {
		return err
	}
	if err := aw.writeBlocks(sorted); err != nil {
		return err
	}
	return aw.writeMetadata(sorted)
}

// WriteFile writes the archive to path through a temporary file and a rename,
// so readers never observe a partial archive.
func WriteFile(path string, chunks []*chunk.Chunk) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmp)
	}()

	if err := Write(f, chunks); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename archive: %w", err)
	}
	return nil
}

func determineGrid(chunks []*chunk.Chunk) (grid, error) {
	if len(chunks) == 0 {
		return grid{}, ErrEmptyWorld
	}
	minX, maxX := chunks[0].Position().X, chunks[0].Position().X
	minZ, maxZ := chunks[0].Position().Z, chunks[0].Position().Z
	for _, c := range chunks[1:] {
		p := c.Position()
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Z < minZ {
			minZ = p.Z
		}
		if p.Z > maxZ {
			maxZ = p.Z
		}
	}

	width := int64(maxX) - int64(minX) + 1
	depth := int64(maxZ) - int64(minZ) + 1
	if width > math.MaxUint16 || depth > math.MaxUint16 {
		return grid{}, fmt.Errorf("archive: chunk grid %dx%d exceeds %d chunks per axis", width, depth, math.MaxUint16)
	}
	if err := checkGridSize(width, depth); err != nil {
		return grid{}, err
	}
	return grid{minX: minX, minZ: minZ, width: int(width), depth: int(depth)}, nil
}

type archiveWriter struct {
	w io.Writer
}

func (aw *archiveWriter) writeHeader(g grid, mask *bitset.BitSet) error {
	h := header{
		Magic:   Magic,
		Version: LatestVersion,
		MinX:    g.minX,
		MinZ:    g.minZ,
		Width:   uint16(g.width),
		Depth:   uint16(g.depth),
	}
	if err := binary.Write(aw.w, binary.LittleEndian, h); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	// bitset.Bytes may carry fewer words than the grid needs; pad to a fixed count.
	words := make([]uint64, maskWords(g.cells()))
	copy(words, mask.Bytes())
	if err := binary.Write(aw.w, binary.LittleEndian, uint32(len(words))); err != nil {
		return fmt.Errorf("write mask length: %w", err)
	}
	if err := binary.Write(aw.w, binary.LittleEndian, words); err != nil {
		return fmt.Errorf("write mask: %w", err)
	}
	return nil
}

func (aw *archiveWriter) writeBlocks(chunks []*chunk.Chunk) error {
	var out bytes.Buffer
	var lenBuf [4]byte
	for _, c := range chunks {
		rle := c.Compress()
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(rle)))
		out.Write(lenBuf[:])
		out.Write(rle)
	}
	return aw.writeZstdCompressed(out.Bytes())
}

func (aw *archiveWriter) writeMetadata(chunks []*chunk.Chunk) error {
	root := metaRoot{Chunks: make([]metaEntry, 0, len(chunks))}
	for _, c := range chunks {
		root.Chunks = append(root.Chunks, entryFor(c))
	}

	var buf bytes.Buffer
	if err := nbt.NewEncoder(&buf).Encode(root); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return aw.writeZstdCompressed(buf.Bytes())
}

func (aw *archiveWriter) writeZstdCompressed(raw []byte) error {
	var compressed bytes.Buffer
	enc, err := zstd.NewWriter(&compressed)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return fmt.Errorf("compress section: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close zstd writer: %w", err)
	}

	sizes := [2]uint32{uint32(compressed.Len()), uint32(len(raw))}
	if err := binary.Write(aw.w, binary.LittleEndian, sizes); err != nil {
		return fmt.Errorf("write section sizes: %w", err)
	}
	_, err = compressed.WriteTo(aw.w)
	return err
}
