// Package archive stores many chunks in one file. The layout follows the Slime
// world format: a header with the chunk grid bounds, a bit mask of populated
// chunks, then zstd-compressed sections holding each chunk's run-length encoded
// blocks and an NBT metadata compound.
//
//	u16 magic | u8 version | i32 minX | i32 minZ | u16 width | u16 depth
//	u32 mask words | u64 mask words...
//	blocks section:   u32 compressed | u32 raw | zstd(for each chunk: u32 len | RLE)
//	metadata section: u32 compressed | u32 raw | zstd(NBT {chunks: [...]})
//
// All integers are little-endian. Chunks appear in mask order, bit
// (z-minZ)*width + (x-minX).
package archive

import (
	"errors"
	"fmt"

	"github.com/astei/voxelchunk/chunk"
)

const (
	Magic         = 0xB10C
	LatestVersion = 1

	// Extension is the conventional file suffix.
	Extension = ".vxa"
)

var ErrBadMagic = errors.New("archive: bad magic")
var ErrUnsupportedVersion = errors.New("archive: unsupported version")
var ErrEmptyWorld = errors.New("archive: no chunks to write")
var ErrCorrupt = errors.New("archive: corrupt archive")

type header struct {
	Magic   uint16
	Version uint8
	MinX    int32
	MinZ    int32
	Width   uint16
	Depth   uint16
}

type metaRoot struct {
	Chunks []metaEntry `nbt:"chunks"`
}

type metaEntry struct {
	X          int32   `nbt:"x"`
	Z          int32   `nbt:"z"`
	Biome      string  `nbt:"biome"`
	Light      int8    `nbt:"light"`
	Modified   int8    `nbt:"modified"`
	LastUpdate int64   `nbt:"lastUpdate"`
	Heights    []int32 `nbt:"heights"`
}

func entryFor(c *chunk.Chunk) metaEntry {
	m := c.Metadata()
	e := metaEntry{
		X:          c.Position().X,
		Z:          c.Position().Z,
		Biome:      m.Biome,
		Light:      int8(m.LightLevel),
		LastUpdate: m.LastUpdate,
		Heights:    make([]int32, len(m.HeightMap)),
	}
	if m.Modified {
		e.Modified = 1
	}
	for i, h := range m.HeightMap {
		e.Heights[i] = int32(h)
	}
	return e
}

func (e metaEntry) metadata() chunk.Metadata {
	m := chunk.Metadata{
		Biome:      e.Biome,
		LightLevel: uint8(e.Light),
		Modified:   e.Modified != 0,
		LastUpdate: e.LastUpdate,
		HeightMap:  make([]int, len(e.Heights)),
	}
	for i, h := range e.Heights {
		m.HeightMap[i] = int(h)
	}
	return m
}

// grid maps chunk positions onto mask bits.
type grid struct {
	minX, minZ    int32
	width, depth int
}

func (g grid) bit(pos chunk.Position) uint {
	return uint(int(pos.Z-g.minZ)*g.width + int(pos.X-g.minX))
}

func (g grid) position(bit uint) chunk.Position {
	return chunk.Position{
		X: g.minX + int32(int(bit)%g.width),
		Z: g.minZ + int32(int(bit)/g.width),
	}
}

func (g grid) cells() int { return g.width * g.depth }

// maxGridCells bounds width*depth so the populated mask stays at most 2 MiB.
const maxGridCells = 1 << 24

func checkGridSize(width, depth int64) error {
	if width*depth > maxGridCells {
		return fmt.Errorf("archive: chunk grid %dx%d exceeds %d cells", width, depth, maxGridCells)
	}
	return nil
}

func maskWords(bits int) int { return (bits + 63) / 64 }
