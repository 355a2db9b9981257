package chunk

import (
	"fmt"
	"time"
)

const (
	Size   = 16
	Height = 384
	MinY   = -64
	MaxY   = MinY + Height

	// Volume is the number of cells in one chunk column.
	Volume = Size * Size * Height
	// Columns is the number of (x, z) columns, i.e. the height map length.
	Columns = Size * Size

	// MaxBiomeLen is the longest biome tag that fits the serialized header.
	MaxBiomeLen = 32
	MaxLight    = 15

	DefaultBiome = "plains"
)

// now returns the current time in milliseconds since the epoch. Tests replace it.
var now = func() int64 { return time.Now().UnixMilli() }

// Position identifies a chunk within the world's chunk grid.
type Position struct {
	X int32
	Z int32
}

func (p Position) String() string {
	return fmt.Sprintf("(%d, %d)", p.X, p.Z)
}

// Metadata is the per-chunk information carried alongside the block array.
//
// HeightMap holds one entry per column, indexed x + z*Size. An entry of 0 is an
// empty column; h > 0 means the topmost non-air block sits at MinY + h - 1.
type Metadata struct {
	Biome      string
	LightLevel uint8
	Modified   bool
	LastUpdate int64
	HeightMap  []int
}

// Data is the plain record behind a Chunk. It performs no validation of its own.
type Data struct {
	Position Position
	Blocks   []uint16
	Metadata Metadata
	Dirty    bool
}

// NewData returns an all-air record with default metadata.
func NewData(pos Position) Data {
	return Data{
		Position: pos,
		Blocks:   make([]uint16, Volume),
		Metadata: DefaultMetadata(),
	}
}

// DefaultMetadata returns the metadata of a freshly created chunk.
func DefaultMetadata() Metadata {
	return Metadata{
		Biome:      DefaultBiome,
		LightLevel: MaxLight,
		HeightMap:  make([]int, Columns),
	}
}

func (m Metadata) clone() Metadata {
	out := m
	out.HeightMap = append([]int(nil), m.HeightMap...)
	return out
}

func (m Metadata) validate() error {
	if len(m.HeightMap) != Columns {
		return fmt.Errorf("%w: height map has %d entries, want %d", ErrInvalidData, len(m.HeightMap), Columns)
	}
	if m.LightLevel > MaxLight {
		return fmt.Errorf("%w: light level %d exceeds %d", ErrInvalidData, m.LightLevel, MaxLight)
	}
	if len(m.Biome) > MaxBiomeLen {
		return fmt.Errorf("%w: biome tag %q longer than %d bytes", ErrInvalidData, m.Biome, MaxBiomeLen)
	}
	for i, h := range m.HeightMap {
		if h < 0 || h > Height {
			return fmt.Errorf("%w: height %d at column %d outside [0, %d]", ErrInvalidData, h, i, Height)
		}
	}
	return nil
}

// Index returns the position of local coordinate (x, y, z) in the dense block array.
// The layout is x fastest, then z, then y; serialized payloads use the same order.
func Index(x, y, z int) int {
	return x + z*Size + (y-MinY)*Size*Size
}

// InBounds reports whether (x, y, z) is a valid local coordinate.
func InBounds(x, y, z int) bool {
	return x >= 0 && x < Size &&
		z >= 0 && z < Size &&
		y >= MinY && y < MaxY
}
