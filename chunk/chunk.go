package chunk

import (
	"fmt"
	"unsafe"

	"github.com/willf/bitset"
)

// Sections is the number of 16-block-tall vertical sections in a chunk.
const Sections = Height / Size

// heightEntryBytes counts height map entries as 64-bit on every platform.
const heightEntryBytes = 8

// Chunk is a bounds-checked, immutable view over Data. Every mutating operation
// returns a new Chunk with its own block array; the receiver is never modified,
// so a Chunk may be read from any number of goroutines without locking.
type Chunk struct {
	data Data
}

// New returns an empty (all-air) chunk at pos.
func New(pos Position) *Chunk {
	return &Chunk{data: NewData(pos)}
}

// FromData builds a chunk from an externally produced record, such as one filled in
// by a terrain generator. The record is copied; later changes to d are not observed.
func FromData(d Data) (*Chunk, error) {
	if len(d.Blocks) != Volume {
		return nil, fmt.Errorf("%w: block array has %d entries, want %d", ErrInvalidData, len(d.Blocks), Volume)
	}
	if err := d.Metadata.validate(); err != nil {
		return nil, err
	}
	return &Chunk{data: d.clone()}, nil
}

func (d Data) clone() Data {
	out := d
	out.Blocks = append([]uint16(nil), d.Blocks...)
	out.Metadata = d.Metadata.clone()
	return out
}

func (c *Chunk) Position() Position { return c.data.Position }

// Dirty reports whether the blocks differ from the last persisted or loaded state.
func (c *Chunk) Dirty() bool { return c.data.Dirty }

// Metadata returns a copy of the chunk's metadata, height map included.
func (c *Chunk) Metadata() Metadata { return c.data.Metadata.clone() }

// Blocks returns a copy of the dense block array in Index order.
func (c *Chunk) Blocks() []uint16 {
	return append([]uint16(nil), c.data.Blocks...)
}

// Block returns the block id at local coordinate (x, y, z).
func (c *Chunk) Block(x, y, z int) (uint16, error) {
	if !InBounds(x, y, z) {
		return 0, &BoundsError{Op: "get", X: x, Y: y, Z: z}
	}
	return c.data.Blocks[Index(x, y, z)], nil
}

// SetBlock returns a copy of the chunk with id written at (x, y, z).
func (c *Chunk) SetBlock(x, y, z int, id uint16) (*Chunk, error) {
	if !InBounds(x, y, z) {
		return nil, &BoundsError{Op: "set", X: x, Y: y, Z: z}
	}
	next := c.Clone()
	next.data.Blocks[Index(x, y, z)] = id
	next.touch()
	return next, nil
}

// FillRegion returns a copy of the chunk with every cell of the inclusive cuboid
// spanned by the two corners set to id. Corners may be given in either order.
// If any part of the region lies outside the chunk nothing is written.
func (c *Chunk) FillRegion(x0, y0, z0, x1, y1, z1 int, id uint16) (*Chunk, error) {
	sx, ex := span(x0, x1)
	sy, ey := span(y0, y1)
	sz, ez := span(z0, z1)
	if !InBounds(sx, sy, sz) || !InBounds(ex, ey, ez) {
		return nil, &BoundsError{Op: "fill", X: x0, Y: y0, Z: z0, X1: x1, Y1: y1, Z1: z1}
	}

	next := c.Clone()
	for y := sy; y <= ey; y++ {
		for z := sz; z <= ez; z++ {
			row := next.data.Blocks[Index(sx, y, z) : Index(ex, y, z)+1]
			for i := range row {
				row[i] = id
			}
		}
	}
	next.touch()
	return next, nil
}

func span(a, b int) (int, int) {
	if a > b {
		return b, a
	}
	return a, b
}

// touch marks a freshly cloned chunk as modified. Only called before the chunk
// is handed out.
func (c *Chunk) touch() {
	c.data.Dirty = true
	c.data.Metadata.Modified = true
	c.data.Metadata.LastUpdate = now()
}

// IsEmpty reports whether every cell is air.
func (c *Chunk) IsEmpty() bool {
	for _, b := range c.data.Blocks {
		if b != 0 {
			return false
		}
	}
	return true
}

func (c *Chunk) NonAirCount() int {
	n := 0
	for _, b := range c.data.Blocks {
		if b != 0 {
			n++
		}
	}
	return n
}

// SectionMask returns a bit set with bit i set when section i, covering
// y in [MinY+16i, MinY+16i+16), holds at least one non-air block.
func (c *Chunk) SectionMask() *bitset.BitSet {
	mask := bitset.New(Sections)
	const sectionCells = Size * Size * Size
	for i := 0; i < Sections; i++ {
		for _, b := range c.data.Blocks[i*sectionCells : (i+1)*sectionCells] {
			if b != 0 {
				mask.Set(uint(i))
				break
			}
		}
	}
	return mask
}

// MemoryUsage estimates the bytes retained by the chunk. The arrays are fixed
// size, so the result only depends on the biome tag length.
func (c *Chunk) MemoryUsage() int {
	return int(unsafe.Sizeof(*c)) +
		cap(c.data.Blocks)*2 +
		cap(c.data.Metadata.HeightMap)*heightEntryBytes +
		len(c.data.Metadata.Biome)
}

// Clone returns a deep copy sharing no arrays with c.
func (c *Chunk) Clone() *Chunk {
	return &Chunk{data: c.data.clone()}
}

// WithMetadata returns a copy of the chunk carrying m. The block array and dirty
// flag are unchanged.
func (c *Chunk) WithMetadata(m Metadata) (*Chunk, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	next := c.Clone()
	next.data.Metadata = m.clone()
	return next, nil
}

// MarkSaved returns a copy of the chunk with the dirty flag cleared. Persistence
// calls it once the chunk's bytes have been written.
func (c *Chunk) MarkSaved() *Chunk {
	next := c.Clone()
	next.data.Dirty = false
	return next
}

// RebuildHeightMap returns a copy of the chunk with the height map recomputed
// from the block array.
func (c *Chunk) RebuildHeightMap() *Chunk {
	next := c.Clone()
	hm := next.data.Metadata.HeightMap
	for z := 0; z < Size; z++ {
		for x := 0; x < Size; x++ {
			h := 0
			for y := MaxY - 1; y >= MinY; y-- {
				if next.data.Blocks[Index(x, y, z)] != 0 {
					h = y - MinY + 1
					break
				}
			}
			hm[x+z*Size] = h
		}
	}
	return next
}
