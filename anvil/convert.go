package anvil

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/Tnze/go-mc/nbt"

	"github.com/astei/voxelchunk/chunk"
)

// ErrUnsupportedFormat is returned for chunks saved after the block flattening,
// which store palettes instead of raw block id arrays.
var ErrUnsupportedFormat = errors.New("anvil: chunk is not in the legacy section format")

const (
	legacySections    = 16
	legacySectionSize = 16 * 16 * 16
	legacyColumns     = 16 * 16
)

type chunkRoot struct {
	Level level `nbt:"Level"`
}

type level struct {
	X         int32     `nbt:"xPos"`
	Z         int32     `nbt:"zPos"`
	HeightMap []int32   `nbt:"HeightMap"`
	Biomes    []byte    `nbt:"Biomes"`
	Sections  []section `nbt:"Sections"`
}

type section struct {
	Y      int8   `nbt:"Y"`
	Blocks []byte `nbt:"Blocks"`
	Add    []byte `nbt:"Add"`
	Data   []byte `nbt:"Data"`
}

// legacyBiomes names the biome ids that appear most often in old worlds.
var legacyBiomes = map[byte]string{
	0:  "ocean",
	1:  "plains",
	2:  "desert",
	3:  "extreme_hills",
	4:  "forest",
	5:  "taiga",
	6:  "swampland",
	7:  "river",
	8:  "hell",
	9:  "sky",
	10: "frozen_ocean",
	11: "frozen_river",
	12: "ice_plains",
	14: "mushroom_island",
	16: "beach",
	21: "jungle",
	24: "deep_ocean",
	27: "birch_forest",
	29: "roofed_forest",
	30: "cold_taiga",
	35: "savanna",
	37: "mesa",
}

// DecodeChunk reads one legacy chunk NBT stream and converts it. Block ids
// become id<<4 | meta and keep their world y, which lies inside the chunk's
// vertical range. The result carries a rebuilt height map and is not dirty.
func DecodeChunk(r io.Reader) (*chunk.Chunk, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read chunk nbt: %w", err)
	}
	var root chunkRoot
	if err := nbt.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("decode chunk nbt: %w", err)
	}
	return convertLevel(&root.Level)
}

func convertLevel(lv *level) (*chunk.Chunk, error) {
	d := chunk.NewData(chunk.Position{X: lv.X, Z: lv.Z})
	for _, sec := range lv.Sections {
		if sec.Y < 0 || sec.Y >= legacySections {
			return nil, fmt.Errorf("chunk %d,%d: section y %d out of range", lv.X, lv.Z, sec.Y)
		}
		if len(sec.Blocks) != legacySectionSize {
			return nil, fmt.Errorf("chunk %d,%d section %d: %w", lv.X, lv.Z, sec.Y, ErrUnsupportedFormat)
		}
		if len(sec.Add) != 0 && len(sec.Add) != legacySectionSize/2 {
			return nil, fmt.Errorf("chunk %d,%d section %d: invalid Add array size %d", lv.X, lv.Z, sec.Y, len(sec.Add))
		}
		if len(sec.Data) != 0 && len(sec.Data) != legacySectionSize/2 {
			return nil, fmt.Errorf("chunk %d,%d section %d: invalid Data array size %d", lv.X, lv.Z, sec.Y, len(sec.Data))
		}

		baseY := int(sec.Y) * 16
		for i, b := range sec.Blocks {
			id := uint16(b) | uint16(nibble(sec.Add, i))<<8
			if id == 0 {
				continue
			}
			state := id<<4 | uint16(nibble(sec.Data, i))
			lx, lz, ly := i&0xF, (i>>4)&0xF, i>>8
			d.Blocks[chunk.Index(lx, baseY+ly, lz)] = state
		}
	}

	if len(lv.Biomes) == legacyColumns {
		d.Metadata.Biome = dominantBiome(lv.Biomes)
	}

	c, err := chunk.FromData(d)
	if err != nil {
		return nil, fmt.Errorf("chunk %d,%d: %w", lv.X, lv.Z, err)
	}
	return c.RebuildHeightMap(), nil
}

// nibble returns the 4-bit value at index i of a packed nibble array; even
// indices use the low nibble. A missing array reads as zero.
func nibble(arr []byte, i int) byte {
	if len(arr) == 0 {
		return 0
	}
	b := arr[i>>1]
	if i&1 == 0 {
		return b & 0x0F
	}
	return b >> 4
}

func dominantBiome(biomes []byte) string {
	var counts [256]int
	best := biomes[0]
	for _, b := range biomes {
		counts[b]++
		if counts[b] > counts[best] {
			best = b
		}
	}
	if name, ok := legacyBiomes[best]; ok {
		return name
	}
	return "biome_" + strconv.Itoa(int(best))
}
