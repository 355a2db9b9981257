// Package gen produces chunks for new worlds.
package gen

import (
	"fmt"

	"github.com/astei/voxelchunk/chunk"
)

// Block states use the legacy id<<4 | meta encoding.
const (
	BlockAir     = 0
	BlockStone   = 1 << 4
	BlockGrass   = 2 << 4
	BlockDirt    = 3 << 4
	BlockBedrock = 7 << 4
)

// Generator produces chunk data deterministically.
type Generator interface {
	Generate(pos chunk.Position) (*chunk.Chunk, error)
	HeightAt(blockX, blockZ int) int
}

// Layer is a horizontal band of one block, stacked from the bottom of the chunk.
type Layer struct {
	Block     uint16
	Thickness int
}

// FlatGenerator generates a superflat world: bedrock at the floor, then stone,
// three layers of dirt, and grass.
type FlatGenerator struct {
	Layers []Layer
	Biome  string
}

// NewFlatGenerator creates a FlatGenerator with the default layers. Flat worlds
// ignore the seed.
func NewFlatGenerator(_ int64) *FlatGenerator {
	return &FlatGenerator{
		Layers: []Layer{
			{Block: BlockBedrock, Thickness: 1},
			{Block: BlockStone, Thickness: 123},
			{Block: BlockDirt, Thickness: 3},
			{Block: BlockGrass, Thickness: 1},
		},
		Biome: chunk.DefaultBiome,
	}
}

func (g *FlatGenerator) Generate(pos chunk.Position) (*chunk.Chunk, error) {
	c := chunk.New(pos)
	y := chunk.MinY
	for _, l := range g.Layers {
		if l.Thickness <= 0 {
			continue
		}
		top := y + l.Thickness - 1
		next, err := c.FillRegion(0, y, 0, chunk.Size-1, top, chunk.Size-1, l.Block)
		if err != nil {
			return nil, fmt.Errorf("generate layer at y=%d: %w", y, err)
		}
		c = next
		y = top + 1
	}

	m := c.Metadata()
	m.Biome = g.Biome
	c, err := c.WithMetadata(m)
	if err != nil {
		return nil, err
	}
	return c.RebuildHeightMap(), nil
}

// HeightAt returns the y of the topmost solid block, or MinY-1 for a world
// without layers.
func (g *FlatGenerator) HeightAt(_, _ int) int {
	h := chunk.MinY - 1
	for _, l := range g.Layers {
		if l.Thickness > 0 {
			h += l.Thickness
		}
	}
	return h
}
