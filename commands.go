package main

import (
	"fmt"
	"os"
	"strconv"

	getter "github.com/hashicorp/go-getter"
	"github.com/urfave/cli/v2"

	"github.com/astei/voxelchunk/anvil"
	"github.com/astei/voxelchunk/archive"
	"github.com/astei/voxelchunk/chunk"
	"github.com/astei/voxelchunk/gen"
)

func convertCommand() *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "converts a legacy Anvil region directory into an archive",
		ArgsUsage: "<world-dir> <out.vxa>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "fetch",
				Usage:   "treat <world-dir> as a go-getter source (git::, s3::, https://...) and download it first",
				EnvVars: []string{"VOXELCHUNK_FETCH"},
			},
		},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 2); err != nil {
				return err
			}
			log := contextLogger(c)
			src, out := c.Args().Get(0), c.Args().Get(1)

			if c.Bool("fetch") {
				dir, err := os.MkdirTemp("", "voxelchunk-world-")
				if err != nil {
					return fmt.Errorf("create download dir: %w", err)
				}
				defer os.RemoveAll(dir)

				log.Info("fetching world", "source", src)
				client := &getter.Client{
					Ctx:  c.Context,
					Src:  src,
					Dst:  dir,
					Mode: getter.ClientModeDir,
				}
				if err := client.Get(); err != nil {
					return fmt.Errorf("fetch world: %w", err)
				}
				src = dir
			}

			world, err := anvil.OpenWorld(c.Context, src, log)
			if err != nil {
				return err
			}
			if len(world.Chunks) == 0 {
				return fmt.Errorf("no chunks found in %s", src)
			}

			chunks := make([]*chunk.Chunk, 0, len(world.Chunks))
			for _, pos := range world.Positions() {
				chunks = append(chunks, world.Chunks[pos])
			}
			if err := archive.WriteFile(out, chunks); err != nil {
				return fmt.Errorf("write archive: %w", err)
			}
			log.Info("wrote archive", "path", out, "chunks", len(chunks))
			return nil
		},
	}
}

func generateCommand() *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "generates a flat world of (2r+1)^2 chunks centred on (0, 0)",
		ArgsUsage: "<out.vxa>",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "radius",
				Aliases: []string{"r"},
				Value:   2,
				Usage:   "world radius in chunks",
				EnvVars: []string{"VOXELCHUNK_RADIUS"},
			},
			&cli.StringFlag{
				Name:  "biome",
				Value: chunk.DefaultBiome,
				Usage: "biome tag for every chunk",
			},
		},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 1); err != nil {
				return err
			}
			radius := c.Int("radius")
			if radius < 0 {
				return fmt.Errorf("radius must not be negative, got %d", radius)
			}
			log := contextLogger(c)

			generator := gen.NewFlatGenerator(0)
			generator.Biome = c.String("biome")

			var chunks []*chunk.Chunk
			for cz := -radius; cz <= radius; cz++ {
				for cx := -radius; cx <= radius; cx++ {
					ch, err := generator.Generate(chunk.Position{X: int32(cx), Z: int32(cz)})
					if err != nil {
						return err
					}
					chunks = append(chunks, ch.MarkSaved())
				}
			}

			out := c.Args().Get(0)
			if err := archive.WriteFile(out, chunks); err != nil {
				return fmt.Errorf("write archive: %w", err)
			}
			log.Info("generated world", "path", out, "chunks", len(chunks))
			return nil
		},
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "prints a summary of every chunk in an archive",
		ArgsUsage: "<archive>",
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 1); err != nil {
				return err
			}
			chunks, err := archive.ReadFile(c.Args().Get(0))
			if err != nil {
				return err
			}
			sortChunks(chunks)

			w := c.App.Writer
			fmt.Fprintf(w, "%-14s %-16s %8s %-26s %8s %8s\n", "POSITION", "BIOME", "NON-AIR", "SECTIONS", "RLE", "MEMORY")
			for _, ch := range chunks {
				fmt.Fprintf(w, "%-14s %-16s %8d %-26s %8d %8d\n",
					ch.Position(),
					ch.Metadata().Biome,
					ch.NonAirCount(),
					sectionString(ch),
					len(ch.Compress()),
					ch.MemoryUsage(),
				)
			}
			return nil
		},
	}
}

// sectionString renders the section mask bottom-up, one character per section.
func sectionString(c *chunk.Chunk) string {
	mask := c.SectionMask()
	out := make([]byte, chunk.Sections)
	for i := range out {
		if mask.Test(uint(i)) {
			out[i] = '#'
		} else {
			out[i] = '.'
		}
	}
	return string(out)
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "writes one chunk of an archive in the binary or RLE format",
		ArgsUsage: "<archive> <x> <z> <out>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "format",
				Value: "binary",
				Usage: "output format: binary or rle",
			},
		},
		Action: func(c *cli.Context) error {
			if err := requireArgs(c, 4); err != nil {
				return err
			}
			pos, err := parsePosition(c.Args().Get(1), c.Args().Get(2))
			if err != nil {
				return err
			}
			chunks, err := archive.ReadFile(c.Args().Get(0))
			if err != nil {
				return err
			}

			for _, ch := range chunks {
				if ch.Position() != pos {
					continue
				}
				data, err := encodeChunk(ch, c.String("format"))
				if err != nil {
					return err
				}
				return os.WriteFile(c.Args().Get(3), data, 0o644)
			}
			return fmt.Errorf("chunk %v not found", pos)
		},
	}
}

func encodeChunk(c *chunk.Chunk, format string) ([]byte, error) {
	switch format {
	case "binary", "":
		return c.Serialize(), nil
	case "rle":
		return c.Compress(), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

func parsePosition(xs, zs string) (chunk.Position, error) {
	x, err := strconv.ParseInt(xs, 10, 32)
	if err != nil {
		return chunk.Position{}, fmt.Errorf("invalid chunk x %q: %w", xs, err)
	}
	z, err := strconv.ParseInt(zs, 10, 32)
	if err != nil {
		return chunk.Position{}, fmt.Errorf("invalid chunk z %q: %w", zs, err)
	}
	return chunk.Position{X: int32(x), Z: int32(z)}, nil
}
