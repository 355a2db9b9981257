package anvil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/astei/voxelchunk/chunk"
)

// World holds every non-empty chunk found in a region directory.
type World struct {
	Chunks map[chunk.Position]*chunk.Chunk
}

// OpenWorld reads every .mca file in dir concurrently. A region that cannot be
// decoded is logged and skipped, as are chunks containing only air.
func OpenWorld(ctx context.Context, dir string, log *slog.Logger) (*World, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read world directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".mca") {
			log.Debug("discovered region", "file", e.Name())
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}

	world := &World{Chunks: make(map[chunk.Position]*chunk.Chunk)}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, path := range paths {
		path := path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			chunks, err := readRegionFile(path)
			if err != nil {
				log.Warn("unable to read region", "file", path, "error", err)
				return nil
			}
			mu.Lock()
			for pos, c := range chunks {
				world.Chunks[pos] = c
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Info("loaded anvil world", "regions", len(paths), "chunks", len(world.Chunks))
	return world, nil
}

func readRegionFile(path string) (map[chunk.Position]*chunk.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	reader, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read region header: %w", err)
	}
	defer reader.Close()
	return readRegion(reader)
}

func readRegion(reader *Reader) (map[chunk.Position]*chunk.Chunk, error) {
	out := make(map[chunk.Position]*chunk.Chunk)
	for z := 0; z < 32; z++ {
		for x := 0; x < 32; x++ {
			if !reader.ChunkExists(x, z) {
				continue
			}
			stream, err := reader.ReadChunk(x, z)
			if err != nil {
				return nil, fmt.Errorf("could not read chunk %d,%d in %s: %w", x, z, reader.Name, err)
			}
			c, err := DecodeChunk(stream)
			stream.Close()
			if err != nil {
				return nil, fmt.Errorf("could not convert chunk %d,%d in %s: %w", x, z, reader.Name, err)
			}
			if c.IsEmpty() {
				continue
			}

			m := c.Metadata()
			m.LastUpdate = int64(reader.Timestamp(x, z)) * 1000
			if c, err = c.WithMetadata(m); err != nil {
				return nil, err
			}
			out[c.Position()] = c
		}
	}
	return out, nil
}

// Positions returns the chunk positions sorted by z, then x.
func (w *World) Positions() []chunk.Position {
	keys := make([]chunk.Position, 0, len(w.Chunks))
	for pos := range w.Chunks {
		keys = append(keys, pos)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Z != keys[j].Z {
			return keys[i].Z < keys[j].Z
		}
		return keys[i].X < keys[j].X
	})
	return keys
}
