// Package anvil imports chunks from pre-flattening Anvil region files (.mca).
package anvil

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

const (
	regionChunks = 32 * 32
	sectorSize   = 4096
)

var ErrNoChunk = errors.New("anvil: chunk not found")
var ErrInvalidChunkLength = errors.New("anvil: invalid chunk length")
var ErrInvalidCompression = errors.New("anvil: invalid compression format")
var ErrOutOfRange = errors.New("anvil: region-relative coordinates out of range")

type Compression byte

const (
	CompressionGzip Compression = 1
	CompressionZlib Compression = 2
)

// Reader reads chunks out of one region file. It is not safe for concurrent use.
type Reader struct {
	source     io.ReadSeeker
	locations  [regionChunks]int32
	timestamps [regionChunks]uint32
	Name       string
}

// NewReader reads the region header from source. Ownership of source passes to
// the reader; Close releases it.
func NewReader(source io.ReadSeeker) (*Reader, error) {
	r := &Reader{source: source}
	if file, ok := source.(*os.File); ok {
		r.Name = file.Name()
	}
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) readHeader() error {
	if _, err := r.source.Seek(0, io.SeekStart); err != nil {
		return err
	}
	raw := make([]byte, 2*sectorSize)
	if _, err := io.ReadFull(r.source, raw); err != nil {
		return err
	}
	in := bytes.NewReader(raw)
	if err := binary.Read(in, binary.BigEndian, r.locations[:]); err != nil {
		return err
	}
	return binary.Read(in, binary.BigEndian, r.timestamps[:])
}

func slot(x, z int) (int, bool) {
	if x < 0 || x >= 32 || z < 0 || z >= 32 {
		return 0, false
	}
	return x + z*32, true
}

// ReadChunk returns a decompressed NBT stream for the chunk at region-relative
// coordinates (x, z), each in [0, 32). The caller closes the stream.
func (r *Reader) ReadChunk(x, z int) (io.ReadCloser, error) {
	i, ok := slot(x, z)
	if !ok {
		return nil, fmt.Errorf("%w: (%d, %d)", ErrOutOfRange, x, z)
	}
	offset := r.locations[i]
	sector := offset >> 8
	occupied := offset & 0xff
	if sector == 0 {
		return nil, ErrNoChunk
	}

	if _, err := r.source.Seek(int64(sector)*sectorSize, io.SeekStart); err != nil {
		return nil, err
	}
	data := make([]byte, int(occupied)*sectorSize)
	if _, err := io.ReadFull(r.source, data); err != nil {
		return nil, err
	}

	in := bytes.NewReader(data)
	var hdr struct {
		Length      int32
		Compression Compression
	}
	if err := binary.Read(in, binary.BigEndian, &hdr); err != nil {
		return nil, err
	}
	if hdr.Length < 1 || hdr.Length > int32(len(data)-4) {
		return nil, ErrInvalidChunkLength
	}

	// Length counts the compression byte already consumed.
	payload := io.LimitReader(in, int64(hdr.Length-1))
	switch hdr.Compression {
	case CompressionGzip:
		gz, err := gzip.NewReader(payload)
		if err != nil {
			return nil, err
		}
		return gz, nil
	case CompressionZlib:
		return zlib.NewReader(payload)
	default:
		return nil, ErrInvalidCompression
	}
}

// ChunkExists reports whether the region holds a chunk at (x, z). Coordinates
// outside the region report false.
func (r *Reader) ChunkExists(x, z int) bool {
	i, ok := slot(x, z)
	return ok && r.locations[i] != 0
}

// Timestamp returns the last-write time of a chunk in seconds since the epoch,
// or 0 for coordinates outside the region.
func (r *Reader) Timestamp(x, z int) uint32 {
	i, ok := slot(x, z)
	if !ok {
		return 0
	}
	return r.timestamps[i]
}

func (r *Reader) Close() error {
	if closer, ok := r.source.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
