package chunk

import (
	"bytes"
	"encoding/binary"
)

// FormatVersion is the only version Deserialize accepts.
const FormatVersion = 1

const (
	HeaderSize     = 64
	SerializedSize = HeaderSize + Volume*2 + Columns*2
)

const (
	flagModified = 1 << 0
	flagDirty    = 1 << 1
)

// header is the fixed 64-byte prefix of the serialized format, little-endian,
// laid out in field order with no padding.
type header struct {
	Version     uint32
	X           int32
	Z           int32
	LightLevel  uint8
	Flags       uint8
	BiomeLen    uint16
	LastUpdate  int64
	Biome       [MaxBiomeLen]byte
	BlockCount  uint32
	HeightCount uint32
}

func (h *header) put(b []byte) {
	le := binary.LittleEndian
	le.PutUint32(b[0:], h.Version)
	le.PutUint32(b[4:], uint32(h.X))
	le.PutUint32(b[8:], uint32(h.Z))
	b[12] = h.LightLevel
	b[13] = h.Flags
	le.PutUint16(b[14:], h.BiomeLen)
	le.PutUint64(b[16:], uint64(h.LastUpdate))
	copy(b[24:24+MaxBiomeLen], h.Biome[:])
	le.PutUint32(b[56:], h.BlockCount)
	le.PutUint32(b[60:], h.HeightCount)
}

// Serialize encodes the chunk in the uncompressed binary format: the header,
// then Volume block ids in Index order, then Columns heights.
func (c *Chunk) Serialize() []byte {
	d := &c.data
	h := header{
		Version:     FormatVersion,
		X:           d.Position.X,
		Z:           d.Position.Z,
		LightLevel:  d.Metadata.LightLevel,
		BiomeLen:    uint16(len(d.Metadata.Biome)),
		LastUpdate:  d.Metadata.LastUpdate,
		BlockCount:  Volume,
		HeightCount: Columns,
	}
	if d.Metadata.Modified {
		h.Flags |= flagModified
	}
	if d.Dirty {
		h.Flags |= flagDirty
	}
	copy(h.Biome[:], d.Metadata.Biome)

	out := make([]byte, SerializedSize)
	h.put(out)

	off := HeaderSize
	for _, b := range d.Blocks {
		binary.LittleEndian.PutUint16(out[off:], b)
		off += 2
	}
	for _, height := range d.Metadata.HeightMap {
		binary.LittleEndian.PutUint16(out[off:], uint16(height))
		off += 2
	}
	return out
}

// Deserialize decodes a buffer produced by Serialize. The dirty flag of the
// returned chunk is the one that was encoded.
func Deserialize(data []byte) (*Chunk, error) {
	const op = "deserialize"
	if len(data) < SerializedSize {
		return nil, serializationErrorf(op, "Buffer too small: got %d bytes, need %d", len(data), SerializedSize)
	}

	var h header
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.LittleEndian, &h); err != nil {
		return nil, serializationErrorf(op, "read header: %v", err)
	}
	if h.Version != FormatVersion {
		return nil, serializationErrorf(op, "Unsupported version: %d", h.Version)
	}
	if len(data) > SerializedSize {
		return nil, serializationErrorf(op, "unexpected %d trailing bytes", len(data)-SerializedSize)
	}
	if h.BlockCount != Volume || h.HeightCount != Columns {
		return nil, serializationErrorf(op, "dimension mismatch: %d blocks and %d heights, want %d and %d",
			h.BlockCount, h.HeightCount, Volume, Columns)
	}
	if h.BiomeLen > MaxBiomeLen {
		return nil, serializationErrorf(op, "biome tag length %d exceeds %d", h.BiomeLen, MaxBiomeLen)
	}
	if h.LightLevel > MaxLight {
		return nil, serializationErrorf(op, "light level %d exceeds %d", h.LightLevel, MaxLight)
	}

	d := Data{
		Position: Position{X: h.X, Z: h.Z},
		Blocks:   make([]uint16, Volume),
		Metadata: Metadata{
			Biome:      string(h.Biome[:h.BiomeLen]),
			LightLevel: h.LightLevel,
			Modified:   h.Flags&flagModified != 0,
			LastUpdate: h.LastUpdate,
			HeightMap:  make([]int, Columns),
		},
		Dirty: h.Flags&flagDirty != 0,
	}

	off := HeaderSize
	for i := range d.Blocks {
		d.Blocks[i] = binary.LittleEndian.Uint16(data[off:])
		off += 2
	}
	for i := range d.Metadata.HeightMap {
		height := int(binary.LittleEndian.Uint16(data[off:]))
		if height > Height {
			return nil, serializationErrorf(op, "height %d at column %d exceeds %d", height, i, Height)
		}
		d.Metadata.HeightMap[i] = height
		off += 2
	}
	return &Chunk{data: d}, nil
}
