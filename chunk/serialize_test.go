package chunk

import (
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSerializeRoundTrip(t *testing.T) {
	fixClock(t, 1234567890123)

	c := New(Position{X: -12, Z: 40})
	c = mustSet(t, c, 1, 2, 3, 42)
	c = mustSet(t, c, 5, 6, 7, 100)
	c = c.RebuildHeightMap()
	m := c.Metadata()
	m.Biome = "taiga"
	m.LightLevel = 9
	c, err := c.WithMetadata(m)
	if err != nil {
		t.Fatalf("WithMetadata failed: %v", err)
	}

	data := c.Serialize()
	if len(data) != SerializedSize {
		t.Fatalf("len(Serialize()) = %d, want %d", len(data), SerializedSize)
	}
	if v := binary.LittleEndian.Uint32(data[0:4]); v != FormatVersion {
		t.Errorf("version tag = %d, want %d", v, FormatVersion)
	}

	got, err := Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if got.Position() != c.Position() {
		t.Errorf("Position() = %v, want %v", got.Position(), c.Position())
	}
	if b := mustBlock(t, got, 1, 2, 3); b != 42 {
		t.Errorf("Block(1,2,3) = %d, want 42", b)
	}
	if b := mustBlock(t, got, 5, 6, 7); b != 100 {
		t.Errorf("Block(5,6,7) = %d, want 100", b)
	}
	if diff := cmp.Diff(c.Metadata(), got.Metadata()); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
	if !got.Dirty() {
		t.Error("dirty flag was not carried through")
	}
	if diff := cmp.Diff(c.Blocks(), got.Blocks()); diff != "" {
		t.Errorf("blocks mismatch (-want +got):\n%s", diff)
	}
}

func TestSerializeCleanChunk(t *testing.T) {
	c := mustSet(t, New(Position{}), 0, 0, 0, 1).MarkSaved()
	got, err := Deserialize(c.Serialize())
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if got.Dirty() {
		t.Error("clean chunk deserialized as dirty")
	}
	if !got.Metadata().Modified {
		t.Error("modified flag was lost")
	}
}

func TestSerializeIsDeterministic(t *testing.T) {
	c := mustSet(t, New(Position{X: 1}), 3, 3, 3, 3)
	a, b := c.Serialize(), c.Serialize()
	if string(a) != string(b) {
		t.Error("Serialize() output differs between calls")
	}
	if len(New(Position{}).Serialize()) != len(a) {
		t.Error("Serialize() size depends on content")
	}
}

func TestSerializeHeaderLayout(t *testing.T) {
	c, err := New(Position{X: 7, Z: -3}).WithMetadata(Metadata{
		Biome:      "ocean",
		LightLevel: 4,
		Modified:   true,
		LastUpdate: 99,
		HeightMap:  make([]int, Columns),
	})
	if err != nil {
		t.Fatalf("WithMetadata failed: %v", err)
	}
	data := c.Serialize()
	le := binary.LittleEndian

	if x := int32(le.Uint32(data[4:])); x != 7 {
		t.Errorf("header X = %d, want 7", x)
	}
	if z := int32(le.Uint32(data[8:])); z != -3 {
		t.Errorf("header Z = %d, want -3", z)
	}
	if data[12] != 4 {
		t.Errorf("header light = %d, want 4", data[12])
	}
	if data[13] != flagModified {
		t.Errorf("header flags = %#x, want %#x", data[13], flagModified)
	}
	if n := le.Uint16(data[14:]); n != 5 {
		t.Errorf("header biome length = %d, want 5", n)
	}
	if ts := int64(le.Uint64(data[16:])); ts != 99 {
		t.Errorf("header last update = %d, want 99", ts)
	}
	if biome := string(data[24:29]); biome != "ocean" {
		t.Errorf("header biome = %q, want ocean", biome)
	}
}

func TestSerializeBlockPayloadOrder(t *testing.T) {
	c := mustSet(t, New(Position{}), 2, MinY+1, 1, 0xBEEF)
	data := c.Serialize()
	off := HeaderSize + 2*Index(2, MinY+1, 1)
	if got := binary.LittleEndian.Uint16(data[off:]); got != 0xBEEF {
		t.Errorf("block at payload offset %d = %#x, want 0xbeef", off, got)
	}
}

func TestDeserializeBufferTooSmall(t *testing.T) {
	_, err := Deserialize(make([]byte, 10))
	var se *SerializationError
	if !errors.As(err, &se) {
		t.Fatalf("Deserialize(10 bytes) error = %v, want *SerializationError", err)
	}
	if !strings.Contains(err.Error(), "Buffer too small") {
		t.Errorf("error = %q, want it to mention Buffer too small", err)
	}
	if !errors.Is(err, ErrCorrupt) {
		t.Error("SerializationError should wrap ErrCorrupt")
	}

	if _, err := Deserialize(make([]byte, SerializedSize-1)); err == nil {
		t.Error("Deserialize(one byte short) succeeded")
	}
}

func TestDeserializeUnsupportedVersion(t *testing.T) {
	data := New(Position{}).Serialize()
	binary.LittleEndian.PutUint32(data[0:], 999)
	_, err := Deserialize(data)
	var se *SerializationError
	if !errors.As(err, &se) {
		t.Fatalf("Deserialize error = %v, want *SerializationError", err)
	}
	if !strings.Contains(err.Error(), "Unsupported version: 999") {
		t.Errorf("error = %q, want it to mention the version", err)
	}
}

func TestDeserializeRejectsMalformedHeader(t *testing.T) {
	mutations := map[string]func([]byte) []byte{
		"trailing data": func(b []byte) []byte { return append(b, 0) },
		"block count": func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[56:], 5)
			return b
		},
		"biome length": func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[14:], MaxBiomeLen+1)
			return b
		},
		"light level": func(b []byte) []byte {
			b[12] = 16
			return b
		},
		"height": func(b []byte) []byte {
			binary.LittleEndian.PutUint16(b[HeaderSize+2*Volume:], Height+1)
			return b
		},
	}
	for name, mutate := range mutations {
		data := mutate(New(Position{}).Serialize())
		if _, err := Deserialize(data); !errors.Is(err, ErrCorrupt) {
			t.Errorf("%s: Deserialize error = %v, want ErrCorrupt", name, err)
		}
	}
}
