package chunk

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCompressEmptyChunk(t *testing.T) {
	data := New(Position{}).Compress()
	if len(data) == 0 || len(data)%RunSize != 0 {
		t.Fatalf("len(Compress()) = %d, want non-empty multiple of %d", len(data), RunSize)
	}
	// 98304 cells of air: one full run of 65535 plus the remainder.
	if len(data) != 2*RunSize {
		t.Errorf("len(Compress()) = %d, want %d", len(data), 2*RunSize)
	}
	if n := binary.LittleEndian.Uint16(data[2:]); n != 65535 {
		t.Errorf("first run length = %d, want 65535", n)
	}
	if n := binary.LittleEndian.Uint16(data[6:]); n != Volume-65535 {
		t.Errorf("second run length = %d, want %d", n, Volume-65535)
	}
}

func TestCompressRatio(t *testing.T) {
	uniform, err := New(Position{}).FillRegion(0, MinY, 0, Size-1, MaxY-1, Size-1, 1)
	if err != nil {
		t.Fatalf("FillRegion failed: %v", err)
	}
	if c, s := len(uniform.Compress()), len(uniform.Serialize()); c*10 >= s {
		t.Errorf("uniform chunk compressed to %d of %d bytes, want under 10%%", c, s)
	}

	sparse := New(Position{})
	for i := 0; i < 100; i++ {
		sparse = mustSet(t, sparse, (i*7)%Size, MinY+(i*37)%Height, (i*11)%Size, uint16(i+1))
	}
	if c, s := len(sparse.Compress()), len(sparse.Serialize()); c*2 >= s {
		t.Errorf("sparse chunk compressed to %d of %d bytes, want under 50%%", c, s)
	}
}

func TestCompressRoundTrip(t *testing.T) {
	c := New(Position{})
	c, err := c.FillRegion(0, MinY, 0, 15, -1, 15, 1)
	if err != nil {
		t.Fatalf("FillRegion failed: %v", err)
	}
	c = mustSet(t, c, 5, 5, 5, 2)
	c = mustSet(t, c, 15, 319, 15, 3)
	for i := 0; i < 300; i++ {
		c = mustSet(t, c, i%Size, 100+i%50, (i/3)%Size, uint16(i%9))
	}

	got, err := Decompress(c.Compress())
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	for y := MinY; y < MaxY; y++ {
		for z := 0; z < Size; z++ {
			for x := 0; x < Size; x++ {
				if a, b := mustBlock(t, c, x, y, z), mustBlock(t, got, x, y, z); a != b {
					t.Fatalf("Block(%d,%d,%d) = %d after round trip, want %d", x, y, z, b, a)
				}
			}
		}
	}
	if got.Dirty() {
		t.Error("decompressed chunk should not be dirty")
	}
}

func TestCompressSplitsLongRuns(t *testing.T) {
	blocks := make([]uint16, Volume)
	for i := range blocks {
		blocks[i] = 5
	}
	data := EncodeRLE(blocks)
	if len(data) != 2*RunSize {
		t.Fatalf("len(EncodeRLE) = %d, want %d", len(data), 2*RunSize)
	}
	if a, b := binary.LittleEndian.Uint16(data[0:]), binary.LittleEndian.Uint16(data[4:]); a != 5 || b != 5 {
		t.Errorf("split runs carry ids %d and %d, want 5 and 5", a, b)
	}
}

func TestDecompressAtKeepsPosition(t *testing.T) {
	src := mustSet(t, New(Position{X: 4, Z: 5}), 0, 0, 0, 1)
	got, err := DecompressAt(src.Position(), src.Compress())
	if err != nil {
		t.Fatalf("DecompressAt failed: %v", err)
	}
	if got.Position() != src.Position() {
		t.Errorf("Position() = %v, want %v", got.Position(), src.Position())
	}
	if diff := cmp.Diff(src.Blocks(), got.Blocks()); diff != "" {
		t.Errorf("blocks mismatch (-want +got):\n%s", diff)
	}
}

func TestDecompressInvalidLength(t *testing.T) {
	for _, n := range []int{0, 1, 3, 5, 4099} {
		_, err := Decompress(make([]byte, n))
		var se *SerializationError
		if !errors.As(err, &se) {
			t.Errorf("Decompress(%d bytes) error = %v, want *SerializationError", n, err)
		}
	}
}

func run(id, n uint16) []byte {
	var b [RunSize]byte
	binary.LittleEndian.PutUint16(b[0:], id)
	binary.LittleEndian.PutUint16(b[2:], n)
	return b[:]
}

func TestDecompressFillMismatch(t *testing.T) {
	short := run(1, 100)
	if _, err := Decompress(short); !errors.Is(err, ErrCorrupt) {
		t.Errorf("underfilled stream error = %v, want ErrCorrupt", err)
	}

	var long []byte
	long = append(long, run(0, 65535)...)
	long = append(long, run(0, 65535)...)
	if _, err := Decompress(long); !errors.Is(err, ErrCorrupt) {
		t.Errorf("overfilled stream error = %v, want ErrCorrupt", err)
	}

	var zero []byte
	zero = append(zero, run(0, 0)...)
	zero = append(zero, New(Position{}).Compress()...)
	if _, err := Decompress(zero); !errors.Is(err, ErrCorrupt) {
		t.Errorf("zero-length run error = %v, want ErrCorrupt", err)
	}
}
