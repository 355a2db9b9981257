package chunk

import (
	"errors"
	"fmt"
)

var ErrOutOfBounds = errors.New("chunk: coordinates out of bounds")
var ErrCorrupt = errors.New("chunk: corrupt or unsupported data")
var ErrInvalidData = errors.New("chunk: invalid chunk data")

// BoundsError reports a coordinate or region outside the chunk's fixed dimensions.
// For region operations X1, Y1, Z1 hold the second corner as given by the caller.
type BoundsError struct {
	Op         string
	X, Y, Z    int
	X1, Y1, Z1 int
}

func (e *BoundsError) Error() string {
	switch e.Op {
	case "set":
		return fmt.Sprintf("Failed to set block at (%d, %d, %d): Invalid coordinates: (%d, %d, %d)",
			e.X, e.Y, e.Z, e.X, e.Y, e.Z)
	case "fill":
		return fmt.Sprintf("Failed to fill region (%d, %d, %d) to (%d, %d, %d): region exceeds x,z in [0, %d), y in [%d, %d)",
			e.X, e.Y, e.Z, e.X1, e.Y1, e.Z1, Size, MinY, MaxY)
	default:
		return fmt.Sprintf("Invalid coordinates: (%d, %d, %d)", e.X, e.Y, e.Z)
	}
}

func (e *BoundsError) Unwrap() error { return ErrOutOfBounds }

// SerializationError reports structurally invalid input to one of the decoders.
type SerializationError struct {
	Op  string
	Msg string
}

func (e *SerializationError) Error() string {
	return "chunk " + e.Op + ": " + e.Msg
}

func (e *SerializationError) Unwrap() error { return ErrCorrupt }

func serializationErrorf(op, format string, args ...interface{}) error {
	return &SerializationError{Op: op, Msg: fmt.Sprintf(format, args...)}
}
