// Package nbt writes big-endian NBT, the tag format Minecraft uses for chunk and
// level data. Values are described with Go structs and `nbt:"name"` field tags.
package nbt

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"reflect"
)

// Marshal writes v as an unnamed root compound.
func Marshal(w io.Writer, v interface{}) error {
	return NewEncoder(w).Encode(v)
}

// Encoder writes NBT to an underlying writer.
type Encoder struct {
	w   io.Writer
	buf [8]byte
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes v, which must be a struct or a string-keyed map, as the root
// compound.
func (e *Encoder) Encode(v interface{}) error {
	val := indirect(reflect.ValueOf(v))
	if k := val.Kind(); k != reflect.Struct && k != reflect.Map {
		return fmt.Errorf("nbt: root must be a compound, got %v", k)
	}
	return e.writeNamed(val, "")
}

func indirect(val reflect.Value) reflect.Value {
	for val.Kind() == reflect.Ptr || val.Kind() == reflect.Interface {
		if val.IsNil() {
			return val
		}
		val = val.Elem()
	}
	return val
}

// tagOf returns the tag a value of type t is written as.
func tagOf(t reflect.Type) (byte, error) {
	switch t.Kind() {
	case reflect.Bool, reflect.Int8, reflect.Uint8:
		return TagByte, nil
	case reflect.Int16, reflect.Uint16:
		return TagShort, nil
	case reflect.Int32, reflect.Uint32:
		return TagInt, nil
	case reflect.Int, reflect.Int64, reflect.Uint64:
		return TagLong, nil
	case reflect.Float32:
		return TagFloat, nil
	case reflect.Float64:
		return TagDouble, nil
	case reflect.String:
		return TagString, nil
	case reflect.Struct:
		return TagCompound, nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return 0, fmt.Errorf("nbt: map key must be a string, got %v", t)
		}
		return TagCompound, nil
	case reflect.Ptr:
		return tagOf(t.Elem())
	case reflect.Array, reflect.Slice:
		switch t.Elem().Kind() {
		case reflect.Int8, reflect.Uint8:
			return TagByteArray, nil
		case reflect.Int32, reflect.Uint32:
			return TagIntArray, nil
		case reflect.Int64, reflect.Uint64:
			return TagLongArray, nil
		}
		return TagList, nil
	}
	return 0, fmt.Errorf("nbt: unsupported type %v", t)
}

func (e *Encoder) writeNamed(val reflect.Value, name string) error {
	val = indirect(val)
	if !val.IsValid() || (val.Kind() == reflect.Ptr && val.IsNil()) {
		return fmt.Errorf("nbt: nil value for tag %q", name)
	}
	tag, err := tagOf(val.Type())
	if err != nil {
		return fmt.Errorf("%w (tag %q)", err, name)
	}
	if err := e.writeByte(tag); err != nil {
		return err
	}
	if err := e.writeString(name); err != nil {
		return err
	}
	return e.writePayload(val, tag)
}

func (e *Encoder) writePayload(val reflect.Value, tag byte) error {
	val = indirect(val)
	switch tag {
	case TagByte:
		if val.Kind() == reflect.Bool {
			if val.Bool() {
				return e.writeByte(1)
			}
			return e.writeByte(0)
		}
		return e.writeByte(byte(intBits(val)))
	case TagShort:
		return e.writeUint16(uint16(intBits(val)))
	case TagInt:
		return e.writeUint32(uint32(intBits(val)))
	case TagLong:
		return e.writeUint64(uint64(intBits(val)))
	case TagFloat:
		return e.writeUint32(math.Float32bits(float32(val.Float())))
	case TagDouble:
		return e.writeUint64(math.Float64bits(val.Float()))
	case TagString:
		return e.writeString(val.String())
	case TagByteArray, TagIntArray, TagLongArray:
		return e.writeArray(val, tag)
	case TagList:
		return e.writeList(val)
	case TagCompound:
		if val.Kind() == reflect.Map {
			return e.writeMap(val)
		}
		return e.writeStruct(val)
	}
	return fmt.Errorf("nbt: cannot write tag type %d", tag)
}

// intBits returns the two's complement bits of any integer kind.
func intBits(val reflect.Value) int64 {
	switch val.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return int64(val.Uint())
	default:
		return val.Int()
	}
}

func (e *Encoder) writeArray(val reflect.Value, tag byte) error {
	n := val.Len()
	if err := e.writeUint32(uint32(n)); err != nil {
		return err
	}
	if tag == TagByteArray && val.Type().Elem().Kind() == reflect.Uint8 && val.Kind() == reflect.Slice {
		_, err := e.w.Write(val.Bytes())
		return err
	}
	elem := map[byte]byte{TagByteArray: TagByte, TagIntArray: TagInt, TagLongArray: TagLong}[tag]
	for i := 0; i < n; i++ {
		if err := e.writePayload(val.Index(i), elem); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) writeList(val reflect.Value) error {
	if val.Type().Elem().Kind() == reflect.Interface {
		concrete, err := concreteSlice(val)
		if err != nil {
			return err
		}
		if !concrete.IsValid() {
			// Empty lists are typed TagEnd.
			if err := e.writeByte(TagEnd); err != nil {
				return err
			}
			return e.writeUint32(0)
		}
		val = concrete
	}

	elem, err := tagOf(val.Type().Elem())
	if err != nil {
		return err
	}
	n := val.Len()
	if err := e.writeByte(elem); err != nil {
		return err
	}
	if err := e.writeUint32(uint32(n)); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := e.writePayload(val.Index(i), elem); err != nil {
			return err
		}
	}
	return nil
}

// concreteSlice copies a []interface{} whose elements share one dynamic type
// into a slice of that type. It returns the zero Value for an empty slice.
func concreteSlice(val reflect.Value) (reflect.Value, error) {
	n := val.Len()
	var elem reflect.Type
	for i := 0; i < n; i++ {
		v := val.Index(i).Elem()
		if !v.IsValid() {
			return reflect.Value{}, fmt.Errorf("nbt: nil element %d in list", i)
		}
		switch {
		case elem == nil:
			elem = v.Type()
		case elem != v.Type():
			return reflect.Value{}, fmt.Errorf("nbt: mixed list element types %v and %v", elem, v.Type())
		}
	}
	if elem == nil {
		return reflect.Value{}, nil
	}

	out := reflect.MakeSlice(reflect.SliceOf(elem), n, n)
	for i := 0; i < n; i++ {
		out.Index(i).Set(val.Index(i).Elem())
	}
	return out, nil
}

func (e *Encoder) writeStruct(val reflect.Value) error {
	t := val.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		name, ok := f.Tag.Lookup("nbt")
		if name == "-" || (f.PkgPath != "" && !f.Anonymous) {
			continue
		}
		if !ok || name == "" {
			name = f.Name
		}
		if err := e.writeNamed(val.Field(i), name); err != nil {
			return err
		}
	}
	return e.writeByte(TagEnd)
}

func (e *Encoder) writeMap(val reflect.Value) error {
	iter := val.MapRange()
	for iter.Next() {
		if err := e.writeNamed(iter.Value(), iter.Key().String()); err != nil {
			return err
		}
	}
	return e.writeByte(TagEnd)
}

func (e *Encoder) writeString(s string) error {
	if len(s) > math.MaxUint16 {
		return fmt.Errorf("nbt: string of %d bytes is too long", len(s))
	}
	if err := e.writeUint16(uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(e.w, s)
	return err
}

func (e *Encoder) writeByte(b byte) error {
	e.buf[0] = b
	_, err := e.w.Write(e.buf[:1])
	return err
}

func (e *Encoder) writeUint16(n uint16) error {
	binary.BigEndian.PutUint16(e.buf[:2], n)
	_, err := e.w.Write(e.buf[:2])
	return err
}

func (e *Encoder) writeUint32(n uint32) error {
	binary.BigEndian.PutUint32(e.buf[:4], n)
	_, err := e.w.Write(e.buf[:4])
	return err
}

func (e *Encoder) writeUint64(n uint64) error {
	binary.BigEndian.PutUint64(e.buf[:8], n)
	_, err := e.w.Write(e.buf[:8])
	return err
}
