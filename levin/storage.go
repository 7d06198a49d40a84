// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package levin

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

// Portable storage signatures and version.
const (
	storageSignatureA uint32 = 0x01011101
	storageSignatureB uint32 = 0x01020101
	storageVersion    byte   = 1
)

// Portable storage entry type tags.
const (
	typeInt64  byte = 1
	typeInt32  byte = 2
	typeInt16  byte = 3
	typeInt8   byte = 4
	typeUint64 byte = 5
	typeUint32 byte = 6
	typeUint16 byte = 7
	typeUint8  byte = 8
	typeDouble byte = 9
	typeString byte = 10
	typeBool   byte = 11
	typeObject byte = 12

	arrayFlag byte = 0x80
)

// maxStorageDepth bounds section nesting so a hostile payload cannot
// recurse the parser to death.
const maxStorageDepth = 32

// maxStorageElements is a sanity cap on array and section counts.
const maxStorageElements = 1 << 20

// Section is an ordered string-keyed tree node of a portable storage
// payload. Values are one of: uint8/16/32/64, int8/16/32/64, float64,
// bool, []byte, *Section, or []interface{} of one of those.
type Section struct {
	keys   []string
	values map[string]interface{}
}

// NewSection returns an empty section.
func NewSection() *Section {
	return &Section{values: make(map[string]interface{})}
}

// Set stores a value under name, keeping insertion order for
// serialization.
func (s *Section) Set(name string, value interface{}) {
	if _, exists := s.values[name]; !exists {
		s.keys = append(s.keys, name)
	}
	s.values[name] = value
}

// Get returns the raw value stored under name.
func (s *Section) Get(name string) (interface{}, bool) {
	value, ok := s.values[name]
	return value, ok
}

// GetUint returns a numeric entry widened to uint64, accepting any
// integer width the sender chose.
func (s *Section) GetUint(name string) (uint64, bool) {
	value, ok := s.values[name]
	if !ok {
		return 0, false
	}
	switch v := value.(type) {
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint64:
		return v, true
	case int8:
		return uint64(v), true
	case int16:
		return uint64(v), true
	case int32:
		return uint64(v), true
	case int64:
		return uint64(v), true
	}
	return 0, false
}

// GetBytes returns a string entry's raw bytes.
func (s *Section) GetBytes(name string) ([]byte, bool) {
	value, ok := s.values[name]
	if !ok {
		return nil, false
	}
	b, ok := value.([]byte)
	return b, ok
}

// GetBool returns a bool entry.
func (s *Section) GetBool(name string) (bool, bool) {
	value, ok := s.values[name]
	if !ok {
		return false, false
	}
	b, ok := value.(bool)
	return b, ok
}

// GetSection returns a nested section entry.
func (s *Section) GetSection(name string) (*Section, bool) {
	value, ok := s.values[name]
	if !ok {
		return nil, false
	}
	sec, ok := value.(*Section)
	return sec, ok
}

// GetArray returns an array entry.
func (s *Section) GetArray(name string) ([]interface{}, bool) {
	value, ok := s.values[name]
	if !ok {
		return nil, false
	}
	arr, ok := value.([]interface{})
	return arr, ok
}

// Marshal serializes the section tree with the storage header prepended.
func (s *Section) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	var header [9]byte
	binary.LittleEndian.PutUint32(header[0:4], storageSignatureA)
	binary.LittleEndian.PutUint32(header[4:8], storageSignatureB)
	header[8] = storageVersion
	buf.Write(header[:])

	if err := writeSection(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal parses a portable storage payload into its root section.
func Unmarshal(data []byte) (*Section, error) {
	r := bytes.NewReader(data)

	var header [9]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errors.Wrap(err, "truncated storage header")
	}
	if binary.LittleEndian.Uint32(header[0:4]) != storageSignatureA ||
		binary.LittleEndian.Uint32(header[4:8]) != storageSignatureB {
		return nil, errors.New("bad storage signature")
	}
	if header[8] != storageVersion {
		return nil, errors.Errorf("unknown storage version %d", header[8])
	}

	return readSection(r, 0)
}

// writePackedVarint writes the storage varint whose two low bits select
// the integer width.
func writePackedVarint(w io.Writer, value uint64) error {
	switch {
	case value <= 63:
		return writeByte(w, byte(value<<2))
	case value <= 16383:
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], uint16(value<<2)|1)
		_, err := w.Write(buf[:])
		return err
	case value <= 1073741823:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(value<<2)|2)
		_, err := w.Write(buf[:])
		return err
	default:
		if value > math.MaxUint64>>2 {
			return errors.New("value too large for storage varint")
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], value<<2|3)
		_, err := w.Write(buf[:])
		return err
	}
}

func readPackedVarint(r *bytes.Reader) (uint64, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch first & 3 {
	case 0:
		return uint64(first >> 2), nil
	case 1:
		var rest [1]byte
		if _, err := io.ReadFull(r, rest[:]); err != nil {
			return 0, err
		}
		return (uint64(first) | uint64(rest[0])<<8) >> 2, nil
	case 2:
		var rest [3]byte
		if _, err := io.ReadFull(r, rest[:]); err != nil {
			return 0, err
		}
		v := uint64(first) | uint64(rest[0])<<8 | uint64(rest[1])<<16 | uint64(rest[2])<<24
		return v >> 2, nil
	default:
		var rest [7]byte
		if _, err := io.ReadFull(r, rest[:]); err != nil {
			return 0, err
		}
		v := uint64(first)
		for i, b := range rest {
			v |= uint64(b) << (8 * uint(i+1))
		}
		return v >> 2, nil
	}
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

func writeName(w io.Writer, name string) error {
	if len(name) > 255 {
		return errors.Errorf("storage entry name %q too long", name)
	}
	if err := writeByte(w, byte(len(name))); err != nil {
		return err
	}
	_, err := io.WriteString(w, name)
	return err
}

func writeSection(w io.Writer, s *Section) error {
	if err := writePackedVarint(w, uint64(len(s.keys))); err != nil {
		return err
	}
	for _, name := range s.keys {
		if err := writeName(w, name); err != nil {
			return err
		}
		if err := writeValue(w, s.values[name]); err != nil {
			return errors.Wrapf(err, "entry %q", name)
		}
	}
	return nil
}

func writeValue(w io.Writer, value interface{}) error {
	switch v := value.(type) {
	case uint8:
		if err := writeByte(w, typeUint8); err != nil {
			return err
		}
		return writeByte(w, v)
	case uint16:
		if err := writeByte(w, typeUint16); err != nil {
			return err
		}
		var buf [2]byte
		binary.LittleEndian.PutUint16(buf[:], v)
		_, err := w.Write(buf[:])
		return err
	case uint32:
		if err := writeByte(w, typeUint32); err != nil {
			return err
		}
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], v)
		_, err := w.Write(buf[:])
		return err
	case uint64:
		if err := writeByte(w, typeUint64); err != nil {
			return err
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v)
		_, err := w.Write(buf[:])
		return err
	case int64:
		if err := writeByte(w, typeInt64); err != nil {
			return err
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, err := w.Write(buf[:])
		return err
	case bool:
		if err := writeByte(w, typeBool); err != nil {
			return err
		}
		if v {
			return writeByte(w, 1)
		}
		return writeByte(w, 0)
	case []byte:
		if err := writeByte(w, typeString); err != nil {
			return err
		}
		if err := writePackedVarint(w, uint64(len(v))); err != nil {
			return err
		}
		_, err := w.Write(v)
		return err
	case *Section:
		if err := writeByte(w, typeObject); err != nil {
			return err
		}
		return writeSection(w, v)
	case []interface{}:
		return writeArray(w, v)
	default:
		return errors.Errorf("unsupported storage value type %T", value)
	}
}

func writeArray(w io.Writer, values []interface{}) error {
	if len(values) == 0 {
		// An empty array still needs an element type; strings are the
		// only empty arrays the protocol produces.
		if err := writeByte(w, typeString|arrayFlag); err != nil {
			return err
		}
		return writePackedVarint(w, 0)
	}

	var elementType byte
	switch values[0].(type) {
	case []byte:
		elementType = typeString
	case *Section:
		elementType = typeObject
	case uint64:
		elementType = typeUint64
	case uint32:
		elementType = typeUint32
	default:
		return errors.Errorf("unsupported storage array element type %T", values[0])
	}

	if err := writeByte(w, elementType|arrayFlag); err != nil {
		return err
	}
	if err := writePackedVarint(w, uint64(len(values))); err != nil {
		return err
	}
	for _, value := range values {
		switch elementType {
		case typeString:
			v, ok := value.([]byte)
			if !ok {
				return errors.New("mixed storage array element types")
			}
			if err := writePackedVarint(w, uint64(len(v))); err != nil {
				return err
			}
			if _, err := w.Write(v); err != nil {
				return err
			}
		case typeObject:
			v, ok := value.(*Section)
			if !ok {
				return errors.New("mixed storage array element types")
			}
			if err := writeSection(w, v); err != nil {
				return err
			}
		case typeUint64:
			v, ok := value.(uint64)
			if !ok {
				return errors.New("mixed storage array element types")
			}
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], v)
			if _, err := w.Write(buf[:]); err != nil {
				return err
			}
		case typeUint32:
			v, ok := value.(uint32)
			if !ok {
				return errors.New("mixed storage array element types")
			}
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], v)
			if _, err := w.Write(buf[:]); err != nil {
				return err
			}
		}
	}
	return nil
}

func readSection(r *bytes.Reader, depth int) (*Section, error) {
	if depth > maxStorageDepth {
		return nil, errors.New("storage nesting too deep")
	}

	count, err := readPackedVarint(r)
	if err != nil {
		return nil, err
	}
	if count > maxStorageElements {
		return nil, errors.Errorf("section of %d entries exceeds sanity limit", count)
	}

	section := NewSection()
	for i := uint64(0); i < count; i++ {
		nameLen, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBytes); err != nil {
			return nil, err
		}
		value, err := readValue(r, depth)
		if err != nil {
			return nil, errors.Wrapf(err, "entry %q", string(nameBytes))
		}
		section.Set(string(nameBytes), value)
	}
	return section, nil
}

func readValue(r *bytes.Reader, depth int) (interface{}, error) {
	typeTag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	if typeTag&arrayFlag != 0 {
		return readArray(r, typeTag&^arrayFlag, depth)
	}
	return readScalar(r, typeTag, depth)
}

func readScalar(r *bytes.Reader, typeTag byte, depth int) (interface{}, error) {
	switch typeTag {
	case typeUint8, typeInt8:
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if typeTag == typeInt8 {
			return int8(b), nil
		}
		return b, nil
	case typeUint16, typeInt16:
		var buf [2]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		v := binary.LittleEndian.Uint16(buf[:])
		if typeTag == typeInt16 {
			return int16(v), nil
		}
		return v, nil
	case typeUint32, typeInt32:
		var buf [4]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		v := binary.LittleEndian.Uint32(buf[:])
		if typeTag == typeInt32 {
			return int32(v), nil
		}
		return v, nil
	case typeUint64, typeInt64, typeDouble:
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		v := binary.LittleEndian.Uint64(buf[:])
		switch typeTag {
		case typeInt64:
			return int64(v), nil
		case typeDouble:
			return math.Float64frombits(v), nil
		}
		return v, nil
	case typeBool:
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		return b != 0, nil
	case typeString:
		length, err := readPackedVarint(r)
		if err != nil {
			return nil, err
		}
		if length > MaxPacketSize {
			return nil, errors.New("storage string exceeds packet size")
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, err
		}
		return data, nil
	case typeObject:
		return readSection(r, depth+1)
	default:
		return nil, errors.Errorf("unknown storage type tag %#x", typeTag)
	}
}

func readArray(r *bytes.Reader, elementType byte, depth int) ([]interface{}, error) {
	count, err := readPackedVarint(r)
	if err != nil {
		return nil, err
	}
	if count > maxStorageElements {
		return nil, errors.Errorf("array of %d elements exceeds sanity limit", count)
	}

	values := make([]interface{}, 0, count)
	for i := uint64(0); i < count; i++ {
		value, err := readScalar(r, elementType, depth)
		if err != nil {
			return nil, err
		}
		values = append(values, value)
	}
	return values, nil
}
