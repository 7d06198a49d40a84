// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"

	"github.com/pkg/errors"
)

// MaxVarIntPayload is the maximum payload size for a variable length integer.
const MaxVarIntPayload = 10

// errNonCanonicalVarInt is returned when a varint carries continuation bytes
// that encode no value, which would allow multiple encodings of the same
// number and therefore multiple serializations with the same hash preimage.
var errNonCanonicalVarInt = errors.New("non-canonical varint encoding")

// errVarIntOverflow is returned when a varint does not fit into 64 bits.
var errVarIntOverflow = errors.New("varint overflows a uint64")

// WriteVarInt serializes val to w using the CryptoNote base-128 little
// endian variable length integer encoding: seven value bits per byte, the
// high bit set on every byte except the last.
func WriteVarInt(w io.Writer, val uint64) error {
	var buf [MaxVarIntPayload]byte
	n := PutVarInt(buf[:], val)
	_, err := w.Write(buf[:n])
	return err
}

// PutVarInt encodes val into buf and returns the number of bytes written.
// The buffer must be at least MaxVarIntPayload bytes.
func PutVarInt(buf []byte, val uint64) int {
	n := 0
	for val >= 0x80 {
		buf[n] = byte(val&0x7f) | 0x80
		val >>= 7
		n++
	}
	buf[n] = byte(val)
	return n + 1
}

// VarIntSerializeSize returns the number of bytes it would take to serialize
// val as a variable length integer.
func VarIntSerializeSize(val uint64) int {
	size := 1
	for val >= 0x80 {
		val >>= 7
		size++
	}
	return size
}

// ReadVarInt reads a variable length integer from r and returns it as a
// uint64. Non-canonical and overflowing encodings are rejected.
func ReadVarInt(r io.Reader) (uint64, error) {
	var val uint64
	var buf [1]byte
	for shift := uint(0); ; shift += 7 {
		if shift > 63 {
			return 0, errVarIntOverflow
		}
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		b := buf[0]
		if shift == 63 && b > 1 {
			return 0, errVarIntOverflow
		}
		val |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			if b == 0 && shift != 0 {
				return 0, errNonCanonicalVarInt
			}
			return val, nil
		}
	}
}
