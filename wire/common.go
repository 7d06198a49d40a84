// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"io"

	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/pkg/errors"
)

// maxAllocLimit is a sanity cap applied to every deserialized element count
// so a malformed message cannot cause a huge allocation before the reader
// runs out of bytes.
const maxAllocLimit = 1 << 22

var (
	// littleEndian is a convenience variable since binary.LittleEndian is
	// quite long.
	littleEndian = binary.LittleEndian
)

// readHash reads exactly crypto.HashSize bytes into a Hash.
func readHash(r io.Reader, hash *crypto.Hash) error {
	_, err := io.ReadFull(r, hash[:])
	return err
}

// writeHash writes the raw bytes of a Hash.
func writeHash(w io.Writer, hash *crypto.Hash) error {
	_, err := w.Write(hash[:])
	return err
}

// readCount reads a varint element count and validates it against the
// allocation sanity limit.
func readCount(r io.Reader, what string) (uint64, error) {
	count, err := ReadVarInt(r)
	if err != nil {
		return 0, err
	}
	if count > maxAllocLimit {
		return 0, errors.Errorf("%s count %d exceeds sanity limit", what, count)
	}
	return count, nil
}

// readByteSlice reads a varint-length-prefixed byte slice.
func readByteSlice(r io.Reader, what string) ([]byte, error) {
	size, err := readCount(r, what)
	if err != nil {
		return nil, err
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// writeByteSlice writes a varint-length-prefixed byte slice.
func writeByteSlice(w io.Writer, data []byte) error {
	if err := WriteVarInt(w, uint64(len(data))); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// readUint32LE reads a fixed-width little endian uint32. Only the block
// nonce uses fixed-width encoding; everything else in the consensus layout
// is a varint.
func readUint32LE(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return littleEndian.Uint32(buf[:]), nil
}

// writeUint32LE writes a fixed-width little endian uint32.
func writeUint32LE(w io.Writer, val uint32) error {
	var buf [4]byte
	littleEndian.PutUint32(buf[:], val)
	_, err := w.Write(buf[:])
	return err
}
