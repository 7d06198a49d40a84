// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"io"
)

// Serialize writes the raw block: the length-prefixed block blob followed
// by the count and length-prefixed blobs of its transactions.
func (rb *RawBlock) Serialize(w io.Writer) error {
	if err := writeByteSlice(w, rb.Block); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(rb.Transactions))); err != nil {
		return err
	}
	for _, txBytes := range rb.Transactions {
		if err := writeByteSlice(w, txBytes); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize reads a raw block.
func (rb *RawBlock) Deserialize(r io.Reader) error {
	var err error
	if rb.Block, err = readByteSlice(r, "raw block"); err != nil {
		return err
	}
	count, err := readCount(r, "raw block transaction")
	if err != nil {
		return err
	}
	rb.Transactions = make([][]byte, count)
	for i := range rb.Transactions {
		if rb.Transactions[i], err = readByteSlice(r, "raw transaction"); err != nil {
			return err
		}
	}
	return nil
}

// SerializeSize returns the number of bytes the serialized raw block
// occupies.
func (rb *RawBlock) SerializeSize() int {
	size := VarIntSerializeSize(uint64(len(rb.Block))) + len(rb.Block)
	size += VarIntSerializeSize(uint64(len(rb.Transactions)))
	for _, txBytes := range rb.Transactions {
		size += VarIntSerializeSize(uint64(len(txBytes))) + len(txBytes)
	}
	return size
}
