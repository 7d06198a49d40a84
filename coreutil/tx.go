// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coreutil

import (
	"bytes"

	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/bytecoin-go/bytecoind/wire"
	"github.com/pkg/errors"
)

// Tx wraps a parsed transaction and caches its hash, prefix hash,
// serialization and fee.
type Tx struct {
	tx wire.Transaction

	serialized []byte
	hash       *crypto.Hash
	prefixHash *crypto.Hash
	fee        *uint64
}

// NewTx returns a handle over an already-parsed transaction.
func NewTx(tx *wire.Transaction) *Tx {
	return &Tx{tx: *tx}
}

// NewTxFromBytes parses a serialized transaction and returns a handle over
// it. The given bytes are retained as the cached serialization.
func NewTxFromBytes(serialized []byte) (*Tx, error) {
	t := &Tx{serialized: serialized}
	r := bytes.NewReader(serialized)
	if err := t.tx.Deserialize(r); err != nil {
		return nil, errors.Wrap(err, "malformed transaction")
	}
	if r.Len() != 0 {
		return nil, errors.Errorf("%d trailing bytes after transaction", r.Len())
	}
	return t, nil
}

// Transaction returns the underlying parsed transaction.
func (t *Tx) Transaction() *wire.Transaction {
	return &t.tx
}

// Bytes returns the canonical serialization of the transaction.
func (t *Tx) Bytes() ([]byte, error) {
	if t.serialized == nil {
		var buf bytes.Buffer
		if err := t.tx.Serialize(&buf); err != nil {
			return nil, err
		}
		t.serialized = buf.Bytes()
	}
	return t.serialized, nil
}

// Size returns the serialized size of the transaction in bytes.
func (t *Tx) Size() (uint64, error) {
	serialized, err := t.Bytes()
	if err != nil {
		return 0, err
	}
	return uint64(len(serialized)), nil
}

// Hash returns the transaction hash, the fast hash of the full
// serialization.
func (t *Tx) Hash() (crypto.Hash, error) {
	if t.hash == nil {
		serialized, err := t.Bytes()
		if err != nil {
			return crypto.ZeroHash, err
		}
		hash := crypto.FastHash(serialized)
		t.hash = &hash
	}
	return *t.hash, nil
}

// PrefixHash returns the hash of the transaction prefix, which is what
// input signatures commit to.
func (t *Tx) PrefixHash() (crypto.Hash, error) {
	if t.prefixHash == nil {
		var buf bytes.Buffer
		if err := t.tx.SerializePrefix(&buf); err != nil {
			return crypto.ZeroHash, err
		}
		hash := crypto.FastHash(buf.Bytes())
		t.prefixHash = &hash
	}
	return *t.prefixHash, nil
}

// Fee returns the transaction fee: the input sum minus the output sum, or
// zero for a coinbase. An output sum exceeding the input sum is a protocol
// violation.
func (t *Tx) Fee() (uint64, error) {
	if t.fee == nil {
		var fee uint64
		if !t.tx.IsCoinbase() {
			var inputAmount, outputAmount uint64
			for _, input := range t.tx.Inputs {
				switch in := input.(type) {
				case *wire.KeyInput:
					inputAmount += in.Amount
				case *wire.MultisignatureInput:
					inputAmount += in.Amount
				}
			}
			for i := range t.tx.Outputs {
				outputAmount += t.tx.Outputs[i].Amount
			}
			if outputAmount > inputAmount {
				return 0, errors.Errorf("transaction outputs %d exceed inputs %d",
					outputAmount, inputAmount)
			}
			fee = inputAmount - outputAmount
		}
		t.fee = &fee
	}
	return *t.fee, nil
}
