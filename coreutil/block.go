// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package coreutil provides handle types for blocks and transactions that
// memoize the derived values the rest of the node keeps asking for: hashes,
// serializations, fees and the block index. A handle is not safe for
// concurrent use; the chain manager owns each one for its lifetime.
package coreutil

import (
	"bytes"

	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/bytecoin-go/bytecoind/wire"
	"github.com/pkg/errors"
)

// Block wraps a parsed block and caches its derived values on first use.
type Block struct {
	block wire.BlockTemplate

	serialized          []byte
	transactionTreeHash *crypto.Hash
	hashingBlob         []byte
	parentHashingBlob   []byte
	blockHash           *crypto.Hash
	auxiliaryHash       *crypto.Hash
	longHash            *crypto.Hash
	blockIndex          *uint32
}

// NewBlock returns a handle over an already-parsed block.
func NewBlock(block *wire.BlockTemplate) *Block {
	return &Block{block: *block}
}

// NewBlockFromBytes parses a serialized block and returns a handle over it.
// The given bytes are retained as the cached serialization.
func NewBlockFromBytes(serialized []byte) (*Block, error) {
	b := &Block{serialized: serialized}
	r := bytes.NewReader(serialized)
	if err := b.block.Deserialize(r); err != nil {
		return nil, errors.Wrap(err, "malformed block")
	}
	if r.Len() != 0 {
		return nil, errors.Errorf("%d trailing bytes after block", r.Len())
	}
	return b, nil
}

// Template returns the underlying parsed block.
func (b *Block) Template() *wire.BlockTemplate {
	return &b.block
}

// Bytes returns the canonical serialization of the block.
func (b *Block) Bytes() ([]byte, error) {
	if b.serialized == nil {
		var buf bytes.Buffer
		if err := b.block.Serialize(&buf); err != nil {
			return nil, err
		}
		b.serialized = buf.Bytes()
	}
	return b.serialized, nil
}

// TransactionTreeHash returns the tree hash over the coinbase hash followed
// by the included transaction hashes.
func (b *Block) TransactionTreeHash() (crypto.Hash, error) {
	if b.transactionTreeHash == nil {
		hashes := make([]crypto.Hash, 0, len(b.block.TransactionHashes)+1)
		coinbaseHash, err := transactionHash(&b.block.BaseTransaction)
		if err != nil {
			return crypto.ZeroHash, err
		}
		hashes = append(hashes, coinbaseHash)
		hashes = append(hashes, b.block.TransactionHashes...)
		treeHash := crypto.TreeHash(hashes)
		b.transactionTreeHash = &treeHash
	}
	return *b.transactionTreeHash, nil
}

// HashingBlob returns the block hashing binary array: the hashing form of
// the header, the transaction tree hash and the varint count of
// transactions including the coinbase.
func (b *Block) HashingBlob() ([]byte, error) {
	if b.hashingBlob == nil {
		var buf bytes.Buffer
		if err := b.block.SerializeHashing(&buf); err != nil {
			return nil, err
		}
		treeHash, err := b.TransactionTreeHash()
		if err != nil {
			return nil, err
		}
		buf.Write(treeHash[:])
		if err := wire.WriteVarInt(&buf, uint64(len(b.block.TransactionHashes)+1)); err != nil {
			return nil, err
		}
		b.hashingBlob = buf.Bytes()
	}
	return b.hashingBlob, nil
}

// Hash returns the block identity hash. From major version 2 on the parent
// block serialization is appended to the hashing blob before hashing.
func (b *Block) Hash() (crypto.Hash, error) {
	if b.blockHash == nil {
		blob, err := b.HashingBlob()
		if err != nil {
			return crypto.ZeroHash, err
		}
		if b.block.MajorVersion >= wire.BlockMajorVersion2 {
			parentBlob, err := b.parentBlob(false, false)
			if err != nil {
				return crypto.ZeroHash, err
			}
			joined := make([]byte, 0, len(blob)+len(parentBlob))
			joined = append(joined, blob...)
			joined = append(joined, parentBlob...)
			blob = joined
		}
		hash := crypto.FastHash(blob)
		b.blockHash = &hash
	}
	return *b.blockHash, nil
}

// AuxiliaryHash returns the hash of the plain hashing blob. It is the value
// a merge-mined parent chain commits to for blocks of major version 2 and
// above.
func (b *Block) AuxiliaryHash() (crypto.Hash, error) {
	if b.auxiliaryHash == nil {
		blob, err := b.HashingBlob()
		if err != nil {
			return crypto.ZeroHash, err
		}
		hash := crypto.FastHash(blob)
		b.auxiliaryHash = &hash
	}
	return *b.auxiliaryHash, nil
}

// LongHash returns the proof-of-work hash computed by the given hasher:
// over the hashing blob for major version 1, over the parent block hashing
// serialization from version 2 on.
func (b *Block) LongHash(hasher crypto.PoWHasher) (crypto.Hash, error) {
	if b.longHash == nil {
		var blob []byte
		var err error
		switch {
		case b.block.MajorVersion == wire.BlockMajorVersion1:
			blob, err = b.HashingBlob()
		case b.block.MajorVersion >= wire.BlockMajorVersion2:
			blob, err = b.parentBlob(true, true)
		default:
			return crypto.ZeroHash, errors.Errorf("unknown block major version %d", b.block.MajorVersion)
		}
		if err != nil {
			return crypto.ZeroHash, err
		}
		hash := hasher.SlowHash(blob)
		b.longHash = &hash
	}
	return *b.longHash, nil
}

// Index returns the block index declared by the coinbase input, or zero
// when the coinbase is malformed; shape validation rejects such blocks
// before the value is ever trusted.
func (b *Block) Index() uint32 {
	if b.blockIndex == nil {
		var index uint32
		if len(b.block.BaseTransaction.Inputs) == 1 {
			if in, ok := b.block.BaseTransaction.Inputs[0].(*wire.BaseInput); ok {
				index = in.BlockIndex
			}
		}
		b.blockIndex = &index
	}
	return *b.blockIndex
}

func (b *Block) parentBlob(hashing, headerOnly bool) ([]byte, error) {
	if hashing && headerOnly && b.parentHashingBlob != nil {
		return b.parentHashingBlob, nil
	}
	var buf bytes.Buffer
	err := b.block.ParentBlock.SerializeForm(&buf, b.block.Timestamp, b.block.Nonce, hashing, headerOnly)
	if err != nil {
		return nil, err
	}
	if hashing && headerOnly {
		b.parentHashingBlob = buf.Bytes()
	}
	return buf.Bytes(), nil
}

func transactionHash(tx *wire.Transaction) (crypto.Hash, error) {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return crypto.ZeroHash, err
	}
	return crypto.FastHash(buf.Bytes()), nil
}
