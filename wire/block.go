// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"io"

	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/pkg/errors"
)

// Block major versions. Version 2 embeds a merge-mined parent block that
// carries the proof of work.
const (
	BlockMajorVersion1 = 1
	BlockMajorVersion2 = 2
	BlockMajorVersion3 = 3
)

// Block minor versions. Under major version 1, minor version 1 is a vote
// for upgrading to major version 2.
const (
	BlockMinorVersion0 = 0
	BlockMinorVersion1 = 1
)

// BlockHeader is the leading part of every block. For major version 1 the
// timestamp and nonce live in the header; from version 2 on they are
// serialized inside the parent block instead, so only the previous block
// hash follows the version pair on the wire.
type BlockHeader struct {
	MajorVersion      uint8
	MinorVersion      uint8
	Timestamp         uint64
	PreviousBlockHash crypto.Hash
	Nonce             uint32
}

// ParentBlock is the stripped-down merge-mined block embedded in blocks of
// major version 2 and above. Only its coinbase and the two merkle branches
// are carried; the proof of work of the child block is computed over the
// parent's hashing serialization.
type ParentBlock struct {
	MajorVersion          uint8
	MinorVersion          uint8
	PreviousBlockHash     crypto.Hash
	TransactionCount      uint16
	BaseTransactionBranch []crypto.Hash
	BaseTransaction       Transaction
	BlockchainBranch      []crypto.Hash
}

// BlockTemplate is a full block: header, optional parent block, coinbase
// and the hashes of the included transactions.
type BlockTemplate struct {
	BlockHeader
	ParentBlock       ParentBlock
	BaseTransaction   Transaction
	TransactionHashes []crypto.Hash
}

// RawBlock is the wire form of a block: the serialized block itself plus
// the serialized transactions it includes, in template order.
type RawBlock struct {
	Block        []byte
	Transactions [][]byte
}

// serializeHeader writes the version-dependent header layout.
func (header *BlockHeader) serializeHeader(w io.Writer) error {
	if err := WriteVarInt(w, uint64(header.MajorVersion)); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(header.MinorVersion)); err != nil {
		return err
	}

	if header.MajorVersion == BlockMajorVersion1 {
		if err := WriteVarInt(w, header.Timestamp); err != nil {
			return err
		}
		if err := writeHash(w, &header.PreviousBlockHash); err != nil {
			return err
		}
		return writeUint32LE(w, header.Nonce)
	}

	return writeHash(w, &header.PreviousBlockHash)
}

func (header *BlockHeader) deserializeHeader(r io.Reader) error {
	majorVersion, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if majorVersion == 0 || majorVersion > 0xff {
		return errors.Errorf("invalid block major version %d", majorVersion)
	}
	header.MajorVersion = uint8(majorVersion)

	minorVersion, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if minorVersion > 0xff {
		return errors.Errorf("invalid block minor version %d", minorVersion)
	}
	header.MinorVersion = uint8(minorVersion)

	if header.MajorVersion == BlockMajorVersion1 {
		if header.Timestamp, err = ReadVarInt(r); err != nil {
			return err
		}
		if err := readHash(r, &header.PreviousBlockHash); err != nil {
			return err
		}
		header.Nonce, err = readUint32LE(r)
		return err
	}

	return readHash(r, &header.PreviousBlockHash)
}

// SerializeHashing writes the header exactly as it appears at the front of
// the block hashing binary array: version pair, timestamp, previous hash
// and nonce regardless of major version.
func (header *BlockHeader) SerializeHashing(w io.Writer) error {
	if err := WriteVarInt(w, uint64(header.MajorVersion)); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(header.MinorVersion)); err != nil {
		return err
	}
	if err := WriteVarInt(w, header.Timestamp); err != nil {
		return err
	}
	if err := writeHash(w, &header.PreviousBlockHash); err != nil {
		return err
	}
	return writeUint32LE(w, header.Nonce)
}

// Serialize writes the full block to w.
func (block *BlockTemplate) Serialize(w io.Writer) error {
	if err := block.serializeHeader(w); err != nil {
		return err
	}

	if block.MajorVersion >= BlockMajorVersion2 {
		if err := block.ParentBlock.SerializeForm(w, block.Timestamp, block.Nonce, false, false); err != nil {
			return err
		}
	}

	if err := block.BaseTransaction.Serialize(w); err != nil {
		return err
	}

	if err := WriteVarInt(w, uint64(len(block.TransactionHashes))); err != nil {
		return err
	}
	for i := range block.TransactionHashes {
		if err := writeHash(w, &block.TransactionHashes[i]); err != nil {
			return err
		}
	}
	return nil
}

// Deserialize reads a full block from r.
func (block *BlockTemplate) Deserialize(r io.Reader) error {
	if err := block.deserializeHeader(r); err != nil {
		return err
	}

	if block.MajorVersion >= BlockMajorVersion2 {
		timestamp, nonce, err := block.ParentBlock.deserialize(r, false)
		if err != nil {
			return err
		}
		block.Timestamp = timestamp
		block.Nonce = nonce
	}

	if err := block.BaseTransaction.Deserialize(r); err != nil {
		return err
	}

	hashCount, err := readCount(r, "transaction hash")
	if err != nil {
		return err
	}
	block.TransactionHashes = make([]crypto.Hash, hashCount)
	for i := range block.TransactionHashes {
		if err := readHash(r, &block.TransactionHashes[i]); err != nil {
			return err
		}
	}
	return nil
}

// SerializeSize returns the number of bytes the serialized block occupies.
func (block *BlockTemplate) SerializeSize() int {
	var buf bytes.Buffer
	if err := block.Serialize(&buf); err != nil {
		return 0
	}
	return buf.Len()
}

// SerializeForm writes one of the parent block's serialization forms. The
// timestamp and nonce belong to the child block but are serialized here
// from major version 2 on. The hashing form additionally commits to the
// parent coinbase merkle root; the header-only form stops before the
// coinbase.
func (pb *ParentBlock) SerializeForm(w io.Writer, timestamp uint64, nonce uint32, hashing, headerOnly bool) error {
	if err := WriteVarInt(w, uint64(pb.MajorVersion)); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(pb.MinorVersion)); err != nil {
		return err
	}
	if err := WriteVarInt(w, timestamp); err != nil {
		return err
	}
	if err := writeHash(w, &pb.PreviousBlockHash); err != nil {
		return err
	}
	if err := writeUint32LE(w, nonce); err != nil {
		return err
	}

	if hashing {
		root := pb.baseTransactionMerkleRoot()
		if err := writeHash(w, &root); err != nil {
			return err
		}
	}

	if err := WriteVarInt(w, uint64(pb.TransactionCount)); err != nil {
		return err
	}
	branchSize := TreeDepth(uint64(pb.TransactionCount))
	if len(pb.BaseTransactionBranch) != branchSize {
		return errors.Errorf("base transaction branch has %d hashes, want %d",
			len(pb.BaseTransactionBranch), branchSize)
	}
	for i := range pb.BaseTransactionBranch {
		if err := writeHash(w, &pb.BaseTransactionBranch[i]); err != nil {
			return err
		}
	}

	if headerOnly {
		return nil
	}

	if err := pb.BaseTransaction.Serialize(w); err != nil {
		return err
	}

	fields, err := ParseExtra(pb.BaseTransaction.Extra)
	if err != nil {
		return errors.Wrap(err, "parent coinbase extra")
	}
	if fields.MergeMiningTag == nil {
		return errors.New("parent coinbase carries no merge mining tag")
	}
	if uint64(len(pb.BlockchainBranch)) != fields.MergeMiningTag.Depth {
		return errors.Errorf("blockchain branch has %d hashes, merge mining tag depth is %d",
			len(pb.BlockchainBranch), fields.MergeMiningTag.Depth)
	}
	for i := range pb.BlockchainBranch {
		if err := writeHash(w, &pb.BlockchainBranch[i]); err != nil {
			return err
		}
	}
	return nil
}

// deserialize reads the parent block and returns the child block timestamp
// and nonce it carries.
func (pb *ParentBlock) deserialize(r io.Reader, headerOnly bool) (timestamp uint64, nonce uint32, err error) {
	majorVersion, err := ReadVarInt(r)
	if err != nil {
		return 0, 0, err
	}
	if majorVersion == 0 || majorVersion > 0xff {
		return 0, 0, errors.Errorf("invalid parent block major version %d", majorVersion)
	}
	pb.MajorVersion = uint8(majorVersion)

	minorVersion, err := ReadVarInt(r)
	if err != nil {
		return 0, 0, err
	}
	if minorVersion > 0xff {
		return 0, 0, errors.Errorf("invalid parent block minor version %d", minorVersion)
	}
	pb.MinorVersion = uint8(minorVersion)

	if timestamp, err = ReadVarInt(r); err != nil {
		return 0, 0, err
	}
	if err = readHash(r, &pb.PreviousBlockHash); err != nil {
		return 0, 0, err
	}
	if nonce, err = readUint32LE(r); err != nil {
		return 0, 0, err
	}

	transactionCount, err := ReadVarInt(r)
	if err != nil {
		return 0, 0, err
	}
	if transactionCount == 0 || transactionCount > 0xffff {
		return 0, 0, errors.Errorf("parent block transaction count %d out of range", transactionCount)
	}
	pb.TransactionCount = uint16(transactionCount)

	pb.BaseTransactionBranch = make([]crypto.Hash, TreeDepth(transactionCount))
	for i := range pb.BaseTransactionBranch {
		if err = readHash(r, &pb.BaseTransactionBranch[i]); err != nil {
			return 0, 0, err
		}
	}

	if headerOnly {
		return timestamp, nonce, nil
	}

	if err = pb.BaseTransaction.Deserialize(r); err != nil {
		return 0, 0, err
	}

	fields, err := ParseExtra(pb.BaseTransaction.Extra)
	if err != nil {
		return 0, 0, errors.Wrap(err, "parent coinbase extra")
	}
	if fields.MergeMiningTag == nil {
		return 0, 0, errors.New("parent coinbase carries no merge mining tag")
	}
	if fields.MergeMiningTag.Depth > 255 {
		return 0, 0, errors.Errorf("merge mining tag depth %d out of range", fields.MergeMiningTag.Depth)
	}
	pb.BlockchainBranch = make([]crypto.Hash, fields.MergeMiningTag.Depth)
	for i := range pb.BlockchainBranch {
		if err = readHash(r, &pb.BlockchainBranch[i]); err != nil {
			return 0, 0, err
		}
	}
	return timestamp, nonce, nil
}

// baseTransactionMerkleRoot folds the parent coinbase hash up through its
// branch to the transaction merkle root the parent block committed to.
func (pb *ParentBlock) baseTransactionMerkleRoot() crypto.Hash {
	var buf bytes.Buffer
	if err := pb.BaseTransaction.Serialize(&buf); err != nil {
		return crypto.ZeroHash
	}
	return crypto.TreeHashFromBranch(pb.BaseTransactionBranch, crypto.FastHash(buf.Bytes()))
}

// TreeDepth returns the depth of the merkle tree over count leaves, which
// is the length of any authentication branch in it.
func TreeDepth(count uint64) int {
	depth := 0
	for i := uint64(1); i < count; i <<= 1 {
		depth++
	}
	return depth
}
