// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package currency

import (
	"encoding/hex"

	"github.com/bytecoin-go/bytecoind/coreutil"
	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/bytecoin-go/bytecoind/wire"
	"github.com/pkg/errors"
)

// GenesisBlock constructs the genesis block from the configured coinbase
// blob. The genesis header is fixed: major version 1, zero timestamp, zero
// previous hash and the historical nonce.
func (c *Currency) GenesisBlock() (*coreutil.Block, error) {
	coinbaseBytes, err := hex.DecodeString(c.GenesisCoinbaseTxHex)
	if err != nil {
		return nil, errors.Wrap(err, "malformed genesis coinbase hex")
	}

	coinbase, err := coreutil.NewTxFromBytes(coinbaseBytes)
	if err != nil {
		return nil, errors.Wrap(err, "malformed genesis coinbase")
	}

	block := &wire.BlockTemplate{
		BlockHeader: wire.BlockHeader{
			MajorVersion: wire.BlockMajorVersion1,
			MinorVersion: wire.BlockMinorVersion0,
			Timestamp:    0,
			Nonce:        c.genesisNonce,
		},
		BaseTransaction: *coinbase.Transaction(),
	}
	return coreutil.NewBlock(block), nil
}

// GenesisBlockHash returns the hash of the genesis block.
func (c *Currency) GenesisBlockHash() (crypto.Hash, error) {
	if c.genesisBlock != nil {
		return *c.genesisBlock, nil
	}
	block, err := c.GenesisBlock()
	if err != nil {
		return crypto.ZeroHash, err
	}
	hash, err := block.Hash()
	if err != nil {
		return crypto.ZeroHash, err
	}
	c.genesisBlock = &hash
	return hash, nil
}
