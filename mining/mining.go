// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mining assembles block templates for miners and routes
// completed blocks back into the chain.
package mining

import (
	"time"

	"github.com/bytecoin-go/bytecoind/blockchain"
	"github.com/bytecoin-go/bytecoind/coreutil"
	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/bytecoin-go/bytecoind/currency"
	"github.com/bytecoin-go/bytecoind/mempool"
	"github.com/bytecoin-go/bytecoind/wire"
	"github.com/pkg/errors"
)

// coinbaseSizeIterations bounds the fixed-point iteration that sizes the
// coinbase against the reward that depends on the block size.
const coinbaseSizeIterations = 10

// Generator assembles block templates from the chain tip and the pool.
type Generator struct {
	currency *currency.Currency
	chain    *blockchain.Chain
	pool     *mempool.TxPool

	timeSource func() time.Time
}

// NewGenerator returns a template generator over the given chain and
// pool.
func NewGenerator(c *currency.Currency, chain *blockchain.Chain, pool *mempool.TxPool) *Generator {
	return &Generator{
		currency:   c,
		chain:      chain,
		pool:       pool,
		timeSource: time.Now,
	}
}

// GetBlockTemplate assembles a template paying minerAddress, carrying
// extraNonce in the coinbase extra. It returns the template, the
// difficulty the proof of work must meet and the template's height.
func (g *Generator) GetBlockTemplate(minerAddress crypto.Address, extraNonce []byte) (*wire.BlockTemplate, uint64, uint32, error) {
	if len(extraNonce) > wire.MaxExtraNonceSize {
		return nil, 0, 0, errors.Errorf("extra nonce of %d bytes exceeds limit", len(extraNonce))
	}

	height := g.chain.TopBlockIndex() + 1
	majorVersion, minorVersion := g.chain.TemplateVersions(height)
	difficulty := g.chain.NextBlockDifficulty()

	timestamp := uint64(g.timeSource().Unix())
	if median := g.chain.MedianTimestamp(); timestamp <= median {
		timestamp = median + 1
	}

	medianSize := g.chain.MedianBlockSize()
	if zone := g.currency.FullRewardZoneByVersion(majorVersion); medianSize < zone {
		medianSize = zone
	}

	// Transactions may fill the block up to twice the median minus the
	// room reserved for the coinbase.
	txsSizeLimit := 2*medianSize - currency.CoinbaseBlobReservedSize
	if maxSize := g.currency.MaxBlockCumulativeSize(uint64(height)); txsSizeLimit > maxSize {
		txsSizeLimit = maxSize
	}
	transactions := g.pool.Take(txsSizeLimit)

	var totalFees, txsSize uint64
	txHashes := make([]crypto.Hash, 0, len(transactions))
	for _, tx := range transactions {
		fee, err := tx.Fee()
		if err != nil {
			continue
		}
		// A matured deposit spend pays its interest into the fee, as the
		// chain counts it when it checks the coinbase amount.
		for _, input := range tx.Transaction().Inputs {
			if in, ok := input.(*wire.MultisignatureInput); ok && in.Term > 0 {
				fee += g.currency.CalculateInterest(in.Amount, in.Term)
			}
		}
		size, err := tx.Size()
		if err != nil {
			continue
		}
		hash, err := tx.Hash()
		if err != nil {
			continue
		}
		totalFees += fee
		txsSize += size
		txHashes = append(txHashes, hash)
	}

	template := &wire.BlockTemplate{
		BlockHeader: wire.BlockHeader{
			MajorVersion:      majorVersion,
			MinorVersion:      minorVersion,
			Timestamp:         timestamp,
			PreviousBlockHash: g.chain.TopBlockHash(),
			Nonce:             0,
		},
		TransactionHashes: txHashes,
	}

	// The reward depends on the block size, which depends on the
	// coinbase size, which depends on the reward's denomination count.
	// Iterate until the size settles.
	alreadyGenerated := g.chain.TotalGeneratedAmount()
	coinbaseSize := uint64(0)
	for i := 0; i < coinbaseSizeIterations; i++ {
		blockSize := txsSize + coinbaseSize + currency.CoinbaseBlobReservedSize
		reward, _, err := g.currency.BlockReward(majorVersion, medianSize, blockSize,
			alreadyGenerated, totalFees)
		if err != nil {
			return nil, 0, 0, err
		}

		coinbase, err := g.constructCoinbase(height, reward, minerAddress, extraNonce)
		if err != nil {
			return nil, 0, 0, err
		}
		template.BaseTransaction = *coinbase

		newSize := uint64(coinbase.SerializeSize())
		if newSize == coinbaseSize {
			break
		}
		coinbaseSize = newSize
	}

	if majorVersion >= wire.BlockMajorVersion2 {
		if err := g.attachParentBlockPlaceholder(template); err != nil {
			return nil, 0, 0, err
		}
	}

	log.Debugf("Assembled block template at height %d: %d transactions, difficulty %d",
		height, len(transactions), difficulty)
	return template, difficulty, height, nil
}

// constructCoinbase builds the coinbase paying reward to minerAddress in
// dust-threshold-aligned denominations.
func (g *Generator) constructCoinbase(height uint32, reward uint64, minerAddress crypto.Address, extraNonce []byte) (*wire.Transaction, error) {
	txPublicKey := deriveTxPublicKey(minerAddress, height, extraNonce)
	extra, err := wire.BuildExtra(&txPublicKey, extraNonce, nil)
	if err != nil {
		return nil, err
	}

	coinbase := &wire.Transaction{
		Version:    wire.TransactionVersion1,
		UnlockTime: uint64(height) + currency.MinedMoneyUnlockWindow,
		Inputs:     []wire.TransactionInput{&wire.BaseInput{BlockIndex: height}},
		Extra:      extra,
	}

	for outIndex, amount := range decomposeAmount(reward, g.currency.DefaultDustThreshold) {
		coinbase.Outputs = append(coinbase.Outputs, wire.TransactionOutput{
			Amount: amount,
			Target: &wire.KeyOutput{
				Key: deriveOneTimeKey(txPublicKey, minerAddress, uint32(outIndex)),
			},
		})
	}
	return coinbase, nil
}

// attachParentBlockPlaceholder fills the parent block of a version 2
// template with the minimal self-mined stand-in an external merge miner
// replaces: one coinbase carrying the merge-mining tag committed to this
// block's auxiliary hash.
func (g *Generator) attachParentBlockPlaceholder(template *wire.BlockTemplate) error {
	auxHash, err := coreutil.NewBlock(template).AuxiliaryHash()
	if err != nil {
		return err
	}

	parentExtra, err := wire.BuildExtra(nil, nil, &wire.MergeMiningTag{
		Depth:      0,
		MerkleRoot: auxHash,
	})
	if err != nil {
		return err
	}

	template.ParentBlock = wire.ParentBlock{
		MajorVersion:     wire.BlockMajorVersion1,
		MinorVersion:     wire.BlockMinorVersion0,
		TransactionCount: 1,
		BaseTransaction: wire.Transaction{
			Version:    wire.TransactionVersion1,
			UnlockTime: 0,
			Inputs:     []wire.TransactionInput{&wire.BaseInput{BlockIndex: 0}},
			Outputs: []wire.TransactionOutput{{
				Amount: 1,
				Target: &wire.KeyOutput{},
			}},
			Extra: parentExtra,
		},
	}
	return nil
}

// SubmitBlock parses a completed block and hands it to the chain, pulling
// the referenced transactions from the pool.
func (g *Generator) SubmitBlock(blockBytes []byte) (blockchain.AddResult, error) {
	return g.chain.AddBlock(&wire.RawBlock{Block: blockBytes})
}

// decomposeAmount splits an amount into decimal denominations, merging
// everything below the dust threshold into one leading dust output.
func decomposeAmount(amount, dustThreshold uint64) []uint64 {
	var dust uint64
	var chunks []uint64

	for order := uint64(1); amount > 0; order *= 10 {
		digit := amount % 10
		amount /= 10
		if digit == 0 {
			continue
		}
		chunk := digit * order
		if chunk < dustThreshold {
			dust += chunk
		} else {
			chunks = append(chunks, chunk)
		}
	}

	var outputs []uint64
	if dust > 0 {
		outputs = append(outputs, dust)
	}
	return append(outputs, chunks...)
}

// deriveTxPublicKey produces the template's transaction public key. The
// real daemon derives it from a fresh random scalar; the derivation here
// is a deterministic hash over the template inputs, so the outputs it
// produces are not recognizable by a wallet.
func deriveTxPublicKey(minerAddress crypto.Address, height uint32, extraNonce []byte) crypto.PublicKey {
	seed := crypto.FastHashSlices(
		minerAddress.SpendPublicKey[:],
		minerAddress.ViewPublicKey[:],
		[]byte{byte(height), byte(height >> 8), byte(height >> 16), byte(height >> 24)},
		extraNonce,
	)
	var key crypto.PublicKey
	copy(key[:], seed[:])
	return key
}

// deriveOneTimeKey produces the one-time output key for one coinbase
// output, in the same stand-in manner as deriveTxPublicKey.
func deriveOneTimeKey(txPublicKey crypto.PublicKey, minerAddress crypto.Address, outputIndex uint32) crypto.PublicKey {
	seed := crypto.FastHashSlices(
		txPublicKey[:],
		minerAddress.SpendPublicKey[:],
		[]byte{byte(outputIndex), byte(outputIndex >> 8), byte(outputIndex >> 16), byte(outputIndex >> 24)},
	)
	var key crypto.PublicKey
	copy(key[:], seed[:])
	return key
}
