// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/bytecoin-go/bytecoind/wire"
	"github.com/pkg/errors"
)

// outputEntry is one global key output of a given amount on the main chain.
type outputEntry struct {
	publicKey  crypto.PublicKey
	txHash     crypto.Hash
	height     uint32
	unlockTime uint64
	isCoinbase bool
}

// msigEntry is one global multisignature output of a given amount on the
// main chain. Spent entries stay in place so global indexes remain stable;
// rollback just clears the flag.
type msigEntry struct {
	keys          []crypto.PublicKey
	requiredCount uint8
	term          uint32
	height        uint32
	unlockTime    uint64
	spent         bool
}

// msigRef identifies a multisignature output by amount and global index.
// Term travels with the reference because the pool fingerprints include it.
type msigRef struct {
	amount      uint64
	outputIndex uint32
	term        uint32
}

// chainIndexes is the spend-tracking state of the main chain: the global
// key outputs per amount, the multisignature outputs per amount, the spent
// key images, and the running deposit total. The chain owns it exclusively;
// the pool sees it only through the read-only view the chain exports.
type chainIndexes struct {
	keyOutputs     map[uint64][]outputEntry
	msigOutputs    map[uint64][]msigEntry
	spentKeyImages map[crypto.KeyImage]uint32
	lockedDeposits uint64
}

func newChainIndexes() *chainIndexes {
	return &chainIndexes{
		keyOutputs:     make(map[uint64][]outputEntry),
		msigOutputs:    make(map[uint64][]msigEntry),
		spentKeyImages: make(map[crypto.KeyImage]uint32),
	}
}

// isSpent returns whether the key image is spent on the main chain.
func (idx *chainIndexes) isSpent(keyImage crypto.KeyImage) bool {
	_, ok := idx.spentKeyImages[keyImage]
	return ok
}

// resolveKeyInput converts the delta-encoded offsets of a key input into
// the referenced output entries.
func (idx *chainIndexes) resolveKeyInput(in *wire.KeyInput) ([]outputEntry, error) {
	outputs := idx.keyOutputs[in.Amount]
	entries := make([]outputEntry, len(in.OutputOffsets))
	var absolute uint64
	for i, offset := range in.OutputOffsets {
		if i == 0 {
			absolute = uint64(offset)
		} else {
			absolute += uint64(offset)
		}
		if absolute >= uint64(len(outputs)) {
			return nil, errors.Errorf("output offset %d of amount %d does not resolve",
				absolute, in.Amount)
		}
		entries[i] = outputs[absolute]
	}
	return entries, nil
}

// msigOutput returns the referenced multisignature output.
func (idx *chainIndexes) msigOutput(amount uint64, outputIndex uint32) (*msigEntry, error) {
	outputs := idx.msigOutputs[amount]
	if uint64(outputIndex) >= uint64(len(outputs)) {
		return nil, errors.Errorf("multisignature output %d of amount %d does not exist",
			outputIndex, amount)
	}
	return &outputs[outputIndex], nil
}

// blockSideEffects records everything connecting one block changed, so a
// rollback can unroll it exactly.
type blockSideEffects struct {
	spentKeyImages []crypto.KeyImage
	spentMsig      []msigRef
	keyOutputs     map[uint64]int // outputs appended per amount
	msigOutputs    map[uint64]int
	depositsLocked   uint64
	depositsUnlocked uint64
}

// connectTransaction applies the outputs and spends of a validated
// transaction to the indexes and accumulates the side effects.
func (idx *chainIndexes) connectTransaction(tx *wire.Transaction, txHash crypto.Hash, height uint32, effects *blockSideEffects) {
	for _, input := range tx.Inputs {
		switch in := input.(type) {
		case *wire.KeyInput:
			idx.spentKeyImages[in.KeyImage] = height
			effects.spentKeyImages = append(effects.spentKeyImages, in.KeyImage)

		case *wire.MultisignatureInput:
			output := &idx.msigOutputs[in.Amount][in.OutputIndex]
			output.spent = true
			effects.spentMsig = append(effects.spentMsig,
				msigRef{amount: in.Amount, outputIndex: in.OutputIndex, term: in.Term})
			if in.Term > 0 {
				effects.depositsUnlocked += in.Amount
			}
		}
	}

	isCoinbase := tx.IsCoinbase()
	for i := range tx.Outputs {
		output := &tx.Outputs[i]
		switch target := output.Target.(type) {
		case *wire.KeyOutput:
			idx.keyOutputs[output.Amount] = append(idx.keyOutputs[output.Amount], outputEntry{
				publicKey:  target.Key,
				txHash:     txHash,
				height:     height,
				unlockTime: tx.UnlockTime,
				isCoinbase: isCoinbase,
			})
			effects.keyOutputs[output.Amount]++

		case *wire.MultisignatureOutput:
			idx.msigOutputs[output.Amount] = append(idx.msigOutputs[output.Amount], msigEntry{
				keys:          target.Keys,
				requiredCount: target.RequiredSignatureCount,
				term:          target.Term,
				height:        height,
				unlockTime:    tx.UnlockTime,
			})
			effects.msigOutputs[output.Amount]++
			if target.Term > 0 {
				effects.depositsLocked += output.Amount
			}
		}
	}
}

// applyDeposits folds the deposit deltas of a connected block into the
// running locked total.
func (idx *chainIndexes) applyDeposits(effects *blockSideEffects) {
	idx.lockedDeposits += effects.depositsLocked
	idx.lockedDeposits -= effects.depositsUnlocked
}

// disconnectBlock unrolls the side effects of the most recently connected
// block.
func (idx *chainIndexes) disconnectBlock(effects *blockSideEffects) {
	for _, keyImage := range effects.spentKeyImages {
		delete(idx.spentKeyImages, keyImage)
	}
	for _, ref := range effects.spentMsig {
		idx.msigOutputs[ref.amount][ref.outputIndex].spent = false
	}
	for amount, count := range effects.keyOutputs {
		outputs := idx.keyOutputs[amount]
		idx.keyOutputs[amount] = outputs[:len(outputs)-count]
	}
	for amount, count := range effects.msigOutputs {
		outputs := idx.msigOutputs[amount]
		idx.msigOutputs[amount] = outputs[:len(outputs)-count]
	}
	idx.lockedDeposits -= effects.depositsLocked
	idx.lockedDeposits += effects.depositsUnlocked
}

func newBlockSideEffects() *blockSideEffects {
	return &blockSideEffects{
		keyOutputs:  make(map[uint64]int),
		msigOutputs: make(map[uint64]int),
	}
}
