// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"fmt"
	"sort"

	"github.com/bytecoin-go/bytecoind/coreutil"
	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/bytecoin-go/bytecoind/currency"
	"github.com/bytecoin-go/bytecoind/wire"
)

// validationContext carries the values the validation pipeline computes
// that the connect step needs again.
type validationContext struct {
	difficulty     uint64
	blockSize      uint64
	totalFees      uint64
	totalInterest  uint64
	emissionChange uint64
}

// blockSpendSet tracks the spends of a block while its transactions are
// validated, so a double spend across two transactions of the same block
// is caught before any index is touched.
type blockSpendSet struct {
	keyImages map[crypto.KeyImage]struct{}
	msigRefs  map[msigRef]struct{}
}

func newBlockSpendSet() *blockSpendSet {
	return &blockSpendSet{
		keyImages: make(map[crypto.KeyImage]struct{}),
		msigRefs:  make(map[msigRef]struct{}),
	}
}

// validateBlock runs the full pipeline against a block extending parent.
// With trusted set the expensive proof-of-work and signature checks are
// skipped; that mode is reserved for replaying local storage.
func (chain *Chain) validateBlock(parent *blockNode, block *coreutil.Block, transactions []*coreutil.Tx, trusted bool) (*validationContext, error) {
	template := block.Template()
	height := parent.height + 1

	// Step 1: shape.
	if err := chain.checkBlockSanity(block, height); err != nil {
		return nil, err
	}

	// Step 3: version gate. (Step 2, the previous link, is established
	// by the caller routing the block here.)
	expectedVersion := chain.detectors.majorVersionForHeight(height)
	if template.MajorVersion != expectedVersion {
		return nil, ruleError(ErrBlockVersion, fmt.Sprintf(
			"block major version %d at height %d, want %d",
			template.MajorVersion, height, expectedVersion))
	}

	// Step 4: timestamp.
	if err := chain.checkTimestamp(parent, template.Timestamp); err != nil {
		return nil, err
	}

	// Step 5: proof of work, short-circuited inside the checkpoint zone.
	difficulty := chain.difficultyForBranch(parent, template.MajorVersion)
	hash, err := block.Hash()
	if err != nil {
		return nil, ruleError(ErrMalformedBlock, err.Error())
	}
	if chain.checkpoints.isInZone(height) {
		if !chain.checkpoints.check(height, hash) {
			return nil, ruleError(ErrCheckpointMismatch, fmt.Sprintf(
				"block %s conflicts with checkpoint at height %d", hash, height))
		}
	} else if !trusted {
		longHash, err := block.LongHash(chain.powHasher)
		if err != nil {
			return nil, ruleError(ErrMalformedBlock, err.Error())
		}
		if !crypto.CheckHashMeetsDifficulty(longHash, difficulty) {
			return nil, ruleError(ErrHighHash, fmt.Sprintf(
				"proof of work %s does not meet difficulty %d", longHash, difficulty))
		}
	}

	// Steps 6 and 7: transactions and in-block double spends.
	spends := newBlockSpendSet()
	var totalFees, totalInterest uint64
	for _, tx := range transactions {
		fee, interest, err := chain.validateTransaction(tx, height, template.MajorVersion, spends, trusted)
		if err != nil {
			return nil, err
		}
		totalFees += fee
		totalInterest += interest
	}

	// Step 8: size.
	blockBytes, err := block.Bytes()
	if err != nil {
		return nil, ruleError(ErrMalformedBlock, err.Error())
	}
	blockSize := uint64(len(blockBytes))
	for _, tx := range transactions {
		txSize, err := tx.Size()
		if err != nil {
			return nil, ruleError(ErrMalformedBlock, err.Error())
		}
		blockSize += txSize
	}
	if blockSize > chain.currency.MaxBlockCumulativeSize(uint64(height)) {
		return nil, ruleError(ErrBlockTooBig, fmt.Sprintf(
			"cumulative block size %d exceeds limit at height %d", blockSize, height))
	}

	// Step 9: coinbase money.
	medianSize := chain.medianBlockSize(parent)
	reward, emissionChange, err := chain.currency.BlockReward(template.MajorVersion,
		medianSize, blockSize, parent.alreadyGeneratedCoins, totalFees)
	if err != nil {
		return nil, ruleError(ErrBlockTooBig, err.Error())
	}
	var coinbaseSum uint64
	for i := range template.BaseTransaction.Outputs {
		coinbaseSum += template.BaseTransaction.Outputs[i].Amount
	}
	if coinbaseSum != reward {
		return nil, ruleError(ErrCoinbaseSum, fmt.Sprintf(
			"coinbase pays %d, want %d (base reward with fees %d)",
			coinbaseSum, reward, totalFees))
	}

	return &validationContext{
		difficulty:     difficulty,
		blockSize:      blockSize,
		totalFees:      totalFees,
		totalInterest:  totalInterest,
		emissionChange: emissionChange,
	}, nil
}

// validateAlternativeBlock runs the cheap contextual subset against a block
// extending a side chain. The full pipeline runs if the side chain ever
// wins and the block is re-applied.
func (chain *Chain) validateAlternativeBlock(parent *blockNode, block *coreutil.Block, transactions []*coreutil.Tx) error {
	template := block.Template()
	height := parent.height + 1

	if err := chain.checkBlockSanity(block, height); err != nil {
		return err
	}

	expectedVersion := chain.detectors.majorVersionForHeight(height)
	if template.MajorVersion != expectedVersion {
		return ruleError(ErrBlockVersion, fmt.Sprintf(
			"alternative block major version %d at height %d, want %d",
			template.MajorVersion, height, expectedVersion))
	}

	if err := chain.checkTimestamp(parent, template.Timestamp); err != nil {
		return err
	}

	difficulty := chain.difficultyForBranch(parent, template.MajorVersion)
	longHash, err := block.LongHash(chain.powHasher)
	if err != nil {
		return ruleError(ErrMalformedBlock, err.Error())
	}
	if !crypto.CheckHashMeetsDifficulty(longHash, difficulty) {
		return ruleError(ErrHighHash, fmt.Sprintf(
			"alternative proof of work %s does not meet difficulty %d", longHash, difficulty))
	}
	return nil
}

// checkBlockSanity validates the context-free shape of a block.
func (chain *Chain) checkBlockSanity(block *coreutil.Block, height uint32) error {
	template := block.Template()

	if template.MajorVersion > wire.BlockMajorVersion3 {
		return ruleError(ErrBlockVersion, fmt.Sprintf(
			"unknown block major version %d", template.MajorVersion))
	}

	coinbase := &template.BaseTransaction
	if !coinbase.IsCoinbase() {
		return ruleError(ErrInvalidCoinbase, "base transaction is not a coinbase")
	}
	baseInput := coinbase.Inputs[0].(*wire.BaseInput)
	if baseInput.BlockIndex != height {
		return ruleError(ErrInvalidCoinbase, fmt.Sprintf(
			"coinbase declares block index %d, want %d", baseInput.BlockIndex, height))
	}
	if coinbase.UnlockTime != uint64(height)+currency.MinedMoneyUnlockWindow {
		return ruleError(ErrInvalidCoinbase, fmt.Sprintf(
			"coinbase unlock time %d, want %d",
			coinbase.UnlockTime, uint64(height)+currency.MinedMoneyUnlockWindow))
	}
	if len(coinbase.Outputs) == 0 {
		return ruleError(ErrNoOutputs, "coinbase has no outputs")
	}
	for i := range coinbase.Outputs {
		if coinbase.Outputs[i].Amount == 0 {
			return ruleError(ErrZeroOutput, "coinbase output of amount zero")
		}
	}
	return nil
}

// checkTimestamp enforces the median-past and future-limit rules.
func (chain *Chain) checkTimestamp(parent *blockNode, timestamp uint64) error {
	timestamps := chain.lastTimestamps(parent, currency.TimestampCheckWindow)
	if len(timestamps) > 0 {
		median := medianUint64(timestamps)
		if timestamp <= median {
			return ruleError(ErrTimestampTooOld, fmt.Sprintf(
				"block timestamp %d is not above the median %d", timestamp, median))
		}
	}

	limit := uint64(chain.timeSource().Unix()) + currency.BlockFutureTimeLimit
	if timestamp > limit {
		return ruleError(ErrTimestampTooFar, fmt.Sprintf(
			"block timestamp %d is more than %d seconds in the future",
			timestamp, currency.BlockFutureTimeLimit))
	}
	return nil
}

// validateTransaction validates one non-coinbase transaction in the
// context of a block at the given height and returns its fee and the
// deposit interest it realizes.
func (chain *Chain) validateTransaction(tx *coreutil.Tx, height uint32, blockMajorVersion uint8, spends *blockSpendSet, trusted bool) (fee, interest uint64, err error) {
	transaction := tx.Transaction()

	txSize, err := tx.Size()
	if err != nil {
		return 0, 0, ruleError(ErrMalformedBlock, err.Error())
	}
	if txSize > currency.MaxTxSize {
		return 0, 0, ruleError(ErrTxTooBig, fmt.Sprintf(
			"transaction of %d bytes exceeds the hard cap", txSize))
	}

	switch transaction.Version {
	case wire.TransactionVersion1:
	case wire.TransactionVersion2:
		if blockMajorVersion < wire.BlockMajorVersion2 {
			return 0, 0, ruleError(ErrTxVersion,
				"version 2 transaction before block major version 2")
		}
	default:
		return 0, 0, ruleError(ErrTxVersion, fmt.Sprintf(
			"unknown transaction version %d", transaction.Version))
	}

	if len(transaction.Inputs) == 0 {
		return 0, 0, ruleError(ErrNoInputs, "transaction has no inputs")
	}
	if len(transaction.Outputs) == 0 {
		return 0, 0, ruleError(ErrNoOutputs, "transaction has no outputs")
	}
	if len(transaction.Signatures) != len(transaction.Inputs) {
		return 0, 0, ruleError(ErrInvalidSignature, fmt.Sprintf(
			"transaction carries %d signature groups for %d inputs",
			len(transaction.Signatures), len(transaction.Inputs)))
	}

	var outputSum uint64
	for i := range transaction.Outputs {
		output := &transaction.Outputs[i]
		if output.Amount == 0 {
			return 0, 0, ruleError(ErrZeroOutput, "transaction output of amount zero")
		}
		if target, ok := output.Target.(*wire.MultisignatureOutput); ok {
			if len(target.Keys) == 0 || int(target.RequiredSignatureCount) > len(target.Keys) {
				return 0, 0, ruleError(ErrMultisigReference, fmt.Sprintf(
					"multisignature output requires %d of %d keys",
					target.RequiredSignatureCount, len(target.Keys)))
			}
			if target.Term != 0 {
				if target.Term < chain.currency.DepositMinTerm || target.Term > chain.currency.DepositMaxTerm {
					return 0, 0, ruleError(ErrMultisigReference, fmt.Sprintf(
						"deposit term %d outside [%d, %d]",
						target.Term, chain.currency.DepositMinTerm, chain.currency.DepositMaxTerm))
				}
				if output.Amount < chain.currency.DepositMinAmount {
					return 0, 0, ruleError(ErrMultisigReference, fmt.Sprintf(
						"deposit amount %d below minimum %d",
						output.Amount, chain.currency.DepositMinAmount))
				}
			}
		}
		outputSum += output.Amount
	}

	prefixHash, err := tx.PrefixHash()
	if err != nil {
		return 0, 0, ruleError(ErrMalformedBlock, err.Error())
	}

	var inputSum uint64
	for i, input := range transaction.Inputs {
		switch in := input.(type) {
		case *wire.BaseInput:
			return 0, 0, ruleError(ErrInvalidCoinbase, "coinbase input in a standard transaction")

		case *wire.KeyInput:
			if in.Amount == 0 {
				return 0, 0, ruleError(ErrZeroOutput, "key input of amount zero")
			}
			if len(in.OutputOffsets) == 0 {
				return 0, 0, ruleError(ErrBadOutputReference, "key input references no outputs")
			}
			if _, dup := spends.keyImages[in.KeyImage]; dup {
				return 0, 0, ruleError(ErrDuplicateKeyImage, fmt.Sprintf(
					"key image %s spent twice within the block", in.KeyImage))
			}
			if chain.indexes.isSpent(in.KeyImage) {
				return 0, 0, ruleError(ErrSpentKeyImage, fmt.Sprintf(
					"key image %s already spent on the chain", in.KeyImage))
			}

			referenced, err := chain.indexes.resolveKeyInput(in)
			if err != nil {
				return 0, 0, ruleError(ErrBadOutputReference, err.Error())
			}
			ringKeys := make([]crypto.PublicKey, len(referenced))
			for j, entry := range referenced {
				if err := chain.checkOutputSpendable(&entry, height); err != nil {
					return 0, 0, err
				}
				ringKeys[j] = entry.publicKey
			}

			if len(transaction.Signatures[i]) != len(in.OutputOffsets) {
				return 0, 0, ruleError(ErrInvalidSignature, fmt.Sprintf(
					"ring of %d members carries %d signatures",
					len(in.OutputOffsets), len(transaction.Signatures[i])))
			}
			if !trusted && !chain.sigVerifier.CheckRingSignature(prefixHash, in.KeyImage, ringKeys, transaction.Signatures[i]) {
				return 0, 0, ruleError(ErrInvalidSignature, fmt.Sprintf(
					"invalid ring signature for key image %s", in.KeyImage))
			}

			spends.keyImages[in.KeyImage] = struct{}{}
			inputSum += in.Amount

		case *wire.MultisignatureInput:
			ref := msigRef{amount: in.Amount, outputIndex: in.OutputIndex, term: in.Term}
			if _, dup := spends.msigRefs[ref]; dup {
				return 0, 0, ruleError(ErrDuplicateKeyImage, fmt.Sprintf(
					"multisignature output %d of amount %d spent twice within the block",
					in.OutputIndex, in.Amount))
			}

			entry, err := chain.indexes.msigOutput(in.Amount, in.OutputIndex)
			if err != nil {
				return 0, 0, ruleError(ErrMultisigReference, err.Error())
			}
			if entry.spent {
				return 0, 0, ruleError(ErrSpentKeyImage, fmt.Sprintf(
					"multisignature output %d of amount %d already spent",
					in.OutputIndex, in.Amount))
			}
			if entry.term != in.Term {
				return 0, 0, ruleError(ErrMultisigReference, fmt.Sprintf(
					"input term %d does not match output term %d", in.Term, entry.term))
			}
			if entry.requiredCount != in.SignatureCount {
				return 0, 0, ruleError(ErrMultisigReference, fmt.Sprintf(
					"input declares %d signatures, output requires %d",
					in.SignatureCount, entry.requiredCount))
			}
			if in.Term > 0 {
				if uint64(entry.height)+uint64(in.Term) > uint64(height) {
					return 0, 0, ruleError(ErrDepositLocked, fmt.Sprintf(
						"deposit created at height %d with term %d spent at height %d",
						entry.height, in.Term, height))
				}
				interest += chain.currency.CalculateInterest(in.Amount, in.Term)
			} else if !chain.unlockTimeReached(entry.unlockTime, height) {
				return 0, 0, ruleError(ErrUnlockTime, fmt.Sprintf(
					"multisignature output unlocks at %d", entry.unlockTime))
			}

			if len(transaction.Signatures[i]) != int(in.SignatureCount) {
				return 0, 0, ruleError(ErrInvalidSignature, fmt.Sprintf(
					"multisignature input declares %d signatures, carries %d",
					in.SignatureCount, len(transaction.Signatures[i])))
			}
			if !trusted && !chain.checkMultisigSignatures(prefixHash, entry, transaction.Signatures[i]) {
				return 0, 0, ruleError(ErrInvalidSignature,
					"invalid multisignature input signatures")
			}

			spends.msigRefs[ref] = struct{}{}
			inputSum += in.Amount
		}
	}

	available := inputSum + interest
	if outputSum > available {
		return 0, 0, ruleError(ErrInvalidAmount, fmt.Sprintf(
			"transaction outputs %d exceed inputs %d", outputSum, available))
	}
	return available - outputSum, interest, nil
}

// checkOutputSpendable enforces maturity of a referenced key output: its
// unlock time must be reached and coinbase outputs must additionally have
// cleared the mined-money unlock window.
func (chain *Chain) checkOutputSpendable(entry *outputEntry, height uint32) error {
	if entry.isCoinbase && uint64(entry.height)+currency.MinedMoneyUnlockWindow > uint64(height) {
		return ruleError(ErrUnlockTime, fmt.Sprintf(
			"coinbase output mined at height %d spent at height %d", entry.height, height))
	}
	if !chain.unlockTimeReached(entry.unlockTime, height) {
		return ruleError(ErrUnlockTime, fmt.Sprintf(
			"referenced output unlocks at %d", entry.unlockTime))
	}
	return nil
}

// unlockTimeReached interprets an unlock time the CryptoNote way: values
// below the maximum block number are heights, everything above is a unix
// timestamp. A small forward allowance applies in both domains.
func (chain *Chain) unlockTimeReached(unlockTime uint64, height uint32) bool {
	if unlockTime < currency.MaxBlockNumber {
		return unlockTime <= uint64(height)+currency.LockedTxAllowedDeltaBlocks
	}
	now := uint64(chain.timeSource().Unix())
	return unlockTime <= now+currency.LockedTxAllowedDeltaSeconds
}

// checkMultisigSignatures verifies the provided signatures against the
// output keys: every signature must match a distinct key, in order.
func (chain *Chain) checkMultisigSignatures(prefixHash crypto.Hash, entry *msigEntry, signatures []crypto.Signature) bool {
	keyIndex := 0
	for i := range signatures {
		matched := false
		for keyIndex < len(entry.keys) {
			if chain.sigVerifier.CheckSignature(prefixHash, entry.keys[keyIndex], signatures[i]) {
				matched = true
				keyIndex++
				break
			}
			keyIndex++
		}
		if !matched {
			return false
		}
	}
	return true
}

// difficultyForBranch computes the difficulty of the next block after
// parent, following parent pointers so side chains see their own window.
func (chain *Chain) difficultyForBranch(parent *blockNode, blockMajorVersion uint8) uint64 {
	window := chain.currency.DifficultyWindow
	timestamps := make([]uint64, 0, window)
	cumulativeDifficulties := make([]uint64, 0, window)

	for node := parent; node != nil && len(timestamps) < window; node = node.parent {
		timestamps = append(timestamps, node.timestamp)
		cumulativeDifficulties = append(cumulativeDifficulties, node.cumulativeDifficulty)
	}

	// The walk collected newest first; the retarget expects oldest first.
	reverseUint64(timestamps)
	reverseUint64(cumulativeDifficulties)
	return chain.currency.NextDifficulty(blockMajorVersion, timestamps, cumulativeDifficulties)
}

// lastTimestamps returns up to count trailing timestamps ending at node,
// oldest first.
func (chain *Chain) lastTimestamps(node *blockNode, count int) []uint64 {
	timestamps := make([]uint64, 0, count)
	for ; node != nil && len(timestamps) < count; node = node.parent {
		timestamps = append(timestamps, node.timestamp)
	}
	reverseUint64(timestamps)
	return timestamps
}

// medianBlockSize returns the median cumulative block size over the reward
// window ending at node.
func (chain *Chain) medianBlockSize(node *blockNode) uint64 {
	window := int(chain.currency.RewardBlocksWindow)
	sizes := make([]uint64, 0, window)
	for ; node != nil && len(sizes) < window; node = node.parent {
		sizes = append(sizes, node.blockSize)
	}
	if len(sizes) == 0 {
		return 0
	}
	return medianUint64(sizes)
}

// medianUint64 returns the median of the values; for an even count the two
// middle values are averaged.
func medianUint64(values []uint64) uint64 {
	sorted := make([]uint64, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func reverseUint64(values []uint64) {
	for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
		values[i], values[j] = values[j], values[i]
	}
}
