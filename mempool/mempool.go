// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package mempool keeps the fee-ordered set of unconfirmed transactions and
// guards the at-most-one-live-spend invariant between the pool and the
// chain: a key image or multisignature reference may be spent by at most
// one live transaction across both.
package mempool

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bytecoin-go/bytecoind/coreutil"
	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/bytecoin-go/bytecoind/currency"
	"github.com/bytecoin-go/bytecoind/wire"
)

// defaultMaxPoolBytes bounds the pool's total serialized size when the
// config does not say otherwise.
const defaultMaxPoolBytes = 64 * 1024 * 1024

// ChainSource is the read-only view of the chain's spend state the pool
// borrows. The chain owns the index; the pool only asks.
type ChainSource interface {
	// IsKeyImageSpent reports whether the key image is spent on the
	// main chain.
	IsKeyImageSpent(keyImage crypto.KeyImage) bool

	// IsMultisigOutputSpent reports whether the referenced
	// multisignature output is spent on the main chain.
	IsMultisigOutputSpent(amount uint64, outputIndex uint32) bool

	// TopBlockIndex returns the current main-chain height.
	TopBlockIndex() uint32
}

// Config bundles everything a TxPool needs at construction time.
type Config struct {
	// Currency is the consensus parameter table.
	Currency *currency.Currency

	// Chain is the spent view of the main chain.
	Chain ChainSource

	// TimeSource returns wall-clock time; nil means time.Now.
	TimeSource func() time.Time

	// MaxPoolBytes bounds the total serialized size of pooled
	// transactions; zero selects the default.
	MaxPoolBytes uint64
}

// msigKey fingerprints a multisignature output reference.
type msigKey struct {
	amount      uint64
	outputIndex uint32
	term        uint32
}

// TxDesc is a pool entry: the transaction plus its admission metadata.
type TxDesc struct {
	Tx *coreutil.Tx

	// Added is when the entry joined the pool; TTL runs from here.
	Added time.Time

	// Fee and Size are memoized at admission.
	Fee  uint64
	Size uint64

	// FromAltChain marks entries returned by a chain switch, which live
	// longer before expiring.
	FromAltChain bool
}

// feeDensity returns the fee per byte the entry pays, scaled to avoid
// integer truncation when comparing.
func (desc *TxDesc) feeDensity() float64 {
	if desc.Size == 0 {
		return 0
	}
	return float64(desc.Fee) / float64(desc.Size)
}

// TxPool is the transaction memory pool. All public methods are safe for
// concurrent use.
type TxPool struct {
	mtx sync.RWMutex

	cfg          Config
	maxPoolBytes uint64
	timeSource   func() time.Time

	pool      map[crypto.Hash]*TxDesc
	keyImages map[crypto.KeyImage]crypto.Hash
	msigRefs  map[msigKey]crypto.Hash
	totalSize uint64

	// recentlyDeleted remembers dropped hashes for a while so pool sync
	// does not re-request them immediately.
	recentlyDeleted map[crypto.Hash]time.Time
}

// New returns a new memory pool bound to the given chain view.
func New(cfg *Config) *TxPool {
	timeSource := cfg.TimeSource
	if timeSource == nil {
		timeSource = time.Now
	}
	maxPoolBytes := cfg.MaxPoolBytes
	if maxPoolBytes == 0 {
		maxPoolBytes = defaultMaxPoolBytes
	}
	return &TxPool{
		cfg:             *cfg,
		maxPoolBytes:    maxPoolBytes,
		timeSource:      timeSource,
		pool:            make(map[crypto.Hash]*TxDesc),
		keyImages:       make(map[crypto.KeyImage]crypto.Hash),
		msigRefs:        make(map[msigKey]crypto.Hash),
		recentlyDeleted: make(map[crypto.Hash]time.Time),
	}
}

// Add admits a transaction into the pool or returns a TxRuleError saying
// why it cannot live there.
func (mp *TxPool) Add(tx *coreutil.Tx) error {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()
	return mp.add(tx, false)
}

func (mp *TxPool) add(tx *coreutil.Tx, fromAltChain bool) error {
	txHash, err := tx.Hash()
	if err != nil {
		return txRuleError(RejectInvalid, err.Error())
	}
	if _, exists := mp.pool[txHash]; exists {
		return txRuleError(RejectDuplicate, fmt.Sprintf(
			"transaction %s is already in the pool", txHash))
	}

	transaction := tx.Transaction()
	if transaction.IsCoinbase() || len(transaction.Inputs) == 0 {
		return txRuleError(RejectInvalid, "coinbase or inputless transaction")
	}
	if len(transaction.Outputs) == 0 {
		return txRuleError(RejectInvalid, "transaction has no outputs")
	}

	size, err := tx.Size()
	if err != nil {
		return txRuleError(RejectInvalid, err.Error())
	}
	if size > mp.cfg.Currency.MaxTransactionSizeLimit {
		return txRuleError(RejectTooBig, fmt.Sprintf(
			"transaction of %d bytes exceeds the relay limit of %d",
			size, mp.cfg.Currency.MaxTransactionSizeLimit))
	}

	fee, err := mp.transactionFee(transaction)
	if err != nil {
		return err
	}
	if fee < mp.cfg.Currency.MinimumFee {
		return txRuleError(RejectFeeTooLow, fmt.Sprintf(
			"fee %d below the relay minimum %d", fee, mp.cfg.Currency.MinimumFee))
	}

	// The double-spend fingerprint: every key image and multisignature
	// reference must be fresh in both the pool and the chain.
	keyImages, msigKeys, err := mp.spendFingerprint(transaction)
	if err != nil {
		return err
	}

	desc := &TxDesc{
		Tx:           tx,
		Added:        mp.timeSource(),
		Fee:          fee,
		Size:         size,
		FromAltChain: fromAltChain,
	}
	mp.pool[txHash] = desc
	for _, keyImage := range keyImages {
		mp.keyImages[keyImage] = txHash
	}
	for _, key := range msigKeys {
		mp.msigRefs[key] = txHash
	}
	mp.totalSize += size
	delete(mp.recentlyDeleted, txHash)

	mp.enforceSizeBudget()

	log.Debugf("Accepted transaction %s (pool %d txs, %d bytes)",
		txHash, len(mp.pool), mp.totalSize)
	return nil
}

// transactionFee computes the fee, crediting deposit interest on matured
// term inputs so a deposit withdrawal is not mistaken for an overspend.
func (mp *TxPool) transactionFee(transaction *wire.Transaction) (uint64, error) {
	var inputSum, outputSum uint64
	for _, input := range transaction.Inputs {
		switch in := input.(type) {
		case *wire.KeyInput:
			inputSum += in.Amount
		case *wire.MultisignatureInput:
			inputSum += in.Amount
			if in.Term > 0 {
				inputSum += mp.cfg.Currency.CalculateInterest(in.Amount, in.Term)
			}
		}
	}
	for i := range transaction.Outputs {
		if transaction.Outputs[i].Amount == 0 {
			return 0, txRuleError(RejectInvalid, "transaction output of amount zero")
		}
		outputSum += transaction.Outputs[i].Amount
	}
	if outputSum > inputSum {
		return 0, txRuleError(RejectInvalid, fmt.Sprintf(
			"transaction outputs %d exceed inputs %d", outputSum, inputSum))
	}
	return inputSum - outputSum, nil
}

// spendFingerprint extracts the transaction's spend fingerprint and
// rejects any component that is already live in the pool or spent on the
// chain.
func (mp *TxPool) spendFingerprint(transaction *wire.Transaction) ([]crypto.KeyImage, []msigKey, error) {
	var keyImages []crypto.KeyImage
	var msigKeys []msigKey
	seen := make(map[crypto.KeyImage]struct{})

	for _, input := range transaction.Inputs {
		switch in := input.(type) {
		case *wire.KeyInput:
			if _, dup := seen[in.KeyImage]; dup {
				return nil, nil, txRuleError(RejectInvalid, fmt.Sprintf(
					"key image %s used twice within the transaction", in.KeyImage))
			}
			seen[in.KeyImage] = struct{}{}
			if conflicting, ok := mp.keyImages[in.KeyImage]; ok {
				return nil, nil, txRuleError(RejectDoubleSpend, fmt.Sprintf(
					"key image %s already spent by pooled transaction %s",
					in.KeyImage, conflicting))
			}
			if mp.cfg.Chain.IsKeyImageSpent(in.KeyImage) {
				return nil, nil, txRuleError(RejectDoubleSpend, fmt.Sprintf(
					"key image %s already spent on the chain", in.KeyImage))
			}
			keyImages = append(keyImages, in.KeyImage)

		case *wire.MultisignatureInput:
			key := msigKey{amount: in.Amount, outputIndex: in.OutputIndex, term: in.Term}
			if conflicting, ok := mp.msigRefs[key]; ok {
				return nil, nil, txRuleError(RejectDoubleSpend, fmt.Sprintf(
					"multisignature output %d of amount %d already referenced by pooled transaction %s",
					in.OutputIndex, in.Amount, conflicting))
			}
			if mp.cfg.Chain.IsMultisigOutputSpent(in.Amount, in.OutputIndex) {
				return nil, nil, txRuleError(RejectDoubleSpend, fmt.Sprintf(
					"multisignature output %d of amount %d already spent on the chain",
					in.OutputIndex, in.Amount))
			}
			msigKeys = append(msigKeys, key)
		}
	}
	return keyImages, msigKeys, nil
}

// RemoveTransaction drops a transaction from the pool, remembering the
// hash briefly so pool sync does not immediately re-request it.
func (mp *TxPool) RemoveTransaction(hash crypto.Hash) {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()
	mp.remove(hash, true)
}

func (mp *TxPool) remove(hash crypto.Hash, remember bool) {
	desc, ok := mp.pool[hash]
	if !ok {
		return
	}
	for _, input := range desc.Tx.Transaction().Inputs {
		switch in := input.(type) {
		case *wire.KeyInput:
			delete(mp.keyImages, in.KeyImage)
		case *wire.MultisignatureInput:
			delete(mp.msigRefs, msigKey{amount: in.Amount, outputIndex: in.OutputIndex, term: in.Term})
		}
	}
	mp.totalSize -= desc.Size
	delete(mp.pool, hash)
	if remember {
		mp.recentlyDeleted[hash] = mp.timeSource()
	}
}

// ReturnTransactions offers transactions from disconnected blocks back to
// the pool. Conflicting or invalid entries are dropped silently.
func (mp *TxPool) ReturnTransactions(txs []*coreutil.Tx, fromAltChain bool) {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()
	for _, tx := range txs {
		if err := mp.add(tx, fromAltChain); err != nil {
			txHash, hashErr := tx.Hash()
			if hashErr == nil {
				log.Debugf("Transaction %s not returned to pool: %v", txHash, err)
			}
		}
	}
}

// Contains returns whether the pool holds the transaction.
func (mp *TxPool) Contains(hash crypto.Hash) bool {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()
	_, ok := mp.pool[hash]
	return ok
}

// WasRecentlyDeleted returns whether the hash was dropped from the pool
// recently.
func (mp *TxPool) WasRecentlyDeleted(hash crypto.Hash) bool {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()
	_, ok := mp.recentlyDeleted[hash]
	return ok
}

// GetTransaction returns a pooled transaction by hash.
func (mp *TxPool) GetTransaction(hash crypto.Hash) (*coreutil.Tx, bool) {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()
	desc, ok := mp.pool[hash]
	if !ok {
		return nil, false
	}
	return desc.Tx, true
}

// TxHashes returns the hashes of every pooled transaction.
func (mp *TxPool) TxHashes() []crypto.Hash {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()
	hashes := make([]crypto.Hash, 0, len(mp.pool))
	for hash := range mp.pool {
		hashes = append(hashes, hash)
	}
	return hashes
}

// Count returns the number of pooled transactions.
func (mp *TxPool) Count() int {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()
	return len(mp.pool)
}

// TotalBytes returns the serialized size of the pool.
func (mp *TxPool) TotalBytes() uint64 {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()
	return mp.totalSize
}

// Take returns a fee-density-ordered subset of the pool fitting into
// maxBytes, for block template assembly.
func (mp *TxPool) Take(maxBytes uint64) []*coreutil.Tx {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()

	descs := make([]*TxDesc, 0, len(mp.pool))
	for _, desc := range mp.pool {
		descs = append(descs, desc)
	}
	sort.Slice(descs, func(i, j int) bool {
		return descs[i].feeDensity() > descs[j].feeDensity()
	})

	var taken []*coreutil.Tx
	var used uint64
	for _, desc := range descs {
		if used+desc.Size > maxBytes {
			continue
		}
		taken = append(taken, desc.Tx)
		used += desc.Size
	}
	return taken
}

// HandleIdle evicts expired entries and forgets old deletions. The node
// calls it on every idle tick.
func (mp *TxPool) HandleIdle() {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()

	now := mp.timeSource()
	for hash, desc := range mp.pool {
		livetime := time.Duration(mp.cfg.Currency.MempoolTxLivetime) * time.Second
		if desc.FromAltChain {
			livetime = time.Duration(mp.cfg.Currency.MempoolTxFromAltLivetime) * time.Second
		}
		if now.Sub(desc.Added) > livetime {
			log.Debugf("Expiring pooled transaction %s after %v", hash, now.Sub(desc.Added))
			mp.remove(hash, true)
		}
	}

	forgetAfter := time.Duration(mp.cfg.Currency.MempoolTxLivetime*
		mp.cfg.Currency.NumberOfPeriodsToForgetTx) * time.Second
	for hash, deleted := range mp.recentlyDeleted {
		if now.Sub(deleted) > forgetAfter {
			delete(mp.recentlyDeleted, hash)
		}
	}
}

// enforceSizeBudget evicts the lowest fee-density entries until the pool
// fits its byte budget again.
func (mp *TxPool) enforceSizeBudget() {
	if mp.totalSize <= mp.maxPoolBytes {
		return
	}

	descs := make([]*TxDesc, 0, len(mp.pool))
	hashes := make(map[*TxDesc]crypto.Hash, len(mp.pool))
	for hash, desc := range mp.pool {
		descs = append(descs, desc)
		hashes[desc] = hash
	}
	sort.Slice(descs, func(i, j int) bool {
		return descs[i].feeDensity() < descs[j].feeDensity()
	})

	for _, desc := range descs {
		if mp.totalSize <= mp.maxPoolBytes {
			return
		}
		hash := hashes[desc]
		log.Infof("Evicting transaction %s to respect the pool size budget", hash)
		mp.remove(hash, true)
	}
}
