// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"sync"
	"time"

	"github.com/bytecoin-go/bytecoind/coreutil"
	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/bytecoin-go/bytecoind/currency"
	"github.com/bytecoin-go/bytecoind/wire"
	"github.com/pkg/errors"
)

// maxOrphanBlocks is the bound on the orphan buffer; the oldest entry is
// evicted once it is exceeded.
const maxOrphanBlocks = 100

// AddResult describes the outcome of handing a block to the chain.
type AddResult int

// The possible outcomes of AddBlock.
const (
	// AddRejected means the block violated a consensus rule; the
	// accompanying error carries the RuleError.
	AddRejected AddResult = iota

	// AddedToMainChain means the block extended the main chain tip.
	AddedToMainChain

	// AddedToAlternative means the block attached to a side chain that
	// is not heavier than the main chain.
	AddedToAlternative

	// AddedToAlternativeAndSwitched means the block attached to a side
	// chain whose cumulative difficulty overtook the main chain and the
	// chains were switched.
	AddedToAlternativeAndSwitched

	// AddAlreadyExists means the block was known; the call is an
	// idempotent no-op.
	AddAlreadyExists

	// AddOrphaned means the block's parent is unknown and the block was
	// buffered for retry.
	AddOrphaned
)

var addResultStrings = map[AddResult]string{
	AddRejected:                   "rejected",
	AddedToMainChain:              "added to main chain",
	AddedToAlternative:            "added to alternative chain",
	AddedToAlternativeAndSwitched: "added to alternative chain and switched",
	AddAlreadyExists:              "already exists",
	AddOrphaned:                   "orphaned",
}

// String returns the AddResult in human-readable form.
func (r AddResult) String() string {
	if s, ok := addResultStrings[r]; ok {
		return s
	}
	return "unknown add result"
}

// TransactionPool is the part of the memory pool the chain drives while
// connecting and disconnecting blocks. The chain never calls it while
// holding its own lock, because the pool's admission checks call back
// into the chain's spent view.
type TransactionPool interface {
	// GetTransaction returns a pooled transaction by hash.
	GetTransaction(hash crypto.Hash) (*coreutil.Tx, bool)

	// RemoveTransaction drops a transaction that was included in a
	// connected block.
	RemoveTransaction(hash crypto.Hash)

	// ReturnTransactions offers transactions from disconnected blocks
	// back to the pool. Transactions that no longer validate are
	// silently dropped; fromAltChain extends their lifetime.
	ReturnTransactions(txs []*coreutil.Tx, fromAltChain bool)
}

// NotificationType represents the type of a chain notification.
type NotificationType int

// Constants for the type of a chain notification.
const (
	// NTBlockAdded indicates a block was connected to the main chain
	// tip. The data is a *BlockAddedNotification.
	NTBlockAdded NotificationType = iota

	// NTChainSwitched indicates a reorganization replaced part of the
	// main chain. The data is a *ChainSwitchedNotification.
	NTChainSwitched
)

// BlockAddedNotification accompanies NTBlockAdded.
type BlockAddedNotification struct {
	Block  *coreutil.Block
	Height uint32
}

// ChainSwitchedNotification accompanies NTChainSwitched.
type ChainSwitchedNotification struct {
	DetachedHashes []crypto.Hash
	AttachedHashes []crypto.Hash
	ForkHeight     uint32
}

// Notification pairs a type with its data.
type Notification struct {
	Type NotificationType
	Data interface{}
}

// NotificationCallback is invoked, serialized, for every chain event. The
// callback must not reenter the chain synchronously.
type NotificationCallback func(*Notification)

// Config bundles everything a Chain needs at construction time.
type Config struct {
	// DataDir is the directory the chain persists into.
	DataDir string

	// Currency is the consensus parameter table.
	Currency *currency.Currency

	// PoWHasher computes slow hashes for proof-of-work checks.
	PoWHasher crypto.PoWHasher

	// SigVerifier validates ring and multisignature material.
	SigVerifier crypto.SignatureVerifier

	// TimeSource returns wall-clock time; nil means time.Now.
	TimeSource func() time.Time

	// DBMaxOpenFiles, DBWriteBufferSize and DBReadCacheSize tune the
	// chain-state database.
	DBMaxOpenFiles    int
	DBWriteBufferSize int
	DBReadCacheSize   int
}

// blockNode ties a cached block to its position and accumulated state in
// the chain tree.
type blockNode struct {
	block  *coreutil.Block
	hash   crypto.Hash
	height uint32

	// parent is nil for the genesis node. Main-chain nodes are also
	// reachable by height through the chain's mainChain slice.
	parent      *blockNode
	onMainChain bool

	difficulty            uint64
	cumulativeDifficulty  uint64
	alreadyGeneratedCoins uint64
	blockSize             uint64
	timestamp             uint64

	// transactions are the non-coinbase transactions, in template order.
	transactions []*coreutil.Tx

	// effects is only kept for main-chain nodes so they can be
	// disconnected exactly.
	effects *blockSideEffects
}

// orphanBlock buffers a block whose parent is unknown, together with its
// already-resolved transactions so the retry needs no pool access.
type orphanBlock struct {
	raw          *wire.RawBlock
	block        *coreutil.Block
	transactions []*coreutil.Tx
	received     time.Time
}

// poolOps accumulates the pool mutations a chain operation produced while
// the chain lock was held; they are flushed after it is released.
type poolOps struct {
	removals []crypto.Hash
	returned []*coreutil.Tx
}

// Chain is the reorg-aware chain manager: the main chain, the alternative
// chain tree, the orphan buffer, the spend indexes and the persistent
// storage behind them. All public methods are safe for concurrent use.
type Chain struct {
	mtx sync.RWMutex

	currency    *currency.Currency
	powHasher   crypto.PoWHasher
	sigVerifier crypto.SignatureVerifier
	timeSource  func() time.Time

	store       *blockStore
	detectors   *detectorChain
	checkpoints *checkpoints
	indexes     *chainIndexes

	mainChain []*blockNode
	index     map[crypto.Hash]*blockNode

	orphans     map[crypto.Hash][]*orphanBlock
	orphanCount int

	pool TransactionPool

	notificationsMtx sync.RWMutex
	notifications    []NotificationCallback
}

// New constructs a Chain and loads the persisted main chain, creating the
// genesis block when storage is empty.
func New(config *Config) (*Chain, error) {
	if config.Currency == nil {
		return nil, errors.New("blockchain.New: currency is required")
	}
	if config.PoWHasher == nil {
		return nil, errors.New("blockchain.New: proof-of-work hasher is required")
	}
	if config.SigVerifier == nil {
		return nil, errors.New("blockchain.New: signature verifier is required")
	}

	timeSource := config.TimeSource
	if timeSource == nil {
		timeSource = time.Now
	}

	cp, err := newCheckpoints(config.Currency.Checkpoints)
	if err != nil {
		return nil, err
	}

	store, err := openBlockStore(config.DataDir, blockStoreConfig{
		MaxOpenFiles:    config.DBMaxOpenFiles,
		WriteBufferSize: config.DBWriteBufferSize,
		ReadCacheSize:   config.DBReadCacheSize,
	})
	if err != nil {
		return nil, err
	}

	chain := &Chain{
		currency:    config.Currency,
		powHasher:   config.PoWHasher,
		sigVerifier: config.SigVerifier,
		timeSource:  timeSource,
		store:       store,
		detectors:   newDetectorChain(config.Currency),
		checkpoints: cp,
		indexes:     newChainIndexes(),
		index:       make(map[crypto.Hash]*blockNode),
		orphans:     make(map[crypto.Hash][]*orphanBlock),
	}

	if err := chain.load(); err != nil {
		store.Close()
		return nil, err
	}
	return chain, nil
}

// SetTransactionPool wires the memory pool. It must be called before the
// node starts accepting blocks; the pool is created after the chain
// because it borrows the chain's spent view.
func (chain *Chain) SetTransactionPool(pool TransactionPool) {
	chain.mtx.Lock()
	chain.pool = pool
	chain.mtx.Unlock()
}

func (chain *Chain) getPool() TransactionPool {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()
	return chain.pool
}

// Subscribe registers a callback for chain notifications.
func (chain *Chain) Subscribe(callback NotificationCallback) {
	chain.notificationsMtx.Lock()
	chain.notifications = append(chain.notifications, callback)
	chain.notificationsMtx.Unlock()
}

func (chain *Chain) sendNotification(typ NotificationType, data interface{}) {
	n := &Notification{Type: typ, Data: data}
	chain.notificationsMtx.RLock()
	for _, callback := range chain.notifications {
		callback(n)
	}
	chain.notificationsMtx.RUnlock()
}

// load replays storage into the in-memory cache, or connects the genesis
// block into empty storage.
func (chain *Chain) load() error {
	count := chain.store.BlockCount()
	if count == 0 {
		genesis, err := chain.currency.GenesisBlock()
		if err != nil {
			return err
		}
		genesisBytes, err := genesis.Bytes()
		if err != nil {
			return err
		}
		_, err = chain.connectGenesis(genesis, &wire.RawBlock{Block: genesisBytes})
		return errors.Wrap(err, "couldn't connect genesis block")
	}

	log.Infof("Loading %d blocks from %s", count, chain.store.dataDir)
	for height := uint32(0); height < count; height++ {
		raw, err := chain.store.ReadBlock(height)
		if err != nil {
			return err
		}
		block, supplied, err := parseRawBlock(raw)
		if err != nil {
			return errors.Wrapf(err, "storage corrupt at height %d", height)
		}
		if height == 0 {
			if _, err := chain.connectGenesis(block, raw); err != nil {
				return errors.Wrap(err, "stored genesis block corrupt")
			}
			continue
		}
		transactions, err := chain.gatherTransactions(block, supplied)
		if err != nil {
			return errors.Wrapf(err, "storage corrupt at height %d", height)
		}
		if _, _, err := chain.addBlock(block, transactions, raw, true); err != nil {
			return errors.Wrapf(err, "storage corrupt at height %d", height)
		}
	}
	log.Infof("Loaded main chain up to height %d", count-1)
	return nil
}

// Close releases the persistent storage.
func (chain *Chain) Close() {
	chain.mtx.Lock()
	defer chain.mtx.Unlock()
	chain.store.Close()
}

// TopBlockIndex returns the height of the main-chain tip.
func (chain *Chain) TopBlockIndex() uint32 {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()
	return uint32(len(chain.mainChain) - 1)
}

// TopBlockHash returns the hash of the main-chain tip.
func (chain *Chain) TopBlockHash() crypto.Hash {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()
	return chain.mainChain[len(chain.mainChain)-1].hash
}

// TotalGeneratedAmount returns the coins in existence after the tip block.
func (chain *Chain) TotalGeneratedAmount() uint64 {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()
	return chain.mainChain[len(chain.mainChain)-1].alreadyGeneratedCoins
}

// LockedDepositAmount returns the principal currently locked in deposits.
func (chain *Chain) LockedDepositAmount() uint64 {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()
	return chain.indexes.lockedDeposits
}

// HaveBlock returns whether the block is on the main chain, an alternative
// chain, or in the orphan buffer.
func (chain *Chain) HaveBlock(hash crypto.Hash) bool {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()
	if _, ok := chain.index[hash]; ok {
		return true
	}
	for _, buffered := range chain.orphans {
		for _, orphan := range buffered {
			orphanHash, err := orphan.block.Hash()
			if err == nil && orphanHash == hash {
				return true
			}
		}
	}
	return false
}

// IsKeyImageSpent returns whether the key image is spent on the main
// chain. The memory pool consults this view before admitting a spend.
func (chain *Chain) IsKeyImageSpent(keyImage crypto.KeyImage) bool {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()
	return chain.indexes.isSpent(keyImage)
}

// IsMultisigOutputSpent returns whether the referenced multisignature
// output exists and is spent on the main chain.
func (chain *Chain) IsMultisigOutputSpent(amount uint64, outputIndex uint32) bool {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()
	entry, err := chain.indexes.msigOutput(amount, outputIndex)
	if err != nil {
		return false
	}
	return entry.spent
}

// BlockMajorVersionForHeight returns the mandatory block major version at
// the given height.
func (chain *Chain) BlockMajorVersionForHeight(height uint32) uint8 {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()
	return chain.detectors.majorVersionForHeight(height)
}

// TemplateVersions returns the major and minor version a freshly mined
// block should carry at the given height: the mandatory major version,
// with the minor version set to one while an upgrade vote is open.
func (chain *Chain) TemplateVersions(height uint32) (major, minor uint8) {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()
	major = chain.detectors.majorVersionForHeight(height)
	minor = wire.BlockMinorVersion0
	if major == wire.BlockMajorVersion1 && chain.detectors.v2.configuredHeight == 0 &&
		chain.detectors.v2.activationHeight() == unknownHeight {
		minor = wire.BlockMinorVersion1
	}
	return major, minor
}

// NextBlockDifficulty returns the difficulty the next main-chain block
// must meet.
func (chain *Chain) NextBlockDifficulty() uint64 {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()
	nextVersion := chain.detectors.majorVersionForHeight(uint32(len(chain.mainChain)))
	return chain.difficultyForBranch(chain.mainChain[len(chain.mainChain)-1], nextVersion)
}

// MedianTimestamp returns the median timestamp of the trailing check
// window, used to floor template timestamps.
func (chain *Chain) MedianTimestamp() uint64 {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()
	timestamps := chain.lastTimestamps(chain.mainChain[len(chain.mainChain)-1], currency.TimestampCheckWindow)
	if len(timestamps) == 0 {
		return 0
	}
	return medianUint64(timestamps)
}

// MedianBlockSize returns the median cumulative block size over the
// reward window at the tip.
func (chain *Chain) MedianBlockSize() uint64 {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()
	return chain.medianBlockSize(chain.mainChain[len(chain.mainChain)-1])
}

// AddBlock validates a raw block and attaches it to the chain tree.
func (chain *Chain) AddBlock(raw *wire.RawBlock) (AddResult, error) {
	block, supplied, err := parseRawBlock(raw)
	if err != nil {
		return AddRejected, ruleError(ErrMalformedBlock, err.Error())
	}

	// Resolve the block's transactions against the supplied blobs and
	// the pool before the chain lock is taken: the pool's own lock must
	// never nest inside the chain's.
	transactions, err := chain.gatherTransactions(block, supplied)
	if err != nil {
		return AddRejected, err
	}

	chain.mtx.Lock()
	result, ops, err := chain.addBlock(block, transactions, raw, false)
	var addedHeight uint32
	if err == nil {
		if result == AddedToMainChain {
			addedHeight = uint32(len(chain.mainChain) - 1)
		}
		moreOps := chain.retryOrphans()
		ops.removals = append(ops.removals, moreOps.removals...)
		ops.returned = append(ops.returned, moreOps.returned...)
	}
	chain.mtx.Unlock()

	chain.flushPoolOps(ops)
	if err == nil && result == AddedToMainChain {
		chain.sendNotification(NTBlockAdded, &BlockAddedNotification{
			Block:  block,
			Height: addedHeight,
		})
	}
	return result, err
}

// parseRawBlock parses a raw block and its supplied transaction blobs.
func parseRawBlock(raw *wire.RawBlock) (*coreutil.Block, map[crypto.Hash]*coreutil.Tx, error) {
	block, err := coreutil.NewBlockFromBytes(raw.Block)
	if err != nil {
		return nil, nil, err
	}
	supplied := make(map[crypto.Hash]*coreutil.Tx, len(raw.Transactions))
	for _, txBytes := range raw.Transactions {
		tx, err := coreutil.NewTxFromBytes(txBytes)
		if err != nil {
			return nil, nil, err
		}
		txHash, err := tx.Hash()
		if err != nil {
			return nil, nil, err
		}
		supplied[txHash] = tx
	}
	return block, supplied, nil
}

// gatherTransactions resolves the block's transaction hashes against the
// caller-supplied blobs and the pool.
func (chain *Chain) gatherTransactions(block *coreutil.Block, supplied map[crypto.Hash]*coreutil.Tx) ([]*coreutil.Tx, error) {
	template := block.Template()
	pool := chain.getPool()

	transactions := make([]*coreutil.Tx, 0, len(template.TransactionHashes))
	for _, txHash := range template.TransactionHashes {
		if tx, ok := supplied[txHash]; ok {
			transactions = append(transactions, tx)
			continue
		}
		if pool != nil {
			if tx, ok := pool.GetTransaction(txHash); ok {
				transactions = append(transactions, tx)
				continue
			}
		}
		return nil, ruleError(ErrMissingTransaction,
			"block references unknown transaction "+txHash.String())
	}
	return transactions, nil
}

// flushPoolOps applies the deferred pool mutations of a chain operation.
func (chain *Chain) flushPoolOps(ops poolOps) {
	pool := chain.getPool()
	if pool == nil {
		return
	}
	if len(ops.returned) > 0 {
		pool.ReturnTransactions(ops.returned, true)
	}
	for _, hash := range ops.removals {
		pool.RemoveTransaction(hash)
	}
}

// addBlock routes an already-parsed block into the chain tree. The chain
// lock must be held; pool mutations are returned for deferred flushing.
func (chain *Chain) addBlock(block *coreutil.Block, transactions []*coreutil.Tx, raw *wire.RawBlock, trusted bool) (AddResult, poolOps, error) {
	hash, err := block.Hash()
	if err != nil {
		return AddRejected, poolOps{}, ruleError(ErrMalformedBlock, err.Error())
	}
	if _, exists := chain.index[hash]; exists {
		return AddAlreadyExists, poolOps{}, nil
	}

	tip := chain.mainChain[len(chain.mainChain)-1]
	prevHash := block.Template().PreviousBlockHash

	if prevHash == tip.hash {
		ops, err := chain.connectMainBlock(block, transactions, raw, trusted)
		if err != nil {
			return AddRejected, poolOps{}, err
		}
		return AddedToMainChain, ops, nil
	}

	parent, known := chain.index[prevHash]
	if !known {
		chain.addOrphan(raw, block, transactions)
		return AddOrphaned, poolOps{}, nil
	}

	return chain.connectAlternativeBlock(parent, block, transactions)
}

// connectGenesis installs the genesis block as height zero.
func (chain *Chain) connectGenesis(block *coreutil.Block, raw *wire.RawBlock) (AddResult, error) {
	hash, err := block.Hash()
	if err != nil {
		return AddRejected, err
	}
	expected, err := chain.currency.GenesisBlockHash()
	if err != nil {
		return AddRejected, err
	}
	if hash != expected {
		return AddRejected, ruleError(ErrMalformedBlock, "genesis block hash mismatch")
	}

	blockBytes, err := block.Bytes()
	if err != nil {
		return AddRejected, err
	}

	effects := newBlockSideEffects()
	coinbase := coreutil.NewTx(&block.Template().BaseTransaction)
	coinbaseHash, err := coinbase.Hash()
	if err != nil {
		return AddRejected, err
	}
	chain.indexes.connectTransaction(coinbase.Transaction(), coinbaseHash, 0, effects)
	chain.indexes.applyDeposits(effects)

	var reward uint64
	for i := range block.Template().BaseTransaction.Outputs {
		reward += block.Template().BaseTransaction.Outputs[i].Amount
	}

	node := &blockNode{
		block:                 block,
		hash:                  hash,
		height:                0,
		onMainChain:           true,
		difficulty:            1,
		cumulativeDifficulty:  1,
		alreadyGeneratedCoins: reward,
		blockSize:             uint64(len(blockBytes)),
		timestamp:             block.Template().Timestamp,
		effects:               effects,
	}
	chain.mainChain = append(chain.mainChain, node)
	chain.index[hash] = node
	chain.detectors.blockPushed(0, block.Template().MajorVersion, block.Template().MinorVersion)

	if chain.store.BlockCount() == 0 {
		if err := chain.store.AppendBlock(raw, []crypto.Hash{coinbaseHash}); err != nil {
			return AddRejected, err
		}
	}
	return AddedToMainChain, nil
}

// connectMainBlock runs the full validation pipeline and attaches the
// block to the main-chain tip.
func (chain *Chain) connectMainBlock(block *coreutil.Block, transactions []*coreutil.Tx, raw *wire.RawBlock, trusted bool) (poolOps, error) {
	tip := chain.mainChain[len(chain.mainChain)-1]

	context, err := chain.validateBlock(tip, block, transactions, trusted)
	if err != nil {
		return poolOps{}, err
	}

	node, err := chain.applyBlock(tip, block, transactions, context)
	if err != nil {
		return poolOps{}, err
	}

	// Persist unless this connect is a replay of storage.
	if node.height >= chain.store.BlockCount() {
		if err := chain.persistNode(node, raw); err != nil {
			return poolOps{}, err
		}
	}

	var ops poolOps
	for _, tx := range transactions {
		txHash, _ := tx.Hash()
		ops.removals = append(ops.removals, txHash)
	}
	return ops, nil
}

func (chain *Chain) persistNode(node *blockNode, raw *wire.RawBlock) error {
	txHashes := make([]crypto.Hash, 0, len(node.transactions)+1)
	coinbaseHash, err := coreutil.NewTx(&node.block.Template().BaseTransaction).Hash()
	if err != nil {
		return err
	}
	txHashes = append(txHashes, coinbaseHash)
	for _, tx := range node.transactions {
		txHash, _ := tx.Hash()
		txHashes = append(txHashes, txHash)
	}
	return chain.store.AppendBlock(raw, txHashes)
}

// applyBlock mutates the chain state with an already-validated block.
func (chain *Chain) applyBlock(parent *blockNode, block *coreutil.Block, transactions []*coreutil.Tx, context *validationContext) (*blockNode, error) {
	effects := newBlockSideEffects()

	coinbase := coreutil.NewTx(&block.Template().BaseTransaction)
	coinbaseHash, err := coinbase.Hash()
	if err != nil {
		return nil, err
	}
	chain.indexes.connectTransaction(coinbase.Transaction(), coinbaseHash, parent.height+1, effects)
	for _, tx := range transactions {
		txHash, _ := tx.Hash()
		chain.indexes.connectTransaction(tx.Transaction(), txHash, parent.height+1, effects)
	}
	chain.indexes.applyDeposits(effects)

	hash, _ := block.Hash()
	node := &blockNode{
		block:                 block,
		hash:                  hash,
		height:                parent.height + 1,
		parent:                parent,
		onMainChain:           true,
		difficulty:            context.difficulty,
		cumulativeDifficulty:  parent.cumulativeDifficulty + context.difficulty,
		alreadyGeneratedCoins: parent.alreadyGeneratedCoins + context.emissionChange + context.totalInterest,
		blockSize:             context.blockSize,
		timestamp:             block.Template().Timestamp,
		transactions:          transactions,
		effects:               effects,
	}
	chain.mainChain = append(chain.mainChain, node)
	chain.index[hash] = node
	chain.detectors.blockPushed(node.height, block.Template().MajorVersion, block.Template().MinorVersion)
	return node, nil
}

// popTopBlock disconnects the main-chain tip and returns its node.
func (chain *Chain) popTopBlock() (*blockNode, error) {
	if len(chain.mainChain) <= 1 {
		return nil, errors.New("cannot pop the genesis block")
	}
	node := chain.mainChain[len(chain.mainChain)-1]
	chain.indexes.disconnectBlock(node.effects)
	chain.detectors.blockPopped()
	chain.mainChain = chain.mainChain[:len(chain.mainChain)-1]
	node.onMainChain = false

	droppedHashes := make([]crypto.Hash, 0, len(node.transactions)+1)
	coinbaseHash, err := coreutil.NewTx(&node.block.Template().BaseTransaction).Hash()
	if err != nil {
		return nil, err
	}
	droppedHashes = append(droppedHashes, coinbaseHash)
	for _, tx := range node.transactions {
		txHash, _ := tx.Hash()
		droppedHashes = append(droppedHashes, txHash)
	}
	if err := chain.store.TruncateToHeight(node.height, droppedHashes); err != nil {
		return nil, err
	}
	return node, nil
}

// connectAlternativeBlock attaches a block to a side chain and switches
// chains when the side chain becomes heavier.
func (chain *Chain) connectAlternativeBlock(parent *blockNode, block *coreutil.Block, transactions []*coreutil.Tx) (AddResult, poolOps, error) {
	height := parent.height + 1

	// An alternative block at a checkpointed height must carry the pinned
	// hash; a switch that would detach a checkpointed block is rejected in
	// switchToAlternative.
	if chain.checkpoints.isInZone(height) {
		if !chain.checkpoints.check(height, mustHash(block)) {
			return AddRejected, poolOps{}, ruleError(ErrCheckpointMismatch,
				"alternative block conflicts with checkpoint")
		}
	}

	if err := chain.validateAlternativeBlock(parent, block, transactions); err != nil {
		return AddRejected, poolOps{}, err
	}

	hash, _ := block.Hash()
	node := &blockNode{
		block:        block,
		hash:         hash,
		height:       height,
		parent:       parent,
		difficulty:   chain.difficultyForBranch(parent, block.Template().MajorVersion),
		timestamp:    block.Template().Timestamp,
		transactions: transactions,
	}
	node.cumulativeDifficulty = parent.cumulativeDifficulty + node.difficulty
	chain.index[hash] = node

	mainTip := chain.mainChain[len(chain.mainChain)-1]
	log.Infof("Block %s added to alternative chain at height %d (cumulative difficulty %d vs main %d)",
		hash, height, node.cumulativeDifficulty, mainTip.cumulativeDifficulty)

	if node.cumulativeDifficulty > mainTip.cumulativeDifficulty {
		ops, err := chain.switchToAlternative(node)
		if err != nil {
			return AddRejected, poolOps{}, err
		}
		return AddedToAlternativeAndSwitched, ops, nil
	}
	return AddedToAlternative, poolOps{}, nil
}

// switchToAlternative makes the chain ending in altTip the main chain,
// rolling the current main chain back to the fork point first. When any
// block of the alternative branch fails full validation the switch is
// undone and the branch is discarded.
func (chain *Chain) switchToAlternative(altTip *blockNode) (poolOps, error) {
	// Collect the alternative branch from the fork point forward.
	var branch []*blockNode
	forkNode := altTip
	for !forkNode.onMainChain {
		branch = append([]*blockNode{forkNode}, branch...)
		forkNode = forkNode.parent
	}

	mainTip := chain.mainChain[len(chain.mainChain)-1]
	if chain.checkpoints.anyInRange(forkNode.height, mainTip.height) {
		return poolOps{}, ruleError(ErrCheckpointMismatch,
			"reorganization would detach a checkpointed block")
	}

	// Roll the main chain back to the fork point.
	var detached []*blockNode
	for chain.mainChain[len(chain.mainChain)-1] != forkNode {
		node, err := chain.popTopBlock()
		if err != nil {
			return poolOps{}, err
		}
		detached = append(detached, node)
	}

	// Re-apply the alternative branch through the full pipeline.
	attached := make([]*blockNode, 0, len(branch))
	var applyErr error
	for _, altNode := range branch {
		if err := chain.reconnectNode(altNode.block, altNode.transactions, false); err != nil {
			applyErr = err
			break
		}
		attached = append(attached, chain.mainChain[len(chain.mainChain)-1])
	}

	if applyErr != nil {
		// Unwind the partial re-apply and restore the old main chain.
		for range attached {
			if _, err := chain.popTopBlock(); err != nil {
				return poolOps{}, errors.Wrap(err, "couldn't unwind failed chain switch")
			}
		}
		for i := len(detached) - 1; i >= 0; i-- {
			node := detached[i]
			if err := chain.reconnectNode(node.block, node.transactions, true); err != nil {
				return poolOps{}, errors.Wrap(err, "couldn't restore main chain after failed switch")
			}
		}
		// The alternative branch is invalid; forget it.
		for _, altNode := range branch {
			delete(chain.index, altNode.hash)
		}
		log.Warnf("Chain switch failed and was rolled back: %v", applyErr)
		return poolOps{}, applyErr
	}

	// The ousted segment becomes an alternative branch; its transactions
	// go back to the pool with an extended lifetime, while the adopted
	// branch's transactions leave it.
	var ops poolOps
	detachedHashes := make([]crypto.Hash, 0, len(detached))
	for _, node := range detached {
		node.effects = nil
		detachedHashes = append(detachedHashes, node.hash)
		ops.returned = append(ops.returned, node.transactions...)
	}
	attachedHashes := make([]crypto.Hash, 0, len(attached))
	for _, node := range attached {
		attachedHashes = append(attachedHashes, node.hash)
		for _, tx := range node.transactions {
			txHash, _ := tx.Hash()
			ops.removals = append(ops.removals, txHash)
		}
	}

	log.Infof("Chain switched at height %d: detached %d blocks, attached %d blocks, new top %s",
		forkNode.height, len(detached), len(attached), altTip.hash)

	chain.sendNotification(NTChainSwitched, &ChainSwitchedNotification{
		DetachedHashes: detachedHashes,
		AttachedHashes: attachedHashes,
		ForkHeight:     forkNode.height,
	})
	return ops, nil
}

// reconnectNode validates and applies a block that already lived in the
// tree, persisting it at its new main-chain position.
func (chain *Chain) reconnectNode(block *coreutil.Block, transactions []*coreutil.Tx, trusted bool) error {
	tip := chain.mainChain[len(chain.mainChain)-1]
	context, err := chain.validateBlock(tip, block, transactions, trusted)
	if err != nil {
		return err
	}
	node, err := chain.applyBlock(tip, block, transactions, context)
	if err != nil {
		return err
	}
	raw, err := chain.rawBlockFor(node)
	if err != nil {
		return err
	}
	return chain.persistNode(node, raw)
}

// rawBlockFor reconstructs the wire form of a cached node.
func (chain *Chain) rawBlockFor(node *blockNode) (*wire.RawBlock, error) {
	blockBytes, err := node.block.Bytes()
	if err != nil {
		return nil, err
	}
	raw := &wire.RawBlock{Block: blockBytes}
	for _, tx := range node.transactions {
		txBytes, err := tx.Bytes()
		if err != nil {
			return nil, err
		}
		raw.Transactions = append(raw.Transactions, txBytes)
	}
	return raw, nil
}

// addOrphan buffers a parentless block, evicting the oldest entry when
// the buffer is full.
func (chain *Chain) addOrphan(raw *wire.RawBlock, block *coreutil.Block, transactions []*coreutil.Tx) {
	if chain.orphanCount >= maxOrphanBlocks {
		chain.evictOldestOrphan()
	}
	prevHash := block.Template().PreviousBlockHash
	chain.orphans[prevHash] = append(chain.orphans[prevHash], &orphanBlock{
		raw:          raw,
		block:        block,
		transactions: transactions,
		received:     chain.timeSource(),
	})
	chain.orphanCount++
	hash, _ := block.Hash()
	log.Debugf("Buffered orphan block %s (parent %s unknown)", hash, prevHash)
}

func (chain *Chain) evictOldestOrphan() {
	var oldestParent crypto.Hash
	var oldestIndex int
	var oldestTime time.Time
	first := true
	for parent, buffered := range chain.orphans {
		for i, orphan := range buffered {
			if first || orphan.received.Before(oldestTime) {
				first = false
				oldestTime = orphan.received
				oldestParent = parent
				oldestIndex = i
			}
		}
	}
	if first {
		return
	}
	buffered := chain.orphans[oldestParent]
	buffered = append(buffered[:oldestIndex], buffered[oldestIndex+1:]...)
	if len(buffered) == 0 {
		delete(chain.orphans, oldestParent)
	} else {
		chain.orphans[oldestParent] = buffered
	}
	chain.orphanCount--
}

// retryOrphans retries buffered orphans whose parents became known, in
// topological order, and accumulates the pool mutations their connects
// produced.
func (chain *Chain) retryOrphans() poolOps {
	var ops poolOps
	for {
		var ready []*orphanBlock
		for parent, buffered := range chain.orphans {
			if _, known := chain.index[parent]; known {
				ready = append(ready, buffered...)
				chain.orphanCount -= len(buffered)
				delete(chain.orphans, parent)
			}
		}
		if len(ready) == 0 {
			return ops
		}
		for _, orphan := range ready {
			_, moreOps, err := chain.addBlock(orphan.block, orphan.transactions, orphan.raw, false)
			if err != nil {
				hash, _ := orphan.block.Hash()
				log.Debugf("Orphan block %s rejected on retry: %v", hash, err)
				continue
			}
			ops.removals = append(ops.removals, moreOps.removals...)
			ops.returned = append(ops.returned, moreOps.returned...)
		}
	}
}

func mustHash(block *coreutil.Block) crypto.Hash {
	hash, _ := block.Hash()
	return hash
}
