// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package currency defines the consensus parameter table of a deployed
// network. A single immutable Currency value is handed by reference to
// every component that needs a parameter, replacing the process-wide
// constant table of older CryptoNote daemons and making Forknote-style
// parameter overrides a construction-time concern.
package currency

import (
	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/pkg/errors"
)

// Default consensus parameters of the main network.
const (
	// MaxBlockNumber is the largest block index the consensus layer
	// accepts anywhere on the wire.
	MaxBlockNumber = 500000000

	// MaxBlockBlobSize is the hard cap on a serialized block.
	MaxBlockBlobSize = 500000000

	// MaxTxSize is the hard cap on a serialized transaction.
	MaxTxSize = 1000000000

	// MinedMoneyUnlockWindow is the number of blocks a coinbase output
	// stays locked after it is mined.
	MinedMoneyUnlockWindow = 10

	// BlockFutureTimeLimit is how far ahead of wall clock a block
	// timestamp may be, in seconds.
	BlockFutureTimeLimit = 60 * 60 * 2

	// TimestampCheckWindow is the number of trailing blocks whose median
	// timestamp a new block must exceed.
	TimestampCheckWindow = 60

	defaultMoneySupply         = ^uint64(0)
	defaultEmissionSpeedFactor = 18

	defaultRewardBlocksWindow        = 100
	defaultBlockGrantedFullRewardZone   = 100000
	defaultBlockGrantedFullRewardZoneV2 = 20000
	defaultBlockGrantedFullRewardZoneV1 = 10000

	// CoinbaseBlobReservedSize is the room a block template reserves for
	// the miner to grow the coinbase extra.
	CoinbaseBlobReservedSize = 600

	defaultDisplayDecimalPoint = 8
	defaultMinimumFee          = 1000000
	defaultDustThreshold       = 1000000

	defaultDifficultyTarget = 120
	expectedBlocksPerDay    = 24 * 60 * 60 / defaultDifficultyTarget
	defaultDifficultyWindow = expectedBlocksPerDay
	defaultDifficultyCut    = 60
	defaultDifficultyLag    = 15

	defaultMaxBlockSizeInitial               = 20 * 1024
	defaultMaxBlockSizeGrowthSpeedNumerator  = 100 * 1024
	defaultMaxBlockSizeGrowthSpeedDenominator = 365 * 24 * 60 * 60 / defaultDifficultyTarget

	// LockedTxAllowedDeltaBlocks and LockedTxAllowedDeltaSeconds give
	// unlock-time checks a small forward allowance.
	LockedTxAllowedDeltaBlocks  = 1
	LockedTxAllowedDeltaSeconds = defaultDifficultyTarget * LockedTxAllowedDeltaBlocks

	defaultMempoolTxLivetime         = 60 * 60 * 24
	defaultMempoolTxFromAltLivetime  = 60 * 60 * 24 * 7
	defaultNumberOfPeriodsToForgetTx = 7

	defaultUpgradeHeightV2      = 546602
	defaultUpgradeHeightV3      = 985548
	defaultUpgradeVotingThreshold = 90
	defaultUpgradeVotingWindow  = expectedBlocksPerDay
	defaultUpgradeWindow        = expectedBlocksPerDay

	defaultDepositMinAmount    = 100 * 100000000
	defaultDepositMinTerm      = 5040
	defaultDepositMaxTerm      = 64800
	defaultDepositMaxTotalRate = 10

	defaultGenesisNonce = 70
)

// State file names under the data directory.
const (
	BlocksFilename       = "blocks.bin"
	BlockIndexesFilename = "blockindexes.bin"
	PoolDataFilename     = "poolstate.bin"
	P2pNetDataFilename   = "p2pstate.bin"
	MinerConfigFilename  = "miner_conf.json"
)

// CoinName is the on-disk and user-visible name of the coin.
const CoinName = "forknote"

// genesisCoinbaseTxHex is the serialized coinbase of the genesis block.
const genesisCoinbaseTxHex = "010a01ff0001ffffffffffff0f029b2e4c0281c0b02e7c53291a94d1d0cbff8883f8024f5142ee494ffbbd08807121013c086a48c15fb637a96991bc6d53caf77068b5ba6eeb3c82357228c49790584a"

// mainNetworkID identifies the production network in every Levin frame
// exchanged during handshakes. The test network flips the first byte.
var mainNetworkID = [16]byte{
	0x11, 0x10, 0x01, 0x11, 0x11, 0x00, 0x01, 0x01,
	0x10, 0x11, 0x00, 0x12, 0x10, 0x11, 0x01, 0x10,
}

// seedNodes are the bootstrap peers dialed when the peer list is empty.
var seedNodes = []string{
	"seed.bytecoin.org:8080",
	"85.25.201.95:8080",
	"85.25.196.145:8080",
	"85.25.196.146:8080",
	"85.25.196.144:8080",
	"5.199.168.138:8080",
	"62.75.236.152:8080",
	"85.25.194.245:8080",
	"95.211.224.160:8080",
	"144.76.200.44:8080",
}

// Checkpoint pins a block hash at a height.
type Checkpoint struct {
	Height uint32
	Hash   string
}

// Currency is the immutable consensus parameter table of one deployed
// network, built once at startup by a Builder and shared by reference.
type Currency struct {
	MoneySupply         uint64
	EmissionSpeedFactor uint8
	GenesisBlockReward  uint64
	TailEmissionReward  uint64

	RewardBlocksWindow             uint32
	BlockGrantedFullRewardZone     uint64
	BlockGrantedFullRewardZoneV1   uint64
	BlockGrantedFullRewardZoneV2   uint64
	MinimumFee                     uint64
	DefaultDustThreshold           uint64
	MaxTransactionSizeLimit        uint64

	DifficultyTarget   uint64
	DifficultyWindow   int
	DifficultyCut      int
	DifficultyLag      int
	DifficultyWindowV1 int
	DifficultyWindowV2 int
	DifficultyCutV1    int
	DifficultyCutV2    int

	MaxBlockSizeInitial               uint64
	MaxBlockSizeGrowthSpeedNumerator  uint64
	MaxBlockSizeGrowthSpeedDenominator uint64

	MempoolTxLivetime         uint64
	MempoolTxFromAltLivetime  uint64
	NumberOfPeriodsToForgetTx uint64

	UpgradeHeightV2        uint32
	UpgradeHeightV3        uint32
	UpgradeVotingThreshold uint8
	UpgradeVotingWindow    uint32
	UpgradeWindow          uint32

	DepositMinAmount    uint64
	DepositMinTerm      uint32
	DepositMaxTerm      uint32
	DepositMaxTotalRate uint8

	Testnet   bool
	NetworkID [16]byte
	SeedNodes []string

	Checkpoints []Checkpoint

	GenesisCoinbaseTxHex string
	genesisBlock         *crypto.Hash // memoized genesis hash
	genesisNonce         uint32
}

// Builder accumulates parameter overrides and produces a Currency.
// Zero-valued fields keep their defaults, matching the Forknote convention
// that an absent configuration key leaves the compiled-in value alone.
type Builder struct {
	currency Currency
}

// NewBuilder returns a Builder primed with the main network defaults.
func NewBuilder() *Builder {
	return &Builder{currency: Currency{
		MoneySupply:         defaultMoneySupply,
		EmissionSpeedFactor: defaultEmissionSpeedFactor,

		RewardBlocksWindow:           defaultRewardBlocksWindow,
		BlockGrantedFullRewardZone:   defaultBlockGrantedFullRewardZone,
		BlockGrantedFullRewardZoneV1: defaultBlockGrantedFullRewardZoneV1,
		BlockGrantedFullRewardZoneV2: defaultBlockGrantedFullRewardZoneV2,
		MinimumFee:                   defaultMinimumFee,
		DefaultDustThreshold:         defaultDustThreshold,
		MaxTransactionSizeLimit:      defaultBlockGrantedFullRewardZone*110/100 - CoinbaseBlobReservedSize,

		DifficultyTarget:   defaultDifficultyTarget,
		DifficultyWindow:   defaultDifficultyWindow,
		DifficultyCut:      defaultDifficultyCut,
		DifficultyLag:      defaultDifficultyLag,
		DifficultyWindowV1: defaultDifficultyWindow,
		DifficultyWindowV2: defaultDifficultyWindow,
		DifficultyCutV1:    defaultDifficultyCut,
		DifficultyCutV2:    defaultDifficultyCut,

		MaxBlockSizeInitial:                defaultMaxBlockSizeInitial,
		MaxBlockSizeGrowthSpeedNumerator:   defaultMaxBlockSizeGrowthSpeedNumerator,
		MaxBlockSizeGrowthSpeedDenominator: defaultMaxBlockSizeGrowthSpeedDenominator,

		MempoolTxLivetime:         defaultMempoolTxLivetime,
		MempoolTxFromAltLivetime:  defaultMempoolTxFromAltLivetime,
		NumberOfPeriodsToForgetTx: defaultNumberOfPeriodsToForgetTx,

		UpgradeHeightV2:        defaultUpgradeHeightV2,
		UpgradeHeightV3:        defaultUpgradeHeightV3,
		UpgradeVotingThreshold: defaultUpgradeVotingThreshold,
		UpgradeVotingWindow:    defaultUpgradeVotingWindow,
		UpgradeWindow:          defaultUpgradeWindow,

		DepositMinAmount:    defaultDepositMinAmount,
		DepositMinTerm:      defaultDepositMinTerm,
		DepositMaxTerm:      defaultDepositMaxTerm,
		DepositMaxTotalRate: defaultDepositMaxTotalRate,

		NetworkID: mainNetworkID,
		SeedNodes: seedNodes,

		Checkpoints: mainNetCheckpoints,

		GenesisCoinbaseTxHex: genesisCoinbaseTxHex,
		genesisNonce:         defaultGenesisNonce,
	}}
}

// Testnet flips the currency onto the test network: the network id first
// byte changes and checkpoints and seed nodes no longer apply.
func (b *Builder) Testnet(testnet bool) *Builder {
	b.currency.Testnet = testnet
	if testnet {
		b.currency.NetworkID[0] ^= 1
		b.currency.Checkpoints = nil
		b.currency.SeedNodes = nil
	}
	return b
}

// MoneySupply overrides the total coin supply.
func (b *Builder) MoneySupply(v uint64) *Builder {
	if v != 0 {
		b.currency.MoneySupply = v
	}
	return b
}

// EmissionSpeedFactor overrides the emission curve shift.
func (b *Builder) EmissionSpeedFactor(v uint8) *Builder {
	if v != 0 {
		b.currency.EmissionSpeedFactor = v
	}
	return b
}

// GenesisBlockReward overrides the reward of block zero.
func (b *Builder) GenesisBlockReward(v uint64) *Builder {
	b.currency.GenesisBlockReward = v
	return b
}

// TailEmissionReward sets the floor the base reward never drops below.
func (b *Builder) TailEmissionReward(v uint64) *Builder {
	b.currency.TailEmissionReward = v
	return b
}

// DifficultyTarget overrides the target block spacing in seconds.
func (b *Builder) DifficultyTarget(v uint64) *Builder {
	if v != 0 {
		b.currency.DifficultyTarget = v
	}
	return b
}

// DifficultyWindow overrides the retarget window for both eras.
func (b *Builder) DifficultyWindow(v int) *Builder {
	if v != 0 {
		b.currency.DifficultyWindow = v
		b.currency.DifficultyWindowV1 = v
		b.currency.DifficultyWindowV2 = v
	}
	return b
}

// DifficultyCut overrides the trimmed-tail size for both eras.
func (b *Builder) DifficultyCut(v int) *Builder {
	if v != 0 {
		b.currency.DifficultyCut = v
		b.currency.DifficultyCutV1 = v
		b.currency.DifficultyCutV2 = v
	}
	return b
}

// UpgradeHeightV2 pins the version 2 activation height, bypassing voting.
func (b *Builder) UpgradeHeightV2(v uint32) *Builder {
	if v != 0 {
		b.currency.UpgradeHeightV2 = v
	}
	return b
}

// UpgradeHeightV3 pins the version 3 activation height, bypassing voting.
func (b *Builder) UpgradeHeightV3(v uint32) *Builder {
	if v != 0 {
		b.currency.UpgradeHeightV3 = v
	}
	return b
}

// UpgradeHeights pins both activation heights directly. Zero selects
// vote-derived activation, so deployments that upgrade by miner vote pass
// zero here.
func (b *Builder) UpgradeHeights(v2, v3 uint32) *Builder {
	b.currency.UpgradeHeightV2 = v2
	b.currency.UpgradeHeightV3 = v3
	return b
}

// DepositTerms overrides the deposit parameters.
func (b *Builder) DepositTerms(minAmount uint64, minTerm, maxTerm uint32, maxTotalRate uint8) *Builder {
	if minAmount != 0 {
		b.currency.DepositMinAmount = minAmount
	}
	if minTerm != 0 {
		b.currency.DepositMinTerm = minTerm
	}
	if maxTerm != 0 {
		b.currency.DepositMaxTerm = maxTerm
	}
	if maxTotalRate != 0 {
		b.currency.DepositMaxTotalRate = maxTotalRate
	}
	return b
}

// MinimumFee overrides the relay fee floor.
func (b *Builder) MinimumFee(v uint64) *Builder {
	if v != 0 {
		b.currency.MinimumFee = v
	}
	return b
}

// UpgradeVoting overrides the voting parameters.
func (b *Builder) UpgradeVoting(threshold uint8, votingWindow, upgradeWindow uint32) *Builder {
	if threshold != 0 {
		b.currency.UpgradeVotingThreshold = threshold
	}
	if votingWindow != 0 {
		b.currency.UpgradeVotingWindow = votingWindow
	}
	if upgradeWindow != 0 {
		b.currency.UpgradeWindow = upgradeWindow
	}
	return b
}

// RewardBlocksWindow overrides the median block-size window.
func (b *Builder) RewardBlocksWindow(v uint32) *Builder {
	if v != 0 {
		b.currency.RewardBlocksWindow = v
	}
	return b
}

// BlockGrantedFullRewardZone overrides the penalty-free block size.
func (b *Builder) BlockGrantedFullRewardZone(v uint64) *Builder {
	if v != 0 {
		b.currency.BlockGrantedFullRewardZone = v
		b.currency.MaxTransactionSizeLimit = v*110/100 - CoinbaseBlobReservedSize
	}
	return b
}

// GenesisCoinbaseTxHex overrides the genesis coinbase blob.
func (b *Builder) GenesisCoinbaseTxHex(v string) *Builder {
	if v != "" {
		b.currency.GenesisCoinbaseTxHex = v
	}
	return b
}

// AddCheckpoint appends a checkpoint override.
func (b *Builder) AddCheckpoint(height uint32, hash string) *Builder {
	b.currency.Checkpoints = append(b.currency.Checkpoints, Checkpoint{Height: height, Hash: hash})
	return b
}

// SeedNodes replaces the bootstrap peer set.
func (b *Builder) SeedNodes(nodes []string) *Builder {
	if len(nodes) != 0 {
		b.currency.SeedNodes = nodes
	}
	return b
}

// Build validates the accumulated parameters and returns the immutable
// Currency.
func (b *Builder) Build() (*Currency, error) {
	c := b.currency

	if c.EmissionSpeedFactor > 64 || c.EmissionSpeedFactor == 0 {
		return nil, errors.Errorf("bad emission speed factor %d", c.EmissionSpeedFactor)
	}
	if c.UpgradeVotingThreshold == 0 || c.UpgradeVotingThreshold > 100 {
		return nil, errors.Errorf("bad upgrade voting threshold %d%%", c.UpgradeVotingThreshold)
	}
	if c.UpgradeVotingWindow <= 1 {
		return nil, errors.Errorf("bad upgrade voting window %d", c.UpgradeVotingWindow)
	}
	if 2*c.DifficultyCut > c.DifficultyWindow-2 {
		return nil, errors.Errorf("difficulty cut %d too large for window %d",
			c.DifficultyCut, c.DifficultyWindow)
	}
	if c.DepositMinTerm == 0 || c.DepositMinTerm > c.DepositMaxTerm {
		return nil, errors.Errorf("bad deposit terms [%d, %d]", c.DepositMinTerm, c.DepositMaxTerm)
	}

	out := new(Currency)
	*out = c
	return out, nil
}
