// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package currency

import (
	"testing"

	"github.com/bytecoin-go/bytecoind/wire"
)

func testCurrency(t *testing.T, mutate func(*Builder)) *Currency {
	t.Helper()
	builder := NewBuilder()
	if mutate != nil {
		mutate(builder)
	}
	c, err := builder.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return c
}

func TestBaseRewardEmissionCurve(t *testing.T) {
	c := testCurrency(t, nil)

	want := (c.MoneySupply - 0) >> c.EmissionSpeedFactor
	if got := c.BaseReward(0); got != want {
		t.Fatalf("base reward at zero emission: got %d, want %d", got, want)
	}

	// The reward shrinks as coins are generated.
	if c.BaseReward(c.MoneySupply/2) >= c.BaseReward(0) {
		t.Fatal("base reward does not shrink with emission")
	}
}

func TestBaseRewardTailEmission(t *testing.T) {
	c := testCurrency(t, func(b *Builder) {
		b.TailEmissionReward(5000)
	})

	// Once the curve drops below the floor the floor wins.
	if got := c.BaseReward(c.MoneySupply); got != 5000 {
		t.Fatalf("tail emission floor: got %d, want 5000", got)
	}
	// Far from exhaustion the curve still dominates.
	if got := c.BaseReward(0); got == 5000 {
		t.Fatal("tail emission floor applied too early")
	}
}

func TestBaseRewardGenesisOverride(t *testing.T) {
	c := testCurrency(t, func(b *Builder) {
		b.GenesisBlockReward(123456)
	})
	if got := c.BaseReward(0); got != 123456 {
		t.Fatalf("genesis reward override: got %d, want 123456", got)
	}
	if got := c.BaseReward(1); got == 123456 {
		t.Fatal("genesis reward override applied beyond the genesis block")
	}
}

func TestBlockRewardNoPenaltyUnderMedian(t *testing.T) {
	c := testCurrency(t, func(b *Builder) {
		b.MoneySupply(1 << 30)
		b.EmissionSpeedFactor(10)
	})

	base := c.BaseReward(0)
	reward, emission, err := c.BlockReward(wire.BlockMajorVersion1, 0, 5000, 0, 0)
	if err != nil {
		t.Fatalf("BlockReward: %v", err)
	}
	if reward != base || emission != base {
		t.Fatalf("small block should earn the full reward: got %d, want %d", reward, base)
	}
}

func TestBlockRewardQuadraticPenalty(t *testing.T) {
	c := testCurrency(t, func(b *Builder) {
		b.MoneySupply(1 << 30)
		b.EmissionSpeedFactor(10)
	})

	// base = 2^20. With S = 1.5*M the penalty is 25%, leaving 3/4.
	base := c.BaseReward(0)
	if base != 1<<20 {
		t.Fatalf("unexpected base reward %d", base)
	}

	medianSize := c.BlockGrantedFullRewardZoneV1
	reward, _, err := c.BlockReward(wire.BlockMajorVersion1, medianSize, medianSize*3/2, 0, 0)
	if err != nil {
		t.Fatalf("BlockReward: %v", err)
	}
	if want := base * 3 / 4; reward != want {
		t.Fatalf("penalized reward: got %d, want %d", reward, want)
	}
}

func TestBlockRewardRejectsDoubleMedian(t *testing.T) {
	c := testCurrency(t, nil)
	medianSize := c.BlockGrantedFullRewardZoneV1
	_, _, err := c.BlockReward(wire.BlockMajorVersion1, medianSize, 2*medianSize+1, 0, 0)
	if err != ErrBlockTooBig {
		t.Fatalf("block above twice the median: got %v, want ErrBlockTooBig", err)
	}
}

func TestBlockRewardPenalizesFeesFromV2(t *testing.T) {
	c := testCurrency(t, func(b *Builder) {
		b.MoneySupply(1 << 30)
		b.EmissionSpeedFactor(10)
	})

	medianSize := c.BlockGrantedFullRewardZoneV2
	fee := uint64(1 << 12)

	// Under version 1 the fee passes through unpenalized.
	rewardV1, _, err := c.BlockReward(wire.BlockMajorVersion1, medianSize, medianSize*3/2, 0, fee)
	if err != nil {
		t.Fatalf("BlockReward v1: %v", err)
	}
	baseV1 := c.BaseReward(0) * 3 / 4
	if rewardV1 != baseV1+fee {
		t.Fatalf("v1 reward with fee: got %d, want %d", rewardV1, baseV1+fee)
	}

	// From version 2 on the fee is penalized as well.
	rewardV2, _, err := c.BlockReward(wire.BlockMajorVersion2, medianSize, medianSize*3/2, 0, fee)
	if err != nil {
		t.Fatalf("BlockReward v2: %v", err)
	}
	if rewardV2 >= rewardV1 {
		t.Fatalf("v2 reward %d should be below v1 reward %d", rewardV2, rewardV1)
	}
}

func TestNextDifficultyDegenerateWindows(t *testing.T) {
	c := testCurrency(t, nil)
	if got := c.NextDifficulty(wire.BlockMajorVersion1, nil, nil); got != 1 {
		t.Fatalf("empty window: got %d, want 1", got)
	}
	if got := c.NextDifficulty(wire.BlockMajorVersion1, []uint64{100}, []uint64{1}); got != 1 {
		t.Fatalf("single entry: got %d, want 1", got)
	}
}

func TestNextDifficultyConvergesOnTarget(t *testing.T) {
	c := testCurrency(t, nil)

	// Blocks spaced exactly at the target with unit work converge to
	// difficulty one.
	n := 100
	timestamps := make([]uint64, n)
	cumulative := make([]uint64, n)
	for i := 0; i < n; i++ {
		timestamps[i] = uint64(i) * c.DifficultyTarget
		cumulative[i] = uint64(i + 1)
	}
	if got := c.NextDifficulty(wire.BlockMajorVersion1, timestamps, cumulative); got != 1 {
		t.Fatalf("uniform spacing: got %d, want 1", got)
	}
}

func TestNextDifficultyScalesWithWork(t *testing.T) {
	c := testCurrency(t, nil)

	// Blocks arriving twice as fast with double work per block push the
	// difficulty to four.
	n := 100
	timestamps := make([]uint64, n)
	cumulative := make([]uint64, n)
	for i := 0; i < n; i++ {
		timestamps[i] = uint64(i) * c.DifficultyTarget / 2
		cumulative[i] = uint64(i+1) * 2
	}
	if got := c.NextDifficulty(wire.BlockMajorVersion1, timestamps, cumulative); got != 4 {
		t.Fatalf("double work at half spacing: got %d, want 4", got)
	}
}

func TestNextDifficultyNeverZero(t *testing.T) {
	c := testCurrency(t, nil)
	// A huge timespan with no work still yields at least one.
	timestamps := []uint64{0, 1 << 40}
	cumulative := []uint64{5, 5}
	if got := c.NextDifficulty(wire.BlockMajorVersion1, timestamps, cumulative); got < 1 {
		t.Fatalf("difficulty below one: %d", got)
	}
}

func TestCalculateInterestFullTerm(t *testing.T) {
	c := testCurrency(t, nil)
	amount := uint64(10000000000)
	want := amount * uint64(c.DepositMaxTotalRate) / 100
	if got := c.CalculateInterest(amount, c.DepositMaxTerm); got != want {
		t.Fatalf("full-term interest: got %d, want %d", got, want)
	}
}

func TestCalculateInterestScalesWithTerm(t *testing.T) {
	c := testCurrency(t, nil)
	amount := uint64(10000000000)
	half := c.CalculateInterest(amount, c.DepositMaxTerm/2)
	full := c.CalculateInterest(amount, c.DepositMaxTerm)
	if half == 0 || half >= full {
		t.Fatalf("interest should scale with term: half %d, full %d", half, full)
	}
}

func TestMaxBlockCumulativeSizeGrows(t *testing.T) {
	c := testCurrency(t, nil)
	early := c.MaxBlockCumulativeSize(0)
	late := c.MaxBlockCumulativeSize(1000000)
	if early != c.MaxBlockSizeInitial {
		t.Fatalf("initial size limit: got %d, want %d", early, c.MaxBlockSizeInitial)
	}
	if late <= early {
		t.Fatal("size limit does not grow with height")
	}
}

func TestGenesisBlock(t *testing.T) {
	c := testCurrency(t, nil)

	block, err := c.GenesisBlock()
	if err != nil {
		t.Fatalf("GenesisBlock: %v", err)
	}
	if block.Index() != 0 {
		t.Fatalf("genesis block index: got %d, want 0", block.Index())
	}
	if block.Template().MajorVersion != wire.BlockMajorVersion1 {
		t.Fatal("genesis block is not version 1")
	}

	hash, err := block.Hash()
	if err != nil {
		t.Fatalf("genesis hash: %v", err)
	}
	cachedHash, err := c.GenesisBlockHash()
	if err != nil {
		t.Fatalf("GenesisBlockHash: %v", err)
	}
	if hash != cachedHash {
		t.Fatal("cached genesis hash differs from the constructed block's hash")
	}
}

func TestTestnetFlipsNetworkID(t *testing.T) {
	mainnet := testCurrency(t, nil)
	testnet := testCurrency(t, func(b *Builder) {
		b.Testnet(true)
	})

	if mainnet.NetworkID == testnet.NetworkID {
		t.Fatal("testnet network id equals mainnet")
	}
	if mainnet.NetworkID[0]^1 != testnet.NetworkID[0] {
		t.Fatal("testnet does not flip the first network id byte")
	}
	if len(testnet.Checkpoints) != 0 || len(testnet.SeedNodes) != 0 {
		t.Fatal("testnet keeps mainnet checkpoints or seeds")
	}
}

func TestBuilderRejectsBadParameters(t *testing.T) {
	if _, err := NewBuilder().UpgradeVoting(101, 0, 0).Build(); err == nil {
		t.Fatal("voting threshold above 100% accepted")
	}
	if _, err := NewBuilder().DifficultyCut(1 << 20).Build(); err == nil {
		t.Fatal("oversized difficulty cut accepted")
	}
}
