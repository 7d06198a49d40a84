// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package currency

import (
	"math/big"

	"github.com/bytecoin-go/bytecoind/wire"
	"github.com/pkg/errors"
)

// ErrBlockTooBig is returned by BlockReward when the block is more than
// twice the effective median size and must be rejected outright.
var ErrBlockTooBig = errors.New("cumulative block size exceeds twice the median")

// BaseReward returns the reward the emission curve grants at the point
// where alreadyGenerated coins exist, before any size penalty.
func (c *Currency) BaseReward(alreadyGenerated uint64) uint64 {
	if alreadyGenerated == 0 && c.GenesisBlockReward != 0 {
		return c.GenesisBlockReward
	}
	reward := (c.MoneySupply - alreadyGenerated) >> c.EmissionSpeedFactor
	if reward < c.TailEmissionReward {
		reward = c.TailEmissionReward
	}
	return reward
}

// BlockReward computes the penalized reward and the emission change for a
// block of currentBlockSize bytes when the median block size over the
// reward window is medianSize. The effective median is floored at the
// granted full reward zone for the given block major version; a block more
// than twice the effective median large is invalid.
func (c *Currency) BlockReward(blockMajorVersion uint8, medianSize, currentBlockSize, alreadyGenerated, fee uint64) (reward, emissionChange uint64, err error) {
	baseReward := c.BaseReward(alreadyGenerated)

	zone := c.FullRewardZoneByVersion(blockMajorVersion)
	if medianSize < zone {
		medianSize = zone
	}
	if currentBlockSize > 2*medianSize {
		return 0, 0, ErrBlockTooBig
	}

	penalizedBaseReward := penalizedAmount(baseReward, medianSize, currentBlockSize)
	penalizedFee := fee
	if blockMajorVersion >= wire.BlockMajorVersion2 {
		penalizedFee = penalizedAmount(fee, medianSize, currentBlockSize)
	}

	emissionChange = penalizedBaseReward - (fee - penalizedFee)
	reward = penalizedBaseReward + penalizedFee
	return reward, emissionChange, nil
}

// FullRewardZoneByVersion returns the penalty-free block size for the given
// block major version.
func (c *Currency) FullRewardZoneByVersion(blockMajorVersion uint8) uint64 {
	switch blockMajorVersion {
	case wire.BlockMajorVersion1:
		return c.BlockGrantedFullRewardZoneV1
	case wire.BlockMajorVersion2:
		return c.BlockGrantedFullRewardZoneV2
	default:
		return c.BlockGrantedFullRewardZone
	}
}

// MaxBlockCumulativeSize returns the growing hard bound on cumulative
// block size at the given height.
func (c *Currency) MaxBlockCumulativeSize(height uint64) uint64 {
	maxSize := c.MaxBlockSizeInitial +
		c.MaxBlockSizeGrowthSpeedNumerator*height/c.MaxBlockSizeGrowthSpeedDenominator
	if maxSize > MaxBlockBlobSize {
		maxSize = MaxBlockBlobSize
	}
	return maxSize
}

// CalculateInterest returns the interest a matured deposit of the given
// amount and term earns on top of its principal. The rate scales linearly
// with the term, reaching DepositMaxTotalRate percent at DepositMaxTerm.
func (c *Currency) CalculateInterest(amount uint64, term uint32) uint64 {
	interest := new(big.Int).SetUint64(amount)
	interest.Mul(interest, big.NewInt(int64(c.DepositMaxTotalRate)))
	interest.Mul(interest, big.NewInt(int64(term)))
	interest.Div(interest, big.NewInt(int64(c.DepositMaxTerm)))
	interest.Div(interest, big.NewInt(100))
	return interest.Uint64()
}

// penalizedAmount scales amount by 1 - ((S - M) / M)^2 when the block size
// S exceeds the median M. The expression is computed as a*S*(2M-S)/M^2 in
// arbitrary precision, matching the 128-bit limb arithmetic of the
// reference implementation.
func penalizedAmount(amount, medianSize, currentBlockSize uint64) uint64 {
	if currentBlockSize <= medianSize {
		return amount
	}
	if amount == 0 {
		return 0
	}

	product := new(big.Int).SetUint64(amount)
	product.Mul(product, new(big.Int).SetUint64(currentBlockSize))
	product.Mul(product, new(big.Int).SetUint64(2*medianSize-currentBlockSize))
	median := new(big.Int).SetUint64(medianSize)
	product.Div(product, median)
	product.Div(product, median)
	return product.Uint64()
}
