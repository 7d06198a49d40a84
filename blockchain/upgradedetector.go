// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/bytecoin-go/bytecoind/currency"
	"github.com/bytecoin-go/bytecoind/wire"
)

// unknownHeight is the sentinel for "voting not complete yet".
const unknownHeight = ^uint32(0)

// upgradeDetector tracks miner votes for one major-version upgrade and
// fixes the deterministic activation height once the vote passes. A block
// votes yes when it carries the previous major version with minor version
// one. When the deployment hard-codes an upgrade height the vote is
// ignored entirely.
type upgradeDetector struct {
	currency      *currency.Currency
	targetVersion uint8

	// configuredHeight, when non-zero, overrides vote-derived activation.
	configuredHeight uint32

	// votes records, per block index, whether that block was a yes vote.
	// It exists so rollbacks can rewind the counter without consulting
	// storage.
	votes []bool

	// voteCount is the number of yes votes inside the trailing voting
	// window.
	voteCount uint32

	votingCompleteHeight uint32
}

func newUpgradeDetector(c *currency.Currency, targetVersion uint8, configuredHeight uint32) *upgradeDetector {
	return &upgradeDetector{
		currency:             c,
		targetVersion:        targetVersion,
		configuredHeight:     configuredHeight,
		votingCompleteHeight: unknownHeight,
	}
}

// activationHeight returns the height from which the target version is
// mandatory, or unknownHeight when it is not scheduled yet.
func (d *upgradeDetector) activationHeight() uint32 {
	if d.configuredHeight != 0 {
		return d.configuredHeight
	}
	if d.votingCompleteHeight == unknownHeight {
		return unknownHeight
	}
	return d.votingCompleteHeight + d.currency.UpgradeWindow
}

// blockPushed accounts the vote of a newly attached main-chain block.
func (d *upgradeDetector) blockPushed(blockIndex uint32, majorVersion, minorVersion uint8) {
	if d.configuredHeight != 0 {
		return
	}

	vote := majorVersion == d.targetVersion-1 && minorVersion == wire.BlockMinorVersion1

	// The votes slice is indexed by block index; pushes arrive in order.
	d.votes = append(d.votes, vote)
	if vote {
		d.voteCount++
	}
	window := d.currency.UpgradeVotingWindow
	if uint32(len(d.votes)) > window && d.votes[uint32(len(d.votes))-window-1] {
		d.voteCount--
	}

	if d.votingCompleteHeight == unknownHeight &&
		uint32(len(d.votes)) >= window &&
		d.voteCount*100 >= uint32(d.currency.UpgradeVotingThreshold)*window {
		d.votingCompleteHeight = blockIndex
	}
}

// blockPopped rewinds the vote accounting after a main-chain rollback of
// the top block.
func (d *upgradeDetector) blockPopped() {
	if d.configuredHeight != 0 || len(d.votes) == 0 {
		return
	}

	top := uint32(len(d.votes)) - 1
	if d.votingCompleteHeight != unknownHeight && top <= d.votingCompleteHeight {
		d.votingCompleteHeight = unknownHeight
	}

	if d.votes[top] {
		d.voteCount--
	}
	window := d.currency.UpgradeVotingWindow
	if uint32(len(d.votes)) > window && d.votes[uint32(len(d.votes))-window-1] {
		d.voteCount++
	}
	d.votes = d.votes[:top]
}

// detectorChain chains the v2 and v3 detectors into a height-to-version
// table.
type detectorChain struct {
	v2 *upgradeDetector
	v3 *upgradeDetector
}

func newDetectorChain(c *currency.Currency) *detectorChain {
	return &detectorChain{
		v2: newUpgradeDetector(c, wire.BlockMajorVersion2, c.UpgradeHeightV2),
		v3: newUpgradeDetector(c, wire.BlockMajorVersion3, c.UpgradeHeightV3),
	}
}

// majorVersionForHeight returns the block major version mandatory at the
// given height.
func (dc *detectorChain) majorVersionForHeight(height uint32) uint8 {
	if h := dc.v3.activationHeight(); h != unknownHeight && height >= h {
		return wire.BlockMajorVersion3
	}
	if h := dc.v2.activationHeight(); h != unknownHeight && height >= h {
		return wire.BlockMajorVersion2
	}
	return wire.BlockMajorVersion1
}

func (dc *detectorChain) blockPushed(blockIndex uint32, majorVersion, minorVersion uint8) {
	dc.v2.blockPushed(blockIndex, majorVersion, minorVersion)
	dc.v3.blockPushed(blockIndex, majorVersion, minorVersion)
}

func (dc *detectorChain) blockPopped() {
	dc.v2.blockPopped()
	dc.v3.blockPopped()
}
