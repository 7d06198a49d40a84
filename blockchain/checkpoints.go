// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/bytecoin-go/bytecoind/currency"
	"github.com/pkg/errors"
)

// checkpoints holds the hard-coded height-to-hash pins of the deployment.
// Blocks at or below the highest checkpoint may skip the proof-of-work
// check, and a reorganization is never allowed to cross a checkpoint.
type checkpoints struct {
	points    map[uint32]crypto.Hash
	maxHeight uint32
}

func newCheckpoints(list []currency.Checkpoint) (*checkpoints, error) {
	cp := &checkpoints{points: make(map[uint32]crypto.Hash, len(list))}
	for _, point := range list {
		if err := cp.addCheckpoint(point.Height, point.Hash); err != nil {
			return nil, err
		}
	}
	return cp, nil
}

// addCheckpoint parses and registers one checkpoint. The hash must be a
// valid hex-encoded hash.
func (cp *checkpoints) addCheckpoint(height uint32, hashStr string) error {
	hash, err := crypto.NewHashFromStr(hashStr)
	if err != nil {
		return errors.Wrapf(err, "invalid checkpoint hash at height %d", height)
	}
	cp.points[height] = *hash
	if height > cp.maxHeight {
		cp.maxHeight = height
	}
	return nil
}

// isInZone returns whether the given height is at or below the highest
// checkpoint.
func (cp *checkpoints) isInZone(height uint32) bool {
	return len(cp.points) != 0 && height <= cp.maxHeight
}

// anyInRange returns whether a checkpoint exists at a height in
// (from, to]. A reorganization detaching such a height is never allowed.
func (cp *checkpoints) anyInRange(from, to uint32) bool {
	for height := range cp.points {
		if height > from && height <= to {
			return true
		}
	}
	return false
}

// check returns whether a block hash is allowed at the given height: true
// when no checkpoint exists there, or when the hash matches the pin.
func (cp *checkpoints) check(height uint32, hash crypto.Hash) bool {
	expected, ok := cp.points[height]
	if !ok {
		return true
	}
	return expected == hash
}
