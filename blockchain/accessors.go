// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain

import (
	"github.com/bytecoin-go/bytecoind/coreutil"
	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/bytecoin-go/bytecoind/wire"
	"github.com/pkg/errors"
)

// GetBlocksByHeight returns up to count raw blocks starting at the given
// height on the main chain.
func (chain *Chain) GetBlocksByHeight(startHeight uint32, count uint32) ([]*wire.RawBlock, error) {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()

	if startHeight >= uint32(len(chain.mainChain)) {
		return nil, errors.Errorf("start height %d above top %d",
			startHeight, len(chain.mainChain)-1)
	}

	end := uint64(startHeight) + uint64(count)
	if end > uint64(len(chain.mainChain)) {
		end = uint64(len(chain.mainChain))
	}

	blocks := make([]*wire.RawBlock, 0, end-uint64(startHeight))
	for height := startHeight; uint64(height) < end; height++ {
		raw, err := chain.rawBlockFor(chain.mainChain[height])
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, raw)
	}
	return blocks, nil
}

// GetBlocksByHash resolves block hashes into raw blocks, reporting the
// hashes it could not find.
func (chain *Chain) GetBlocksByHash(hashes []crypto.Hash) (found []*wire.RawBlock, missed []crypto.Hash) {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()

	for _, hash := range hashes {
		node, ok := chain.index[hash]
		if !ok {
			missed = append(missed, hash)
			continue
		}
		raw, err := chain.rawBlockFor(node)
		if err != nil {
			missed = append(missed, hash)
			continue
		}
		found = append(found, raw)
	}
	return found, missed
}

// GetTransactions resolves transaction hashes against the main chain,
// reporting the hashes it could not find. The pool is not consulted.
func (chain *Chain) GetTransactions(hashes []crypto.Hash) (found []*coreutil.Tx, missed []crypto.Hash) {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()

	for _, hash := range hashes {
		height, index, ok := chain.store.TxLocation(hash)
		if !ok || height >= uint32(len(chain.mainChain)) {
			missed = append(missed, hash)
			continue
		}
		node := chain.mainChain[height]
		if index == 0 {
			found = append(found, coreutil.NewTx(&node.block.Template().BaseTransaction))
			continue
		}
		if int(index-1) >= len(node.transactions) {
			missed = append(missed, hash)
			continue
		}
		found = append(found, node.transactions[index-1])
	}
	return found, missed
}

// BuildSparseChain returns the sync locator: the last ten main-chain
// hashes, then hashes at exponentially growing distances, ending with the
// genesis hash.
func (chain *Chain) BuildSparseChain() []crypto.Hash {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()

	top := len(chain.mainChain) - 1
	var hashes []crypto.Hash
	step := 1
	for offset := 0; ; {
		hashes = append(hashes, chain.mainChain[top-offset].hash)
		if top-offset == 0 {
			return hashes
		}
		if len(hashes) >= 10 {
			step *= 2
		}
		offset += step
		if offset > top {
			offset = top
		}
	}
}

// FindBlockchainSupplement locates the most recent locator hash that is on
// the main chain and returns its height together with up to maxCount block
// hashes from there forward. An error is returned when no locator entry is
// recognized, which indicates the peer is on a foreign network.
func (chain *Chain) FindBlockchainSupplement(locator []crypto.Hash, maxCount uint32) (startHeight uint32, hashes []crypto.Hash, err error) {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()

	foundHeight := uint32(0)
	found := false
	for _, hash := range locator {
		if node, ok := chain.index[hash]; ok && node.onMainChain {
			foundHeight = node.height
			found = true
			break
		}
	}
	if !found {
		return 0, nil, errors.New("no locator hash recognized; foreign chain")
	}

	end := uint64(foundHeight) + uint64(maxCount)
	if end > uint64(len(chain.mainChain)) {
		end = uint64(len(chain.mainChain))
	}
	hashes = make([]crypto.Hash, 0, end-uint64(foundHeight))
	for height := foundHeight; uint64(height) < end; height++ {
		hashes = append(hashes, chain.mainChain[height].hash)
	}
	return foundHeight, hashes, nil
}

// BlockHashByHeight returns the main-chain block hash at the given height.
func (chain *Chain) BlockHashByHeight(height uint32) (crypto.Hash, error) {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()
	if height >= uint32(len(chain.mainChain)) {
		return crypto.ZeroHash, errors.Errorf("no block at height %d", height)
	}
	return chain.mainChain[height].hash, nil
}

// BlockByHash returns any known block, main or alternative, by hash.
func (chain *Chain) BlockByHash(hash crypto.Hash) (*coreutil.Block, uint32, error) {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()
	node, ok := chain.index[hash]
	if !ok {
		return nil, 0, errors.Errorf("no known block %s", hash)
	}
	return node.block, node.height, nil
}

// AlternativeBlockCount returns the number of blocks attached outside the
// main chain.
func (chain *Chain) AlternativeBlockCount() int {
	chain.mtx.RLock()
	defer chain.mtx.RUnlock()
	count := 0
	for _, node := range chain.index {
		if !node.onMainChain {
			count++
		}
	}
	return count
}
