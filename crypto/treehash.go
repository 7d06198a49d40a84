// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package crypto

// TreeHash computes the CryptoNote transaction tree hash over the given list
// of hashes. The combine is a left-balanced binary reduction: the list is
// first folded down to the largest power of two by hashing adjacent pairs at
// the tail, then halved repeatedly.
//
// The empty list is not a valid input; blocks always contribute at least the
// base transaction hash.
func TreeHash(hashes []Hash) Hash {
	switch len(hashes) {
	case 0:
		return ZeroHash
	case 1:
		return hashes[0]
	case 2:
		return hashPair(hashes[0], hashes[1])
	}

	cnt := 1
	for cnt*2 < len(hashes) {
		cnt *= 2
	}

	ints := make([]Hash, cnt)
	copy(ints, hashes[:2*cnt-len(hashes)])

	for i, j := 2*cnt-len(hashes), 2*cnt-len(hashes); j < cnt; i, j = i+2, j+1 {
		ints[j] = hashPair(hashes[i], hashes[i+1])
	}

	for cnt > 2 {
		cnt /= 2
		for i, j := 0, 0; j < cnt; i, j = i+2, j+1 {
			ints[j] = hashPair(ints[i], ints[i+1])
		}
	}

	return hashPair(ints[0], ints[1])
}

func hashPair(left, right Hash) Hash {
	return FastHashSlices(left[:], right[:])
}

// TreeHashFromBranch folds a leaf hash up through an authentication branch
// to the root of the tree the branch was taken from. The branch is ordered
// root-most first, matching the order the consensus codec carries it in.
func TreeHashFromBranch(branch []Hash, leaf Hash) Hash {
	root := leaf
	for i := len(branch) - 1; i >= 0; i-- {
		root = hashPair(branch[i], root)
	}
	return root
}
