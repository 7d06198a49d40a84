// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package crypto

import (
	"math/big"
)

// oneLsh256 is 1 shifted left 256 bits. It is defined here to avoid the
// overhead of creating it multiple times.
var oneLsh256 = new(big.Int).Lsh(big.NewInt(1), 256)

// CheckHashMeetsDifficulty returns whether the given proof-of-work hash
// satisfies the given difficulty. The hash is interpreted as a little-endian
// 256-bit integer; the check is hash * difficulty < 2^256, matching the
// overflow-carry test the reference implementation performs with 128-bit
// multiplication limbs.
func CheckHashMeetsDifficulty(hash Hash, difficulty uint64) bool {
	if difficulty == 0 {
		return true
	}

	// The hash bytes are little endian on the wire while big.Int expects
	// big endian, so reverse before converting.
	var reversed [HashSize]byte
	for i := 0; i < HashSize; i++ {
		reversed[i] = hash[HashSize-1-i]
	}

	hashValue := new(big.Int).SetBytes(reversed[:])
	product := hashValue.Mul(hashValue, new(big.Int).SetUint64(difficulty))
	return product.Cmp(oneLsh256) < 0
}
