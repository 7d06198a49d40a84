// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package crypto

import (
	"testing"
)

func testHashes(n int) []Hash {
	hashes := make([]Hash, n)
	for i := range hashes {
		hashes[i] = FastHash([]byte{byte(i)})
	}
	return hashes
}

func TestTreeHashSingle(t *testing.T) {
	hashes := testHashes(1)
	if got := TreeHash(hashes); got != hashes[0] {
		t.Fatalf("tree hash of one leaf should be the leaf, got %s", got)
	}
}

func TestTreeHashPair(t *testing.T) {
	hashes := testHashes(2)
	want := FastHashSlices(hashes[0][:], hashes[1][:])
	if got := TreeHash(hashes); got != want {
		t.Fatalf("tree hash of a pair: got %s, want %s", got, want)
	}
}

func TestTreeHashThree(t *testing.T) {
	// With three leaves the tail pair is folded first, then combined
	// with the untouched head.
	hashes := testHashes(3)
	tail := FastHashSlices(hashes[1][:], hashes[2][:])
	want := FastHashSlices(hashes[0][:], tail[:])
	if got := TreeHash(hashes); got != want {
		t.Fatalf("tree hash of three leaves: got %s, want %s", got, want)
	}
}

func TestTreeHashFour(t *testing.T) {
	hashes := testHashes(4)
	left := FastHashSlices(hashes[0][:], hashes[1][:])
	right := FastHashSlices(hashes[2][:], hashes[3][:])
	want := FastHashSlices(left[:], right[:])
	if got := TreeHash(hashes); got != want {
		t.Fatalf("tree hash of four leaves: got %s, want %s", got, want)
	}
}

func TestTreeHashStable(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5, 8, 13, 64, 100} {
		hashes := testHashes(n)
		first := TreeHash(hashes)
		second := TreeHash(hashes)
		if first != second {
			t.Fatalf("tree hash over %d leaves is not deterministic", n)
		}
	}
}

func TestTreeHashFromBranchEmpty(t *testing.T) {
	leaf := FastHash([]byte("leaf"))
	if got := TreeHashFromBranch(nil, leaf); got != leaf {
		t.Fatalf("empty branch should return the leaf, got %s", got)
	}
}

func TestTreeHashFromBranchFold(t *testing.T) {
	leaf := FastHash([]byte("leaf"))
	branch := testHashes(2)
	inner := FastHashSlices(branch[1][:], leaf[:])
	want := FastHashSlices(branch[0][:], inner[:])
	if got := TreeHashFromBranch(branch, leaf); got != want {
		t.Fatalf("branch fold: got %s, want %s", got, want)
	}
}
