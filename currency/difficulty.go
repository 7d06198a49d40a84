// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package currency

import (
	"math/bits"
	"sort"

	"github.com/bytecoin-go/bytecoind/wire"
)

// NextDifficulty computes the difficulty the block following the described
// window must meet. timestamps and cumulativeDifficulties run oldest to
// newest and must be the same length; only the most recent window entries
// are considered, the sorted timestamps are trimmed evenly from both tails
// down to window-2*cut entries (cut on each side for a full window; no
// trimming when no more than window-2*cut remain), and the result is the
// ceiling of work*target/timespan, never below one.
func (c *Currency) NextDifficulty(blockMajorVersion uint8, timestamps []uint64, cumulativeDifficulties []uint64) uint64 {
	window, cut := c.difficultyWindowAndCutByVersion(blockMajorVersion)
	return nextDifficulty(timestamps, cumulativeDifficulties, window, cut, c.DifficultyTarget)
}

func (c *Currency) difficultyWindowAndCutByVersion(blockMajorVersion uint8) (window, cut int) {
	if blockMajorVersion >= wire.BlockMajorVersion2 {
		return c.DifficultyWindowV2, c.DifficultyCutV2
	}
	return c.DifficultyWindowV1, c.DifficultyCutV1
}

func nextDifficulty(timestamps, cumulativeDifficulties []uint64, window, cut int, target uint64) uint64 {
	if len(timestamps) > window {
		timestamps = timestamps[len(timestamps)-window:]
		cumulativeDifficulties = cumulativeDifficulties[len(cumulativeDifficulties)-window:]
	}

	length := len(timestamps)
	if length <= 1 {
		return 1
	}

	sorted := make([]uint64, length)
	copy(sorted, timestamps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var cutBegin, cutEnd int
	if length > window-2*cut {
		cutBegin = (length - (window - 2*cut) + 1) / 2
		cutEnd = cutBegin + (window - 2*cut)
	} else {
		cutBegin = 0
		cutEnd = length
	}

	timeSpan := sorted[cutEnd-1] - sorted[cutBegin]
	if timeSpan == 0 {
		timeSpan = 1
	}

	totalWork := cumulativeDifficulties[cutEnd-1] - cumulativeDifficulties[cutBegin]

	high, low := bits.Mul64(totalWork, target)
	if high != 0 || low+timeSpan-1 < low {
		return 1
	}

	difficulty := (low + timeSpan - 1) / timeSpan
	if difficulty == 0 {
		return 1
	}
	return difficulty
}
