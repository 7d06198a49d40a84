// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package crypto

import (
	"testing"
)

func TestCheckHashMeetsDifficulty(t *testing.T) {
	var zero Hash
	var max Hash
	for i := range max {
		max[i] = 0xff
	}

	tests := []struct {
		name       string
		hash       Hash
		difficulty uint64
		want       bool
	}{
		{"zero hash, difficulty 1", zero, 1, true},
		{"zero hash, huge difficulty", zero, ^uint64(0), true},
		{"max hash, difficulty 1", max, 1, true},
		{"max hash, difficulty 2", max, 2, false},
		{"any hash, difficulty 0", max, 0, true},
	}

	for _, test := range tests {
		if got := CheckHashMeetsDifficulty(test.hash, test.difficulty); got != test.want {
			t.Errorf("%s: got %v, want %v", test.name, got, test.want)
		}
	}
}

func TestHashHexRoundTrip(t *testing.T) {
	hash := FastHash([]byte("round trip"))
	parsed, err := NewHashFromStr(hash.String())
	if err != nil {
		t.Fatalf("NewHashFromStr: %v", err)
	}
	if *parsed != hash {
		t.Fatalf("hex round trip changed the hash: %s != %s", parsed, hash)
	}
}

func TestNewHashFromStrRejectsBadInput(t *testing.T) {
	if _, err := NewHashFromStr("abcd"); err == nil {
		t.Fatal("short hash string accepted")
	}
	if _, err := NewHashFromStr("zz" + FastHash(nil).String()[2:]); err == nil {
		t.Fatal("non-hex hash string accepted")
	}
}
