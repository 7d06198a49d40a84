// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package p2p

import (
	"testing"
)

func routableAddress(n byte) NetworkAddress {
	// 8.8.n.1 is globally routable.
	return NetworkAddress{IP: uint32(8) | uint32(8)<<8 | uint32(n)<<16 | uint32(1)<<24, Port: 8080}
}

func TestPeerlistMergeGoesToGray(t *testing.T) {
	pm := NewPeerlistManager(false)
	pm.MergePeerlist([]PeerlistEntry{
		{Address: routableAddress(1), PeerID: 1, LastSeen: 100},
	})

	white, gray := pm.Counts()
	if white != 0 || gray != 1 {
		t.Fatalf("merge: white %d gray %d, want 0/1", white, gray)
	}
}

func TestPeerlistMergeDropsUnroutable(t *testing.T) {
	pm := NewPeerlistManager(false)
	loopback := NetworkAddress{IP: 0x0100007f, Port: 8080} // 127.0.0.1 little endian
	pm.MergePeerlist([]PeerlistEntry{
		{Address: loopback, PeerID: 1, LastSeen: 100},
	})
	if _, gray := pm.Counts(); gray != 0 {
		t.Fatal("unroutable address admitted to gray list")
	}

	allowing := NewPeerlistManager(true)
	allowing.MergePeerlist([]PeerlistEntry{
		{Address: loopback, PeerID: 1, LastSeen: 100},
	})
	if _, gray := allowing.Counts(); gray != 1 {
		t.Fatal("allow-local-ip did not admit the loopback address")
	}
}

func TestPeerlistJustSeenPromotesToWhite(t *testing.T) {
	pm := NewPeerlistManager(false)
	address := routableAddress(2)

	pm.MergePeerlist([]PeerlistEntry{{Address: address, PeerID: 2, LastSeen: 100}})
	pm.SetPeerJustSeen(2, address)

	white, gray := pm.Counts()
	if white != 1 || gray != 0 {
		t.Fatalf("just seen: white %d gray %d, want 1/0", white, gray)
	}
}

func TestPeerlistMergeKeepsWhiteEntries(t *testing.T) {
	pm := NewPeerlistManager(false)
	address := routableAddress(3)

	pm.SetPeerJustSeen(3, address)
	pm.MergePeerlist([]PeerlistEntry{{Address: address, PeerID: 3, LastSeen: 1}})

	white, gray := pm.Counts()
	if white != 1 || gray != 0 {
		t.Fatalf("white entry demoted by merge: white %d gray %d", white, gray)
	}
}

func TestPeerlistUnreachableDemotesToGray(t *testing.T) {
	pm := NewPeerlistManager(false)
	address := routableAddress(4)

	pm.SetPeerJustSeen(4, address)
	pm.SetPeerUnreachable(address)

	white, gray := pm.Counts()
	if white != 0 || gray != 1 {
		t.Fatalf("unreachable: white %d gray %d, want 0/1", white, gray)
	}
}

func TestPeerlistGrayEvictsOldest(t *testing.T) {
	pm := NewPeerlistManager(false)

	entries := make([]PeerlistEntry, grayPeerlistLimit+10)
	for i := range entries {
		entries[i] = PeerlistEntry{
			Address:  NetworkAddress{IP: uint32(8) | uint32(8)<<8 | uint32(i)<<16, Port: uint32(1000 + i)},
			PeerID:   uint64(i),
			LastSeen: uint64(i + 1),
		}
	}
	pm.MergePeerlist(entries)

	_, gray := pm.Counts()
	if gray != grayPeerlistLimit {
		t.Fatalf("gray size after overflow: got %d, want %d", gray, grayPeerlistLimit)
	}

	// The most recently seen entries survive.
	peers := pm.GetGrayPeers()
	if peers[0].LastSeen != uint64(len(entries)) {
		t.Fatalf("freshest entry lost: head last seen %d", peers[0].LastSeen)
	}
}

func TestPeerlistHeadDepth(t *testing.T) {
	pm := NewPeerlistManager(false)
	for i := 0; i < 20; i++ {
		pm.SetPeerJustSeen(uint64(i), routableAddress(byte(i)))
	}
	head := pm.GetPeerlistHead(5)
	if len(head) != 5 {
		t.Fatalf("peer list head: got %d entries, want 5", len(head))
	}
}

func TestPeerlistBinaryRoundTrip(t *testing.T) {
	entries := []PeerlistEntry{
		{Address: routableAddress(1), PeerID: 11, LastSeen: 111},
		{Address: routableAddress(2), PeerID: 22, LastSeen: 222},
	}

	parsed, err := UnmarshalPeerlist(MarshalPeerlist(entries))
	if err != nil {
		t.Fatalf("UnmarshalPeerlist: %v", err)
	}
	if len(parsed) != len(entries) {
		t.Fatalf("entry count: got %d, want %d", len(parsed), len(entries))
	}
	for i := range entries {
		if parsed[i] != entries[i] {
			t.Fatalf("entry %d changed in round trip: %+v vs %+v", i, parsed[i], entries[i])
		}
	}
}

func TestUnmarshalPeerlistRejectsRaggedBlob(t *testing.T) {
	if _, err := UnmarshalPeerlist(make([]byte, peerlistEntrySize+1)); err == nil {
		t.Fatal("ragged peer list blob accepted")
	}
}

func TestParseAddress(t *testing.T) {
	address, err := ParseAddress("8.8.8.8:8080")
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if address.Port != 8080 {
		t.Fatalf("port: got %d, want 8080", address.Port)
	}
	if address.String() != "8.8.8.8:8080" {
		t.Fatalf("string round trip: got %s", address.String())
	}

	if _, err := ParseAddress("no-port"); err == nil {
		t.Fatal("address without port accepted")
	}
}
