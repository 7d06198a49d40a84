// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package p2p

import (
	"sort"
	"sync"
	"time"
)

// Peer-list capacities; the oldest last-seen entry is evicted beyond them.
const (
	whitePeerlistLimit = 1000
	grayPeerlistLimit  = 5000
)

// PeerlistManager keeps the two peer books: white holds peers we have
// successfully handshaked with recently, gray holds peers we have only
// heard about. Both are keyed by address.
type PeerlistManager struct {
	mtx sync.RWMutex

	allowLocalIP bool

	white map[NetworkAddress]PeerlistEntry
	gray  map[NetworkAddress]PeerlistEntry
}

// NewPeerlistManager returns an empty peer-list manager.
func NewPeerlistManager(allowLocalIP bool) *PeerlistManager {
	return &PeerlistManager{
		allowLocalIP: allowLocalIP,
		white:        make(map[NetworkAddress]PeerlistEntry),
		gray:         make(map[NetworkAddress]PeerlistEntry),
	}
}

// MergePeerlist folds entries heard from a peer into the gray book.
// Unroutable addresses are dropped; addresses already white stay white.
func (pm *PeerlistManager) MergePeerlist(entries []PeerlistEntry) {
	pm.mtx.Lock()
	defer pm.mtx.Unlock()
	for _, entry := range entries {
		if !isIPRoutable(entry.Address.IP, pm.allowLocalIP) {
			continue
		}
		if _, inWhite := pm.white[entry.Address]; inWhite {
			continue
		}
		if existing, ok := pm.gray[entry.Address]; ok && existing.LastSeen >= entry.LastSeen {
			continue
		}
		pm.gray[entry.Address] = entry
	}
	pm.trimLocked()
}

// SetPeerJustSeen upserts a live peer into the white book.
func (pm *PeerlistManager) SetPeerJustSeen(peerID uint64, address NetworkAddress) {
	pm.mtx.Lock()
	defer pm.mtx.Unlock()
	if !isIPRoutable(address.IP, pm.allowLocalIP) {
		return
	}
	delete(pm.gray, address)
	pm.white[address] = PeerlistEntry{
		Address:  address,
		PeerID:   peerID,
		LastSeen: uint64(time.Now().Unix()),
	}
	pm.trimLocked()
}

// RestoreWhitePeer reinserts a persisted white entry, keeping its
// original last-seen stamp.
func (pm *PeerlistManager) RestoreWhitePeer(entry PeerlistEntry) {
	pm.mtx.Lock()
	defer pm.mtx.Unlock()
	if !isIPRoutable(entry.Address.IP, pm.allowLocalIP) {
		return
	}
	delete(pm.gray, entry.Address)
	pm.white[entry.Address] = entry
	pm.trimLocked()
}

// SetPeerUnreachable demotes a peer that failed to answer from white to
// gray.
func (pm *PeerlistManager) SetPeerUnreachable(address NetworkAddress) {
	pm.mtx.Lock()
	defer pm.mtx.Unlock()
	entry, ok := pm.white[address]
	if !ok {
		return
	}
	delete(pm.white, address)
	pm.gray[address] = entry
	pm.trimLocked()
}

// RemovePeer drops a peer from both books.
func (pm *PeerlistManager) RemovePeer(address NetworkAddress) {
	pm.mtx.Lock()
	defer pm.mtx.Unlock()
	delete(pm.white, address)
	delete(pm.gray, address)
}

// GetPeerlistHead returns up to depth white entries, most recently seen
// first, for handshake payloads.
func (pm *PeerlistManager) GetPeerlistHead(depth int) []PeerlistEntry {
	pm.mtx.RLock()
	defer pm.mtx.RUnlock()
	entries := sortedByLastSeen(pm.white)
	if len(entries) > depth {
		entries = entries[:depth]
	}
	return entries
}

// GetWhitePeers returns the white book, most recently seen first.
func (pm *PeerlistManager) GetWhitePeers() []PeerlistEntry {
	pm.mtx.RLock()
	defer pm.mtx.RUnlock()
	return sortedByLastSeen(pm.white)
}

// GetGrayPeers returns the gray book, most recently seen first.
func (pm *PeerlistManager) GetGrayPeers() []PeerlistEntry {
	pm.mtx.RLock()
	defer pm.mtx.RUnlock()
	return sortedByLastSeen(pm.gray)
}

// Counts returns the sizes of the white and gray books.
func (pm *PeerlistManager) Counts() (white, gray int) {
	pm.mtx.RLock()
	defer pm.mtx.RUnlock()
	return len(pm.white), len(pm.gray)
}

// trimLocked evicts the oldest entries beyond the book capacities.
func (pm *PeerlistManager) trimLocked() {
	trimBook(pm.white, whitePeerlistLimit)
	trimBook(pm.gray, grayPeerlistLimit)
}

func trimBook(book map[NetworkAddress]PeerlistEntry, limit int) {
	for len(book) > limit {
		var oldest NetworkAddress
		oldestSeen := ^uint64(0)
		for address, entry := range book {
			if entry.LastSeen <= oldestSeen {
				oldestSeen = entry.LastSeen
				oldest = address
			}
		}
		delete(book, oldest)
	}
}

func sortedByLastSeen(book map[NetworkAddress]PeerlistEntry) []PeerlistEntry {
	entries := make([]PeerlistEntry, 0, len(book))
	for _, entry := range book {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastSeen > entries[j].LastSeen
	})
	return entries
}
