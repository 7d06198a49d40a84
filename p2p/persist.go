// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package p2p

import (
	"os"
	"path/filepath"

	"github.com/bytecoin-go/bytecoind/currency"
	"github.com/bytecoin-go/bytecoind/levin"
	"github.com/pkg/errors"
)

// saveState writes p2pstate.bin: our peer id plus both peer books, using
// the same portable storage encoding the wire speaks.
func (srv *NodeServer) saveState() error {
	s := levin.NewSection()
	s.Set("peer_id", srv.peerID)
	s.Set("local_peerlist_white", MarshalPeerlist(srv.peerlist.GetWhitePeers()))
	s.Set("local_peerlist_gray", MarshalPeerlist(srv.peerlist.GetGrayPeers()))

	data, err := s.Marshal()
	if err != nil {
		return err
	}

	path := filepath.Join(srv.cfg.DataDir, currency.P2pNetDataFilename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrap(err, "couldn't write p2p state")
	}
	return nil
}

// loadState restores p2pstate.bin if present.
func (srv *NodeServer) loadState() error {
	path := filepath.Join(srv.cfg.DataDir, currency.P2pNetDataFilename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrap(err, "couldn't read p2p state")
	}

	s, err := levin.Unmarshal(data)
	if err != nil {
		return errors.Wrap(err, "corrupt p2p state")
	}

	srv.peerID, _ = s.GetUint("peer_id")
	if blob, ok := s.GetBytes("local_peerlist_white"); ok {
		entries, err := UnmarshalPeerlist(blob)
		if err != nil {
			return errors.Wrap(err, "corrupt white peer list")
		}
		for _, entry := range entries {
			srv.peerlist.RestoreWhitePeer(entry)
		}
	}
	if blob, ok := s.GetBytes("local_peerlist_gray"); ok {
		entries, err := UnmarshalPeerlist(blob)
		if err != nil {
			return errors.Wrap(err, "corrupt gray peer list")
		}
		srv.peerlist.MergePeerlist(entries)
	}

	white, gray := srv.peerlist.Counts()
	log.Infof("Loaded p2p state: %d white and %d gray peers", white, gray)
	return nil
}
