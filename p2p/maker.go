// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package p2p

import (
	"math/rand"
	"net"
	"time"

	"github.com/bytecoin-go/bytecoind/levin"
	"github.com/pkg/errors"
)

// idleLoop runs the connection maker every second and stores the peer
// books periodically.
func (srv *NodeServer) idleLoop() {
	defer srv.wg.Done()

	makerTicker := time.NewTicker(idleInterval)
	defer makerTicker.Stop()
	storeTicker := time.NewTicker(peerlistStoreInterval)
	defer storeTicker.Stop()

	for {
		select {
		case <-srv.quit:
			return
		case <-makerTicker.C:
			srv.connectionsMaker()
		case <-storeTicker.C:
			if err := srv.saveState(); err != nil {
				log.Errorf("Couldn't save p2p state: %v", err)
			}
		}
	}
}

// timedSyncLoop sends the heartbeat to every handshaked peer.
func (srv *NodeServer) timedSyncLoop() {
	defer srv.wg.Done()

	ticker := time.NewTicker(handshakeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-srv.quit:
			return
		case <-ticker.C:
			srv.timedSync()
		}
	}
}

func (srv *NodeServer) timedSync() {
	req := TimedSyncRequest{PayloadData: srv.handler.GetPayloadSyncData()}
	payload, err := req.Marshal()
	if err != nil {
		log.Errorf("Couldn't marshal timed sync: %v", err)
		return
	}
	var buf frameBuffer
	if err := levin.WriteCommand(&buf, CommandTimedSync, payload, true); err != nil {
		log.Errorf("Couldn't frame timed sync: %v", err)
		return
	}

	srv.mtx.RLock()
	targets := make([]*peerConnection, 0, len(srv.connections))
	for _, pc := range srv.connections {
		if pc.Context.PeerID != 0 && pc.Context.State != StateShutdown {
			targets = append(targets, pc)
		}
	}
	srv.mtx.RUnlock()

	for _, pc := range targets {
		pc.pushMessage(buf.bytes)
	}
}

// timeoutLoop interrupts connections whose current write has been
// outstanding longer than the invoke timeout.
func (srv *NodeServer) timeoutLoop() {
	defer srv.wg.Done()

	ticker := time.NewTicker(timeoutCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-srv.quit:
			return
		case <-ticker.C:
			now := time.Now()
			srv.mtx.RLock()
			var stuck []*peerConnection
			for _, pc := range srv.connections {
				if pc.writeDuration(now) > invokeTimeout {
					stuck = append(stuck, pc)
				}
			}
			srv.mtx.RUnlock()
			for _, pc := range stuck {
				log.Infof("%sWrite stuck for over %v, interrupting", pc.Context, invokeTimeout)
				pc.interrupt()
			}
		}
	}
}

// connectionsMaker keeps the outbound connection target met: priority
// peers first, then a biased draw from the white book, then the gray one,
// bootstrapping from seed nodes when both books are empty.
func (srv *NodeServer) connectionsMaker() {
	if len(srv.cfg.ExclusiveNodes) != 0 {
		srv.connectToMissing(srv.cfg.ExclusiveNodes)
		return
	}

	srv.connectToMissing(srv.cfg.PriorityNodes)

	target := srv.cfg.OutgoingConnectionsCount
	if srv.outgoingConnectionCount() >= target {
		return
	}

	white, gray := srv.peerlist.Counts()
	if white == 0 && gray == 0 {
		srv.bootstrapFromSeeds()
		return
	}

	whiteTarget := target * whitelistConnectionsPercent / 100
	useWhite := srv.outgoingConnectionCount() < whiteTarget && white > 0
	if !srv.makeConnectionFromPeerlist(useWhite) && useWhite {
		srv.makeConnectionFromPeerlist(false)
	}
}

func (srv *NodeServer) connectToMissing(addresses []NetworkAddress) {
	for _, address := range addresses {
		if srv.isAddressConnected(address) {
			continue
		}
		address := address
		spawn(func() { srv.tryConnect(address, false) })
	}
}

// makeConnectionFromPeerlist draws a biased-random candidate from the
// selected book and dials it.
func (srv *NodeServer) makeConnectionFromPeerlist(useWhite bool) bool {
	var entries []PeerlistEntry
	if useWhite {
		entries = srv.peerlist.GetWhitePeers()
	} else {
		entries = srv.peerlist.GetGrayPeers()
	}
	if len(entries) == 0 {
		return false
	}

	// Bias toward recently seen peers: square the uniform draw so low
	// indexes (fresher entries) come up more often.
	r := rand.Float64()
	index := int(r * r * float64(len(entries)))
	if index >= len(entries) {
		index = len(entries) - 1
	}
	entry := entries[index]

	if srv.isAddressConnected(entry.Address) {
		return false
	}
	spawn(func() {
		if !srv.tryConnect(entry.Address, false) {
			srv.peerlist.SetPeerUnreachable(entry.Address)
		}
	})
	return true
}

// bootstrapFromSeeds pings each seed node once to import its peer list.
func (srv *NodeServer) bootstrapFromSeeds() {
	for _, address := range srv.cfg.SeedNodes {
		if srv.isAddressConnected(address) {
			continue
		}
		address := address
		spawn(func() { srv.tryConnect(address, true) })
	}
}

// tryConnect dials a peer, performs the synchronous handshake and, unless
// justTakePeerlist was set, hands the connection to the normal read loop.
func (srv *NodeServer) tryConnect(address NetworkAddress, justTakePeerlist bool) bool {
	select {
	case <-srv.quit:
		return false
	default:
	}

	conn, err := net.DialTimeout("tcp", address.String(), connectTimeout)
	if err != nil {
		log.Debugf("Couldn't connect to %s: %v", address, err)
		return false
	}

	pc := newPeerConnection(conn, false)
	pc.Context.RemoteAddress = address

	rsp, err := srv.performHandshake(pc)
	if err != nil {
		log.Debugf("Handshake with %s failed: %v", address, err)
		conn.Close()
		return false
	}

	srv.peerlist.MergePeerlist(fixPeerlistTimes(rsp.LocalPeerlist, rsp.NodeData.LocalTime))
	srv.peerlist.SetPeerJustSeen(rsp.NodeData.PeerID, address)

	if justTakePeerlist {
		conn.Close()
		log.Debugf("Took peer list from %s (%d entries)", address, len(rsp.LocalPeerlist))
		return true
	}

	pc.Context.PeerID = rsp.NodeData.PeerID
	pc.Context.Version = rsp.NodeData.Version

	// The connection is registered before the sync data is digested so
	// the handler can already queue requests at it, but the reader only
	// starts afterwards: until then the context is owned by exactly one
	// goroutine.
	srv.registerConnection(pc)
	if err := srv.handler.ProcessPayloadSyncData(rsp.PayloadData, pc.Context, true); err != nil {
		log.Infof("%sSync data rejected: %v", pc.Context, err)
		srv.unregisterConnection(pc)
		pc.interrupt()
		return false
	}

	spawn(func() { srv.connectionHandler(pc) })
	return true
}

// performHandshake runs the synchronous COMMAND_HANDSHAKE round-trip on a
// fresh outbound connection.
func (srv *NodeServer) performHandshake(pc *peerConnection) (*HandshakeResponse, error) {
	req := HandshakeRequest{
		NodeData:    srv.localNodeData(),
		PayloadData: srv.handler.GetPayloadSyncData(),
	}
	payload, err := req.Marshal()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(handshakeTimeout)
	pc.conn.SetDeadline(deadline)
	defer pc.conn.SetDeadline(time.Time{})

	if err := levin.WriteCommand(pc.conn, CommandHandshake, payload, true); err != nil {
		return nil, err
	}

	cmd, err := levin.ReadCommand(pc.conn)
	if err != nil {
		return nil, err
	}
	if !cmd.IsResponse || cmd.Command != CommandHandshake {
		return nil, errors.Errorf("unexpected frame %d during handshake", cmd.Command)
	}
	if cmd.ReturnCode != 0 {
		return nil, errors.Errorf("handshake refused with code %d", cmd.ReturnCode)
	}

	var rsp HandshakeResponse
	if err := rsp.Unmarshal(cmd.Buffer); err != nil {
		return nil, err
	}
	if rsp.NodeData.NetworkID != srv.cfg.Currency.NetworkID {
		return nil, errors.Errorf("wrong network id %x", rsp.NodeData.NetworkID)
	}
	return &rsp, nil
}

// tryPing opens a short-lived connection back to the peer's advertised
// port and checks the answering node is who it claims to be.
func (srv *NodeServer) tryPing(address NetworkAddress, expectedPeerID uint64) bool {
	if !isIPRoutable(address.IP, srv.cfg.AllowLocalIP) {
		return false
	}

	conn, err := net.DialTimeout("tcp", address.String(), pingConnectionTimeout)
	if err != nil {
		return false
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(pingConnectionTimeout))

	payload, err := (&PingRequest{}).Marshal()
	if err != nil {
		return false
	}
	if err := levin.WriteCommand(conn, CommandPing, payload, true); err != nil {
		return false
	}

	cmd, err := levin.ReadCommand(conn)
	if err != nil || !cmd.IsResponse || cmd.Command != CommandPing {
		return false
	}
	var rsp PingResponse
	if err := rsp.Unmarshal(cmd.Buffer); err != nil {
		return false
	}
	return rsp.Status == PingOKResponseStatus && rsp.PeerID == expectedPeerID
}
