// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package p2p

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/bytecoin-go/bytecoind/currency"
	"github.com/bytecoin-go/bytecoind/levin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Default intervals and limits of the node server.
const (
	// handshakeInterval is how often the timed-sync heartbeat runs.
	handshakeInterval = 60 * time.Second

	// timeoutCheckInterval is how often stuck writes are hunted.
	timeoutCheckInterval = 10 * time.Second

	// invokeTimeout is how long one write may stay outstanding before
	// the connection is interrupted.
	invokeTimeout = 2 * time.Minute

	// connectTimeout bounds an outbound dial.
	connectTimeout = 5 * time.Second

	// handshakeTimeout bounds the synchronous handshake round-trip,
	// including the back-ping the responder may perform.
	handshakeTimeout = 3 * connectTimeout

	// pingConnectionTimeout bounds the short-lived back-ping connection.
	pingConnectionTimeout = 2 * time.Second

	// idleInterval drives the connection maker.
	idleInterval = time.Second

	// peerlistStoreInterval is how often the peer books are flushed.
	peerlistStoreInterval = 60 * time.Second

	// defaultConnectionsCount is the outbound connection target.
	defaultConnectionsCount = 8

	// whitelistConnectionsPercent is the share of outbound slots filled
	// from the white book before falling back to the gray one.
	whitelistConnectionsPercent = 70

	// peersInHandshake is the peer-list head depth sent in handshakes.
	peersInHandshake = 250
)

// PayloadHandler is the protocol layer a NodeServer feeds: the sync state
// machine living on top of the connection table.
type PayloadHandler interface {
	// GetPayloadSyncData returns our current chain tip advertisement.
	GetPayloadSyncData() CoreSyncData

	// ProcessPayloadSyncData digests a peer's chain tip advertisement
	// and decides the peer's next sync state.
	ProcessPayloadSyncData(data CoreSyncData, ctx *ConnectionContext, isInitial bool) error

	// HandleCommand processes one protocol-level notify. A returned
	// error shuts the connection down.
	HandleCommand(command uint32, payload []byte, ctx *ConnectionContext) error

	// OnConnectionOpened and OnConnectionClosed bracket a connection's
	// life in the table.
	OnConnectionOpened(ctx *ConnectionContext)
	OnConnectionClosed(ctx *ConnectionContext)
}

// Config carries the node server's settings.
type Config struct {
	// Currency supplies the network id and seed nodes.
	Currency *currency.Currency

	// DataDir is where p2pstate.bin lives.
	DataDir string

	// BindIP and BindPort form the listen endpoint.
	BindIP   string
	BindPort uint16

	// ExternalPort, when non-zero, is advertised instead of BindPort.
	ExternalPort uint16

	// AllowLocalIP admits unroutable addresses into the peer books.
	AllowLocalIP bool

	// HideMyPort stops advertising our listen port in handshakes.
	HideMyPort bool

	// Peers are dialed once at startup; PriorityNodes are always kept
	// connected; ExclusiveNodes, when set, are the only peers dialed.
	Peers          []NetworkAddress
	PriorityNodes  []NetworkAddress
	ExclusiveNodes []NetworkAddress

	// SeedNodes extends the currency's compiled-in seed list.
	SeedNodes []NetworkAddress

	// OutgoingConnectionsCount overrides the outbound target.
	OutgoingConnectionsCount int
}

// NodeServer owns the TCP listener, the connection table and the peer
// books, and pumps every connection's Levin frames into the payload
// handler.
type NodeServer struct {
	cfg      Config
	handler  PayloadHandler
	peerlist *PeerlistManager

	peerID uint64

	mtx         sync.RWMutex
	connections map[uuid.UUID]*peerConnection

	listener net.Listener
	quit     chan struct{}
	wg       sync.WaitGroup

	startedOnce sync.Once
	stoppedOnce sync.Once
}

// NewNodeServer wires a node server to its payload handler.
func NewNodeServer(cfg *Config, handler PayloadHandler) (*NodeServer, error) {
	if cfg.OutgoingConnectionsCount == 0 {
		cfg.OutgoingConnectionsCount = defaultConnectionsCount
	}

	srv := &NodeServer{
		cfg:         *cfg,
		handler:     handler,
		peerlist:    NewPeerlistManager(cfg.AllowLocalIP),
		connections: make(map[uuid.UUID]*peerConnection),
		quit:        make(chan struct{}),
	}

	if err := srv.loadState(); err != nil {
		log.Warnf("Couldn't load p2p state, starting fresh: %v", err)
	}
	if srv.peerID == 0 {
		srv.peerID = rand.Uint64()
	}

	for _, seed := range cfg.Currency.SeedNodes {
		address, err := ParseAddress(seed)
		if err != nil {
			log.Warnf("Skipping unusable seed node %q: %v", seed, err)
			continue
		}
		srv.cfg.SeedNodes = append(srv.cfg.SeedNodes, address)
	}

	return srv, nil
}

// PeerID returns this node's persistent peer id.
func (srv *NodeServer) PeerID() uint64 {
	return srv.peerID
}

// Peerlist returns the peer-list manager.
func (srv *NodeServer) Peerlist() *PeerlistManager {
	return srv.peerlist
}

// Start begins listening and launches the background loops.
func (srv *NodeServer) Start() error {
	var startErr error
	srv.startedOnce.Do(func() {
		listenAddr := fmt.Sprintf("%s:%d", srv.cfg.BindIP, srv.cfg.BindPort)
		listener, err := net.Listen("tcp", listenAddr)
		if err != nil {
			startErr = errors.Wrapf(err, "couldn't listen on %s", listenAddr)
			return
		}
		srv.listener = listener
		log.Infof("P2p server listening on %s, peer id %x", listenAddr, srv.peerID)

		srv.wg.Add(4)
		spawn(srv.acceptLoop)
		spawn(srv.idleLoop)
		spawn(srv.timedSyncLoop)
		spawn(srv.timeoutLoop)

		for _, address := range srv.cfg.Peers {
			go srv.tryConnect(address, false)
		}
	})
	return startErr
}

// Stop signals every loop and connection to wind down and persists the
// peer books.
func (srv *NodeServer) Stop() {
	srv.stoppedOnce.Do(func() {
		close(srv.quit)
		if srv.listener != nil {
			srv.listener.Close()
		}

		srv.mtx.Lock()
		for _, pc := range srv.connections {
			pc.interrupt()
		}
		srv.mtx.Unlock()

		srv.wg.Wait()
		if err := srv.saveState(); err != nil {
			log.Errorf("Couldn't save p2p state: %v", err)
		}
	})
}

// ListenAddr returns the listener address, which carries the actual port
// when the configuration asked for an ephemeral one.
func (srv *NodeServer) ListenAddr() net.Addr {
	if srv.listener == nil {
		return nil
	}
	return srv.listener.Addr()
}

// ConnectionCount returns the number of live connections.
func (srv *NodeServer) ConnectionCount() int {
	srv.mtx.RLock()
	defer srv.mtx.RUnlock()
	return len(srv.connections)
}

func (srv *NodeServer) outgoingConnectionCount() int {
	srv.mtx.RLock()
	defer srv.mtx.RUnlock()
	count := 0
	for _, pc := range srv.connections {
		if !pc.Context.IsIncoming {
			count++
		}
	}
	return count
}

func (srv *NodeServer) isAddressConnected(address NetworkAddress) bool {
	srv.mtx.RLock()
	defer srv.mtx.RUnlock()
	for _, pc := range srv.connections {
		if pc.Context.RemoteAddress.IP == address.IP && !pc.Context.IsIncoming &&
			pc.Context.RemoteAddress.Port == address.Port {
			return true
		}
	}
	return false
}

// RelayNotifyToAll pushes a notify frame to every handshaked connection
// except the one the data came from.
func (srv *NodeServer) RelayNotifyToAll(command uint32, payload []byte, excludeConnection *uuid.UUID) {
	frame, err := notifyFrame(command, payload)
	if err != nil {
		log.Errorf("Couldn't frame notify %d: %v", command, err)
		return
	}

	srv.mtx.RLock()
	targets := make([]*peerConnection, 0, len(srv.connections))
	for id, pc := range srv.connections {
		if excludeConnection != nil && id == *excludeConnection {
			continue
		}
		if pc.Context.PeerID == 0 || pc.Context.State == StateBeforeHandshake ||
			pc.Context.State == StateShutdown {
			continue
		}
		targets = append(targets, pc)
	}
	srv.mtx.RUnlock()

	for _, pc := range targets {
		pc.pushMessage(frame)
	}
}

// InvokeNotifyToPeer pushes a notify frame to one connection.
func (srv *NodeServer) InvokeNotifyToPeer(command uint32, payload []byte, connectionID uuid.UUID) bool {
	frame, err := notifyFrame(command, payload)
	if err != nil {
		return false
	}

	srv.mtx.RLock()
	pc, ok := srv.connections[connectionID]
	srv.mtx.RUnlock()
	if !ok {
		return false
	}
	return pc.pushMessage(frame)
}

// ForEachConnection runs f over every connection context.
func (srv *NodeServer) ForEachConnection(f func(ctx *ConnectionContext)) {
	srv.mtx.RLock()
	contexts := make([]*ConnectionContext, 0, len(srv.connections))
	for _, pc := range srv.connections {
		contexts = append(contexts, pc.Context)
	}
	srv.mtx.RUnlock()

	for _, ctx := range contexts {
		f(ctx)
	}
}

// CloseConnection interrupts one connection by id.
func (srv *NodeServer) CloseConnection(connectionID uuid.UUID) {
	srv.mtx.RLock()
	pc, ok := srv.connections[connectionID]
	srv.mtx.RUnlock()
	if ok {
		pc.interrupt()
	}
}

func notifyFrame(command uint32, payload []byte) ([]byte, error) {
	var buf frameBuffer
	if err := levin.WriteNotify(&buf, command, payload); err != nil {
		return nil, err
	}
	return buf.bytes, nil
}

// frameBuffer is a minimal io.Writer over an owned byte slice.
type frameBuffer struct {
	bytes []byte
}

func (b *frameBuffer) Write(p []byte) (int, error) {
	b.bytes = append(b.bytes, p...)
	return len(p), nil
}

// acceptLoop admits inbound connections until the listener closes.
func (srv *NodeServer) acceptLoop() {
	defer srv.wg.Done()
	for {
		conn, err := srv.listener.Accept()
		if err != nil {
			select {
			case <-srv.quit:
				return
			default:
				log.Debugf("Accept failed: %v", err)
				continue
			}
		}
		pc := newPeerConnection(conn, true)
		srv.registerConnection(pc)
		spawn(func() { srv.connectionHandler(pc) })
	}
}

func (srv *NodeServer) registerConnection(pc *peerConnection) {
	srv.mtx.Lock()
	srv.connections[pc.Context.ID] = pc
	srv.mtx.Unlock()
	log.Debugf("%sConnection registered (%d total)", pc.Context, srv.ConnectionCount())
}

func (srv *NodeServer) unregisterConnection(pc *peerConnection) {
	srv.mtx.Lock()
	delete(srv.connections, pc.Context.ID)
	srv.mtx.Unlock()
	srv.handler.OnConnectionClosed(pc.Context)
	log.Debugf("%sConnection closed (%d total)", pc.Context, srv.ConnectionCount())
}

// connectionHandler runs the reader side of one connection and spawns its
// writer. It owns the connection's protocol state.
func (srv *NodeServer) connectionHandler(pc *peerConnection) {
	defer srv.unregisterConnection(pc)
	defer pc.interrupt()

	srv.handler.OnConnectionOpened(pc.Context)

	var writerWg sync.WaitGroup
	writerWg.Add(1)
	spawn(func() {
		defer writerWg.Done()
		srv.writeHandler(pc)
	})
	defer writerWg.Wait()

	for !pc.isStopped() {
		cmd, err := levin.ReadCommand(pc.conn)
		if err != nil {
			if !pc.isStopped() {
				log.Debugf("%sRead failed: %v", pc.Context, err)
			}
			return
		}

		if err := srv.dispatchCommand(pc, cmd); err != nil {
			log.Infof("%sProtocol violation: %v", pc.Context, err)
			pc.Context.State = StateShutdown
			return
		}
		if pc.Context.State == StateShutdown {
			return
		}
	}
}

// writeHandler drains the connection's write queue.
func (srv *NodeServer) writeHandler(pc *peerConnection) {
	for {
		frames := pc.popBuffer()
		if frames == nil {
			return
		}
		for _, frame := range frames {
			if _, err := pc.conn.Write(frame); err != nil {
				if !pc.isStopped() {
					log.Debugf("%sWrite failed: %v", pc.Context, err)
					pc.interrupt()
				}
				return
			}
		}
		pc.writeDone()
	}
}

// dispatchCommand routes one inbound frame.
func (srv *NodeServer) dispatchCommand(pc *peerConnection, cmd *levin.Command) error {
	if cmd.IsResponse {
		// The only in-band invoke the server issues is the timed sync.
		if cmd.Command == CommandTimedSync {
			return srv.handleTimedSyncResponse(pc, cmd.Buffer)
		}
		return errors.Errorf("unsolicited response to command %d", cmd.Command)
	}

	switch cmd.Command {
	case CommandHandshake:
		return srv.handleHandshake(pc, cmd)
	case CommandTimedSync:
		return srv.handleTimedSync(pc, cmd)
	case CommandPing:
		return srv.handlePing(pc, cmd)
	default:
		if cmd.Command >= p2pCommandsBase && cmd.Command < p2pCommandsBase+100 {
			return errors.Errorf("unknown p2p command %d", cmd.Command)
		}
		return srv.handler.HandleCommand(cmd.Command, cmd.Buffer, pc.Context)
	}
}

func (srv *NodeServer) replyTo(pc *peerConnection, command uint32, payload []byte, returnCode int32) error {
	var buf frameBuffer
	if err := levin.WriteReply(&buf, command, payload, returnCode); err != nil {
		return err
	}
	if !pc.pushMessage(buf.bytes) {
		return errors.New("couldn't queue reply")
	}
	return nil
}

// handleHandshake serves an inbound COMMAND_HANDSHAKE.
func (srv *NodeServer) handleHandshake(pc *peerConnection, cmd *levin.Command) error {
	var req HandshakeRequest
	if err := req.Unmarshal(cmd.Buffer); err != nil {
		return errors.Wrap(err, "malformed handshake")
	}

	if req.NodeData.NetworkID != srv.cfg.Currency.NetworkID {
		return errors.Errorf("wrong network id %x", req.NodeData.NetworkID)
	}
	if !pc.Context.IsIncoming {
		return errors.New("handshake arrived on an outbound connection")
	}
	if pc.Context.PeerID != 0 {
		return errors.New("double handshake")
	}

	pc.Context.PeerID = req.NodeData.PeerID
	pc.Context.Version = req.NodeData.Version

	if err := srv.handler.ProcessPayloadSyncData(req.PayloadData, pc.Context, true); err != nil {
		return errors.Wrap(err, "handshake sync data rejected")
	}

	// Only peers that answer a back-ping on their advertised port are
	// admitted to the white book.
	if req.NodeData.MyPort != 0 {
		peerID := req.NodeData.PeerID
		address := NetworkAddress{IP: pc.Context.RemoteAddress.IP, Port: req.NodeData.MyPort}
		spawn(func() {
			if srv.tryPing(address, peerID) {
				srv.peerlist.SetPeerJustSeen(peerID, address)
				log.Debugf("Back-ping succeeded, white-listed %s", address)
			}
		})
	}

	rsp := HandshakeResponse{
		NodeData:      srv.localNodeData(),
		PayloadData:   srv.handler.GetPayloadSyncData(),
		LocalPeerlist: srv.peerlist.GetPeerlistHead(peersInHandshake),
	}
	payload, err := rsp.Marshal()
	if err != nil {
		return err
	}
	log.Infof("%sHandshake accepted, peer id %x", pc.Context, pc.Context.PeerID)
	return srv.replyTo(pc, CommandHandshake, payload, 0)
}

// handleTimedSync serves an inbound COMMAND_TIMED_SYNC.
func (srv *NodeServer) handleTimedSync(pc *peerConnection, cmd *levin.Command) error {
	var req TimedSyncRequest
	if err := req.Unmarshal(cmd.Buffer); err != nil {
		return errors.Wrap(err, "malformed timed sync")
	}
	if err := srv.handler.ProcessPayloadSyncData(req.PayloadData, pc.Context, false); err != nil {
		return err
	}

	rsp := TimedSyncResponse{
		LocalTime:     uint64(time.Now().Unix()),
		PayloadData:   srv.handler.GetPayloadSyncData(),
		LocalPeerlist: srv.peerlist.GetPeerlistHead(peersInHandshake),
	}
	payload, err := rsp.Marshal()
	if err != nil {
		return err
	}
	return srv.replyTo(pc, CommandTimedSync, payload, 0)
}

// handleTimedSyncResponse digests a peer's answer to our heartbeat.
func (srv *NodeServer) handleTimedSyncResponse(pc *peerConnection, payload []byte) error {
	var rsp TimedSyncResponse
	if err := rsp.Unmarshal(payload); err != nil {
		return errors.Wrap(err, "malformed timed sync response")
	}
	srv.peerlist.MergePeerlist(fixPeerlistTimes(rsp.LocalPeerlist, rsp.LocalTime))
	return srv.handler.ProcessPayloadSyncData(rsp.PayloadData, pc.Context, false)
}

// handlePing serves an inbound COMMAND_PING.
func (srv *NodeServer) handlePing(pc *peerConnection, cmd *levin.Command) error {
	var req PingRequest
	if err := req.Unmarshal(cmd.Buffer); err != nil {
		return errors.Wrap(err, "malformed ping")
	}
	rsp := PingResponse{Status: PingOKResponseStatus, PeerID: srv.peerID}
	payload, err := rsp.Marshal()
	if err != nil {
		return err
	}
	return srv.replyTo(pc, CommandPing, payload, 0)
}

func (srv *NodeServer) localNodeData() BasicNodeData {
	myPort := uint32(srv.cfg.BindPort)
	if srv.cfg.ExternalPort != 0 {
		myPort = uint32(srv.cfg.ExternalPort)
	}
	if srv.cfg.HideMyPort {
		myPort = 0
	}
	return BasicNodeData{
		NetworkID: srv.cfg.Currency.NetworkID,
		Version:   1,
		LocalTime: uint64(time.Now().Unix()),
		MyPort:    myPort,
		PeerID:    srv.peerID,
	}
}

// fixPeerlistTimes rebases last-seen stamps from the remote clock onto
// ours using the delta between the remote local time and now.
func fixPeerlistTimes(entries []PeerlistEntry, remoteTime uint64) []PeerlistEntry {
	if remoteTime == 0 {
		return entries
	}
	delta := int64(time.Now().Unix()) - int64(remoteTime)
	fixed := make([]PeerlistEntry, len(entries))
	for i, entry := range entries {
		adjusted := int64(entry.LastSeen) + delta
		if adjusted < 0 {
			adjusted = 0
		}
		entry.LastSeen = uint64(adjusted)
		fixed[i] = entry
	}
	return fixed
}
