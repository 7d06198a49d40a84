// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package p2p

import (
	"net"
	"sync"
	"time"

	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/google/uuid"
)

// maxWriteBufferSize bounds the bytes queued for one connection; beyond
// it the connection is considered stuck and interrupted.
const maxWriteBufferSize = 32 * 1024 * 1024

// ConnectionState is the per-peer protocol state.
type ConnectionState int

// The connection states of the sync state machine.
const (
	// StateBeforeHandshake is the initial state.
	StateBeforeHandshake ConnectionState = iota

	// StateSynchronizing means blocks are being requested from the peer.
	StateSynchronizing

	// StateIdle means the connection serves requests but drives none.
	StateIdle

	// StateNormal means the peer and we are at the same height.
	StateNormal

	// StateSyncRequired means the peer is ahead and a sync has to start.
	StateSyncRequired

	// StatePoolSyncRequired means blocks are caught up and the pool
	// contents still have to be requested.
	StatePoolSyncRequired

	// StateShutdown means the connection is being torn down.
	StateShutdown
)

var connectionStateStrings = map[ConnectionState]string{
	StateBeforeHandshake:  "before_handshake",
	StateSynchronizing:    "synchronizing",
	StateIdle:             "idle",
	StateNormal:           "normal",
	StateSyncRequired:     "sync_required",
	StatePoolSyncRequired: "pool_sync_required",
	StateShutdown:         "shutdown",
}

// String returns the ConnectionState in human-readable form.
func (s ConnectionState) String() string {
	if str, ok := connectionStateStrings[s]; ok {
		return str
	}
	return "unknown"
}

// ConnectionContext is the per-connection state the protocol handler
// drives. It is written from the connection's reader goroutine, and for an
// outbound connection by the dialing goroutine before the reader starts;
// the server loops read it directly. No lock lives here.
type ConnectionContext struct {
	// ID identifies the connection in the table and in log lines.
	ID uuid.UUID

	// RemoteAddress is the peer's endpoint; for inbound connections the
	// port is the ephemeral source port, not the peer's listen port.
	RemoteAddress NetworkAddress

	// IsIncoming is set when the peer dialed us.
	IsIncoming bool

	// Started is when the connection was accepted or dialed.
	Started time.Time

	// State is the sync state machine position.
	State ConnectionState

	// Version is the peer's p2p protocol version from the handshake.
	Version uint8

	// PeerID is the peer's self-chosen identity from the handshake.
	PeerID uint64

	// NeededObjects is the queue of block hashes to request from the
	// peer; RequestedObjects is the in-flight set.
	NeededObjects    []crypto.Hash
	RequestedObjects map[crypto.Hash]struct{}

	// RemoteBlockchainHeight is the height the peer last announced.
	RemoteBlockchainHeight uint32

	// LastResponseHeight is the top height covered by the last chain
	// entry response.
	LastResponseHeight uint32
}

// String renders the context the way every log line prefixes it.
func (ctx *ConnectionContext) String() string {
	direction := "OUT"
	if ctx.IsIncoming {
		direction = "INC"
	}
	return "[" + ctx.RemoteAddress.String() + " " + direction + "] "
}

// peerConnection owns one TCP connection: the context, the socket and the
// bounded write queue its writer goroutine drains.
type peerConnection struct {
	Context *ConnectionContext

	conn net.Conn

	queueMtx       sync.Mutex
	queueCond      *sync.Cond
	writeQueue     [][]byte
	writeQueueSize int
	writeStarted   time.Time
	stopped        bool
}

func newPeerConnection(conn net.Conn, incoming bool) *peerConnection {
	ctx := &ConnectionContext{
		ID:               uuid.New(),
		IsIncoming:       incoming,
		Started:          time.Now(),
		RequestedObjects: make(map[crypto.Hash]struct{}),
	}
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		if ip, ok := ipFromNetIP(tcpAddr.IP); ok {
			ctx.RemoteAddress = NetworkAddress{IP: ip, Port: uint32(tcpAddr.Port)}
		}
	}

	pc := &peerConnection{Context: ctx, conn: conn}
	pc.queueCond = sync.NewCond(&pc.queueMtx)
	return pc
}

// pushMessage enqueues an already-framed message for the writer. It
// returns false, interrupting the connection, when the queue budget is
// exhausted.
func (pc *peerConnection) pushMessage(frame []byte) bool {
	pc.queueMtx.Lock()
	if pc.stopped {
		pc.queueMtx.Unlock()
		return false
	}
	if pc.writeQueueSize+len(frame) > maxWriteBufferSize {
		pc.queueMtx.Unlock()
		log.Warnf("%sWrite queue overflow, interrupting", pc.Context)
		pc.interrupt()
		return false
	}
	pc.writeQueue = append(pc.writeQueue, frame)
	pc.writeQueueSize += len(frame)
	pc.queueCond.Signal()
	pc.queueMtx.Unlock()
	return true
}

// popBuffer blocks until messages are queued or the connection stops and
// returns the whole queue.
func (pc *peerConnection) popBuffer() [][]byte {
	pc.queueMtx.Lock()
	defer pc.queueMtx.Unlock()
	for len(pc.writeQueue) == 0 && !pc.stopped {
		pc.queueCond.Wait()
	}
	if pc.stopped {
		return nil
	}
	frames := pc.writeQueue
	pc.writeQueue = nil
	pc.writeQueueSize = 0
	pc.writeStarted = time.Now()
	return frames
}

// writeDone clears the outstanding-write marker the timeout loop watches.
func (pc *peerConnection) writeDone() {
	pc.queueMtx.Lock()
	pc.writeStarted = time.Time{}
	pc.queueMtx.Unlock()
}

// writeDuration returns how long the current write has been outstanding.
func (pc *peerConnection) writeDuration(now time.Time) time.Duration {
	pc.queueMtx.Lock()
	defer pc.queueMtx.Unlock()
	if pc.writeStarted.IsZero() {
		return 0
	}
	return now.Sub(pc.writeStarted)
}

// interrupt stops the connection: the socket is closed so the reader
// unblocks, and the writer is woken to observe the stop flag.
func (pc *peerConnection) interrupt() {
	pc.queueMtx.Lock()
	alreadyStopped := pc.stopped
	pc.stopped = true
	pc.queueCond.Broadcast()
	pc.queueMtx.Unlock()
	if !alreadyStopped {
		pc.conn.Close()
	}
}

// isStopped reports whether interrupt was called.
func (pc *peerConnection) isStopped() bool {
	pc.queueMtx.Lock()
	defer pc.queueMtx.Unlock()
	return pc.stopped
}
