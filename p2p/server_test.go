// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package p2p

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/bytecoin-go/bytecoind/currency"
	"github.com/bytecoin-go/bytecoind/levin"
)

// recordingHandler is a PayloadHandler that records the sync data calls
// it receives.
type recordingHandler struct {
	mtx           sync.Mutex
	syncDataCalls int
}

func (h *recordingHandler) GetPayloadSyncData() CoreSyncData {
	return CoreSyncData{CurrentHeight: 1}
}

func (h *recordingHandler) ProcessPayloadSyncData(data CoreSyncData, ctx *ConnectionContext, isInitial bool) error {
	h.mtx.Lock()
	h.syncDataCalls++
	h.mtx.Unlock()
	ctx.State = StateNormal
	return nil
}

func (h *recordingHandler) HandleCommand(command uint32, payload []byte, ctx *ConnectionContext) error {
	return nil
}

func (h *recordingHandler) OnConnectionOpened(ctx *ConnectionContext) {}
func (h *recordingHandler) OnConnectionClosed(ctx *ConnectionContext) {}

func (h *recordingHandler) calls() int {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return h.syncDataCalls
}

func startTestServer(t *testing.T, handler PayloadHandler) (*NodeServer, *currency.Currency) {
	t.Helper()
	c, err := currency.NewBuilder().Testnet(true).Build()
	if err != nil {
		t.Fatalf("currency: %v", err)
	}

	srv, err := NewNodeServer(&Config{
		Currency:     c,
		DataDir:      t.TempDir(),
		BindIP:       "127.0.0.1",
		BindPort:     0,
		AllowLocalIP: true,
	}, handler)
	if err != nil {
		t.Fatalf("NewNodeServer: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv, c
}

func dialTestServer(t *testing.T, srv *NodeServer) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.ListenAddr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func TestHandshakeSucceeds(t *testing.T) {
	handler := &recordingHandler{}
	srv, c := startTestServer(t, handler)
	conn := dialTestServer(t, srv)

	req := HandshakeRequest{
		NodeData: BasicNodeData{
			NetworkID: c.NetworkID,
			Version:   1,
			PeerID:    42,
		},
		PayloadData: CoreSyncData{CurrentHeight: 1},
	}
	payload, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := levin.WriteCommand(conn, CommandHandshake, payload, true); err != nil {
		t.Fatalf("WriteCommand: %v", err)
	}

	cmd, err := levin.ReadCommand(conn)
	if err != nil {
		t.Fatalf("ReadCommand: %v", err)
	}
	if !cmd.IsResponse || cmd.Command != CommandHandshake {
		t.Fatalf("unexpected frame: %+v", cmd)
	}

	var rsp HandshakeResponse
	if err := rsp.Unmarshal(cmd.Buffer); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if rsp.NodeData.NetworkID != c.NetworkID {
		t.Fatal("response carries a wrong network id")
	}
	if rsp.NodeData.PeerID != srv.PeerID() {
		t.Fatal("response carries a wrong peer id")
	}
	if handler.calls() == 0 {
		t.Fatal("handshake did not reach ProcessPayloadSyncData")
	}
}

func TestHandshakeWrongNetworkIDDropsConnection(t *testing.T) {
	handler := &recordingHandler{}
	srv, c := startTestServer(t, handler)
	conn := dialTestServer(t, srv)

	wrongID := c.NetworkID
	wrongID[5] ^= 0xff

	req := HandshakeRequest{
		NodeData: BasicNodeData{
			NetworkID: wrongID,
			Version:   1,
			PeerID:    43,
		},
		PayloadData: CoreSyncData{CurrentHeight: 1},
	}
	payload, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := levin.WriteCommand(conn, CommandHandshake, payload, true); err != nil {
		t.Fatalf("WriteCommand: %v", err)
	}

	// The server drops the connection without answering.
	if _, err := levin.ReadCommand(conn); err == nil {
		t.Fatal("server answered a handshake from a foreign network")
	} else if err != io.EOF && !isClosedConnError(err) {
		// Read errors differ across platforms; any failure is a drop.
		t.Logf("connection dropped with: %v", err)
	}

	if handler.calls() != 0 {
		t.Fatal("sync data processed despite the wrong network id")
	}
	if white, gray := srv.Peerlist().Counts(); white != 0 || gray != 0 {
		t.Fatal("peer admitted to the peer lists despite the wrong network id")
	}
}

func TestPingAnswersWithPeerID(t *testing.T) {
	srv, _ := startTestServer(t, &recordingHandler{})
	conn := dialTestServer(t, srv)

	payload, err := (&PingRequest{}).Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := levin.WriteCommand(conn, CommandPing, payload, true); err != nil {
		t.Fatalf("WriteCommand: %v", err)
	}

	cmd, err := levin.ReadCommand(conn)
	if err != nil {
		t.Fatalf("ReadCommand: %v", err)
	}
	var rsp PingResponse
	if err := rsp.Unmarshal(cmd.Buffer); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if rsp.Status != PingOKResponseStatus || rsp.PeerID != srv.PeerID() {
		t.Fatalf("ping response: %+v", rsp)
	}
}

func isClosedConnError(err error) bool {
	if err == nil {
		return false
	}
	if opErr, ok := err.(*net.OpError); ok {
		return opErr.Err != nil
	}
	return false
}
