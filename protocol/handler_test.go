// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package protocol

import (
	"bytes"
	"testing"

	"github.com/bytecoin-go/bytecoind/blockchain"
	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/bytecoin-go/bytecoind/currency"
	"github.com/bytecoin-go/bytecoind/mempool"
	"github.com/bytecoin-go/bytecoind/mining"
	"github.com/bytecoin-go/bytecoind/p2p"
	"github.com/bytecoin-go/bytecoind/wire"
	"github.com/google/uuid"
)

type zeroPoW struct{}

func (zeroPoW) SlowHash(data []byte) crypto.Hash {
	return crypto.Hash{}
}

// capturedSend records one notify the handler pushed at its endpoint.
type capturedSend struct {
	command uint32
	payload []byte
	target  uuid.UUID
	relayed bool
}

// fakeEndpoint records sends instead of writing to sockets.
type fakeEndpoint struct {
	sends []capturedSend
}

func (ep *fakeEndpoint) RelayNotifyToAll(command uint32, payload []byte, exclude *uuid.UUID) {
	ep.sends = append(ep.sends, capturedSend{command: command, payload: payload, relayed: true})
}

func (ep *fakeEndpoint) InvokeNotifyToPeer(command uint32, payload []byte, connectionID uuid.UUID) bool {
	ep.sends = append(ep.sends, capturedSend{command: command, payload: payload, target: connectionID})
	return true
}

func (ep *fakeEndpoint) ForEachConnection(f func(ctx *p2p.ConnectionContext)) {}

func (ep *fakeEndpoint) CloseConnection(connectionID uuid.UUID) {}

func (ep *fakeEndpoint) pop() (capturedSend, bool) {
	if len(ep.sends) == 0 {
		return capturedSend{}, false
	}
	send := ep.sends[0]
	ep.sends = ep.sends[1:]
	return send, true
}

// node bundles a chain, pool and handler wired to a fake endpoint.
type node struct {
	chain    *blockchain.Chain
	pool     *mempool.TxPool
	handler  *Handler
	endpoint *fakeEndpoint
	ctx      *p2p.ConnectionContext
}

func newNode(t *testing.T, c *currency.Currency) *node {
	t.Helper()
	chain, err := blockchain.New(&blockchain.Config{
		DataDir:     t.TempDir(),
		Currency:    c,
		PoWHasher:   zeroPoW{},
		SigVerifier: crypto.StructuralVerifier{},
	})
	if err != nil {
		t.Fatalf("blockchain.New: %v", err)
	}
	t.Cleanup(chain.Close)

	pool := mempool.New(&mempool.Config{Currency: c, Chain: chain})
	chain.SetTransactionPool(pool)

	handler := NewHandler(c, chain, pool)
	endpoint := &fakeEndpoint{}
	handler.SetEndpoint(endpoint)

	return &node{
		chain:    chain,
		pool:     pool,
		handler:  handler,
		endpoint: endpoint,
		ctx: &p2p.ConnectionContext{
			ID:               uuid.New(),
			RequestedObjects: make(map[crypto.Hash]struct{}),
		},
	}
}

func mineBlocks(t *testing.T, c *currency.Currency, chain *blockchain.Chain, pool *mempool.TxPool, count int) {
	t.Helper()
	gen := mining.NewGenerator(c, chain, pool)
	miner := crypto.Address{}
	miner.SpendPublicKey[0] = 1
	for i := 0; i < count; i++ {
		template, _, _, err := gen.GetBlockTemplate(miner, []byte{byte(i)})
		if err != nil {
			t.Fatalf("GetBlockTemplate: %v", err)
		}
		var buf bytes.Buffer
		if err := template.Serialize(&buf); err != nil {
			t.Fatalf("serialize: %v", err)
		}
		result, err := chain.AddBlock(&wire.RawBlock{Block: buf.Bytes()})
		if err != nil || result != blockchain.AddedToMainChain {
			t.Fatalf("AddBlock: %v / %v", result, err)
		}
	}
}

func TestSyncDataMovesPeerAtOurHeightToNormal(t *testing.T) {
	c, err := currency.NewBuilder().Build()
	if err != nil {
		t.Fatalf("currency: %v", err)
	}
	n := newNode(t, c)

	data := p2p.CoreSyncData{CurrentHeight: 1, TopBlockHash: n.chain.TopBlockHash()}
	if err := n.handler.ProcessPayloadSyncData(data, n.ctx, true); err != nil {
		t.Fatalf("ProcessPayloadSyncData: %v", err)
	}
	if n.ctx.State != p2p.StateNormal {
		t.Fatalf("peer at our height: state %v, want normal", n.ctx.State)
	}
}

func TestSyncDataStartsSyncWhenPeerAhead(t *testing.T) {
	c, err := currency.NewBuilder().Build()
	if err != nil {
		t.Fatalf("currency: %v", err)
	}
	n := newNode(t, c)

	data := p2p.CoreSyncData{CurrentHeight: 50}
	if err := n.handler.ProcessPayloadSyncData(data, n.ctx, true); err != nil {
		t.Fatalf("ProcessPayloadSyncData: %v", err)
	}
	if n.ctx.State != p2p.StateSynchronizing {
		t.Fatalf("peer ahead: state %v, want synchronizing", n.ctx.State)
	}

	send, ok := n.endpoint.pop()
	if !ok || send.command != NotifyRequestChainID {
		t.Fatalf("expected a chain request, got %+v", send)
	}
	var req RequestChain
	if err := req.Unmarshal(send.payload); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(req.BlockIDs) == 0 {
		t.Fatal("chain request carries an empty locator")
	}
	if n.handler.ObservedHeight() != 50 {
		t.Fatalf("observed height: got %d, want 50", n.handler.ObservedHeight())
	}
}

// TestFullSyncBetweenNodes walks the whole state machine: the lagging
// node requests the chain, then the objects, applies them and finishes
// with a pool request.
func TestFullSyncBetweenNodes(t *testing.T) {
	c, err := currency.NewBuilder().Build()
	if err != nil {
		t.Fatalf("currency: %v", err)
	}

	ahead := newNode(t, c)
	mineBlocks(t, c, ahead.chain, ahead.pool, 5)

	behind := newNode(t, c)

	// The handshake announces the remote tip and kicks the sync off.
	data := p2p.CoreSyncData{
		CurrentHeight: ahead.chain.TopBlockIndex() + 1,
		TopBlockHash:  ahead.chain.TopBlockHash(),
	}
	if err := behind.handler.ProcessPayloadSyncData(data, behind.ctx, true); err != nil {
		t.Fatalf("ProcessPayloadSyncData: %v", err)
	}

	// Pump messages between the two handlers until the lagging side
	// settles.
	for rounds := 0; behind.ctx.State != p2p.StateNormal; rounds++ {
		if rounds > 32 {
			t.Fatalf("sync did not settle; state %v", behind.ctx.State)
		}

		send, ok := behind.endpoint.pop()
		if !ok {
			t.Fatalf("lagging side idle in state %v", behind.ctx.State)
		}
		if err := ahead.handler.HandleCommand(send.command, send.payload, ahead.ctx); err != nil {
			t.Fatalf("ahead handler: %v", err)
		}
		for {
			reply, ok := ahead.endpoint.pop()
			if !ok {
				break
			}
			if err := behind.handler.HandleCommand(reply.command, reply.payload, behind.ctx); err != nil {
				t.Fatalf("behind handler: %v", err)
			}
		}
	}

	if behind.chain.TopBlockHash() != ahead.chain.TopBlockHash() {
		t.Fatal("sync did not converge on the same tip")
	}
	if behind.chain.TopBlockIndex() != ahead.chain.TopBlockIndex() {
		t.Fatal("sync did not converge on the same height")
	}
	if !behind.handler.IsSynchronized() {
		t.Fatal("lagging node does not consider itself synchronized")
	}
}

func TestNewBlockNotifyConnectsAndRelays(t *testing.T) {
	c, err := currency.NewBuilder().Build()
	if err != nil {
		t.Fatalf("currency: %v", err)
	}

	miner := newNode(t, c)
	mineBlocks(t, c, miner.chain, miner.pool, 1)
	raws, err := miner.chain.GetBlocksByHeight(1, 1)
	if err != nil {
		t.Fatalf("GetBlocksByHeight: %v", err)
	}

	receiver := newNode(t, c)
	notify := NotifyNewBlock{
		Block:                   raws[0],
		CurrentBlockchainHeight: 2,
		Hop:                     0,
	}
	payload, err := notify.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := receiver.handler.HandleCommand(NotifyNewBlockID, payload, receiver.ctx); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}

	if receiver.chain.TopBlockIndex() != 1 {
		t.Fatal("relayed block not connected")
	}

	send, ok := receiver.endpoint.pop()
	if !ok || send.command != NotifyNewBlockID || !send.relayed {
		t.Fatalf("block not relayed onward: %+v", send)
	}
	var relayed NotifyNewBlock
	if err := relayed.Unmarshal(send.payload); err != nil {
		t.Fatalf("Unmarshal relay: %v", err)
	}
	if relayed.Hop != 1 {
		t.Fatalf("relay hop: got %d, want 1", relayed.Hop)
	}
}

func TestUnsolicitedObjectsResponseIsViolation(t *testing.T) {
	c, err := currency.NewBuilder().Build()
	if err != nil {
		t.Fatalf("currency: %v", err)
	}
	n := newNode(t, c)

	rsp := ResponseGetObjects{CurrentBlockchainHeight: 10}
	payload, err := rsp.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := n.handler.HandleCommand(NotifyResponseGetObjectsID, payload, n.ctx); err == nil {
		t.Fatal("unsolicited objects response accepted")
	}
}

func TestRequestTxPoolEmptyPoolStaysQuiet(t *testing.T) {
	c, err := currency.NewBuilder().Build()
	if err != nil {
		t.Fatalf("currency: %v", err)
	}
	n := newNode(t, c)

	req := RequestTxPool{}
	payload, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	// With an empty pool nothing is pushed back.
	if err := n.handler.HandleCommand(NotifyRequestTxPoolID, payload, n.ctx); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	if _, ok := n.endpoint.pop(); ok {
		t.Fatal("pool response sent despite an empty pool")
	}
}
