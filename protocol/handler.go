// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package protocol implements the per-peer sync state machine living on
// top of the p2p connection table: chain synchronization, object
// requests, pool synchronization and block and transaction relay.
package protocol

import (
	"sync"

	"github.com/bytecoin-go/bytecoind/blockchain"
	"github.com/bytecoin-go/bytecoind/coreutil"
	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/bytecoin-go/bytecoind/currency"
	"github.com/bytecoin-go/bytecoind/mempool"
	"github.com/bytecoin-go/bytecoind/p2p"
	"github.com/bytecoin-go/bytecoind/wire"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Batch sizes of the sync machinery.
const (
	// blocksSynchronizingCount is the object request batch size.
	blocksSynchronizingCount = 100

	// blockIDsSynchronizingCount is the chain entry response size.
	blockIDsSynchronizingCount = 10000
)

// Endpoint is the slice of the node server the handler drives.
type Endpoint interface {
	// RelayNotifyToAll pushes a notify to every handshaked peer except
	// the excluded connection.
	RelayNotifyToAll(command uint32, payload []byte, excludeConnection *uuid.UUID)

	// InvokeNotifyToPeer pushes a notify to one connection.
	InvokeNotifyToPeer(command uint32, payload []byte, connectionID uuid.UUID) bool

	// ForEachConnection visits every connection context.
	ForEachConnection(f func(ctx *p2p.ConnectionContext))

	// CloseConnection interrupts one connection.
	CloseConnection(connectionID uuid.UUID)
}

// Handler is the protocol layer. It borrows the chain and the pool; it
// owns neither them nor the connections it is handed.
type Handler struct {
	currency *currency.Currency
	chain    *blockchain.Chain
	pool     *mempool.TxPool

	endpointMtx sync.RWMutex
	endpoint    Endpoint

	observedMtx    sync.Mutex
	observedHeight uint32

	peersMtx     sync.Mutex
	synchronized bool
}

// NewHandler wires the protocol layer to the chain and the pool. The
// endpoint is attached later, once the node server exists.
func NewHandler(c *currency.Currency, chain *blockchain.Chain, pool *mempool.TxPool) *Handler {
	return &Handler{
		currency: c,
		chain:    chain,
		pool:     pool,
	}
}

// SetEndpoint attaches the node server.
func (h *Handler) SetEndpoint(endpoint Endpoint) {
	h.endpointMtx.Lock()
	h.endpoint = endpoint
	h.endpointMtx.Unlock()
}

func (h *Handler) getEndpoint() Endpoint {
	h.endpointMtx.RLock()
	defer h.endpointMtx.RUnlock()
	return h.endpoint
}

// ObservedHeight returns the highest chain height any peer has announced.
func (h *Handler) ObservedHeight() uint32 {
	h.observedMtx.Lock()
	defer h.observedMtx.Unlock()
	return h.observedHeight
}

// IsSynchronized reports whether the node considers itself caught up.
func (h *Handler) IsSynchronized() bool {
	h.peersMtx.Lock()
	defer h.peersMtx.Unlock()
	return h.synchronized
}

// GetPayloadSyncData returns our chain tip advertisement. The height on
// the wire is the blockchain height, one above the top index.
func (h *Handler) GetPayloadSyncData() p2p.CoreSyncData {
	return p2p.CoreSyncData{
		CurrentHeight: h.chain.TopBlockIndex() + 1,
		TopBlockHash:  h.chain.TopBlockHash(),
	}
}

// ProcessPayloadSyncData digests a peer's tip advertisement and moves the
// peer's sync state accordingly.
func (h *Handler) ProcessPayloadSyncData(data p2p.CoreSyncData, ctx *p2p.ConnectionContext, isInitial bool) error {
	if ctx.State == p2p.StateBeforeHandshake && !isInitial {
		return nil
	}
	if ctx.State == p2p.StateShutdown {
		return nil
	}

	ourHeight := h.chain.TopBlockIndex() + 1
	h.updateObservedHeight(data.CurrentHeight)
	ctx.RemoteBlockchainHeight = data.CurrentHeight

	if data.CurrentHeight > ourHeight {
		diff := int64(data.CurrentHeight) - int64(ourHeight)
		days := diff * int64(h.currency.DifficultyTarget) / (24 * 60 * 60)
		if days > 0 {
			log.Infof("%sSync data returned an unknown top block; %d blocks (%d days) behind, synchronization started",
				ctx, diff, days)
		} else {
			log.Debugf("%sPeer is %d blocks ahead, synchronization started", ctx, diff)
		}
		ctx.State = p2p.StateSyncRequired
		return h.startSync(ctx)
	}

	if ctx.State == p2p.StateBeforeHandshake || isInitial {
		h.onConnectionSynchronized()
	}
	ctx.State = p2p.StateNormal
	return nil
}

// startSync moves a peer into Synchronizing by asking for a chain entry.
func (h *Handler) startSync(ctx *p2p.ConnectionContext) error {
	if ctx.State != p2p.StateSyncRequired {
		return nil
	}
	ctx.State = p2p.StateSynchronizing
	return h.requestChain(ctx)
}

func (h *Handler) requestChain(ctx *p2p.ConnectionContext) error {
	req := RequestChain{BlockIDs: h.chain.BuildSparseChain()}
	payload, err := req.Marshal()
	if err != nil {
		return err
	}
	endpoint := h.getEndpoint()
	if endpoint == nil || !endpoint.InvokeNotifyToPeer(NotifyRequestChainID, payload, ctx.ID) {
		return errors.New("couldn't send chain request")
	}
	return nil
}

// HandleCommand routes one protocol notify. A returned error shuts the
// connection down.
func (h *Handler) HandleCommand(command uint32, payload []byte, ctx *p2p.ConnectionContext) error {
	switch command {
	case NotifyNewBlockID:
		return h.handleNewBlock(payload, ctx)
	case NotifyNewTransactionsID:
		return h.handleNewTransactions(payload, ctx)
	case NotifyRequestGetObjectsID:
		return h.handleRequestGetObjects(payload, ctx)
	case NotifyResponseGetObjectsID:
		return h.handleResponseGetObjects(payload, ctx)
	case NotifyRequestChainID:
		return h.handleRequestChain(payload, ctx)
	case NotifyResponseChainEntryID:
		return h.handleResponseChainEntry(payload, ctx)
	case NotifyRequestTxPoolID:
		return h.handleRequestTxPool(payload, ctx)
	default:
		return errors.Errorf("unknown protocol command %d", command)
	}
}

// OnConnectionOpened is part of the p2p.PayloadHandler contract.
func (h *Handler) OnConnectionOpened(ctx *p2p.ConnectionContext) {
}

// OnConnectionClosed is part of the p2p.PayloadHandler contract.
func (h *Handler) OnConnectionClosed(ctx *p2p.ConnectionContext) {
}

func (h *Handler) handleNewBlock(payload []byte, ctx *p2p.ConnectionContext) error {
	var notify NotifyNewBlock
	if err := notify.Unmarshal(payload); err != nil {
		return errors.Wrap(err, "malformed new block notify")
	}
	log.Debugf("%sNOTIFY_NEW_BLOCK (hop %d)", ctx, notify.Hop)

	h.updateObservedHeight(notify.CurrentBlockchainHeight)
	ctx.RemoteBlockchainHeight = notify.CurrentBlockchainHeight

	result, err := h.chain.AddBlock(notify.Block)
	switch result {
	case blockchain.AddedToMainChain, blockchain.AddedToAlternativeAndSwitched:
		relay := NotifyNewBlock{
			Block:                   notify.Block,
			CurrentBlockchainHeight: h.chain.TopBlockIndex() + 1,
			Hop:                     notify.Hop + 1,
		}
		relayPayload, err := relay.Marshal()
		if err != nil {
			return err
		}
		if endpoint := h.getEndpoint(); endpoint != nil {
			endpoint.RelayNotifyToAll(NotifyNewBlockID, relayPayload, &ctx.ID)
		}
		return nil

	case blockchain.AddedToAlternative, blockchain.AddAlreadyExists:
		return nil

	case blockchain.AddOrphaned:
		log.Infof("%sBlock received out of order, requesting chain", ctx)
		ctx.State = p2p.StateSyncRequired
		return h.startSync(ctx)

	default:
		return errors.Wrap(err, "relayed block rejected")
	}
}

func (h *Handler) handleNewTransactions(payload []byte, ctx *p2p.ConnectionContext) error {
	var notify NotifyNewTransactions
	if err := notify.Unmarshal(payload); err != nil {
		return errors.Wrap(err, "malformed new transactions notify")
	}
	log.Debugf("%sNOTIFY_NEW_TRANSACTIONS (%d txs)", ctx, len(notify.Transactions))

	// Relay only while in the steady state; during sync the pool view is
	// incomplete and gossip would be noise.
	if ctx.State != p2p.StateNormal {
		return nil
	}

	var accepted [][]byte
	for _, txBytes := range notify.Transactions {
		tx, err := coreutil.NewTxFromBytes(txBytes)
		if err != nil {
			return errors.Wrap(err, "malformed relayed transaction")
		}
		if err := h.pool.Add(tx); err != nil {
			if mempool.IsRejectCode(err, mempool.RejectDoubleSpend) {
				log.Debugf("%sRelayed transaction is a double spend: %v", ctx, err)
				continue
			}
			log.Debugf("%sRelayed transaction rejected: %v", ctx, err)
			continue
		}
		accepted = append(accepted, txBytes)
	}

	if len(accepted) > 0 {
		relay := NotifyNewTransactions{Transactions: accepted}
		relayPayload, err := relay.Marshal()
		if err != nil {
			return err
		}
		if endpoint := h.getEndpoint(); endpoint != nil {
			endpoint.RelayNotifyToAll(NotifyNewTransactionsID, relayPayload, &ctx.ID)
		}
	}
	return nil
}

func (h *Handler) handleRequestGetObjects(payload []byte, ctx *p2p.ConnectionContext) error {
	var req RequestGetObjects
	if err := req.Unmarshal(payload); err != nil {
		return errors.Wrap(err, "malformed get objects request")
	}
	log.Debugf("%sNOTIFY_REQUEST_GET_OBJECTS (%d blocks, %d txs)",
		ctx, len(req.Blocks), len(req.Txs))

	rsp := ResponseGetObjects{CurrentBlockchainHeight: h.chain.TopBlockIndex() + 1}

	blocks, missedBlocks := h.chain.GetBlocksByHash(req.Blocks)
	rsp.Blocks = blocks
	rsp.MissedIDs = append(rsp.MissedIDs, missedBlocks...)

	txs, missedTxs := h.chain.GetTransactions(req.Txs)
	for _, tx := range txs {
		txBytes, err := tx.Bytes()
		if err != nil {
			return err
		}
		rsp.Txs = append(rsp.Txs, txBytes)
	}
	rsp.MissedIDs = append(rsp.MissedIDs, missedTxs...)

	rspPayload, err := rsp.Marshal()
	if err != nil {
		return err
	}
	endpoint := h.getEndpoint()
	if endpoint == nil || !endpoint.InvokeNotifyToPeer(NotifyResponseGetObjectsID, rspPayload, ctx.ID) {
		return errors.New("couldn't send get objects response")
	}
	return nil
}

func (h *Handler) handleResponseGetObjects(payload []byte, ctx *p2p.ConnectionContext) error {
	var rsp ResponseGetObjects
	if err := rsp.Unmarshal(payload); err != nil {
		return errors.Wrap(err, "malformed get objects response")
	}
	log.Debugf("%sNOTIFY_RESPONSE_GET_OBJECTS (%d blocks)", ctx, len(rsp.Blocks))

	if ctx.State != p2p.StateSynchronizing {
		return errors.New("get objects response outside synchronization")
	}

	h.updateObservedHeight(rsp.CurrentBlockchainHeight)
	ctx.RemoteBlockchainHeight = rsp.CurrentBlockchainHeight

	for _, raw := range rsp.Blocks {
		block, err := coreutil.NewBlockFromBytes(raw.Block)
		if err != nil {
			return errors.Wrap(err, "malformed block in get objects response")
		}
		hash, err := block.Hash()
		if err != nil {
			return err
		}
		if _, requested := ctx.RequestedObjects[hash]; !requested {
			return errors.Errorf("block %s was not requested", hash)
		}
		delete(ctx.RequestedObjects, hash)

		result, err := h.chain.AddBlock(raw)
		if result == blockchain.AddRejected {
			return errors.Wrap(err, "synchronized block rejected")
		}
	}

	if len(ctx.RequestedObjects) != 0 {
		return errors.Errorf("%d requested blocks not returned", len(ctx.RequestedObjects))
	}
	return h.requestMissingObjects(ctx)
}

// requestMissingObjects keeps the sync loop turning: request queued
// objects, otherwise ask for the next chain entry, otherwise finish.
func (h *Handler) requestMissingObjects(ctx *p2p.ConnectionContext) error {
	for len(ctx.NeededObjects) > 0 {
		batch := ctx.NeededObjects
		if len(batch) > blocksSynchronizingCount {
			batch = batch[:blocksSynchronizingCount]
		}
		ctx.NeededObjects = ctx.NeededObjects[len(batch):]

		req := RequestGetObjects{}
		for _, hash := range batch {
			if h.chain.HaveBlock(hash) {
				continue
			}
			req.Blocks = append(req.Blocks, hash)
			ctx.RequestedObjects[hash] = struct{}{}
		}
		if len(req.Blocks) == 0 {
			// Everything in this batch arrived by other means; take
			// the next one.
			continue
		}

		payload, err := req.Marshal()
		if err != nil {
			return err
		}
		endpoint := h.getEndpoint()
		if endpoint == nil || !endpoint.InvokeNotifyToPeer(NotifyRequestGetObjectsID, payload, ctx.ID) {
			return errors.New("couldn't send get objects request")
		}
		return nil
	}

	if uint64(ctx.LastResponseHeight)+1 < uint64(ctx.RemoteBlockchainHeight) {
		return h.requestChain(ctx)
	}

	// Caught up: synchronize pools, then settle into the steady state.
	ctx.State = p2p.StatePoolSyncRequired
	if err := h.requestMissingPoolTransactions(ctx); err != nil {
		return err
	}
	ctx.State = p2p.StateNormal
	h.onConnectionSynchronized()
	log.Infof("%sSynchronized with peer at height %d", ctx, ctx.RemoteBlockchainHeight)
	return nil
}

func (h *Handler) requestMissingPoolTransactions(ctx *p2p.ConnectionContext) error {
	req := RequestTxPool{Txs: h.pool.TxHashes()}
	payload, err := req.Marshal()
	if err != nil {
		return err
	}
	endpoint := h.getEndpoint()
	if endpoint == nil || !endpoint.InvokeNotifyToPeer(NotifyRequestTxPoolID, payload, ctx.ID) {
		return errors.New("couldn't send pool request")
	}
	return nil
}

func (h *Handler) handleRequestChain(payload []byte, ctx *p2p.ConnectionContext) error {
	var req RequestChain
	if err := req.Unmarshal(payload); err != nil {
		return errors.Wrap(err, "malformed chain request")
	}
	if len(req.BlockIDs) == 0 {
		return errors.New("empty chain request locator")
	}
	log.Debugf("%sNOTIFY_REQUEST_CHAIN (%d locator entries)", ctx, len(req.BlockIDs))

	startHeight, hashes, err := h.chain.FindBlockchainSupplement(req.BlockIDs, blockIDsSynchronizingCount)
	if err != nil {
		return errors.Wrap(err, "chain request from a foreign chain")
	}

	rsp := ResponseChainEntry{
		StartHeight: startHeight,
		TotalHeight: h.chain.TopBlockIndex() + 1,
		BlockIDs:    hashes,
	}
	rspPayload, err := rsp.Marshal()
	if err != nil {
		return err
	}
	endpoint := h.getEndpoint()
	if endpoint == nil || !endpoint.InvokeNotifyToPeer(NotifyResponseChainEntryID, rspPayload, ctx.ID) {
		return errors.New("couldn't send chain entry response")
	}
	return nil
}

func (h *Handler) handleResponseChainEntry(payload []byte, ctx *p2p.ConnectionContext) error {
	var rsp ResponseChainEntry
	if err := rsp.Unmarshal(payload); err != nil {
		return errors.Wrap(err, "malformed chain entry response")
	}
	log.Debugf("%sNOTIFY_RESPONSE_CHAIN_ENTRY (start %d, total %d, %d ids)",
		ctx, rsp.StartHeight, rsp.TotalHeight, len(rsp.BlockIDs))

	if ctx.State != p2p.StateSynchronizing {
		return errors.New("chain entry response outside synchronization")
	}
	if len(rsp.BlockIDs) == 0 {
		return errors.New("empty chain entry response")
	}
	if !h.chain.HaveBlock(rsp.BlockIDs[0]) {
		return errors.New("chain entry response starts from an unknown block")
	}

	ctx.RemoteBlockchainHeight = rsp.TotalHeight
	ctx.LastResponseHeight = rsp.StartHeight + uint32(len(rsp.BlockIDs)) - 1
	if ctx.LastResponseHeight > ctx.RemoteBlockchainHeight {
		return errors.Errorf("chain entry response overshoots the announced height %d",
			rsp.TotalHeight)
	}

	for _, hash := range rsp.BlockIDs {
		if !h.chain.HaveBlock(hash) {
			ctx.NeededObjects = append(ctx.NeededObjects, hash)
		}
	}
	return h.requestMissingObjects(ctx)
}

func (h *Handler) handleRequestTxPool(payload []byte, ctx *p2p.ConnectionContext) error {
	var req RequestTxPool
	if err := req.Unmarshal(payload); err != nil {
		return errors.Wrap(err, "malformed pool request")
	}
	log.Debugf("%sNOTIFY_REQUEST_TX_POOL (%d known)", ctx, len(req.Txs))

	remote := make(map[crypto.Hash]struct{}, len(req.Txs))
	for _, hash := range req.Txs {
		remote[hash] = struct{}{}
	}

	var missing [][]byte
	for _, hash := range h.pool.TxHashes() {
		if _, known := remote[hash]; known {
			continue
		}
		if tx, ok := h.pool.GetTransaction(hash); ok {
			txBytes, err := tx.Bytes()
			if err != nil {
				continue
			}
			missing = append(missing, txBytes)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	notify := NotifyNewTransactions{Transactions: missing}
	notifyPayload, err := notify.Marshal()
	if err != nil {
		return err
	}
	endpoint := h.getEndpoint()
	if endpoint == nil || !endpoint.InvokeNotifyToPeer(NotifyNewTransactionsID, notifyPayload, ctx.ID) {
		return errors.New("couldn't send pool transactions")
	}
	return nil
}

// AddTransactionToPool parses a locally submitted transaction, admits it
// into the pool and gossips it to every peer.
func (h *Handler) AddTransactionToPool(txBytes []byte) error {
	tx, err := coreutil.NewTxFromBytes(txBytes)
	if err != nil {
		return errors.Wrap(err, "malformed transaction")
	}
	if err := h.pool.Add(tx); err != nil {
		return err
	}
	return h.RelayTransactions([][]byte{txBytes})
}

// RelayBlock announces a locally mined or submitted block to every peer.
func (h *Handler) RelayBlock(raw *wire.RawBlock) error {
	notify := NotifyNewBlock{
		Block:                   raw,
		CurrentBlockchainHeight: h.chain.TopBlockIndex() + 1,
	}
	payload, err := notify.Marshal()
	if err != nil {
		return err
	}
	if endpoint := h.getEndpoint(); endpoint != nil {
		endpoint.RelayNotifyToAll(NotifyNewBlockID, payload, nil)
	}
	return nil
}

// RelayTransactions gossips locally submitted transactions to every peer.
func (h *Handler) RelayTransactions(transactions [][]byte) error {
	notify := NotifyNewTransactions{Transactions: transactions}
	payload, err := notify.Marshal()
	if err != nil {
		return err
	}
	if endpoint := h.getEndpoint(); endpoint != nil {
		endpoint.RelayNotifyToAll(NotifyNewTransactionsID, payload, nil)
	}
	return nil
}

func (h *Handler) updateObservedHeight(height uint32) {
	h.observedMtx.Lock()
	if height > h.observedHeight {
		h.observedHeight = height
	}
	h.observedMtx.Unlock()
}

func (h *Handler) onConnectionSynchronized() {
	h.peersMtx.Lock()
	wasSynchronized := h.synchronized
	h.synchronized = true
	h.peersMtx.Unlock()
	if !wasSynchronized {
		log.Info("Successfully synchronized with the network")
	}
}
