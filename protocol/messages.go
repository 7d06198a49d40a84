// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package protocol

import (
	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/bytecoin-go/bytecoind/levin"
	"github.com/bytecoin-go/bytecoind/wire"
	"github.com/pkg/errors"
)

// protocolCommandsBase is the base of the protocol-level notify id space.
const protocolCommandsBase = 2000

// Protocol-level notify ids.
const (
	// NotifyNewBlockID announces a freshly mined or relayed block.
	NotifyNewBlockID = protocolCommandsBase + 1

	// NotifyNewTransactionsID gossips pool transactions.
	NotifyNewTransactionsID = protocolCommandsBase + 2

	// NotifyRequestGetObjectsID asks for block objects by hash.
	NotifyRequestGetObjectsID = protocolCommandsBase + 3

	// NotifyResponseGetObjectsID answers a get-objects request.
	NotifyResponseGetObjectsID = protocolCommandsBase + 4

	// NotifyRequestChainID asks for a chain entry given a sparse
	// locator.
	NotifyRequestChainID = protocolCommandsBase + 6

	// NotifyResponseChainEntryID answers a chain request with the
	// common ancestor height and a run of block hashes.
	NotifyResponseChainEntryID = protocolCommandsBase + 7

	// NotifyRequestTxPoolID asks the peer for pool transactions we are
	// missing.
	NotifyRequestTxPoolID = protocolCommandsBase + 8
)

// marshalHashList packs hashes into the flat blob the protocol carries
// hash lists in.
func marshalHashList(hashes []crypto.Hash) []byte {
	blob := make([]byte, 0, len(hashes)*crypto.HashSize)
	for i := range hashes {
		blob = append(blob, hashes[i][:]...)
	}
	return blob
}

func unmarshalHashList(blob []byte) ([]crypto.Hash, error) {
	if len(blob)%crypto.HashSize != 0 {
		return nil, errors.Errorf("hash list blob of %d bytes is not a multiple of %d",
			len(blob), crypto.HashSize)
	}
	hashes := make([]crypto.Hash, len(blob)/crypto.HashSize)
	for i := range hashes {
		copy(hashes[i][:], blob[i*crypto.HashSize:])
	}
	return hashes, nil
}

func rawBlockToSection(raw *wire.RawBlock) *levin.Section {
	s := levin.NewSection()
	s.Set("block", raw.Block)
	txs := make([]interface{}, len(raw.Transactions))
	for i, txBytes := range raw.Transactions {
		txs[i] = txBytes
	}
	s.Set("txs", txs)
	return s
}

func rawBlockFromSection(s *levin.Section) (*wire.RawBlock, error) {
	blockBytes, ok := s.GetBytes("block")
	if !ok {
		return nil, errors.New("missing block blob")
	}
	raw := &wire.RawBlock{Block: blockBytes}
	if txs, ok := s.GetArray("txs"); ok {
		raw.Transactions = make([][]byte, 0, len(txs))
		for _, tx := range txs {
			txBytes, ok := tx.([]byte)
			if !ok {
				return nil, errors.New("malformed transaction blob list")
			}
			raw.Transactions = append(raw.Transactions, txBytes)
		}
	}
	return raw, nil
}

// NotifyNewBlock announces one block together with the sender's height
// and the number of hops the announcement already travelled.
type NotifyNewBlock struct {
	Block                   *wire.RawBlock
	CurrentBlockchainHeight uint32
	Hop                     uint32
}

// Marshal encodes the notify into a portable storage payload.
func (n *NotifyNewBlock) Marshal() ([]byte, error) {
	s := levin.NewSection()
	s.Set("b", rawBlockToSection(n.Block))
	s.Set("current_blockchain_height", n.CurrentBlockchainHeight)
	s.Set("hop", n.Hop)
	return s.Marshal()
}

// Unmarshal decodes the notify from a portable storage payload.
func (n *NotifyNewBlock) Unmarshal(data []byte) error {
	s, err := levin.Unmarshal(data)
	if err != nil {
		return err
	}
	blockSection, ok := s.GetSection("b")
	if !ok {
		return errors.New("missing block entry")
	}
	if n.Block, err = rawBlockFromSection(blockSection); err != nil {
		return err
	}
	height, ok := s.GetUint("current_blockchain_height")
	if !ok {
		return errors.New("missing current_blockchain_height")
	}
	n.CurrentBlockchainHeight = uint32(height)
	hop, _ := s.GetUint("hop")
	n.Hop = uint32(hop)
	return nil
}

// NotifyNewTransactions gossips serialized pool transactions.
type NotifyNewTransactions struct {
	Transactions [][]byte
}

// Marshal encodes the notify into a portable storage payload.
func (n *NotifyNewTransactions) Marshal() ([]byte, error) {
	s := levin.NewSection()
	txs := make([]interface{}, len(n.Transactions))
	for i, txBytes := range n.Transactions {
		txs[i] = txBytes
	}
	s.Set("txs", txs)
	return s.Marshal()
}

// Unmarshal decodes the notify from a portable storage payload.
func (n *NotifyNewTransactions) Unmarshal(data []byte) error {
	s, err := levin.Unmarshal(data)
	if err != nil {
		return err
	}
	if txs, ok := s.GetArray("txs"); ok {
		n.Transactions = make([][]byte, 0, len(txs))
		for _, tx := range txs {
			txBytes, ok := tx.([]byte)
			if !ok {
				return errors.New("malformed transaction blob list")
			}
			n.Transactions = append(n.Transactions, txBytes)
		}
	}
	return nil
}

// RequestGetObjects asks for blocks and transactions by hash.
type RequestGetObjects struct {
	Blocks []crypto.Hash
	Txs    []crypto.Hash
}

// Marshal encodes the request into a portable storage payload.
func (r *RequestGetObjects) Marshal() ([]byte, error) {
	s := levin.NewSection()
	s.Set("txs", marshalHashList(r.Txs))
	s.Set("blocks", marshalHashList(r.Blocks))
	return s.Marshal()
}

// Unmarshal decodes the request from a portable storage payload.
func (r *RequestGetObjects) Unmarshal(data []byte) error {
	s, err := levin.Unmarshal(data)
	if err != nil {
		return err
	}
	if blob, ok := s.GetBytes("txs"); ok {
		if r.Txs, err = unmarshalHashList(blob); err != nil {
			return err
		}
	}
	if blob, ok := s.GetBytes("blocks"); ok {
		if r.Blocks, err = unmarshalHashList(blob); err != nil {
			return err
		}
	}
	return nil
}

// ResponseGetObjects carries the requested blocks and transactions plus
// the hashes that could not be served.
type ResponseGetObjects struct {
	Txs                     [][]byte
	Blocks                  []*wire.RawBlock
	MissedIDs               []crypto.Hash
	CurrentBlockchainHeight uint32
}

// Marshal encodes the response into a portable storage payload.
func (r *ResponseGetObjects) Marshal() ([]byte, error) {
	s := levin.NewSection()
	txs := make([]interface{}, len(r.Txs))
	for i, txBytes := range r.Txs {
		txs[i] = txBytes
	}
	s.Set("txs", txs)
	blocks := make([]interface{}, len(r.Blocks))
	for i, raw := range r.Blocks {
		blocks[i] = rawBlockToSection(raw)
	}
	s.Set("blocks", blocks)
	s.Set("missed_ids", marshalHashList(r.MissedIDs))
	s.Set("current_blockchain_height", r.CurrentBlockchainHeight)
	return s.Marshal()
}

// Unmarshal decodes the response from a portable storage payload.
func (r *ResponseGetObjects) Unmarshal(data []byte) error {
	s, err := levin.Unmarshal(data)
	if err != nil {
		return err
	}
	if txs, ok := s.GetArray("txs"); ok {
		r.Txs = make([][]byte, 0, len(txs))
		for _, tx := range txs {
			txBytes, ok := tx.([]byte)
			if !ok {
				return errors.New("malformed transaction blob list")
			}
			r.Txs = append(r.Txs, txBytes)
		}
	}
	if blocks, ok := s.GetArray("blocks"); ok {
		r.Blocks = make([]*wire.RawBlock, 0, len(blocks))
		for _, entry := range blocks {
			section, ok := entry.(*levin.Section)
			if !ok {
				return errors.New("malformed block entry list")
			}
			raw, err := rawBlockFromSection(section)
			if err != nil {
				return err
			}
			r.Blocks = append(r.Blocks, raw)
		}
	}
	if blob, ok := s.GetBytes("missed_ids"); ok {
		if r.MissedIDs, err = unmarshalHashList(blob); err != nil {
			return err
		}
	}
	height, ok := s.GetUint("current_blockchain_height")
	if !ok {
		return errors.New("missing current_blockchain_height")
	}
	r.CurrentBlockchainHeight = uint32(height)
	return nil
}

// RequestChain carries the sparse locator of the requester's main chain.
type RequestChain struct {
	BlockIDs []crypto.Hash
}

// Marshal encodes the request into a portable storage payload.
func (r *RequestChain) Marshal() ([]byte, error) {
	s := levin.NewSection()
	s.Set("block_ids", marshalHashList(r.BlockIDs))
	return s.Marshal()
}

// Unmarshal decodes the request from a portable storage payload.
func (r *RequestChain) Unmarshal(data []byte) error {
	s, err := levin.Unmarshal(data)
	if err != nil {
		return err
	}
	blob, ok := s.GetBytes("block_ids")
	if !ok {
		return errors.New("missing block_ids")
	}
	r.BlockIDs, err = unmarshalHashList(blob)
	return err
}

// ResponseChainEntry answers a chain request: the height of the common
// ancestor, the responder's total height and a run of block hashes
// forward from the ancestor.
type ResponseChainEntry struct {
	StartHeight uint32
	TotalHeight uint32
	BlockIDs    []crypto.Hash
}

// Marshal encodes the response into a portable storage payload.
func (r *ResponseChainEntry) Marshal() ([]byte, error) {
	s := levin.NewSection()
	s.Set("start_height", r.StartHeight)
	s.Set("total_height", r.TotalHeight)
	s.Set("m_block_ids", marshalHashList(r.BlockIDs))
	return s.Marshal()
}

// Unmarshal decodes the response from a portable storage payload.
func (r *ResponseChainEntry) Unmarshal(data []byte) error {
	s, err := levin.Unmarshal(data)
	if err != nil {
		return err
	}
	start, ok := s.GetUint("start_height")
	if !ok {
		return errors.New("missing start_height")
	}
	r.StartHeight = uint32(start)
	total, ok := s.GetUint("total_height")
	if !ok {
		return errors.New("missing total_height")
	}
	r.TotalHeight = uint32(total)
	blob, ok := s.GetBytes("m_block_ids")
	if !ok {
		return errors.New("missing m_block_ids")
	}
	r.BlockIDs, err = unmarshalHashList(blob)
	return err
}

// RequestTxPool carries the hashes of the requester's pool so the
// responder can push what is missing.
type RequestTxPool struct {
	Txs []crypto.Hash
}

// Marshal encodes the request into a portable storage payload.
func (r *RequestTxPool) Marshal() ([]byte, error) {
	s := levin.NewSection()
	s.Set("txs", marshalHashList(r.Txs))
	return s.Marshal()
}

// Unmarshal decodes the request from a portable storage payload.
func (r *RequestTxPool) Unmarshal(data []byte) error {
	s, err := levin.Unmarshal(data)
	if err != nil {
		return err
	}
	if blob, ok := s.GetBytes("txs"); ok {
		if r.Txs, err = unmarshalHashList(blob); err != nil {
			return err
		}
	}
	return nil
}
