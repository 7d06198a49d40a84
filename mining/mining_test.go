// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mining

import (
	"testing"

	"github.com/bytecoin-go/bytecoind/blockchain"
	"github.com/bytecoin-go/bytecoind/coreutil"
	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/bytecoin-go/bytecoind/currency"
	"github.com/bytecoin-go/bytecoind/mempool"
	"github.com/bytecoin-go/bytecoind/wire"
)

type zeroPoW struct{}

func (zeroPoW) SlowHash(data []byte) crypto.Hash {
	return crypto.Hash{}
}

func newTestGenerator(t *testing.T, mutate func(*currency.Builder)) (*Generator, *blockchain.Chain, *currency.Currency) {
	t.Helper()
	builder := currency.NewBuilder()
	if mutate != nil {
		mutate(builder)
	}
	c, err := builder.Build()
	if err != nil {
		t.Fatalf("currency: %v", err)
	}

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

	return NewGenerator(c, chain, pool), chain, c
}

func testMiner() crypto.Address {
	miner := crypto.Address{}
	miner.SpendPublicKey[0] = 0x01
	miner.ViewPublicKey[0] = 0x02
	return miner
}

func TestDecomposeAmountSumsBack(t *testing.T) {
	for _, amount := range []uint64{1, 999999, 1000000, 70368744177663, 123456789012345} {
		var sum uint64
		for _, chunk := range decomposeAmount(amount, 1000000) {
			sum += chunk
		}
		if sum != amount {
			t.Errorf("decompose(%d) sums to %d", amount, sum)
		}
	}
}

func TestDecomposeAmountMergesDust(t *testing.T) {
	chunks := decomposeAmount(123456789, 1000000)
	// Everything below a million collapses into one leading dust chunk.
	if chunks[0] != 456789 {
		t.Fatalf("dust chunk: got %d, want 456789", chunks[0])
	}
	for _, chunk := range chunks[1:] {
		if chunk < 1000000 {
			t.Fatalf("sub-threshold chunk %d escaped the dust merge", chunk)
		}
	}
}

func TestGetBlockTemplateShape(t *testing.T) {
	gen, chain, c := newTestGenerator(t, nil)

	template, difficulty, height, err := gen.GetBlockTemplate(testMiner(), []byte{0xaa})
	if err != nil {
		t.Fatalf("GetBlockTemplate: %v", err)
	}
	if height != 1 {
		t.Fatalf("template height: got %d, want 1", height)
	}
	if difficulty == 0 {
		t.Fatal("template difficulty is zero")
	}
	if template.PreviousBlockHash != chain.TopBlockHash() {
		t.Fatal("template does not extend the tip")
	}
	if template.Nonce != 0 {
		t.Fatal("template nonce not fresh")
	}

	coinbase := &template.BaseTransaction
	if !coinbase.IsCoinbase() {
		t.Fatal("template base transaction is not a coinbase")
	}
	if coinbase.Inputs[0].(*wire.BaseInput).BlockIndex != 1 {
		t.Fatal("coinbase declares a wrong block index")
	}
	if coinbase.UnlockTime != 1+currency.MinedMoneyUnlockWindow {
		t.Fatal("coinbase unlock time wrong")
	}

	var paid uint64
	for i := range coinbase.Outputs {
		paid += coinbase.Outputs[i].Amount
	}
	if paid != c.BaseReward(chain.TotalGeneratedAmount()) {
		t.Fatalf("coinbase pays %d, want the base reward", paid)
	}

	fields, err := wire.ParseExtra(coinbase.Extra)
	if err != nil {
		t.Fatalf("ParseExtra: %v", err)
	}
	if fields.PublicKey == nil {
		t.Fatal("coinbase extra lacks the transaction public key")
	}
	if string(fields.Nonce) != "\xaa" {
		t.Fatal("coinbase extra lacks the caller's extra nonce")
	}
}

func TestSubmitTemplateConnects(t *testing.T) {
	gen, chain, _ := newTestGenerator(t, nil)

	template, _, _, err := gen.GetBlockTemplate(testMiner(), nil)
	if err != nil {
		t.Fatalf("GetBlockTemplate: %v", err)
	}
	serialized, err := coreutil.NewBlock(template).Bytes()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	result, err := gen.SubmitBlock(serialized)
	if err != nil {
		t.Fatalf("SubmitBlock: %v", err)
	}
	if result != blockchain.AddedToMainChain {
		t.Fatalf("SubmitBlock result: got %v, want AddedToMainChain", result)
	}
	if chain.TopBlockIndex() != 1 {
		t.Fatal("submitted block did not become the tip")
	}
}

func TestTemplateV2CarriesParentPlaceholder(t *testing.T) {
	gen, _, _ := newTestGenerator(t, func(b *currency.Builder) {
		b.UpgradeHeights(1, 0)
	})

	template, _, _, err := gen.GetBlockTemplate(testMiner(), nil)
	if err != nil {
		t.Fatalf("GetBlockTemplate: %v", err)
	}
	if template.MajorVersion != wire.BlockMajorVersion2 {
		t.Fatalf("template version: got %d, want 2", template.MajorVersion)
	}

	parent := &template.ParentBlock
	if parent.TransactionCount != 1 {
		t.Fatal("parent placeholder transaction count wrong")
	}
	fields, err := wire.ParseExtra(parent.BaseTransaction.Extra)
	if err != nil {
		t.Fatalf("ParseExtra: %v", err)
	}
	if fields.MergeMiningTag == nil {
		t.Fatal("parent placeholder lacks the merge mining tag")
	}

	// The placeholder must serialize, or the template is unusable.
	if _, err := coreutil.NewBlock(template).Bytes(); err != nil {
		t.Fatalf("version 2 template does not serialize: %v", err)
	}
}

func TestGetBlockTemplateRejectsHugeExtraNonce(t *testing.T) {
	gen, _, _ := newTestGenerator(t, nil)
	if _, _, _, err := gen.GetBlockTemplate(testMiner(), make([]byte, 300)); err == nil {
		t.Fatal("oversized extra nonce accepted")
	}
}
