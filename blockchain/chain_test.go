// Copyright (c) 2014-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package blockchain_test

import (
	"bytes"
	"testing"

	"github.com/bytecoin-go/bytecoind/blockchain"
	"github.com/bytecoin-go/bytecoind/coreutil"
	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/bytecoin-go/bytecoind/currency"
	"github.com/bytecoin-go/bytecoind/mempool"
	"github.com/bytecoin-go/bytecoind/mining"
	"github.com/bytecoin-go/bytecoind/wire"
)

// zeroPoW meets any difficulty, so harness blocks always validate.
type zeroPoW struct{}

func (zeroPoW) SlowHash(data []byte) crypto.Hash {
	return crypto.Hash{}
}

// harness bundles a chain, its pool and a template generator over a
// temporary data directory.
type harness struct {
	t        *testing.T
	currency *currency.Currency
	chain    *blockchain.Chain
	pool     *mempool.TxPool
	gen      *mining.Generator
	dataDir  string
	miner    crypto.Address
}

func newHarness(t *testing.T, mutate func(*currency.Builder)) *harness {
	t.Helper()
	builder := currency.NewBuilder()
	if mutate != nil {
		mutate(builder)
	}
	c, err := builder.Build()
	if err != nil {
		t.Fatalf("currency: %v", err)
	}
	return newHarnessWithCurrency(t, c, t.TempDir())
}

func newHarnessWithCurrency(t *testing.T, c *currency.Currency, dataDir string) *harness {
	t.Helper()
	chain, err := blockchain.New(&blockchain.Config{
		DataDir:     dataDir,
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

	miner := crypto.Address{}
	miner.SpendPublicKey[0] = 0x01
	miner.ViewPublicKey[0] = 0x02

	return &harness{
		t:        t,
		currency: c,
		chain:    chain,
		pool:     pool,
		gen:      mining.NewGenerator(c, chain, pool),
		dataDir:  dataDir,
		miner:    miner,
	}
}

// buildRaw serializes a template together with the pool transactions it
// references.
func (h *harness) buildRaw(template *wire.BlockTemplate) *wire.RawBlock {
	h.t.Helper()
	var buf bytes.Buffer
	if err := template.Serialize(&buf); err != nil {
		h.t.Fatalf("serialize template: %v", err)
	}
	raw := &wire.RawBlock{Block: buf.Bytes()}
	for _, txHash := range template.TransactionHashes {
		tx, ok := h.pool.GetTransaction(txHash)
		if !ok {
			h.t.Fatalf("template references transaction %s missing from the pool", txHash)
		}
		txBytes, err := tx.Bytes()
		if err != nil {
			h.t.Fatalf("tx bytes: %v", err)
		}
		raw.Transactions = append(raw.Transactions, txBytes)
	}
	return raw
}

// mineBlock assembles, serializes and connects one block, returning its
// raw form.
func (h *harness) mineBlock(extraNonce byte) *wire.RawBlock {
	h.t.Helper()
	template, _, _, err := h.gen.GetBlockTemplate(h.miner, []byte{extraNonce})
	if err != nil {
		h.t.Fatalf("GetBlockTemplate: %v", err)
	}
	raw := h.buildRaw(template)
	result, err := h.chain.AddBlock(raw)
	if err != nil {
		h.t.Fatalf("AddBlock: %v", err)
	}
	if result != blockchain.AddedToMainChain {
		h.t.Fatalf("AddBlock result: got %v, want AddedToMainChain", result)
	}
	return raw
}

func (h *harness) mineBlocks(count int, extraNonce byte) {
	h.t.Helper()
	for i := 0; i < count; i++ {
		h.mineBlock(extraNonce)
	}
}

// coinbaseOutput locates the largest coinbase output of the block at the
// given height and returns its amount. For the early blocks of a fresh
// harness chain the output is the first of its amount class.
func (h *harness) coinbaseOutput(height uint32) uint64 {
	h.t.Helper()
	raws, err := h.chain.GetBlocksByHeight(height, 1)
	if err != nil {
		h.t.Fatalf("GetBlocksByHeight: %v", err)
	}
	block, err := coreutil.NewBlockFromBytes(raws[0].Block)
	if err != nil {
		h.t.Fatalf("parse block: %v", err)
	}
	var largest uint64
	for _, out := range block.Template().BaseTransaction.Outputs {
		if out.Amount > largest {
			largest = out.Amount
		}
	}
	return largest
}

// spendOutput builds a transaction spending the given coinbase output by
// global index zero of its amount class.
func spendOutput(amount uint64, imageByte byte, outputs []wire.TransactionOutput) *coreutil.Tx {
	var keyImage crypto.KeyImage
	keyImage[0] = imageByte

	tx := &wire.Transaction{
		Version: wire.TransactionVersion1,
		Inputs: []wire.TransactionInput{
			&wire.KeyInput{Amount: amount, OutputOffsets: []uint32{0}, KeyImage: keyImage},
		},
		Outputs:    outputs,
		Extra:      []byte{imageByte},
		Signatures: [][]crypto.Signature{{{1}}},
	}
	return coreutil.NewTx(tx)
}

func keyOutput(amount uint64) wire.TransactionOutput {
	target := &wire.KeyOutput{}
	target.Key[0] = 0x99
	return wire.TransactionOutput{Amount: amount, Target: target}
}

func TestGenesisOnly(t *testing.T) {
	h := newHarness(t, nil)

	if got := h.chain.TopBlockIndex(); got != 0 {
		t.Fatalf("top index of a fresh chain: got %d, want 0", got)
	}

	genesisHash, err := h.currency.GenesisBlockHash()
	if err != nil {
		t.Fatalf("GenesisBlockHash: %v", err)
	}
	if h.chain.TopBlockHash() != genesisHash {
		t.Fatal("top hash of a fresh chain is not the genesis hash")
	}
	if got := h.chain.TotalGeneratedAmount(); got != h.currency.BaseReward(0) {
		t.Fatalf("genesis emission: got %d, want %d", got, h.currency.BaseReward(0))
	}
}

func TestMineAndReload(t *testing.T) {
	dataDir := t.TempDir()
	c, err := currency.NewBuilder().Build()
	if err != nil {
		t.Fatalf("currency: %v", err)
	}

	h := newHarnessWithCurrency(t, c, dataDir)
	h.mineBlocks(5, 0x01)
	topHash := h.chain.TopBlockHash()
	emission := h.chain.TotalGeneratedAmount()
	h.chain.Close()

	reloaded := newHarnessWithCurrency(t, c, dataDir)
	if reloaded.chain.TopBlockIndex() != 5 {
		t.Fatalf("reloaded top index: got %d, want 5", reloaded.chain.TopBlockIndex())
	}
	if reloaded.chain.TopBlockHash() != topHash {
		t.Fatal("reloaded top hash differs")
	}
	if reloaded.chain.TotalGeneratedAmount() != emission {
		t.Fatal("reloaded emission differs")
	}
}

func TestEmissionMonotonicity(t *testing.T) {
	h := newHarness(t, nil)

	previous := h.chain.TotalGeneratedAmount()
	for i := 0; i < 5; i++ {
		expected := previous + h.currency.BaseReward(previous)
		h.mineBlock(byte(i))
		got := h.chain.TotalGeneratedAmount()
		if got != expected {
			t.Fatalf("emission after block %d: got %d, want %d", i+1, got, expected)
		}
		previous = got
	}
}

func TestOrphanBuffering(t *testing.T) {
	// Mine two blocks on a scratch chain, then feed them to a second
	// chain in reverse order.
	source := newHarness(t, nil)
	source.mineBlocks(2, 0x05)
	raws, err := source.chain.GetBlocksByHeight(1, 2)
	if err != nil {
		t.Fatalf("GetBlocksByHeight: %v", err)
	}

	h := newHarness(t, nil)
	result, err := h.chain.AddBlock(raws[1])
	if err != nil {
		t.Fatalf("AddBlock orphan: %v", err)
	}
	if result != blockchain.AddOrphaned {
		t.Fatalf("out-of-order block: got %v, want AddOrphaned", result)
	}

	result, err = h.chain.AddBlock(raws[0])
	if err != nil {
		t.Fatalf("AddBlock parent: %v", err)
	}
	if result != blockchain.AddedToMainChain {
		t.Fatalf("parent block: got %v, want AddedToMainChain", result)
	}

	// The orphan is retried once its parent connects.
	if got := h.chain.TopBlockIndex(); got != 2 {
		t.Fatalf("top index after orphan retry: got %d, want 2", got)
	}
}

func TestAddBlockIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)
	raw := h.mineBlock(0x01)

	result, err := h.chain.AddBlock(raw)
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if result != blockchain.AddAlreadyExists {
		t.Fatalf("re-add result: got %v, want AddAlreadyExists", result)
	}
}

func TestReorgSwitchesToHeavierChain(t *testing.T) {
	chainA := newHarness(t, nil)

	// Chain A: thirteen empty blocks, then one carrying a transaction.
	chainA.mineBlocks(13, 0x0a)

	amount := chainA.coinbaseOutput(1)
	fee := chainA.currency.MinimumFee
	tx := spendOutput(amount, 0x31, []wire.TransactionOutput{keyOutput(amount - fee)})
	if err := chainA.pool.Add(tx); err != nil {
		t.Fatalf("pool add: %v", err)
	}
	txHash, _ := tx.Hash()
	chainA.mineBlock(0x0a)
	if chainA.pool.Contains(txHash) {
		t.Fatal("mined transaction still pooled")
	}
	topA := chainA.chain.TopBlockHash()

	// Chain B: the same first thirteen blocks, then two different ones.
	chainB := newHarnessWithCurrency(t, chainA.currency, t.TempDir())
	rawsA, err := chainA.chain.GetBlocksByHeight(1, 13)
	if err != nil {
		t.Fatalf("GetBlocksByHeight: %v", err)
	}
	for _, raw := range rawsA {
		if _, err := chainB.chain.AddBlock(raw); err != nil {
			t.Fatalf("replay on B: %v", err)
		}
	}
	chainB.mineBlocks(2, 0x0b)

	// Feed B's divergent blocks into A: the first attaches as an
	// alternative, the second tips the scales and switches.
	rawsB, err := chainB.chain.GetBlocksByHeight(14, 2)
	if err != nil {
		t.Fatalf("GetBlocksByHeight on B: %v", err)
	}
	result, err := chainA.chain.AddBlock(rawsB[0])
	if err != nil {
		t.Fatalf("AddBlock B14: %v", err)
	}
	if result != blockchain.AddedToAlternative {
		t.Fatalf("B14: got %v, want AddedToAlternative", result)
	}
	result, err = chainA.chain.AddBlock(rawsB[1])
	if err != nil {
		t.Fatalf("AddBlock B15: %v", err)
	}
	if result != blockchain.AddedToAlternativeAndSwitched {
		t.Fatalf("B15: got %v, want AddedToAlternativeAndSwitched", result)
	}

	// The main chain now ends in B's blocks; A's ousted block is still
	// reachable as an alternative and its transaction is pooled again.
	if chainA.chain.TopBlockHash() != chainB.chain.TopBlockHash() {
		t.Fatal("switch did not adopt the heavier tip")
	}
	if chainA.chain.TopBlockIndex() != 15 {
		t.Fatalf("top index after switch: got %d, want 15", chainA.chain.TopBlockIndex())
	}
	if _, _, err := chainA.chain.BlockByHash(topA); err != nil {
		t.Fatal("ousted block vanished entirely")
	}
	if !chainA.pool.Contains(txHash) {
		t.Fatal("transaction from the ousted block was not returned to the pool")
	}

	// The spent index rolled back with the switch, so the key image is
	// no longer marked spent on the chain.
	var keyImage crypto.KeyImage
	keyImage[0] = 0x31
	if chainA.chain.IsKeyImageSpent(keyImage) {
		t.Fatal("key image from the ousted block still marked spent")
	}
}

func TestDoubleSpendRejectedAcrossPoolAndChain(t *testing.T) {
	h := newHarness(t, nil)
	h.mineBlocks(12, 0x01)

	amount := h.coinbaseOutput(1)
	fee := h.currency.MinimumFee

	first := spendOutput(amount, 0x44, []wire.TransactionOutput{keyOutput(amount - fee)})
	second := spendOutput(amount, 0x44, []wire.TransactionOutput{keyOutput(amount - 2*fee)})

	if err := h.pool.Add(first); err != nil {
		t.Fatalf("first spend: %v", err)
	}
	if err := h.pool.Add(second); !mempool.IsRejectCode(err, mempool.RejectDoubleSpend) {
		t.Fatalf("second spend: got %v, want RejectDoubleSpend", err)
	}
	if h.pool.Count() != 1 {
		t.Fatalf("pool count: got %d, want 1", h.pool.Count())
	}

	// Confirm the first spend, then the same key image is refused even
	// after the pool forgot it.
	h.mineBlock(0x02)
	if h.pool.Count() != 0 {
		t.Fatal("confirmed spend still pooled")
	}
	if err := h.pool.Add(second); !mempool.IsRejectCode(err, mempool.RejectDoubleSpend) {
		t.Fatalf("chain-spent key image: got %v, want RejectDoubleSpend", err)
	}
}

func TestUpgradeActivationByVote(t *testing.T) {
	h := newHarness(t, func(b *currency.Builder) {
		b.UpgradeHeights(0, 0)
		b.UpgradeVoting(90, 10, 5)
	})

	// Templates under an open vote carry minor version one.
	template, _, _, err := h.gen.GetBlockTemplate(h.miner, []byte{0x01})
	if err != nil {
		t.Fatalf("GetBlockTemplate: %v", err)
	}
	if template.MajorVersion != wire.BlockMajorVersion1 || template.MinorVersion != wire.BlockMinorVersion1 {
		t.Fatalf("voting template versions: %d.%d", template.MajorVersion, template.MinorVersion)
	}

	// Nine voting blocks complete the vote at height nine; activation is
	// fixed at fourteen. Four more version 1 blocks fill the window.
	h.mineBlocks(13, 0x01)
	if got := h.chain.BlockMajorVersionForHeight(13); got != wire.BlockMajorVersion1 {
		t.Fatalf("version at height 13: got %d, want 1", got)
	}
	if got := h.chain.BlockMajorVersionForHeight(14); got != wire.BlockMajorVersion2 {
		t.Fatalf("version at height 14: got %d, want 2", got)
	}

	// A hand-built version 1 block at the activation height is rejected.
	template, _, _, err = h.gen.GetBlockTemplate(h.miner, []byte{0x02})
	if err != nil {
		t.Fatalf("GetBlockTemplate: %v", err)
	}
	if template.MajorVersion != wire.BlockMajorVersion2 {
		t.Fatalf("activation template version: got %d, want 2", template.MajorVersion)
	}
	stale := &wire.BlockTemplate{
		BlockHeader: wire.BlockHeader{
			MajorVersion:      wire.BlockMajorVersion1,
			MinorVersion:      wire.BlockMinorVersion0,
			Timestamp:         template.Timestamp,
			PreviousBlockHash: template.PreviousBlockHash,
		},
		BaseTransaction: template.BaseTransaction,
	}
	var buf bytes.Buffer
	if err := stale.Serialize(&buf); err != nil {
		t.Fatalf("serialize stale block: %v", err)
	}
	result, err := h.chain.AddBlock(&wire.RawBlock{Block: buf.Bytes()})
	if result != blockchain.AddRejected || !blockchain.IsRuleError(err, blockchain.ErrBlockVersion) {
		t.Fatalf("stale version 1 block: got %v / %v, want ErrBlockVersion", result, err)
	}

	// The version 2 template connects.
	raw := h.buildRaw(template)
	result, err = h.chain.AddBlock(raw)
	if err != nil || result != blockchain.AddedToMainChain {
		t.Fatalf("version 2 block: got %v / %v", result, err)
	}

	// Templates stay on version 2 from here on.
	template, _, _, err = h.gen.GetBlockTemplate(h.miner, []byte{0x03})
	if err != nil {
		t.Fatalf("GetBlockTemplate: %v", err)
	}
	if template.MajorVersion != wire.BlockMajorVersion2 {
		t.Fatalf("post-activation template version: got %d, want 2", template.MajorVersion)
	}
}

func TestDepositLifecycle(t *testing.T) {
	h := newHarness(t, func(b *currency.Builder) {
		b.DepositTerms(1000000, 5, 100, 10)
	})
	h.mineBlocks(12, 0x01)

	amount := h.coinbaseOutput(1)
	fee := h.currency.MinimumFee
	depositAmount := uint64(2000000)

	// Create the deposit at height 13.
	msigTarget := &wire.MultisignatureOutput{
		Keys:                   []crypto.PublicKey{{0x55}},
		RequiredSignatureCount: 1,
		Term:                   5,
	}
	depositTx := spendOutput(amount, 0x61, []wire.TransactionOutput{
		{Amount: depositAmount, Target: msigTarget},
		keyOutput(amount - depositAmount - fee),
	})
	if err := h.pool.Add(depositTx); err != nil {
		t.Fatalf("deposit add: %v", err)
	}
	h.mineBlock(0x02)
	if got := h.chain.LockedDepositAmount(); got != depositAmount {
		t.Fatalf("locked deposits: got %d, want %d", got, depositAmount)
	}

	interest := h.currency.CalculateInterest(depositAmount, 5)
	if interest == 0 {
		t.Fatal("interest of the test deposit is zero")
	}

	withdraw := func(extra byte) *coreutil.Tx {
		tx := &wire.Transaction{
			Version: wire.TransactionVersion1,
			Inputs: []wire.TransactionInput{
				&wire.MultisignatureInput{
					Amount:         depositAmount,
					SignatureCount: 1,
					OutputIndex:    0,
					Term:           5,
				},
			},
			Outputs: []wire.TransactionOutput{
				keyOutput(depositAmount + interest - fee),
			},
			Extra:      []byte{extra},
			Signatures: [][]crypto.Signature{{{1}}},
		}
		return coreutil.NewTx(tx)
	}

	// Spending before maturity fails block validation.
	early := withdraw(0x71)
	if err := h.pool.Add(early); err != nil {
		t.Fatalf("early withdrawal add: %v", err)
	}
	template, _, _, err := h.gen.GetBlockTemplate(h.miner, []byte{0x03})
	if err != nil {
		t.Fatalf("GetBlockTemplate: %v", err)
	}
	raw := h.buildRaw(template)
	result, err := h.chain.AddBlock(raw)
	if result != blockchain.AddRejected || !blockchain.IsRuleError(err, blockchain.ErrDepositLocked) {
		t.Fatalf("early withdrawal: got %v / %v, want ErrDepositLocked", result, err)
	}
	earlyHash, _ := early.Hash()
	h.pool.RemoveTransaction(earlyHash)

	// The deposit was created at height 13 with term 5: mine up to
	// height 17, then the withdrawal connects at height 18.
	h.mineBlocks(4, 0x04)

	before := h.chain.TotalGeneratedAmount()
	mature := withdraw(0x72)
	if err := h.pool.Add(mature); err != nil {
		t.Fatalf("mature withdrawal add: %v", err)
	}
	h.mineBlock(0x05)

	if got := h.chain.LockedDepositAmount(); got != 0 {
		t.Fatalf("locked deposits after withdrawal: got %d, want 0", got)
	}
	want := before + h.currency.BaseReward(before) + interest
	if got := h.chain.TotalGeneratedAmount(); got != want {
		t.Fatalf("emission after withdrawal: got %d, want %d (interest %d)", got, want, interest)
	}
}

func TestCheckpointBlocksForkBelow(t *testing.T) {
	// Build a short chain and pin its second block as a checkpoint of a
	// fresh deployment.
	source := newHarness(t, nil)
	source.mineBlocks(3, 0x01)
	pinned, err := source.chain.BlockHashByHeight(2)
	if err != nil {
		t.Fatalf("BlockHashByHeight: %v", err)
	}

	pinnedChain := newHarness(t, func(b *currency.Builder) {
		b.AddCheckpoint(2, pinned.String())
	})
	raws, err := source.chain.GetBlocksByHeight(1, 3)
	if err != nil {
		t.Fatalf("GetBlocksByHeight: %v", err)
	}
	for _, raw := range raws {
		if _, err := pinnedChain.chain.AddBlock(raw); err != nil {
			t.Fatalf("replay under checkpoint: %v", err)
		}
	}

	// A fork block at the checkpointed height is rejected outright.
	forkSource := newHarness(t, nil)
	if _, err := forkSource.chain.AddBlock(raws[0]); err != nil {
		t.Fatalf("replay on fork source: %v", err)
	}
	forkSource.mineBlock(0x7f)
	forkRaws, err := forkSource.chain.GetBlocksByHeight(2, 1)
	if err != nil {
		t.Fatalf("GetBlocksByHeight: %v", err)
	}

	result, err := pinnedChain.chain.AddBlock(forkRaws[0])
	if result != blockchain.AddRejected || !blockchain.IsRuleError(err, blockchain.ErrCheckpointMismatch) {
		t.Fatalf("fork below checkpoint: got %v / %v, want ErrCheckpointMismatch", result, err)
	}
}
