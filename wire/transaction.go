// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wire

import (
	"bytes"
	"io"

	"github.com/bytecoin-go/bytecoind/crypto"
	"github.com/pkg/errors"
)

// Transaction versions. Version 2 transactions are only accepted inside
// blocks whose major version is at least 2.
const (
	TransactionVersion1 = 1
	TransactionVersion2 = 2
)

// Input tags as they appear on the wire.
const (
	inputTagBase           = 0xff
	inputTagKey            = 0x02
	inputTagMultisignature = 0x03
)

// Output target tags as they appear on the wire.
const (
	outputTagKey            = 0x02
	outputTagMultisignature = 0x03
)

// TransactionInput is one of BaseInput, KeyInput or MultisignatureInput.
type TransactionInput interface {
	// inputTag returns the wire tag of the variant.
	inputTag() byte
}

// BaseInput is the single input of a coinbase transaction. It carries the
// index of the block the transaction rewards, which is also how the block
// index is recovered from a serialized block.
type BaseInput struct {
	BlockIndex uint32
}

// KeyInput spends a one-time key output and proves it with a ring
// signature. OutputOffsets reference the global outputs of Amount
// delta-encoded: the first offset is absolute, each following one is
// relative to its predecessor.
type KeyInput struct {
	Amount        uint64
	OutputOffsets []uint32
	KeyImage      crypto.KeyImage
}

// MultisignatureInput spends a multisignature output of the same Amount.
// Term is non-zero for deposits and must match the referenced output.
type MultisignatureInput struct {
	Amount         uint64
	SignatureCount uint8
	OutputIndex    uint32
	Term           uint32
}

func (in *BaseInput) inputTag() byte           { return inputTagBase }
func (in *KeyInput) inputTag() byte            { return inputTagKey }
func (in *MultisignatureInput) inputTag() byte { return inputTagMultisignature }

// KeyOutput locks an amount to a one-time public key.
type KeyOutput struct {
	Key crypto.PublicKey
}

// MultisignatureOutput locks an amount to RequiredSignatureCount of Keys.
// A non-zero Term makes the output a deposit that cannot be spent before
// Term blocks have passed since its creation.
type MultisignatureOutput struct {
	Keys                   []crypto.PublicKey
	RequiredSignatureCount uint8
	Term                   uint32
}

// OutputTarget is one of KeyOutput or MultisignatureOutput.
type OutputTarget interface {
	outputTag() byte
}

func (out *KeyOutput) outputTag() byte            { return outputTagKey }
func (out *MultisignatureOutput) outputTag() byte { return outputTagMultisignature }

// TransactionOutput pairs an amount with its locking target.
type TransactionOutput struct {
	Amount uint64
	Target OutputTarget
}

// Transaction is the consensus transaction. Signatures holds one group per
// input: the ring signatures for key inputs and the provided signatures for
// multisignature inputs. A coinbase carries no signature groups.
type Transaction struct {
	Version    uint8
	UnlockTime uint64
	Inputs     []TransactionInput
	Outputs    []TransactionOutput
	Extra      []byte
	Signatures [][]crypto.Signature
}

// IsCoinbase returns whether the transaction is a coinbase, which is the
// case exactly when its single input is a BaseInput.
func (tx *Transaction) IsCoinbase() bool {
	if len(tx.Inputs) != 1 {
		return false
	}
	_, ok := tx.Inputs[0].(*BaseInput)
	return ok
}

// SerializePrefix writes the transaction prefix (everything except the
// signatures) to w. The prefix is what transaction prefix hashes and ring
// signature challenges commit to.
func (tx *Transaction) SerializePrefix(w io.Writer) error {
	if err := WriteVarInt(w, uint64(tx.Version)); err != nil {
		return err
	}
	if err := WriteVarInt(w, tx.UnlockTime); err != nil {
		return err
	}

	if err := WriteVarInt(w, uint64(len(tx.Inputs))); err != nil {
		return err
	}
	for _, input := range tx.Inputs {
		if err := writeTransactionInput(w, input); err != nil {
			return err
		}
	}

	if err := WriteVarInt(w, uint64(len(tx.Outputs))); err != nil {
		return err
	}
	for i := range tx.Outputs {
		if err := writeTransactionOutput(w, &tx.Outputs[i]); err != nil {
			return err
		}
	}

	return writeByteSlice(w, tx.Extra)
}

// Serialize writes the full transaction including signatures to w.
func (tx *Transaction) Serialize(w io.Writer) error {
	if err := tx.SerializePrefix(w); err != nil {
		return err
	}

	// The signature group sizes are implied by the inputs, so no counts
	// are written.
	for _, group := range tx.Signatures {
		for i := range group {
			if _, err := w.Write(group[i][:]); err != nil {
				return err
			}
		}
	}
	return nil
}

// Deserialize reads a full transaction from r. The signature group sizes
// are derived from the inputs: the ring size for key inputs, the declared
// signature count for multisignature inputs, none for the base input.
func (tx *Transaction) Deserialize(r io.Reader) error {
	if err := tx.deserializePrefix(r); err != nil {
		return err
	}

	if len(tx.Inputs) == 0 {
		tx.Signatures = nil
		return nil
	}

	if tx.IsCoinbase() {
		tx.Signatures = nil
		return nil
	}

	tx.Signatures = make([][]crypto.Signature, len(tx.Inputs))
	for i, input := range tx.Inputs {
		var count int
		switch in := input.(type) {
		case *KeyInput:
			count = len(in.OutputOffsets)
		case *MultisignatureInput:
			count = int(in.SignatureCount)
		case *BaseInput:
			count = 0
		}
		group := make([]crypto.Signature, count)
		for j := range group {
			if _, err := io.ReadFull(r, group[j][:]); err != nil {
				return err
			}
		}
		tx.Signatures[i] = group
	}
	return nil
}

func (tx *Transaction) deserializePrefix(r io.Reader) error {
	version, err := ReadVarInt(r)
	if err != nil {
		return err
	}
	if version == 0 || version > 0xff {
		return errors.Errorf("invalid transaction version %d", version)
	}
	tx.Version = uint8(version)

	if tx.UnlockTime, err = ReadVarInt(r); err != nil {
		return err
	}

	inputCount, err := readCount(r, "transaction input")
	if err != nil {
		return err
	}
	tx.Inputs = make([]TransactionInput, inputCount)
	for i := range tx.Inputs {
		if tx.Inputs[i], err = readTransactionInput(r); err != nil {
			return err
		}
	}

	outputCount, err := readCount(r, "transaction output")
	if err != nil {
		return err
	}
	tx.Outputs = make([]TransactionOutput, outputCount)
	for i := range tx.Outputs {
		if err = readTransactionOutput(r, &tx.Outputs[i]); err != nil {
			return err
		}
	}

	tx.Extra, err = readByteSlice(r, "transaction extra")
	return err
}

// SerializeSize returns the number of bytes the fully serialized
// transaction occupies.
func (tx *Transaction) SerializeSize() int {
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return 0
	}
	return buf.Len()
}

func writeTransactionInput(w io.Writer, input TransactionInput) error {
	if _, err := w.Write([]byte{input.inputTag()}); err != nil {
		return err
	}

	switch in := input.(type) {
	case *BaseInput:
		return WriteVarInt(w, uint64(in.BlockIndex))

	case *KeyInput:
		if err := WriteVarInt(w, in.Amount); err != nil {
			return err
		}
		if err := WriteVarInt(w, uint64(len(in.OutputOffsets))); err != nil {
			return err
		}
		for _, offset := range in.OutputOffsets {
			if err := WriteVarInt(w, uint64(offset)); err != nil {
				return err
			}
		}
		_, err := w.Write(in.KeyImage[:])
		return err

	case *MultisignatureInput:
		if err := WriteVarInt(w, in.Amount); err != nil {
			return err
		}
		if err := WriteVarInt(w, uint64(in.SignatureCount)); err != nil {
			return err
		}
		if err := WriteVarInt(w, uint64(in.OutputIndex)); err != nil {
			return err
		}
		return WriteVarInt(w, uint64(in.Term))

	default:
		return errors.Errorf("unknown transaction input type %T", input)
	}
}

func readTransactionInput(r io.Reader) (TransactionInput, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, err
	}

	switch tag[0] {
	case inputTagBase:
		blockIndex, err := ReadVarInt(r)
		if err != nil {
			return nil, err
		}
		if blockIndex > 0xffffffff {
			return nil, errors.Errorf("base input block index %d out of range", blockIndex)
		}
		return &BaseInput{BlockIndex: uint32(blockIndex)}, nil

	case inputTagKey:
		in := &KeyInput{}
		var err error
		if in.Amount, err = ReadVarInt(r); err != nil {
			return nil, err
		}
		offsetCount, err := readCount(r, "key input offset")
		if err != nil {
			return nil, err
		}
		in.OutputOffsets = make([]uint32, offsetCount)
		for i := range in.OutputOffsets {
			offset, err := ReadVarInt(r)
			if err != nil {
				return nil, err
			}
			if offset > 0xffffffff {
				return nil, errors.Errorf("output offset %d out of range", offset)
			}
			in.OutputOffsets[i] = uint32(offset)
		}
		if _, err := io.ReadFull(r, in.KeyImage[:]); err != nil {
			return nil, err
		}
		return in, nil

	case inputTagMultisignature:
		in := &MultisignatureInput{}
		var err error
		if in.Amount, err = ReadVarInt(r); err != nil {
			return nil, err
		}
		signatureCount, err := ReadVarInt(r)
		if err != nil {
			return nil, err
		}
		if signatureCount > 0xff {
			return nil, errors.Errorf("multisignature input signature count %d out of range", signatureCount)
		}
		in.SignatureCount = uint8(signatureCount)
		outputIndex, err := ReadVarInt(r)
		if err != nil {
			return nil, err
		}
		if outputIndex > 0xffffffff {
			return nil, errors.Errorf("multisignature input output index %d out of range", outputIndex)
		}
		in.OutputIndex = uint32(outputIndex)
		term, err := ReadVarInt(r)
		if err != nil {
			return nil, err
		}
		if term > 0xffffffff {
			return nil, errors.Errorf("multisignature input term %d out of range", term)
		}
		in.Term = uint32(term)
		return in, nil

	default:
		return nil, errors.Errorf("unknown transaction input tag %#x", tag[0])
	}
}

func writeTransactionOutput(w io.Writer, output *TransactionOutput) error {
	if err := WriteVarInt(w, output.Amount); err != nil {
		return err
	}
	if output.Target == nil {
		return errors.New("transaction output has no target")
	}
	if _, err := w.Write([]byte{output.Target.outputTag()}); err != nil {
		return err
	}

	switch target := output.Target.(type) {
	case *KeyOutput:
		_, err := w.Write(target.Key[:])
		return err

	case *MultisignatureOutput:
		if err := WriteVarInt(w, uint64(len(target.Keys))); err != nil {
			return err
		}
		for i := range target.Keys {
			if _, err := w.Write(target.Keys[i][:]); err != nil {
				return err
			}
		}
		if err := WriteVarInt(w, uint64(target.RequiredSignatureCount)); err != nil {
			return err
		}
		return WriteVarInt(w, uint64(target.Term))

	default:
		return errors.Errorf("unknown transaction output target type %T", target)
	}
}

func readTransactionOutput(r io.Reader, output *TransactionOutput) error {
	var err error
	if output.Amount, err = ReadVarInt(r); err != nil {
		return err
	}

	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return err
	}

	switch tag[0] {
	case outputTagKey:
		target := &KeyOutput{}
		if _, err := io.ReadFull(r, target.Key[:]); err != nil {
			return err
		}
		output.Target = target
		return nil

	case outputTagMultisignature:
		target := &MultisignatureOutput{}
		keyCount, err := readCount(r, "multisignature output key")
		if err != nil {
			return err
		}
		target.Keys = make([]crypto.PublicKey, keyCount)
		for i := range target.Keys {
			if _, err := io.ReadFull(r, target.Keys[i][:]); err != nil {
				return err
			}
		}
		requiredCount, err := ReadVarInt(r)
		if err != nil {
			return err
		}
		if requiredCount > 0xff {
			return errors.Errorf("multisignature output required count %d out of range", requiredCount)
		}
		target.RequiredSignatureCount = uint8(requiredCount)
		term, err := ReadVarInt(r)
		if err != nil {
			return err
		}
		if term > 0xffffffff {
			return errors.Errorf("multisignature output term %d out of range", term)
		}
		target.Term = uint32(term)
		output.Target = target
		return nil

	default:
		return errors.Errorf("unknown transaction output tag %#x", tag[0])
	}
}
