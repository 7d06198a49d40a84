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

// Transaction extra field tags.
const (
	extraTagPadding        = 0x00
	extraTagPublicKey      = 0x01
	extraTagNonce          = 0x02
	extraTagMergeMiningTag = 0x03

	// MaxExtraNonceSize is the largest extra nonce blob a transaction
	// extra field may carry.
	MaxExtraNonceSize = 255

	// extraPaddingMaxCount caps the number of zero padding bytes.
	extraPaddingMaxCount = 255
)

// MergeMiningTag commits a merge-mined chain to a parent block's coinbase.
// Depth is the length of the blockchain branch proving the commitment.
type MergeMiningTag struct {
	Depth      uint64
	MerkleRoot crypto.Hash
}

// ExtraFields is the parsed view of a transaction's extra blob.
type ExtraFields struct {
	PublicKey      *crypto.PublicKey
	Nonce          []byte
	MergeMiningTag *MergeMiningTag
}

// ParseExtra walks a transaction extra blob and extracts the known fields.
// Unknown tags terminate the walk without error since extra is free-form by
// design; a malformed known field is an error.
func ParseExtra(extra []byte) (*ExtraFields, error) {
	fields := &ExtraFields{}
	r := bytes.NewReader(extra)

	for r.Len() > 0 {
		tag, err := r.ReadByte()
		if err != nil {
			return nil, err
		}

		switch tag {
		case extraTagPadding:
			// All remaining bytes must be zero.
			count := 1
			for r.Len() > 0 {
				b, err := r.ReadByte()
				if err != nil {
					return nil, err
				}
				if b != 0 {
					return nil, errors.New("non-zero byte inside extra padding")
				}
				count++
				if count > extraPaddingMaxCount {
					return nil, errors.New("extra padding too long")
				}
			}

		case extraTagPublicKey:
			var key crypto.PublicKey
			if _, err := io.ReadFull(r, key[:]); err != nil {
				return nil, errors.Wrap(err, "short extra public key")
			}
			fields.PublicKey = &key

		case extraTagNonce:
			size, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			nonce := make([]byte, size)
			if _, err := io.ReadFull(r, nonce); err != nil {
				return nil, errors.Wrap(err, "short extra nonce")
			}
			fields.Nonce = nonce

		case extraTagMergeMiningTag:
			size, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, errors.Wrap(err, "short merge mining tag")
			}
			br := bytes.NewReader(body)
			tag := &MergeMiningTag{}
			if tag.Depth, err = ReadVarInt(br); err != nil {
				return nil, err
			}
			if err := readHash(br, &tag.MerkleRoot); err != nil {
				return nil, errors.Wrap(err, "short merge mining merkle root")
			}
			fields.MergeMiningTag = tag

		default:
			// Free-form data from other software; stop parsing.
			return fields, nil
		}
	}

	return fields, nil
}

// BuildExtra assembles an extra blob from the given fields. Nil fields are
// omitted.
func BuildExtra(publicKey *crypto.PublicKey, nonce []byte, mmTag *MergeMiningTag) ([]byte, error) {
	if len(nonce) > MaxExtraNonceSize {
		return nil, errors.Errorf("extra nonce of %d bytes exceeds limit of %d",
			len(nonce), MaxExtraNonceSize)
	}

	var buf bytes.Buffer
	if publicKey != nil {
		buf.WriteByte(extraTagPublicKey)
		buf.Write(publicKey[:])
	}
	if nonce != nil {
		buf.WriteByte(extraTagNonce)
		buf.WriteByte(byte(len(nonce)))
		buf.Write(nonce)
	}
	if mmTag != nil {
		var body bytes.Buffer
		if err := WriteVarInt(&body, mmTag.Depth); err != nil {
			return nil, err
		}
		body.Write(mmTag.MerkleRoot[:])
		buf.WriteByte(extraTagMergeMiningTag)
		buf.WriteByte(byte(body.Len()))
		buf.Write(body.Bytes())
	}
	return buf.Bytes(), nil
}
