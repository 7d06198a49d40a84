// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package crypto

import (
	"encoding/hex"

	"github.com/pkg/errors"
)

const (
	// PublicKeySize is the length in bytes of a compressed curve point.
	PublicKeySize = 32

	// SecretKeySize is the length in bytes of a scalar.
	SecretKeySize = 32

	// KeyImageSize is the length in bytes of a key image.
	KeyImageSize = 32

	// SignatureSize is the length in bytes of a Schnorr-style signature
	// pair (c, r).
	SignatureSize = 64
)

// PublicKey is an opaque compressed ed25519 curve point.
type PublicKey [PublicKeySize]byte

// SecretKey is an opaque ed25519 scalar.
type SecretKey [SecretKeySize]byte

// KeyImage is the curve point derived from a one-time spend key. Two inputs
// spending the same output always produce the same key image, which is what
// makes it usable as a double-spend fingerprint.
type KeyImage [KeyImageSize]byte

// Signature is an opaque (c, r) scalar pair.
type Signature [SignatureSize]byte

// String returns the hexadecimal encoding of the public key.
func (k PublicKey) String() string {
	return hex.EncodeToString(k[:])
}

// String returns the hexadecimal encoding of the key image.
func (ki KeyImage) String() string {
	return hex.EncodeToString(ki[:])
}

// NewPublicKeyFromStr parses a hexadecimal string into a public key.
func NewPublicKeyFromStr(src string) (*PublicKey, error) {
	rawBytes, err := hex.DecodeString(src)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't decode public key hex %q", src)
	}
	if len(rawBytes) != PublicKeySize {
		return nil, errors.Errorf("invalid public key length of %d, want %d",
			len(rawBytes), PublicKeySize)
	}
	var key PublicKey
	copy(key[:], rawBytes)
	return &key, nil
}

// Address is the pair of public keys a payment is addressed to.
type Address struct {
	SpendPublicKey PublicKey
	ViewPublicKey  PublicKey
}
