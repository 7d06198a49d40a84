// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package crypto

import (
	"encoding/hex"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

// HashSize is the length in bytes of a hash digest.
const HashSize = 32

// MaxHashStringSize is the maximum length of a Hash hash string.
const MaxHashStringSize = HashSize * 2

// ErrHashStrSize describes an error that indicates the caller specified a
// hash string whose length is not exactly MaxHashStringSize characters.
var ErrHashStrSize = errors.Errorf("max hash string length is %d bytes", MaxHashStringSize)

// Hash is used in several of the consensus messages and common structures. It
// typically represents the Keccak digest of serialized data.
type Hash [HashSize]byte

// ZeroHash is the Hash value of all zero bytes, defined here for convenience.
var ZeroHash Hash

// String returns the Hash as the hexadecimal string of the byte-encoded hash.
// Unlike bitcoin-family coins the byte order is not reversed for display.
func (hash Hash) String() string {
	return hex.EncodeToString(hash[:])
}

// CloneBytes returns a copy of the bytes which represent the hash as a byte
// slice.
func (hash *Hash) CloneBytes() []byte {
	newHash := make([]byte, HashSize)
	copy(newHash, hash[:])
	return newHash
}

// SetBytes sets the bytes which represent the hash. An error is returned if
// the number of bytes passed in is not HashSize.
func (hash *Hash) SetBytes(newHash []byte) error {
	nhlen := len(newHash)
	if nhlen != HashSize {
		return errors.Errorf("invalid hash length of %d, want %d", nhlen, HashSize)
	}
	copy(hash[:], newHash)
	return nil
}

// IsEqual returns true if target is the same as hash.
func (hash *Hash) IsEqual(target *Hash) bool {
	if hash == nil && target == nil {
		return true
	}
	if hash == nil || target == nil {
		return false
	}
	return *hash == *target
}

// NewHash returns a new Hash from a byte slice. An error is returned if the
// number of bytes passed in is not HashSize.
func NewHash(newHash []byte) (*Hash, error) {
	var sh Hash
	err := sh.SetBytes(newHash)
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

// NewHashFromStr creates a Hash from a hash string. The string should be the
// hexadecimal string of a byte-encoded hash.
func NewHashFromStr(hash string) (*Hash, error) {
	ret := new(Hash)
	err := Decode(ret, hash)
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// Decode decodes the byte-encoded hexadecimal string encoding of a hash to a
// destination.
func Decode(dst *Hash, src string) error {
	if len(src) != MaxHashStringSize {
		return ErrHashStrSize
	}

	rawBytes, err := hex.DecodeString(src)
	if err != nil {
		return errors.Wrapf(err, "couldn't decode hash hex %q", src)
	}
	return dst.SetBytes(rawBytes)
}

// FastHash computes the CryptoNote fast hash (legacy Keccak-256) of the
// given data. This is the cn_fast_hash primitive every object hash in the
// consensus layer is built on.
func FastHash(data []byte) Hash {
	var hash Hash
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	copy(hash[:], h.Sum(nil))
	return hash
}

// FastHashSlices computes the fast hash over the concatenation of the given
// byte slices without materializing the joined buffer.
func FastHashSlices(slices ...[]byte) Hash {
	var hash Hash
	h := sha3.NewLegacyKeccak256()
	for _, s := range slices {
		h.Write(s)
	}
	copy(hash[:], h.Sum(nil))
	return hash
}
