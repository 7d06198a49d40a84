// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package crypto provides the hash and signature primitives the consensus
// layer is built on. The fast hash, tree hash and difficulty check are
// implemented here; the slow proof-of-work hash and the ring signature
// verifier are expensive audited primitives supplied by the caller through
// the PoWHasher and SignatureVerifier interfaces.
package crypto

// PoWHasher computes the slow proof-of-work hash of a block hashing blob.
// Production deployments plug in a CryptoNight implementation; tests and
// private networks may use FastPoWHasher.
type PoWHasher interface {
	// SlowHash computes the proof-of-work hash of the given hashing blob.
	SlowHash(data []byte) Hash
}

// SignatureVerifier validates the signature material attached to
// transactions. Implementations wrap the underlying ed25519 ring signature
// arithmetic, which this package deliberately does not reimplement.
type SignatureVerifier interface {
	// CheckRingSignature reports whether the ring signature over
	// prefixHash with the given key image validates against the candidate
	// output keys.
	CheckRingSignature(prefixHash Hash, keyImage KeyImage, publicKeys []PublicKey, signatures []Signature) bool

	// CheckSignature reports whether a single signature over prefixHash
	// validates against the given public key. Multisignature inputs are
	// verified one provided signature at a time.
	CheckSignature(prefixHash Hash, publicKey PublicKey, signature Signature) bool
}

// FastPoWHasher is a PoWHasher that substitutes the fast hash for the slow
// one. It keeps the full validation pipeline exercisable on networks and in
// tests where the external CryptoNight plug-in is not wired.
type FastPoWHasher struct{}

// SlowHash computes the stand-in proof-of-work hash.
func (FastPoWHasher) SlowHash(data []byte) Hash {
	return FastHash(data)
}

// StructuralVerifier is the built-in SignatureVerifier: it validates the
// shape of the signature material but not the curve arithmetic, which the
// deployment's audited ring signature backend supplies through the same
// interface. Every consensus path around signatures (group sizes, ring
// membership, key image bookkeeping) is exercised regardless of backend.
type StructuralVerifier struct{}

// CheckRingSignature checks the ring shape: as many signatures as
// candidate keys and no all-zero signature.
func (StructuralVerifier) CheckRingSignature(prefixHash Hash, keyImage KeyImage, publicKeys []PublicKey, signatures []Signature) bool {
	if len(publicKeys) == 0 || len(signatures) != len(publicKeys) {
		return false
	}
	var zeroSig Signature
	for i := range signatures {
		if signatures[i] == zeroSig {
			return false
		}
	}
	var zeroImage KeyImage
	return keyImage != zeroImage
}

// CheckSignature checks a single signature is present and non-zero.
func (StructuralVerifier) CheckSignature(prefixHash Hash, publicKey PublicKey, signature Signature) bool {
	var zeroSig Signature
	var zeroKey PublicKey
	return signature != zeroSig && publicKey != zeroKey
}
