// Copyright (C) 2019-2024 Algorand, Inc.
// This file is part of go-twochain
//
// go-twochain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// go-twochain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with go-twochain.  If not, see <https://www.gnu.org/licenses/>.

package crypto

import (
	"bytes"

	"github.com/hdevalence/ed25519consensus"
	"golang.org/x/crypto/ed25519"
)

// A Seed holds the entropy needed to generate cryptographic keys.
type Seed [32]byte

// PublicKey is an ed25519 public key, used to verify validator signatures.
type PublicKey [ed25519.PublicKeySize]byte

// Signature is an ed25519 signature.
type Signature [ed25519.SignatureSize]byte

// BlankSignature is an empty signature structure, containing nothing but zeroes
var BlankSignature = Signature{}

// Blank tests to see if the given signature contains only zeros
func (s *Signature) Blank() bool {
	return (*s) == BlankSignature
}

// SignatureSecrets are used by an entity to produce unforgeable signatures over
// a message.
type SignatureSecrets struct {
	PublicKey
	sk ed25519.PrivateKey
}

// GenerateSignatureSecrets creates SignatureSecrets from a source of entropy.
func GenerateSignatureSecrets(seed Seed) *SignatureSecrets {
	sk := ed25519.NewKeyFromSeed(seed[:])
	var pk PublicKey
	copy(pk[:], sk.Public().(ed25519.PublicKey))
	return &SignatureSecrets{PublicKey: pk, sk: sk}
}

// Sign produces a cryptographic Signature of a Hashable message, given
// cryptographic secrets.
func (s *SignatureSecrets) Sign(message Hashable) Signature {
	return s.SignBytes(HashRep(message))
}

// SignBytes signs a message directly, without first hashing.
// Caller is responsible for domain separation.
func (s *SignatureSecrets) SignBytes(message []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(s.sk, message))
	return sig
}

// Verify verifies that some Hashable signature was signed under the key.
func (pk PublicKey) Verify(message Hashable, sig Signature) bool {
	return pk.VerifyBytes(HashRep(message), sig)
}

// VerifyBytes verifies a signature over raw bytes. Non-canonical encodings
// and small-order keys are rejected before the curve check.
func (pk PublicKey) VerifyBytes(message []byte, sig Signature) bool {
	if !isCanonicalPoint(pk) || !isCanonicalPoint([32]byte(sig[:32])) || hasSmallOrder(pk) {
		return false
	}
	return ed25519consensus.Verify(pk[:], message, sig[:])
}

// Check that Y is canonical, using the succeed-fast algorithm from
// the "Taming the many EdDSAs" paper.
func isCanonicalY(p [32]byte) bool {
	if p[0] < 237 {
		return true
	}
	for i := 1; i < 31; i++ {
		if p[i] != 255 {
			return true
		}
	}
	return (p[31] | 128) != 255
}

// isCanonicalPoint is a variable-time check that returns true if the
// 32-byte ed25519 point encoding is canonical.
func isCanonicalPoint(p [32]byte) bool {
	if !isCanonicalY(p) {
		return false
	}

	// Points 9 and 10 from Table 1 of the "Taming the many EdDSAs" paper.
	if p == [32]byte{ // (-0, 1)
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x80,
	} || p == [32]byte{ // (-0, 2^255-20)
		0xec, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	} {
		return false
	}

	return true
}

// from libsodium ge25519_has_small_order
var smallOrderPoints = [][32]byte{
	/* 0 (order 4) */ {
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	/* 1 (order 1) */ {
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	/* order 8 */ {
		0x26, 0xe8, 0x95, 0x8f, 0xc2, 0xb2, 0x27, 0xb0, 0x45, 0xc3, 0xf4,
		0x89, 0xf2, 0xef, 0x98, 0xf0, 0xd5, 0xdf, 0xac, 0x05, 0xd3, 0xc6,
		0x33, 0x39, 0xb1, 0x38, 0x02, 0x88, 0x6d, 0x53, 0xfc, 0x05},
	/* order 8 */ {
		0xc7, 0x17, 0x6a, 0x70, 0x3d, 0x4d, 0xd8, 0x4f, 0xba, 0x3c, 0x0b,
		0x76, 0x0d, 0x10, 0x67, 0x0f, 0x2a, 0x20, 0x53, 0xfa, 0x2c, 0x39,
		0xcc, 0xc6, 0x4e, 0xc7, 0xfd, 0x77, 0x92, 0xac, 0x03, 0x7a},
	/* p-1 (order 2) */ {
		0xec, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f},
	/* p (=0, order 4) */ {
		0xed, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f},
	/* p+1 (=1, order 1) */ {
		0xee, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f},
}

// hasSmallOrder checks if a point is in the small-order blacklist.
func hasSmallOrder(p [32]byte) bool {
	for _, point := range smallOrderPoints {
		if !bytes.Equal(p[:31], point[:31]) {
			continue
		}
		// ignore the sign bit of the last byte
		if (p[31] & 0x7f) == point[31] {
			return true
		}
	}
	return false
}
