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

package types

import (
	"errors"
	"fmt"

	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
	"github.com/algorand/go-twochain/protocol"
)

// transactionOverhead is the fixed part of a transaction's size.
const transactionOverhead = crypto.DigestSize + 8

// Transaction is an opaque user transaction; consensus only orders it.
type Transaction struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Sender basics.Address `codec:"snd"`
	Nonce  uint64         `codec:"n"`
	Body   []byte         `codec:"b"`
}

// Size is the byte size counted against block limits.
func (t Transaction) Size() uint64 {
	return uint64(transactionOverhead + len(t.Body))
}

// BatchInfo describes a batch disseminated ahead of proposals.
type BatchInfo struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Author     basics.Address `codec:"a"`
	Epoch      basics.Epoch   `codec:"e"`
	BatchID    uint64         `codec:"id"`
	Digest     crypto.Digest  `codec:"d"`
	NumTxns    uint64         `codec:"nt"`
	NumBytes   uint64         `codec:"nb"`
	Expiration uint64         `codec:"x"`
}

// ToBeHashed implements the crypto.Hashable interface
func (bi BatchInfo) ToBeHashed() (protocol.HashID, []byte) {
	return protocol.BatchInfo, protocol.EncodeReflect(bi)
}

type batchBody struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Author basics.Address `codec:"a"`
	Txns   []Transaction  `codec:"txns"`
}

// ToBeHashed implements the crypto.Hashable interface
func (b batchBody) ToBeHashed() (protocol.HashID, []byte) {
	return protocol.PayloadBatch, protocol.EncodeReflect(b)
}

// Batch is a set of transactions referenced from proposals by digest.
type Batch struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Info BatchInfo     `codec:"i"`
	Txns []Transaction `codec:"txns"`
}

// MakeBatch computes the batch info for txns.
func MakeBatch(author basics.Address, epoch basics.Epoch, batchID uint64, txns []Transaction, expiration uint64) Batch {
	var size uint64
	for _, t := range txns {
		size += t.Size()
	}
	return Batch{
		Info: BatchInfo{
			Author:     author,
			Epoch:      epoch,
			BatchID:    batchID,
			Digest:     crypto.HashObj(batchBody{Author: author, Txns: txns}),
			NumTxns:    uint64(len(txns)),
			NumBytes:   size,
			Expiration: expiration,
		},
		Txns: txns,
	}
}

// Verify checks the info matches the transactions.
func (b Batch) Verify() error {
	if d := crypto.HashObj(batchBody{Author: b.Info.Author, Txns: b.Txns}); d != b.Info.Digest {
		return fmt.Errorf("batch %d digest mismatch", b.Info.BatchID)
	}
	if uint64(len(b.Txns)) != b.Info.NumTxns {
		return fmt.Errorf("batch %d has %d txns, info says %d", b.Info.BatchID, len(b.Txns), b.Info.NumTxns)
	}
	var size uint64
	for _, t := range b.Txns {
		size += t.Size()
	}
	if size != b.Info.NumBytes {
		return fmt.Errorf("batch %d has %d bytes, info says %d", b.Info.BatchID, size, b.Info.NumBytes)
	}
	return nil
}

// SignedBatchInfo is one validator's acknowledgement that it stored a batch.
type SignedBatchInfo struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Info      BatchInfo        `codec:"i"`
	Signer    basics.Address   `codec:"a"`
	Signature crypto.Signature `codec:"sig"`
}

// Verify checks the signature.
func (s SignedBatchInfo) Verify(v *ValidatorVerifier) error {
	return v.Verify(s.Signer, s.Info, s.Signature)
}

// ProofOfStore shows a quorum stored a batch, so a proposal may reference it
// without carrying the transactions.
type ProofOfStore struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Info       BatchInfo          `codec:"i"`
	Signatures AggregateSignature `codec:"sigs"`
}

// Verify checks the quorum signatures.
func (p ProofOfStore) Verify(v *ValidatorVerifier) error {
	if err := v.VerifyMultiSignatures(p.Info, p.Signatures); err != nil {
		return fmt.Errorf("proof of store for batch %d: %w", p.Info.BatchID, err)
	}
	return nil
}

// Payload is the body of a block: inline transactions and proofs of store.
type Payload struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Inline []Transaction  `codec:"in"`
	Proofs []ProofOfStore `codec:"pos"`
}

// IsEmpty is true when the payload orders nothing.
func (p Payload) IsEmpty() bool {
	return len(p.Inline) == 0 && len(p.Proofs) == 0
}

// NumTxns counts inline transactions and those referenced by proofs.
func (p Payload) NumTxns() uint64 {
	n := uint64(len(p.Inline))
	for _, pos := range p.Proofs {
		n += pos.Info.NumTxns
	}
	return n
}

// Size counts inline bytes and the bytes referenced by proofs.
func (p Payload) Size() uint64 {
	var n uint64
	for _, t := range p.Inline {
		n += t.Size()
	}
	for _, pos := range p.Proofs {
		n += pos.Info.NumBytes
	}
	return n
}

// ProofAuthors lists the authors of referenced batches, without duplicates.
func (p Payload) ProofAuthors() []basics.Address {
	seen := make(map[basics.Address]struct{})
	var out []basics.Address
	for _, pos := range p.Proofs {
		if _, ok := seen[pos.Info.Author]; ok {
			continue
		}
		seen[pos.Info.Author] = struct{}{}
		out = append(out, pos.Info.Author)
	}
	return out
}

// Verify checks every proof of store.
func (p Payload) Verify(v *ValidatorVerifier) error {
	for _, pos := range p.Proofs {
		if err := pos.Verify(v); err != nil {
			return err
		}
	}
	return nil
}

// ValidatorTxnKind identifies the validator transactions the chain knows.
type ValidatorTxnKind uint8

const (
	// ValidatorTxnUnknown is never valid.
	ValidatorTxnUnknown ValidatorTxnKind = iota
	// ValidatorTxnDKGResult publishes a distributed key generation transcript.
	ValidatorTxnDKGResult
	// ValidatorTxnJWKUpdate publishes observed JSON web keys.
	ValidatorTxnJWKUpdate
)

var errUnknownValidatorTxnKind = errors.New("unexpected validator transaction kind")

type validatorTxnSigningRepr struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Kind ValidatorTxnKind `codec:"k"`
	Data []byte           `codec:"d"`
}

// ToBeHashed implements the crypto.Hashable interface
func (r validatorTxnSigningRepr) ToBeHashed() (protocol.HashID, []byte) {
	return protocol.ValidatorTxn, protocol.EncodeReflect(r)
}

// ValidatorTransaction is a system transaction produced by a validator and
// carried in extended proposals.
type ValidatorTransaction struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Kind      ValidatorTxnKind `codec:"k"`
	Data      []byte           `codec:"d"`
	Signer    basics.Address   `codec:"a"`
	Signature crypto.Signature `codec:"sig"`
}

// MakeValidatorTransaction signs data with the validator's key.
func MakeValidatorTransaction(kind ValidatorTxnKind, data []byte, signer *crypto.SignatureSecrets) ValidatorTransaction {
	return ValidatorTransaction{
		Kind:      kind,
		Data:      data,
		Signer:    basics.AddressFromPublicKey(signer.PublicKey),
		Signature: signer.Sign(validatorTxnSigningRepr{Kind: kind, Data: data}),
	}
}

// Size is the byte size counted against per-block limits.
func (t ValidatorTransaction) Size() uint64 {
	return uint64(len(t.Data))
}

// KnownKind reports whether the kind is one the chain accepts.
func (t ValidatorTransaction) KnownKind() bool {
	return t.Kind == ValidatorTxnDKGResult || t.Kind == ValidatorTxnJWKUpdate
}

// Verify checks the kind and the signature.
func (t ValidatorTransaction) Verify(v *ValidatorVerifier) error {
	if !t.KnownKind() {
		return fmt.Errorf("%w: %d", errUnknownValidatorTxnKind, t.Kind)
	}
	return v.Verify(t.Signer, validatorTxnSigningRepr{Kind: t.Kind, Data: t.Data}, t.Signature)
}
