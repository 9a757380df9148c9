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

// Package types holds the consensus data model: blocks, votes, certificates
// and the messages exchanged between validators.
package types

import (
	"fmt"

	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
	"github.com/algorand/go-twochain/protocol"
)

// BlockInfo summarizes a block and its execution result.
type BlockInfo struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Epoch           basics.Epoch  `codec:"e"`
	Round           basics.Round  `codec:"r"`
	ID              crypto.Digest `codec:"id"`
	ExecutedStateID crypto.Digest `codec:"s"`
	Version         uint64        `codec:"v"`
	// Timestamp in microseconds.
	Timestamp uint64 `codec:"t"`
}

// ToBeHashed implements the crypto.Hashable interface
func (bi BlockInfo) ToBeHashed() (protocol.HashID, []byte) {
	return protocol.BlockInfo, protocol.EncodeMsgp(&bi)
}

// IsEmpty is true for the placeholder carried by non-committing ledger infos.
func (bi BlockInfo) IsEmpty() bool {
	return bi.MsgIsZero()
}

// MatchOrdered compares the fields fixed at ordering time, leaving out
// the execution result.
func (bi BlockInfo) MatchOrdered(other BlockInfo) bool {
	return bi.Epoch == other.Epoch && bi.Round == other.Round && bi.ID == other.ID && bi.Timestamp == other.Timestamp
}

// OrderedOnly drops the execution result.
func (bi BlockInfo) OrderedOnly() BlockInfo {
	bi.ExecutedStateID = crypto.Digest{}
	bi.Version = 0
	return bi
}

func (bi BlockInfo) String() string {
	return fmt.Sprintf("[epoch %d round %d id %s]", bi.Epoch, bi.Round, bi.ID.ShortString())
}

// VoteData is what a vote certifies: the proposed block and its parent.
type VoteData struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Proposed BlockInfo `codec:"p"`
	Parent   BlockInfo `codec:"pa"`
}

// ToBeHashed implements the crypto.Hashable interface
func (vd VoteData) ToBeHashed() (protocol.HashID, []byte) {
	return protocol.VoteData, protocol.EncodeReflect(vd)
}

// Hash is the consensus data hash carried by the ledger info of a vote.
func (vd VoteData) Hash() crypto.Digest {
	return crypto.HashObj(vd)
}

// Verify checks the parent relation.
func (vd VoteData) Verify() error {
	if vd.Parent.Epoch != vd.Proposed.Epoch {
		return fmt.Errorf("parent epoch %d != proposed epoch %d", vd.Parent.Epoch, vd.Proposed.Epoch)
	}
	if vd.Parent.Round >= vd.Proposed.Round {
		return fmt.Errorf("parent round %d not below proposed round %d", vd.Parent.Round, vd.Proposed.Round)
	}
	if vd.Parent.Timestamp > vd.Proposed.Timestamp {
		return fmt.Errorf("parent timestamp %d after proposed timestamp %d", vd.Parent.Timestamp, vd.Proposed.Timestamp)
	}
	return nil
}

// LedgerInfo is the signed payload of votes and order votes.
type LedgerInfo struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	CommitInfo        BlockInfo     `codec:"ci"`
	ConsensusDataHash crypto.Digest `codec:"h"`
}

// ToBeHashed implements the crypto.Hashable interface
func (li LedgerInfo) ToBeHashed() (protocol.HashID, []byte) {
	return protocol.LedgerInfo, protocol.EncodeMsgp(&li)
}

// Digest identifies a ledger info; votes aggregate per digest.
func (li LedgerInfo) Digest() crypto.Digest {
	return crypto.HashObj(li)
}

// PartialSignature is one signer's share of an aggregate.
type PartialSignature struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Signer basics.Address   `codec:"a"`
	Sig    crypto.Signature `codec:"s"`
}

// AggregateSignature is a list of signatures sorted by signer.
type AggregateSignature struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Sigs []PartialSignature `codec:"sigs"`
}

// Add inserts or replaces the signature of signer, keeping the order.
func (a *AggregateSignature) Add(signer basics.Address, sig crypto.Signature) {
	for i := range a.Sigs {
		if a.Sigs[i].Signer == signer {
			a.Sigs[i].Sig = sig
			return
		}
		if signer.Less(a.Sigs[i].Signer) {
			a.Sigs = append(a.Sigs, PartialSignature{})
			copy(a.Sigs[i+1:], a.Sigs[i:])
			a.Sigs[i] = PartialSignature{Signer: signer, Sig: sig}
			return
		}
	}
	a.Sigs = append(a.Sigs, PartialSignature{Signer: signer, Sig: sig})
}

// Signers lists the signers in order.
func (a AggregateSignature) Signers() []basics.Address {
	out := make([]basics.Address, len(a.Sigs))
	for i, ps := range a.Sigs {
		out[i] = ps.Signer
	}
	return out
}

// Len is the number of signatures.
func (a AggregateSignature) Len() int {
	return len(a.Sigs)
}

// Clone returns a deep copy.
func (a AggregateSignature) Clone() AggregateSignature {
	return AggregateSignature{Sigs: append([]PartialSignature(nil), a.Sigs...)}
}

// LedgerInfoWithSignatures is a ledger info with a quorum of signatures.
type LedgerInfoWithSignatures struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	LedgerInfo LedgerInfo         `codec:"li"`
	Signatures AggregateSignature `codec:"sig"`
}

// Verify checks the signatures carry a quorum.
func (l LedgerInfoWithSignatures) Verify(v *ValidatorVerifier) error {
	return v.VerifyMultiSignatures(l.LedgerInfo, l.Signatures)
}
