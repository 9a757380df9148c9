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
	"fmt"

	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
)

// Vote is a validator's signature on the ledger info of a proposed block,
// optionally marked as a timeout by an attached signed two-chain timeout.
type Vote struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	VoteData   VoteData         `codec:"vd"`
	Author     basics.Address   `codec:"a"`
	LedgerInfo LedgerInfo       `codec:"li"`
	Signature  crypto.Signature `codec:"sig"`

	Timeout          *TwoChainTimeout `codec:"to"`
	TimeoutSignature crypto.Signature `codec:"tosig"`
}

// MakeVote assembles a signed vote.
func MakeVote(vd VoteData, author basics.Address, li LedgerInfo, sig crypto.Signature) Vote {
	return Vote{VoteData: vd, Author: author, LedgerInfo: li, Signature: sig}
}

// Round of the voted block.
func (v Vote) Round() basics.Round {
	return v.VoteData.Proposed.Round
}

// Epoch of the voted block.
func (v Vote) Epoch() basics.Epoch {
	return v.VoteData.Proposed.Epoch
}

// IsTimeout is true when the vote carries a timeout signature.
func (v Vote) IsTimeout() bool {
	return v.Timeout != nil
}

// GenerateTimeout builds the timeout for this vote's round.
func (v Vote) GenerateTimeout(hqc QuorumCert) TwoChainTimeout {
	return TwoChainTimeout{Epoch: v.Epoch(), Round: v.Round(), QuorumCert: hqc}
}

// AddTimeout marks the vote as a timeout.
func (v *Vote) AddTimeout(t TwoChainTimeout, sig crypto.Signature) {
	v.Timeout = &t
	v.TimeoutSignature = sig
}

// Verify checks the vote's signatures against the validator set.
func (v Vote) Verify(verifier *ValidatorVerifier) error {
	if v.LedgerInfo.ConsensusDataHash != v.VoteData.Hash() {
		return errConsensusDataHash
	}
	if err := verifier.Verify(v.Author, v.LedgerInfo, v.Signature); err != nil {
		return fmt.Errorf("vote for round %d: %w", v.Round(), err)
	}
	if v.Timeout != nil {
		if v.Timeout.Epoch != v.Epoch() || v.Timeout.Round != v.Round() {
			return fmt.Errorf("vote for round %d carries timeout for epoch %d round %d", v.Round(), v.Timeout.Epoch, v.Timeout.Round)
		}
		if err := v.Timeout.Verify(verifier); err != nil {
			return err
		}
		if err := verifier.Verify(v.Author, v.Timeout.SigningFormat(), v.TimeoutSignature); err != nil {
			return fmt.Errorf("timeout of vote for round %d: %w", v.Round(), err)
		}
	}
	return v.VoteData.Verify()
}

func (v Vote) String() string {
	timeout := ""
	if v.IsTimeout() {
		timeout = " timeout"
	}
	return fmt.Sprintf("Vote(%s on %v%s)", v.Author.ShortString(), v.VoteData.Proposed, timeout)
}

// OrderVote signs the ordering of a certified block.
type OrderVote struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Author     basics.Address   `codec:"a"`
	LedgerInfo LedgerInfo       `codec:"li"`
	Signature  crypto.Signature `codec:"sig"`
}

// Round of the ordered block.
func (o OrderVote) Round() basics.Round {
	return o.LedgerInfo.CommitInfo.Round
}

// Epoch of the ordered block.
func (o OrderVote) Epoch() basics.Epoch {
	return o.LedgerInfo.CommitInfo.Epoch
}

// Verify checks the signature. Order votes sign a ledger info without a
// consensus data hash.
func (o OrderVote) Verify(verifier *ValidatorVerifier) error {
	if !o.LedgerInfo.ConsensusDataHash.IsZero() {
		return fmt.Errorf("order vote for round %d carries a consensus data hash", o.Round())
	}
	return verifier.Verify(o.Author, o.LedgerInfo, o.Signature)
}
