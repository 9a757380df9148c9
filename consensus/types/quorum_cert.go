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

	"github.com/algorand/go-twochain/data/basics"
)

var errConsensusDataHash = errors.New("ledger info consensus data hash does not match vote data")

// QuorumCert certifies a block with signatures from a quorum.
type QuorumCert struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	VoteData         VoteData                 `codec:"vd"`
	SignedLedgerInfo LedgerInfoWithSignatures `codec:"sli"`
}

// MakeGenesisQuorumCert certifies the genesis block. It carries no signatures.
func MakeGenesisQuorumCert(genesis BlockInfo) QuorumCert {
	vd := VoteData{Proposed: genesis, Parent: genesis}
	return QuorumCert{
		VoteData: vd,
		SignedLedgerInfo: LedgerInfoWithSignatures{
			LedgerInfo: LedgerInfo{CommitInfo: genesis, ConsensusDataHash: vd.Hash()},
		},
	}
}

// CertifiedBlock is the block this certificate is for.
func (qc QuorumCert) CertifiedBlock() BlockInfo {
	return qc.VoteData.Proposed
}

// ParentBlock is the parent of the certified block.
func (qc QuorumCert) ParentBlock() BlockInfo {
	return qc.VoteData.Parent
}

// CommitInfo is the block committed by this certificate; empty when the
// certificate does not complete a two-chain.
func (qc QuorumCert) CommitInfo() BlockInfo {
	return qc.SignedLedgerInfo.LedgerInfo.CommitInfo
}

// Round of the certified block.
func (qc QuorumCert) Round() basics.Round {
	return qc.VoteData.Proposed.Round
}

// Epoch of the certified block.
func (qc QuorumCert) Epoch() basics.Epoch {
	return qc.VoteData.Proposed.Epoch
}

// IsGenesis is true for the unsigned certificate of the genesis block.
func (qc QuorumCert) IsGenesis() bool {
	return qc.VoteData.Proposed.Round == 0
}

// IntoWrappedLedgerInfo turns a committing certificate into an ordered certificate.
func (qc QuorumCert) IntoWrappedLedgerInfo() WrappedLedgerInfo {
	return WrappedLedgerInfo{VoteData: qc.VoteData, SignedLedgerInfo: qc.SignedLedgerInfo}
}

// Verify checks signatures and internal consistency.
func (qc QuorumCert) Verify(v *ValidatorVerifier) error {
	if qc.SignedLedgerInfo.LedgerInfo.ConsensusDataHash != qc.VoteData.Hash() {
		return errConsensusDataHash
	}
	if qc.IsGenesis() {
		if qc.ParentBlock() != qc.CertifiedBlock() {
			return errors.New("genesis quorum cert parent differs from certified block")
		}
		if qc.CommitInfo() != qc.CertifiedBlock() {
			return errors.New("genesis quorum cert must commit the genesis block")
		}
		if qc.SignedLedgerInfo.Signatures.Len() != 0 {
			return errors.New("genesis quorum cert carries signatures")
		}
		return nil
	}
	if err := qc.SignedLedgerInfo.Verify(v); err != nil {
		return fmt.Errorf("quorum cert for %v: %w", qc.CertifiedBlock(), err)
	}
	return qc.VoteData.Verify()
}

func (qc QuorumCert) String() string {
	return fmt.Sprintf("QC(%v, commit %v, %d sigs)", qc.CertifiedBlock(), qc.CommitInfo(), qc.SignedLedgerInfo.Signatures.Len())
}

// WrappedLedgerInfo is an ordered certificate, aggregated from order votes
// or derived from a committing quorum certificate.
type WrappedLedgerInfo struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	VoteData         VoteData                 `codec:"vd"`
	SignedLedgerInfo LedgerInfoWithSignatures `codec:"sli"`
}

// CommitInfo is the ordered block.
func (w WrappedLedgerInfo) CommitInfo() BlockInfo {
	return w.SignedLedgerInfo.LedgerInfo.CommitInfo
}

// Round of the ordered block.
func (w WrappedLedgerInfo) Round() basics.Round {
	return w.CommitInfo().Round
}

// Epoch of the ordered block.
func (w WrappedLedgerInfo) Epoch() basics.Epoch {
	return w.CommitInfo().Epoch
}

// Verify checks the signatures; the genesis certificate carries none.
func (w WrappedLedgerInfo) Verify(v *ValidatorVerifier) error {
	if w.Round() == 0 && w.SignedLedgerInfo.Signatures.Len() == 0 {
		return nil
	}
	if err := w.SignedLedgerInfo.Verify(v); err != nil {
		return fmt.Errorf("ordered cert for %v: %w", w.CommitInfo(), err)
	}
	return nil
}

// MakeOrderedLedgerInfo is the ledger info signed by order votes for block.
func MakeOrderedLedgerInfo(block BlockInfo) LedgerInfo {
	return LedgerInfo{CommitInfo: block.OrderedOnly()}
}
