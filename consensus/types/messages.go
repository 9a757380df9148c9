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

// MaxBlocksPerRetrieval caps one block retrieval request.
const MaxBlocksPerRetrieval = 64

// ProposalMsg carries a proposal and the leader's sync info.
type ProposalMsg struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Proposal Block    `codec:"p"`
	SyncInfo SyncInfo `codec:"si"`
}

// Epoch of the proposal.
func (m ProposalMsg) Epoch() basics.Epoch { return m.Proposal.Epoch() }

// Round of the proposal.
func (m ProposalMsg) Round() basics.Round { return m.Proposal.Round() }

// Author of the proposal.
func (m ProposalMsg) Author() basics.Address { return m.Proposal.Data.Author }

// VerifyWellFormed checks the proposal extends the sync info's highest round.
func (m ProposalMsg) VerifyWellFormed() error {
	if !m.Proposal.IsProposal() {
		return fmt.Errorf("proposal message carries a %v block", m.Proposal.Data.Type)
	}
	if err := m.Proposal.VerifyWellFormed(); err != nil {
		return err
	}
	if m.SyncInfo.Epoch() != m.Epoch() {
		return fmt.Errorf("proposal epoch %d with sync info epoch %d", m.Epoch(), m.SyncInfo.Epoch())
	}
	highest := basics.MaxRound(m.Proposal.QuorumCert().Round(), m.SyncInfo.HighestTimeoutRound())
	if m.Round() != highest+1 {
		return fmt.Errorf("proposal round %d does not follow highest certified round %d", m.Round(), highest)
	}
	return nil
}

// Verify checks the proposal and the sync info against v.
func (m ProposalMsg) Verify(v *ValidatorVerifier) error {
	if err := m.VerifyWellFormed(); err != nil {
		return err
	}
	if err := m.Proposal.Verify(v); err != nil {
		return err
	}
	if tc := m.SyncInfo.HighestTimeoutCert; tc != nil {
		if err := tc.Verify(v); err != nil {
			return err
		}
	}
	return nil
}

// OptProposalMsg carries an optimistic proposal for the round after the
// sender's current one.
type OptProposalMsg struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Block    OptBlockData `codec:"b"`
	SyncInfo SyncInfo     `codec:"si"`
}

// Epoch of the proposal.
func (m OptProposalMsg) Epoch() basics.Epoch { return m.Block.Epoch }

// Round of the proposal.
func (m OptProposalMsg) Round() basics.Round { return m.Block.Round }

// Author of the proposal.
func (m OptProposalMsg) Author() basics.Address { return m.Block.Author }

// Verify checks the body and its grandparent certificate.
func (m OptProposalMsg) Verify(v *ValidatorVerifier) error {
	if err := m.Block.VerifyWellFormed(); err != nil {
		return err
	}
	if !v.Contains(m.Block.Author) {
		return fmt.Errorf("%w: %v", ErrUnknownAuthor, m.Block.Author)
	}
	if m.SyncInfo.HighestRound()+2 != m.Round() {
		return fmt.Errorf("optimistic proposal round %d is not two past sync info round %d", m.Round(), m.SyncInfo.HighestRound())
	}
	if err := m.Block.GrandparentQC.Verify(v); err != nil {
		return err
	}
	return m.SyncInfo.Verify(v)
}

// VoteMsg carries a vote and the voter's sync info.
type VoteMsg struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Vote     Vote     `codec:"v"`
	SyncInfo SyncInfo `codec:"si"`
}

// Epoch of the vote.
func (m VoteMsg) Epoch() basics.Epoch { return m.Vote.Epoch() }

// Verify checks the vote against v.
func (m VoteMsg) Verify(v *ValidatorVerifier) error {
	if m.Vote.Epoch() != m.SyncInfo.Epoch() {
		return fmt.Errorf("vote epoch %d with sync info epoch %d", m.Vote.Epoch(), m.SyncInfo.Epoch())
	}
	return m.Vote.Verify(v)
}

// RoundTimeoutMsg carries a round timeout and the sender's sync info.
type RoundTimeoutMsg struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Timeout  RoundTimeout `codec:"t"`
	SyncInfo SyncInfo     `codec:"si"`
}

// Epoch of the timeout.
func (m RoundTimeoutMsg) Epoch() basics.Epoch { return m.Timeout.Epoch() }

// Verify checks the timeout against v.
func (m RoundTimeoutMsg) Verify(v *ValidatorVerifier) error {
	if m.Timeout.Epoch() != m.SyncInfo.Epoch() {
		return fmt.Errorf("timeout epoch %d with sync info epoch %d", m.Timeout.Epoch(), m.SyncInfo.Epoch())
	}
	if m.Timeout.Timeout.HQCRound() > m.SyncInfo.HighestCertifiedRound() {
		return fmt.Errorf("timeout hqc round %d above sync info certified round %d", m.Timeout.Timeout.HQCRound(), m.SyncInfo.HighestCertifiedRound())
	}
	return m.Timeout.Verify(v)
}

// OrderVoteMsg carries an order vote and the certificate of the ordered block.
type OrderVoteMsg struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	OrderVote  OrderVote  `codec:"ov"`
	QuorumCert QuorumCert `codec:"qc"`
}

// Epoch of the order vote.
func (m OrderVoteMsg) Epoch() basics.Epoch { return m.OrderVote.Epoch() }

// Verify checks the order vote refers to the certified block.
func (m OrderVoteMsg) Verify(v *ValidatorVerifier) error {
	if m.QuorumCert.CertifiedBlock().ID != m.OrderVote.LedgerInfo.CommitInfo.ID {
		return errors.New("order vote does not match its quorum cert")
	}
	if err := m.OrderVote.Verify(v); err != nil {
		return err
	}
	return m.QuorumCert.Verify(v)
}

// BlockRetrievalStatus is the outcome of a retrieval request.
type BlockRetrievalStatus uint8

const (
	// RetrievalSucceeded when every requested block was found.
	RetrievalSucceeded BlockRetrievalStatus = iota
	// RetrievalIDNotFound when the first block is unknown.
	RetrievalIDNotFound
	// RetrievalNotEnoughBlocks when the chain ended before NumBlocks.
	RetrievalNotEnoughBlocks
)

// BlockRetrievalRequest asks for NumBlocks blocks walking back from BlockID.
type BlockRetrievalRequest struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	BlockID   crypto.Digest `codec:"id"`
	NumBlocks uint64        `codec:"n"`
}

// BlockRetrievalResponse returns blocks newest first.
type BlockRetrievalResponse struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Status BlockRetrievalStatus `codec:"st"`
	Blocks []Block              `codec:"blks"`
}

// Verify checks the blocks form the requested chain and verify against v.
func (r BlockRetrievalResponse) Verify(req BlockRetrievalRequest, v *ValidatorVerifier) error {
	if r.Status != RetrievalSucceeded && r.Status != RetrievalNotEnoughBlocks {
		return fmt.Errorf("block retrieval failed with status %d", r.Status)
	}
	if uint64(len(r.Blocks)) > req.NumBlocks || (r.Status == RetrievalSucceeded && uint64(len(r.Blocks)) != req.NumBlocks) {
		return fmt.Errorf("retrieved %d blocks for a request of %d", len(r.Blocks), req.NumBlocks)
	}
	expected := req.BlockID
	for _, b := range r.Blocks {
		if b.ID != expected {
			return fmt.Errorf("retrieved block %s, expected %s", b.ID.ShortString(), expected.ShortString())
		}
		if err := b.Verify(v); err != nil {
			return err
		}
		expected = b.ParentID()
	}
	return nil
}

// IncomingBlockRetrieval is a retrieval request from a peer awaiting its
// response.
type IncomingBlockRetrieval struct {
	Request  BlockRetrievalRequest
	Response chan<- BlockRetrievalResponse
}

// BatchMsg disseminates batches from their author.
type BatchMsg struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Author  basics.Address `codec:"a"`
	Batches []Batch        `codec:"bs"`
}

// Epoch of the batches; zero when empty.
func (m BatchMsg) Epoch() basics.Epoch {
	if len(m.Batches) == 0 {
		return 0
	}
	return m.Batches[0].Info.Epoch
}

// Verify checks every batch belongs to the sender.
func (m BatchMsg) Verify(v *ValidatorVerifier) error {
	if !v.Contains(m.Author) {
		return fmt.Errorf("%w: %v", ErrUnknownAuthor, m.Author)
	}
	for _, b := range m.Batches {
		if b.Info.Author != m.Author {
			return fmt.Errorf("batch %d author %v differs from sender %v", b.Info.BatchID, b.Info.Author, m.Author)
		}
		if b.Info.Epoch != m.Epoch() {
			return fmt.Errorf("batch %d epoch %d differs from message epoch %d", b.Info.BatchID, b.Info.Epoch, m.Epoch())
		}
		if err := b.Verify(); err != nil {
			return err
		}
	}
	return nil
}

// SignedBatchInfoMsg acknowledges stored batches.
type SignedBatchInfoMsg struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Infos []SignedBatchInfo `codec:"is"`
}

// Epoch of the acknowledgements; zero when empty.
func (m SignedBatchInfoMsg) Epoch() basics.Epoch {
	if len(m.Infos) == 0 {
		return 0
	}
	return m.Infos[0].Info.Epoch
}

// Verify checks every signature.
func (m SignedBatchInfoMsg) Verify(v *ValidatorVerifier) error {
	for _, s := range m.Infos {
		if err := s.Verify(v); err != nil {
			return err
		}
	}
	return nil
}

// ProofOfStoreMsg disseminates proofs of store.
type ProofOfStoreMsg struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Proofs []ProofOfStore `codec:"ps"`
}

// Epoch of the proofs; zero when empty.
func (m ProofOfStoreMsg) Epoch() basics.Epoch {
	if len(m.Proofs) == 0 {
		return 0
	}
	return m.Proofs[0].Info.Epoch
}

// Verify checks every proof.
func (m ProofOfStoreMsg) Verify(v *ValidatorVerifier) error {
	for _, p := range m.Proofs {
		if err := p.Verify(v); err != nil {
			return err
		}
	}
	return nil
}

type fastShareSigningRepr struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Epoch   basics.Epoch  `codec:"e"`
	Round   basics.Round  `codec:"r"`
	BlockID crypto.Digest `codec:"id"`
}

// ToBeHashed implements the crypto.Hashable interface
func (f fastShareSigningRepr) ToBeHashed() (protocol.HashID, []byte) {
	return protocol.FastShare, protocol.EncodeReflect(f)
}

// FastShareSigningFormat is what a validator signs as its randomness share for a block.
func FastShareSigningFormat(epoch basics.Epoch, round basics.Round, id crypto.Digest) crypto.Hashable {
	return fastShareSigningRepr{Epoch: epoch, Round: round, BlockID: id}
}

// FastShareMsg is a validator's randomness share for a block.
type FastShareMsg struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Epoch   basics.Epoch     `codec:"e"`
	Round   basics.Round     `codec:"r"`
	BlockID crypto.Digest    `codec:"id"`
	Author  basics.Address   `codec:"a"`
	Share   crypto.Signature `codec:"sh"`
}

// Verify checks the share signature.
func (m FastShareMsg) Verify(v *ValidatorVerifier) error {
	return v.Verify(m.Author, FastShareSigningFormat(m.Epoch, m.Round, m.BlockID), m.Share)
}
