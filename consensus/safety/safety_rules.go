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

// Package safety holds the only component allowed to sign votes, timeouts
// and proposals. Every signature is preceded by the two-chain safety checks
// and by a durable update of the validator's voting state.
package safety

import (
	"fmt"

	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
	"github.com/algorand/go-twochain/logging"
)

// VoteProposal is a block together with the result of executing it.
type VoteProposal struct {
	Block    types.Block
	Executed types.BlockInfo
}

// ConsensusState is a read-only snapshot of the safety state.
type ConsensusState struct {
	SafetyData     SafetyData
	Author         basics.Address
	InValidatorSet bool
}

// SafetyRules serializes every signing request behind one mutex.
type SafetyRules struct {
	mu deadlock.Mutex

	author   basics.Address
	signer   *crypto.SignatureSecrets
	epoch    basics.Epoch
	verifier *types.ValidatorVerifier
	storage  Storage
	log      logging.Logger
}

// MakeSafetyRules starts SafetyRules for epoch. Stored state from an
// earlier epoch is reset; state from a later epoch is an error.
func MakeSafetyRules(signer *crypto.SignatureSecrets, epoch basics.Epoch, verifier *types.ValidatorVerifier, storage Storage, log logging.Logger) (*SafetyRules, error) {
	data, err := storage.SafetyData()
	if err != nil {
		return nil, fmt.Errorf("loading safety data: %w", err)
	}
	switch {
	case data.Epoch > epoch:
		return nil, rejectErr(IncorrectEpoch, fmt.Errorf("stored epoch %d is ahead of %d", data.Epoch, epoch))
	case data.Epoch < epoch:
		if err := storage.SetSafetyData(SafetyData{Epoch: epoch}); err != nil {
			return nil, rejectErr(PersistenceFailure, err)
		}
	}
	author := basics.AddressFromPublicKey(signer.PublicKey)
	return &SafetyRules{
		author:   author,
		signer:   signer,
		epoch:    epoch,
		verifier: verifier,
		storage:  storage,
		log:      log.With("author", author.ShortString()),
	}, nil
}

// Author is the address SafetyRules signs as.
func (sr *SafetyRules) Author() basics.Address {
	return sr.author
}

// ConsensusState returns a snapshot of the persisted safety data.
func (sr *SafetyRules) ConsensusState() (ConsensusState, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	data, err := sr.storage.SafetyData()
	if err != nil {
		return ConsensusState{}, rejectErr(PersistenceFailure, err)
	}
	return ConsensusState{SafetyData: data, Author: sr.author, InValidatorSet: sr.verifier.Contains(sr.author)}, nil
}

// ConstructAndSignVoteTwoChain signs a vote for the executed block. Asking
// again for a round already voted returns the same vote.
func (sr *SafetyRules) ConstructAndSignVoteTwoChain(proposal VoteProposal, tc *types.TwoChainTimeoutCertificate) (types.Vote, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	data, err := sr.load()
	if err != nil {
		return types.Vote{}, err
	}
	block := proposal.Block
	if err := sr.checkEpoch(block.Epoch()); err != nil {
		return types.Vote{}, err
	}
	if data.LastVote != nil && data.LastVote.Round() == block.Round() {
		return *data.LastVote, nil
	}

	if proposal.Executed.ID != block.ID || proposal.Executed.Round != block.Round() {
		return types.Vote{}, rejectErr(InvalidProposal, fmt.Errorf("execution result %v does not belong to %v", proposal.Executed, block))
	}
	if err := block.Verify(sr.verifier); err != nil {
		return types.Vote{}, rejectErr(InvalidProposal, err)
	}
	if err := sr.verifyTC(tc); err != nil {
		return types.Vote{}, err
	}

	qc := block.QuorumCert()
	observeQC(qc, &data)
	if block.Round() <= data.LastVotedRound {
		return types.Vote{}, rejectRound(IncorrectLastVotedRound, block.Round(), data.LastVotedRound)
	}
	data.LastVotedRound = block.Round()
	if err := safeToVote(block, tc); err != nil {
		return types.Vote{}, err
	}

	vd := types.VoteData{Proposed: proposal.Executed, Parent: qc.CertifiedBlock()}
	li := types.LedgerInfo{ConsensusDataHash: vd.Hash()}
	if block.Round() == qc.Round()+1 {
		li.CommitInfo = qc.CertifiedBlock()
	}
	vote := types.MakeVote(vd, sr.author, li, sr.signer.Sign(li))
	data.LastVote = &vote
	if err := sr.store(data); err != nil {
		return types.Vote{}, err
	}
	sr.log.Debugf("voted for %v", block)
	return vote, nil
}

// ConstructAndSignOrderVote signs the ordering of qc's certified block.
func (sr *SafetyRules) ConstructAndSignOrderVote(qc types.QuorumCert) (types.OrderVote, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	data, err := sr.load()
	if err != nil {
		return types.OrderVote{}, err
	}
	if err := sr.checkEpoch(qc.Epoch()); err != nil {
		return types.OrderVote{}, err
	}
	if err := qc.Verify(sr.verifier); err != nil {
		return types.OrderVote{}, rejectErr(InvalidQuorumCert, err)
	}
	observeQC(qc, &data)
	if qc.Round() <= data.HighestTimeoutRound {
		return types.OrderVote{}, rejectRound(NotSafeForOrderVote, qc.Round(), data.HighestTimeoutRound)
	}

	li := types.MakeOrderedLedgerInfo(qc.CertifiedBlock())
	ov := types.OrderVote{Author: sr.author, LedgerInfo: li, Signature: sr.signer.Sign(li)}
	if err := sr.store(data); err != nil {
		return types.OrderVote{}, err
	}
	return ov, nil
}

// SignProposal signs block data authored by this validator.
func (sr *SafetyRules) SignProposal(bd types.BlockData) (crypto.Signature, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	data, err := sr.load()
	if err != nil {
		return crypto.Signature{}, err
	}
	if err := sr.checkEpoch(bd.Epoch); err != nil {
		return crypto.Signature{}, err
	}
	if bd.Author != sr.author {
		return crypto.Signature{}, rejectErr(InvalidProposal, fmt.Errorf("proposal author %v is not %v", bd.Author, sr.author))
	}
	if bd.Round <= data.LastVotedRound {
		return crypto.Signature{}, rejectRound(IncorrectLastVotedRound, bd.Round, data.LastVotedRound)
	}
	if err := bd.QuorumCert.Verify(sr.verifier); err != nil {
		return crypto.Signature{}, rejectErr(InvalidQuorumCert, err)
	}
	if r := bd.QuorumCert.Round(); r < data.PreferredRound {
		return crypto.Signature{}, rejectRound(IncorrectPreferredRound, r, data.PreferredRound)
	}
	return sr.signer.Sign(types.BlockSigningFormat(bd.Hash())), nil
}

// SignTimeoutWithQC signs a two-chain timeout and records its round as both
// voted and timed out.
func (sr *SafetyRules) SignTimeoutWithQC(timeout types.TwoChainTimeout, tc *types.TwoChainTimeoutCertificate) (crypto.Signature, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	data, err := sr.load()
	if err != nil {
		return crypto.Signature{}, err
	}
	if err := sr.checkEpoch(timeout.Epoch); err != nil {
		return crypto.Signature{}, err
	}
	if err := timeout.Verify(sr.verifier); err != nil {
		return crypto.Signature{}, rejectErr(InvalidQuorumCert, err)
	}
	if err := sr.verifyTC(tc); err != nil {
		return crypto.Signature{}, err
	}

	qcRound := timeout.HQCRound()
	var tcRound basics.Round
	if tc != nil {
		tcRound = tc.Round()
	}
	if (timeout.Round != qcRound+1 && timeout.Round != tcRound+1) || qcRound < data.OneChainRound {
		return crypto.Signature{}, rejectRound(NotSafeToTimeout, timeout.Round, basics.MaxRound(qcRound, tcRound))
	}
	if timeout.Round < data.LastVotedRound {
		return crypto.Signature{}, rejectRound(IncorrectLastVotedRound, timeout.Round, data.LastVotedRound)
	}
	data.LastVotedRound = timeout.Round
	data.HighestTimeoutRound = basics.MaxRound(data.HighestTimeoutRound, timeout.Round)
	if err := sr.store(data); err != nil {
		return crypto.Signature{}, err
	}
	return sr.signer.Sign(timeout.SigningFormat()), nil
}

// SignFastShare signs a randomness share for a block this validator has
// already voted for.
func (sr *SafetyRules) SignFastShare(epoch basics.Epoch, round basics.Round, id crypto.Digest) (crypto.Signature, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	data, err := sr.load()
	if err != nil {
		return crypto.Signature{}, err
	}
	if err := sr.checkEpoch(epoch); err != nil {
		return crypto.Signature{}, err
	}
	if data.LastVote == nil || data.LastVote.Round() != round || data.LastVote.VoteData.Proposed.ID != id {
		return crypto.Signature{}, rejectRound(NotSafeToVote, round, data.LastVotedRound)
	}
	return sr.signer.Sign(types.FastShareSigningFormat(epoch, round, id)), nil
}

func (sr *SafetyRules) load() (SafetyData, error) {
	data, err := sr.storage.SafetyData()
	if err != nil {
		return SafetyData{}, rejectErr(PersistenceFailure, err)
	}
	return data, nil
}

func (sr *SafetyRules) store(data SafetyData) error {
	if err := sr.storage.SetSafetyData(data); err != nil {
		return rejectErr(PersistenceFailure, err)
	}
	return nil
}

func (sr *SafetyRules) checkEpoch(e basics.Epoch) error {
	if e != sr.epoch {
		return rejectErr(IncorrectEpoch, fmt.Errorf("got epoch %d, serving %d", e, sr.epoch))
	}
	return nil
}

func (sr *SafetyRules) verifyTC(tc *types.TwoChainTimeoutCertificate) error {
	if tc == nil {
		return nil
	}
	if err := sr.checkEpoch(tc.Epoch()); err != nil {
		return err
	}
	if err := tc.Verify(sr.verifier); err != nil {
		return rejectErr(InvalidTimeoutCert, err)
	}
	return nil
}

// observeQC raises the one-chain and preferred rounds to what qc proves.
func observeQC(qc types.QuorumCert, data *SafetyData) {
	data.OneChainRound = basics.MaxRound(data.OneChainRound, qc.CertifiedBlock().Round)
	data.PreferredRound = basics.MaxRound(data.PreferredRound, qc.ParentBlock().Round)
}

// safeToVote accepts a block that directly extends its quorum cert, or one
// that follows a timeout cert whose highest quorum cert it does not regress.
func safeToVote(block types.Block, tc *types.TwoChainTimeoutCertificate) error {
	round := block.Round()
	qcRound := block.QuorumCert().Round()
	if round == qcRound+1 {
		return nil
	}
	if tc != nil && round == tc.Round()+1 && qcRound >= tc.HighestHQCRound() {
		return nil
	}
	var bound basics.Round
	if tc != nil {
		bound = tc.Round()
	}
	return rejectRound(NotSafeToVote, round, basics.MaxRound(qcRound, bound))
}
