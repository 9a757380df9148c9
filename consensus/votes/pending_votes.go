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

// Package votes aggregates votes, timeouts and order votes of one round
// into certificates.
package votes

import (
	"errors"
	"fmt"

	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
)

// ReceptionKind classifies the outcome of inserting a vote or timeout.
type ReceptionKind uint8

const (
	// VoteAdded means the vote was recorded without completing a certificate.
	VoteAdded ReceptionKind = iota
	// DuplicateVote means an equivalent vote from the author was already recorded.
	DuplicateVote
	// EquivocateVote means the author already voted for a different ledger info.
	EquivocateVote
	// EchoTimeout means timeouts crossed the echo threshold for the first time.
	EchoTimeout
	// NewQuorumCertificate means a quorum cert formed.
	NewQuorumCertificate
	// NewTwoChainTimeoutCertificate means a timeout cert formed.
	NewTwoChainTimeoutCertificate
	// UnexpectedRound means the vote is for a round other than the current one.
	UnexpectedRound
	// UnknownAuthor means the author is not a validator.
	UnknownAuthor
	// ErrorAggregating means the signatures could not be aggregated.
	ErrorAggregating
)

func (k ReceptionKind) String() string {
	switch k {
	case VoteAdded:
		return "VoteAdded"
	case DuplicateVote:
		return "DuplicateVote"
	case EquivocateVote:
		return "EquivocateVote"
	case EchoTimeout:
		return "EchoTimeout"
	case NewQuorumCertificate:
		return "NewQuorumCertificate"
	case NewTwoChainTimeoutCertificate:
		return "NewTwoChainTimeoutCertificate"
	case UnexpectedRound:
		return "UnexpectedRound"
	case UnknownAuthor:
		return "UnknownAuthor"
	case ErrorAggregating:
		return "ErrorAggregating"
	default:
		return fmt.Sprintf("ReceptionKind(%d)", uint8(k))
	}
}

// ReceptionResult is the outcome of inserting a vote or a round timeout.
type ReceptionResult struct {
	Kind ReceptionKind
	// VotingPower aggregated so far, for VoteAdded and EchoTimeout.
	VotingPower uint64
	QC          *types.QuorumCert
	TC          *types.TwoChainTimeoutCertificate
	Err         error
}

type authorEntry struct {
	digest    crypto.Digest
	isTimeout bool
}

type pendingLedgerInfo struct {
	voteData types.VoteData
	li       types.LedgerInfo
	sigs     types.AggregateSignature
}

// PendingVotes accumulates the votes and timeouts of a single round.
// It is not safe for concurrent use.
type PendingVotes struct {
	byDigest       map[crypto.Digest]*pendingLedgerInfo
	authorVotes    map[basics.Address]authorEntry
	authorTimeouts map[basics.Address]struct{}
	reasons        map[basics.Address]types.RoundTimeoutReason
	partialTC      *types.TwoChainTimeoutCertificate
	echoTimeout    bool
}

// MakePendingVotes returns an empty aggregator.
func MakePendingVotes() *PendingVotes {
	return &PendingVotes{
		byDigest:       make(map[crypto.Digest]*pendingLedgerInfo),
		authorVotes:    make(map[basics.Address]authorEntry),
		authorTimeouts: make(map[basics.Address]struct{}),
		reasons:        make(map[basics.Address]types.RoundTimeoutReason),
	}
}

// InsertVote records a verified vote. The same vote arriving again with a
// newly attached timeout is not a duplicate; its timeout part is counted.
func (p *PendingVotes) InsertVote(vote types.Vote, verifier *types.ValidatorVerifier) ReceptionResult {
	if !verifier.Contains(vote.Author) {
		return ReceptionResult{Kind: UnknownAuthor, Err: fmt.Errorf("%w: %v", types.ErrUnknownAuthor, vote.Author)}
	}
	digest := vote.LedgerInfo.Digest()
	if prev, ok := p.authorVotes[vote.Author]; ok {
		if prev.digest != digest {
			return ReceptionResult{Kind: EquivocateVote}
		}
		if !vote.IsTimeout() || prev.isTimeout {
			return ReceptionResult{Kind: DuplicateVote}
		}
	}
	p.authorVotes[vote.Author] = authorEntry{digest: digest, isTimeout: vote.IsTimeout()}

	entry, ok := p.byDigest[digest]
	if !ok {
		entry = &pendingLedgerInfo{voteData: vote.VoteData, li: vote.LedgerInfo}
		p.byDigest[digest] = entry
	}
	entry.sigs.Add(vote.Author, vote.Signature)

	power, err := verifier.CheckVotingPower(entry.sigs.Signers(), true)
	if err == nil {
		qc := types.QuorumCert{
			VoteData: entry.voteData,
			SignedLedgerInfo: types.LedgerInfoWithSignatures{
				LedgerInfo: entry.li,
				Signatures: entry.sigs.Clone(),
			},
		}
		return ReceptionResult{Kind: NewQuorumCertificate, VotingPower: power, QC: &qc}
	}
	var tooLittle *types.TooLittleVotingPowerError
	if !errors.As(err, &tooLittle) {
		return ReceptionResult{Kind: ErrorAggregating, Err: err}
	}

	if vote.IsTimeout() {
		if res, done := p.addTimeout(vote.Author, *vote.Timeout, vote.TimeoutSignature, verifier); done {
			return res
		}
	}
	return ReceptionResult{Kind: VoteAdded, VotingPower: power}
}

// InsertRoundTimeout records a verified round timeout.
func (p *PendingVotes) InsertRoundTimeout(rt types.RoundTimeout, verifier *types.ValidatorVerifier) ReceptionResult {
	if !verifier.Contains(rt.Author) {
		return ReceptionResult{Kind: UnknownAuthor, Err: fmt.Errorf("%w: %v", types.ErrUnknownAuthor, rt.Author)}
	}
	if _, ok := p.authorTimeouts[rt.Author]; ok {
		return ReceptionResult{Kind: DuplicateVote}
	}
	p.reasons[rt.Author] = rt.Reason
	if res, done := p.addTimeout(rt.Author, rt.Timeout, rt.Signature, verifier); done {
		return res
	}
	power, _ := verifier.SumVotingPower(p.partialTC.Signers())
	return ReceptionResult{Kind: VoteAdded, VotingPower: power}
}

// addTimeout folds a timeout signature into the partial certificate. done
// is set when the result is final: a certificate, an echo, or an error.
func (p *PendingVotes) addTimeout(author basics.Address, timeout types.TwoChainTimeout, sig crypto.Signature, verifier *types.ValidatorVerifier) (ReceptionResult, bool) {
	p.authorTimeouts[author] = struct{}{}
	if p.partialTC == nil {
		p.partialTC = types.MakeTwoChainTimeoutCertificate(timeout)
	}
	if err := p.partialTC.Add(author, timeout, sig); err != nil {
		return ReceptionResult{Kind: ErrorAggregating, Err: err}, true
	}
	power, err := verifier.CheckVotingPower(p.partialTC.Signers(), true)
	if err == nil {
		return ReceptionResult{Kind: NewTwoChainTimeoutCertificate, VotingPower: power, TC: p.partialTC.Clone()}, true
	}
	var tooLittle *types.TooLittleVotingPowerError
	if !errors.As(err, &tooLittle) {
		return ReceptionResult{Kind: ErrorAggregating, Err: err}, true
	}
	if !p.echoTimeout && power >= verifier.EchoTimeoutVotingPower() {
		p.echoTimeout = true
		return ReceptionResult{Kind: EchoTimeout, VotingPower: power}, true
	}
	return ReceptionResult{}, false
}

// AggregatedTimeoutReason is the timeout reason backed by the most voting
// power, provided that power reaches the echo threshold. For payload
// unavailability the missing authors are those reported by at least the
// echo threshold.
func (p *PendingVotes) AggregatedTimeoutReason(verifier *types.ValidatorVerifier) types.RoundTimeoutReason {
	kindPower := make(map[types.RoundTimeoutReasonKind]uint64)
	missingPower := make(map[basics.Address]uint64)
	for author, reason := range p.reasons {
		power, _ := verifier.GetVotingPower(author)
		kindPower[reason.Kind] += power
		if reason.Kind == types.TimeoutReasonPayloadUnavailable {
			seen := make(map[basics.Address]struct{}, len(reason.MissingAuthors))
			for _, m := range reason.MissingAuthors {
				if _, dup := seen[m]; !dup {
					seen[m] = struct{}{}
					missingPower[m] += power
				}
			}
		}
	}

	best, bestPower := types.TimeoutReasonUnknown, uint64(0)
	for kind, power := range kindPower {
		if power > bestPower || (power == bestPower && kind < best) {
			best, bestPower = kind, power
		}
	}
	minority := verifier.EchoTimeoutVotingPower()
	if bestPower < minority {
		return types.RoundTimeoutReason{Kind: types.TimeoutReasonUnknown}
	}
	out := types.RoundTimeoutReason{Kind: best}
	if best == types.TimeoutReasonPayloadUnavailable {
		for _, a := range verifier.Addresses() {
			if missingPower[a] >= minority {
				out.MissingAuthors = append(out.MissingAuthors, a)
			}
		}
	}
	return out
}

// NumAuthors is the number of distinct authors that voted or timed out.
func (p *PendingVotes) NumAuthors() int {
	seen := len(p.authorVotes)
	for a := range p.authorTimeouts {
		if _, ok := p.authorVotes[a]; !ok {
			seen++
		}
	}
	return seen
}

// TimeoutAuthors lists the authors of timeouts collected so far.
func (p *PendingVotes) TimeoutAuthors() []basics.Address {
	if p.partialTC == nil {
		return nil
	}
	return p.partialTC.Signers()
}

func (p *PendingVotes) String() string {
	tcSigs := 0
	if p.partialTC != nil {
		tcSigs = len(p.partialTC.Signatures)
	}
	return fmt.Sprintf("PendingVotes[%d ledger infos, %d voters, %d timeouts, echoed %v]", len(p.byDigest), len(p.authorVotes), tcSigs, p.echoTimeout)
}
