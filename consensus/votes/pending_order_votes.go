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

package votes

import (
	"errors"

	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
)

// OrderReceptionKind classifies the outcome of inserting an order vote.
type OrderReceptionKind uint8

const (
	// OrderVoteAdded means the vote was recorded below quorum.
	OrderVoteAdded OrderReceptionKind = iota
	// NewLedgerInfoWithSignatures means the ordered ledger info reached quorum.
	NewLedgerInfoWithSignatures
	// OrderVoteDuplicate means the author already voted for this ledger info.
	OrderVoteDuplicate
	// OrderVoteUnknownAuthor means the author is not a validator.
	OrderVoteUnknownAuthor
	// OrderVoteError means aggregation failed.
	OrderVoteError
)

// OrderReceptionResult is the outcome of PendingOrderVotes.InsertOrderVote.
type OrderReceptionResult struct {
	Kind        OrderReceptionKind
	VotingPower uint64
	// Ordered and QC are set for NewLedgerInfoWithSignatures.
	Ordered *types.WrappedLedgerInfo
	QC      *types.QuorumCert
	Err     error
}

type orderEntry struct {
	qc    types.QuorumCert
	li    types.LedgerInfo
	sigs  types.AggregateSignature
	ready *types.WrappedLedgerInfo
}

// PendingOrderVotes aggregates order votes across rounds, keyed by the
// digest of the ordered ledger info.
type PendingOrderVotes struct {
	entries map[crypto.Digest]*orderEntry
}

// MakePendingOrderVotes returns an empty aggregator.
func MakePendingOrderVotes() *PendingOrderVotes {
	return &PendingOrderVotes{entries: make(map[crypto.Digest]*orderEntry)}
}

// InsertOrderVote records a verified order vote together with the quorum
// cert of the block it orders. Votes arriving after quorum keep returning
// the ready certificate.
func (p *PendingOrderVotes) InsertOrderVote(ov types.OrderVote, qc types.QuorumCert, verifier *types.ValidatorVerifier) OrderReceptionResult {
	if !verifier.Contains(ov.Author) {
		return OrderReceptionResult{Kind: OrderVoteUnknownAuthor, Err: types.ErrUnknownAuthor}
	}
	digest := ov.LedgerInfo.Digest()
	e, ok := p.entries[digest]
	if !ok {
		e = &orderEntry{qc: qc, li: ov.LedgerInfo}
		p.entries[digest] = e
	}
	if e.ready != nil {
		return OrderReceptionResult{Kind: NewLedgerInfoWithSignatures, Ordered: e.ready, QC: &e.qc}
	}
	for _, s := range e.sigs.Signers() {
		if s == ov.Author {
			return OrderReceptionResult{Kind: OrderVoteDuplicate}
		}
	}
	e.sigs.Add(ov.Author, ov.Signature)

	power, err := verifier.CheckVotingPower(e.sigs.Signers(), true)
	if err != nil {
		var tooLittle *types.TooLittleVotingPowerError
		if errors.As(err, &tooLittle) {
			return OrderReceptionResult{Kind: OrderVoteAdded, VotingPower: power}
		}
		return OrderReceptionResult{Kind: OrderVoteError, Err: err}
	}
	e.ready = &types.WrappedLedgerInfo{
		VoteData: e.qc.VoteData,
		SignedLedgerInfo: types.LedgerInfoWithSignatures{
			LedgerInfo: e.li,
			Signatures: e.sigs.Clone(),
		},
	}
	return OrderReceptionResult{Kind: NewLedgerInfoWithSignatures, VotingPower: power, Ordered: e.ready, QC: &e.qc}
}

// HasEnoughOrderVotes reports whether the ordering of block is already certified.
func (p *PendingOrderVotes) HasEnoughOrderVotes(block types.BlockInfo) bool {
	e, ok := p.entries[types.MakeOrderedLedgerInfo(block).Digest()]
	return ok && e.ready != nil
}

// GarbageCollect drops entries for rounds below highestOrderedRound.
func (p *PendingOrderVotes) GarbageCollect(highestOrderedRound basics.Round) {
	for d, e := range p.entries {
		if e.li.CommitInfo.Round < highestOrderedRound {
			delete(p.entries, d)
		}
	}
}

// Len is the number of tracked ledger infos.
func (p *PendingOrderVotes) Len() int {
	return len(p.entries)
}
