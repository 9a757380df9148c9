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

package consensus

import (
	"context"
	"fmt"

	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/consensus/votes"
	"github.com/algorand/go-twochain/data/basics"
)

// ProcessVoteMsg syncs up to the certificates carried with a vote and
// aggregates the vote when it is for the current round.
func (rm *RoundManager) ProcessVoteMsg(ctx context.Context, msg types.VoteMsg) error {
	current, err := rm.ensureRoundAndSyncUp(ctx, msg.Vote.Round(), msg.SyncInfo, msg.Vote.Author)
	if err != nil {
		return err
	}
	if !current {
		rm.sink.Inc(staleMessages, kindLabels("vote"))
		return nil
	}
	return rm.processVote(ctx, msg.Vote)
}

func (rm *RoundManager) processVote(ctx context.Context, vote types.Vote) error {
	round := vote.Round()
	if !vote.IsTimeout() && !rm.cfg.BroadcastVote && !rm.election.IsValidProposer(rm.author, round+1) {
		return fmt.Errorf("%w %d, ignoring %v", errNotLeader, round+1, vote)
	}
	if rm.blocks.HighestQuorumCert().CertifiedBlock().ID == vote.VoteData.Proposed.ID {
		return nil
	}
	res := rm.roundState.InsertVote(vote, rm.verifier)
	switch res.Kind {
	case votes.NewQuorumCertificate:
		rm.sink.Inc(certsFormed, kindLabels("qc"))
		if rm.cfg.EnableOrderVote {
			rm.broadcastOrderVote(*res.QC)
		}
		return rm.newQCAggregated(ctx, *res.QC, vote.Author)
	case votes.NewTwoChainTimeoutCertificate:
		rm.sink.Inc(certsFormed, kindLabels("tc"))
		return rm.newTCAggregated(ctx, res.TC)
	case votes.EchoTimeout:
		if !rm.timeoutSent() {
			return rm.ProcessLocalTimeout(ctx, round)
		}
		return nil
	case votes.VoteAdded:
		return nil
	default:
		return rm.receptionError(vote.Author, res, vote.String())
	}
}

// ProcessRoundTimeoutMsg syncs up to the certificates carried with a round
// timeout and aggregates it when it is for the current round.
func (rm *RoundManager) ProcessRoundTimeoutMsg(ctx context.Context, msg types.RoundTimeoutMsg) error {
	rt := msg.Timeout
	current, err := rm.ensureRoundAndSyncUp(ctx, rt.Round(), msg.SyncInfo, rt.Author)
	if err != nil {
		return err
	}
	if !current {
		rm.sink.Inc(staleMessages, kindLabels("round_timeout"))
		return nil
	}
	res := rm.roundState.InsertRoundTimeout(rt, rm.verifier)
	switch res.Kind {
	case votes.NewTwoChainTimeoutCertificate:
		rm.sink.Inc(certsFormed, kindLabels("tc"))
		return rm.newTCAggregated(ctx, res.TC)
	case votes.EchoTimeout:
		if !rm.timeoutSent() {
			return rm.ProcessLocalTimeout(ctx, rt.Round())
		}
		return nil
	case votes.VoteAdded:
		return nil
	default:
		return rm.receptionError(rt.Author, res, fmt.Sprintf("timeout of %s for round %d", rt.Author.ShortString(), rt.Round()))
	}
}

// receptionError surfaces duplicate and conflicting votes. This node's own
// messages come back on every re-broadcast and are not reported.
func (rm *RoundManager) receptionError(author basics.Address, res votes.ReceptionResult, what string) error {
	switch res.Kind {
	case votes.DuplicateVote:
		if author == rm.author {
			return nil
		}
		return verificationError(author, fmt.Errorf("%w: %s", errDuplicateVote, what))
	case votes.EquivocateVote:
		return verificationError(author, fmt.Errorf("%w: %s", errEquivocateVote, what))
	default:
		return verificationError(author, fmt.Errorf("%v for %s: %v", res.Kind, what, res.Err))
	}
}

// timeoutSent reports whether this node already timed out the current round.
func (rm *RoundManager) timeoutSent() bool {
	if rm.roundState.TimeoutSent() != nil {
		return true
	}
	v := rm.roundState.VoteSent()
	return v != nil && v.IsTimeout()
}

func (rm *RoundManager) newQCAggregated(ctx context.Context, qc types.QuorumCert, peer basics.Address) error {
	err := rm.blocks.AddCerts(ctx, types.MakeSyncInfo(qc, nil, nil), rm.retriever(peer))
	if perr := rm.processCertificates(ctx); perr != nil {
		return perr
	}
	if err != nil {
		return fmt.Errorf("inserting %v: %w", qc, err)
	}
	return nil
}

func (rm *RoundManager) newTCAggregated(ctx context.Context, tc *types.TwoChainTimeoutCertificate) error {
	if err := rm.blocks.InsertTwoChainTimeoutCert(tc); err != nil {
		return fmt.Errorf("inserting %v: %w", tc, err)
	}
	return rm.processCertificates(ctx)
}

// broadcastOrderVote orders the block qc certifies. At most one order vote
// is sent per round and never for a round this node timed out.
func (rm *RoundManager) broadcastOrderVote(qc types.QuorumCert) {
	round := qc.Round()
	if round <= rm.orderVoteRound {
		return
	}
	if cs, err := rm.safety.ConsensusState(); err != nil || round <= cs.SafetyData.HighestTimeoutRound {
		return
	}
	if _, ok := rm.blocks.GetBlock(qc.CertifiedBlock().ID); !ok {
		rm.log.Debugf("not ordering %v, block is not local", qc.CertifiedBlock())
		return
	}
	ov, err := rm.safety.ConstructAndSignOrderVote(qc)
	if err != nil {
		rm.log.Warnf("signing order vote for round %d: %v", round, err)
		return
	}
	rm.orderVoteRound = round
	rm.network.BroadcastOrderVote(types.OrderVoteMsg{OrderVote: ov, QuorumCert: qc})
	rm.sink.Inc(orderVotesSent, nil)
}

// ProcessOrderVoteMsg aggregates an order vote above the ordered round and
// inserts the ordered certificate once it forms.
func (rm *RoundManager) ProcessOrderVoteMsg(ctx context.Context, author basics.Address, msg types.OrderVoteMsg) error {
	if !rm.cfg.EnableOrderVote {
		return nil
	}
	if msg.OrderVote.Round() <= rm.blocks.SyncInfo().HighestOrderedRound() {
		rm.sink.Inc(staleMessages, kindLabels("order_vote"))
		return nil
	}
	res := rm.orderVotes.InsertOrderVote(msg.OrderVote, msg.QuorumCert, rm.verifier)
	switch res.Kind {
	case votes.NewLedgerInfoWithSignatures:
		rm.sink.Inc(certsFormed, kindLabels("ordered"))
		return rm.newOrderedCert(ctx, *res.Ordered, *res.QC, author)
	case votes.OrderVoteAdded:
		return nil
	case votes.OrderVoteDuplicate:
		if author == rm.author {
			return nil
		}
		return verificationError(author, fmt.Errorf("%w: order vote for round %d", errDuplicateVote, msg.OrderVote.Round()))
	default:
		return verificationError(author, fmt.Errorf("order vote for round %d: %v", msg.OrderVote.Round(), res.Err))
	}
}

func (rm *RoundManager) newOrderedCert(ctx context.Context, oc types.WrappedLedgerInfo, qc types.QuorumCert, peer basics.Address) error {
	err := rm.blocks.AddCerts(ctx, types.MakeSyncInfo(qc, &oc, nil), rm.retriever(peer))
	rm.orderVotes.GarbageCollect(rm.blocks.SyncInfo().HighestOrderedRound())
	if perr := rm.processCertificates(ctx); perr != nil {
		return perr
	}
	if err != nil {
		return fmt.Errorf("inserting ordered cert for round %d: %w", oc.Round(), err)
	}
	return nil
}
