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
	"github.com/algorand/go-twochain/data/basics"
)

// ProcessLocalTimeout handles the expiry of round's deadline. The node
// broadcasts a signed timeout for the round, re-sending the one it already
// produced when the timer fires again, and returns a *TimeoutError.
func (rm *RoundManager) ProcessLocalTimeout(ctx context.Context, round basics.Round) error {
	if !rm.roundState.ProcessLocalTimeout(round) {
		return nil
	}
	if rm.cfg.SyncOnly {
		rm.network.BroadcastSyncInfo(rm.blocks.SyncInfo())
		return ErrSyncOnlyMode
	}
	if rm.cfg.EnableRoundTimeoutMsg {
		return rm.broadcastRoundTimeout(round)
	}

	vote, err := rm.timeoutVote(round)
	if err != nil {
		return err
	}
	rm.roundState.RecordVote(vote)
	rm.network.BroadcastVote(types.VoteMsg{Vote: vote, SyncInfo: rm.blocks.SyncInfo()})
	rm.sink.Inc(timeoutsSent, kindLabels("vote"))
	return &TimeoutError{Round: round}
}

// timeoutVote returns this round's vote marked as a timeout. Without a
// vote the node votes for a nil block first.
func (rm *RoundManager) timeoutVote(round basics.Round) (types.Vote, error) {
	var vote types.Vote
	if sent := rm.roundState.VoteSent(); sent != nil && sent.Round() == round {
		vote = *sent
	} else {
		nilBlock, err := rm.generator.GenerateNilBlock(round, rm.election)
		if err != nil {
			return types.Vote{}, fmt.Errorf("generating nil block for round %d: %w", round, err)
		}
		if vote, err = rm.voteBlock(nilBlock); err != nil {
			return types.Vote{}, err
		}
		rm.log.Infof("voted for nil block of round %d on timeout", round)
	}
	if vote.IsTimeout() {
		return vote, nil
	}

	timeout := vote.GenerateTimeout(rm.blocks.HighestQuorumCert())
	sig, err := rm.safety.SignTimeoutWithQC(timeout, rm.blocks.HighestTwoChainTimeoutCert())
	if err != nil {
		return types.Vote{}, fmt.Errorf("signing timeout for round %d: %w", round, err)
	}
	vote.AddTimeout(timeout, sig)
	return vote, nil
}

func (rm *RoundManager) broadcastRoundTimeout(round basics.Round) error {
	rt := rm.roundState.TimeoutSent()
	if rt == nil {
		timeout := types.TwoChainTimeout{Epoch: rm.epoch, Round: round, QuorumCert: rm.blocks.HighestQuorumCert()}
		sig, err := rm.safety.SignTimeoutWithQC(timeout, rm.blocks.HighestTwoChainTimeoutCert())
		if err != nil {
			return fmt.Errorf("signing timeout for round %d: %w", round, err)
		}
		rt = &types.RoundTimeout{
			Timeout:   timeout,
			Author:    rm.author,
			Reason:    rm.computeTimeoutReason(round),
			Signature: sig,
		}
		rm.roundState.RecordRoundTimeout(*rt)
	}
	rm.network.BroadcastRoundTimeout(types.RoundTimeoutMsg{Timeout: *rt, SyncInfo: rm.blocks.SyncInfo()})
	rm.sink.Inc(timeoutsSent, kindLabels("round_timeout"))
	return &TimeoutError{Round: round}
}

// computeTimeoutReason explains the local timeout of round.
func (rm *RoundManager) computeTimeoutReason(round basics.Round) types.RoundTimeoutReason {
	if v := rm.roundState.VoteSent(); v != nil && v.Round() == round {
		return types.RoundTimeoutReason{Kind: types.TimeoutReasonNoQC}
	}
	block, ok := rm.blocks.PendingBlocks().GetByRound(round)
	if !ok {
		return types.RoundTimeoutReason{Kind: types.TimeoutReasonProposalNotReceived}
	}
	if ready, missing := rm.blocks.CheckPayload(block); !ready {
		return types.RoundTimeoutReason{Kind: types.TimeoutReasonPayloadUnavailable, MissingAuthors: missing}
	}
	return types.RoundTimeoutReason{Kind: types.TimeoutReasonUnknown}
}
