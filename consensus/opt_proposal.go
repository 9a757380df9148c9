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

// ProcessOptProposalMsg accepts an optimistic proposal. One for the current
// round is queued for processing, one for a future round is buffered until
// the node enters that round. Only the first proposal per round is kept.
// The body is not signed, so sender must be its author.
func (rm *RoundManager) ProcessOptProposalMsg(ctx context.Context, sender basics.Address, msg types.OptProposalMsg) error {
	author := msg.Author()
	if !rm.cfg.EnableOptProposalRx {
		return fmt.Errorf("%w: dropping round %d from %s", errOptRxDisabled, msg.Round(), sender.ShortString())
	}
	if author != sender {
		return verificationError(sender, fmt.Errorf("optimistic proposal for round %d names author %s", msg.Round(), author.ShortString()))
	}
	if err := rm.syncUp(ctx, msg.SyncInfo, author); err != nil {
		return err
	}

	round, current := msg.Round(), rm.roundState.CurrentRound()
	switch {
	case round < current:
		rm.sink.Inc(staleMessages, kindLabels("opt_proposal"))
		return nil
	case round == current:
		rm.optQueue = append(rm.optQueue, msg.Block)
		return nil
	}
	if !rm.election.IsValidProposer(author, round) {
		return verificationError(author, fmt.Errorf("optimistic proposal for round %d from a node that does not lead it", round))
	}
	if _, ok := rm.pendingOpt[round]; ok {
		rm.log.Debugf("already holding an optimistic proposal for round %d", round)
		return nil
	}
	rm.pendingOpt[round] = msg.Block
	return nil
}

// processOptBlock turns an optimistic proposal for the current round into
// a block extending the highest certified block and processes it like any
// other proposal.
func (rm *RoundManager) processOptBlock(ctx context.Context, opt types.OptBlockData) error {
	if opt.Round != rm.roundState.CurrentRound() {
		rm.sink.Inc(staleMessages, kindLabels("opt_block"))
		return nil
	}
	if b, ok := rm.blocks.PendingBlocks().GetByRound(opt.Round); ok {
		rm.log.Debugf("ignoring optimistic proposal for round %d, already received %v", opt.Round, b)
		return nil
	}
	hqc := rm.blocks.HighestQuorumCert()
	if hqc.Round()+1 != opt.Round {
		return fmt.Errorf("optimistic proposal for round %d needs a quorum cert for round %d, highest is %d", opt.Round, opt.Round-1, hqc.Round())
	}
	if certified := hqc.CertifiedBlock(); certified.ID != opt.Parent.ID {
		return verificationError(opt.Author, fmt.Errorf("optimistic proposal parent %v is not the certified block %v", opt.Parent, certified))
	}
	return rm.processProposal(ctx, types.MakeBlock(types.MakeOptimisticBlockData(opt, hqc)))
}

// startNextOptRound proposes the round after the one just voted, before its
// quorum cert forms, when this node leads it.
func (rm *RoundManager) startNextOptRound(vote types.Vote, grandparentQC types.QuorumCert) {
	parent := vote.VoteData.Proposed
	round := parent.Round + 1
	if !rm.cfg.EnableOptProposalTx || !rm.election.IsValidProposer(rm.author, round) {
		return
	}
	si := rm.blocks.SyncInfo()
	if grandparentQC.Round()+1 != parent.Round || si.HighestRound()+2 != round {
		rm.sink.Inc(optSkipped, kindLabels("not_consecutive"))
		rm.log.Debugf("not proposing optimistically for round %d, parent %d grandparent %d sync %d",
			round, parent.Round, grandparentQC.Round(), si.HighestRound())
		return
	}
	rm.optSentRound = round
	rm.spawn(func(ctx context.Context) {
		opt, err := rm.generator.GenerateOptProposal(ctx, round, parent, grandparentQC)
		if err != nil {
			rm.log.Warnf("proposing optimistically for round %d: %v", round, err)
			return
		}
		rm.network.BroadcastOptProposal(types.OptProposalMsg{Block: opt, SyncInfo: si})
		rm.sink.Inc(proposalsSent, kindLabels("optimistic"))
		rm.log.Infof("proposed optimistically for round %d on %v", round, parent)
	})
}
