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
	"time"

	"github.com/algorand/go-twochain/consensus/safety"
	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/data/basics"
)

const minBackPressurePoll = 10 * time.Millisecond

// ProcessProposalMsg syncs up to the certificates carried with a proposal
// and processes it when it is for the current round. Proposals for older
// rounds are dropped.
func (rm *RoundManager) ProcessProposalMsg(ctx context.Context, msg types.ProposalMsg) error {
	current, err := rm.ensureRoundAndSyncUp(ctx, msg.Round(), msg.SyncInfo, msg.Author())
	if err != nil {
		return err
	}
	if !current {
		rm.sink.Inc(staleMessages, kindLabels("proposal"))
		return nil
	}
	return rm.processProposal(ctx, msg.Proposal)
}

func (rm *RoundManager) rejectProposal(reason string, author basics.Address, err error) error {
	rm.sink.Inc(proposalsRejects, map[string]string{"reason": reason})
	return verificationError(author, err)
}

// processProposal validates a proposal for the current round, caches it,
// and votes once its payload is available and back pressure allows.
func (rm *RoundManager) processProposal(ctx context.Context, block types.Block) error {
	author, _ := block.Author()

	if !rm.cfg.ValidatorTxnsEnabled && block.Data.Type == types.ProposalExtBlock {
		return rm.rejectProposal("vtxn_disabled", author, fmt.Errorf("%v carries validator transactions, which are disabled", block))
	}
	var vtxnBytes uint64
	for _, vt := range block.Data.ValidatorTxns {
		if !vt.KnownKind() {
			return rm.rejectProposal("vtxn_kind", author, fmt.Errorf("%v carries a validator transaction of unknown kind %d", block, vt.Kind))
		}
		if err := vt.Verify(rm.verifier); err != nil {
			return rm.rejectProposal("vtxn_verify", author, fmt.Errorf("%v: %w", block, err))
		}
		vtxnBytes += vt.Size()
	}
	vtxnCount := uint64(len(block.Data.ValidatorTxns))
	if vtxnCount > rm.cfg.MaxValidatorTxnsPerBlock || vtxnBytes > rm.cfg.MaxValidatorTxnBytesPerBlock {
		return rm.rejectProposal("vtxn_limit", author, fmt.Errorf("%v carries %d validator transactions of %d bytes, limits %d and %d",
			block, vtxnCount, vtxnBytes, rm.cfg.MaxValidatorTxnsPerBlock, rm.cfg.MaxValidatorTxnBytesPerBlock))
	}
	payload := block.Payload()
	txns, size := payload.NumTxns()+vtxnCount, payload.Size()+vtxnBytes
	if txns > rm.cfg.MaxReceivingBlockTxns || size > rm.cfg.MaxReceivingBlockBytes {
		return rm.rejectProposal("payload_limit", author, fmt.Errorf("%v has %d transactions of %d bytes, limits %d and %d",
			block, txns, size, rm.cfg.MaxReceivingBlockTxns, rm.cfg.MaxReceivingBlockBytes))
	}
	if !rm.election.IsValidProposal(block) {
		return rm.rejectProposal("proposer", author, fmt.Errorf("%v is not the single valid proposal of round %d", block, block.Round()))
	}
	if err := rm.blocks.CheckDeniedInlineTransactions(block, rm.denied); err != nil {
		return rm.rejectProposal("denied_inline", author, err)
	}
	if !block.IsOptBlock() {
		expected := rm.generator.ComputeFailedAuthors(block.Round(), block.QuorumCert().Round(), false, rm.election)
		if !sameFailedAuthors(block.Data.FailedAuthors, expected) {
			return rm.rejectProposal("failed_authors", author, fmt.Errorf("%v failed authors %v, expected %v", block, block.Data.FailedAuthors, expected))
		}
	}
	if deadline := rm.roundState.CurrentRoundDeadline(); block.Timestamp() >= uint64(deadline.UnixMicro()) {
		return rm.rejectProposal("timestamp", author, fmt.Errorf("%v timestamp %d is past the round deadline %v", block, block.Timestamp(), deadline))
	}

	rm.blocks.PendingBlocks().Insert(block)
	if ok, _ := rm.blocks.CheckPayload(block); !ok {
		rm.waitForPayload(block)
		return nil
	}
	return rm.checkBackpressureAndProcessProposal(ctx, block)
}

func sameFailedAuthors(a, b []types.FailedAuthor) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Round != b[i].Round || a[i].Author != b[i].Author {
			return false
		}
	}
	return true
}

// waitForPayload waits for the payload in a task bounded by the current
// round deadline and hands the block back to the loop.
func (rm *RoundManager) waitForPayload(block types.Block) {
	deadline := rm.roundState.CurrentRoundDeadline()
	rm.spawn(func(ctx context.Context) {
		wctx, cancel := context.WithDeadline(ctx, deadline)
		defer cancel()
		err := rm.blocks.WaitForPayload(wctx, block)
		select {
		case rm.payloadReady <- payloadResult{block: block, err: err}:
		case <-ctx.Done():
		}
	})
}

func (rm *RoundManager) processPayloadReady(ctx context.Context, res payloadResult) error {
	if res.err != nil {
		rm.sink.Inc(payloadWaits, kindLabels("expired"))
		return fmt.Errorf("waiting for the payload of %v: %w", res.block, res.err)
	}
	rm.sink.Inc(payloadWaits, kindLabels("ready"))
	return rm.checkBackpressureAndProcessProposal(ctx, res.block)
}

// checkBackpressureAndProcessProposal votes unless execution lags too far
// behind ordering. A throttled proposal is handed back to the loop once
// the lag clears, or dropped after the configured total wait.
func (rm *RoundManager) checkBackpressureAndProcessProposal(ctx context.Context, block types.Block) error {
	if rm.blocks.VoteBackPressure() {
		rm.sink.Inc(backPressureDelay, kindLabels("delayed"))
		rm.resendWhenClear(block)
		return nil
	}
	return rm.processVerifiedProposal(ctx, block)
}

func (rm *RoundManager) resendWhenClear(block types.Block) {
	poll, total := rm.cfg.BackPressurePollInterval, rm.cfg.BackPressureTotalWait
	if poll < minBackPressurePoll {
		poll = minBackPressurePoll
	}
	author, _ := block.Author()
	rm.spawn(func(ctx context.Context) {
		ticker := time.NewTicker(poll)
		defer ticker.Stop()
		expired := time.NewTimer(total)
		defer expired.Stop()
		for rm.blocks.VoteBackPressure() {
			select {
			case <-ctx.Done():
				return
			case <-expired.C:
				rm.sink.Inc(backPressureDelay, kindLabels("dropped"))
				rm.log.Debugf("dropping %v after waiting %v for back pressure", block, total)
				return
			case <-ticker.C:
			}
		}
		select {
		case rm.proposals <- proposalEvent{author: author, msg: types.ProposalMsg{Proposal: block}, delayed: true}:
		case <-ctx.Done():
		}
	})
}

// processDelayedProposal votes on a proposal released by back pressure if
// its round is still current.
func (rm *RoundManager) processDelayedProposal(ctx context.Context, block types.Block) error {
	if block.Round() != rm.roundState.CurrentRound() {
		rm.sink.Inc(staleMessages, kindLabels("delayed_proposal"))
		return nil
	}
	return rm.processVerifiedProposal(ctx, block)
}

// processVerifiedProposal votes on a validated proposal and sends the vote.
func (rm *RoundManager) processVerifiedProposal(ctx context.Context, block types.Block) error {
	si := rm.blocks.SyncInfo()
	if block.Round() <= si.HighestRound() {
		rm.sink.Inc(staleMessages, kindLabels("verified_proposal"))
		rm.log.Debugf("ignoring %v, certificates already reach round %d", block, si.HighestRound())
		return nil
	}
	vote, err := rm.voteBlock(block)
	if err != nil {
		return err
	}
	rm.roundState.RecordVote(vote)
	rm.broadcastFastShare(vote.VoteData.Proposed)
	rm.sendVote(vote)
	rm.startNextOptRound(vote, block.QuorumCert())
	return nil
}

// voteBlock executes block and signs this round's single vote for it. The
// vote is durable before it is returned.
func (rm *RoundManager) voteBlock(block types.Block) (types.Vote, error) {
	executed, err := rm.blocks.InsertBlock(block)
	if err != nil {
		return types.Vote{}, fmt.Errorf("inserting %v: %w", block, err)
	}
	if rm.roundState.VoteSent() != nil {
		return types.Vote{}, fmt.Errorf("%w: round %d", errAlreadyVoted, rm.roundState.CurrentRound())
	}
	if rm.cfg.SyncOnly {
		return types.Vote{}, fmt.Errorf("not voting for %v: %w", block, ErrSyncOnlyMode)
	}
	vote, err := rm.safety.ConstructAndSignVoteTwoChain(safety.VoteProposal{Block: block, Executed: executed}, rm.blocks.HighestTwoChainTimeoutCert())
	if err != nil {
		return types.Vote{}, fmt.Errorf("voting for %v: %w", block, err)
	}
	if err := rm.storage.SaveVote(vote); err != nil {
		return types.Vote{}, fmt.Errorf("persisting %v: %w", vote, err)
	}
	return vote, nil
}

// sendVote broadcasts timeout votes, and regular votes when configured;
// otherwise the vote goes to the next round's leader only.
func (rm *RoundManager) sendVote(vote types.Vote) {
	msg := types.VoteMsg{Vote: vote, SyncInfo: rm.blocks.SyncInfo()}
	rm.sink.Inc(votesSent, nil)
	if rm.cfg.BroadcastVote || vote.IsTimeout() {
		rm.network.BroadcastVote(msg)
		return
	}
	rm.network.SendVote(msg, []basics.Address{rm.election.ValidProposer(vote.Round() + 1)})
}

// broadcastFastShare sends one randomness share per voted block.
func (rm *RoundManager) broadcastFastShare(bi types.BlockInfo) {
	if !rm.cfg.EnableFastShare || rm.fastShares.Contains(bi.ID) {
		return
	}
	share, err := rm.safety.SignFastShare(bi.Epoch, bi.Round, bi.ID)
	if err != nil {
		rm.log.Warnf("signing fast share for %v: %v", bi, err)
		return
	}
	rm.fastShares.Add(bi.ID, struct{}{})
	rm.network.BroadcastFastShare(types.FastShareMsg{Epoch: bi.Epoch, Round: bi.Round, BlockID: bi.ID, Author: rm.author, Share: share})
	rm.sink.Inc(fastSharesSent, nil)
}

// generateAndSendProposal runs in a spawned task for rounds this node
// leads. It must not touch loop-owned state.
func (rm *RoundManager) generateAndSendProposal(ctx context.Context, round basics.Round) error {
	bd, err := rm.generator.GenerateProposal(ctx, round, rm.election)
	if err != nil {
		return err
	}
	sig, err := rm.safety.SignProposal(bd)
	if err != nil {
		return fmt.Errorf("signing proposal for round %d: %w", round, err)
	}
	block := types.MakeSignedBlock(bd, sig)
	rm.network.BroadcastProposal(types.ProposalMsg{Proposal: block, SyncInfo: rm.blocks.SyncInfo()})
	rm.sink.Inc(proposalsSent, kindLabels("regular"))
	rm.log.Infof("proposed %v", block)
	return nil
}
