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

	"github.com/algorand/go-twochain/blockstore"
	"github.com/algorand/go-twochain/consensus/liveness"
	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
	"github.com/algorand/go-twochain/logging"
)

// ensureRoundAndSyncUp brings the node up to si and reports whether a
// message for round can be processed. It returns false for older rounds.
func (rm *RoundManager) ensureRoundAndSyncUp(ctx context.Context, round basics.Round, si types.SyncInfo, author basics.Address) (bool, error) {
	if round < rm.roundState.CurrentRound() {
		return false, nil
	}
	if err := rm.syncUp(ctx, si, author); err != nil {
		return false, err
	}
	if current := rm.roundState.CurrentRound(); round != current {
		return false, protocolViolation("round %d from %s does not match local round %d after sync", round, author.ShortString(), current)
	}
	return true, nil
}

// syncUp verifies and inserts the certificates of si that are newer than
// the local ones, fetching missing blocks from author first.
func (rm *RoundManager) syncUp(ctx context.Context, si types.SyncInfo, author basics.Address) error {
	local := rm.blocks.SyncInfo()
	if !si.HasNewerCertificates(local) {
		return nil
	}
	if err := si.Verify(rm.verifier); err != nil {
		return verificationError(author, err)
	}
	rm.log.Debugf("syncing up to %v from %s", si, author.ShortString())
	err := rm.blocks.AddCerts(ctx, si, rm.retriever(author))
	if perr := rm.processCertificates(ctx); perr != nil {
		return perr
	}
	if err != nil {
		return fmt.Errorf("syncing up to %v from %s: %w", si, author.ShortString(), err)
	}
	return nil
}

// ProcessSyncInfoMsg answers a peer that is behind with the local sync
// info and syncs up to a peer that is ahead.
func (rm *RoundManager) ProcessSyncInfoMsg(ctx context.Context, si types.SyncInfo, peer basics.Address) error {
	local := rm.blocks.SyncInfo()
	if local.HasNewerCertificates(si) && peer != rm.author {
		rm.network.SendSyncInfo(local, peer)
	}
	_, err := rm.ensureRoundAndSyncUp(ctx, si.HighestRound()+1, si, peer)
	return err
}

// processCertificates moves to a new round when the stored certificates
// prove one.
func (rm *RoundManager) processCertificates(ctx context.Context) error {
	si := rm.blocks.SyncInfo()
	rm.sink.Set(orderedRoundGauge, float64(si.HighestOrderedRound()))
	ev, ok := rm.roundState.ProcessCertificates(si, rm.verifier)
	if !ok {
		return nil
	}
	return rm.processNewRoundEvent(ctx, ev)
}

// processNewRoundEvent enters ev.Round: it prunes per-round state, replays
// a buffered optimistic proposal and starts proposing if this node leads.
func (rm *RoundManager) processNewRoundEvent(ctx context.Context, ev liveness.NewRoundEvent) error {
	rm.sink.Set(currentRoundGauge, float64(ev.Round))
	rm.sink.Inc(newRounds, map[string]string{"reason": ev.Reason.String()})
	rm.log.WithFields(logging.Fields{"round": ev.Round, "reason": ev.Reason.String()}).Infof("entering %v", ev)

	ordered := rm.blocks.SyncInfo().HighestOrderedRound()
	rm.orderVotes.GarbageCollect(ordered)
	rm.blocks.PendingBlocks().GC(ordered)

	var err error
	if ev.Reason == liveness.Timeout {
		if serr := rm.storage.SaveHighestTimeoutCert(rm.blocks.HighestTwoChainTimeoutCert()); serr != nil {
			err = fmt.Errorf("persisting timeout certificate of round %d: %w", ev.Round-1, serr)
		}
	}

	for r := range rm.pendingOpt {
		if r < ev.Round {
			delete(rm.pendingOpt, r)
		}
	}
	if opt, ok := rm.pendingOpt[ev.Round]; ok {
		delete(rm.pendingOpt, ev.Round)
		if ev.Reason == liveness.QCReady {
			rm.optQueue = append(rm.optQueue, opt)
		}
	}

	if rm.cfg.SyncOnly || !rm.election.IsValidProposer(rm.author, ev.Round) {
		return err
	}
	if ev.Reason == liveness.QCReady && rm.optSentRound == ev.Round {
		return err
	}
	round := ev.Round
	rm.spawn(func(ctx context.Context) {
		if perr := rm.generateAndSendProposal(ctx, round); perr != nil {
			rm.log.Warnf("proposing for round %d: %v", round, perr)
		}
	})
	return err
}

// networkRetriever fetches blocks from the peer that sent the certificate,
// then from every other validator.
type networkRetriever struct {
	network   NetworkSender
	verifier  *types.ValidatorVerifier
	self      basics.Address
	preferred basics.Address
	timeout   time.Duration
	log       logging.Logger
}

var _ blockstore.Retriever = (*networkRetriever)(nil)

func (rm *RoundManager) retriever(peer basics.Address) *networkRetriever {
	return &networkRetriever{
		network:   rm.network,
		verifier:  rm.verifier,
		self:      rm.author,
		preferred: peer,
		timeout:   rm.cfg.BlockRetrievalTimeout,
		log:       rm.log,
	}
}

func (r *networkRetriever) peers() []basics.Address {
	peers := make([]basics.Address, 0, r.verifier.Len())
	if r.preferred != r.self && r.verifier.Contains(r.preferred) {
		peers = append(peers, r.preferred)
	}
	for _, addr := range r.verifier.Addresses() {
		if addr != r.self && addr != r.preferred {
			peers = append(peers, addr)
		}
	}
	return peers
}

// RetrieveBlocks implements blockstore.Retriever.
func (r *networkRetriever) RetrieveBlocks(ctx context.Context, id crypto.Digest, n uint64) ([]types.Block, error) {
	req := types.BlockRetrievalRequest{BlockID: id, NumBlocks: n}
	for _, peer := range r.peers() {
		blocks, err := r.retrieveFrom(ctx, req, peer)
		if err == nil {
			return blocks, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.log.Debugf("retrieving %d blocks from %v at %s: %v", n, id, peer.ShortString(), err)
	}
	return nil, fmt.Errorf("%w: %d blocks from %v", errNoRetrievalTarget, n, id)
}

func (r *networkRetriever) retrieveFrom(ctx context.Context, req types.BlockRetrievalRequest, peer basics.Address) ([]types.Block, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	resp, err := r.network.RequestBlocks(ctx, req, peer)
	if err != nil {
		return nil, err
	}
	if resp.Status != types.RetrievalSucceeded {
		return nil, fmt.Errorf("retrieval status %d", resp.Status)
	}
	if err := resp.Verify(req, r.verifier); err != nil {
		return nil, verificationError(peer, err)
	}
	return resp.Blocks, nil
}

// ProcessBlockRetrieval answers a peer's retrieval request from the local
// block tree and pending proposals. The reply never blocks the loop.
func (rm *RoundManager) ProcessBlockRetrieval(in types.IncomingBlockRetrieval) error {
	n := in.Request.NumBlocks
	if n > types.MaxBlocksPerRetrieval {
		n = types.MaxBlocksPerRetrieval
	}
	blocks, status := rm.blocks.GetBlocks(in.Request.BlockID, n)
	select {
	case in.Response <- types.BlockRetrievalResponse{Status: status, Blocks: blocks}:
		rm.sink.Add(blocksServed, uint64(len(blocks)), nil)
		return nil
	default:
		return fmt.Errorf("dropping retrieval response for %v, requester is not waiting", in.Request.BlockID)
	}
}
