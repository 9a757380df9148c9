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
	"errors"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/algorand/go-twochain/config"
	"github.com/algorand/go-twochain/consensus/liveness"
	"github.com/algorand/go-twochain/consensus/safety"
	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/consensus/votes"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
	"github.com/algorand/go-twochain/logging"
	"github.com/algorand/go-twochain/util/metrics"
)

const defaultFastShareCacheSize = 5

// Parameters holds the collaborators of a RoundManager for one epoch.
type Parameters struct {
	Epoch    basics.Epoch
	Verifier *types.ValidatorVerifier

	Blocks  BlockStore
	Safety  SafetyRules
	Network NetworkSender
	Storage PersistentLivenessStorage
	// QuorumStore is optional; without it batch acknowledgements and
	// proofs of store are dropped.
	QuorumStore QuorumStore

	Election   liveness.ProposerElection
	Generator  *liveness.ProposalGenerator
	RoundState *liveness.RoundState

	Config  config.Local
	Metrics metrics.Sink
	Log     logging.Logger
}

type inboundEvent struct {
	author basics.Address
	msg    interface{}
}

type proposalEvent struct {
	author basics.Address
	msg    types.ProposalMsg
	// delayed proposals were already validated and only wait for back
	// pressure to clear; their sync info is unused.
	delayed bool
}

type payloadResult struct {
	block types.Block
	err   error
}

// RoundManager is the consensus state machine of one epoch. A single
// goroutine owns its state; spawned tasks report back through channels.
type RoundManager struct {
	epoch    basics.Epoch
	author   basics.Address
	verifier *types.ValidatorVerifier
	cfg      config.Local
	denied   map[string]struct{}

	roundState  *liveness.RoundState
	election    *liveness.UnequivocalProposerElection
	generator   *liveness.ProposalGenerator
	blocks      BlockStore
	safety      SafetyRules
	network     NetworkSender
	storage     PersistentLivenessStorage
	quorumStore QuorumStore

	orderVotes     *votes.PendingOrderVotes
	orderVoteRound basics.Round

	// pendingOpt holds at most one optimistic proposal per future round.
	pendingOpt map[basics.Round]types.OptBlockData
	// optQueue is the loop-back queue of optimistic proposals ready for
	// the current round.
	optQueue     []types.OptBlockData
	optSentRound basics.Round
	fastShares   *lru.Cache[crypto.Digest, struct{}]

	proposals    chan proposalEvent
	events       chan inboundEvent
	payloadReady chan payloadResult

	ctx    context.Context
	cancel context.CancelFunc
	tasks  *errgroup.Group

	sink metrics.Sink
	log  logging.Logger
}

// MakeRoundManager wires a RoundManager. Call Start to recover and run it,
// and Shutdown to stop it.
func MakeRoundManager(p Parameters) (*RoundManager, error) {
	cacheSize := p.Config.FastShareCacheSize
	if cacheSize <= 0 {
		cacheSize = defaultFastShareCacheSize
	}
	shares, err := lru.New[crypto.Digest, struct{}](cacheSize)
	if err != nil {
		return nil, err
	}
	sink := p.Metrics
	if sink == nil {
		sink = metrics.NopSink{}
	}
	author := p.Network.Author()
	log := p.Log.WithFields(logging.Fields{"epoch": p.Epoch, "author": author.ShortString()})

	ctx, cancel := context.WithCancel(context.Background())
	group, ctx := errgroup.WithContext(ctx)
	return &RoundManager{
		epoch:        p.Epoch,
		author:       author,
		verifier:     p.Verifier,
		cfg:          p.Config,
		denied:       p.Config.DeniedSenders(),
		roundState:   p.RoundState,
		election:     liveness.MakeUnequivocalProposerElection(p.Election, log),
		generator:    p.Generator,
		blocks:       p.Blocks,
		safety:       p.Safety,
		network:      p.Network,
		storage:      p.Storage,
		quorumStore:  p.QuorumStore,
		orderVotes:   votes.MakePendingOrderVotes(),
		pendingOpt:   make(map[basics.Round]types.OptBlockData),
		fastShares:   shares,
		proposals:    make(chan proposalEvent, p.Config.ProposalQueueSize),
		events:       make(chan inboundEvent, p.Config.EventQueueSize),
		payloadReady: make(chan payloadResult, p.Config.ProposalQueueSize),
		ctx:          ctx,
		cancel:       cancel,
		tasks:        group,
		sink:         sink,
		log:          log,
	}, nil
}

// Init enters the round proven by the stored certificates. A vote cast for
// that round before a restart is restored and sent again.
func (rm *RoundManager) Init(ctx context.Context) error {
	rd, err := rm.storage.RecoveryData()
	if err != nil {
		return fmt.Errorf("loading liveness data: %w", err)
	}
	if tc := rd.HighestTimeoutCert; tc != nil && tc.Epoch() == rm.epoch {
		if err := rm.blocks.InsertTwoChainTimeoutCert(tc); err != nil {
			return err
		}
	}
	ev, ok := rm.roundState.ProcessCertificates(rm.blocks.SyncInfo(), rm.verifier)
	if !ok {
		return protocolViolation("cannot start a round from %v", rm.blocks.SyncInfo())
	}

	var lastVote *types.Vote
	if v := rd.LastVote; v != nil && v.Epoch() == rm.epoch && v.Round() == ev.Round {
		rm.roundState.RecordVote(*v)
		lastVote = v
	}
	if err := rm.processNewRoundEvent(ctx, ev); err != nil {
		rm.log.Warnf("entering recovered round %d: %v", ev.Round, err)
	}
	if lastVote != nil {
		rm.log.Infof("re-sending recovered %v", *lastVote)
		rm.sendVote(*lastVote)
	}
	return nil
}

// Start recovers the round and runs the event loop.
func (rm *RoundManager) Start() error {
	if err := rm.Init(rm.ctx); err != nil {
		return err
	}
	rm.tasks.Go(func() error {
		rm.run(rm.ctx)
		return nil
	})
	return nil
}

// Shutdown stops the event loop and waits for every spawned task.
func (rm *RoundManager) Shutdown() {
	rm.cancel()
	if err := rm.tasks.Wait(); err != nil {
		rm.log.Warnf("round manager tasks: %v", err)
	}
}

// CurrentRound is the round the state machine is in. It must only be read
// by the loop goroutine or while the loop is not running.
func (rm *RoundManager) CurrentRound() basics.Round {
	return rm.roundState.CurrentRound()
}

// DeliverProposal implements network.Inbox.
func (rm *RoundManager) DeliverProposal(ctx context.Context, author basics.Address, msg types.ProposalMsg) error {
	if rm.ctx.Err() != nil {
		return errShutdown
	}
	select {
	case rm.proposals <- proposalEvent{author: author, msg: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-rm.ctx.Done():
		return errShutdown
	}
}

// DeliverEvent implements network.Inbox.
func (rm *RoundManager) DeliverEvent(ctx context.Context, author basics.Address, msg interface{}) error {
	if rm.ctx.Err() != nil {
		return errShutdown
	}
	select {
	case rm.events <- inboundEvent{author: author, msg: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-rm.ctx.Done():
		return errShutdown
	}
}

// spawn runs fn in a tracked task that is cancelled on shutdown.
func (rm *RoundManager) spawn(fn func(ctx context.Context)) {
	rm.tasks.Go(func() error {
		fn(rm.ctx)
		return nil
	})
}

// run is the event loop. Sources are polled in priority order: shutdown,
// the optimistic loop-back queue, proposals, payload results, and then
// everything else including the round deadline.
func (rm *RoundManager) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if len(rm.optQueue) > 0 {
			opt := rm.optQueue[0]
			rm.optQueue = rm.optQueue[1:]
			rm.handle("opt_block", rm.processOptBlock(ctx, opt))
			continue
		}

		select {
		case p := <-rm.proposals:
			rm.processProposalBatch(ctx, p)
			continue
		default:
		}

		select {
		case res := <-rm.payloadReady:
			rm.handle("payload_ready", rm.processPayloadReady(ctx, res))
			continue
		default:
		}

		round, deadline := rm.roundState.Deadline()
		select {
		case <-ctx.Done():
			return
		case p := <-rm.proposals:
			rm.processProposalBatch(ctx, p)
		case res := <-rm.payloadReady:
			rm.handle("payload_ready", rm.processPayloadReady(ctx, res))
		case ev := <-rm.events:
			name, err := rm.processEvent(ctx, ev)
			rm.handle(name, err)
		case <-deadline:
			rm.handle("local_timeout", rm.ProcessLocalTimeout(ctx, round))
		}
	}
}

// processProposalBatch drains the proposals already queued behind first
// and processes them in round order. A batch that does not start at the
// next round is collapsed to its highest proposal.
func (rm *RoundManager) processProposalBatch(ctx context.Context, first proposalEvent) {
	batch := []proposalEvent{first}
drain:
	for {
		select {
		case p := <-rm.proposals:
			batch = append(batch, p)
		default:
			break drain
		}
	}
	for _, p := range collapseProposals(batch, rm.roundState.CurrentRound()) {
		if p.delayed {
			rm.handle("delayed_proposal", rm.processDelayedProposal(ctx, p.msg.Proposal))
			continue
		}
		rm.handle("proposal", rm.ProcessProposalMsg(ctx, p.msg))
	}
}

func collapseProposals(batch []proposalEvent, current basics.Round) []proposalEvent {
	sort.SliceStable(batch, func(i, j int) bool {
		return batch[i].msg.Round() < batch[j].msg.Round()
	})
	if batch[0].msg.Round() > current+1 {
		return batch[len(batch)-1:]
	}
	return batch
}

func (rm *RoundManager) processEvent(ctx context.Context, ev inboundEvent) (string, error) {
	switch m := ev.msg.(type) {
	case types.VoteMsg:
		return "vote", rm.ProcessVoteMsg(ctx, m)
	case types.RoundTimeoutMsg:
		return "round_timeout", rm.ProcessRoundTimeoutMsg(ctx, m)
	case types.OrderVoteMsg:
		return "order_vote", rm.ProcessOrderVoteMsg(ctx, ev.author, m)
	case types.SyncInfo:
		return "sync_info", rm.ProcessSyncInfoMsg(ctx, m, ev.author)
	case types.OptProposalMsg:
		return "opt_proposal", rm.ProcessOptProposalMsg(ctx, ev.author, m)
	case types.IncomingBlockRetrieval:
		return "block_retrieval", rm.ProcessBlockRetrieval(m)
	case types.BatchMsg:
		return "batch", rm.processBatch(m)
	case types.SignedBatchInfoMsg:
		if rm.quorumStore == nil {
			return "signed_batch_info", nil
		}
		return "signed_batch_info", rm.quorumStore.ProcessSignedBatchInfo(ev.author, m)
	case types.ProofOfStoreMsg:
		if rm.quorumStore == nil {
			return "proof_of_store", nil
		}
		return "proof_of_store", rm.quorumStore.ProcessProofOfStore(ev.author, m)
	case types.FastShareMsg:
		rm.sink.Inc(fastSharesRecv, nil)
		return "fast_share", nil
	default:
		return "unknown", protocolViolation("unexpected event %T from %s", ev.msg, ev.author.ShortString())
	}
}

// handle logs and counts a handler error. The loop always continues.
func (rm *RoundManager) handle(event string, err error) {
	if err == nil {
		return
	}
	rm.sink.Inc(eventErrors, map[string]string{"event": event})
	l := rm.log.WithFields(logging.Fields{"event": event, "round": rm.roundState.CurrentRound()})

	var timeout *TimeoutError
	switch {
	case errors.As(err, &timeout), errors.Is(err, ErrSyncOnlyMode):
		l.Info(err)
	case safety.IsRejection(err):
		l.Warnf("rejected by safety rules: %v", err)
	default:
		l.Warn(err)
	}
}

func (rm *RoundManager) processBatch(msg types.BatchMsg) error {
	for _, b := range msg.Batches {
		rm.blocks.AddBatch(b)
	}
	return nil
}
