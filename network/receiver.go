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

package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/algorand/go-deadlock"
	"golang.org/x/time/rate"

	"github.com/algorand/go-twochain/config"
	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/data/basics"
	"github.com/algorand/go-twochain/logging"
	"github.com/algorand/go-twochain/protocol"
	"github.com/algorand/go-twochain/util/execpool"
	"github.com/algorand/go-twochain/util/metrics"
)

const maxRetrievalBlocks = 256

var (
	errEpochMismatch  = errors.New("message for another epoch")
	errAuthorMismatch = errors.New("sender is not the author")
)

// Inbox accepts verified consensus messages. Proposals travel on their own
// queue; every other message is an event.
type Inbox interface {
	DeliverProposal(ctx context.Context, author basics.Address, msg types.ProposalMsg) error
	DeliverEvent(ctx context.Context, author basics.Address, msg interface{}) error
}

type verifiable interface {
	Verify(v *types.ValidatorVerifier) error
}

func decodeAs[T verifiable](data []byte) (verifiable, error) {
	var m T
	err := protocol.DecodeReflect(data, &m)
	return m, err
}

var decoders = map[Tag]func([]byte) (verifiable, error){
	protocol.ProposalTag:        decodeAs[types.ProposalMsg],
	protocol.OptProposalTag:     decodeAs[types.OptProposalMsg],
	protocol.VoteTag:            decodeAs[types.VoteMsg],
	protocol.RoundTimeoutTag:    decodeAs[types.RoundTimeoutMsg],
	protocol.OrderVoteTag:       decodeAs[types.OrderVoteMsg],
	protocol.SyncInfoTag:        decodeAs[types.SyncInfo],
	protocol.BatchTag:           decodeAs[types.BatchMsg],
	protocol.SignedBatchInfoTag: decodeAs[types.SignedBatchInfoMsg],
	protocol.ProofOfStoreTag:    decodeAs[types.ProofOfStoreMsg],
	protocol.FastShareTag:       decodeAs[types.FastShareMsg],
}

// bulkTags are verified at low priority and dropped when the backlog is full.
var bulkTags = map[Tag]bool{
	protocol.BatchTag:           true,
	protocol.SignedBatchInfoTag: true,
	protocol.ProofOfStoreTag:    true,
	protocol.FastShareTag:       true,
}

func messageEpoch(msg verifiable) basics.Epoch {
	switch m := msg.(type) {
	case types.FastShareMsg:
		return m.Epoch
	case interface{ Epoch() basics.Epoch }:
		return m.Epoch()
	}
	return 0
}

type verifyTask struct {
	author basics.Address
	tag    Tag
	msg    verifiable
}

type verifyResult struct {
	verifyTask
	err error
}

// Receiver is the inbound pipeline: it bounds message size and per-peer
// rate, decodes, checks the epoch, verifies signatures on a worker backlog
// and delivers the result to an Inbox. Messages from this node skip
// verification.
type Receiver struct {
	self     basics.Address
	epoch    basics.Epoch
	verifier *types.ValidatorVerifier
	inbox    Inbox

	backlog  execpool.BacklogPool
	verified chan interface{}

	limit      rate.Limit
	burst      int
	limitersMu deadlock.Mutex
	limiters   map[basics.Address]*rate.Limiter

	retrievalTimeout time.Duration
	metrics          metrics.Sink
	log              logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// MakeReceiver creates a receiver for epoch. Start must be called before
// messages are handled.
func MakeReceiver(self basics.Address, epoch basics.Epoch, verifier *types.ValidatorVerifier, inbox Inbox, cfg config.Local, sink metrics.Sink, log logging.Logger) *Receiver {
	limit := rate.Inf
	if cfg.InboundMessagesPerSecond > 0 {
		limit = rate.Limit(cfg.InboundMessagesPerSecond)
	}
	r := &Receiver{
		self:             self,
		epoch:            epoch,
		verifier:         verifier,
		inbox:            inbox,
		verified:         make(chan interface{}, cfg.VerifierBacklogSize),
		limit:            limit,
		burst:            cfg.InboundBurst,
		limiters:         make(map[basics.Address]*rate.Limiter),
		retrievalTimeout: cfg.RoundInitialTimeout,
		metrics:          sink,
		log:              log,
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	return r
}

// Handlers lists the handlers to register with a GossipNode.
func (r *Receiver) Handlers() []TaggedMessageHandler {
	out := make([]TaggedMessageHandler, 0, len(decoders)+1)
	for _, tag := range protocol.TagList {
		if _, ok := decoders[tag]; ok || tag == protocol.BlockRetrievalReqTag {
			out = append(out, TaggedMessageHandler{Tag: tag, MessageHandler: r})
		}
	}
	return out
}

// Start runs the verification backlog and the delivery thread.
func (r *Receiver) Start() {
	r.backlog = execpool.MakeBacklog(nil, cap(r.verified), r)
	r.wg.Add(1)
	go r.deliverVerified()
}

// Stop stops delivery. Messages in flight are dropped.
func (r *Receiver) Stop() {
	r.cancel()
	if r.backlog != nil {
		r.backlog.Shutdown()
	}
	r.wg.Wait()
}

func (r *Receiver) reject(reason string, msg IncomingMessage, err error) OutgoingMessage {
	r.metrics.Inc(inboundRejected, reasonLabels(reason))
	if err != nil {
		r.log.Infof("rejected %s message from %v (%s): %v", msg.Tag, msg.Sender, reason, err)
	}
	return OutgoingMessage{}
}

func (r *Receiver) allow(sender basics.Address) bool {
	if sender == r.self {
		return true
	}
	r.limitersMu.Lock()
	defer r.limitersMu.Unlock()
	l, ok := r.limiters[sender]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[sender] = l
	}
	return l.Allow()
}

// Handle implements MessageHandler.
func (r *Receiver) Handle(msg IncomingMessage) OutgoingMessage {
	if uint64(len(msg.Data)) > msg.Tag.MaxMessageSize() {
		return r.reject("oversize", msg, fmt.Errorf("%d bytes", len(msg.Data)))
	}
	if !r.verifier.Contains(msg.Sender) {
		return r.reject("unknown_sender", msg, nil)
	}
	if !r.allow(msg.Sender) {
		return r.reject("rate_limited", msg, nil)
	}
	if msg.Tag == protocol.BlockRetrievalReqTag {
		return r.serveRetrieval(msg)
	}

	decode, ok := decoders[msg.Tag]
	if !ok {
		return r.reject("unknown_tag", msg, nil)
	}
	decoded, err := decode(msg.Data)
	if err != nil {
		return r.reject("decode", msg, err)
	}
	if e := messageEpoch(decoded); e != r.epoch {
		return r.reject("epoch", msg, fmt.Errorf("%w: %d", errEpochMismatch, e))
	}
	// optimistic proposal bodies are unsigned
	if opt, ok := decoded.(types.OptProposalMsg); ok && opt.Author() != msg.Sender {
		return r.reject("author_mismatch", msg, fmt.Errorf("%w: names %v", errAuthorMismatch, opt.Author()))
	}

	task := verifyTask{author: msg.Sender, tag: msg.Tag, msg: decoded}
	if msg.Sender == r.self {
		r.dispatch(task)
		return OutgoingMessage{}
	}
	if bulkTags[msg.Tag] {
		// batch traffic is shed rather than holding up consensus messages
		if err := r.backlog.TryEnqueue(r.verify, task, execpool.LowPriority, r.verified); err != nil {
			return r.reject("backlog_full", msg, err)
		}
		return OutgoingMessage{}
	}
	if err := r.backlog.Enqueue(r.ctx, r.verify, task, execpool.HighPriority, r.verified); err != nil {
		return r.reject("shutdown", msg, nil)
	}
	return OutgoingMessage{}
}

func (r *Receiver) verify(arg interface{}) interface{} {
	task := arg.(verifyTask)
	return verifyResult{verifyTask: task, err: task.msg.Verify(r.verifier)}
}

func (r *Receiver) deliverVerified() {
	defer r.wg.Done()
	for {
		select {
		case res := <-r.verified:
			vr := res.(verifyResult)
			if vr.err != nil {
				r.metrics.Inc(inboundRejected, reasonLabels("verification"))
				r.log.Warnf("%s message from %v failed verification: %v", vr.tag, vr.author, vr.err)
				continue
			}
			r.dispatch(vr.verifyTask)
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Receiver) dispatch(task verifyTask) {
	var err error
	if p, ok := task.msg.(types.ProposalMsg); ok {
		err = r.inbox.DeliverProposal(r.ctx, task.author, p)
	} else {
		err = r.inbox.DeliverEvent(r.ctx, task.author, task.msg)
	}
	if err != nil {
		r.log.Debugf("dropping %s message from %v: %v", task.tag, task.author, err)
		return
	}
	r.metrics.Inc(inboundVerified, tagLabels(task.tag))
}

func (r *Receiver) serveRetrieval(msg IncomingMessage) OutgoingMessage {
	var req types.BlockRetrievalRequest
	if err := protocol.DecodeReflect(msg.Data, &req); err != nil {
		return r.reject("decode", msg, err)
	}
	if req.NumBlocks > maxRetrievalBlocks {
		req.NumBlocks = maxRetrievalBlocks
	}
	ctx, cancel := context.WithTimeout(r.ctx, r.retrievalTimeout)
	defer cancel()
	responses := make(chan types.BlockRetrievalResponse, 1)
	if err := r.inbox.DeliverEvent(ctx, msg.Sender, types.IncomingBlockRetrieval{Request: req, Response: responses}); err != nil {
		return r.reject("retrieval_dropped", msg, err)
	}
	select {
	case resp := <-responses:
		return OutgoingMessage{Action: Respond, Tag: protocol.BlockRetrievalResTag, Payload: protocol.EncodeReflect(resp)}
	case <-ctx.Done():
		return r.reject("retrieval_timeout", msg, ctx.Err())
	}
}
