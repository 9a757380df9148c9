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
	"fmt"

	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/data/basics"
	"github.com/algorand/go-twochain/logging"
	"github.com/algorand/go-twochain/protocol"
)

// Sender encodes consensus messages and hands them to a GossipNode. Sends
// are fire-and-forget; failures are logged.
type Sender struct {
	net GossipNode
	log logging.Logger
}

// MakeSender wraps net.
func MakeSender(net GossipNode, log logging.Logger) *Sender {
	return &Sender{net: net, log: log}
}

// Author is the address messages are sent from.
func (s *Sender) Author() basics.Address {
	return s.net.Address()
}

func (s *Sender) broadcast(tag Tag, obj interface{}) {
	if err := s.net.Broadcast(context.Background(), tag, protocol.EncodeReflect(obj), basics.Address{}); err != nil {
		s.log.Warnf("broadcasting %s: %v", tag, err)
	}
}

func (s *Sender) send(tag Tag, obj interface{}, to []basics.Address) {
	data := protocol.EncodeReflect(obj)
	for _, addr := range to {
		if err := s.net.Unicast(context.Background(), addr, tag, data); err != nil {
			s.log.Warnf("sending %s to %v: %v", tag, addr, err)
		}
	}
}

// BroadcastProposal sends a proposal to every validator.
func (s *Sender) BroadcastProposal(msg types.ProposalMsg) {
	s.broadcast(protocol.ProposalTag, msg)
}

// BroadcastOptProposal sends an optimistic proposal to every validator.
func (s *Sender) BroadcastOptProposal(msg types.OptProposalMsg) {
	s.broadcast(protocol.OptProposalTag, msg)
}

// BroadcastVote sends a vote to every validator.
func (s *Sender) BroadcastVote(msg types.VoteMsg) {
	s.broadcast(protocol.VoteTag, msg)
}

// SendVote sends a vote to the given validators only.
func (s *Sender) SendVote(msg types.VoteMsg, to []basics.Address) {
	s.send(protocol.VoteTag, msg, to)
}

// BroadcastRoundTimeout sends a round timeout to every validator.
func (s *Sender) BroadcastRoundTimeout(msg types.RoundTimeoutMsg) {
	s.broadcast(protocol.RoundTimeoutTag, msg)
}

// BroadcastOrderVote sends an order vote to every validator.
func (s *Sender) BroadcastOrderVote(msg types.OrderVoteMsg) {
	s.broadcast(protocol.OrderVoteTag, msg)
}

// BroadcastSyncInfo sends sync info to every validator.
func (s *Sender) BroadcastSyncInfo(si types.SyncInfo) {
	s.broadcast(protocol.SyncInfoTag, si)
}

// SendSyncInfo sends sync info to one validator.
func (s *Sender) SendSyncInfo(si types.SyncInfo, to basics.Address) {
	s.send(protocol.SyncInfoTag, si, []basics.Address{to})
}

// BroadcastFastShare sends a randomness share to every validator.
func (s *Sender) BroadcastFastShare(msg types.FastShareMsg) {
	s.broadcast(protocol.FastShareTag, msg)
}

// BroadcastBatch disseminates transaction batches.
func (s *Sender) BroadcastBatch(msg types.BatchMsg) {
	s.broadcast(protocol.BatchTag, msg)
}

// RequestBlocks asks from for blocks and waits for the reply. The response
// is decoded but not verified.
func (s *Sender) RequestBlocks(ctx context.Context, req types.BlockRetrievalRequest, from basics.Address) (types.BlockRetrievalResponse, error) {
	var resp types.BlockRetrievalResponse
	data, err := s.net.Request(ctx, from, protocol.BlockRetrievalReqTag, protocol.EncodeReflect(req))
	if err != nil {
		return resp, err
	}
	if uint64(len(data)) > protocol.BlockRetrievalResTag.MaxMessageSize() {
		return resp, fmt.Errorf("block retrieval response of %d bytes from %v", len(data), from)
	}
	if err := protocol.DecodeReflect(data, &resp); err != nil {
		return resp, fmt.Errorf("decoding block retrieval response from %v: %w", from, err)
	}
	return resp, nil
}
