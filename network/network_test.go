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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-twochain/config"
	"github.com/algorand/go-twochain/consensus/consensustest"
	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
	"github.com/algorand/go-twochain/logging"
	"github.com/algorand/go-twochain/protocol"
	"github.com/algorand/go-twochain/test/partitiontest"
	"github.com/algorand/go-twochain/util/metrics"
)

type delivered struct {
	author basics.Address
	msg    interface{}
}

type chanInbox struct {
	out chan delivered
	// blocks answers retrieval requests when set.
	blocks []types.Block
}

func makeChanInbox() *chanInbox {
	return &chanInbox{out: make(chan delivered, 16)}
}

func (c *chanInbox) DeliverProposal(ctx context.Context, author basics.Address, msg types.ProposalMsg) error {
	return c.DeliverEvent(ctx, author, msg)
}

func (c *chanInbox) DeliverEvent(ctx context.Context, author basics.Address, msg interface{}) error {
	if req, ok := msg.(types.IncomingBlockRetrieval); ok {
		req.Response <- types.BlockRetrievalResponse{Status: types.RetrievalSucceeded, Blocks: c.blocks}
		return nil
	}
	select {
	case c.out <- delivered{author: author, msg: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *chanInbox) next(t *testing.T) delivered {
	select {
	case d := <-c.out:
		return d
	case <-time.After(10 * time.Second):
		require.FailNow(t, "nothing delivered")
	}
	return delivered{}
}

func (c *chanInbox) empty(t *testing.T) {
	select {
	case d := <-c.out:
		require.FailNow(t, "unexpected delivery", "%T from %v", d.msg, d.author)
	case <-time.After(50 * time.Millisecond):
	}
}

func recordHandler(ch chan IncomingMessage) MessageHandler {
	return HandlerFunc(func(msg IncomingMessage) OutgoingMessage {
		ch <- msg
		return OutgoingMessage{}
	})
}

func TestHubBroadcast(t *testing.T) {
	partitiontest.PartitionTest(t)

	hub := MakeHub(metrics.NopSink{}, logging.TestingLog(t))
	addrs := []basics.Address{{1}, {2}, {3}}
	var nodes []*HubNode
	var got []chan IncomingMessage
	for _, a := range addrs {
		ch := make(chan IncomingMessage, 4)
		n := hub.Join(a, 4)
		n.RegisterHandlers([]TaggedMessageHandler{{protocol.VoteTag, recordHandler(ch)}})
		require.NoError(t, n.Start())
		defer n.Stop()
		nodes = append(nodes, n)
		got = append(got, ch)
	}

	require.NoError(t, nodes[0].Broadcast(context.Background(), protocol.VoteTag, []byte("v"), addrs[2]))
	for _, i := range []int{0, 1} {
		msg := <-got[i]
		require.Equal(t, addrs[0], msg.Sender)
		require.Equal(t, []byte("v"), msg.Data)
	}
	select {
	case msg := <-got[2]:
		require.FailNow(t, "excluded peer received", "%v", msg)
	case <-time.After(50 * time.Millisecond):
	}

	hub.Isolate(addrs[1], true)
	require.ErrorIs(t, nodes[0].Unicast(context.Background(), addrs[1], protocol.VoteTag, []byte("v")), errIsolated)
	require.NoError(t, nodes[0].Unicast(context.Background(), addrs[0], protocol.VoteTag, []byte("self")))
	require.Equal(t, []byte("self"), (<-got[0]).Data)

	_, err := nodes[0].Request(context.Background(), basics.Address{9}, protocol.BlockRetrievalReqTag, nil)
	require.ErrorIs(t, err, errUnknownPeer)
}

func TestHubDropsOnFullQueue(t *testing.T) {
	partitiontest.PartitionTest(t)

	sink := metrics.MakeCountingSink()
	hub := MakeHub(sink, logging.TestingLog(t))
	a := hub.Join(basics.Address{1}, 1)
	hub.Join(basics.Address{2}, 1) // never started

	require.NoError(t, a.Unicast(context.Background(), basics.Address{2}, protocol.VoteTag, []byte("1")))
	require.NoError(t, a.Unicast(context.Background(), basics.Address{2}, protocol.VoteTag, []byte("2")))
	require.Equal(t, uint64(1), sink.Count(networkMessagesSent, tagLabels(protocol.VoteTag)))
	require.Equal(t, uint64(1), sink.Count(networkMessagesDropped, tagLabels(protocol.VoteTag)))
}

type receiverFixture struct {
	signers []consensustest.Signer
	hub     *Hub
	nodes   []*HubNode
	inbox   *chanInbox
	sink    *metrics.CountingSink
	recv    *Receiver
}

// newReceiverFixture joins every signer to a hub; only the first runs a Receiver.
func newReceiverFixture(t *testing.T, cfg config.Local) *receiverFixture {
	signers, verifier := consensustest.MakeValidators(4, 1)
	f := &receiverFixture{signers: signers, inbox: makeChanInbox(), sink: metrics.MakeCountingSink()}
	f.hub = MakeHub(metrics.NopSink{}, logging.TestingLog(t))
	for _, s := range signers {
		f.nodes = append(f.nodes, f.hub.Join(s.Address, 16))
	}
	f.recv = MakeReceiver(signers[0].Address, 1, verifier, f.inbox, cfg, f.sink, logging.TestingLog(t))
	f.nodes[0].RegisterHandlers(f.recv.Handlers())
	f.recv.Start()
	for _, n := range f.nodes {
		require.NoError(t, n.Start())
	}
	t.Cleanup(func() {
		for _, n := range f.nodes {
			n.Stop()
		}
		f.recv.Stop()
	})
	return f
}

func (f *receiverFixture) vote(i int) types.VoteMsg {
	genesis, gqc := consensustest.Genesis()
	b1 := consensustest.MakeProposal(f.signers[1], 1, gqc, nil, types.Payload{}, nil)
	g := genesis.GenBlockInfo(crypto.Digest{}, 0)
	v := consensustest.SignVote(f.signers[i], b1.GenBlockInfo(crypto.Digest{}, 0), g, g)
	return types.VoteMsg{Vote: v, SyncInfo: consensustest.MakeSyncInfo(gqc, nil)}
}

func TestReceiverDeliversVerifiedMessages(t *testing.T) {
	partitiontest.PartitionTest(t)

	f := newReceiverFixture(t, config.GetDefaultLocal())
	sender := MakeSender(f.nodes[2], logging.TestingLog(t))
	msg := f.vote(2)
	sender.SendVote(msg, []basics.Address{f.signers[0].Address})

	d := f.inbox.next(t)
	require.Equal(t, f.signers[2].Address, d.author)
	require.Equal(t, msg.Vote.Author, d.msg.(types.VoteMsg).Vote.Author)
	require.Equal(t, uint64(1), f.sink.Count(inboundVerified, tagLabels(protocol.VoteTag)))

	// A vote relayed under another validator's signature fails verification.
	forged := f.vote(3)
	forged.Vote.Author = f.signers[2].Address
	sender.SendVote(forged, []basics.Address{f.signers[0].Address})
	f.inbox.empty(t)
	require.Eventually(t, func() bool {
		return f.sink.Count(inboundRejected, reasonLabels("verification")) == 1
	}, 10*time.Second, 10*time.Millisecond)

	proposal := types.ProposalMsg{Proposal: consensustest.MakeProposal(f.signers[1], 1, msg.SyncInfo.HighestQuorumCert, nil, types.Payload{}, nil), SyncInfo: msg.SyncInfo}
	MakeSender(f.nodes[0], logging.TestingLog(t)).BroadcastProposal(proposal)
	d = f.inbox.next(t)
	require.Equal(t, f.signers[0].Address, d.author)
	require.Equal(t, proposal.Proposal.ID, d.msg.(types.ProposalMsg).Proposal.ID)
}

func TestReceiverRejects(t *testing.T) {
	partitiontest.PartitionTest(t)

	cfg := config.GetDefaultLocal()
	cfg.InboundMessagesPerSecond = 1
	cfg.InboundBurst = 1
	f := newReceiverFixture(t, cfg)

	data := protocol.EncodeReflect(f.vote(1))
	from := f.signers[1].Address
	f.recv.Handle(IncomingMessage{Sender: from, Tag: protocol.VoteTag, Data: data})
	f.inbox.next(t)
	f.recv.Handle(IncomingMessage{Sender: from, Tag: protocol.VoteTag, Data: data})
	require.Equal(t, uint64(1), f.sink.Count(inboundRejected, reasonLabels("rate_limited")))

	f.recv.Handle(IncomingMessage{Sender: basics.Address{7}, Tag: protocol.VoteTag, Data: data})
	require.Equal(t, uint64(1), f.sink.Count(inboundRejected, reasonLabels("unknown_sender")))

	f.recv.Handle(IncomingMessage{Sender: f.signers[2].Address, Tag: protocol.VoteTag, Data: []byte{0xc1}})
	require.Equal(t, uint64(1), f.sink.Count(inboundRejected, reasonLabels("decode")))

	other := types.FastShareMsg{Epoch: 2, Round: 1, Author: f.signers[3].Address}
	f.recv.Handle(IncomingMessage{Sender: f.signers[3].Address, Tag: protocol.FastShareTag, Data: protocol.EncodeReflect(other)})
	require.Equal(t, uint64(1), f.sink.Count(inboundRejected, reasonLabels("epoch")))

	opt := types.OptProposalMsg{Block: types.OptBlockData{Epoch: 1, Round: 2, Author: f.signers[2].Address}}
	f.recv.Handle(IncomingMessage{Sender: f.signers[0].Address, Tag: protocol.OptProposalTag, Data: protocol.EncodeReflect(opt)})
	require.Equal(t, uint64(1), f.sink.Count(inboundRejected, reasonLabels("author_mismatch")))

	big := make([]byte, protocol.FastShareTag.MaxMessageSize()+1)
	f.recv.Handle(IncomingMessage{Sender: f.signers[0].Address, Tag: protocol.FastShareTag, Data: big})
	require.Equal(t, uint64(1), f.sink.Count(inboundRejected, reasonLabels("oversize")))
	f.inbox.empty(t)
}

func TestRequestBlocks(t *testing.T) {
	partitiontest.PartitionTest(t)

	f := newReceiverFixture(t, config.GetDefaultLocal())
	genesis, gqc := consensustest.Genesis()
	b1 := consensustest.MakeProposal(f.signers[1], 1, gqc, nil, types.Payload{}, nil)
	f.inbox.blocks = []types.Block{b1, genesis}

	sender := MakeSender(f.nodes[3], logging.TestingLog(t))
	req := types.BlockRetrievalRequest{BlockID: b1.ID, NumBlocks: 2}
	resp, err := sender.RequestBlocks(context.Background(), req, f.signers[0].Address)
	require.NoError(t, err)
	require.Equal(t, types.RetrievalSucceeded, resp.Status)
	require.Len(t, resp.Blocks, 2)
	require.Equal(t, b1.ID, resp.Blocks[0].ID)

	// Peers without a receiver do not answer.
	_, err = sender.RequestBlocks(context.Background(), req, f.signers[1].Address)
	require.ErrorIs(t, err, errNoResponse)
}
