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
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/algorand/go-twochain/consensus/consensustest"
	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
	"github.com/algorand/go-twochain/test/partitiontest"
)

// certifiedChain builds proposals for rounds 1..rounds, each certified by
// three of the four signers.
func certifiedChain(signers []consensustest.Signer, gqc types.QuorumCert, rounds int) ([]types.Block, []types.QuorumCert) {
	blocks := []types.Block{{}}
	qcs := []types.QuorumCert{gqc}
	for r := 1; r <= rounds; r++ {
		b := consensustest.MakeProposal(signers[r%len(signers)], basics.Round(r), qcs[r-1], nil, types.Payload{}, nil)
		blocks = append(blocks, b)
		qcs = append(qcs, consensustest.CertifyBlock(signers[:3], b))
	}
	return blocks, qcs
}

func serveFrom(blocks []types.Block) func(types.BlockRetrievalRequest, basics.Address) (types.BlockRetrievalResponse, error) {
	byID := make(map[crypto.Digest]types.Block)
	for _, b := range blocks[1:] {
		byID[b.ID] = b
	}
	return func(req types.BlockRetrievalRequest, _ basics.Address) (types.BlockRetrievalResponse, error) {
		var out []types.Block
		id := req.BlockID
		for uint64(len(out)) < req.NumBlocks {
			b, ok := byID[id]
			if !ok {
				break
			}
			out = append(out, b)
			id = b.ParentID()
		}
		if uint64(len(out)) < req.NumBlocks {
			return types.BlockRetrievalResponse{Status: types.RetrievalNotEnoughBlocks, Blocks: out}, nil
		}
		return types.BlockRetrievalResponse{Status: types.RetrievalSucceeded, Blocks: out}, nil
	}
}

func TestSyncUpRetrievesMissingBlocks(t *testing.T) {
	partitiontest.PartitionTest(t)

	n := makeTestNode(t, 3, testConfig())
	n.init()
	blocks, qcs := certifiedChain(n.signers, n.gqc, 2)

	serve := serveFrom(blocks)
	n.net.serve = func(req types.BlockRetrievalRequest, from basics.Address) (types.BlockRetrievalResponse, error) {
		if from == n.signers[2].Address {
			return types.BlockRetrievalResponse{}, errors.New("unreachable")
		}
		return serve(req, from)
	}

	require.NoError(t, n.rm.ProcessSyncInfoMsg(context.Background(), consensustest.MakeSyncInfo(qcs[2], nil), n.signers[2].Address))
	require.EqualValues(t, 3, n.rm.CurrentRound())
	for _, b := range blocks[1:] {
		_, ok := n.blocks.GetBlock(b.ID)
		require.True(t, ok)
	}

	calls := n.net.retrievalCalls()
	require.NotEmpty(t, calls)
	// the sender of the certificate is asked first, this node never
	require.Equal(t, n.signers[2].Address, calls[0].from)
	for _, c := range calls {
		require.NotEqual(t, n.self.Address, c.from)
	}
}

func TestSyncUpFailsWithoutPeers(t *testing.T) {
	partitiontest.PartitionTest(t)

	n := makeTestNode(t, 3, testConfig())
	n.init()
	_, qcs := certifiedChain(n.signers, n.gqc, 2)

	_, err := n.rm.ensureRoundAndSyncUp(context.Background(), 3, consensustest.MakeSyncInfo(qcs[2], nil), n.signers[1].Address)
	require.ErrorIs(t, err, errNoRetrievalTarget)
	require.EqualValues(t, 1, n.rm.CurrentRound())
}

func TestSyncInfoWithBadCertificate(t *testing.T) {
	partitiontest.PartitionTest(t)

	n := makeTestNode(t, 3, testConfig())
	n.init()
	blocks, _ := certifiedChain(n.signers, n.gqc, 1)
	// a single signature is not a quorum
	weak := consensustest.CertifyBlock(n.signers[:1], blocks[1])

	err := n.rm.ProcessSyncInfoMsg(context.Background(), consensustest.MakeSyncInfo(weak, nil), n.signers[1].Address)
	var verr *VerificationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, n.signers[1].Address, verr.Peer)
	require.EqualValues(t, 1, n.rm.CurrentRound())
}

func TestSyncInfoHelpsPeerBehind(t *testing.T) {
	partitiontest.PartitionTest(t)

	ctx := context.Background()
	n := makeTestNode(t, 3, testConfig())
	n.init()
	blocks, qcs := certifiedChain(n.signers, n.gqc, 2)
	for _, b := range blocks[1:] {
		n.blocks.PendingBlocks().Insert(b)
	}
	require.NoError(t, n.rm.ProcessSyncInfoMsg(ctx, consensustest.MakeSyncInfo(qcs[2], nil), n.signers[1].Address))
	require.Empty(t, n.net.retrievalCalls())

	require.NoError(t, n.rm.ProcessSyncInfoMsg(ctx, consensustest.MakeSyncInfo(qcs[1], nil), n.signers[0].Address))
	require.Equal(t, []basics.Address{n.signers[0].Address}, n.net.syncSentTo())
	require.EqualValues(t, 3, n.rm.CurrentRound())
}

func TestProcessBlockRetrieval(t *testing.T) {
	partitiontest.PartitionTest(t)

	ctx := context.Background()
	n := makeTestNode(t, 3, testConfig())
	n.init()
	blocks, qcs := certifiedChain(n.signers, n.gqc, 2)
	for _, b := range blocks[1:] {
		n.blocks.PendingBlocks().Insert(b)
	}
	require.NoError(t, n.rm.ProcessSyncInfoMsg(ctx, consensustest.MakeSyncInfo(qcs[2], nil), n.signers[1].Address))

	resp := make(chan types.BlockRetrievalResponse, 1)
	req := types.BlockRetrievalRequest{BlockID: blocks[2].ID, NumBlocks: 2}
	require.NoError(t, n.rm.ProcessBlockRetrieval(types.IncomingBlockRetrieval{Request: req, Response: resp}))
	r := <-resp
	require.Equal(t, types.RetrievalSucceeded, r.Status)
	require.NoError(t, r.Verify(req, n.verifier))
	require.EqualValues(t, 2, n.sink.Count(blocksServed, nil))

	// requests are capped and walk back to genesis at most
	req = types.BlockRetrievalRequest{BlockID: blocks[2].ID, NumBlocks: 1000}
	require.NoError(t, n.rm.ProcessBlockRetrieval(types.IncomingBlockRetrieval{Request: req, Response: resp}))
	r = <-resp
	require.Equal(t, types.RetrievalNotEnoughBlocks, r.Status)
	require.Len(t, r.Blocks, 3)

	req = types.BlockRetrievalRequest{BlockID: crypto.Hash([]byte("unknown")), NumBlocks: 1}
	require.NoError(t, n.rm.ProcessBlockRetrieval(types.IncomingBlockRetrieval{Request: req, Response: resp}))
	require.Equal(t, types.RetrievalIDNotFound, (<-resp).Status)

	// nobody waiting for the answer
	require.Error(t, n.rm.ProcessBlockRetrieval(types.IncomingBlockRetrieval{Request: req, Response: make(chan types.BlockRetrievalResponse)}))
}

func TestRoundsOnlyMoveForward(t *testing.T) {
	partitiontest.PartitionTest(t)

	const rounds = 6
	rapid.Check(t, func(rt *rapid.T) {
		n := makeTestNode(t, 0, testConfig())
		n.init()
		blocks, qcs := certifiedChain(n.signers, n.gqc, rounds)
		for _, b := range blocks[1:] {
			n.blocks.PendingBlocks().Insert(b)
		}

		steps := rapid.SliceOfN(rapid.IntRange(1, rounds), 1, 20).Draw(rt, "rounds")
		timeouts := rapid.SliceOfN(rapid.Bool(), len(steps), len(steps)).Draw(rt, "timeouts")
		highest := n.rm.CurrentRound()
		for i, r := range steps {
			si := consensustest.MakeSyncInfo(qcs[r], nil)
			if timeouts[i] {
				tc := consensustest.MakeTimeoutCert(n.signers[:3], 1, basics.Round(r), qcs[r-1])
				si = consensustest.MakeSyncInfo(qcs[r-1], tc)
			}
			require.NoError(rt, n.rm.ProcessSyncInfoMsg(context.Background(), si, n.signers[1].Address))

			if next := basics.Round(r) + 1; next > highest {
				highest = next
			}
			require.Equal(rt, highest, n.rm.CurrentRound())
		}
	})
}
