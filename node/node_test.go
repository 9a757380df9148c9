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

package node

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-twochain/blockstore"
	"github.com/algorand/go-twochain/config"
	"github.com/algorand/go-twochain/consensus/consensustest"
	"github.com/algorand/go-twochain/consensus/liveness"
	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/data/basics"
	"github.com/algorand/go-twochain/logging"
	"github.com/algorand/go-twochain/network"
	"github.com/algorand/go-twochain/test/partitiontest"
	"github.com/algorand/go-twochain/util/metrics"
)

type testNetwork struct {
	t        *testing.T
	cfg      config.Local
	signers  []consensustest.Signer
	verifier *types.ValidatorVerifier
	genesis  types.Block
	nodes    []*Node
	sinks    []*metrics.CountingSink
}

func makeTestNetwork(t *testing.T, n int) *testNetwork {
	tn := &testNetwork{t: t, cfg: config.GetDefaultLocal()}
	tn.signers, tn.verifier = consensustest.MakeValidators(n, 1)
	tn.genesis, _ = consensustest.Genesis()
	return tn
}

// start builds and starts one node per validator on a fresh hub. dirs
// holds a data directory per node, or nil for in-memory nodes.
func (tn *testNetwork) start(dirs []string) {
	t := tn.t
	log := logging.TestingLog(t)
	hub := network.MakeHub(metrics.NopSink{}, log)
	tn.nodes = tn.nodes[:0]
	tn.sinks = tn.sinks[:0]
	for i, s := range tn.signers {
		dir := ""
		if dirs != nil {
			dir = dirs[i]
		}
		sink := metrics.MakeCountingSink()
		n, err := MakeNode(dir, s.Secrets, tn.verifier, tn.genesis, hub.Join(s.Address, tn.cfg.EventQueueSize), tn.cfg, sink, log)
		require.NoError(t, err)
		tn.nodes = append(tn.nodes, n)
		tn.sinks = append(tn.sinks, sink)
	}
	for _, n := range tn.nodes {
		require.NoError(t, n.Start())
	}
}

func (tn *testNetwork) stop() {
	for _, n := range tn.nodes {
		n.Stop()
	}
}

func (tn *testNetwork) waitCommitted(round basics.Round) {
	require.Eventually(tn.t, func() bool {
		for _, n := range tn.nodes {
			if n.Status().Committed.Round < round {
				return false
			}
		}
		return true
	}, 30*time.Second, 20*time.Millisecond)
}

func TestValidatorsCommitTransactions(t *testing.T) {
	partitiontest.PartitionTest(t)

	tn := makeTestNetwork(t, 4)
	tn.start(nil)
	defer tn.stop()

	const txns = 10
	for i := 0; i < txns; i++ {
		tx := types.Transaction{Sender: tn.signers[0].Address, Nonce: uint64(i), Body: []byte(fmt.Sprintf("tx-%d", i))}
		for _, n := range tn.nodes {
			require.NoError(t, n.SubmitTransaction(tx))
		}
	}
	require.Error(t, tn.nodes[0].SubmitTransaction(types.Transaction{Sender: tn.signers[0].Address, Nonce: 0}))

	require.Eventually(t, func() bool {
		for _, n := range tn.nodes {
			st := n.Status()
			if st.PendingTxns != 0 || st.Committed.Version < txns {
				return false
			}
		}
		return true
	}, 30*time.Second, 20*time.Millisecond)
	tn.waitCommitted(3)

	for i, n := range tn.nodes {
		st := n.Status()
		require.GreaterOrEqual(t, st.HighestCertified, st.HighestOrdered)
		require.GreaterOrEqual(t, st.HighestOrdered, st.Committed.Round)
		require.GreaterOrEqual(t, tn.sinks[i].Count(committedTxns, nil), uint64(txns))
	}
}

func TestNodeRecoversFromDisk(t *testing.T) {
	partitiontest.PartitionTest(t)

	tn := makeTestNetwork(t, 4)
	dirs := make([]string, len(tn.signers))
	for i := range dirs {
		dirs[i] = t.TempDir()
	}
	tn.start(dirs)
	tn.waitCommitted(3)
	var committed basics.Round
	for i, n := range tn.nodes {
		if r := n.Status().Committed.Round; i == 0 || r < committed {
			committed = r
		}
	}
	tn.stop()

	tn.start(dirs)
	defer tn.stop()
	for _, n := range tn.nodes {
		require.GreaterOrEqual(t, n.Status().Committed.Round, committed)
	}
	tn.waitCommitted(committed + 3)
}

func TestNodeRejectsForeignKey(t *testing.T) {
	partitiontest.PartitionTest(t)

	tn := makeTestNetwork(t, 4)
	log := logging.TestingLog(t)
	hub := network.MakeHub(metrics.NopSink{}, log)
	_, err := MakeNode("", tn.signers[0].Secrets, tn.verifier, tn.genesis, hub.Join(tn.signers[1].Address, 1), tn.cfg, nil, log)
	require.Error(t, err)
}

func TestMempoolPull(t *testing.T) {
	partitiontest.PartitionTest(t)

	alice := consensustest.MakeSigner(0).Address
	m := MakeMempool(3)
	tx := func(nonce uint64) types.Transaction {
		return types.Transaction{Sender: alice, Nonce: nonce, Body: make([]byte, 10)}
	}
	require.True(t, m.Submit(tx(1)))
	require.False(t, m.Submit(tx(1)))
	require.True(t, m.Submit(tx(2)))
	require.True(t, m.Submit(tx(3)))
	require.False(t, m.Submit(tx(4)))

	ctx := context.Background()
	all := liveness.PayloadPullParams{MaxTxns: 10, MaxBytes: 1 << 20}
	p, err := m.Pull(ctx, all)
	require.NoError(t, err)
	require.Equal(t, []types.Transaction{tx(1), tx(2), tx(3)}, p.Inline)

	limited := all
	limited.MaxTxns = 2
	p, err = m.Pull(ctx, limited)
	require.NoError(t, err)
	require.Len(t, p.Inline, 2)

	limited = all
	limited.MaxBytes = tx(1).Size()
	p, err = m.Pull(ctx, limited)
	require.NoError(t, err)
	require.Equal(t, []types.Transaction{tx(1)}, p.Inline)

	excluding := all
	excluding.Exclude = []types.Payload{{Inline: []types.Transaction{tx(2)}}}
	p, err = m.Pull(ctx, excluding)
	require.NoError(t, err)
	require.Equal(t, []types.Transaction{tx(1), tx(3)}, p.Inline)

	m.Committed([]blockstore.ExecutedBlock{{Block: types.Block{Data: types.BlockData{Payload: types.Payload{Inline: []types.Transaction{tx(1), tx(3)}}}}}})
	require.Equal(t, 1, m.Len())
	p, err = m.Pull(ctx, all)
	require.NoError(t, err)
	require.Equal(t, []types.Transaction{tx(2)}, p.Inline)
	require.True(t, m.Submit(tx(4)))
}
