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

package liveness

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-twochain/consensus/consensustest"
	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/data/basics"
	"github.com/algorand/go-twochain/logging"
	"github.com/algorand/go-twochain/test/partitiontest"
)

func TestRotatingProposer(t *testing.T) {
	partitiontest.PartitionTest(t)

	signers, v := consensustest.MakeValidators(3, 1)
	pe, err := MakeProposerElection(RotatingElection, 1, v, 2)
	require.NoError(t, err)

	addrs := v.Addresses()
	expect := []basics.Address{addrs[0], addrs[0], addrs[1], addrs[1], addrs[2], addrs[2], addrs[0]}
	for r, a := range expect {
		require.Equal(t, a, pe.ValidProposer(basics.Round(r)), "round %d", r)
	}
	require.True(t, pe.IsValidProposer(signers[1].Address, 2))
	require.False(t, pe.IsValidProposer(signers[1].Address, 1))

	_, err = MakeProposerElection("bogus", 1, v, 1)
	require.Error(t, err)
}

func TestWeightedProposerFollowsStake(t *testing.T) {
	partitiontest.PartitionTest(t)

	signers, v := consensustest.MakeWeightedValidators([]uint64{1, 1, 98})
	var heavy basics.Address
	for _, s := range signers {
		if p, _ := v.GetVotingPower(s.Address); p == 98 {
			heavy = s.Address
		}
	}
	pe, err := MakeProposerElection(WeightedElection, 7, v, 1)
	require.NoError(t, err)

	counts := make(map[basics.Address]int)
	for r := basics.Round(1); r <= 1000; r++ {
		leader := pe.ValidProposer(r)
		require.True(t, v.Contains(leader))
		require.Equal(t, leader, pe.ValidProposer(r))
		counts[leader]++
	}
	require.Greater(t, counts[heavy], 900)

	// another epoch elects differently
	other, err := MakeProposerElection(WeightedElection, 8, v, 1)
	require.NoError(t, err)
	differ := false
	for r := basics.Round(1); r <= 1000 && !differ; r++ {
		differ = other.ValidProposer(r) != pe.ValidProposer(r)
	}
	require.True(t, differ)
}

func TestUnequivocalProposerElection(t *testing.T) {
	partitiontest.PartitionTest(t)

	signers, v := consensustest.MakeValidators(4, 1)
	_, gqc := consensustest.Genesis()
	inner := MakeRotatingProposer(v.Addresses(), 1)
	ue := MakeUnequivocalProposerElection(inner, logging.TestingLog(t))

	leader := func(r basics.Round) consensustest.Signer {
		for _, s := range signers {
			if s.Address == inner.ValidProposer(r) {
				return s
			}
		}
		t.Fatalf("no signer leads round %d", r)
		return consensustest.Signer{}
	}
	notLeader := func(r basics.Round) consensustest.Signer {
		for _, s := range signers {
			if s.Address != inner.ValidProposer(r) {
				return s
			}
		}
		return consensustest.Signer{}
	}

	b1 := consensustest.MakeProposal(leader(1), 1, gqc, nil, types.Payload{}, nil)
	require.True(t, ue.IsValidProposal(b1))
	require.True(t, ue.IsValidProposal(b1))

	equivocation := consensustest.MakeProposal(leader(1), 1, gqc, nil, types.Payload{Inline: []types.Transaction{{Nonce: 1}}}, nil)
	require.NotEqual(t, b1.ID, equivocation.ID)
	require.False(t, ue.IsValidProposal(equivocation))

	require.False(t, ue.IsValidProposal(consensustest.MakeProposal(notLeader(1), 1, gqc, nil, types.Payload{}, nil)))

	nilBlock := types.MakeBlock(types.MakeNilBlockData(1, gqc, nil))
	require.False(t, ue.IsValidProposal(nilBlock))

	qc1 := consensustest.CertifyBlock(signers[:3], b1)
	b2 := consensustest.MakeProposal(leader(2), 2, qc1, nil, types.Payload{}, nil)
	require.True(t, ue.IsValidProposal(b2))
	// once round 2 is seen, round 1 is closed
	require.False(t, ue.IsValidProposal(b1))
}
