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

package storage

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-twochain/consensus/consensustest"
	"github.com/algorand/go-twochain/consensus/safety"
	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/logging"
	"github.com/algorand/go-twochain/protocol"
	"github.com/algorand/go-twochain/test/partitiontest"
)

func openMemory(t *testing.T) *Store {
	s, err := Open(t.Name()+".sqlite", true, logging.TestingLog(t))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestFreshStore(t *testing.T) {
	partitiontest.PartitionTest(t)

	s := openMemory(t)
	rd, err := s.RecoveryData()
	require.NoError(t, err)
	require.Nil(t, rd.LastVote)
	require.Nil(t, rd.HighestTimeoutCert)

	data, err := s.SafetyData()
	require.NoError(t, err)
	require.Equal(t, safety.SafetyData{}, data)
}

func TestSaveAndRecover(t *testing.T) {
	partitiontest.PartitionTest(t)

	signers, _ := consensustest.MakeValidators(4, 1)
	_, gqc := consensustest.Genesis()
	b1 := consensustest.MakeProposal(signers[0], 1, gqc, nil, types.Payload{}, nil)
	qc1 := consensustest.CertifyBlock(signers[:3], b1)
	vote := consensustest.SignVote(signers[1], b1.GenBlockInfo(crypto.Digest{}, 0), gqc.CertifiedBlock(), gqc.CertifiedBlock())
	tc := consensustest.MakeTimeoutCert(signers[:3], 1, 2, qc1)

	s := openMemory(t)
	require.NoError(t, s.SaveVote(vote))
	require.NoError(t, s.SaveHighestTimeoutCert(tc))

	rd, err := s.RecoveryData()
	require.NoError(t, err)
	require.NotNil(t, rd.LastVote)
	require.NotNil(t, rd.HighestTimeoutCert)
	require.Equal(t, protocol.EncodeReflect(vote), protocol.EncodeReflect(*rd.LastVote))
	require.Equal(t, protocol.EncodeReflect(tc), protocol.EncodeReflect(rd.HighestTimeoutCert))

	// a later vote overwrites the earlier one
	later := consensustest.SignVote(signers[1], b1.GenBlockInfo(crypto.Digest{1}, 3), gqc.CertifiedBlock(), gqc.CertifiedBlock())
	require.NoError(t, s.SaveVote(later))
	rd, err = s.RecoveryData()
	require.NoError(t, err)
	require.Equal(t, uint64(3), rd.LastVote.VoteData.Proposed.Version)

	require.NoError(t, s.SaveHighestTimeoutCert(nil))
	rd, err = s.RecoveryData()
	require.NoError(t, err)
	require.Nil(t, rd.HighestTimeoutCert)
}

func TestCorruptVoteIsDropped(t *testing.T) {
	partitiontest.PartitionTest(t)

	s := openMemory(t)
	require.NoError(t, s.put(keyLastVote, []byte{0xc1, 0xff, 0x00}))

	rd, err := s.RecoveryData()
	require.NoError(t, err)
	require.Nil(t, rd.LastVote)

	var n int
	err = s.acc.Atomic("count", func(tx *sql.Tx) error {
		return tx.QueryRow("select count(*) from ConsensusState").Scan(&n)
	})
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestSafetyDataSurvivesReopen(t *testing.T) {
	partitiontest.PartitionTest(t)

	path := filepath.Join(t.TempDir(), "consensus.sqlite")
	s, err := Open(path, false, logging.TestingLog(t))
	require.NoError(t, err)

	signers, v := consensustest.MakeValidators(4, 1)
	_, gqc := consensustest.Genesis()
	b1 := consensustest.MakeProposal(signers[1], 1, gqc, nil, types.Payload{}, nil)

	sr, err := safety.MakeSafetyRules(signers[0].Secrets, 1, v, s, logging.TestingLog(t))
	require.NoError(t, err)
	vote, err := sr.ConstructAndSignVoteTwoChain(safety.VoteProposal{Block: b1, Executed: b1.GenBlockInfo(crypto.Digest{}, 0)}, nil)
	require.NoError(t, err)
	s.Close()

	s, err = Open(path, false, logging.TestingLog(t))
	require.NoError(t, err)
	defer s.Close()
	data, err := s.SafetyData()
	require.NoError(t, err)
	require.EqualValues(t, 1, data.Epoch)
	require.EqualValues(t, 1, data.LastVotedRound)
	require.NotNil(t, data.LastVote)
	require.Equal(t, vote.Signature, data.LastVote.Signature)

	// a restarted signer refuses a conflicting vote for the same round
	sr, err = safety.MakeSafetyRules(signers[0].Secrets, 1, v, s, logging.TestingLog(t))
	require.NoError(t, err)
	other := consensustest.MakeProposal(signers[2], 1, gqc, nil, types.Payload{}, nil)
	again, err := sr.ConstructAndSignVoteTwoChain(safety.VoteProposal{Block: other, Executed: other.GenBlockInfo(crypto.Digest{}, 0)}, nil)
	require.NoError(t, err)
	require.Equal(t, b1.ID, again.VoteData.Proposed.ID)
}
