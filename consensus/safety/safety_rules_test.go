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

package safety

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-twochain/consensus/consensustest"
	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/logging"
	"github.com/algorand/go-twochain/test/partitiontest"
)

type chain struct {
	signers []consensustest.Signer
	v       *types.ValidatorVerifier
	gqc     types.QuorumCert
	b1, b2  types.Block
	qc1     types.QuorumCert
	qc2     types.QuorumCert
}

func makeChain() chain {
	var c chain
	c.signers, c.v = consensustest.MakeValidators(4, 1)
	_, c.gqc = consensustest.Genesis()
	c.b1 = consensustest.MakeProposal(c.signers[1], 1, c.gqc, nil, types.Payload{}, nil)
	c.qc1 = consensustest.CertifyBlock(c.signers[:3], c.b1)
	c.b2 = consensustest.MakeProposal(c.signers[2], 2, c.qc1, nil, types.Payload{}, nil)
	c.qc2 = consensustest.CertifyBlock(c.signers[:3], c.b2)
	return c
}

func makeRules(t *testing.T, c chain) (*SafetyRules, *MemoryStorage) {
	storage := &MemoryStorage{}
	sr, err := MakeSafetyRules(c.signers[0].Secrets, 1, c.v, storage, logging.TestingLog(t))
	require.NoError(t, err)
	return sr, storage
}

func proposalOf(b types.Block) VoteProposal {
	return VoteProposal{Block: b, Executed: b.GenBlockInfo(crypto.Digest{}, 0)}
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	var se *Error
	require.True(t, errors.As(err, &se), "%v", err)
	require.Equal(t, kind, se.Kind, "%v", err)
}

func TestVoteCommitsDirectParent(t *testing.T) {
	partitiontest.PartitionTest(t)

	c := makeChain()
	sr, storage := makeRules(t, c)

	vote, err := sr.ConstructAndSignVoteTwoChain(proposalOf(c.b2), nil)
	require.NoError(t, err)
	require.NoError(t, vote.Verify(c.v))
	require.Equal(t, c.b2.ID, vote.VoteData.Proposed.ID)
	require.Equal(t, c.b1.ID, vote.VoteData.Parent.ID)
	require.Equal(t, c.b1.ID, vote.LedgerInfo.CommitInfo.ID)

	data, err := storage.SafetyData()
	require.NoError(t, err)
	require.EqualValues(t, 2, data.LastVotedRound)
	require.EqualValues(t, 1, data.OneChainRound)
	require.EqualValues(t, 0, data.PreferredRound)
	require.NotNil(t, data.LastVote)
}

func TestSingleVotePerRound(t *testing.T) {
	partitiontest.PartitionTest(t)

	c := makeChain()
	sr, _ := makeRules(t, c)

	first, err := sr.ConstructAndSignVoteTwoChain(proposalOf(c.b1), nil)
	require.NoError(t, err)

	other := consensustest.MakeProposal(c.signers[3], 1, c.gqc, nil, types.Payload{}, nil)
	require.NotEqual(t, c.b1.ID, other.ID)
	second, err := sr.ConstructAndSignVoteTwoChain(proposalOf(other), nil)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, c.b1.ID, second.VoteData.Proposed.ID)
}

func TestRejectsOldRound(t *testing.T) {
	partitiontest.PartitionTest(t)

	c := makeChain()
	sr, _ := makeRules(t, c)

	_, err := sr.ConstructAndSignVoteTwoChain(proposalOf(c.b2), nil)
	require.NoError(t, err)
	_, err = sr.ConstructAndSignVoteTwoChain(proposalOf(c.b1), nil)
	requireKind(t, err, IncorrectLastVotedRound)
	require.True(t, IsRejection(err))
}

func TestVoteAfterTimeoutCertificate(t *testing.T) {
	partitiontest.PartitionTest(t)

	c := makeChain()
	sr, _ := makeRules(t, c)

	tc2 := consensustest.MakeTimeoutCert(c.signers[:3], 1, 2, c.qc1)
	b3 := consensustest.MakeProposal(c.signers[3], 3, c.qc1, []types.FailedAuthor{{Round: 2, Author: c.signers[2].Address}}, types.Payload{}, tc2)

	_, err := sr.ConstructAndSignVoteTwoChain(proposalOf(b3), nil)
	requireKind(t, err, NotSafeToVote)

	vote, err := sr.ConstructAndSignVoteTwoChain(proposalOf(b3), tc2)
	require.NoError(t, err)
	// a skipped round commits nothing
	require.True(t, vote.LedgerInfo.CommitInfo.IsEmpty())
}

func TestTimeoutBlocksLaterVoteAndOrderVote(t *testing.T) {
	partitiontest.PartitionTest(t)

	c := makeChain()
	sr, storage := makeRules(t, c)

	timeout := types.TwoChainTimeout{Epoch: 1, Round: 1, QuorumCert: c.gqc}
	sig, err := sr.SignTimeoutWithQC(timeout, nil)
	require.NoError(t, err)
	require.True(t, c.signers[0].Secrets.PublicKey.Verify(timeout.SigningFormat(), sig))

	data, err := storage.SafetyData()
	require.NoError(t, err)
	require.EqualValues(t, 1, data.LastVotedRound)
	require.EqualValues(t, 1, data.HighestTimeoutRound)

	// signing the same timeout again is allowed
	_, err = sr.SignTimeoutWithQC(timeout, nil)
	require.NoError(t, err)

	_, err = sr.ConstructAndSignVoteTwoChain(proposalOf(c.b1), nil)
	requireKind(t, err, IncorrectLastVotedRound)

	_, err = sr.ConstructAndSignOrderVote(c.qc1)
	requireKind(t, err, NotSafeForOrderVote)

	ov, err := sr.ConstructAndSignOrderVote(c.qc2)
	require.NoError(t, err)
	require.NoError(t, ov.Verify(c.v))
	require.EqualValues(t, 2, ov.Round())
}

func TestNotSafeToTimeout(t *testing.T) {
	partitiontest.PartitionTest(t)

	c := makeChain()
	sr, _ := makeRules(t, c)

	_, err := sr.SignTimeoutWithQC(types.TwoChainTimeout{Epoch: 1, Round: 3, QuorumCert: c.gqc}, nil)
	requireKind(t, err, NotSafeToTimeout)

	// after observing qc2 a timeout citing qc1 regresses the one-chain round
	_, err = sr.ConstructAndSignVoteTwoChain(proposalOf(consensustest.MakeProposal(c.signers[3], 3, c.qc2, nil, types.Payload{}, nil)), nil)
	require.NoError(t, err)
	_, err = sr.SignTimeoutWithQC(types.TwoChainTimeout{Epoch: 1, Round: 2, QuorumCert: c.qc1}, nil)
	requireKind(t, err, NotSafeToTimeout)
}

func TestSignProposal(t *testing.T) {
	partitiontest.PartitionTest(t)

	c := makeChain()
	sr, _ := makeRules(t, c)
	me := c.signers[0].Address

	bd := types.MakeProposalData(types.Payload{}, me, nil, 2, 5000, c.qc1, nil, nil)
	sig, err := sr.SignProposal(bd)
	require.NoError(t, err)
	require.NoError(t, c.v.Verify(me, types.BlockSigningFormat(bd.Hash()), sig))

	foreign := types.MakeProposalData(types.Payload{}, c.signers[1].Address, nil, 2, 5000, c.qc1, nil, nil)
	_, err = sr.SignProposal(foreign)
	requireKind(t, err, InvalidProposal)

	b3 := consensustest.MakeProposal(c.signers[3], 3, c.qc2, nil, types.Payload{}, nil)
	_, err = sr.ConstructAndSignVoteTwoChain(proposalOf(b3), nil)
	require.NoError(t, err)

	// qc2 locked round 1, so extending genesis is refused
	stale := types.MakeProposalData(types.Payload{}, me, nil, 4, 9000, c.gqc, nil, nil)
	_, err = sr.SignProposal(stale)
	requireKind(t, err, IncorrectPreferredRound)

	old := types.MakeProposalData(types.Payload{}, me, nil, 3, 9000, c.qc2, nil, nil)
	_, err = sr.SignProposal(old)
	requireKind(t, err, IncorrectLastVotedRound)
}

func TestEpochHandling(t *testing.T) {
	partitiontest.PartitionTest(t)

	c := makeChain()
	storage := &MemoryStorage{}
	require.NoError(t, storage.SetSafetyData(SafetyData{Epoch: 0, LastVotedRound: 9}))
	sr, err := MakeSafetyRules(c.signers[0].Secrets, 1, c.v, storage, logging.TestingLog(t))
	require.NoError(t, err)

	state, err := sr.ConsensusState()
	require.NoError(t, err)
	require.EqualValues(t, 1, state.SafetyData.Epoch)
	require.EqualValues(t, 0, state.SafetyData.LastVotedRound)
	require.True(t, state.InValidatorSet)
	require.Equal(t, c.signers[0].Address, state.Author)

	require.NoError(t, storage.SetSafetyData(SafetyData{Epoch: 2}))
	_, err = MakeSafetyRules(c.signers[0].Secrets, 1, c.v, storage, logging.TestingLog(t))
	requireKind(t, err, IncorrectEpoch)

	_, err = sr.SignTimeoutWithQC(types.TwoChainTimeout{Epoch: 2, Round: 1, QuorumCert: c.gqc}, nil)
	requireKind(t, err, IncorrectEpoch)
}

func TestSignFastShareRequiresVote(t *testing.T) {
	partitiontest.PartitionTest(t)

	c := makeChain()
	sr, _ := makeRules(t, c)

	_, err := sr.SignFastShare(1, 1, c.b1.ID)
	requireKind(t, err, NotSafeToVote)

	_, err = sr.ConstructAndSignVoteTwoChain(proposalOf(c.b1), nil)
	require.NoError(t, err)
	sig, err := sr.SignFastShare(1, 1, c.b1.ID)
	require.NoError(t, err)
	msg := types.FastShareMsg{Epoch: 1, Round: 1, BlockID: c.b1.ID, Author: c.signers[0].Address, Share: sig}
	require.NoError(t, msg.Verify(c.v))
}

type failingStorage struct{ MemoryStorage }

func (f *failingStorage) SetSafetyData(SafetyData) error { return errors.New("disk full") }

func TestPersistenceFailureIsNotRejection(t *testing.T) {
	partitiontest.PartitionTest(t)

	c := makeChain()
	storage := &failingStorage{}
	storage.data.Epoch = 1
	sr, err := MakeSafetyRules(c.signers[0].Secrets, 1, c.v, storage, logging.TestingLog(t))
	require.NoError(t, err)

	_, err = sr.ConstructAndSignVoteTwoChain(proposalOf(c.b1), nil)
	requireKind(t, err, PersistenceFailure)
	require.False(t, IsRejection(err))
}
