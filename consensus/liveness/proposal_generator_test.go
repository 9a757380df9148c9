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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-twochain/config"
	"github.com/algorand/go-twochain/consensus/consensustest"
	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/test/partitiontest"
)

type fakeBlocks struct {
	hqc     types.QuorumCert
	htc     *types.TwoChainTimeoutCertificate
	pending []types.Payload
}

func (f *fakeBlocks) HighestQuorumCert() types.QuorumCert { return f.hqc }
func (f *fakeBlocks) HighestTwoChainTimeoutCert() *types.TwoChainTimeoutCertificate {
	return f.htc
}
func (f *fakeBlocks) PendingPayloads(crypto.Digest) []types.Payload { return f.pending }

type fakePayloads struct {
	last PayloadPullParams
	txns []types.Transaction
}

func (f *fakePayloads) Pull(ctx context.Context, p PayloadPullParams) (types.Payload, error) {
	f.last = p
	return types.Payload{Inline: f.txns}, nil
}

type fakeVtxnPool struct{ vtxns []types.ValidatorTransaction }

func (f *fakeVtxnPool) Pull(maxItems, maxBytes uint64) []types.ValidatorTransaction {
	if uint64(len(f.vtxns)) > maxItems {
		return f.vtxns[:maxItems]
	}
	return f.vtxns
}

type generatorFixture struct {
	signers []consensustest.Signer
	v       *types.ValidatorVerifier
	gqc     types.QuorumCert
	qc1     types.QuorumCert
	blocks  *fakeBlocks
	pay     *fakePayloads
	gen     *ProposalGenerator
	pe      ProposerElection
}

func makeGeneratorFixture(t *testing.T, cfg config.Local, vtxns ValidatorTxnPool) generatorFixture {
	var f generatorFixture
	f.signers, f.v = consensustest.MakeValidators(4, 1)
	_, f.gqc = consensustest.Genesis()
	b1 := consensustest.MakeProposal(f.signers[1], 1, f.gqc, nil, types.Payload{}, nil)
	f.qc1 = consensustest.CertifyBlock(f.signers[:3], b1)
	f.blocks = &fakeBlocks{hqc: f.qc1}
	f.pay = &fakePayloads{txns: []types.Transaction{{Nonce: 1, Body: []byte("x")}}}
	now := func() time.Time { return time.UnixMicro(500) }
	f.gen = MakeProposalGenerator(f.signers[0].Address, f.blocks, f.pay, vtxns, cfg, now)
	f.pe = MakeRotatingProposer(f.v.Addresses(), 1)
	return f
}

func TestGenerateProposal(t *testing.T) {
	partitiontest.PartitionTest(t)

	cfg := config.GetDefaultLocal()
	f := makeGeneratorFixture(t, cfg, nil)
	f.blocks.pending = []types.Payload{{Inline: []types.Transaction{{Nonce: 9}}}}

	bd, err := f.gen.GenerateProposal(context.Background(), 2, f.pe)
	require.NoError(t, err)
	require.Equal(t, types.ProposalBlock, bd.Type)
	require.EqualValues(t, 2, bd.Round)
	require.Equal(t, f.signers[0].Address, bd.Author)
	require.Empty(t, bd.FailedAuthors)
	require.Nil(t, bd.TimeoutCert)
	require.Len(t, bd.Payload.Inline, 1)
	// the clock is behind the parent, so the timestamp is forced past it
	require.Equal(t, f.qc1.CertifiedBlock().Timestamp+1, bd.Timestamp)
	require.Equal(t, cfg.MaxSendingBlockTxns, f.pay.last.MaxTxns)
	require.Equal(t, f.blocks.pending, f.pay.last.Exclude)

	_, err = f.gen.GenerateProposal(context.Background(), 2, f.pe)
	require.ErrorIs(t, err, errAlreadyGenerated)
	_, err = f.gen.GenerateProposal(context.Background(), 1, f.pe)
	require.ErrorIs(t, err, errAlreadyGenerated)
}

func TestGenerateProposalAfterTimeout(t *testing.T) {
	partitiontest.PartitionTest(t)

	f := makeGeneratorFixture(t, config.GetDefaultLocal(), nil)

	// round 3 skips round 2 and needs its timeout certificate
	_, err := f.gen.GenerateProposal(context.Background(), 3, f.pe)
	require.Error(t, err)

	f.blocks.htc = consensustest.MakeTimeoutCert(f.signers[:3], 1, 3, f.qc1)
	bd, err := f.gen.GenerateProposal(context.Background(), 4, f.pe)
	require.NoError(t, err)
	require.Equal(t, f.blocks.htc, bd.TimeoutCert)
	require.Equal(t, []types.FailedAuthor{
		{Round: 2, Author: f.pe.ValidProposer(2)},
		{Round: 3, Author: f.pe.ValidProposer(3)},
	}, bd.FailedAuthors)

	block := types.MakeSignedBlock(bd, f.signers[0].Secrets.Sign(types.BlockSigningFormat(bd.Hash())))
	require.NoError(t, block.Verify(f.v))
}

func TestComputeFailedAuthorsIsBounded(t *testing.T) {
	partitiontest.PartitionTest(t)

	cfg := config.GetDefaultLocal()
	cfg.MaxFailedAuthorsToStore = 3
	f := makeGeneratorFixture(t, cfg, nil)

	failed := f.gen.ComputeFailedAuthors(20, 1, false, f.pe)
	require.Len(t, failed, 3)
	require.EqualValues(t, 17, failed[0].Round)
	require.EqualValues(t, 19, failed[2].Round)

	withCurrent := f.gen.ComputeFailedAuthors(20, 1, true, f.pe)
	require.Len(t, withCurrent, 3)
	require.EqualValues(t, 20, withCurrent[2].Round)

	require.Empty(t, f.gen.ComputeFailedAuthors(2, 1, false, f.pe))
}

func TestGenerateNilBlock(t *testing.T) {
	partitiontest.PartitionTest(t)

	f := makeGeneratorFixture(t, config.GetDefaultLocal(), nil)

	nb, err := f.gen.GenerateNilBlock(2, f.pe)
	require.NoError(t, err)
	require.True(t, nb.IsNilBlock())
	require.Equal(t, []types.FailedAuthor{{Round: 2, Author: f.pe.ValidProposer(2)}}, nb.Data.FailedAuthors)
	require.NoError(t, nb.Verify(f.v))

	// every validator derives the same nil block
	again, err := f.gen.GenerateNilBlock(2, f.pe)
	require.NoError(t, err)
	require.Equal(t, nb.ID, again.ID)

	_, err = f.gen.GenerateNilBlock(1, f.pe)
	require.Error(t, err)
}

func TestGenerateProposalWithValidatorTxns(t *testing.T) {
	partitiontest.PartitionTest(t)

	cfg := config.GetDefaultLocal()
	cfg.ValidatorTxnsEnabled = true
	signer := consensustest.MakeSigner(0)
	pool := &fakeVtxnPool{vtxns: []types.ValidatorTransaction{
		types.MakeValidatorTransaction(types.ValidatorTxnDKGResult, []byte("dkg"), signer.Secrets),
		types.MakeValidatorTransaction(types.ValidatorTxnJWKUpdate, []byte("jwk"), signer.Secrets),
		types.MakeValidatorTransaction(types.ValidatorTxnJWKUpdate, []byte("more"), signer.Secrets),
	}}
	f := makeGeneratorFixture(t, cfg, pool)

	bd, err := f.gen.GenerateProposal(context.Background(), 2, f.pe)
	require.NoError(t, err)
	require.Equal(t, types.ProposalExtBlock, bd.Type)
	require.Len(t, bd.ValidatorTxns, int(cfg.MaxValidatorTxnsPerBlock))
	require.Less(t, f.pay.last.MaxBytes, cfg.MaxSendingBlockBytes)
}

func TestGenerateOptProposal(t *testing.T) {
	partitiontest.PartitionTest(t)

	f := makeGeneratorFixture(t, config.GetDefaultLocal(), nil)
	b2 := consensustest.MakeProposal(f.signers[2], 2, f.qc1, nil, types.Payload{}, nil)
	parent := b2.GenBlockInfo(crypto.Digest{}, 0)

	opt, err := f.gen.GenerateOptProposal(context.Background(), 3, parent, f.qc1)
	require.NoError(t, err)
	require.NoError(t, opt.VerifyWellFormed())
	require.Equal(t, f.signers[0].Address, opt.Author)
	require.Greater(t, opt.Timestamp, parent.Timestamp)

	_, err = f.gen.GenerateOptProposal(context.Background(), 5, parent, f.qc1)
	require.Error(t, err)
	_, err = f.gen.GenerateProposal(context.Background(), 3, f.pe)
	require.ErrorIs(t, err, errAlreadyGenerated)
}
