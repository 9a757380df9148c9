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

// Package consensustest builds validator sets, certificates and blocks for
// tests of the consensus packages.
package consensustest

import (
	"encoding/binary"

	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
)

// Signer is a validator key with its address.
type Signer struct {
	Secrets *crypto.SignatureSecrets
	Address basics.Address
}

// MakeSigner derives a deterministic key from i.
func MakeSigner(i int) Signer {
	var seed crypto.Seed
	binary.BigEndian.PutUint64(seed[:], uint64(i)+1)
	copy(seed[8:], "consensustest")
	s := crypto.GenerateSignatureSecrets(seed)
	return Signer{Secrets: s, Address: basics.AddressFromPublicKey(s.PublicKey)}
}

// MakeValidators returns n signers of equal power and their verifier.
// Signers are in the verifier's canonical order.
func MakeValidators(n int, power uint64) ([]Signer, *types.ValidatorVerifier) {
	powers := make([]uint64, n)
	for i := range powers {
		powers[i] = power
	}
	return MakeWeightedValidators(powers)
}

// MakeWeightedValidators returns one signer per power entry.
func MakeWeightedValidators(powers []uint64) ([]Signer, *types.ValidatorVerifier) {
	signers := make([]Signer, len(powers))
	infos := make([]types.ValidatorInfo, len(powers))
	for i, p := range powers {
		signers[i] = MakeSigner(i)
		infos[i] = types.MakeValidatorInfo(signers[i].Secrets.PublicKey, p)
	}
	v, err := types.MakeValidatorVerifier(infos)
	if err != nil {
		panic(err)
	}
	byAddr := make(map[basics.Address]Signer, len(signers))
	for _, s := range signers {
		byAddr[s.Address] = s
	}
	for i, addr := range v.Addresses() {
		signers[i] = byAddr[addr]
	}
	return signers, v
}

// Genesis returns the genesis block of epoch 1 and its certificate.
func Genesis() (types.Block, types.QuorumCert) {
	g := types.MakeGenesisBlock(1, 0)
	return g, types.MakeGenesisQuorumCert(g.GenBlockInfo(crypto.Digest{}, 0))
}

// SignVote produces signer's vote on proposed with parent, committing commit.
func SignVote(signer Signer, proposed, parent, commit types.BlockInfo) types.Vote {
	vd := types.VoteData{Proposed: proposed, Parent: parent}
	li := types.LedgerInfo{CommitInfo: commit, ConsensusDataHash: vd.Hash()}
	return types.MakeVote(vd, signer.Address, li, signer.Secrets.Sign(li))
}

// MakeQuorumCert certifies proposed with signatures of every signer given.
func MakeQuorumCert(signers []Signer, proposed, parent, commit types.BlockInfo) types.QuorumCert {
	vd := types.VoteData{Proposed: proposed, Parent: parent}
	li := types.LedgerInfo{CommitInfo: commit, ConsensusDataHash: vd.Hash()}
	var agg types.AggregateSignature
	for _, s := range signers {
		agg.Add(s.Address, s.Secrets.Sign(li))
	}
	return types.QuorumCert{VoteData: vd, SignedLedgerInfo: types.LedgerInfoWithSignatures{LedgerInfo: li, Signatures: agg}}
}

// CertifyBlock certifies block on top of its parent certificate, applying
// the two-chain commit rule.
func CertifyBlock(signers []Signer, block types.Block) types.QuorumCert {
	parent := block.QuorumCert().CertifiedBlock()
	var commit types.BlockInfo
	if parent.Round+1 == block.Round() {
		commit = parent
	}
	return MakeQuorumCert(signers, block.GenBlockInfo(crypto.Digest{}, 0), parent, commit)
}

// SignTimeout signs a two-chain timeout for round carrying hqc.
func SignTimeout(signer Signer, epoch basics.Epoch, round basics.Round, hqc types.QuorumCert) (types.TwoChainTimeout, crypto.Signature) {
	t := types.TwoChainTimeout{Epoch: epoch, Round: round, QuorumCert: hqc}
	return t, signer.Secrets.Sign(t.SigningFormat())
}

// MakeTimeoutCert aggregates timeouts for round from every signer, all carrying hqc.
func MakeTimeoutCert(signers []Signer, epoch basics.Epoch, round basics.Round, hqc types.QuorumCert) *types.TwoChainTimeoutCertificate {
	var tc *types.TwoChainTimeoutCertificate
	for _, s := range signers {
		t, sig := SignTimeout(s, epoch, round, hqc)
		if tc == nil {
			tc = types.MakeTwoChainTimeoutCertificate(t)
		}
		if err := tc.Add(s.Address, t, sig); err != nil {
			panic(err)
		}
	}
	return tc
}

// MakeProposal builds a proposal by author at round on top of qc.
func MakeProposal(author Signer, round basics.Round, qc types.QuorumCert, failed []types.FailedAuthor, payload types.Payload, tc *types.TwoChainTimeoutCertificate) types.Block {
	ts := qc.CertifiedBlock().Timestamp + uint64(round)*1000
	data := types.MakeProposalData(payload, author.Address, failed, round, ts, qc, nil, tc)
	return types.MakeSignedBlock(data, author.Secrets.Sign(types.BlockSigningFormat(data.Hash())))
}

// MakeSyncInfo bundles qc with an ordered cert derived from it and tc.
func MakeSyncInfo(qc types.QuorumCert, tc *types.TwoChainTimeoutCertificate) types.SyncInfo {
	var ordered *types.WrappedLedgerInfo
	if qc.IsGenesis() {
		w := qc.IntoWrappedLedgerInfo()
		ordered = &w
	}
	return types.MakeSyncInfo(qc, ordered, tc)
}
