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
	"errors"
	"fmt"
	"time"

	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-twochain/config"
	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
)

var errAlreadyGenerated = errors.New("a proposal was already generated for this round")

// PayloadPullParams bounds a payload pull.
type PayloadPullParams struct {
	MaxTxns  uint64
	MaxBytes uint64
	// Exclude lists the payloads of uncommitted ancestors.
	Exclude []types.Payload
}

// PayloadClient supplies proposal payloads.
type PayloadClient interface {
	Pull(ctx context.Context, params PayloadPullParams) (types.Payload, error)
}

// ValidatorTxnPool supplies validator transactions.
type ValidatorTxnPool interface {
	Pull(maxItems, maxBytes uint64) []types.ValidatorTransaction
}

// BlockReader is the read side of the block store the generator builds on.
type BlockReader interface {
	HighestQuorumCert() types.QuorumCert
	HighestTwoChainTimeoutCert() *types.TwoChainTimeoutCertificate
	// PendingPayloads returns the payloads from id up to the last
	// committed block, exclusive.
	PendingPayloads(id crypto.Digest) []types.Payload
}

// ProposalGenerator builds the block data for rounds this node leads. It
// generates at most one proposal per round.
type ProposalGenerator struct {
	author   basics.Address
	blocks   BlockReader
	payloads PayloadClient
	vtxns    ValidatorTxnPool
	now      func() time.Time

	maxTxns          uint64
	maxBytes         uint64
	maxFailedAuthors uint64
	vtxnEnabled      bool
	maxVtxns         uint64
	maxVtxnBytes     uint64

	mu                 deadlock.Mutex
	lastRoundGenerated basics.Round
}

// MakeProposalGenerator wires a generator from the local config. vtxns may
// be nil when validator transactions are disabled.
func MakeProposalGenerator(author basics.Address, blocks BlockReader, payloads PayloadClient, vtxns ValidatorTxnPool, cfg config.Local, now func() time.Time) *ProposalGenerator {
	if now == nil {
		now = time.Now
	}
	return &ProposalGenerator{
		author:           author,
		blocks:           blocks,
		payloads:         payloads,
		vtxns:            vtxns,
		now:              now,
		maxTxns:          cfg.MaxSendingBlockTxns,
		maxBytes:         cfg.MaxSendingBlockBytes,
		maxFailedAuthors: cfg.MaxFailedAuthorsToStore,
		vtxnEnabled:      cfg.ValidatorTxnsEnabled && vtxns != nil,
		maxVtxns:         cfg.MaxValidatorTxnsPerBlock,
		maxVtxnBytes:     cfg.MaxValidatorTxnBytesPerBlock,
	}
}

// Author is the proposing validator.
func (g *ProposalGenerator) Author() basics.Address {
	return g.author
}

func (g *ProposalGenerator) claimRound(round basics.Round) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if round <= g.lastRoundGenerated {
		return fmt.Errorf("round %d: %w (last %d)", round, errAlreadyGenerated, g.lastRoundGenerated)
	}
	g.lastRoundGenerated = round
	return nil
}

// ensureHighestQuorumCert returns the hqc, which must be below round.
func (g *ProposalGenerator) ensureHighestQuorumCert(round basics.Round) (types.QuorumCert, error) {
	hqc := g.blocks.HighestQuorumCert()
	if hqc.Round() >= round {
		return hqc, fmt.Errorf("highest quorum cert round %d is not below round %d", hqc.Round(), round)
	}
	return hqc, nil
}

// GenerateNilBlock builds the nil block voted on when round times out
// without a proposal.
func (g *ProposalGenerator) GenerateNilBlock(round basics.Round, election ProposerElection) (types.Block, error) {
	hqc, err := g.ensureHighestQuorumCert(round)
	if err != nil {
		return types.Block{}, err
	}
	failed := g.ComputeFailedAuthors(round, hqc.Round(), true, election)
	return types.MakeBlock(types.MakeNilBlockData(round, hqc, failed)), nil
}

// GenerateProposal builds an unsigned proposal for round on top of the
// highest quorum cert, justified by a timeout cert when rounds were skipped.
func (g *ProposalGenerator) GenerateProposal(ctx context.Context, round basics.Round, election ProposerElection) (types.BlockData, error) {
	if err := g.claimRound(round); err != nil {
		return types.BlockData{}, err
	}
	hqc, err := g.ensureHighestQuorumCert(round)
	if err != nil {
		return types.BlockData{}, err
	}
	var tc *types.TwoChainTimeoutCertificate
	if hqc.Round()+1 != round {
		tc = g.blocks.HighestTwoChainTimeoutCert()
		if tc == nil || tc.Round()+1 != round {
			return types.BlockData{}, fmt.Errorf("no certificate justifies proposing round %d on hqc round %d", round, hqc.Round())
		}
	}

	vtxns, vtxnBytes := g.pullValidatorTxns()
	maxBytes := g.maxBytes
	if vtxnBytes < maxBytes {
		maxBytes -= vtxnBytes
	} else {
		maxBytes = 0
	}
	payload, err := g.payloads.Pull(ctx, PayloadPullParams{
		MaxTxns:  g.maxTxns,
		MaxBytes: maxBytes,
		Exclude:  g.blocks.PendingPayloads(hqc.CertifiedBlock().ID),
	})
	if err != nil {
		return types.BlockData{}, fmt.Errorf("pulling payload for round %d: %w", round, err)
	}

	ts := g.timestamp(hqc.CertifiedBlock().Timestamp)
	failed := g.ComputeFailedAuthors(round, hqc.Round(), false, election)
	return types.MakeProposalData(payload, g.author, failed, round, ts, hqc, vtxns, tc), nil
}

// GenerateOptProposal builds the body of round on top of an uncertified
// parent whose own parent is certified by grandparentQC.
func (g *ProposalGenerator) GenerateOptProposal(ctx context.Context, round basics.Round, parent types.BlockInfo, grandparentQC types.QuorumCert) (types.OptBlockData, error) {
	if err := g.claimRound(round); err != nil {
		return types.OptBlockData{}, err
	}
	if parent.Round+1 != round || grandparentQC.Round()+1 != parent.Round {
		return types.OptBlockData{}, fmt.Errorf("optimistic round %d needs parent round %d and grandparent round %d, got %d and %d",
			round, round-1, round.SubSaturate(2), parent.Round, grandparentQC.Round())
	}

	vtxns, vtxnBytes := g.pullValidatorTxns()
	maxBytes := g.maxBytes
	if vtxnBytes < maxBytes {
		maxBytes -= vtxnBytes
	} else {
		maxBytes = 0
	}
	payload, err := g.payloads.Pull(ctx, PayloadPullParams{
		MaxTxns:  g.maxTxns,
		MaxBytes: maxBytes,
		Exclude:  g.blocks.PendingPayloads(parent.ID),
	})
	if err != nil {
		return types.OptBlockData{}, fmt.Errorf("pulling payload for optimistic round %d: %w", round, err)
	}
	return types.OptBlockData{
		Epoch:         parent.Epoch,
		Round:         round,
		Timestamp:     g.timestamp(parent.Timestamp),
		Author:        g.author,
		Payload:       payload,
		ValidatorTxns: vtxns,
		Parent:        parent,
		GrandparentQC: grandparentQC,
	}, nil
}

// ComputeFailedAuthors lists the leaders of the rounds between
// previousRound and round, optionally including round itself, keeping at
// most the configured number of most recent rounds.
func (g *ProposalGenerator) ComputeFailedAuthors(round, previousRound basics.Round, includeCurrent bool, election ProposerElection) []types.FailedAuthor {
	end := round
	if includeCurrent {
		end++
	}
	start := previousRound + 1
	if s := end.SubSaturate(basics.Round(g.maxFailedAuthors)); s > start {
		start = s
	}
	var out []types.FailedAuthor
	for r := start; r < end; r++ {
		out = append(out, types.FailedAuthor{Round: r, Author: election.ValidProposer(r)})
	}
	return out
}

func (g *ProposalGenerator) pullValidatorTxns() ([]types.ValidatorTransaction, uint64) {
	if !g.vtxnEnabled {
		return nil, 0
	}
	vtxns := g.vtxns.Pull(g.maxVtxns, g.maxVtxnBytes)
	var size uint64
	for _, t := range vtxns {
		size += t.Size()
	}
	return vtxns, size
}

// timestamp is the current time in microseconds, forced past the parent's.
func (g *ProposalGenerator) timestamp(parent uint64) uint64 {
	ts := uint64(g.now().UnixMicro())
	if ts <= parent {
		ts = parent + 1
	}
	return ts
}
