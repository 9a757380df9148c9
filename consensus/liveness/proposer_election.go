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
	"encoding/binary"
	"fmt"

	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
	"github.com/algorand/go-twochain/logging"
	"github.com/algorand/go-twochain/protocol"
)

// ProposerElection maps a round to the validator allowed to propose in it.
type ProposerElection interface {
	ValidProposer(round basics.Round) basics.Address
	IsValidProposer(author basics.Address, round basics.Round) bool
}

// Election kinds accepted by MakeProposerElection.
const (
	RotatingElection = "rotating"
	WeightedElection = "weighted"
)

// MakeProposerElection builds the election strategy named by kind.
func MakeProposerElection(kind string, epoch basics.Epoch, verifier *types.ValidatorVerifier, contiguousRounds uint64) (ProposerElection, error) {
	if contiguousRounds == 0 {
		contiguousRounds = 1
	}
	switch kind {
	case RotatingElection, "":
		return MakeRotatingProposer(verifier.Addresses(), contiguousRounds), nil
	case WeightedElection:
		return MakeWeightedProposer(epoch, verifier, contiguousRounds), nil
	default:
		return nil, fmt.Errorf("unknown proposer election %q", kind)
	}
}

// RotatingProposer hands out rounds to validators in order, contiguousRounds
// consecutive rounds each.
type RotatingProposer struct {
	proposers        []basics.Address
	contiguousRounds uint64
}

// MakeRotatingProposer rotates over proposers in the given order.
func MakeRotatingProposer(proposers []basics.Address, contiguousRounds uint64) *RotatingProposer {
	return &RotatingProposer{proposers: proposers, contiguousRounds: contiguousRounds}
}

// ValidProposer implements ProposerElection.
func (r *RotatingProposer) ValidProposer(round basics.Round) basics.Address {
	return r.proposers[(uint64(round)/r.contiguousRounds)%uint64(len(r.proposers))]
}

// IsValidProposer implements ProposerElection.
func (r *RotatingProposer) IsValidProposer(author basics.Address, round basics.Round) bool {
	return r.ValidProposer(round) == author
}

type electionSeed struct {
	Epoch basics.Epoch `codec:"e"`
	Slot  uint64       `codec:"s"`
}

func (s electionSeed) ToBeHashed() (protocol.HashID, []byte) {
	return protocol.ProposerSeed, protocol.EncodeReflect(s)
}

// WeightedProposer picks a validator with probability proportional to its
// voting power, from a hash of the epoch and round slot.
type WeightedProposer struct {
	epoch            basics.Epoch
	validators       []types.ValidatorInfo
	total            uint64
	contiguousRounds uint64
}

// MakeWeightedProposer elects over the validators of verifier.
func MakeWeightedProposer(epoch basics.Epoch, verifier *types.ValidatorVerifier, contiguousRounds uint64) *WeightedProposer {
	return &WeightedProposer{
		epoch:            epoch,
		validators:       verifier.Validators(),
		total:            verifier.TotalVotingPower(),
		contiguousRounds: contiguousRounds,
	}
}

// ValidProposer implements ProposerElection.
func (w *WeightedProposer) ValidProposer(round basics.Round) basics.Address {
	d := crypto.HashObj(electionSeed{Epoch: w.epoch, Slot: uint64(round) / w.contiguousRounds})
	target := binary.BigEndian.Uint64(d[:8]) % w.total
	for _, v := range w.validators {
		if target < v.VotingPower {
			return v.Address
		}
		target -= v.VotingPower
	}
	return w.validators[len(w.validators)-1].Address
}

// IsValidProposer implements ProposerElection.
func (w *WeightedProposer) IsValidProposer(author basics.Address, round basics.Round) bool {
	return w.ValidProposer(round) == author
}

// UnequivocalProposerElection accepts at most one block per round from the
// valid proposer. The same block may be presented again.
type UnequivocalProposerElection struct {
	ProposerElection

	mu           deadlock.Mutex
	lastRound    basics.Round
	lastProposal crypto.Digest
	log          logging.Logger
}

// MakeUnequivocalProposerElection wraps inner.
func MakeUnequivocalProposerElection(inner ProposerElection, log logging.Logger) *UnequivocalProposerElection {
	return &UnequivocalProposerElection{ProposerElection: inner, log: log}
}

// IsValidProposal reports whether block is the first, or a repeat of the
// first, proposal seen from the round's valid proposer. Rounds older than
// the last accepted one are refused.
func (u *UnequivocalProposerElection) IsValidProposal(block types.Block) bool {
	author, ok := block.Author()
	if !ok {
		return false
	}
	if !u.IsValidProposer(author, block.Round()) {
		return false
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	switch {
	case block.Round() < u.lastRound:
		return false
	case block.Round() == u.lastRound && u.lastRound != 0:
		if block.ID != u.lastProposal {
			u.log.Warnf("equivocating proposal from %v in round %d: %v and %v", author, block.Round(), u.lastProposal, block.ID)
			return false
		}
		return true
	default:
		u.lastRound = block.Round()
		u.lastProposal = block.ID
		return true
	}
}
