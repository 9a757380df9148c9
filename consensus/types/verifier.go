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

package types

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
)

var (
	// ErrUnknownAuthor is returned for a signer outside the validator set.
	ErrUnknownAuthor = errors.New("author is not in the validator set")
	// ErrInvalidSignature is returned when a signature does not verify.
	ErrInvalidSignature = errors.New("invalid signature")
	errEmptyValidatorSet   = errors.New("empty validator set")
	errVotingPowerOverflow = errors.New("total voting power overflows")
)

// TooLittleVotingPowerError reports a signer set below the required power.
type TooLittleVotingPowerError struct {
	VotingPower         uint64
	ExpectedVotingPower uint64
}

func (e *TooLittleVotingPowerError) Error() string {
	return fmt.Sprintf("too little voting power: %d < %d", e.VotingPower, e.ExpectedVotingPower)
}

// ValidatorInfo is one member of an epoch's validator set.
type ValidatorInfo struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Address     basics.Address   `codec:"addr"`
	PublicKey   crypto.PublicKey `codec:"pk"`
	VotingPower uint64           `codec:"power"`
}

// MakeValidatorInfo derives the address from the public key.
func MakeValidatorInfo(pk crypto.PublicKey, power uint64) ValidatorInfo {
	return ValidatorInfo{Address: basics.AddressFromPublicKey(pk), PublicKey: pk, VotingPower: power}
}

// ValidatorVerifier checks signatures and voting power against the
// validator set of one epoch. It is immutable after construction.
type ValidatorVerifier struct {
	validators  []ValidatorInfo
	index       map[basics.Address]int
	totalPower  uint64
	quorumPower uint64
}

// MakeValidatorVerifier builds a verifier. Validators are ordered by address
// so every node derives the same order from the same set.
func MakeValidatorVerifier(infos []ValidatorInfo) (*ValidatorVerifier, error) {
	if len(infos) == 0 {
		return nil, errEmptyValidatorSet
	}
	v := &ValidatorVerifier{
		validators: append([]ValidatorInfo(nil), infos...),
		index:      make(map[basics.Address]int, len(infos)),
	}
	sort.Slice(v.validators, func(i, j int) bool {
		return v.validators[i].Address.Less(v.validators[j].Address)
	})
	for i, info := range v.validators {
		if _, dup := v.index[info.Address]; dup {
			return nil, fmt.Errorf("duplicate validator %v", info.Address)
		}
		if info.VotingPower == 0 {
			return nil, fmt.Errorf("validator %v has no voting power", info.Address)
		}
		if info.VotingPower > math.MaxUint64-v.totalPower {
			return nil, fmt.Errorf("%w at validator %v", errVotingPowerOverflow, info.Address)
		}
		v.index[info.Address] = i
		v.totalPower += info.VotingPower
	}
	// floor(2*total/3) + 1 without forming 2*total
	v.quorumPower = v.totalPower/3*2 + v.totalPower%3*2/3 + 1
	return v, nil
}

// Len returns the number of validators.
func (v *ValidatorVerifier) Len() int {
	return len(v.validators)
}

// Validators returns the validator set in canonical order.
func (v *ValidatorVerifier) Validators() []ValidatorInfo {
	return append([]ValidatorInfo(nil), v.validators...)
}

// Addresses returns validator addresses in canonical order.
func (v *ValidatorVerifier) Addresses() []basics.Address {
	out := make([]basics.Address, len(v.validators))
	for i, info := range v.validators {
		out[i] = info.Address
	}
	return out
}

// TotalVotingPower is the sum of all validators' power.
func (v *ValidatorVerifier) TotalVotingPower() uint64 {
	return v.totalPower
}

// QuorumVotingPower is the smallest power strictly above two thirds of the total.
func (v *ValidatorVerifier) QuorumVotingPower() uint64 {
	return v.quorumPower
}

// EchoTimeoutVotingPower is the smallest power that must include one honest
// validator, total - quorum + 1.
func (v *ValidatorVerifier) EchoTimeoutVotingPower() uint64 {
	return v.totalPower - v.quorumPower + 1
}

// GetVotingPower returns the power of addr.
func (v *ValidatorVerifier) GetVotingPower(addr basics.Address) (uint64, bool) {
	i, ok := v.index[addr]
	if !ok {
		return 0, false
	}
	return v.validators[i].VotingPower, true
}

// GetPublicKey returns the consensus key of addr.
func (v *ValidatorVerifier) GetPublicKey(addr basics.Address) (crypto.PublicKey, bool) {
	i, ok := v.index[addr]
	if !ok {
		return crypto.PublicKey{}, false
	}
	return v.validators[i].PublicKey, true
}

// Contains reports whether addr is a validator.
func (v *ValidatorVerifier) Contains(addr basics.Address) bool {
	_, ok := v.index[addr]
	return ok
}

// SumVotingPower adds up the power of distinct signers.
func (v *ValidatorVerifier) SumVotingPower(signers []basics.Address) (uint64, error) {
	seen := make(map[basics.Address]struct{}, len(signers))
	var sum uint64
	for _, s := range signers {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		p, ok := v.GetVotingPower(s)
		if !ok {
			return 0, fmt.Errorf("%w: %v", ErrUnknownAuthor, s)
		}
		sum += p
	}
	return sum, nil
}

// CheckVotingPower returns the signers' power, or a *TooLittleVotingPowerError
// when it is below the quorum (checkQuorum) or below the echo threshold.
func (v *ValidatorVerifier) CheckVotingPower(signers []basics.Address, checkQuorum bool) (uint64, error) {
	power, err := v.SumVotingPower(signers)
	if err != nil {
		return 0, err
	}
	target := v.quorumPower
	if !checkQuorum {
		target = v.EchoTimeoutVotingPower()
	}
	if power < target {
		return power, &TooLittleVotingPowerError{VotingPower: power, ExpectedVotingPower: target}
	}
	return power, nil
}

// Verify checks a single signature by addr over msg.
func (v *ValidatorVerifier) Verify(addr basics.Address, msg crypto.Hashable, sig crypto.Signature) error {
	pk, ok := v.GetPublicKey(addr)
	if !ok {
		return fmt.Errorf("%w: %v", ErrUnknownAuthor, addr)
	}
	if !pk.Verify(msg, sig) {
		return fmt.Errorf("%w from %v", ErrInvalidSignature, addr)
	}
	return nil
}

// VerifyMultiSignatures checks a quorum of signatures over one message with a
// batch verifier.
func (v *ValidatorVerifier) VerifyMultiSignatures(msg crypto.Hashable, agg AggregateSignature) error {
	if _, err := v.CheckVotingPower(agg.Signers(), true); err != nil {
		return err
	}
	bv := crypto.MakeBatchVerifier(len(agg.Sigs))
	for _, ps := range agg.Sigs {
		pk, _ := v.GetPublicKey(ps.Signer)
		bv.EnqueueSignature(pk, msg, ps.Sig)
	}
	if err := bv.Verify(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}
