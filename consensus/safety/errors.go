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
	"fmt"

	"github.com/algorand/go-twochain/data/basics"
)

// ErrorKind names the safety check that refused to sign.
type ErrorKind uint8

const (
	// IncorrectEpoch is returned for requests outside the current epoch.
	IncorrectEpoch ErrorKind = iota + 1
	// IncorrectLastVotedRound is returned for rounds at or below the last vote.
	IncorrectLastVotedRound
	// IncorrectPreferredRound is returned when a proposal extends a quorum
	// cert older than the preferred round.
	IncorrectPreferredRound
	// NotSafeToVote is returned when neither the quorum cert nor the timeout
	// cert justifies the block's round.
	NotSafeToVote
	// NotSafeToTimeout is returned when the timeout is not justified by its
	// own quorum cert or by a timeout cert for the previous round.
	NotSafeToTimeout
	// NotSafeForOrderVote is returned for blocks at or below the highest
	// timed out round.
	NotSafeForOrderVote
	// InvalidQuorumCert wraps a quorum cert verification failure.
	InvalidQuorumCert
	// InvalidTimeoutCert wraps a timeout cert verification failure.
	InvalidTimeoutCert
	// InvalidProposal covers malformed blocks and foreign authors.
	InvalidProposal
	// PersistenceFailure wraps a storage error; the request was not signed.
	PersistenceFailure
)

func (k ErrorKind) String() string {
	switch k {
	case IncorrectEpoch:
		return "IncorrectEpoch"
	case IncorrectLastVotedRound:
		return "IncorrectLastVotedRound"
	case IncorrectPreferredRound:
		return "IncorrectPreferredRound"
	case NotSafeToVote:
		return "NotSafeToVote"
	case NotSafeToTimeout:
		return "NotSafeToTimeout"
	case NotSafeForOrderVote:
		return "NotSafeForOrderVote"
	case InvalidQuorumCert:
		return "InvalidQuorumCert"
	case InvalidTimeoutCert:
		return "InvalidTimeoutCert"
	case InvalidProposal:
		return "InvalidProposal"
	case PersistenceFailure:
		return "PersistenceFailure"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// Error is returned by every SafetyRules operation that refuses to sign.
type Error struct {
	Kind ErrorKind
	// Round and Bound are the offending round and the round it was checked
	// against, when the check is round based.
	Round basics.Round
	Bound basics.Round
	Err   error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("safety rules: %v: %v", e.Kind, e.Err)
	case e.Round != 0 || e.Bound != 0:
		return fmt.Sprintf("safety rules: %v: round %d, bound %d", e.Kind, e.Round, e.Bound)
	default:
		return fmt.Sprintf("safety rules: %v", e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRejection reports whether err is a safety refusal, as opposed to a
// storage failure or an unrelated error.
func IsRejection(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind != PersistenceFailure
}

func rejectRound(kind ErrorKind, round, bound basics.Round) *Error {
	return &Error{Kind: kind, Round: round, Bound: bound}
}

func rejectErr(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}
