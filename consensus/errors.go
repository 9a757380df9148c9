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

package consensus

import (
	"errors"
	"fmt"

	"github.com/algorand/go-twochain/data/basics"
)

var (
	// ErrProtocolViolation wraps inconsistencies that cannot happen with
	// honest peers and a correct implementation.
	ErrProtocolViolation = errors.New("protocol violation")

	// ErrSyncOnlyMode is returned by a local timeout while the node only
	// follows certificates. The node broadcast its sync info instead.
	ErrSyncOnlyMode = errors.New("sync only mode, broadcast sync info instead of timing out")

	errDuplicateVote     = errors.New("duplicate vote")
	errEquivocateVote    = errors.New("equivocating vote")
	errAlreadyVoted      = errors.New("already voted in this round")
	errNotLeader         = errors.New("not the leader of the next round")
	errOptRxDisabled     = errors.New("optimistic proposals are disabled")
	errShutdown          = errors.New("round manager is shutting down")
	errNoRetrievalTarget = errors.New("no peer returned the requested blocks")
)

// VerificationError is an inbound message that failed a structural or
// cryptographic check. The message was discarded.
type VerificationError struct {
	Peer basics.Address
	Err  error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("message from %s failed verification: %v", e.Peer.ShortString(), e.Err)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}

// TimeoutError reports a local round timeout that was broadcast. It is an
// expected outcome that callers acknowledge like any other error.
type TimeoutError struct {
	Round basics.Round
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("round %d timed out, broadcast timeout to all peers", e.Round)
}

func protocolViolation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...))
}

func verificationError(peer basics.Address, err error) error {
	return &VerificationError{Peer: peer, Err: err}
}
