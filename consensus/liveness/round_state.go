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

// Package liveness keeps the round moving: it tracks the current round and
// its deadline, elects leaders, and builds the proposals this node leads.
package liveness

import (
	"fmt"
	"math"
	"time"

	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/consensus/votes"
	"github.com/algorand/go-twochain/data/basics"
	"github.com/algorand/go-twochain/logging"
	"github.com/algorand/go-twochain/util/timers"
)

// RoundTimeInterval maps the number of rounds since the last ordered block
// to the duration of the next round.
type RoundTimeInterval interface {
	RoundDuration(roundIndex uint64) time.Duration
}

// ExponentialTimeInterval grows the round duration geometrically and caps
// the exponent.
type ExponentialTimeInterval struct {
	Base         time.Duration
	ExponentBase float64
	MaxExponent  int
}

// RoundDuration implements RoundTimeInterval.
func (e ExponentialTimeInterval) RoundDuration(roundIndex uint64) time.Duration {
	pow := roundIndex
	if pow > uint64(e.MaxExponent) {
		pow = uint64(e.MaxExponent)
	}
	return time.Duration(float64(e.Base) * math.Pow(e.ExponentBase, float64(pow)))
}

// NewRoundReason says which certificate ended the previous round.
type NewRoundReason uint8

const (
	// QCReady means a quorum cert for the previous round formed.
	QCReady NewRoundReason = iota
	// Timeout means a timeout cert for the previous round formed.
	Timeout
)

func (r NewRoundReason) String() string {
	if r == QCReady {
		return "QCReady"
	}
	return "Timeout"
}

// NewRoundEvent is emitted when certificates move the node to a new round.
type NewRoundEvent struct {
	Round   basics.Round
	Reason  NewRoundReason
	Timeout time.Duration
	// TimeoutReason is set when Reason is Timeout.
	TimeoutReason types.RoundTimeoutReason
}

func (e NewRoundEvent) String() string {
	if e.Reason == Timeout {
		return fmt.Sprintf("NewRoundEvent[round %d, %v(%v), timeout %v]", e.Round, e.Reason, e.TimeoutReason, e.Timeout)
	}
	return fmt.Sprintf("NewRoundEvent[round %d, %v, timeout %v]", e.Round, e.Reason, e.Timeout)
}

// RoundState tracks the current round, its deadline, and what was collected
// and sent in it. It is owned by a single goroutine.
type RoundState struct {
	interval            RoundTimeInterval
	clock               timers.Clock
	deadlineCh          <-chan time.Time
	deadline            time.Time
	highestOrderedRound basics.Round
	currentRound        basics.Round
	pending             *votes.PendingVotes
	voteSent            *types.Vote
	timeoutSent         *types.RoundTimeout
	log                 logging.Logger
}

// MakeRoundState starts at round 0; the first certificates move it forward.
func MakeRoundState(interval RoundTimeInterval, clock timers.Clock, log logging.Logger) *RoundState {
	return &RoundState{
		interval: interval,
		clock:    clock,
		pending:  votes.MakePendingVotes(),
		log:      log,
	}
}

// CurrentRound is the round the node is working on.
func (rs *RoundState) CurrentRound() basics.Round {
	return rs.currentRound
}

// HighestOrderedRound is the highest round known to be ordered.
func (rs *RoundState) HighestOrderedRound() basics.Round {
	return rs.highestOrderedRound
}

// Deadline returns the current round and a channel that fires at its
// deadline. The channel changes whenever the timer is re-armed.
func (rs *RoundState) Deadline() (basics.Round, <-chan time.Time) {
	return rs.currentRound, rs.deadlineCh
}

// CurrentRoundDeadline is the wall clock deadline of the current round.
func (rs *RoundState) CurrentRoundDeadline() time.Time {
	return rs.deadline
}

// VoteSent is this node's vote for the current round, if any.
func (rs *RoundState) VoteSent() *types.Vote {
	return rs.voteSent
}

// TimeoutSent is this node's round timeout for the current round, if any.
func (rs *RoundState) TimeoutSent() *types.RoundTimeout {
	return rs.timeoutSent
}

// ProcessLocalTimeout re-arms the timer if round is still current and
// reports whether it was.
func (rs *RoundState) ProcessLocalTimeout(round basics.Round) bool {
	if round != rs.currentRound {
		return false
	}
	rs.setupTimeout()
	return true
}

// ProcessCertificates raises the ordered round and, when the certificates
// prove a round at or past the current one, moves to the next round.
func (rs *RoundState) ProcessCertificates(si types.SyncInfo, verifier *types.ValidatorVerifier) (NewRoundEvent, bool) {
	if r := si.HighestOrderedRound(); r > rs.highestOrderedRound {
		rs.highestOrderedRound = r
	}
	newRound := si.HighestRound() + 1
	if newRound <= rs.currentRound {
		return NewRoundEvent{}, false
	}

	prev := rs.pending
	rs.currentRound = newRound
	rs.pending = votes.MakePendingVotes()
	rs.voteSent = nil
	rs.timeoutSent = nil
	timeout := rs.setupTimeout()

	ev := NewRoundEvent{Round: newRound, Reason: QCReady, Timeout: timeout}
	if si.HighestCertifiedRound()+1 != newRound {
		ev.Reason = Timeout
		ev.TimeoutReason = prev.AggregatedTimeoutReason(verifier)
	}
	rs.log.Debugf("entering round %d: %v", newRound, ev)
	return ev, true
}

// InsertVote adds a vote for the current round.
func (rs *RoundState) InsertVote(vote types.Vote, verifier *types.ValidatorVerifier) votes.ReceptionResult {
	if vote.Round() != rs.currentRound {
		return votes.ReceptionResult{Kind: votes.UnexpectedRound}
	}
	return rs.pending.InsertVote(vote, verifier)
}

// InsertRoundTimeout adds a round timeout for the current round.
func (rs *RoundState) InsertRoundTimeout(rt types.RoundTimeout, verifier *types.ValidatorVerifier) votes.ReceptionResult {
	if rt.Round() != rs.currentRound {
		return votes.ReceptionResult{Kind: votes.UnexpectedRound}
	}
	return rs.pending.InsertRoundTimeout(rt, verifier)
}

// RecordVote remembers this node's vote if it is for the current round.
func (rs *RoundState) RecordVote(vote types.Vote) {
	if vote.Round() == rs.currentRound {
		rs.voteSent = &vote
	}
}

// RecordRoundTimeout remembers this node's round timeout if it is for the
// current round.
func (rs *RoundState) RecordRoundTimeout(rt types.RoundTimeout) {
	if rt.Round() == rs.currentRound {
		rs.timeoutSent = &rt
	}
}

// setupTimeout arms the deadline for the current round. The round index
// counts rounds past the highest ordered round plus the three rounds a
// healthy pipeline needs to order a block.
func (rs *RoundState) setupTimeout() time.Duration {
	var index uint64
	switch {
	case rs.highestOrderedRound == 0:
		index = uint64(rs.currentRound.SubSaturate(1))
	case rs.currentRound < rs.highestOrderedRound+3:
		index = 0
	default:
		index = uint64(rs.currentRound - rs.highestOrderedRound - 3)
	}
	timeout := rs.interval.RoundDuration(index)
	rs.clock = rs.clock.Zero()
	rs.deadlineCh = rs.clock.TimeoutAt(timeout)
	rs.deadline = rs.clock.GetTimeout(timeout)
	return timeout
}
