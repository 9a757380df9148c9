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

package config

import (
	"time"
)

// Local holds the per-node configuration of the consensus engine.
//
// The versioned struct tags are treated as constants once released. A new
// default is introduced by adding a version[n] tag to the field and a
// matching tag to Version; migrate() then moves configs that still carry
// the old default.
type Local struct {
	// Version tracks the defaults version the file was written against.
	Version uint32 `version[0]:"0" version[1]:"1"`

	// MaxSendingBlockTxns caps the number of transactions a leader puts in a proposal.
	MaxSendingBlockTxns uint64 `version[0]:"1900"`

	// MaxSendingBlockBytes caps the payload byte size of a proposal built locally.
	MaxSendingBlockBytes uint64 `version[0]:"3145728"`

	// MaxReceivingBlockTxns is the largest transaction count accepted in a received proposal.
	MaxReceivingBlockTxns uint64 `version[0]:"10000"`

	// MaxReceivingBlockBytes is the largest payload byte size accepted in a received proposal.
	MaxReceivingBlockBytes uint64 `version[0]:"6291456"`

	// MaxFailedAuthorsToStore bounds the failed-proposer list carried by a block.
	MaxFailedAuthorsToStore uint64 `version[0]:"10"`

	// ValidatorTxnsEnabled allows proposals carrying validator transactions.
	ValidatorTxnsEnabled bool `version[0]:"false" version[1]:"true"`

	// MaxValidatorTxnsPerBlock and MaxValidatorTxnBytesPerBlock limit validator transactions in one block.
	MaxValidatorTxnsPerBlock     uint64 `version[0]:"2"`
	MaxValidatorTxnBytesPerBlock uint64 `version[0]:"2097152"`

	// RoundInitialTimeout is the round deadline when no rounds have been missed.
	RoundInitialTimeout time.Duration `version[0]:"1000000000"`

	// RoundTimeoutBackoffBase is the multiplier applied per round past the ordered round.
	RoundTimeoutBackoffBase float64 `version[0]:"1.2"`

	// RoundTimeoutBackoffMaxExponent caps the backoff exponent.
	RoundTimeoutBackoffMaxExponent int `version[0]:"6"`

	// BroadcastVote sends votes to every validator instead of only to the next leader.
	BroadcastVote bool `version[0]:"true"`

	// EnableRoundTimeoutMsg sends RoundTimeout messages instead of timeout-marked votes.
	EnableRoundTimeoutMsg bool `version[0]:"false" version[1]:"true"`

	// EnableOrderVote broadcasts an order vote for every newly certified block.
	EnableOrderVote bool `version[0]:"true"`

	// EnableOptProposalTx lets this node send optimistic proposals when it leads the next round.
	EnableOptProposalTx bool `version[0]:"false"`

	// EnableOptProposalRx lets this node accept optimistic proposals.
	EnableOptProposalRx bool `version[0]:"true"`

	// SyncOnly keeps the node following certificates without voting.
	SyncOnly bool `version[0]:"false"`

	// VoteBackPressureLimit is the allowed gap between the certified and the executed round.
	VoteBackPressureLimit uint64 `version[0]:"12"`

	// BackPressurePollInterval is how often a throttled proposal is re-submitted.
	BackPressurePollInterval time.Duration `version[0]:"30000000"`

	// BackPressureTotalWait bounds how long a throttled proposal is retried before it is dropped.
	BackPressureTotalWait time.Duration `version[0]:"1000000000"`

	// EnableFastShare broadcasts one randomness share per voted block.
	EnableFastShare bool `version[0]:"false"`

	// FastShareCacheSize is the number of recent block ids remembered for share deduplication.
	FastShareCacheSize int `version[0]:"5"`

	// DeniedInlineSenders lists addresses whose inline transactions are refused.
	DeniedInlineSenders []string `version[0]:""`

	// ProposerElectionType selects "rotating" or "weighted" leader election.
	ProposerElectionType string `version[0]:"rotating"`

	// ProposerContiguousRounds is the number of consecutive rounds one leader holds.
	ProposerContiguousRounds uint64 `version[0]:"1"`

	// BlockRetrievalTimeout bounds one block retrieval request to one peer.
	BlockRetrievalTimeout time.Duration `version[0]:"2000000000"`

	// ProposalQueueSize is the buffer of the inbound proposal channel.
	ProposalQueueSize int `version[0]:"10"`

	// EventQueueSize is the buffer of the inbound verified-event channel.
	EventQueueSize int `version[0]:"1024"`

	// VerifierBacklogSize is the number of messages waiting for signature verification.
	VerifierBacklogSize int `version[0]:"256"`

	// InboundMessagesPerSecond and InboundBurst rate limit each peer.
	InboundMessagesPerSecond int `version[0]:"5000"`
	InboundBurst             int `version[0]:"1000"`

	// BaseLoggerDebugLevel sets the log level, 0 (panic) to 5 (debug).
	BaseLoggerDebugLevel uint32 `version[0]:"4"`

	// MetricsListenAddress serves /metrics when non-empty.
	MetricsListenAddress string `version[0]:""`
}

// DeniedSenders returns DeniedInlineSenders as a set.
func (cfg Local) DeniedSenders() map[string]struct{} {
	set := make(map[string]struct{}, len(cfg.DeniedInlineSenders))
	for _, s := range cfg.DeniedInlineSenders {
		set[s] = struct{}{}
	}
	return set
}
