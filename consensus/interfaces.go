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

// Package consensus runs the two-chain round state machine. A RoundManager
// owns the round, collects votes and timeouts, votes on proposals through
// SafetyRules, and moves to the next round when certificates form.
package consensus

import (
	"context"

	"github.com/algorand/go-twochain/blockstore"
	"github.com/algorand/go-twochain/consensus/liveness"
	"github.com/algorand/go-twochain/consensus/safety"
	"github.com/algorand/go-twochain/consensus/storage"
	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
)

// BlockStore is the block tree and certificate store the RoundManager
// drives. Every insertion is idempotent.
type BlockStore interface {
	liveness.BlockReader

	InsertBlock(block types.Block) (types.BlockInfo, error)
	InsertQuorumCert(qc types.QuorumCert) error
	InsertTwoChainTimeoutCert(tc *types.TwoChainTimeoutCertificate) error
	InsertOrderedCert(oc types.WrappedLedgerInfo) error

	HighestOrderedCert() types.WrappedLedgerInfo
	SyncInfo() types.SyncInfo
	VoteBackPressure() bool

	CheckPayload(block types.Block) (bool, []basics.Address)
	WaitForPayload(ctx context.Context, block types.Block) error
	CheckDeniedInlineTransactions(block types.Block, denied map[string]struct{}) error
	AddBatch(b types.Batch) bool

	// AddCerts fetches whatever blocks si certifies that are missing and
	// inserts its certificates.
	AddCerts(ctx context.Context, si types.SyncInfo, r blockstore.Retriever) error
	PendingBlocks() *blockstore.PendingBlocks

	GetBlock(id crypto.Digest) (types.Block, bool)
	GetBlocks(id crypto.Digest, n uint64) ([]types.Block, types.BlockRetrievalStatus)
}

// SafetyRules signs on behalf of this validator. Each call may refuse with
// a *safety.Error.
type SafetyRules interface {
	ConstructAndSignVoteTwoChain(proposal safety.VoteProposal, tc *types.TwoChainTimeoutCertificate) (types.Vote, error)
	ConstructAndSignOrderVote(qc types.QuorumCert) (types.OrderVote, error)
	SignProposal(bd types.BlockData) (crypto.Signature, error)
	SignTimeoutWithQC(timeout types.TwoChainTimeout, tc *types.TwoChainTimeoutCertificate) (crypto.Signature, error)
	SignFastShare(epoch basics.Epoch, round basics.Round, id crypto.Digest) (crypto.Signature, error)
	ConsensusState() (safety.ConsensusState, error)
}

// NetworkSender sends consensus messages. Sends do not wait for delivery;
// only block retrieval returns a reply.
type NetworkSender interface {
	Author() basics.Address
	BroadcastProposal(msg types.ProposalMsg)
	BroadcastOptProposal(msg types.OptProposalMsg)
	BroadcastVote(msg types.VoteMsg)
	SendVote(msg types.VoteMsg, to []basics.Address)
	BroadcastRoundTimeout(msg types.RoundTimeoutMsg)
	BroadcastOrderVote(msg types.OrderVoteMsg)
	BroadcastSyncInfo(si types.SyncInfo)
	SendSyncInfo(si types.SyncInfo, to basics.Address)
	BroadcastFastShare(msg types.FastShareMsg)
	RequestBlocks(ctx context.Context, req types.BlockRetrievalRequest, from basics.Address) (types.BlockRetrievalResponse, error)
}

// PersistentLivenessStorage keeps what a restarting validator needs to
// rejoin its round. SaveVote returns only once the vote is durable.
type PersistentLivenessStorage interface {
	SaveVote(v types.Vote) error
	SaveHighestTimeoutCert(tc *types.TwoChainTimeoutCertificate) error
	RecoveryData() (storage.RecoveryData, error)
}

// QuorumStore receives batch acknowledgements and proofs of store. The
// RoundManager only forwards them.
type QuorumStore interface {
	ProcessSignedBatchInfo(author basics.Address, msg types.SignedBatchInfoMsg) error
	ProcessProofOfStore(author basics.Address, msg types.ProofOfStoreMsg) error
}
