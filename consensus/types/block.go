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

	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
	"github.com/algorand/go-twochain/protocol"
)

// BlockType distinguishes how a block was created.
type BlockType uint8

const (
	// GenesisBlock is the root of an epoch.
	GenesisBlock BlockType = iota
	// NilBlock is voted on when a round times out without a proposal.
	NilBlock
	// ProposalBlock is created and signed by the round's leader.
	ProposalBlock
	// ProposalExtBlock is a proposal that also carries validator transactions.
	ProposalExtBlock
	// OptimisticBlock is built from an optimistic proposal once its parent is certified.
	OptimisticBlock
)

func (t BlockType) String() string {
	switch t {
	case GenesisBlock:
		return "genesis"
	case NilBlock:
		return "nil"
	case ProposalBlock:
		return "proposal"
	case ProposalExtBlock:
		return "proposal-ext"
	case OptimisticBlock:
		return "optimistic"
	default:
		return fmt.Sprintf("blocktype(%d)", uint8(t))
	}
}

// FailedAuthor is a leader whose round produced no certified block.
type FailedAuthor struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Round  basics.Round   `codec:"r"`
	Author basics.Address `codec:"a"`
}

// BlockData is the hashed content of a block.
type BlockData struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Epoch basics.Epoch `codec:"e"`
	Round basics.Round `codec:"r"`
	// Timestamp in microseconds.
	Timestamp     uint64                      `codec:"ts"`
	Type          BlockType                   `codec:"bt"`
	Author        basics.Address              `codec:"a"`
	Payload       Payload                     `codec:"pl"`
	ValidatorTxns []ValidatorTransaction      `codec:"vtx"`
	FailedAuthors []FailedAuthor              `codec:"fa"`
	QuorumCert    QuorumCert                  `codec:"qc"`
	TimeoutCert   *TwoChainTimeoutCertificate `codec:"tc"`
}

// ToBeHashed implements the crypto.Hashable interface
func (bd BlockData) ToBeHashed() (protocol.HashID, []byte) {
	return protocol.BlockData, protocol.EncodeReflect(bd)
}

// Hash is the block id.
func (bd BlockData) Hash() crypto.Digest {
	return crypto.HashObj(bd)
}

// HasAuthor is true for block types created by a leader.
func (bd BlockData) HasAuthor() bool {
	return bd.Type == ProposalBlock || bd.Type == ProposalExtBlock || bd.Type == OptimisticBlock
}

// ParentID is the id of the certified parent.
func (bd BlockData) ParentID() crypto.Digest {
	return bd.QuorumCert.CertifiedBlock().ID
}

// MakeGenesisBlockData starts epoch.
func MakeGenesisBlockData(epoch basics.Epoch, timestamp uint64) BlockData {
	return BlockData{Epoch: epoch, Timestamp: timestamp, Type: GenesisBlock}
}

// MakeProposalData builds the data of a leader proposal. Carrying validator
// transactions makes it an extended proposal.
func MakeProposalData(payload Payload, author basics.Address, failedAuthors []FailedAuthor, round basics.Round, timestamp uint64, qc QuorumCert, vtxns []ValidatorTransaction, tc *TwoChainTimeoutCertificate) BlockData {
	bt := ProposalBlock
	if len(vtxns) > 0 {
		bt = ProposalExtBlock
	}
	return BlockData{
		Epoch:         qc.Epoch(),
		Round:         round,
		Timestamp:     timestamp,
		Type:          bt,
		Author:        author,
		Payload:       payload,
		ValidatorTxns: vtxns,
		FailedAuthors: failedAuthors,
		QuorumCert:    qc,
		TimeoutCert:   tc,
	}
}

// MakeNilBlockData builds the block voted on after a timeout. It reuses the
// parent timestamp so every validator derives the same id.
func MakeNilBlockData(round basics.Round, qc QuorumCert, failedAuthors []FailedAuthor) BlockData {
	return BlockData{
		Epoch:         qc.Epoch(),
		Round:         round,
		Timestamp:     qc.CertifiedBlock().Timestamp,
		Type:          NilBlock,
		FailedAuthors: failedAuthors,
		QuorumCert:    qc,
	}
}

// MakeOptimisticBlockData completes an optimistic proposal with the
// certificate of its parent.
func MakeOptimisticBlockData(opt OptBlockData, parentQC QuorumCert) BlockData {
	return BlockData{
		Epoch:         opt.Epoch,
		Round:         opt.Round,
		Timestamp:     opt.Timestamp,
		Type:          OptimisticBlock,
		Author:        opt.Author,
		Payload:       opt.Payload,
		ValidatorTxns: opt.ValidatorTxns,
		QuorumCert:    parentQC,
	}
}

type blockIDSigningRepr struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	ID crypto.Digest `codec:"id"`
}

// ToBeHashed implements the crypto.Hashable interface
func (r blockIDSigningRepr) ToBeHashed() (protocol.HashID, []byte) {
	return protocol.BlockSig, r.ID[:]
}

// BlockSigningFormat is what a leader signs to propose the block with id.
func BlockSigningFormat(id crypto.Digest) crypto.Hashable {
	return blockIDSigningRepr{ID: id}
}

// Block is block data with its id and, for proposals, the author's signature.
type Block struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	ID        crypto.Digest    `codec:"id"`
	Data      BlockData        `codec:"d"`
	Signature crypto.Signature `codec:"sig"`
}

// MakeBlock wraps unsigned data.
func MakeBlock(data BlockData) Block {
	return Block{ID: data.Hash(), Data: data}
}

// MakeSignedBlock wraps data with the author's signature over its id.
func MakeSignedBlock(data BlockData, sig crypto.Signature) Block {
	return Block{ID: data.Hash(), Data: data, Signature: sig}
}

// MakeGenesisBlock returns the root block of epoch.
func MakeGenesisBlock(epoch basics.Epoch, timestamp uint64) Block {
	return MakeBlock(MakeGenesisBlockData(epoch, timestamp))
}

// Round of the block.
func (b Block) Round() basics.Round { return b.Data.Round }

// Epoch of the block.
func (b Block) Epoch() basics.Epoch { return b.Data.Epoch }

// Timestamp in microseconds.
func (b Block) Timestamp() uint64 { return b.Data.Timestamp }

// ParentID is the id of the certified parent.
func (b Block) ParentID() crypto.Digest { return b.Data.ParentID() }

// QuorumCert certifies the parent.
func (b Block) QuorumCert() QuorumCert { return b.Data.QuorumCert }

// Payload of the block.
func (b Block) Payload() Payload { return b.Data.Payload }

// Author returns the block author, if the block type has one.
func (b Block) Author() (basics.Address, bool) {
	return b.Data.Author, b.Data.HasAuthor()
}

// IsGenesisBlock reports the genesis type.
func (b Block) IsGenesisBlock() bool { return b.Data.Type == GenesisBlock }

// IsNilBlock reports the nil type.
func (b Block) IsNilBlock() bool { return b.Data.Type == NilBlock }

// IsOptBlock reports a block built from an optimistic proposal.
func (b Block) IsOptBlock() bool { return b.Data.Type == OptimisticBlock }

// IsProposal reports a leader-signed proposal, plain or extended.
func (b Block) IsProposal() bool {
	return b.Data.Type == ProposalBlock || b.Data.Type == ProposalExtBlock
}

// GenBlockInfo summarizes the block with its execution result.
func (b Block) GenBlockInfo(executedStateID crypto.Digest, version uint64) BlockInfo {
	return BlockInfo{
		Epoch:           b.Epoch(),
		Round:           b.Round(),
		ID:              b.ID,
		ExecutedStateID: executedStateID,
		Version:         version,
		Timestamp:       b.Timestamp(),
	}
}

// VerifyWellFormed checks the structural rules of a block without the
// validator set.
func (b Block) VerifyWellFormed() error {
	if b.ID != b.Data.Hash() {
		return errors.New("block id does not match block data")
	}
	if b.IsGenesisBlock() {
		if b.Round() != 0 {
			return fmt.Errorf("genesis block at round %d", b.Round())
		}
		return nil
	}
	if b.Round() == 0 {
		return errors.New("only the genesis block may have round 0")
	}

	parent := b.QuorumCert().CertifiedBlock()
	if b.Round() <= parent.Round {
		return fmt.Errorf("block round %d must be above parent certified round %d", b.Round(), parent.Round)
	}
	if b.Epoch() != parent.Epoch {
		return fmt.Errorf("block epoch %d differs from parent epoch %d", b.Epoch(), parent.Epoch)
	}

	switch b.Data.Type {
	case NilBlock:
		if !b.Data.Author.IsZero() || !b.Signature.Blank() {
			return errors.New("nil block carries an author or signature")
		}
		if b.Timestamp() != parent.Timestamp {
			return fmt.Errorf("nil block timestamp %d differs from parent %d", b.Timestamp(), parent.Timestamp)
		}
		if b.Data.TimeoutCert != nil {
			return errors.New("nil block carries a timeout certificate")
		}
	case ProposalBlock, ProposalExtBlock, OptimisticBlock:
		if b.Data.Author.IsZero() {
			return fmt.Errorf("%v block without author", b.Data.Type)
		}
		if b.IsProposal() && b.Signature.Blank() {
			return errors.New("proposal without signature")
		}
		if b.Timestamp() <= parent.Timestamp {
			return fmt.Errorf("block timestamp %d not after parent %d", b.Timestamp(), parent.Timestamp)
		}
	default:
		return fmt.Errorf("unexpected block type %v", b.Data.Type)
	}

	if b.Data.Type == ProposalBlock && len(b.Data.ValidatorTxns) > 0 {
		return errors.New("plain proposal carries validator transactions")
	}
	if b.Data.Type != ProposalExtBlock && b.Data.Type != OptimisticBlock && len(b.Data.ValidatorTxns) > 0 {
		return fmt.Errorf("%v block carries validator transactions", b.Data.Type)
	}

	if tc := b.Data.TimeoutCert; tc != nil {
		if tc.Epoch() != b.Epoch() {
			return fmt.Errorf("timeout certificate epoch %d differs from block epoch %d", tc.Epoch(), b.Epoch())
		}
		if tc.Round()+1 != b.Round() {
			return fmt.Errorf("timeout certificate round %d does not precede block round %d", tc.Round(), b.Round())
		}
		if parent.Round < tc.HighestHQCRound() {
			return fmt.Errorf("parent round %d below timeout certificate hqc round %d", parent.Round, tc.HighestHQCRound())
		}
	} else if b.IsProposal() && b.Round() != parent.Round+1 {
		return fmt.Errorf("proposal round %d skips past parent round %d without a timeout certificate", b.Round(), parent.Round)
	}

	// a nil block also names the leader of its own round
	limit := b.Round()
	if b.IsNilBlock() {
		limit++
	}
	prev := parent.Round
	for _, fa := range b.Data.FailedAuthors {
		if fa.Round <= prev || fa.Round >= limit {
			return fmt.Errorf("failed author round %d outside (%d, %d) or out of order", fa.Round, parent.Round, limit)
		}
		prev = fa.Round
	}
	return nil
}

// Verify checks the block is well formed and its signatures and
// certificates verify against v.
func (b Block) Verify(v *ValidatorVerifier) error {
	if err := b.VerifyWellFormed(); err != nil {
		return err
	}
	if b.IsGenesisBlock() {
		return nil
	}
	if b.IsProposal() {
		if err := v.Verify(b.Data.Author, BlockSigningFormat(b.ID), b.Signature); err != nil {
			return fmt.Errorf("proposal signature: %w", err)
		}
	} else if b.IsOptBlock() && !v.Contains(b.Data.Author) {
		return fmt.Errorf("%w: %v", ErrUnknownAuthor, b.Data.Author)
	}
	if err := b.QuorumCert().Verify(v); err != nil {
		return err
	}
	if b.Data.TimeoutCert != nil {
		if err := b.Data.TimeoutCert.Verify(v); err != nil {
			return err
		}
	}
	return nil
}

func (b Block) String() string {
	author := "none"
	if a, ok := b.Author(); ok {
		author = a.ShortString()
	}
	return fmt.Sprintf("[%v id %s epoch %d round %d parent %s author %s]", b.Data.Type, b.ID.ShortString(), b.Epoch(), b.Round(), b.ParentID().ShortString(), author)
}

// OptBlockData is a proposal body sent before its parent is certified.
// It becomes a block once the parent's quorum cert is known locally.
type OptBlockData struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Epoch basics.Epoch `codec:"e"`
	Round basics.Round `codec:"r"`
	// Timestamp in microseconds.
	Timestamp     uint64                 `codec:"ts"`
	Author        basics.Address         `codec:"a"`
	Payload       Payload                `codec:"pl"`
	ValidatorTxns []ValidatorTransaction `codec:"vtx"`
	Parent        BlockInfo              `codec:"p"`
	GrandparentQC QuorumCert             `codec:"gqc"`
}

// ToBeHashed implements the crypto.Hashable interface
func (o OptBlockData) ToBeHashed() (protocol.HashID, []byte) {
	return protocol.OptBlockData, protocol.EncodeReflect(o)
}

// VerifyWellFormed checks the parent and grandparent rounds line up.
func (o OptBlockData) VerifyWellFormed() error {
	if o.Author.IsZero() {
		return errors.New("optimistic proposal without author")
	}
	if o.Parent.Epoch != o.Epoch || o.GrandparentQC.Epoch() != o.Epoch {
		return fmt.Errorf("optimistic proposal epoch %d differs from its ancestors", o.Epoch)
	}
	if o.Parent.Round+1 != o.Round {
		return fmt.Errorf("optimistic proposal round %d does not follow parent round %d", o.Round, o.Parent.Round)
	}
	if o.GrandparentQC.Round()+1 != o.Parent.Round {
		return fmt.Errorf("grandparent qc round %d does not precede parent round %d", o.GrandparentQC.Round(), o.Parent.Round)
	}
	if o.Timestamp <= o.Parent.Timestamp {
		return fmt.Errorf("optimistic proposal timestamp %d not after parent %d", o.Timestamp, o.Parent.Timestamp)
	}
	return nil
}
