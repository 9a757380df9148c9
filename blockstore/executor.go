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

package blockstore

import (
	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/protocol"
)

// ExecutedBlock is a block together with the state it produced.
type ExecutedBlock struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Block    types.Block     `codec:"b"`
	Executed types.BlockInfo `codec:"x"`
}

// Executor turns blocks into state and learns about commits. Execution must
// be deterministic: every validator derives the same state from the same
// chain.
type Executor interface {
	Execute(parent types.BlockInfo, block types.Block) (stateID crypto.Digest, version uint64, err error)
	// Commit is called with the newly committed blocks, oldest first.
	Commit(blocks []ExecutedBlock, proof types.LedgerInfoWithSignatures) error
}

type stateTransition struct {
	_struct struct{} `codec:",omitempty,omitemptyarray"`

	Parent crypto.Digest `codec:"p"`
	Block  crypto.Digest `codec:"b"`
}

func (s stateTransition) ToBeHashed() (protocol.HashID, []byte) {
	return protocol.ExecutedState, protocol.EncodeReflect(s)
}

// ImmediateExecutor chains state ids by hashing and counts transactions as
// versions. OnCommit, if set, sees every committed block.
type ImmediateExecutor struct {
	OnCommit func(blocks []ExecutedBlock, proof types.LedgerInfoWithSignatures)
}

// Execute implements Executor.
func (e ImmediateExecutor) Execute(parent types.BlockInfo, block types.Block) (crypto.Digest, uint64, error) {
	state := crypto.HashObj(stateTransition{Parent: parent.ExecutedStateID, Block: block.ID})
	return state, parent.Version + block.Payload().NumTxns() + uint64(len(block.Data.ValidatorTxns)), nil
}

// Commit implements Executor.
func (e ImmediateExecutor) Commit(blocks []ExecutedBlock, proof types.LedgerInfoWithSignatures) error {
	if e.OnCommit != nil {
		e.OnCommit(blocks, proof)
	}
	return nil
}
