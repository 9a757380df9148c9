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
	"context"
	"fmt"

	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
)

// payloadManager holds the batches referenced by proofs of store and wakes
// waiters when new batches arrive.
type payloadManager struct {
	mu      deadlock.Mutex
	batches map[crypto.Digest]types.Batch
	// arrived is closed and replaced whenever a batch is added.
	arrived chan struct{}
}

func makePayloadManager() *payloadManager {
	return &payloadManager{
		batches: make(map[crypto.Digest]types.Batch),
		arrived: make(chan struct{}),
	}
}

func (pm *payloadManager) add(b types.Batch) bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if _, ok := pm.batches[b.Info.Digest]; ok {
		return false
	}
	pm.batches[b.Info.Digest] = b
	close(pm.arrived)
	pm.arrived = make(chan struct{})
	return true
}

// missing returns the distinct authors of proofs whose batch is absent,
// along with a channel that is closed on the next arrival.
func (pm *payloadManager) missing(p types.Payload) ([]basics.Address, <-chan struct{}) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	var out []basics.Address
	seen := make(map[basics.Address]struct{})
	for _, proof := range p.Proofs {
		if _, ok := pm.batches[proof.Info.Digest]; ok {
			continue
		}
		if _, dup := seen[proof.Info.Author]; !dup {
			seen[proof.Info.Author] = struct{}{}
			out = append(out, proof.Info.Author)
		}
	}
	return out, pm.arrived
}

// transactions resolves the full transaction list of p. Missing batches
// are skipped.
func (pm *payloadManager) transactions(p types.Payload) []types.Transaction {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	out := append([]types.Transaction(nil), p.Inline...)
	for _, proof := range p.Proofs {
		if b, ok := pm.batches[proof.Info.Digest]; ok {
			out = append(out, b.Txns...)
		}
	}
	return out
}

// gc drops batches that expired at or before ts.
func (pm *payloadManager) gc(ts uint64) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	for d, b := range pm.batches {
		if b.Info.Expiration <= ts {
			delete(pm.batches, d)
		}
	}
}

// CheckPayload reports whether every batch referenced by block is local.
// When it is not, the authors of the missing batches are returned.
func (s *BlockStore) CheckPayload(block types.Block) (bool, []basics.Address) {
	missing, _ := s.payloads.missing(block.Payload())
	return len(missing) == 0, missing
}

// WaitForPayload blocks until block's payload is available or ctx ends.
func (s *BlockStore) WaitForPayload(ctx context.Context, block types.Block) error {
	for {
		missing, arrived := s.payloads.missing(block.Payload())
		if len(missing) == 0 {
			return nil
		}
		select {
		case <-arrived:
		case <-ctx.Done():
			return fmt.Errorf("payload of %v from %d authors: %w", block, len(missing), ctx.Err())
		}
	}
}

// AddBatch makes a batch available to payloads. It reports whether the
// batch was new.
func (s *BlockStore) AddBatch(b types.Batch) bool {
	return s.payloads.add(b)
}

// Transactions resolves every transaction of block's payload that is
// available locally.
func (s *BlockStore) Transactions(block types.Block) []types.Transaction {
	return s.payloads.transactions(block.Payload())
}

// CheckDeniedInlineTransactions rejects a block carrying inline
// transactions from a denied sender.
func (s *BlockStore) CheckDeniedInlineTransactions(block types.Block, denied map[string]struct{}) error {
	if len(denied) == 0 {
		return nil
	}
	for _, txn := range block.Payload().Inline {
		if _, ok := denied[txn.Sender.String()]; ok {
			return fmt.Errorf("%v carries an inline transaction from denied sender %v", block, txn.Sender)
		}
	}
	return nil
}
