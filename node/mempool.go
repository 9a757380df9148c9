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

package node

import (
	"context"

	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-twochain/blockstore"
	"github.com/algorand/go-twochain/consensus/liveness"
	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/data/basics"
)

type txnKey struct {
	sender basics.Address
	nonce  uint64
}

func keyOf(t types.Transaction) txnKey {
	return txnKey{sender: t.Sender, nonce: t.Nonce}
}

// Mempool holds submitted transactions until a committed block carries
// them. Proposals take transactions in submission order.
type Mempool struct {
	mu      deadlock.Mutex
	order   []txnKey
	pending map[txnKey]types.Transaction
	limit   int
}

// MakeMempool creates a pool of at most limit transactions. A zero limit
// is unbounded.
func MakeMempool(limit int) *Mempool {
	return &Mempool{pending: make(map[txnKey]types.Transaction), limit: limit}
}

// Submit adds t. It reports false when the pool is full or already holds
// a transaction with the same sender and nonce.
func (m *Mempool) Submit(t types.Transaction) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := keyOf(t)
	if _, ok := m.pending[k]; ok {
		return false
	}
	if m.limit > 0 && len(m.pending) >= m.limit {
		return false
	}
	m.pending[k] = t
	m.order = append(m.order, k)
	return true
}

// Len is the number of pending transactions.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Pull implements liveness.PayloadClient. Transactions already in an
// uncommitted ancestor are skipped.
func (m *Mempool) Pull(ctx context.Context, params liveness.PayloadPullParams) (types.Payload, error) {
	exclude := make(map[txnKey]struct{})
	for _, p := range params.Exclude {
		for _, t := range p.Inline {
			exclude[keyOf(t)] = struct{}{}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	var out types.Payload
	var size uint64
	for _, k := range m.order {
		if err := ctx.Err(); err != nil {
			return types.Payload{}, err
		}
		if uint64(len(out.Inline)) >= params.MaxTxns {
			break
		}
		if _, ok := exclude[k]; ok {
			continue
		}
		t, ok := m.pending[k]
		if !ok {
			continue
		}
		if size+t.Size() > params.MaxBytes {
			break
		}
		size += t.Size()
		out.Inline = append(out.Inline, t)
	}
	return out, nil
}

// Committed drops the transactions of blocks that were committed.
func (m *Mempool) Committed(blocks []blockstore.ExecutedBlock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for _, eb := range blocks {
		for _, t := range eb.Block.Payload().Inline {
			k := keyOf(t)
			if _, ok := m.pending[k]; ok {
				delete(m.pending, k)
				removed++
			}
		}
	}
	if removed == 0 {
		return
	}
	order := m.order[:0]
	for _, k := range m.order {
		if _, ok := m.pending[k]; ok {
			order = append(order, k)
		}
	}
	m.order = order
}
