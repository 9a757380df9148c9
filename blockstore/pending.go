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
	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
)

// PendingBlocks remembers proposals received but not necessarily inserted,
// so a round's proposal can be found by round when explaining a timeout.
type PendingBlocks struct {
	mu      deadlock.Mutex
	byID    map[crypto.Digest]types.Block
	byRound map[basics.Round]types.Block
}

// MakePendingBlocks returns an empty cache.
func MakePendingBlocks() *PendingBlocks {
	return &PendingBlocks{
		byID:    make(map[crypto.Digest]types.Block),
		byRound: make(map[basics.Round]types.Block),
	}
}

// Insert records block. The first block seen for a round is the one
// returned by GetByRound.
func (p *PendingBlocks) Insert(block types.Block) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID[block.ID] = block
	if _, ok := p.byRound[block.Round()]; !ok {
		p.byRound[block.Round()] = block
	}
}

// Get looks a block up by id.
func (p *PendingBlocks) Get(id crypto.Digest) (types.Block, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.byID[id]
	return b, ok
}

// GetByRound looks a block up by round.
func (p *PendingBlocks) GetByRound(round basics.Round) (types.Block, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.byRound[round]
	return b, ok
}

// GC forgets blocks at or below round.
func (p *PendingBlocks) GC(round basics.Round) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, b := range p.byID {
		if b.Round() <= round {
			delete(p.byID, id)
		}
	}
	for r := range p.byRound {
		if r <= round {
			delete(p.byRound, r)
		}
	}
}

// Len is the number of cached blocks.
func (p *PendingBlocks) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byID)
}
