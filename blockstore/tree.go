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
	"fmt"

	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
)

type linkedBlock struct {
	ExecutedBlock
	children map[crypto.Digest]struct{}
}

// blockTree is the in-memory tree of executed blocks rooted at the last
// committed block. It is guarded by the BlockStore lock.
type blockTree struct {
	blocks map[crypto.Digest]*linkedBlock
	// qcs is keyed by certified block id.
	qcs    map[crypto.Digest]types.QuorumCert
	rootID crypto.Digest

	highestQC      types.QuorumCert
	highestOrdered types.WrappedLedgerInfo
	highestTC      *types.TwoChainTimeoutCertificate
}

func makeBlockTree(root ExecutedBlock, rootQC types.QuorumCert) *blockTree {
	t := &blockTree{
		blocks:         make(map[crypto.Digest]*linkedBlock),
		qcs:            make(map[crypto.Digest]types.QuorumCert),
		rootID:         root.Block.ID,
		highestQC:      rootQC,
		highestOrdered: rootQC.IntoWrappedLedgerInfo(),
	}
	t.blocks[root.Block.ID] = &linkedBlock{ExecutedBlock: root, children: make(map[crypto.Digest]struct{})}
	t.qcs[root.Block.ID] = rootQC
	return t
}

func (t *blockTree) root() *linkedBlock {
	return t.blocks[t.rootID]
}

// link adds eb under its parent, which must be present.
func (t *blockTree) link(eb ExecutedBlock) (*linkedBlock, error) {
	if lb, ok := t.blocks[eb.Block.ID]; ok {
		return lb, nil
	}
	parent, ok := t.blocks[eb.Block.ParentID()]
	if !ok {
		return nil, fmt.Errorf("%w: parent of %v", errMissingBlock, eb.Block)
	}
	lb := &linkedBlock{ExecutedBlock: eb, children: make(map[crypto.Digest]struct{})}
	t.blocks[eb.Block.ID] = lb
	parent.children[eb.Block.ID] = struct{}{}
	return lb, nil
}

// pathFromRoot returns the blocks after the root up to and including id.
func (t *blockTree) pathFromRoot(id crypto.Digest) ([]ExecutedBlock, error) {
	var path []ExecutedBlock
	for id != t.rootID {
		lb, ok := t.blocks[id]
		if !ok {
			return nil, fmt.Errorf("%w: %v is not a descendant of the root", errMissingBlock, id)
		}
		path = append(path, lb.ExecutedBlock)
		id = lb.Block.ParentID()
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// prune makes newRoot the root and drops every block outside its subtree.
// It returns the dropped ids.
func (t *blockTree) prune(newRoot crypto.Digest) []crypto.Digest {
	keep := map[crypto.Digest]struct{}{newRoot: {}}
	queue := []crypto.Digest{newRoot}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for c := range t.blocks[id].children {
			keep[c] = struct{}{}
			queue = append(queue, c)
		}
	}
	var removed []crypto.Digest
	for id := range t.blocks {
		if _, ok := keep[id]; !ok {
			removed = append(removed, id)
			delete(t.blocks, id)
			delete(t.qcs, id)
		}
	}
	t.rootID = newRoot
	return removed
}
