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
	"errors"
	"fmt"
	"sort"

	"github.com/golang/snappy"

	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/protocol"
	"github.com/algorand/go-twochain/util/kvstore"
)

var (
	blockPrefix    = []byte("b/")
	qcPrefix       = []byte("q/")
	rootKey        = []byte("r")
	timeoutKey     = []byte("t")
	orderedKey     = []byte("o")
	errCorruptRoot = errors.New("block store root is missing its block or certificate")
)

func blockKey(id crypto.Digest) []byte {
	return append(append([]byte(nil), blockPrefix...), id[:]...)
}

func qcKey(id crypto.Digest) []byte {
	return append(append([]byte(nil), qcPrefix...), id[:]...)
}

// blockDB persists the tree. With a nil kv every write is dropped.
type blockDB struct {
	kv kvstore.KVStore
}

func (db *blockDB) close() error {
	if db.kv == nil {
		return nil
	}
	return db.kv.Close()
}

func encodeBlock(eb ExecutedBlock) []byte {
	return snappy.Encode(nil, protocol.EncodeReflect(eb))
}

func decodeBlock(data []byte) (ExecutedBlock, error) {
	var eb ExecutedBlock
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return eb, err
	}
	err = protocol.DecodeReflect(raw, &eb)
	return eb, err
}

func (db *blockDB) putBlock(eb ExecutedBlock) error {
	if db.kv == nil {
		return nil
	}
	if err := db.kv.Set(blockKey(eb.Block.ID), encodeBlock(eb)); err != nil {
		return fmt.Errorf("persisting block %v: %w", eb.Block, err)
	}
	return nil
}

func (db *blockDB) putQuorumCert(qc types.QuorumCert) error {
	if db.kv == nil {
		return nil
	}
	if err := db.kv.Set(qcKey(qc.CertifiedBlock().ID), protocol.EncodeReflect(qc)); err != nil {
		return fmt.Errorf("persisting %v: %w", qc, err)
	}
	return nil
}

func (db *blockDB) putOrderedCert(oc types.WrappedLedgerInfo) error {
	if db.kv == nil {
		return nil
	}
	return db.kv.Set(orderedKey, protocol.EncodeReflect(oc))
}

func (db *blockDB) putTimeoutCert(tc *types.TwoChainTimeoutCertificate) error {
	if db.kv == nil {
		return nil
	}
	return db.kv.Set(timeoutKey, protocol.EncodeReflect(tc))
}

func (db *blockDB) writeRoot(root ExecutedBlock, rootQC types.QuorumCert) error {
	if db.kv == nil {
		return nil
	}
	b := db.kv.NewBatch()
	if err := b.Set(blockKey(root.Block.ID), encodeBlock(root)); err != nil {
		b.Cancel()
		return err
	}
	if err := b.Set(qcKey(root.Block.ID), protocol.EncodeReflect(rootQC)); err != nil {
		b.Cancel()
		return err
	}
	if err := b.Set(rootKey, root.Block.ID[:]); err != nil {
		b.Cancel()
		return err
	}
	return b.Commit()
}

func (db *blockDB) pruneTo(root crypto.Digest, removed []crypto.Digest) error {
	if db.kv == nil {
		return nil
	}
	b := db.kv.NewBatch()
	for _, id := range removed {
		if err := b.Delete(blockKey(id)); err != nil {
			b.Cancel()
			return err
		}
		if err := b.Delete(qcKey(id)); err != nil {
			b.Cancel()
			return err
		}
	}
	if err := b.Set(rootKey, root[:]); err != nil {
		b.Cancel()
		return err
	}
	if err := b.Commit(); err != nil {
		return fmt.Errorf("pruning %d blocks: %w", len(removed), err)
	}
	return nil
}

func (db *blockDB) get(key []byte, obj interface{}) (bool, error) {
	data, err := db.kv.Get(key)
	if errors.Is(err, kvstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, protocol.DecodeReflect(data, obj)
}

func (db *blockDB) scanBlocks() ([]ExecutedBlock, error) {
	it := db.kv.NewIterator(blockPrefix, kvstore.PrefixEnd(blockPrefix))
	defer it.Close()
	var out []ExecutedBlock
	for ; it.Valid(); it.Next() {
		v, err := it.Value()
		if err != nil {
			return nil, err
		}
		eb, err := decodeBlock(v)
		if err != nil {
			return nil, fmt.Errorf("decoding block %x: %w", it.Key(), err)
		}
		out = append(out, eb)
	}
	return out, nil
}

// recover rebuilds the tree, or returns nil when nothing was persisted.
// Blocks that no longer connect to the root are deleted.
func (db *blockDB) recover() (*blockTree, error) {
	if db.kv == nil {
		return nil, nil
	}
	rootBytes, err := db.kv.Get(rootKey)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rootID crypto.Digest
	copy(rootID[:], rootBytes)

	blocks, err := db.scanBlocks()
	if err != nil {
		return nil, err
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Block.Round() < blocks[j].Block.Round() })

	var tree *blockTree
	for _, eb := range blocks {
		if eb.Block.ID != rootID {
			continue
		}
		var rootQC types.QuorumCert
		ok, err := db.get(qcKey(rootID), &rootQC)
		if err != nil {
			return nil, err
		}
		if ok {
			tree = makeBlockTree(eb, rootQC)
		}
		break
	}
	if tree == nil {
		return nil, errCorruptRoot
	}

	var orphans []crypto.Digest
	for _, eb := range blocks {
		if eb.Block.ID == rootID {
			continue
		}
		if eb.Block.Round() <= tree.root().Block.Round() {
			orphans = append(orphans, eb.Block.ID)
			continue
		}
		if _, err := tree.link(eb); err != nil {
			orphans = append(orphans, eb.Block.ID)
			continue
		}
		var qc types.QuorumCert
		ok, err := db.get(qcKey(eb.Block.ID), &qc)
		if err != nil {
			return nil, err
		}
		if ok {
			tree.qcs[eb.Block.ID] = qc
			if qc.Round() > tree.highestQC.Round() {
				tree.highestQC = qc
			}
		}
	}
	if len(orphans) > 0 {
		if err := db.pruneTo(rootID, orphans); err != nil {
			return nil, err
		}
	}

	var ordered types.WrappedLedgerInfo
	if ok, err := db.get(orderedKey, &ordered); err != nil {
		return nil, err
	} else if ok && ordered.Round() > tree.highestOrdered.Round() {
		tree.highestOrdered = ordered
	}
	var tc types.TwoChainTimeoutCertificate
	if ok, err := db.get(timeoutKey, &tc); err != nil {
		return nil, err
	} else if ok {
		tree.highestTC = &tc
	}
	return tree, nil
}
