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

// Package blockstore keeps the tree of executed blocks between the last
// committed block and the highest certified ones, along with the highest
// certificates, and persists them to a key-value store.
package blockstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-twochain/config"
	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
	"github.com/algorand/go-twochain/logging"
	"github.com/algorand/go-twochain/util/kvstore"
)

var (
	errMissingBlock  = errors.New("block not found")
	errStaleBlock    = errors.New("block is not above the committed root")
	errCertMismatch  = errors.New("certificate does not match the stored block")
	errEmptyResponse = errors.New("retriever returned no blocks")
)

// Retriever fetches blocks from peers, newest first, walking back from id.
type Retriever interface {
	RetrieveBlocks(ctx context.Context, id crypto.Digest, n uint64) ([]types.Block, error)
}

// BlockStore is safe for concurrent use.
type BlockStore struct {
	mu       deadlock.RWMutex
	tree     *blockTree
	db       *blockDB
	executor Executor
	payloads *payloadManager
	pending  *PendingBlocks

	backPressureLimit basics.Round
	log               logging.Logger
}

// Open recovers the store from db, or initializes it with genesis when db
// holds no root. A nil db keeps everything in memory.
func Open(db kvstore.KVStore, genesis types.Block, executor Executor, cfg config.Local, log logging.Logger) (*BlockStore, error) {
	s := &BlockStore{
		db:                &blockDB{kv: db},
		executor:          executor,
		payloads:          makePayloadManager(),
		pending:           MakePendingBlocks(),
		backPressureLimit: basics.Round(cfg.VoteBackPressureLimit),
		log:               log,
	}

	tree, err := s.db.recover()
	if err != nil {
		return nil, err
	}
	if tree == nil {
		root := ExecutedBlock{Block: genesis, Executed: genesis.GenBlockInfo(crypto.Digest{}, 0)}
		rootQC := types.MakeGenesisQuorumCert(root.Executed)
		tree = makeBlockTree(root, rootQC)
		if err := s.db.writeRoot(root, rootQC); err != nil {
			return nil, err
		}
		log.Infof("initialized block store at genesis %v", root.Executed)
	} else {
		log.Infof("recovered block store: root %v, %d blocks, highest qc %d", tree.root().Executed, len(tree.blocks), tree.highestQC.Round())
	}
	s.tree = tree
	return s, nil
}

// Close releases the underlying database.
func (s *BlockStore) Close() error {
	return s.db.close()
}

// Root is the executed info of the last committed block.
func (s *BlockStore) Root() types.BlockInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.root().Executed
}

// PendingBlocks holds proposals seen but not yet inserted, so retrieval can
// be served locally.
func (s *BlockStore) PendingBlocks() *PendingBlocks {
	return s.pending
}

// InsertBlock executes block on top of its parent and adds it to the tree.
// Inserting a known block returns its existing execution result.
func (s *BlockStore) InsertBlock(block types.Block) (types.BlockInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertBlockLocked(block)
}

func (s *BlockStore) insertBlockLocked(block types.Block) (types.BlockInfo, error) {
	if lb, ok := s.tree.blocks[block.ID]; ok {
		return lb.Executed, nil
	}
	root := s.tree.root().Executed
	if block.Round() <= root.Round {
		return types.BlockInfo{}, fmt.Errorf("%w: %v, root %v", errStaleBlock, block, root)
	}
	parent, ok := s.tree.blocks[block.ParentID()]
	if !ok {
		return types.BlockInfo{}, fmt.Errorf("%w: parent of %v", errMissingBlock, block)
	}
	stateID, version, err := s.executor.Execute(parent.Executed, block)
	if err != nil {
		return types.BlockInfo{}, fmt.Errorf("executing %v: %w", block, err)
	}
	eb := ExecutedBlock{Block: block, Executed: block.GenBlockInfo(stateID, version)}
	if err := s.db.putBlock(eb); err != nil {
		return types.BlockInfo{}, err
	}
	if _, err := s.tree.link(eb); err != nil {
		return types.BlockInfo{}, err
	}
	if _, ok := s.tree.qcs[parent.Block.ID]; !ok {
		if err := s.insertQuorumCertLocked(block.QuorumCert()); err != nil {
			s.log.Warnf("block %v: parent certificate not stored: %v", block, err)
		}
	}
	return eb.Executed, nil
}

// InsertQuorumCert stores qc for its certified block, which must already be
// in the tree. A qc that commits a block above the root moves the root.
func (s *BlockStore) InsertQuorumCert(qc types.QuorumCert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertQuorumCertLocked(qc)
}

func (s *BlockStore) insertQuorumCertLocked(qc types.QuorumCert) error {
	certified := qc.CertifiedBlock()
	lb, ok := s.tree.blocks[certified.ID]
	if !ok {
		if certified.Round <= s.tree.root().Executed.Round {
			return nil
		}
		return fmt.Errorf("%w: certified by %v", errMissingBlock, qc)
	}
	// The execution result is not compared since votes may certify a block
	// before its execution completes.
	if !lb.Executed.MatchOrdered(certified) {
		return fmt.Errorf("%w: %v vs %v", errCertMismatch, certified, lb.Executed)
	}
	if _, ok := s.tree.qcs[certified.ID]; !ok {
		if err := s.db.putQuorumCert(qc); err != nil {
			return err
		}
		s.tree.qcs[certified.ID] = qc
	}
	if qc.Round() > s.tree.highestQC.Round() {
		s.tree.highestQC = qc
	}

	commit := qc.CommitInfo()
	if commit.IsEmpty() || commit.Round <= s.tree.root().Executed.Round {
		return nil
	}
	if commit.Round > s.tree.highestOrdered.Round() {
		s.tree.highestOrdered = qc.IntoWrappedLedgerInfo()
		if err := s.db.putOrderedCert(s.tree.highestOrdered); err != nil {
			return err
		}
	}
	return s.commitLocked(commit.ID, qc.SignedLedgerInfo)
}

// InsertOrderedCert records an ordered certificate and commits its block
// when the block is present.
func (s *BlockStore) InsertOrderedCert(oc types.WrappedLedgerInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if oc.Round() <= s.tree.highestOrdered.Round() {
		return nil
	}
	if err := s.db.putOrderedCert(oc); err != nil {
		return err
	}
	s.tree.highestOrdered = oc
	id := oc.CommitInfo().ID
	if _, ok := s.tree.blocks[id]; !ok {
		s.log.Infof("ordered %v ahead of local blocks", oc.CommitInfo())
		return nil
	}
	return s.commitLocked(id, oc.SignedLedgerInfo)
}

// InsertTwoChainTimeoutCert keeps tc if it is the highest seen.
func (s *BlockStore) InsertTwoChainTimeoutCert(tc *types.TwoChainTimeoutCertificate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tc == nil || (s.tree.highestTC != nil && tc.Round() <= s.tree.highestTC.Round()) {
		return nil
	}
	if err := s.db.putTimeoutCert(tc); err != nil {
		return err
	}
	s.tree.highestTC = tc
	return nil
}

func (s *BlockStore) commitLocked(id crypto.Digest, proof types.LedgerInfoWithSignatures) error {
	if id == s.tree.rootID {
		return nil
	}
	path, err := s.tree.pathFromRoot(id)
	if err != nil {
		s.log.Warnf("cannot commit %v: %v", id, err)
		return nil
	}
	if err := s.executor.Commit(path, proof); err != nil {
		return fmt.Errorf("committing %d blocks up to %v: %w", len(path), id, err)
	}
	newRoot := path[len(path)-1]
	removed := s.tree.prune(id)
	if err := s.db.pruneTo(newRoot.Block.ID, removed); err != nil {
		return err
	}
	s.payloads.gc(newRoot.Block.Timestamp())
	s.pending.GC(newRoot.Block.Round())
	s.log.Infof("committed %d blocks up to %v, pruned %d", len(path), newRoot.Executed, len(removed))
	return nil
}

// HighestQuorumCert is the highest certified block's certificate.
func (s *BlockStore) HighestQuorumCert() types.QuorumCert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.highestQC
}

// HighestTwoChainTimeoutCert is the highest timeout certificate, or nil.
func (s *BlockStore) HighestTwoChainTimeoutCert() *types.TwoChainTimeoutCertificate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.highestTC
}

// HighestOrderedCert is the highest ordered certificate.
func (s *BlockStore) HighestOrderedCert() types.WrappedLedgerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.highestOrdered
}

// SyncInfo bundles the highest certificates.
func (s *BlockStore) SyncInfo() types.SyncInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ordered := s.tree.highestOrdered
	return types.MakeSyncInfo(s.tree.highestQC, &ordered, s.tree.highestTC)
}

// VoteBackPressure is true while ordering runs more than the configured
// number of rounds ahead of commit. A zero limit disables it.
func (s *BlockStore) VoteBackPressure() bool {
	if s.backPressureLimit == 0 {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.highestOrdered.Round() > s.tree.root().Executed.Round+s.backPressureLimit
}

// GetBlock returns the block with the given id if it is in the tree.
func (s *BlockStore) GetBlock(id crypto.Digest) (types.Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lb, ok := s.tree.blocks[id]
	if !ok {
		return types.Block{}, false
	}
	return lb.Block, true
}

// GetBlockInfo returns the executed info of the block with the given id.
func (s *BlockStore) GetBlockInfo(id crypto.Digest) (types.BlockInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lb, ok := s.tree.blocks[id]
	if !ok {
		return types.BlockInfo{}, false
	}
	return lb.Executed, true
}

// GetBlocks serves a retrieval request: up to n blocks walking back from id.
// Proposals still waiting on a payload or on back pressure are served from
// the pending cache.
func (s *BlockStore) GetBlocks(id crypto.Digest, n uint64) ([]types.Block, types.BlockRetrievalStatus) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Block
	for uint64(len(out)) < n {
		var block types.Block
		if lb, ok := s.tree.blocks[id]; ok {
			block = lb.Block
		} else if pb, ok := s.pending.Get(id); ok {
			block = pb
		} else {
			break
		}
		out = append(out, block)
		if block.IsGenesisBlock() {
			break
		}
		id = block.ParentID()
	}
	switch {
	case len(out) == 0 && n > 0:
		return nil, types.RetrievalIDNotFound
	case uint64(len(out)) < n:
		return out, types.RetrievalNotEnoughBlocks
	default:
		return out, types.RetrievalSucceeded
	}
}

// PendingPayloads lists the payloads of uncommitted ancestors of id,
// including id itself.
func (s *BlockStore) PendingPayloads(id crypto.Digest) []types.Payload {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Payload
	for id != s.tree.rootID {
		lb, ok := s.tree.blocks[id]
		if !ok {
			return out
		}
		if !lb.Block.Payload().IsEmpty() {
			out = append(out, lb.Block.Payload())
		}
		id = lb.Block.ParentID()
	}
	return out
}

// AddCerts brings the store up to the certificates in si, fetching missing
// blocks through r. The certificates must already be verified.
func (s *BlockStore) AddCerts(ctx context.Context, si types.SyncInfo, r Retriever) error {
	if err := s.fetchQuorumCert(ctx, si.HighestQuorumCert, r); err != nil {
		return fmt.Errorf("syncing to %v: %w", si.HighestQuorumCert, err)
	}
	if si.HighestOrderedCert != nil {
		if err := s.InsertOrderedCert(*si.HighestOrderedCert); err != nil {
			return err
		}
	}
	return s.InsertTwoChainTimeoutCert(si.HighestTimeoutCert)
}

func (s *BlockStore) needFetch(qc types.QuorumCert) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if qc.Round() <= s.tree.root().Executed.Round {
		return false
	}
	_, ok := s.tree.blocks[qc.CertifiedBlock().ID]
	return !ok
}

// fetchQuorumCert retrieves the chain of blocks up to the one qc certifies
// and inserts it oldest first.
func (s *BlockStore) fetchQuorumCert(ctx context.Context, qc types.QuorumCert, r Retriever) error {
	var missing []types.Block
	next := qc
	for s.needFetch(next) {
		id := next.CertifiedBlock().ID
		var block types.Block
		if b, ok := s.pending.Get(id); ok {
			block = b
		} else {
			blocks, err := r.RetrieveBlocks(ctx, id, 1)
			if err != nil {
				return err
			}
			if len(blocks) == 0 || blocks[0].ID != id {
				return fmt.Errorf("%w: %v", errEmptyResponse, id)
			}
			block = blocks[0]
		}
		missing = append(missing, block)
		next = block.QuorumCert()
	}
	for i := len(missing) - 1; i >= 0; i-- {
		if err := s.InsertQuorumCert(missing[i].QuorumCert()); err != nil {
			return err
		}
		if _, err := s.InsertBlock(missing[i]); err != nil {
			return err
		}
	}
	return s.InsertQuorumCert(qc)
}
