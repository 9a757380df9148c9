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

// Package node assembles a validator: block store, liveness storage,
// safety rules, round manager and the network pipeline around them.
package node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-twochain/blockstore"
	"github.com/algorand/go-twochain/config"
	"github.com/algorand/go-twochain/consensus"
	"github.com/algorand/go-twochain/consensus/liveness"
	"github.com/algorand/go-twochain/consensus/safety"
	"github.com/algorand/go-twochain/consensus/storage"
	"github.com/algorand/go-twochain/consensus/types"
	"github.com/algorand/go-twochain/crypto"
	"github.com/algorand/go-twochain/data/basics"
	"github.com/algorand/go-twochain/logging"
	"github.com/algorand/go-twochain/network"
	"github.com/algorand/go-twochain/util/kvstore"
	"github.com/algorand/go-twochain/util/metrics"
	"github.com/algorand/go-twochain/util/timers"
)

const (
	blocksDirName     = "blocks"
	consensusFilename = "consensus.sqlite"
	mempoolLimit      = 50000
)

var errAlreadyStarted = errors.New("node already started")

// memSeq keeps in-memory databases of nodes in one process apart.
var memSeq atomic.Uint64

var (
	committedRoundGauge = metrics.MetricName{Name: "node_committed_round", Description: "Round of the last committed block"}
	committedTxns       = metrics.MetricName{Name: "node_committed_txns", Description: "Transactions in committed blocks"}
)

var (
	_ network.Inbox           = (*consensus.RoundManager)(nil)
	_ consensus.NetworkSender = (*network.Sender)(nil)
	_ consensus.BlockStore    = (*blockstore.BlockStore)(nil)
	_ consensus.SafetyRules   = (*safety.SafetyRules)(nil)
	_ liveness.PayloadClient  = (*Mempool)(nil)
)

// Status is a snapshot of what the node has agreed on so far.
type Status struct {
	Committed        types.BlockInfo
	HighestOrdered   basics.Round
	HighestCertified basics.Round
	HighestTimeout   basics.Round
	PendingTxns      int
}

// Node is one validator.
type Node struct {
	mu      deadlock.Mutex
	started bool

	cfg     config.Local
	rootDir string
	address basics.Address

	net      network.GossipNode
	receiver *network.Receiver
	rm       *consensus.RoundManager
	blocks   *blockstore.BlockStore
	kv       kvstore.KVStore
	store    *storage.Store
	mempool  *Mempool

	sink metrics.Sink
	log  logging.Logger
}

// MakeNode assembles a validator signing with secrets over net. Stores
// live under rootDir; an empty rootDir keeps them in memory.
func MakeNode(rootDir string, secrets *crypto.SignatureSecrets, verifier *types.ValidatorVerifier, genesis types.Block, net network.GossipNode, cfg config.Local, sink metrics.Sink, log logging.Logger) (*Node, error) {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	address := basics.AddressFromPublicKey(secrets.PublicKey)
	if address != net.Address() {
		return nil, fmt.Errorf("network address %v does not match signing key %v", net.Address(), address)
	}
	if !verifier.Contains(address) {
		cfg.SyncOnly = true
		log.Infof("%v is not a validator of epoch %d, running sync only", address, genesis.Epoch())
	}
	n := &Node{
		cfg:     cfg,
		rootDir: rootDir,
		address: address,
		net:     net,
		mempool: MakeMempool(mempoolLimit),
		sink:    sink,
		log:     log.With("node", address.ShortString()),
	}

	var err error
	dbName := fmt.Sprintf("consensus-%s-%d.sqlite", address.ShortString(), memSeq.Add(1))
	inMemory := rootDir == ""
	if !inMemory {
		if err = os.MkdirAll(rootDir, 0700); err != nil {
			return nil, err
		}
		n.kv, err = kvstore.NewKVStore("pebbledb", filepath.Join(rootDir, blocksDirName), false)
		if err != nil {
			return nil, fmt.Errorf("opening block database: %w", err)
		}
		dbName = filepath.Join(rootDir, consensusFilename)
	}

	executor := blockstore.ImmediateExecutor{OnCommit: n.onCommit}
	n.blocks, err = blockstore.Open(n.kv, genesis, executor, cfg, n.log)
	if err != nil {
		n.closeStores()
		return nil, err
	}
	n.store, err = storage.Open(dbName, inMemory, n.log)
	if err != nil {
		n.closeStores()
		return nil, err
	}

	epoch := genesis.Epoch()
	sr, err := safety.MakeSafetyRules(secrets, epoch, verifier, n.store, n.log)
	if err != nil {
		n.closeStores()
		return nil, err
	}
	election, err := liveness.MakeProposerElection(cfg.ProposerElectionType, epoch, verifier, cfg.ProposerContiguousRounds)
	if err != nil {
		n.closeStores()
		return nil, err
	}
	interval := liveness.ExponentialTimeInterval{
		Base:         cfg.RoundInitialTimeout,
		ExponentBase: cfg.RoundTimeoutBackoffBase,
		MaxExponent:  cfg.RoundTimeoutBackoffMaxExponent,
	}
	n.rm, err = consensus.MakeRoundManager(consensus.Parameters{
		Epoch:      epoch,
		Verifier:   verifier,
		Blocks:     n.blocks,
		Safety:     sr,
		Network:    network.MakeSender(net, n.log),
		Storage:    n.store,
		Election:   election,
		Generator:  liveness.MakeProposalGenerator(address, n.blocks, n.mempool, nil, cfg, time.Now),
		RoundState: liveness.MakeRoundState(interval, timers.MakeMonotonicClock(time.Now()), n.log),
		Config:     cfg,
		Metrics:    sink,
		Log:        n.log,
	})
	if err != nil {
		n.closeStores()
		return nil, err
	}
	n.receiver = network.MakeReceiver(address, epoch, verifier, n.rm, cfg, sink, n.log)
	return n, nil
}

// Address of the validator.
func (n *Node) Address() basics.Address {
	return n.address
}

// Start recovers consensus state and starts taking messages.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return errAlreadyStarted
	}
	if err := n.rm.Start(); err != nil {
		return fmt.Errorf("starting consensus: %w", err)
	}
	n.receiver.Start()
	n.net.RegisterHandlers(n.receiver.Handlers())
	if err := n.net.Start(); err != nil {
		n.receiver.Stop()
		n.rm.Shutdown()
		return fmt.Errorf("starting network: %w", err)
	}
	n.started = true
	n.log.Infof("started validator %v", n.address)
	return nil
}

// Stop shuts the node down and closes its stores. The node cannot be
// restarted; build a new one over the same directory instead.
func (n *Node) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		n.net.Stop()
		n.net.ClearHandlers()
		n.receiver.Stop()
		n.started = false
	}
	n.rm.Shutdown()
	n.closeStores()
	n.log.Infof("stopped validator %v", n.address)
}

func (n *Node) closeStores() {
	if n.store != nil {
		n.store.Close()
		n.store = nil
	}
	if n.blocks != nil {
		if err := n.blocks.Close(); err != nil {
			n.log.Warnf("closing block store: %v", err)
		}
		n.blocks = nil
	} else if n.kv != nil {
		if err := n.kv.Close(); err != nil {
			n.log.Warnf("closing block database: %v", err)
		}
	}
	n.kv = nil
}

// SubmitTransaction queues t for a future proposal of this node.
func (n *Node) SubmitTransaction(t types.Transaction) error {
	if !n.mempool.Submit(t) {
		return fmt.Errorf("transaction %d from %v rejected by the pool", t.Nonce, t.Sender)
	}
	return nil
}

// Status reports the node's certificates and committed block.
func (n *Node) Status() Status {
	si := n.blocks.SyncInfo()
	return Status{
		Committed:        n.blocks.Root(),
		HighestOrdered:   si.HighestOrderedRound(),
		HighestCertified: si.HighestCertifiedRound(),
		HighestTimeout:   si.HighestTimeoutRound(),
		PendingTxns:      n.mempool.Len(),
	}
}

func (n *Node) onCommit(blocks []blockstore.ExecutedBlock, proof types.LedgerInfoWithSignatures) {
	if len(blocks) == 0 {
		return
	}
	var txns uint64
	for _, eb := range blocks {
		txns += uint64(len(eb.Block.Payload().Inline))
	}
	last := blocks[len(blocks)-1].Executed
	n.sink.Set(committedRoundGauge, float64(last.Round))
	n.sink.Add(committedTxns, txns, nil)
	n.mempool.Committed(blocks)
	n.log.WithFields(logging.Fields{"round": last.Round, "blocks": len(blocks), "txns": txns}).Infof("committed %v", last)
}
