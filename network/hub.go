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

package network

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/algorand/go-deadlock"

	"github.com/algorand/go-twochain/data/basics"
	"github.com/algorand/go-twochain/logging"
	"github.com/algorand/go-twochain/util/metrics"
)

var (
	errUnknownPeer = errors.New("unknown peer")
	errIsolated    = errors.New("peer is isolated")
	errNoResponse  = errors.New("peer did not respond")
)

// Hub is an in-process transport connecting the nodes that join it.
// Delivery is asynchronous and drops messages when a node's inbound queue
// is full.
type Hub struct {
	mu       deadlock.RWMutex
	nodes    map[basics.Address]*HubNode
	isolated map[basics.Address]bool

	metrics metrics.Sink
	log     logging.Logger
}

// MakeHub creates an empty hub.
func MakeHub(sink metrics.Sink, log logging.Logger) *Hub {
	return &Hub{
		nodes:    make(map[basics.Address]*HubNode),
		isolated: make(map[basics.Address]bool),
		metrics:  sink,
		log:      log,
	}
}

// Join adds a node for addr with an inbound queue of queueSize messages.
func (h *Hub) Join(addr basics.Address, queueSize int) *HubNode {
	n := &HubNode{
		hub:     h,
		addr:    addr,
		mux:     MakeMultiplexer(),
		inbound: make(chan IncomingMessage, queueSize),
		log:     h.log.With("node", addr.ShortString()),
	}
	h.mu.Lock()
	h.nodes[addr] = n
	h.mu.Unlock()
	return n
}

// Isolate cuts addr off from every other node, or reconnects it.
func (h *Hub) Isolate(addr basics.Address, isolated bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.isolated[addr] = isolated
}

func (h *Hub) peer(from, to basics.Address) (*HubNode, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n, ok := h.nodes[to]
	if !ok {
		return nil, fmt.Errorf("%w: %v", errUnknownPeer, to)
	}
	if from != to && (h.isolated[from] || h.isolated[to]) {
		return nil, errIsolated
	}
	return n, nil
}

func (h *Hub) addresses() []basics.Address {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]basics.Address, 0, len(h.nodes))
	for addr := range h.nodes {
		out = append(out, addr)
	}
	return out
}

// HubNode is one node's view of a Hub.
type HubNode struct {
	hub     *Hub
	addr    basics.Address
	mux     *Multiplexer
	inbound chan IncomingMessage

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	log    logging.Logger
}

// Address implements GossipNode.
func (n *HubNode) Address() basics.Address {
	return n.addr
}

// Start runs the delivery thread.
func (n *HubNode) Start() error {
	n.ctx, n.cancel = context.WithCancel(context.Background())
	n.done = make(chan struct{})
	go n.deliver()
	return nil
}

// Stop stops the delivery thread; queued messages are discarded.
func (n *HubNode) Stop() {
	if n.cancel == nil {
		return
	}
	n.cancel()
	<-n.done
}

func (n *HubNode) deliver() {
	defer close(n.done)
	for {
		select {
		case msg := <-n.inbound:
			n.hub.metrics.Add(networkReceivedBytes, uint64(len(msg.Data)), tagLabels(msg.Tag))
			if _, ok := n.mux.Dispatch(msg); !ok {
				n.hub.metrics.Inc(networkMessagesUnhandled, tagLabels(msg.Tag))
			}
		case <-n.ctx.Done():
			return
		}
	}
}

func (n *HubNode) enqueue(to *HubNode, tag Tag, data []byte) {
	msg := IncomingMessage{Sender: n.addr, Tag: tag, Data: data, Received: time.Now().UnixNano()}
	select {
	case to.inbound <- msg:
		n.hub.metrics.Add(networkSentBytes, uint64(len(data)), tagLabels(tag))
		n.hub.metrics.Inc(networkMessagesSent, tagLabels(tag))
	default:
		n.hub.metrics.Inc(networkMessagesDropped, tagLabels(tag))
		n.log.Debugf("dropped %s message to %v: inbound queue full", tag, to.addr)
	}
}

// Broadcast implements GossipNode.
func (n *HubNode) Broadcast(ctx context.Context, tag Tag, data []byte, except basics.Address) error {
	for _, addr := range n.hub.addresses() {
		if addr == except && !except.IsZero() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		to, err := n.hub.peer(n.addr, addr)
		if err != nil {
			continue
		}
		n.enqueue(to, tag, data)
	}
	return nil
}

// Unicast implements GossipNode.
func (n *HubNode) Unicast(ctx context.Context, to basics.Address, tag Tag, data []byte) error {
	peer, err := n.hub.peer(n.addr, to)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	n.enqueue(peer, tag, data)
	return nil
}

// Request runs the peer's handler on the caller's goroutine.
func (n *HubNode) Request(ctx context.Context, to basics.Address, tag Tag, data []byte) ([]byte, error) {
	peer, err := n.hub.peer(n.addr, to)
	if err != nil {
		return nil, err
	}
	type reply struct {
		out OutgoingMessage
	}
	replies := make(chan reply, 1)
	go func() {
		replies <- reply{out: peer.mux.Handle(IncomingMessage{Sender: n.addr, Tag: tag, Data: data, Received: time.Now().UnixNano()})}
	}()
	select {
	case r := <-replies:
		if r.out.Action != Respond {
			return nil, fmt.Errorf("%w: %s request to %v", errNoResponse, tag, to)
		}
		n.hub.metrics.Add(networkReceivedBytes, uint64(len(r.out.Payload)), tagLabels(r.out.Tag))
		return r.out.Payload, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RegisterHandlers implements GossipNode.
func (n *HubNode) RegisterHandlers(dispatch []TaggedMessageHandler) {
	n.mux.RegisterHandlers(dispatch)
}

// ClearHandlers implements GossipNode.
func (n *HubNode) ClearHandlers() {
	n.mux.ClearHandlers()
}
