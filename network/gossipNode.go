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

// Package network moves consensus messages between validators. Peers are
// identified by validator address; the transport itself is pluggable
// behind GossipNode.
package network

import (
	"context"

	"github.com/algorand/go-twochain/data/basics"
	"github.com/algorand/go-twochain/protocol"
)

// Tag is a short string (2 bytes) marking a type of message
type Tag = protocol.Tag

// GossipNode represents a node in the gossip network
type GossipNode interface {
	Address() basics.Address

	// Broadcast sends data to every peer, this node included, except the
	// one given. A zero except excludes nobody.
	Broadcast(ctx context.Context, tag Tag, data []byte, except basics.Address) error

	// Unicast sends data to a single peer.
	Unicast(ctx context.Context, to basics.Address, tag Tag, data []byte) error

	// Request sends data to a peer and waits for the reply its handler
	// returns with the Respond policy.
	Request(ctx context.Context, to basics.Address, tag Tag, data []byte) ([]byte, error)

	// RegisterHandlers adds to the set of given message handlers.
	RegisterHandlers(dispatch []TaggedMessageHandler)

	// ClearHandlers deregisters all the existing message handlers.
	ClearHandlers()

	// Start threads.
	Start() error

	// Stop threads.
	Stop()
}

// IncomingMessage represents a message arriving from some peer
type IncomingMessage struct {
	Sender basics.Address
	Tag    Tag
	Data   []byte

	// Received is time.Time.UnixNano()
	Received int64
}

// OutgoingMessage represents a message we want to send.
type OutgoingMessage struct {
	Action  ForwardingPolicy
	Tag     Tag
	Payload []byte
}

// ForwardingPolicy is an enum indicating to whom we should send a message
//
//msgp:ignore ForwardingPolicy
type ForwardingPolicy int

const (
	// Ignore - discard (don't forward)
	Ignore ForwardingPolicy = iota

	// Respond - reply to the sender
	Respond
)

// MessageHandler takes an IncomingMessage, processes it, and returns what (if anything)
// to send back in response.
type MessageHandler interface {
	Handle(message IncomingMessage) OutgoingMessage
}

// HandlerFunc represents an implementation of the MessageHandler interface
type HandlerFunc func(message IncomingMessage) OutgoingMessage

// Handle implements MessageHandler.Handle, calling the handler with the IncomingMessage and returning the OutgoingMessage
func (f HandlerFunc) Handle(message IncomingMessage) OutgoingMessage {
	return f(message)
}

// TaggedMessageHandler receives one type of message
type TaggedMessageHandler struct {
	Tag
	MessageHandler
}
