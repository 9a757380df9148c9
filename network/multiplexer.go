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
	"fmt"
	"sync/atomic"
)

type handlerTable map[Tag]MessageHandler

// Multiplexer routes incoming messages to the handler registered for their
// Tag. The table is copied on every change, so dispatch never locks.
type Multiplexer struct {
	table atomic.Pointer[handlerTable]
}

// MakeMultiplexer creates a Multiplexer with no handlers.
func MakeMultiplexer() *Multiplexer {
	m := &Multiplexer{}
	m.table.Store(&handlerTable{})
	return m
}

func (m *Multiplexer) handlers() handlerTable {
	return *m.table.Load()
}

// Dispatch passes msg to its handler. ok is false when no handler is
// registered for msg.Tag.
func (m *Multiplexer) Dispatch(msg IncomingMessage) (out OutgoingMessage, ok bool) {
	h, ok := m.handlers()[msg.Tag]
	if !ok {
		return OutgoingMessage{}, false
	}
	return h.Handle(msg), true
}

// Handle implements MessageHandler.
func (m *Multiplexer) Handle(msg IncomingMessage) OutgoingMessage {
	out, _ := m.Dispatch(msg)
	return out
}

// Handles reports whether a handler is registered for tag.
func (m *Multiplexer) Handles(tag Tag) bool {
	_, ok := m.handlers()[tag]
	return ok
}

// RegisterHandlers adds handlers. Registering a second handler for a tag
// panics.
func (m *Multiplexer) RegisterHandlers(dispatch []TaggedMessageHandler) {
	old := m.handlers()
	next := make(handlerTable, len(old)+len(dispatch))
	for tag, h := range old {
		next[tag] = h
	}
	for _, d := range dispatch {
		if _, dup := next[d.Tag]; dup {
			panic(fmt.Sprintf("handler for tag %v already registered", d.Tag))
		}
		next[d.Tag] = d.MessageHandler
	}
	m.table.Store(&next)
}

// ClearHandlers removes every handler except those for the keep tags.
func (m *Multiplexer) ClearHandlers(keep ...Tag) {
	next := make(handlerTable, len(keep))
	old := m.handlers()
	for _, tag := range keep {
		if h, ok := old[tag]; ok {
			next[tag] = h
		}
	}
	m.table.Store(&next)
}
