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

package timers

import (
	"time"

	"github.com/algorand/go-deadlock"
)

type frozenTimeout struct {
	at time.Duration
	ch chan time.Time
}

// Frozen is a Clock whose time only moves when Advance is called. Zero
// resets the same Frozen, so a test holding it keeps control of every
// deadline armed through it.
type Frozen struct {
	mu      deadlock.Mutex
	zero    time.Time
	elapsed time.Duration
	pending []frozenTimeout
}

// MakeFrozenClock creates a Frozen clock zeroed now.
func MakeFrozenClock() *Frozen {
	return &Frozen{zero: time.Now()}
}

// Zero drops the armed deadlines and restarts elapsed time at zero.
func (m *Frozen) Zero() Clock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zero = time.Now()
	m.elapsed = 0
	m.pending = nil
	return m
}

// TimeoutAt implements Clock.
func (m *Frozen) TimeoutAt(delta time.Duration) <-chan time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan time.Time, 1)
	if delta <= m.elapsed {
		ch <- m.zero.Add(delta)
		return ch
	}
	m.pending = append(m.pending, frozenTimeout{at: delta, ch: ch})
	return ch
}

// GetTimeout implements Clock.
func (m *Frozen) GetTimeout(delta time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.zero.Add(delta)
}

// Since implements Clock.
func (m *Frozen) Since() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.elapsed
}

// Advance moves the clock forward by d and fires every deadline it passes.
func (m *Frozen) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elapsed += d
	kept := m.pending[:0]
	for _, p := range m.pending {
		if p.at <= m.elapsed {
			p.ch <- m.zero.Add(p.at)
			continue
		}
		kept = append(kept, p)
	}
	m.pending = kept
}
