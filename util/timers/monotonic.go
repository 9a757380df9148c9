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
)

// Monotonic arms deadlines on the runtime's monotonic clock.
type Monotonic struct {
	zero     time.Time
	timeouts map[time.Duration]<-chan time.Time
}

// MakeMonotonicClock creates a Monotonic clock with the given zero point.
func MakeMonotonicClock(zero time.Time) *Monotonic {
	return &Monotonic{zero: zero}
}

// Zero implements Clock.
func (m *Monotonic) Zero() Clock {
	return MakeMonotonicClock(time.Now())
}

// TimeoutAt implements Clock. Repeated calls with the same delta share a
// channel.
func (m *Monotonic) TimeoutAt(delta time.Duration) <-chan time.Time {
	if ch, ok := m.timeouts[delta]; ok {
		return ch
	}
	if m.timeouts == nil {
		m.timeouts = make(map[time.Duration]<-chan time.Time)
	}

	var ch <-chan time.Time
	if left := time.Until(m.zero.Add(delta)); left > 0 {
		ch = time.After(left)
	} else {
		fired := make(chan time.Time, 1)
		fired <- m.zero.Add(delta)
		ch = fired
	}
	m.timeouts[delta] = ch
	return ch
}

// GetTimeout implements Clock.
func (m *Monotonic) GetTimeout(delta time.Duration) time.Time {
	return m.zero.Add(delta)
}

// Since implements Clock.
func (m *Monotonic) Since() time.Duration {
	return time.Since(m.zero)
}

func (m *Monotonic) String() string {
	return m.zero.String()
}
