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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-twochain/test/partitiontest"
)

func polled(ch <-chan time.Time) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestMonotonicDelta(t *testing.T) {
	partitiontest.PartitionTest(t)

	var m Monotonic
	d := time.Millisecond * 100

	c := m.Zero()
	ch := c.TimeoutAt(d)
	require.False(t, polled(ch), "channel fired ~100ms early")

	<-time.After(d * 2)
	require.True(t, polled(ch), "channel failed to fire at 100ms")

	ch = c.TimeoutAt(d / 2)
	require.True(t, polled(ch), "channel failed to fire at 50ms")
}

func TestMonotonicZeroAndNegativeDelta(t *testing.T) {
	partitiontest.PartitionTest(t)

	var m Monotonic
	c := m.Zero()
	require.True(t, polled(c.TimeoutAt(0)))
	require.True(t, polled(c.TimeoutAt(-time.Second)))
}

func TestMonotonicZeroTwice(t *testing.T) {
	partitiontest.PartitionTest(t)

	var m Monotonic
	d := time.Millisecond * 100

	c := m.Zero()
	ch := c.TimeoutAt(d)
	<-time.After(d * 2)
	require.True(t, polled(ch))

	c = c.Zero()
	ch = c.TimeoutAt(d)
	require.False(t, polled(ch), "channel fired early after call to Zero")
	<-time.After(d * 2)
	require.True(t, polled(ch))
}

func TestMonotonicSharesChannelPerDelta(t *testing.T) {
	partitiontest.PartitionTest(t)

	c := MakeMonotonicClock(time.Now().Add(-time.Hour))
	require.GreaterOrEqual(t, c.Since(), time.Hour)
	ch := c.TimeoutAt(time.Minute)
	require.Equal(t, ch, c.TimeoutAt(time.Minute))
	require.True(t, polled(ch))
}

func TestFrozenFiresOnAdvance(t *testing.T) {
	partitiontest.PartitionTest(t)

	c := MakeFrozenClock()
	short := c.TimeoutAt(time.Second)
	long := c.TimeoutAt(3 * time.Second)
	require.False(t, polled(short))

	c.Advance(2 * time.Second)
	require.Equal(t, 2*time.Second, c.Since())
	require.True(t, polled(short))
	require.False(t, polled(long))

	// already passed
	require.True(t, polled(c.TimeoutAt(time.Second)))

	c.Advance(time.Second)
	require.True(t, polled(long))
}

func TestFrozenZeroDropsDeadlines(t *testing.T) {
	partitiontest.PartitionTest(t)

	c := MakeFrozenClock()
	stale := c.TimeoutAt(time.Second)
	c.Advance(500 * time.Millisecond)
	require.Same(t, c, c.Zero())
	require.Equal(t, time.Duration(0), c.Since())

	fresh := c.TimeoutAt(time.Second)
	c.Advance(time.Second)
	require.False(t, polled(stale))
	require.True(t, polled(fresh))
	require.True(t, c.GetTimeout(time.Second).After(time.Now().Add(-time.Minute)))
}
