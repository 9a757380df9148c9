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

package execpool

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/algorand/go-twochain/test/partitiontest"
)

func TestBacklogRunsTasks(t *testing.T) {
	partitiontest.PartitionTest(t)

	bl := MakeBacklog(nil, 4, t)
	defer bl.Shutdown()
	require.Equal(t, t, bl.GetOwner())

	out := make(chan interface{}, 10)
	square := func(arg interface{}) interface{} {
		n := arg.(int)
		return n * n
	}
	for i := 1; i <= 10; i++ {
		require.NoError(t, bl.Enqueue(context.Background(), square, i, LowPriority, out))
	}

	var got []int
	for i := 0; i < 10; i++ {
		select {
		case r := <-out:
			got = append(got, r.(int))
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d results arrived", len(got))
		}
	}
	sort.Ints(got)
	require.Equal(t, []int{1, 4, 9, 16, 25, 36, 49, 64, 81, 100}, got)
}

func TestBacklogEnqueueCancelled(t *testing.T) {
	partitiontest.PartitionTest(t)

	p := MakePoolWithParallelism(nil, 1)
	defer p.Shutdown()
	bl := MakeBacklog(p, 1, nil)
	defer bl.Shutdown()

	release := make(chan struct{})
	block := func(arg interface{}) interface{} {
		<-release
		return nil
	}
	// one task on the worker, one in the pool handoff, one in the buffer
	require.NoError(t, bl.Enqueue(context.Background(), block, nil, HighPriority, nil))
	require.NoError(t, bl.Enqueue(context.Background(), block, nil, HighPriority, nil))
	require.Eventually(t, func() bool {
		return bl.Pending() == 0
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, bl.Enqueue(context.Background(), block, nil, HighPriority, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := bl.Enqueue(ctx, block, nil, HighPriority, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, bl.TryEnqueue(block, nil, LowPriority, nil), ErrBacklogFull)
	close(release)
}

func TestPoolPriority(t *testing.T) {
	partitiontest.PartitionTest(t)

	p := MakePoolWithParallelism(nil, 2)
	require.Equal(t, 2, p.GetParallelism())
	out := make(chan interface{}, 1)
	require.NoError(t, p.Enqueue(context.Background(), func(arg interface{}) interface{} { return arg }, "x", HighPriority, out))
	require.Equal(t, "x", <-out)
	p.Shutdown()

	err := p.Enqueue(context.Background(), func(interface{}) interface{} { return nil }, nil, LowPriority, nil)
	require.Error(t, err)
}

func TestBacklogTryEnqueueAfterShutdown(t *testing.T) {
	partitiontest.PartitionTest(t)

	bl := MakeBacklog(nil, 2, nil)
	noop := func(interface{}) interface{} { return nil }
	require.NoError(t, bl.TryEnqueue(noop, nil, LowPriority, nil))
	bl.Shutdown()
	require.ErrorIs(t, bl.TryEnqueue(noop, nil, LowPriority, nil), context.Canceled)
	require.Error(t, bl.Enqueue(context.Background(), noop, nil, LowPriority, nil))
}
