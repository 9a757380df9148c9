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
	"errors"
	"sync"
)

// ErrBacklogFull is returned by TryEnqueue when every buffer slot is taken.
var ErrBacklogFull = errors.New("backlog full")

// BacklogPool is an ExecutionPool with a bounded submission buffer in front
// of the workers. Enqueue waits for buffer space; TryEnqueue never waits.
type BacklogPool interface {
	ExecutionPool
	TryEnqueue(t ExecFunc, arg interface{}, priority Priority, out chan interface{}) error
	// Pending is the number of buffered tasks not yet handed to a worker.
	Pending() int
}

type backlogTask struct {
	enqueuedTask
	priority Priority
}

type backlog struct {
	pool   ExecutionPool
	owner  interface{}
	buffer chan backlogTask

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// MakeBacklog creates a backlog of size entries over execPool. A nil
// execPool makes the backlog own a pool with one worker per CPU, and a zero
// size uses the pool parallelism.
func MakeBacklog(execPool ExecutionPool, size int, owner interface{}) BacklogPool {
	if size < 0 {
		return nil
	}
	b := &backlog{pool: execPool, owner: owner}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	if b.pool == nil {
		b.pool = MakePool(b)
	}
	if size == 0 {
		size = b.pool.GetParallelism()
	}
	b.buffer = make(chan backlogTask, size)

	b.wg.Add(1)
	go b.feed()
	return b
}

func (b *backlog) GetParallelism() int {
	return b.pool.GetParallelism()
}

func (b *backlog) GetOwner() interface{} {
	return b.owner
}

func (b *backlog) Pending() int {
	return len(b.buffer)
}

func (b *backlog) Enqueue(enqueueCtx context.Context, t ExecFunc, arg interface{}, priority Priority, out chan interface{}) error {
	if err := b.ctx.Err(); err != nil {
		return err
	}
	task := backlogTask{enqueuedTask{execFunc: t, arg: arg, out: out}, priority}
	select {
	case b.buffer <- task:
		return nil
	case <-enqueueCtx.Done():
		return enqueueCtx.Err()
	case <-b.ctx.Done():
		return b.ctx.Err()
	}
}

func (b *backlog) TryEnqueue(t ExecFunc, arg interface{}, priority Priority, out chan interface{}) error {
	if err := b.ctx.Err(); err != nil {
		return err
	}
	select {
	case b.buffer <- backlogTask{enqueuedTask{execFunc: t, arg: arg, out: out}, priority}:
		return nil
	default:
		return ErrBacklogFull
	}
}

// Shutdown stops feeding the pool and, when the backlog created its pool,
// stops the pool too. Buffered tasks are discarded.
func (b *backlog) Shutdown() {
	b.cancel()
	// buffer stays open; a late Enqueue must not panic.
	b.wg.Wait()
	if b.pool.GetOwner() == b {
		b.pool.Shutdown()
	}
}

func (b *backlog) feed() {
	defer b.wg.Done()
	for {
		var t backlogTask
		select {
		case t = <-b.buffer:
		case <-b.ctx.Done():
			return
		}
		if err := b.pool.Enqueue(b.ctx, t.execFunc, t.arg, t.priority, t.out); err != nil {
			return
		}
	}
}
