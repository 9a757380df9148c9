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

// Package execpool runs verification work on a fixed set of workers.
package execpool

import (
	"context"
	"runtime"
	"sync"
)

// Priority is the priority of a task submitted to an ExecutionPool.
type Priority uint8

const (
	// LowPriority is used for bulk traffic.
	LowPriority Priority = iota
	// HighPriority tasks are picked ahead of queued low priority ones.
	HighPriority
)

// ExecFunc is the work performed on arg; its result is delivered to the
// out channel given on submission.
type ExecFunc func(arg interface{}) interface{}

// ExecutionPool is a fixed size worker pool.
type ExecutionPool interface {
	Enqueue(enqueueCtx context.Context, t ExecFunc, arg interface{}, priority Priority, out chan interface{}) error
	GetOwner() interface{}
	Shutdown()
	GetParallelism() int
}

type enqueuedTask struct {
	execFunc ExecFunc
	arg      interface{}
	out      chan interface{}
}

type pool struct {
	wg          sync.WaitGroup
	lowQueue    chan enqueuedTask
	highQueue   chan enqueuedTask
	ctx         context.Context
	cancel      context.CancelFunc
	owner       interface{}
	parallelism int
}

// MakePool creates a pool with one worker per CPU.
func MakePool(owner interface{}) ExecutionPool {
	return MakePoolWithParallelism(owner, runtime.NumCPU())
}

// MakePoolWithParallelism creates a pool with the given number of workers.
func MakePoolWithParallelism(owner interface{}, parallelism int) ExecutionPool {
	if parallelism < 1 {
		parallelism = 1
	}
	p := &pool{
		lowQueue:    make(chan enqueuedTask),
		highQueue:   make(chan enqueuedTask),
		owner:       owner,
		parallelism: parallelism,
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.wg.Add(parallelism)
	for i := 0; i < parallelism; i++ {
		go p.worker()
	}
	return p
}

func (p *pool) GetParallelism() int {
	return p.parallelism
}

func (p *pool) GetOwner() interface{} {
	return p.owner
}

// Enqueue blocks until a worker picks the task up or one of the contexts ends.
func (p *pool) Enqueue(enqueueCtx context.Context, t ExecFunc, arg interface{}, priority Priority, out chan interface{}) error {
	q := p.lowQueue
	if priority == HighPriority {
		q = p.highQueue
	}
	select {
	case q <- enqueuedTask{execFunc: t, arg: arg, out: out}:
		return nil
	case <-enqueueCtx.Done():
		return enqueueCtx.Err()
	case <-p.ctx.Done():
		return p.ctx.Err()
	}
}

func (p *pool) Shutdown() {
	p.cancel()
	p.wg.Wait()
}

func (p *pool) worker() {
	defer p.wg.Done()
	for {
		var t enqueuedTask
		select {
		case t = <-p.highQueue:
		default:
			select {
			case t = <-p.highQueue:
			case t = <-p.lowQueue:
			case <-p.ctx.Done():
				return
			}
		}
		res := t.execFunc(t.arg)
		if t.out != nil {
			select {
			case t.out <- res:
			case <-p.ctx.Done():
				return
			}
		}
	}
}
