/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package gopool launches a fiber's backing goroutine with panic recovery,
// the same runTask/panicHandler idiom the original GoPool used for its
// pooled workers. It is not a worker pool anymore: a fiber's goroutine runs
// for the entire lifetime of its task (it only returns when the task body
// does, which can be arbitrarily long — a connection held open for the life
// of a request, a background task that outlives many scheduler ticks), so
// there is never an idle worker to hand off to a next task the way the
// original's MaxIdleWorkers/WorkerMaxAge reaping assumed. That reaping
// machinery is dropped rather than kept around unused.
package gopool

import (
	"context"
	"log"
	"runtime/debug"
)

// FiberPool launches one goroutine per call, recovering panics through an
// optional handler instead of letting them crash the process.
type FiberPool struct {
	panicHandler func(ctx context.Context, r interface{})
}

// NewFiberPool creates a pool with the default (log-and-continue) panic
// handler.
func NewFiberPool() *FiberPool { return &FiberPool{} }

var defaultPool = NewFiberPool()

// Go runs f on a new goroutine through the default pool.
func Go(f func()) { defaultPool.Go(f) }

// CtxGo runs f on a new goroutine through the default pool, passing ctx to
// the panic handler if f panics.
func CtxGo(ctx context.Context, f func()) { defaultPool.CtxGo(ctx, f) }

// SetPanicHandler sets the default pool's panic handler.
func SetPanicHandler(f func(ctx context.Context, r interface{})) {
	defaultPool.SetPanicHandler(f)
}

// Go runs f on a new goroutine.
func (p *FiberPool) Go(f func()) { p.CtxGo(context.Background(), f) }

// CtxGo runs f on a new goroutine, passing ctx to the panic handler if f
// panics.
func (p *FiberPool) CtxGo(ctx context.Context, f func()) {
	go p.runTask(ctx, f)
}

// SetPanicHandler sets a func for handling panic cases.
//
// Panic handler takes two args, `ctx` and `r`.
// `ctx` is the one provided when calling CtxGo, and `r` is returned by recover()
//
// By default, FiberPool will use log.Printf to record the err and stack.
func (p *FiberPool) SetPanicHandler(f func(ctx context.Context, r interface{})) {
	p.panicHandler = f
}

func (p *FiberPool) runTask(ctx context.Context, f func()) {
	defer func() {
		if r := recover(); r != nil {
			if p.panicHandler != nil {
				p.panicHandler(ctx, r)
			} else {
				log.Printf("GOPOOL: panic in fiber: %v: %s", r, debug.Stack())
			}
		}
	}()
	f()
}
