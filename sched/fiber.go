// Package sched implements the cooperative, single-threaded task scheduler:
// tasks (coroutines), structured concurrency (cancel scopes, task groups),
// and the loop that drives them against an io_uring worker.
//
// Go has no native generators, so a task body cannot literally be resumed
// where it left off the way a Python generator can. Instead each task body
// runs on its own goroutine (a "fiber") and rendezvous with the scheduler
// goroutine through a pair of unbuffered channels: the fiber sends a
// Yieldable and blocks; the scheduler alone decides when to send a resume
// value back. Because the rendezvous channels are unbuffered and only one
// side is ever runnable at a time, this preserves the same non-preemptive,
// single-threaded semantics the original generator-based scheduler relied
// on — at any instant exactly one fiber is executing application code, and
// it only stops executing at a yield point it chose itself.
package sched

import (
	"fmt"

	"github.com/oneringio/onering/concurrency/gopool"
)

// Body is a task's coroutine body. It receives a Yield handle to suspend
// itself and must return its final result or error when it completes.
type Body func(y *Yield) (any, error)

// Yield is the handle a running task body uses to suspend itself, handing a
// Yieldable to the scheduler, and to receive whatever the scheduler resumes
// it with.
type Yield struct {
	self TaskID
	loop *Loop
	out  chan any
	in   chan resumeMsg
}

// Self returns the ID of the task currently executing, the way the
// original scheduler handed each coroutine its own task handle on entry.
// Sync primitives and streams use this instead of requiring every caller to
// thread its own task ID through by hand (which would otherwise race: a
// task body starts running concurrently with Spawn returning the ID to its
// caller).
func (y *Yield) Self() TaskID { return y.self }

type resumeMsg struct {
	val any
	err error
}

// Yieldable is the sum type a task body can hand to the scheduler. Exactly
// one of the concrete types below.
type Yieldable interface{ yieldable() }

// IOOp asks the scheduler to submit op to the IO worker and resume the
// task, with the completion's Result/error as the resume value/error, once
// it completes.
type IOOp struct{ Op any }

// waitOnReq asks the scheduler to resume the task once every listed task has
// reached its Done state. (Unexported: the public spelling task bodies use
// is the WaitOn function in gather.go — this type would otherwise collide
// with it.)
type waitOnReq struct{ TaskIDs []uint64 }

// Park asks the scheduler to resume the task only when something calls
// Unpark(taskID) on it — used by the sync primitives in package syncx.
type Park struct{}

// Checkpoint asks the scheduler to resume the task on its next tick without
// otherwise blocking it; this is the point at which a pending cancellation
// is delivered.
type Checkpoint struct{}

// Unpark asks the scheduler to resume a task parked via Park, then marks
// the requesting task ready again; it is resumed on a later pass, the same
// way a Checkpoint is. Sync primitives in package
// syncx yield this to wake a waiter, since only the loop goroutine is
// allowed to resume a fiber.
type Unpark struct{ TaskID TaskID }

func (IOOp) yieldable()       {}
func (waitOnReq) yieldable()  {}
func (Park) yieldable()       {}
func (Checkpoint) yieldable() {}
func (Unpark) yieldable()     {}

// yield suspends the calling fiber, handing v to the scheduler, and blocks
// until the scheduler resumes it with a value or an error (typically
// *Cancelled).
func (y *Yield) yield(v Yieldable) (any, error) {
	y.out <- v
	msg := <-y.in
	return msg.val, msg.err
}

// fiber is the goroutine-backed execution of one task body.
type fiber struct {
	out  chan any
	in   chan resumeMsg
	done chan struct{}

	result any
	err    error
}

func startFiber(id TaskID, l *Loop, body Body) *fiber {
	f := &fiber{
		out:  make(chan any),
		in:   make(chan resumeMsg),
		done: make(chan struct{}),
	}
	gopool.Go(func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("sched: task panicked: %v", r)
				log.Error().Uint64("task_id", uint64(id)).Interface("panic", r).Msg("task body panicked")
			}
		}()
		y := &Yield{self: id, loop: l, out: f.out, in: f.in}
		f.result, f.err = body(y)
	})
	return f
}

// resume sends a value into a parked fiber and blocks until it either
// yields again or finishes. finished is true if the fiber has finished
// (resume should not be called again after that).
func (f *fiber) resume(val any, err error) (yielded Yieldable, finished bool) {
	select {
	case <-f.done:
		return nil, true
	default:
	}
	f.in <- resumeMsg{val: val, err: err}
	select {
	case v := <-f.out:
		return v.(Yieldable), false
	case <-f.done:
		return nil, true
	}
}

// start runs the fiber until its first yield or completion, without
// sending a resume value (there is nothing to resume yet).
func (f *fiber) start() (yielded Yieldable, finished bool) {
	select {
	case v := <-f.out:
		return v.(Yieldable), false
	case <-f.done:
		return nil, true
	}
}
