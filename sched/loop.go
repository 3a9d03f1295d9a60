package sched

import (
	"errors"
	"fmt"
	"os"

	"github.com/oneringio/onering/internal/iouring"
	"github.com/oneringio/onering/ioworker"
	"github.com/oneringio/onering/ops"
	"github.com/rs/zerolog"
)

var log = zerolog.New(os.Stderr).With().Timestamp().Str("component", "sched").Logger()

// Loop is the single-threaded scheduler: it owns the IO worker, the set of
// live tasks, and the task ID counter (operation IDs are counted by the IO
// worker itself). Exactly one goroutine
// (whichever calls RunUntilComplete) ever drives it; tasks run on their own
// fiber goroutines but are only ever one-at-a-time runnable, synchronized
// through the rendezvous channels in fiber.go.
//
// Each tick performs, in this fixed order (resolving an explicit gap in the
// distilled spec about relative ordering): (1) delivers pending
// cancellations, (2) starts newly created tasks, (3) registers ready tasks'
// operations with the IO worker, resumes ready tasks that have no operation
// (checkpoints), and submits, (4) drives the tasks whose completions are
// already available and, if any operation is still in flight, waits for one
// more completion and drives its task, (5) reaps tasks that reached Done.
// An Unpark is not a separate step: the parked task is resumed at once,
// inside whichever step is driving the task that yielded the Unpark, and a
// WaitOn is resolved the moment its last target finishes.
type Loop struct {
	worker *ioworker.Worker

	nextID TaskID
	tasks  map[TaskID]*Task

	// waiters maps a task ID being waited on to the tasks parked on it.
	waiters map[TaskID][]TaskID
	// parked maps a park key (set by handleYield; currently always the
	// task's own ID) to the parked task.
	parked map[any]TaskID

	opOwner map[uint64]TaskID // pending IO op -> task that submitted it

	// pendingReap holds the IDs of tasks that were already Done as of the
	// previous tick's reapDone call; this tick's reapDone deletes them from
	// l.tasks (except those a waiting task still lists), then refills
	// pendingReap from whatever is Done now. The one-
	// tick lag is deliberate: a task is observed Done for a full tick (so
	// anything still inspecting it that tick sees it) before its entry is
	// actually freed, matching the "freed one loop tick after Done" data
	// model.
	pendingReap map[TaskID]bool
}

// NewLoop creates a Loop with its own io_uring-backed worker.
func NewLoop(cfg *iouring.Config) (*Loop, error) {
	w, err := ioworker.New(cfg)
	if err != nil {
		return nil, err
	}
	return &Loop{
		worker:      w,
		tasks:       make(map[TaskID]*Task),
		waiters:     make(map[TaskID][]TaskID),
		parked:      make(map[any]TaskID),
		opOwner:     make(map[uint64]TaskID),
		pendingReap: make(map[TaskID]bool),
	}, nil
}

// Close tears down the underlying IO worker. Call once RunUntilComplete has
// returned.
func (l *Loop) Close() error { return l.worker.Close() }

// Spawn creates a new task in the Created state and returns its ID. The
// task does not run until the next tick's start-phase.
func (l *Loop) Spawn(body Body) TaskID {
	l.nextID++
	id := l.nextID
	l.tasks[id] = newTask(id, l, body)
	return id
}

// Task looks up a live task by ID.
func (l *Loop) Task(id TaskID) (*Task, bool) {
	t, ok := l.tasks[id]
	return t, ok
}

// Run spawns body as the root task and drives the loop until it completes,
// returning its result or error. This is the entry point package onering's
// Run wraps.
func Run(cfg *iouring.Config, body Body) (any, error) {
	l, err := NewLoop(cfg)
	if err != nil {
		return nil, err
	}
	defer l.Close()
	root := l.Spawn(body)
	return l.RunUntilComplete(root)
}

// RunUntilComplete ticks the loop until the task named by id reaches Done,
// then returns its result/error. A task that an earlier tick already freed
// (see reapDone) is reported as unknown.
func (l *Loop) RunUntilComplete(id TaskID) (any, error) {
	for {
		t, ok := l.tasks[id]
		if !ok {
			return nil, fmt.Errorf("sched: unknown task %d", id)
		}
		if t.IsDone() {
			return t.Result()
		}
		if err := l.tick(); err != nil {
			return nil, err
		}
	}
}

func (l *Loop) tick() error {
	l.handleCancellations()
	l.startCreatedTasks()
	l.registerReadyTasks()
	if _, err := l.worker.Submit(); err != nil {
		return err
	}
	if err := l.waitForProgress(); err != nil {
		return err
	}
	l.reapDone()
	return nil
}

// handleCancellations delivers a *Cancelled to every task whose innermost
// non-shielded scope has been cancelled and which hasn't been told yet.
// Parked and waiting-on tasks are resumed immediately; submitted tasks get
// an AsyncCancel requested against their in-flight operation, and are
// resumed with Cancelled once that operation's completion arrives (see
// deliverCompletion).
func (l *Loop) handleCancellations() {
	for _, t := range l.tasks {
		if t.IsDone() {
			continue
		}
		scope := t.shouldCancel()
		if scope == nil || t.pendingCancel == scope {
			continue
		}
		t.pendingCancel = scope
		switch t.state {
		case stateParked:
			delete(l.parked, t.parkKey)
			l.drive(t, nil, &Cancelled{Scope: scope})
		case stateWaitingOn:
			l.removeWaiterEverywhere(t.id)
			l.drive(t, nil, &Cancelled{Scope: scope})
		case stateSubmitted:
			// best-effort: ask the kernel to cancel the in-flight op; the
			// Cancelled error is delivered when its completion arrives.
			l.worker.Register(&ops.AsyncCancel{TargetOpID: t.pendingOpID})
		case stateReady, stateCreated:
			l.drive(t, nil, &Cancelled{Scope: scope})
		}
	}
}

func (l *Loop) startCreatedTasks() {
	for _, t := range l.tasks {
		if t.state != stateCreated {
			continue
		}
		y, finished := t.fiber.start()
		if finished {
			l.finish(t)
			continue
		}
		l.handleYield(t, y)
	}
}

func (l *Loop) registerReadyTasks() {
	for _, t := range l.tasks {
		if t.state != stateReady || t.opResult == nil {
			continue
		}
		op, ok := t.opResult.(ops.Operation)
		if !ok {
			continue
		}
		opID, err := l.worker.Register(op)
		if err != nil {
			// submission queue full this tick; try again next tick.
			continue
		}
		t.opResult = nil
		t.pendingOpID = opID
		t.state = stateSubmitted
		l.opOwner[opID] = t.id
	}

	// Checkpoint-only ready tasks (no IO) resume immediately.
	for _, t := range l.tasks {
		if t.state == stateReady && t.opResult == nil {
			l.drive(t, nil, nil)
		}
	}
}

// waitForProgress blocks for at least one IO completion if any operation is
// in flight; otherwise, if nothing is submitted but tasks remain that are
// parked or waiting, it is a deadlock (nothing will ever wake them).
func (l *Loop) waitForProgress() error {
	for {
		c, ok := l.worker.Peek()
		if !ok {
			break
		}
		l.deliverCompletion(c)
	}
	if l.worker.Pending() == 0 {
		if l.hasRunnableWork() {
			return nil
		}
		if l.hasBlockedWork() {
			err := errors.New("sched: deadlock — tasks are parked/waiting with no in-flight IO to ever wake them")
			log.Error().Int("tasks", len(l.tasks)).Msg(err.Error())
			return err
		}
		return nil
	}
	c, err := l.worker.Wait()
	if err != nil {
		return err
	}
	l.deliverCompletion(c)
	return nil
}

func (l *Loop) hasRunnableWork() bool {
	for _, t := range l.tasks {
		if t.state == stateCreated || t.state == stateReady {
			return true
		}
	}
	return false
}

func (l *Loop) hasBlockedWork() bool {
	for _, t := range l.tasks {
		if !t.IsDone() {
			return true
		}
	}
	return false
}

func (l *Loop) deliverCompletion(c ioworker.Completion) {
	taskID, ok := l.opOwner[c.OpID]
	if !ok {
		return // e.g. a fire-and-forget AsyncCancel's own completion
	}
	delete(l.opOwner, c.OpID)
	t, ok := l.tasks[taskID]
	if !ok || t.IsDone() {
		return
	}
	if t.pendingCancel != nil {
		l.drive(t, nil, &Cancelled{Scope: t.pendingCancel})
		return
	}
	l.drive(t, c.Result, c.Err)
}

// drive resumes a fiber with a value/error and processes whatever it does next.
func (l *Loop) drive(t *Task, val any, err error) {
	y, finished := t.fiber.resume(val, err)
	if finished {
		l.finish(t)
		return
	}
	l.handleYield(t, y)
}

func (l *Loop) handleYield(t *Task, y Yieldable) {
	switch v := y.(type) {
	case IOOp:
		t.opResult = v.Op
		t.state = stateReady
	case waitOnReq:
		t.waitingOnIDs = make([]TaskID, len(v.TaskIDs))
		allDone := true
		for i, id := range v.TaskIDs {
			t.waitingOnIDs[i] = TaskID(id)
			if other, ok := l.tasks[TaskID(id)]; !ok || other.IsDone() {
				continue
			}
			allDone = false
			l.waiters[TaskID(id)] = append(l.waiters[TaskID(id)], t.id)
		}
		if allDone {
			l.drive(t, nil, nil)
			return
		}
		t.state = stateWaitingOn
	case Park:
		t.parkKey = t.id
		l.parked[t.parkKey] = t.id
		t.state = stateParked
	case Checkpoint:
		t.opResult = nil
		t.state = stateReady
	case Unpark:
		l.Unpark(v.TaskID)
		t.opResult = nil
		t.state = stateReady
	default:
		t.opResult = nil
		t.state = stateReady
	}
}

func (l *Loop) finish(t *Task) {
	t.result, t.err = t.fiber.result, t.fiber.err
	t.state = stateDone
	for _, s := range append([]*CancelScope{}, t.scopes...) {
		s.removeTask(t.id)
	}
	t.scopes = nil
	l.wakeWaiters(t.id)
}

func (l *Loop) wakeWaiters(doneID TaskID) {
	waiters := l.waiters[doneID]
	delete(l.waiters, doneID)
	for _, wid := range waiters {
		w, ok := l.tasks[wid]
		if !ok || w.state != stateWaitingOn {
			continue
		}
		stillWaiting := false
		for _, id := range w.waitingOnIDs {
			if other, ok := l.tasks[id]; ok && !other.IsDone() {
				stillWaiting = true
				break
			}
		}
		if !stillWaiting {
			l.removeWaiterEverywhere(wid)
			l.drive(w, nil, nil)
		}
	}
}

func (l *Loop) removeWaiterEverywhere(id TaskID) {
	for k, list := range l.waiters {
		out := list[:0]
		for _, w := range list {
			if w != id {
				out = append(out, w)
			}
		}
		l.waiters[k] = out
	}
}

// reapDone frees tasks that have been sitting Done since the previous tick.
// Waiter entries are already cleared as part of finish(), and opOwner
// entries when their completion is delivered; this is only about letting go
// of the *Task itself, one tick after everything that might still reference
// its ID by error has had a chance to see it. A Done task that a task in
// stateWaitingOn still lists is kept until that waiter has resumed, so the
// waiter can still read its result.
func (l *Loop) reapDone() {
	awaited := make(map[TaskID]bool)
	for _, t := range l.tasks {
		if t.state == stateWaitingOn {
			for _, id := range t.waitingOnIDs {
				awaited[id] = true
			}
		}
	}
	for id := range l.pendingReap {
		if !awaited[id] {
			delete(l.tasks, id)
		}
	}
	l.pendingReap = make(map[TaskID]bool)
	for id, t := range l.tasks {
		if t.IsDone() && !awaited[id] {
			l.pendingReap[id] = true
		}
	}
}

// Unpark resumes a single task parked via Park, identified by the key used
// when it parked (currently always the TaskID itself — see syncx, which
// keys its wait queues the same way).
func (l *Loop) Unpark(id TaskID) {
	t, ok := l.tasks[id]
	if !ok || t.state != stateParked {
		return
	}
	delete(l.parked, t.parkKey)
	l.drive(t, nil, nil)
}
