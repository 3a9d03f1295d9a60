// Package ioworker owns the single io_uring instance: it hands out
// operation IDs, tracks which Operation a submitted SQE belongs to, and
// turns completion queue entries back into typed results or OSErrors.
//
// A Worker is not safe for concurrent use — it is designed to be driven
// exclusively by the scheduler's single loop goroutine, which is also what
// makes the fiber model in package sched correct without extra locking.
package ioworker

import (
	"fmt"
	"os"

	"github.com/oneringio/onering/internal/iouring"
	"github.com/oneringio/onering/ops"
	"github.com/rs/zerolog"
)

var log = zerolog.New(os.Stderr).With().Timestamp().Str("component", "ioworker").Logger()

// Completion is a drained completion queue entry, resolved back to the
// Operation that produced it.
type Completion struct {
	OpID   uint64
	Result ops.Result
	Err    error
}

// Worker wraps a Ring with operation bookkeeping.
type Worker struct {
	ring *iouring.Ring

	nextOpID uint64
	pending  map[uint64]ops.Operation
}

// New creates a Worker backed by a freshly opened ring of the given queue depth.
func New(cfg *iouring.Config) (*Worker, error) {
	if cfg == nil {
		cfg = iouring.DefaultConfig()
	}
	ring, err := iouring.New(cfg.QueueDepth)
	if err != nil {
		log.Error().Err(err).Uint32("queue_depth", cfg.QueueDepth).Msg("failed to open ring")
		return nil, err
	}
	log.Debug().Uint32("queue_depth", cfg.QueueDepth).Msg("worker started")
	return &Worker{
		ring:    ring,
		pending: make(map[uint64]ops.Operation),
	}, nil
}

// Register fills a submission queue entry for op and queues it for
// submission. It returns the operation ID the completion will carry, or an
// error if the submission queue is currently full (the caller should submit
// pending entries first and retry).
func (w *Worker) Register(op ops.Operation) (uint64, error) {
	sqe := w.ring.PeekSQE()
	if sqe == nil {
		return 0, errSQFull
	}
	w.nextOpID++
	opID := w.nextOpID
	op.Prep(sqe, opID)
	w.ring.AdvanceSQ()
	w.pending[opID] = op
	return opID, nil
}

// errSQFull signals a full submission queue; callers retry after Submit.
var errSQFull = fmt.Errorf("ioworker: submission queue full")

// ErrSubmissionQueueFull is the sentinel returned by Register when the ring
// has no free SQE slots.
var ErrSubmissionQueueFull = errSQFull

// Submit flushes any registered-but-unsubmitted SQEs to the kernel.
func (w *Worker) Submit() (int, error) {
	return w.ring.Submit()
}

// Peek drains one completed operation without blocking, or reports false if
// none is ready.
func (w *Worker) Peek() (Completion, bool) {
	cqe := w.ring.PeekCQE()
	if cqe == nil {
		return Completion{}, false
	}
	c := w.resolve(cqe)
	w.ring.AdvanceCQ()
	return c, true
}

// Wait blocks until at least one completion is available and drains it.
func (w *Worker) Wait() (Completion, error) {
	cqe, err := w.ring.WaitCQE()
	if err != nil {
		return Completion{}, err
	}
	c := w.resolve(cqe)
	w.ring.AdvanceCQ()
	return c, nil
}

// Pending reports how many registered operations have not yet completed.
func (w *Worker) Pending() int {
	return len(w.pending)
}

func (w *Worker) resolve(cqe *iouring.IOUringCQE) Completion {
	opID := cqe.UserData
	op, ok := w.pending[opID]
	if ok {
		delete(w.pending, opID)
	}
	c := Completion{OpID: opID}
	if !ok {
		// Should not happen: every CQE's UserData was assigned by Register.
		c.Err = fmt.Errorf("ioworker: completion for unknown operation %d", opID)
		return c
	}
	if op.IsError(cqe) {
		c.Err = opError(op, cqe)
		log.Warn().Uint64("op_id", opID).Err(c.Err).Msg("operation completed with error")
		return c
	}
	c.Result, c.Err = op.Extract(cqe)
	return c
}

// opError names the failing operation the way the original worker's
// _transform_completion_event did (via strerror), using %T as a stand-in
// for the original's operation-class name.
func opError(op ops.Operation, cqe *iouring.IOUringCQE) error {
	return ops.NewOSError(fmt.Sprintf("%T", op), cqe.Res)
}

// Close tears down the underlying ring.
func (w *Worker) Close() error {
	log.Debug().Int("pending", len(w.pending)).Msg("worker closing")
	return w.ring.Close()
}
