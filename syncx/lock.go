package syncx

import "github.com/oneringio/onering/sched"

// Lock is a mutual-exclusion lock for tasks, grounded on the same
// FIFO-queue-of-waiters shape the original Lock used, but implemented over
// park/unpark instead of a deque of Events. It tracks an owner the same way
// the original Lock's dataclass was documented to (spec.md §4.7): Release
// by anyone other than the current owner is a programming error.
type Lock struct {
	held    bool
	owner   sched.TaskID
	waiters []sched.TaskID
}

// NewLock creates an unheld lock.
func NewLock() *Lock { return &Lock{} }

// Acquire blocks the calling task until it holds the lock.
func (l *Lock) Acquire(y *sched.Yield) error {
	if !l.held {
		l.held = true
		l.owner = y.Self()
		return y.Checkpoint()
	}
	l.waiters = append(l.waiters, y.Self())
	if err := y.ParkSelf(); err != nil {
		return err
	}
	l.owner = y.Self()
	return nil
}

// Release hands the lock to the next waiter, if any, or marks it free.
// Releasing an unheld lock, or a lock held by a different task, is a
// programming error and returns a *RuntimeError — mirroring the original
// Lock.release's "Nothing to release" RuntimeError, extended to cover the
// non-owner case spec.md §4.7 adds.
func (l *Lock) Release(y *sched.Yield) error {
	if !l.held {
		return &RuntimeError{Msg: "nothing to release"}
	}
	if l.owner != y.Self() {
		return &RuntimeError{Msg: "release by non-owner"}
	}
	if len(l.waiters) == 0 {
		l.held = false
		l.owner = 0
		return nil
	}
	next := l.waiters[0]
	l.waiters = l.waiters[1:]
	l.owner = next
	return y.UnparkTask(next)
}

// Locked reports whether the lock is currently held.
func (l *Lock) Locked() bool { return l.held }

// Owner returns the TaskID currently holding the lock; the result is only
// meaningful when Locked() is true.
func (l *Lock) Owner() sched.TaskID { return l.owner }
