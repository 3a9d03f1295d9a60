package syncx

import "github.com/oneringio/onering/sched"

// Condition is a condition variable associated with a Lock: Wait releases
// the lock, parks, and reacquires the lock before returning, the same
// contract sync.Cond offers for goroutines.
type Condition struct {
	lock    *Lock
	waiters []sched.TaskID
}

// NewCondition creates a condition variable guarded by lock.
func NewCondition(lock *Lock) *Condition { return &Condition{lock: lock} }

// Wait releases the lock, blocks until Notify/NotifyAll wakes this task,
// then reacquires the lock before returning.
func (c *Condition) Wait(y *sched.Yield) error {
	if err := c.lock.Release(y); err != nil {
		return err
	}
	c.waiters = append(c.waiters, y.Self())
	if err := y.ParkSelf(); err != nil {
		return err
	}
	return c.lock.Acquire(y)
}

// Notify wakes the longest-waiting task, if any.
func (c *Condition) Notify(y *sched.Yield) error {
	if len(c.waiters) == 0 {
		return nil
	}
	next := c.waiters[0]
	c.waiters = c.waiters[1:]
	return y.UnparkTask(next)
}

// NotifyAll wakes every waiting task.
func (c *Condition) NotifyAll(y *sched.Yield) error {
	waiters := c.waiters
	c.waiters = nil
	for _, id := range waiters {
		if err := y.UnparkTask(id); err != nil {
			return err
		}
	}
	return nil
}
