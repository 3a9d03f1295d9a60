// Package syncx provides the blocking synchronization primitives tasks use
// to coordinate with each other: Event, Lock, Semaphore, and Condition.
// Each is built on the scheduler's park/unpark mechanism (sched.Yield.
// ParkSelf/UnparkTask) rather than OS-level synchronization — blocking here
// means "yield control back to the loop", never "block a goroutine", which
// is what lets a single task's wait queue be driven safely from inside
// another task's fiber.
package syncx

import "github.com/oneringio/onering/sched"

// Event is a one-shot gate: Wait blocks every caller until Set is called
// once, after which every past and future Wait returns immediately.
type Event struct {
	ready   bool
	waiters []sched.TaskID
}

// NewEvent creates an unset Event.
func NewEvent() *Event { return &Event{} }

// IsSet reports whether Set has been called.
func (e *Event) IsSet() bool { return e.ready }

// Wait blocks the calling task until the event is set.
func (e *Event) Wait(y *sched.Yield) error {
	if e.ready {
		return y.Checkpoint()
	}
	e.waiters = append(e.waiters, y.Self())
	return y.ParkSelf()
}

// Set marks the event ready and wakes every waiter. Safe to call more than
// once; only the first call has an effect.
func (e *Event) Set(y *sched.Yield) error {
	if e.ready {
		return nil
	}
	e.ready = true
	waiters := e.waiters
	e.waiters = nil
	for _, id := range waiters {
		if err := y.UnparkTask(id); err != nil {
			return err
		}
	}
	return nil
}
