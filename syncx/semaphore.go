package syncx

import "github.com/oneringio/onering/sched"

// Semaphore allows up to N concurrent holders before further Acquire calls
// park. `initial` doubles as the semaphore's ceiling: Release only ever
// hands a slot back to a waiter or restores `count`, so `count` can never
// rise above the value Acquire could have started from.
type Semaphore struct {
	max     int
	count   int
	waiters []sched.TaskID
}

// NewSemaphore creates a semaphore starting with `initial` available slots.
func NewSemaphore(initial int) *Semaphore { return &Semaphore{max: initial, count: initial} }

// Acquire blocks the calling task until a slot is available.
func (s *Semaphore) Acquire(y *sched.Yield) error {
	if s.count > 0 {
		s.count--
		return y.Checkpoint()
	}
	s.waiters = append(s.waiters, y.Self())
	return y.ParkSelf()
}

// Release frees a slot, waking the longest-waiting task if one is parked.
// Releasing a semaphore with nothing outstanding — no waiters, and `count`
// already at its initial ceiling — is a programming error and returns a
// *RuntimeError, the same guard the original Lock.release's "Nothing to
// release" RuntimeError provides (spec.md §4.7 describes the semaphore
// failing the same way when empty).
func (s *Semaphore) Release(y *sched.Yield) error {
	if len(s.waiters) == 0 {
		if s.count >= s.max {
			return &RuntimeError{Msg: "nothing to release"}
		}
		s.count++
		return nil
	}
	next := s.waiters[0]
	s.waiters = s.waiters[1:]
	return y.UnparkTask(next)
}

// Available reports the current free-slot count.
func (s *Semaphore) Available() int { return s.count }
