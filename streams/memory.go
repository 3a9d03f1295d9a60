package streams

import "github.com/oneringio/onering/sched"

// Unbounded marks a MemoryObjectStream with no buffer ceiling at all (the
// Go stand-in for the original's `max_buffer_size=None`): Send never blocks;
// with no receiver left it returns ErrBrokenResource.
const Unbounded = -1

// memCore is the shared state behind a cloned pair of
// MemoryObjectSendStream/MemoryObjectReceiveStream, the same way the
// original implementation's memory object stream tracked sender/receiver
// reference counts so EndOfStream and BrokenResource could be told apart.
type memCore[T any] struct {
	buf      []T
	capacity int // 0: rendezvous (every Send waits for a waiting Receive); Unbounded: never blocks on room

	senders   int
	receivers int

	// sendWaiters holds senders parked because the buffer is full
	// (capacity > 0) or because no receiver is waiting yet (capacity ==
	// 0, the rendezvous case).
	sendWaiters []sched.TaskID
	recvWaiters []sched.TaskID

	closedSend bool
}

// MemoryObjectSendStream is the writable half of a bounded, in-process
// object channel.
type MemoryObjectSendStream[T any] struct{ core *memCore[T] }

// MemoryObjectReceiveStream is the readable half.
type MemoryObjectReceiveStream[T any] struct{ core *memCore[T] }

// NewMemoryObjectStream creates a linked send/receive pair with the given
// buffer capacity: 0 means every Send blocks until a Receive is already
// waiting (a rendezvous), Unbounded means Send never blocks on room (the
// Go stand-in for the original's `max_buffer_size=None`), and any positive
// value is an ordinary bounded buffer.
func NewMemoryObjectStream[T any](capacity int) (*MemoryObjectSendStream[T], *MemoryObjectReceiveStream[T]) {
	c := &memCore[T]{capacity: capacity, senders: 1, receivers: 1}
	return &MemoryObjectSendStream[T]{core: c}, &MemoryObjectReceiveStream[T]{core: c}
}

// Clone returns another handle to the same send stream, incrementing the
// sender refcount; the channel only reports ErrEndOfStream to receivers
// once every clone has been closed.
func (s *MemoryObjectSendStream[T]) Clone() *MemoryObjectSendStream[T] {
	s.core.senders++
	return &MemoryObjectSendStream[T]{core: s.core}
}

// Send blocks until there is room in the buffer, then enqueues v. For a
// capacity-0 (rendezvous) stream, "room" means a receiver is already
// waiting: Send and Receive hand off directly rather than one of them
// returning early with nothing on the other end to consume it. It returns
// ErrClosedResource only once every send clone has closed (a handle whose
// other clones are still open keeps sending after its own Close), and
// ErrBrokenResource if every receiver has gone away.
func (s *MemoryObjectSendStream[T]) Send(y *sched.Yield, v T) error {
	c := s.core
	if c.closedSend {
		return ErrClosedResource
	}
	if c.receivers == 0 {
		return ErrBrokenResource
	}
	for !c.hasRoom() {
		c.sendWaiters = append(c.sendWaiters, y.Self())
		if err := y.ParkSelf(); err != nil {
			return err
		}
		if c.closedSend {
			return ErrClosedResource
		}
		if c.receivers == 0 {
			return ErrBrokenResource
		}
	}
	c.buf = append(c.buf, v)
	if len(c.recvWaiters) > 0 {
		next := c.recvWaiters[0]
		c.recvWaiters = c.recvWaiters[1:]
		return y.UnparkTask(next)
	}
	return nil
}

// hasRoom reports whether a Send may append to the buffer right now: always
// for Unbounded, below the ceiling for a bounded stream, and — for the
// capacity-0 rendezvous case — only once a receiver is already parked
// waiting, so the value is never left sitting unconsumed.
func (c *memCore[T]) hasRoom() bool {
	switch {
	case c.capacity == Unbounded:
		return true
	case c.capacity == 0:
		return len(c.buf) == 0 && len(c.recvWaiters) > 0
	default:
		return len(c.buf) < c.capacity
	}
}

// Close closes this handle. Once every sender clone has closed, pending and
// future Receive calls observe ErrEndOfStream.
func (s *MemoryObjectSendStream[T]) Close(y *sched.Yield) error {
	c := s.core
	if c.senders == 0 {
		return nil
	}
	c.senders--
	if c.senders > 0 {
		return nil
	}
	c.closedSend = true
	waiters := c.recvWaiters
	c.recvWaiters = nil
	for _, id := range waiters {
		if err := y.UnparkTask(id); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns another handle to the same receive stream, incrementing the
// receiver refcount.
func (r *MemoryObjectReceiveStream[T]) Clone() *MemoryObjectReceiveStream[T] {
	r.core.receivers++
	return &MemoryObjectReceiveStream[T]{core: r.core}
}

// Receive blocks until an item is available, returning ErrEndOfStream once
// the buffer is drained and every sender has closed.
func (r *MemoryObjectReceiveStream[T]) Receive(y *sched.Yield) (T, error) {
	c := r.core
	var zero T
	for len(c.buf) == 0 {
		if c.senders == 0 {
			return zero, ErrEndOfStream
		}
		c.recvWaiters = append(c.recvWaiters, y.Self())
		// For a rendezvous (capacity-0) stream, a sender may already be
		// parked waiting for a receiver to show up — now that this
		// receiver is registered in recvWaiters, wake the oldest such
		// sender so it can see hasRoom() turn true and deliver.
		if c.capacity == 0 && len(c.sendWaiters) > 0 {
			next := c.sendWaiters[0]
			c.sendWaiters = c.sendWaiters[1:]
			if err := y.UnparkTask(next); err != nil {
				return zero, err
			}
			// UnparkTask resumes the sender synchronously, so by the time
			// it returns the sender may already have delivered straight
			// into buf (and popped our recvWaiters entry itself). Re-check
			// the loop condition rather than unconditionally parking on a
			// value that has already arrived — that value would otherwise
			// never wake us, since the sender's own wake-back attempt
			// lands before we've actually parked.
			continue
		}
		if err := y.ParkSelf(); err != nil {
			return zero, err
		}
	}
	v := c.buf[0]
	c.buf = c.buf[1:]
	// Only a freed slot in a bounded buffer is something a sendWaiter can
	// act on immediately; a rendezvous (capacity 0) sender already got its
	// wake-up when this receiver registered above, and Unbounded never
	// parks a sender in the first place.
	if c.capacity > 0 && len(c.sendWaiters) > 0 {
		next := c.sendWaiters[0]
		c.sendWaiters = c.sendWaiters[1:]
		if err := y.UnparkTask(next); err != nil {
			return v, err
		}
	}
	return v, nil
}

// Close closes this handle. Once every receiver clone has closed, pending
// and future Send calls observe ErrBrokenResource.
func (r *MemoryObjectReceiveStream[T]) Close(y *sched.Yield) error {
	c := r.core
	if c.receivers == 0 {
		return nil
	}
	c.receivers--
	if c.receivers > 0 {
		return nil
	}
	waiters := c.sendWaiters
	c.sendWaiters = nil
	for _, id := range waiters {
		if err := y.UnparkTask(id); err != nil {
			return err
		}
	}
	return nil
}
