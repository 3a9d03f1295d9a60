package sched

import "github.com/oneringio/onering/ops"

// DoIO submits op to the IO worker and blocks the calling task until it
// completes, returning its typed Result or the error the completion
// resolved to (an *ops.OSError, or a *Cancelled if the task's scope was
// cancelled while the operation was in flight).
func (y *Yield) DoIO(op ops.Operation) (ops.Result, error) {
	val, err := y.yield(IOOp{Op: op})
	if err != nil {
		return nil, err
	}
	res, _ := val.(ops.Result)
	return res, nil
}

// WaitForTasks blocks the calling task until every task in ids has reached
// Done.
func (y *Yield) WaitForTasks(ids []TaskID) error {
	raw := make([]uint64, len(ids))
	for i, id := range ids {
		raw[i] = uint64(id)
	}
	_, err := y.yield(waitOnReq{TaskIDs: raw})
	return err
}

// Checkpoint yields control back to the scheduler for one tick without
// blocking on anything — the same role time==0 plays for sleep(): a place
// where a pending cancellation is allowed to be delivered.
func (y *Yield) Checkpoint() error {
	_, err := y.yield(Checkpoint{})
	return err
}

// ParkSelf suspends the calling task until some other task calls
// UnparkTask(id) on it. Used to build the blocking sync primitives.
func (y *Yield) ParkSelf() error {
	_, err := y.yield(Park{})
	return err
}

// UnparkTask wakes a task parked via ParkSelf. It must be called from
// within a running task body (it is itself a yield, since only the loop
// goroutine may resume a fiber).
func (y *Yield) UnparkTask(id TaskID) error {
	_, err := y.yield(Unpark{TaskID: id})
	return err
}
