package ops

import (
	"time"
	"unsafe"

	"github.com/oneringio/onering/internal/iouring"
)

// Sleep submits a relative IORING_OP_TIMEOUT with no linked operation; its
// only purpose is to produce a completion after Duration elapses. A
// Duration of zero is never submitted — callers collapse it to a plain
// checkpoint instead, the same shortcut timerio.sleep() takes for time==0.
type Sleep struct {
	Duration time.Duration

	ts iouring.TimeSpec
}

func (o *Sleep) Prep(sqe *iouring.IOUringSQE, opID uint64) {
	o.ts = iouring.TimeSpec{
		TvSec:  int64(o.Duration / time.Second),
		TvNsec: int64(o.Duration % time.Second),
	}
	sqe.Opcode = iouring.IORING_OP_TIMEOUT
	sqe.Addr = uint64(uintptr(unsafe.Pointer(&o.ts)))
	sqe.Len = 1
	sqe.UserData = opID
}

func (o *Sleep) IsError(cqe *iouring.IOUringCQE) bool {
	// IORING_OP_TIMEOUT completes with -ETIME on the expected expiry path;
	// that is success for a Sleep, so only other negative codes are errors.
	return cqe.Res < 0 && cqe.Res != -errETIME
}

func (o *Sleep) Extract(cqe *iouring.IOUringCQE) (Result, error) {
	return VoidResult{}, nil
}

const errETIME = 62

// Nop submits IORING_OP_NOP, forcing a completion round-trip with no side
// effect (e.g. to unblock a WaitCQE call promptly).
type Nop struct{}

func (o *Nop) Prep(sqe *iouring.IOUringSQE, opID uint64) {
	sqe.Opcode = iouring.IORING_OP_NOP
	sqe.UserData = opID
}

func (o *Nop) IsError(cqe *iouring.IOUringCQE) bool { return negativeResult(cqe) }

func (o *Nop) Extract(cqe *iouring.IOUringCQE) (Result, error) {
	return VoidResult{}, nil
}

// AsyncCancel requests cancellation of the in-flight operation identified by
// TargetOpID via IORING_OP_ASYNC_CANCEL. Its own completion (not the
// cancelled operation's) reports success or ENOENT if the target had
// already completed.
type AsyncCancel struct {
	TargetOpID uint64
}

func (o *AsyncCancel) Prep(sqe *iouring.IOUringSQE, opID uint64) {
	sqe.Opcode = iouring.IORING_OP_ASYNC_CANCEL
	sqe.Addr = o.TargetOpID
	sqe.UserData = opID
}

// errEALREADY is the errno ASYNC_CANCEL reports when the target operation
// was already being cancelled (e.g. a second cancel racing the first);
// tolerated the same way ENOENT is, per the cancel-tolerance policy.
const errEALREADY = -114

func (o *AsyncCancel) IsError(cqe *iouring.IOUringCQE) bool {
	// ENOENT just means the target already completed, and EALREADY means a
	// cancel was already in flight for it; the caller treats both the same
	// as a successful cancel race-lost.
	return cqe.Res < 0 && cqe.Res != iouring.ENOENTCancel && cqe.Res != errEALREADY
}

func (o *AsyncCancel) Extract(cqe *iouring.IOUringCQE) (Result, error) {
	return VoidResult{}, nil
}
