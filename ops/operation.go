package ops

import "github.com/oneringio/onering/internal/iouring"

// Result is the typed outcome of a completed operation, narrowed by the
// caller (via a type switch or assertion) to the concrete type the
// Operation that produced it documents.
type Result any

// Operation describes one io_uring submission end-to-end: how it populates
// its SQE, and how a matching CQE is turned into either a Result or an
// error. Implementations own any buffers or auxiliary kernel structures
// (iovecs, sockaddrs, timespecs) they need to keep alive between Prep and
// Extract — the kernel only ever sees the pointers, so the Go values those
// pointers reference must not move or be collected before the completion
// arrives.
type Operation interface {
	// Prep fills sqe to request this operation. opID is the value the
	// scheduler has assigned this submission; implementations must stash
	// it in sqe.UserData so the completion can be matched back to it.
	Prep(sqe *iouring.IOUringSQE, opID uint64)

	// IsError reports whether cqe represents a failed completion (a
	// negative result code) for this particular operation. Most
	// operations use the shared negativeResult check; a few (Sleep, for
	// which -ETIME is success, and AsyncCancel, for which -ENOENT and
	// -EALREADY are) have their own notion of success.
	IsError(cqe *iouring.IOUringCQE) bool

	// Extract converts a successful completion into this operation's
	// Result. Extract is never called when IsError reports true.
	Extract(cqe *iouring.IOUringCQE) (Result, error)
}

// negativeResult is the IsError behavior shared by nearly every operation:
// io_uring reports failure as a negative errno in Res.
func negativeResult(cqe *iouring.IOUringCQE) bool {
	return cqe.Res < 0
}

// errorFromCQE builds the OSError for a failed completion, tagging it with
// the operation name for a useful error message.
func errorFromCQE(op string, cqe *iouring.IOUringCQE) error {
	return NewOSError(op, cqe.Res)
}
