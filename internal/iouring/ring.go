/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package iouring provides a low-level interface to Linux io_uring for
// completion-based asynchronous I/O. io_uring exposes a submission queue (SQ)
// and completion queue (CQ), both mmap'd and shared with the kernel, so most
// operations can be submitted and reaped without a syscall per operation.
//
// This package owns only the ring mechanics (setup, mmap, peek/advance,
// submit, wait) and the SQE field layout. Higher-level operation semantics
// (which opcode to use, how to interpret a CQE, buffer ownership) live in
// package ops.
//
// Requires Linux kernel 5.4+ (IORING_FEAT_SINGLE_MMAP).
package iouring

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"syscall"
	"unsafe"
)

// Opcodes submitted via the submission queue.
const (
	IORING_OP_NOP             = 0
	IORING_OP_READV           = 1
	IORING_OP_WRITEV          = 2
	IORING_OP_FSYNC           = 3
	IORING_OP_READ_FIXED      = 4
	IORING_OP_WRITE_FIXED     = 5
	IORING_OP_POLL_ADD        = 6
	IORING_OP_POLL_REMOVE     = 7
	IORING_OP_SYNC_FILE_RANGE = 8
	IORING_OP_SENDMSG         = 9
	IORING_OP_RECVMSG         = 10
	IORING_OP_TIMEOUT         = 11
	IORING_OP_TIMEOUT_REMOVE  = 12
	IORING_OP_ACCEPT          = 13
	IORING_OP_ASYNC_CANCEL    = 14
	IORING_OP_LINK_TIMEOUT    = 15
	IORING_OP_CONNECT         = 16
	IORING_OP_OPENAT          = 18
	IORING_OP_CLOSE           = 19
	IORING_OP_READ            = 22
	IORING_OP_WRITE           = 23
	IORING_OP_SEND            = 26
	IORING_OP_RECV            = 27
	IORING_OP_SOCKET          = 45
	IORING_OP_BIND            = 56
	IORING_OP_LISTEN          = 57
)

// Setup flags, controlling how the ring behaves.
const (
	IORING_SETUP_IOPOLL     = 1 << 0
	IORING_SETUP_SQPOLL     = 1 << 1
	IORING_SETUP_SQ_AFF     = 1 << 2
	IORING_SETUP_CQSIZE     = 1 << 3
	IORING_SETUP_CLAMP      = 1 << 4
	IORING_SETUP_ATTACH_WQ  = 1 << 5
	IORING_SETUP_R_DISABLED = 1 << 6
)

// Feature flags, returned in IoUringParams.Features after setup.
const (
	IORING_FEAT_SINGLE_MMAP = 1 << 0
)

// Enter flags, controlling io_uring_enter behavior.
const (
	IORING_ENTER_GETEVENTS = 1 << 0
	IORING_ENTER_SQ_WAKEUP = 1 << 1
	IORING_ENTER_SQ_WAIT   = 1 << 2
	IORING_ENTER_EXT_ARG   = 1 << 3
)

// SQE flags, controlling behavior of a single submission.
const (
	IOSQE_FIXED_FILE = 1 << 0
	IOSQE_IO_LINK    = 1 << 2
	IOSQE_ASYNC      = 1 << 6
)

// Register opcodes, for SYS_IO_URING_REGISTER.
const (
	IORING_REGISTER_BUFFERS      = 0
	IORING_UNREGISTER_BUFFERS    = 1
	IORING_REGISTER_FILES        = 2
	IORING_UNREGISTER_FILES      = 3
	IORING_REGISTER_EVENTFD      = 4
	IORING_UNREGISTER_EVENTFD    = 5
	IORING_REGISTER_FILES_UPDATE = 6
)

// ASYNC_CANCEL result when no matching operation was found.
const ENOENTCancel = -2

// IoUringParams is the io_uring_params struct passed to io_uring_setup.
// Used both as input (flags, sq_thread_*) and output (features, offsets).
type IoUringParams struct {
	SqEntries    uint32
	CqEntries    uint32
	Flags        uint32
	SqThreadCpu  uint32
	SqThreadIdle uint32
	Features     uint32
	WqFd         uint32
	Resv         [3]uint32
	SqOff        IoSqringOffsets
	CqOff        IoCqringOffsets
}

// IoSqringOffsets are byte offsets into the mmap'd SQ ring.
type IoSqringOffsets struct {
	Head        uint32
	Tail        uint32
	RingMask    uint32
	RingEntries uint32
	Flags       uint32
	Dropped     uint32
	Array       uint32
	Resv1       uint32
	Resv2       uint64
}

// IoCqringOffsets are byte offsets into the mmap'd CQ ring.
type IoCqringOffsets struct {
	Head        uint32
	Tail        uint32
	RingMask    uint32
	RingEntries uint32
	Overflow    uint32
	Cqes        uint32
	Flags       uint64
	Resv1       uint32
	Resv2       uint64
}

// Ring is a single io_uring instance: the fd plus its mmap'd SQ/CQ state.
type Ring struct {
	fd      int
	params  IoUringParams
	sq      submissionQueue
	cq      completionQueue
	sqeMem  []byte
	ringMem []byte
}

// submissionQueue is app-producer, kernel-consumer: app updates tail, kernel updates head.
type submissionQueue struct {
	head        *uint32
	tail        *uint32
	ringMask    uint32
	ringEntries uint32
	flags       *uint32
	dropped     *uint32
	array       *uint32
	sqes        []IOUringSQE
}

// completionQueue is kernel-producer, app-consumer: kernel updates tail, app updates head.
type completionQueue struct {
	head        *uint32
	tail        *uint32
	ringMask    uint32
	ringEntries uint32
	overflow    *uint32
	cqes        []IOUringCQE
}

// New creates a ring with the given submission-queue depth (rounded up to a
// power of two by the kernel). Requires IORING_FEAT_SINGLE_MMAP (Linux 5.4+).
func New(entries uint32) (*Ring, error) {
	params := IoUringParams{}
	fd, err := Setup(entries, &params)
	if err != nil {
		return nil, fmt.Errorf("iouring: io_uring_setup: %w", err)
	}

	if params.Features&IORING_FEAT_SINGLE_MMAP == 0 {
		syscall.Close(fd)
		return nil, fmt.Errorf("iouring: kernel missing IORING_FEAT_SINGLE_MMAP (need Linux 5.4+)")
	}

	r := &Ring{fd: fd, params: params}

	pageSize := uint32(syscall.Getpagesize())

	sqRingSize := params.SqOff.Array + params.SqEntries*uint32(unsafe.Sizeof(uint32(0)))
	cqRingSize := params.CqOff.Cqes + params.CqEntries*uint32(unsafe.Sizeof(IOUringCQE{}))
	ringSize := sqRingSize
	if cqRingSize > ringSize {
		ringSize = cqRingSize
	}
	ringSize = (ringSize + pageSize - 1) &^ (pageSize - 1)

	ringPtr, err := syscall.Mmap(fd, 0, int(ringSize),
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_SHARED|syscall.MAP_POPULATE)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("iouring: mmap ring: %w", err)
	}
	r.ringMem = ringPtr

	sqeSize := params.SqEntries * uint32(unsafe.Sizeof(IOUringSQE{}))
	sqePtr, err := syscall.Mmap(fd, int64(0x10000000), int(sqeSize),
		syscall.PROT_READ|syscall.PROT_WRITE,
		syscall.MAP_SHARED|syscall.MAP_POPULATE)
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("iouring: mmap sqes: %w", err)
	}
	r.sqeMem = sqePtr

	r.sq.head = (*uint32)(unsafe.Pointer(&r.ringMem[params.SqOff.Head]))
	r.sq.tail = (*uint32)(unsafe.Pointer(&r.ringMem[params.SqOff.Tail]))
	r.sq.ringMask = *(*uint32)(unsafe.Pointer(&r.ringMem[params.SqOff.RingMask]))
	r.sq.ringEntries = *(*uint32)(unsafe.Pointer(&r.ringMem[params.SqOff.RingEntries]))
	r.sq.flags = (*uint32)(unsafe.Pointer(&r.ringMem[params.SqOff.Flags]))
	r.sq.dropped = (*uint32)(unsafe.Pointer(&r.ringMem[params.SqOff.Dropped]))
	r.sq.array = (*uint32)(unsafe.Pointer(&r.ringMem[params.SqOff.Array]))
	r.sq.sqes = (*[0x10000]IOUringSQE)(unsafe.Pointer(&r.sqeMem[0]))[:params.SqEntries]

	r.cq.head = (*uint32)(unsafe.Pointer(&r.ringMem[params.CqOff.Head]))
	r.cq.tail = (*uint32)(unsafe.Pointer(&r.ringMem[params.CqOff.Tail]))
	r.cq.ringMask = *(*uint32)(unsafe.Pointer(&r.ringMem[params.CqOff.RingMask]))
	r.cq.ringEntries = *(*uint32)(unsafe.Pointer(&r.ringMem[params.CqOff.RingEntries]))
	r.cq.overflow = (*uint32)(unsafe.Pointer(&r.ringMem[params.CqOff.Overflow]))
	r.cq.cqes = (*[0x10000]IOUringCQE)(unsafe.Pointer(&r.ringMem[params.CqOff.Cqes]))[:params.CqEntries]

	runtime.SetFinalizer(r, func(r *Ring) { r.Close() })

	return r, nil
}

// PeekSQE returns the next free submission queue entry for the caller to
// fill, or nil if the queue is full. The caller must fill every field it
// cares about (the entry may hold stale data from a prior operation) and
// then call AdvanceSQ to publish it to the kernel.
func (r *Ring) PeekSQE() *IOUringSQE {
	q := &r.sq
	tail := atomic.LoadUint32(q.tail)
	head := atomic.LoadUint32(q.head)
	if tail-head >= q.ringEntries {
		return nil
	}
	idx := tail & q.ringMask
	sqe := &q.sqes[idx]
	*sqe = IOUringSQE{}

	arrayPtr := (*uint32)(unsafe.Pointer(uintptr(unsafe.Pointer(q.array)) + uintptr(idx)*4))
	*arrayPtr = idx

	return sqe
}

// AdvanceSQ publishes one filled SQE to the kernel.
func (r *Ring) AdvanceSQ() {
	atomic.AddUint32(r.sq.tail, 1)
}

// PendingSQEs reports entries queued but not yet submitted via Submit.
func (r *Ring) PendingSQEs() uint32 {
	return atomic.LoadUint32(r.sq.tail) - atomic.LoadUint32(r.sq.head)
}

// Submit calls io_uring_enter to hand queued SQEs to the kernel, retrying
// on EINTR. It returns the number of entries accepted.
func (r *Ring) Submit() (int, error) {
	toSubmit := r.PendingSQEs()
	if toSubmit == 0 {
		return 0, nil
	}
	for {
		submitted, errno := Enter(r.fd, toSubmit, 0, 0, nil)
		if errno == syscall.EINTR {
			continue
		}
		if errno != 0 {
			return submitted, errno
		}
		return submitted, nil
	}
}

// PeekCQE returns the oldest unconsumed completion without blocking, or nil.
// The caller must call AdvanceCQ once it has consumed the entry.
func (r *Ring) PeekCQE() *IOUringCQE {
	q := &r.cq
	head := atomic.LoadUint32(q.head)
	tail := atomic.LoadUint32(q.tail)
	if head == tail {
		return nil
	}
	return &q.cqes[head&q.ringMask]
}

// WaitCQE blocks until at least one completion is available and returns the
// oldest one. The caller must call AdvanceCQ once it has consumed the entry.
func (r *Ring) WaitCQE() (*IOUringCQE, error) {
	q := &r.cq
	head := atomic.LoadUint32(q.head)
	tail := atomic.LoadUint32(q.tail)
	for head == tail {
		_, errno := Enter(r.fd, 0, 1, IORING_ENTER_GETEVENTS, nil)
		if errno == syscall.EINTR || errno == syscall.EAGAIN {
			runtime.Gosched()
			tail = atomic.LoadUint32(q.tail)
			continue
		}
		if errno != 0 {
			return nil, errno
		}
		tail = atomic.LoadUint32(q.tail)
	}
	return &q.cqes[head&q.ringMask], nil
}

// AdvanceCQ frees the oldest completion queue slot.
func (r *Ring) AdvanceCQ() {
	atomic.AddUint32(r.cq.head, 1)
}

// Fd returns the io_uring instance's file descriptor, for registration calls.
func (r *Ring) Fd() int { return r.fd }

// Close unmaps ring memory and closes the io_uring fd. Safe to call more than once.
func (r *Ring) Close() error {
	if r == nil {
		return nil
	}
	runtime.SetFinalizer(r, nil)

	var firstErr error
	if r.ringMem != nil {
		if err := syscall.Munmap(r.ringMem); err != nil && firstErr == nil {
			firstErr = err
		}
		r.ringMem = nil
	}
	if r.sqeMem != nil {
		if err := syscall.Munmap(r.sqeMem); err != nil && firstErr == nil {
			firstErr = err
		}
		r.sqeMem = nil
	}
	if r.fd >= 0 {
		if err := syscall.Close(r.fd); err != nil && firstErr == nil {
			firstErr = err
		}
		r.fd = -1
	}
	return firstErr
}
