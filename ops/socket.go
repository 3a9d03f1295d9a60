package ops

import (
	"encoding/binary"
	"syscall"
	"unsafe"

	"github.com/oneringio/onering/internal/iouring"
)

// Connect/bind addressing here is IPv4-only: addresses are encoded as
// AF_INET sockaddrs, and no IPv6 address family or sockaddr is provided.
const (
	AFInet     = syscall.AF_INET
	SockStream = syscall.SOCK_STREAM
)

// SocketCreate opens a new socket via IORING_OP_SOCKET (Linux 5.19+).
type SocketCreate struct {
	Domain   int
	Type     int
	Protocol int
}

func (o *SocketCreate) Prep(sqe *iouring.IOUringSQE, opID uint64) {
	sqe.Opcode = iouring.IORING_OP_SOCKET
	sqe.Fd = int32(o.Domain)
	sqe.Off = uint64(o.Type)
	sqe.Len = uint32(o.Protocol)
	sqe.UserData = opID
}

func (o *SocketCreate) IsError(cqe *iouring.IOUringCQE) bool { return negativeResult(cqe) }

func (o *SocketCreate) Extract(cqe *iouring.IOUringCQE) (Result, error) {
	return FDResult{FD: int(cqe.Res)}, nil
}

// sockaddrIn builds a raw struct sockaddr_in for an IPv4 host:port pair.
func sockaddrIn(ip [4]byte, port uint16) iouring.SockaddrIn {
	var sa iouring.SockaddrIn
	sa.Family = syscall.AF_INET
	binary.BigEndian.PutUint16(sa.Port[:], port)
	sa.Addr = ip
	return sa
}

// SocketBind binds FD to Host:Port via IORING_OP_BIND (Linux 6.11+).
type SocketBind struct {
	FD   int
	Host [4]byte
	Port uint16

	addr iouring.SockaddrIn
}

func (o *SocketBind) Prep(sqe *iouring.IOUringSQE, opID uint64) {
	o.addr = sockaddrIn(o.Host, o.Port)
	sqe.Opcode = iouring.IORING_OP_BIND
	sqe.Fd = int32(o.FD)
	sqe.Addr = uint64(uintptr(unsafe.Pointer(&o.addr)))
	sqe.Len = uint32(unsafe.Sizeof(o.addr))
	sqe.UserData = opID
}

func (o *SocketBind) IsError(cqe *iouring.IOUringCQE) bool { return negativeResult(cqe) }

func (o *SocketBind) Extract(cqe *iouring.IOUringCQE) (Result, error) {
	return VoidResult{}, nil
}

// SocketListen marks FD as a listening socket via IORING_OP_LISTEN (Linux 6.11+).
type SocketListen struct {
	FD      int
	Backlog int
}

func (o *SocketListen) Prep(sqe *iouring.IOUringSQE, opID uint64) {
	sqe.Opcode = iouring.IORING_OP_LISTEN
	sqe.Fd = int32(o.FD)
	sqe.Len = uint32(o.Backlog)
	sqe.UserData = opID
}

func (o *SocketListen) IsError(cqe *iouring.IOUringCQE) bool { return negativeResult(cqe) }

func (o *SocketListen) Extract(cqe *iouring.IOUringCQE) (Result, error) {
	return VoidResult{}, nil
}

// SocketAccept accepts a connection on FD via IORING_OP_ACCEPT.
type SocketAccept struct {
	FD int

	addr    iouring.SockaddrIn
	addrLen uint32
}

func (o *SocketAccept) Prep(sqe *iouring.IOUringSQE, opID uint64) {
	o.addrLen = uint32(unsafe.Sizeof(o.addr))
	sqe.Opcode = iouring.IORING_OP_ACCEPT
	sqe.Fd = int32(o.FD)
	sqe.Addr = uint64(uintptr(unsafe.Pointer(&o.addr)))
	sqe.Off = uint64(uintptr(unsafe.Pointer(&o.addrLen)))
	sqe.UserData = opID
}

func (o *SocketAccept) IsError(cqe *iouring.IOUringCQE) bool { return negativeResult(cqe) }

func (o *SocketAccept) Extract(cqe *iouring.IOUringCQE) (Result, error) {
	return FDResult{FD: int(cqe.Res)}, nil
}

// RemoteAddr returns the accepted peer's address, valid after Extract runs.
func (o *SocketAccept) RemoteAddr() (ip [4]byte, port uint16) {
	port = binary.BigEndian.Uint16(o.addr.Port[:])
	return o.addr.Addr, port
}

// SocketConnect connects FD to Host:Port via IORING_OP_CONNECT.
type SocketConnect struct {
	FD   int
	Host [4]byte
	Port uint16

	addr iouring.SockaddrIn
}

func (o *SocketConnect) Prep(sqe *iouring.IOUringSQE, opID uint64) {
	o.addr = sockaddrIn(o.Host, o.Port)
	sqe.Opcode = iouring.IORING_OP_CONNECT
	sqe.Fd = int32(o.FD)
	sqe.Addr = uint64(uintptr(unsafe.Pointer(&o.addr)))
	sqe.Off = uint64(unsafe.Sizeof(o.addr))
	sqe.UserData = opID
}

func (o *SocketConnect) IsError(cqe *iouring.IOUringCQE) bool { return negativeResult(cqe) }

func (o *SocketConnect) Extract(cqe *iouring.IOUringCQE) (Result, error) {
	return VoidResult{}, nil
}

// SocketRecv reads up to Size bytes from FD via IORING_OP_RECV.
type SocketRecv struct {
	FD   int
	Size int

	buf []byte
}

func (o *SocketRecv) Prep(sqe *iouring.IOUringSQE, opID uint64) {
	o.buf = Buffers.Get(o.Size)
	sqe.Opcode = iouring.IORING_OP_RECV
	sqe.Fd = int32(o.FD)
	sqe.Addr = uint64(uintptr(unsafe.Pointer(&o.buf[0])))
	sqe.Len = uint32(o.Size)
	sqe.UserData = opID
}

func (o *SocketRecv) IsError(cqe *iouring.IOUringCQE) bool { return negativeResult(cqe) }

func (o *SocketRecv) Extract(cqe *iouring.IOUringCQE) (Result, error) {
	n := int(cqe.Res)
	return BytesResult{Buf: o.buf[:n], N: n}, nil
}

// Release returns the receive buffer to the pool.
func (o *SocketRecv) Release() {
	if o.buf != nil {
		Buffers.Put(o.buf)
		o.buf = nil
	}
}

// SocketSend writes Data to FD via IORING_OP_SEND.
type SocketSend struct {
	FD   int
	Data []byte
}

func (o *SocketSend) Prep(sqe *iouring.IOUringSQE, opID uint64) {
	sqe.Opcode = iouring.IORING_OP_SEND
	sqe.Fd = int32(o.FD)
	if len(o.Data) > 0 {
		sqe.Addr = uint64(uintptr(unsafe.Pointer(&o.Data[0])))
	}
	sqe.Len = uint32(len(o.Data))
	sqe.UserData = opID
}

func (o *SocketSend) IsError(cqe *iouring.IOUringCQE) bool { return negativeResult(cqe) }

func (o *SocketSend) Extract(cqe *iouring.IOUringCQE) (Result, error) {
	return IntResult{N: int(cqe.Res)}, nil
}

// SetSockOpt is a synchronous, non-ring syscall (io_uring has no SETSOCKOPT
// opcode); it's here rather than under package onering because it operates
// on the same raw fd the other socket Operations do.
func SetSockOpt(fd, level, opt int, value int) error {
	return syscall.SetsockoptInt(fd, level, opt, value)
}
