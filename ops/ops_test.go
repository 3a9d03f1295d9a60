package ops

import (
	"syscall"
	"testing"

	"github.com/oneringio/onering/internal/iouring"
	"github.com/stretchr/testify/require"
)

func TestFileReadPrepExtract(t *testing.T) {
	op := &FileRead{FD: 3, Offset: 0, Size: 16}
	var sqe iouring.IOUringSQE
	op.Prep(&sqe, 7)
	require.Equal(t, uint8(iouring.IORING_OP_READ), sqe.Opcode)
	require.Equal(t, int32(3), sqe.Fd)
	require.Equal(t, uint64(7), sqe.UserData)

	cqe := &iouring.IOUringCQE{UserData: 7, Res: 10}
	require.False(t, op.IsError(cqe))
	res, err := op.Extract(cqe)
	require.NoError(t, err)
	br := res.(BytesResult)
	require.Equal(t, 10, br.N)
	require.Len(t, br.Buf, 10)
	op.Release()
}

func TestFileReadError(t *testing.T) {
	op := &FileRead{FD: 3, Size: 16}
	var sqe iouring.IOUringSQE
	op.Prep(&sqe, 1)
	cqe := &iouring.IOUringCQE{Res: -2} // -ENOENT
	require.True(t, op.IsError(cqe))
	op.Release()
}

func TestSleepTreatsETimeAsSuccess(t *testing.T) {
	op := &Sleep{Duration: 0}
	cqe := &iouring.IOUringCQE{Res: -errETIME}
	require.False(t, op.IsError(cqe))
}

func TestSocketConnectPrep(t *testing.T) {
	op := &SocketConnect{FD: 5, Host: [4]byte{127, 0, 0, 1}, Port: 8080}
	var sqe iouring.IOUringSQE
	op.Prep(&sqe, 3)
	require.Equal(t, uint8(iouring.IORING_OP_CONNECT), sqe.Opcode)
	require.NotZero(t, sqe.Addr)
}

func TestBufferPoolRoundTrip(t *testing.T) {
	buf := Buffers.Get(100)
	require.Len(t, buf, 100)
	Buffers.Put(buf)
	buf2 := Buffers.Get(100)
	require.Len(t, buf2, 100)
}

func TestOSErrorUnwrap(t *testing.T) {
	err := NewOSError("read", -2)
	require.Contains(t, err.Error(), "read")
	require.ErrorIs(t, err, syscall.ENOENT)
}
