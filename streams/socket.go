package streams

import (
	"sync"

	"github.com/oneringio/onering/ops"
	"github.com/oneringio/onering/sched"
)

// Connection wraps a raw socket fd with Read/Write/Close driven through
// io_uring operations. It plays the role netx.Conn's Reader()/Writer()
// split played for the teacher's synchronous net.Conn wrapper, adapted to
// asynchronous recv/send completions and a close-once guard lifted from
// connstate's conn.go.
type Connection struct {
	fd int

	closeOnce sync.Once
	closeErr  error
}

// NewConnection wraps an already-open, connected socket fd.
func NewConnection(fd int) *Connection {
	return &Connection{fd: fd}
}

// FD returns the underlying file descriptor.
func (c *Connection) FD() int { return c.fd }

// Read receives up to len(buf) bytes, returning the number of bytes placed
// into buf. Read itself returns whatever the kernel reports, including
// (0, nil) for a 0-byte successful recv that means the peer closed; only
// the buffered reader layered on top turns that into ErrEndOfStream.
func (c *Connection) Read(y *sched.Yield, buf []byte) (int, error) {
	op := &ops.SocketRecv{FD: c.fd, Size: len(buf)}
	res, err := y.DoIO(op)
	if err != nil {
		return 0, err
	}
	br := res.(ops.BytesResult)
	n := copy(buf, br.Buf)
	op.Release()
	return n, nil
}

// Write sends all of data, looping over short sends the way the teacher's
// userdata.go looped a partial writev via AdvanceWrite.
func (c *Connection) Write(y *sched.Yield, data []byte) (int, error) {
	total := 0
	for total < len(data) {
		op := &ops.SocketSend{FD: c.fd, Data: data[total:]}
		res, err := y.DoIO(op)
		if err != nil {
			return total, err
		}
		ir := res.(ops.IntResult)
		if ir.N <= 0 {
			return total, ErrBrokenResource
		}
		total += ir.N
	}
	return total, nil
}

// Close closes the underlying fd via io_uring. Safe to call more than once;
// only the first call does anything.
func (c *Connection) Close(y *sched.Yield) error {
	c.closeOnce.Do(func() {
		_, c.closeErr = y.DoIO(&ops.FileClose{FD: c.fd})
	})
	return c.closeErr
}
