package streams

import (
	"runtime"
	"testing"
	"time"

	"github.com/oneringio/onering/internal/iouring"
	"github.com/oneringio/onering/sched"
	"github.com/stretchr/testify/require"
)

func newTestLoop(t *testing.T) *sched.Loop {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("io_uring is linux-only")
	}
	l, err := sched.NewLoop(iouring.DefaultConfig())
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestMemoryStreamSendReceive(t *testing.T) {
	l := newTestLoop(t)
	send, recv := NewMemoryObjectStream[int](1)

	receiver := l.Spawn(func(y *sched.Yield) (any, error) {
		v, err := recv.Receive(y)
		if err != nil {
			return nil, err
		}
		return v, nil
	})

	sender := l.Spawn(func(y *sched.Yield) (any, error) {
		return nil, send.Send(y, 42)
	})

	_, err := l.RunUntilComplete(sender)
	require.NoError(t, err)
	v, err := l.RunUntilComplete(receiver)
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestMemoryStreamEndOfStreamAfterClose(t *testing.T) {
	l := newTestLoop(t)
	send, recv := NewMemoryObjectStream[string](1)

	receiver := l.Spawn(func(y *sched.Yield) (any, error) {
		_, err := recv.Receive(y)
		return nil, err
	})

	closer := l.Spawn(func(y *sched.Yield) (any, error) {
		if err := y.Checkpoint(); err != nil {
			return nil, err
		}
		return nil, send.Close(y)
	})

	_, err := l.RunUntilComplete(receiver)
	require.ErrorIs(t, err, ErrEndOfStream)
	_, err = l.RunUntilComplete(closer)
	require.NoError(t, err)
}

func TestMemoryStreamBrokenResourceAfterReceiverGone(t *testing.T) {
	l := newTestLoop(t)
	send, recv := NewMemoryObjectStream[int](1)

	closer := l.Spawn(func(y *sched.Yield) (any, error) {
		return nil, recv.Close(y)
	})
	_, err := l.RunUntilComplete(closer)
	require.NoError(t, err)

	sender := l.Spawn(func(y *sched.Yield) (any, error) {
		return nil, send.Send(y, 7)
	})
	_, err = l.RunUntilComplete(sender)
	require.ErrorIs(t, err, ErrBrokenResource)
}

func TestMemoryStreamRendezvousHandoff(t *testing.T) {
	l := newTestLoop(t)
	send, recv := NewMemoryObjectStream[int](0)
	var order []string

	// The sender is spawned first, but start order is not defined: whichever
	// side starts first parks until the other shows up — with the
	// capacity-0 bug, neither side would ever wake the other.
	sender := l.Spawn(func(y *sched.Yield) (any, error) {
		order = append(order, "send-start")
		err := send.Send(y, 99)
		order = append(order, "send-done")
		return nil, err
	})
	receiver := l.Spawn(func(y *sched.Yield) (any, error) {
		order = append(order, "recv-start")
		v, err := recv.Receive(y)
		order = append(order, "recv-done")
		return v, err
	})

	done := make(chan struct{})
	go func() {
		_, err := l.RunUntilComplete(sender)
		require.NoError(t, err)
		v, err := l.RunUntilComplete(receiver)
		require.NoError(t, err)
		require.Equal(t, 99, v)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("rendezvous handoff deadlocked")
	}
	require.Contains(t, order, "send-start")
	require.Contains(t, order, "recv-done")
}

func TestMemoryStreamUnboundedNeverBlocksOnRoom(t *testing.T) {
	l := newTestLoop(t)
	send, recv := NewMemoryObjectStream[int](Unbounded)

	sender := l.Spawn(func(y *sched.Yield) (any, error) {
		for i := 0; i < 100; i++ {
			if err := send.Send(y, i); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	_, err := l.RunUntilComplete(sender)
	require.NoError(t, err)

	receiver := l.Spawn(func(y *sched.Yield) (any, error) {
		sum := 0
		for i := 0; i < 100; i++ {
			v, err := recv.Receive(y)
			if err != nil {
				return nil, err
			}
			sum += v
		}
		return sum, nil
	})
	v, err := l.RunUntilComplete(receiver)
	require.NoError(t, err)
	require.Equal(t, 4950, v)
}

// fakeSource is a ByteSource that replays a fixed sequence of chunks,
// standing in for a *Connection so BufferedByteReceiveStream can be tested
// without a real socket or io_uring ring.
type fakeSource struct {
	chunks [][]byte
	i      int
}

func (f *fakeSource) Read(y *sched.Yield, buf []byte) (int, error) {
	if f.i >= len(f.chunks) {
		return 0, nil
	}
	c := f.chunks[f.i]
	f.i++
	n := copy(buf, c)
	return n, nil
}

func TestBufferedReceiveUntilDelimiter(t *testing.T) {
	l := newTestLoop(t)
	src := &fakeSource{chunks: [][]byte{[]byte("hel"), []byte("lo\nworld")}}
	br := NewBufferedByteReceiveStream(src)

	task := l.Spawn(func(y *sched.Yield) (any, error) {
		line, err := br.ReceiveUntil(y, []byte("\n"), 0)
		if err != nil {
			return nil, err
		}
		return string(line), nil
	})

	v, err := l.RunUntilComplete(task)
	require.NoError(t, err)
	require.Equal(t, "hello", v)
	require.Equal(t, "world", string(br.Buffer()))
}

// TestBufferedReceiveUntilCRLFDelimiter covers the mandatory HTTP-header
// framing scenario: a two-byte "\r\n" delimiter split across chunk
// boundaries, each header line pulled off in turn.
func TestBufferedReceiveUntilCRLFDelimiter(t *testing.T) {
	l := newTestLoop(t)
	src := &fakeSource{chunks: [][]byte{
		[]byte("GET / HTTP/1.1\r\nhost: x\r"),
		[]byte("\n\r\n"),
	}}
	br := NewBufferedByteReceiveStream(src)

	task := l.Spawn(func(y *sched.Yield) (any, error) {
		requestLine, err := br.ReceiveUntil(y, []byte("\r\n"), 65536)
		if err != nil {
			return nil, err
		}
		header, err := br.ReceiveUntil(y, []byte("\r\n"), 65536)
		if err != nil {
			return nil, err
		}
		end, err := br.ReceiveUntil(y, []byte("\r\n"), 65536)
		if err != nil {
			return nil, err
		}
		return []string{string(requestLine), string(header), string(end)}, nil
	})

	v, err := l.RunUntilComplete(task)
	require.NoError(t, err)
	require.Equal(t, []string{"GET / HTTP/1.1", "host: x", ""}, v)
}

// TestBufferedReceiveUntilExceedsMaxBytes covers scenario 4's bound: a peer
// that never sends the delimiter within maxBytes fails with
// *DelimiterNotFound rather than buffering forever.
func TestBufferedReceiveUntilExceedsMaxBytes(t *testing.T) {
	l := newTestLoop(t)
	src := &fakeSource{chunks: [][]byte{[]byte("no newline here at all")}}
	br := NewBufferedByteReceiveStream(src)

	task := l.Spawn(func(y *sched.Yield) (any, error) {
		_, err := br.ReceiveUntil(y, []byte("\r\n"), 8)
		return nil, err
	})

	_, err := l.RunUntilComplete(task)
	var notFound *DelimiterNotFound
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, 8, notFound.MaxBytes)
}

// fakeDuplex is a Duplex that records writes and closes alongside replaying
// reads, standing in for a *Connection/*TLSStream so BufferedByteStream can
// be tested without a real socket.
type fakeDuplex struct {
	fakeSource
	written [][]byte
	closed  bool
}

func (f *fakeDuplex) Write(y *sched.Yield, data []byte) (int, error) {
	cp := append([]byte(nil), data...)
	f.written = append(f.written, cp)
	return len(data), nil
}

func (f *fakeDuplex) Close(y *sched.Yield) error {
	f.closed = true
	return nil
}

func TestBufferedByteStreamSendForwardsAndCloseForwards(t *testing.T) {
	l := newTestLoop(t)
	d := &fakeDuplex{fakeSource: fakeSource{chunks: [][]byte{[]byte("hel"), []byte("lo\n")}}}
	bs := NewBufferedByteStream(d)

	task := l.Spawn(func(y *sched.Yield) (any, error) {
		line, err := bs.ReceiveUntil(y, []byte("\n"), 0)
		if err != nil {
			return nil, err
		}
		if _, err := bs.Send(y, []byte("ack")); err != nil {
			return nil, err
		}
		return string(line), bs.Close(y)
	})

	v, err := l.RunUntilComplete(task)
	require.NoError(t, err)
	require.Equal(t, "hello", v)
	require.Equal(t, [][]byte{[]byte("ack")}, d.written)
	require.True(t, d.closed)
}

func TestBufferedReceiveExactly(t *testing.T) {
	l := newTestLoop(t)
	src := &fakeSource{chunks: [][]byte{[]byte("ab"), []byte("cde")}}
	br := NewBufferedByteReceiveStream(src)

	task := l.Spawn(func(y *sched.Yield) (any, error) {
		got, err := br.ReceiveExactly(y, 4)
		if err != nil {
			return nil, err
		}
		return string(got), nil
	})

	v, err := l.RunUntilComplete(task)
	require.NoError(t, err)
	require.Equal(t, "abcd", v)
}
