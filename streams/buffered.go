package streams

import (
	"bytes"

	"github.com/oneringio/onering/sched"
)

// ByteSource is anything a BufferedByteReceiveStream can pull more bytes
// from — satisfied by *Connection and by the plaintext side of a TLS
// stream.
type ByteSource interface {
	Read(y *sched.Yield, buf []byte) (int, error)
}

const fillChunkSize = 8 * 1024

// BufferedByteReceiveStream adds line/delimiter/exact-length reads over a
// raw ByteSource, the same contract the original BufferedByteReceiveStream
// offered over its underlying receive stream; the grow-by-chunk buffering
// strategy is adapted from the teacher's DefaultReader.acquire.
type BufferedByteReceiveStream struct {
	src ByteSource
	buf []byte
}

// NewBufferedByteReceiveStream wraps src with buffering.
func NewBufferedByteReceiveStream(src ByteSource) *BufferedByteReceiveStream {
	return &BufferedByteReceiveStream{src: src}
}

// Buffer returns the bytes currently buffered but not yet consumed.
func (b *BufferedByteReceiveStream) Buffer() []byte { return b.buf }

func (b *BufferedByteReceiveStream) fill(y *sched.Yield) error {
	chunk := make([]byte, fillChunkSize)
	n, err := b.src.Read(y, chunk)
	if n > 0 {
		b.buf = append(b.buf, chunk[:n]...)
	}
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrEndOfStream
	}
	return nil
}

// Receive returns whatever is currently buffered, reading at least one more
// chunk first if the buffer is empty. If max > 0, the returned slice is
// capped to max bytes (the remainder stays buffered for the next call).
func (b *BufferedByteReceiveStream) Receive(y *sched.Yield, max int) ([]byte, error) {
	if len(b.buf) == 0 {
		if err := b.fill(y); err != nil {
			return nil, err
		}
	}
	n := len(b.buf)
	if max > 0 && max < n {
		n = max
	}
	out := b.buf[:n]
	b.buf = b.buf[n:]
	return out, nil
}

// ReceiveExactly blocks until exactly n bytes are available and returns
// them, or ErrEndOfStream if the source closes first.
func (b *BufferedByteReceiveStream) ReceiveExactly(y *sched.Yield, n int) ([]byte, error) {
	for len(b.buf) < n {
		if err := b.fill(y); err != nil {
			return nil, err
		}
	}
	out := append([]byte(nil), b.buf[:n]...)
	b.buf = b.buf[n:]
	return out, nil
}

// ReceiveUntil blocks until the (possibly multi-byte) delim sequence is
// seen and returns everything before it (delim itself is consumed but not
// returned) — the same `buffer.split(delimiter, 1)` contract the original
// receive_until used, which is why this takes a []byte rather than a
// single byte: a one-byte delimiter can't express "\r\n" framing. maxBytes,
// if positive, bounds how much will be buffered looking for the delimiter
// before giving up with a *DelimiterNotFound — protecting against an
// unbounded line from an adversarial or broken peer.
func (b *BufferedByteReceiveStream) ReceiveUntil(y *sched.Yield, delim []byte, maxBytes int) ([]byte, error) {
	for {
		if idx := bytes.Index(b.buf, delim); idx >= 0 {
			out := append([]byte(nil), b.buf[:idx]...)
			b.buf = b.buf[idx+len(delim):]
			return out, nil
		}
		if maxBytes > 0 && len(b.buf) >= maxBytes {
			return nil, &DelimiterNotFound{MaxBytes: maxBytes}
		}
		if err := b.fill(y); err != nil {
			return nil, err
		}
	}
}

// ByteSink is the write/close half of whatever a BufferedByteStream forwards
// sends and closes to — satisfied by *Connection and *TLSStream.
type ByteSink interface {
	Write(y *sched.Yield, data []byte) (int, error)
	Close(y *sched.Yield) error
}

// Duplex is a ByteSource that is also a ByteSink — the shape
// NewBufferedByteStream needs, and the one both *Connection and *TLSStream
// already satisfy.
type Duplex interface {
	ByteSource
	ByteSink
}

// BufferedByteStream adds a forwarded send side to BufferedByteReceiveStream
// — the Go counterpart of the original BufferedByteStream dataclass, which
// subclassed BufferedByteReceiveStream and added a send_stream field that
// Send forwarded to directly (no buffering on the write side) and that
// close() closed alongside the receive side.
type BufferedByteStream struct {
	*BufferedByteReceiveStream
	sink ByteSink
}

// NewBufferedByteStream wraps conn with receive-side buffering; sends and
// closes go straight through to conn, unbuffered.
func NewBufferedByteStream(conn Duplex) *BufferedByteStream {
	return &BufferedByteStream{
		BufferedByteReceiveStream: NewBufferedByteReceiveStream(conn),
		sink:                      conn,
	}
}

// Send writes data straight to the underlying duplex, bypassing the receive
// buffer entirely (there is nothing to buffer on the write side).
func (b *BufferedByteStream) Send(y *sched.Yield, data []byte) (int, error) {
	return b.sink.Write(y, data)
}

// Close closes the underlying duplex. Unlike the original, where the receive
// and send streams could in principle be independent objects, here they are
// always the same connection, so there is only ever the one Close to forward.
func (b *BufferedByteStream) Close(y *sched.Yield) error {
	return b.sink.Close(y)
}
