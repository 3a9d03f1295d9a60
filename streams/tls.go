package streams

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/oneringio/onering/sched"
)

// yieldConn adapts a *Connection plus the currently-running task's *Yield
// into a synchronous net.Conn, so crypto/tls's handshake state machine —
// which only knows how to talk to net.Conn — can drive our async socket.
// Read/Write still yield control to the Loop exactly as a direct Connection
// call would; from the tls package's point of view that's indistinguishable
// from a blocking syscall.
type yieldConn struct {
	conn *Connection
	y    *sched.Yield
}

func (c *yieldConn) Read(b []byte) (int, error)  { return c.conn.Read(c.y, b) }
func (c *yieldConn) Write(b []byte) (int, error) { return c.conn.Write(c.y, b) }
func (c *yieldConn) Close() error                { return c.conn.Close(c.y) }

func (c *yieldConn) LocalAddr() net.Addr  { return tlsAddr{} }
func (c *yieldConn) RemoteAddr() net.Addr { return tlsAddr{} }

// Deadlines are out of scope for the adapter: timing a TLS handshake or
// exchange is the caller's job, via sched.FailAfter wrapped around the call.
func (c *yieldConn) SetDeadline(time.Time) error      { return nil }
func (c *yieldConn) SetReadDeadline(time.Time) error   { return nil }
func (c *yieldConn) SetWriteDeadline(time.Time) error { return nil }

type tlsAddr struct{}

func (tlsAddr) Network() string { return "io_uring" }
func (tlsAddr) String() string  { return "io_uring-socket" }

// TLSStream wraps a Connection with TLS using the stdlib crypto/tls state
// machine, driven through yieldConn so every handshake record still goes
// through io_uring. Shutdown under a shielded cancel scope is the caller's
// responsibility (wrap Close in a shielded CancelScope to guarantee the
// close_notify alert is sent even if the owning task is being cancelled),
// matching the original implementation's shutdown-under-shield behavior.
type TLSStream struct {
	raw    *Connection
	tlsCfg *tls.Config
	conn   *tls.Conn
	state  tlsState
}

// tlsState tracks where in its lifecycle a TLSStream is, the Go stand-in for
// the original's implicit handshake/shutdown bookkeeping: a fresh stream is
// Idle, Handshake moves it to Handshaking and then Established on success (or
// straight to Closed on failure — a failed handshake leaves the connection
// unusable), and Close moves it to Closed from any state. Handshake, Read
// and Write after Closed report ErrClosedResource instead of handing a dead
// *tls.Conn to crypto/tls; Close after Closed returns nil.
type tlsState int

const (
	tlsIdle tlsState = iota
	tlsHandshaking
	tlsEstablished
	tlsClosed
)

// NewTLSClientStream prepares a TLS stream over conn. It is identical to
// NewTLSServerStream: which side of the handshake is played is chosen by
// the server argument of Handshake.
func NewTLSClientStream(conn *Connection, cfg *tls.Config) *TLSStream {
	return &TLSStream{raw: conn, tlsCfg: cfg}
}

// NewTLSServerStream prepares a TLS stream over conn. It is identical to
// NewTLSClientStream: which side of the handshake is played is chosen by
// the server argument of Handshake.
func NewTLSServerStream(conn *Connection, cfg *tls.Config) *TLSStream {
	return &TLSStream{raw: conn, tlsCfg: cfg}
}

// Handshake performs the TLS handshake, driving all record I/O through the
// scheduler via y.
func (t *TLSStream) Handshake(y *sched.Yield, server bool) error {
	if t.state == tlsClosed {
		return ErrClosedResource
	}
	t.state = tlsHandshaking
	yc := &yieldConn{conn: t.raw, y: y}
	if server {
		t.conn = tls.Server(yc, t.tlsCfg)
	} else {
		t.conn = tls.Client(yc, t.tlsCfg)
	}
	if err := t.conn.HandshakeContext(ioCtx{}); err != nil {
		t.state = tlsClosed
		return err
	}
	t.state = tlsEstablished
	return nil
}

// Read reads decrypted application data.
func (t *TLSStream) Read(y *sched.Yield, buf []byte) (int, error) {
	if t.state == tlsClosed {
		return 0, ErrClosedResource
	}
	t.conn.NetConn().(*yieldConn).y = y
	return t.conn.Read(buf)
}

// Write encrypts and writes application data.
func (t *TLSStream) Write(y *sched.Yield, data []byte) (int, error) {
	if t.state == tlsClosed {
		return 0, ErrClosedResource
	}
	t.conn.NetConn().(*yieldConn).y = y
	return t.conn.Write(data)
}

// Close sends close_notify and closes the underlying connection. Callers
// that want the alert to survive a cancellation racing the close should
// wrap this call in a shielded CancelScope. Safe to call more than once;
// only the first call touches the underlying *tls.Conn.
func (t *TLSStream) Close(y *sched.Yield) error {
	if t.state == tlsClosed {
		return nil
	}
	t.state = tlsClosed
	if t.conn == nil {
		return t.raw.Close(y)
	}
	t.conn.NetConn().(*yieldConn).y = y
	return t.conn.Close()
}

// ConnectionState exposes the negotiated TLS parameters after Handshake.
func (t *TLSStream) ConnectionState() tls.ConnectionState {
	return t.conn.ConnectionState()
}

// ioCtx is an always-done-never context.Context substitute is wrong for
// HandshakeContext's cancellation semantics, so instead we hand it a
// background-equivalent context: cancellation of the handshake is handled
// at our layer (the caller's task being cancelled interrupts the blocking
// Read/Write inside yieldConn, which returns the task's *Cancelled error
// up through tls's handshake code as an ordinary I/O error).
type ioCtx struct{}

func (ioCtx) Deadline() (time.Time, bool) { return time.Time{}, false }
func (ioCtx) Done() <-chan struct{}       { return nil }
func (ioCtx) Err() error                  { return nil }
func (ioCtx) Value(any) any               { return nil }
