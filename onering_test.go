package onering

import (
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/oneringio/onering/internal/iouring"
	"github.com/oneringio/onering/sched"
	"github.com/stretchr/testify/require"
)

func skipUnlessIOUring(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("io_uring is linux-only")
	}
	w, err := iouring.New(iouring.DefaultConfig().QueueDepth)
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	_ = w.Close()
}

func TestFileWriteReadRoundTrip(t *testing.T) {
	skipUnlessIOUring(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "roundtrip.txt")

	_, err := Run(func(y *sched.Yield) (any, error) {
		f, err := OpenFile(y, path, "wc")
		if err != nil {
			return nil, err
		}
		if _, err := f.Write(y, 0, []byte("hello, onering")); err != nil {
			return nil, err
		}
		return nil, f.Close(y)
	})
	require.NoError(t, err)

	_, err = Run(func(y *sched.Yield) (any, error) {
		f, err := OpenFile(y, path, "r")
		if err != nil {
			return nil, err
		}
		data, err := f.Read(y, 0, 0)
		if err != nil {
			return nil, err
		}
		require.Equal(t, "hello, onering", string(data))
		return nil, f.Close(y)
	})
	require.NoError(t, err)
}

func TestOpenFileRejectsInvalidMode(t *testing.T) {
	skipUnlessIOUring(t)
	_, err := Run(func(y *sched.Yield) (any, error) {
		_, err := OpenFile(y, "/nonexistent/path", "x")
		return nil, err
	})
	require.Error(t, err)
}

func TestSleepZeroCollapsesToCheckpoint(t *testing.T) {
	skipUnlessIOUring(t)
	v, err := Run(func(y *sched.Yield) (any, error) {
		if err := Sleep(y, 0); err != nil {
			return nil, err
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", v)
}

func TestSleepBlocksForAtLeastDuration(t *testing.T) {
	skipUnlessIOUring(t)
	start := time.Now()
	_, err := Run(func(y *sched.Yield) (any, error) {
		return nil, Sleep(y, 20*time.Millisecond)
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestServerAcceptConnectEcho(t *testing.T) {
	skipUnlessIOUring(t)
	const port = 18734

	_, err := Run(func(y *sched.Yield) (any, error) {
		srv, err := CreateServer(y, [4]byte{127, 0, 0, 1}, port)
		if err != nil {
			return nil, err
		}
		defer srv.Close(y)

		g := sched.NewTaskGroup(y, false)
		g.CreateTask(func(y *sched.Yield) (any, error) {
			conn, err := srv.Accept(y)
			if err != nil {
				return nil, err
			}
			defer conn.Close(y)
			buf := make([]byte, 5)
			n, err := conn.Read(y, buf)
			if err != nil {
				return nil, err
			}
			_, err = conn.Write(y, buf[:n])
			return nil, err
		})
		g.CreateTask(func(y *sched.Yield) (any, error) {
			conn, err := Connect(y, [4]byte{127, 0, 0, 1}, port)
			if err != nil {
				return nil, err
			}
			defer conn.Close(y)
			if _, err := conn.Write(y, []byte("hello")); err != nil {
				return nil, err
			}
			buf := make([]byte, 5)
			n, err := conn.Read(y, buf)
			if err != nil {
				return nil, err
			}
			require.Equal(t, "hello", string(buf[:n]))
			return nil, nil
		})
		return nil, g.Wait(y)
	})
	require.NoError(t, err)
}
