package ioworker

import (
	"runtime"
	"testing"

	"github.com/oneringio/onering/internal/iouring"
	"github.com/oneringio/onering/ops"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("io_uring is linux-only")
	}
	w, err := New(iouring.DefaultConfig())
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestRegisterSubmitWait(t *testing.T) {
	w := newTestWorker(t)

	opID, err := w.Register(&ops.Nop{})
	require.NoError(t, err)

	n, err := w.Submit()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	c, err := w.Wait()
	require.NoError(t, err)
	require.Equal(t, opID, c.OpID)
	require.NoError(t, c.Err)
}

func TestUnknownCompletionDoesNotPanic(t *testing.T) {
	w := newTestWorker(t)
	cqe := &iouring.IOUringCQE{UserData: 999}
	c := w.resolve(cqe)
	require.Error(t, c.Err)
}
