package iouring

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("io_uring is linux-only")
	}
	r, err := New(8)
	if err != nil {
		t.Skipf("io_uring unavailable in this environment: %v", err)
	}
	defer r.Close()

	sqe := r.PeekSQE()
	require.NotNil(t, sqe)
	sqe.Opcode = IORING_OP_NOP
	sqe.UserData = 42
	r.AdvanceSQ()

	n, err := r.Submit()
	require.NoError(t, err)
	require.Equal(t, 1, n)

	cqe, err := r.WaitCQE()
	require.NoError(t, err)
	require.Equal(t, uint64(42), cqe.UserData)
	r.AdvanceCQ()
}

func TestPeekSQEFull(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("io_uring is linux-only")
	}
	r, err := New(2)
	if err != nil {
		t.Skipf("io_uring unavailable in this environment: %v", err)
	}
	defer r.Close()

	for i := 0; i < 2; i++ {
		sqe := r.PeekSQE()
		require.NotNil(t, sqe)
		sqe.Opcode = IORING_OP_NOP
		r.AdvanceSQ()
	}
	require.Nil(t, r.PeekSQE())
}
