package sched

import (
	"runtime"
	"testing"

	"github.com/oneringio/onering/internal/iouring"
	"github.com/stretchr/testify/require"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("io_uring is linux-only")
	}
	l, err := NewLoop(iouring.DefaultConfig())
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRunUntilCompleteSimple(t *testing.T) {
	l := newTestLoop(t)
	id := l.Spawn(func(y *Yield) (any, error) {
		return 42, nil
	})
	v, err := l.RunUntilComplete(id)
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestCheckpointThenFinish(t *testing.T) {
	l := newTestLoop(t)
	id := l.Spawn(func(y *Yield) (any, error) {
		if err := y.Checkpoint(); err != nil {
			return nil, err
		}
		return "done", nil
	})
	v, err := l.RunUntilComplete(id)
	require.NoError(t, err)
	require.Equal(t, "done", v)
}

func TestWaitOnChildTask(t *testing.T) {
	l := newTestLoop(t)
	var childID TaskID
	parent := l.Spawn(func(y *Yield) (any, error) {
		childID = l.Spawn(func(y *Yield) (any, error) {
			return "child-result", nil
		})
		if err := WaitOn(y, childID); err != nil {
			return nil, err
		}
		child, _ := l.Task(childID)
		v, _ := child.Result()
		return v, nil
	})
	v, err := l.RunUntilComplete(parent)
	require.NoError(t, err)
	require.Equal(t, "child-result", v)
}

func TestParkAndUnpark(t *testing.T) {
	l := newTestLoop(t)
	var parkedID TaskID
	parked := l.Spawn(func(y *Yield) (any, error) {
		if err := y.ParkSelf(); err != nil {
			return nil, err
		}
		return "woke", nil
	})
	parkedID = parked

	unparker := l.Spawn(func(y *Yield) (any, error) {
		if err := y.Checkpoint(); err != nil {
			return nil, err
		}
		if err := y.UnparkTask(parkedID); err != nil {
			return nil, err
		}
		return nil, nil
	})

	v, err := l.RunUntilComplete(parked)
	require.NoError(t, err)
	require.Equal(t, "woke", v)
	_, err = l.RunUntilComplete(unparker)
	require.NoError(t, err)
}

func TestTaskGroupAggregatesErrors(t *testing.T) {
	l := newTestLoop(t)
	boom := assertError("boom")
	root := l.Spawn(func(y *Yield) (any, error) {
		g := NewTaskGroup(y, false)
		g.CreateTask(func(y *Yield) (any, error) { return nil, boom })
		g.CreateTask(func(y *Yield) (any, error) { return "ok", nil })
		return nil, g.Wait(y)
	})
	_, err := l.RunUntilComplete(root)
	require.ErrorIs(t, err, boom)
}

type assertError string

func (e assertError) Error() string { return string(e) }
