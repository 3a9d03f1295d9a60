package syncx

import (
	"runtime"
	"testing"

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

func TestEventWaitThenSet(t *testing.T) {
	l := newTestLoop(t)
	ev := NewEvent()

	waiter := l.Spawn(func(y *sched.Yield) (any, error) {
		if err := ev.Wait(y); err != nil {
			return nil, err
		}
		return "saw-it", nil
	})
	setter := l.Spawn(func(y *sched.Yield) (any, error) {
		if err := y.Checkpoint(); err != nil {
			return nil, err
		}
		return nil, ev.Set(y)
	})

	v, err := l.RunUntilComplete(waiter)
	require.NoError(t, err)
	require.Equal(t, "saw-it", v)
	_, err = l.RunUntilComplete(setter)
	require.NoError(t, err)
}

func TestLockMutualExclusion(t *testing.T) {
	l := newTestLoop(t)
	lock := NewLock()
	var order []string

	holder := l.Spawn(func(y *sched.Yield) (any, error) {
		if err := lock.Acquire(y); err != nil {
			return nil, err
		}
		order = append(order, "holder-acquired")
		if err := y.Checkpoint(); err != nil {
			return nil, err
		}
		order = append(order, "holder-released")
		return nil, lock.Release(y)
	})

	waiter := l.Spawn(func(y *sched.Yield) (any, error) {
		// Tasks do not start in spawn order; this checkpoint lets the
		// holder acquire the lock first.
		if err := y.Checkpoint(); err != nil {
			return nil, err
		}
		if err := lock.Acquire(y); err != nil {
			return nil, err
		}
		order = append(order, "waiter-acquired")
		return nil, lock.Release(y)
	})

	_, err := l.RunUntilComplete(waiter)
	require.NoError(t, err)
	_, err = l.RunUntilComplete(holder)
	require.NoError(t, err)

	require.Equal(t, []string{"holder-acquired", "holder-released", "waiter-acquired"}, order)
}

func TestLockReleaseByNonOwnerIsRuntimeError(t *testing.T) {
	l := newTestLoop(t)
	lock := NewLock()

	owner := l.Spawn(func(y *sched.Yield) (any, error) {
		return nil, lock.Acquire(y)
	})
	_, err := l.RunUntilComplete(owner)
	require.NoError(t, err)

	intruder := l.Spawn(func(y *sched.Yield) (any, error) {
		return nil, lock.Release(y)
	})
	_, err = l.RunUntilComplete(intruder)
	require.Error(t, err)
	var rtErr *RuntimeError
	require.ErrorAs(t, err, &rtErr)
}

func TestLockReleaseUnheldIsRuntimeError(t *testing.T) {
	l := newTestLoop(t)
	lock := NewLock()

	task := l.Spawn(func(y *sched.Yield) (any, error) {
		return nil, lock.Release(y)
	})
	_, err := l.RunUntilComplete(task)
	require.Error(t, err)
	var rtErr *RuntimeError
	require.ErrorAs(t, err, &rtErr)
}

func TestSemaphoreReleaseBeyondInitialIsRuntimeError(t *testing.T) {
	l := newTestLoop(t)
	sem := NewSemaphore(1)

	task := l.Spawn(func(y *sched.Yield) (any, error) {
		if err := sem.Acquire(y); err != nil {
			return nil, err
		}
		if err := sem.Release(y); err != nil {
			return nil, err
		}
		// Nothing outstanding now (count is back at its ceiling) — a
		// further Release has nothing left to give back.
		return nil, sem.Release(y)
	})
	_, err := l.RunUntilComplete(task)
	require.Error(t, err)
	var rtErr *RuntimeError
	require.ErrorAs(t, err, &rtErr)
}
