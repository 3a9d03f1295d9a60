package sched

import (
	"errors"
	"time"

	"github.com/oneringio/onering/ops"
)

// ErrDeadlineExceeded is the error FailAfter returns when its deadline
// elapses before body finishes.
var ErrDeadlineExceeded = errors.New("sched: deadline exceeded")

// raceAgainstTimer spawns body under a fresh scope and a sibling timer task
// under a scope of its own: if the timer fires first it cancels body's
// scope, which delivers a Cancelled to body at its next checkpoint. Either
// way, once body has
// finished the timer's own scope is cancelled too, so it doesn't linger as
// a dangling task holding a ring slot — per the documented decision not to
// leak the background timer the way a naive port of the original context
// manager would.
func raceAgainstTimer(y *Yield, d time.Duration, shield bool, body Body) (result any, bodyErr error, timedOut bool, callerErr error) {
	l := y.loop
	scope := NewCancelScope(shield)
	timerScope := NewCancelScope(false)

	bodyID := l.Spawn(body)
	if t, ok := l.Task(bodyID); ok {
		t.pushScope(scope)
	}

	timerID := l.Spawn(func(ty *Yield) (any, error) {
		_, err := ty.DoIO(&ops.Sleep{Duration: d})
		if err != nil {
			return nil, err
		}
		scope.Cancel()
		return nil, nil
	})
	if t, ok := l.Task(timerID); ok {
		t.pushScope(timerScope)
	}

	err := y.WaitForTasks([]TaskID{bodyID})
	timerScope.Cancel()
	if err != nil {
		return nil, nil, false, err
	}

	bt, _ := l.Task(bodyID)
	result, bodyErr = bt.Result()
	if c, ok := bodyErr.(*Cancelled); ok && c.Scope == scope {
		return nil, nil, true, nil
	}
	return result, bodyErr, false, nil
}

// FailAfter runs body in a new cancel scope and, if it has not finished
// within d, cancels it and returns ErrDeadlineExceeded.
func FailAfter(y *Yield, d time.Duration, shield bool, body Body) (any, error) {
	result, bodyErr, timedOut, callerErr := raceAgainstTimer(y, d, shield, body)
	if callerErr != nil {
		return nil, callerErr
	}
	if timedOut {
		return nil, ErrDeadlineExceeded
	}
	return result, bodyErr
}

// MoveOnAfter runs body in a new cancel scope and, if it has not finished
// within d, cancels it and returns (nil, nil) instead of propagating the
// deadline as an error — "move on" rather than fail.
func MoveOnAfter(y *Yield, d time.Duration, shield bool, body Body) (any, error) {
	result, bodyErr, timedOut, callerErr := raceAgainstTimer(y, d, shield, body)
	if callerErr != nil {
		return nil, callerErr
	}
	if timedOut {
		return nil, nil
	}
	return result, bodyErr
}
