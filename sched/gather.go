package sched

// WaitOn blocks the calling task until every one of tasks has finished. It
// returns the first error encountered among them, in argument order, or
// nil if none failed. For an aggregate of every error, use a TaskGroup
// instead.
func WaitOn(y *Yield, tasks ...TaskID) error {
	if err := y.WaitForTasks(tasks); err != nil {
		return err
	}
	for _, id := range tasks {
		if t, ok := y.loop.Task(id); ok {
			if _, err := t.Result(); err != nil {
				return err
			}
		}
	}
	return nil
}

// GatherSlice runs every body in bodies as a sibling task and waits for all
// of them, returning their results in the same order. It returns the first
// error encountered (in argument order) and stops waiting as soon as the
// calling task itself is cancelled.
func GatherSlice[T any](y *Yield, bodies []func(y *Yield) (T, error)) ([]T, error) {
	l := y.loop
	ids := make([]TaskID, len(bodies))
	for i, b := range bodies {
		b := b
		ids[i] = l.Spawn(func(ty *Yield) (any, error) {
			return b(ty)
		})
	}
	if err := y.WaitForTasks(ids); err != nil {
		return nil, err
	}
	out := make([]T, len(ids))
	for i, id := range ids {
		t, _ := l.Task(id)
		v, err := t.Result()
		if err != nil {
			return nil, err
		}
		out[i], _ = v.(T)
	}
	return out, nil
}

// Gather2 runs two differently-typed bodies concurrently and returns both
// results once both finish (or the first error encountered).
func Gather2[A, B any](y *Yield, a func(y *Yield) (A, error), b func(y *Yield) (B, error)) (A, B, error) {
	l := y.loop
	var za A
	var zb B
	idA := l.Spawn(func(ty *Yield) (any, error) { return a(ty) })
	idB := l.Spawn(func(ty *Yield) (any, error) { return b(ty) })
	if err := y.WaitForTasks([]TaskID{idA, idB}); err != nil {
		return za, zb, err
	}
	ta, _ := l.Task(idA)
	va, errA := ta.Result()
	if errA != nil {
		return za, zb, errA
	}
	tb, _ := l.Task(idB)
	vb, errB := tb.Result()
	if errB != nil {
		return za, zb, errB
	}
	ra, _ := va.(A)
	rb, _ := vb.(B)
	return ra, rb, nil
}

// Gather3 is Gather2 generalized to three concurrent bodies.
func Gather3[A, B, C any](y *Yield, a func(y *Yield) (A, error), b func(y *Yield) (B, error), c func(y *Yield) (C, error)) (A, B, C, error) {
	l := y.loop
	var za A
	var zb B
	var zc C
	idA := l.Spawn(func(ty *Yield) (any, error) { return a(ty) })
	idB := l.Spawn(func(ty *Yield) (any, error) { return b(ty) })
	idC := l.Spawn(func(ty *Yield) (any, error) { return c(ty) })
	if err := y.WaitForTasks([]TaskID{idA, idB, idC}); err != nil {
		return za, zb, zc, err
	}
	ta, _ := l.Task(idA)
	va, errA := ta.Result()
	if errA != nil {
		return za, zb, zc, errA
	}
	tb, _ := l.Task(idB)
	vb, errB := tb.Result()
	if errB != nil {
		return za, zb, zc, errB
	}
	tc, _ := l.Task(idC)
	vc, errC := tc.Result()
	if errC != nil {
		return za, zb, zc, errC
	}
	ra, _ := va.(A)
	rb, _ := vb.(B)
	rc, _ := vc.(C)
	return ra, rb, rc, nil
}
