package onering

import (
	"time"

	"github.com/oneringio/onering/ops"
	"github.com/oneringio/onering/sched"
)

// Sleep suspends the calling task for at least d. A non-positive duration
// collapses to a plain checkpoint — the same shortcut the original
// scheduler took for sleep(0): a place for a pending cancellation to be
// delivered without submitting a timeout operation that would just fire
// immediately.
func Sleep(y *sched.Yield, d time.Duration) error {
	if d <= 0 {
		return y.Checkpoint()
	}
	_, err := y.DoIO(&ops.Sleep{Duration: d})
	return err
}
