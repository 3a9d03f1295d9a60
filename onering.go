// Package onering is the public surface of the runtime: a single-threaded,
// cooperative async executor built directly on Linux io_uring completions.
// Run starts the scheduler; everything else (files, sockets, streams, sync
// primitives, structured concurrency) is reached through the *sched.Yield
// handle a running task body receives.
package onering

import (
	"github.com/oneringio/onering/internal/iouring"
	"github.com/oneringio/onering/sched"
)

// Config controls the ring's queue depth (its SubmitBatchSize field is not
// read; the scheduler submits once every tick). There is
// no CLI flag or environment variable surface for it, by design — callers
// construct it in code.
type Config = iouring.Config

// DefaultConfig returns the configuration Run uses when none is given.
func DefaultConfig() *Config { return iouring.DefaultConfig() }

// Run starts a fresh loop, spawns body as its root task, and blocks the
// calling goroutine until it finishes, returning its result or error.
func Run(body func(y *sched.Yield) (any, error)) (any, error) {
	return sched.Run(DefaultConfig(), body)
}

// RunWithConfig is Run with an explicit Config, for callers that need a
// non-default queue depth.
func RunWithConfig(cfg *Config, body func(y *sched.Yield) (any, error)) (any, error) {
	return sched.Run(cfg, body)
}
