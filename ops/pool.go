// Package ops describes individual io_uring operations: how each one fills
// its submission queue entry, and how it turns a completion queue entry into
// a typed result or an error.
package ops

import "github.com/bytedance/gopkg/lang/mcache"

// bufferPool hands out operation-owned read buffers backed by mcache, the
// same size-classed allocator bufiox's DefaultReader and gridbuf's
// read/write buffers use for their scratch chunks. Ownership of a buffer
// obtained from Get always belongs to the Operation that requested it
// (Release is called exactly once, when the operation's result is no longer
// needed), so there's no aliasing hazard in returning it to mcache's pool.
type bufferPool struct{}

func newBufferPool() *bufferPool { return &bufferPool{} }

// Get returns a buffer with length n, drawn from mcache's size classes.
func (p *bufferPool) Get(n int) []byte { return mcache.Malloc(n) }

// Put returns a buffer obtained from Get back to mcache.
func (p *bufferPool) Put(buf []byte) { mcache.Free(buf) }

// Buffers is the package-level pool shared by all operation constructors
// that need a scratch read buffer.
var Buffers = newBufferPool()
