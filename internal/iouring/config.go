package iouring

// Config controls how a Ring is sized and how eagerly it submits.
type Config struct {
	// QueueDepth is the number of submission queue entries requested from
	// the kernel (rounded up to a power of two).
	QueueDepth uint32

	// SubmitBatchSize is carried in the config but not read by the
	// scheduler, which calls Submit once every tick whatever the number of
	// pending SQEs.
	SubmitBatchSize int
}

// DefaultConfig returns sane defaults for a general-purpose event loop.
func DefaultConfig() *Config {
	return &Config{
		QueueDepth:      32,
		SubmitBatchSize: 256,
	}
}
