package conveyor

import "time"

// Config holds configuration shared by the broker and the queues it creates.
type Config struct {
	// EventBufferSize is the per-subscriber event buffer. Events beyond
	// a full buffer are dropped, never blocked on.
	EventBufferSize int

	// EventCredits is the initial flow-control credit grant for new
	// subscribers. Zero credits stop delivery until replenished.
	EventCredits int64

	// ShutdownTimeout is the maximum time Close waits for in-flight
	// consumers before giving up on a graceful stop.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		EventBufferSize: 256,
		EventCredits:    1000,
		ShutdownTimeout: 30 * time.Second,
	}
}
