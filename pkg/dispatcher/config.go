package dispatcher

import (
	"fmt"
	"time"
)

const (
	// DefaultMaxQueued is the queue capacity used when MaxQueued is zero.
	DefaultMaxQueued = 64

	// DefaultThreadIdleTime is how long a worker waits for work before it
	// re-checks whether it should retire.
	DefaultThreadIdleTime = 10 * time.Second
)

// Config holds the engine parameters consumed at construction.
//
// Default values (applied by New if zero):
//   - MaxThreads: capacity of the supplied thread pool
//   - MaxQueued: 64
//   - ThreadIdleTime: 10s
//   - ThreadPriority: 0
type Config struct {
	// MaxThreads bounds the number of concurrently running workers.
	// 0 selects the thread pool capacity. Values above the pool capacity
	// are clamped to it.
	MaxThreads int `mapstructure:"max_threads" validate:"min=0" yaml:"max_threads"`

	// MaxQueued bounds the number of work items waiting for a worker.
	// Once reached, further enqueues are refused (backpressure).
	MaxQueued int `mapstructure:"max_queued" validate:"min=0" yaml:"max_queued"`

	// ThreadIdleTime is the maximum time a worker blocks waiting for work.
	ThreadIdleTime time.Duration `mapstructure:"thread_idle_time" validate:"min=0" yaml:"thread_idle_time"`

	// ThreadPriority is forwarded to the thread pool when starting workers.
	ThreadPriority int `mapstructure:"thread_priority" yaml:"thread_priority"`
}

// applyDefaults fills in zero values. poolCapacity is the capacity of the
// thread pool the workers run on.
func (c *Config) applyDefaults(poolCapacity int) {
	if c.MaxThreads <= 0 || c.MaxThreads > poolCapacity {
		c.MaxThreads = poolCapacity
	}
	if c.MaxQueued <= 0 {
		c.MaxQueued = DefaultMaxQueued
	}
	if c.ThreadIdleTime <= 0 {
		c.ThreadIdleTime = DefaultThreadIdleTime
	}
}

func (c *Config) validate() error {
	if c.MaxThreads < 1 {
		return fmt.Errorf("invalid MaxThreads %d: must be >= 1", c.MaxThreads)
	}
	if c.MaxQueued < 1 {
		return fmt.Errorf("invalid MaxQueued %d: must be >= 1", c.MaxQueued)
	}
	if c.ThreadIdleTime <= 0 {
		return fmt.Errorf("invalid ThreadIdleTime %v: must be > 0", c.ThreadIdleTime)
	}
	return nil
}
