// Package threadpool provides the bounded goroutine pool that dispatcher
// workers are started on.
package threadpool

import (
	"errors"
	"runtime"
	"sync"

	"github.com/marmos91/evnet/internal/logger"
)

// ErrPoolExhausted is returned by Start when every slot is in use.
var ErrPoolExhausted = errors.New("thread pool exhausted")

// Pool starts long-running functions on a bounded set of goroutines.
type Pool interface {
	// Start runs fn on a new goroutine. It fails with ErrPoolExhausted when
	// the pool is at capacity; the caller keeps its work and retries later.
	Start(priority int, fn func()) error

	// Capacity returns the maximum number of concurrently running functions.
	Capacity() int

	// Running returns the number of functions currently running.
	Running() int
}

// DefaultCapacity returns the capacity used when none is configured.
func DefaultCapacity() int {
	return runtime.GOMAXPROCS(0) * 4
}

// Bounded is a Pool with a fixed number of slots.
//
// Priority is accepted for interface compatibility and logged; Go offers no
// per-goroutine scheduling priority.
type Bounded struct {
	mu       sync.Mutex
	capacity int
	running  int
}

// NewBounded creates a pool with the given capacity. A non-positive capacity
// selects DefaultCapacity.
func NewBounded(capacity int) *Bounded {
	if capacity <= 0 {
		capacity = DefaultCapacity()
	}
	return &Bounded{capacity: capacity}
}

func (p *Bounded) Start(priority int, fn func()) error {
	p.mu.Lock()
	if p.running >= p.capacity {
		p.mu.Unlock()
		return ErrPoolExhausted
	}
	p.running++
	running := p.running
	p.mu.Unlock()

	logger.Debug("threadpool: starting goroutine (priority=%d running=%d/%d)", priority, running, p.capacity)

	go func() {
		defer p.done()
		fn()
	}()
	return nil
}

func (p *Bounded) done() {
	p.mu.Lock()
	p.running--
	p.mu.Unlock()
}

func (p *Bounded) Capacity() int {
	return p.capacity
}

func (p *Bounded) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
