// Package dispatcher implements the connection dispatch engine: a bounded
// work queue with backpressure feeding a pool of workers that drive
// resumable request handlers one step at a time.
//
// Control flow:
//
//	readiness source -> Enqueue(record) -> worker dequeues -> one handler step
//	  -> status >= completion threshold? release state, DataReadyForSend
//	  -> ReceivedDataConsumed (always, on success)
//	  -> ErrorInReceivedData(fd, true) (on any handler fault)
//
// Every fault is converted to one of the three connection.Server signals;
// nothing escapes the worker loop.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/marmos91/evnet/internal/logger"
	"github.com/marmos91/evnet/pkg/connection"
	"github.com/marmos91/evnet/pkg/dispatcher/threadpool"
	"github.com/marmos91/evnet/pkg/metrics"
)

// primaryWorkerID identifies the worker that never retires while the engine
// is running.
const primaryWorkerID = 1

// ErrHandlerPanic wraps a panic recovered from a handler step.
var ErrHandlerPanic = errors.New("handler panic")

// workItem is a queued dispatch request. The descriptor is captured at
// enqueue time so callbacks always address the right socket.
type workItem struct {
	rec *connection.Record
	fd  int
}

// Dispatcher is the engine.
//
// Locking:
// mu guards the queue, the counters and the worker bookkeeping. It is held
// only for O(1) bookkeeping and never across a handler step or a Server
// callback.
//
// Lifetime:
// The Dispatcher is reference counted. The creator owns one reference and
// every running worker owns one for the duration of its run loop. Done is
// closed when the last reference is released, which after Stop means every
// worker has exited.
type Dispatcher struct {
	factory connection.Factory
	pool    threadpool.Pool
	server  connection.Server
	metrics metrics.DispatcherMetrics
	config  Config

	mu           sync.Mutex
	queue        *queue.Queue
	stopped      bool
	idle         int
	nextWorkerID int

	currentThreads           int
	currentConnections       int
	maxConcurrentConnections int
	totalConnections         uint64
	refusedConnections       uint64

	// wake carries at most one token per idle worker.
	wake chan struct{}
	stop chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	refs     atomic.Int32
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Dispatcher and starts the primary worker.
//
// Parameters:
//   - factory: builds Connections and ProcessingStates (required)
//   - pool: runs workers; nil selects a threadpool.Bounded with default capacity
//   - server: receives the dispatch outcome signals (required)
//   - config: engine parameters, zero values are defaulted
//   - m: optional metrics collector (nil for no metrics)
//
// Panics if factory or server is nil or the configuration is invalid.
func New(factory connection.Factory, pool threadpool.Pool, server connection.Server, config Config, m metrics.DispatcherMetrics) *Dispatcher {
	if factory == nil {
		panic("dispatcher: nil connection factory")
	}
	if server == nil {
		panic("dispatcher: nil server callback")
	}
	if pool == nil {
		pool = threadpool.NewBounded(0)
	}
	if m == nil {
		m = metrics.NewNoopDispatcherMetrics()
	}

	config.applyDefaults(pool.Capacity())
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid dispatcher config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dispatcher{
		factory: factory,
		pool:    pool,
		server:  server,
		metrics: m,
		config:  config,
		queue:   queue.New(),
		wake:    make(chan struct{}, config.MaxThreads),
		stop:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	d.refs.Store(1)

	d.mu.Lock()
	d.startWorkerLocked()
	d.mu.Unlock()

	logger.Info("Dispatcher started (max_threads=%d max_queued=%d idle=%v)",
		config.MaxThreads, config.MaxQueued, config.ThreadIdleTime)

	return d
}

// ============================================================================
// Enqueue
// ============================================================================

// Enqueue hands a record that has work to the engine.
//
// The caller must have marked the record busy. If the queue is full the
// record is refused: the refused counter is incremented, the record is
// marked free and ErrorInReceivedData(fd, true) is signalled. After Stop
// every record is answered with the same error signal without counting it
// as refused.
func (d *Dispatcher) Enqueue(rec *connection.Record) {
	fd := rec.FD()

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		logger.Debug("Dispatcher: enqueue after stop: fd=%d", fd)
		d.reject(rec, fd)
		return
	}

	if d.queue.Length() >= d.config.MaxQueued {
		d.refusedConnections++
		refused := d.refusedConnections
		d.mu.Unlock()

		d.metrics.RecordRefused()
		logger.Warn("Dispatcher: queue full (%d), refusing fd=%d (refused=%d)", d.config.MaxQueued, fd, refused)
		d.reject(rec, fd)
		return
	}

	d.queue.Add(workItem{rec: rec, fd: fd})
	depth := d.queue.Length()

	if d.idle > len(d.wake) {
		select {
		case d.wake <- struct{}{}:
		default:
		}
	} else if d.currentThreads < d.config.MaxThreads {
		d.startWorkerLocked()
	}
	d.mu.Unlock()

	d.metrics.RecordEnqueued()
	d.metrics.SetQueueDepth(depth)
}

func (d *Dispatcher) reject(rec *connection.Record, fd int) {
	rec.SetFree()
	d.server.ErrorInReceivedData(fd, true)
}

// startWorkerLocked grows the pool by one worker. A start failure is not an
// error: queued items wait for a worker to become idle.
//
// Must be called with d.mu held.
func (d *Dispatcher) startWorkerLocked() {
	id := d.nextWorkerID + 1

	d.Retain()
	if err := d.pool.Start(d.config.ThreadPriority, func() { d.run(id) }); err != nil {
		d.Release()
		logger.Debug("Dispatcher: cannot start worker %d: %v", id, err)
		return
	}

	d.nextWorkerID = id
	d.currentThreads++
	d.metrics.SetWorkers(d.currentThreads)
}

// ============================================================================
// Worker loop
// ============================================================================

func (d *Dispatcher) run(id int) {
	defer d.Release()

	logger.Debug("Dispatcher: worker %d started", id)

	for {
		if item, ok := d.dequeue(); ok {
			d.dispatch(item)
		}

		d.mu.Lock()
		if d.stopped || (id != primaryWorkerID && d.queue.Length() == 0) {
			d.currentThreads--
			threads := d.currentThreads
			d.mu.Unlock()

			d.metrics.SetWorkers(threads)
			logger.Debug("Dispatcher: worker %d exiting (threads=%d)", id, threads)
			return
		}
		d.mu.Unlock()
	}
}

// dequeue waits up to ThreadIdleTime for a work item. It returns false on
// timeout or when the engine is stopped.
func (d *Dispatcher) dequeue() (workItem, bool) {
	timer := time.NewTimer(d.config.ThreadIdleTime)
	defer timer.Stop()

	d.mu.Lock()
	for {
		if d.stopped {
			d.mu.Unlock()
			return workItem{}, false
		}

		if d.queue.Length() > 0 {
			item := d.queue.Remove().(workItem)
			depth := d.queue.Length()
			d.mu.Unlock()

			d.metrics.SetQueueDepth(depth)
			return item, true
		}

		d.idle++
		d.mu.Unlock()

		timedOut := false
		select {
		case <-d.wake:
		case <-d.stop:
		case <-timer.C:
			timedOut = true
		}

		d.mu.Lock()
		d.idle--

		if timedOut && d.queue.Length() == 0 {
			d.mu.Unlock()
			return workItem{}, false
		}
	}
}

// dispatch runs one dispatch cycle for item. Exactly one of
// ReceivedDataConsumed or ErrorInReceivedData is signalled, and the record is
// marked free afterwards.
func (d *Dispatcher) dispatch(item workItem) {
	rec, fd := item.rec, item.fd
	defer rec.SetFree()

	start := time.Now()
	completed, err := d.step(rec)
	elapsed := time.Since(start)

	if err != nil {
		d.metrics.RecordStep(metrics.OutcomeError, elapsed)
		if errors.Is(err, connection.ErrMalformedMessage) || errors.Is(err, connection.ErrNoMessage) {
			logger.Debug("Dispatcher: fd=%d id=%s: %v", fd, rec.ID(), err)
		} else {
			logger.Warn("Dispatcher: handler fault fd=%d id=%s: %v", fd, rec.ID(), err)
		}
		d.server.ErrorInReceivedData(fd, true)
		return
	}

	if completed {
		d.metrics.RecordStep(metrics.OutcomeComplete, elapsed)
		rec.DeleteProcessingState()
		d.server.DataReadyForSend(fd)
	} else {
		d.metrics.RecordStep(metrics.OutcomePartial, elapsed)
	}

	d.server.ReceivedDataConsumed(fd)
}

// step builds or reuses the Connection and ProcessingState, rebinds the
// buffers and invokes the handler exactly once. Panics are converted to
// errors wrapping ErrHandlerPanic.
func (d *Dispatcher) step(rec *connection.Record) (completed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	state := rec.ProcessingState()

	conn := rec.Connection()
	if conn == nil {
		if state == nil {
			conn = d.factory.NewConnection(rec.Socket())
		} else {
			conn = d.factory.NewConnectionWithState(rec.Socket(), state)
		}
		rec.SetConnection(conn)
	}

	if state == nil {
		state = d.factory.NewProcessingState(d.server)
		rec.SetProcessingState(state)
	}
	conn.SetProcessingState(state)

	state.SetRequestBuffer(rec.RequestBuffer())
	state.SetResponseBuffer(rec.ResponseBuffer())

	if err := d.invoke(conn); err != nil {
		return false, err
	}

	return connection.IsComplete(state.Status()), nil
}

// invoke brackets a single handler step with the begin/end connection
// counters.
func (d *Dispatcher) invoke(conn connection.Connection) error {
	d.beginConnection()
	defer d.endConnection()

	return conn.Step(d.ctx)
}

func (d *Dispatcher) beginConnection() {
	d.mu.Lock()
	d.totalConnections++
	d.currentConnections++
	if d.currentConnections > d.maxConcurrentConnections {
		d.maxConcurrentConnections = d.currentConnections
	}
	current := d.currentConnections
	d.mu.Unlock()

	d.metrics.SetActiveConnections(current)
}

func (d *Dispatcher) endConnection() {
	d.mu.Lock()
	d.currentConnections--
	current := d.currentConnections
	d.mu.Unlock()

	d.metrics.SetActiveConnections(current)
}

// ============================================================================
// Shutdown and lifetime
// ============================================================================

// Stop marks the engine stopped, drains the queue and wakes every waiting
// worker. Each drained record is marked free and answered with
// ErrorInReceivedData(fd, true). Handler steps already running are allowed to
// finish; their context is cancelled. Stop is idempotent.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.stopped = true
		drained := make([]workItem, 0, d.queue.Length())
		for d.queue.Length() > 0 {
			drained = append(drained, d.queue.Remove().(workItem))
		}
		close(d.stop)
		d.mu.Unlock()

		d.cancel()
		d.metrics.SetQueueDepth(0)

		for _, item := range drained {
			d.reject(item.rec, item.fd)
		}

		logger.Info("Dispatcher stopped (drained=%d)", len(drained))
	})
}

// Retain adds a reference to the engine.
func (d *Dispatcher) Retain() {
	d.refs.Add(1)
}

// Release drops a reference. When the count reaches zero Done is closed.
func (d *Dispatcher) Release() {
	switch n := d.refs.Add(-1); {
	case n == 0:
		close(d.done)
	case n < 0:
		panic("dispatcher: reference count below zero")
	}
}

// Done returns a channel closed once the last reference is released.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until Done is closed or ctx is cancelled.
func (d *Dispatcher) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stopped reports whether Stop has been called.
func (d *Dispatcher) Stopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}
