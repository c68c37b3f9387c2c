package dispatcher

// Stats is a point-in-time snapshot of the engine counters.
type Stats struct {
	CurrentConnections       int    `json:"current_connections"`
	TotalConnections         uint64 `json:"total_connections"`
	MaxConcurrentConnections int    `json:"max_concurrent_connections"`
	RefusedConnections       uint64 `json:"refused_connections"`
	QueuedConnections        int    `json:"queued_connections"`
	CurrentThreads           int    `json:"current_threads"`
	MaxThreads               int    `json:"max_threads"`
	Stopped                  bool   `json:"stopped"`
}

// Stats returns a consistent snapshot of every counter.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	return Stats{
		CurrentConnections:       d.currentConnections,
		TotalConnections:         d.totalConnections,
		MaxConcurrentConnections: d.maxConcurrentConnections,
		RefusedConnections:       d.refusedConnections,
		QueuedConnections:        d.queue.Length(),
		CurrentThreads:           d.currentThreads,
		MaxThreads:               d.config.MaxThreads,
		Stopped:                  d.stopped,
	}
}

// CurrentConnections returns the number of handler steps in flight.
func (d *Dispatcher) CurrentConnections() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentConnections
}

// TotalConnections returns the number of handler steps started.
func (d *Dispatcher) TotalConnections() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalConnections
}

// MaxConcurrentConnections returns the high-water mark of CurrentConnections.
func (d *Dispatcher) MaxConcurrentConnections() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxConcurrentConnections
}

// RefusedConnections returns the number of enqueues refused by backpressure.
func (d *Dispatcher) RefusedConnections() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.refusedConnections
}

// QueuedConnections returns the current queue depth.
func (d *Dispatcher) QueuedConnections() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queue.Length()
}

// CurrentThreads returns the number of live workers.
func (d *Dispatcher) CurrentThreads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentThreads
}

// MaxThreads returns the configured worker bound.
func (d *Dispatcher) MaxThreads() int {
	return d.config.MaxThreads
}
