package metrics

// ReactorMetrics provides observability for the readiness source: accepted
// sockets, throughput and connection teardown.
type ReactorMetrics interface {
	// RecordConnectionAccepted counts an accepted socket.
	RecordConnectionAccepted()

	// RecordConnectionThrottled counts a socket closed by accept throttling.
	RecordConnectionThrottled()

	// RecordConnectionClosed counts a closed socket by reason
	// ("peer", "error", "idle", "shutdown").
	RecordConnectionClosed(reason string)

	// SetOpenConnections updates the number of tracked sockets.
	SetOpenConnections(count int)

	// RecordBytes records bytes moved in direction ("read" or "write").
	RecordBytes(direction string, n int)
}

// NewNoopReactorMetrics returns a ReactorMetrics that discards everything.
func NewNoopReactorMetrics() ReactorMetrics {
	return noopReactorMetrics{}
}

type noopReactorMetrics struct{}

func (noopReactorMetrics) RecordConnectionAccepted()            {}
func (noopReactorMetrics) RecordConnectionThrottled()           {}
func (noopReactorMetrics) RecordConnectionClosed(reason string) {}
func (noopReactorMetrics) SetOpenConnections(count int)         {}
func (noopReactorMetrics) RecordBytes(direction string, n int)  {}
