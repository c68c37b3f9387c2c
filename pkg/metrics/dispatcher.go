package metrics

import "time"

// Step outcomes reported by RecordStep.
const (
	OutcomePartial  = "partial"
	OutcomeComplete = "complete"
	OutcomeError    = "error"
)

// DispatcherMetrics provides observability for the dispatch engine.
//
// This interface is optional - if nil is passed to dispatcher.New, a no-op
// implementation is used.
type DispatcherMetrics interface {
	// RecordEnqueued counts a work item accepted into the queue.
	RecordEnqueued()

	// RecordRefused counts a work item rejected because the queue was full.
	RecordRefused()

	// SetQueueDepth updates the number of queued work items.
	SetQueueDepth(depth int)

	// SetWorkers updates the number of live worker goroutines.
	SetWorkers(count int)

	// SetActiveConnections updates the number of handler steps in flight.
	SetActiveConnections(count int)

	// RecordStep records one handler invocation with its outcome
	// (OutcomePartial, OutcomeComplete or OutcomeError).
	RecordStep(outcome string, duration time.Duration)
}

// NewNoopDispatcherMetrics returns a DispatcherMetrics that discards everything.
func NewNoopDispatcherMetrics() DispatcherMetrics {
	return noopDispatcherMetrics{}
}

type noopDispatcherMetrics struct{}

func (noopDispatcherMetrics) RecordEnqueued()                                   {}
func (noopDispatcherMetrics) RecordRefused()                                    {}
func (noopDispatcherMetrics) SetQueueDepth(depth int)                           {}
func (noopDispatcherMetrics) SetWorkers(count int)                              {}
func (noopDispatcherMetrics) SetActiveConnections(count int)                    {}
func (noopDispatcherMetrics) RecordStep(outcome string, duration time.Duration) {}
