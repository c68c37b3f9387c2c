package metrics

import "time"

// StoreMetrics provides observability for blob store backends.
//
// Implementations collect operation counts, latency and bytes transferred.
// Backends fall back to a no-op implementation when none is supplied.
type StoreMetrics interface {
	// ObserveOperation records a completed store operation.
	//
	// Parameters:
	//   - backend: Store type ("memory", "badger", "s3")
	//   - operation: "get", "put", "delete" or "exists"
	//   - duration: Time taken
	//   - bytes: Payload size, 0 when not applicable
	//   - err: Error if the operation failed, nil if successful
	ObserveOperation(backend, operation string, duration time.Duration, bytes int64, err error)
}

// NewNoopStoreMetrics returns a StoreMetrics that discards everything.
func NewNoopStoreMetrics() StoreMetrics {
	return noopStoreMetrics{}
}

type noopStoreMetrics struct{}

func (noopStoreMetrics) ObserveOperation(string, string, time.Duration, int64, error) {}
