// Package connection defines the per-socket Connection Record and the
// contracts the dispatcher uses to drive request processing.
//
// A Record bundles everything the server keeps for one accepted socket:
// the inbound and outbound buffers, the readiness watchers registered by
// the readiness source, the busy flag that prevents double dispatch, the
// last-use timestamp consumed by idle eviction, and the ProcessingState of
// the request currently in flight.
//
// ProcessingState is the resumable computation for one request. A protocol
// handler is invoked once per dispatch; it must never block on socket I/O.
// Instead it stores its progress in the state and returns, to be re-entered
// when more bytes have arrived. A state whose Status reaches StatusComplete
// is released by the dispatcher before the connection is reused.
package connection
