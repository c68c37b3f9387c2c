package connection

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/marmos91/evnet/pkg/buffer"
)

// Status is a handler-defined processing status. Values below
// StatusComplete are private to the protocol handler; values at or above it
// mean the request is finished, successfully or not.
type Status int

const (
	// StatusInitial is the status of a freshly created state.
	StatusInitial Status = 0

	// StatusComplete is the completion threshold.
	StatusComplete Status = 100

	// StatusError is the conventional terminal status for a failed request.
	StatusError Status = 101
)

// IsComplete reports whether s is at or above the completion threshold.
func IsComplete(s Status) bool {
	return s >= StatusComplete
}

// ProcessingState is the suspended computation for one in-flight request.
//
// The dispatcher only ever calls these methods; it never inspects the
// intermediate statuses of a concrete handler.
type ProcessingState interface {
	// Status returns the current processing status. It must never decrease
	// between invocations of the same request.
	Status() Status

	// SetRequestBuffer binds the record's current inbound buffer. Called on
	// every dispatch before the handler runs.
	SetRequestBuffer(b *buffer.Chunked)

	// SetResponseBuffer binds the record's current outbound buffer.
	SetResponseBuffer(b *buffer.Chunked)

	// Release frees any auxiliary resources accumulated by the handler.
	Release()
}

// Server is the callback interface through which the core reports the
// outcome of a dispatch cycle to the readiness source.
type Server interface {
	// ReceivedDataConsumed is signalled after every successful handler step.
	ReceivedDataConsumed(fd int)

	// ErrorInReceivedData is signalled when a socket cannot be serviced.
	ErrorInReceivedData(fd int, fatal bool)

	// DataReadyForSend is signalled when a request completed and its
	// response is in the outbound buffer.
	DataReadyForSend(fd int)
}

// Socket is the accepted stream socket wrapped by a Record.
type Socket interface {
	FD() int
	RemoteAddr() net.Addr
	Close() error
}

// CloseAfterSender is implemented by sockets that can be closed once the
// pending response has been written. Protocol handlers use it when the
// request asked not to keep the connection alive.
type CloseAfterSender interface {
	CloseAfterSend()
}

// Connection drives one step of request processing for a socket.
type Connection interface {
	// SetProcessingState attaches the state the next Step operates on.
	SetProcessingState(state ProcessingState)

	// Step runs the handler once. It must not block on socket I/O; when it
	// needs more bytes it records its progress in the state and returns nil.
	Step(ctx context.Context) error
}

// Factory creates protocol-specific connections and processing states.
type Factory interface {
	NewConnection(sock Socket) Connection
	NewConnectionWithState(sock Socket, state ProcessingState) Connection
	NewProcessingState(server Server) ProcessingState
}

// BaseState is an embeddable helper implementing the buffer bindings, the
// server back-reference and a monotonic status.
type BaseState struct {
	mu       sync.Mutex
	status   Status
	server   Server
	request  *buffer.Chunked
	response *buffer.Chunked
}

// Init sets the non-owning server reference and resets the status.
func (s *BaseState) Init(server Server) {
	s.mu.Lock()
	s.server = server
	s.status = StatusInitial
	s.mu.Unlock()
}

func (s *BaseState) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Advance moves the state to next. Moving backwards is a programming error.
func (s *BaseState) Advance(next Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if next < s.status {
		panic(fmt.Sprintf("processing status regression: %d -> %d", s.status, next))
	}
	s.status = next
}

func (s *BaseState) SetRequestBuffer(b *buffer.Chunked) {
	s.mu.Lock()
	s.request = b
	s.mu.Unlock()
}

func (s *BaseState) SetResponseBuffer(b *buffer.Chunked) {
	s.mu.Lock()
	s.response = b
	s.mu.Unlock()
}

// RequestBuffer returns the currently bound inbound buffer.
func (s *BaseState) RequestBuffer() *buffer.Chunked {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.request
}

// ResponseBuffer returns the currently bound outbound buffer.
func (s *BaseState) ResponseBuffer() *buffer.Chunked {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.response
}

// Server returns the callback interface the state was created for.
func (s *BaseState) Server() Server {
	return s.server
}

// Release drops the buffer bindings. Embedders with their own resources
// override it and call BaseState.Release.
func (s *BaseState) Release() {
	s.mu.Lock()
	s.request = nil
	s.response = nil
	s.mu.Unlock()
}
