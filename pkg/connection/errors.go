package connection

import "errors"

// Handler fault classes. Both are fatal for the socket they occur on; a
// protocol implementation wraps them with context:
//
//	return fmt.Errorf("invalid chunk size %q: %w", line, connection.ErrMalformedMessage)
var (
	// ErrMalformedMessage indicates the peer sent bytes that violate the protocol.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrNoMessage indicates the peer closed or reset before a message started.
	ErrNoMessage = errors.New("no message")
)
