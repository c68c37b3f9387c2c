// Package reactor is the readiness source feeding the dispatcher: a
// single-goroutine epoll loop that accepts TCP connections, reads request
// bytes into connection records, hands records with new data to the
// dispatcher and writes responses back.
//
// The reactor implements connection.Server. Workers call the three
// callbacks from their own goroutines; each callback only posts a command
// and wakes the loop, so every record lifecycle decision (dispatch, write,
// close) is taken on the loop goroutine.
//
// Close rule:
// A record is closed only after the worker's terminal signal
// (ErrorInReceivedData) or after the loop has itself reacquired the record's
// busy flag. A descriptor is therefore never closed, and possibly reused by
// a new connection, while a worker can still signal on it.
//
// Only Linux is supported. On other platforms New returns
// ErrUnsupportedPlatform.
package reactor

import (
	"errors"

	"github.com/marmos91/evnet/pkg/connection"
)

var (
	// ErrUnsupportedPlatform is returned by New where epoll is unavailable.
	ErrUnsupportedPlatform = errors.New("reactor: platform not supported")

	// ErrAlreadyServing is returned when Serve is called twice.
	ErrAlreadyServing = errors.New("reactor: already serving")
)

// Enqueuer receives records that have unprocessed inbound bytes. The record
// is marked busy before Enqueue is called. *dispatcher.Dispatcher
// implements it.
type Enqueuer interface {
	Enqueue(rec *connection.Record)
}

// Close reasons reported to metrics.
const (
	closePeer    = "peer"
	closeError   = "error"
	closeHandler = "handler"
	closeDone    = "done"
	closeIdle    = "idle"
	closeStop    = "shutdown"
)
