package connection

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/evnet/pkg/buffer"
)

// Handle addresses a Record inside the eviction collaborator's arena.
// The zero Handle is never issued.
type Handle struct {
	Index      uint32
	Generation uint32
}

// Valid reports whether h was issued by an arena.
func (h Handle) Valid() bool {
	return h.Generation != 0
}

// Record is the per-socket state bundle.
//
// Ownership:
//   - Watchers, buffers and the ProcessingState are owned exclusively by
//     the Record and released exactly once by Close (or on replacement)
//   - The socket is closed by Close
//
// Concurrency:
// The busy flag guarantees that at most one worker operates on a Record at
// a time. The readiness source may still append inbound bytes while a worker
// runs, which the buffers tolerate. All accessors are safe for concurrent use.
type Record struct {
	id   uuid.UUID
	sock Socket
	fd   int

	mu           sync.Mutex
	readWatcher  *Watcher
	writeWatcher *Watcher
	state        ProcessingState
	conn         Connection
	handle       Handle
	closed       bool

	busy    atomic.Bool
	lastUse atomic.Int64 // microseconds since the Unix epoch

	inbound  *buffer.Chunked
	outbound *buffer.Chunked
}

// NewRecord wraps an accepted socket. chunkSize configures both buffers.
func NewRecord(sock Socket, chunkSize int) *Record {
	r := &Record{
		id:       uuid.New(),
		sock:     sock,
		fd:       sock.FD(),
		inbound:  buffer.New(chunkSize),
		outbound: buffer.New(chunkSize),
	}
	r.Touch()
	return r
}

// ID returns the unique identifier used in log lines.
func (r *Record) ID() uuid.UUID {
	return r.id
}

// Socket returns the wrapped socket.
func (r *Record) Socket() Socket {
	return r.sock
}

// FD returns the native descriptor captured at construction.
func (r *Record) FD() int {
	return r.fd
}

// ============================================================================
// Watchers
// ============================================================================

// SetReadWatcher installs w and releases the previous read watcher.
func (r *Record) SetReadWatcher(w *Watcher) {
	r.mu.Lock()
	old := r.readWatcher
	r.readWatcher = w
	r.mu.Unlock()

	if old != nil && old != w {
		old.Release()
	}
}

// ReadWatcher returns the current read watcher, or nil.
func (r *Record) ReadWatcher() *Watcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readWatcher
}

// SetWriteWatcher installs w and releases the previous write watcher.
func (r *Record) SetWriteWatcher(w *Watcher) {
	r.mu.Lock()
	old := r.writeWatcher
	r.writeWatcher = w
	r.mu.Unlock()

	if old != nil && old != w {
		old.Release()
	}
}

// WriteWatcher returns the current write watcher, or nil.
func (r *Record) WriteWatcher() *Watcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeWatcher
}

// ============================================================================
// Busy flag
// ============================================================================

// SetBusy marks the record as dispatched to a worker.
func (r *Record) SetBusy() {
	r.busy.Store(true)
}

// SetFree marks the record as no longer dispatched.
func (r *Record) SetFree() {
	r.busy.Store(false)
}

// Busy reports whether the record is currently dispatched.
func (r *Record) Busy() bool {
	return r.busy.Load()
}

// TryAcquire marks the record busy if it was free and reports whether it did.
func (r *Record) TryAcquire() bool {
	return r.busy.CompareAndSwap(false, true)
}

// ============================================================================
// Buffers
// ============================================================================

// PushRequestData appends bytes read from the socket to the inbound buffer.
func (r *Record) PushRequestData(p []byte) int {
	return r.inbound.Push(p)
}

// PushResponseData appends bytes to the outbound buffer.
func (r *Record) PushResponseData(p []byte) int {
	return r.outbound.Push(p)
}

// HasRequestData reports whether the inbound buffer holds any bytes.
func (r *Record) HasRequestData() bool {
	return r.inbound.HasAny()
}

// HasResponseData reports whether the outbound buffer holds any bytes.
func (r *Record) HasResponseData() bool {
	return r.outbound.HasAny()
}

func (r *Record) RequestBuffer() *buffer.Chunked {
	return r.inbound
}

func (r *Record) ResponseBuffer() *buffer.Chunked {
	return r.outbound
}

// ============================================================================
// Processing state
// ============================================================================

// ProcessingState returns the attached state, or nil.
func (r *Record) ProcessingState() ProcessingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SetProcessingState attaches state. A different state already attached is
// released first, so a Record never owns more than one.
func (r *Record) SetProcessingState(state ProcessingState) {
	r.mu.Lock()
	old := r.state
	r.state = state
	r.mu.Unlock()

	if old != nil && old != state {
		old.Release()
	}
}

// DeleteProcessingState releases and detaches the current state while
// keeping the connection itself open for the next request.
func (r *Record) DeleteProcessingState() {
	r.mu.Lock()
	old := r.state
	r.state = nil
	r.mu.Unlock()

	if old != nil {
		old.Release()
	}
}

// Connection returns the cached protocol connection, or nil.
func (r *Record) Connection() Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn
}

// SetConnection caches the protocol connection wrapping this socket.
func (r *Record) SetConnection(c Connection) {
	r.mu.Lock()
	r.conn = c
	r.mu.Unlock()
}

// ============================================================================
// Eviction bookkeeping
// ============================================================================

// Touch records the current time as the last use.
func (r *Record) Touch() {
	r.lastUse.Store(time.Now().UnixMicro())
}

// LastUse returns the last-use timestamp in microseconds since the epoch.
func (r *Record) LastUse() int64 {
	return r.lastUse.Load()
}

// IdleFor returns how long the record has been unused at now.
func (r *Record) IdleFor(now time.Time) time.Duration {
	return time.Duration(now.UnixMicro()-r.lastUse.Load()) * time.Microsecond
}

// Handle returns the arena handle assigned by the eviction collaborator.
func (r *Record) Handle() Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handle
}

// SetHandle stores the arena handle.
func (r *Record) SetHandle(h Handle) {
	r.mu.Lock()
	r.handle = h
	r.mu.Unlock()
}

// ============================================================================
// Lifecycle
// ============================================================================

// Closed reports whether Close has been called.
func (r *Record) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close releases the watchers, the processing state and the buffers, then
// closes the socket. It is safe to call more than once.
func (r *Record) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	rw, ww, st := r.readWatcher, r.writeWatcher, r.state
	r.readWatcher, r.writeWatcher, r.state, r.conn = nil, nil, nil, nil
	r.mu.Unlock()

	if rw != nil {
		rw.Release()
	}
	if ww != nil {
		ww.Release()
	}
	if st != nil {
		st.Release()
	}
	r.inbound.Reset()
	r.outbound.Reset()

	return r.sock.Close()
}
