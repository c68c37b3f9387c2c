// Package buffer provides the append-only byte accumulator used for
// per-connection request and response data.
package buffer

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// DefaultChunkSize is the allocation granularity used when New is called
// with a non-positive chunk size.
const DefaultChunkSize = 4 * 1024

// Chunked is an append-only, randomly readable byte accumulator.
//
// Data is stored in fixed-size chunks instead of a single contiguous slice,
// so many small pushes (one per network read) never trigger a reallocation
// and copy of everything received so far.
//
// Key characteristics:
//   - Push only appends; the logical content never shrinks except via Reset
//   - Copy reads at any offset without consuming anything
//   - Reset keeps the allocated chunks so a keep-alive connection reuses them
//
// Thread safety:
// All methods are safe for concurrent use. The readiness source appends
// while a worker may be reading the same buffer.
type Chunked struct {
	mu        sync.RWMutex
	chunks    [][]byte // each chunk has len == chunkSize
	size      int      // logical length
	chunkSize int
}

// New creates an empty Chunked buffer with the given chunk size.
func New(chunkSize int) *Chunked {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Chunked{chunkSize: chunkSize}
}

// Push appends p and returns the number of bytes written (always len(p)).
func (b *Chunked) Push(p []byte) int {
	if len(p) == 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	written := 0
	for written < len(p) {
		idx := b.size / b.chunkSize
		off := b.size % b.chunkSize
		if idx == len(b.chunks) {
			b.chunks = append(b.chunks, make([]byte, b.chunkSize))
		}
		n := copy(b.chunks[idx][off:], p[written:])
		written += n
		b.size += n
	}
	return written
}

// Copy copies up to len(dst) bytes starting at offset into dst without
// consuming them. It returns the number of bytes copied, which is 0 when
// offset is at or beyond the end of the buffer.
func (b *Chunked) Copy(offset int, dst []byte) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.copyLocked(offset, dst)
}

func (b *Chunked) copyLocked(offset int, dst []byte) int {
	if offset < 0 || offset >= b.size || len(dst) == 0 {
		return 0
	}

	copied := 0
	pos := offset
	for copied < len(dst) && pos < b.size {
		idx := pos / b.chunkSize
		off := pos % b.chunkSize
		end := b.chunkSize
		if remaining := b.size - idx*b.chunkSize; remaining < end {
			end = remaining
		}
		n := copy(dst[copied:], b.chunks[idx][off:end])
		copied += n
		pos += n
	}
	return copied
}

// HasAny reports whether the buffer holds at least one byte.
func (b *Chunked) HasAny() bool {
	var probe [1]byte
	return b.Copy(0, probe[:]) > 0
}

// Len returns the logical number of bytes pushed since the last Reset.
func (b *Chunked) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Reset empties the buffer. Allocated chunks are kept for reuse.
func (b *Chunked) Reset() {
	b.mu.Lock()
	b.size = 0
	b.mu.Unlock()
}

// Bytes returns a copy of the whole content.
func (b *Chunked) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]byte, b.size)
	b.copyLocked(0, out)
	return out
}

// Slice returns a copy of n bytes starting at offset. The result is shorter
// than n when the buffer does not hold enough data.
func (b *Chunked) Slice(offset, n int) []byte {
	if n <= 0 {
		return nil
	}
	out := make([]byte, n)
	return out[:b.Copy(offset, out)]
}

// IndexOf returns the offset of the first occurrence of sep at or after
// from, or -1. Matches spanning chunk boundaries are found.
func (b *Chunked) IndexOf(from int, sep []byte) int {
	if len(sep) == 0 {
		return from
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if from < 0 {
		from = 0
	}
	if from+len(sep) > b.size {
		return -1
	}

	// Scan a window per chunk, extended by len(sep)-1 bytes so a separator
	// straddling two chunks is still seen.
	window := make([]byte, b.chunkSize+len(sep)-1)
	for pos := from; pos+len(sep) <= b.size; {
		n := b.copyLocked(pos, window)
		if i := bytes.Index(window[:n], sep); i >= 0 {
			return pos + i
		}
		if n < len(sep) {
			return -1
		}
		pos += n - len(sep) + 1
	}
	return -1
}

// WriteTo writes the whole content to w. It implements io.WriterTo.
func (b *Chunked) WriteTo(w io.Writer) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total int64
	remaining := b.size
	for _, chunk := range b.chunks {
		if remaining == 0 {
			break
		}
		n := len(chunk)
		if remaining < n {
			n = remaining
		}
		written, err := w.Write(chunk[:n])
		total += int64(written)
		if err != nil {
			return total, err
		}
		remaining -= n
	}
	return total, nil
}

// ReadFrom appends everything read from r until io.EOF or an error.
// It implements io.ReaderFrom; io.EOF is not reported as an error.
func (b *Chunked) ReadFrom(r io.Reader) (int64, error) {
	var (
		total int64
		tmp   = make([]byte, b.chunkSize)
	)
	for {
		n, err := r.Read(tmp)
		if n > 0 {
			b.Push(tmp[:n])
			total += int64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return total, nil
			}
			return total, err
		}
	}
}
