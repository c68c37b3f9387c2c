// Package blob defines the key/value blob storage used by the demo HTTP
// application.
//
// Backends live in subpackages:
//   - memory: map guarded by a RWMutex, ephemeral
//   - badger: BadgerDB on local disk, persistent
//   - s3: Amazon S3 or any S3-compatible endpoint
//
// All backends are safe for concurrent use. Handlers run on dispatcher
// workers, so store calls are allowed to block.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/evnet/pkg/metrics"
)

// ErrNotFound is returned by Get and Delete when the key does not exist.
var ErrNotFound = errors.New("blob not found")

// ErrInvalidKey is returned for empty keys or keys that escape the namespace.
var ErrInvalidKey = errors.New("invalid blob key")

// MaxKeyLength bounds the length of a key in bytes.
const MaxKeyLength = 1024

// Store is a flat key/value blob store.
type Store interface {
	// Get returns a copy of the blob stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores data under key, replacing any previous value.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes key. Returns ErrNotFound if it does not exist.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present. A missing key is not an error.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases the backend's resources.
	Close() error
}

// ValidateKey checks that key is usable by every backend.
func ValidateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	case len(key) > MaxKeyLength:
		return fmt.Errorf("%w: key exceeds %d bytes", ErrInvalidKey, MaxKeyLength)
	case strings.HasPrefix(key, "/"):
		return fmt.Errorf("%w: leading slash in %q", ErrInvalidKey, key)
	}

	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return fmt.Errorf("%w: parent reference in %q", ErrInvalidKey, key)
		}
	}
	return nil
}

// Instrument records one operation on m when m is non-nil. Backends call it
// with the start time captured before the operation:
//
//	defer func(start time.Time) { blob.Instrument(s.metrics, "memory", "get", start, n, err) }(time.Now())
func Instrument(m metrics.StoreMetrics, backend, operation string, start time.Time, n int, err error) {
	if m == nil {
		return
	}
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	m.ObserveOperation(backend, operation, time.Since(start), int64(n), err)
}
