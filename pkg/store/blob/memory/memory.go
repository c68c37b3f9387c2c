// Package memory implements an in-memory blob.Store.
//
// Contents are lost when the process exits. Useful for tests and for
// running the demo server without any external dependency.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/evnet/pkg/metrics"
	"github.com/marmos91/evnet/pkg/store/blob"
)

const backendName = "memory"

// Store is a blob.Store backed by a map.
type Store struct {
	mu      sync.RWMutex
	data    map[string][]byte
	size    int64
	metrics metrics.StoreMetrics
}

// New creates an empty store. m may be nil.
func New(m metrics.StoreMetrics) *Store {
	if m == nil {
		m = metrics.NewNoopStoreMetrics()
	}
	return &Store{
		data:    make(map[string][]byte),
		metrics: m,
	}
}

func (s *Store) Get(ctx context.Context, key string) (data []byte, err error) {
	defer func(start time.Time) {
		blob.Instrument(s.metrics, backendName, "get", start, len(data), err)
	}(time.Now())

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := blob.ValidateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	v, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return nil, blob.ErrNotFound
	}

	return append([]byte(nil), v...), nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) (err error) {
	defer func(start time.Time) {
		blob.Instrument(s.metrics, backendName, "put", start, len(data), err)
	}(time.Now())

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := blob.ValidateKey(key); err != nil {
		return err
	}

	v := make([]byte, len(data))
	copy(v, data)

	s.mu.Lock()
	s.size += int64(len(v)) - int64(len(s.data[key]))
	s.data[key] = v
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) (err error) {
	defer func(start time.Time) {
		blob.Instrument(s.metrics, backendName, "delete", start, 0, err)
	}(time.Now())

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := blob.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return blob.ErrNotFound
	}
	s.size -= int64(len(v))
	delete(s.data, key)
	return nil
}

func (s *Store) Exists(ctx context.Context, key string) (ok bool, err error) {
	defer func(start time.Time) {
		blob.Instrument(s.metrics, backendName, "exists", start, 0, err)
	}(time.Now())

	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := blob.ValidateKey(key); err != nil {
		return false, err
	}

	s.mu.RLock()
	_, ok = s.data[key]
	s.mu.RUnlock()
	return ok, nil
}

// Len returns the number of stored blobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Size returns the total number of stored bytes.
func (s *Store) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.data = make(map[string][]byte)
	s.size = 0
	s.mu.Unlock()
	return nil
}
