// Package badger implements a persistent blob.Store on BadgerDB.
//
// Blobs are stored under a "blob:" key prefix so the database can host other
// namespaces later without a migration. Values are written in a single
// transaction each; BadgerDB provides crash recovery through its WAL.
package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/evnet/internal/logger"
	"github.com/marmos91/evnet/pkg/metrics"
	"github.com/marmos91/evnet/pkg/store/blob"
)

const (
	backendName = "badger"
	keyPrefix   = "blob:"

	defaultBlockCacheMB = 64
	defaultIndexCacheMB = 32

	// gcDiscardRatio is the fraction of stale data a value log file must
	// contain before it is rewritten.
	gcDiscardRatio = 0.5
)

// Config contains configuration for the BadgerDB blob store.
type Config struct {
	// DBPath is the directory holding the database. Created if missing.
	// Ignored when InMemory is set.
	DBPath string `mapstructure:"db_path"`

	// InMemory keeps the whole database in memory. Intended for tests.
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 64).
	BlockCacheSizeMB int64 `mapstructure:"block_cache_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 32).
	IndexCacheSizeMB int64 `mapstructure:"index_cache_mb"`

	// Compression enables ZSTD compression of stored blocks.
	Compression bool `mapstructure:"compression"`

	// GCInterval is how often the value log garbage collector runs.
	// 0 disables background GC.
	GCInterval time.Duration `mapstructure:"gc_interval"`
}

// Store is a blob.Store backed by BadgerDB.
type Store struct {
	db      *badgerdb.DB
	metrics metrics.StoreMetrics

	stopGC context.CancelFunc
	gcDone chan struct{}
}

// New opens the database described by cfg. m may be nil.
func New(ctx context.Context, cfg Config, m metrics.StoreMetrics) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !cfg.InMemory && cfg.DBPath == "" {
		return nil, errors.New("badger blob store: db_path is required")
	}
	if m == nil {
		m = metrics.NewNoopStoreMetrics()
	}

	var opts badgerdb.Options
	if cfg.InMemory {
		opts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badgerdb.DefaultOptions(cfg.DBPath)
	}
	opts = opts.WithLoggingLevel(badgerdb.WARNING)

	if cfg.Compression {
		opts = opts.WithCompression(options.ZSTD)
	} else {
		opts = opts.WithCompression(options.None)
	}

	blockCacheMB := cfg.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = defaultBlockCacheMB
	}
	indexCacheMB := cfg.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = defaultIndexCacheMB
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.DBPath, err)
	}

	s := &Store{db: db, metrics: m}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		gcCtx, cancel := context.WithCancel(context.Background())
		s.stopGC = cancel
		s.gcDone = make(chan struct{})
		go s.runGC(gcCtx, cfg.GCInterval)
	}

	return s, nil
}

func dbKey(key string) []byte {
	return []byte(keyPrefix + key)
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

	err = s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(dbKey(key))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return blob.ErrNotFound
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, fmt.Errorf("get %q: %w", key, err)
		}
		return nil, fmt.Errorf("failed to get blob %q: %w", key, err)
	}

	if data == nil {
		data = []byte{}
	}
	return data, nil
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

	value := make([]byte, len(data))
	copy(value, data)

	if err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(dbKey(key), value)
	}); err != nil {
		return fmt.Errorf("failed to put blob %q: %w", key, err)
	}
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

	err = s.db.Update(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(dbKey(key)); err != nil {
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				return blob.ErrNotFound
			}
			return err
		}
		return txn.Delete(dbKey(key))
	})
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return fmt.Errorf("delete %q: %w", key, err)
		}
		return fmt.Errorf("failed to delete blob %q: %w", key, err)
	}
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

	err = s.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(dbKey(key))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		ok = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check blob %q: %w", key, err)
	}
	return ok, nil
}

// Count returns the number of stored blobs. It scans keys only.
func (s *Store) Count(ctx context.Context) (int, error) {
	n := 0
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// runGC periodically rewrites value log files until ctx is cancelled.
func (s *Store) runGC(ctx context.Context, interval time.Duration) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rewritten := 0
			for s.db.RunValueLogGC(gcDiscardRatio) == nil {
				rewritten++
			}
			if rewritten > 0 {
				logger.Debug("badger blob store: value log GC rewrote %d file(s)", rewritten)
			}
		}
	}
}

// Close stops background GC and closes the database.
func (s *Store) Close() error {
	if s.stopGC != nil {
		s.stopGC()
		<-s.gcDone
		s.stopGC = nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}
