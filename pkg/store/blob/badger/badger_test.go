package badger

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/evnet/pkg/store/blob"
	blobtesting "github.com/marmos91/evnet/pkg/store/blob/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerStore(t *testing.T) {
	suite := &blobtesting.StoreTestSuite{
		NewStore: func(t *testing.T) blob.Store {
			s, err := New(context.Background(), Config{InMemory: true}, nil)
			require.NoError(t, err)
			return s
		},
	}
	suite.Run(t)
}

func TestBadgerStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := New(ctx, Config{DBPath: dir, GCInterval: time.Hour}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "kept", []byte("value")))
	require.NoError(t, s.Put(ctx, "gone", []byte("x")))
	require.NoError(t, s.Delete(ctx, "gone"))
	require.NoError(t, s.Close())

	s, err = New(ctx, Config{DBPath: dir}, nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	data, err := s.Get(ctx, "kept")
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), data)

	ok, err := s.Exists(ctx, "gone")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New(context.Background(), Config{}, nil)
	assert.Error(t, err)
}

func TestNew_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(ctx, Config{InMemory: true}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
