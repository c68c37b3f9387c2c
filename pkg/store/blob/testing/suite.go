package testing

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/marmos91/evnet/pkg/store/blob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreTestSuite exercises the blob.Store contract. It is shared by every
// backend so they behave identically from the HTTP handler's point of view.
//
// Usage:
//
//	func TestMemoryStore(t *testing.T) {
//	    suite := &blobtesting.StoreTestSuite{
//	        NewStore: func(t *testing.T) blob.Store { return memory.New(nil) },
//	    }
//	    suite.Run(t)
//	}
type StoreTestSuite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func(t *testing.T) blob.Store
}

// Run executes all tests in the suite.
func (suite *StoreTestSuite) Run(t *testing.T) {
	t.Run("PutGet", suite.testPutGet)
	t.Run("Overwrite", suite.testOverwrite)
	t.Run("GetMissing", suite.testGetMissing)
	t.Run("Delete", suite.testDelete)
	t.Run("EmptyValue", suite.testEmptyValue)
	t.Run("ReturnedSliceIsCopy", suite.testReturnedSliceIsCopy)
	t.Run("InvalidKey", suite.testInvalidKey)
	t.Run("CancelledContext", suite.testCancelledContext)
	t.Run("Concurrent", suite.testConcurrent)
}

func (suite *StoreTestSuite) newStore(t *testing.T) blob.Store {
	t.Helper()
	s := suite.NewStore(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func (suite *StoreTestSuite) testPutGet(t *testing.T) {
	ctx := context.Background()
	s := suite.newStore(t)

	require.NoError(t, s.Put(ctx, "a/b.txt", []byte("hello")))

	data, err := s.Get(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	ok, err := s.Exists(ctx, "a/b.txt")
	require.NoError(t, err)
	assert.True(t, ok)
}

func (suite *StoreTestSuite) testOverwrite(t *testing.T) {
	ctx := context.Background()
	s := suite.newStore(t)

	require.NoError(t, s.Put(ctx, "k", []byte("first")))
	require.NoError(t, s.Put(ctx, "k", []byte("second")))

	data, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), data)
}

func (suite *StoreTestSuite) testGetMissing(t *testing.T) {
	ctx := context.Background()
	s := suite.newStore(t)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, blob.ErrNotFound)

	ok, err := s.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func (suite *StoreTestSuite) testDelete(t *testing.T) {
	ctx := context.Background()
	s := suite.newStore(t)

	require.NoError(t, s.Put(ctx, "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, blob.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "k"), blob.ErrNotFound)
}

func (suite *StoreTestSuite) testEmptyValue(t *testing.T) {
	ctx := context.Background()
	s := suite.newStore(t)

	require.NoError(t, s.Put(ctx, "empty", nil))

	data, err := s.Get(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, data)

	ok, err := s.Exists(ctx, "empty")
	require.NoError(t, err)
	assert.True(t, ok)
}

func (suite *StoreTestSuite) testReturnedSliceIsCopy(t *testing.T) {
	ctx := context.Background()
	s := suite.newStore(t)

	input := []byte("immutable")
	require.NoError(t, s.Put(ctx, "k", input))
	input[0] = 'X'

	data, err := s.Get(ctx, "k")
	require.NoError(t, err)
	data[1] = 'Y'

	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("immutable"), again)
}

func (suite *StoreTestSuite) testInvalidKey(t *testing.T) {
	ctx := context.Background()
	s := suite.newStore(t)

	assert.ErrorIs(t, s.Put(ctx, "", []byte("v")), blob.ErrInvalidKey)
	assert.ErrorIs(t, s.Put(ctx, "../escape", []byte("v")), blob.ErrInvalidKey)

	_, err := s.Get(ctx, "/abs")
	assert.ErrorIs(t, err, blob.ErrInvalidKey)
}

func (suite *StoreTestSuite) testCancelledContext(t *testing.T) {
	s := suite.newStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Put(ctx, "k", []byte("v")), context.Canceled)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func (suite *StoreTestSuite) testConcurrent(t *testing.T) {
	ctx := context.Background()
	s := suite.newStore(t)

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			assert.NoError(t, s.Put(ctx, key, bytes.Repeat([]byte{byte(i)}, 128)))
		}(i)
	}
	wg.Wait()

	for i := 0; i < writers; i++ {
		data, err := s.Get(ctx, string(rune('a'+i)))
		require.NoError(t, err)
		assert.Equal(t, bytes.Repeat([]byte{byte(i)}, 128), data)
	}
}
