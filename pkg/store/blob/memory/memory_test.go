package memory

import (
	"context"
	"testing"
	"time"

	"github.com/marmos91/evnet/pkg/store/blob"
	blobtesting "github.com/marmos91/evnet/pkg/store/blob/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	suite := &blobtesting.StoreTestSuite{
		NewStore: func(t *testing.T) blob.Store { return New(nil) },
	}
	suite.Run(t)
}

type recordingMetrics struct {
	ops []string
}

func (m *recordingMetrics) ObserveOperation(backend, operation string, _ time.Duration, _ int64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ops = append(m.ops, backend+":"+operation+":"+status)
}

func TestMemoryStore_SizeAndMetrics(t *testing.T) {
	ctx := context.Background()
	m := &recordingMetrics{}
	s := New(m)

	require.NoError(t, s.Put(ctx, "a", []byte("1234")))
	require.NoError(t, s.Put(ctx, "b", []byte("12")))
	require.NoError(t, s.Put(ctx, "a", []byte("1")))
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, int64(3), s.Size())

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, blob.ErrNotFound)
	require.ErrorIs(t, s.Delete(ctx, ""), blob.ErrInvalidKey)

	assert.Equal(t, []string{
		"memory:put:ok",
		"memory:put:ok",
		"memory:put:ok",
		"memory:get:ok",
		"memory:delete:error",
	}, m.ops)

	require.NoError(t, s.Close())
	assert.Zero(t, s.Len())
	assert.Zero(t, s.Size())
}
