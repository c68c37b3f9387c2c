package eviction

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/evnet/pkg/connection"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopSocket struct{ fd int }

func (s nopSocket) FD() int              { return s.fd }
func (s nopSocket) RemoteAddr() net.Addr { return &net.TCPAddr{} }
func (s nopSocket) Close() error         { return nil }

func newRecord(fd int) *connection.Record {
	return connection.NewRecord(nopSocket{fd: fd}, 16)
}

func TestTracker_TrackGetUntrack(t *testing.T) {
	tr := NewTracker()
	a, b := newRecord(1), newRecord(2)

	ha := tr.Track(a)
	hb := tr.Track(b)
	assert.Equal(t, ha, a.Handle())
	assert.Equal(t, 2, tr.Len())

	got, ok := tr.Get(hb)
	require.True(t, ok)
	assert.Same(t, b, got)

	assert.True(t, tr.Untrack(ha))
	assert.False(t, tr.Untrack(ha))
	_, ok = tr.Get(ha)
	assert.False(t, ok)
	assert.Equal(t, 1, tr.Len())
}

func TestTracker_StaleHandleAfterSlotReuse(t *testing.T) {
	tr := NewTracker()
	old := newRecord(1)
	h := tr.Track(old)
	require.True(t, tr.Untrack(h))

	fresh := newRecord(2)
	h2 := tr.Track(fresh)
	assert.Equal(t, h.Index, h2.Index, "slot is reused")
	assert.NotEqual(t, h.Generation, h2.Generation)

	_, ok := tr.Get(h)
	assert.False(t, ok, "stale handle must not resolve")
	assert.False(t, tr.Untrack(h))
	tr.Touch(h)

	got, ok := tr.Get(h2)
	require.True(t, ok)
	assert.Same(t, fresh, got)
}

func TestTracker_ExpiredInLRUOrder(t *testing.T) {
	tr := NewTracker()
	recs := []*connection.Record{newRecord(1), newRecord(2), newRecord(3)}
	handles := make([]connection.Handle, len(recs))
	for i, r := range recs {
		handles[i] = tr.Track(r)
	}

	time.Sleep(5 * time.Millisecond)
	tr.Touch(handles[0])

	expired := tr.Expired(time.Now(), 4*time.Millisecond)
	require.Len(t, expired, 2)
	assert.Same(t, recs[1], expired[0])
	assert.Same(t, recs[2], expired[1])

	// Busy records are never evicted.
	require.True(t, recs[1].TryAcquire())
	expired = tr.Expired(time.Now(), 4*time.Millisecond)
	require.Len(t, expired, 1)
	assert.Same(t, recs[2], expired[0])

	// Nothing is old enough.
	assert.Empty(t, tr.Expired(time.Now(), time.Hour))
	assert.Equal(t, 3, tr.Len())
}

func TestTracker_Each(t *testing.T) {
	tr := NewTracker()
	for fd := 1; fd <= 3; fd++ {
		tr.Track(newRecord(fd))
	}

	var fds []int
	tr.Each(func(rec *connection.Record) { fds = append(fds, rec.FD()) })
	assert.Equal(t, []int{1, 2, 3}, fds)
}

func TestEvictor_SweepClosesExpired(t *testing.T) {
	tr := NewTracker()
	a, b := newRecord(1), newRecord(2)
	tr.Track(a)
	hb := tr.Track(b)

	var closed []int
	ev := NewEvictor(tr, time.Minute, 0, func(rec *connection.Record) {
		closed = append(closed, rec.FD())
		tr.Untrack(rec.Handle())
	})
	ev.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	tr.Touch(hb)
	assert.Equal(t, 2, ev.Sweep())
	assert.Equal(t, []int{1, 2}, closed)
	assert.Equal(t, 0, tr.Len())
	assert.Equal(t, 15*time.Second, ev.interval)
}

func TestEvictor_RunStopsOnCancel(t *testing.T) {
	tr := NewTracker()
	tr.Track(newRecord(1))

	var mu sync.Mutex
	closed := 0
	ev := NewEvictor(tr, time.Millisecond, 0, func(rec *connection.Record) {
		mu.Lock()
		closed++
		mu.Unlock()
		tr.Untrack(rec.Handle())
	})
	ev.interval = 2 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		ev.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return tr.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	<-done

	mu.Lock()
	assert.Equal(t, 1, closed)
	mu.Unlock()
}
