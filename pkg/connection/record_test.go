package connection

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSocket struct {
	fd     int
	closes int
	mu     sync.Mutex
}

func (s *fakeSocket) FD() int { return s.fd }
func (s *fakeSocket) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 4000 + s.fd}
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	if s.closes > 1 {
		return errors.New("already closed")
	}
	return nil
}

type countingState struct {
	BaseState
	released int
}

func (s *countingState) Release() {
	s.released++
	s.BaseState.Release()
}

func newTestRecord(fd int) (*Record, *fakeSocket) {
	sock := &fakeSocket{fd: fd}
	return NewRecord(sock, 16), sock
}

func TestRecord_ReplaceWatcherReleasesPreviousOnce(t *testing.T) {
	rec, _ := newTestRecord(3)

	released := map[string]int{}
	release := func(payload any) { released[payload.(string)]++ }

	first := NewWatcher(EventRead, "first", release)
	second := NewWatcher(EventRead, "second", release)

	rec.SetReadWatcher(first)
	assert.Empty(t, released)

	rec.SetReadWatcher(second)
	assert.Equal(t, 1, released["first"])
	assert.Equal(t, 0, released["second"])
	assert.Same(t, second, rec.ReadWatcher())

	// Re-setting the installed watcher must not free it.
	rec.SetReadWatcher(second)
	assert.Equal(t, 0, released["second"])

	require.NoError(t, rec.Close())
	assert.Equal(t, 1, released["first"])
	assert.Equal(t, 1, released["second"])
}

func TestRecord_WriteWatcherPayloadFreedOnClose(t *testing.T) {
	rec, _ := newTestRecord(4)

	var freed []byte
	w := NewWatcher(EventWrite, []byte("pending"), func(p any) { freed = p.([]byte) })
	rec.SetWriteWatcher(w)

	require.NoError(t, rec.Close())
	assert.Equal(t, "pending", string(freed))
	assert.Nil(t, w.Payload())

	// A second release through any path is a no-op.
	freed = nil
	w.Release()
	assert.Nil(t, freed)
}

func TestRecord_SetNilWatcherReleasesCurrent(t *testing.T) {
	rec, _ := newTestRecord(5)

	count := 0
	rec.SetWriteWatcher(NewWatcher(EventWrite, nil, func(any) { count++ }))
	rec.SetWriteWatcher(nil)

	assert.Equal(t, 1, count)
	assert.Nil(t, rec.WriteWatcher())
}

func TestRecord_AtMostOneProcessingState(t *testing.T) {
	rec, _ := newTestRecord(6)

	a := &countingState{}
	b := &countingState{}

	rec.SetProcessingState(a)
	rec.SetProcessingState(a)
	assert.Equal(t, 0, a.released)

	rec.SetProcessingState(b)
	assert.Equal(t, 1, a.released)
	assert.Same(t, b, rec.ProcessingState())

	rec.DeleteProcessingState()
	assert.Equal(t, 1, b.released)
	assert.Nil(t, rec.ProcessingState())

	// Deleting again does nothing.
	rec.DeleteProcessingState()
	assert.Equal(t, 1, b.released)
	assert.False(t, rec.Closed())
}

func TestRecord_BusyFlag(t *testing.T) {
	rec, _ := newTestRecord(7)

	assert.False(t, rec.Busy())
	assert.True(t, rec.TryAcquire())
	assert.False(t, rec.TryAcquire())
	assert.True(t, rec.Busy())

	rec.SetFree()
	assert.False(t, rec.Busy())

	rec.SetBusy()
	assert.True(t, rec.Busy())
}

func TestRecord_Buffers(t *testing.T) {
	rec, _ := newTestRecord(8)

	assert.False(t, rec.HasRequestData())
	assert.False(t, rec.HasResponseData())

	rec.PushRequestData([]byte("GET / HTTP/1.1\r\n"))
	assert.True(t, rec.HasRequestData())
	assert.False(t, rec.HasResponseData())

	rec.PushResponseData([]byte("HTTP/1.1 200 OK\r\n"))
	assert.True(t, rec.HasResponseData())
	assert.Equal(t, "HTTP/1.1 200 OK\r\n", string(rec.ResponseBuffer().Bytes()))
	assert.Equal(t, "GET / HTTP/1.1\r\n", string(rec.RequestBuffer().Bytes()))
}

func TestRecord_TouchAndIdle(t *testing.T) {
	rec, _ := newTestRecord(9)

	before := rec.LastUse()
	time.Sleep(2 * time.Millisecond)
	rec.Touch()
	assert.Greater(t, rec.LastUse(), before)

	idle := rec.IdleFor(time.Now().Add(time.Second))
	assert.GreaterOrEqual(t, idle, time.Second)
}

func TestRecord_CloseIsIdempotent(t *testing.T) {
	rec, sock := newTestRecord(10)

	st := &countingState{}
	rec.SetProcessingState(st)
	rec.PushRequestData([]byte("abc"))

	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())

	assert.Equal(t, 1, sock.closes)
	assert.Equal(t, 1, st.released)
	assert.True(t, rec.Closed())
	assert.False(t, rec.HasRequestData())
	assert.Nil(t, rec.ProcessingState())
}

func TestRecord_Identity(t *testing.T) {
	a, _ := newTestRecord(11)
	b, _ := newTestRecord(11)

	assert.Equal(t, 11, a.FD())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.False(t, a.Handle().Valid())

	a.SetHandle(Handle{Index: 2, Generation: 1})
	assert.True(t, a.Handle().Valid())
}

func TestBaseState_AdvanceIsMonotonic(t *testing.T) {
	var s BaseState
	s.Init(nil)

	assert.Equal(t, StatusInitial, s.Status())
	s.Advance(10)
	s.Advance(10)
	assert.False(t, IsComplete(s.Status()))

	assert.Panics(t, func() { s.Advance(5) })

	s.Advance(StatusComplete)
	assert.True(t, IsComplete(s.Status()))
	assert.True(t, IsComplete(StatusError))
}
