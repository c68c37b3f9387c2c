// Package eviction tracks open connection records and finds the ones that
// have been idle for too long.
//
// Records live in an arena addressed by connection.Handle (slot index plus a
// generation that changes every time a slot is reused), so a stale handle
// held by a closed connection can never reach a record that replaced it.
// A separate time-ordered list keeps the least recently used record at the
// front.
package eviction

import (
	"container/list"
	"sync"
	"time"

	"github.com/marmos91/evnet/pkg/connection"
)

type slot struct {
	rec        *connection.Record
	generation uint32
	elem       *list.Element // position in the LRU list, nil when free
}

// Tracker is the arena plus the LRU index. It is safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	slots []slot
	free  []uint32
	lru   *list.List // of uint32 slot indexes, front = least recently used
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{lru: list.New()}
}

// Track adds rec, stores its handle on the record and returns it.
func (t *Tracker) Track(rec *connection.Record) connection.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.slots = append(t.slots, slot{})
		idx = uint32(len(t.slots) - 1)
	}

	s := &t.slots[idx]
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	s.rec = rec
	s.elem = t.lru.PushBack(idx)

	h := connection.Handle{Index: idx, Generation: s.generation}
	rec.SetHandle(h)
	return h
}

// lookup returns the live slot for h, or nil. Must be called with t.mu held.
func (t *Tracker) lookup(h connection.Handle) *slot {
	if !h.Valid() || int(h.Index) >= len(t.slots) {
		return nil
	}
	s := &t.slots[h.Index]
	if s.rec == nil || s.generation != h.Generation {
		return nil
	}
	return s
}

// Get returns the record addressed by h.
func (t *Tracker) Get(h connection.Handle) (*connection.Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.lookup(h)
	if s == nil {
		return nil, false
	}
	return s.rec, true
}

// Touch refreshes the record's last-use timestamp and moves it to the back
// of the LRU list. Stale handles are ignored.
func (t *Tracker) Touch(h connection.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.lookup(h)
	if s == nil {
		return
	}
	s.rec.Touch()
	t.lru.MoveToBack(s.elem)
}

// Untrack removes the record addressed by h and frees its slot. It reports
// whether h was live.
func (t *Tracker) Untrack(h connection.Handle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.lookup(h)
	if s == nil {
		return false
	}
	t.lru.Remove(s.elem)
	s.rec = nil
	s.elem = nil
	t.free = append(t.free, h.Index)
	return true
}

// Len returns the number of tracked records.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Len()
}

// Expired returns the records idle for at least idle at now, least recently
// used first. Busy records are skipped. Nothing is removed.
func (t *Tracker) Expired(now time.Time, idle time.Duration) []*connection.Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []*connection.Record
	for e := t.lru.Front(); e != nil; e = e.Next() {
		rec := t.slots[e.Value.(uint32)].rec
		if rec.IdleFor(now) < idle {
			break
		}
		if rec.Busy() {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Each calls fn for every tracked record in LRU order. fn must not call back
// into the Tracker.
func (t *Tracker) Each(fn func(rec *connection.Record)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for e := t.lru.Front(); e != nil; e = e.Next() {
		fn(t.slots[e.Value.(uint32)].rec)
	}
}
