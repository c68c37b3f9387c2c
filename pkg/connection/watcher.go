package connection

import "sync"

// EventMask describes which readiness events a watcher is interested in.
type EventMask uint32

const (
	EventRead EventMask = 1 << iota
	EventWrite
)

// Watcher is an opaque readiness registration owned by exactly one Record.
//
// The readiness source creates watchers and attaches them to a Record; the
// Record releases them when they are replaced or when the Record is closed.
// Release runs the release function (with the attached payload) at most once,
// so replacing a watcher can never free it twice.
type Watcher struct {
	events  EventMask
	payload any
	release func(payload any)
	once    sync.Once
}

// NewWatcher creates a watcher for events with an optional payload. release
// is called exactly once, with payload, when the watcher is released. It may
// be nil.
func NewWatcher(events EventMask, payload any, release func(payload any)) *Watcher {
	return &Watcher{
		events:  events,
		payload: payload,
		release: release,
	}
}

// Events returns the readiness events this watcher was registered for.
func (w *Watcher) Events() EventMask {
	return w.events
}

// Payload returns the user data attached to the watcher.
func (w *Watcher) Payload() any {
	return w.payload
}

// Release frees the watcher and its payload. Subsequent calls are no-ops.
func (w *Watcher) Release() {
	w.once.Do(func() {
		if w.release != nil {
			w.release(w.payload)
		}
		w.payload = nil
	})
}
