package eviction

import (
	"context"
	"time"

	"github.com/marmos91/evnet/internal/logger"
	"github.com/marmos91/evnet/pkg/connection"
)

// CloseFunc closes an idle record. It is responsible for untracking it.
type CloseFunc func(rec *connection.Record)

// Evictor periodically closes records idle for longer than IdleTimeout.
type Evictor struct {
	tracker     *Tracker
	idleTimeout time.Duration
	interval    time.Duration
	closeFn     CloseFunc
	now         func() time.Time
}

// NewEvictor creates an Evictor. A zero interval defaults to a quarter of
// idleTimeout, with a floor of one second.
func NewEvictor(tracker *Tracker, idleTimeout, interval time.Duration, closeFn CloseFunc) *Evictor {
	if interval <= 0 {
		interval = idleTimeout / 4
		if interval < time.Second {
			interval = time.Second
		}
	}
	return &Evictor{
		tracker:     tracker,
		idleTimeout: idleTimeout,
		interval:    interval,
		closeFn:     closeFn,
		now:         time.Now,
	}
}

// Sweep closes every expired record once and returns how many were closed.
func (e *Evictor) Sweep() int {
	expired := e.tracker.Expired(e.now(), e.idleTimeout)
	for _, rec := range expired {
		logger.Debug("Evicting idle connection fd=%d id=%s", rec.FD(), rec.ID())
		e.closeFn(rec)
	}
	return len(expired)
}

// Run sweeps every interval until ctx is cancelled. An idle timeout of zero
// disables eviction and Run just waits for ctx.
func (e *Evictor) Run(ctx context.Context) {
	if e.idleTimeout <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := e.Sweep(); n > 0 {
				logger.Info("Evicted %d idle connections (tracked=%d)", n, e.tracker.Len())
			}
		}
	}
}
