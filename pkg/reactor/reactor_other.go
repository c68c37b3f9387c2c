//go:build !linux

package reactor

import (
	"context"
	"net"

	"github.com/marmos91/evnet/pkg/metrics"
)

// Reactor is unavailable on this platform.
type Reactor struct{}

// New always returns ErrUnsupportedPlatform.
func New(config Config, m metrics.ReactorMetrics) (*Reactor, error) {
	return nil, ErrUnsupportedPlatform
}

func (r *Reactor) Addr() net.Addr { return nil }

func (r *Reactor) ActiveConnections() int { return 0 }

func (r *Reactor) Serve(ctx context.Context, target Enqueuer) error {
	return ErrUnsupportedPlatform
}

func (r *Reactor) Stop() {}

func (r *Reactor) Close() error { return nil }

func (r *Reactor) ReceivedDataConsumed(fd int)            {}
func (r *Reactor) ErrorInReceivedData(fd int, fatal bool) {}
func (r *Reactor) DataReadyForSend(fd int)                {}
