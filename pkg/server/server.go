// Package server wires the readiness source, the dispatch engine and an
// http.Handler into a runnable HTTP/1.1 server and owns their lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/marmos91/evnet/internal/logger"
	"github.com/marmos91/evnet/pkg/dispatcher"
	"github.com/marmos91/evnet/pkg/metrics"
	"github.com/marmos91/evnet/pkg/protocol/http1"
	"github.com/marmos91/evnet/pkg/reactor"
)

// DefaultShutdownTimeout bounds how long Serve waits for in-flight handler
// steps once shutdown starts.
const DefaultShutdownTimeout = 30 * time.Second

var (
	// ErrAlreadyServing is returned by a second call to Serve.
	ErrAlreadyServing = errors.New("server: Serve already called")

	// ErrServerClosed is returned by Serve after Close.
	ErrServerClosed = errors.New("server: closed")
)

// Config groups the component configurations.
type Config struct {
	Reactor    reactor.Config
	Dispatcher dispatcher.Config
	HTTP       http1.Config

	// ShutdownTimeout is the maximum time to wait for workers to finish.
	ShutdownTimeout time.Duration

	// StatsLogInterval is how often engine statistics are logged.
	// 0 disables periodic logging.
	StatsLogInterval time.Duration
}

// Metrics holds the optional collectors handed to the components.
// Nil fields select no-op implementations.
type Metrics struct {
	Dispatcher metrics.DispatcherMetrics
	Reactor    metrics.ReactorMetrics
}

// Stats is a point-in-time view of the server, served on /stats.
type Stats struct {
	Dispatcher      dispatcher.Stats `json:"dispatcher"`
	OpenConnections int              `json:"open_connections"`
	Uptime          string           `json:"uptime"`
}

// Server runs an http.Handler on the event-driven engine.
//
// Lifecycle:
//  1. Creation: New() binds the listener and starts the dispatcher
//  2. Startup: Serve() runs the event loop until ctx is cancelled
//  3. Shutdown: the dispatcher is stopped and drained first, then the event
//     loop closes every remaining connection
//
// Serve may be called only once. A Server that is never served must be
// released with Close.
type Server struct {
	config     Config
	reactor    *reactor.Reactor
	dispatcher *dispatcher.Dispatcher

	served  atomic.Bool
	closed  atomic.Bool
	started atomic.Int64
}

// New creates a Server serving handler.
//
// The listener is bound immediately so Addr is valid before Serve is called.
//
// Panics if handler is nil (indicates programmer error).
func New(config Config, handler http.Handler, m Metrics) (*Server, error) {
	if handler == nil {
		panic("server: nil handler")
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultShutdownTimeout
	}

	r, err := reactor.New(config.Reactor, m.Reactor)
	if err != nil {
		return nil, fmt.Errorf("failed to create reactor: %w", err)
	}

	d := dispatcher.New(http1.NewFactory(handler, config.HTTP), nil, r, config.Dispatcher, m.Dispatcher)

	return &Server{
		config:     config,
		reactor:    r,
		dispatcher: d,
	}, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() net.Addr {
	return s.reactor.Addr()
}

// Stats returns a snapshot of the engine counters.
func (s *Server) Stats() Stats {
	stats := Stats{
		Dispatcher:      s.dispatcher.Stats(),
		OpenConnections: s.reactor.ActiveConnections(),
	}
	if started := s.started.Load(); started != 0 {
		stats.Uptime = time.Since(time.Unix(0, started)).Truncate(time.Second).String()
	}
	return stats
}

// Serve runs the server and blocks until ctx is cancelled or the event loop
// fails.
//
// Returns:
//   - nil on graceful shutdown after ctx cancellation
//   - the event loop error if it stopped on its own
//   - ErrAlreadyServing on a second call
func (s *Server) Serve(ctx context.Context) error {
	if !s.served.CompareAndSwap(false, true) {
		if s.closed.Load() {
			return ErrServerClosed
		}
		return ErrAlreadyServing
	}
	s.started.Store(time.Now().UnixNano())

	// The event loop outlives ctx: workers still signal it while draining.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- s.reactor.Serve(loopCtx, s.dispatcher)
	}()

	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	if s.config.StatsLogInterval > 0 {
		go s.logStats(statsCtx, s.config.StatsLogInterval)
	}

	logger.Info("Server listening on %s", s.Addr())

	var serveErr error
	loopExited := false
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received (reason: %v)", ctx.Err())
	case err := <-loopDone:
		loopExited = true
		serveErr = err
		if err != nil {
			logger.Error("Event loop failed: %v", err)
		}
	}

	s.stopDispatcher()

	stopLoop()
	if !loopExited {
		if err := <-loopDone; err != nil {
			logger.Error("Event loop shutdown error: %v", err)
		}
	}

	logger.Info("Server stopped")
	return serveErr
}

// Close stops the dispatcher's primary worker and closes the listener of a
// Server that was never served. Once Serve has been called, shutdown belongs
// to Serve and Close returns ErrAlreadyServing.
func (s *Server) Close() error {
	if !s.served.CompareAndSwap(false, true) {
		if s.closed.Load() {
			return ErrServerClosed
		}
		return ErrAlreadyServing
	}
	s.closed.Store(true)

	s.stopDispatcher()
	if err := s.reactor.Close(); err != nil {
		return fmt.Errorf("failed to close reactor: %w", err)
	}
	logger.Info("Server closed without serving")
	return nil
}

// stopDispatcher refuses new work and waits for running steps to finish.
func (s *Server) stopDispatcher() {
	s.dispatcher.Stop()
	s.dispatcher.Release()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.dispatcher.Wait(ctx); err != nil {
		logger.Warn("Dispatcher workers still running after %v: %v", s.config.ShutdownTimeout, err)
		return
	}
	logger.Debug("Dispatcher drained")
}

// logStats periodically logs the engine counters.
func (s *Server) logStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.Stats()
			logger.Info("Stats: open=%d active=%d total=%d peak=%d refused=%d queued=%d threads=%d/%d",
				st.OpenConnections,
				st.Dispatcher.CurrentConnections,
				st.Dispatcher.TotalConnections,
				st.Dispatcher.MaxConcurrentConnections,
				st.Dispatcher.RefusedConnections,
				st.Dispatcher.QueuedConnections,
				st.Dispatcher.CurrentThreads,
				st.Dispatcher.MaxThreads)
		}
	}
}
