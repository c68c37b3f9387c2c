package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/marmos91/evnet/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// DefaultServerPort is the metrics port used when none is configured.
	DefaultServerPort = 9090

	shutdownGrace = 5 * time.Second
)

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// Address to bind. Empty binds all interfaces.
	Address string

	// Port to listen on. 0 selects DefaultServerPort; -1 picks an ephemeral
	// port.
	Port int
}

func (c ServerConfig) listenAddr() string {
	port := c.Port
	switch {
	case port == 0:
		port = DefaultServerPort
	case port < 0:
		port = 0
	}
	return net.JoinHostPort(c.Address, fmt.Sprint(port))
}

// Server exposes the global registry over HTTP.
//
// Endpoints:
//   - GET /metrics: Prometheus text or OpenMetrics exposition
//   - GET /: plain-text pointer to /metrics
//
// The exposition server runs on net/http, separate from the event-driven
// engine it observes, so a saturated engine can still be scraped.
type Server struct {
	config ServerConfig
	server *http.Server

	mu       sync.Mutex
	listener net.Listener
	stopOnce sync.Once
}

// NewServer creates a metrics server in a stopped state. Call Start to
// begin serving.
func NewServer(config ServerConfig) *Server {
	mux := http.NewServeMux()

	if reg := GetRegistry(); reg != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	} else {
		mux.HandleFunc("GET /metrics", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "metrics collection is disabled", http.StatusServiceUnavailable)
		})
	}

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = fmt.Fprintln(w, "evnet metrics are served on /metrics")
	})

	return &Server{
		config: config,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Start listens and serves until ctx is cancelled, then shuts down
// gracefully. It returns nil after a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.listenAddr())
	if err != nil {
		return fmt.Errorf("metrics server listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	logger.Info("Metrics server listening on %s", ln.Addr())

	errc := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err, ok := <-errc:
		if !ok {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the server down. It is safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var stopErr error
	s.stopOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			stopErr = fmt.Errorf("metrics server shutdown: %w", err)
			return
		}
		logger.Info("Metrics server stopped")
	})
	return stopErr
}

// Addr returns the bound address, or nil before Start has listened.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}
