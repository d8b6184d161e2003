// Package httpx serves the operational endpoints of the distributor: liveness,
// readiness and Prometheus metrics.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 10 * time.Second

// OpsOptions configures the ops router and server.
type OpsOptions struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	Logger            *slog.Logger
	// Checks back /readyz. No checks means always ready.
	Checks       []ReadinessCheck
	CheckTimeout time.Duration
	// Gatherer backs /metrics; defaults to the global registry.
	Gatherer prometheus.Gatherer
}

// NewOpsRouter builds the handler serving /healthz, /readyz and /metrics.
func NewOpsRouter(opts OpsOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(Recover(logger), Logging(logger))

	r.Get("/healthz", healthHandler)
	r.Head("/healthz", healthHandler)
	r.Get("/readyz", readinessHandler(opts.Checks, opts.CheckTimeout))
	r.Mount("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog: slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}))
	return r
}

// OpsServer runs the ops router until its context ends.
type OpsServer struct {
	server *http.Server
	logger *slog.Logger
	checks []string
}

// NewOpsServer constructs an OpsServer.
func NewOpsServer(opts OpsOptions) *OpsServer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "ops_http")
	opts.Logger = logger

	addr := opts.Addr
	if addr == "" {
		addr = ":9090"
	}
	readHeader := opts.ReadHeaderTimeout
	if readHeader <= 0 {
		readHeader = 5 * time.Second
	}

	return &OpsServer{
		server: &http.Server{
			Addr:              addr,
			Handler:           NewOpsRouter(opts),
			ReadHeaderTimeout: readHeader,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
		checks: checkNames(opts.Checks),
	}
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *OpsServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *OpsServer) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.InfoContext(ctx, "starting ops HTTP server", "addr", ln.Addr().String(), "readiness_checks", s.checks)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return fmt.Errorf("ops http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown ops http server: %w", err)
	}
	s.logger.InfoContext(ctx, "ops HTTP server stopped")
	return nil
}
