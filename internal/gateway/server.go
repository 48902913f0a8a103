// Package gateway exposes device reads, directory listings, file search and
// file transfer over HTTP. Every request opens its own device connection.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tturner/mcgw/internal/config"
	"github.com/tturner/mcgw/internal/logging"
	"github.com/tturner/mcgw/internal/mc"
	"github.com/tturner/mcgw/internal/metrics"
	"github.com/tturner/mcgw/internal/plc"
	"github.com/tturner/mcgw/internal/store"
)

// RequestIDHeader carries the per-request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// DialFunc returns a dialer for host:port.
type DialFunc func(host string, port int) mc.Dialer

// PLCDialFunc retargets base for every request, keeping its options.
func PLCDialFunc(base *plc.Dialer) DialFunc {
	return func(host string, port int) mc.Dialer {
		d := *base
		d.Host, d.Port = host, port
		return &d
	}
}

// Options configures a Server.
type Options struct {
	Gateway config.GatewayConfig
	Files   config.FilesConfig
	// Host and Port are the default target when a request names none.
	Host   string
	Port   int
	Dial   DialFunc
	Layout mc.Layout
	// Store is optional; without it files are never persisted.
	Store      store.Store
	Prometheus *metrics.Prometheus
	Logger     *logging.Logger
}

// Server is the HTTP gateway.
type Server struct {
	opts   Options
	logger *logging.Logger
	mux    *http.ServeMux
}

// New builds the gateway and its routes.
func New(opts Options) (*Server, error) {
	if opts.Dial == nil {
		return nil, fmt.Errorf("gateway: dial function is required")
	}
	if opts.Layout == nil {
		return nil, fmt.Errorf("gateway: listing layout is required")
	}
	if opts.Gateway.Persist && opts.Store == nil {
		return nil, fmt.Errorf("gateway: persist requires a store")
	}
	s := &Server{opts: opts, logger: opts.Logger, mux: http.NewServeMux()}

	s.mux.HandleFunc("POST /api/read", s.handleReadPost)
	s.mux.HandleFunc("GET /api/read/{device}/{addr}/{length}", s.handleReadGet)
	s.mux.HandleFunc("GET /api/fileinfo/{drive}", s.handleFileInfo)
	s.mux.HandleFunc("GET /api/search/{drive}", s.handleSearch)
	s.mux.HandleFunc("GET /api/file/{drive}", s.handleFile)
	if opts.Store != nil {
		s.mux.HandleFunc("GET /api/records", s.handleRecords)
		s.mux.HandleFunc("GET /api/records/{id}", s.handleRecord)
	}
	if opts.Prometheus != nil {
		s.mux.Handle("GET /metrics", opts.Prometheus.Handler())
	}
	return s, nil
}

// Handler returns the routed handler wrapped with request IDs and logging.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.mux)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Verbose("%s %s -> %d (%s) id=%s", r.Method, r.URL.Path, rec.status,
			time.Since(start).Round(time.Microsecond), id)
	})
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Gateway.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Gateway.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.Gateway.ReadTimeout,
		WriteTimeout: s.opts.Gateway.WriteTimeout,
	}
	s.logger.Info("Gateway listening on %s (PLC %s:%d)", ln.Addr(), s.opts.Host, s.opts.Port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.opts.Gateway.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown gateway: %w", err)
	}
	s.logger.Info("Gateway stopped")
	return nil
}
