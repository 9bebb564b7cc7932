// Package httpserver serves the Telegram webhook endpoint and a health check.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HealthFunc reports whether the service can serve requests.
type HealthFunc func(ctx context.Context) error

// Options configures the routes of the server.
type Options struct {
	// WebhookPath and Webhook are mounted together; both empty disables the route.
	WebhookPath string
	Webhook     http.Handler
	Health      HealthFunc
}

// Server wraps an http.Server with a chi router.
type Server struct {
	log             *slog.Logger
	srv             *http.Server
	shutdownTimeout time.Duration
}

// New creates a server listening on addr.
func New(log *slog.Logger, addr string, shutdownTimeout time.Duration, opts Options) *Server {
	log = log.With("component", "http_server")
	return &Server{
		log: log,
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(log, opts),
			ReadHeaderTimeout: 10 * time.Second,
		},
		shutdownTimeout: shutdownTimeout,
	}
}

// NewRouter builds the route table.
func NewRouter(log *slog.Logger, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(requestLogger(log))

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		if opts.Health != nil {
			if err := opts.Health(req.Context()); err != nil {
				log.WarnContext(req.Context(), "Health check failed", "error", err)
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("healthy"))
	})

	if opts.WebhookPath != "" && opts.Webhook != nil {
		r.Post(opts.WebhookPath, opts.Webhook.ServeHTTP)
	}

	return r
}

// Run listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", ln.Addr().String())
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server", "timeout", s.shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.log.Error("HTTP server forced to shutdown", "error", err)
		return fmt.Errorf("shutdown http server: %w", err)
	}
	s.log.Info("HTTP server stopped")
	return nil
}
