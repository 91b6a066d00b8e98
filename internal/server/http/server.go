// Package httpserver exposes login, time entry and report endpoints over HTTP.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/and161185/kizami/internal/errs"
	"github.com/and161185/kizami/internal/metrics"
	"github.com/and161185/kizami/internal/service"
)

// Server wires services into HTTP handlers.
type Server struct {
	auth    service.AuthService
	entries service.EntryService
	reports service.ReportService
	keys    service.APIKeyService
	metrics *metrics.Metrics
	log     *zap.Logger

	serveMetrics bool
	entryWrites  bool
	ready        func(context.Context) error

	router chi.Router
	srv    *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsEndpoint mounts GET /metrics.
func WithMetricsEndpoint() Option { return func(s *Server) { s.serveMetrics = true } }

// WithEntryWrites mounts POST /time-entries; it needs a database behind entries.
func WithEntryWrites() Option { return func(s *Server) { s.entryWrites = true } }

// WithReports mounts GET /api/v1/reports/hours behind API key auth.
func WithReports(reports service.ReportService, keys service.APIKeyService) Option {
	return func(s *Server) { s.reports, s.keys = reports, keys }
}

// WithReadiness makes /healthz report 503 while check fails.
func WithReadiness(check func(context.Context) error) Option {
	return func(s *Server) { s.ready = check }
}

// New constructs the server and its routes.
func New(auth service.AuthService, entries service.EntryService, m *metrics.Metrics, log *zap.Logger, opts ...Option) *Server {
	s := &Server{auth: auth, entries: entries, metrics: m, log: log}
	for _, o := range opts {
		o(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Recover(s.log))
	r.Use(Logging(s.log, s.metrics.Request))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: errs.ErrNotFound.Error()})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	})

	r.Get("/healthz", s.health)
	if s.serveMetrics {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Post("/login", s.login)
	r.Get("/time-options", s.timeOptions)
	r.Post("/time-entries/hours", s.hours)
	if s.entryWrites {
		r.With(BearerAuth(s.auth.VerifyToken)).Post("/time-entries", s.createEntry)
	}
	if s.reports != nil && s.keys != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(APIKeyAuth(s.keys.ValidateAPIKey, s.log))
			r.Get("/reports/hours", s.hoursReport)
		})
	}
	return r
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully within grace.
func (s *Server) ListenAndServe(ctx context.Context, addr string, grace time.Duration) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis, grace)
}

// Serve is ListenAndServe over an existing listener.
func (s *Server) Serve(ctx context.Context, lis net.Listener, grace time.Duration) error {
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", lis.Addr().String()))
		errCh <- s.srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		_ = s.srv.Close()
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
