// Package server exposes pool history over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/agentuity/yieldcache/cache"
	"github.com/agentuity/yieldcache/logger"
	"github.com/agentuity/yieldcache/yield"
	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 15 * time.Second

	tracerName = "github.com/agentuity/yieldcache/server"
)

// History is the part of yield.Service the server depends on.
type History interface {
	History(ctx context.Context, configID string) (bool, []yield.HistoryPoint, error)
	HourlyHistory(ctx context.Context, configID string) (bool, []yield.HistoryPoint, error)
	LendBorrowHistory(ctx context.Context, configID string) (bool, []yield.LendBorrowPoint, error)
}

// StatsProvider reports cache counters for the health endpoint.
type StatsProvider interface {
	Stats() cache.Stats
}

type Server struct {
	history History
	stats   StatsProvider
	mux     *http.ServeMux
	logger  logger.Logger
	clock   clockwork.Clock
}

type Option func(*Server)

func WithLogger(log logger.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.logger = log
		}
	}
}

// WithClock sets the clock used to compute cache headers.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithStats enables cache counters on /healthz.
func WithStats(stats StatsProvider) Option {
	return func(s *Server) { s.stats = stats }
}

type successBody struct {
	Status string `json:"status"`
	Data   any    `json:"data"`
}

type failBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// New returns a Server routing requests to history.
func New(history History, opts ...Option) *Server {
	s := &Server{
		history: history,
		mux:     http.NewServeMux(),
		logger:  logger.NewConsoleLogger(logger.LevelNone),
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	daily := MaxAge(24 * time.Hour)
	s.mux.Handle("GET /chart/{pool}", series(s, "chart", daily, history.History))
	s.mux.Handle("GET /chartHourly/{pool}", series(s, "chartHourly", FixedCache(), history.HourlyHistory))
	s.mux.Handle("GET /chartLendBorrow/{pool}", series(s, "chartLendBorrow", daily, history.LendBorrowHistory))
	s.mux.HandleFunc("GET /healthz", s.health)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("failed to write response: %s", err)
	}
}

func series[T any](s *Server, route string, header Header, fetch func(context.Context, string) (bool, []T, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pool := r.PathValue("pool")
		if !IsUUID(pool) {
			s.writeJSON(w, http.StatusBadRequest, "invalid configID!")
			return
		}
		ctx, span := otel.Tracer(tracerName).Start(r.Context(), route,
			trace.WithAttributes(attribute.String("yield.pool", pool)))
		defer span.End()

		found, data, err := fetch(ctx, pool)
		if err != nil {
			s.logger.WithContext(ctx).Error("%s for %s failed: %s", route, pool, err)
			s.writeJSON(w, http.StatusInternalServerError, failBody{Status: "error", Message: "internal error"})
			return
		}
		if !found {
			s.writeJSON(w, http.StatusNotFound, failBody{Status: "fail", Message: "Couldn't get data"})
			return
		}
		header(w.Header(), s.clock.Now())
		s.writeJSON(w, http.StatusOK, successBody{Status: "success", Data: data})
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.stats != nil {
		body["cache"] = s.stats.Stats()
	}
	s.writeJSON(w, http.StatusOK, body)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", addr)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}
	errs := make(chan error, 1)
	go func() {
		s.logger.Info("listening on %s", ln.Addr())
		errs <- srv.Serve(ln)
	}()
	select {
	case err := <-errs:
		return errors.Wrap(err, "serving")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutting down")
	}
	s.logger.Info("server stopped")
	return nil
}
