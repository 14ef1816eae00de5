// Package server exposes board documents over HTTP.
//
//	GET  /api/meeting/{id}       read the whole document
//	PUT  /api/meeting/{id}       replace the whole document
//	GET  /api/meeting/{id}/live  websocket feed of every successful write
//	GET  /healthz
//	GET  /metrics                on MetricsAddr instead when that is set
//
// Every /api request must carry the shared credential as a bearer token.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/idilsaglam/board/internal/store"
)

// Config holds server settings.
type Config struct {
	Addr string
	// Token is the shared credential clients present as "Bearer <token>".
	Token string
	// BoardIDs are created empty by Seed when missing.
	BoardIDs []string
	// MetricsAddr, when set, moves /metrics off the API listener; RunMetrics
	// serves it there.
	MetricsAddr string
}

type Server struct {
	cfg       Config
	store     store.Store
	logger    *zap.Logger
	hub       *Hub
	metrics   *metrics
	gatherer  prometheus.Gatherer
	validator *validator

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New builds a server over st. A nil registry gets a private one.
func New(cfg Config, st store.Store, logger *zap.Logger, reg *prometheus.Registry) (*Server, error) {
	cfg.Token = strings.TrimSpace(cfg.Token)
	if cfg.Token == "" {
		return nil, errors.New("server: token is required")
	}
	if st == nil {
		return nil, errors.New("server: store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m, err := newMetrics(reg)
	if err != nil {
		return nil, err
	}
	v, err := newValidator()
	if err != nil {
		return nil, err
	}
	logger = logger.Named("server")
	hub := NewHub(logger)
	hub.gauge = m.live
	return &Server{
		cfg:       cfg,
		store:     st,
		logger:    logger,
		hub:       hub,
		metrics:   m,
		gatherer:  reg,
		validator: v,
		locks:     map[string]*sync.Mutex{},
	}, nil
}

// Seed makes sure every configured board has a record.
func (s *Server) Seed(ctx context.Context) error {
	for _, id := range s.cfg.BoardIDs {
		if err := s.store.Ensure(ctx, id); err != nil {
			return err
		}
		s.logger.Info("board ready", zap.String("board", id))
	}
	return nil
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.withRequestID, s.withAccessLog, withSecurityHeaders)

	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if s.cfg.MetricsAddr == "" {
		r.Methods(http.MethodGet).Path("/metrics").Handler(s.MetricsHandler())
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireToken)
	api.Path("/meeting/{id}/live").HandlerFunc(s.handleLive)
	api.Path("/meeting/{id}").HandlerFunc(s.handleMeeting)
	return r
}

// MetricsHandler serves the Prometheus exposition.
func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}

// Run serves the API until ctx is cancelled, then closes live feeds and shuts
// down.
func (s *Server) Run(ctx context.Context) error {
	defer s.hub.Close()
	return s.listen(ctx, "api", s.cfg.Addr, s.Handler(), s.hub.Close)
}

// RunMetrics serves /metrics on MetricsAddr until ctx is cancelled.
func (s *Server) RunMetrics(ctx context.Context) error {
	if s.cfg.MetricsAddr == "" {
		return errors.New("server: metrics address is not set")
	}
	r := mux.NewRouter()
	r.Methods(http.MethodGet).Path("/metrics").Handler(s.MetricsHandler())
	return s.listen(ctx, "metrics", s.cfg.MetricsAddr, r, nil)
}

// listen runs one HTTP listener until ctx is cancelled. beforeShutdown runs
// once ctx is done, ahead of the graceful shutdown.
func (s *Server) listen(ctx context.Context, name, addr string, h http.Handler, beforeShutdown func()) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("listener", name), zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	if beforeShutdown != nil {
		beforeShutdown()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("stopped", zap.String("listener", name))
	return <-errCh
}

// Close disconnects every live subscriber.
func (s *Server) Close() {
	s.hub.Close()
}

// lock serializes writes to one board so a conditional check and the write
// that follows it see the same record.
func (s *Server) lock(id string) func() {
	s.locksMu.Lock()
	m, ok := s.locks[id]
	if !ok {
		m = &sync.Mutex{}
		s.locks[id] = m
	}
	s.locksMu.Unlock()
	m.Lock()
	return m.Unlock
}

type ctxKey int

const requestIDKey ctxKey = iota

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.metrics.observeRequest(r.Method, m.Code, m.Duration)
		s.logger.Info("handled",
			zap.String("method", r.Method),
			zap.String("url", r.URL.String()),
			zap.Int("status", m.Code),
			zap.Duration("duration", m.Duration),
			zap.String("request_id", requestID(r.Context())),
		)
	})
}

func withSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
