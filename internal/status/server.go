// Package status serves health, state snapshots and prometheus metrics.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	logx "charitybot/pkg/logx"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	Addr  string
	Pprof bool
}

// Server is the bot's local HTTP surface. It stays up in halt mode so the
// reason can be read from /healthz.
type Server struct {
	cfg    Config
	router *chi.Mux
	log    logx.Logger

	mu      sync.RWMutex
	halted  string
	sources map[string]func() any
	started time.Time
}

func New(cfg Config, log logx.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		router:  chi.NewRouter(),
		log:     log,
		sources: map[string]func() any{},
		started: time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.logRequests)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())
	if s.cfg.Pprof {
		s.router.Mount("/debug", middleware.Profiler())
	}
}

// Register adds a named section to /status. fn must be safe for concurrent use.
func (s *Server) Register(name string, fn func() any) {
	s.mu.Lock()
	s.sources[name] = fn
	s.mu.Unlock()
}

// SetHalted marks the bot as halted; /healthz then answers 503 with reason.
func (s *Server) SetHalted(reason string) {
	s.mu.Lock()
	s.halted = reason
	s.mu.Unlock()
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	reason := s.halted
	s.mu.RUnlock()

	if reason != "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "halted", "reason": reason})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	names := make([]string, 0, len(s.sources))
	for n := range s.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	fns := make([]func() any, len(names))
	for i, n := range names {
		fns[i] = s.sources[n]
	}
	halted := s.halted
	s.mu.RUnlock()

	out := map[string]any{
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}
	if halted != "" {
		out["halted"] = halted
	}
	for i, n := range names {
		out[n] = fns[i]()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method), logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()), logx.Duration("took", time.Since(start)))
	})
}

// Run listens on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("status server listening", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", s.cfg.Pprof))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
