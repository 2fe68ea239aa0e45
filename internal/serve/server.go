// Package serve exposes completed analysis results as a read-only JSON
// API: rankings, market detail, and the data-gap summary for the latest
// completed run.
package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/marketscope/internal/crosswalk"
	"github.com/sells-group/marketscope/internal/monitoring"
	"github.com/sells-group/marketscope/internal/store"
)

const shutdownTimeout = 10 * time.Second

// Server serves analysis results from the store. It never writes.
type Server struct {
	st        store.Store
	log       *zap.Logger
	collector *monitoring.Collector

	mu sync.Mutex
	cw *crosswalk.Store
}

// Option configures the server.
type Option func(*Server)

// WithCollector enables the /api/v1/status endpoint backed by the given
// health collector.
func WithCollector(c *monitoring.Collector) Option {
	return func(s *Server) { s.collector = c }
}

func NewServer(st store.Store, opts ...Option) *Server {
	s := &Server{
		st:  st,
		log: zap.L().With(zap.String("component", "serve")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/rankings/{metric}", s.handleRanking)
		r.Get("/markets", s.handleMarkets)
		r.Get("/markets/{cbsa}", s.handleMarket)
		r.Get("/gaps", s.handleGaps)
		if s.collector != nil {
			r.Get("/status", s.handleStatus)
		}
	})
	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.log.Info("shutting down server")
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			s.log.Warn("shutdown", zap.Error(err))
		}
	}()

	s.log.Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "serve: listen")
	}
	return nil
}

// crosswalk returns the newest loaded delineation, cached after the first
// request. A newly loaded vintage becomes visible on restart.
func (s *Server) crosswalk(ctx context.Context) (*crosswalk.Store, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cw != nil {
		return s.cw, nil
	}
	cw, err := s.st.LoadCrosswalk(ctx, 0)
	if err != nil {
		return nil, err
	}
	s.cw = cw
	return cw, nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}
