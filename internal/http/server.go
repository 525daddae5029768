package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/Clark-Hu/movie-catalog/internal/config"
	"github.com/Clark-Hu/movie-catalog/internal/metrics"
	"github.com/Clark-Hu/movie-catalog/internal/repository"
)

// HealthChecker reports whether the backing store is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg     config.Config
	health  HealthChecker
	repo    *repository.Repository
	metrics *metrics.Metrics
	logger  zerolog.Logger
	router  chi.Router
	httpSrv *http.Server
}

// New constructs the HTTP server with base middleware and routes. m may be nil
// to run without instrumentation.
func New(cfg config.Config, health HealthChecker, repo *repository.Repository, m *metrics.Metrics, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		health:  health,
		repo:    repo,
		metrics: m,
		logger:  logger.With().Str("component", "http").Logger(),
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(s.logger))
	if s.metrics != nil {
		r.Use(s.metrics.Middleware)
	}
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))
	if s.cfg.RateLimitRequests > 0 {
		r.Use(httprate.Limit(
			s.cfg.RateLimitRequests,
			time.Duration(s.cfg.RateLimitWindowSecs)*time.Second,
			httprate.WithKeyFuncs(httprate.KeyByRealIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
				s.respondError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
			}),
		))
	}

	r.Get("/healthz", s.handleHealthz)
	if s.metrics != nil && s.cfg.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.Route("/api/movies", func(r chi.Router) {
		r.Get("/", s.handleListMovies)
		r.Post("/", s.handleCreateMovie)
		r.Get("/search", s.handleSearchMovies)
		r.Delete("/{id}", s.handleDeleteMovie)
		r.Post("/{id}/rate", s.handleRateMovie)
	})
	return r
}

// Handler exposes the router, mainly for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start boots the HTTP server and blocks until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.httpSrv.Addr).Msg("listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpSrv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.health == nil {
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "store not configured")
		return
	}
	if err := s.health.HealthCheck(ctx); err != nil {
		s.requestLogger(r).Warn().Err(err).Msg("health check failed")
		s.respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "database unreachable")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
