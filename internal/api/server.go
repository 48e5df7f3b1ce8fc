package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/seantiz/benchrun/internal/actions"
	"github.com/seantiz/benchrun/internal/catalog"
	"github.com/seantiz/benchrun/internal/engine"
	"github.com/seantiz/benchrun/internal/launcher"
	"github.com/seantiz/benchrun/internal/notify"
	"github.com/seantiz/benchrun/internal/store"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Deps are the application components the HTTP surface serves.
type Deps struct {
	Store     store.Store
	Catalog   *catalog.Registry
	Launchers *launcher.Registry
	Engine    *engine.Engine
	Actions   *actions.Actions
	Feed      *notify.Feed
}

// Server wraps the chi router and application dependencies.
type Server struct {
	router    *chi.Mux
	store     store.Store
	catalog   *catalog.Registry
	launchers *launcher.Registry
	engine    *engine.Engine
	actions   *actions.Actions
	feed      *notify.Feed
	logger    *slog.Logger
	addr      string
}

// NewServer creates and configures a new HTTP server.
func NewServer(addr string, d Deps, logger *slog.Logger) *Server {
	srv := &Server{
		router:    chi.NewRouter(),
		store:     d.Store,
		catalog:   d.Catalog,
		launchers: d.Launchers,
		engine:    d.Engine,
		actions:   d.Actions,
		feed:      d.Feed,
		logger:    logger,
		addr:      addr,
	}

	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Get("/v1/launchers", s.handleListLaunchers)
	s.router.Get("/v1/stats", s.handleGetStats)
	s.router.Get("/v1/notifications", s.handleListNotifications)

	s.router.Route("/v1/benchmarks", func(r chi.Router) {
		r.Get("/", s.handleListBenchmarks)
		r.Put("/{group}/{id}", s.handleSetBenchmarkEnabled)
	})

	s.router.Route("/v1/runs", func(r chi.Router) {
		r.Post("/", s.handleStartRun)
		r.Get("/", s.handleListRuns)
		r.Get("/active", s.handleActiveRun)
		r.Get("/{id}", s.handleGetRun)
		r.Get("/{id}/executions", s.handleListRunExecutions)
	})

	s.router.Route("/v1/executions", func(r chi.Router) {
		r.Get("/{id}", s.handleGetExecution)
		r.Get("/{id}/logs", s.handleStreamLogs)
		r.Get("/{id}/logs/history", s.handleGetLogHistory)
	})

	s.router.Route("/v1/actions", func(r chi.Router) {
		r.Post("/export", s.handleExport)
		r.Post("/upload", s.handleUpload)
		r.Get("/view-results", s.handleViewResults)
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves HTTP until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down", "reason", context.Cause(ctx).Error())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
