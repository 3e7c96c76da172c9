package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"gastos/internal/cache"
	"gastos/internal/core"
	applog "gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/middleware/ratelimit"
	"gastos/internal/middleware/security"
	"gastos/internal/middleware/trace"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Tracker is the part of services.Tracker the API drives.
type Tracker interface {
	Snapshot() core.Collection
	Revision() int64
	UpdatedAt() time.Time
	Add(ctx context.Context, cat core.Category, r core.Record) (core.Record, core.Collection, error)
	Edit(ctx context.Context, cat core.Category, id core.RecordID, changes core.Record) (core.Record, core.Collection, error)
	Remove(ctx context.Context, cat core.Category, id core.RecordID) (core.Record, core.Collection, error)
	ReplaceAll(ctx context.Context, c core.Collection) (core.Collection, error)
}

// Config holds the HTTP server settings.
type Config struct {
	Addr           string
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	CacheSize      int
	CacheTTL       time.Duration
}

// Deps are the collaborators of the server. Only Tracker is required.
type Deps struct {
	Tracker Tracker
	Catalog core.Catalog
	// Ready backs /readyz; nil means always ready.
	Ready   func(context.Context) error
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Server struct {
	http.Server
	tracker Tracker
	catalog core.Catalog
	ready   func(context.Context) error
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time

	summaryCache *cache.Observed[summaryDTO]
	cacheManager *cache.Manager
	rateLimiter  *ratelimit.Limiter
	detector     *security.Detector

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 128
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	lru := cache.NewLRUCache[summaryDTO](cfg.CacheSize, cfg.CacheTTL)
	s := &Server{
		tracker:      deps.Tracker,
		catalog:      deps.Catalog,
		ready:        deps.Ready,
		metrics:      deps.Metrics,
		logger:       logger.With(applog.FieldComponent, applog.ComponentHTTP),
		now:          time.Now,
		summaryCache: cache.NewObserved[summaryDTO]("summary", lru, deps.Metrics),
		cacheManager: cache.NewManager(logger),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerSecond: cfg.RateLimitRPS,
			Burst:             cfg.RateLimitBurst,
		}, deps.Metrics, logger),
		detector: security.NewDetector(deps.Metrics, logger),
	}
	s.cacheManager.Register(lru)
	s.cacheManager.StartCleanup(cfg.CacheTTL)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) routes(cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(trace.NewMiddleware(s.detector.ExtractClientIP, s.metrics, s.logger).Middleware)
	r.Use(s.recoverer)
	r.Use(s.detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", trace.RequestIDHeader},
		ExposedHeaders: []string{trace.RequestIDHeader, "Retry-After"},
		MaxAge:         300,
	}))
	r.Use(s.rateLimiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, msgTooManyRequests).Write(w)
	}))

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleMethodNotAllowed)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/gastos", s.handleGetExpenses)
		r.Post("/guardar-gastos", s.handleSaveExpenses)
		r.Post("/agregar-gasto", s.handleAddExpense)
		r.Put("/editar-gasto", s.handleEditExpense)
		r.Delete("/eliminar-gasto", s.handleRemoveExpense)
		r.Get("/resumen", s.handleSummary)
		r.Get("/meses", s.handleMonths)
		r.Get("/catalogo", s.handleCatalog)
	})
	return r
}

// recoverer turns handler panics into the internal error envelope.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				applog.FromContext(r.Context()).Error("Handler panic", "panic", rec)
				InternalServerError().Write(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// sanitizeInput removes control characters except tab and newlines, and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
