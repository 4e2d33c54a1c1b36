// Package api serves the browser-facing refresh endpoints of the gateway.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Sternrassler/srp-filter/pkg/filter"
	"github.com/Sternrassler/srp-filter/pkg/inventory"
	"github.com/Sternrassler/srp-filter/pkg/invalidation"
	"github.com/Sternrassler/srp-filter/pkg/logging"
	"github.com/Sternrassler/srp-filter/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Source fetches rows and facets for the configured site. *inventory.Client
// implements it.
type Source interface {
	Rows(ctx context.Context, req inventory.RowsRequest) (inventory.Page, error)
	Facets(ctx context.Context, filters filter.State) (inventory.Facets, error)
}

// Revalidator applies an invalidation event. *invalidation.Handler implements it.
type Revalidator interface {
	Apply(ctx context.Context, source string, ev invalidation.Event) (int, error)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Config holds server configuration.
type Config struct {
	// RevalidateSecret guards POST /api/revalidate; empty disables the endpoint
	RevalidateSecret string

	// RequestTimeout bounds one upstream refresh
	RequestTimeout time.Duration

	// MaxBodyBytes limits request bodies
	MaxBodyBytes int64

	// CORSOrigins lists allowed browser origins
	CORSOrigins []string
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 30 * time.Second,
		MaxBodyBytes:   1 << 20,
		CORSOrigins:    []string{"*"},
	}
}

// Server holds the handler dependencies.
type Server struct {
	cfg         Config
	source      Source
	revalidator Revalidator
	checks      map[string]HealthCheck
	logger      zerolog.Logger
}

// New creates a server. revalidator may be nil when invalidation is not wired.
func New(cfg Config, source Source, revalidator Revalidator, checks map[string]HealthCheck) (*Server, error) {
	if source == nil {
		return nil, errors.New("source is required")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Server{
		cfg:         cfg,
		source:      source,
		revalidator: revalidator,
		checks:      checks,
		logger:      logging.NewLogger("api"),
	}, nil
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(RequestID(s.logger))
	r.Use(Logging())
	r.Use(Recover())
	r.Use(CORS(s.cfg.CORSOrigins))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/facets", s.handleFacets)
		r.Post("/inventory", s.handleInventory)
		r.Get("/resolve/*", s.handleResolve)
		r.Post("/revalidate", s.handleRevalidate)
	})
	return r
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("HTTP server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
