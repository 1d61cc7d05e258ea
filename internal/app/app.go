package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alex-user-go/skisearch/internal/config"
	"github.com/alex-user-go/skisearch/internal/handler"
	"github.com/alex-user-go/skisearch/internal/middleware"
	"github.com/alex-user-go/skisearch/internal/obs"
	"github.com/alex-user-go/skisearch/internal/providers"
	"github.com/alex-user-go/skisearch/internal/search"
	"github.com/alex-user-go/skisearch/internal/search/cache"
	"github.com/alex-user-go/skisearch/internal/version"
)

// Run initializes and runs the application.
func Run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := NewLogger(cfg.Log, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)

	store, err := NewStore(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	searchCache := cache.New(store, cfg.Cache.TTL, logger)
	defer func() {
		if err := searchCache.Close(); err != nil {
			logger.Error("cache close error", "error", err)
		}
	}()

	aggregator := search.NewAggregator(NewProviders(cfg.Suppliers, logger), search.Config{
		MaxGroupSize:   cfg.Search.MaxGroupSize,
		StreamTimeout:  cfg.Search.StreamTimeout,
		SubRunTimeout:  cfg.Search.SubRunTimeout,
		MaxConcurrency: cfg.Search.MaxConcurrency,
	}, metrics, logger)

	h := handler.New(aggregator, searchCache, metrics, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      NewRouter(h, metrics, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			"addr", srv.Addr,
			"version", version.String(),
			"suppliers", len(cfg.Suppliers),
			"cache_backend", cfg.Cache.Backend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

// NewRouter mounts the HTTP routes.
func NewRouter(h *handler.Handler, metrics *obs.Metrics, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger, metrics))
	r.Use(chimw.Recoverer)

	r.Route("/hotels", func(r chi.Router) {
		r.Get("/ski-resorts", h.SkiResorts)
		r.Post("/search", h.SearchStream)
		r.Post("/search/sync", h.SearchSync)
	})
	r.Get("/healthz", obs.HealthHandler(logger))
	r.Method(http.MethodGet, "/metrics", metrics.MetricsHandler())

	return r
}

// NewLogger builds the service logger from config.
func NewLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(w, opts)), nil
}

// NewProviders creates one HotelsSimulator client per configured supplier.
func NewProviders(suppliers []config.SupplierConfig, logger *slog.Logger) []providers.Provider {
	list := make([]providers.Provider, 0, len(suppliers))
	for _, s := range suppliers {
		list = append(list, providers.NewHotelsSimulator(s.Name, s.URL,
			providers.WithTimeout(s.Timeout),
			providers.WithRetries(uint64(s.MaxRetries), s.RetryBackoff),
			providers.WithRateLimit(s.RateLimit, s.Burst),
			providers.WithLogger(logger),
		))
	}
	return list
}

// NewStore opens the configured cache backend.
func NewStore(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case "redis":
		store, err := cache.NewRedisStoreFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("open redis cache: %w", err)
		}
		return store, nil
	default:
		return cache.NewMemoryStore(cfg.CleanupInterval), nil
	}
}
