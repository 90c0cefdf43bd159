package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/pvgrid-cache/internal/core/config"
	"github.com/mohammed-shakir/pvgrid-cache/internal/core/health"
	middleware "github.com/mohammed-shakir/pvgrid-cache/internal/core/middleware"
	"github.com/mohammed-shakir/pvgrid-cache/internal/core/router"
)

// Deps are the handlers' collaborators. Locator and Flows may be nil, in
// which case their routes are not mounted.
type Deps struct {
	Grids  router.Acquirer
	Near   router.Locator
	Flows  router.Dispatcher
	Checks map[string]health.Pinger
}

// Routes builds the HTTP API.
func Routes(cfg config.Config, logger *slog.Logger, d Deps) http.Handler {
	def := router.Defaults{AzimuthRes: cfg.DefaultAzRes, SlopeRes: cfg.DefaultSlopeRes}

	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(d.Checks))
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Get("/grid", router.HandleGrid(logger, d.Grids, def, false))
	r.Get("/getData", router.HandleGrid(logger, d.Grids, def, true))
	if d.Near != nil {
		r.Get("/grids/nearby", router.HandleNearby(logger, d.Near))
	}
	if d.Flows != nil {
		r.Post("/run", router.HandleRun(logger, d.Flows))
	}
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, d Deps) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           Routes(cfg, logger, d),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// a cold grid can take minutes of upstream calls
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
