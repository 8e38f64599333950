// Package http hosts the chi-routed admin surface: health, cache/connection
// introspection, and a manual pack trigger. This is the debug surface the
// Coordinator's supplemented ZODB-style inspection methods (§4.3.8 and the
// connectionDebugInfo/cacheDetailSize additions) are exposed through.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"

	"github.com/webitel/objectdb-coordinator/config"
	"github.com/webitel/objectdb-coordinator/internal/coordinator"
)

// Module starts the admin HTTP listener as an fx-managed lifecycle hook.
var Module = fx.Module("http-server",
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, cfg *config.Config, coord *coordinator.Coordinator, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router(coord, logger),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("http server stopped", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
	return nil
}

func router(coord *coordinator.Coordinator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Get("/debug/cache", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, map[string]any{
			"size":   coord.CacheSize(),
			"detail": coord.CacheDetail(),
			"sizes":  coord.CacheDetailSize(),
		})
	})

	r.Get("/debug/connections", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, logger, coord.ConnectionDebugInfo())
	})

	r.Post("/debug/pack", func(w http.ResponseWriter, r *http.Request) {
		if err := coord.Pack(r.Context(), time.Now(), 0); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	return r
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("http: encode response", "error", err)
	}
}
