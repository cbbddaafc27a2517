// Service ingest accepts oneM2M notifications over HTTP, normalizes their
// identity fields, and either buffers them in the durable queue or processes
// them synchronously. It also exposes queue inspection endpoints and
// health/readiness probes.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/R3DPanda1/workspace-mood-monitor/internal/config"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/db"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/forward"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/ingest"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/metric"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/models"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/pipeline"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/queue"
)

func main() {
	cfg := config.LoadIngest()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.MigrationsDir != "" {
		if err := db.Migrate(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			slog.Error("migrations failed", "error", err)
			os.Exit(1)
		}
	}

	pool, err := db.Connect(ctx, cfg.Base)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	metrics := metric.New()
	store := queue.NewStore(pool)

	var cache *pipeline.Cache
	if cfg.RedisAddr != "" {
		cache, err = pipeline.NewCache(ctx, cfg.RedisAddr, cfg.RedisTTL)
		if err != nil {
			slog.Error("failed to connect to redis", "addr", cfg.RedisAddr, "error", err)
			os.Exit(1)
		}
		defer cache.Close()
	}

	fwd := forward.New(cfg.Forward)
	proc := pipeline.New(pool, fwd, cache, metrics)
	h := ingest.NewHandler(store, proc, store, cfg.Buffered, metrics)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(ingest.DebugBodyLog)

	// Health probes
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, models.HealthResponse{Status: "ok", Service: "ingest"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Healthy(r.Context(), pool); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, models.HealthResponse{Status: "unavailable", Service: "ingest"})
			return
		}
		writeJSON(w, http.StatusOK, models.HealthResponse{Status: "ready", Service: "ingest"})
	})
	r.Handle("/metrics", metrics.Handler())

	// Notification accept endpoints
	r.Post("/onem2m", h.Notify)
	r.Post("/notify", h.Notify)
	r.Post("/", h.Notify)
	r.Post("/test-insert", h.TestInsert)

	// Inspection endpoints
	r.Get("/queue/stats", h.Stats)
	r.Get("/deadletters", h.DeadLetters)

	slog.Info("ingest configured", "buffered", cfg.Buffered, "forward_primary", cfg.Forward.Primary)
	serve(cfg.Base, r)
}

func serve(cfg config.Base, handler http.Handler) {
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("ingest listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		slog.Error("server error", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
