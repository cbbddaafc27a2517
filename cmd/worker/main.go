// Service worker drains the ingest queue: it claims jobs with a lease, runs
// them through the normalize/persist/forward pipeline, and resolves them to
// done, retry-with-backoff, or dead-letter.
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
	"github.com/R3DPanda1/workspace-mood-monitor/internal/metric"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/models"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/pipeline"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/queue"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/worker"
)

func main() {
	cfg := config.LoadWorker()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

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
	workers := worker.NewPool(cfg, store, proc, metrics)

	// Run the pool until a signal arrives; the probe server runs alongside.
	workCtx, workCancel := context.WithCancel(context.Background())
	defer workCancel()

	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		workers.Run(workCtx)
	}()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, models.HealthResponse{Status: "ok", Service: "worker"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Healthy(r.Context(), pool); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, models.HealthResponse{Status: "unavailable", Service: "worker"})
			return
		}
		writeJSON(w, http.StatusOK, models.HealthResponse{Status: "ready", Service: "worker"})
	})
	r.Handle("/metrics", metrics.Handler())

	serve(cfg.Base, r, workCancel, poolDone)
}

func serve(cfg config.Base, handler http.Handler, stopWorkers context.CancelFunc, poolDone <-chan struct{}) {
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("worker listening", "addr", srv.Addr)
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

	// Stop claim loops and wait for in-flight jobs to resolve.
	stopWorkers()
	<-poolDone
	slog.Info("workers drained")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
