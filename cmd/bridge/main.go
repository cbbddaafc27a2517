// Service bridge subscribes to an MQTT topic carrying oneM2M notification
// bodies and feeds them into the same durable queue the HTTP ingest uses.
// Sensors that publish over MQTT instead of HTTP land in the identical
// processing path.
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

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/R3DPanda1/workspace-mood-monitor/internal/config"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/db"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/models"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/notify"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/queue"
)

func main() {
	cfg := config.LoadBridge()

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

	store := queue.NewStore(pool)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		handleMessage(store, msg.Topic(), msg.Payload())
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		slog.Error("mqtt connection failed", "broker", cfg.Broker, "error", token.Error())
		os.Exit(1)
	}
	defer client.Disconnect(250)

	if token := client.Subscribe(cfg.Topic, 0, nil); token.Wait() && token.Error() != nil {
		slog.Error("mqtt subscribe failed", "topic", cfg.Topic, "error", token.Error())
		os.Exit(1)
	}
	slog.Info("bridge subscribed", "broker", cfg.Broker, "topic", cfg.Topic)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, models.HealthResponse{Status: "ok", Service: "bridge"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Healthy(r.Context(), pool); err != nil || !client.IsConnected() {
			writeJSON(w, http.StatusServiceUnavailable, models.HealthResponse{Status: "unavailable", Service: "bridge"})
			return
		}
		writeJSON(w, http.StatusOK, models.HealthResponse{Status: "ready", Service: "bridge"})
	})

	serve(cfg.Base, r)
}

// handleMessage extracts identity fields from one MQTT payload and enqueues
// it. Handshake bodies and undecodable payloads are dropped with a log line;
// MQTT gives us no way to signal the publisher anyway.
func handleMessage(store *queue.Store, topic string, payload []byte) {
	var body any
	if err := json.Unmarshal(payload, &body); err != nil {
		slog.Warn("bridge: dropping non-JSON message", "topic", topic, "error", err)
		return
	}

	fields, handshake := notify.Extract(body)
	if handshake {
		slog.Debug("bridge: ignoring verification handshake", "topic", topic)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := store.Enqueue(ctx, fields.ParentPath, fields.ResourceName, fields.CreationTime, fields.Content)
	if err != nil {
		slog.Error("bridge: enqueue failed", "topic", topic, "ci_rn", fields.ResourceName, "error", err)
		return
	}
	slog.Info("bridge: notification enqueued", "topic", topic, "job_id", id, "ci_rn", fields.ResourceName)
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
		slog.Info("bridge listening", "addr", srv.Addr)
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
