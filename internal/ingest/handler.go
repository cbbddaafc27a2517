// Package ingest exposes the HTTP endpoints that accept oneM2M notifications
// and the inspection endpoints over the queue and dead-letter store.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/R3DPanda1/workspace-mood-monitor/internal/metric"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/models"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/notify"
)

// Enqueuer buffers an accepted notification for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, parentPath, resourceName, creationTime string, payload any) (int64, error)
}

// Processor handles a notification synchronously (direct, unbuffered mode).
type Processor interface {
	Process(ctx context.Context, parentPath, resourceName, creationTime string, content any) error
}

// Inspector serves the queue/dead-letter read endpoints.
type Inspector interface {
	Stats(ctx context.Context) (models.QueueStats, error)
	ListDeadLetters(ctx context.Context, limit int) ([]models.DeadLetter, error)
}

// Handler exposes the ingest HTTP endpoints.
type Handler struct {
	queue     Enqueuer
	proc      Processor
	inspector Inspector
	buffered  bool
	metrics   *metric.Metrics
}

// NewHandler creates a Handler. When buffered is true, accepted
// notifications are enqueued and return 202; otherwise they are processed
// synchronously and return 204.
func NewHandler(queue Enqueuer, proc Processor, inspector Inspector, buffered bool, m *metric.Metrics) *Handler {
	return &Handler{queue: queue, proc: proc, inspector: inspector, buffered: buffered, metrics: m}
}

type errorResponse struct {
	Error string `json:"error"`
}

// ---------------------------------------------------------------------------
// POST /onem2m, POST /notify, POST /
// ---------------------------------------------------------------------------

// Notify accepts a notification body in any of the known shapes. Handshake
// bodies are acknowledged with 200 and create no queue entry.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	h.accept(w, r, r.URL.Path)
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request, route string) {
	start := time.Now()

	var body any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	fields, handshake := notify.Extract(body)
	if handshake {
		slog.Debug("verification handshake acknowledged", "route", route)
		w.WriteHeader(http.StatusOK)
		return
	}

	if h.buffered {
		id, err := h.queue.Enqueue(r.Context(), fields.ParentPath, fields.ResourceName, fields.CreationTime, fields.Content)
		if err != nil {
			slog.Error("enqueue failed", "route", route, "ci_rn", fields.ResourceName, "error", err)
			writeErr(w, http.StatusInternalServerError, "enqueue failed")
			return
		}
		h.received(route, "buffered")
		slog.Info("notification enqueued",
			"route", route,
			"job_id", id,
			"ci_rn", fields.ResourceName,
			"parent", fields.ParentPath,
			"latency_ms", time.Since(start).Milliseconds(),
		)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if err := h.proc.Process(r.Context(), fields.ParentPath, fields.ResourceName, fields.CreationTime, fields.Content); err != nil {
		slog.Error("direct processing failed", "route", route, "ci_rn", fields.ResourceName, "error", err)
		writeErr(w, http.StatusInternalServerError, "processing failed")
		return
	}
	h.received(route, "direct")
	slog.Info("notification processed",
		"route", route,
		"ci_rn", fields.ResourceName,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// POST /test-insert
// ---------------------------------------------------------------------------

// TestInsertRequest is the body of POST /test-insert.
type TestInsertRequest struct {
	RN     string `json:"rn"`
	CT     string `json:"ct"`
	Con    any    `json:"con"`
	Parent string `json:"parent"`
}

// TestInsert wraps a bare content object into a standard notification
// envelope and runs it through the normal accept path. Kept for manual
// testing without a CSE in front.
func (h *Handler) TestInsert(w http.ResponseWriter, r *http.Request) {
	var req TestInsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	rn := req.RN
	if rn == "" {
		rn = "cin-test"
	}
	parent := req.Parent
	if parent == "" {
		parent = "/cloud-analytics/telemetry/room-101/sample"
	}

	envelope := map[string]any{
		"m2m:sgn": map[string]any{
			"nev": map[string]any{
				"rep": map[string]any{
					"m2m:cin": map[string]any{
						"rn":  rn,
						"ct":  req.CT,
						"con": req.Con,
					},
				},
			},
			"sur": parent,
		},
	}

	fields, _ := notify.Extract(envelope)
	if h.buffered {
		if _, err := h.queue.Enqueue(r.Context(), fields.ParentPath, fields.ResourceName, fields.CreationTime, fields.Content); err != nil {
			slog.Error("test insert enqueue failed", "error", err)
			writeErr(w, http.StatusInternalServerError, "enqueue failed")
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if err := h.proc.Process(r.Context(), fields.ParentPath, fields.ResourceName, fields.CreationTime, fields.Content); err != nil {
		slog.Error("test insert processing failed", "error", err)
		writeErr(w, http.StatusInternalServerError, "processing failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------------------------------------------------------------------------
// GET /queue/stats, GET /deadletters
// ---------------------------------------------------------------------------

// Stats reports per-status job counts.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.inspector.Stats(r.Context())
	if err != nil {
		slog.Error("queue stats failed", "error", err)
		writeErr(w, http.StatusInternalServerError, "stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// DeadLetters lists the most recent dead letters for manual inspection.
func (h *Handler) DeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := 100
	letters, err := h.inspector.ListDeadLetters(r.Context(), limit)
	if err != nil {
		slog.Error("list dead letters failed", "error", err)
		writeErr(w, http.StatusInternalServerError, "list failed")
		return
	}
	if letters == nil {
		letters = []models.DeadLetter{}
	}
	writeJSON(w, http.StatusOK, letters)
}

func (h *Handler) received(route, mode string) {
	if h.metrics != nil {
		h.metrics.NotificationsReceived.WithLabelValues(route, mode).Inc()
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
