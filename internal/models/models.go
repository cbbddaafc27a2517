// Package models contains shared domain structs used across services.
package models

import (
	"encoding/json"
	"time"
)

// HealthResponse is returned by /healthz and /readyz endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// QueueStats summarises the ingest queue by job status.
type QueueStats struct {
	Queued     int64 `json:"queued"`
	Processing int64 `json:"processing"`
	Done       int64 `json:"done"`
	Failed     int64 `json:"failed"`
}

// DeadLetter is a job that exhausted its retries, kept for manual
// inspection and replay.
type DeadLetter struct {
	ID           int64           `json:"id"`
	ParentPath   *string         `json:"parent_path"`
	ResourceName *string         `json:"ci_rn"`
	CreationTime *string         `json:"ct"`
	Payload      json.RawMessage `json:"payload"`
	Attempts     int             `json:"attempts"`
	LastError    *string         `json:"last_error"`
	FailedAt     time.Time       `json:"failed_at"`
}
