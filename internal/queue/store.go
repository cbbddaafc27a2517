package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/R3DPanda1/workspace-mood-monitor/internal/models"
)

// Job is one queued notification. CreationTime is carried as the raw oneM2M
// string; parsing to a timestamp happens at fact-write time so a bad value
// never blocks queueing.
type Job struct {
	ID           int64
	ParentPath   string
	ResourceName string
	CreationTime string
	Payload      json.RawMessage
	Attempts     int
}

// Store manages ingest_queue persistence. It is safe for concurrent use:
// all claim exclusivity is handled by PostgreSQL (FOR UPDATE SKIP LOCKED),
// not by Go-level locks.
type Store struct {
	db *sql.DB
}

// NewStore wraps an existing *sql.DB connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Enqueue appends a job in the queued state and returns its id. The payload
// is stored as submitted; nil content becomes SQL NULL.
func (s *Store) Enqueue(ctx context.Context, parentPath, resourceName, creationTime string, payload any) (int64, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return 0, fmt.Errorf("encode payload: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, queryEnqueue,
		coalesce(parentPath, "unknown"),
		nullStr(resourceName),
		nullStr(creationTime),
		raw,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	return id, nil
}

// Claim atomically selects the oldest claimable job, transitions it to
// processing, and sets its lease. Returns nil when nothing is claimable.
func (s *Store) Claim(ctx context.Context, lease time.Duration) (*Job, error) {
	var (
		j       Job
		rn, ct  sql.NullString
		payload []byte
	)
	err := s.db.QueryRowContext(ctx, queryClaim, int(lease.Seconds())).Scan(
		&j.ID, &j.ParentPath, &rn, &ct, &payload, &j.Attempts,
	)
	switch {
	case err == sql.ErrNoRows:
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("claim: %w", err)
	}
	j.ResourceName = rn.String
	j.CreationTime = ct.String
	j.Payload = payload
	return &j, nil
}

// MarkDone resolves a job successfully and clears its lease.
func (s *Store) MarkDone(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, queryMarkDone, id); err != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	return nil
}

// Requeue returns a job to the queue for another attempt after delay.
func (s *Store) Requeue(ctx context.Context, id int64, delay time.Duration) error {
	if _, err := s.db.ExecContext(ctx, queryRequeue, id, int(delay.Seconds())); err != nil {
		return fmt.Errorf("requeue: %w", err)
	}
	return nil
}

// maxErrorLen bounds dead-letter error text so one pathological failure
// cannot bloat storage.
const maxErrorLen = 1000

// DeadLetter records an exhausted job in ingest_dead_letter and marks the
// queue row failed, in a single transaction.
func (s *Store) DeadLetter(ctx context.Context, job *Job, lastError string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	lastError = truncateError(lastError)

	_, err = tx.ExecContext(ctx, queryInsertDeadLetter,
		nullStr(job.ParentPath),
		nullStr(job.ResourceName),
		nullStr(job.CreationTime),
		nullRaw(job.Payload),
		job.Attempts+1,
		lastError,
	)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}

	if _, err := tx.ExecContext(ctx, queryMarkFailed, job.ID); err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Stats returns per-status job counts.
func (s *Store) Stats(ctx context.Context) (models.QueueStats, error) {
	var stats models.QueueStats

	rows, err := s.db.QueryContext(ctx, queryCountByStatus)
	if err != nil {
		return stats, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("scan: %w", err)
		}
		switch status {
		case "queued":
			stats.Queued = count
		case "processing":
			stats.Processing = count
		case "done":
			stats.Done = count
		case "failed":
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

// ListDeadLetters returns the most recent dead letters for inspection.
func (s *Store) ListDeadLetters(ctx context.Context, limit int) ([]models.DeadLetter, error) {
	rows, err := s.db.QueryContext(ctx, queryListDeadLetters, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []models.DeadLetter
	for rows.Next() {
		var d models.DeadLetter
		if err := rows.Scan(&d.ID, &d.ParentPath, &d.ResourceName, &d.CreationTime,
			&d.Payload, &d.Attempts, &d.LastError, &d.FailedAt); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func marshalPayload(payload any) (any, error) {
	if payload == nil {
		return nil, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return []byte(raw), nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// truncateError caps error text at maxErrorLen bytes, backing up to a rune
// boundary so the stored value is always valid UTF-8.
func truncateError(s string) string {
	if len(s) <= maxErrorLen {
		return s
	}
	cut := maxErrorLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func coalesce(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
