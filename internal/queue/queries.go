// Package queue implements the durable ingest queue backed by PostgreSQL.
package queue

// All SQL queries are collected here so they are easy to audit and test.
const (
	// queryEnqueue appends a new job in the queued state.
	queryEnqueue = `
INSERT INTO ingest_queue (parent_path, ci_rn, ct, payload)
VALUES ($1, $2, $3, $4::jsonb)
RETURNING id`

	// queryClaim atomically claims the single oldest eligible job and moves
	// it to processing with a fresh lease.  FOR UPDATE SKIP LOCKED ensures
	// concurrent workers never receive the same job and never block on a row
	// another worker is evaluating; no application-level locks are needed.
	queryClaim = `
WITH cte AS (
    SELECT id
    FROM ingest_queue
    WHERE status = 'queued'
      AND (locked_until IS NULL OR locked_until < now())
    ORDER BY received_at
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
UPDATE ingest_queue q
SET status = 'processing',
    locked_until = now() + $1::int * interval '1 second'
FROM cte
WHERE q.id = cte.id
RETURNING q.id, q.parent_path, q.ci_rn, q.ct, q.payload, q.attempts`

	// queryMarkDone resolves a job successfully.  Done is terminal.
	queryMarkDone = `
UPDATE ingest_queue
SET status = 'done', processed_at = now(), locked_until = NULL
WHERE id = $1`

	// queryRequeue returns a job to the queue with an incremented attempt
	// count.  locked_until doubles as the backoff gate: the job is not
	// claimable again until the delay has elapsed.
	queryRequeue = `
UPDATE ingest_queue
SET attempts = attempts + 1,
    status = 'queued',
    locked_until = now() + $2::int * interval '1 second'
WHERE id = $1`

	// queryMarkFailed terminates a job after retry exhaustion.
	queryMarkFailed = `
UPDATE ingest_queue
SET status = 'failed', processed_at = now(), locked_until = NULL,
    attempts = attempts + 1
WHERE id = $1`

	// queryInsertDeadLetter preserves an exhausted job for inspection.
	queryInsertDeadLetter = `
INSERT INTO ingest_dead_letter (parent_path, ci_rn, ct, payload, attempts, last_error)
VALUES ($1, $2, $3, $4::jsonb, $5, $6)`

	// queryCountByStatus summarises the queue for the stats endpoint.
	queryCountByStatus = `
SELECT status, count(*)
FROM ingest_queue
GROUP BY status`

	// queryListDeadLetters returns the most recent dead letters.
	queryListDeadLetters = `
SELECT id, parent_path, ci_rn, ct, payload, attempts, last_error, failed_at
FROM ingest_dead_letter
ORDER BY failed_at DESC
LIMIT $1`
)
