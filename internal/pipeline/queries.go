// Package pipeline runs one notification through the persistence path:
// raw record, dimension upserts, fact rows, then best-effort forwarding and
// hot-cache updates.
package pipeline

// All SQL queries are collected here so they are easy to audit and test.
const (
	// queryInsertRaw appends the immutable raw content instance and returns
	// the lineage id referenced by fact rows.
	queryInsertRaw = `
INSERT INTO raw_onem2m_ci (parent_path, ci_rn, created_at, payload)
VALUES ($1, $2, $3, $4::jsonb)
RETURNING id`

	// queryUpsertRoom creates the room dimension on first reference.
	queryUpsertRoom = `
INSERT INTO dim_room (room_rn) VALUES ($1)
ON CONFLICT (room_rn) DO NOTHING`

	querySelectRoom = `
SELECT room_id FROM dim_room WHERE room_rn = $1`

	// queryUpsertDevice creates or updates the device dimension. A known
	// room association is never overwritten; it is only filled in when the
	// device's room was previously unknown.
	queryUpsertDevice = `
INSERT INTO dim_device (device_rn, room_id) VALUES ($1, $2)
ON CONFLICT (device_rn) DO UPDATE
SET room_id = COALESCE(dim_device.room_id, EXCLUDED.room_id)
RETURNING device_id`

	// queryUpsertMetric creates or updates the metric dimension, merging in
	// a unit only when previously unknown.
	queryUpsertMetric = `
INSERT INTO dim_metric (metric_rn, unit) VALUES ($1, $2)
ON CONFLICT (metric_rn) DO UPDATE
SET unit = COALESCE(dim_metric.unit, EXCLUDED.unit)
RETURNING metric_id`

	// queryInsertFact appends one immutable telemetry fact.
	queryInsertFact = `
INSERT INTO fact_telemetry
  (ts_cse, device_id, room_id, metric_id, value, value_text, quality, parent_path, ci_rn, raw_id)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10)`
)
