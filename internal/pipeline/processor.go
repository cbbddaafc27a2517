package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/R3DPanda1/workspace-mood-monitor/internal/forward"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/metric"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/normalize"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/notify"
)

// Processor writes one notification to the star schema inside a single
// transaction, then forwards the normalized payload downstream and refreshes
// the hot cache. Only the transactional part can fail the job; forwarding
// and caching are best effort.
type Processor struct {
	db      *sql.DB
	fwd     *forward.Forwarder
	cache   *Cache
	metrics *metric.Metrics
}

// New creates a Processor. cache may be nil when no Redis address is
// configured.
func New(db *sql.DB, fwd *forward.Forwarder, cache *Cache, m *metric.Metrics) *Processor {
	return &Processor{db: db, fwd: fwd, cache: cache, metrics: m}
}

// Process persists and forwards one notification. parentPath/resourceName/
// creationTime are the protocol identity fields; content is the decoded
// payload (string-wrapped JSON is unwrapped here).
//
// A returned error means the transaction rolled back and the job should be
// retried.
func (p *Processor) Process(ctx context.Context, parentPath, resourceName, creationTime string, content any) error {
	if s, ok := content.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err == nil {
			content = decoded
		}
	}

	tsCSE := nullTime(creationTime)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rawPayload, err := marshalContent(content)
	if err != nil {
		return fmt.Errorf("encode content: %w", err)
	}

	var rawID int64
	err = tx.QueryRowContext(ctx, queryInsertRaw,
		coalesce(parentPath, "unknown"), nullStr(resourceName), tsCSE, rawPayload,
	).Scan(&rawID)
	if err != nil {
		return fmt.Errorf("insert raw: %w", err)
	}

	var (
		roomID   sql.NullInt64
		deviceID sql.NullInt64
		room     string
		device   string
		qos      any = map[string]any{}
	)

	con, isObj := content.(map[string]any)
	if isObj {
		device, _ = con["device"].(string)
		room, _ = con["room"].(string)
		if q, ok := con["qos"]; ok {
			qos = q
		}

		if room != "" {
			roomID, err = p.resolveRoom(ctx, tx, room)
			if err != nil {
				return err
			}
		}
		if device != "" {
			deviceID, err = p.resolveDevice(ctx, tx, device, roomID)
			if err != nil {
				return err
			}
		}

		// Compact-format metrics straight off the payload.
		if list, ok := con["metrics"].([]any); ok {
			for _, item := range list {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				name, _ := m["name"].(string)
				if name == "" {
					continue
				}
				value := normalize.AsNumber(m["value"])
				text, _ := m["text"].(string)
				if value == nil && text == "" && m["value"] != nil {
					text = fmt.Sprintf("%v", m["value"])
				}
				unit, _ := m["unit"].(string)

				if err := p.insertFact(ctx, tx, factRow{
					tsCSE: tsCSE, deviceID: deviceID, roomID: roomID,
					name: name, value: value, text: text, unit: unit,
					qos: qos, parentPath: parentPath, resourceName: resourceName, rawID: rawID,
				}); err != nil {
					return err
				}
			}
		}
	}

	// Normalizer-derived metrics. Deliberately processed in addition to the
	// compact path, so payloads that partially match either shape still
	// produce facts; double-submission for both-matching payloads is a
	// documented tolerance.
	normalized := normalize.Normalize(content)
	if len(normalized.Metrics) > 0 {
		if room == "" && normalized.Room != "" {
			room = normalized.Room
			roomID, err = p.resolveRoom(ctx, tx, room)
			if err != nil {
				return err
			}
		}
		if device == "" && normalized.Device != "" {
			device = normalized.Device
			deviceID, err = p.resolveDevice(ctx, tx, device, roomID)
			if err != nil {
				return err
			}
		}

		for _, m := range normalized.Metrics {
			if m.Name == "" || (m.Value == nil && m.Text == nil) {
				slog.Info("pipeline: skipping metric without usable value",
					"ci_rn", resourceName, "metric", m.Name)
				continue
			}
			row := factRow{
				tsCSE: tsCSE, deviceID: deviceID, roomID: roomID,
				name: m.Name, value: m.Value,
				qos: normalized.QoS, parentPath: parentPath,
				resourceName: resourceName, rawID: rawID,
			}
			if m.Text != nil {
				row.text = *m.Text
			}
			if m.Unit != nil {
				row.unit = *m.Unit
			}
			if err := p.insertFact(ctx, tx, row); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	// Post-commit side effects are best effort by contract.
	if len(normalized.Metrics) > 0 && p.fwd != nil {
		results := p.fwd.Forward(ctx, normalized, forward.Identity{
			ResourceName: resourceName,
			CreationTime: creationTime,
			ParentPath:   parentPath,
		})
		if p.metrics != nil {
			for _, r := range results {
				p.metrics.ObserveForward(r.OK())
			}
		}
	}
	if p.cache != nil {
		if err := p.cache.Update(ctx, normalized); err != nil {
			slog.Warn("pipeline: hot cache update failed", "ci_rn", resourceName, "error", err)
		}
	}

	return nil
}

func (p *Processor) resolveRoom(ctx context.Context, tx *sql.Tx, room string) (sql.NullInt64, error) {
	if _, err := tx.ExecContext(ctx, queryUpsertRoom, room); err != nil {
		return sql.NullInt64{}, fmt.Errorf("upsert room: %w", err)
	}
	var id sql.NullInt64
	if err := tx.QueryRowContext(ctx, querySelectRoom, room).Scan(&id.Int64); err != nil {
		return sql.NullInt64{}, fmt.Errorf("select room: %w", err)
	}
	id.Valid = true
	return id, nil
}

func (p *Processor) resolveDevice(ctx context.Context, tx *sql.Tx, device string, roomID sql.NullInt64) (sql.NullInt64, error) {
	var id sql.NullInt64
	if err := tx.QueryRowContext(ctx, queryUpsertDevice, device, roomID).Scan(&id.Int64); err != nil {
		return sql.NullInt64{}, fmt.Errorf("upsert device: %w", err)
	}
	id.Valid = true
	return id, nil
}

// factRow collects everything one fact insert needs.
type factRow struct {
	tsCSE        sql.NullTime
	deviceID     sql.NullInt64
	roomID       sql.NullInt64
	name         string
	value        *float64
	text         string
	unit         string
	qos          any
	parentPath   string
	resourceName string
	rawID        int64
}

func (p *Processor) insertFact(ctx context.Context, tx *sql.Tx, row factRow) error {
	var metricID sql.NullInt64
	if err := tx.QueryRowContext(ctx, queryUpsertMetric, row.name, nullStr(row.unit)).Scan(&metricID.Int64); err != nil {
		return fmt.Errorf("upsert metric %q: %w", row.name, err)
	}
	metricID.Valid = true

	qosJSON, err := json.Marshal(row.qos)
	if err != nil {
		qosJSON = []byte("{}")
	}

	_, err = tx.ExecContext(ctx, queryInsertFact,
		row.tsCSE, row.deviceID, row.roomID, metricID,
		nullFloat(row.value), nullStr(row.text), qosJSON,
		coalesce(row.parentPath, "unknown"), nullStr(row.resourceName), row.rawID,
	)
	if err != nil {
		return fmt.Errorf("insert fact %q: %w", row.name, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func nullTime(creationTime string) sql.NullTime {
	if t, ok := notify.ParseCT(creationTime); ok {
		return sql.NullTime{Time: t, Valid: true}
	}
	return sql.NullTime{}
}

func marshalContent(content any) (any, error) {
	if content == nil {
		return nil, nil
	}
	b, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return b, nil
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

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
