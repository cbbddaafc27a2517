// Package forward rebuilds canonical notifications and fans them out to the
// downstream mood-scoring services. Delivery is best effort: every failure
// is logged and none of them ever affects the job that triggered it.
package forward

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/R3DPanda1/workspace-mood-monitor/internal/config"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/httpx"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/normalize"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/notify"
)

// Identity carries the protocol fields re-attached to a forwarded payload.
type Identity struct {
	ResourceName string
	CreationTime string
	ParentPath   string
}

// Result is the outcome of delivery to one target.
type Result struct {
	URL    string
	Status int
	Err    error
}

// OK reports whether the target accepted the notification.
func (r Result) OK() bool {
	return r.Err == nil && r.Status < 400
}

// Forwarder posts rebuilt notifications to a fixed target list.
type Forwarder struct {
	client  *httpx.Client
	targets []string
}

// New builds a Forwarder from the configured primary/ML/extra targets.
func New(cfg config.Forward) *Forwarder {
	return &Forwarder{
		client:  httpx.NewClient(cfg.Timeout, cfg.MaxRetries),
		targets: Targets(cfg.Primary, cfg.ML, cfg.Extra),
	}
}

// Targets assembles the downstream target list: primary endpoint, optional
// ML endpoint, then a comma/whitespace-separated extras list, deduplicated
// while preserving first-seen order.
func Targets(primary, ml, extra string) []string {
	var raw []string
	if t := strings.TrimSpace(primary); t != "" {
		raw = append(raw, t)
	}
	if t := strings.TrimSpace(ml); t != "" {
		raw = append(raw, t)
	}
	for _, t := range strings.FieldsFunc(extra, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	}) {
		if t != "" {
			raw = append(raw, t)
		}
	}

	seen := make(map[string]bool, len(raw))
	uniq := make([]string, 0, len(raw))
	for _, t := range raw {
		if seen[t] {
			continue
		}
		seen[t] = true
		uniq = append(uniq, t)
	}
	return uniq
}

// Envelope rebuilds the canonical notification around a flat telemetry
// object: metric name -> numeric value, plus room/device/ts/labels when the
// normalized payload carries them.
func Envelope(p normalize.Payload, id Identity) map[string]any {
	telemetry := map[string]any{}
	for _, m := range p.Metrics {
		if m.Name != "" && m.Value != nil {
			telemetry[m.Name] = *m.Value
		}
	}
	if p.Room != "" {
		telemetry["room"] = p.Room
	}
	if p.Device != "" {
		telemetry["device"] = p.Device
	}
	if p.TS != nil {
		telemetry["ts"] = p.TS
	}
	if len(p.Labels) > 0 {
		telemetry["labels"] = p.Labels
		if desk, ok := p.Labels["desk"]; ok {
			telemetry["desk"] = desk
		}
		if sensor, ok := p.Labels["sensor"]; ok {
			telemetry["sensor"] = sensor
		}
	}

	rn := id.ResourceName
	if rn == "" {
		rn = "ingest-cin"
	}
	ct := id.CreationTime
	if ct == "" {
		ct = notify.FormatCT(time.Now())
	}

	return map[string]any{
		"m2m:sgn": map[string]any{
			"nev": map[string]any{
				"rep": map[string]any{
					"m2m:cin": map[string]any{
						"rn":  rn,
						"ct":  ct,
						"con": telemetry,
					},
				},
			},
			"sur": id.ParentPath,
		},
	}
}

// Forward delivers the rebuilt notification to every target sequentially.
// Per-target failures are collected in the results and logged; Forward
// itself never reports an error to its caller.
func (f *Forwarder) Forward(ctx context.Context, p normalize.Payload, id Identity) []Result {
	if len(f.targets) == 0 {
		return nil
	}

	body, err := json.Marshal(Envelope(p, id))
	if err != nil {
		slog.Error("forward: encode envelope", "ci_rn", id.ResourceName, "error", err)
		return nil
	}

	results := make([]Result, 0, len(f.targets))
	delivered := 0
	for _, url := range f.targets {
		status, err := f.client.PostJSON(ctx, url, body)
		res := Result{URL: url, Status: status, Err: err}
		results = append(results, res)

		switch {
		case res.Err != nil:
			slog.Warn("forward: target unreachable", "url", url, "ci_rn", id.ResourceName, "error", res.Err)
		case !res.OK():
			slog.Warn("forward: target rejected payload", "url", url, "ci_rn", id.ResourceName, "status", res.Status)
		default:
			delivered++
			slog.Debug("forward: delivered", "url", url, "ci_rn", id.ResourceName, "status", res.Status)
		}
	}

	slog.Info("forwarded",
		"ci_rn", id.ResourceName,
		"targets", len(f.targets),
		"delivered", delivered,
	)
	return results
}
