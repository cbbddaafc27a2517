package normalize_test

import (
	"encoding/json"
	"testing"

	"github.com/R3DPanda1/workspace-mood-monitor/internal/normalize"
)

// decode parses a JSON literal the way payloads arrive off the wire.
func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return v
}

func metricByName(p normalize.Payload, name string) (normalize.Metric, bool) {
	for _, m := range p.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return normalize.Metric{}, false
}

func TestCanonicalName(t *testing.T) {
	cases := map[string]string{
		"tempe":       "temperature",
		"temp":        "temperature",
		"TEMPE":       "temperature",
		"humiy":       "humidity",
		"rh":          "humidity",
		"co2":         "co2",
		"co2ppm":      "co2",
		"lux":         "lux",
		"louds":       "noise",
		"occ":         "occupancy",
		"pressure":    "pressure", // unknown keys pass through
		"temperature": "temperature",
	}
	for in, want := range cases {
		if got := normalize.CanonicalName(in); got != want {
			t.Errorf("CanonicalName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestAsNumber(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want *float64
	}{
		{"bool true", true, f(1)},
		{"bool false", false, f(0)},
		{"float", 21.5, f(21.5)},
		{"string number", "21.5", f(21.5)},
		{"string padded", "  42 ", f(42)},
		{"string true", "TRUE", f(1)},
		{"string false", "false", f(0)},
		{"string garbage", "warm", nil},
		{"nil", nil, nil},
		{"object", map[string]any{}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := normalize.AsNumber(tc.in)
			switch {
			case tc.want == nil && got != nil:
				t.Errorf("AsNumber(%v) = %v, want nil", tc.in, *got)
			case tc.want != nil && got == nil:
				t.Errorf("AsNumber(%v) = nil, want %v", tc.in, *tc.want)
			case tc.want != nil && *got != *tc.want:
				t.Errorf("AsNumber(%v) = %v, want %v", tc.in, *got, *tc.want)
			}
		})
	}
}

func TestNormalizeFlatSynonyms(t *testing.T) {
	p := normalize.Normalize(decode(t, `{"tempe": 21.2, "humiy": "44", "co2ppm": 600}`))

	for name, want := range map[string]float64{
		"temperature": 21.2,
		"humidity":    44,
		"co2":         600,
	} {
		m, ok := metricByName(p, name)
		if !ok {
			t.Fatalf("metric %q missing, got %+v", name, p.Metrics)
		}
		if m.Value == nil || *m.Value != want {
			t.Errorf("metric %q value = %v, want %v", name, m.Value, want)
		}
	}
}

func TestNormalizeCompactFastPath(t *testing.T) {
	p := normalize.Normalize(decode(t, `{
		"metrics": [{"name": "tempe", "value": "21.5", "unit": "C"}],
		"device": "node-7", "room": "101", "qos": {"rssi": -60}, "ts": 1700000000
	}`))

	if p.Device != "node-7" || p.Room != "101" {
		t.Errorf("device/room = %q/%q, want node-7/101", p.Device, p.Room)
	}
	m, ok := metricByName(p, "temperature")
	if !ok {
		t.Fatalf("temperature missing, got %+v", p.Metrics)
	}
	if m.Value == nil || *m.Value != 21.5 {
		t.Errorf("value = %v, want 21.5", m.Value)
	}
	if m.Unit == nil || *m.Unit != "C" {
		t.Errorf("unit = %v, want C", m.Unit)
	}
	if p.QoS["rssi"] != float64(-60) {
		t.Errorf("qos = %v", p.QoS)
	}
}

func TestNormalizeCompactUnparseableValueKeptAsText(t *testing.T) {
	p := normalize.Normalize(decode(t, `{"metrics": [{"name": "occ", "value": "maybe"}]}`))

	m, ok := metricByName(p, "occupancy")
	if !ok {
		t.Fatalf("occupancy missing")
	}
	if m.Value != nil {
		t.Errorf("value = %v, want nil", *m.Value)
	}
	if m.Text == nil || *m.Text != "maybe" {
		t.Errorf("text = %v, want maybe", m.Text)
	}
}

func TestNormalizeDedupeKeepsFirstNonNull(t *testing.T) {
	// Flat "tempe" sorts before the nested announcement scan, so its value
	// must win over the nested "temp".
	p := normalize.Normalize(decode(t, `{
		"tempe": 21.0,
		"nested": {"temp": 99.0}
	}`))

	var count int
	for _, m := range p.Metrics {
		if m.Name == "temperature" {
			count++
			if m.Value == nil || *m.Value != 21.0 {
				t.Errorf("temperature = %v, want 21.0", m.Value)
			}
		}
	}
	if count != 1 {
		t.Errorf("temperature appears %d times, want 1", count)
	}
}

func TestNormalizeDropsValuelessMetrics(t *testing.T) {
	p := normalize.Normalize(decode(t, `{"tempe": "not-a-number"}`))
	if _, ok := metricByName(p, "temperature"); ok {
		t.Errorf("valueless metric survived dedupe: %+v", p.Metrics)
	}
}

func TestNormalizeRoomLabelBackfill(t *testing.T) {
	p := normalize.Normalize(decode(t, `{
		"cod:tempe": {"rn": "sensor-4", "ct": "20251114T215730", "tempe": 20.5,
			"lbl": ["room:Room01", "desk:Desk07", "sensor:dht22"]}
	}`))

	if p.Room != "Room01" {
		t.Errorf("room = %q, want Room01", p.Room)
	}
	if p.Labels["desk"] != "Desk07" || p.Labels["sensor"] != "dht22" {
		t.Errorf("labels = %v", p.Labels)
	}
	if p.Device != "sensor-4" {
		t.Errorf("device = %q, want sensor-4 (rn backfill)", p.Device)
	}
}

func TestNormalizeRoomNotOverwrittenByLabel(t *testing.T) {
	p := normalize.Normalize(decode(t, `{
		"room": "202",
		"tempe": 20,
		"lbl": ["room:Room01"]
	}`))
	if p.Room != "202" {
		t.Errorf("room = %q, want 202 (explicit field wins)", p.Room)
	}
}

func TestNormalizeDeskLabelDeviceFallback(t *testing.T) {
	p := normalize.Normalize(decode(t, `{"tempe": 20, "lbl": ["desk:Desk07"]}`))
	if p.Device != "Desk07" {
		t.Errorf("device = %q, want Desk07", p.Device)
	}
}

func TestNormalizeNestedAnnouncement(t *testing.T) {
	p := normalize.Normalize(decode(t, `{
		"m2m:cbA": {"cod:ae": [{"lux": 120, "louds": "33.5"}]}
	}`))

	lux, ok := metricByName(p, "lux")
	if !ok || lux.Value == nil || *lux.Value != 120 {
		t.Errorf("lux = %+v", lux)
	}
	noise, ok := metricByName(p, "noise")
	if !ok || noise.Value == nil || *noise.Value != 33.5 {
		t.Errorf("noise = %+v", noise)
	}
}

func TestNormalizeBooleanOccupancy(t *testing.T) {
	p := normalize.Normalize(decode(t, `{"occ": true}`))
	m, ok := metricByName(p, "occupancy")
	if !ok || m.Value == nil || *m.Value != 1.0 {
		t.Errorf("occupancy = %+v", m)
	}
}

func TestNormalizeTimestampFallbackToCT(t *testing.T) {
	p := normalize.Normalize(decode(t, `{"tempe": 20, "ct": "20251114T215730"}`))
	if p.TS != "20251114T215730" {
		t.Errorf("ts = %v, want ct fallback", p.TS)
	}
}

func TestNormalizeTotalOnGarbage(t *testing.T) {
	for _, in := range []any{nil, "just a string", 42.0, []any{1.0, "x"}, decode(t, `{"deep": {"deeper": []}}`)} {
		p := normalize.Normalize(in)
		if p.Metrics == nil {
			t.Errorf("Normalize(%v) returned nil metrics", in)
		}
	}
}

func TestParseLabels(t *testing.T) {
	labels := normalize.ParseLabels([]any{"room:Room01", "desk:Desk07", "nocolon", 42.0, "a:b:c"})
	if labels["room"] != "Room01" || labels["desk"] != "Desk07" {
		t.Errorf("labels = %v", labels)
	}
	if labels["a"] != "b:c" {
		t.Errorf("split must stop at the first colon, got %q", labels["a"])
	}
	if _, ok := labels["nocolon"]; ok {
		t.Error("entry without colon must be ignored")
	}
}

func f(v float64) *float64 { return &v }
