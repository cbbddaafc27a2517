// Package normalize converts arbitrary notification content into a canonical
// telemetry payload: a deduplicated list of named metrics plus device, room,
// quality-of-service, timestamp, and label metadata.
//
// Normalize is a total function over decoded JSON values. It never fails;
// unrecognised shapes simply contribute nothing.
package normalize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// canonicalNames maps provider-specific metric keys to canonical names.
// Unknown keys pass through under their own name.
var canonicalNames = map[string]string{
	"tempe":       "temperature",
	"temp":        "temperature",
	"temperature": "temperature",
	"humiy":       "humidity",
	"rh":          "humidity",
	"humidity":    "humidity",
	"co2":         "co2",
	"co2ppm":      "co2",
	"lux":         "lux",
	"louds":       "noise",
	"noise":       "noise",
	"occ":         "occupancy",
	"occupancy":   "occupancy",
}

// Metric is one canonical measurement. At least one of Value/Text is set.
type Metric struct {
	Name  string   `json:"name"`
	Value *float64 `json:"value"`
	Text  *string  `json:"text"`
	Unit  *string  `json:"unit"`
}

// Payload is the canonical form of one notification's content.
type Payload struct {
	Metrics []Metric          `json:"metrics"`
	Device  string            `json:"device,omitempty"`
	Room    string            `json:"room,omitempty"`
	QoS     map[string]any    `json:"qos,omitempty"`
	TS      any               `json:"ts,omitempty"`
	Labels  map[string]string `json:"labels,omitempty"`
}

// CanonicalName resolves a metric key through the synonym table. Keys outside
// the vocabulary are returned unchanged.
func CanonicalName(key string) string {
	if canon, ok := canonicalNames[strings.ToLower(key)]; ok {
		return canon
	}
	return key
}

// KnownKey reports whether key (case-insensitive) is part of the metric
// vocabulary.
func KnownKey(key string) bool {
	_, ok := canonicalNames[strings.ToLower(key)]
	return ok
}

// AsNumber coerces a decoded JSON value into a float. Booleans map to 1/0,
// numbers pass through, strings are trimmed/lowercased and tested as boolean
// literals before a float parse. Returns nil when no numeric reading exists.
func AsNumber(v any) *float64 {
	switch x := v.(type) {
	case bool:
		if x {
			return ptr(1.0)
		}
		return ptr(0.0)
	case float64:
		return ptr(x)
	case float32:
		return ptr(float64(x))
	case int:
		return ptr(float64(x))
	case int64:
		return ptr(float64(x))
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		switch s {
		case "true":
			return ptr(1.0)
		case "false":
			return ptr(0.0)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return ptr(f)
		}
		return nil
	default:
		return nil
	}
}

// ParseLabels parses label entries of the form "key:value" into a map.
// Entries without a colon are ignored.
func ParseLabels(entries []any) map[string]string {
	labels := make(map[string]string)
	for _, e := range entries {
		s, ok := e.(string)
		if !ok {
			continue
		}
		key, val, found := strings.Cut(s, ":")
		if !found {
			continue
		}
		labels[key] = val
	}
	return labels
}

// Normalize produces the canonical payload for arbitrary content.
//
// Fast path: content already carrying a compact "metrics" list is used
// directly. General path: flat vocabulary keys are collected, then the whole
// structure is scanned recursively for vocabulary keys, "lbl" label arrays,
// and "rn" device hints, after which metrics are deduplicated by canonical
// name keeping the first entry with a usable numeric value.
func Normalize(content any) Payload {
	out := Payload{
		Metrics: []Metric{},
		QoS:     map[string]any{},
		Labels:  map[string]string{},
	}
	if content == nil {
		return out
	}

	con, isObj := content.(map[string]any)

	// Fast path: compact metrics array.
	if isObj {
		if list, ok := con["metrics"].([]any); ok {
			out.Device = asString(con["device"])
			out.Room = asString(con["room"])
			if qos, ok := con["qos"].(map[string]any); ok {
				out.QoS = qos
			}
			out.TS = con["ts"]
			for _, item := range list {
				m, ok := item.(map[string]any)
				if !ok {
					continue
				}
				name := asString(m["name"])
				if name == "" {
					continue
				}
				val := m["value"]
				num := AsNumber(val)
				txt := strPtr(m["text"])
				if num == nil && txt == nil && val != nil {
					txt = ptr(stringify(val))
				}
				out.Metrics = append(out.Metrics, Metric{
					Name:  CanonicalName(name),
					Value: num,
					Text:  txt,
					Unit:  strPtr(m["unit"]),
				})
			}
			return out
		}
	}

	if isObj {
		out.Device = asString(con["device"])
		out.Room = asString(con["room"])
		if qos, ok := con["qos"].(map[string]any); ok {
			out.QoS = qos
		}
		if ts, ok := con["ts"]; ok {
			out.TS = ts
		} else if ct, ok := con["ct"]; ok {
			out.TS = ct
		}

		// Flat top-level vocabulary keys.
		for _, k := range sortedKeys(con) {
			if !KnownKey(k) {
				continue
			}
			v := con[k]
			num := AsNumber(v)
			var txt *string
			if num == nil && v != nil {
				txt = ptr(stringify(v))
			}
			out.Metrics = append(out.Metrics, Metric{Name: CanonicalName(k), Value: num, Text: txt})
		}
	}

	scan(content, &out)

	// Dedupe by canonical name, keeping the first entry with a usable value.
	seen := make(map[string]bool)
	deduped := out.Metrics[:0]
	for _, m := range out.Metrics {
		if seen[m.Name] || m.Value == nil {
			continue
		}
		seen[m.Name] = true
		deduped = append(deduped, m)
	}
	out.Metrics = deduped

	// Device fallback: use a desk label when nothing else identified one.
	if out.Device == "" {
		if desk, ok := out.Labels["desk"]; ok && desk != "" {
			out.Device = desk
		}
	}

	return out
}

// scan walks nested objects and arrays collecting vocabulary metrics, label
// arrays, and device hints. Object keys are visited in sorted order so that
// "first encountered" is deterministic.
func scan(v any, out *Payload) {
	switch obj := v.(type) {
	case map[string]any:
		for _, k := range sortedKeys(obj) {
			val := obj[k]
			if KnownKey(k) {
				num := AsNumber(val)
				var txt *string
				if num == nil && val != nil {
					txt = ptr(stringify(val))
				}
				out.Metrics = append(out.Metrics, Metric{Name: CanonicalName(k), Value: num, Text: txt})
			}
			if k == "lbl" {
				if entries, ok := val.([]any); ok {
					for lk, lv := range ParseLabels(entries) {
						out.Labels[lk] = lv
						if lk == "room" && out.Room == "" {
							out.Room = lv
						}
					}
				}
			}
			if k == "rn" && out.Device == "" {
				if rn, ok := val.(string); ok {
					out.Device = rn
				}
			}
			switch val.(type) {
			case map[string]any, []any:
				scan(val, out)
			}
		}
	case []any:
		for _, item := range obj {
			scan(item, out)
		}
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func ptr[T any](v T) *T { return &v }

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func strPtr(v any) *string {
	if s, ok := v.(string); ok {
		return &s
	}
	return nil
}

// stringify renders a non-numeric value as fact text. Floats that are whole
// numbers print without an exponent, matching JSON source text closely enough
// for audit purposes.
func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
