package notify_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/R3DPanda1/workspace-mood-monitor/internal/normalize"
	"github.com/R3DPanda1/workspace-mood-monitor/internal/notify"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return v
}

func TestExtractStandardCIN(t *testing.T) {
	body := decode(t, `{
		"m2m:sgn": {
			"nev": {"rep": {"m2m:cin": {
				"rn": "cin-42",
				"ct": "20251114T215730",
				"con": {"tempe": 21.2}
			}}},
			"sur": "/cse/telemetry/room-101"
		}
	}`)

	f, handshake := notify.Extract(body)
	if handshake {
		t.Fatal("unexpected handshake")
	}
	if f.ParentPath != "/cse/telemetry/room-101" {
		t.Errorf("parent = %q", f.ParentPath)
	}
	if f.ResourceName != "cin-42" || f.CreationTime != "20251114T215730" {
		t.Errorf("identity = %q/%q", f.ResourceName, f.CreationTime)
	}
	con, ok := f.Content.(map[string]any)
	if !ok || con["tempe"] != 21.2 {
		t.Errorf("content = %v", f.Content)
	}
}

func TestExtractHandshakeSuppressed(t *testing.T) {
	body := decode(t, `{"m2m:sgn": {"vrq": true}}`)
	_, handshake := notify.Extract(body)
	if !handshake {
		t.Fatal("verification request must be suppressed")
	}
}

func TestExtractSingleNamespacedRep(t *testing.T) {
	body := decode(t, `{
		"m2m:sgn": {
			"nev": {"rep": {"cod:tempe": {
				"rn": "ann-1", "ct": "20251114T215730", "tempe": 20.5
			}}},
			"sur": "/cse/ann"
		}
	}`)

	f, _ := notify.Extract(body)
	if f.ResourceName != "ann-1" || f.CreationTime != "20251114T215730" {
		t.Errorf("identity = %q/%q", f.ResourceName, f.CreationTime)
	}
	con, ok := f.Content.(map[string]any)
	if !ok || con["tempe"] != 20.5 {
		t.Errorf("content = %v", f.Content)
	}
}

func TestExtractAmbiguousRepRecursiveSearch(t *testing.T) {
	// Two namespaced keys, so the single-object rule does not apply; the
	// recursive search must find the first object carrying rn+ct or a
	// vocabulary key.
	body := decode(t, `{
		"m2m:sgn": {
			"nev": {"rep": {
				"x:alpha": {"wrapper": {"inner": {"rn": "deep-1", "ct": "20251009T153210", "lux": 99}}},
				"y:beta": 7
			}},
			"sur": "/cse/deep"
		}
	}`)

	f, _ := notify.Extract(body)
	if f.ResourceName != "deep-1" {
		t.Errorf("rn = %q, want deep-1", f.ResourceName)
	}
	con, ok := f.Content.(map[string]any)
	if !ok || con["lux"] != 99.0 {
		t.Errorf("content = %v", f.Content)
	}
}

func TestExtractRecursiveSearchVocabularyOnly(t *testing.T) {
	// No rn/ct anywhere; an object holding a vocabulary key still qualifies.
	body := decode(t, `{
		"m2m:sgn": {
			"nev": {"rep": {"a:x": {"stuff": {"humiy": 40}}, "b:y": {}}},
			"sur": "/cse"
		}
	}`)
	f, _ := notify.Extract(body)
	con, ok := f.Content.(map[string]any)
	if !ok {
		t.Fatalf("content = %v", f.Content)
	}
	if !normalize.KnownKey("humiy") {
		t.Fatal("humiy must be vocabulary")
	}
	if con["humiy"] != 40.0 {
		t.Errorf("content = %v", con)
	}
}

func TestExtractRawCodBody(t *testing.T) {
	body := decode(t, `{
		"cod:tempe": {"rn": "raw-3", "ct": "20251114T215730", "lnk": "/cse/devices/d3", "tempe": 19}
	}`)

	f, _ := notify.Extract(body)
	if f.ParentPath != "/cse/devices/d3" {
		t.Errorf("parent = %q", f.ParentPath)
	}
	if f.ResourceName != "raw-3" {
		t.Errorf("rn = %q", f.ResourceName)
	}
}

func TestExtractRawCodDefaultsResourceName(t *testing.T) {
	body := decode(t, `{"cod:x": {"ct": "20251114T215730"}}`)
	f, _ := notify.Extract(body)
	if f.ResourceName != "cin-raw" {
		t.Errorf("rn = %q, want cin-raw", f.ResourceName)
	}
}

func TestExtractAmbiguousCodFallsBackToWholeBody(t *testing.T) {
	body := decode(t, `{"cod:a": {"tempe": 1}, "cod:b": {"tempe": 2}}`)
	f, _ := notify.Extract(body)
	if !reflect.DeepEqual(f.Content, body) {
		t.Errorf("content = %v, want whole body", f.Content)
	}
}

func TestExtractBareBody(t *testing.T) {
	body := decode(t, `{"tempe": 21.5, "room": "101"}`)
	f, _ := notify.Extract(body)
	if !reflect.DeepEqual(f.Content, body) {
		t.Errorf("content = %v, want whole body", f.Content)
	}
	if f.ResourceName != "" || f.CreationTime != "" {
		t.Errorf("identity must stay empty, got %q/%q", f.ResourceName, f.CreationTime)
	}
}

func TestExtractStringEncodedContent(t *testing.T) {
	body := decode(t, `{
		"m2m:sgn": {
			"nev": {"rep": {"m2m:cin": {
				"rn": "cin-s", "ct": "20251114T215730",
				"con": "{\"tempe\": 21.5, \"room\": \"101\"}"
			}}},
			"sur": "/cse"
		}
	}`)

	f, _ := notify.Extract(body)
	con, ok := f.Content.(map[string]any)
	if !ok {
		t.Fatalf("string content not decoded: %v", f.Content)
	}
	if con["tempe"] != 21.5 || con["room"] != "101" {
		t.Errorf("content = %v", con)
	}
}

// String-JSON round trip: extracting a string-encoded con and a native con
// must normalize identically.
func TestExtractStringContentRoundTrip(t *testing.T) {
	native := decode(t, `{
		"m2m:sgn": {"nev": {"rep": {"m2m:cin": {
			"rn": "a", "ct": "20251114T215730",
			"con": {"metrics": [{"name": "tempe", "value": "21.5"}], "room": "101"}
		}}}, "sur": "/cse"}
	}`)
	wrapped := decode(t, `{
		"m2m:sgn": {"nev": {"rep": {"m2m:cin": {
			"rn": "a", "ct": "20251114T215730",
			"con": "{\"metrics\": [{\"name\": \"tempe\", \"value\": \"21.5\"}], \"room\": \"101\"}"
		}}}, "sur": "/cse"}
	}`)

	nf, _ := notify.Extract(native)
	wf, _ := notify.Extract(wrapped)

	np := normalize.Normalize(nf.Content)
	wp := normalize.Normalize(wf.Content)
	if !reflect.DeepEqual(np, wp) {
		t.Errorf("round trip mismatch:\nnative:  %+v\nwrapped: %+v", np, wp)
	}
}

func TestExtractUndecodableStringContentKeptRaw(t *testing.T) {
	body := decode(t, `{
		"m2m:sgn": {"nev": {"rep": {"m2m:cin": {
			"rn": "a", "ct": "x", "con": "not json {{"
		}}}, "sur": "/cse"}
	}`)
	f, _ := notify.Extract(body)
	if f.Content != "not json {{" {
		t.Errorf("content = %v, want raw string", f.Content)
	}
}

func TestExtractMalformedNeverPanics(t *testing.T) {
	for _, s := range []string{
		`null`, `42`, `"a string"`, `[]`,
		`{"m2m:sgn": null}`,
		`{"m2m:sgn": {"nev": 7}}`,
		`{"m2m:sgn": {"nev": {"rep": []}}}`,
	} {
		f, handshake := notify.Extract(decode(t, s))
		if handshake {
			t.Errorf("Extract(%s) flagged handshake", s)
		}
		_ = f
	}
}

func TestEnsureObject(t *testing.T) {
	if got := notify.EnsureObject(`{"a": 1}`); !reflect.DeepEqual(got, map[string]any{"a": 1.0}) {
		t.Errorf("EnsureObject json string = %v", got)
	}
	if got := notify.EnsureObject("plain"); !reflect.DeepEqual(got, map[string]any{"raw": "plain"}) {
		t.Errorf("EnsureObject plain string = %v", got)
	}
	in := map[string]any{"x": 1.0}
	if got := notify.EnsureObject(in); !reflect.DeepEqual(got, in) {
		t.Errorf("EnsureObject map = %v", got)
	}
}
