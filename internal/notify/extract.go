// Package notify locates the identity fields and content of an inbound
// oneM2M-style notification, whichever of the known shapes it arrived in.
package notify

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/R3DPanda1/workspace-mood-monitor/internal/normalize"
)

// Fields is the (parent path, resource name, creation time, content) tuple
// recovered from a notification body. Unresolved fields are empty/nil.
type Fields struct {
	ParentPath   string
	ResourceName string
	CreationTime string
	Content      any
}

// Extract pulls Fields from a decoded notification body. The second return
// is true when the body is a verification/handshake request that must be
// acknowledged without creating any queue entry.
//
// Extraction never fails: no matter how malformed the body, some Fields
// value is returned with nil content at worst.
func Extract(body any) (Fields, bool) {
	var f Fields

	obj, ok := body.(map[string]any)
	if !ok {
		f.Content = body
		f.Content = decodeStringContent(f.Content)
		return f, false
	}

	if sgn, ok := obj["m2m:sgn"].(map[string]any); ok {
		if vrq, _ := sgn["vrq"].(bool); vrq {
			return Fields{}, true
		}
		f.ParentPath, _ = sgn["sur"].(string)

		var rep map[string]any
		if nev, ok := sgn["nev"].(map[string]any); ok {
			rep, _ = nev["rep"].(map[string]any)
		}

		switch {
		case rep == nil:
			// Nothing to extract; identity stays empty.
		case hasKey(rep, "m2m:cin"):
			if cin, ok := rep["m2m:cin"].(map[string]any); ok {
				f.ResourceName, _ = cin["rn"].(string)
				f.CreationTime, _ = cin["ct"].(string)
				f.Content = cin["con"]
			}
		default:
			// A single namespace-qualified object is treated as an
			// announcement carrying its own rn/ct.
			if inner, ok := singleNamespacedObject(rep); ok {
				f.Content = inner
				f.ResourceName, _ = inner["rn"].(string)
				f.CreationTime, _ = inner["ct"].(string)
			} else if found, ok := findAnnouncement(rep); ok {
				f.Content = found
				f.ResourceName, _ = found["rn"].(string)
				f.CreationTime, _ = found["ct"].(string)
			}
		}
	} else {
		// Raw announcement bodies arrive with a single cod:-prefixed key.
		codKeys := keysWithPrefix(obj, "cod:")
		if len(codKeys) == 1 {
			f.Content = obj[codKeys[0]]
			if inner, ok := f.Content.(map[string]any); ok {
				f.ParentPath, _ = inner["lnk"].(string)
				f.ResourceName, _ = inner["rn"].(string)
				if f.ResourceName == "" {
					f.ResourceName = "cin-raw"
				}
				f.CreationTime, _ = inner["ct"].(string)
			}
		} else {
			f.Content = obj
		}
	}

	f.Content = decodeStringContent(f.Content)
	return f, false
}

// EnsureObject prepares a stored payload for processing: string-wrapped JSON
// is decoded, and strings that are not JSON are wrapped so the raw text is
// not lost.
func EnsureObject(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return map[string]any{"raw": s}
	}
	return decoded
}

// decodeStringContent unwraps content that the CSE stored as a JSON-encoded
// string. Decode failures leave the raw string in place; the normalizer
// tolerates that.
func decodeStringContent(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	var decoded any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return s
	}
	return decoded
}

// findAnnouncement walks rep depth-first for the first object that either
// carries both rn and ct or contains any metric vocabulary key. Keys are
// visited in sorted order so the result is deterministic.
func findAnnouncement(v any) (map[string]any, bool) {
	switch obj := v.(type) {
	case map[string]any:
		_, hasRN := obj["rn"]
		_, hasCT := obj["ct"]
		if hasRN && hasCT {
			return obj, true
		}
		for k := range obj {
			if normalize.KnownKey(k) {
				return obj, true
			}
		}
		for _, k := range sortedKeys(obj) {
			if found, ok := findAnnouncement(obj[k]); ok {
				return found, true
			}
		}
	case []any:
		for _, item := range obj {
			if found, ok := findAnnouncement(item); ok {
				return found, true
			}
		}
	}
	return nil, false
}

func singleNamespacedObject(rep map[string]any) (map[string]any, bool) {
	var namespaced []string
	for k := range rep {
		if strings.Contains(k, ":") {
			namespaced = append(namespaced, k)
		}
	}
	if len(namespaced) != 1 {
		return nil, false
	}
	inner, ok := rep[namespaced[0]].(map[string]any)
	return inner, ok
}

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

func keysWithPrefix(m map[string]any, prefix string) []string {
	var keys []string
	for k := range m {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
