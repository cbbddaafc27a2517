package notify

import (
	"strings"
	"time"
)

const ctLayout = "20060102T150405"

// ParseCT parses a oneM2M creation timestamp into UTC time. Handles the
// basic form (20251114T215730) and forms carrying a fractional part after a
// comma or dot. Unparseable values yield ok=false; callers store NULL rather
// than substituting "now".
func ParseCT(ct string) (time.Time, bool) {
	if ct == "" {
		return time.Time{}, false
	}
	clean := ct
	if i := strings.IndexAny(clean, ",."); i >= 0 {
		clean = clean[:i]
	}
	t, err := time.ParseInLocation(ctLayout, clean, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatCT renders a time in the oneM2M basic timestamp form.
func FormatCT(t time.Time) string {
	return t.UTC().Format(ctLayout)
}
