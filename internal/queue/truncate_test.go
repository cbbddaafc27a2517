package queue

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTruncateErrorShortPassesThrough(t *testing.T) {
	for _, s := range []string{"", "boom", "température élevée"} {
		if got := truncateError(s); got != s {
			t.Errorf("truncateError(%q) = %q", s, got)
		}
	}
}

func TestTruncateErrorCapsLength(t *testing.T) {
	long := strings.Repeat("x", 5000)
	got := truncateError(long)
	if len(got) != maxErrorLen {
		t.Errorf("length = %d, want %d", len(got), maxErrorLen)
	}
}

// A multibyte rune straddling the cap must not be split into invalid bytes.
func TestTruncateErrorKeepsValidUTF8(t *testing.T) {
	// 999 ASCII bytes, then a 3-byte rune crossing the 1000-byte boundary.
	s := strings.Repeat("x", maxErrorLen-1) + "€" + strings.Repeat("y", 50)
	got := truncateError(s)

	if !utf8.ValidString(got) {
		t.Fatalf("truncated text is not valid UTF-8: %q", got[len(got)-8:])
	}
	if len(got) != maxErrorLen-1 {
		t.Errorf("length = %d, want %d (rune backed out)", len(got), maxErrorLen-1)
	}
	if strings.ContainsRune(got, '€') {
		t.Error("split rune survived truncation")
	}
}

func TestTruncateErrorRuneEndingExactlyAtCap(t *testing.T) {
	// The euro sign's final byte lands exactly at the cap, so nothing needs
	// backing out.
	s := strings.Repeat("x", maxErrorLen-3) + "€" + strings.Repeat("y", 50)
	got := truncateError(s)

	if !utf8.ValidString(got) {
		t.Fatalf("truncated text is not valid UTF-8")
	}
	if len(got) != maxErrorLen {
		t.Errorf("length = %d, want %d", len(got), maxErrorLen)
	}
	if !strings.HasSuffix(got, "€") {
		t.Error("rune ending at the cap was dropped")
	}
}
