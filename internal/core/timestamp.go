package core

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	DateLayout,
}

// ParseTimestamp parses the ISO forms found in cached and remote documents.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// ParseDate parses a calendar date (YYYY-MM-DD).
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(s))
}

// FormatTimestamp renders t the way entities store it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// IsNewer reports whether a is strictly later than b. An unparseable or
// empty timestamp on either side is never newer, so ties and garbage both
// leave the existing copy in place.
func IsNewer(a, b string) bool {
	ta, err := ParseTimestamp(a)
	if err != nil {
		return false
	}
	tb, err := ParseTimestamp(b)
	if err != nil {
		return false
	}
	return ta.After(tb)
}
