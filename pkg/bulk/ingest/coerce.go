package ingest

import (
	"strconv"
	"strings"
)

// ParseCount coerces a raw field into a non-negative counter.
// Unparseable input yields the default; a successfully parsed negative
// number is clamped to zero rather than rejected.
func ParseCount(raw string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	if n < 0 {
		return 0
	}
	return n
}

// ParseFlag coerces a raw field into a boolean. Only "true", "1", and
// "yes" (case-insensitive) mean true; everything else, including the
// empty string, yields the default.
func ParseFlag(raw string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes":
		return true
	default:
		return def
	}
}
