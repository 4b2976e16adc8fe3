package outline

import (
	"strconv"
	"strings"
)

// defaultDurationSeconds is the fallback used when a free-form length
// string cannot be parsed (§4.6).
const defaultDurationSeconds = 300

// ParseDuration parses free-form strings like "5 minutes", "2 mins",
// "1.5 hours", "90 seconds" into a target second count. Falls back to
// defaultDurationSeconds with ok=false on parse failure.
func ParseDuration(s string) (seconds int, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return defaultDurationSeconds, false
	}

	fields := strings.Fields(s)
	if len(fields) == 0 {
		return defaultDurationSeconds, false
	}

	numStr := fields[0]
	unit := "minutes"
	if len(fields) > 1 {
		unit = fields[1]
	} else {
		// Forms like "5min" or "90s" with no space.
		numStr, unit = splitNumberUnit(s)
	}

	n, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return defaultDurationSeconds, false
	}

	switch {
	case strings.HasPrefix(unit, "h"):
		return int(n * 3600), true
	case strings.HasPrefix(unit, "s"):
		return int(n), true
	case strings.HasPrefix(unit, "m"):
		return int(n * 60), true
	default:
		return defaultDurationSeconds, false
	}
}

func splitNumberUnit(s string) (string, string) {
	i := 0
	for i < len(s) && (s[i] == '.' || (s[i] >= '0' && s[i] <= '9')) {
		i++
	}
	if i == 0 {
		return s, ""
	}
	return s[:i], s[i:]
}
