package testutil

import (
	"regexp"
	"strings"
)

var (
	durationPattern = regexp.MustCompile(`\d+(\.\d+)?(ns|us|µs|ms|s|m|h)+`)
	uuidPattern     = regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
)

// Normalize normalizes output for comparison.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}

// ScrubDurations replaces durations like "1.234s" or "5m30s".
func ScrubDurations(s string) string {
	return durationPattern.ReplaceAllString(s, "[DURATION]")
}

// ScrubUUIDs replaces session ids.
func ScrubUUIDs(s string) string {
	return uuidPattern.ReplaceAllString(s, "[UUID]")
}

// ScrubAll applies all scrubbing functions.
func ScrubAll(s string) string {
	return Normalize(ScrubDurations(ScrubUUIDs(s)))
}
