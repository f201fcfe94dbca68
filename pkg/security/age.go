package security

import (
	"strings"
	"time"
)

// AgeLevel classifies how long ago a credential was last changed.
type AgeLevel string

const (
	// AgeNone means the credential is recent, undated, or dated unreadably.
	AgeNone AgeLevel = "none"
	// AgeWarning means the credential is older than WarningAgeDays.
	AgeWarning AgeLevel = "warning"
	// AgeCritical means the credential is older than CriticalAgeDays.
	AgeCritical AgeLevel = "critical"
)

// Age thresholds in whole days. Both are exclusive.
const (
	WarningAgeDays  = 180
	CriticalAgeDays = 365
)

// revisionLayouts are tried in order. Layouts without a zone are read as UTC.
var revisionLayouts = []string{
	time.RFC3339Nano, // also matches values without fractional seconds
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseRevision parses a stored revision timestamp.
func ParseRevision(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range revisionLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// AgeDays returns the whole number of days between revision and now. The
// second result is false when revision is absent or unparsable.
func AgeDays(revision string, now time.Time) (int, bool) {
	t, ok := ParseRevision(revision)
	if !ok {
		return 0, false
	}
	return int(now.Sub(t) / (24 * time.Hour)), true
}

// ClassifyAge maps a revision timestamp to an AgeLevel. It never fails:
// missing and malformed timestamps, and timestamps in the future, are AgeNone.
func ClassifyAge(revision string, now time.Time) AgeLevel {
	days, ok := AgeDays(revision, now)
	if !ok {
		return AgeNone
	}
	return classifyDays(days)
}

func classifyDays(days int) AgeLevel {
	switch {
	case days > CriticalAgeDays:
		return AgeCritical
	case days > WarningAgeDays:
		return AgeWarning
	default:
		return AgeNone
	}
}
