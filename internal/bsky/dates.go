package bsky

import (
	"fmt"
	"strings"
	"time"
)

// dateLayouts are tried in order by ParseDate.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"20060102",
	"2006/01/02",
}

// ParseDate parses "today", "yesterday" or a date/time in one of the
// accepted layouts. Times without a zone are UTC. The result is UTC.
func ParseDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "today", "now":
		return now.UTC(), nil
	case "yesterday":
		return now.UTC().Add(-24 * time.Hour), nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date format: %q", s)
}

// Window is a half-open time range [Since, Until).
type Window struct {
	Since time.Time
	Until time.Time
}

// Day returns the window start as YYYYMMDD.
func (w Window) Day() string {
	return w.Since.Format("20060102")
}

// DayWindows splits [from, to) into UTC day windows. from is truncated to
// midnight; the last window ends at to. An empty range yields nil.
func DayWindows(from, to time.Time) []Window {
	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC()

	var out []Window
	for start := from; start.Before(to); start = start.AddDate(0, 0, 1) {
		end := start.AddDate(0, 0, 1)
		if end.After(to) {
			end = to
		}
		out = append(out, Window{Since: start, Until: end})
	}
	return out
}
