package otel

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Filter selects events when reading a log back. Zero fields match all.
type Filter struct {
	KindPrefix string
	MinLevel   Level
	Comp       string
	RunID      string
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Event) bool {
	if f.KindPrefix != "" && !strings.HasPrefix(string(e.Kind), f.KindPrefix) {
		return false
	}
	if f.MinLevel != "" && e.Level.Rank() < f.MinLevel.Rank() {
		return false
	}
	if f.Comp != "" && e.Comp != f.Comp {
		return false
	}
	if f.RunID != "" && e.RunID != f.RunID {
		return false
	}
	return true
}

// ReadTail scans a JSONL event log and returns the last n matching events,
// oldest first. Malformed lines are skipped.
func ReadTail(r io.Reader, n int, f Filter) ([]Event, error) {
	if n <= 0 {
		return nil, nil
	}
	tail := newTailBuffer[Event](n)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var ev Event
		if json.Unmarshal(raw, &ev) != nil {
			continue
		}
		if f.Match(ev) {
			tail.push(ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	return tail.values(), nil
}

// Format renders an event as one human-readable line.
func Format(ev Event) string {
	ts := ev.Time.Format("2006-01-02 15:04:05")
	lvl := strings.ToUpper(string(ev.Level))
	if lvl == "" {
		lvl = "?"
	}

	parts := []string{fmt.Sprintf("%s %-5s [%-8s] %-18s", ts, lvl, ev.Comp, ev.Kind)}
	if ev.Msg != "" {
		parts = append(parts, "- "+ev.Msg)
	}
	if ev.DurMs > 0 {
		parts = append(parts, fmt.Sprintf("(%.*fms)", durPrecision(ev.DurMs), ev.DurMs))
	}
	if ev.Count > 0 {
		parts = append(parts, fmt.Sprintf("n=%d", ev.Count))
	}
	if ev.Query != "" {
		parts = append(parts, fmt.Sprintf("q=%q", ev.Query))
	}
	if ev.Title != "" {
		parts = append(parts, fmt.Sprintf("title=%q", ev.Title))
	}
	if ev.Post != "" {
		parts = append(parts, "post="+ev.Post)
	}
	if ev.RunID != "" {
		parts = append(parts, "run="+ev.RunID)
	}
	if ev.Err != "" {
		parts = append(parts, "err="+ev.Err)
	}
	return strings.Join(parts, " ")
}

func durPrecision(ms float64) int {
	if ms >= 100 {
		return 0
	}
	if ms >= 1 {
		return 1
	}
	return 2
}
