// Package otel records gamepulse pipeline events.
//
// Events are typed structs serialized as JSONL lines. The Logger writes
// events asynchronously via a buffered channel and background drain goroutine.
// ReadTail reads a log back for the `gamepulse events` viewer.
package otel

import (
	"encoding/json"
	"time"
)

// Level defines event severity for filtering.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Rank orders levels for minimum-level filtering. Unknown levels rank as debug.
func (l Level) Rank() int {
	switch l {
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 0
	}
}

// EventKind identifies the category of an event.
// Dot-delimited: "<subsystem>.<action>".
type EventKind string

const (
	// Bluesky search
	KindSearchStart    EventKind = "search.start"
	KindSearchPage     EventKind = "search.page"
	KindSearchComplete EventKind = "search.complete"
	KindSearchError    EventKind = "search.error"

	// RSS timeline import
	KindFeedComplete EventKind = "feed.complete"
	KindFeedError    EventKind = "feed.error"

	// Classification
	KindClassifyStart    EventKind = "classify.start"
	KindClassifyPost     EventKind = "classify.post"
	KindClassifyComplete EventKind = "classify.complete"
	KindClassifyError    EventKind = "classify.error"

	// Aggregation and export
	KindAnalyzeComplete EventKind = "analyze.complete"
	KindExportComplete  EventKind = "export.complete"

	// Store events
	KindStoreError EventKind = "store.error"

	// System events
	KindStartup  EventKind = "sys.startup"
	KindShutdown EventKind = "sys.shutdown"
)

// Event is the universal record. Every field except Kind and Time is
// optional. Serialized as a single JSONL line.
type Event struct {
	Time      time.Time      `json:"t"`
	Level     Level          `json:"level,omitempty"`
	Kind      EventKind      `json:"kind"`
	Comp      string         `json:"comp,omitempty"`       // "search", "classify", "analyze", "main"
	SessionID string         `json:"session_id,omitempty"` // random hex, same for one CLI invocation
	RunID     string         `json:"run,omitempty"`        // catalog run id
	Dur       time.Duration  `json:"-"`
	DurMs     float64        `json:"dur_ms,omitempty"` // computed from Dur at marshal time
	Count     int            `json:"count,omitempty"`
	Query     string         `json:"query,omitempty"`
	Post      string         `json:"post,omitempty"` // post URI
	Title     string         `json:"title,omitempty"`
	Err       string         `json:"err,omitempty"`
	Msg       string         `json:"msg,omitempty"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// MarshalJSON implements json.Marshaler, converting Dur to DurMs.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	a := struct {
		Alias
	}{Alias: Alias(e)}
	if e.Dur > 0 {
		a.DurMs = float64(e.Dur) / float64(time.Millisecond)
	}
	return json.Marshal(a)
}
