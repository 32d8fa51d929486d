package otel

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestEmitWritesValidJSONL(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Emit(Event{Kind: KindSearchStart, Level: LevelInfo, Comp: "search", Query: "#gamechallenge"})
	l.Close()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["kind"] != "search.start" {
		t.Errorf("expected kind=search.start, got %v", decoded["kind"])
	}
	if decoded["comp"] != "search" {
		t.Errorf("expected comp=search, got %v", decoded["comp"])
	}
	if decoded["query"] != "#gamechallenge" {
		t.Errorf("expected query, got %v", decoded["query"])
	}
}

func TestEmitSetsTimeAndSessionID(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	before := time.Now()
	l.Emit(Event{Kind: KindStartup})
	l.Close()
	after := time.Now()

	var ev Event
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Time.Before(before) || ev.Time.After(after) {
		t.Errorf("time %v not in [%v, %v]", ev.Time, before, after)
	}
	if len(ev.SessionID) != 16 {
		t.Errorf("session_id should be 16 hex chars, got %q", ev.SessionID)
	}
	if ev.SessionID != l.SessionID() {
		t.Errorf("session id %q, logger reports %q", ev.SessionID, l.SessionID())
	}
}

func TestDurToMs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Emit(Event{Kind: KindClassifyComplete, Dur: 1500 * time.Millisecond})
	l.Close()

	var decoded map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if durMs, _ := decoded["dur_ms"].(float64); durMs != 1500 {
		t.Errorf("expected dur_ms=1500, got %v", decoded["dur_ms"])
	}
}

func TestOmitempty(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Emit(Event{Kind: KindStartup})
	l.Close()

	line := strings.TrimSpace(buf.String())
	for _, field := range []string{"dur_ms", "count", "query", "post", "title", "err", "msg", "extra", "run"} {
		if strings.Contains(line, `"`+field+`"`) {
			t.Errorf("expected field %q to be omitted, but found in: %s", field, line)
		}
	}
}

func TestConcurrentEmit(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Emit(Event{Kind: KindClassifyPost, Comp: "classify"})
		}()
	}
	wg.Wait()
	l.Close()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 100 {
		t.Errorf("expected 100 lines, got %d", len(lines))
	}
}

func TestEmitAfterCloseIsDropped(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)
	l.Close()
	l.Close()

	l.Emit(Event{Kind: KindStartup})
	if l.Dropped() != 1 {
		t.Errorf("expected 1 dropped event, got %d", l.Dropped())
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Emit(Event{Kind: KindStartup})
	l.Close()
}

func TestLevelHelpers(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	l.Info(KindStartup, "main", "hello")
	l.Warn(KindSearchError, "search", "timeout")
	l.Error(KindClassifyError, "classify", errForTest("model missing"))
	l.Close()

	events, err := ReadTail(&buf, 10, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	want := []struct {
		level Level
		kind  EventKind
	}{
		{LevelInfo, KindStartup},
		{LevelWarn, KindSearchError},
		{LevelError, KindClassifyError},
	}
	for i, w := range want {
		if events[i].Level != w.level || events[i].Kind != w.kind {
			t.Errorf("event %d = %s/%s, want %s/%s", i, events[i].Level, events[i].Kind, w.level, w.kind)
		}
	}
	if events[2].Err != "model missing" {
		t.Errorf("err = %q", events[2].Err)
	}
}

func TestOpenFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "events.jsonl")

	for i := 0; i < 2; i++ {
		l, err := OpenFile(path)
		if err != nil {
			t.Fatalf("OpenFile: %v", err)
		}
		l.Info(KindStartup, "main", "run")
		l.Close()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(string(data), "\n"); n != 2 {
		t.Errorf("expected 2 lines across sessions, got %d", n)
	}
}

type errForTest string

func (e errForTest) Error() string { return string(e) }
