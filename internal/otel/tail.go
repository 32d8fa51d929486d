package otel

import (
	"cmp"
	"slices"
)

// tailBuffer keeps the last cap(buf) values pushed into it.
type tailBuffer[T any] struct {
	buf  []T
	next int
	full bool
}

func newTailBuffer[T any](n int) *tailBuffer[T] {
	return &tailBuffer[T]{buf: make([]T, n)}
}

func (t *tailBuffer[T]) push(v T) {
	t.buf[t.next] = v
	t.next++
	if t.next == len(t.buf) {
		t.next = 0
		t.full = true
	}
}

// values returns the kept values, oldest first.
func (t *tailBuffer[T]) values() []T {
	if !t.full {
		if t.next == 0 {
			return nil
		}
		return slices.Clone(t.buf[:t.next])
	}
	return append(slices.Clone(t.buf[t.next:]), t.buf[:t.next]...)
}

// KindCount is the number of events of one kind.
type KindCount struct {
	Kind   EventKind
	Count  int
	Errors int // events at warn level or above
}

// Summarize counts events per kind, most frequent first.
func Summarize(events []Event) []KindCount {
	idx := make(map[EventKind]int)
	var out []KindCount
	for _, e := range events {
		i, ok := idx[e.Kind]
		if !ok {
			i = len(out)
			idx[e.Kind] = i
			out = append(out, KindCount{Kind: e.Kind})
		}
		out[i].Count++
		if e.Level.Rank() >= LevelWarn.Rank() {
			out[i].Errors++
		}
	}
	slices.SortStableFunc(out, func(a, b KindCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Kind, b.Kind)
	})
	return out
}
