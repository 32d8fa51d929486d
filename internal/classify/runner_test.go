package classify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/abelbrown/gamepulse/internal/otel"
	"github.com/abelbrown/gamepulse/internal/store"
	"github.com/abelbrown/gamepulse/internal/titles"
)

// scriptedProvider answers from a map keyed by post text.
type scriptedProvider struct {
	mu      sync.Mutex
	answers map[string]string
	calls   int
}

func (s *scriptedProvider) Name() string { return "scripted" }
func (s *scriptedProvider) Available(context.Context) bool { return true }

func (s *scriptedProvider) Classify(ctx context.Context, p store.Post) (Guess, Response, error) {
	s.mu.Lock()
	s.calls++
	reply, ok := s.answers[p.Text]
	s.mu.Unlock()

	if !ok {
		return None, Response{}, fmt.Errorf("%w: timeout", ErrUnavailable)
	}
	g, err := ParseGuess(reply)
	return g, Response{Content: reply, Model: "scripted-1"}, err
}

func seedStore(t *testing.T, texts ...string) (*store.Store, []store.Post) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "runner.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	var posts []store.Post
	for i, text := range texts {
		posts = append(posts, store.Post{
			URI:       fmt.Sprintf("at://did:plc:x/app.bsky.feed.post/%d", i),
			Handle:    "p.bsky.social",
			Text:      text,
			LikeCount: i,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Fetched:   base,
		})
	}
	if _, err := st.SavePosts(posts); err != nil {
		t.Fatal(err)
	}
	return st, posts
}

func TestRunnerStoresEveryOutcome(t *testing.T) {
	st, posts := seedStore(t, "hades post", "nothing", "garbled", "offline")
	prov := &scriptedProvider{answers: map[string]string{
		"hades post": "Hades;2020;Supergiant Games",
		"nothing":    "None;;",
		"garbled":    "I am not sure",
	}}

	var events bytes.Buffer
	l := otel.NewLogger(&events)

	r := NewRunner(prov, st, l, 3)
	var progress []int
	r.OnProgress = func(p Progress) { progress = append(progress, p.Done) }

	sum, err := r.Run(context.Background(), posts)
	l.Close()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Processed != 4 || sum.Matched != 1 || sum.Failed != 2 {
		t.Errorf("summary = %+v", sum)
	}
	if len(progress) != 4 {
		t.Errorf("progress calls = %v", progress)
	}

	c, _ := st.GetClassification(posts[0].URI)
	if c.Title != "Hades" || c.ReleaseYear != "2020" || c.Provider != "scripted" || c.Model != "scripted-1" {
		t.Errorf("hades classification = %+v", c)
	}

	c, _ = st.GetClassification(posts[2].URI)
	if c.Title != store.NoTitleLabel || !strings.Contains(c.Error, "malformed") || c.RawResponse != "I am not sure" {
		t.Errorf("garbled classification = %+v", c)
	}

	c, _ = st.GetClassification(posts[3].URI)
	if !c.Failed() {
		t.Errorf("offline classification should be failed: %+v", c)
	}

	out := events.String()
	for _, kind := range []string{"classify.start", "classify.post", "classify.error", "classify.complete"} {
		if !strings.Contains(out, `"kind":"`+kind+`"`) {
			t.Errorf("missing %s event", kind)
		}
	}

	pending, _ := st.PostsNeedingClassification(0, true)
	if len(pending) != 2 {
		t.Errorf("retry candidates = %d, want 2", len(pending))
	}
}

func TestRunnerCancelled(t *testing.T) {
	st, posts := seedStore(t, "a", "b", "c")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(&scriptedProvider{}, st, nil, 1).Run(ctx, posts)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if n, _ := st.CountClassified(); n != 0 {
		t.Errorf("nothing should be stored after cancel, got %d", n)
	}
}

func TestRunnerThenAggregate(t *testing.T) {
	st, posts := seedStore(t, "one", "two", "three", "four")
	prov := &scriptedProvider{answers: map[string]string{
		"one":   "Hollow Knight;2017;Team Cherry",
		"two":   "hollow knight;;",
		"three": "None;;",
		"four":  "Celeste;2018;",
	}}
	if _, err := NewRunner(prov, st, nil, 2).Run(context.Background(), posts); err != nil {
		t.Fatal(err)
	}

	rows, err := st.ClassifiedPosts("")
	if err != nil {
		t.Fatal(err)
	}
	mentions, rejected := Mentions(rows)
	if len(rejected) != 0 || len(mentions) != 4 {
		t.Fatalf("mentions = %d, rejected = %v", len(mentions), rejected)
	}

	cat, err := titles.Aggregate(mentions)
	if err != nil {
		t.Fatal(err)
	}
	ranked := cat.Ranked()
	if len(ranked) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(ranked))
	}
	if ranked[0].Representative != "Hollow Knight" || ranked[0].Mentions != 2 || ranked[0].Engagement != 1 {
		t.Errorf("top bucket = %+v", ranked[0])
	}
}

func TestMentionsRejects(t *testing.T) {
	rows := []store.ClassifiedPost{
		{Post: store.Post{URI: "at://a", LikeCount: 3, Tags: []string{"t"}}, Classification: store.Classification{Title: "Doom"}},
		{Post: store.Post{URI: "", LikeCount: 1}, Classification: store.Classification{Title: "Doom"}},
		{Post: store.Post{URI: "at://b", LikeCount: -2}, Classification: store.Classification{Title: "Doom"}},
	}
	mentions, rejected := Mentions(rows)
	if len(mentions) != 1 || mentions[0].ItemID != "at://a" || mentions[0].Engagement != 3 || mentions[0].Tags[0] != "t" {
		t.Errorf("mentions = %+v", mentions)
	}
	if len(rejected) != 2 || rejected[1].PostURI != "at://b" {
		t.Errorf("rejected = %+v", rejected)
	}
}

func TestProviderManager(t *testing.T) {
	ctx := context.Background()
	pm := NewProviderManager()
	offline := NewOllamaProvider(OllamaOptions{Endpoint: "http://127.0.0.1:1", Timeout: time.Second})
	dict := NewDictionaryProvider([]string{"Doom"})
	pm.AddProvider(offline)
	pm.AddProvider(dict)

	pm.SetPreferred("ollama")
	if got := pm.GetAvailable(ctx); got != dict {
		t.Errorf("expected fallback to dictionary, got %v", got)
	}
	if pm.GetByName("ollama") != offline {
		t.Error("GetByName should return unavailable providers too")
	}
	if got := pm.Names(); len(got) != 2 || got[0] != "ollama" {
		t.Errorf("Names = %v", got)
	}

	empty := NewProviderManager()
	if empty.GetAvailable(ctx) != nil {
		t.Error("empty manager should return nil")
	}
}
