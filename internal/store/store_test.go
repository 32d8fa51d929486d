package store

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func testPost(uri string, created time.Time, likes int) Post {
	return Post{
		URI:       uri,
		CID:       "cid-" + uri,
		Handle:    "gamer.bsky.social",
		Text:      "playing " + uri,
		Tags:      []string{"gaming"},
		LikeCount: likes,
		CreatedAt: created,
		Query:     "#gaming",
		Fetched:   created.Add(time.Minute),
	}
}

func TestOpen(t *testing.T) {
	st := openTestStore(t)

	for _, table := range []string{"posts", "classifications", "runs", "catalog_entries"} {
		var name string
		err := st.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("%s table not created: %v", table, err)
		}
	}
}

func TestOpenMemory(t *testing.T) {
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()

	if _, err := st.CountPosts(); err != nil {
		t.Fatalf("CountPosts: %v", err)
	}
}

func TestSavePosts(t *testing.T) {
	st := openTestStore(t)
	base := time.Date(2024, 9, 9, 12, 0, 0, 0, time.UTC)

	posts := []Post{
		testPost("at://a/1", base, 5),
		testPost("at://a/2", base.Add(time.Hour), 0),
	}
	posts[0].ImageAlts = []string{"a screenshot of Hollow Knight"}

	count, err := st.SavePosts(posts)
	if err != nil {
		t.Fatalf("SavePosts failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 new posts, got %d", count)
	}

	got, err := st.GetPosts(PostFilter{})
	if err != nil {
		t.Fatalf("GetPosts failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(got))
	}
	if got[0].URI != "at://a/1" {
		t.Errorf("expected oldest first, got %s", got[0].URI)
	}
	if diff := cmp.Diff([]string{"a screenshot of Hollow Knight"}, got[0].ImageAlts); diff != "" {
		t.Errorf("image alts mismatch (-want +got):\n%s", diff)
	}
	if !got[0].CreatedAt.Equal(base) {
		t.Errorf("created_at = %v, want %v", got[0].CreatedAt, base)
	}
	if got[1].Tags[0] != "gaming" {
		t.Errorf("tags = %v", got[1].Tags)
	}
}

func TestSavePostsDuplicateRefreshesCounts(t *testing.T) {
	st := openTestStore(t)
	base := time.Date(2024, 9, 9, 12, 0, 0, 0, time.UTC)

	if _, err := st.SavePosts([]Post{testPost("at://a/1", base, 5)}); err != nil {
		t.Fatal(err)
	}

	again := testPost("at://a/1", base, 42)
	again.Text = "edited text is ignored"
	count, err := st.SavePosts([]Post{again})
	if err != nil {
		t.Fatalf("SavePosts failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 new posts on duplicate, got %d", count)
	}

	got, _ := st.GetPosts(PostFilter{})
	if len(got) != 1 {
		t.Fatalf("expected 1 post, got %d", len(got))
	}
	if got[0].LikeCount != 42 {
		t.Errorf("like count = %d, want refreshed 42", got[0].LikeCount)
	}
	if got[0].Text != "playing at://a/1" {
		t.Errorf("text should be kept, got %q", got[0].Text)
	}
}

func TestSavePostsZeroCountsKeepEngagement(t *testing.T) {
	st := openTestStore(t)
	base := time.Date(2024, 9, 9, 12, 0, 0, 0, time.UTC)

	searched := testPost("at://a/1", base, 50)
	searched.RepostCount = 3
	searched.Query = "#gamechallenge"
	if _, err := st.SavePosts([]Post{searched}); err != nil {
		t.Fatal(err)
	}

	fromFeed := testPost("at://a/1", base, 0)
	fromFeed.Query = "feed:gamer.bsky.social"
	if _, err := st.SavePosts([]Post{fromFeed}); err != nil {
		t.Fatal(err)
	}

	got, err := st.GetPosts(PostFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 post, got %d", len(got))
	}
	if got[0].LikeCount != 50 || got[0].RepostCount != 3 {
		t.Errorf("counts = %d likes %d reposts, want 50 and 3", got[0].LikeCount, got[0].RepostCount)
	}
	if got[0].Query != "#gamechallenge" {
		t.Errorf("query = %q, want the original search query", got[0].Query)
	}
}

func TestSavePostsEmptySlice(t *testing.T) {
	st := openTestStore(t)

	count, err := st.SavePosts(nil)
	if err != nil {
		t.Fatalf("SavePosts with nil failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0, got %d", count)
	}
}

func TestGetPostsFilter(t *testing.T) {
	st := openTestStore(t)
	base := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)

	var posts []Post
	for i := 0; i < 5; i++ {
		p := testPost(fmt.Sprintf("at://a/%d", i), base.Add(time.Duration(i)*24*time.Hour), i)
		if i == 4 {
			p.Query = "feed:someone"
		}
		posts = append(posts, p)
	}
	if _, err := st.SavePosts(posts); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		filter PostFilter
		want   []string
	}{
		{"all", PostFilter{}, []string{"at://a/0", "at://a/1", "at://a/2", "at://a/3", "at://a/4"}},
		{"query", PostFilter{Query: "feed:someone"}, []string{"at://a/4"}},
		{"window", PostFilter{Since: base.Add(24 * time.Hour), Until: base.Add(3 * 24 * time.Hour)}, []string{"at://a/1", "at://a/2"}},
		{"limit", PostFilter{Limit: 2}, []string{"at://a/0", "at://a/1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := st.GetPosts(tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			var uris []string
			for _, p := range got {
				uris = append(uris, p.URI)
			}
			if diff := cmp.Diff(tt.want, uris); diff != "" {
				t.Errorf("uris mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClassifications(t *testing.T) {
	st := openTestStore(t)
	base := time.Date(2024, 9, 9, 12, 0, 0, 0, time.UTC)

	if _, err := st.SavePosts([]Post{
		testPost("at://a/1", base, 1),
		testPost("at://a/2", base.Add(time.Minute), 2),
		testPost("at://a/3", base.Add(2*time.Minute), 3),
	}); err != nil {
		t.Fatal(err)
	}

	pending, err := st.PostsNeedingClassification(0, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 pending, got %d", len(pending))
	}

	saves := []Classification{
		{PostURI: "at://a/1", Title: "Hades", ReleaseYear: "2020", Developer: "Supergiant Games", Provider: "ollama", Model: "mistral"},
		{PostURI: "at://a/2", Title: "none", Provider: "ollama"},
		{PostURI: "at://a/3", Provider: "ollama", Error: "connection refused"},
	}
	for _, c := range saves {
		if err := st.SaveClassification(c); err != nil {
			t.Fatalf("SaveClassification: %v", err)
		}
	}

	pending, _ = st.PostsNeedingClassification(0, false)
	if len(pending) != 0 {
		t.Errorf("expected nothing pending, got %d", len(pending))
	}
	retry, _ := st.PostsNeedingClassification(0, true)
	if len(retry) != 1 || retry[0].URI != "at://a/3" {
		t.Errorf("retry = %+v, want only at://a/3", retry)
	}

	c, err := st.GetClassification("at://a/3")
	if err != nil || c == nil {
		t.Fatalf("GetClassification: %v %v", c, err)
	}
	if c.Title != NoTitleLabel || !c.Failed() {
		t.Errorf("failed classification = %+v", c)
	}

	missing, err := st.GetClassification("at://nope")
	if err != nil || missing != nil {
		t.Errorf("missing classification = %v, %v", missing, err)
	}

	classified, err := st.CountClassified()
	if err != nil || classified != 3 {
		t.Errorf("CountClassified = %d, %v", classified, err)
	}
	matched, err := st.CountMatched()
	if err != nil || matched != 1 {
		t.Errorf("CountMatched = %d, %v", matched, err)
	}
	failed, err := st.CountFailed()
	if err != nil || failed != 1 {
		t.Errorf("CountFailed = %d, %v", failed, err)
	}

	// Upsert replaces the failed row
	if err := st.SaveClassification(Classification{PostURI: "at://a/3", Title: "Celeste", Provider: "dictionary"}); err != nil {
		t.Fatal(err)
	}
	cps, err := st.ClassifiedPosts("")
	if err != nil {
		t.Fatal(err)
	}
	if len(cps) != 3 {
		t.Fatalf("expected 3 classified posts, got %d", len(cps))
	}
	if cps[0].Title != "Hades" || cps[0].LikeCount != 1 || cps[0].Developer != "Supergiant Games" {
		t.Errorf("first classified post = %+v", cps[0])
	}
	if cps[2].Title != "Celeste" || cps[2].Failed() {
		t.Errorf("upserted classification = %+v", cps[2].Classification)
	}
}

func TestRuns(t *testing.T) {
	st := openTestStore(t)
	first := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)

	entries := []CatalogEntry{
		{Rank: 1, CanonicalKey: "adehs", Label: "Hades", Variants: []string{"HADES", "Hades"}, Mentions: 2, Engagement: 30, ItemIDs: []string{"at://a/1", "at://a/2"}},
		{Rank: 2, CanonicalKey: "eelst", Label: "Steel", Variants: []string{"Leets", "Steel"}, Mentions: 2, Engagement: 4, ItemIDs: []string{"at://a/3", "at://a/4"}, Suspect: true},
	}
	if err := st.SaveRun(Run{ID: "run-1", CreatedAt: first, Label: "#gaming", Posts: 5, Mentions: 4, Buckets: 2}, entries); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := st.SaveRun(Run{ID: "run-2", CreatedAt: first.Add(time.Hour), Posts: 1}, nil); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	latest, err := st.LatestRun()
	if err != nil || latest == nil || latest.ID != "run-2" {
		t.Fatalf("LatestRun = %+v, %v", latest, err)
	}

	runs, err := st.ListRuns(0)
	if err != nil || len(runs) != 2 {
		t.Fatalf("ListRuns = %+v, %v", runs, err)
	}

	r, err := st.GetRun("run-1")
	if err != nil || r == nil {
		t.Fatalf("GetRun: %v", err)
	}
	if r.Label != "#gaming" || r.Buckets != 2 || !r.CreatedAt.Equal(first) {
		t.Errorf("run = %+v", r)
	}

	got, err := st.RunEntries("run-1")
	if err != nil {
		t.Fatal(err)
	}
	for i := range entries {
		entries[i].RunID = "run-1"
	}
	if diff := cmp.Diff(entries, got); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	// Duplicate id rolls back completely
	if err := st.SaveRun(Run{ID: "run-1"}, entries); err == nil {
		t.Error("expected duplicate run id to fail")
	}
	if none, _ := st.GetRun("missing"); none != nil {
		t.Errorf("GetRun(missing) = %+v", none)
	}
}

func TestLatestRunEmpty(t *testing.T) {
	st := openTestStore(t)
	r, err := st.LatestRun()
	if err != nil || r != nil {
		t.Errorf("LatestRun on empty store = %+v, %v", r, err)
	}
}

func TestPostsPerDay(t *testing.T) {
	st := openTestStore(t)
	day := time.Date(2024, 9, 9, 10, 0, 0, 0, time.UTC)
	if _, err := st.SavePosts([]Post{
		testPost("at://a/1", day, 0),
		testPost("at://a/2", day.Add(3*time.Hour), 0),
		testPost("at://a/3", day.Add(24*time.Hour), 0),
	}); err != nil {
		t.Fatal(err)
	}

	got, err := st.PostsPerDay()
	if err != nil {
		t.Fatal(err)
	}
	want := []DayCount{{Day: "2024-09-09", Count: 2}, {Day: "2024-09-10", Count: 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("per day mismatch (-want +got):\n%s", diff)
	}
}

func TestConcurrentAccess(t *testing.T) {
	st := openTestStore(t)
	base := time.Now().UTC()

	var wg sync.WaitGroup
	for g := 0; g < 5; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				p := testPost(fmt.Sprintf("at://g%d/%d", g, i), base, i)
				if _, err := st.SavePosts([]Post{p}); err != nil {
					t.Errorf("SavePosts: %v", err)
					return
				}
				if _, err := st.GetPosts(PostFilter{Limit: 5}); err != nil {
					t.Errorf("GetPosts: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	n, err := st.CountPosts()
	if err != nil {
		t.Fatal(err)
	}
	if n != 50 {
		t.Errorf("expected 50 posts, got %d", n)
	}
}

func TestPrefixed(t *testing.T) {
	got := prefixed("p", "uri, cid,\n\thandle")
	if got != "p.uri, p.cid,\n\tp.handle" {
		t.Errorf("prefixed = %q", got)
	}
}
