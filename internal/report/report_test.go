package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/abelbrown/gamepulse/internal/store"
	"github.com/abelbrown/gamepulse/internal/titles"
)

func classified(uri, title string, likes int) store.ClassifiedPost {
	return store.ClassifiedPost{
		Post:           store.Post{URI: uri, LikeCount: likes},
		Classification: store.Classification{PostURI: uri, Title: title},
	}
}

func fixture(t *testing.T) ([]store.ClassifiedPost, *titles.Catalog) {
	t.Helper()
	posts := []store.ClassifiedPost{
		classified("at://did:plc:a/app.bsky.feed.post/1", "Hollow Knight", 10),
		classified("at://did:plc:b/app.bsky.feed.post/2", "None", 3),
		classified("at://did:plc:c/app.bsky.feed.post/3", "hollow knight", 5),
		classified("bogus", "Nonesuch", 1),
	}
	var mentions []titles.RawMention
	for _, p := range posts {
		mentions = append(mentions, titles.RawMention{Title: p.Title, Engagement: p.LikeCount, ItemID: p.URI})
	}
	cat, err := titles.Aggregate(mentions)
	if err != nil {
		t.Fatal(err)
	}
	return posts, cat
}

func TestRows(t *testing.T) {
	posts, cat := fixture(t)
	rows := Rows(posts, cat)

	want := Row{
		GameTitle:  "hollow knight",
		TotalLikes: 15,
		Mentions:   2,
		URI:        "at://did:plc:c/app.bsky.feed.post/3",
		WebURL:     "https://bsky.app/profile/did:plc:c/post/3",
		AllURIs:    "at://did:plc:a/app.bsky.feed.post/1 - at://did:plc:c/app.bsky.feed.post/3",
		AllURLs:    "https://bsky.app/profile/did:plc:a/post/1 - https://bsky.app/profile/did:plc:c/post/3",
	}
	if diff := cmp.Diff(want, rows[2]); diff != "" {
		t.Errorf("row mismatch (-want +got):\n%s", diff)
	}

	if rows[1].Mentions != 0 || rows[1].AllURIs != "" {
		t.Errorf("None row should have zero totals: %+v", rows[1])
	}
	if rows[3].WebURL != URLFallback || rows[3].AllURLs != URLFallback {
		t.Errorf("bogus uri should use the fallback: %+v", rows[3])
	}
}

func TestSplitUsesCanonicalNone(t *testing.T) {
	posts, cat := fixture(t)
	matched, unmatched := Split(Rows(posts, cat))

	// "Nonesuch" contains "none" but names a game
	if len(matched) != 3 || len(unmatched) != 1 {
		t.Fatalf("matched = %d, unmatched = %d", len(matched), len(unmatched))
	}
	if unmatched[0].GameTitle != "None" {
		t.Errorf("unmatched = %+v", unmatched[0])
	}
}

func TestEntriesFromCatalog(t *testing.T) {
	_, cat := fixture(t)
	entries := EntriesFromCatalog("run-x", cat)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	top := entries[0]
	if top.Rank != 1 || top.RunID != "run-x" || top.Label != "Hollow Knight" || top.Mentions != 2 || top.Engagement != 15 {
		t.Errorf("top = %+v", top)
	}
	if diff := cmp.Diff([]string{"Hollow Knight", "hollow knight"}, top.Variants); diff != "" {
		t.Errorf("variants (-want +got):\n%s", diff)
	}
	if top.CanonicalKey != titles.Canonicalize("Hollow Knight").String() {
		t.Errorf("key = %q", top.CanonicalKey)
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	return records
}

func TestWriteAnalysis(t *testing.T) {
	posts, cat := fixture(t)
	dir := t.TempDir()

	paths, err := WriteAnalysis(dir, "2024_Dec", Rows(posts, cat), EntriesFromCatalog("r", cat))
	if err != nil {
		t.Fatalf("WriteAnalysis: %v", err)
	}
	if paths.Matched != filepath.Join(dir, "2024_Dec_matched.csv") {
		t.Errorf("matched path = %q", paths.Matched)
	}

	matched := readCSV(t, paths.Matched)
	if diff := cmp.Diff(RowHeader, matched[0]); diff != "" {
		t.Errorf("header (-want +got):\n%s", diff)
	}
	if len(matched) != 4 {
		t.Errorf("matched rows = %d, want header + 3", len(matched))
	}
	if matched[1][3] != "15" || matched[1][4] != "2" {
		t.Errorf("totals = %v", matched[1])
	}

	unmatched := readCSV(t, paths.Unmatched)
	if len(unmatched) != 2 {
		t.Errorf("unmatched rows = %d", len(unmatched))
	}

	catalog := readCSV(t, paths.Catalog)
	if diff := cmp.Diff(CatalogHeader, catalog[0]); diff != "" {
		t.Errorf("catalog header (-want +got):\n%s", diff)
	}
	if catalog[1][1] != "Hollow Knight" || catalog[1][5] != "false" {
		t.Errorf("catalog row = %v", catalog[1])
	}
}

func TestDefaultName(t *testing.T) {
	if got := DefaultName(time.Date(2024, 12, 31, 23, 59, 1, 0, time.UTC)); got != "game_analysis_20241231_235901" {
		t.Errorf("DefaultName = %q", got)
	}
}

func TestRenderTable(t *testing.T) {
	entries := []store.CatalogEntry{
		{Rank: 1, Label: "Hollow Knight", Mentions: 1200, Engagement: 45000, Variants: []string{"HOLLOW KNIGHT", "Hollow Knight"}},
		{Rank: 2, Label: "Steel", Mentions: 2, Engagement: 3, Variants: []string{"Leets", "Steel"}, Suspect: true},
		{Rank: 3, Label: "Doom", Mentions: 1, Engagement: 0},
	}

	out := RenderTable(entries, 2)
	for _, want := range []string{"Hollow Knight", "1,200", "45,000", "HOLLOW KNIGHT", "Steel ?"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Doom") {
		t.Error("limit should cut the third entry")
	}

	if RenderTable(nil, 10) != "No games found.\n" {
		t.Error("empty table message")
	}
}

func TestVariantSummary(t *testing.T) {
	got := variantSummary([]string{"A", "B", "C", "D", "E"}, "A")
	if got != "B, C, D +1" {
		t.Errorf("variantSummary = %q", got)
	}
}

func TestRenderRuns(t *testing.T) {
	out := RenderRuns([]store.Run{{ID: "0123456789abcdef", CreatedAt: time.Now().Add(-2 * time.Hour), Label: "#gaming", Posts: 1500, Mentions: 900, Buckets: 120}})
	for _, want := range []string{"01234567", "#gaming", "1,500", "hours ago"} {
		if !strings.Contains(out, want) {
			t.Errorf("runs table missing %q:\n%s", want, out)
		}
	}
}
