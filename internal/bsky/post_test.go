package bsky

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const samplePost = `{
	"uri": "at://did:plc:abc/app.bsky.feed.post/3kq",
	"cid": "bafy",
	"author": {"did": "did:plc:abc", "handle": "player.bsky.social"},
	"record": {
		"text": "Day 12 of #gamechallenge: Hollow Knight!",
		"createdAt": "2024-05-12T18:30:00.000Z",
		"facets": [{"features": [{"$type": "app.bsky.richtext.facet#tag", "tag": "gamechallenge"}]},
		           {"features": [{"$type": "app.bsky.richtext.facet#link", "uri": "https://x"}]}]
	},
	"embed": {"media": {"images": [{"alt": "Hollow Knight title screen"}, {"alt": " "}]}},
	"likeCount": 7,
	"repostCount": 2,
	"replyCount": 1,
	"indexedAt": "2024-05-12T18:30:05.000Z"
}`

func TestFlatten(t *testing.T) {
	var pv PostView
	if err := json.Unmarshal([]byte(samplePost), &pv); err != nil {
		t.Fatal(err)
	}
	fetched := time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)

	p, err := Flatten(pv, "#gamechallenge", fetched)
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}

	if p.URI != pv.URI || p.Handle != "player.bsky.social" || p.CID != "bafy" {
		t.Errorf("identity fields = %+v", p)
	}
	if diff := cmp.Diff([]string{"gamechallenge"}, p.Tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Hollow Knight title screen"}, p.ImageAlts); diff != "" {
		t.Errorf("alts (-want +got):\n%s", diff)
	}
	if p.LikeCount != 7 || p.RepostCount != 2 || p.ReplyCount != 1 {
		t.Errorf("counts = %d/%d/%d", p.LikeCount, p.RepostCount, p.ReplyCount)
	}
	if !p.CreatedAt.Equal(time.Date(2024, 5, 12, 18, 30, 0, 0, time.UTC)) {
		t.Errorf("created = %v", p.CreatedAt)
	}
	if p.Query != "#gamechallenge" || !p.Fetched.Equal(fetched) {
		t.Errorf("provenance = %q %v", p.Query, p.Fetched)
	}
}

func TestFlattenFallbacks(t *testing.T) {
	indexed := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pv := PostView{
		URI:       "at://x/app.bsky.feed.post/1",
		Record:    Record{Text: "no facets but #Celeste and #"},
		Embed:     &Embed{Images: []Image{{Alt: "direct alt"}}},
		IndexedAt: indexed,
	}
	p, err := Flatten(pv, "", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Celeste"}, p.Tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"direct alt"}, p.ImageAlts); diff != "" {
		t.Errorf("alts (-want +got):\n%s", diff)
	}
	if !p.CreatedAt.Equal(indexed) {
		t.Errorf("created should fall back to indexedAt, got %v", p.CreatedAt)
	}
}

func TestFlattenAllSkipsBadPosts(t *testing.T) {
	views := []PostView{{URI: "at://x/app.bsky.feed.post/1"}, {}, {URI: "at://x/app.bsky.feed.post/2"}}
	posts, skipped := FlattenAll(views, "q", time.Now())
	if len(posts) != 2 || skipped != 1 {
		t.Errorf("posts = %d, skipped = %d", len(posts), skipped)
	}
}

func TestExtractHashtags(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"", nil},
		{"no tags here", nil},
		{"#one two #three", []string{"one", "three"}},
		{"mid#word # alone", nil},
		{"#gamechallenge\n#day5", []string{"gamechallenge", "day5"}},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, ExtractHashtags(tt.text)); diff != "" {
			t.Errorf("ExtractHashtags(%q) (-want +got):\n%s", tt.text, diff)
		}
	}
}

func TestWebURL(t *testing.T) {
	tests := []struct {
		uri     string
		want    string
		wantErr bool
	}{
		{"at://did:plc:abc/app.bsky.feed.post/3kq", "https://bsky.app/profile/did:plc:abc/post/3kq", false},
		{"https://bsky.app/profile/x/post/y", "", true},
		{"at://did:plc:abc/app.bsky.feed.post", "", true},
		{"at://", "", true},
	}
	for _, tt := range tests {
		got, err := WebURL(tt.uri)
		if (err != nil) != tt.wantErr {
			t.Errorf("WebURL(%q) err = %v, wantErr %v", tt.uri, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("WebURL(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestProfileFeedURL(t *testing.T) {
	if got := ProfileFeedURL("@me.bsky.social"); got != "https://bsky.app/profile/me.bsky.social/rss" {
		t.Errorf("ProfileFeedURL = %q", got)
	}
}
