// Package fetch reads Bluesky profile RSS feeds.
//
// Profile feeds carry no engagement counts, so posts fetched here have zero
// likes until a search refreshes them.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/abelbrown/gamepulse/internal/bsky"
	"github.com/abelbrown/gamepulse/internal/store"
)

// Fetcher retrieves posts from profile feeds.
type Fetcher struct {
	client *http.Client
}

// NewFetcher creates a Fetcher with the given HTTP client timeout.
func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch retrieves posts from a source. Does NOT store them.
func (f *Fetcher) Fetch(ctx context.Context, src Source) ([]store.Post, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "gamepulse/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	parser := gofeed.NewParser()
	feed, err := parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	now := time.Now().UTC()
	posts := make([]store.Post, 0, len(feed.Items))
	for _, item := range feed.Items {
		posts = append(posts, convertFeedItem(item, src, now))
	}
	return posts, nil
}

// convertFeedItem converts a gofeed.Item to a store.Post.
func convertFeedItem(item *gofeed.Item, src Source, fetchTime time.Time) store.Post {
	created := fetchTime
	if item.PublishedParsed != nil {
		created = item.PublishedParsed.UTC()
	} else if item.UpdatedParsed != nil {
		created = item.UpdatedParsed.UTC()
	}

	text := item.Description
	if text == "" {
		text = item.Content
	}
	if text == "" {
		text = item.Title
	}

	return store.Post{
		URI:       postURI(item),
		Handle:    src.Handle,
		Text:      text,
		Tags:      bsky.ExtractHashtags(text),
		CreatedAt: created,
		Query:     src.Query(),
		Fetched:   fetchTime,
	}
}

// postURI prefers an at:// GUID, then the post link, then a content hash.
func postURI(item *gofeed.Item) string {
	if strings.HasPrefix(item.GUID, "at://") {
		return item.GUID
	}
	if item.Link != "" {
		return item.Link
	}
	if item.GUID != "" {
		return item.GUID
	}

	key := item.Description
	if item.PublishedParsed != nil {
		key += item.PublishedParsed.String()
	}
	return "rss:" + hashString(key)
}

// hashString creates a short hash of a string for use as an ID.
func hashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:8]) // 16 character hex string
}
