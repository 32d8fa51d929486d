package bsky

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/gamepulse/internal/store"
)

// PostView is the subset of app.bsky.feed.defs#postView gamepulse reads.
type PostView struct {
	URI         string    `json:"uri"`
	CID         string    `json:"cid"`
	Author      Author    `json:"author"`
	Record      Record    `json:"record"`
	Embed       *Embed    `json:"embed,omitempty"`
	LikeCount   int       `json:"likeCount"`
	RepostCount int       `json:"repostCount"`
	ReplyCount  int       `json:"replyCount"`
	IndexedAt   time.Time `json:"indexedAt"`
}

// Author identifies a post's account.
type Author struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
}

// Record is the app.bsky.feed.post record body.
type Record struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	Facets    []Facet   `json:"facets,omitempty"`
}

// Facet annotates a byte range of the text.
type Facet struct {
	Features []Feature `json:"features"`
}

// Feature is one facet feature; Tag is set for #tag features.
type Feature struct {
	Type string `json:"$type"`
	Tag  string `json:"tag,omitempty"`
}

// Embed carries images directly or under media for record-with-media.
type Embed struct {
	Images []Image `json:"images,omitempty"`
	Media  *struct {
		Images []Image `json:"images,omitempty"`
	} `json:"media,omitempty"`
}

// Image is an embedded image view.
type Image struct {
	Alt string `json:"alt"`
}

const tagFeature = "app.bsky.richtext.facet#tag"

// Flatten converts a post view into the stored post shape. query records
// where the post came from.
func Flatten(pv PostView, query string, fetched time.Time) (store.Post, error) {
	if pv.URI == "" {
		return store.Post{}, fmt.Errorf("flatten: post has no uri")
	}

	created := pv.Record.CreatedAt
	if created.IsZero() {
		created = pv.IndexedAt
	}

	tags := facetTags(pv.Record.Facets)
	if len(tags) == 0 {
		tags = ExtractHashtags(pv.Record.Text)
	}

	return store.Post{
		URI:         pv.URI,
		CID:         pv.CID,
		Handle:      pv.Author.Handle,
		Text:        pv.Record.Text,
		Tags:        tags,
		ImageAlts:   imageAlts(pv.Embed),
		LikeCount:   pv.LikeCount,
		RepostCount: pv.RepostCount,
		ReplyCount:  pv.ReplyCount,
		CreatedAt:   created.UTC(),
		IndexedAt:   pv.IndexedAt.UTC(),
		Query:       query,
		Fetched:     fetched.UTC(),
	}, nil
}

// FlattenAll flattens views, skipping those that cannot be flattened.
// It returns the flattened posts and the number skipped.
func FlattenAll(views []PostView, query string, fetched time.Time) ([]store.Post, int) {
	posts := make([]store.Post, 0, len(views))
	skipped := 0
	for _, pv := range views {
		p, err := Flatten(pv, query, fetched)
		if err != nil {
			skipped++
			continue
		}
		posts = append(posts, p)
	}
	return posts, skipped
}

func facetTags(facets []Facet) []string {
	var tags []string
	for _, f := range facets {
		for _, feat := range f.Features {
			if feat.Type == tagFeature && feat.Tag != "" {
				tags = append(tags, feat.Tag)
			}
		}
	}
	return tags
}

func imageAlts(e *Embed) []string {
	if e == nil {
		return nil
	}
	images := e.Images
	if len(images) == 0 && e.Media != nil {
		images = e.Media.Images
	}

	var alts []string
	for _, img := range images {
		if alt := strings.TrimSpace(img.Alt); alt != "" {
			alts = append(alts, alt)
		}
	}
	return alts
}

// ExtractHashtags returns whitespace-separated words starting with '#',
// without the '#'. Bare '#' words are ignored.
func ExtractHashtags(text string) []string {
	var tags []string
	for _, word := range strings.Fields(text) {
		if strings.HasPrefix(word, "#") && len(word) > 1 {
			tags = append(tags, word[1:])
		}
	}
	return tags
}
