// Package report turns classified posts and catalogs into CSV files and
// terminal tables.
package report

import (
	"strings"

	"github.com/abelbrown/gamepulse/internal/bsky"
	"github.com/abelbrown/gamepulse/internal/store"
	"github.com/abelbrown/gamepulse/internal/titles"
)

// URLFallback is written when an at:// URI cannot be converted.
const URLFallback = "URL conversion failed"

// uriSep joins URI and URL lists in one cell.
const uriSep = " - "

// Row is one classified post with its bucket totals.
type Row struct {
	GameTitle   string
	ReleaseYear string
	Developer   string
	TotalLikes  int // bucket engagement
	Mentions    int // bucket mentions
	URI         string
	WebURL      string
	AllURIs     string
	AllURLs     string
}

// RowHeader is the column order of the matched and unmatched files.
var RowHeader = []string{
	"game_title", "release_year", "developer",
	"total_likes", "mentions", "uri", "web_url",
	"all_uris", "all_urls",
}

// Matched reports whether the row names a game.
func (r Row) Matched() bool {
	return !titles.Canonicalize(r.GameTitle).IsNoTitle()
}

// Rows builds one row per classified post. Totals come from the post's
// bucket in cat; posts without a title get zero totals.
func Rows(classified []store.ClassifiedPost, cat *titles.Catalog) []Row {
	rows := make([]Row, 0, len(classified))
	for _, cp := range classified {
		r := Row{
			GameTitle:   cp.Title,
			ReleaseYear: cp.ReleaseYear,
			Developer:   cp.Developer,
			URI:         cp.URI,
			WebURL:      webURL(cp.URI),
		}
		if b, ok := cat.Lookup(cp.Title); ok {
			r.TotalLikes = b.Engagement
			r.Mentions = b.Mentions
			r.AllURIs = strings.Join(b.ItemIDs, uriSep)
			r.AllURLs = joinURLs(b.ItemIDs)
		}
		rows = append(rows, r)
	}
	return rows
}

// Split partitions rows into matched and unmatched, keeping order.
func Split(rows []Row) (matched, unmatched []Row) {
	for _, r := range rows {
		if r.Matched() {
			matched = append(matched, r)
		} else {
			unmatched = append(unmatched, r)
		}
	}
	return matched, unmatched
}

func webURL(uri string) string {
	u, err := bsky.WebURL(uri)
	if err != nil {
		return URLFallback
	}
	return u
}

func joinURLs(uris []string) string {
	urls := make([]string, len(uris))
	for i, u := range uris {
		urls[i] = webURL(u)
	}
	return strings.Join(urls, uriSep)
}
