package fetch

import (
	"strings"

	"github.com/abelbrown/gamepulse/internal/bsky"
)

// Source is one profile feed.
type Source struct {
	Handle string
	URL    string
}

// Query is the provenance label stored with posts from this source.
func (s Source) Query() string {
	return "feed:" + s.Handle
}

// SourceForHandle builds the profile RSS source for a handle.
func SourceForHandle(handle string) Source {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	return Source{Handle: handle, URL: bsky.ProfileFeedURL(handle)}
}

// SourcesForHandles builds sources for handles, skipping blanks and
// duplicates.
func SourcesForHandles(handles []string) []Source {
	seen := make(map[string]bool)
	var out []Source
	for _, h := range handles {
		src := SourceForHandle(h)
		if src.Handle == "" || seen[strings.ToLower(src.Handle)] {
			continue
		}
		seen[strings.ToLower(src.Handle)] = true
		out = append(out, src)
	}
	return out
}
