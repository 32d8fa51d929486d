package bsky

import (
	"fmt"
	"strings"
)

// WebURL converts at://<did>/<collection>/<rkey> to the bsky.app post URL.
func WebURL(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, "at://")
	if !ok {
		return "", fmt.Errorf("not an at:// uri: %q", uri)
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 3 || parts[0] == "" || parts[2] == "" {
		return "", fmt.Errorf("malformed at:// uri: %q", uri)
	}
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", parts[0], parts[2]), nil
}

// ProfileFeedURL returns the public RSS feed for a handle.
func ProfileFeedURL(handle string) string {
	return "https://bsky.app/profile/" + strings.TrimPrefix(handle, "@") + "/rss"
}
