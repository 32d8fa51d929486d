package classify

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse is returned when a reply is not "title;year;developer".
var ErrMalformedResponse = errors.New("malformed classifier response")

// Guess is the parsed answer for one post.
type Guess struct {
	Title     string
	Year      string
	Developer string
}

// None is the guess for posts that name no game.
var None = Guess{Title: "None"}

// IsNone reports whether the guess names no game.
func (g Guess) IsNone() bool {
	t := strings.ToLower(strings.TrimSpace(g.Title))
	return t == "" || t == "none"
}

// ParseGuess extracts the first "title;year;developer" line of a reply.
// Surrounding quotes and backticks are ignored. A reply with no line that
// splits into exactly three fields is ErrMalformedResponse.
func ParseGuess(reply string) (Guess, error) {
	for _, line := range strings.Split(reply, "\n") {
		line = strings.Trim(strings.TrimSpace(line), "`'\"")
		line = strings.TrimSpace(line)
		if line == "" || strings.Count(line, ";") != 2 {
			continue
		}

		parts := strings.Split(line, ";")
		g := Guess{
			Title:     strings.TrimSpace(parts[0]),
			Year:      strings.TrimSpace(parts[1]),
			Developer: strings.TrimSpace(parts[2]),
		}
		if g.IsNone() {
			return None, nil
		}
		return g, nil
	}
	return None, fmt.Errorf("%w: %q", ErrMalformedResponse, truncate(reply, 120))
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}
