package classify

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/abelbrown/gamepulse/internal/store"
)

// maskPhrases are challenge boilerplate removed before matching.
var maskPhrases = []string{
	"Choose 20 games that greatly influenced you.",
	"One game per day, for 20 days.",
	"No explanations, no reviews, no particular order.",
}

var rejectedWords = map[string]bool{
	"the": true, "and": true, "day": true, "game": true, "games": true, "playing": true,
	"today": true, "tomorrow": true, "yesterday": true, "now": true, "later": true,
	"first": true, "second": true, "third": true, "next": true, "last": true,
	"here": true, "there": true, "this": true, "that": true, "with": true,
	"best": true, "worst": true, "ever": true, "never": true, "always": true, "retro": true,
	"retrogames": true,
}

var dictNoiseRe = regexp.MustCompile(`[^\p{L}\p{N}_\s:,]`)

// DictionaryProvider matches post text against a list of known titles.
// It needs no network.
type DictionaryProvider struct {
	known map[string]string // cleaned title -> title as listed
}

// NewDictionaryProvider builds a provider from known titles.
func NewDictionaryProvider(titles []string) *DictionaryProvider {
	d := &DictionaryProvider{known: make(map[string]string, len(titles))}
	for _, t := range titles {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := dictKey(dictClean(t))
		if key == "" {
			continue
		}
		if _, dup := d.known[key]; !dup {
			d.known[key] = t
		}
	}
	return d
}

// LoadKnownGames reads one title per line. Blank lines and lines starting
// with '#' are ignored.
func LoadKnownGames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open known games: %w", err)
	}
	defer f.Close()
	return readKnownGames(f)
}

func readKnownGames(r io.Reader) ([]string, error) {
	var titles []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		titles = append(titles, line)
	}
	return titles, scanner.Err()
}

func (d *DictionaryProvider) Name() string {
	return "dictionary"
}

// Available is true when at least one title is known.
func (d *DictionaryProvider) Available(context.Context) bool {
	return len(d.known) > 0
}

// Len returns the number of known titles.
func (d *DictionaryProvider) Len() int {
	return len(d.known)
}

// Classify returns the first known title among the post's comma- or
// line-separated fragments.
func (d *DictionaryProvider) Classify(ctx context.Context, p store.Post) (Guess, Response, error) {
	if err := ctx.Err(); err != nil {
		return None, Response{}, err
	}

	matches := d.Match(p.Text)
	resp := Response{Model: "dictionary", Content: strings.Join(matches, ", ")}
	if len(matches) == 0 {
		return None, resp, nil
	}
	return Guess{Title: matches[0]}, resp, nil
}

// Match returns every known title found in text, in order of appearance.
// Text is split into lines and then on commas; runs of up to
// maxCommaParts adjacent fragments are rejoined so listed titles that
// contain a comma still match.
func (d *DictionaryProvider) Match(text string) []string {
	for _, phrase := range maskPhrases {
		text = strings.ReplaceAll(text, phrase, "")
	}
	text = dictClean(text)

	var out []string
	for _, line := range strings.Split(text, "\n") {
		frags := strings.Split(line, ",")
		for i := 0; i < len(frags); {
			n, title := d.matchRun(frags[i:])
			if n == 0 {
				i++
				continue
			}
			out = append(out, title)
			i += n
		}
	}
	return out
}

const maxCommaParts = 4

// matchRun finds the longest prefix of frags naming a known title and
// returns how many fragments it used.
func (d *DictionaryProvider) matchRun(frags []string) (int, string) {
	for n := min(maxCommaParts, len(frags)); n > 0; n-- {
		key := dictKey(strings.Join(frags[:n], ","))
		if key == "" || (n == 1 && rejectedWords[key]) {
			continue
		}
		if title, ok := d.known[key]; ok {
			return n, title
		}
	}
	return 0, ""
}

// dictClean keeps letters, digits, whitespace, ':' and ',' and lower-cases.
func dictClean(s string) string {
	return strings.TrimSpace(strings.ToLower(dictNoiseRe.ReplaceAllString(s, "")))
}

// dictKey drops commas and collapses whitespace, so "40,000" and "40000"
// compare equal.
func dictKey(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, ",", "")), " ")
}
