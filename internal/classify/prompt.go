// Package classify asks a model which video game a post is about.
package classify

import (
	"regexp"
	"strings"

	"github.com/abelbrown/gamepulse/internal/store"
)

// noiseRe matches URLs, @mentions, #hashtags and any remaining punctuation.
var noiseRe = regexp.MustCompile(`http\S+|[@#][\p{L}\p{N}_]+|[^\p{L}\p{N}_\s]`)

// CleanText lower-cases text and strips URLs, mentions, hashtags and
// punctuation. Letters and digits in any script are kept.
func CleanText(text string) string {
	return noiseRe.ReplaceAllString(strings.ToLower(text), "")
}

const instructions = "Task: Extract video game information from this user post and metadata.\n" +
	"Return format must be exactly:\n" +
	"'game title;year;developer'\n" +
	"Rules:\n" +
	"- If no game found, return 'None;;'\n" +
	"- If game found but year unknown, return 'game title;;developer'\n" +
	"- If game found but developer unknown, return 'game title;year;'\n" +
	"- If only game found, return 'game title;;'\n" +
	"No other format accepted. No extra text or explanations.\n"

// PingPrompt is sent by connection checks.
const PingPrompt = "Reply only with 'OK' nothing else"

// Sample renders the post data block the model sees.
func Sample(p store.Post) string {
	images := "No images"
	if len(p.ImageAlts) > 0 {
		images = strings.Join(p.ImageAlts, ", ")
	}
	return "Text: " + CleanText(p.Text) + "\n" +
		"Tags: " + strings.Join(p.Tags, ", ") + "\n" +
		"Image descriptions: " + images
}

// BuildPrompt returns the full extraction prompt for a post.
func BuildPrompt(p store.Post) string {
	return instructions + "Data sample: " + Sample(p)
}
