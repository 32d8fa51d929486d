// Package titles turns free-text game title guesses into a deduplicated,
// ranked catalog.
//
// Two guesses are the same title when their canonical keys match. The key
// ignores case, spacing, punctuation and character order, so "The Last of Us"
// and "last of us, the" land in one bucket.
package titles

import (
	"slices"
	"strings"
	"unicode"
)

// CanonicalKey is the equality key for a title. The zero value is NoTitle.
type CanonicalKey struct {
	s     string
	valid bool
}

// NoTitle is the key for "None", empty and whitespace-only titles.
// It never collides with a key built from a real title, including the empty
// key produced by an all-punctuation title.
var NoTitle = CanonicalKey{}

// IsNoTitle reports whether k is the NoTitle sentinel.
func (k CanonicalKey) IsNoTitle() bool { return !k.valid }

// String returns the sorted character string. NoTitle renders as "<none>".
func (k CanonicalKey) String() string {
	if !k.valid {
		return "<none>"
	}
	return k.s
}

// Compare orders keys by their character string. NoTitle sorts first.
func (k CanonicalKey) Compare(other CanonicalKey) int {
	if k.valid != other.valid {
		if !k.valid {
			return -1
		}
		return 1
	}
	return strings.Compare(k.s, other.s)
}

// KeyFromString rebuilds a key from its String form, e.g. when reading a
// stored catalog back.
func KeyFromString(s string) CanonicalKey {
	if s == NoTitle.String() {
		return NoTitle
	}
	return CanonicalKey{s: s, valid: true}
}

// IsNone reports whether raw is the classifier's "no title" sentinel.
func IsNone(raw string) bool {
	t := strings.ToLower(strings.TrimSpace(raw))
	return t == "" || t == "none"
}

// Canonicalize maps a raw title to its key: lower-cased, letters and numbers
// only, runes sorted by code point.
func Canonicalize(raw string) CanonicalKey {
	if IsNone(raw) {
		return NoTitle
	}

	runes := make([]rune, 0, len(raw))
	for _, r := range strings.ToLower(raw) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			runes = append(runes, r)
		}
	}
	slices.Sort(runes)

	return CanonicalKey{s: string(runes), valid: true}
}

// squash keeps letters and numbers in their original order.
func squash(raw string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(raw) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// wordSort lower-cases raw, splits it into letter/number words and joins the
// sorted words with single spaces.
func wordSort(raw string) string {
	words := strings.FieldsFunc(strings.ToLower(raw), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	slices.Sort(words)
	return strings.Join(words, " ")
}

// sameSurface reports whether two variants plausibly name the same title:
// either identical letters in identical order, or the same words reordered.
func sameSurface(a, b string) bool {
	return squash(a) == squash(b) || wordSort(a) == wordSort(b)
}
