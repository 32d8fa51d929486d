package titles

import (
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"
)

// ErrInvalidMention is returned when a mention breaks its contract:
// negative engagement or an empty item id.
var ErrInvalidMention = errors.New("invalid mention")

// RawMention is one classifier guess for one post.
type RawMention struct {
	Title        string   // "None" or empty when no title was found
	Engagement   int      // like count of the post
	ItemID       string   // post URI, unique per mention
	Tags         []string // optional: hashtags on the post
	Descriptions []string // optional: image alt text
}

// Bucket holds the statistics for every mention sharing one key.
type Bucket struct {
	Key            CanonicalKey
	Representative string // first surface form seen
	Mentions       int
	Engagement     int
	ItemIDs        []string // processing order

	variants map[string]struct{}
}

// Variants returns the distinct surface forms. They are a set; the sort is
// for stable display and says nothing about the order they were seen in.
func (b Bucket) Variants() []string {
	return slices.Sorted(maps.Keys(b.variants))
}

// HasVariant reports whether title was seen verbatim in this bucket.
func (b Bucket) HasVariant(title string) bool {
	_, ok := b.variants[title]
	return ok
}

// Suspect reports whether the bucket holds a variant that shares only its
// characters with the representative, not its spelling or its words. Such
// buckets are probable anagram collisions ("Dragon" and "Gordan").
func (b Bucket) Suspect() bool {
	for v := range b.variants {
		if !sameSurface(b.Representative, v) {
			return true
		}
	}
	return false
}

func (b Bucket) clone() Bucket {
	c := b
	c.ItemIDs = slices.Clone(b.ItemIDs)
	c.variants = maps.Clone(b.variants)
	return c
}

// Aggregator builds one Catalog. It is owned by a single goroutine.
type Aggregator struct {
	buckets map[CanonicalKey]*Bucket
	seen    int
	err     error
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{buckets: make(map[CanonicalKey]*Bucket)}
}

// Add folds one mention into the catalog under construction.
// After the first error the Aggregator is poisoned: every later Add and
// Catalog call returns that error.
func (a *Aggregator) Add(m RawMention) error {
	if a.err != nil {
		return a.err
	}
	idx := a.seen
	a.seen++

	if err := validate(m); err != nil {
		a.err = fmt.Errorf("mention %d: %w", idx, err)
		a.buckets = nil
		return a.err
	}

	key := Canonicalize(m.Title)
	if key.IsNoTitle() {
		return nil
	}

	b, ok := a.buckets[key]
	if !ok {
		a.buckets[key] = &Bucket{
			Key:            key,
			Representative: m.Title,
			Mentions:       1,
			Engagement:     m.Engagement,
			ItemIDs:        []string{m.ItemID},
			variants:       map[string]struct{}{m.Title: {}},
		}
		return nil
	}

	b.Mentions++
	b.Engagement += m.Engagement
	b.variants[m.Title] = struct{}{}
	b.ItemIDs = append(b.ItemIDs, m.ItemID)
	return nil
}

// Catalog finalizes the pass. The Aggregator must not be used afterwards.
func (a *Aggregator) Catalog() (*Catalog, error) {
	if a.err != nil {
		return nil, a.err
	}
	c := &Catalog{buckets: a.buckets}
	a.buckets = nil
	return c, nil
}

func validate(m RawMention) error {
	if m.ItemID == "" {
		return fmt.Errorf("%w: empty item id", ErrInvalidMention)
	}
	if m.Engagement < 0 {
		return fmt.Errorf("%w: item %s: negative engagement %d", ErrInvalidMention, m.ItemID, m.Engagement)
	}
	return nil
}

// Aggregate builds a Catalog from mentions in order. On an invalid mention
// it returns a nil Catalog and an error wrapping ErrInvalidMention.
func Aggregate(mentions []RawMention) (*Catalog, error) {
	return AggregateSeq(slices.Values(mentions))
}

// AggregateSeq is Aggregate over a single-use sequence. The sequence is
// consumed to exhaustion unless a mention is invalid.
func AggregateSeq(seq iter.Seq[RawMention]) (*Catalog, error) {
	agg := NewAggregator()
	for m := range seq {
		if err := agg.Add(m); err != nil {
			return nil, err
		}
	}
	return agg.Catalog()
}
