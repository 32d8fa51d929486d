package titles

import (
	"slices"
)

// Catalog is the read-only result of one aggregation pass.
type Catalog struct {
	buckets map[CanonicalKey]*Bucket
}

// Len returns the number of buckets.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.buckets)
}

// Get returns a copy of the bucket for key.
func (c *Catalog) Get(key CanonicalKey) (Bucket, bool) {
	if c == nil {
		return Bucket{}, false
	}
	b, ok := c.buckets[key]
	if !ok {
		return Bucket{}, false
	}
	return b.clone(), true
}

// Lookup returns the bucket a raw title falls into.
func (c *Catalog) Lookup(title string) (Bucket, bool) {
	key := Canonicalize(title)
	if key.IsNoTitle() {
		return Bucket{}, false
	}
	return c.Get(key)
}

// Keys returns every key in ascending order.
func (c *Catalog) Keys() []CanonicalKey {
	if c == nil {
		return nil
	}
	keys := make([]CanonicalKey, 0, len(c.buckets))
	for k := range c.buckets {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, CanonicalKey.Compare)
	return keys
}

// Ranked returns copies of all buckets ordered by mentions (desc), then
// engagement (desc), then key (asc).
func (c *Catalog) Ranked() []Bucket {
	if c == nil {
		return nil
	}
	out := make([]Bucket, 0, len(c.buckets))
	for _, b := range c.buckets {
		out = append(out, b.clone())
	}
	slices.SortFunc(out, compareRank)
	return out
}

// TotalMentions sums mentions over all buckets.
func (c *Catalog) TotalMentions() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, b := range c.buckets {
		n += b.Mentions
	}
	return n
}

func compareRank(a, b Bucket) int {
	if a.Mentions != b.Mentions {
		return b.Mentions - a.Mentions
	}
	if a.Engagement != b.Engagement {
		if a.Engagement > b.Engagement {
			return -1
		}
		return 1
	}
	return a.Key.Compare(b.Key)
}
