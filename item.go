package tagcache

import "time"

// Item is one key/value pair tracked by the pool, annotated with the tag
// set currently attached to it and the tag set last observed on a fetch
// from the backend. prevTags is what lets Commit compute a tag diff
// without a second round-trip to storage.
type Item[V any] struct {
	key      string
	value    V
	tags     map[string]struct{}
	prevTags map[string]struct{}
	expiry   *time.Time
	hit      bool
}

// newMissItem constructs the miss shell GetItem returns when the backend
// has no record for key: prevTags is empty, so a subsequent save treats
// every tag on the item as an addition.
func newMissItem[V any](key string) Item[V] {
	return Item[V]{key: key, tags: map[string]struct{}{}, prevTags: map[string]struct{}{}}
}

// Key returns the user-supplied identifier the item was fetched or created with.
func (it *Item[V]) Key() string { return it.key }

// Value returns the item's current value.
func (it *Item[V]) Value() V { return it.value }

// SetValue attaches a value to the item, to be written on the next commit.
func (it *Item[V]) SetValue(v V) { it.value = v }

// Tags returns the tag set currently attached to the item, in no particular order.
func (it *Item[V]) Tags() []string {
	out := make([]string, 0, len(it.tags))
	for t := range it.tags {
		out = append(out, t)
	}
	return out
}

// SetTags replaces the item's tag set. Duplicates are ignored.
func (it *Item[V]) SetTags(tags ...string) {
	it.tags = make(map[string]struct{}, len(tags))
	for _, t := range tags {
		it.tags[t] = struct{}{}
	}
}

// AddTag attaches a single tag to the item's current tag set.
func (it *Item[V]) AddTag(tag string) {
	if it.tags == nil {
		it.tags = map[string]struct{}{}
	}
	it.tags[tag] = struct{}{}
}

// ExpiresAt returns the absolute expiry time, and whether one was set.
// A false second return means "use the pool's defaultLifetime".
func (it *Item[V]) ExpiresAt() (time.Time, bool) {
	if it.expiry == nil {
		return time.Time{}, false
	}
	return *it.expiry, true
}

// ExpiresAfter sets an absolute expiry ttl from now.
func (it *Item[V]) ExpiresAfter(ttl time.Duration) {
	t := time.Now().Add(ttl)
	it.expiry = &t
}

// ExpiresAtTime sets an absolute expiry time.
func (it *Item[V]) ExpiresAtTime(t time.Time) { it.expiry = &t }

// IsHit reports whether the item was populated from a successful backend fetch.
func (it *Item[V]) IsHit() bool { return it.hit }

// prevTagSet returns the tag set observed on last fetch, for diffing.
func (it *Item[V]) prevTagSet() map[string]struct{} {
	if it.prevTags == nil {
		return map[string]struct{}{}
	}
	return it.prevTags
}
