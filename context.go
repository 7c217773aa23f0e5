package tagcache

import "context"

type tagsContextKey struct{}

// WithTags attaches tags to ctx, accumulating with any tags already present.
// Save and SaveDeferred merge context tags into the item's tag set — purely
// additive sugar over Item.SetTags/AddTag, so call sites that thread a
// context through several layers don't need to also thread tag slices.
func WithTags(ctx context.Context, tags ...string) context.Context {
	if len(tags) == 0 {
		return ctx
	}
	merged := append(append([]string{}, TagsFromContext(ctx)...), tags...)
	return context.WithValue(ctx, tagsContextKey{}, merged)
}

// TagsFromContext returns the tags accumulated on ctx via WithTags, or nil.
func TagsFromContext(ctx context.Context) []string {
	v, _ := ctx.Value(tagsContextKey{}).([]string)
	return v
}
