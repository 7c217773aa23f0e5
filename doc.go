// Package tagcache implements a tag-aware cache pool: a key/value caching
// layer in which each stored item may carry a set of symbolic tags, and in
// which an application can invalidate every item bearing a given tag in a
// single operation without scanning the whole cache.
//
// Components:
//   - backend.Driver: the storage back-end (backend/filesystem, backend/redis).
//   - codec.Codec[V]: (de)serializes V <-> []byte.
//   - accel.Accelerator: an optional L1 in-process cache in front of Driver.
//
// Lifecycle: GetItem reads through the accelerator (if any) then the
// backend; GetItems reads the backend only and fills the accelerator from
// its hits; Save/SaveDeferred buffer items; Commit drains the buffer,
// computing a tag-add/tag-remove delta from each item's prevTags; InvalidateTags
// sweeps every item related to a tag.
//
// Tag diff pattern:
//
//	item, _ := pool.GetItem(ctx, key)      // prevTags = tags observed on fetch
//	item.SetTags("a", "b")
//	_ = pool.Save(ctx, item)                // adds/removes computed from the diff
package tagcache
