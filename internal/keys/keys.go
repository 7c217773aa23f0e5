// Package keys derives the namespaced, backend-facing identifiers the pool
// uses for items and tags from user-supplied keys and tag names.
//
// Namespace separation (spec invariant 4) is enforced here: item ids and tag
// ids are built with disjoint prefixes, so an item id can never collide
// with a tag id, and ids from distinct namespaces can never collide with
// each other.
package keys

import (
	"encoding/hex"
	"fmt"
	"net/url"

	"github.com/cespare/xxhash/v2"
)

// ItemID returns the namespaced storage identifier for a user key.
func ItemID(namespace, key string) string {
	return "item\x00" + namespace + "\x00" + key
}

// TagID returns the namespaced storage identifier for a tag name.
func TagID(namespace, tag string) string {
	return "tag\x00" + namespace + "\x00" + tag
}

// RedisItemKey returns the Redis key used to store an item's wire record.
func RedisItemKey(namespace, id string) string {
	return namespace + id
}

// RedisTagKey returns a <namespace>\0tags\0<tag> key for a tag's member set.
// The NUL separators guarantee disjointness from any user key. The Redis
// driver does not call it: it keys each tag set by the TagID it is given.
func RedisTagKey(namespace, tag string) string {
	return namespace + "\x00tags\x00" + tag
}

// Hash returns a fast, content-insensitive 64-bit hash of id, hex-encoded.
// Used for filesystem sharding and symlink naming; not cryptographic.
func Hash(id string) string {
	h := xxhash.Sum64String(id)
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(h >> (56 - 8*i))
	}
	return hex.EncodeToString(buf[:])
}

// Shard splits a hashed id into a two-level directory shard prefix and a
// tail, per the on-disk layout <root>/<aa>/<bb>/<hash_tail>.
func Shard(id string) (aa, bb, tail string) {
	h := Hash(id)
	for len(h) < 22 {
		h += h
	}
	return h[0:2], h[2:4], h[4:]
}

// LinkName returns the deterministic symlink name for an item id within a
// tag directory: the same hash family as file sharding, truncated to 20 chars.
func LinkName(id string) string {
	h := Hash(id)
	for len(h) < 20 {
		h += h
	}
	return h[:20]
}

// URLEncodeID percent-encodes an id for embedding in the item file header.
func URLEncodeID(id string) string { return url.QueryEscape(id) }

// URLDecodeID reverses URLEncodeID.
func URLDecodeID(s string) (string, error) {
	v, err := url.QueryUnescape(s)
	if err != nil {
		return "", fmt.Errorf("keys: decode id: %w", err)
	}
	return v, nil
}
