// Package accel defines the optional L1 in-process accelerator the pool
// sits in front of either tag backend.
//
// An accelerator is a byte-for-byte transparent store of already wire-framed
// records, keyed by namespaced item id. It has no tag index: InvalidateTags
// cannot selectively evict from it, so the pool flushes it wholesale on
// every successful InvalidateTags to preserve the tag-durability invariant.
package accel

import (
	"context"
	"time"
)

// Accelerator is a minimal byte store with TTLs, implemented by an
// in-process cache library. Must be safe for concurrent use and must be
// byte-for-byte transparent: Get must return exactly the []byte previously
// passed to Set for the same key.
type Accelerator interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL. Returns ok=false when the store
	// rejected the write under memory pressure.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) (ok bool, err error)

	// Del removes a key (best-effort).
	Del(ctx context.Context, key string) error

	// Flush drops every entry. Called on every successful InvalidateTags,
	// since an accelerator has no tag index to evict selectively.
	Flush(ctx context.Context) error

	// Close releases resources.
	Close(ctx context.Context) error
}
