package tagcache

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/silverpine/tagcache/accel"
	"github.com/silverpine/tagcache/backend"
	"github.com/silverpine/tagcache/codec"
)

// Pool is the tag-aware cache pool's public facade. TagCache is an alias
// for callers who prefer that name at the call site (tagcache.Pool[User]
// or tagcache.TagCache[User] name the same type).
type Pool[V any] interface {
	// GetItem fetches one item by key. On miss, or on any backend/codec
	// failure, it returns a miss shell (IsHit() == false) and a nil error —
	// read paths never raise. If the deferred buffer is non-empty, GetItem
	// commits it first so a writer observes its own writes.
	GetItem(ctx context.Context, key string) (*Item[V], error)

	// GetItems pairs every requested key with an item. Keys that hit the
	// backend are yielded first (in arrival order); keys that miss are
	// yielded afterward as miss shells, in input order.
	GetItems(ctx context.Context, keys []string) iter.Seq2[string, *Item[V]]

	// HasItem reports whether key currently resolves to a hit.
	HasItem(ctx context.Context, key string) (bool, error)

	// Save buffers item under its key and immediately commits.
	Save(ctx context.Context, item *Item[V]) error

	// SaveDeferred buffers item under its key without committing.
	SaveDeferred(ctx context.Context, item *Item[V])

	// Commit drains the deferred buffer to the backend. See the commit
	// protocol in commit.go. Returns nil on full success, *CommitError if
	// one or more items failed after retry, or a wrapped *BackendFatalError
	// if the backend reported a non-retryable condition.
	Commit(ctx context.Context) error

	// DeleteItem deletes a single key. Equivalent to DeleteItems([]string{key}).
	DeleteItem(ctx context.Context, key string) (bool, error)

	// DeleteItems deletes keys and their tag relations. Tolerant of unknown
	// keys. Returns the AND of every per-item deletion outcome.
	DeleteItems(ctx context.Context, keys []string) (bool, error)

	// InvalidateTags evicts every item currently related to any of tags.
	// An empty tags list is a no-op returning false, nil.
	InvalidateTags(ctx context.Context, tags ...string) (bool, error)

	// Close flushes any pending commit (best-effort) and releases backend
	// and accelerator resources.
	Close(ctx context.Context) error
}

// TagCache is an alias of Pool, for callers who prefer to spell the type
// by what it does rather than by its role in the package.
type TagCache[V any] = Pool[V]

// Options configures a Pool. Backend and Codec are required; an empty
// Namespace is allowed, and everything else is defaulted via coalesce.
type Options[V any] struct {
	// Namespace isolates this pool's ids from any other pool sharing the
	// same backend. Subject to the same charset restriction as keys and tags.
	Namespace string

	// Backend is the storage driver: backend/filesystem or backend/redis.
	Backend backend.Driver

	// Codec marshals values to and from bytes.
	Codec codec.Codec[V]

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks

	// DefaultLifetime is used for items whose ExpiresAt is unset. 0 => 10 minutes.
	DefaultLifetime time.Duration

	// L1 is an optional in-process accelerator sitting in front of Backend.
	// nil (the default) disables it.
	L1 accel.Accelerator
}

func New[V any](opts Options[V]) (Pool[V], error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("tagcache: backend is required")
	}
	if opts.Codec == nil {
		return nil, fmt.Errorf("tagcache: codec is required")
	}
	if err := validateNamespace(opts.Namespace); err != nil {
		return nil, err
	}

	p := &pool[V]{
		ns:              opts.Namespace,
		backend:         opts.Backend,
		codec:           opts.Codec,
		log:             coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:           coalesce[Hooks](opts.Hooks, NopHooks{}),
		defaultLifetime: coalesce[time.Duration](opts.DefaultLifetime, 10*time.Minute),
		l1:              opts.L1,
		buffer:          make(map[string]*Item[V]),
	}
	return p, nil
}
