package tagcache

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/silverpine/tagcache/accel"
	"github.com/silverpine/tagcache/backend"
	"github.com/silverpine/tagcache/codec"
	"github.com/silverpine/tagcache/internal/keys"
	"github.com/silverpine/tagcache/internal/wire"
)

// accelTTL is the L1 accelerator entry lifetime. The accelerator has no
// expiry semantics tied to the backend record's own TTL, so a conservative
// fixed window bounds how long a stale L1 entry can survive an invalidation
// the pool failed to observe (process crash mid-flush, for instance).
const accelTTL = 5 * time.Minute

type pool[V any] struct {
	ns              string
	backend         backend.Driver
	codec           codec.Codec[V]
	log             Logger
	hooks           Hooks
	defaultLifetime time.Duration
	l1              accel.Accelerator

	mu     sync.Mutex
	buffer map[string]*Item[V]
}

var _ Pool[any] = (*pool[any])(nil)

func (p *pool[V]) storageID(key string) string { return keys.ItemID(p.ns, key) }
func (p *pool[V]) tagID(tag string) string     { return keys.TagID(p.ns, tag) }

// hasPendingWrites reports whether the deferred buffer holds anything.
func (p *pool[V]) hasPendingWrites() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer) > 0
}

// drainIfPending commits the buffer if non-empty, so a reader observes its
// own writer's writes. Errors are logged, not propagated: GetItem/GetItems
// never raise out of a read path even when the preceding commit failed.
func (p *pool[V]) drainIfPending(ctx context.Context) {
	if !p.hasPendingWrites() {
		return
	}
	if err := p.Commit(ctx); err != nil {
		p.log.Warn("commit before read failed", Fields{"err": err})
	}
}

func (p *pool[V]) GetItem(ctx context.Context, key string) (*Item[V], error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	p.drainIfPending(ctx)

	id := p.storageID(key)
	item := newMissItem[V](key)

	if raw, ok := p.accelGet(ctx, id); ok {
		if v, tags, ok := p.decodeRaw(id, raw); ok {
			item.value = v
			item.tags = tags
			item.prevTags = cloneTagSet(tags)
			item.hit = true
			return &item, nil
		}
		// Corrupt accelerator entry: drop it and fall through to the backend.
		_ = p.l1.Del(ctx, id)
	}

	for res := range p.backend.Fetch(ctx, []string{id}) {
		if res.Err != nil || res.Bytes == nil {
			continue
		}
		v, tags, ok := p.decodeRaw(id, res.Bytes)
		if !ok {
			_, _ = p.backend.Delete(ctx, []string{id})
			continue
		}
		item.value = v
		item.tags = tags
		item.prevTags = cloneTagSet(tags)
		item.hit = true
		p.accelSet(ctx, id, res.Bytes)
	}

	return &item, nil
}

// decodeRaw unwraps a stored wire record and decodes its payload, reporting
// any corruption via Hooks. It never mutates storage itself; callers decide
// whether and where to self-heal.
func (p *pool[V]) decodeRaw(id string, raw []byte) (V, map[string]struct{}, bool) {
	var zero V
	tags, payload, err := wire.DecodeRecord(raw)
	if err != nil {
		p.hooks.SelfHeal(id, "corrupt")
		return zero, nil, false
	}
	v, err := p.codec.Decode(payload)
	if err != nil {
		p.hooks.SelfHeal(id, "codec_decode")
		return zero, nil, false
	}
	set := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		set[t] = struct{}{}
	}
	return v, set, true
}

func cloneTagSet(in map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for t := range in {
		out[t] = struct{}{}
	}
	return out
}

func (p *pool[V]) GetItems(ctx context.Context, inputKeys []string) iter.Seq2[string, *Item[V]] {
	return func(yield func(string, *Item[V]) bool) {
		if len(inputKeys) == 0 {
			return
		}
		p.drainIfPending(ctx)

		idToKey := make(map[string]string, len(inputKeys))
		ids := make([]string, 0, len(inputKeys))
		for _, k := range inputKeys {
			if err := validateKey(k); err != nil {
				continue // invalid keys never hit; yielded as miss shells below
			}
			id := p.storageID(k)
			idToKey[id] = k
			ids = append(ids, id)
		}

		found := make(map[string]bool, len(inputKeys))
		for res := range p.backend.Fetch(ctx, ids) {
			if res.Err != nil || res.Bytes == nil {
				continue
			}
			key := idToKey[res.ID]
			v, tags, ok := p.decodeRaw(res.ID, res.Bytes)
			if !ok {
				_, _ = p.backend.Delete(ctx, []string{res.ID})
				continue
			}
			item := Item[V]{key: key, value: v, tags: tags, prevTags: cloneTagSet(tags), hit: true}
			p.accelSet(ctx, res.ID, res.Bytes)
			found[key] = true
			if !yield(key, &item) {
				return
			}
		}

		for _, k := range inputKeys {
			if found[k] {
				continue
			}
			item := newMissItem[V](k)
			if !yield(k, &item) {
				return
			}
		}
	}
}

func (p *pool[V]) HasItem(ctx context.Context, key string) (bool, error) {
	item, err := p.GetItem(ctx, key)
	if err != nil {
		return false, err
	}
	return item.IsHit(), nil
}

// SaveDeferred buffers item for the next Commit. SaveDeferred has no error
// return, so a key/tag that fails charset validation is logged and dropped
// rather than buffered; Save, which does return an error, validates eagerly
// instead so the caller learns about it immediately.
func (p *pool[V]) SaveDeferred(ctx context.Context, item *Item[V]) {
	mergeContextTags(ctx, item)
	if err := validateItem(item); err != nil {
		p.log.Error("save rejected", Fields{"key": item.key, "err": err})
		return
	}
	p.mu.Lock()
	p.buffer[item.key] = item
	p.mu.Unlock()
}

func (p *pool[V]) Save(ctx context.Context, item *Item[V]) error {
	mergeContextTags(ctx, item)
	if err := validateItem(item); err != nil {
		return err
	}
	p.SaveDeferred(ctx, item)
	return p.Commit(ctx)
}

func mergeContextTags[V any](ctx context.Context, item *Item[V]) {
	for _, t := range TagsFromContext(ctx) {
		item.AddTag(t)
	}
}

func (p *pool[V]) accelGet(ctx context.Context, id string) ([]byte, bool) {
	if p.l1 == nil {
		return nil, false
	}
	b, ok, err := p.l1.Get(ctx, id)
	if err != nil || !ok {
		return nil, false
	}
	return b, true
}

func (p *pool[V]) accelSet(ctx context.Context, id string, raw []byte) {
	if p.l1 == nil {
		return
	}
	_, _ = p.l1.Set(ctx, id, raw, accelTTL)
}

func (p *pool[V]) Close(ctx context.Context) error {
	if p.hasPendingWrites() {
		_ = p.Commit(ctx) // best-effort flush on teardown; errors swallowed
	}
	err := p.backend.Close(ctx)
	if p.l1 != nil {
		_ = p.l1.Close(ctx)
	}
	return err
}
