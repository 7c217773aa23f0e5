package tagcache

import (
	"context"
	"errors"
	"time"

	"github.com/silverpine/tagcache/backend"
	"github.com/silverpine/tagcache/internal/wire"
)

// preparedItem is the per-item result of evaluating a buffered Item against
// the commit protocol: its storage id, wire-framed record, tag delta, and
// effective TTL bin (or expired=true if it should be deleted instead).
type preparedItem struct {
	key     string
	id      string
	record  backend.Record
	add     map[string][]string // tagID -> []id (always this one id)
	remove  map[string][]string
	ttl     time.Duration
	expired bool
}

// Commit drains the deferred buffer: snapshot-and-clear, bin by effective
// TTL, bulk-delete expired ids, bulk-save per bin with per-item retry on an
// opaque bulk failure. See SPEC_FULL.md §4.1 for the full protocol this
// mirrors.
func (p *pool[V]) Commit(ctx context.Context) error {
	p.mu.Lock()
	snapshot := p.buffer
	p.buffer = make(map[string]*Item[V])
	p.mu.Unlock()

	if len(snapshot) == 0 {
		return nil
	}

	var expiredIDs []string
	var encodeFailed []string
	bins := make(map[time.Duration][]preparedItem)

	for key, item := range snapshot {
		prepared, err := p.prepareCommit(key, item)
		if err != nil {
			p.log.Error("encode failed, dropping item", Fields{"key": key, "err": err})
			encodeFailed = append(encodeFailed, key)
			continue
		}
		if prepared.expired {
			expiredIDs = append(expiredIDs, prepared.id)
			continue
		}
		bins[prepared.ttl] = append(bins[prepared.ttl], prepared)
	}

	if len(expiredIDs) > 0 {
		if _, err := p.backend.Delete(ctx, expiredIDs); err != nil {
			p.log.Warn("bulk delete of expired items failed", Fields{"err": err})
		}
	}

	failedKeys := encodeFailed
	var fatal *BackendFatalError
	idToKey := make(map[string]string, len(snapshot))
	for key, item := range snapshot {
		idToKey[p.storageID(key)] = item.key
	}

	for ttl, items := range bins {
		failed, binFatal := p.commitBin(ctx, ttl, items)
		for _, id := range failed {
			failedKeys = append(failedKeys, idToKey[id])
		}
		if binFatal != nil && fatal == nil {
			fatal = binFatal
		}
	}

	if fatal != nil {
		return fatal
	}
	if len(failedKeys) == 0 {
		return nil
	}
	return &CommitError{Failed: failedKeys}
}

func (p *pool[V]) prepareCommit(key string, item *Item[V]) (preparedItem, error) {
	id := p.storageID(key)

	payload, err := p.codec.Encode(item.value)
	if err != nil {
		return preparedItem{}, err
	}

	tagList := item.Tags()
	raw := wire.EncodeRecord(tagList, payload)

	add, remove := tagDiff(item.prevTagSet(), item.tags)
	addData := make(map[string][]string, len(add))
	for t := range add {
		addData[p.tagID(t)] = []string{id}
	}
	removeData := make(map[string][]string, len(remove))
	for t := range remove {
		removeData[p.tagID(t)] = []string{id}
	}

	now := time.Now()
	var ttl time.Duration
	if expiry, ok := item.ExpiresAt(); ok {
		if !expiry.After(now) {
			return preparedItem{id: id, expired: true}, nil
		}
		ttl = expiry.Sub(now)
	} else {
		ttl = p.defaultLifetime
	}

	return preparedItem{
		key:    key,
		id:     id,
		record: backend.Record{ID: id, Bytes: raw},
		add:    addData,
		remove: removeData,
		ttl:    ttl,
	}, nil
}

// tagDiff computes adds = new\old and removes = old\new.
func tagDiff(old, new map[string]struct{}) (add, remove map[string]struct{}) {
	add = map[string]struct{}{}
	remove = map[string]struct{}{}
	for t := range new {
		if _, ok := old[t]; !ok {
			add[t] = struct{}{}
		}
	}
	for t := range old {
		if _, ok := new[t]; !ok {
			remove[t] = struct{}{}
		}
	}
	return add, remove
}

// commitBin saves one TTL bin, falling back to per-item retry on an opaque
// (non per-item) bulk failure, and returns the final set of failed ids plus
// a non-nil fatal error if the backend reported a non-retryable condition.
func (p *pool[V]) commitBin(ctx context.Context, ttl time.Duration, items []preparedItem) ([]string, *BackendFatalError) {
	records := make([]backend.Record, len(items))
	delta := backend.TagDelta{Add: map[string][]string{}, Remove: map[string][]string{}}
	for i, it := range items {
		records[i] = it.record
		mergeTagDelta(delta.Add, it.add)
		mergeTagDelta(delta.Remove, it.remove)
	}

	failedIDs, err := p.backend.Save(ctx, records, ttl, delta)
	if err != nil {
		var beFatal *backend.FatalError
		if errors.As(err, &beFatal) {
			p.reportFatal(beFatal)
			fatal := &BackendFatalError{Op: beFatal.Op, Err: beFatal.Err}
			// Fatal means the backend itself is broken (unwritable root,
			// misconfigured eviction policy): no amount of per-item retry
			// will help, so mark every id in the bin failed without retrying.
			ids := make([]string, len(items))
			for i, it := range items {
				ids[i] = it.id
			}
			return ids, fatal
		}
		if len(items) > 1 {
			ids := make([]string, len(items))
			for i, it := range items {
				ids[i] = it.id
			}
			p.hooks.BulkRetryScheduled(ids)
			return p.retryIndividually(ctx, items), nil
		}
		return []string{items[0].id}, nil
	}

	for _, id := range failedIDs {
		p.log.Error("save failed for item", Fields{"id": id})
	}
	return failedIDs, nil
}

func mergeTagDelta(dst, src map[string][]string) {
	for tagID, ids := range src {
		dst[tagID] = append(dst[tagID], ids...)
	}
}

func (p *pool[V]) retryIndividually(ctx context.Context, items []preparedItem) []string {
	var failed []string
	for _, it := range items {
		delta := backend.TagDelta{Add: it.add, Remove: it.remove}
		failedIDs, err := p.backend.Save(ctx, []backend.Record{it.record}, it.ttl, delta)
		if err != nil {
			var fatal *backend.FatalError
			if errors.As(err, &fatal) {
				p.reportFatal(fatal)
			}
			p.hooks.RetryFailed(it.id, err)
			failed = append(failed, it.id)
			continue
		}
		if len(failedIDs) > 0 {
			p.hooks.RetryFailed(it.id, errors.New("tagcache: backend reported failure"))
			failed = append(failed, it.id)
		}
	}
	return failed
}

func (p *pool[V]) reportFatal(fatal *backend.FatalError) {
	p.hooks.BackendFatal(fatal.Op, fatal.Err)
	var evErr *backend.EvictionPolicyError
	if errors.As(fatal.Err, &evErr) {
		p.hooks.EvictionPolicyViolation(evErr.Policy)
	}
	p.log.Error("backend fatal error", Fields{"op": fatal.Op, "err": fatal.Err})
}
