// Package redis implements the tag-aware pool's distributed storage
// back-end: items as expiring Redis strings, tag relations as Redis sets.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/silverpine/tagcache/backend"
)

// DefaultCacheTTL is the floor applied to records whose caller-supplied TTL
// is <= 0. Items must always expire so server-side eviction prefers them
// over the non-volatile tag sets (spec invariant: tag-durability dominance).
const DefaultCacheTTL = 100 * 24 * time.Hour

// BulkDeleteLimit chunks the item-id union swept by Invalidate so no single
// DEL command carries more than this many keys. The whole union is still
// collected in memory before the first chunk is deleted.
const BulkDeleteLimit = 10000

var ErrNilClient = errors.New("redis: nil client")

// allowedEvictionPolicies are the only maxmemory-policy values that cannot
// evict a tag set ahead of the items it references.
var allowedEvictionPolicies = map[string]bool{
	"noeviction":      true,
	"volatile-lru":    true,
	"volatile-lfu":    true,
	"volatile-random": true,
	"volatile-ttl":    true,
}

type Driver struct {
	rdb       goredis.UniversalClient
	namespace string

	// onInvalidateChunk, if set, is called once per BulkDeleteLimit-sized
	// chunk deleted during Invalidate. Lets a caller bridge to its own
	// observability hooks without this package depending on them.
	onInvalidateChunk func(tagID string, chunkSize int)
}

var _ backend.Driver = (*Driver)(nil)

type Config struct {
	Client    goredis.UniversalClient
	Namespace string

	// OnInvalidateChunk, if set, is called once per chunk deleted during
	// Invalidate whenever more than one chunk was required.
	OnInvalidateChunk func(tagID string, chunkSize int)
}

func New(ctx context.Context, cfg Config) (*Driver, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	d := &Driver{rdb: cfg.Client, namespace: cfg.Namespace, onInvalidateChunk: cfg.OnInvalidateChunk}
	if err := d.checkEvictionPolicy(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Driver) checkEvictionPolicy(ctx context.Context) error {
	res, err := d.rdb.ConfigGet(ctx, "maxmemory-policy").Result()
	if err != nil {
		// Some managed Redis offerings disallow CONFIG GET; treat as unknown
		// rather than fatal so construction doesn't hard-fail against them.
		return nil
	}
	policy, ok := res["maxmemory-policy"]
	if !ok || policy == "" {
		return nil
	}
	if !allowedEvictionPolicies[policy] {
		return &backend.FatalError{Op: "construct", Err: &backend.EvictionPolicyError{Policy: policy}}
	}
	return nil
}

func (d *Driver) itemKey(id string) string { return d.namespace + id }

func (d *Driver) itemKeys(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = d.itemKey(id)
	}
	return out
}

func (d *Driver) Fetch(ctx context.Context, ids []string) <-chan backend.FetchResult {
	ch := make(chan backend.FetchResult, len(ids))
	go func() {
		defer close(ch)
		if len(ids) == 0 {
			return
		}
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = d.itemKey(id)
		}
		vals, err := d.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			return // tolerated: backend transient failure downgrades to "no results"
		}
		for i, v := range vals {
			if v == nil {
				continue // miss
			}
			switch vv := v.(type) {
			case string:
				ch <- backend.FetchResult{ID: ids[i], Bytes: []byte(vv)}
			case []byte:
				ch <- backend.FetchResult{ID: ids[i], Bytes: vv}
			}
		}
	}()
	return ch
}

func effectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultCacheTTL
	}
	return ttl
}

// Save pipelines SETEX per record, then SADD per add entry and SREM per
// remove entry, in that order, so an observer never sees a tag reference an
// item whose SETEX has not yet been observed to complete. All commands go
// out in one pipeline, so SADD/SREM are not filtered by SETEX outcome: a
// tag may reference an id whose SETEX failed.
func (d *Driver) Save(ctx context.Context, records []backend.Record, ttl time.Duration, delta backend.TagDelta) ([]string, error) {
	if len(records) == 0 && delta.Empty() {
		return nil, nil
	}
	if err := d.checkEvictionPolicy(ctx); err != nil {
		return nil, err
	}

	effTTL := effectiveTTL(ttl)
	setCmds := make(map[string]*goredis.StatusCmd, len(records))

	pipe := d.rdb.Pipeline()
	for _, r := range records {
		setCmds[r.ID] = pipe.SetEx(ctx, d.itemKey(r.ID), r.Bytes, effTTL)
	}
	for tagID, ids := range delta.Add {
		if len(ids) > 0 {
			pipe.SAdd(ctx, tagID, toAny(d.itemKeys(ids))...)
		}
	}
	for tagID, ids := range delta.Remove {
		if len(ids) > 0 {
			pipe.SRem(ctx, tagID, toAny(d.itemKeys(ids))...)
		}
	}

	// A pipeline Exec error reports that at least one command in the batch
	// failed; per-command results (including which SETEX succeeded) are
	// still readable off the individual cmd objects below.
	_, execErr := pipe.Exec(ctx)
	if execErr != nil && !errors.Is(execErr, goredis.Nil) && len(setCmds) == 0 {
		return nil, execErr
	}

	var failed []string
	for id, cmd := range setCmds {
		if cmd.Err() != nil {
			failed = append(failed, id)
			continue
		}
		if status := cmd.Val(); status != "OK" {
			failed = append(failed, id)
		}
	}

	return failed, nil
}

func toAny(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func (d *Driver) Delete(ctx context.Context, ids []string) (bool, error) {
	if len(ids) == 0 {
		return true, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = d.itemKey(id)
	}
	if err := d.rdb.Del(ctx, keys...).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Driver) DeleteTagRelations(ctx context.Context, tagData map[string][]string) (bool, error) {
	if len(tagData) == 0 {
		return true, nil
	}
	pipe := d.rdb.Pipeline()
	for tagID, ids := range tagData {
		if len(ids) == 0 {
			continue
		}
		pipe.SRem(ctx, tagID, toAny(d.itemKeys(ids))...)
	}
	_, err := pipe.Exec(ctx)
	return err == nil, nil // best-effort cleanup; dangling links already tolerated
}

// Invalidate is the rename-then-sweep protocol: each tag set is atomically
// renamed under a random, hash-tag-scoped suffix so that members added to
// the *original* tag name after the rename survive. The renamed sets are
// then read and their members (plus the renamed keys themselves) are
// deleted in bounded chunks.
func (d *Driver) Invalidate(ctx context.Context, tagIDs []string) (bool, error) {
	if len(tagIDs) == 0 {
		return false, nil
	}

	renamed := make([]string, 0, len(tagIDs))
	for _, tagID := range tagIDs {
		token := "{" + tagID + "}" + uuid.NewString()
		if err := d.rdb.Rename(ctx, tagID, token).Err(); err != nil {
			if errors.Is(err, goredis.Nil) {
				continue // tag key never existed: no-op
			}
			continue // tolerate missing/renamed-away keys
		}
		renamed = append(renamed, token)
	}
	if len(renamed) == 0 {
		return true, nil
	}

	pipe := d.rdb.Pipeline()
	cmds := make([]*goredis.StringSliceCmd, len(renamed))
	for i, key := range renamed {
		cmds[i] = pipe.SMembers(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, goredis.Nil) {
		return false, err
	}

	union := make(map[string]struct{})
	for i, cmd := range cmds {
		for _, m := range cmd.Val() {
			union[m] = struct{}{}
		}
		union[renamed[i]] = struct{}{} // the renamed set key itself must also be deleted
	}

	ids := make([]string, 0, len(union))
	for id := range union {
		ids = append(ids, id)
	}

	chunkCount := (len(ids) + BulkDeleteLimit - 1) / BulkDeleteLimit

	ok := true
	for start := 0; start < len(ids); start += BulkDeleteLimit {
		end := start + BulkDeleteLimit
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		keys := make([]string, len(chunk))
		copy(keys, chunk)
		if err := d.rdb.Del(ctx, keys...).Err(); err != nil {
			ok = false
		}
		if chunkCount > 1 && d.onInvalidateChunk != nil {
			d.onInvalidateChunk(tagIDs[0], len(chunk))
		}
	}

	return ok, nil
}

// spopInvalidate is the legacy invalidation strategy: repeatedly SPOP a tag
// set and DEL the popped item ids until a pop returns fewer than limit
// members. Simpler than the rename-based protocol but livelock-prone under
// concurrent tagging of the same tag (a writer can keep adding members
// faster than SPOP drains them). Kept for readers porting from pre-3.2
// Redis where RENAME's hash-tag-scoped cluster semantics aren't available;
// not used by Invalidate.
func (d *Driver) spopInvalidate(ctx context.Context, tagID string, limit int64) error {
	for {
		popped, err := d.rdb.SPopN(ctx, tagID, limit).Result()
		if err != nil {
			return err
		}
		if len(popped) > 0 {
			if err := d.rdb.Del(ctx, popped...).Err(); err != nil {
				return err
			}
		}
		if int64(len(popped)) < limit {
			return nil
		}
	}
}

func (d *Driver) Close(ctx context.Context) error { return nil }
