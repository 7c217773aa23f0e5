package tagcache

import (
	"context"

	"github.com/silverpine/tagcache/internal/wire"
)

func (p *pool[V]) DeleteItem(ctx context.Context, key string) (bool, error) {
	return p.DeleteItems(ctx, []string{key})
}

// DeleteItems drops keys from the deferred buffer, learns each key's
// current tag membership from storage, deletes the items, and cleans up
// their tag relations. A bulk delete failure is retried per-item; the
// returned bool is the AND of every per-item outcome.
func (p *pool[V]) DeleteItems(ctx context.Context, inputKeys []string) (bool, error) {
	if len(inputKeys) == 0 {
		return true, nil
	}
	for _, k := range inputKeys {
		if err := validateKey(k); err != nil {
			return false, err
		}
	}

	p.mu.Lock()
	for _, k := range inputKeys {
		delete(p.buffer, k)
	}
	p.mu.Unlock()

	ids := make([]string, len(inputKeys))
	idToKey := make(map[string]string, len(inputKeys))
	for i, k := range inputKeys {
		id := p.storageID(k)
		ids[i] = id
		idToKey[id] = k
	}

	tagData := make(map[string][]string)
	for res := range p.backend.Fetch(ctx, ids) {
		if res.Err != nil || res.Bytes == nil {
			continue
		}
		tags, _, err := wire.DecodeRecord(res.Bytes)
		if err != nil {
			continue
		}
		for _, t := range tags {
			tagID := p.tagID(t)
			tagData[tagID] = append(tagData[tagID], res.ID)
		}
	}

	if p.l1 != nil {
		for _, id := range ids {
			_ = p.l1.Del(ctx, id)
		}
	}

	ok, err := p.backend.Delete(ctx, ids)
	if err != nil || !ok {
		ok = p.retryDeleteIndividually(ctx, ids)
	}

	if _, err := p.backend.DeleteTagRelations(ctx, tagData); err != nil {
		p.log.Warn("tag relation cleanup failed", Fields{"err": err})
	}

	return ok, nil
}

func (p *pool[V]) retryDeleteIndividually(ctx context.Context, ids []string) bool {
	ok := true
	for _, id := range ids {
		success, err := p.backend.Delete(ctx, []string{id})
		if err != nil || !success {
			ok = false
			p.log.Error("delete failed for item", Fields{"id": id, "err": err})
		}
	}
	return ok
}
