package tagcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/silverpine/tagcache/backend"
)

// memDriver is a minimal in-process backend.Driver used to exercise pool
// logic without a real filesystem or Redis instance.
type memDriver struct {
	mu       sync.Mutex
	items    map[string][]byte
	tagItems map[string]map[string]struct{} // tagID -> item ids

	saveErr       error // if set, every Save call returns this error
	forceBulkFail bool  // one-shot: next Save call with >1 records returns an opaque error
	failNextSaves map[string]bool
	closed        bool
}

func newMemDriver() *memDriver {
	return &memDriver{
		items:    make(map[string][]byte),
		tagItems: make(map[string]map[string]struct{}),
	}
}

var _ backend.Driver = (*memDriver)(nil)

func (m *memDriver) Fetch(ctx context.Context, ids []string) <-chan backend.FetchResult {
	out := make(chan backend.FetchResult, len(ids))
	m.mu.Lock()
	for _, id := range ids {
		if b, ok := m.items[id]; ok {
			out <- backend.FetchResult{ID: id, Bytes: append([]byte(nil), b...)}
		}
	}
	m.mu.Unlock()
	close(out)
	return out
}

func (m *memDriver) Save(ctx context.Context, records []backend.Record, ttl time.Duration, delta backend.TagDelta) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return nil, m.saveErr
	}
	if m.forceBulkFail && len(records) > 1 {
		m.forceBulkFail = false
		return nil, errors.New("memdriver: opaque bulk failure")
	}

	var failed []string
	for _, r := range records {
		if m.failNextSaves[r.ID] {
			failed = append(failed, r.ID)
			continue
		}
		m.items[r.ID] = r.Bytes
	}

	for tagID, ids := range delta.Add {
		set, ok := m.tagItems[tagID]
		if !ok {
			set = make(map[string]struct{})
			m.tagItems[tagID] = set
		}
		for _, id := range ids {
			set[id] = struct{}{}
		}
	}
	for tagID, ids := range delta.Remove {
		set, ok := m.tagItems[tagID]
		if !ok {
			continue
		}
		for _, id := range ids {
			delete(set, id)
		}
	}

	return failed, nil
}

func (m *memDriver) Delete(ctx context.Context, ids []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.items, id)
	}
	return true, nil
}

func (m *memDriver) DeleteTagRelations(ctx context.Context, tagData map[string][]string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for tagID, ids := range tagData {
		set, ok := m.tagItems[tagID]
		if !ok {
			continue
		}
		for _, id := range ids {
			delete(set, id)
		}
	}
	return true, nil
}

func (m *memDriver) Invalidate(ctx context.Context, tagIDs []string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tagID := range tagIDs {
		set, ok := m.tagItems[tagID]
		if !ok {
			continue
		}
		for id := range set {
			delete(m.items, id)
		}
		delete(m.tagItems, tagID)
	}
	return true, nil
}

func (m *memDriver) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *memDriver) hasItem(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[id]
	return ok
}

func (m *memDriver) tagMembers(tagID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tagItems[tagID])
}
