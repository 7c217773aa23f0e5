package tagcache

import (
	"context"
	"sync"
	"time"

	"github.com/silverpine/tagcache/accel"
)

// memAccel is a minimal in-process accel.Accelerator used to exercise the
// pool's L1 paths without pulling in a real bigcache/ristretto/kioshun driver.
type memAccel struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemAccel() *memAccel {
	return &memAccel{items: make(map[string][]byte)}
}

var _ accel.Accelerator = (*memAccel)(nil)

func (a *memAccel) Get(ctx context.Context, key string) ([]byte, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.items[key]
	return b, ok, nil
}

func (a *memAccel) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items[key] = append([]byte(nil), value...)
	return true, nil
}

func (a *memAccel) Del(ctx context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.items, key)
	return nil
}

func (a *memAccel) Flush(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = make(map[string][]byte)
	return nil
}

func (a *memAccel) Close(ctx context.Context) error { return nil }

func (a *memAccel) has(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.items[key]
	return ok
}
