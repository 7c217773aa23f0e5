// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/silverpine/tagcache"
//	"github.com/silverpine/tagcache/hooks/async"
//	"github.com/silverpine/tagcache/sloghooks"
//
// )
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SelfHealEvery: 10, // sample logs: ~every 10th self-heal
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	cache, _ := tagcache.New[User](tagcache.Options[User]{
//	    Namespace: "app-prod-user",
//	    Backend:   backend,
//	    Codec:     codec.JSONCodec[User]{},
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	"github.com/silverpine/tagcache"
)

// Hooks wraps a tagcache.Hooks and runs each callback off the caller's hot
// path on a bounded worker queue. Events are dropped (not blocked on) when
// the queue is full.
type Hooks struct {
	inner tagcache.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ tagcache.Hooks = (*Hooks)(nil)

func New(inner tagcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) SelfHeal(storageKey, reason string) {
	h.try(func() { h.inner.SelfHeal(storageKey, reason) })
}
func (h *Hooks) BulkRetryScheduled(ids []string) {
	h.try(func() { h.inner.BulkRetryScheduled(ids) })
}
func (h *Hooks) RetryFailed(storageKey string, err error) {
	h.try(func() { h.inner.RetryFailed(storageKey, err) })
}
func (h *Hooks) BackendFatal(op string, err error) {
	h.try(func() { h.inner.BackendFatal(op, err) })
}
func (h *Hooks) EvictionPolicyViolation(policy string) {
	h.try(func() { h.inner.EvictionPolicyViolation(policy) })
}
func (h *Hooks) InvalidateChunk(tag string, chunkSize int) {
	h.try(func() { h.inner.InvalidateChunk(tag, chunkSize) })
}
