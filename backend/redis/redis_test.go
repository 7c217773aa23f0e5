package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/silverpine/tagcache/backend"
)

func newTestDriver(t *testing.T) (*Driver, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	d, err := New(context.Background(), Config{Client: client, Namespace: "ns\x00"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d, mr
}

func fetchOne(t *testing.T, d *Driver, id string) (backend.FetchResult, bool) {
	t.Helper()
	for r := range d.Fetch(context.Background(), []string{id}) {
		return r, true
	}
	return backend.FetchResult{}, false
}

func TestSaveFetchRoundTrip(t *testing.T) {
	d, _ := newTestDriver(t)
	ctx := context.Background()

	failed, err := d.Save(ctx, []backend.Record{{ID: "item-1", Bytes: []byte("payload")}}, time.Minute, backend.TagDelta{})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(failed) != 0 {
		t.Fatalf("unexpected failures: %v", failed)
	}

	r, ok := fetchOne(t, d, "item-1")
	if !ok {
		t.Fatalf("expected hit")
	}
	if string(r.Bytes) != "payload" {
		t.Fatalf("payload mismatch: got %q", r.Bytes)
	}
}

func TestFetchMissForUnknownID(t *testing.T) {
	d, _ := newTestDriver(t)
	if _, ok := fetchOne(t, d, "nope"); ok {
		t.Fatalf("expected miss")
	}
}

func TestNonPositiveTTLFallsBackToDefaultFloor(t *testing.T) {
	d, mr := newTestDriver(t)
	ctx := context.Background()

	if _, err := d.Save(ctx, []backend.Record{{ID: "k", Bytes: []byte("v")}}, 0, backend.TagDelta{}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ttl := mr.TTL(d.itemKey("k"))
	if ttl < DefaultCacheTTL-time.Minute || ttl > DefaultCacheTTL+time.Minute {
		t.Fatalf("expected ~DefaultCacheTTL, got %v", ttl)
	}
}

func TestSaveAppliesTagDelta(t *testing.T) {
	d, mr := newTestDriver(t)
	ctx := context.Background()

	tagID := "tag\x00ns\x00a"
	delta := backend.TagDelta{Add: map[string][]string{tagID: {"k1", "k2"}}}
	if _, err := d.Save(ctx, []backend.Record{
		{ID: "k1", Bytes: []byte("v1")},
		{ID: "k2", Bytes: []byte("v2")},
	}, time.Minute, delta); err != nil {
		t.Fatalf("Save: %v", err)
	}

	members, err := mr.Members(tagID)
	if err != nil {
		t.Fatalf("Members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %v", members)
	}
}

func TestInvalidateRemovesTaggedItems(t *testing.T) {
	d, mr := newTestDriver(t)
	ctx := context.Background()

	tagID := "tag\x00ns\x00a"
	delta := backend.TagDelta{Add: map[string][]string{tagID: {"k1", "k2"}}}
	if _, err := d.Save(ctx, []backend.Record{
		{ID: "k1", Bytes: []byte("v1")},
		{ID: "k2", Bytes: []byte("v2")},
	}, time.Minute, delta); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ok, err := d.Invalidate(ctx, []string{tagID})
	if err != nil || !ok {
		t.Fatalf("Invalidate: ok=%v err=%v", ok, err)
	}

	if _, ok := fetchOne(t, d, "k1"); ok {
		t.Fatalf("k1 should be gone")
	}
	if _, ok := fetchOne(t, d, "k2"); ok {
		t.Fatalf("k2 should be gone")
	}
	if mr.Exists(tagID) {
		t.Fatalf("expected tag set removed")
	}
}

func TestInvalidateMissingTagIsNoOp(t *testing.T) {
	d, _ := newTestDriver(t)
	ok, err := d.Invalidate(context.Background(), []string{"tag\x00ns\x00never-used"})
	if err != nil || !ok {
		t.Fatalf("expected no-op success, got ok=%v err=%v", ok, err)
	}
}

func TestDeleteToleratesMissingKeys(t *testing.T) {
	d, _ := newTestDriver(t)
	ok, err := d.Delete(context.Background(), []string{"never-existed"})
	if err != nil || !ok {
		t.Fatalf("Delete of missing id: ok=%v err=%v", ok, err)
	}
}

func TestConstructRejectsVolatileIncompatiblePolicy(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	client.ConfigSet(context.Background(), "maxmemory-policy", "allkeys-lru")

	_, err := New(context.Background(), Config{Client: client})
	var fatal *backend.FatalError
	if err == nil {
		t.Fatalf("expected fatal error for allkeys-lru policy")
	}
	if !isFatalError(err, &fatal) {
		t.Fatalf("expected *backend.FatalError, got %T: %v", err, err)
	}
}

func isFatalError(err error, target **backend.FatalError) bool {
	fe, ok := err.(*backend.FatalError)
	if ok {
		*target = fe
	}
	return ok
}

func TestSpopInvalidateDrainsTagSet(t *testing.T) {
	d, mr := newTestDriver(t)
	ctx := context.Background()

	tagID := "tag\x00ns\x00a"
	delta := backend.TagDelta{Add: map[string][]string{tagID: {"k1", "k2", "k3"}}}
	if _, err := d.Save(ctx, []backend.Record{
		{ID: "k1", Bytes: []byte("v1")},
		{ID: "k2", Bytes: []byte("v2")},
		{ID: "k3", Bytes: []byte("v3")},
	}, time.Minute, delta); err != nil {
		t.Fatalf("Save: %v", err)
	}

	if err := d.spopInvalidate(ctx, tagID, 2); err != nil {
		t.Fatalf("spopInvalidate: %v", err)
	}
	if mr.Exists(tagID) {
		t.Fatalf("expected tag set drained")
	}
}
