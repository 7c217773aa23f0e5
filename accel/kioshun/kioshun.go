// Package kioshun adapts unkn0wn-root/kioshun to the accel.Accelerator
// interface: a sharded in-process cache with pluggable eviction policies.
package kioshun

import (
	"context"
	"time"

	kc "github.com/unkn0wn-root/kioshun"

	"github.com/silverpine/tagcache/accel"
)

// Driver uses K=string, V=[]byte to satisfy the byte-for-byte-transparent contract.
type Driver struct {
	c *kc.InMemoryCache[string, []byte]
}

var _ accel.Accelerator = (*Driver)(nil)

type Config struct {
	MaxItems               int64             // total item capacity; 0 = unlimited
	ShardCount             int               // 0 = auto (CPU * multiplier)
	Policy                 kc.EvictionPolicy // LRU/LFU/FIFO/AdmissionLFU
	CleanupInterval        time.Duration     // 0 = disable background cleanup
	AdmissionResetInterval time.Duration     // only used by AdmissionLFU
	StatsEnabled           bool
}

func New(cfg Config) *Driver {
	kcfg := kc.Config{
		MaxSize:                cfg.MaxItems,
		ShardCount:             cfg.ShardCount,
		CleanupInterval:        cfg.CleanupInterval,
		DefaultTTL:             0, // Set always passes TTL explicitly; 0 here means "no default"
		EvictionPolicy:         cfg.Policy,
		StatsEnabled:           cfg.StatsEnabled,
		AdmissionResetInterval: cfg.AdmissionResetInterval,
	}
	return &Driver{c: kc.New[string, []byte](kcfg)}
}

func NewWithCache(c *kc.InMemoryCache[string, []byte]) *Driver { return &Driver{c: c} }

func (d *Driver) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := d.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v, true, nil
}

// Set reports admission refusal (ok=false, err=nil) by checking existence
// after the write: kioshun's own Set has no ok result, so a rejected
// AdmissionLFU write is detected by the key still being absent afterward.
func (d *Driver) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = kc.NoExpiration
	}
	if err := d.c.Set(key, value, ttl); err != nil {
		return false, err
	}
	return d.c.Exists(key), nil
}

func (d *Driver) Del(_ context.Context, key string) error {
	_ = d.c.Delete(key)
	return nil
}

func (d *Driver) Flush(_ context.Context) error {
	d.c.Clear()
	return nil
}

func (d *Driver) Close(_ context.Context) error {
	return d.c.Close()
}
