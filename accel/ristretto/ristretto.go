// Package ristretto adapts dgraph-io/ristretto to the accel.Accelerator
// interface: an admission-policy-driven, high-concurrency in-process cache.
package ristretto

import (
	"context"
	"errors"
	"time"

	rc "github.com/dgraph-io/ristretto"

	"github.com/silverpine/tagcache/accel"
)

type Driver struct {
	c *rc.Cache
}

var _ accel.Accelerator = (*Driver)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
}

func New(cfg Config) (*Driver, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
	})
	if err != nil {
		return nil, err
	}
	return &Driver{c: c}, nil
}

func (d *Driver) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := d.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	b, _ := v.([]byte)
	if b == nil {
		d.c.Del(key) // self-heal: drop unexpected entry shape
		return nil, false, nil
	}
	return b, true, nil
}

func (d *Driver) Set(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return d.c.SetWithTTL(key, value, int64(len(value)), ttl), nil
}

func (d *Driver) Del(_ context.Context, key string) error {
	d.c.Del(key)
	return nil
}

func (d *Driver) Flush(_ context.Context) error {
	d.c.Clear()
	return nil
}

func (d *Driver) Close(_ context.Context) error {
	d.c.Wait()
	d.c.Close()
	return nil
}

// Metrics exposes Ristretto's own hit-ratio counters, for callers that want
// to wire them into their own metrics pipeline.
func (d *Driver) Metrics() *rc.Metrics { return d.c.Metrics }
