// Package bigcache adapts allegro/bigcache to the accel.Accelerator
// interface: a sharded, GC-pressure-free in-process byte store.
package bigcache

import (
	"context"
	"time"

	bc "github.com/allegro/bigcache/v3"

	"github.com/silverpine/tagcache/accel"
)

type Driver struct {
	c *bc.BigCache
}

var _ accel.Accelerator = (*Driver)(nil)

type Config struct {
	LifeWindow         time.Duration
	CleanWindow        time.Duration
	MaxEntriesInWindow int
	MaxEntrySize       int
	HardMaxCacheSizeMB int // ~ memory limit; 0 = unlimited
}

func New(cfg Config) (*Driver, error) {
	conf := bc.DefaultConfig(cfg.LifeWindow)
	if cfg.CleanWindow > 0 {
		conf.CleanWindow = cfg.CleanWindow
	}
	if cfg.MaxEntriesInWindow > 0 {
		conf.MaxEntriesInWindow = cfg.MaxEntriesInWindow
	}
	if cfg.MaxEntrySize > 0 {
		conf.MaxEntrySize = cfg.MaxEntrySize
	}
	if cfg.HardMaxCacheSizeMB > 0 {
		conf.HardMaxCacheSize = cfg.HardMaxCacheSizeMB
	}
	c, err := bc.NewBigCache(conf)
	if err != nil {
		return nil, err
	}
	return &Driver{c: c}, nil
}

func (d *Driver) Get(_ context.Context, key string) ([]byte, bool, error) {
	b, err := d.c.Get(key)
	if err == bc.ErrEntryNotFound {
		return nil, false, nil
	}
	return b, err == nil, err
}

func (d *Driver) Set(_ context.Context, key string, value []byte, _ time.Duration) (bool, error) {
	// BigCache has no per-entry TTL; expiry is governed by the shared LifeWindow.
	return true, d.c.Set(key, value)
}

func (d *Driver) Del(_ context.Context, key string) error {
	err := d.c.Delete(key)
	if err == bc.ErrEntryNotFound {
		return nil
	}
	return err
}

func (d *Driver) Flush(_ context.Context) error {
	return d.c.Reset()
}

func (d *Driver) Close(_ context.Context) error {
	return d.c.Close()
}
