// Package asset keeps an in-memory view of asset metadata that is refreshed
// from a loader once it is older than the configured TTL.
package asset

import (
	"context"
	"sync/atomic"
	"time"

	"engine/internal/errors"
	"engine/internal/schema"
	"engine/pkg/exception"
)

// Loader returns the complete set of assets.
type Loader interface {
	LoadAllAssets(ctx context.Context) ([]schema.Asset, error)
}

type snapshot struct {
	assets   map[string]schema.Asset
	loadedAt time.Time
}

// Cache serves asset metadata from an immutable snapshot. A reload swaps the
// whole snapshot, so readers never observe a partially refreshed set.
type Cache struct {
	loader Loader
	ttl    time.Duration
	now    func() time.Time
	snap   atomic.Pointer[snapshot]
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCache creates a cache. Nothing is loaded until the first lookup.
func NewCache(loader Loader, ttl time.Duration, opts ...Option) *Cache {
	c := &Cache{
		loader: loader,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the asset with the given id. A stale snapshot is reloaded first.
// An id missing from a fresh snapshot triggers one more reload before
// ErrAssetNotFound is returned.
func (c *Cache) Get(ctx context.Context, id string) (schema.Asset, error) {
	snap := c.snap.Load()
	reloaded := false
	if snap == nil || c.stale(snap) {
		var err error
		if snap, err = c.reload(ctx); err != nil {
			return schema.Asset{}, err
		}
		reloaded = true
	}

	if a, ok := snap.assets[id]; ok {
		return a, nil
	}
	if !reloaded {
		var err error
		if snap, err = c.reload(ctx); err != nil {
			return schema.Asset{}, err
		}
		if a, ok := snap.assets[id]; ok {
			return a, nil
		}
	}
	return schema.Asset{}, errors.Wrapf(exception.ErrAssetNotFound, "asset %q", id)
}

// Refresh forces a reload.
func (c *Cache) Refresh(ctx context.Context) error {
	_, err := c.reload(ctx)
	return err
}

// All returns the assets of the current snapshot.
func (c *Cache) All() []schema.Asset {
	snap := c.snap.Load()
	if snap == nil {
		return nil
	}
	out := make([]schema.Asset, 0, len(snap.assets))
	for _, a := range snap.assets {
		out = append(out, a)
	}
	return out
}

func (c *Cache) stale(s *snapshot) bool {
	return c.now().Sub(s.loadedAt) >= c.ttl
}

func (c *Cache) reload(ctx context.Context) (*snapshot, error) {
	assets, err := c.loader.LoadAllAssets(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load assets")
	}
	next := &snapshot{
		assets:   make(map[string]schema.Asset, len(assets)),
		loadedAt: c.now(),
	}
	for _, a := range assets {
		next.assets[a.ID] = a
	}
	c.snap.Store(next)
	return next, nil
}
