package cache

import (
	"context"
	"errors"
	"fmt"
	"github.com/infinispan/infinispan-subsystem/internal/cache/db"
	"github.com/infinispan/infinispan-subsystem/internal/cache/db/bloom"
	"github.com/infinispan/infinispan-subsystem/internal/cache/db/dump"
	"github.com/infinispan/infinispan-subsystem/internal/cache/db/model"
	"github.com/infinispan/infinispan-subsystem/internal/config"
	"github.com/infinispan/infinispan-subsystem/internal/shared/cachedtime"
	"log/slog"
	"sync/atomic"
	"time"
)

const spinsBackoff = 64

var ErrStoreUnavailable = errors.New("cache has no store")

// Cacher is the data container surface used by the background workers and the embedded cache.
type Cacher interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte, lifespan, maxIdle time.Duration) (prev []byte, replaced bool)
	Remove(key string) ([]byte, bool, error)
	Evict(key string) bool
	Clear() (int64, error)
	Len() int64
	Mem() int64
	Metrics() Metrics
}

// Cache is the data container of one cache: sharded memory, optional admission control and an
// optional file store used for write through or passivation.
type Cache struct {
	cfg      *config.Cache
	db       *db.Map
	admitter bloom.AdmissionControl
	store    *dump.FileStore
	logger   *slog.Logger
	counters *counters
}

// New builds the container; store may be nil.
func New(ctx context.Context, cfg *config.Cache, logger *slog.Logger, store *dump.FileStore) *Cache {
	return &Cache{
		cfg:      cfg,
		db:       db.NewMap(ctx, cfg),
		admitter: bloom.NewAdmissionControl(cfg.AdmissionControl),
		store:    store,
		logger:   logger,
		counters: newCounters(),
	}
}

// Get reads an entry. Expired entries count as misses; a memory miss falls back to the store,
// activating the entry when passivation is on.
func (c *Cache) Get(key string) ([]byte, bool) {
	defer since(&c.counters.readTime, time.Now())

	k := model.NewKey(key)
	c.admitter.Record(k.Value())
	if e, ok := c.db.Get(k); ok {
		if !e.IsExpired(cachedtime.UnixNano()) {
			e.Touch()
			c.db.Touch(k.Value())
			c.counters.hits.Add(1)
			return e.Value(), true
		}
		c.db.EnqueueExpired(e)
		c.counters.misses.Add(1)
		return nil, false
	}
	if e, ok := c.loadFromStore(key); ok {
		c.counters.hits.Add(1)
		return e.Value(), true
	}
	c.counters.misses.Add(1)
	return nil, false
}

func (c *Cache) loadFromStore(key string) (*model.Entry, bool) {
	if c.store == nil {
		return nil, false
	}
	e, ok := c.store.Load(key)
	if !ok {
		c.counters.loadMisses.Add(1)
		return nil, false
	}
	c.counters.loads.Add(1)
	if c.persistence().Passivation {
		if _, err := c.store.Delete(key); err == nil {
			c.counters.activations.Add(1)
		}
	}
	e.Touch()
	c.insert(e)
	return e, true
}

// Put stores value. Non-positive lifespan or max idle mean the entry never expires that way.
func (c *Cache) Put(key string, value []byte, lifespan, maxIdle time.Duration) (prev []byte, replaced bool) {
	defer since(&c.counters.writeTime, time.Now())
	c.counters.stores.Add(1)

	e := model.NewEntry(model.NewKey(key), value, nanosOrUnbounded(lifespan), nanosOrUnbounded(maxIdle))
	c.admitter.Record(e.Key().Value())
	if old := c.insert(e); old != nil && !old.IsExpired(cachedtime.UnixNano()) {
		prev, replaced = old.Value(), true
	} else if old == nil && c.store != nil {
		if stored, ok := c.store.Load(key); ok {
			prev, replaced = stored.Value(), true
		}
	}
	c.writeThrough(e)
	return prev, replaced
}

func since(total *atomic.Int64, start time.Time) { total.Add(int64(time.Since(start))) }

func nanosOrUnbounded(d time.Duration) int64 {
	if d <= 0 {
		return -1
	}
	return int64(d)
}

// insert places e in memory, applying admission and the entry bound.
func (c *Cache) insert(e *model.Entry) (old *model.Entry) {
	if c.cfg.AdmissionControl.Enabled() && c.cfg.Eviction.Enabled() && c.db.Len() >= c.cfg.Eviction.MaxEntries {
		if _, exists := c.db.Get(e.Key()); !exists {
			if _, victim, ok := c.db.PickVictim(); ok {
				if !c.admitter.Allow(e.Key().Value(), victim.Key().Value()) {
					c.counters.admissionNotAllowed.Add(1)
					c.onEvict(e)
					return nil
				}
				c.counters.admissionAllowed.Add(1)
			}
		}
	}
	old = c.db.Set(e)
	if c.cfg.Eviction.Enabled() && c.db.Len() > c.cfg.Eviction.MaxEntries {
		c.db.EvictUntilWithinLimit(c.cfg.Eviction.MaxEntries, spinsBackoff, c.onEvict)
	}
	return old
}

func (c *Cache) writeThrough(e *model.Entry) {
	if c.store == nil || c.persistence().Passivation {
		return
	}
	if err := c.store.Store(e); err != nil && !errors.Is(err, dump.ErrReadOnly) {
		c.logger.Warn("store write failed", "key", e.Key().String(), "err", err)
	}
}

func (c *Cache) onEvict(e *model.Entry) {
	c.counters.evictions.Add(1)
	if c.store != nil && c.persistence().Passivation {
		if err := c.store.Store(e); err == nil {
			c.counters.passivations.Add(1)
		}
	}
}

// Remove drops key from memory and the store. A read only store keeps its entry.
func (c *Cache) Remove(key string) ([]byte, bool, error) {
	defer since(&c.counters.removeTime, time.Now())

	k := model.NewKey(key)
	var (
		val []byte
		hit bool
	)
	if e, ok := c.db.Remove(k); ok && !e.IsExpired(cachedtime.UnixNano()) {
		val, hit = e.Value(), true
	}
	var err error
	if c.store != nil {
		if stored, ok := c.store.Load(key); ok && !hit {
			val, hit = stored.Value(), true
		}
		if !c.persistence().ReadOnly {
			if _, derr := c.store.Delete(key); derr != nil {
				err = fmt.Errorf("delete %s from store: %w", key, derr)
			}
		}
	}
	if hit {
		c.counters.removeHits.Add(1)
	} else {
		c.counters.removeMisses.Add(1)
	}
	return val, hit, err
}

// Evict drops an entry from memory only, passivating it when configured.
func (c *Cache) Evict(key string) bool {
	e, ok := c.db.Remove(model.NewKey(key))
	if ok {
		c.onEvict(e)
	}
	return ok
}

// Clear empties memory and the store. A read only store keeps its entries.
func (c *Cache) Clear() (int64, error) {
	n := c.db.Clear()
	if c.store != nil && !c.persistence().ReadOnly {
		if err := c.store.Clear(); err != nil {
			return n, fmt.Errorf("clear store: %w", err)
		}
	}
	return n, nil
}

// Flush writes the store file.
func (c *Cache) Flush(ctx context.Context) error {
	if c.store == nil {
		return ErrStoreUnavailable
	}
	return c.store.Sync(ctx)
}

// Preload copies stored entries into memory up to the entry bound.
func (c *Cache) Preload() (loaded int64) {
	if c.store == nil {
		return 0
	}
	c.store.Each(func(e *model.Entry) bool {
		if c.cfg.Eviction.Enabled() && c.db.Len() >= c.cfg.Eviction.MaxEntries {
			return false
		}
		c.db.Set(e)
		loaded++
		return true
	})
	return loaded
}

// Passivate writes every memory entry to the store, used on stop.
func (c *Cache) Passivate(ctx context.Context) (n int64) {
	if c.store == nil || !c.persistence().Passivation {
		return 0
	}
	c.db.Walk(ctx, func(e *model.Entry) bool {
		if c.store.Store(e) == nil {
			n++
		}
		return true
	})
	c.counters.passivations.Add(n)
	return n
}

// Keys returns the live keys in memory and in the store.
func (c *Cache) Keys(ctx context.Context) []string {
	now := cachedtime.UnixNano()
	seen := make(map[string]struct{})
	var out []string
	c.db.Walk(ctx, func(e *model.Entry) bool {
		if !e.IsExpired(now) {
			seen[e.Key().String()] = struct{}{}
			out = append(out, e.Key().String())
		}
		return true
	})
	if c.store != nil {
		c.store.Each(func(e *model.Entry) bool {
			if _, ok := seen[e.Key().String()]; !ok {
				out = append(out, e.Key().String())
			}
			return true
		})
	}
	return out
}

// Size counts memory and store entries.
func (c *Cache) Size(ctx context.Context) int { return len(c.Keys(ctx)) }

// PurgeExpired removes expired entries from memory and the store.
func (c *Cache) PurgeExpired(ctx context.Context) int64 {
	now := cachedtime.UnixNano()
	n := c.db.PurgeExpired(ctx, now, nil)
	if c.store != nil {
		n += int64(c.store.PurgeExpired(now))
	}
	return n
}

// NextExpired hands the reaper an entry found expired on the read path.
func (c *Cache) NextExpired() (*model.Entry, bool) { return c.db.NextExpired(cachedtime.UnixNano()) }

// RemoveExpired removes e if it is still stored.
func (c *Cache) RemoveExpired(e *model.Entry) bool { return c.db.RemoveIf(e) }

// EvictUntilWithinLimit is the background evictor pass.
func (c *Cache) EvictUntilWithinLimit(backoff int64) int64 {
	if !c.cfg.Eviction.Enabled() {
		return 0
	}
	return c.db.EvictUntilWithinLimit(c.cfg.Eviction.MaxEntries, backoff, c.onEvict)
}

// OverLimit reports whether the entry bound is exceeded.
func (c *Cache) OverLimit() bool {
	return c.cfg.Eviction.Enabled() && c.db.Len() > c.cfg.Eviction.MaxEntries
}

func (c *Cache) HasStore() bool          { return c.store != nil }
func (c *Cache) StoreSize() int          { return c.storeSize() }
func (c *Cache) Len() int64              { return c.db.Len() }
func (c *Cache) Mem() int64              { return c.db.Mem() }
func (c *Cache) Config() *config.Cache   { return c.cfg }
func (c *Cache) Metrics() Metrics        { return c.counters.snapshot() }
func (c *Cache) ResetMetrics(g ...Group) { c.counters.reset(g...) }

func (c *Cache) storeSize() int {
	if c.store == nil {
		return 0
	}
	return c.store.Size()
}

func (c *Cache) persistence() *config.PersistenceCfg {
	if c.cfg.Persistence == nil {
		return &config.PersistenceCfg{}
	}
	return c.cfg.Persistence
}
