// Package db implements the sharded in-memory data container behind a cache. Hot paths keep
// critical sections per shard; global counters are atomics readable without locks.
package db

import (
	"context"
	"github.com/infinispan/infinispan-subsystem/internal/cache/db/model"
	"github.com/infinispan/infinispan-subsystem/internal/config"
	"runtime"
	"sync"
	"sync/atomic"
)

// Map is a sharded concurrent map of entries with precise global counters.
type Map struct {
	mode config.EvictionMode
	ctx  context.Context

	len  int64  // atomic
	mem  int64  // atomic, aggregated entry weight
	iter uint64 // round robin cursor for NextShard

	mask   uint64
	shards []*Shard
}

// NewMap creates the shards and selects list or sampling bookkeeping from the eviction mode.
func NewMap(ctx context.Context, cfg *config.Cache) *Map {
	n := cfg.DB.Shards
	if n <= 0 || n&(n-1) != 0 {
		n = 64
	}
	m := &Map{ctx: ctx, mask: uint64(n - 1), shards: make([]*Shard, n), mode: config.EvictionModeSampling}
	if cfg.Eviction != nil && cfg.Eviction.IsListing {
		m.mode = cfg.Eviction.Mode
	}
	for id := range m.shards {
		m.shards[id] = newShard(uint64(id), m.mode)
	}
	return m
}

// Set inserts or replaces the entry under its key and returns the replaced one.
func (m *Map) Set(e *model.Entry) (old *model.Entry) {
	old, bytesDelta, lenDelta := m.Shard(e.Key().Value()).set(e)
	atomic.AddInt64(&m.mem, bytesDelta)
	atomic.AddInt64(&m.len, lenDelta)
	return old
}

// Get returns the entry stored under k. A hash collision with another key is a miss.
func (m *Map) Get(k model.Key) (*model.Entry, bool) {
	e, ok := m.Shard(k.Value()).get(k.Value())
	if !ok || !e.Key().IsTheSame(k) {
		return nil, false
	}
	return e, true
}

// Remove deletes the entry stored under k.
func (m *Map) Remove(k model.Key) (*model.Entry, bool) {
	sh := m.Shard(k.Value())
	sh.Lock()
	e, ok := sh.items[k.Value()]
	if !ok || !e.Key().IsTheSame(k) {
		sh.Unlock()
		return nil, false
	}
	sh.removeUnlocked(k.Value())
	sh.Unlock()
	atomic.AddInt64(&m.len, -1)
	atomic.AddInt64(&m.mem, -e.Weight())
	return e, true
}

// RemoveIf deletes e only if it is still the stored entry.
func (m *Map) RemoveIf(e *model.Entry) bool {
	sh := m.Shard(e.Key().Value())
	sh.Lock()
	if cur, ok := sh.items[e.Key().Value()]; !ok || cur != e {
		sh.Unlock()
		return false
	}
	sh.removeUnlocked(e.Key().Value())
	sh.Unlock()
	atomic.AddInt64(&m.len, -1)
	atomic.AddInt64(&m.mem, -e.Weight())
	return true
}

// AddMem accounts an in place value swap.
func (m *Map) AddMem(key uint64, delta int64) {
	atomic.AddInt64(&m.mem, delta)
	m.Shard(key).addMem(delta)
}

// Touch moves the key to the head of its LRU list.
func (m *Map) Touch(key uint64) {
	if m.mode == config.EvictionModeLRU {
		m.Shard(key).touchLRU(key)
	}
}

// Clear wipes all shards and returns the number of entries dropped.
func (m *Map) Clear() (items int64) {
	for _, sh := range m.shards {
		freed, n := sh.clear()
		atomic.AddInt64(&m.mem, -freed)
		atomic.AddInt64(&m.len, -n)
		items += n
	}
	return items
}

// Walk visits every entry under per shard read locks until fn returns false or ctx ends.
func (m *Map) Walk(ctx context.Context, fn func(*model.Entry) bool) {
	for _, sh := range m.shards {
		if ctx.Err() != nil || !sh.walk(ctx, fn) {
			return
		}
	}
}

// WalkShardsConcurrent runs fn over the shards with bounded concurrency.
func (m *Map) WalkShardsConcurrent(ctx context.Context, concurrency int, fn func(sh *Shard)) {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	var (
		wg sync.WaitGroup
		ch = make(chan *Shard)
	)
	for i := 0; i < concurrency; i++ {
		wg.Go(func() {
			for sh := range ch {
				if ctx.Err() == nil {
					fn(sh)
				}
			}
		})
	}
loop:
	for _, sh := range m.shards {
		select {
		case <-ctx.Done():
			break loop
		case ch <- sh:
		}
	}
	close(ch)
	wg.Wait()
}

func (m *Map) Shard(key uint64) *Shard { return m.shards[key&m.mask] }
func (m *Map) NextShard() *Shard       { return m.shards[atomic.AddUint64(&m.iter, 1)&m.mask] }
func (m *Map) NumShards() int          { return len(m.shards) }
func (m *Map) Len() int64              { return atomic.LoadInt64(&m.len) }
func (m *Map) Mem() int64              { return atomic.LoadInt64(&m.mem) }
func (m *Map) Mode() config.EvictionMode {
	return m.mode
}
