package db

import (
	"container/list"
	"context"
	"github.com/infinispan/infinispan-subsystem/internal/cache/db/model"
	"github.com/infinispan/infinispan-subsystem/internal/config"
	"github.com/infinispan/infinispan-subsystem/internal/shared/queue"
	"runtime"
	"sync"
	"sync/atomic"
)

const (
	expiredQueueCap       = 1024
	rLockSpins, lockSpins = 8, 16
)

// Shard is an independent segment of the map.
type Shard struct {
	sync.RWMutex
	items map[uint64]*model.Entry

	id  uint64
	mem int64 // atomic
	len int64 // atomic

	// ordered list of keys, maintained in lru and fifo modes
	listed bool
	lru    bool
	order  *list.List
	idx    map[uint64]*list.Element

	expired *queue.Ring[uint64]
}

func newShard(id uint64, mode config.EvictionMode) *Shard {
	sh := &Shard{id: id, items: make(map[uint64]*model.Entry), expired: queue.NewRing[uint64](expiredQueueCap)}
	if mode == config.EvictionModeLRU || mode == config.EvictionModeFIFO {
		sh.listed = true
		sh.lru = mode == config.EvictionModeLRU
		sh.order = list.New()
		sh.idx = make(map[uint64]*list.Element)
	}
	return sh
}

func (sh *Shard) ID() uint64         { return sh.id }
func (sh *Shard) Weight() int64      { return atomic.LoadInt64(&sh.mem) }
func (sh *Shard) Len() int64         { return atomic.LoadInt64(&sh.len) }
func (sh *Shard) addMem(delta int64) { atomic.AddInt64(&sh.mem, delta) }

func (sh *Shard) set(e *model.Entry) (old *model.Entry, bytesDelta, lenDelta int64) {
	key := e.Key().Value()
	sh.Lock()
	old, hit := sh.items[key]
	sh.items[key] = e
	if hit {
		bytesDelta = e.Weight() - old.Weight()
		sh.moveToFrontUnlocked(key)
	} else {
		bytesDelta, lenDelta = e.Weight(), 1
		sh.pushFrontUnlocked(key)
	}
	atomic.AddInt64(&sh.mem, bytesDelta)
	atomic.AddInt64(&sh.len, lenDelta)
	sh.Unlock()
	return old, bytesDelta, lenDelta
}

func (sh *Shard) get(key uint64) (e *model.Entry, ok bool) {
	sh.RLock()
	e, ok = sh.items[key]
	sh.RUnlock()
	return
}

// removeUnlocked requires the write lock.
func (sh *Shard) removeUnlocked(key uint64) (e *model.Entry, ok bool) {
	if e, ok = sh.items[key]; ok {
		delete(sh.items, key)
		sh.unlinkUnlocked(key)
		atomic.AddInt64(&sh.mem, -e.Weight())
		atomic.AddInt64(&sh.len, -1)
	}
	return
}

func (sh *Shard) clear() (freed, items int64) {
	sh.Lock()
	items, freed = atomic.LoadInt64(&sh.len), atomic.LoadInt64(&sh.mem)
	sh.items = make(map[uint64]*model.Entry)
	if sh.listed {
		sh.order.Init()
		clear(sh.idx)
	}
	atomic.StoreInt64(&sh.len, 0)
	atomic.StoreInt64(&sh.mem, 0)
	sh.Unlock()
	sh.expired.Reset()
	return
}

func (sh *Shard) walk(ctx context.Context, fn func(*model.Entry) bool) bool {
	sh.RLock()
	defer sh.RUnlock()
	for _, e := range sh.items {
		if ctx.Err() != nil || !fn(e) {
			return false
		}
	}
	return true
}

// Snapshot copies the entries of the shard.
func (sh *Shard) Snapshot() []*model.Entry {
	sh.RLock()
	defer sh.RUnlock()
	out := make([]*model.Entry, 0, len(sh.items))
	for _, e := range sh.items {
		out = append(out, e)
	}
	return out
}

func (sh *Shard) tryRLock() bool {
	for i := 0; i < rLockSpins; i++ {
		if sh.TryRLock() {
			return true
		}
		runtime.Gosched()
	}
	return false
}

func (sh *Shard) tryLock() bool {
	for i := 0; i < lockSpins; i++ {
		if sh.TryLock() {
			return true
		}
		runtime.Gosched()
	}
	return false
}
