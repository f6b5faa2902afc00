package db

import (
	"github.com/infinispan/infinispan-subsystem/internal/cache/db/model"
	"github.com/infinispan/infinispan-subsystem/internal/config"
	"runtime"
	"sync/atomic"
)

const shardsSample, keysSample = 4, 8

// EvictUntilWithinLimit removes victims until at most limit entries remain or backoff shard visits
// are spent. Every evicted entry is passed to onEvict.
func (m *Map) EvictUntilWithinLimit(limit, backoff int64, onEvict func(*model.Entry)) (evicted int64) {
	for backoff > 0 && m.Len() > limit {
		backoff--
		var (
			e  *model.Entry
			ok bool
		)
		if m.isListing() {
			e, ok = m.evictFromList()
		} else {
			e, ok = m.evictBySample()
		}
		if !ok {
			runtime.Gosched()
			continue
		}
		atomic.AddInt64(&m.len, -1)
		atomic.AddInt64(&m.mem, -e.Weight())
		evicted++
		if onEvict != nil {
			onEvict(e)
		}
	}
	return evicted
}

// evictFromList pops the tail of the shard whose tail was touched least recently among a few probes.
func (m *Map) evictFromList() (*model.Entry, bool) {
	const probes = 8
	var (
		best   *Shard
		bestAt int64
	)
	for i := 0; i < probes; i++ {
		sh := m.NextShard()
		if sh.Len() == 0 {
			continue
		}
		if e, ok := sh.peekTail(); ok && (best == nil || e.TouchedAt() < bestAt) {
			best, bestAt = sh, e.TouchedAt()
		}
	}
	if best == nil {
		return m.anyTail()
	}
	return best.popTail()
}

// anyTail scans every shard once so small maps whose entries sit in few shards still evict.
func (m *Map) anyTail() (*model.Entry, bool) {
	for range m.shards {
		if sh := m.NextShard(); sh.Len() > 0 {
			if e, ok := sh.popTail(); ok {
				return e, true
			}
		}
	}
	return nil, false
}

func (m *Map) evictBySample() (*model.Entry, bool) {
	sh, victim, ok := m.PickVictim()
	if !ok || !sh.tryLock() {
		return nil, false
	}
	defer sh.Unlock()
	if cur, hit := sh.items[victim.Key().Value()]; !hit || cur != victim {
		return nil, false
	}
	return sh.removeUnlocked(victim.Key().Value())
}

// PickVictim returns the least recently touched entry of a sample, without removing it.
func (m *Map) PickVictim() (*Shard, *model.Entry, bool) {
	if m.isListing() {
		for i := 0; i < len(m.shards); i++ {
			sh := m.NextShard()
			if e, ok := sh.peekTail(); ok {
				return sh, e, true
			}
		}
		return nil, nil, false
	}

	var (
		bestSh *Shard
		bestV  *model.Entry
		bestAt int64
	)
	visited := 0
	for i := 0; i < len(m.shards) && visited < shardsSample; i++ {
		sh := m.NextShard()
		if sh.Len() == 0 || !sh.tryRLock() {
			continue
		}
		visited++
		n := keysSample
		for _, e := range sh.items {
			if at := e.TouchedAt(); bestV == nil || at < bestAt {
				bestSh, bestV, bestAt = sh, e, at
			}
			if n--; n == 0 {
				break
			}
		}
		sh.RUnlock()
	}
	return bestSh, bestV, bestV != nil
}

func (m *Map) isListing() bool {
	return m.mode == config.EvictionModeLRU || m.mode == config.EvictionModeFIFO
}
