package db

import (
	"context"
	"github.com/infinispan/infinispan-subsystem/internal/cache/db/model"
	"sync/atomic"
)

// EnqueueExpired remembers an entry found expired on the read path.
func (m *Map) EnqueueExpired(e *model.Entry) bool {
	if !e.Enqueue() {
		return false
	}
	if !m.Shard(e.Key().Value()).expired.TryPush(e.Key().Value()) {
		e.Dequeue()
		return false
	}
	return true
}

// NextExpired pops queued keys until one still maps to an expired entry.
func (m *Map) NextExpired(now int64) (*model.Entry, bool) {
	start := atomic.AddUint64(&m.iter, 1)
	for i := 0; i < len(m.shards); i++ {
		sh := m.shards[(start+uint64(i))&m.mask]
		for {
			k, ok := sh.expired.TryPop()
			if !ok {
				break
			}
			if e, hit := sh.get(k); hit {
				e.Dequeue()
				if e.IsExpired(now) {
					return e, true
				}
			}
		}
	}
	return nil, false
}

// PurgeExpired removes every expired entry and passes each one to onExpired.
func (m *Map) PurgeExpired(ctx context.Context, now int64, onExpired func(*model.Entry)) (purged int64) {
	for _, sh := range m.shards {
		if ctx.Err() != nil {
			return purged
		}
		if sh.Len() == 0 {
			continue
		}
		var expired []*model.Entry
		sh.Lock()
		for k, e := range sh.items {
			if e.IsExpired(now) {
				sh.removeUnlocked(k)
				expired = append(expired, e)
			}
		}
		sh.Unlock()
		for _, e := range expired {
			atomic.AddInt64(&m.len, -1)
			atomic.AddInt64(&m.mem, -e.Weight())
			purged++
			if onExpired != nil {
				onExpired(e)
			}
		}
	}
	return purged
}
