package evictor

import "sync/atomic"

type evictorCounters struct {
	scans    atomic.Int64
	scanHits atomic.Int64
	evicted  atomic.Int64
}

func (c *evictorCounters) snapshot() (scans, hits, evicted int64) {
	return c.scans.Load(), c.scanHits.Load(), c.evicted.Load()
}
