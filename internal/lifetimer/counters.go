package lifetimer

import "sync/atomic"

type lifetimerCounters struct {
	purged atomic.Int64 // entries removed by either path
	passes atomic.Int64 // full passes
	queued atomic.Int64 // entries removed from the read path queue
}

func (c *lifetimerCounters) snapshot() (purged, passes, queued int64) {
	return c.purged.Load(), c.passes.Load(), c.queued.Load()
}
