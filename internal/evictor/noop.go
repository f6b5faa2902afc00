package evictor

import "time"

// NoOpEvictor serves unbounded caches.
type NoOpEvictor struct{}

func (NoOpEvictor) ForceCall(time.Duration) error        { return nil }
func (NoOpEvictor) Metrics() (scans, hits, evicted int64) { return 0, 0, 0 }
func (NoOpEvictor) Close() error                          { return nil }
