package lifetimer

import (
	"context"
	"github.com/infinispan/infinispan-subsystem/internal/cache"
)

// NoOpLifetimer runs no background work; PurgeNow still purges on request.
type NoOpLifetimer struct {
	cache *cache.Cache
}

func (NoOpLifetimer) Metrics() (purged, passes, queued int64) { return 0, 0, 0 }
func (NoOpLifetimer) Close() error                            { return nil }

func (l NoOpLifetimer) PurgeNow(ctx context.Context) int64 {
	if l.cache == nil {
		return 0
	}
	return l.cache.PurgeExpired(ctx)
}
