package evictor

import (
	"context"
	"github.com/infinispan/infinispan-subsystem/internal/cache"
	"github.com/infinispan/infinispan-subsystem/internal/config"
	"github.com/stretchr/testify/require"
	"io"
	"log/slog"
	"testing"
	"time"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// TestNew_Disabled returns the no-op evictor for unbounded caches.
func TestNew_Disabled(t *testing.T) {
	cfg := &config.Cache{}
	cfg.AdjustConfig()
	c := cache.New(context.Background(), cfg, discard, nil)

	e := New(context.Background(), nil, discard, c)
	require.IsType(t, NoOpEvictor{}, e)
	require.NoError(t, e.ForceCall(time.Millisecond))
	require.NoError(t, e.Close())
}

// TestEvictionWorker_ForceCall runs a pass on demand and counts it.
func TestEvictionWorker_ForceCall(t *testing.T) {
	cfg := &config.Cache{Eviction: &config.EvictionCfg{Mode: config.EvictionModeLRU, MaxEntries: 5, CallsPerSec: 1}}
	cfg.AdjustConfig()
	c := cache.New(context.Background(), cfg, discard, nil)

	e := New(context.Background(), cfg.Eviction, discard, c)
	defer e.Close()

	require.NoError(t, e.ForceCall(time.Second))
	require.Eventually(t, func() bool {
		scans, _, _ := e.Metrics()
		return scans > 0
	}, 3*time.Second, 10*time.Millisecond)
	require.LessOrEqual(t, c.Len(), int64(5))
}
