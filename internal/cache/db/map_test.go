package db

import (
	"context"
	"fmt"
	"github.com/infinispan/infinispan-subsystem/internal/cache/db/model"
	"github.com/infinispan/infinispan-subsystem/internal/config"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func newTestMap(t *testing.T, mode config.EvictionMode, shards int) *Map {
	t.Helper()
	cfg := &config.Cache{DB: config.DBCfg{Shards: shards}}
	if mode != "" {
		cfg.Eviction = &config.EvictionCfg{Mode: mode, MaxEntries: 1_000_000}
	}
	cfg.AdjustConfig()
	return NewMap(context.Background(), cfg)
}

func entry(key, val string) *model.Entry {
	return model.NewEntry(model.NewKey(key), []byte(val), -1, -1)
}

// TestMap_SetGetRemove verifies the basic contract and counters.
func TestMap_SetGetRemove(t *testing.T) {
	m := newTestMap(t, "", 8)

	require.Nil(t, m.Set(entry("a", "1")))
	require.Nil(t, m.Set(entry("b", "2")))
	require.Equal(t, int64(2), m.Len())
	require.Greater(t, m.Mem(), int64(0))

	e, ok := m.Get(model.NewKey("a"))
	require.True(t, ok)
	require.Equal(t, []byte("1"), e.Value())

	old := m.Set(entry("a", "3"))
	require.NotNil(t, old)
	require.Equal(t, []byte("1"), old.Value())
	require.Equal(t, int64(2), m.Len())

	removed, ok := m.Remove(model.NewKey("a"))
	require.True(t, ok)
	require.Equal(t, []byte("3"), removed.Value())
	_, ok = m.Remove(model.NewKey("a"))
	require.False(t, ok)
	require.Equal(t, int64(1), m.Len())
}

// TestMap_Clear drops everything and resets counters.
func TestMap_Clear(t *testing.T) {
	m := newTestMap(t, config.EvictionModeLRU, 4)
	for i := 0; i < 100; i++ {
		m.Set(entry(fmt.Sprint(i), "v"))
	}
	require.Equal(t, int64(100), m.Clear())
	require.Zero(t, m.Len())
	require.Zero(t, m.Mem())
}

// TestMap_RemoveIf only removes the exact entry instance.
func TestMap_RemoveIf(t *testing.T) {
	m := newTestMap(t, "", 4)
	first := entry("k", "1")
	m.Set(first)
	m.Set(entry("k", "2"))
	require.False(t, m.RemoveIf(first))
	cur, _ := m.Get(model.NewKey("k"))
	require.True(t, m.RemoveIf(cur))
	require.Zero(t, m.Len())
}

// TestMap_EvictLRU evicts the least recently used entry of a single shard.
func TestMap_EvictLRU(t *testing.T) {
	m := newTestMap(t, config.EvictionModeLRU, 1)
	m.Set(entry("a", "1"))
	m.Set(entry("b", "2"))
	m.Set(entry("c", "3"))
	m.Touch(model.NewKey("a").Value())

	var evicted []string
	n := m.EvictUntilWithinLimit(2, 16, func(e *model.Entry) { evicted = append(evicted, e.Key().String()) })
	require.Equal(t, int64(1), n)
	require.Equal(t, []string{"b"}, evicted)
	_, ok := m.Get(model.NewKey("a"))
	require.True(t, ok)
}

// TestMap_EvictFIFO ignores reads when choosing victims.
func TestMap_EvictFIFO(t *testing.T) {
	m := newTestMap(t, config.EvictionModeFIFO, 1)
	m.Set(entry("a", "1"))
	m.Set(entry("b", "2"))
	m.Touch(model.NewKey("a").Value())

	var evicted []string
	m.EvictUntilWithinLimit(1, 16, func(e *model.Entry) { evicted = append(evicted, e.Key().String()) })
	require.Equal(t, []string{"a"}, evicted)
}

// TestMap_EvictSampling brings the map down to the limit.
func TestMap_EvictSampling(t *testing.T) {
	m := newTestMap(t, config.EvictionModeSampling, 4)
	for i := 0; i < 50; i++ {
		m.Set(entry(fmt.Sprint(i), "v"))
	}
	m.EvictUntilWithinLimit(10, 10_000, nil)
	require.Equal(t, int64(10), m.Len())
}

// TestMap_PurgeExpired removes expired entries only.
func TestMap_PurgeExpired(t *testing.T) {
	m := newTestMap(t, "", 4)
	m.Set(model.NewEntry(model.NewKey("short"), nil, int64(time.Millisecond), -1))
	m.Set(entry("immortal", "v"))

	var purged []string
	n := m.PurgeExpired(context.Background(), time.Now().Add(time.Hour).UnixNano(), func(e *model.Entry) {
		purged = append(purged, e.Key().String())
	})
	require.Equal(t, int64(1), n)
	require.Equal(t, []string{"short"}, purged)
	require.Equal(t, int64(1), m.Len())
}

// TestMap_NextExpired returns queued entries that are still expired.
func TestMap_NextExpired(t *testing.T) {
	m := newTestMap(t, "", 4)
	e := model.NewEntry(model.NewKey("k"), nil, int64(time.Millisecond), -1)
	m.Set(e)
	require.True(t, m.EnqueueExpired(e))
	require.False(t, m.EnqueueExpired(e), "already queued")

	got, ok := m.NextExpired(time.Now().Add(time.Hour).UnixNano())
	require.True(t, ok)
	require.Same(t, e, got)

	_, ok = m.NextExpired(time.Now().Add(time.Hour).UnixNano())
	require.False(t, ok)
}

// TestMap_WalkShardsConcurrent visits every shard once.
func TestMap_WalkShardsConcurrent(t *testing.T) {
	m := newTestMap(t, "", 16)
	seen := make(chan uint64, 16)
	m.WalkShardsConcurrent(context.Background(), 4, func(sh *Shard) { seen <- sh.ID() })
	close(seen)
	ids := map[uint64]bool{}
	for id := range seen {
		ids[id] = true
	}
	require.Len(t, ids, 16)
}
