package embedded

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/infinispan/infinispan-subsystem/internal/configuration"
	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

func startCache(t *testing.T, m *CacheManager, name string, cfg configuration.Configuration) *Cache {
	t.Helper()
	m.DefineConfiguration(name, cfg)
	c, err := m.GetCache(context.Background(), name)
	require.NoError(t, err)
	return c
}

// TestCache_Stats verifies the statistics snapshot and its reset groups.
func TestCache_Stats(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, configuration.GlobalConfiguration{})
	c := startCache(t, m, "a", localConfiguration())

	require.NoError(t, c.Put("k1", []byte("v1")))
	require.NoError(t, c.Put("k2", []byte("v2")))
	_, ok, err := c.Get("k1")
	require.NoError(t, err)
	require.True(t, ok)
	_, ok, err = c.Get("nope")
	require.NoError(t, err)
	require.False(t, ok)
	removed, err := c.Remove("k2")
	require.NoError(t, err)
	require.True(t, removed)

	s, err := c.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, StatusRunning, s.Status)
	require.Equal(t, int64(1), s.Hits)
	require.Equal(t, int64(1), s.Misses)
	require.Equal(t, int64(2), s.Stores)
	require.Equal(t, int64(1), s.RemoveHits)
	require.Equal(t, int64(1), s.Entries)
	require.Equal(t, int64(1), s.EntriesInMemory)
	require.InDelta(t, 0.5, s.HitRatio(), 0.0001)
	require.InDelta(t, 1.0, s.ReadWriteRatio(), 0.0001)
	require.Zero(t, s.LoaderStores)
	require.Zero(t, s.Invalidations)

	require.NoError(t, c.ResetStatistics(StatsCache))
	s, err = c.Stats(ctx)
	require.NoError(t, err)
	require.Zero(t, s.Hits)
	require.Zero(t, s.Stores)
	require.Equal(t, int64(1), s.Entries)

	require.Error(t, c.ResetStatistics("bogus"))
}

// TestCache_Invalidations verifies writes to an invalidation cache are counted.
func TestCache_Invalidations(t *testing.T) {
	m := newTestManager(t, configuration.GlobalConfiguration{})
	cfg := localConfiguration()
	cfg.Clustering.CacheMode = schema.CacheModeInvalidationSync
	c := startCache(t, m, "inv", cfg)

	require.NoError(t, c.Put("k", []byte("v")))
	_, err := c.Remove("k")
	require.NoError(t, err)

	s, err := c.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), s.Invalidations)

	require.NoError(t, c.ResetStatistics(StatsInvalidation))
	s, err = c.Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, s.Invalidations)
}

// TestCache_Transactions verifies commit, rollback and in doubt recovery.
func TestCache_Transactions(t *testing.T) {
	m := newTestManager(t, configuration.GlobalConfiguration{})

	plain := startCache(t, m, "plain", localConfiguration())
	_, err := plain.Begin()
	require.ErrorIs(t, err, ErrNotTransactional)

	cfg := localConfiguration()
	cfg.Transaction.Transactional = true
	c := startCache(t, m, "tx", cfg)

	tx, err := c.Begin()
	require.NoError(t, err)
	tx.Put("a", []byte("1"))
	require.NoError(t, tx.Commit())
	v, ok, err := c.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)

	tx, err = c.Begin()
	require.NoError(t, err)
	tx.Remove("a")
	require.NoError(t, tx.Rollback())
	_, ok, err = c.Get("a")
	require.NoError(t, err)
	require.True(t, ok)

	tx, err = c.Begin()
	require.NoError(t, err)
	tx.Put("b", []byte("2"))
	require.NoError(t, tx.Prepare())

	inDoubt := c.Transactions().InDoubt()
	require.Len(t, inDoubt, 1)
	require.Equal(t, tx.InternalID(), inDoubt[0].InternalID)
	require.Equal(t, TxPrepared, inDoubt[0].Status)

	_, err = c.Transactions().ForceCommit(999)
	require.ErrorIs(t, err, ErrTransactionUnknown)
	msg, err := c.Transactions().ForceCommit(tx.InternalID())
	require.NoError(t, err)
	require.Equal(t, "Commit successful!", msg)
	require.Empty(t, c.Transactions().InDoubt())
	_, ok, err = c.Get("b")
	require.NoError(t, err)
	require.True(t, ok)

	s, err := c.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), s.Commits)
	require.Equal(t, int64(2), s.Prepares)
	require.Equal(t, int64(1), s.Rollbacks)

	require.NoError(t, c.ResetStatistics(StatsTransaction))
	commits, _, _ := c.Transactions().Counters()
	require.Zero(t, commits)
}

// TestCache_CommitAfterStop verifies a commit reports the writes it could not apply.
func TestCache_CommitAfterStop(t *testing.T) {
	m := newTestManager(t, configuration.GlobalConfiguration{})
	cfg := localConfiguration()
	cfg.Transaction.Transactional = true
	c := startCache(t, m, "tx", cfg)

	tx, err := c.Begin()
	require.NoError(t, err)
	tx.Put("a", []byte("1"))
	require.NoError(t, c.Stop(context.Background()))

	err = tx.Commit()
	require.ErrorIs(t, err, ErrNotRunning)
	require.ErrorContains(t, err, "commit transaction")
}

// TestCache_FileStoreSurvivesRestart verifies write through entries are read back after a restart.
func TestCache_FileStoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, configuration.GlobalConfiguration{})
	cfg := localConfiguration()
	cfg.Persistence.Stores = []configuration.Store{{
		Kind: configuration.KindFile,
		File: &configuration.FileStore{Location: t.TempDir(), MaxEntries: -1},
	}}
	c := startCache(t, m, "stored", cfg)

	require.NoError(t, c.Put("k", []byte("v")))
	require.NoError(t, c.Flush(ctx))
	s, err := c.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), s.LoaderStores)

	require.NoError(t, c.Stop(ctx))
	require.Equal(t, StatusTerminated, c.Status())

	c, err = m.GetCache(ctx, "stored")
	require.NoError(t, err)
	v, ok, err := c.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)

	s, err = c.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), s.LoaderLoads)
}

// TestCache_FlushWithoutStore verifies flushing needs a store.
func TestCache_FlushWithoutStore(t *testing.T) {
	m := newTestManager(t, configuration.GlobalConfiguration{})
	c := startCache(t, m, "a", localConfiguration())
	require.Error(t, c.Flush(context.Background()))
}

// TestCache_ConfiguredExpiration verifies Put applies the configured lifespan.
func TestCache_ConfiguredExpiration(t *testing.T) {
	m := newTestManager(t, configuration.GlobalConfiguration{})
	cfg := localConfiguration()
	cfg.Expiration.Lifespan = 20 * time.Millisecond
	c := startCache(t, m, "exp", cfg)

	require.NoError(t, c.Put("k", []byte("v")))
	require.Eventually(t, func() bool {
		_, ok, err := c.Get("k")
		return err == nil && !ok
	}, time.Second, 10*time.Millisecond)
}

// TestCache_Reindex verifies reindexing needs indexing.
func TestCache_Reindex(t *testing.T) {
	m := newTestManager(t, configuration.GlobalConfiguration{})
	plain := localConfiguration()
	plain.Indexing.Index = schema.IndexNone
	c := startCache(t, m, "plain", plain)
	_, err := c.Reindex(context.Background())
	require.Error(t, err)

	indexed := localConfiguration()
	indexed.Indexing.Index = schema.IndexLocal
	c = startCache(t, m, "indexed", indexed)
	require.NoError(t, c.Put("k", []byte("v")))
	n, err := c.Reindex(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
