package embedded

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/infinispan/infinispan-subsystem/internal/configuration"
	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

func newTestManager(t *testing.T, global configuration.GlobalConfiguration) *CacheManager {
	t.Helper()
	if global.CacheManagerName == "" {
		global.CacheManagerName = "test"
	}
	m := NewCacheManager(global, Options{
		NodeName: "node1",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, m.Start(context.Background()))
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m
}

func localConfiguration() configuration.Configuration {
	return configuration.Configuration{
		Statistics: true,
		Clustering: configuration.Clustering{CacheMode: schema.CacheModeLocal},
	}
}

// TestCacheManager_Lifecycle verifies caches start on demand and stop with the manager.
func TestCacheManager_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, configuration.GlobalConfiguration{})
	require.Equal(t, StatusRunning, m.Status())
	require.Contains(t, m.Address(), "node1-")
	require.Equal(t, []string{m.Address()}, m.Members())

	m.DefineConfiguration("a", localConfiguration())
	require.Equal(t, []string{"a"}, m.DefinedCacheNames())
	require.Empty(t, m.RunningCacheNames())

	c, err := m.GetCache(ctx, "a")
	require.NoError(t, err)
	require.True(t, m.IsRunning("a"))
	require.Equal(t, []string{"a"}, m.RunningCacheNames())

	require.NoError(t, c.Put("k", []byte("v")))
	v, ok, err := c.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)

	require.ErrorIs(t, m.UndefineConfiguration("a"), ErrCacheRunning)

	require.NoError(t, m.Stop(ctx))
	require.Equal(t, StatusTerminated, m.Status())
	require.Equal(t, StatusTerminated, c.Status())

	_, _, err = c.Get("k")
	require.ErrorIs(t, err, ErrNotRunning)
	_, err = m.GetCache(ctx, "a")
	require.ErrorIs(t, err, ErrNotRunning)
}

// TestCacheManager_UndefinedCache verifies a cache needs a configuration before it can start.
func TestCacheManager_UndefinedCache(t *testing.T) {
	m := newTestManager(t, configuration.GlobalConfiguration{})
	_, err := m.GetCache(context.Background(), "missing")
	require.ErrorIs(t, err, ErrUndefinedCache)
}

// TestCacheManager_TemplatesAreNotCaches verifies templates are not listed as cache names.
func TestCacheManager_TemplatesAreNotCaches(t *testing.T) {
	m := newTestManager(t, configuration.GlobalConfiguration{})
	tmpl := localConfiguration()
	tmpl.Template = true
	m.DefineConfiguration("tmpl", tmpl)
	m.DefineConfiguration("a", localConfiguration())
	require.Equal(t, []string{"a"}, m.DefinedCacheNames())
}

// TestCacheManager_InvalidGlobal verifies start fails on an invalid global configuration.
func TestCacheManager_InvalidGlobal(t *testing.T) {
	m := NewCacheManager(configuration.GlobalConfiguration{}, Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.Error(t, m.Start(context.Background()))
	require.Equal(t, StatusFailed, m.Status())
}

// TestCacheManager_BuiltinTasks verifies the tasks every container registers.
func TestCacheManager_BuiltinTasks(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, configuration.GlobalConfiguration{})
	m.DefineConfiguration("a", localConfiguration())

	res, err := m.Tasks().Execute(ctx, "cache-names", "", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, res)

	_, err = m.Tasks().Execute(ctx, "purge-expired", "", nil)
	require.Error(t, err)
	res, err = m.Tasks().Execute(ctx, "purge-expired", "a", nil)
	require.NoError(t, err)
	require.Equal(t, int64(0), res)

	events := m.Events().Read(EventFilter{Category: CategoryTasks})
	require.Len(t, events, 3)
	require.Equal(t, LevelInfo, events[0].Level)
	require.Equal(t, LevelError, events[1].Level)
	require.Equal(t, LevelInfo, events[2].Level)
}

// TestCacheManager_Sites verifies container site operations aggregate the caches backing up to a site.
func TestCacheManager_Sites(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, configuration.GlobalConfiguration{})
	cfg := localConfiguration()
	cfg.Sites.Backups = []configuration.Backup{{Site: "NYC", Enabled: true}}
	m.DefineConfiguration("a", cfg)
	m.DefineConfiguration("b", cfg)
	a, err := m.GetCache(ctx, "a")
	require.NoError(t, err)
	_, err = m.GetCache(ctx, "b")
	require.NoError(t, err)

	st, err := m.SiteStatus("NYC")
	require.NoError(t, err)
	require.Equal(t, SiteOnline, st)

	_, err = a.XSite().TakeSiteOffline("NYC")
	require.NoError(t, err)
	st, err = m.SiteStatus("NYC")
	require.NoError(t, err)
	require.Equal(t, SiteMixed, st)
	require.Equal(t, map[string]SiteStatus{"NYC": SiteMixed}, m.SitesView())

	res, err := m.TakeSiteOffline("NYC")
	require.NoError(t, err)
	require.Equal(t, "ok", res)
	st, err = m.SiteStatus("NYC")
	require.NoError(t, err)
	require.Equal(t, SiteOffline, st)

	_, err = m.PushState("NYC")
	require.Error(t, err)

	_, err = m.BringSiteOnline("NYC")
	require.NoError(t, err)
	_, err = m.PushState("NYC")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a/NYC": PushOK, "b/NYC": PushOK}, m.PushStateStatus())
	require.Equal(t, "ok", m.ClearPushStateStatus())
	require.Empty(t, m.PushStateStatus())

	_, err = m.SiteStatus("LON")
	require.ErrorIs(t, err, ErrUnknownSite)
}

// TestCacheManager_Rebalancing verifies the toggle reaches running caches.
func TestCacheManager_Rebalancing(t *testing.T) {
	m := newTestManager(t, configuration.GlobalConfiguration{})
	m.DefineConfiguration("a", localConfiguration())
	c, err := m.GetCache(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, m.IsRebalancing())

	m.SetRebalancing(false)
	require.False(t, m.IsRebalancing())
	require.False(t, c.IsRebalancing())
}
