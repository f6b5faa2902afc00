package subsystem

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	appconfig "github.com/infinispan/infinispan-subsystem/config"
	"github.com/infinispan/infinispan-subsystem/internal/embedded"
	"github.com/infinispan/infinispan-subsystem/internal/model"
	"github.com/infinispan/infinispan-subsystem/internal/msc"
	"github.com/infinispan/infinispan-subsystem/internal/naming"
	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

type testServer struct {
	ctl      *Controller
	services *msc.Container
	store    *naming.Registry

	mu     sync.Mutex
	events []msc.Event
}

func (s *testServer) removed() []msc.ServiceName {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []msc.ServiceName
	for _, e := range s.events {
		if e.Type == msc.EventRemoved {
			out = append(out, e.Name)
		}
	}
	return out
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	cfg := &appconfig.Config{Server: appconfig.Server{NodeName: "node1", BaseDir: t.TempDir()}}
	cfg.AdjustConfig()

	s := &testServer{services: msc.NewContainer(zerolog.Nop())}
	s.services.AddListener(func(e msc.Event) {
		s.mu.Lock()
		s.events = append(s.events, e)
		s.mu.Unlock()
	})
	store, err := InstallPlatform(ctx, s.services, cfg)
	require.NoError(t, err)
	s.store = store

	s.ctl, err = NewController(s.services, Options{
		Logger:   zerolog.Nop(),
		Resolver: schema.NewPropertyResolver(cfg.ResolverProperties()),
		Embedded: embedded.Options{
			NodeName:    "node1",
			Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
			StoreLogger: zerolog.Nop(),
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.ctl.Shutdown(context.Background()) })
	return s
}

// bootOps declares container "local" with an eager default cache "users" and a lazy cache "lazy".
func bootOps() []model.Operation {
	return []model.Operation{
		model.NewOperation(model.OpAdd, schema.SubsystemAddress),
		model.NewOperation(model.OpAdd, containerAddress("local")).
			With(schema.DefaultCache, model.StringValue("users")),
		model.NewOperation(model.OpAdd, configurationsAddress("local")),
		model.NewOperation(model.OpAdd, configurationAddress("local", schema.LocalCache, "eager")).
			With(schema.Start, model.StringValue("EAGER")),
		model.NewOperation(model.OpAdd, configurationAddress("local", schema.LocalCache, "on-demand")),
		model.NewOperation(model.OpAdd, cacheAddress("local", schema.LocalCache, "users")).
			With(schema.Configuration, model.StringValue("eager")),
		model.NewOperation(model.OpAdd, cacheAddress("local", schema.LocalCache, "lazy")).
			With(schema.Configuration, model.StringValue("on-demand")),
	}
}

func bootTestServer(t *testing.T) *testServer {
	t.Helper()
	s := newTestServer(t)
	require.NoError(t, s.ctl.Boot(context.Background(), bootOps()))
	return s
}

func (s *testServer) runningCache(t *testing.T, name string) *embedded.Cache {
	t.Helper()
	v, err := s.services.Value(CacheServiceName("local", name))
	require.NoError(t, err)
	ec, ok := v.(*embedded.Cache)
	require.True(t, ok)
	return ec
}

func readAttribute(addr model.PathAddress, name string) model.Operation {
	return model.NewOperation(model.OpReadAttribute, addr).With(schema.Name, model.StringValue(name))
}

// TestController_Boot verifies boot installs the services of the model and binds the eager
// cache under its JNDI name.
func TestController_Boot(t *testing.T) {
	s := bootTestServer(t)

	ec := s.runningCache(t, "users")
	require.Equal(t, embedded.StatusRunning, ec.Status())

	bound, err := s.store.Lookup(naming.CacheName("", "local", "users"))
	require.NoError(t, err)
	require.Same(t, ec, bound)

	alias, ok := s.services.Service(CacheServiceName("local", DefaultCacheAlias))
	require.True(t, ok)
	require.True(t, alias.Name().Equal(CacheServiceName("local", "users")))

	lazy, ok := s.services.Service(CacheServiceName("local", "lazy"))
	require.True(t, ok)
	require.Equal(t, msc.StateDown, lazy.State())

	require.ErrorIs(t, s.ctl.Boot(context.Background(), nil), ErrAlreadyBooted)
}

// TestController_BootRejectsInvalidOperation verifies a failing boot operation aborts the boot.
func TestController_BootRejectsInvalidOperation(t *testing.T) {
	s := newTestServer(t)
	ops := append(bootOps(), model.NewOperation(model.OpAdd, cacheAddress("local", schema.LocalCache, "orphan")).
		With(schema.Configuration, model.StringValue("missing")))
	err := s.ctl.Boot(context.Background(), ops)
	require.ErrorIs(t, err, model.ErrNotFound)
}

// TestController_RemoveCache verifies the binder, cache and configuration services are removed
// in that order.
func TestController_RemoveCache(t *testing.T) {
	s := bootTestServer(t)

	res := s.ctl.Execute(context.Background(), model.NewOperation(model.OpRemove, cacheAddress("local", schema.LocalCache, "users")))
	require.False(t, res.Failed(), res.FailureDescription)

	removed := s.removed()
	require.Len(t, removed, 3)
	require.True(t, removed[0].Equal(naming.BinderServiceName(naming.CacheName("", "local", "users"))))
	require.True(t, removed[1].Equal(CacheServiceName("local", "users")))
	require.True(t, removed[2].Equal(CacheConfigurationServiceName("local", "users")))

	_, err := s.store.Lookup(naming.CacheName("", "local", "users"))
	require.Error(t, err)
	require.False(t, s.ctl.model.Exists(cacheAddress("local", schema.LocalCache, "users")))
}

// TestController_AddCacheAtRuntime verifies a cache added after boot is started right away.
func TestController_AddCacheAtRuntime(t *testing.T) {
	s := bootTestServer(t)

	res := s.ctl.Execute(context.Background(), model.NewOperation(model.OpAdd, cacheAddress("local", schema.LocalCache, "orders")).
		With(schema.Configuration, model.StringValue("eager")))
	require.False(t, res.Failed(), res.FailureDescription)
	require.Equal(t, embedded.StatusRunning, s.runningCache(t, "orders").Status())
}

// TestController_FailedOperationRestoresModel verifies a rejected change leaves the model as it was.
func TestController_FailedOperationRestoresModel(t *testing.T) {
	s := bootTestServer(t)
	ctx := context.Background()
	addr := cacheAddress("local", schema.LocalCache, "users")

	res := s.ctl.Execute(ctx, model.NewOperation(model.OpWriteAttribute, addr).
		With(schema.Name, model.StringValue(schema.Configuration)).
		With(schema.Value, model.StringValue("missing")))
	require.True(t, res.Failed())
	require.Contains(t, res.FailureDescription, "missing")

	res = s.ctl.Execute(ctx, readAttribute(addr, schema.Configuration))
	require.False(t, res.Failed())
	require.Equal(t, "eager", res.Result.AsString())

	res = s.ctl.Execute(ctx, model.NewOperation(model.OpAdd, cacheAddress("local", schema.ReplicatedCache, "users")).
		With(schema.Configuration, model.StringValue("eager")))
	require.True(t, res.Failed())
	require.False(t, s.ctl.model.Exists(cacheAddress("local", schema.ReplicatedCache, "users")))
}

// TestController_RemoveConfigurationInUse verifies a configuration used by a cache is kept.
func TestController_RemoveConfigurationInUse(t *testing.T) {
	s := bootTestServer(t)

	res := s.ctl.Execute(context.Background(), model.NewOperation(model.OpRemove, configurationAddress("local", schema.LocalCache, "eager")))
	require.True(t, res.Failed())
	require.Contains(t, res.FailureDescription, "users")
	require.True(t, s.ctl.model.Exists(configurationAddress("local", schema.LocalCache, "eager")))
}

// TestController_WriteAttributeRestartsCache verifies a configuration change reinstalls the caches
// using it.
func TestController_WriteAttributeRestartsCache(t *testing.T) {
	s := bootTestServer(t)
	before := s.runningCache(t, "users")
	require.True(t, before.Configuration().Statistics)

	res := s.ctl.Execute(context.Background(), model.NewOperation(model.OpWriteAttribute, configurationAddress("local", schema.LocalCache, "eager")).
		With(schema.Name, model.StringValue(schema.Statistics)).
		With(schema.Value, model.BoolValue(false)))
	require.False(t, res.Failed(), res.FailureDescription)
	require.Nil(t, res.ResponseHeaders)

	after := s.runningCache(t, "users")
	require.NotSame(t, before, after)
	require.False(t, after.Configuration().Statistics)
}

// TestController_WriteAttributeReload verifies a reload-required change is flagged until reload.
func TestController_WriteAttributeReload(t *testing.T) {
	s := bootTestServer(t)
	ctx := context.Background()

	res := s.ctl.Execute(ctx, model.NewOperation(model.OpWriteAttribute, containerAddress("local")).
		With(schema.Name, model.StringValue(schema.Statistics)).
		With(schema.Value, model.BoolValue(false)))
	require.False(t, res.Failed(), res.FailureDescription)
	require.Equal(t, true, res.ResponseHeaders["operation-requires-reload"])
	require.True(t, s.ctl.ReloadRequired())

	res = s.ctl.Execute(ctx, model.NewOperation(model.OpReload, schema.SubsystemAddress))
	require.False(t, res.Failed(), res.FailureDescription)
	require.False(t, s.ctl.ReloadRequired())
	require.Equal(t, embedded.StatusRunning, s.runningCache(t, "users").Status())
}

// TestController_WriteAttributeRejected verifies unknown and runtime attributes cannot be written.
func TestController_WriteAttributeRejected(t *testing.T) {
	s := bootTestServer(t)
	ctx := context.Background()

	res := s.ctl.Execute(ctx, model.NewOperation(model.OpWriteAttribute, containerAddress("local")).
		With(schema.Name, model.StringValue("bogus")).
		With(schema.Value, model.StringValue("x")))
	require.True(t, res.Failed())
	require.Contains(t, res.FailureDescription, "unknown attribute bogus")

	res = s.ctl.Execute(ctx, model.NewOperation(model.OpWriteAttribute, containerAddress("local")).
		With(schema.Name, model.StringValue(schema.Start)).
		With(schema.Value, model.StringValue("SOMETIMES")))
	require.True(t, res.Failed())
}

// TestController_Aliases verifies add-alias and remove-alias rewrite the aliases and the
// container is reachable under the alias.
func TestController_Aliases(t *testing.T) {
	s := bootTestServer(t)
	ctx := context.Background()
	addr := containerAddress("local")

	res := s.ctl.Execute(ctx, model.NewOperation(OpAddAlias, addr).With(schema.Name, model.StringValue("standard")))
	require.False(t, res.Failed(), res.FailureDescription)
	res = s.ctl.Execute(ctx, readAttribute(addr, schema.Aliases))
	require.Equal(t, []string{"standard"}, res.Result.AsStrings())
	ctl, ok := s.services.Service(ContainerServiceName("standard"))
	require.True(t, ok)
	require.True(t, ctl.Name().Equal(ContainerServiceName("local")))

	res = s.ctl.Execute(ctx, model.NewOperation(OpRemoveAlias, addr).With(schema.Name, model.StringValue("standard")))
	require.False(t, res.Failed(), res.FailureDescription)
	_, ok = s.services.Service(ContainerServiceName("standard"))
	require.False(t, ok)
}

// TestController_ExpirationAfterContainerRestart verifies entries still expire once an alias change
// restarted the container.
func TestController_ExpirationAfterContainerRestart(t *testing.T) {
	s := bootTestServer(t)
	ctx := context.Background()

	res := s.ctl.Execute(ctx, model.NewOperation(OpAddAlias, containerAddress("local")).With(schema.Name, model.StringValue("other")))
	require.False(t, res.Failed(), res.FailureDescription)

	ec := s.runningCache(t, "users")
	require.NoError(t, ec.PutWithExpiration("k", []byte("v"), 30*time.Millisecond, 0))
	require.Eventually(t, func() bool {
		_, ok, err := ec.Get("k")
		return err == nil && !ok
	}, time.Second, 10*time.Millisecond)
}

// TestController_CacheMetrics verifies metric reads and the failures they report.
func TestController_CacheMetrics(t *testing.T) {
	s := bootTestServer(t)
	ctx := context.Background()
	addr := cacheAddress("local", schema.LocalCache, "users")

	ec := s.runningCache(t, "users")
	require.NoError(t, ec.Put("k", []byte("v")))
	_, ok, err := ec.Get("k")
	require.NoError(t, err)
	require.True(t, ok)

	res := s.ctl.Execute(ctx, readAttribute(addr, "hits"))
	require.False(t, res.Failed(), res.FailureDescription)
	hits, err := res.Result.AsLong()
	require.NoError(t, err)
	require.Equal(t, int64(1), hits)

	res = s.ctl.Execute(ctx, readAttribute(addr, "cache-status"))
	require.Equal(t, "RUNNING", res.Result.AsString())

	res = s.ctl.Execute(ctx, readAttribute(addr, "bogus"))
	require.True(t, res.Failed())
	require.Equal(t, "Unknown metric bogus", res.FailureDescription)

	res = s.ctl.Execute(ctx, readAttribute(addr, "replication-count"))
	require.Equal(t, "Unknown metric replication-count", res.FailureDescription)

	res = s.ctl.Execute(ctx, readAttribute(cacheAddress("local", schema.LocalCache, "lazy"), "hits"))
	require.True(t, res.Failed())
	require.Equal(t, "Unavailable cache lazy", res.FailureDescription)
	require.True(t, s.ctl.model.Exists(cacheAddress("local", schema.LocalCache, "lazy")))
}

// TestController_ContainerMetrics verifies container runtime attributes.
func TestController_ContainerMetrics(t *testing.T) {
	s := bootTestServer(t)
	ctx := context.Background()
	addr := containerAddress("local")

	res := s.ctl.Execute(ctx, readAttribute(addr, "cluster-name"))
	require.False(t, res.Failed(), res.FailureDescription)
	require.False(t, res.Result.IsDefined())

	res = s.ctl.Execute(ctx, readAttribute(addr, "defined-cache-names"))
	require.Contains(t, res.Result.AsStrings(), "users")

	res = s.ctl.Execute(ctx, readAttribute(addr, "version"))
	require.Equal(t, embedded.Version, res.Result.AsString())

	res = s.ctl.Execute(ctx, readAttribute(addr, "nope"))
	require.Equal(t, "Unknown metric nope", res.FailureDescription)
}

func clusteredOps() []model.Operation {
	web := containerAddress("web")
	return []model.Operation{
		model.NewOperation(model.OpAdd, schema.SubsystemAddress),
		model.NewOperation(model.OpAdd, web),
		model.NewOperation(model.OpAdd, web.Append(model.Element(schema.Transport, schema.TransportName))),
		model.NewOperation(model.OpAdd, configurationsAddress("web")),
		model.NewOperation(model.OpAdd, configurationAddress("web", schema.ReplicatedCache, "repl")).
			With(schema.Start, model.StringValue("EAGER")),
		model.NewOperation(model.OpAdd, configurationAddress("web", schema.ReplicatedCache, "repl-async")).
			With(schema.Start, model.StringValue("EAGER")).
			With(schema.ModeKey, model.StringValue("ASYNC")),
		model.NewOperation(model.OpAdd, configurationAddress("web", schema.DistributedCache, "dist")).
			With(schema.Start, model.StringValue("EAGER")).
			With(schema.ModeKey, model.StringValue("SYNC")),
		model.NewOperation(model.OpAdd, configurationAddress("web", schema.DistributedCache, "dist-async")).
			With(schema.Start, model.StringValue("EAGER")).
			With(schema.ModeKey, model.StringValue("ASYNC")),
		model.NewOperation(model.OpAdd, configurationAddress("web", schema.InvalidationCache, "inv")).
			With(schema.Start, model.StringValue("EAGER")).
			With(schema.ModeKey, model.StringValue("SYNC")),
		model.NewOperation(model.OpAdd, cacheAddress("web", schema.ReplicatedCache, "repl")).
			With(schema.Configuration, model.StringValue("repl")),
		model.NewOperation(model.OpAdd, cacheAddress("web", schema.ReplicatedCache, "repl-async")).
			With(schema.Configuration, model.StringValue("repl-async")),
		model.NewOperation(model.OpAdd, cacheAddress("web", schema.DistributedCache, "dist")).
			With(schema.Configuration, model.StringValue("dist")),
		model.NewOperation(model.OpAdd, cacheAddress("web", schema.DistributedCache, "dist-async")).
			With(schema.Configuration, model.StringValue("dist-async")),
		model.NewOperation(model.OpAdd, cacheAddress("web", schema.InvalidationCache, "inv")).
			With(schema.Configuration, model.StringValue("inv")),
	}
}

// TestController_ClusteredCaches verifies clustered caches start with the cache mode their type
// and declared synchrony call for.
func TestController_ClusteredCaches(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.ctl.Boot(ctx, clusteredOps()))

	tests := []struct {
		cacheType, name string
		mode            schema.CacheMode
	}{
		{schema.ReplicatedCache, "repl", schema.CacheModeReplSync},
		{schema.ReplicatedCache, "repl-async", schema.CacheModeReplAsync},
		{schema.DistributedCache, "dist", schema.CacheModeDistSync},
		{schema.DistributedCache, "dist-async", schema.CacheModeDistAsync},
		{schema.InvalidationCache, "inv", schema.CacheModeInvalidationSync},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.ctl.Execute(ctx, readAttribute(cacheAddress("web", tt.cacheType, tt.name), "cache-status"))
			require.False(t, res.Failed(), res.FailureDescription)
			require.Equal(t, "RUNNING", res.Result.AsString())

			v, err := s.services.Value(CacheServiceName("web", tt.name))
			require.NoError(t, err)
			ec, ok := v.(*embedded.Cache)
			require.True(t, ok)
			require.Equal(t, tt.mode, ec.Configuration().Clustering.CacheMode)
		})
	}

	res := s.ctl.Execute(ctx, readAttribute(containerAddress("web"), "cluster-name"))
	require.False(t, res.Failed(), res.FailureDescription)
	require.Equal(t, "web", res.Result.AsString())
}

// TestController_ReadResource verifies defaults and runtime values in read-resource.
func TestController_ReadResource(t *testing.T) {
	s := bootTestServer(t)
	ctx := context.Background()

	res := s.ctl.Execute(ctx, model.NewOperation(model.OpReadResource, configurationAddress("local", schema.LocalCache, "eager")))
	require.False(t, res.Failed(), res.FailureDescription)
	require.Equal(t, "EAGER", res.Result.Get(schema.Start).AsString())
	stats, err := res.Result.Get(schema.Statistics).AsBool()
	require.NoError(t, err)
	require.True(t, stats)

	res = s.ctl.Execute(ctx, model.NewOperation(model.OpReadResource, cacheAddress("local", schema.LocalCache, "users")).
		With("include-runtime", model.BoolValue(true)))
	require.False(t, res.Failed(), res.FailureDescription)
	require.Equal(t, "users", res.Result.Get("cache-name").AsString())
	require.True(t, res.Result.Has("hits"))

	res = s.ctl.Execute(ctx, model.NewOperation(model.OpReadResource, schema.SubsystemAddress).
		With("recursive", model.BoolValue(true)))
	require.False(t, res.Failed(), res.FailureDescription)
	container := res.Result.Get(schema.CacheContainer).Get("local")
	require.Equal(t, "users", container.Get(schema.DefaultCache).AsString())
	require.Equal(t, "eager", container.Get(schema.LocalCache).Get("users").Get(schema.Configuration).AsString())

	res = s.ctl.Execute(ctx, model.NewOperation(model.OpReadChildrenNames, containerAddress("local")).
		With("child-type", model.StringValue(schema.LocalCache)))
	require.Equal(t, []string{"users", "lazy"}, res.Result.AsStrings())
}

// TestController_CacheCommands verifies cache commands and the failure of an unavailable cache.
func TestController_CacheCommands(t *testing.T) {
	s := bootTestServer(t)
	ctx := context.Background()
	users := cacheAddress("local", schema.LocalCache, "users")
	lazy := cacheAddress("local", schema.LocalCache, "lazy")

	ec := s.runningCache(t, "users")
	require.NoError(t, ec.Put("k", []byte("v")))
	res := s.ctl.Execute(ctx, model.NewOperation("clear-cache", users))
	require.False(t, res.Failed(), res.FailureDescription)
	n, err := ec.Size(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	res = s.ctl.Execute(ctx, model.NewOperation("clear-cache", lazy))
	require.True(t, res.Failed())
	require.Equal(t, "failed to invoke operation: unavailable cache lazy", res.FailureDescription)

	res = s.ctl.Execute(ctx, model.NewOperation("start-cache", lazy))
	require.False(t, res.Failed(), res.FailureDescription)
	require.Equal(t, embedded.StatusRunning, s.runningCache(t, "lazy").Status())

	res = s.ctl.Execute(ctx, model.NewOperation("tx-force-commit", users))
	require.True(t, res.Failed())
	require.Contains(t, res.FailureDescription, "missing parameter tx-internal-id")

	res = s.ctl.Execute(ctx, model.NewOperation("synchronize-data", users).With(ParamMigratorName, model.StringValue("hotrod")))
	require.True(t, res.Failed())
	require.Contains(t, res.FailureDescription, "no remote store")

	res = s.ctl.Execute(ctx, model.NewOperation("frobnicate", users))
	require.True(t, res.Failed())
	require.Contains(t, res.FailureDescription, "unknown operation frobnicate")
}

// TestController_ContainerCommands verifies task, script and rebalance commands.
func TestController_ContainerCommands(t *testing.T) {
	s := bootTestServer(t)
	ctx := context.Background()
	addr := containerAddress("local")

	res := s.ctl.Execute(ctx, model.NewOperation("task-list", addr))
	require.False(t, res.Failed(), res.FailureDescription)

	res = s.ctl.Execute(ctx, model.NewOperation("script-add", addr).
		With(schema.Name, model.StringValue("hello.js")).
		With(ParamCode, model.StringValue("// mode=local,language=javascript\n'hello'")))
	require.False(t, res.Failed(), res.FailureDescription)
	res = s.ctl.Execute(ctx, model.NewOperation("script-cat", addr).With(schema.Name, model.StringValue("hello.js")))
	require.False(t, res.Failed(), res.FailureDescription)
	require.Contains(t, res.Result.AsString(), "'hello'")
	res = s.ctl.Execute(ctx, model.NewOperation("script-remove", addr).With(schema.Name, model.StringValue("hello.js")))
	require.False(t, res.Failed(), res.FailureDescription)

	res = s.ctl.Execute(ctx, model.NewOperation("cluster-rebalance", addr).With(ParamValue, model.BoolValue(false)))
	require.False(t, res.Failed(), res.FailureDescription)
	res = s.ctl.Execute(ctx, readAttribute(addr, "is-rebalancing"))
	b, err := res.Result.AsBool()
	require.NoError(t, err)
	require.False(t, b)

	res = s.ctl.Execute(ctx, model.NewOperation("read-event-log", addr))
	require.False(t, res.Failed(), res.FailureDescription)
	require.Positive(t, res.Result.Len())
}

// TestController_RemoveSubsystem verifies removing the subsystem removes every service it owns.
func TestController_RemoveSubsystem(t *testing.T) {
	s := bootTestServer(t)

	res := s.ctl.Execute(context.Background(), model.NewOperation(model.OpRemove, schema.SubsystemAddress))
	require.False(t, res.Failed(), res.FailureDescription)
	_, ok := s.services.Service(ContainerServiceName("local"))
	require.False(t, ok)
	_, ok = s.services.Service(CacheServiceName("local", "users"))
	require.False(t, ok)
	require.Empty(t, s.ctl.installed)
}
