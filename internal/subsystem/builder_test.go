package subsystem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/infinispan/infinispan-subsystem/internal/configuration"
	"github.com/infinispan/infinispan-subsystem/internal/model"
	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

func newTestModel(t *testing.T, container string) *model.Model {
	t.Helper()
	m := model.NewModel()
	for _, addr := range []model.PathAddress{schema.SubsystemAddress, containerAddress(container), configurationsAddress(container)} {
		_, err := m.Create(addr)
		require.NoError(t, err)
	}
	return m
}

// addResource creates addr with the given attributes.
func addResource(t *testing.T, m *model.Model, addr model.PathAddress, attrs map[string]model.Value) {
	t.Helper()
	r, err := m.Create(addr)
	require.NoError(t, err)
	for k, v := range attrs {
		r.Set(k, v)
	}
}

func newTestBuilder(t *testing.T) *ModelConfigurationBuilder {
	t.Helper()
	d, err := configuration.EmbeddedDefaults()
	require.NoError(t, err)
	return NewModelConfigurationBuilder(schema.NopResolver{}, d)
}

// TestModelConfigurationBuilder_Modes verifies the cache mode follows the cache type and the
// declared synchrony.
func TestModelConfigurationBuilder_Modes(t *testing.T) {
	tests := []struct {
		cacheType string
		mode      string
		want      schema.CacheMode
	}{
		{schema.LocalCache, "", schema.CacheModeLocal},
		{schema.ReplicatedCache, "", schema.CacheModeReplSync},
		{schema.ReplicatedCache, "ASYNC", schema.CacheModeReplAsync},
		{schema.DistributedCache, "SYNC", schema.CacheModeDistSync},
		{schema.DistributedCache, "ASYNC", schema.CacheModeDistAsync},
		{schema.InvalidationCache, "ASYNC", schema.CacheModeInvalidationAsync},
	}
	for _, tt := range tests {
		t.Run(tt.cacheType+"/"+tt.mode, func(t *testing.T) {
			m := newTestModel(t, "c")
			attrs := map[string]model.Value{}
			if tt.mode != "" {
				attrs[schema.ModeKey] = model.StringValue(tt.mode)
			}
			addResource(t, m, configurationAddress("c", tt.cacheType, "cfg"), attrs)

			p, err := newTestBuilder(t).Build(m, "c", tt.cacheType, "cfg")
			require.NoError(t, err)
			cfg, err := p.Builder.Build()
			require.NoError(t, err)
			require.Equal(t, tt.want, cfg.Clustering.CacheMode)
			require.False(t, cfg.Template)
		})
	}
}

// TestModelConfigurationBuilder_Distributed verifies hash and L1 settings of a distributed cache.
func TestModelConfigurationBuilder_Distributed(t *testing.T) {
	m := newTestModel(t, "c")
	addResource(t, m, configurationAddress("c", schema.DistributedCache, "dist"), map[string]model.Value{
		schema.Owners:     model.IntValue(3),
		schema.Segments:   model.IntValue(64),
		schema.L1Lifespan: model.LongValue(1000),
	})

	p, err := newTestBuilder(t).Build(m, "c", schema.DistributedCache, "dist")
	require.NoError(t, err)
	cfg, err := p.Builder.Build()
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Clustering.Hash.NumOwners)
	require.Equal(t, 64, cfg.Clustering.Hash.NumSegments)
	require.True(t, cfg.Clustering.L1.Enabled)
	require.Equal(t, time.Second, cfg.Clustering.L1.Lifespan)
}

// TestModelConfigurationBuilder_Transaction verifies the transaction modes map onto the
// transactional flags.
func TestModelConfigurationBuilder_Transaction(t *testing.T) {
	tests := []struct {
		mode            string
		sync, recovery  bool
		batching, hasTM bool
	}{
		{mode: "NON_XA", sync: true},
		{mode: "FULL_XA", recovery: true},
		{mode: "BATCH", sync: true, batching: true, hasTM: true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			m := newTestModel(t, "c")
			cfgAddr := configurationAddress("c", schema.LocalCache, "tx")
			addResource(t, m, cfgAddr, nil)
			addResource(t, m, cfgAddr.Append(model.Element(schema.TransactionKey, schema.TransactionName)), map[string]model.Value{
				schema.ModeKey: model.StringValue(tt.mode),
			})

			p, err := newTestBuilder(t).Build(m, "c", schema.LocalCache, "tx")
			require.NoError(t, err)
			tx := p.Builder.Transaction()
			require.True(t, tx.Transactional)
			require.Equal(t, tt.sync, tx.UseSynchronization)
			require.Equal(t, tt.recovery, tx.Recovery)
			require.Equal(t, tt.hasTM, tx.Manager != nil)
			cfg, err := p.Builder.Build()
			require.NoError(t, err)
			require.Equal(t, tt.batching, cfg.InvocationBatching)
		})
	}
}

// TestModelConfigurationBuilder_Templates verifies configurations inherit from their template
// chain and record a dependency per template.
func TestModelConfigurationBuilder_Templates(t *testing.T) {
	m := newTestModel(t, "c")
	addResource(t, m, configurationAddress("c", schema.LocalCache, "base"), map[string]model.Value{
		schema.Statistics: model.BoolValue(false),
	})
	addResource(t, m, configurationAddress("c", schema.LocalCache, "middle"), map[string]model.Value{
		schema.Configuration: model.StringValue("base"),
	})
	addResource(t, m, configurationAddress("c", schema.LocalCache, "leaf"), map[string]model.Value{
		schema.Configuration: model.StringValue("middle"),
		schema.SimpleCache:   model.BoolValue(true),
	})

	b := newTestBuilder(t)
	p, err := b.Build(m, "c", schema.LocalCache, "leaf")
	require.NoError(t, err)
	require.Equal(t, []string{"middle", "base"}, p.Templates)
	require.Len(t, p.Dependencies, 2)
	require.True(t, p.Dependencies[0].Name.Equal(TemplateServiceName("c", "middle")))

	cfg, err := p.Builder.Build()
	require.NoError(t, err)
	require.False(t, cfg.Statistics)
	require.True(t, cfg.SimpleCache)
}

// TestModelConfigurationBuilder_TemplateCycle verifies a template cycle is rejected.
func TestModelConfigurationBuilder_TemplateCycle(t *testing.T) {
	m := newTestModel(t, "c")
	addResource(t, m, configurationAddress("c", schema.LocalCache, "a"), map[string]model.Value{
		schema.Configuration: model.StringValue("b"),
	})
	addResource(t, m, configurationAddress("c", schema.LocalCache, "b"), map[string]model.Value{
		schema.Configuration: model.StringValue("a"),
	})

	_, err := newTestBuilder(t).Templates(m, "c", schema.LocalCache, "a")
	require.ErrorIs(t, err, ErrTemplateCycle)
}

// TestModelConfigurationBuilder_FileStore verifies the file store location is resolved through
// the injected path manager.
func TestModelConfigurationBuilder_FileStore(t *testing.T) {
	m := newTestModel(t, "c")
	cfgAddr := configurationAddress("c", schema.LocalCache, "persistent")
	addResource(t, m, cfgAddr, nil)
	addResource(t, m, cfgAddr.Append(model.Element(schema.FileStore, schema.FileStoreName)), map[string]model.Value{
		schema.Passivation: model.BoolValue(true),
	})

	p, err := newTestBuilder(t).Build(m, "c", schema.LocalCache, "persistent")
	require.NoError(t, err)
	require.True(t, p.Builder.Persistence().Passivation)

	pm := NewPathManager(map[string]string{"jboss.server.data.dir": "/srv/data"})
	injected := false
	for _, d := range p.Dependencies {
		if d.Name.Equal(PathManagerServiceName) {
			require.NoError(t, d.Inject(pm))
			injected = true
		}
	}
	require.True(t, injected)
	require.Equal(t, "/srv/data/infinispan/c", p.Builder.Persistence().Stores[0].File.Location)
}

// TestContainerConfigurationBuilder verifies the global configuration of a container.
func TestContainerConfigurationBuilder(t *testing.T) {
	m := newTestModel(t, "web")
	r, err := m.Read(containerAddress("web"))
	require.NoError(t, err)
	r.Set(schema.DefaultCache, model.StringValue("sessions"))
	r.Set(schema.Aliases, model.StringList("standard"))
	r.Set(schema.Start, model.StringValue("EAGER"))
	addResource(t, m, containerAddress("web").Append(model.Element(schema.Transport, schema.TransportName)), map[string]model.Value{
		schema.LockTimeout: model.LongValue(5000),
	})

	p, err := NewContainerConfigurationBuilder(schema.NopResolver{}).Build(m, "web")
	require.NoError(t, err)
	require.Equal(t, "web", p.Global.CacheManagerName)
	require.Equal(t, "sessions", p.Global.DefaultCacheName)
	require.Equal(t, "web", p.Global.Transport.ClusterName)
	require.Equal(t, 5*time.Second, p.Global.Transport.DistributedSyncTimeout)
	require.Equal(t, []string{"standard"}, p.Aliases)
	require.Equal(t, schema.StartEager, p.Start)
	require.NoError(t, p.Global.Validate())
}
