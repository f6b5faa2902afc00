package configuration

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

func defaults(t *testing.T) *Defaults {
	t.Helper()
	d, err := EmbeddedDefaults()
	require.NoError(t, err)
	return d
}

// TestEmbeddedDefaults verifies every cache mode has defaults and asynchronous modes inherit from
// their synchronous counterpart.
func TestEmbeddedDefaults(t *testing.T) {
	d := defaults(t)

	local := d.Configuration(schema.CacheModeLocal)
	require.Equal(t, schema.CacheModeLocal, local.Clustering.CacheMode)
	require.True(t, local.Statistics)
	require.Equal(t, 15*time.Second, local.Locking.AcquireTimeout)
	require.Equal(t, schema.EvictionNone, local.Eviction.Strategy)
	require.Equal(t, int64(-1), local.Eviction.MaxEntries)
	require.Equal(t, -time.Millisecond, local.Expiration.Lifespan)
	require.False(t, local.Clustering.StateTransfer.FetchInMemoryState)

	async := d.Configuration(schema.CacheModeReplAsync)
	require.Equal(t, schema.CacheModeReplAsync, async.Clustering.CacheMode)
	require.True(t, async.Clustering.StateTransfer.FetchInMemoryState)
	require.Equal(t, 4*time.Minute, async.Clustering.StateTransfer.Timeout)

	inv := d.Configuration(schema.CacheModeInvalidationAsync)
	require.Equal(t, schema.CacheModeInvalidationAsync, inv.Clustering.CacheMode)
	require.Equal(t, 2, inv.Clustering.Hash.NumOwners)
}

// TestLoadDefaults verifies a custom defaults document and its rejection of unknown modes.
func TestLoadDefaults(t *testing.T) {
	d, err := LoadDefaults(strings.NewReader(`
default:
  locking:
    concurrency-level: 16
modes:
  DIST_SYNC:
    clustering:
      hash:
        num-owners: 3
`))
	require.NoError(t, err)
	require.Equal(t, 3, d.Configuration(schema.CacheModeDistAsync).Clustering.Hash.NumOwners)
	require.Equal(t, 16, d.Configuration(schema.CacheModeDistSync).Locking.ConcurrencyLevel)
	require.Equal(t, 0, d.Configuration(schema.CacheModeReplSync).Clustering.Hash.NumOwners)

	_, err = LoadDefaults(strings.NewReader("modes:\n  SCATTERED_SYNC: {}\n"))
	require.ErrorContains(t, err, `unknown cache mode "SCATTERED_SYNC"`)
}

// TestDefaults_ReturnsCopies verifies callers cannot mutate the shared defaults.
func TestDefaults_ReturnsCopies(t *testing.T) {
	d := defaults(t)
	c := d.Configuration(schema.CacheModeLocal)
	c.Locking.ConcurrencyLevel = 1
	c.Security.Authorization.Roles = append(c.Security.Authorization.Roles, "admin")
	require.Equal(t, 1000, d.Configuration(schema.CacheModeLocal).Locking.ConcurrencyLevel)
	require.Empty(t, d.Configuration(schema.CacheModeLocal).Security.Authorization.Roles)
}

// TestBuilder_Validation verifies cross section constraints rejected at build time.
func TestBuilder_Validation(t *testing.T) {
	d := defaults(t)
	tests := []struct {
		name   string
		mode   schema.CacheMode
		modify func(b *Builder)
		err    string
	}{
		{"valid local", schema.CacheModeLocal, func(*Builder) {}, ""},
		{"l1 on replicated", schema.CacheModeReplSync, func(b *Builder) { b.Clustering().L1.Enabled = true }, "L1 is only valid for distributed caches"},
		{"l1 on distributed", schema.CacheModeDistSync, func(b *Builder) { b.Clustering().L1.Enabled = true }, ""},
		{"no owners", schema.CacheModeDistSync, func(b *Builder) { b.Clustering().Hash.NumOwners = 0 }, "num owners must be at least 1"},
		{"repl queue on sync", schema.CacheModeReplSync, func(b *Builder) { b.Clustering().Async.UseReplQueue = true }, "replication queue requires an asynchronous mode"},
		{"repl queue on async", schema.CacheModeReplAsync, func(b *Builder) { b.Clustering().Async.UseReplQueue = true }, ""},
		{"batching", schema.CacheModeLocal, func(b *Builder) { b.InvocationBatching(true) }, "invocation batching requires a transactional cache"},
		{"batching transactional", schema.CacheModeLocal, func(b *Builder) {
			b.InvocationBatching(true)
			b.Transaction().Transactional = true
		}, ""},
		{"recovery", schema.CacheModeLocal, func(b *Builder) { b.Transaction().Recovery = true }, "recovery requires a transactional cache"},
		{"unbounded eviction", schema.CacheModeLocal, func(b *Builder) { b.Eviction().Strategy = schema.EvictionLRU }, "requires a positive max-entries"},
		{"simple clustered", schema.CacheModeDistSync, func(b *Builder) { b.SimpleCache(true) }, "simple cache cannot be clustered"},
		{"simple with store", schema.CacheModeLocal, func(b *Builder) {
			b.SimpleCache(true).AddStore(Store{Kind: KindFile, File: &FileStore{}})
		}, "simple cache cannot have stores"},
		{"duplicate site", schema.CacheModeDistSync, func(b *Builder) {
			b.AddBackup(Backup{Site: "NYC", Enabled: true}).AddBackup(Backup{Site: "NYC"})
		}, "duplicate backup site NYC"},
		{"custom store without class", schema.CacheModeLocal, func(b *Builder) {
			b.AddStore(Store{Kind: KindCustomStore, Name: "custom"})
		}, "store custom requires a class"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder().Read(d.Configuration(tt.mode))
			tt.modify(b)
			c, err := b.Build()
			if tt.err == "" {
				require.NoError(t, err)
				require.Equal(t, tt.mode, c.Clustering.CacheMode)
				return
			}
			require.ErrorIs(t, err, ErrInvalidConfiguration)
			require.ErrorContains(t, err, tt.err)
		})
	}
}

// TestBuilder_BuildCopies verifies built configurations are independent of the builder.
func TestBuilder_BuildCopies(t *testing.T) {
	b := NewBuilder().Read(defaults(t).Configuration(schema.CacheModeLocal))
	b.AddStore(Store{Kind: KindFile, Properties: map[string]string{"fsync": "true"}, File: &FileStore{Location: "/data"}})
	b.AddBackup(Backup{Site: "LON", Enabled: true})
	first, err := b.Build()
	require.NoError(t, err)

	b.Persistence().Stores[0].File.Location = "/other"
	b.Persistence().Stores[0].Properties["fsync"] = "false"
	second, err := b.Build()
	require.NoError(t, err)

	require.Equal(t, "/data", first.Persistence.Stores[0].File.Location)
	require.Equal(t, "true", first.Persistence.Stores[0].Properties["fsync"])
	require.Equal(t, "/other", second.Persistence.Stores[0].File.Location)
	require.Equal(t, []string{"LON"}, first.Sites.InUse)
}

// TestGlobalConfiguration_Validate verifies the cache manager level constraints.
func TestGlobalConfiguration_Validate(t *testing.T) {
	lower, upper := int64(0), int64(10)
	g := GlobalConfiguration{
		CacheManagerName: "clustered",
		Counters: Counters{Strong: []StrongCounter{
			{Name: "ok", InitialValue: 5, LowerBound: &lower, UpperBound: &upper},
		}},
	}
	require.NoError(t, g.Validate())

	bad := g.Clone()
	bad.CacheManagerName = ""
	bad.Counters.Strong = append(bad.Counters.Strong, StrongCounter{Name: "low", InitialValue: -1, LowerBound: &lower})
	bad.Security.Authorization = GlobalAuthorization{Enabled: true, Mapper: schema.MapperCustom}
	err := bad.Validate()
	require.ErrorContains(t, err, "cache manager name is required")
	require.ErrorContains(t, err, "counter low initial value -1 below lower bound 0")
	require.ErrorContains(t, err, "custom role mapper requires a class")
	require.Len(t, g.Counters.Strong, 1)
}
