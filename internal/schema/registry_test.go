package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/infinispan/infinispan-subsystem/internal/model"
)

// TestRegistry_Lookup verifies wildcard and fixed child definitions are found by address.
func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()
	container := SubsystemAddress.Append(model.Element(CacheContainer, "c"))

	def, err := r.Lookup(container)
	require.NoError(t, err)
	_, ok := def.Attribute(DefaultCache)
	require.True(t, ok)

	def, err = r.Lookup(container.Append(
		model.Element(Configurations, ConfigurationsName),
		model.Element(ConfigurationType(DistributedCache), "d"),
	))
	require.NoError(t, err)
	_, ok = def.Attribute(Owners)
	require.True(t, ok)
	_, ok = def.Child(model.Element(PartitionHandling, PartitionHandlingName))
	require.True(t, ok)

	def, err = r.Lookup(container.Append(
		model.Element(Configurations, ConfigurationsName),
		model.Element(ConfigurationType(LocalCache), "l"),
	))
	require.NoError(t, err)
	_, ok = def.Attribute(Owners)
	require.False(t, ok)
	_, ok = def.Child(model.Element(StateTransfer, StateTransferName))
	require.False(t, ok)

	_, err = r.Lookup(container.Append(model.Element(Transport, "OTHER")))
	require.Error(t, err)

	for _, pool := range ThreadPoolNames {
		_, err = r.Lookup(container.Append(model.Element(ThreadPool, pool)))
		require.NoError(t, err, pool)
	}
}

// TestConfigurationAttributes verifies clustered and distributed attributes only apply to their
// cache types and legacy attributes are deprecated.
func TestConfigurationAttributes(t *testing.T) {
	names := func(typ string) map[string]*AttributeDefinition {
		out := map[string]*AttributeDefinition{}
		for _, a := range ConfigurationAttributes(typ) {
			out[a.Name] = a
		}
		return out
	}

	local := names(LocalCache)
	require.NotContains(t, local, ModeKey)
	require.Contains(t, local, Statistics)

	repl := names(ReplicatedCache)
	require.Contains(t, repl, ModeKey)
	require.NotContains(t, repl, Owners)
	require.Equal(t, Version80, repl[QueueSize].DeprecatedSince)
	require.Equal(t, Version80, repl[AsyncMarshalling].DeprecatedSince)

	dist := names(DistributedCache)
	require.Contains(t, dist, Owners)
	require.Contains(t, dist, CapacityFactor)
	require.Zero(t, dist[Owners].DeprecatedSince)
}

// TestCacheMode verifies the mapping between cache types, synchrony and cache modes.
func TestCacheMode(t *testing.T) {
	m, err := CacheModeOf(DistributedCache)
	require.NoError(t, err)
	require.Equal(t, CacheModeDistSync, m)
	require.Equal(t, CacheModeDistAsync, m.Apply(ModeAsync))
	require.Equal(t, CacheModeDistSync, m.Apply(ModeAsync).Apply(ModeSync))
	require.Equal(t, CacheModeDistSync, m.Apply(ModeSync))

	m, err = CacheModeOf(ConfigurationType(ReplicatedCache))
	require.NoError(t, err)
	require.True(t, m.IsReplicated())

	m, err = CacheModeOf(LocalCache)
	require.NoError(t, err)
	require.False(t, m.IsClustered())
	require.Equal(t, CacheModeLocal, m.Apply(ModeAsync))

	_, err = CacheModeOf("scattered-cache")
	require.Error(t, err)
}

// TestCacheMode_Synchrony verifies converting a mode to the synchrony it already has keeps it.
func TestCacheMode_Synchrony(t *testing.T) {
	tests := []struct {
		mode, sync, async CacheMode
	}{
		{CacheModeLocal, CacheModeLocal, CacheModeLocal},
		{CacheModeReplSync, CacheModeReplSync, CacheModeReplAsync},
		{CacheModeReplAsync, CacheModeReplSync, CacheModeReplAsync},
		{CacheModeDistSync, CacheModeDistSync, CacheModeDistAsync},
		{CacheModeDistAsync, CacheModeDistSync, CacheModeDistAsync},
		{CacheModeInvalidationSync, CacheModeInvalidationSync, CacheModeInvalidationAsync},
		{CacheModeInvalidationAsync, CacheModeInvalidationSync, CacheModeInvalidationAsync},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			require.Equal(t, tt.sync, tt.mode.ToSync())
			require.Equal(t, tt.async, tt.mode.ToAsync())
			require.Equal(t, tt.sync, tt.mode.Apply(ModeSync))
		})
	}
}

// TestTransactionLocking verifies the transaction locking attribute and its allowed values.
func TestTransactionLocking(t *testing.T) {
	require.Equal(t, TxLockingKey, TxLocking.Name)
	require.NoError(t, TxLocking.Validate(model.StringValue(string(LockingPessimistic))))
	require.Error(t, TxLocking.Validate(model.StringValue("EAGER")))
}
