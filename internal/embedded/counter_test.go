package embedded

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/infinispan/infinispan-subsystem/internal/configuration"
	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

func bound(v int64) *int64 { return &v }

func testCounters() configuration.Counters {
	return configuration.Counters{
		Strong: []configuration.StrongCounter{{
			Name: "strong", InitialValue: 5, Storage: schema.StoragePersistent,
			LowerBound: bound(0), UpperBound: bound(10),
		}},
		Weak: []configuration.WeakCounter{{Name: "weak", InitialValue: 1, Storage: schema.StorageVolatile}},
	}
}

// TestCounterManager_Bounds verifies strong counters stop at their bounds.
func TestCounterManager_Bounds(t *testing.T) {
	m := newCounterManager(testCounters(), configuration.GlobalState{})
	require.Equal(t, []string{"strong", "weak"}, m.Names())

	v, err := m.Add("strong", 4)
	require.NoError(t, err)
	require.Equal(t, int64(9), v)

	v, err = m.Add("strong", 4)
	require.ErrorIs(t, err, ErrCounterBounds)
	require.Equal(t, int64(10), v)

	v, err = m.Add("strong", -20)
	require.ErrorIs(t, err, ErrCounterBounds)
	require.Equal(t, int64(0), v)

	require.NoError(t, m.Reset("strong"))
	v, err = m.Value("strong")
	require.NoError(t, err)
	require.Equal(t, int64(5), v)

	_, err = m.Increment("missing")
	require.ErrorIs(t, err, ErrUndefinedCounter)
}

// TestCounterManager_CompareAndSet verifies CAS is limited to strong counters.
func TestCounterManager_CompareAndSet(t *testing.T) {
	m := newCounterManager(testCounters(), configuration.GlobalState{})

	ok, err := m.CompareAndSet("strong", 5, 7)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = m.CompareAndSet("strong", 5, 8)
	require.NoError(t, err)
	require.False(t, ok)
	_, err = m.CompareAndSet("strong", 7, 11)
	require.ErrorIs(t, err, ErrCounterBounds)
	_, err = m.CompareAndSet("weak", 1, 2)
	require.ErrorIs(t, err, ErrNotStrongCounter)
}

// TestCounterManager_Persistence verifies only persistent counters are restored.
func TestCounterManager_Persistence(t *testing.T) {
	state := configuration.GlobalState{Enabled: true, PersistentLocation: t.TempDir()}
	m := newCounterManager(testCounters(), state)
	_, err := m.Add("strong", 2)
	require.NoError(t, err)
	_, err = m.Add("weak", 2)
	require.NoError(t, err)
	require.NoError(t, m.save())

	restored := newCounterManager(testCounters(), state)
	require.NoError(t, restored.load())
	v, err := restored.Value("strong")
	require.NoError(t, err)
	require.Equal(t, int64(7), v)
	v, err = restored.Value("weak")
	require.NoError(t, err)
	require.Equal(t, int64(1), v)
}
