package bloom

import (
	"github.com/infinispan/infinispan-subsystem/internal/config"
	"github.com/stretchr/testify/require"
	"testing"
)

func testCfg() *config.AdmissionControlCfg {
	return &config.AdmissionControlCfg{Capacity: 1024, Shards: 4, SampleMultiplier: 10, DoorBitsPerCounter: 8}
}

// TestNewAdmissionControl_Disabled admits everything.
func TestNewAdmissionControl_Disabled(t *testing.T) {
	a := NewAdmissionControl(nil)
	require.True(t, a.Allow(1, 2))
	require.Zero(t, a.Estimate(1))
}

// TestTinyLFU_UnseenCandidateRejected verifies the doorkeeper gate.
func TestTinyLFU_UnseenCandidateRejected(t *testing.T) {
	a := NewAdmissionControl(testCfg())
	a.Record(42)
	require.False(t, a.Allow(7, 42))
}

// TestTinyLFU_FrequentWins admits a hot candidate over a cold victim.
func TestTinyLFU_FrequentWins(t *testing.T) {
	a := NewAdmissionControl(testCfg())
	hot, cold := mix64(1), mix64(2)
	for i := 0; i < 10; i++ {
		a.Record(hot)
	}
	a.Record(cold)
	require.True(t, a.Allow(hot, cold))
	require.False(t, a.Allow(cold, hot))
	require.Greater(t, a.Estimate(hot), a.Estimate(cold))
}

// TestTinyLFU_SameKey always allows replacing an entry with itself.
func TestTinyLFU_SameKey(t *testing.T) {
	require.True(t, NewAdmissionControl(testCfg()).Allow(5, 5))
}

// TestTinyLFU_Reset forgets frequencies.
func TestTinyLFU_Reset(t *testing.T) {
	a := NewAdmissionControl(testCfg())
	for i := 0; i < 5; i++ {
		a.Record(99)
	}
	require.NotZero(t, a.Estimate(99))
	a.Reset()
	require.Zero(t, a.Estimate(99))
}

// TestSketch_Saturates caps counters at 15 and halves on aging.
func TestSketch_Saturates(t *testing.T) {
	var s sketch
	s.init(64)
	for i := 0; i < 40; i++ {
		s.increment(3)
	}
	require.Equal(t, uint8(15), s.estimate(3))
	s.halve()
	require.Equal(t, uint8(7), s.estimate(3))
}

// TestNextPow2 rounds up.
func TestNextPow2(t *testing.T) {
	require.Equal(t, 1, nextPow2(0))
	require.Equal(t, 16, nextPow2(9))
	require.Equal(t, 64, nextPow2(64))
}
