package telemetry

import (
	"github.com/infinispan/infinispan-subsystem/internal/cache"
	"github.com/infinispan/infinispan-subsystem/internal/evictor"
	"github.com/infinispan/infinispan-subsystem/internal/lifetimer"
	"strconv"
)

type sampler struct {
	cache     *cache.Cache
	evictor   evictor.Evictor
	lifetimer lifetimer.Lifetimer
}

func newSampler(c *cache.Cache, e evictor.Evictor, lt lifetimer.Lifetimer) sampler {
	return sampler{cache: c, evictor: e, lifetimer: lt}
}

// snapshot holds cumulative counters.
type snapshot struct {
	hits, misses, stores, removeHits, removeMisses int64
	evictions, evictorScans, evictorHits           int64
	purged, passes                                 int64
	admissionAllowed, admissionDenied              int64
	activations, passivations                      int64
}

func (s sampler) snapshot() snapshot {
	m := s.cache.Metrics()
	scans, hits, _ := s.evictor.Metrics()
	purged, passes, _ := s.lifetimer.Metrics()
	return snapshot{
		hits:             m.Hits,
		misses:           m.Misses,
		stores:           m.Stores,
		removeHits:       m.RemoveHits,
		removeMisses:     m.RemoveMisses,
		evictions:        m.Evictions,
		evictorScans:     scans,
		evictorHits:      hits,
		purged:           purged,
		passes:           passes,
		admissionAllowed: m.AdmissionAllowed,
		admissionDenied:  m.AdmissionDenied,
		activations:      m.Activations,
		passivations:     m.Passivations,
	}
}

// deltaSnapshot converts cumulative snapshots to per interval deltas. A counter that went
// backwards was reset, so its current value is the delta.
func deltaSnapshot(prev, cur snapshot) snapshot {
	return snapshot{
		hits:             delta(prev.hits, cur.hits),
		misses:           delta(prev.misses, cur.misses),
		stores:           delta(prev.stores, cur.stores),
		removeHits:       delta(prev.removeHits, cur.removeHits),
		removeMisses:     delta(prev.removeMisses, cur.removeMisses),
		evictions:        delta(prev.evictions, cur.evictions),
		evictorScans:     delta(prev.evictorScans, cur.evictorScans),
		evictorHits:      delta(prev.evictorHits, cur.evictorHits),
		purged:           delta(prev.purged, cur.purged),
		passes:           delta(prev.passes, cur.passes),
		admissionAllowed: delta(prev.admissionAllowed, cur.admissionAllowed),
		admissionDenied:  delta(prev.admissionDenied, cur.admissionDenied),
		activations:      delta(prev.activations, cur.activations),
		passivations:     delta(prev.passivations, cur.passivations),
	}
}

func delta(prev, cur int64) int64 {
	if cur >= prev {
		return cur - prev
	}
	return cur
}

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }
