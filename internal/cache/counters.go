package cache

import "sync/atomic"

// Group selects the counters cleared by a reset command.
type Group int

const (
	GroupCache Group = iota
	GroupActivation
	GroupPassivation
	GroupLoader
)

// Metrics is a point in time copy of the container counters. Times are cumulative nanoseconds.
type Metrics struct {
	Hits, Misses, Stores              int64
	RemoveHits, RemoveMisses          int64
	Evictions                         int64
	ReadTime, WriteTime, RemoveTime   int64
	Activations, Passivations         int64
	Loads, LoadMisses                 int64
	AdmissionAllowed, AdmissionDenied int64
}

type counters struct {
	hits, misses, stores                  atomic.Int64
	removeHits, removeMisses              atomic.Int64
	evictions                             atomic.Int64
	readTime, writeTime, removeTime       atomic.Int64
	activations, passivations             atomic.Int64
	loads, loadMisses                     atomic.Int64
	admissionAllowed, admissionNotAllowed atomic.Int64
}

func newCounters() *counters { return &counters{} }

func (c *counters) snapshot() Metrics {
	return Metrics{
		Hits:             c.hits.Load(),
		Misses:           c.misses.Load(),
		Stores:           c.stores.Load(),
		RemoveHits:       c.removeHits.Load(),
		RemoveMisses:     c.removeMisses.Load(),
		Evictions:        c.evictions.Load(),
		ReadTime:         c.readTime.Load(),
		WriteTime:        c.writeTime.Load(),
		RemoveTime:       c.removeTime.Load(),
		Activations:      c.activations.Load(),
		Passivations:     c.passivations.Load(),
		Loads:            c.loads.Load(),
		LoadMisses:       c.loadMisses.Load(),
		AdmissionAllowed: c.admissionAllowed.Load(),
		AdmissionDenied:  c.admissionNotAllowed.Load(),
	}
}

// reset clears the given groups, all of them when none is given.
func (c *counters) reset(groups ...Group) {
	if len(groups) == 0 {
		groups = []Group{GroupCache, GroupActivation, GroupPassivation, GroupLoader}
	}
	for _, g := range groups {
		switch g {
		case GroupCache:
			for _, v := range []*atomic.Int64{&c.hits, &c.misses, &c.stores, &c.removeHits, &c.removeMisses,
				&c.evictions, &c.readTime, &c.writeTime, &c.removeTime} {
				v.Store(0)
			}
		case GroupActivation:
			c.activations.Store(0)
		case GroupPassivation:
			c.passivations.Store(0)
		case GroupLoader:
			c.loads.Store(0)
			c.loadMisses.Store(0)
		}
	}
}
