package subsystem

import (
	"context"
	"slices"
	"time"

	"github.com/infinispan/infinispan-subsystem/internal/embedded"
	"github.com/infinispan/infinispan-subsystem/internal/model"
	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

type namedValue struct {
	name  string
	value model.Value
}

// cacheMetric reads one runtime attribute of a cache from a statistics snapshot.
type cacheMetric struct {
	clustered bool
	value     func(ec *embedded.Cache, s embedded.Stats) model.Value
}

func millis(d time.Duration) model.Value  { return model.LongValue(d.Milliseconds()) }
func seconds(d time.Duration) model.Value { return model.LongValue(int64(d / time.Second)) }

func stat(fn func(s embedded.Stats) int64) cacheMetric {
	return cacheMetric{value: func(_ *embedded.Cache, s embedded.Stats) model.Value { return model.LongValue(fn(s)) }}
}

func clustered(fn func(ec *embedded.Cache, s embedded.Stats) model.Value) cacheMetric {
	return cacheMetric{clustered: true, value: fn}
}

// sites lists the backup sites of the cache with the given status.
func sites(status embedded.SiteStatus) cacheMetric {
	return clustered(func(ec *embedded.Cache, _ embedded.Stats) model.Value {
		var out []string
		for name, st := range ec.XSite().Status() {
			if st == status {
				out = append(out, name)
			}
		}
		slices.Sort(out)
		return model.StringList(out...)
	})
}

var zeroLong = func(*embedded.Cache, embedded.Stats) model.Value { return model.LongValue(0) }

var cacheMetrics = map[string]cacheMetric{
	"cache-status": {value: func(_ *embedded.Cache, s embedded.Stats) model.Value { return model.StringValue(string(s.Status)) }},
	"version":      {value: func(*embedded.Cache, embedded.Stats) model.Value { return model.StringValue(embedded.Version) }},
	"cache-name":   {value: func(ec *embedded.Cache, _ embedded.Stats) model.Value { return model.StringValue(ec.Name()) }},

	"number-of-locks-held": {value: zeroLong},
	"number-of-locks-available": {value: func(_ *embedded.Cache, s embedded.Stats) model.Value {
		return model.IntValue(s.ConcurrencyLevel)
	}},
	"concurrency-level": {value: func(_ *embedded.Cache, s embedded.Stats) model.Value { return model.IntValue(s.ConcurrencyLevel) }},

	"average-read-time":   {value: func(_ *embedded.Cache, s embedded.Stats) model.Value { return millis(s.AverageReadTime) }},
	"average-write-time":  {value: func(_ *embedded.Cache, s embedded.Stats) model.Value { return millis(s.AverageWriteTime) }},
	"average-remove-time": {value: func(_ *embedded.Cache, s embedded.Stats) model.Value { return millis(s.AverageRemoveTime) }},
	"time-since-start":    {value: func(_ *embedded.Cache, s embedded.Stats) model.Value { return seconds(s.TimeSinceStart) }},
	"time-since-reset":    {value: func(_ *embedded.Cache, s embedded.Stats) model.Value { return seconds(s.TimeSinceReset) }},
	"hit-ratio":           {value: func(_ *embedded.Cache, s embedded.Stats) model.Value { return model.DoubleValue(s.HitRatio()) }},
	"read-write-ratio": {value: func(_ *embedded.Cache, s embedded.Stats) model.Value {
		return model.DoubleValue(s.ReadWriteRatio())
	}},

	"evictions":                   stat(func(s embedded.Stats) int64 { return s.Evictions }),
	"hits":                        stat(func(s embedded.Stats) int64 { return s.Hits }),
	"misses":                      stat(func(s embedded.Stats) int64 { return s.Misses }),
	"stores":                      stat(func(s embedded.Stats) int64 { return s.Stores }),
	"remove-hits":                 stat(func(s embedded.Stats) int64 { return s.RemoveHits }),
	"remove-misses":               stat(func(s embedded.Stats) int64 { return s.RemoveMisses }),
	"number-of-entries":           stat(func(s embedded.Stats) int64 { return s.Entries }),
	"number-of-entries-in-memory": stat(func(s embedded.Stats) int64 { return s.EntriesInMemory }),
	"data-memory-used":            stat(func(s embedded.Stats) int64 { return s.DataMemoryUsed }),
	"off-heap-memory-used":        stat(func(embedded.Stats) int64 { return 0 }),
	"minimum-required-nodes":      stat(func(embedded.Stats) int64 { return 1 }),
	"commits":                     stat(func(s embedded.Stats) int64 { return s.Commits }),
	"prepares":                    stat(func(s embedded.Stats) int64 { return s.Prepares }),
	"rollbacks":                   stat(func(s embedded.Stats) int64 { return s.Rollbacks }),
	"invalidations":               stat(func(s embedded.Stats) int64 { return s.Invalidations }),
	"passivations":                stat(func(s embedded.Stats) int64 { return s.Passivations }),
	"activations":                 stat(func(s embedded.Stats) int64 { return s.Activations }),
	"cache-loader-loads":          stat(func(s embedded.Stats) int64 { return s.LoaderLoads }),
	"cache-loader-misses":         stat(func(s embedded.Stats) int64 { return s.LoaderMisses }),
	"cache-loader-stores":         stat(func(s embedded.Stats) int64 { return s.LoaderStores }),

	"average-replication-time": clustered(func(_ *embedded.Cache, s embedded.Stats) model.Value {
		return millis(s.AverageReplicationTime)
	}),
	"replication-count": clustered(func(_ *embedded.Cache, s embedded.Stats) model.Value {
		return model.LongValue(s.ReplicationCount)
	}),
	"replication-failures": clustered(func(_ *embedded.Cache, s embedded.Stats) model.Value {
		return model.LongValue(s.ReplicationFailures)
	}),
	"success-ratio": clustered(func(_ *embedded.Cache, s embedded.Stats) model.Value {
		return model.DoubleValue(s.SuccessRatio())
	}),
	"sites-online":  sites(embedded.SiteOnline),
	"sites-offline": sites(embedded.SiteOffline),
	"sites-mixed":   sites(embedded.SiteMixed),

	"average-xsite-replication-time": clustered(zeroLong),
	"min-xsite-replication-time":     clustered(zeroLong),
	"max-xsite-replication-time":     clustered(zeroLong),
	"sync-xsite-count":               clustered(zeroLong),
	"async-xsite-count":              clustered(zeroLong),
}

func (c *Controller) cacheMetricNames(t target) []string {
	var out []string
	for _, name := range sortedKeys(cacheMetrics) {
		if !cacheMetrics[name].clustered || schema.IsClustered(t.cacheType) {
			out = append(out, name)
		}
	}
	return out
}

// cacheMetric reads one metric. Failures are reported in the result, never as an error.
func (c *Controller) cacheMetric(ctx context.Context, t target, name string) model.Result {
	m, ok := cacheMetrics[name]
	if !ok || (m.clustered && !schema.IsClustered(t.cacheType)) {
		return model.Failure("Unknown metric %s", name)
	}
	ec, s, ok := c.cacheStats(ctx, t)
	if !ok {
		return model.Failure("Unavailable cache %s", t.name)
	}
	return model.Success(m.value(ec, s))
}

// cacheMetricValues reads every metric of a running cache from one statistics snapshot.
func (c *Controller) cacheMetricValues(ctx context.Context, t target) []namedValue {
	ec, s, ok := c.cacheStats(ctx, t)
	if !ok {
		return nil
	}
	names := c.cacheMetricNames(t)
	out := make([]namedValue, 0, len(names))
	for _, name := range names {
		out = append(out, namedValue{name: name, value: cacheMetrics[name].value(ec, s)})
	}
	return out
}

func (c *Controller) cacheStats(ctx context.Context, t target) (*embedded.Cache, embedded.Stats, bool) {
	ec, err := c.cache(t)
	if err != nil {
		return nil, embedded.Stats{}, false
	}
	s, err := ec.Stats(ctx)
	if err != nil {
		return nil, embedded.Stats{}, false
	}
	return ec, s, true
}

var containerMetrics = map[string]func(m *embedded.CacheManager) model.Value{
	"cache-manager-status": func(m *embedded.CacheManager) model.Value { return model.StringValue(string(m.Status())) },
	"cluster-name": func(m *embedded.CacheManager) model.Value {
		if n := m.ClusterName(); n != "" {
			return model.StringValue(n)
		}
		return model.Value{}
	},
	"coordinator-address":  func(m *embedded.CacheManager) model.Value { return model.StringValue(m.Coordinator()) },
	"local-address":        func(m *embedded.CacheManager) model.Value { return model.StringValue(m.Address()) },
	"is-coordinator":       func(m *embedded.CacheManager) model.Value { return model.BoolValue(m.IsCoordinator()) },
	"members":              func(m *embedded.CacheManager) model.Value { return model.StringList(m.Members()...) },
	"cluster-size":         func(m *embedded.CacheManager) model.Value { return model.IntValue(m.ClusterSize()) },
	"defined-cache-names":  func(m *embedded.CacheManager) model.Value { return model.StringList(m.DefinedCacheNames()...) },
	"defined-cache-count":  func(m *embedded.CacheManager) model.Value { return model.IntValue(len(m.DefinedCacheNames())) },
	"running-cache-count":  func(m *embedded.CacheManager) model.Value { return model.IntValue(len(m.RunningCacheNames())) },
	"version":              func(*embedded.CacheManager) model.Value { return model.StringValue(embedded.Version) },
	"is-rebalancing":       func(m *embedded.CacheManager) model.Value { return model.BoolValue(m.IsRebalancing()) },
	"uptime":               func(m *embedded.CacheManager) model.Value { return seconds(m.Uptime()) },
	"sites-view": func(m *embedded.CacheManager) model.Value {
		return model.StringList(sortedKeys(m.SitesView())...)
	},
}

func (c *Controller) containerMetric(t target, name string) model.Result {
	fn, ok := containerMetrics[name]
	if !ok {
		return model.Failure("Unknown metric %s", name)
	}
	m, err := c.manager(t)
	if err != nil {
		return model.Failure("Unavailable cache container %s", t.container)
	}
	return model.Success(fn(m))
}

func (c *Controller) containerMetricValues(t target) []namedValue {
	m, err := c.manager(t)
	if err != nil {
		return nil
	}
	names := sortedKeys(containerMetrics)
	out := make([]namedValue, 0, len(names))
	for _, name := range names {
		out = append(out, namedValue{name: name, value: containerMetrics[name](m)})
	}
	return out
}

// CacheStatistics is the statistics snapshot of one running cache.
type CacheStatistics struct {
	Container string
	CacheType string
	Cache     string
	Stats     embedded.Stats
}

// CacheStatistics collects a snapshot of every running cache of the model.
func (c *Controller) CacheStatistics(ctx context.Context) []CacheStatistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	root, err := c.model.Read(schema.SubsystemAddress)
	if err != nil {
		return nil
	}
	var out []CacheStatistics
	for _, container := range root.ChildNames(schema.CacheContainer) {
		cr, _ := child(root, schema.CacheContainer, container)
		for _, typ := range schema.CacheTypes {
			for _, name := range cr.ChildNames(typ) {
				t := target{kind: kindCache, container: container, cacheType: typ, name: name}
				if _, s, ok := c.cacheStats(ctx, t); ok {
					out = append(out, CacheStatistics{Container: container, CacheType: typ, Cache: name, Stats: s})
				}
			}
		}
	}
	return out
}
