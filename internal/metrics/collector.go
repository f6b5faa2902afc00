// Package metrics exports the statistics of running caches in the Prometheus format.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/infinispan/infinispan-subsystem/internal/embedded"
	"github.com/infinispan/infinispan-subsystem/internal/subsystem"
)

const namespace = "infinispan"

// Source returns a snapshot of the running caches.
type Source interface {
	CacheStatistics(ctx context.Context) []subsystem.CacheStatistics
}

var cacheLabels = []string{"container", "type", "cache"}

type counter struct {
	desc  *prometheus.Desc
	value func(s embedded.Stats) float64
}

func newCounter(name, help string, value func(s embedded.Stats) int64) counter {
	return counter{
		desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", name), help, cacheLabels, nil),
		value: func(s embedded.Stats) float64 { return float64(value(s)) },
	}
}

// Collector is a prometheus.Collector reading cache statistics from a Source on every scrape.
type Collector struct {
	source  Source
	timeout time.Duration

	counters []counter
	gauges   []counter
	status   *prometheus.Desc
	ratio    *prometheus.Desc
	uptime   *prometheus.Desc
	avg      *prometheus.Desc
}

func NewCollector(source Source, timeout time.Duration) *Collector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", name), help, append(cacheLabels[:len(cacheLabels):len(cacheLabels)], labels...), nil)
	}
	return &Collector{
		source:  source,
		timeout: timeout,
		counters: []counter{
			newCounter("hits_total", "Read hits.", func(s embedded.Stats) int64 { return s.Hits }),
			newCounter("misses_total", "Read misses.", func(s embedded.Stats) int64 { return s.Misses }),
			newCounter("stores_total", "Writes.", func(s embedded.Stats) int64 { return s.Stores }),
			newCounter("remove_hits_total", "Removals of existing entries.", func(s embedded.Stats) int64 { return s.RemoveHits }),
			newCounter("remove_misses_total", "Removals of missing entries.", func(s embedded.Stats) int64 { return s.RemoveMisses }),
			newCounter("evictions_total", "Entries evicted from memory.", func(s embedded.Stats) int64 { return s.Evictions }),
			newCounter("commits_total", "Committed transactions.", func(s embedded.Stats) int64 { return s.Commits }),
			newCounter("prepares_total", "Prepared transactions.", func(s embedded.Stats) int64 { return s.Prepares }),
			newCounter("rollbacks_total", "Rolled back transactions.", func(s embedded.Stats) int64 { return s.Rollbacks }),
			newCounter("invalidations_total", "Invalidated entries.", func(s embedded.Stats) int64 { return s.Invalidations }),
			newCounter("activations_total", "Entries activated from a store.", func(s embedded.Stats) int64 { return s.Activations }),
			newCounter("passivations_total", "Entries passivated to a store.", func(s embedded.Stats) int64 { return s.Passivations }),
			newCounter("loader_loads_total", "Entries loaded from cache loaders.", func(s embedded.Stats) int64 { return s.LoaderLoads }),
			newCounter("loader_misses_total", "Cache loader misses.", func(s embedded.Stats) int64 { return s.LoaderMisses }),
			newCounter("loader_stores_total", "Entries written to cache stores.", func(s embedded.Stats) int64 { return s.LoaderStores }),
			newCounter("replications_total", "Replicated writes.", func(s embedded.Stats) int64 { return s.ReplicationCount }),
			newCounter("replication_failures_total", "Failed replications.", func(s embedded.Stats) int64 { return s.ReplicationFailures }),
		},
		gauges: []counter{
			newCounter("entries", "Entries of the cache.", func(s embedded.Stats) int64 { return s.Entries }),
			newCounter("entries_in_memory", "Entries held in memory.", func(s embedded.Stats) int64 { return s.EntriesInMemory }),
			newCounter("data_memory_used_bytes", "Memory used by the data container.", func(s embedded.Stats) int64 { return s.DataMemoryUsed }),
		},
		status: desc("status", "Cache status, 1 for the current one.", "status"),
		ratio:  desc("ratio", "Hit, read-write and replication success ratios.", "ratio"),
		uptime: desc("time_since_start_seconds", "Seconds since the cache was started."),
		avg:    desc("average_time_seconds", "Average time of an operation.", "operation"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.counters {
		ch <- m.desc
	}
	for _, m := range c.gauges {
		ch <- m.desc
	}
	ch <- c.status
	ch <- c.ratio
	ch <- c.uptime
	ch <- c.avg
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	for _, cs := range c.source.CacheStatistics(ctx) {
		labels := []string{cs.Container, cs.CacheType, cs.Cache}
		with := func(extra string) []string { return append(labels[:3:3], extra) }
		s := cs.Stats
		for _, m := range c.counters {
			ch <- prometheus.MustNewConstMetric(m.desc, prometheus.CounterValue, m.value(s), labels...)
		}
		for _, m := range c.gauges {
			ch <- prometheus.MustNewConstMetric(m.desc, prometheus.GaugeValue, m.value(s), labels...)
		}
		ch <- prometheus.MustNewConstMetric(c.status, prometheus.GaugeValue, 1, with(string(s.Status))...)
		ch <- prometheus.MustNewConstMetric(c.ratio, prometheus.GaugeValue, s.HitRatio(), with("hit")...)
		ch <- prometheus.MustNewConstMetric(c.ratio, prometheus.GaugeValue, s.ReadWriteRatio(), with("read_write")...)
		ch <- prometheus.MustNewConstMetric(c.ratio, prometheus.GaugeValue, s.SuccessRatio(), with("replication_success")...)
		ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, s.TimeSinceStart.Seconds(), labels...)
		ch <- prometheus.MustNewConstMetric(c.avg, prometheus.GaugeValue, s.AverageReadTime.Seconds(), with("read")...)
		ch <- prometheus.MustNewConstMetric(c.avg, prometheus.GaugeValue, s.AverageWriteTime.Seconds(), with("write")...)
		ch <- prometheus.MustNewConstMetric(c.avg, prometheus.GaugeValue, s.AverageRemoveTime.Seconds(), with("remove")...)
		ch <- prometheus.MustNewConstMetric(c.avg, prometheus.GaugeValue, s.AverageReplicationTime.Seconds(), with("replication")...)
	}
}

// Exporter owns the registry served on the metrics endpoint.
type Exporter struct {
	registry *prometheus.Registry
}

// NewExporter registers the cache collector together with the Go runtime and process collectors.
func NewExporter(source Source, timeout time.Duration) (*Exporter, error) {
	registry := prometheus.NewRegistry()
	for _, col := range []prometheus.Collector{
		NewCollector(source, timeout),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(col); err != nil {
			return nil, err
		}
	}
	return &Exporter{registry: registry}, nil
}

func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (e *Exporter) Registry() *prometheus.Registry { return e.registry }
