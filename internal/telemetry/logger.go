package telemetry

import (
	"context"
	"github.com/infinispan/infinispan-subsystem/internal/cache"
	"github.com/infinispan/infinispan-subsystem/internal/config"
	"github.com/infinispan/infinispan-subsystem/internal/evictor"
	"github.com/infinispan/infinispan-subsystem/internal/lifetimer"
	"github.com/infinispan/infinispan-subsystem/internal/shared/bytes"
	"log/slog"
	"sync"
	"time"
)

const defaultInterval = 30 * time.Second

type Logger interface {
	Interval() time.Duration
	Close() error
}

// Logs prints per interval deltas of a cache's counters.
type Logs struct {
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	name      string
	cfg       *config.Cache
	logger    *slog.Logger
	cache     *cache.Cache
	evictor   evictor.Evictor
	lifetimer lifetimer.Lifetimer
	interval  time.Duration
}

func New(
	ctx context.Context,
	name string,
	cfg *config.Cache,
	logger *slog.Logger,
	c *cache.Cache,
	ev evictor.Evictor,
	lt lifetimer.Lifetimer,
) *Logs {
	ctx, cancel := context.WithCancel(ctx)
	interval := cfg.DB.TelemetryLogsInterval
	if interval <= 0 {
		interval = defaultInterval
	}
	l := &Logs{
		ctx:       ctx,
		cancel:    cancel,
		name:      name,
		cfg:       cfg,
		logger:    logger.With("cache", name),
		cache:     c,
		evictor:   ev,
		lifetimer: lt,
		interval:  interval,
	}
	if cfg.DB.IsTelemetryLogsEnabled {
		l.wg.Go(l.loop)
	}
	return l
}

func (l *Logs) Interval() time.Duration { return l.interval }

func (l *Logs) Close() error {
	l.cancel()
	l.wg.Wait()
	return nil
}

func (l *Logs) loop() {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	limit := "INF"
	if l.cfg.Eviction.Enabled() {
		limit = formatInt(l.cfg.Eviction.MaxEntries)
	}

	s := newSampler(l.cache, l.evictor, l.lifetimer)
	prev := s.snapshot()
	for {
		select {
		case <-l.ctx.Done():
			return
		case <-ticker.C:
			cur := s.snapshot()
			l.log(deltaSnapshot(prev, cur), limit)
			prev = cur
		}
	}
}

func (l *Logs) log(d snapshot, limit string) {
	common := []any{"interval", l.interval.String()}
	l.logger.Info("cache_operations", append(common,
		"hits", d.hits,
		"misses", d.misses,
		"stores", d.stores,
		"remove_hits", d.removeHits,
		"remove_misses", d.removeMisses,
	)...)
	if l.cfg.Eviction.Enabled() {
		l.logger.Info("evictor", append(common,
			"scans", d.evictorScans,
			"hits", d.evictorHits,
			"evicted", d.evictions,
		)...)
	}
	if l.cfg.Lifetime.Enabled() {
		l.logger.Info("expiration_reaper", append(common,
			"purged", d.purged,
			"passes", d.passes,
		)...)
	}
	if l.cfg.AdmissionControl.Enabled() {
		l.logger.Info("admission_controller", append(common,
			"allowed", d.admissionAllowed,
			"not_allowed", d.admissionDenied,
		)...)
	}
	if l.cfg.Persistence.Enabled() {
		l.logger.Info("file_store", append(common,
			"entries", l.cache.StoreSize(),
			"activations", d.activations,
			"passivations", d.passivations,
		)...)
	}
	l.logger.Info("storage", append(common,
		"size", bytes.FmtMem(uint64(max(l.cache.Mem(), 0))),
		"entries", l.cache.Len(),
		"max_entries", limit,
	)...)
}
