package lifetimer

import (
	"context"
	"github.com/infinispan/infinispan-subsystem/internal/cache"
	"github.com/infinispan/infinispan-subsystem/internal/config"
	"github.com/infinispan/infinispan-subsystem/internal/shared/rate"
	"log/slog"
	"sync"
	"time"
)

// Lifetimer is the expiration reaper of a cache.
type Lifetimer interface {
	Metrics() (purged, passes, queued int64)
	PurgeNow(ctx context.Context) int64
	Close() error
}

// LifetimeWorker removes expired entries on two paths: a full pass every wake up interval, and a
// paced drain of entries the read path found expired.
type LifetimeWorker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	cfg      *config.LifetimerCfg
	cache    *cache.Cache
	logger   *slog.Logger
	counters *lifetimerCounters
}

func New(ctx context.Context, cfg *config.LifetimerCfg, logger *slog.Logger, c *cache.Cache) Lifetimer {
	if !cfg.Enabled() {
		return NoOpLifetimer{cache: c}
	}
	ctx, cancel := context.WithCancel(ctx)
	return (&LifetimeWorker{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		cache:    c,
		logger:   logger,
		counters: &lifetimerCounters{},
	}).run()
}

func (w *LifetimeWorker) Metrics() (purged, passes, queued int64) { return w.counters.snapshot() }

// PurgeNow runs a full pass synchronously.
func (w *LifetimeWorker) PurgeNow(ctx context.Context) int64 {
	n := w.cache.PurgeExpired(ctx)
	w.counters.passes.Add(1)
	w.counters.purged.Add(n)
	return n
}

func (w *LifetimeWorker) Close() error {
	w.cancel()
	w.wg.Wait()
	return nil
}

func (w *LifetimeWorker) run() *LifetimeWorker {
	w.logger.Debug("expiration reaper is running", "wake_up_interval", w.cfg.WakeUpInterval, "rate", w.cfg.EffectiveRate())
	w.wg.Go(w.reaper)
	w.wg.Go(w.drainer)
	return w
}

func (w *LifetimeWorker) reaper() {
	t := time.NewTicker(w.cfg.WakeUpInterval)
	defer t.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-t.C:
			if n := w.PurgeNow(w.ctx); n > 0 {
				w.logger.Debug("expired entries purged", "count", n)
			}
		}
	}
}

func (w *LifetimeWorker) drainer() {
	pacer := rate.NewPacer(w.ctx, w.cfg.EffectiveRate())
	for {
		select {
		case <-w.ctx.Done():
			return
		case _, ok := <-pacer.Chan():
			if !ok {
				return
			}
			if e, found := w.cache.NextExpired(); found && w.cache.RemoveExpired(e) {
				w.counters.queued.Add(1)
				w.counters.purged.Add(1)
			}
		}
	}
}
