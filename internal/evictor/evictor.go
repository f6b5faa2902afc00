package evictor

import (
	"context"
	"errors"
	"github.com/infinispan/infinispan-subsystem/internal/cache"
	"github.com/infinispan/infinispan-subsystem/internal/config"
	"github.com/infinispan/infinispan-subsystem/internal/shared/rate"
	"log/slog"
	"sync"
	"time"
)

var ErrEvictorNotResponded = errors.New("evictor not responded")

// Evictor keeps a bounded cache within its entry limit in the background, catching up with writes
// that raced the inline eviction.
type Evictor interface {
	ForceCall(timeout time.Duration) error
	Metrics() (scans, hits, evicted int64)
	Close() error
}

type EvictionWorker struct {
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	cfg      *config.EvictionCfg
	logger   *slog.Logger
	cache    *cache.Cache
	counters *evictorCounters
	invokeCh chan struct{}
}

func New(ctx context.Context, cfg *config.EvictionCfg, logger *slog.Logger, c *cache.Cache) Evictor {
	if !cfg.Enabled() {
		return NoOpEvictor{}
	}
	ctx, cancel := context.WithCancel(ctx)
	return (&EvictionWorker{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger,
		cache:    c,
		counters: &evictorCounters{},
		invokeCh: make(chan struct{}),
	}).run()
}

// ForceCall runs an eviction pass now.
func (w *EvictionWorker) ForceCall(timeout time.Duration) error {
	after := time.NewTimer(timeout)
	defer after.Stop()
	select {
	case <-w.ctx.Done():
	case w.invokeCh <- struct{}{}:
	case <-after.C:
		return ErrEvictorNotResponded
	}
	return nil
}

func (w *EvictionWorker) Metrics() (scans, hits, evicted int64) { return w.counters.snapshot() }

// Close stops the workers and waits for them.
func (w *EvictionWorker) Close() error {
	w.cancel()
	w.wg.Wait()
	return nil
}

func (w *EvictionWorker) run() *EvictionWorker {
	w.logger.Debug("evictor is running", "max_entries", w.cfg.MaxEntries, "calls_per_sec", w.cfg.CallsPerSec)
	w.wg.Go(w.consumer)
	w.wg.Go(w.provider)
	return w
}

// provider checks the bound at the configured rate and wakes the consumer when exceeded.
func (w *EvictionWorker) provider() {
	pacer := rate.NewPacer(w.ctx, int(w.cfg.CallsPerSec))
	for {
		select {
		case <-w.ctx.Done():
			return
		case _, ok := <-pacer.Chan():
			if !ok {
				return
			}
			w.counters.scans.Add(1)
			if !w.cache.OverLimit() {
				continue
			}
			w.counters.scanHits.Add(1)
			select {
			case <-w.ctx.Done():
				return
			case w.invokeCh <- struct{}{}:
			}
		}
	}
}

func (w *EvictionWorker) consumer() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.invokeCh:
			if n := w.cache.EvictUntilWithinLimit(w.cfg.BackoffSpinsPerCall); n > 0 {
				w.counters.evicted.Add(n)
			}
		}
	}
}
