package embedded

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/infinispan/infinispan-subsystem/internal/cache"
	"github.com/infinispan/infinispan-subsystem/internal/cache/db/dump"
	"github.com/infinispan/infinispan-subsystem/internal/configuration"
	"github.com/infinispan/infinispan-subsystem/internal/evictor"
	"github.com/infinispan/infinispan-subsystem/internal/lifetimer"
	"github.com/infinispan/infinispan-subsystem/internal/telemetry"
)

// Cache is a named cache of a CacheManager. Its data container and background workers exist only
// while it is running; a stopped cache can be started again.
type Cache struct {
	name    string
	manager *CacheManager
	cfg     configuration.Configuration
	logger  *slog.Logger

	mu        sync.RWMutex
	status    Status
	cancel    context.CancelFunc
	data      *cache.Cache
	store     *dump.FileStore
	evictor   evictor.Evictor
	lifetimer lifetimer.Lifetimer
	telemetry *telemetry.Logs

	startedAt     atomic.Int64
	resetAt       atomic.Int64
	invalidations atomic.Int64
	replications  atomic.Int64
	replFailures  atomic.Int64
	replTime      atomic.Int64
	rebalancing   atomic.Bool

	tx    *TxTable
	xsite *XSiteAdmin
}

func newCache(m *CacheManager, name string, cfg configuration.Configuration) *Cache {
	c := &Cache{
		name:    name,
		manager: m,
		cfg:     cfg,
		logger:  m.logger.With("cache", name),
		status:  StatusInstantiated,
		xsite:   newXSiteAdmin(cfg.Sites),
	}
	c.tx = newTxTable(c.apply)
	c.rebalancing.Store(true)
	return c
}

func (c *Cache) Name() string                               { return c.name }
func (c *Cache) Configuration() configuration.Configuration { return c.cfg.Clone() }
func (c *Cache) Manager() *CacheManager                     { return c.manager }
func (c *Cache) Transactions() *TxTable                     { return c.tx }
func (c *Cache) XSite() *XSiteAdmin                         { return c.xsite }

func (c *Cache) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Start builds the data container, opens the file store and starts the background workers.
func (c *Cache) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusRunning {
		return nil
	}
	base, err := c.manager.runContext()
	if err != nil {
		return err
	}
	c.status = StatusInitializing

	ecfg := EngineConfig(c.name, c.cfg, c.manager.opts.Engine)
	runCtx, cancel := context.WithCancel(base)

	var store *dump.FileStore
	if ecfg.Persistence.Enabled() {
		store = dump.New(ecfg.Persistence, c.manager.opts.StoreLogger)
		if err = store.Start(ctx); err != nil {
			cancel()
			c.status = StatusFailed
			return fmt.Errorf("start store of cache %s: %w", c.name, err)
		}
	}

	data := cache.New(runCtx, ecfg, c.logger, store)
	if ecfg.Persistence.Enabled() && ecfg.Persistence.Preload {
		n := data.Preload()
		c.logger.Debug("preloaded entries", "count", n)
	}
	c.data, c.store, c.cancel = data, store, cancel
	c.evictor = evictor.New(runCtx, ecfg.Eviction, c.logger, data)
	c.lifetimer = lifetimer.New(runCtx, ecfg.Lifetime, c.logger, data)
	c.telemetry = telemetry.New(runCtx, c.name, ecfg, c.logger, data, c.evictor, c.lifetimer)

	now := time.Now().UnixNano()
	c.startedAt.Store(now)
	c.resetAt.Store(now)
	c.status = StatusRunning
	c.logger.Info("cache started", "mode", c.cfg.Clustering.CacheMode)
	c.manager.events.Log(LevelInfo, CategoryLifecycle, c.name, fmt.Sprintf("cache %s started", c.name))
	return nil
}

// Stop passivates memory to the store when configured, writes the store and stops the workers.
func (c *Cache) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked(ctx)
}

func (c *Cache) stopLocked(ctx context.Context) error {
	if c.status != StatusRunning {
		return nil
	}
	c.status = StatusStopping
	_ = c.telemetry.Close()
	_ = c.lifetimer.Close()
	_ = c.evictor.Close()

	var err error
	if c.store != nil {
		c.data.Passivate(ctx)
		if serr := c.store.Stop(ctx); serr != nil {
			err = fmt.Errorf("stop store of cache %s: %w", c.name, serr)
		}
	}
	c.cancel()
	c.data, c.store = nil, nil
	c.status = StatusTerminated
	c.logger.Info("cache stopped")
	c.manager.events.Log(LevelInfo, CategoryLifecycle, c.name, fmt.Sprintf("cache %s stopped", c.name))
	return err
}

// Shutdown writes every in memory entry to the store, passivating or not, then stops.
func (c *Cache) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status == StatusRunning && c.store != nil {
		if err := c.data.Flush(ctx); err != nil {
			return fmt.Errorf("flush cache %s: %w", c.name, err)
		}
	}
	return c.stopLocked(ctx)
}

func (c *Cache) running() (*cache.Cache, error) {
	if c.status != StatusRunning {
		return nil, fmt.Errorf("cache %s is %s: %w", c.name, c.status, ErrNotRunning)
	}
	return c.data, nil
}

func (c *Cache) Get(key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, err := c.running()
	if err != nil {
		return nil, false, err
	}
	v, ok := data.Get(key)
	return v, ok, nil
}

// Put stores value with the configured lifespan and max idle.
func (c *Cache) Put(key string, value []byte) error {
	return c.PutWithExpiration(key, value, c.cfg.Expiration.Lifespan, c.cfg.Expiration.MaxIdle)
}

func (c *Cache) PutWithExpiration(key string, value []byte, lifespan, maxIdle time.Duration) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, err := c.running()
	if err != nil {
		return err
	}
	data.Put(key, value, lifespan, maxIdle)
	c.afterWrite()
	return nil
}

func (c *Cache) Remove(key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, err := c.running()
	if err != nil {
		return false, err
	}
	_, ok, err := data.Remove(key)
	if ok {
		c.afterWrite()
	}
	return ok, err
}

// afterWrite counts the invalidation a write sends to the other members of an invalidation cache.
func (c *Cache) afterWrite() {
	if c.cfg.Clustering.CacheMode.IsInvalidation() {
		c.invalidations.Add(1)
	}
}

func (c *Cache) apply(key string, value *[]byte) error {
	if value == nil {
		_, err := c.Remove(key)
		return err
	}
	return c.Put(key, *value)
}

// Begin starts a transaction or an invocation batch.
func (c *Cache) Begin() (*Tx, error) {
	if !c.cfg.Transaction.Transactional {
		return nil, fmt.Errorf("%w: %s", ErrNotTransactional, c.name)
	}
	if c.Status() != StatusRunning {
		return nil, fmt.Errorf("cache %s: %w", c.name, ErrNotRunning)
	}
	return c.tx.begin(), nil
}

// Clear empties memory and the store.
func (c *Cache) Clear() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, err := c.running()
	if err != nil {
		return err
	}
	_, err = data.Clear()
	return err
}

// Flush writes the file store.
func (c *Cache) Flush(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, err := c.running()
	if err != nil {
		return err
	}
	return data.Flush(ctx)
}

func (c *Cache) Size(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, err := c.running()
	if err != nil {
		return 0, err
	}
	return data.Size(ctx), nil
}

func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, err := c.running()
	if err != nil {
		return nil, err
	}
	return data.Keys(ctx), nil
}

// PurgeExpired runs an expiration pass now.
func (c *Cache) PurgeExpired(ctx context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, err := c.running(); err != nil {
		return 0, err
	}
	return c.lifetimer.PurgeNow(ctx), nil
}

// Reindex walks the entries as a mass indexer does. Indexing must be enabled.
func (c *Cache) Reindex(ctx context.Context) (int, error) {
	if !c.cfg.Indexing.Index.IsEnabled() {
		return 0, fmt.Errorf("indexing is not enabled for cache %s", c.name)
	}
	keys, err := c.Keys(ctx)
	return len(keys), err
}

func (c *Cache) SetRebalancing(enabled bool) { c.rebalancing.Store(enabled) }
func (c *Cache) IsRebalancing() bool        { return c.rebalancing.Load() }

// Stats is a snapshot of the statistics exposed as metrics.
type Stats struct {
	Status                   Status
	Hits, Misses, Stores     int64
	RemoveHits, RemoveMisses int64
	Evictions                int64
	AverageReadTime          time.Duration
	AverageWriteTime         time.Duration
	AverageRemoveTime        time.Duration
	TimeSinceStart           time.Duration
	TimeSinceReset           time.Duration
	Entries, EntriesInMemory int64
	DataMemoryUsed           int64
	Commits, Prepares        int64
	Rollbacks                int64
	Invalidations            int64
	Activations              int64
	Passivations             int64
	LoaderLoads              int64
	LoaderMisses             int64
	LoaderStores             int64
	ReplicationCount         int64
	ReplicationFailures      int64
	AverageReplicationTime   time.Duration
	ConcurrencyLevel         int
}

func (s Stats) HitRatio() float64 {
	if total := s.Hits + s.Misses; total > 0 {
		return float64(s.Hits) / float64(total)
	}
	return 0
}

func (s Stats) ReadWriteRatio() float64 {
	if s.Stores == 0 {
		return 0
	}
	return float64(s.Hits+s.Misses) / float64(s.Stores)
}

func (s Stats) SuccessRatio() float64 {
	if total := s.ReplicationCount + s.ReplicationFailures; total > 0 {
		return float64(s.ReplicationCount) / float64(total)
	}
	return 0
}

func average(total, n int64) time.Duration {
	if n == 0 {
		return 0
	}
	return time.Duration(total / n)
}

// Stats reads the counters of a running cache.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, err := c.running()
	if err != nil {
		return Stats{Status: c.status}, err
	}
	m := data.Metrics()
	commits, prepares, rollbacks := c.tx.Counters()
	now := time.Now().UnixNano()
	s := Stats{
		Status:                 c.status,
		Hits:                   m.Hits,
		Misses:                 m.Misses,
		Stores:                 m.Stores,
		RemoveHits:             m.RemoveHits,
		RemoveMisses:           m.RemoveMisses,
		Evictions:              m.Evictions,
		AverageReadTime:        average(m.ReadTime, m.Hits+m.Misses),
		AverageWriteTime:       average(m.WriteTime, m.Stores),
		AverageRemoveTime:      average(m.RemoveTime, m.RemoveHits+m.RemoveMisses),
		TimeSinceStart:         time.Duration(now - c.startedAt.Load()),
		TimeSinceReset:         time.Duration(now - c.resetAt.Load()),
		Entries:                int64(data.Size(ctx)),
		EntriesInMemory:        data.Len(),
		DataMemoryUsed:         data.Mem(),
		Commits:                commits,
		Prepares:               prepares,
		Rollbacks:              rollbacks,
		Invalidations:          c.invalidations.Load(),
		Activations:            m.Activations,
		Passivations:           m.Passivations,
		LoaderLoads:            m.Loads,
		LoaderMisses:           m.LoadMisses,
		ReplicationCount:       c.replications.Load(),
		ReplicationFailures:    c.replFailures.Load(),
		AverageReplicationTime: average(c.replTime.Load(), c.replications.Load()),
		ConcurrencyLevel:       c.cfg.Locking.ConcurrencyLevel,
	}
	if data.HasStore() && !c.cfg.Persistence.Passivation {
		s.LoaderStores = m.Stores
	}
	return s, nil
}

// StatsGroup selects the counters cleared by ResetStatistics.
type StatsGroup string

const (
	StatsCache        StatsGroup = "cache"
	StatsTransaction  StatsGroup = "transaction"
	StatsInvalidation StatsGroup = "invalidation"
	StatsActivation   StatsGroup = "activation"
	StatsPassivation  StatsGroup = "passivation"
	StatsRPCManager   StatsGroup = "rpc-manager"
	StatsLoader       StatsGroup = "loader"
)

func (c *Cache) ResetStatistics(group StatsGroup) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, err := c.running()
	if err != nil {
		return err
	}
	switch group {
	case StatsCache:
		data.ResetMetrics(cache.GroupCache)
		c.resetAt.Store(time.Now().UnixNano())
	case StatsTransaction:
		c.tx.ResetCounters()
	case StatsInvalidation:
		c.invalidations.Store(0)
	case StatsActivation:
		data.ResetMetrics(cache.GroupActivation)
	case StatsPassivation:
		data.ResetMetrics(cache.GroupPassivation)
	case StatsRPCManager:
		c.replications.Store(0)
		c.replFailures.Store(0)
		c.replTime.Store(0)
	case StatsLoader:
		data.ResetMetrics(cache.GroupLoader)
	default:
		return fmt.Errorf("unknown statistics group %q", group)
	}
	return nil
}
