package embedded

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appconfig "github.com/infinispan/infinispan-subsystem/config"
	"github.com/infinispan/infinispan-subsystem/internal/configuration"
	"github.com/infinispan/infinispan-subsystem/internal/shared/cachedtime"
)

// Options carries the process wide settings of a cache manager.
type Options struct {
	NodeName    string
	Engine      *appconfig.Engine
	Logger      *slog.Logger
	StoreLogger zerolog.Logger
	EventLog    int
}

// CacheManager owns the caches, counters and tasks of one cache container. It is the only member
// of its cluster.
type CacheManager struct {
	global  configuration.GlobalConfiguration
	opts    Options
	logger  *slog.Logger
	address string

	mu          sync.RWMutex
	status      Status
	ctx         context.Context
	cancel      context.CancelFunc
	startedAt   time.Time
	definitions map[string]configuration.Configuration
	caches      map[string]*Cache

	counters    *CounterManager
	tasks       *TaskManager
	events      *EventLog
	rebalancing atomic.Bool
}

func NewCacheManager(global configuration.GlobalConfiguration, opts Options) *CacheManager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Engine == nil {
		opts.Engine = &appconfig.Engine{}
	}
	node := global.Transport.NodeName
	if node == "" {
		node = opts.NodeName
	}
	if node == "" {
		node, _ = os.Hostname()
	}
	logger := opts.Logger.With("container", global.CacheManagerName)
	m := &CacheManager{
		global:      global.Clone(),
		opts:        opts,
		logger:      logger,
		address:     fmt.Sprintf("%s-%s", node, uuid.NewString()[:8]),
		status:      StatusInstantiated,
		definitions: make(map[string]configuration.Configuration),
		caches:      make(map[string]*Cache),
		counters:    newCounterManager(global.Counters, global.GlobalState),
		events:      NewEventLog(opts.EventLog),
	}
	m.tasks = newTaskManager(m, logger)
	m.rebalancing.Store(true)
	return m
}

// Start validates the global configuration, restores persistent counters and starts the task
// scheduler. The manager outlives ctx; Stop ends it.
func (m *CacheManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status == StatusRunning {
		return nil
	}
	if err := m.global.Validate(); err != nil {
		m.status = StatusFailed
		return err
	}
	m.status = StatusInitializing
	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	cachedtime.Run(m.ctx)

	if err := m.counters.load(); err != nil {
		m.cancel()
		m.status = StatusFailed
		return fmt.Errorf("restore counters of %s: %w", m.global.CacheManagerName, err)
	}
	if err := m.registerBuiltinTasks(); err != nil {
		m.cancel()
		m.status = StatusFailed
		return err
	}
	m.tasks.start()

	m.startedAt = time.Now()
	m.status = StatusRunning
	m.logger.Info("cache container started", "address", m.address)
	m.events.Log(LevelInfo, CategoryLifecycle, m.global.CacheManagerName, "cache container started")
	return nil
}

func (m *CacheManager) registerBuiltinTasks() error {
	if _, err := m.taskInfo("cache-names"); err == nil {
		return nil
	}
	err := m.tasks.Register(TaskInfo{Name: "cache-names", Mode: "ONE_NODE"},
		func(context.Context, TaskContext) (any, error) {
			return m.DefinedCacheNames(), nil
		})
	if err != nil {
		return err
	}
	return m.tasks.Register(TaskInfo{Name: "purge-expired", Mode: "ALL_NODES"},
		func(ctx context.Context, tc TaskContext) (any, error) {
			if tc.Cache == nil {
				return nil, errors.New("purge-expired requires a cache")
			}
			n, err := tc.Cache.PurgeExpired(ctx)
			if err != nil {
				return nil, err
			}
			return n, nil
		})
}

func (m *CacheManager) taskInfo(name string) (TaskInfo, error) {
	for _, t := range m.tasks.Tasks() {
		if t.Name == name {
			return t, nil
		}
	}
	return TaskInfo{}, fmt.Errorf("%w: %s", ErrUnknownTask, name)
}

// Stop stops every running cache in reverse name order, then persists counters.
func (m *CacheManager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.status != StatusRunning {
		m.mu.Unlock()
		return nil
	}
	m.status = StatusStopping
	caches := make([]*Cache, 0, len(m.caches))
	for _, c := range m.caches {
		caches = append(caches, c)
	}
	m.mu.Unlock()

	sort.Slice(caches, func(i, j int) bool { return caches[i].name > caches[j].name })
	var errs []error
	for _, c := range caches {
		if err := c.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	m.tasks.stop(ctx)
	if err := m.counters.save(); err != nil {
		errs = append(errs, fmt.Errorf("persist counters of %s: %w", m.global.CacheManagerName, err))
	}

	m.mu.Lock()
	m.cancel()
	m.status = StatusTerminated
	m.mu.Unlock()
	m.logger.Info("cache container stopped")
	m.events.Log(LevelInfo, CategoryLifecycle, m.global.CacheManagerName, "cache container stopped")
	return errors.Join(errs...)
}

func (m *CacheManager) runContext() (context.Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != StatusRunning && m.status != StatusStopping {
		return nil, fmt.Errorf("cache container %s: %w", m.global.CacheManagerName, ErrNotRunning)
	}
	return m.ctx, nil
}

// DefineConfiguration registers the configuration of a named cache. A running cache keeps the
// configuration it was started with.
func (m *CacheManager) DefineConfiguration(name string, cfg configuration.Configuration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.definitions[name] = cfg.Clone()
}

// UndefineConfiguration forgets a configuration; it fails while a cache using it runs.
func (m *CacheManager) UndefineConfiguration(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.caches[name]; ok {
		if c.Status() == StatusRunning {
			return fmt.Errorf("%w: %s", ErrCacheRunning, name)
		}
		delete(m.caches, name)
	}
	delete(m.definitions, name)
	return nil
}

// GetCache returns the named cache, starting it when needed.
func (m *CacheManager) GetCache(ctx context.Context, name string) (*Cache, error) {
	m.mu.Lock()
	if m.status != StatusRunning {
		m.mu.Unlock()
		return nil, fmt.Errorf("cache container %s: %w", m.global.CacheManagerName, ErrNotRunning)
	}
	c, ok := m.caches[name]
	if !ok {
		cfg, defined := m.definitions[name]
		if !defined {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w %s", ErrUndefinedCache, name)
		}
		c = newCache(m, name, cfg)
		m.caches[name] = c
	}
	m.mu.Unlock()

	if err := c.Start(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Cache returns the named cache whatever its state.
func (m *CacheManager) Cache(name string) (*Cache, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.caches[name]
	return c, ok
}

func (m *CacheManager) DefinedCacheNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.definitions))
	for name, cfg := range m.definitions {
		if !cfg.Template {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func (m *CacheManager) RunningCacheNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for name, c := range m.caches {
		if c.Status() == StatusRunning {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func (m *CacheManager) IsRunning(name string) bool {
	c, ok := m.Cache(name)
	return ok && c.Status() == StatusRunning
}

func (m *CacheManager) runningCaches() []*Cache {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Cache, 0, len(m.caches))
	for _, c := range m.caches {
		if c.Status() == StatusRunning {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (m *CacheManager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *CacheManager) Name() string                              { return m.global.CacheManagerName }
func (m *CacheManager) Global() configuration.GlobalConfiguration { return m.global.Clone() }
func (m *CacheManager) Address() string                           { return m.address }
func (m *CacheManager) Members() []string                         { return []string{m.address} }
func (m *CacheManager) Coordinator() string                       { return m.address }
func (m *CacheManager) IsCoordinator() bool                       { return true }
func (m *CacheManager) ClusterSize() int                          { return 1 }
func (m *CacheManager) Counters() *CounterManager                 { return m.counters }
func (m *CacheManager) Tasks() *TaskManager                       { return m.tasks }
func (m *CacheManager) Events() *EventLog                         { return m.events }

func (m *CacheManager) ClusterName() string {
	return m.global.Transport.ClusterName
}

// Uptime is zero unless the manager runs.
func (m *CacheManager) Uptime() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != StatusRunning {
		return 0
	}
	return time.Since(m.startedAt)
}

// SetRebalancing toggles rebalancing for the container and every running cache.
func (m *CacheManager) SetRebalancing(enabled bool) {
	m.rebalancing.Store(enabled)
	for _, c := range m.runningCaches() {
		c.SetRebalancing(enabled)
	}
	state := "suspended"
	if enabled {
		state = "resumed"
	}
	m.events.Log(LevelInfo, CategoryCluster, m.global.CacheManagerName, "rebalancing "+state)
}

func (m *CacheManager) IsRebalancing() bool { return m.rebalancing.Load() }

// backingCaches lists the running caches that back up to site.
func (m *CacheManager) backingCaches(site string) ([]*Cache, error) {
	var out []*Cache
	for _, c := range m.runningCaches() {
		if c.xsite.HasSite(site) {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSite, site)
	}
	return out, nil
}

// eachSite applies op to every cache backing up to site and reports the caches that failed.
func (m *CacheManager) eachSite(site string, op func(*XSiteAdmin) (string, error)) (string, error) {
	caches, err := m.backingCaches(site)
	if err != nil {
		return "", err
	}
	var errs []error
	for _, c := range caches {
		if _, err := op(c.xsite); err != nil {
			errs = append(errs, fmt.Errorf("cache %s: %w", c.name, err))
		}
	}
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return opSuccess, nil
}

func (m *CacheManager) BringSiteOnline(site string) (string, error) {
	return m.eachSite(site, func(x *XSiteAdmin) (string, error) { return x.BringSiteOnline(site) })
}

func (m *CacheManager) TakeSiteOffline(site string) (string, error) {
	return m.eachSite(site, func(x *XSiteAdmin) (string, error) { return x.TakeSiteOffline(site) })
}

func (m *CacheManager) PushState(site string) (string, error) {
	return m.eachSite(site, func(x *XSiteAdmin) (string, error) { return x.PushState(site) })
}

func (m *CacheManager) CancelPushState(site string) (string, error) {
	return m.eachSite(site, func(x *XSiteAdmin) (string, error) { return x.CancelPushState(site) })
}

// SiteStatus aggregates the status of site across caches: mixed when they disagree.
func (m *CacheManager) SiteStatus(site string) (SiteStatus, error) {
	caches, err := m.backingCaches(site)
	if err != nil {
		return "", err
	}
	statuses := make([]SiteStatus, 0, len(caches))
	for _, c := range caches {
		st, err := c.xsite.SiteStatus(site)
		if err != nil {
			return "", err
		}
		statuses = append(statuses, st)
	}
	return aggregate(statuses), nil
}

// SitesView lists every site known to a running cache with its aggregated status.
func (m *CacheManager) SitesView() map[string]SiteStatus {
	out := make(map[string]SiteStatus)
	seen := make(map[string]struct{})
	for _, c := range m.runningCaches() {
		for _, s := range c.xsite.Sites() {
			seen[s] = struct{}{}
		}
	}
	for s := range seen {
		if st, err := m.SiteStatus(s); err == nil {
			out[s] = st
		}
	}
	return out
}

// PushStateStatus reports the push state of every cache and site, keyed "cache/site".
func (m *CacheManager) PushStateStatus() map[string]string {
	out := make(map[string]string)
	for _, c := range m.runningCaches() {
		for s, st := range c.xsite.PushStateStatus() {
			out[c.name+"/"+s] = st
		}
	}
	return out
}

func (m *CacheManager) ClearPushStateStatus() string {
	for _, c := range m.runningCaches() {
		c.xsite.ClearPushStateStatus()
	}
	return opSuccess
}
