package subsystem

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/infinispan/infinispan-subsystem/internal/configuration"
	"github.com/infinispan/infinispan-subsystem/internal/model"
	"github.com/infinispan/infinispan-subsystem/internal/msc"
	"github.com/infinispan/infinispan-subsystem/internal/naming"
	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

var ErrTemplateCycle = errors.New("configuration inherits from itself")

// CachePlan is everything needed to install the services of one cache configuration.
type CachePlan struct {
	Builder      *configuration.Builder
	Dependencies []configuration.Dependency
	// Templates are the configurations this one inherits from, nearest first.
	Templates []string
	Start     schema.StartMode
	JNDIName  string
}

// ModelConfigurationBuilder turns a cache configuration resource into a configuration builder
// and the service dependencies that complete it at start time.
type ModelConfigurationBuilder struct {
	resolver schema.Resolver
	defaults *configuration.Defaults
}

func NewModelConfigurationBuilder(resolver schema.Resolver, defaults *configuration.Defaults) *ModelConfigurationBuilder {
	return &ModelConfigurationBuilder{resolver: resolver, defaults: defaults}
}

// Templates returns the parent chain of a configuration, nearest first.
func (b *ModelConfigurationBuilder) Templates(m *model.Model, container, cacheType, name string) ([]string, error) {
	r, err := m.Read(configurationAddress(container, cacheType, name))
	if err != nil {
		return nil, fmt.Errorf("configuration %s: %w", name, err)
	}
	var out []string
	seen := map[string]bool{name: true}
	for {
		parent, err := schema.CacheConfigurationParent.ResolveString(r, b.resolver)
		if err != nil {
			return nil, err
		}
		if parent == "" {
			return out, nil
		}
		if seen[parent] {
			return nil, fmt.Errorf("%w: %s", ErrTemplateCycle, parent)
		}
		seen[parent] = true
		if r, err = m.Read(configurationAddress(container, cacheType, parent)); err != nil {
			return nil, fmt.Errorf("template %s of configuration %s: %w", parent, name, err)
		}
		out = append(out, parent)
	}
}

// Effective returns the configuration resource with its templates merged underneath.
func (b *ModelConfigurationBuilder) Effective(m *model.Model, container, cacheType, name string) (*model.Resource, []string, error) {
	templates, err := b.Templates(m, container, cacheType, name)
	if err != nil {
		return nil, nil, err
	}
	r, err := m.Read(configurationAddress(container, cacheType, name))
	if err != nil {
		return nil, nil, err
	}
	merged := r.Clone()
	for _, t := range templates {
		parent, err := m.Read(configurationAddress(container, cacheType, t))
		if err != nil {
			return nil, nil, err
		}
		merged = overlay(parent, merged)
	}
	return merged, templates, nil
}

func (b *ModelConfigurationBuilder) Build(m *model.Model, container, cacheType, name string) (*CachePlan, error) {
	r, templates, err := b.Effective(m, container, cacheType, name)
	if err != nil {
		return nil, err
	}
	mode, err := schema.CacheModeOf(cacheType)
	if err != nil {
		return nil, err
	}
	a := &attrReader{res: b.resolver}
	if schema.IsClustered(cacheType) {
		mode = mode.Apply(schema.Mode(a.str(r, schema.ClusteredMode)))
	}

	p := &CachePlan{
		Builder:   configuration.NewBuilder().Read(b.defaults.Configuration(mode)),
		Templates: templates,
		Start:     schema.StartMode(a.str(r, schema.CacheStart)),
		JNDIName:  a.str(r, schema.CacheJNDIName),
	}
	for _, t := range templates {
		p.Dependencies = append(p.Dependencies, configuration.NewDependency(TemplateServiceName(container, t)))
	}

	s := &planState{container: container, a: a, plan: p}
	s.base(r)
	if schema.IsClustered(cacheType) {
		s.clustered(r, mode)
	}
	switch {
	case mode.IsDistributed():
		s.sharedState(r)
		s.distributed(r)
	case mode.IsReplicated():
		s.sharedState(r)
	}
	if a.err != nil {
		return nil, fmt.Errorf("configuration %s of %s: %w", name, cacheType, a.err)
	}
	return p, nil
}

type planState struct {
	container string
	a         *attrReader
	plan      *CachePlan
}

func (s *planState) inject(name msc.ServiceName, fn func(any) error) {
	s.plan.Dependencies = append(s.plan.Dependencies, configuration.InjectedDependency(name, fn))
}

func (s *planState) base(r *model.Resource) {
	a, cb := s.a, s.plan.Builder
	cb.Template(false).
		Statistics(a.boolean(r, schema.CacheStatistics)).
		SimpleCache(a.boolean(r, schema.CacheSimpleCache))

	if site := a.str(r, schema.CacheRemoteSite); site != "" {
		cb.Sites().BackupFor = configuration.BackupFor{RemoteCache: a.str(r, schema.CacheRemoteCache), RemoteSite: site}
	}

	if ix, ok := child(r, schema.IndexingKey, schema.IndexingName); ok {
		idx := cb.Indexing()
		idx.Index = schema.Indexing(a.str(ix, schema.IndexingAttr))
		idx.AutoConfig = a.boolean(ix, schema.IndexingAutoConfig)
		idx.IndexedEntities = a.strings(ix, schema.IndexingEntities)
		if props := a.value(ix, schema.IndexingProperties); props.IsDefined() {
			idx.Properties = make(map[string]string, props.Len())
			for _, k := range props.Keys() {
				idx.Properties[k] = props.Get(k).AsString()
			}
		}
	}

	if lk, ok := child(r, schema.Locking, schema.LockingName); ok {
		l := cb.Locking()
		l.Isolation = schema.IsolationLevel(a.str(lk, schema.LockingIsolation))
		l.UseLockStriping = a.boolean(lk, schema.LockingStriping)
		l.AcquireTimeout = a.millis(lk, schema.LockingAcquire)
		l.ConcurrencyLevel = a.integer(lk, schema.LockingConcurrency)
	}

	batching := a.boolean(r, schema.CacheBatching)
	tx := cb.Transaction()
	if t, ok := child(r, schema.TransactionKey, schema.TransactionName); ok {
		mode := schema.TransactionMode(a.str(t, schema.TxMode))
		tx.StopTimeout = a.millis(t, schema.TxStopTimeout)
		tx.LockingMode = schema.LockingMode(a.str(t, schema.TxLocking))
		tx.Notifications = a.boolean(t, schema.TxNotifications)
		if mode == schema.TxBatch {
			batching = true
		} else if mode.IsTransactional() {
			tx.Transactional = true
			tx.UseSynchronization = !mode.IsXAEnabled()
			tx.Recovery = mode.IsRecoveryEnabled()
		}
	}
	if batching {
		tx.Transactional = true
		tx.UseSynchronization = true
		tx.Recovery = false
		tx.Manager = BatchTransactionManager{}
		cb.InvocationBatching(true)
	}

	if ev, ok := child(r, schema.EvictionKey, schema.EvictionName); ok {
		e := cb.Eviction()
		e.Strategy = schema.EvictionStrategy(a.str(ev, schema.EvictionStrategyAttr))
		e.MaxEntries = a.long(ev, schema.EvictionMaxEntries)
	}

	if ex, ok := child(r, schema.ExpirationKey, schema.ExpirationName); ok {
		e := cb.Expiration()
		e.MaxIdle = a.millis(ex, schema.ExpirationMaxIdle)
		e.Lifespan = a.millis(ex, schema.ExpirationLifespan)
		e.WakeUpInterval = a.millis(ex, schema.ExpirationInterval)
		e.ReaperEnabled = e.WakeUpInterval > 0
	}

	if cp, ok := child(r, schema.Compatibility, schema.CompatibilityName); ok {
		c := cb.Compatibility()
		c.Enabled = a.boolean(cp, schema.CompatibilityEnabled)
		c.Marshaller = a.str(cp, schema.CompatibilityMarshaller)
	}

	if sec, ok := child(r, schema.Security, schema.SecurityName); ok {
		if az, ok := child(sec, schema.Authorization, schema.AuthorizationName); ok {
			cb.Security().Authorization = configuration.Authorization{
				Enabled: a.boolean(az, schema.CacheAuthzEnabled),
				Roles:   a.strings(az, schema.CacheAuthzRoles),
			}
		}
	}

	s.loaders(r)
	s.stores(r)
	s.backups(r)
}

func (s *planState) properties(r *model.Resource) map[string]string {
	names, props := children(r, schema.Property)
	if len(names) == 0 {
		return nil
	}
	out := make(map[string]string, len(names))
	for i, n := range names {
		out[n] = s.a.str(props[i], schema.PropertyValue)
	}
	return out
}

func (s *planState) loaders(r *model.Resource) {
	a, cb := s.a, s.plan.Builder
	names, loaders := children(r, schema.Loader)
	for i, l := range loaders {
		cb.AddStore(configuration.Store{
			Kind:       configuration.KindCustomLoader,
			Name:       names[i],
			Class:      a.str(l, schema.LoaderClass),
			Shared:     a.boolean(l, schema.StoreShared),
			Preload:    a.boolean(l, schema.StorePreload),
			Properties: s.properties(l),
		})
	}
	names, loaders = children(r, schema.ClusterLoader)
	for i, l := range loaders {
		cb.AddStore(configuration.Store{
			Kind:          configuration.KindClusterLoader,
			Name:          names[i],
			Shared:        a.boolean(l, schema.StoreShared),
			Preload:       a.boolean(l, schema.StorePreload),
			Properties:    s.properties(l),
			ClusterLoader: &configuration.ClusterLoaderStore{RemoteCallTimeout: a.millis(l, schema.ClusterLoaderRemoteTimeout)},
		})
	}
}

func (s *planState) stores(r *model.Resource) {
	a, cb := s.a, s.plan.Builder
	passivation := false
	for _, typ := range schema.StoreTypes {
		names, stores := children(r, typ)
		for i, sr := range stores {
			st := configuration.Store{
				Kind:                 configuration.StoreKind(typ),
				Name:                 names[i],
				Shared:               a.boolean(sr, schema.StoreShared),
				Preload:              a.boolean(sr, schema.StorePreload),
				Passivation:          a.boolean(sr, schema.StorePassivation),
				FetchPersistentState: a.boolean(sr, schema.StoreFetchState),
				PurgeOnStartup:       a.boolean(sr, schema.StorePurge),
				Singleton:            a.boolean(sr, schema.StoreSingleton),
				IgnoreModifications:  a.boolean(sr, schema.StoreReadOnly),
				Properties:           s.properties(sr),
			}
			if wb, ok := child(sr, schema.WriteBehind, schema.WriteBehindName); ok {
				st.WriteBehind = &configuration.WriteBehind{
					FlushLockTimeout:      a.millis(wb, schema.WriteBehindFlushLockTimeout),
					ModificationQueueSize: a.integer(wb, schema.WriteBehindModQueueSize),
					ShutdownTimeout:       a.millis(wb, schema.WriteBehindShutdownTimeout),
					ThreadPoolSize:        a.integer(wb, schema.WriteBehindThreadPoolSize),
				}
			}
			s.storeSpecific(typ, len(cb.Persistence().Stores), sr, &st)
			passivation = passivation || st.Passivation
			cb.AddStore(st)
		}
	}
	cb.Persistence().Passivation = passivation
}

// storeSpecific fills the section of one store type. Values only known once a platform service is
// up are written through idx, so reinjection on restart overwrites instead of appending.
func (s *planState) storeSpecific(typ string, idx int, sr *model.Resource, st *configuration.Store) {
	a, cb := s.a, s.plan.Builder
	stored := func() *configuration.Store { return &cb.Persistence().Stores[idx] }

	switch typ {
	case schema.Store:
		st.Class = a.str(sr, schema.LoaderClass)

	case schema.FileStore:
		st.File = &configuration.FileStore{MaxEntries: a.long(sr, schema.FileStoreMaxEntries)}
		path := a.str(sr, schema.FileStorePath)
		if path == "" {
			path = filepath.Join(schema.SubsystemName, s.container)
		}
		relativeTo := a.str(sr, schema.FileStoreRelativeTo)
		s.inject(PathManagerServiceName, func(v any) error {
			pm, err := pathManager(v)
			if err != nil {
				return err
			}
			loc, err := pm.Resolve(path, relativeTo)
			if err != nil {
				return err
			}
			stored().File.Location = loc
			return nil
		})

	case schema.StringKeyedJDBCStore, schema.BinaryKeyedJDBCStore, schema.MixedKeyedJDBCStore:
		ds := a.str(sr, schema.JDBCDatasource)
		st.JDBC = &configuration.JDBCStore{Datasource: naming.Parse(ds), Dialect: a.str(sr, schema.JDBCDialect)}
		if typ != schema.BinaryKeyedJDBCStore {
			st.JDBC.StringTable = s.table(sr, schema.JDBCStringKeyedTable, schema.DefaultStringTablePrefix)
		}
		if typ != schema.StringKeyedJDBCStore {
			st.JDBC.BinaryTable = s.table(sr, schema.JDBCBinaryKeyedTable, schema.DefaultBinaryTablePrefix)
		}
		s.inject(DataSourceServiceName(ds), func(v any) error {
			d, ok := v.(*DataSource)
			if !ok {
				return fmt.Errorf("data source %s has unexpected type %T", ds, v)
			}
			stored().JDBC.Datasource = d.JNDIName
			return nil
		})

	case schema.RemoteStore:
		bindings := a.strings(sr, schema.RemoteStoreServers)
		st.Remote = &configuration.RemoteStore{
			RemoteCacheName: a.str(sr, schema.RemoteStoreCache),
			HotRodWrapping:  a.boolean(sr, schema.RemoteStoreHotRodWrap),
			RawValues:       a.boolean(sr, schema.RemoteStoreRawValues),
			SocketTimeout:   a.millis(sr, schema.RemoteStoreSocketTimeout),
			TCPNoDelay:      a.boolean(sr, schema.RemoteStoreTCPNoDelay),
			Servers:         make([]configuration.RemoteServer, len(bindings)),
		}
		for j, binding := range bindings {
			s.socket(binding, func(sb SocketBinding) {
				stored().Remote.Servers[j] = configuration.RemoteServer{Host: sb.Host, Port: sb.Port}
			})
		}

	case schema.LevelDBStore:
		st.LevelDB = &configuration.LevelDBStore{
			BlockSize:      a.integer(sr, schema.LevelDBBlockSize),
			CacheSize:      a.long(sr, schema.LevelDBCacheSize),
			ClearThreshold: a.integer(sr, schema.LevelDBClearThreshold),
			Implementation: schema.LevelDBImplementation(a.str(sr, schema.LevelDBImpl)),
			Compression:    schema.CompressionNone,
		}
		base := filepath.Join(schema.SubsystemName, s.container)
		path := a.str(sr, schema.LevelDBPath)
		if path == "" {
			path = filepath.Join(base, "data")
		}
		expired := filepath.Join(base, "expired")
		var exp *model.Resource
		if e, ok := child(sr, schema.ExpirationKey, schema.ExpirationName); ok {
			exp = e
			if p := a.str(e, schema.LevelDBExpPath); p != "" {
				expired = p
			}
		}
		st.LevelDB.ExpiryQueueSize = a.integer(exp, schema.LevelDBExpQueueSize)
		if c, ok := child(sr, schema.Compression, schema.CompressionName); ok {
			st.LevelDB.Compression = schema.CompressionType(a.str(c, schema.CompressionTypeAttr))
		}
		relativeTo := a.str(sr, schema.LevelDBRelativeTo)
		s.inject(PathManagerServiceName, func(v any) error {
			pm, err := pathManager(v)
			if err != nil {
				return err
			}
			loc, err := pm.Resolve(path, relativeTo)
			if err != nil {
				return err
			}
			expLoc, err := pm.Resolve(expired, relativeTo)
			if err != nil {
				return err
			}
			l := stored().LevelDB
			l.Location, l.ExpiredLocation = loc, expLoc
			return nil
		})

	case schema.RestStore:
		bindings := a.strings(sr, schema.RestStoreServers)
		pool, _ := child(sr, schema.ConnectionPool, schema.ConnectionPoolName)
		st.Rest = &configuration.RestStore{
			Path:                  a.str(sr, schema.RestStorePath),
			AppendCacheNameToPath: a.boolean(sr, schema.RestStoreAppendName),
			Servers:               make([]configuration.RemoteServer, len(bindings)),
			Pool: configuration.ConnectionPool{
				ConnectionTimeout:     a.millis(pool, schema.PoolConnectionTimeout),
				MaxConnectionsPerHost: a.integer(pool, schema.PoolMaxConnsPerHost),
				MaxTotalConnections:   a.integer(pool, schema.PoolMaxTotalConns),
				BufferSize:            a.integer(pool, schema.PoolBufferSize),
				SocketTimeout:         a.millis(pool, schema.PoolSocketTimeout),
				TCPNoDelay:            a.boolean(pool, schema.PoolTCPNoDelay),
			},
		}
		for j, binding := range bindings {
			s.socket(binding, func(sb SocketBinding) {
				stored().Rest.Servers[j] = configuration.RemoteServer{Host: sb.Host, Port: sb.Port}
			})
		}
	}
}

func (s *planState) socket(binding string, set func(SocketBinding)) {
	s.inject(OutboundSocketBindingServiceName(binding), func(v any) error {
		sb, ok := v.(SocketBinding)
		if !ok {
			return fmt.Errorf("outbound socket binding %s has unexpected type %T", binding, v)
		}
		set(sb)
		return nil
	})
}

func (s *planState) table(r *model.Resource, d *schema.AttributeDefinition, prefix string) *configuration.Table {
	v := s.a.value(r, d)
	t := &configuration.Table{
		Prefix:          prefix,
		BatchSize:       schema.DefaultBatchSize,
		FetchSize:       schema.DefaultFetchSize,
		IDColumn:        column(v, schema.IDColumn),
		DataColumn:      column(v, schema.DataColumn),
		TimestampColumn: column(v, schema.TimestampColumn),
	}
	if p := v.Get(schema.Prefix).AsString(); p != "" {
		t.Prefix = p
	}
	if n, err := v.Get(schema.BatchSize).AsInt(); err == nil && v.Has(schema.BatchSize) {
		t.BatchSize = n
	}
	if n, err := v.Get(schema.FetchSize).AsInt(); err == nil && v.Has(schema.FetchSize) {
		t.FetchSize = n
	}
	return t
}

func column(table model.Value, key string) configuration.Column {
	name, typ := schema.DefaultColumn(key)
	c := table.Get(key)
	if n := c.Get(schema.Name).AsString(); n != "" {
		name = n
	}
	if t := c.Get(schema.TypeKey).AsString(); t != "" {
		typ = t
	}
	return configuration.Column{Name: name, Type: typ}
}

func (s *planState) backups(r *model.Resource) {
	a, cb := s.a, s.plan.Builder
	names, backups := children(r, schema.Backup)
	for i, br := range backups {
		st, _ := child(br, schema.StateTransfer, schema.StateTransferName)
		cb.AddBackup(configuration.Backup{
			Site:               names[i],
			Strategy:           schema.BackupStrategy(a.str(br, schema.BackupStrategyAttr)),
			FailurePolicy:      schema.BackupFailurePolicy(a.str(br, schema.BackupFailurePolicyAttr)),
			FailurePolicyClass: a.str(br, schema.BackupFailurePolicyCls),
			ReplicationTimeout: a.millis(br, schema.BackupTimeout),
			Enabled:            a.boolean(br, schema.BackupEnabled),
			TakeOffline: configuration.TakeOffline{
				AfterFailures: a.integer(br, schema.BackupAfterFailures),
				MinWait:       a.millis(br, schema.BackupMinWait),
			},
			StateTransfer: configuration.BackupStateTransfer{
				ChunkSize:  a.integer(st, schema.BackupSTChunkSize),
				Timeout:    a.millis(st, schema.BackupSTTimeout),
				MaxRetries: a.integer(st, schema.BackupSTMaxRetries),
				WaitTime:   a.millis(st, schema.BackupSTWaitTime),
			},
		})
	}
}

func (s *planState) clustered(r *model.Resource, mode schema.CacheMode) {
	a, cl := s.a, s.plan.Builder.Clustering()
	if mode.IsSynchronous() {
		cl.RemoteTimeout = a.millis(r, schema.ClusteredRemoteTimeout)
		return
	}
	if size := a.integer(r, schema.ClusteredQueueSize); size > 0 {
		cl.Async.UseReplQueue = true
		cl.Async.ReplQueueMaxElements = size
		cl.Async.ReplQueueInterval = a.millis(r, schema.ClusteredQueueFlushInterval)
	}
	cl.Async.AsyncMarshalling = a.boolean(r, schema.ClusteredAsyncMarshalling)
}

func (s *planState) sharedState(r *model.Resource) {
	a, cl := s.a, s.plan.Builder.Clustering()
	if st, ok := child(r, schema.StateTransfer, schema.StateTransferName); ok {
		cl.StateTransfer = configuration.StateTransfer{
			FetchInMemoryState:   a.boolean(st, schema.StateTransferEnabled),
			AwaitInitialTransfer: a.boolean(st, schema.StateTransferAwait),
			Timeout:              a.millis(st, schema.StateTransferTimeout),
			ChunkSize:            a.integer(st, schema.StateTransferChunkSize),
		}
	}
	if ph, ok := child(r, schema.PartitionHandling, schema.PartitionHandlingName); ok {
		cl.PartitionHandling.Enabled = a.boolean(ph, schema.PartitionHandlingEnabled)
	}
}

func (s *planState) distributed(r *model.Resource) {
	a, cl := s.a, s.plan.Builder.Clustering()
	cl.Hash = configuration.Hash{
		NumOwners:      a.integer(r, schema.DistOwners),
		NumSegments:    a.integer(r, schema.DistSegments),
		CapacityFactor: a.double(r, schema.DistCapacityFactor),
	}
	cl.L1 = configuration.L1{}
	if l1 := a.millis(r, schema.DistL1Lifespan); l1 > 0 {
		cl.L1 = configuration.L1{Enabled: true, Lifespan: l1}
	}
}

func pathManager(v any) (*PathManager, error) {
	pm, ok := v.(*PathManager)
	if !ok {
		return nil, fmt.Errorf("path manager has unexpected type %T", v)
	}
	return pm, nil
}
