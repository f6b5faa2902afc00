package schema

import (
	"github.com/infinispan/infinispan-subsystem/internal/model"
)

// Namespace versions, major*10+minor.
const (
	Version70 = 70
	Version80 = 80
	Version81 = 81
	Version90 = 90
	Version92 = 92
	Version94 = 94
)

func str(name string) *AttributeDefinition { return NewAttribute(name, TypeString) }

func strDef(name, def string) *AttributeDefinition {
	return NewAttribute(name, TypeString).WithDefault(model.StringValue(def))
}

func intDef(name string, def int) *AttributeDefinition {
	return NewAttribute(name, TypeInt).WithDefault(model.IntValue(def))
}

func longDef(name string, def int64) *AttributeDefinition {
	return NewAttribute(name, TypeLong).WithDefault(model.LongValue(def))
}

func boolDef(name string, def bool) *AttributeDefinition {
	return NewAttribute(name, TypeBool).WithDefault(model.BoolValue(def))
}

func enumDef(name string, def string, vs []string) *AttributeDefinition {
	return strDef(name, def).WithValidator(Enum(vs))
}

func list(name string) *AttributeDefinition { return NewAttribute(name, TypeList) }

func object(name string) *AttributeDefinition { return NewAttribute(name, TypeObject) }

// container
var (
	ContainerAliases      = list(Aliases).WithFlags(RestartAllServices)
	ContainerDefaultCache = str(DefaultCache).WithFlags(ReloadRequired)
	ContainerJNDIName     = str(JNDIName).WithFlags(ReloadRequired)
	ContainerStart        = enumDef(Start, string(StartLazy), startValues).WithFlags(ReloadRequired)
	ContainerModule       = strDef(Module, "org.infinispan.extension").WithFlags(ReloadRequired)
	ContainerStatistics   = boolDef(Statistics, true).WithFlags(ReloadRequired)
	ContainerListenerExec = str(ListenerExec).Deprecated(Version80)
	ContainerEvictionExec = str(EvictionExec).Deprecated(Version80)
	ContainerReplQueExec  = str(ReplQueueExec).Deprecated(Version80)

	TransportChannel        = str(Channel).WithFlags(ReloadRequired)
	TransportLockTimeout    = longDef(LockTimeout, 240000).WithFlags(ReloadRequired)
	TransportStrictP2P      = boolDef(StrictP2P, false).WithFlags(ReloadRequired)
	TransportInitialSize    = NewAttribute(InitialSize, TypeInt).WithFlags(ReloadRequired)
	TransportInitialTimeout = longDef(InitialTimeout, 60000).WithFlags(ReloadRequired)

	AuthzAuditLogger = strDef(AuditLogger, "org.infinispan.security.impl.NullAuditLogger").WithFlags(ReloadRequired)
	AuthzMapper      = enumDef(Mapper, string(MapperCluster), mapperValues).WithFlags(ReloadRequired)
	AuthzMapperClass = str(Class).WithFlags(ReloadRequired)
	RolePermissions  = list(Permissions).WithValidator(ListValidator{Element: Enum(AllPermissions)}).WithFlags(ReloadRequired)

	GSPersistentLocation       = object(PersistentLocation).WithFlags(ReloadRequired)
	GSSharedPersistentLocation = object(SharedPersistentLocation).WithFlags(ReloadRequired)
	GSTemporaryLocation        = object(TemporaryLocation).WithFlags(ReloadRequired)
	GSConfigurationStorage     = enumDef(ConfigurationStorageKey, string(StorageOverlay), cfgStorageValues).WithFlags(ReloadRequired)
	GSConfigurationStorageCls  = str(ConfigurationStorageCls).WithFlags(ReloadRequired)

	CountersReliability = enumDef(ReliabilityKey, string(ReliabilityAvailable), reliabilityValues).WithFlags(ReloadRequired)
	CountersNumOwners   = intDef(NumOwners, 2).WithValidator(Range(1, 1<<16)).WithFlags(ReloadRequired)
	CounterInitialValue = longDef(InitialValue, 0).WithFlags(ReloadRequired)
	CounterStorage      = enumDef(Storage, string(StorageVolatile), storageValues).WithFlags(ReloadRequired)
	CounterLowerBound   = NewAttribute(LowerBound, TypeLong).WithFlags(ReloadRequired)
	CounterUpperBound   = NewAttribute(UpperBound, TypeLong).WithFlags(ReloadRequired)
	CounterConcurrency  = intDef(ConcurrencyLevel, 16).WithValidator(Range(1, 1<<16)).WithFlags(ReloadRequired)
)

// ThreadPoolAttributes returns the attributes of a named thread pool with its defaults.
func ThreadPoolAttributes(name string) []*AttributeDefinition {
	d := threadPoolDefaults[name]
	attrs := []*AttributeDefinition{
		intDef(MaxThreads, d.max).WithFlags(ReloadRequired),
		longDef(KeepaliveTime, 60000).WithFlags(ReloadRequired),
	}
	if !d.scheduled {
		attrs = append(attrs,
			intDef(MinThreads, d.min).WithFlags(ReloadRequired),
			intDef(QueueLength, d.queue).WithFlags(ReloadRequired),
		)
	}
	return attrs
}

type poolDefaults struct {
	min, max, queue int
	scheduled       bool
}

var threadPoolDefaults = map[string]poolDefaults{
	"async-operations":  {min: 25, max: 25, queue: 1000},
	"expiration":        {max: 1, scheduled: true},
	"listener":          {min: 1, max: 1, queue: 100000},
	"persistence":       {min: 1, max: 4, queue: 0},
	"remote-command":    {min: 1, max: 200, queue: 0},
	"replication-queue": {max: 1, scheduled: true},
	"state-transfer":    {min: 1, max: 60, queue: 0},
	"transport":         {min: 25, max: 25, queue: 100000},
}

// IsScheduledPool reports whether the pool only has max-threads and keepalive-time.
func IsScheduledPool(name string) bool { return threadPoolDefaults[name].scheduled }

// cache configuration
var (
	CacheConfigurationParent = str(Configuration).WithFlags(RestartResourceServices)
	CacheStart               = enumDef(Start, string(StartLazy), startValues).WithFlags(RestartResourceServices)
	CacheBatching            = boolDef(Batching, false).WithFlags(RestartResourceServices)
	CacheJNDIName            = str(JNDIName).WithFlags(RestartResourceServices)
	CacheModule              = str(Module).WithFlags(RestartResourceServices)
	CacheSimpleCache         = boolDef(SimpleCache, false).WithFlags(RestartResourceServices)
	CacheStatistics          = boolDef(Statistics, true).WithFlags(RestartResourceServices)
	CacheRemoteCache         = str(RemoteCache).WithFlags(RestartResourceServices)
	CacheRemoteSite          = str(RemoteSite).WithFlags(RestartResourceServices)

	ClusteredMode               = enumDef(ModeKey, string(ModeSync), modeValues).WithFlags(RestartResourceServices)
	ClusteredRemoteTimeout      = longDef(RemoteTimeout, 17500).WithFlags(RestartResourceServices)
	ClusteredQueueSize          = intDef(QueueSize, 0).Deprecated(Version80)
	ClusteredQueueFlushInterval = longDef(QueueFlushInterval, 10).Deprecated(Version80)
	ClusteredAsyncMarshalling   = boolDef(AsyncMarshalling, false).Deprecated(Version80)

	DistOwners         = intDef(Owners, 2).WithValidator(Range(1, 1<<16)).WithFlags(RestartResourceServices)
	DistSegments       = intDef(Segments, 256).WithValidator(Range(1, 1<<20)).WithFlags(RestartResourceServices)
	DistCapacityFactor = NewAttribute(CapacityFactor, TypeDouble).WithDefault(model.DoubleValue(1)).WithValidator(Range(0, 1<<16)).WithFlags(RestartResourceServices)
	DistL1Lifespan     = longDef(L1Lifespan, 0).WithFlags(RestartResourceServices)

	LockingIsolation   = enumDef(Isolation, string(IsolationReadCommitted), isolationValues).WithFlags(RestartResourceServices)
	LockingStriping    = boolDef(Striping, false).WithFlags(RestartResourceServices)
	LockingAcquire     = longDef(AcquireTimeout, 15000).WithFlags(RestartResourceServices)
	LockingConcurrency = intDef(ConcurrencyLevel, 1000).WithFlags(RestartResourceServices)

	TxMode          = enumDef(ModeKey, string(TxNone), txValues).WithFlags(RestartResourceServices)
	TxStopTimeout   = longDef(StopTimeout, 30000).WithFlags(RestartResourceServices)
	TxLocking       = enumDef(TxLockingKey, string(LockingOptimistic), lockingValues).WithFlags(RestartResourceServices)
	TxNotifications = boolDef(Notifications, true).WithFlags(RestartResourceServices)

	EvictionStrategyAttr = enumDef(Strategy, string(EvictionNone), evictionValues).WithFlags(RestartResourceServices)
	EvictionMaxEntries   = longDef(MaxEntries, -1).WithFlags(RestartResourceServices)

	ExpirationMaxIdle  = longDef(MaxIdle, -1).WithFlags(RestartResourceServices)
	ExpirationLifespan = longDef(Lifespan, -1).WithFlags(RestartResourceServices)
	ExpirationInterval = longDef(Interval, 60000).WithFlags(RestartResourceServices)

	CompatibilityEnabled    = boolDef(Enabled, false).WithFlags(RestartResourceServices)
	CompatibilityMarshaller = str(Marshaller).WithFlags(RestartResourceServices)

	CacheAuthzEnabled = boolDef(Enabled, false).WithFlags(RestartResourceServices)
	CacheAuthzRoles   = list(Roles).WithFlags(RestartResourceServices)

	StateTransferEnabled   = boolDef(Enabled, true).WithFlags(RestartResourceServices)
	StateTransferTimeout   = longDef(Timeout, 240000).WithFlags(RestartResourceServices)
	StateTransferChunkSize = intDef(ChunkSize, 512).WithValidator(Range(1, 1<<30)).WithFlags(RestartResourceServices)
	StateTransferAwait     = boolDef(AwaitInitial, true).WithFlags(RestartResourceServices)

	PartitionHandlingEnabled = boolDef(Enabled, false).WithFlags(RestartResourceServices)

	BackupStrategyAttr      = enumDef(Strategy, string(BackupAsync), strategyValues).WithFlags(RestartResourceServices)
	BackupFailurePolicyAttr = enumDef(FailurePolicy, string(FailureWarn), failureValues).WithFlags(RestartResourceServices)
	BackupFailurePolicyCls  = str(FailurePolicyCls).WithFlags(RestartResourceServices)
	BackupTimeout           = longDef(Timeout, 10000).WithFlags(RestartResourceServices)
	BackupEnabled           = boolDef(Enabled, true).WithFlags(RestartResourceServices)
	BackupAfterFailures     = intDef(AfterFailures, 0).WithFlags(RestartResourceServices)
	BackupMinWait           = longDef(MinWait, 0).WithFlags(RestartResourceServices)

	BackupSTChunkSize  = intDef(ChunkSize, 512).WithValidator(Range(1, 1<<30)).WithFlags(RestartResourceServices)
	BackupSTTimeout    = longDef(Timeout, 1200000).WithFlags(RestartResourceServices)
	BackupSTMaxRetries = intDef(MaxRetries, 30).WithFlags(RestartResourceServices)
	BackupSTWaitTime   = longDef(WaitTime, 2000).WithFlags(RestartResourceServices)

	IndexingAttr       = enumDef(IndexingMode, string(IndexNone), indexingValues).WithXMLName("index").WithFlags(RestartResourceServices)
	IndexingAutoConfig = boolDef(AutoConfig, false).WithFlags(RestartResourceServices)
	IndexingProperties = object(IndexingProps).WithFlags(RestartResourceServices)
	IndexingEntities   = list(IndexedEntities).WithFlags(RestartResourceServices)

	LoaderClass                = str(Class).Require().WithFlags(RestartResourceServices)
	StoreShared                = boolDef(Shared, false).WithFlags(RestartResourceServices)
	StorePreload               = boolDef(Preload, false).WithFlags(RestartResourceServices)
	StorePassivation           = boolDef(Passivation, true).WithFlags(RestartResourceServices)
	StoreFetchState            = boolDef(FetchState, true).WithFlags(RestartResourceServices)
	StorePurge                 = boolDef(Purge, true).WithFlags(RestartResourceServices)
	StoreSingleton             = boolDef(Singleton, false).WithFlags(RestartResourceServices)
	StoreReadOnly              = boolDef(ReadOnly, false).WithFlags(RestartResourceServices)
	ClusterLoaderRemoteTimeout = longDef(RemoteTimeout, 15000).WithFlags(RestartResourceServices)

	FileStoreMaxEntries = longDef(MaxEntries, -1).WithFlags(RestartResourceServices)
	FileStoreRelativeTo = strDef(RelativeTo, "jboss.server.data.dir").WithFlags(RestartResourceServices)
	FileStorePath       = str(Path).WithFlags(RestartResourceServices)

	JDBCDatasource       = str(Datasource).Require().WithFlags(RestartResourceServices)
	JDBCDialect          = str(Dialect).WithFlags(RestartResourceServices)
	JDBCStringKeyedTable = object(StringKeyedTable).WithFlags(RestartResourceServices)
	JDBCBinaryKeyedTable = object(BinaryKeyedTable).WithFlags(RestartResourceServices)

	RemoteStoreCache         = str(Cache).WithFlags(RestartResourceServices)
	RemoteStoreHotRodWrap    = boolDef(HotRodWrapping, false).WithFlags(RestartResourceServices)
	RemoteStoreRawValues     = boolDef(RawValues, false).WithFlags(RestartResourceServices)
	RemoteStoreSocketTimeout = longDef(SocketTimeout, 60000).WithFlags(RestartResourceServices)
	RemoteStoreTCPNoDelay    = boolDef(TCPNoDelay, true).WithFlags(RestartResourceServices)
	RemoteStoreServers       = list(RemoteServers).Require().WithFlags(RestartResourceServices)

	LevelDBPath           = str(Path).WithFlags(RestartResourceServices)
	LevelDBRelativeTo     = strDef(RelativeTo, "jboss.server.data.dir").WithFlags(RestartResourceServices)
	LevelDBBlockSize      = intDef(BlockSize, 0).WithFlags(RestartResourceServices)
	LevelDBCacheSize      = longDef(CacheSize, 0).WithFlags(RestartResourceServices)
	LevelDBClearThreshold = intDef(ClearThreshold, 10000).WithFlags(RestartResourceServices)
	LevelDBImpl           = enumDef(Implementation, string(LevelDBAuto), levelDBValues).WithFlags(RestartResourceServices)
	LevelDBExpPath        = str(Path).WithFlags(RestartResourceServices)
	LevelDBExpQueueSize   = intDef(QueueSize, 10000).WithFlags(RestartResourceServices)
	CompressionTypeAttr   = enumDef(TypeKey, string(CompressionNone), compressionValues).WithFlags(RestartResourceServices)

	RestStorePath         = strDef(Path, "/rest/___defaultcache").WithFlags(RestartResourceServices)
	RestStoreAppendName   = boolDef(AppendCacheName, false).WithFlags(RestartResourceServices)
	RestStoreServers      = list(RemoteServers).Require().WithFlags(RestartResourceServices)
	PoolConnectionTimeout = longDef(ConnectionTimeout, 60000).WithFlags(RestartResourceServices)
	PoolMaxConnsPerHost   = intDef(MaxConnsPerHost, 4).WithFlags(RestartResourceServices)
	PoolMaxTotalConns     = intDef(MaxTotalConns, 20).WithFlags(RestartResourceServices)
	PoolBufferSize        = intDef(BufferSize, 8192).WithFlags(RestartResourceServices)
	PoolSocketTimeout     = longDef(SocketTimeout, 60000).WithFlags(RestartResourceServices)
	PoolTCPNoDelay        = boolDef(TCPNoDelay, true).WithFlags(RestartResourceServices)

	WriteBehindFlushLockTimeout = longDef(FlushLockTimeout, 1).WithFlags(RestartResourceServices)
	WriteBehindModQueueSize     = intDef(ModQueueSize, 1024).WithFlags(RestartResourceServices)
	WriteBehindShutdownTimeout  = longDef(ShutdownTimeout, 25000).WithFlags(RestartResourceServices)
	WriteBehindThreadPoolSize   = intDef(ThreadPoolSize, 1).WithFlags(RestartResourceServices)

	PropertyValue = str(Value).Require().WithFlags(RestartResourceServices)

	// CacheConfigurationRef binds a cache instance to its configuration template.
	CacheConfigurationRef = str(Configuration).Require().NoExpression().WithFlags(RestartResourceServices)
)

// StoreAttributes are shared by every store type.
var StoreAttributes = []*AttributeDefinition{
	StoreShared, StorePreload, StorePassivation, StoreFetchState, StorePurge, StoreSingleton, StoreReadOnly,
}

// LoaderAttributes are shared by loaders.
var LoaderAttributes = []*AttributeDefinition{StoreShared, StorePreload}

// Table object keys and defaults of JDBC stores.
const (
	DefaultStringTablePrefix = "ispn_entry"
	DefaultBinaryTablePrefix = "ispn_bucket"
	DefaultBatchSize         = 100
	DefaultFetchSize         = 100
)

// DefaultColumn returns the default name and type of a JDBC column.
func DefaultColumn(column string) (name, typ string) {
	switch column {
	case IDColumn:
		return "id", "VARCHAR"
	case DataColumn:
		return "datum", "BINARY"
	case TimestampColumn:
		return "version", "BIGINT"
	}
	return "", ""
}
