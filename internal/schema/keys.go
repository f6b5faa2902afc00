package schema

// Model keys: resource types, fixed child names and attribute names shared by the model,
// the XML mapping and the runtime handlers.
const (
	Subsystem     = "subsystem"
	SubsystemName = "infinispan"

	CacheContainer        = "cache-container"
	Configurations        = "configurations"
	ConfigurationsName    = "CONFIGURATIONS"
	ConfigurationSuffix   = "-configuration"
	LocalCache            = "local-cache"
	InvalidationCache     = "invalidation-cache"
	ReplicatedCache       = "replicated-cache"
	DistributedCache      = "distributed-cache"
	Transport             = "transport"
	TransportName         = "TRANSPORT"
	Security              = "security"
	SecurityName          = "SECURITY"
	Authorization         = "authorization"
	AuthorizationName     = "AUTHORIZATION"
	Role                  = "role"
	GlobalState           = "global-state"
	GlobalStateName       = "GLOBAL_STATE"
	ThreadPool            = "thread-pool"
	CountersKey           = "counters"
	CountersName          = "COUNTERS"
	StrongCounter         = "strong-counter"
	WeakCounter           = "weak-counter"
	Locking               = "locking"
	LockingName           = "LOCKING"
	TransactionKey        = "transaction"
	TransactionName       = "TRANSACTION"
	EvictionKey           = "eviction"
	EvictionName          = "EVICTION"
	ExpirationKey         = "expiration"
	ExpirationName        = "EXPIRATION"
	Compatibility         = "compatibility"
	CompatibilityName     = "COMPATIBILITY"
	StateTransfer         = "state-transfer"
	StateTransferName     = "STATE_TRANSFER"
	PartitionHandling     = "partition-handling"
	PartitionHandlingName = "PARTITION_HANDLING"
	BackupFor             = "backup-for"
	BackupForName         = "BACKUP_FOR"
	Backup                = "backup"
	IndexingKey           = "indexing"
	IndexingName          = "INDEXING"
	Loader                = "loader"
	LoaderName            = "LOADER"
	ClusterLoader         = "cluster-loader"
	ClusterLoaderName     = "CLUSTER_LOADER"
	Store                 = "store"
	StoreName             = "STORE"
	FileStore             = "file-store"
	FileStoreName         = "FILE_STORE"
	StringKeyedJDBCStore  = "string-keyed-jdbc-store"
	BinaryKeyedJDBCStore  = "binary-keyed-jdbc-store"
	MixedKeyedJDBCStore   = "mixed-keyed-jdbc-store"
	StringKeyedJDBCName   = "STRING_KEYED_JDBC_STORE"
	BinaryKeyedJDBCName   = "BINARY_KEYED_JDBC_STORE"
	MixedKeyedJDBCName    = "MIXED_KEYED_JDBC_STORE"
	RemoteStore           = "remote-store"
	RemoteStoreName       = "REMOTE_STORE"
	LevelDBStore          = "leveldb-store"
	LevelDBStoreName      = "LEVELDB_STORE"
	RestStore             = "rest-store"
	RestStoreName         = "REST_STORE"
	WriteBehind           = "write-behind"
	WriteBehindName       = "WRITE_BEHIND"
	Property              = "property"
	Compression           = "compression"
	CompressionName       = "COMPRESSION"
	ConnectionPool        = "connection-pool"
	ConnectionPoolName    = "CONNECTION_POOL"

	// container
	Aliases        = "aliases"
	DefaultCache   = "default-cache"
	JNDIName       = "jndi-name"
	Start          = "start"
	Module         = "module"
	Statistics     = "statistics"
	Name           = "name"
	ListenerExec   = "listener-executor"
	EvictionExec   = "eviction-executor"
	ReplQueueExec  = "replication-queue-executor"
	Channel        = "channel"
	LockTimeout    = "lock-timeout"
	StrictP2P      = "strict-peer-to-peer"
	InitialSize    = "initial-cluster-size"
	InitialTimeout = "initial-cluster-timeout"
	AuditLogger    = "audit-logger"
	Mapper         = "mapper"
	Permissions    = "permissions"

	PersistentLocation       = "persistent-location"
	SharedPersistentLocation = "shared-persistent-location"
	TemporaryLocation        = "temporary-location"
	ConfigurationStorageKey  = "configuration-storage"
	ConfigurationStorageCls  = "configuration-storage-class"
	Path                     = "path"
	RelativeTo               = "relative-to"

	MinThreads    = "min-threads"
	MaxThreads    = "max-threads"
	QueueLength   = "queue-length"
	KeepaliveTime = "keepalive-time"

	ReliabilityKey   = "reliability"
	NumOwners        = "num-owners"
	InitialValue     = "initial-value"
	Storage          = "storage"
	LowerBound       = "lower-bound"
	UpperBound       = "upper-bound"
	ConcurrencyLevel = "concurrency-level"

	// cache configuration
	Configuration      = "configuration"
	Batching           = "batching"
	SimpleCache        = "simple-cache"
	ModeKey            = "mode"
	RemoteTimeout      = "remote-timeout"
	QueueSize          = "queue-size"
	QueueFlushInterval = "queue-flush-interval"
	AsyncMarshalling   = "async-marshalling"
	Owners             = "owners"
	Segments           = "segments"
	CapacityFactor     = "capacity-factor"
	L1Lifespan         = "l1-lifespan"

	Isolation        = "isolation"
	Striping         = "striping"
	AcquireTimeout   = "acquire-timeout"
	StopTimeout      = "stop-timeout"
	TxLockingKey     = "locking"
	Notifications    = "notifications"
	Strategy         = "strategy"
	MaxEntries       = "max-entries"
	MaxIdle          = "max-idle"
	Lifespan         = "lifespan"
	Interval         = "interval"
	Enabled          = "enabled"
	Marshaller       = "marshaller"
	Roles            = "roles"
	Timeout          = "timeout"
	ChunkSize        = "chunk-size"
	AwaitInitial     = "await-initial-transfer"
	RemoteCache      = "remote-cache"
	RemoteSite       = "remote-site"
	FailurePolicy    = "failure-policy"
	FailurePolicyCls = "failure-policy-class"
	AfterFailures    = "after-failures"
	MinWait          = "min-wait"
	MaxRetries       = "max-retries"
	WaitTime         = "wait-time"
	IndexingMode     = "indexing"
	AutoConfig       = "auto-config"
	IndexingProps    = "indexing-properties"
	IndexedEntities  = "indexed-entities"

	Class                 = "class"
	Shared                = "shared"
	Preload               = "preload"
	Passivation           = "passivation"
	FetchState            = "fetch-state"
	Purge                 = "purge"
	Singleton             = "singleton"
	ReadOnly              = "read-only"
	Properties            = "properties"
	Value                 = "value"
	Datasource            = "datasource"
	Dialect               = "dialect"
	StringKeyedTable      = "string-keyed-table"
	BinaryKeyedTable      = "binary-keyed-table"
	Prefix                = "prefix"
	BatchSize             = "batch-size"
	FetchSize             = "fetch-size"
	IDColumn              = "id-column"
	DataColumn            = "data-column"
	TimestampColumn       = "timestamp-column"
	TypeKey               = "type"
	Cache                 = "cache"
	HotRodWrapping        = "hotrod-wrapping"
	RawValues             = "raw-values"
	SocketTimeout         = "socket-timeout"
	TCPNoDelay            = "tcp-no-delay"
	RemoteServers         = "remote-servers"
	OutboundSocketBinding = "outbound-socket-binding"
	BlockSize             = "block-size"
	CacheSize             = "cache-size"
	ClearThreshold        = "clear-threshold"
	Implementation        = "implementation"
	AppendCacheName       = "append-cache-name-to-path"
	ConnectionTimeout     = "connection-timeout"
	MaxConnsPerHost       = "max-connections-per-host"
	MaxTotalConns         = "max-total-connections"
	BufferSize            = "buffer-size"
	FlushLockTimeout      = "flush-lock-timeout"
	ModQueueSize          = "modification-queue-size"
	ShutdownTimeout       = "shutdown-timeout"
	ThreadPoolSize        = "thread-pool-size"
)

// CacheTypes lists cache resource types in XML writer order.
var CacheTypes = []string{LocalCache, InvalidationCache, ReplicatedCache, DistributedCache}

// ConfigurationType returns the template resource type for a cache type.
func ConfigurationType(cacheType string) string { return cacheType + ConfigurationSuffix }

// IsClustered reports whether the cache type carries mode and remote-timeout.
func IsClustered(cacheType string) bool { return cacheType != LocalCache }

// ThreadPoolNames lists the container thread pools.
var ThreadPoolNames = []string{
	"async-operations", "expiration", "listener", "persistence",
	"remote-command", "replication-queue", "state-transfer", "transport",
}
