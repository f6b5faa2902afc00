package schema

import (
	"fmt"

	"github.com/infinispan/infinispan-subsystem/internal/model"
)

// ResourceDefinition describes the attributes and child types of an addressable resource.
type ResourceDefinition struct {
	Path       model.PathElement
	Attributes []*AttributeDefinition
	Children   []*ResourceDefinition
}

func resource(path model.PathElement, attrs []*AttributeDefinition, children ...*ResourceDefinition) *ResourceDefinition {
	return &ResourceDefinition{Path: path, Attributes: attrs, Children: children}
}

func attrs(as ...*AttributeDefinition) []*AttributeDefinition { return as }

// Attribute looks an attribute up by model name.
func (d *ResourceDefinition) Attribute(name string) (*AttributeDefinition, bool) {
	for _, a := range d.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// Child returns the child definition for e, preferring an exact match over a wildcard.
func (d *ResourceDefinition) Child(e model.PathElement) (*ResourceDefinition, bool) {
	var wildcard *ResourceDefinition
	for _, c := range d.Children {
		if c.Path.Key != e.Key {
			continue
		}
		if c.Path.Value == e.Value {
			return c, true
		}
		if c.Path.IsWildcard() {
			wildcard = c
		}
	}
	return wildcard, wildcard != nil
}

// Describe renders the definition as read-resource-description does.
func (d *ResourceDefinition) Describe() model.Value {
	out := model.NewObject()
	as := model.NewObject()
	for _, a := range d.Attributes {
		desc := model.NewObject()
		desc.Set("type", model.StringValue(typeNames[a.Type]))
		desc.Set("required", model.BoolValue(a.Required))
		desc.Set("expressions-allowed", model.BoolValue(a.AllowExpression))
		if a.Default.IsDefined() {
			desc.Set("default", a.Default)
		}
		if e, ok := a.Validator.(EnumValidator); ok {
			desc.Set("allowed", model.StringList(e...))
		}
		switch {
		case a.Has(ReloadRequired):
			desc.Set("restart-required", model.StringValue("all-services"))
		case a.Has(RestartResourceServices):
			desc.Set("restart-required", model.StringValue("resource-services"))
		default:
			desc.Set("restart-required", model.StringValue("no-services"))
		}
		if a.DeprecatedSince > 0 {
			desc.Set("deprecated", model.StringValue(fmt.Sprintf("%d.%d", a.DeprecatedSince/10, a.DeprecatedSince%10)))
		}
		as.Set(a.Name, desc)
	}
	out.Set("attributes", as)
	children := model.NewObject()
	for _, c := range d.Children {
		children.Set(c.Path.String(), model.Value{})
	}
	out.Set("children", children)
	return out
}

var typeNames = map[Type]string{
	TypeString: "STRING", TypeInt: "INT", TypeLong: "LONG", TypeDouble: "DOUBLE",
	TypeBool: "BOOLEAN", TypeList: "LIST", TypeObject: "OBJECT",
}

// Registry resolves addresses to definitions from the subsystem root.
type Registry struct {
	root *ResourceDefinition
}

// SubsystemAddress is the address of the subsystem root resource.
var SubsystemAddress = model.Address(model.Element(Subsystem, SubsystemName))

// NewRegistry builds the full subsystem definition tree.
func NewRegistry() *Registry {
	sub := resource(model.Element(Subsystem, SubsystemName), nil, containerDefinition())
	return &Registry{root: resource(model.PathElement{}, nil, sub)}
}

func (r *Registry) Lookup(addr model.PathAddress) (*ResourceDefinition, error) {
	cur := r.root
	for _, e := range addr {
		next, ok := cur.Child(e)
		if !ok {
			return nil, fmt.Errorf("no resource definition for %s", addr)
		}
		cur = next
	}
	return cur, nil
}

func containerDefinition() *ResourceDefinition {
	children := []*ResourceDefinition{
		resource(model.Element(Transport, TransportName), attrs(
			TransportChannel, TransportLockTimeout, TransportStrictP2P, TransportInitialSize, TransportInitialTimeout,
		)),
		resource(model.Element(Security, SecurityName), nil,
			resource(model.Element(Authorization, AuthorizationName), attrs(AuthzAuditLogger, AuthzMapper, AuthzMapperClass),
				resource(model.WildcardElement(Role), attrs(RolePermissions)),
			),
		),
		resource(model.Element(GlobalState, GlobalStateName), attrs(
			GSPersistentLocation, GSSharedPersistentLocation, GSTemporaryLocation, GSConfigurationStorage, GSConfigurationStorageCls,
		)),
		resource(model.Element(CountersKey, CountersName), attrs(CountersReliability, CountersNumOwners),
			resource(model.WildcardElement(StrongCounter), attrs(CounterInitialValue, CounterStorage, CounterLowerBound, CounterUpperBound)),
			resource(model.WildcardElement(WeakCounter), attrs(CounterInitialValue, CounterStorage, CounterConcurrency)),
		),
	}
	for _, pool := range ThreadPoolNames {
		children = append(children, resource(model.Element(ThreadPool, pool), ThreadPoolAttributes(pool)))
	}
	configs := resource(model.Element(Configurations, ConfigurationsName), nil)
	for _, typ := range CacheTypes {
		configs.Children = append(configs.Children, configurationDefinition(typ))
		children = append(children, resource(model.WildcardElement(typ), attrs(CacheConfigurationRef)))
	}
	children = append(children, configs)
	return resource(model.WildcardElement(CacheContainer), attrs(
		ContainerAliases, ContainerDefaultCache, ContainerJNDIName, ContainerStart, ContainerModule, ContainerStatistics,
		ContainerListenerExec, ContainerEvictionExec, ContainerReplQueExec,
	), children...)
}

// ConfigurationAttributes returns the attributes of a cache configuration resource of the given cache type.
func ConfigurationAttributes(cacheType string) []*AttributeDefinition {
	as := attrs(CacheConfigurationParent, CacheStart, CacheBatching, CacheJNDIName, CacheModule, CacheSimpleCache,
		CacheStatistics, CacheRemoteCache, CacheRemoteSite)
	if IsClustered(cacheType) {
		as = append(as, ClusteredMode, ClusteredRemoteTimeout, ClusteredQueueSize, ClusteredQueueFlushInterval, ClusteredAsyncMarshalling)
	}
	if cacheType == DistributedCache {
		as = append(as, DistOwners, DistSegments, DistCapacityFactor, DistL1Lifespan)
	}
	return as
}

func configurationDefinition(cacheType string) *ResourceDefinition {
	property := resource(model.WildcardElement(Property), attrs(PropertyValue))
	writeBehind := resource(model.Element(WriteBehind, WriteBehindName), attrs(
		WriteBehindFlushLockTimeout, WriteBehindModQueueSize, WriteBehindShutdownTimeout, WriteBehindThreadPoolSize,
	))
	store := func(typ string, specific ...*AttributeDefinition) *ResourceDefinition {
		return resource(model.WildcardElement(typ), append(append([]*AttributeDefinition{}, specific...), StoreAttributes...), writeBehind, property)
	}

	children := []*ResourceDefinition{
		resource(model.Element(Locking, LockingName), attrs(LockingIsolation, LockingStriping, LockingAcquire, LockingConcurrency)),
		resource(model.Element(TransactionKey, TransactionName), attrs(TxMode, TxStopTimeout, TxLocking, TxNotifications)),
		resource(model.Element(EvictionKey, EvictionName), attrs(EvictionStrategyAttr, EvictionMaxEntries)),
		resource(model.Element(ExpirationKey, ExpirationName), attrs(ExpirationMaxIdle, ExpirationLifespan, ExpirationInterval)),
		resource(model.Element(Compatibility, CompatibilityName), attrs(CompatibilityEnabled, CompatibilityMarshaller)),
		resource(model.Element(Security, SecurityName), nil,
			resource(model.Element(Authorization, AuthorizationName), attrs(CacheAuthzEnabled, CacheAuthzRoles)),
		),
		resource(model.Element(IndexingKey, IndexingName), attrs(IndexingAttr, IndexingAutoConfig, IndexingProperties, IndexingEntities)),
		resource(model.WildcardElement(Backup), attrs(
			BackupStrategyAttr, BackupFailurePolicyAttr, BackupFailurePolicyCls, BackupTimeout, BackupEnabled, BackupAfterFailures, BackupMinWait,
		), resource(model.Element(StateTransfer, StateTransferName), attrs(BackupSTChunkSize, BackupSTTimeout, BackupSTMaxRetries, BackupSTWaitTime))),
		resource(model.WildcardElement(Loader), append(attrs(LoaderClass), LoaderAttributes...), property),
		resource(model.WildcardElement(ClusterLoader), append(attrs(ClusterLoaderRemoteTimeout), LoaderAttributes...), property),
		store(Store, LoaderClass),
		store(FileStore, FileStoreMaxEntries, FileStoreRelativeTo, FileStorePath),
		store(StringKeyedJDBCStore, JDBCDatasource, JDBCDialect, JDBCStringKeyedTable),
		store(BinaryKeyedJDBCStore, JDBCDatasource, JDBCDialect, JDBCBinaryKeyedTable),
		store(MixedKeyedJDBCStore, JDBCDatasource, JDBCDialect, JDBCStringKeyedTable, JDBCBinaryKeyedTable),
		store(RemoteStore, RemoteStoreCache, RemoteStoreHotRodWrap, RemoteStoreRawValues, RemoteStoreSocketTimeout, RemoteStoreTCPNoDelay, RemoteStoreServers),
		resource(model.WildcardElement(LevelDBStore),
			append(attrs(LevelDBPath, LevelDBRelativeTo, LevelDBBlockSize, LevelDBCacheSize, LevelDBClearThreshold, LevelDBImpl), StoreAttributes...),
			writeBehind, property,
			resource(model.Element(ExpirationKey, ExpirationName), attrs(LevelDBExpPath, LevelDBExpQueueSize)),
			resource(model.Element(Compression, CompressionName), attrs(CompressionTypeAttr)),
		),
		resource(model.WildcardElement(RestStore),
			append(attrs(RestStorePath, RestStoreAppendName, RestStoreServers), StoreAttributes...),
			writeBehind, property,
			resource(model.Element(ConnectionPool, ConnectionPoolName), attrs(
				PoolConnectionTimeout, PoolMaxConnsPerHost, PoolMaxTotalConns, PoolBufferSize, PoolSocketTimeout, PoolTCPNoDelay,
			)),
		),
	}
	if cacheType == ReplicatedCache || cacheType == DistributedCache {
		children = append(children,
			resource(model.Element(StateTransfer, StateTransferName), attrs(StateTransferEnabled, StateTransferTimeout, StateTransferChunkSize, StateTransferAwait)),
			resource(model.Element(PartitionHandling, PartitionHandlingName), attrs(PartitionHandlingEnabled)),
		)
	}
	return resource(model.WildcardElement(ConfigurationType(cacheType)), ConfigurationAttributes(cacheType), children...)
}

// StoreTypes lists store resource types in the order the builder processes them.
var StoreTypes = []string{
	Store, FileStore, StringKeyedJDBCStore, BinaryKeyedJDBCStore, MixedKeyedJDBCStore, RemoteStore, LevelDBStore, RestStore,
}

// DefaultStoreName returns the fixed child name used when a store or loader element has no name.
func DefaultStoreName(storeType string) string {
	switch storeType {
	case Loader:
		return LoaderName
	case ClusterLoader:
		return ClusterLoaderName
	case Store:
		return StoreName
	case FileStore:
		return FileStoreName
	case StringKeyedJDBCStore:
		return StringKeyedJDBCName
	case BinaryKeyedJDBCStore:
		return BinaryKeyedJDBCName
	case MixedKeyedJDBCStore:
		return MixedKeyedJDBCName
	case RemoteStore:
		return RemoteStoreName
	case LevelDBStore:
		return LevelDBStoreName
	case RestStore:
		return RestStoreName
	}
	return ""
}
