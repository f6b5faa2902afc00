package schema

import (
	"fmt"
	"strings"
)

type CacheMode string

const (
	CacheModeLocal             CacheMode = "LOCAL"
	CacheModeReplSync          CacheMode = "REPL_SYNC"
	CacheModeReplAsync         CacheMode = "REPL_ASYNC"
	CacheModeDistSync          CacheMode = "DIST_SYNC"
	CacheModeDistAsync         CacheMode = "DIST_ASYNC"
	CacheModeInvalidationSync  CacheMode = "INVALIDATION_SYNC"
	CacheModeInvalidationAsync CacheMode = "INVALIDATION_ASYNC"
)

func (m CacheMode) IsClustered() bool    { return m != CacheModeLocal }
func (m CacheMode) IsSynchronous() bool  { return m == CacheModeLocal || strings.HasSuffix(string(m), "_SYNC") }
func (m CacheMode) IsDistributed() bool  { return m == CacheModeDistSync || m == CacheModeDistAsync }
func (m CacheMode) IsReplicated() bool   { return m == CacheModeReplSync || m == CacheModeReplAsync }
func (m CacheMode) IsInvalidation() bool { return m == CacheModeInvalidationSync || m == CacheModeInvalidationAsync }

// ToSync returns the synchronous variant of a clustered mode.
func (m CacheMode) ToSync() CacheMode {
	if m.IsSynchronous() {
		return m
	}
	return CacheMode(strings.TrimSuffix(string(m), "_ASYNC") + "_SYNC")
}

// ToAsync returns the asynchronous variant of a clustered mode.
func (m CacheMode) ToAsync() CacheMode {
	if m == CacheModeLocal || !m.IsSynchronous() {
		return m
	}
	return CacheMode(strings.TrimSuffix(string(m), "_SYNC") + "_ASYNC")
}

// Apply combines a base mode with the declared synchrony.
func (m CacheMode) Apply(mode Mode) CacheMode {
	if m == CacheModeLocal {
		return m
	}
	if mode == ModeAsync {
		return m.ToAsync()
	}
	return m.ToSync()
}

// CacheModeOf maps a cache resource type to its synchronous cache mode.
func CacheModeOf(cacheType string) (CacheMode, error) {
	switch strings.TrimSuffix(cacheType, ConfigurationSuffix) {
	case LocalCache:
		return CacheModeLocal, nil
	case ReplicatedCache:
		return CacheModeReplSync, nil
	case DistributedCache:
		return CacheModeDistSync, nil
	case InvalidationCache:
		return CacheModeInvalidationSync, nil
	}
	return "", fmt.Errorf("unknown cache type %q", cacheType)
}

type Mode string

const (
	ModeSync  Mode = "SYNC"
	ModeAsync Mode = "ASYNC"
)

type StartMode string

const (
	StartEager StartMode = "EAGER"
	StartLazy  StartMode = "LAZY"
)

type EvictionStrategy string

const (
	EvictionNone      EvictionStrategy = "NONE"
	EvictionManual    EvictionStrategy = "MANUAL"
	EvictionUnordered EvictionStrategy = "UNORDERED"
	EvictionFIFO      EvictionStrategy = "FIFO"
	EvictionLRU       EvictionStrategy = "LRU"
	EvictionLIRS      EvictionStrategy = "LIRS"
)

// IsEnabled reports whether the strategy bounds the data container.
func (s EvictionStrategy) IsEnabled() bool { return s != EvictionNone && s != EvictionManual }

type IsolationLevel string

const (
	IsolationNone           IsolationLevel = "NONE"
	IsolationReadUncommited IsolationLevel = "READ_UNCOMMITTED"
	IsolationReadCommitted  IsolationLevel = "READ_COMMITTED"
	IsolationRepeatableRead IsolationLevel = "REPEATABLE_READ"
	IsolationSerializable   IsolationLevel = "SERIALIZABLE"
)

type LockingMode string

const (
	LockingOptimistic  LockingMode = "OPTIMISTIC"
	LockingPessimistic LockingMode = "PESSIMISTIC"
)

type TransactionMode string

const (
	TxNone         TransactionMode = "NONE"
	TxBatch        TransactionMode = "BATCH"
	TxNonXA        TransactionMode = "NON_XA"
	TxNonDurableXA TransactionMode = "NON_DURABLE_XA"
	TxFullXA       TransactionMode = "FULL_XA"
)

func (m TransactionMode) IsTransactional() bool { return m != TxNone }
func (m TransactionMode) IsXAEnabled() bool     { return m == TxNonDurableXA || m == TxFullXA }
func (m TransactionMode) IsRecoveryEnabled() bool {
	return m == TxFullXA
}

type Indexing string

const (
	IndexNone  Indexing = "NONE"
	IndexLocal Indexing = "LOCAL"
	IndexAll   Indexing = "ALL"
)

func (i Indexing) IsEnabled() bool    { return i != IndexNone }
func (i Indexing) IsLocalOnly() bool  { return i == IndexLocal }

type BackupFailurePolicy string

const (
	FailureIgnore BackupFailurePolicy = "IGNORE"
	FailureWarn   BackupFailurePolicy = "WARN"
	FailureFail   BackupFailurePolicy = "FAIL"
	FailureCustom BackupFailurePolicy = "CUSTOM"
)

type BackupStrategy string

const (
	BackupSync  BackupStrategy = "SYNC"
	BackupAsync BackupStrategy = "ASYNC"
)

type StorageType string

const (
	StorageVolatile   StorageType = "VOLATILE"
	StoragePersistent StorageType = "PERSISTENT"
)

type Reliability string

const (
	ReliabilityAvailable  Reliability = "AVAILABLE"
	ReliabilityConsistent Reliability = "CONSISTENT"
)

type CompressionType string

const (
	CompressionNone   CompressionType = "NONE"
	CompressionSnappy CompressionType = "SNAPPY"
)

type LevelDBImplementation string

const (
	LevelDBAuto LevelDBImplementation = "AUTO"
	LevelDBJava LevelDBImplementation = "JAVA"
	LevelDBJNI  LevelDBImplementation = "JNI"
)

type ConfigurationStorage string

const (
	StorageImmutable ConfigurationStorage = "IMMUTABLE"
	StorageVolatileC ConfigurationStorage = "VOLATILE"
	StorageOverlay   ConfigurationStorage = "OVERLAY"
	StorageManaged   ConfigurationStorage = "MANAGED"
	StorageCustom    ConfigurationStorage = "CUSTOM"
)

// RoleMapper names the principal to role mapper of container authorization.
type RoleMapper string

const (
	MapperIdentity   RoleMapper = "identity-role-mapper"
	MapperCommonName RoleMapper = "common-name-role-mapper"
	MapperCluster    RoleMapper = "cluster-role-mapper"
	MapperCustom     RoleMapper = "custom-role-mapper"
)

// Permissions known by container authorization roles.
var AllPermissions = []string{
	"LIFECYCLE", "READ", "WRITE", "EXEC", "LISTEN", "BULK_READ", "BULK_WRITE",
	"ADMIN", "ALL", "ALL_READ", "ALL_WRITE", "NONE",
}

func values[T ~string](vs ...T) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = string(v)
	}
	return out
}

var (
	cacheModeValues   = values(CacheModeLocal, CacheModeReplSync, CacheModeReplAsync, CacheModeDistSync, CacheModeDistAsync, CacheModeInvalidationSync, CacheModeInvalidationAsync)
	modeValues        = values(ModeSync, ModeAsync)
	startValues       = values(StartEager, StartLazy)
	evictionValues    = values(EvictionNone, EvictionManual, EvictionUnordered, EvictionFIFO, EvictionLRU, EvictionLIRS)
	isolationValues   = values(IsolationNone, IsolationReadUncommited, IsolationReadCommitted, IsolationRepeatableRead, IsolationSerializable)
	lockingValues     = values(LockingOptimistic, LockingPessimistic)
	txValues          = values(TxNone, TxBatch, TxNonXA, TxNonDurableXA, TxFullXA)
	indexingValues    = values(IndexNone, IndexLocal, IndexAll)
	failureValues     = values(FailureIgnore, FailureWarn, FailureFail, FailureCustom)
	strategyValues    = values(BackupSync, BackupAsync)
	storageValues     = values(StorageVolatile, StoragePersistent)
	reliabilityValues = values(ReliabilityAvailable, ReliabilityConsistent)
	compressionValues = values(CompressionNone, CompressionSnappy)
	levelDBValues     = values(LevelDBAuto, LevelDBJava, LevelDBJNI)
	cfgStorageValues  = values(StorageImmutable, StorageVolatileC, StorageOverlay, StorageManaged, StorageCustom)
	mapperValues      = values(MapperIdentity, MapperCommonName, MapperCluster, MapperCustom)
)
