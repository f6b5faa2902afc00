package configuration

import (
	"maps"
	"slices"
	"time"

	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

// Configuration is the immutable configuration of a single cache.
type Configuration struct {
	Template           bool          `yaml:"template"`
	SimpleCache        bool          `yaml:"simple-cache"`
	Statistics         bool          `yaml:"statistics"`
	InvocationBatching bool          `yaml:"invocation-batching"`
	Clustering         Clustering    `yaml:"clustering"`
	Locking            Locking       `yaml:"locking"`
	Transaction        Transaction   `yaml:"transaction"`
	Eviction           Eviction      `yaml:"eviction"`
	Expiration         Expiration    `yaml:"expiration"`
	Persistence        Persistence   `yaml:"persistence"`
	Sites              Sites         `yaml:"sites"`
	Indexing           Indexing      `yaml:"indexing"`
	Compatibility      Compatibility `yaml:"compatibility"`
	Security           Security      `yaml:"security"`
}

type Clustering struct {
	CacheMode         schema.CacheMode  `yaml:"cache-mode"`
	RemoteTimeout     time.Duration     `yaml:"remote-timeout"`
	Async             Async             `yaml:"async"`
	Hash              Hash              `yaml:"hash"`
	L1                L1                `yaml:"l1"`
	StateTransfer     StateTransfer     `yaml:"state-transfer"`
	PartitionHandling PartitionHandling `yaml:"partition-handling"`
}

type Async struct {
	UseReplQueue         bool          `yaml:"use-repl-queue"`
	ReplQueueMaxElements int           `yaml:"repl-queue-max-elements"`
	ReplQueueInterval    time.Duration `yaml:"repl-queue-interval"`
	AsyncMarshalling     bool          `yaml:"async-marshalling"`
}

type Hash struct {
	NumOwners      int     `yaml:"num-owners"`
	NumSegments    int     `yaml:"num-segments"`
	CapacityFactor float64 `yaml:"capacity-factor"`
}

type L1 struct {
	Enabled  bool          `yaml:"enabled"`
	Lifespan time.Duration `yaml:"lifespan"`
}

type StateTransfer struct {
	FetchInMemoryState   bool          `yaml:"fetch-in-memory-state"`
	AwaitInitialTransfer bool          `yaml:"await-initial-transfer"`
	Timeout              time.Duration `yaml:"timeout"`
	ChunkSize            int           `yaml:"chunk-size"`
}

type PartitionHandling struct {
	Enabled bool `yaml:"enabled"`
}

type Locking struct {
	Isolation        schema.IsolationLevel `yaml:"isolation"`
	UseLockStriping  bool                  `yaml:"striping"`
	AcquireTimeout   time.Duration         `yaml:"acquire-timeout"`
	ConcurrencyLevel int                   `yaml:"concurrency-level"`
}

type Transaction struct {
	Transactional      bool               `yaml:"transactional"`
	LockingMode        schema.LockingMode `yaml:"locking-mode"`
	UseSynchronization bool               `yaml:"use-synchronization"`
	Recovery           bool               `yaml:"recovery"`
	SyncCommitPhase    bool               `yaml:"sync-commit-phase"`
	SyncRollbackPhase  bool               `yaml:"sync-rollback-phase"`
	StopTimeout        time.Duration      `yaml:"stop-timeout"`
	Notifications      bool               `yaml:"notifications"`
	// Manager is the transaction manager injected at service start; nil without a transactional setup.
	Manager TransactionManager `yaml:"-"`
}

type Eviction struct {
	Strategy   schema.EvictionStrategy `yaml:"strategy"`
	MaxEntries int64                   `yaml:"max-entries"`
}

// Expiration durations below or equal to zero mean entries never expire by that criterion.
type Expiration struct {
	MaxIdle        time.Duration `yaml:"max-idle"`
	Lifespan       time.Duration `yaml:"lifespan"`
	WakeUpInterval time.Duration `yaml:"wake-up-interval"`
	ReaperEnabled  bool          `yaml:"reaper-enabled"`
}

type Persistence struct {
	Passivation bool    `yaml:"passivation"`
	Stores      []Store `yaml:"-"`
}

type Sites struct {
	Backups   []Backup  `yaml:"-"`
	BackupFor BackupFor `yaml:"backup-for"`
	InUse     []string  `yaml:"-"`
}

type BackupFor struct {
	RemoteCache string `yaml:"remote-cache"`
	RemoteSite  string `yaml:"remote-site"`
}

func (b BackupFor) IsDefined() bool { return b.RemoteSite != "" }

type Backup struct {
	Site               string
	Strategy           schema.BackupStrategy
	FailurePolicy      schema.BackupFailurePolicy
	FailurePolicyClass string
	ReplicationTimeout time.Duration
	Enabled            bool
	TakeOffline        TakeOffline
	StateTransfer      BackupStateTransfer
}

type TakeOffline struct {
	AfterFailures int
	MinWait       time.Duration
}

func (t TakeOffline) Enabled() bool { return t.AfterFailures > 0 || t.MinWait > 0 }

type BackupStateTransfer struct {
	ChunkSize  int
	Timeout    time.Duration
	MaxRetries int
	WaitTime   time.Duration
}

type Indexing struct {
	Index           schema.Indexing   `yaml:"index"`
	AutoConfig      bool              `yaml:"auto-config"`
	Properties      map[string]string `yaml:"properties"`
	IndexedEntities []string          `yaml:"indexed-entities"`
}

type Compatibility struct {
	Enabled    bool   `yaml:"enabled"`
	Marshaller string `yaml:"marshaller"`
}

type Security struct {
	Authorization Authorization `yaml:"authorization"`
}

type Authorization struct {
	Enabled bool     `yaml:"enabled"`
	Roles   []string `yaml:"roles"`
}

// Clone returns a deep copy that shares nothing mutable with c.
func (c Configuration) Clone() Configuration {
	out := c
	out.Persistence.Stores = make([]Store, len(c.Persistence.Stores))
	for i, s := range c.Persistence.Stores {
		out.Persistence.Stores[i] = s.clone()
	}
	out.Sites.Backups = slices.Clone(c.Sites.Backups)
	out.Sites.InUse = slices.Clone(c.Sites.InUse)
	out.Indexing.Properties = maps.Clone(c.Indexing.Properties)
	out.Indexing.IndexedEntities = slices.Clone(c.Indexing.IndexedEntities)
	out.Security.Authorization.Roles = slices.Clone(c.Security.Authorization.Roles)
	return out
}

// TransactionManager is the minimal contract the embedded cache needs from a transaction manager.
type TransactionManager interface {
	Name() string
}
