package configuration

import (
	"maps"
	"slices"
	"time"

	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

// StoreKind tells which store specific section of a Store is populated.
type StoreKind string

const (
	KindCustomLoader  StoreKind = "loader"
	KindClusterLoader StoreKind = "cluster-loader"
	KindCustomStore   StoreKind = "store"
	KindFile          StoreKind = "file-store"
	KindJDBCString    StoreKind = "string-keyed-jdbc-store"
	KindJDBCBinary    StoreKind = "binary-keyed-jdbc-store"
	KindJDBCMixed     StoreKind = "mixed-keyed-jdbc-store"
	KindRemote        StoreKind = "remote-store"
	KindLevelDB       StoreKind = "leveldb-store"
	KindRest          StoreKind = "rest-store"
)

// IsLoader reports whether the store only loads entries.
func (k StoreKind) IsLoader() bool { return k == KindCustomLoader || k == KindClusterLoader }

// Store is a loader or store of the persistence section.
type Store struct {
	Kind                 StoreKind
	Name                 string
	Class                string
	Shared               bool
	Preload              bool
	Passivation          bool
	FetchPersistentState bool
	PurgeOnStartup       bool
	Singleton            bool
	IgnoreModifications  bool
	Properties           map[string]string
	WriteBehind          *WriteBehind

	ClusterLoader *ClusterLoaderStore
	File          *FileStore
	JDBC          *JDBCStore
	Remote        *RemoteStore
	LevelDB       *LevelDBStore
	Rest          *RestStore
}

type WriteBehind struct {
	FlushLockTimeout      time.Duration
	ModificationQueueSize int
	ShutdownTimeout       time.Duration
	ThreadPoolSize        int
}

type ClusterLoaderStore struct {
	RemoteCallTimeout time.Duration
}

type FileStore struct {
	// Location is empty until the path manager dependency is injected.
	Location   string
	MaxEntries int64
}

type JDBCStore struct {
	// Datasource is the JNDI name of the injected data source.
	Datasource  string
	Dialect     string
	StringTable *Table
	BinaryTable *Table
}

type Table struct {
	Prefix          string
	BatchSize       int
	FetchSize       int
	IDColumn        Column
	DataColumn      Column
	TimestampColumn Column
}

type Column struct {
	Name string
	Type string
}

type RemoteServer struct {
	Host string
	Port int
}

type RemoteStore struct {
	RemoteCacheName string
	HotRodWrapping  bool
	RawValues       bool
	SocketTimeout   time.Duration
	TCPNoDelay      bool
	Servers         []RemoteServer
}

type LevelDBStore struct {
	Location        string
	ExpiredLocation string
	BlockSize       int
	CacheSize       int64
	ClearThreshold  int
	ExpiryQueueSize int
	Compression     schema.CompressionType
	Implementation  schema.LevelDBImplementation
}

type RestStore struct {
	Path                  string
	AppendCacheNameToPath bool
	Servers               []RemoteServer
	Pool                  ConnectionPool
}

type ConnectionPool struct {
	ConnectionTimeout     time.Duration
	MaxConnectionsPerHost int
	MaxTotalConnections   int
	BufferSize            int
	SocketTimeout         time.Duration
	TCPNoDelay            bool
}

func (s Store) clone() Store {
	out := s
	out.Properties = maps.Clone(s.Properties)
	if s.WriteBehind != nil {
		wb := *s.WriteBehind
		out.WriteBehind = &wb
	}
	if s.ClusterLoader != nil {
		cl := *s.ClusterLoader
		out.ClusterLoader = &cl
	}
	if s.File != nil {
		f := *s.File
		out.File = &f
	}
	if s.JDBC != nil {
		j := *s.JDBC
		if j.StringTable != nil {
			t := *j.StringTable
			j.StringTable = &t
		}
		if j.BinaryTable != nil {
			t := *j.BinaryTable
			j.BinaryTable = &t
		}
		out.JDBC = &j
	}
	if s.Remote != nil {
		r := *s.Remote
		r.Servers = slices.Clone(s.Remote.Servers)
		out.Remote = &r
	}
	if s.LevelDB != nil {
		l := *s.LevelDB
		out.LevelDB = &l
	}
	if s.Rest != nil {
		r := *s.Rest
		r.Servers = slices.Clone(s.Rest.Servers)
		out.Rest = &r
	}
	return out
}
