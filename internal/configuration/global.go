package configuration

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

// GlobalConfiguration configures a cache manager.
type GlobalConfiguration struct {
	CacheManagerName string
	DefaultCacheName string
	Statistics       bool
	JMXDomain        string
	Module           string
	Transport        TransportConfig
	Security         GlobalSecurity
	GlobalState      GlobalState
	ThreadPools      map[string]ThreadPool
	Counters         Counters
}

// TransportConfig is undefined (no cluster) when ClusterName is empty.
type TransportConfig struct {
	ClusterName            string
	NodeName               string
	Channel                string
	DistributedSyncTimeout time.Duration
	StrictPeerToPeer       bool
	InitialClusterSize     int
	InitialClusterTimeout  time.Duration
}

func (t TransportConfig) IsClustered() bool { return t.ClusterName != "" }

type GlobalSecurity struct {
	Authorization GlobalAuthorization
}

type GlobalAuthorization struct {
	Enabled     bool
	AuditLogger string
	Mapper      schema.RoleMapper
	MapperClass string
	// Roles maps a role name to its permissions.
	Roles map[string][]string
}

type GlobalState struct {
	Enabled                  bool
	PersistentLocation       string
	SharedPersistentLocation string
	TemporaryLocation        string
	ConfigurationStorage     schema.ConfigurationStorage
	ConfigurationStorageCls  string
}

type ThreadPool struct {
	MinThreads  int
	MaxThreads  int
	QueueLength int
	KeepAlive   time.Duration
}

type Counters struct {
	Reliability schema.Reliability
	NumOwners   int
	Strong      []StrongCounter
	Weak        []WeakCounter
}

type StrongCounter struct {
	Name         string
	InitialValue int64
	Storage      schema.StorageType
	LowerBound   *int64
	UpperBound   *int64
}

type WeakCounter struct {
	Name             string
	InitialValue     int64
	Storage          schema.StorageType
	ConcurrencyLevel int
}

// Validate checks cross field constraints.
func (g GlobalConfiguration) Validate() error {
	var errs []error
	if g.CacheManagerName == "" {
		errs = append(errs, errors.New("cache manager name is required"))
	}
	a := g.Security.Authorization
	if a.Enabled && a.Mapper == schema.MapperCustom && a.MapperClass == "" {
		errs = append(errs, errors.New("custom role mapper requires a class"))
	}
	if g.GlobalState.ConfigurationStorage == schema.StorageCustom && g.GlobalState.ConfigurationStorageCls == "" {
		errs = append(errs, errors.New("custom configuration storage requires a class"))
	}
	for _, c := range g.Counters.Strong {
		if c.LowerBound != nil && c.InitialValue < *c.LowerBound {
			errs = append(errs, fmt.Errorf("counter %s initial value %d below lower bound %d", c.Name, c.InitialValue, *c.LowerBound))
		}
		if c.UpperBound != nil && c.InitialValue > *c.UpperBound {
			errs = append(errs, fmt.Errorf("counter %s initial value %d above upper bound %d", c.Name, c.InitialValue, *c.UpperBound))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid global configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (g GlobalConfiguration) Clone() GlobalConfiguration {
	out := g
	out.ThreadPools = maps.Clone(g.ThreadPools)
	out.Security.Authorization.Roles = make(map[string][]string, len(g.Security.Authorization.Roles))
	for k, v := range g.Security.Authorization.Roles {
		out.Security.Authorization.Roles[k] = slices.Clone(v)
	}
	out.Counters.Strong = slices.Clone(g.Counters.Strong)
	out.Counters.Weak = slices.Clone(g.Counters.Weak)
	return out
}
