package subsystem

import (
	"fmt"
	"path/filepath"

	"github.com/infinispan/infinispan-subsystem/internal/configuration"
	"github.com/infinispan/infinispan-subsystem/internal/model"
	"github.com/infinispan/infinispan-subsystem/internal/msc"
	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

// ContainerPlan is the global configuration of a cache container and the facts its services need.
type ContainerPlan struct {
	Global       configuration.GlobalConfiguration
	Dependencies []configuration.Dependency
	Start        schema.StartMode
	Aliases      []string
	JNDIName     string
}

// ContainerConfigurationBuilder turns a cache-container resource into a global configuration.
type ContainerConfigurationBuilder struct {
	resolver schema.Resolver
}

func NewContainerConfigurationBuilder(resolver schema.Resolver) *ContainerConfigurationBuilder {
	return &ContainerConfigurationBuilder{resolver: resolver}
}

func (b *ContainerConfigurationBuilder) Build(m *model.Model, container string) (*ContainerPlan, error) {
	r, err := m.Read(containerAddress(container))
	if err != nil {
		return nil, fmt.Errorf("cache container %s: %w", container, err)
	}
	a := &attrReader{res: b.resolver}
	p := &ContainerPlan{
		Global: configuration.GlobalConfiguration{
			CacheManagerName: container,
			DefaultCacheName: a.str(r, schema.ContainerDefaultCache),
			Statistics:       a.boolean(r, schema.ContainerStatistics),
			JMXDomain:        "jboss." + schema.SubsystemName,
			Module:           a.str(r, schema.ContainerModule),
			ThreadPools:      map[string]configuration.ThreadPool{},
		},
		Start:    schema.StartMode(a.str(r, schema.ContainerStart)),
		Aliases:  a.strings(r, schema.ContainerAliases),
		JNDIName: a.str(r, schema.ContainerJNDIName),
	}
	g := &p.Global

	if t, ok := child(r, schema.Transport, schema.TransportName); ok {
		g.Transport = configuration.TransportConfig{
			ClusterName:            container,
			Channel:                a.str(t, schema.TransportChannel),
			DistributedSyncTimeout: a.millis(t, schema.TransportLockTimeout),
			StrictPeerToPeer:       a.boolean(t, schema.TransportStrictP2P),
			InitialClusterSize:     a.integer(t, schema.TransportInitialSize),
			InitialClusterTimeout:  a.millis(t, schema.TransportInitialTimeout),
		}
	}

	if sec, ok := child(r, schema.Security, schema.SecurityName); ok {
		if az, ok := child(sec, schema.Authorization, schema.AuthorizationName); ok {
			names, roles := children(az, schema.Role)
			perms := make(map[string][]string, len(names))
			for i, n := range names {
				perms[n] = a.strings(roles[i], schema.RolePermissions)
			}
			g.Security.Authorization = configuration.GlobalAuthorization{
				Enabled:     true,
				AuditLogger: a.str(az, schema.AuthzAuditLogger),
				Mapper:      schema.RoleMapper(a.str(az, schema.AuthzMapper)),
				MapperClass: a.str(az, schema.AuthzMapperClass),
				Roles:       perms,
			}
		}
	}

	if gs, ok := child(r, schema.GlobalState, schema.GlobalStateName); ok {
		b.globalState(a, p, container, gs)
	}

	for _, pool := range schema.ThreadPoolNames {
		tp, ok := child(r, schema.ThreadPool, pool)
		if !ok {
			continue
		}
		defs := schema.ThreadPoolAttributes(pool)
		tpc := configuration.ThreadPool{
			MaxThreads: a.integer(tp, poolAttribute(defs, schema.MaxThreads)),
			KeepAlive:  a.millis(tp, poolAttribute(defs, schema.KeepaliveTime)),
		}
		if !schema.IsScheduledPool(pool) {
			tpc.MinThreads = a.integer(tp, poolAttribute(defs, schema.MinThreads))
			tpc.QueueLength = a.integer(tp, poolAttribute(defs, schema.QueueLength))
		}
		g.ThreadPools[pool] = tpc
	}

	if c, ok := child(r, schema.CountersKey, schema.CountersName); ok {
		g.Counters = configuration.Counters{
			Reliability: schema.Reliability(a.str(c, schema.CountersReliability)),
			NumOwners:   a.integer(c, schema.CountersNumOwners),
		}
		names, strong := children(c, schema.StrongCounter)
		for i, sc := range strong {
			g.Counters.Strong = append(g.Counters.Strong, configuration.StrongCounter{
				Name:         names[i],
				InitialValue: a.long(sc, schema.CounterInitialValue),
				Storage:      schema.StorageType(a.str(sc, schema.CounterStorage)),
				LowerBound:   bound(a, sc, schema.CounterLowerBound),
				UpperBound:   bound(a, sc, schema.CounterUpperBound),
			})
		}
		names, weak := children(c, schema.WeakCounter)
		for i, wc := range weak {
			g.Counters.Weak = append(g.Counters.Weak, configuration.WeakCounter{
				Name:             names[i],
				InitialValue:     a.long(wc, schema.CounterInitialValue),
				Storage:          schema.StorageType(a.str(wc, schema.CounterStorage)),
				ConcurrencyLevel: a.integer(wc, schema.CounterConcurrency),
			})
		}
	}

	if a.err != nil {
		return nil, fmt.Errorf("cache container %s: %w", container, a.err)
	}
	return p, nil
}

type location struct {
	path, relativeTo string
	set              func(g *configuration.GlobalConfiguration, dir string)
}

// globalState resolves the state locations through the path manager once it is injected.
func (b *ContainerConfigurationBuilder) globalState(a *attrReader, p *ContainerPlan, container string, gs *model.Resource) {
	p.Global.GlobalState = configuration.GlobalState{
		Enabled:                 true,
		ConfigurationStorage:    schema.ConfigurationStorage(a.str(gs, schema.GSConfigurationStorage)),
		ConfigurationStorageCls: a.str(gs, schema.GSConfigurationStorageCls),
	}
	def := filepath.Join(schema.SubsystemName, container)
	read := func(d *schema.AttributeDefinition, relativeTo string, set func(*configuration.GlobalConfiguration, string)) location {
		v := a.value(gs, d)
		l := location{path: def, relativeTo: relativeTo, set: set}
		if p := v.Get(schema.Path).AsString(); p != "" {
			l.path = p
		}
		if rt := v.Get(schema.RelativeTo).AsString(); rt != "" {
			l.relativeTo = rt
		}
		return l
	}
	locations := []location{
		read(schema.GSPersistentLocation, "jboss.server.data.dir", func(g *configuration.GlobalConfiguration, d string) {
			g.GlobalState.PersistentLocation = d
		}),
		read(schema.GSSharedPersistentLocation, "jboss.server.data.dir", func(g *configuration.GlobalConfiguration, d string) {
			g.GlobalState.SharedPersistentLocation = d
		}),
		read(schema.GSTemporaryLocation, "jboss.server.temp.dir", func(g *configuration.GlobalConfiguration, d string) {
			g.GlobalState.TemporaryLocation = d
		}),
	}
	p.Dependencies = append(p.Dependencies, configuration.InjectedDependency(PathManagerServiceName, func(v any) error {
		pm, err := pathManager(v)
		if err != nil {
			return err
		}
		for _, l := range locations {
			dir, err := pm.Resolve(l.path, l.relativeTo)
			if err != nil {
				return err
			}
			l.set(&p.Global, dir)
		}
		return nil
	}))
}

func poolAttribute(defs []*schema.AttributeDefinition, name string) *schema.AttributeDefinition {
	for _, d := range defs {
		if d.Name == name {
			return d
		}
	}
	return schema.NewAttribute(name, schema.TypeInt)
}

func bound(a *attrReader, r *model.Resource, d *schema.AttributeDefinition) *int64 {
	if v := a.value(r, d); !v.IsDefined() {
		return nil
	}
	n := a.long(r, d)
	return &n
}

// startMode maps the start attribute onto a service mode.
func startMode(s schema.StartMode) msc.Mode {
	if s == schema.StartEager {
		return msc.Active
	}
	return msc.OnDemand
}
