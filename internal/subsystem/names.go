package subsystem

import (
	"github.com/infinispan/infinispan-subsystem/internal/model"
	"github.com/infinispan/infinispan-subsystem/internal/msc"
	"github.com/infinispan/infinispan-subsystem/internal/naming"
	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

// DefaultCacheAlias replaces the cache name in the alias service names of a container's default cache.
const DefaultCacheAlias = "default"

var infinispan = msc.JBoss.Append("infinispan")

// Platform services the subsystem depends on but does not own.
var (
	PathManagerServiceName        = msc.JBoss.Append("path", "manager")
	TransactionManagerServiceName = msc.JBoss.Append("txn", "TransactionManager")
	SyncRegistryServiceName       = msc.JBoss.Append("txn", "TransactionSynchronizationRegistry")
	RecoveryRegistryServiceName   = msc.JBoss.Append("txn", "ArjunaRecoveryManager")
)

func ContainerServiceName(container string) msc.ServiceName { return infinispan.Append(container) }

func GlobalConfigurationServiceName(container string) msc.ServiceName {
	return ContainerServiceName(container).Append("config")
}

func CacheServiceName(container, cache string) msc.ServiceName {
	return ContainerServiceName(container).Append(cache)
}

func CacheConfigurationServiceName(container, cache string) msc.ServiceName {
	return CacheServiceName(container, cache).Append("config")
}

// TemplateServiceName is the service holding a configuration inherited by other configurations.
func TemplateServiceName(container, configuration string) msc.ServiceName {
	return ContainerServiceName(container).Append(schema.Configurations, configuration)
}

func DataSourceServiceName(jndiName string) msc.ServiceName {
	return msc.JBoss.Append("data-source", naming.Parse(jndiName))
}

func OutboundSocketBindingServiceName(name string) msc.ServiceName {
	return msc.JBoss.Append("outbound-socket-binding", name)
}

func containerAddress(container string) model.PathAddress {
	return schema.SubsystemAddress.Append(model.Element(schema.CacheContainer, container))
}

func cacheAddress(container, cacheType, cache string) model.PathAddress {
	return containerAddress(container).Append(model.Element(cacheType, cache))
}

func configurationsAddress(container string) model.PathAddress {
	return containerAddress(container).Append(model.Element(schema.Configurations, schema.ConfigurationsName))
}

func configurationAddress(container, cacheType, name string) model.PathAddress {
	return configurationsAddress(container).Append(model.Element(schema.ConfigurationType(cacheType), name))
}

type targetKind int

const (
	kindUnknown targetKind = iota
	kindSubsystem
	kindContainer
	kindContainerChild
	kindConfigurations
	kindConfiguration
	kindConfigurationChild
	kindCache
)

// target locates an address within the subsystem tree.
type target struct {
	kind      targetKind
	container string
	cacheType string
	name      string
}

func classify(addr model.PathAddress) target {
	if len(addr) == 0 || addr[0].Key != schema.Subsystem {
		return target{}
	}
	if len(addr) == 1 {
		return target{kind: kindSubsystem}
	}
	t := target{container: addr[1].Value}
	if len(addr) == 2 {
		t.kind = kindContainer
		return t
	}
	e := addr[2]
	if e.Key == schema.Configurations {
		if len(addr) == 3 {
			t.kind = kindConfigurations
			return t
		}
		t.cacheType = cacheTypeOf(addr[3].Key)
		t.name = addr[3].Value
		t.kind = kindConfiguration
		if len(addr) > 4 {
			t.kind = kindConfigurationChild
		}
		return t
	}
	for _, typ := range schema.CacheTypes {
		if e.Key == typ && len(addr) == 3 {
			return target{kind: kindCache, container: t.container, cacheType: typ, name: e.Value}
		}
	}
	t.kind = kindContainerChild
	return t
}

func cacheTypeOf(configurationType string) string {
	for _, typ := range schema.CacheTypes {
		if schema.ConfigurationType(typ) == configurationType {
			return typ
		}
	}
	return ""
}
