// Package naming binds service values under JNDI names in an in-process naming store.
package naming

import (
	"strings"

	"github.com/infinispan/infinispan-subsystem/internal/msc"
)

const (
	javaPrefix     = "java:"
	defaultContext = "java:jboss"
)

// StoreServiceName is the service exposing the *Registry of the java: context.
var StoreServiceName = msc.JBoss.Append("naming", "context", "java")

// Parse returns the absolute form of a JNDI name. Names without the java: scheme are relative to
// java:jboss.
func Parse(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, javaPrefix) {
		return name
	}
	return defaultContext + "/" + strings.TrimPrefix(name, "/")
}

// CacheName is the JNDI name of a cache; explicit overrides the generated name when set.
func CacheName(explicit, container, cache string) string {
	if explicit != "" {
		return Parse(explicit)
	}
	return Parse("infinispan/cache/" + container + "/" + cache)
}

// ContainerName is the JNDI name of a cache container.
func ContainerName(explicit, container string) string {
	if explicit != "" {
		return Parse(explicit)
	}
	return Parse("infinispan/container/" + container)
}

// BinderServiceName derives the binder service name from an absolute JNDI name:
// java:jboss/infinispan/cache/c/x becomes jboss.naming.context.java.jboss.infinispan.cache.c.x.
func BinderServiceName(jndiName string) msc.ServiceName {
	rest := strings.TrimPrefix(Parse(jndiName), javaPrefix)
	var parts []string
	for _, p := range strings.Split(rest, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return StoreServiceName.Append(parts...)
}
