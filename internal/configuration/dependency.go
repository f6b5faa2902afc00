package configuration

import (
	"github.com/infinispan/infinispan-subsystem/internal/msc"
)

// Dependency records a service the built configuration needs at start time. Inject receives the
// started service value and completes the configuration (a path, a data source, a socket address).
type Dependency struct {
	Name     msc.ServiceName
	Optional bool
	Inject   func(value any) error
}

// NewDependency is a dependency without an injector; it only orders service start.
func NewDependency(name msc.ServiceName) Dependency {
	return Dependency{Name: name}
}

// InjectedDependency is a dependency whose value completes the configuration.
func InjectedDependency(name msc.ServiceName, inject func(value any) error) Dependency {
	return Dependency{Name: name, Inject: inject}
}
