package msc

import "context"

// ServiceBuilder collects dependencies, aliases and the initial mode of a service.
type ServiceBuilder struct {
	c       *Container
	name    ServiceName
	svc     Service
	deps    []dependency
	aliases []ServiceName
	mode    Mode
}

func (b *ServiceBuilder) AddDependency(name ServiceName) *ServiceBuilder {
	b.deps = append(b.deps, dependency{name: name})
	return b
}

// AddInjectedDependency passes the dependency value to inject before the service starts.
func (b *ServiceBuilder) AddInjectedDependency(name ServiceName, inject func(any) error) *ServiceBuilder {
	b.deps = append(b.deps, dependency{name: name, inject: inject})
	return b
}

// AddOptionalDependency does not block the start when name is missing or down.
func (b *ServiceBuilder) AddOptionalDependency(name ServiceName, inject func(any) error) *ServiceBuilder {
	b.deps = append(b.deps, dependency{name: name, optional: true, inject: inject})
	return b
}

func (b *ServiceBuilder) AddAliases(names ...ServiceName) *ServiceBuilder {
	b.aliases = append(b.aliases, names...)
	return b
}

func (b *ServiceBuilder) SetInitialMode(m Mode) *ServiceBuilder {
	b.mode = m
	return b
}

// Install registers the service and starts whatever became startable. The controller is returned
// even when a start failed, so the caller can remove it.
func (b *ServiceBuilder) Install(ctx context.Context) (*Controller, error) {
	ctl, err := b.c.install(b)
	if err != nil {
		return nil, err
	}
	return ctl, b.c.Reconcile(ctx)
}
