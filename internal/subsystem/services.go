package subsystem

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/infinispan/infinispan-subsystem/internal/configuration"
	"github.com/infinispan/infinispan-subsystem/internal/embedded"
	"github.com/infinispan/infinispan-subsystem/internal/msc"
	"github.com/infinispan/infinispan-subsystem/internal/naming"
	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

// operationContext carries one operation through its runtime stage and collects the
// compensations run when the operation fails.
type operationContext struct {
	ctx       context.Context
	modelOnly bool
	reload    bool
	rollbacks []func(context.Context)
}

func (oc *operationContext) onRollback(fn func(context.Context)) {
	oc.rollbacks = append(oc.rollbacks, fn)
}

func (oc *operationContext) rollback(ctx context.Context) {
	for i := len(oc.rollbacks) - 1; i >= 0; i-- {
		oc.rollbacks[i](ctx)
	}
	oc.rollbacks = nil
}

func addDependencies(sb *msc.ServiceBuilder, deps []configuration.Dependency) {
	for _, d := range deps {
		switch {
		case d.Optional:
			sb.AddOptionalDependency(d.Name, d.Inject)
		case d.Inject != nil:
			sb.AddInjectedDependency(d.Name, d.Inject)
		default:
			sb.AddDependency(d.Name)
		}
	}
}

func injectManager(target **embedded.CacheManager) func(any) error {
	return func(v any) error {
		m, ok := v.(*embedded.CacheManager)
		if !ok {
			return fmt.Errorf("cache container has unexpected type %T", v)
		}
		*target = m
		return nil
	}
}

// install installs the service and records it under the resource key. A service that failed to
// start stays recorded so rollback can remove it.
func (c *Controller) install(oc *operationContext, key string, sb *msc.ServiceBuilder) error {
	ctl, err := sb.Install(oc.ctx)
	if ctl == nil {
		return err
	}
	name := ctl.Name()
	c.installed[key] = append(c.installed[key], name)
	oc.onRollback(func(ctx context.Context) { c.removeService(ctx, key, name) })
	return err
}

func (c *Controller) removeService(ctx context.Context, key string, name msc.ServiceName) {
	if err := c.services.Remove(ctx, name); err != nil && !errors.Is(err, msc.ErrServiceNotFound) {
		c.logger.Warn().Err(err).Str("service", name.String()).Msg("remove service")
	}
	names := slices.DeleteFunc(c.installed[key], func(n msc.ServiceName) bool { return n.Equal(name) })
	if len(names) == 0 {
		delete(c.installed, key)
		return
	}
	c.installed[key] = names
}

// uninstall removes the services recorded under key, last installed first. reinstall, when set,
// restores them on rollback.
func (c *Controller) uninstall(oc *operationContext, key string, reinstall func(*operationContext) error) {
	names := slices.Clone(c.installed[key])
	if len(names) == 0 {
		return
	}
	for i := len(names) - 1; i >= 0; i-- {
		c.removeService(oc.ctx, key, names[i])
	}
	if reinstall == nil {
		return
	}
	oc.onRollback(func(ctx context.Context) {
		if err := reinstall(&operationContext{ctx: ctx}); err != nil {
			c.logger.Error().Err(err).Str("resource", key).Msg("reinstall services on rollback")
		}
	})
}

// installContainer installs the global configuration, cache container and container binder
// services.
func (c *Controller) installContainer(oc *operationContext, container string) error {
	plan, err := c.containers.Build(c.model, container)
	if err != nil {
		return err
	}
	key := containerAddress(container).String()
	logger := c.logger.With().Str("container", container).Logger()

	gsb := c.services.AddService(GlobalConfigurationServiceName(container), &msc.FuncService{
		StartFn: func(context.Context) (any, error) {
			g := plan.Global.Clone()
			if err := g.Validate(); err != nil {
				return nil, err
			}
			return g, nil
		},
	}).SetInitialMode(msc.OnDemand)
	addDependencies(gsb, plan.Dependencies)
	if err = c.install(oc, key, gsb); err != nil {
		return err
	}

	var global configuration.GlobalConfiguration
	opts := c.embedded
	csb := c.services.AddService(ContainerServiceName(container), &msc.FuncService{
		StartFn: func(ctx context.Context) (any, error) {
			m := embedded.NewCacheManager(global, opts)
			if err := m.Start(ctx); err != nil {
				return nil, err
			}
			return m, nil
		},
		StopFn: func(ctx context.Context, v any) {
			if m, ok := v.(*embedded.CacheManager); ok {
				if err := m.Stop(ctx); err != nil {
					logger.Warn().Err(err).Msg("stop cache container")
				}
			}
		},
	}).AddInjectedDependency(GlobalConfigurationServiceName(container), func(v any) error {
		g, ok := v.(configuration.GlobalConfiguration)
		if !ok {
			return fmt.Errorf("global configuration has unexpected type %T", v)
		}
		global = g
		return nil
	}).SetInitialMode(startMode(plan.Start))
	for _, alias := range plan.Aliases {
		csb.AddAliases(ContainerServiceName(alias))
	}
	if err = c.install(oc, key, csb); err != nil {
		return err
	}

	binder := naming.NewBinderService(naming.ContainerName(plan.JNDIName, container), c.logger)
	bsb := c.services.AddService(naming.BinderServiceName(binder.JNDIName()), binder).
		AddInjectedDependency(naming.StoreServiceName, binder.InjectStore).
		AddInjectedDependency(ContainerServiceName(container), binder.InjectValue).
		SetInitialMode(msc.Passive)
	return c.install(oc, key, bsb)
}

// installTemplates installs a value service for each inherited configuration not yet installed.
func (c *Controller) installTemplates(oc *operationContext, container, cacheType string, templates []string) error {
	for _, t := range templates {
		name := TemplateServiceName(container, t)
		if _, ok := c.services.Service(name); ok {
			continue
		}
		plan, err := c.caches.Build(c.model, container, cacheType, t)
		if err != nil {
			return err
		}
		cfg, err := plan.Builder.Template(true).Build()
		if err != nil {
			return fmt.Errorf("template %s: %w", t, err)
		}
		sb := c.services.AddService(name, msc.NewValueService(cfg)).SetInitialMode(msc.Passive)
		if err = c.install(oc, configurationAddress(container, cacheType, t).String(), sb); err != nil {
			return err
		}
	}
	return nil
}

// installCache installs, in order, the cache configuration, cache and cache binder services.
func (c *Controller) installCache(oc *operationContext, container, cacheType, name string) error {
	r, err := c.model.Read(cacheAddress(container, cacheType, name))
	if err != nil {
		return err
	}
	cfgName, err := schema.CacheConfigurationRef.ResolveString(r, c.resolver)
	if err != nil {
		return err
	}
	plan, err := c.caches.Build(c.model, container, cacheType, cfgName)
	if err != nil {
		return err
	}
	if err = c.installTemplates(oc, container, cacheType, plan.Templates); err != nil {
		return err
	}
	defaultCache, err := c.defaultCache(container)
	if err != nil {
		return err
	}
	isDefault := name == defaultCache && name != DefaultCacheAlias
	key := cacheAddress(container, cacheType, name).String()
	containerName := ContainerServiceName(container)
	logger := c.logger.With().Str("container", container).Str("cache", name).Logger()

	builder := plan.Builder
	tx := builder.Transaction()
	var cfgManager *embedded.CacheManager
	csb := c.services.AddService(CacheConfigurationServiceName(container, name), &msc.FuncService{
		StartFn: func(context.Context) (any, error) {
			cfg, err := builder.Build()
			if err != nil {
				return nil, err
			}
			cfgManager.DefineConfiguration(name, cfg)
			return cfg, nil
		},
		StopFn: func(context.Context, any) {
			if err := cfgManager.UndefineConfiguration(name); err != nil {
				logger.Warn().Err(err).Msg("undefine cache configuration")
			}
		},
	}).AddInjectedDependency(containerName, injectManager(&cfgManager)).SetInitialMode(msc.Passive)
	addDependencies(csb, plan.Dependencies)
	if tx.Transactional && tx.Manager == nil {
		csb.AddInjectedDependency(TransactionManagerServiceName, func(v any) error {
			tm, ok := v.(configuration.TransactionManager)
			if !ok {
				return fmt.Errorf("transaction manager has unexpected type %T", v)
			}
			builder.Transaction().Manager = tm
			return nil
		})
		if tx.UseSynchronization {
			csb.AddDependency(SyncRegistryServiceName)
		}
	}
	if isDefault {
		csb.AddAliases(CacheConfigurationServiceName(container, DefaultCacheAlias))
	}
	if err = c.install(oc, key, csb); err != nil {
		return err
	}

	var (
		cacheManager *embedded.CacheManager
		recovery     *RecoveryRegistry
	)
	recoveryName := container + "/" + name
	ssb := c.services.AddService(CacheServiceName(container, name), &msc.FuncService{
		StartFn: func(ctx context.Context) (any, error) {
			ec, err := cacheManager.GetCache(ctx, name)
			if err != nil {
				return nil, err
			}
			if recovery != nil {
				recovery.Register(recoveryName, ec.Transactions())
			}
			return ec, nil
		},
		StopFn: func(ctx context.Context, v any) {
			if recovery != nil {
				recovery.Unregister(recoveryName)
			}
			if ec, ok := v.(*embedded.Cache); ok {
				if err := ec.Stop(ctx); err != nil {
					logger.Warn().Err(err).Msg("stop cache")
				}
			}
		},
	}).
		AddDependency(CacheConfigurationServiceName(container, name)).
		AddInjectedDependency(containerName, injectManager(&cacheManager)).
		SetInitialMode(startMode(plan.Start))
	if tx.Recovery {
		ssb.AddInjectedDependency(RecoveryRegistryServiceName, func(v any) error {
			rr, ok := v.(*RecoveryRegistry)
			if !ok {
				return fmt.Errorf("recovery registry has unexpected type %T", v)
			}
			recovery = rr
			return nil
		})
	}
	if isDefault {
		ssb.AddAliases(CacheServiceName(container, DefaultCacheAlias))
	}
	if err = c.install(oc, key, ssb); err != nil {
		return err
	}

	binder := naming.NewBinderService(naming.CacheName(plan.JNDIName, container, name), c.logger)
	bsb := c.services.AddService(naming.BinderServiceName(binder.JNDIName()), binder).
		AddInjectedDependency(naming.StoreServiceName, binder.InjectStore).
		AddInjectedDependency(CacheServiceName(container, name), binder.InjectValue).
		SetInitialMode(msc.Passive)
	return c.install(oc, key, bsb)
}

// removeCache removes the binder, cache and cache configuration services of a cache.
func (c *Controller) removeCache(oc *operationContext, container, cacheType, name string) {
	c.uninstall(oc, cacheAddress(container, cacheType, name).String(), func(oc *operationContext) error {
		return c.installCache(oc, container, cacheType, name)
	})
}

func (c *Controller) restartCache(oc *operationContext, container, cacheType, name string) error {
	c.removeCache(oc, container, cacheType, name)
	return c.installCache(oc, container, cacheType, name)
}

// removeContainer removes the services of every cache and template of the container, then the
// container services.
func (c *Controller) removeContainer(oc *operationContext, container string) {
	r, err := c.model.Read(containerAddress(container))
	if err == nil {
		for _, typ := range schema.CacheTypes {
			for _, name := range r.ChildNames(typ) {
				c.removeCache(oc, container, typ, name)
			}
		}
		if cfgs, ok := child(r, schema.Configurations, schema.ConfigurationsName); ok {
			for _, typ := range schema.CacheTypes {
				for _, name := range cfgs.ChildNames(schema.ConfigurationType(typ)) {
					c.uninstall(oc, configurationAddress(container, typ, name).String(), nil)
				}
			}
		}
	}
	c.uninstall(oc, containerAddress(container).String(), func(oc *operationContext) error {
		return c.installContainer(oc, container)
	})
}

// restartContainer reinstalls the container services. Cache services stay installed and come
// back once the container is up again.
func (c *Controller) restartContainer(oc *operationContext, container string) error {
	c.uninstall(oc, containerAddress(container).String(), func(oc *operationContext) error {
		return c.installContainer(oc, container)
	})
	return c.installContainer(oc, container)
}

// restartConfiguration reinstalls every cache whose configuration is cfgName or inherits from it.
func (c *Controller) restartConfiguration(oc *operationContext, container, cacheType, cfgName string) error {
	users, err := c.cachesUsing(container, cacheType, cfgName)
	if err != nil {
		return err
	}
	for _, name := range users {
		c.removeCache(oc, container, cacheType, name)
	}
	cfgs, err := c.model.Read(configurationsAddress(container))
	if err != nil {
		return err
	}
	for _, name := range cfgs.ChildNames(schema.ConfigurationType(cacheType)) {
		inherits, err := c.inherits(container, cacheType, name, cfgName)
		if err != nil {
			return err
		}
		if inherits {
			c.uninstall(oc, configurationAddress(container, cacheType, name).String(), nil)
		}
	}
	for _, name := range users {
		if err = c.installCache(oc, container, cacheType, name); err != nil {
			return err
		}
	}
	return nil
}

// inherits reports whether configuration name is cfgName or has it in its template chain.
func (c *Controller) inherits(container, cacheType, name, cfgName string) (bool, error) {
	if name == cfgName {
		return true, nil
	}
	templates, err := c.caches.Templates(c.model, container, cacheType, name)
	if err != nil {
		return false, err
	}
	return slices.Contains(templates, cfgName), nil
}

// cachesUsing lists the caches of the container whose configuration inherits from cfgName.
func (c *Controller) cachesUsing(container, cacheType, cfgName string) ([]string, error) {
	r, err := c.model.Read(containerAddress(container))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, name := range r.ChildNames(cacheType) {
		cr, _ := child(r, cacheType, name)
		ref, err := schema.CacheConfigurationRef.ResolveString(cr, c.resolver)
		if err != nil {
			return nil, err
		}
		ok, err := c.inherits(container, cacheType, ref, cfgName)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, name)
		}
	}
	return out, nil
}

func (c *Controller) defaultCache(container string) (string, error) {
	r, err := c.model.Read(containerAddress(container))
	if err != nil {
		return "", err
	}
	return schema.ContainerDefaultCache.ResolveString(r, c.resolver)
}

// installAll installs the services of the whole model. Start failures are logged and leave the
// failed services down; other errors are returned.
func (c *Controller) installAll(oc *operationContext) error {
	root, err := c.model.Read(schema.SubsystemAddress)
	if err != nil {
		return nil
	}
	var errs []error
	check := func(err error) {
		var se *msc.StartError
		switch {
		case err == nil:
		case errors.As(err, &se):
			c.logger.Error().Err(err).Msg("service start failed")
		default:
			errs = append(errs, err)
		}
	}
	for _, container := range root.ChildNames(schema.CacheContainer) {
		check(c.installContainer(oc, container))
		cr, _ := child(root, schema.CacheContainer, container)
		for _, typ := range schema.CacheTypes {
			for _, name := range cr.ChildNames(typ) {
				check(c.installCache(oc, container, typ, name))
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Controller) removeAll(oc *operationContext) {
	root, err := c.model.Read(schema.SubsystemAddress)
	if err != nil {
		return
	}
	for _, container := range root.ChildNames(schema.CacheContainer) {
		c.removeContainer(oc, container)
	}
}
