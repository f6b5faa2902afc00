// Package subsystem is the management layer of the infinispan subsystem: it keeps the resource
// model, translates it into cache and container configurations, and installs, restarts and removes
// the services that run them.
package subsystem

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/infinispan/infinispan-subsystem/internal/configuration"
	"github.com/infinispan/infinispan-subsystem/internal/embedded"
	"github.com/infinispan/infinispan-subsystem/internal/model"
	"github.com/infinispan/infinispan-subsystem/internal/msc"
	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

var (
	ErrAlreadyBooted = errors.New("subsystem already booted")
	ErrInUse         = errors.New("resource is in use")
	ErrUnknownOp     = errors.New("unknown operation")
)

// Options configure a Controller.
type Options struct {
	Logger   zerolog.Logger
	Resolver schema.Resolver
	// Defaults are the per cache mode defaults; the embedded document is used when nil.
	Defaults *configuration.Defaults
	Embedded embedded.Options
}

// Controller executes management operations against the subsystem model and keeps the services
// in line with it. Operations are serialized.
type Controller struct {
	mu         sync.Mutex
	logger     zerolog.Logger
	model      *model.Model
	registry   *schema.Registry
	services   *msc.Container
	resolver   schema.Resolver
	caches     *ModelConfigurationBuilder
	containers *ContainerConfigurationBuilder
	embedded   embedded.Options

	// installed lists the services of each resource address in install order.
	installed map[string][]msc.ServiceName
	booted    bool
	reload    bool
}

func NewController(services *msc.Container, opts Options) (*Controller, error) {
	if opts.Resolver == nil {
		opts.Resolver = schema.NopResolver{}
	}
	if opts.Defaults == nil {
		d, err := configuration.EmbeddedDefaults()
		if err != nil {
			return nil, err
		}
		opts.Defaults = d
	}
	return &Controller{
		logger:     opts.Logger.With().Str("component", "subsystem").Logger(),
		model:      model.NewModel(),
		registry:   schema.NewRegistry(),
		services:   services,
		resolver:   opts.Resolver,
		caches:     NewModelConfigurationBuilder(opts.Resolver, opts.Defaults),
		containers: NewContainerConfigurationBuilder(opts.Resolver),
		embedded:   opts.Embedded,
		installed:  make(map[string][]msc.ServiceName),
	}, nil
}

// Boot applies the operations to the model only, then installs the services of the resulting
// model. Services that fail to start are logged and left down.
func (c *Controller) Boot(ctx context.Context, ops []model.Operation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.booted {
		return ErrAlreadyBooted
	}
	oc := &operationContext{ctx: ctx, modelOnly: true}
	for _, op := range ops {
		if _, err := c.dispatch(oc, op); err != nil {
			c.model = model.NewModel()
			return fmt.Errorf("boot operation %s: %w", op, err)
		}
	}
	c.booted = true
	if err := c.installAll(&operationContext{ctx: ctx}); err != nil {
		return err
	}
	c.logger.Info().Int("operations", len(ops)).Msg("subsystem booted")
	return nil
}

// Execute runs one operation. A failed operation restores the model and undoes its service
// changes.
func (c *Controller) Execute(ctx context.Context, op model.Operation) model.Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := c.model.Snapshot()
	oc := &operationContext{ctx: ctx, modelOnly: !c.booted}
	res, err := c.dispatch(oc, op)
	if err != nil {
		c.model.Restore(snapshot)
		oc.rollback(context.WithoutCancel(ctx))
		c.logger.Warn().Err(err).Str("operation", op.String()).Msg("operation failed")
		return model.Failure("%v", err)
	}
	if oc.reload {
		c.reload = true
		res.ResponseHeaders = map[string]any{
			"operation-requires-reload": true,
			"process-state":             "reload-required",
		}
	}
	return res
}

// Snapshot returns a copy of the model root.
func (c *Controller) Snapshot() *model.Resource {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model.Snapshot()
}

// ReloadRequired reports whether a committed change waits for a reload.
func (c *Controller) ReloadRequired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reload
}

// Shutdown stops every service.
func (c *Controller) Shutdown(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services.Stop(ctx)
	c.logger.Info().Msg("subsystem stopped")
}

func (c *Controller) dispatch(oc *operationContext, op model.Operation) (model.Result, error) {
	switch op.Name {
	case model.OpAdd:
		return c.add(oc, op)
	case model.OpRemove:
		return c.remove(oc, op)
	case model.OpWriteAttribute:
		return c.writeAttribute(oc, op.Address, op.Param(schema.Name).AsString(), op.Param(schema.Value))
	case model.OpUndefineAttribute:
		return c.writeAttribute(oc, op.Address, op.Param(schema.Name).AsString(), model.Value{})
	case model.OpReadAttribute:
		return c.readAttribute(oc, op)
	case model.OpReadResource:
		return c.readResource(oc, op)
	case model.OpReadResourceDescription:
		return c.readResourceDescription(op)
	case model.OpReadChildrenNames:
		return c.readChildrenNames(op)
	case model.OpReload:
		return c.reloadServices(oc, op)
	case OpAddAlias, OpRemoveAlias:
		return c.alias(oc, op)
	}
	return c.runtimeOperation(oc, op)
}

func validateParameters(def *schema.ResourceDefinition, params model.Value) error {
	for _, k := range params.Keys() {
		if _, ok := def.Attribute(k); !ok {
			return fmt.Errorf("unknown attribute %s", k)
		}
	}
	for _, a := range def.Attributes {
		if err := a.Validate(params.Get(a.Name)); err != nil {
			return err
		}
	}
	return nil
}

// normalize converts a literal value to the attribute type; expressions are stored as is.
func normalize(a *schema.AttributeDefinition, v model.Value) (model.Value, error) {
	if !v.IsDefined() || v.IsExpression() {
		return v, nil
	}
	return a.ResolveValue(v, nil)
}

func (c *Controller) add(oc *operationContext, op model.Operation) (model.Result, error) {
	def, err := c.registry.Lookup(op.Address)
	if err != nil {
		return model.Result{}, err
	}
	if err = validateParameters(def, op.Params); err != nil {
		return model.Result{}, err
	}
	t := classify(op.Address)
	if err = c.checkAdd(t, op); err != nil {
		return model.Result{}, err
	}
	r, err := c.model.Create(op.Address)
	if err != nil {
		return model.Result{}, err
	}
	for _, a := range def.Attributes {
		v, err := normalize(a, op.Param(a.Name))
		if err != nil {
			return model.Result{}, err
		}
		if v.IsDefined() {
			r.Set(a.Name, v)
		}
	}
	if oc.modelOnly {
		return model.Success(model.Value{}), nil
	}
	switch t.kind {
	case kindContainer:
		err = c.installContainer(oc, t.container)
	case kindCache:
		err = c.installCache(oc, t.container, t.cacheType, t.name)
	case kindConfigurationChild:
		err = c.restartConfiguration(oc, t.container, t.cacheType, t.name)
	case kindContainerChild:
		oc.reload = true
	}
	if err != nil {
		return model.Result{}, err
	}
	return model.Success(model.Value{}), nil
}

// checkAdd rejects a cache without its configuration, a cache name used by another cache type
// and a configuration inheriting from a missing template.
func (c *Controller) checkAdd(t target, op model.Operation) error {
	switch t.kind {
	case kindCache:
		cfg := op.Param(schema.Configuration).AsString()
		if !c.model.Exists(configurationAddress(t.container, t.cacheType, cfg)) {
			return fmt.Errorf("%w: configuration %s of %s", model.ErrNotFound, cfg, t.cacheType)
		}
		for _, typ := range schema.CacheTypes {
			if typ != t.cacheType && c.model.Exists(cacheAddress(t.container, typ, t.name)) {
				return fmt.Errorf("%w: cache %s is already a %s", model.ErrDuplicate, t.name, typ)
			}
		}
	case kindConfiguration:
		parent, err := schema.CacheConfigurationParent.ResolveValue(op.Param(schema.Configuration), c.resolver)
		if err != nil {
			return err
		}
		if p := parent.AsString(); p != "" && !c.model.Exists(configurationAddress(t.container, t.cacheType, p)) {
			return fmt.Errorf("%w: template %s of %s", model.ErrNotFound, p, t.name)
		}
	}
	return nil
}

func (c *Controller) remove(oc *operationContext, op model.Operation) (model.Result, error) {
	if _, err := c.model.Read(op.Address); err != nil {
		return model.Result{}, err
	}
	t := classify(op.Address)
	if err := c.checkRemove(t); err != nil {
		return model.Result{}, err
	}
	if !oc.modelOnly {
		switch t.kind {
		case kindSubsystem:
			c.removeAll(oc)
		case kindContainer:
			c.removeContainer(oc, t.container)
		case kindCache:
			c.removeCache(oc, t.container, t.cacheType, t.name)
		case kindConfiguration:
			c.uninstall(oc, configurationAddress(t.container, t.cacheType, t.name).String(), nil)
		case kindContainerChild:
			oc.reload = true
		}
	}
	if _, err := c.model.Remove(op.Address); err != nil {
		return model.Result{}, err
	}
	if !oc.modelOnly && t.kind == kindConfigurationChild {
		if err := c.restartConfiguration(oc, t.container, t.cacheType, t.name); err != nil {
			return model.Result{}, err
		}
	}
	return model.Success(model.Value{}), nil
}

// checkRemove keeps configurations that a cache or another configuration still refers to.
func (c *Controller) checkRemove(t target) error {
	switch t.kind {
	case kindConfiguration:
		users, err := c.cachesUsing(t.container, t.cacheType, t.name)
		if err != nil {
			return err
		}
		if len(users) > 0 {
			return fmt.Errorf("%w: configuration %s is used by %s", ErrInUse, t.name, strings.Join(users, ", "))
		}
		cfgs, err := c.model.Read(configurationsAddress(t.container))
		if err != nil {
			return err
		}
		for _, name := range cfgs.ChildNames(schema.ConfigurationType(t.cacheType)) {
			cr, _ := child(cfgs, schema.ConfigurationType(t.cacheType), name)
			if cr.Get(schema.Configuration).AsString() == t.name {
				return fmt.Errorf("%w: configuration %s is the template of %s", ErrInUse, t.name, name)
			}
		}
	case kindConfigurations:
		r, err := c.model.Read(containerAddress(t.container))
		if err != nil {
			return err
		}
		for _, typ := range schema.CacheTypes {
			if names := r.ChildNames(typ); len(names) > 0 {
				return fmt.Errorf("%w: configurations are used by %s", ErrInUse, strings.Join(names, ", "))
			}
		}
	}
	return nil
}

func (c *Controller) writeAttribute(oc *operationContext, addr model.PathAddress, name string, value model.Value) (model.Result, error) {
	def, err := c.registry.Lookup(addr)
	if err != nil {
		return model.Result{}, err
	}
	attr, ok := def.Attribute(name)
	if !ok {
		return model.Result{}, fmt.Errorf("unknown attribute %s", name)
	}
	if attr.Has(schema.StorageRuntime) {
		return model.Result{}, fmt.Errorf("attribute %s is read-only", name)
	}
	if err = attr.Validate(value); err != nil {
		return model.Result{}, err
	}
	r, err := c.model.Read(addr)
	if err != nil {
		return model.Result{}, err
	}
	if value, err = normalize(attr, value); err != nil {
		return model.Result{}, err
	}
	if value.IsDefined() {
		r.Set(name, value)
	} else {
		r.Undefine(name)
	}

	t := classify(addr)
	switch {
	case t.kind == kindCache && name == schema.Configuration:
		if !c.model.Exists(configurationAddress(t.container, t.cacheType, value.AsString())) {
			return model.Result{}, fmt.Errorf("%w: configuration %s of %s", model.ErrNotFound, value.AsString(), t.cacheType)
		}
	case t.kind == kindConfiguration && name == schema.Configuration:
		if _, err = c.caches.Templates(c.model, t.container, t.cacheType, t.name); err != nil {
			return model.Result{}, err
		}
	}
	if oc.modelOnly {
		return model.Success(model.Value{}), nil
	}

	switch {
	case attr.Has(schema.ReloadRequired):
		oc.reload = true
	case t.kind == kindCache:
		err = c.restartCache(oc, t.container, t.cacheType, t.name)
	case t.kind == kindConfiguration || t.kind == kindConfigurationChild:
		err = c.restartConfiguration(oc, t.container, t.cacheType, t.name)
	case t.kind == kindContainer && attr.Has(schema.RestartAllServices):
		err = c.restartContainer(oc, t.container)
	case attr.Has(schema.RestartAllServices):
		oc.reload = true
	}
	if err != nil {
		return model.Result{}, err
	}
	return model.Success(model.Value{}), nil
}

func boolParam(op model.Operation, name string, def bool) bool {
	v := op.Param(name)
	if !v.IsDefined() {
		return def
	}
	b, err := v.AsBool()
	if err != nil {
		return def
	}
	return b
}

// readAttribute reads a model attribute, or a metric of a cache or container.
func (c *Controller) readAttribute(oc *operationContext, op model.Operation) (model.Result, error) {
	r, err := c.model.Read(op.Address)
	if err != nil {
		return model.Result{}, err
	}
	def, err := c.registry.Lookup(op.Address)
	if err != nil {
		return model.Result{}, err
	}
	name := op.Param(schema.Name).AsString()
	if a, ok := def.Attribute(name); ok {
		v := r.Get(name)
		if !v.IsDefined() && boolParam(op, "include-defaults", true) {
			v = a.Default
		}
		return model.Success(v), nil
	}
	switch t := classify(op.Address); t.kind {
	case kindCache:
		return c.cacheMetric(oc.ctx, t, name), nil
	case kindContainer:
		return c.containerMetric(t, name), nil
	}
	return model.Result{}, fmt.Errorf("unknown attribute %s", name)
}

func (c *Controller) readResource(oc *operationContext, op model.Operation) (model.Result, error) {
	r, err := c.model.Read(op.Address)
	if err != nil {
		return model.Result{}, err
	}
	def, err := c.registry.Lookup(op.Address)
	if err != nil {
		return model.Result{}, err
	}
	v := render(r, def, boolParam(op, "recursive", false), boolParam(op, "include-defaults", true))
	if boolParam(op, "include-runtime", false) {
		var metrics []namedValue
		switch t := classify(op.Address); t.kind {
		case kindCache:
			metrics = c.cacheMetricValues(oc.ctx, t)
		case kindContainer:
			metrics = c.containerMetricValues(t)
		}
		for _, m := range metrics {
			v.Set(m.name, m.value)
		}
	}
	return model.Success(v), nil
}

// render renders a resource with its declared attributes, undefined ones included.
func render(r *model.Resource, def *schema.ResourceDefinition, recursive, defaults bool) model.Value {
	out := model.NewObject()
	for _, a := range def.Attributes {
		v := r.Get(a.Name)
		if !v.IsDefined() && defaults {
			v = a.Default
		}
		out.Set(a.Name, v)
	}
	for _, typ := range r.ChildTypes() {
		holder := model.NewObject()
		for _, n := range r.ChildNames(typ) {
			if !recursive {
				holder.Set(n, model.Value{})
				continue
			}
			e := model.Element(typ, n)
			cr, _ := r.Child(e)
			if cdef, ok := def.Child(e); ok {
				holder.Set(n, render(cr, cdef, true, defaults))
			} else {
				holder.Set(n, cr.ToValue(true))
			}
		}
		out.Set(typ, holder)
	}
	return out
}

func (c *Controller) readResourceDescription(op model.Operation) (model.Result, error) {
	def, err := c.registry.Lookup(op.Address)
	if err != nil {
		return model.Result{}, err
	}
	d := def.Describe()
	ops := []string{
		model.OpAdd, model.OpRemove, model.OpWriteAttribute, model.OpUndefineAttribute, model.OpReadAttribute,
		model.OpReadResource, model.OpReadResourceDescription, model.OpReadChildrenNames,
	}
	t := classify(op.Address)
	switch t.kind {
	case kindSubsystem:
		ops = append(ops, model.OpReload)
	case kindCache:
		ops = append(ops, commandNames(cacheCommands)...)
		d.Set("metrics", model.StringList(c.cacheMetricNames(t)...))
	case kindContainer:
		ops = append(ops, OpAddAlias, OpRemoveAlias)
		ops = append(ops, commandNames(containerCommands)...)
		d.Set("metrics", model.StringList(sortedKeys(containerMetrics)...))
	}
	d.Set("operations", model.StringList(ops...))
	return model.Success(d), nil
}

func (c *Controller) readChildrenNames(op model.Operation) (model.Result, error) {
	r, err := c.model.Read(op.Address)
	if err != nil {
		return model.Result{}, err
	}
	typ := op.Param("child-type").AsString()
	if typ == "" {
		return model.Result{}, errors.New("missing parameter child-type")
	}
	out := model.ListValue()
	for _, n := range r.ChildNames(typ) {
		out.Add(model.StringValue(n))
	}
	return model.Success(out), nil
}

// reloadServices reinstalls the services of the whole model and clears a pending reload.
func (c *Controller) reloadServices(oc *operationContext, op model.Operation) (model.Result, error) {
	if classify(op.Address).kind != kindSubsystem {
		return model.Result{}, fmt.Errorf("%w %s for %s", ErrUnknownOp, op.Name, op.Address)
	}
	if oc.modelOnly {
		return model.Success(model.Value{}), nil
	}
	c.removeAll(oc)
	if err := c.installAll(oc); err != nil {
		return model.Result{}, err
	}
	c.reload = false
	c.logger.Info().Msg("subsystem services reloaded")
	return model.Success(model.Value{}), nil
}

// alias adds or removes one container alias by rewriting the aliases attribute.
func (c *Controller) alias(oc *operationContext, op model.Operation) (model.Result, error) {
	t := classify(op.Address)
	if t.kind != kindContainer {
		return model.Result{}, fmt.Errorf("%w %s for %s", ErrUnknownOp, op.Name, op.Address)
	}
	name := op.Param(schema.Name).AsString()
	if name == "" {
		return model.Result{}, errors.New("missing parameter name")
	}
	r, err := c.model.Read(op.Address)
	if err != nil {
		return model.Result{}, err
	}
	aliases := r.Get(schema.Aliases).AsStrings()
	has := slices.Contains(aliases, name)
	switch {
	case op.Name == OpAddAlias && !has:
		aliases = append(aliases, name)
	case op.Name == OpRemoveAlias && has:
		aliases = slices.DeleteFunc(aliases, func(a string) bool { return a == name })
	default:
		return model.Success(model.Value{}), nil
	}
	v := model.Value{}
	if len(aliases) > 0 {
		v = model.StringList(aliases...)
	}
	return c.writeAttribute(oc, op.Address, schema.Aliases, v)
}
