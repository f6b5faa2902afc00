package msc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	ErrDuplicateService = errors.New("duplicate service name")
	ErrServiceNotFound  = errors.New("service not found")
	ErrServiceNotUp     = errors.New("service is not up")
)

// StartError reports a service that failed to start.
type StartError struct {
	Name ServiceName
	Err  error
}

func (e *StartError) Error() string { return fmt.Sprintf("start service %s: %v", e.Name, e.Err) }
func (e *StartError) Unwrap() error { return e.Err }

// Container installs services, resolves dependencies and drives start and stop in dependency order.
type Container struct {
	mu        sync.Mutex
	logger    zerolog.Logger
	graph     *graph
	services  map[string]*Controller
	aliases   map[string]*Controller
	listeners []func(Event)
}

func NewContainer(logger zerolog.Logger) *Container {
	return &Container{
		logger:   logger.With().Str("component", "msc").Logger(),
		graph:    newGraph(),
		services: make(map[string]*Controller),
		aliases:  make(map[string]*Controller),
	}
}

// Controller is the handle of an installed service.
type Controller struct {
	c        *Container
	name     ServiceName
	aliases  []ServiceName
	svc      Service
	mode     Mode
	state    State
	deps     []dependency
	external int
	err      error
}

type dependency struct {
	name     ServiceName
	optional bool
	inject   func(any) error
}

func (ctl *Controller) Name() ServiceName { return ctl.name }

func (ctl *Controller) Aliases() []ServiceName { return append([]ServiceName(nil), ctl.aliases...) }

func (ctl *Controller) Service() Service { return ctl.svc }

func (ctl *Controller) Mode() Mode {
	ctl.c.mu.Lock()
	defer ctl.c.mu.Unlock()
	return ctl.mode
}

func (ctl *Controller) State() State {
	ctl.c.mu.Lock()
	defer ctl.c.mu.Unlock()
	return ctl.state
}

// StartException returns the last start failure.
func (ctl *Controller) StartException() error {
	ctl.c.mu.Lock()
	defer ctl.c.mu.Unlock()
	return ctl.err
}

// Value returns the service value when up.
func (ctl *Controller) Value() (any, error) {
	ctl.c.mu.Lock()
	defer ctl.c.mu.Unlock()
	if ctl.state != StateUp {
		return nil, fmt.Errorf("%w: %s is %s", ErrServiceNotUp, ctl.name, ctl.state)
	}
	return ctl.svc.Value(), nil
}

// AddListener registers fn for every lifecycle event. fn runs with the container lock held.
func (c *Container) AddListener(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Container) emit(t EventType, name ServiceName, err error) {
	for _, fn := range c.listeners {
		fn(Event{Type: t, Name: name, Err: err})
	}
}

// AddService starts building the installation of svc under name.
func (c *Container) AddService(name ServiceName, svc Service) *ServiceBuilder {
	return &ServiceBuilder{c: c, name: name, svc: svc, mode: Active}
}

// Service looks a controller up by canonical name or alias.
func (c *Container) Service(name ServiceName) (*Controller, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctl := c.lookup(name.String())
	return ctl, ctl != nil
}

// Value returns the value of an up service.
func (c *Container) Value(name ServiceName) (any, error) {
	ctl, ok := c.Service(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return ctl.Value()
}

// Names returns canonical names of installed services.
func (c *Container) Names() []ServiceName {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ServiceName, 0, len(c.services))
	for _, id := range sortedKeys(c.services) {
		out = append(out, c.services[id].name)
	}
	return out
}

func (c *Container) lookup(id string) *Controller {
	if ctl, ok := c.services[id]; ok {
		return ctl
	}
	return c.aliases[id]
}

func (c *Container) install(b *ServiceBuilder) (*Controller, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := b.name.String()
	if c.lookup(id) != nil {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateService, id)
	}
	for _, a := range b.aliases {
		if c.lookup(a.String()) != nil {
			return nil, fmt.Errorf("%w: alias %s", ErrDuplicateService, a)
		}
	}
	ctl := &Controller{c: c, name: b.name, aliases: b.aliases, svc: b.svc, mode: b.mode, state: StateDown, deps: b.deps}
	c.services[id] = ctl
	for _, a := range b.aliases {
		c.aliases[a.String()] = ctl
	}
	c.graph.addNode(id)
	if err := c.link(ctl); err != nil {
		c.unlink(ctl)
		return nil, err
	}
	if err := c.graph.detectCycles(); err != nil {
		c.unlink(ctl)
		return nil, err
	}
	c.logger.Debug().Str("service", id).Str("mode", string(ctl.mode)).Msg("installed")
	c.emit(EventInstalled, ctl.name, nil)
	return ctl, nil
}

// link wires edges between ctl and already installed services in both directions.
func (c *Container) link(ctl *Controller) error {
	id := ctl.name.String()
	for _, d := range ctl.deps {
		if dep := c.lookup(d.name.String()); dep != nil {
			if err := c.graph.addEdge(dep.name.String(), id); err != nil {
				return err
			}
		}
	}
	names := map[string]bool{id: true}
	for _, a := range ctl.aliases {
		names[a.String()] = true
	}
	for otherID, other := range c.services {
		if other == ctl {
			continue
		}
		for _, d := range other.deps {
			if names[d.name.String()] {
				if err := c.graph.addEdge(id, otherID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (c *Container) unlink(ctl *Controller) {
	id := ctl.name.String()
	c.graph.removeNode(id)
	delete(c.services, id)
	for _, a := range ctl.aliases {
		delete(c.aliases, a.String())
	}
}

// Remove stops every up dependent of name, then the service itself, and uninstalls it.
// Dependents stay installed and go down until the dependency is installed again.
func (c *Container) Remove(ctx context.Context, name ServiceName) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctl := c.services[name.String()]
	if ctl == nil {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	dependents := c.graph.transitiveDependents(ctl.name.String())
	levels := c.graph.levels()
	for i := len(levels) - 1; i >= 0; i-- {
		for _, id := range levels[i] {
			if dependents[id] {
				c.stop(ctx, c.services[id])
			}
		}
	}
	c.stop(ctx, ctl)
	c.unlink(ctl)
	ctl.state = StateRemoved
	c.logger.Debug().Str("service", name.String()).Msg("removed")
	c.emit(EventRemoved, ctl.name, nil)
	return c.reconcile(ctx)
}

// SetMode changes the mode of an installed service and reconciles.
func (c *Container) SetMode(ctx context.Context, name ServiceName, mode Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctl := c.lookup(name.String())
	if ctl == nil {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	ctl.mode = mode
	if ctl.state == StateStartFailed {
		ctl.state, ctl.err = StateDown, nil
	}
	return c.reconcile(ctx)
}

// Demand holds an external demand on name, starting it and its dependencies. The returned
// release function drops the demand.
func (c *Container) Demand(ctx context.Context, name ServiceName) (release func(context.Context) error, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctl := c.lookup(name.String())
	if ctl == nil {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	ctl.external++
	if err = c.reconcile(ctx); err != nil {
		ctl.external--
		return nil, err
	}
	var once sync.Once
	return func(ctx context.Context) error {
		var rerr error
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ctl.external--
			rerr = c.reconcile(ctx)
		})
		return rerr
	}, nil
}

// Reconcile brings every service to the state its mode and dependencies ask for.
func (c *Container) Reconcile(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconcile(ctx)
}

// Stop brings every service down, dependents first.
func (c *Container) Stop(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	levels := c.graph.levels()
	for i := len(levels) - 1; i >= 0; i-- {
		for _, id := range levels[i] {
			c.stop(ctx, c.services[id])
		}
	}
}

func (c *Container) reconcile(ctx context.Context) error {
	demanded := c.demanded()
	levels := c.graph.levels()

	wanted := make(map[string]bool, len(c.services))
	for _, level := range levels {
		for _, id := range level {
			ctl := c.services[id]
			wanted[id] = c.wants(ctl, demanded[id]) && c.depsWanted(ctl, wanted)
		}
	}

	for i := len(levels) - 1; i >= 0; i-- {
		for _, id := range levels[i] {
			if ctl := c.services[id]; ctl.state == StateUp && !wanted[id] {
				c.stop(ctx, ctl)
			}
		}
	}

	var errs []error
	for _, level := range levels {
		var (
			g       errgroup.Group
			mu      sync.Mutex
			started []*Controller
		)
		for _, id := range level {
			ctl := c.services[id]
			if ctl.state != StateDown || !wanted[id] || !c.depsUp(ctl) {
				continue
			}
			g.Go(func() error {
				err := c.start(ctx, ctl)
				mu.Lock()
				started = append(started, ctl)
				mu.Unlock()
				return err
			})
		}
		_ = g.Wait()
		for _, ctl := range started {
			if ctl.state == StateUp {
				c.logger.Debug().Str("service", ctl.name.String()).Msg("started")
				c.emit(EventStarted, ctl.name, nil)
			} else {
				c.logger.Error().Err(ctl.err).Str("service", ctl.name.String()).Msg("start failed")
				c.emit(EventStartFailed, ctl.name, ctl.err)
				errs = append(errs, &StartError{Name: ctl.name, Err: ctl.err})
			}
		}
	}
	return errors.Join(errs...)
}

// demanded propagates demand from active, externally demanded and up lazy services through their
// required and optional dependencies. A demanded service forwards the demand unless it is NEVER.
func (c *Container) demanded() map[string]bool {
	out := map[string]bool{}
	var propagate func(ctl *Controller)
	propagate = func(ctl *Controller) {
		for _, d := range ctl.deps {
			dep := c.lookup(d.name.String())
			if dep == nil || out[dep.name.String()] {
				continue
			}
			out[dep.name.String()] = true
			if dep.mode != Never {
				propagate(dep)
			}
		}
	}
	for _, id := range sortedKeys(c.services) {
		ctl := c.services[id]
		if ctl.external > 0 {
			out[id] = true
		}
		if ctl.mode == Active || ctl.external > 0 || (ctl.mode == Lazy && ctl.state == StateUp) {
			propagate(ctl)
		}
	}
	return out
}

func (c *Container) wants(ctl *Controller, demanded bool) bool {
	if ctl.state == StateStartFailed {
		return false
	}
	switch ctl.mode {
	case Active, Passive:
		return true
	case OnDemand:
		return demanded
	case Lazy:
		return demanded || ctl.state == StateUp
	default:
		return false
	}
}

func (c *Container) depsWanted(ctl *Controller, wanted map[string]bool) bool {
	for _, d := range ctl.deps {
		dep := c.lookup(d.name.String())
		if dep == nil {
			if d.optional {
				continue
			}
			return false
		}
		if !wanted[dep.name.String()] && !d.optional {
			return false
		}
	}
	return true
}

func (c *Container) depsUp(ctl *Controller) bool {
	for _, d := range ctl.deps {
		dep := c.lookup(d.name.String())
		if dep == nil || dep.state != StateUp {
			if d.optional {
				continue
			}
			return false
		}
	}
	return true
}

func (c *Container) start(ctx context.Context, ctl *Controller) error {
	for _, d := range ctl.deps {
		if d.inject == nil {
			continue
		}
		dep := c.lookup(d.name.String())
		if dep == nil || dep.state != StateUp {
			continue
		}
		if err := d.inject(dep.svc.Value()); err != nil {
			ctl.state, ctl.err = StateStartFailed, fmt.Errorf("inject %s: %w", d.name, err)
			return &StartError{Name: ctl.name, Err: ctl.err}
		}
	}
	if err := ctl.svc.Start(ctx); err != nil {
		ctl.state, ctl.err = StateStartFailed, err
		return &StartError{Name: ctl.name, Err: err}
	}
	ctl.state, ctl.err = StateUp, nil
	return nil
}

func (c *Container) stop(ctx context.Context, ctl *Controller) {
	if ctl == nil || ctl.state != StateUp {
		return
	}
	ctl.svc.Stop(ctx)
	ctl.state = StateDown
	c.logger.Debug().Str("service", ctl.name.String()).Msg("stopped")
	c.emit(EventStopped, ctl.name, nil)
}
