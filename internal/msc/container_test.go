package msc

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) service(name string, value any) *FuncService {
	return &FuncService{
		StartFn: func(context.Context) (any, error) {
			r.add("start " + name)
			return value, nil
		},
		StopFn: func(context.Context, any) { r.add("stop " + name) },
	}
}

func newTestContainer() *Container { return NewContainer(zerolog.Nop()) }

func state(t *testing.T, c *Container, name ServiceName) State {
	t.Helper()
	ctl, ok := c.Service(name)
	require.True(t, ok, name.String())
	return ctl.State()
}

// TestContainer_ActiveDemandsDependencies verifies an active service starts its on-demand
// dependency and releases it once removed.
func TestContainer_ActiveDemandsDependencies(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer()
	rec := &recorder{}
	config, cache := Name("config"), Name("cache")

	_, err := c.AddService(config, rec.service("config", 1)).SetInitialMode(OnDemand).Install(ctx)
	require.NoError(t, err)
	require.Equal(t, StateDown, state(t, c, config))

	var injected any
	_, err = c.AddService(cache, rec.service("cache", 2)).
		AddInjectedDependency(config, func(v any) error { injected = v; return nil }).
		Install(ctx)
	require.NoError(t, err)
	require.Equal(t, StateUp, state(t, c, config))
	require.Equal(t, StateUp, state(t, c, cache))
	require.Equal(t, 1, injected)
	require.Equal(t, []string{"start config", "start cache"}, rec.list())

	require.NoError(t, c.Remove(ctx, cache))
	require.Equal(t, StateDown, state(t, c, config))
	require.Equal(t, []string{"start config", "start cache", "stop cache", "stop config"}, rec.list())

	_, ok := c.Service(cache)
	require.False(t, ok)
	require.ErrorIs(t, c.Remove(ctx, cache), ErrServiceNotFound)
}

// TestContainer_DependencyInstalledLater verifies a service waits for a required dependency that
// is installed after it.
func TestContainer_DependencyInstalledLater(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer()
	rec := &recorder{}

	_, err := c.AddService(Name("binder"), rec.service("binder", nil)).AddDependency(Name("cache")).Install(ctx)
	require.NoError(t, err)
	require.Equal(t, StateDown, state(t, c, Name("binder")))

	_, err = c.AddService(Name("cache"), rec.service("cache", nil)).SetInitialMode(OnDemand).Install(ctx)
	require.NoError(t, err)
	require.Equal(t, StateUp, state(t, c, Name("binder")))
	require.Equal(t, []string{"start cache", "start binder"}, rec.list())
}

// TestContainer_PassiveDoesNotDemand verifies a passive service only runs while its dependencies
// are up for another reason.
func TestContainer_PassiveDoesNotDemand(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer()
	rec := &recorder{}
	cache, binder := Name("cache"), Name("binder")

	_, err := c.AddService(cache, rec.service("cache", nil)).SetInitialMode(OnDemand).Install(ctx)
	require.NoError(t, err)
	_, err = c.AddService(binder, rec.service("binder", nil)).AddDependency(cache).SetInitialMode(Passive).Install(ctx)
	require.NoError(t, err)
	require.Equal(t, StateDown, state(t, c, cache))
	require.Equal(t, StateDown, state(t, c, binder))

	release, err := c.Demand(ctx, cache)
	require.NoError(t, err)
	require.Equal(t, StateUp, state(t, c, cache))
	require.Equal(t, StateUp, state(t, c, binder))

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx))
	require.Equal(t, StateDown, state(t, c, cache))
	require.Equal(t, StateDown, state(t, c, binder))
}

// TestContainer_LazyStaysUp verifies a lazy service keeps running once demanded.
func TestContainer_LazyStaysUp(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer()
	name := Name("lazy")

	_, err := c.AddService(name, NewValueService("v")).SetInitialMode(Lazy).Install(ctx)
	require.NoError(t, err)
	require.Equal(t, StateDown, state(t, c, name))

	release, err := c.Demand(ctx, name)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
	require.Equal(t, StateUp, state(t, c, name))

	v, err := c.Value(name)
	require.NoError(t, err)
	require.Equal(t, "v", v)
}

// TestContainer_OptionalDependency verifies a missing optional dependency does not block a start.
func TestContainer_OptionalDependency(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer()
	injected := false

	_, err := c.AddService(Name("cache"), NewValueService(nil)).
		AddOptionalDependency(Name("tm"), func(any) error { injected = true; return nil }).
		Install(ctx)
	require.NoError(t, err)
	require.Equal(t, StateUp, state(t, c, Name("cache")))
	require.False(t, injected)
}

// TestContainer_Aliases verifies services resolve by alias and names stay unique.
func TestContainer_Aliases(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer()
	users, def := Name("cache", "users"), Name("cache", "default")

	_, err := c.AddService(users, NewValueService("users")).AddAliases(def).Install(ctx)
	require.NoError(t, err)

	ctl, ok := c.Service(def)
	require.True(t, ok)
	require.True(t, ctl.Name().Equal(users))

	_, err = c.AddService(def, NewValueService(nil)).Install(ctx)
	require.ErrorIs(t, err, ErrDuplicateService)
	_, err = c.AddService(Name("other"), NewValueService(nil)).AddAliases(users).Install(ctx)
	require.ErrorIs(t, err, ErrDuplicateService)
	_, err = c.AddService(users, NewValueService(nil)).Install(ctx)
	require.ErrorIs(t, err, ErrDuplicateService)

	dependent, err := c.AddService(Name("binder"), NewValueService(nil)).AddDependency(def).Install(ctx)
	require.NoError(t, err)
	require.Equal(t, StateUp, dependent.State())
	require.Len(t, c.Names(), 2)
}

// TestContainer_Cycle verifies an installation closing a dependency cycle is rejected and undone.
func TestContainer_Cycle(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer()

	_, err := c.AddService(Name("a"), NewValueService(nil)).AddDependency(Name("b")).Install(ctx)
	require.NoError(t, err)
	_, err = c.AddService(Name("b"), NewValueService(nil)).AddDependency(Name("a")).Install(ctx)
	require.ErrorContains(t, err, "dependency cycle")

	_, ok := c.Service(Name("b"))
	require.False(t, ok)

	_, err = c.AddService(Name("self"), NewValueService(nil)).AddDependency(Name("self")).Install(ctx)
	require.ErrorContains(t, err, "depends on itself")
}

// TestContainer_StartFailure verifies failed starts are reported and retried after a mode change.
func TestContainer_StartFailure(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer()
	boom := errors.New("boom")
	fail := true
	svc := &FuncService{StartFn: func(context.Context) (any, error) {
		if fail {
			return nil, boom
		}
		return "ok", nil
	}}

	var events []EventType
	c.AddListener(func(e Event) { events = append(events, e.Type) })

	ctl, err := c.AddService(Name("failing"), svc).Install(ctx)
	require.ErrorIs(t, err, boom)
	var se *StartError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "failing", se.Name.String())
	require.NotNil(t, ctl)
	require.Equal(t, StateStartFailed, ctl.State())
	require.ErrorIs(t, ctl.StartException(), boom)
	_, err = ctl.Value()
	require.ErrorIs(t, err, ErrServiceNotUp)

	fail = false
	require.NoError(t, c.SetMode(ctx, Name("failing"), Active))
	require.Equal(t, StateUp, ctl.State())
	require.Equal(t, []EventType{EventInstalled, EventStartFailed, EventStarted}, events)
}

// TestContainer_Stop verifies stop brings services down dependents first.
func TestContainer_Stop(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer()
	rec := &recorder{}

	_, err := c.AddService(Name("container"), rec.service("container", nil)).Install(ctx)
	require.NoError(t, err)
	_, err = c.AddService(Name("cache"), rec.service("cache", nil)).AddDependency(Name("container")).Install(ctx)
	require.NoError(t, err)
	_, err = c.AddService(Name("binder"), rec.service("binder", nil)).AddDependency(Name("cache")).Install(ctx)
	require.NoError(t, err)

	c.Stop(ctx)
	require.Equal(t, []string{
		"start container", "start cache", "start binder",
		"stop binder", "stop cache", "stop container",
	}, rec.list())
}

// TestServiceName verifies hierarchical name helpers.
func TestServiceName(t *testing.T) {
	n := JBoss.Append("infinispan", "c", "x")
	require.Equal(t, "jboss.infinispan.c.x", n.String())
	require.Equal(t, "x", n.SimpleName())
	require.True(t, n.Parent().Equal(ParseName("jboss.infinispan.c")))
	require.True(t, JBoss.IsParentOf(n))
	require.False(t, n.IsParentOf(n))
	require.Nil(t, ParseName(""))
	require.Equal(t, "jboss", JBoss.String())
}
