package naming

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/infinispan/infinispan-subsystem/internal/msc"
)

// TestParse verifies relative names land under java:jboss and absolute names are kept.
func TestParse(t *testing.T) {
	require.Equal(t, "java:jboss/infinispan/cache/c/x", Parse("infinispan/cache/c/x"))
	require.Equal(t, "java:jboss/foo", Parse("/foo"))
	require.Equal(t, "java:global/foo", Parse("java:global/foo"))

	require.Equal(t, "java:jboss/infinispan/cache/web/sessions", CacheName("", "web", "sessions"))
	require.Equal(t, "java:jboss/my/cache", CacheName("my/cache", "web", "sessions"))
	require.Equal(t, "java:jboss/infinispan/container/web", ContainerName("", "web"))
}

// TestBinderServiceName verifies the binder service name mirrors the JNDI path.
func TestBinderServiceName(t *testing.T) {
	require.Equal(t,
		"jboss.naming.context.java.jboss.infinispan.cache.web.sessions",
		BinderServiceName("java:jboss/infinispan/cache/web/sessions").String(),
	)
}

// TestBinderService verifies a binder bound through the container unbinds on removal.
func TestBinderService(t *testing.T) {
	ctx := context.Background()
	c := msc.NewContainer(zerolog.Nop())
	reg := NewRegistry()

	_, err := c.AddService(StoreServiceName, msc.NewValueService(reg)).SetInitialMode(msc.Passive).Install(ctx)
	require.NoError(t, err)
	source := msc.Name("jboss", "test", "source")
	_, err = c.AddService(source, msc.NewValueService("payload")).Install(ctx)
	require.NoError(t, err)

	binder := NewBinderService("infinispan/cache/c/x", zerolog.Nop())
	name := BinderServiceName(binder.JNDIName())
	_, err = c.AddService(name, binder).
		AddInjectedDependency(StoreServiceName, binder.InjectStore).
		AddInjectedDependency(source, binder.InjectValue).
		SetInitialMode(msc.Passive).
		Install(ctx)
	require.NoError(t, err)

	v, err := reg.Lookup("java:jboss/infinispan/cache/c/x")
	require.NoError(t, err)
	require.Equal(t, "payload", v)
	require.Equal(t, []string{"java:jboss/infinispan/cache/c/x"}, reg.List("infinispan/cache"))

	require.NoError(t, c.Remove(ctx, name))
	_, err = reg.Lookup("java:jboss/infinispan/cache/c/x")
	require.ErrorIs(t, err, ErrNameNotFound)
}

// TestRegistry_DuplicateBind verifies a name cannot be bound twice.
func TestRegistry_DuplicateBind(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Bind("a", 1))
	require.ErrorIs(t, reg.Bind("java:jboss/a", 2), ErrAlreadyBound)
	require.True(t, reg.Unbind("a"))
	require.False(t, reg.Unbind("a"))
}
