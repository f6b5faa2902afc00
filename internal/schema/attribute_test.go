package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/infinispan/infinispan-subsystem/internal/model"
)

// TestAttribute_ResolveValue verifies conversion, defaults and expression resolution.
func TestAttribute_ResolveValue(t *testing.T) {
	owners := NewAttribute("owners", TypeInt).WithDefault(model.IntValue(2)).WithValidator(Range(1, 10))

	v, err := owners.ResolveValue(model.StringValue("3"), nil)
	require.NoError(t, err)
	require.True(t, v.Equal(model.IntValue(3)))

	v, err = owners.ResolveValue(model.Value{}, nil)
	require.NoError(t, err)
	require.True(t, v.Equal(model.IntValue(2)))

	v, err = owners.ResolveValue(model.ExpressionValue("${owners:4}"), nil)
	require.NoError(t, err)
	require.True(t, v.Equal(model.IntValue(4)))

	v, err = owners.ResolveValue(model.ExpressionValue("${owners}"), NewPropertyResolver(map[string]string{"owners": "5"}))
	require.NoError(t, err)
	require.True(t, v.Equal(model.IntValue(5)))

	_, err = owners.ResolveValue(model.StringValue("11"), nil)
	var failed *OperationFailedError
	require.ErrorAs(t, err, &failed)
	require.Contains(t, failed.Error(), "owners")

	_, err = owners.ResolveValue(model.StringValue("many"), nil)
	require.ErrorIs(t, err, model.ErrNotConvertible)

	_, err = owners.ResolveValue(model.ExpressionValue("${missing}"), nil)
	require.ErrorIs(t, err, ErrUnresolved)
}

// TestAttribute_Required verifies a required attribute without default fails resolution and
// validation.
func TestAttribute_Required(t *testing.T) {
	a := NewAttribute("class", TypeString).Require()

	_, err := a.ResolveValue(model.Value{}, nil)
	require.ErrorIs(t, err, ErrRequired)
	require.ErrorIs(t, a.Validate(model.Value{}), ErrRequired)
	require.NoError(t, a.Validate(model.StringValue("org.example.Store")))
}

// TestAttribute_Validate verifies expressions are only checked for being allowed.
func TestAttribute_Validate(t *testing.T) {
	mode := NewAttribute("mode", TypeString).WithValidator(Enum([]string{"SYNC", "ASYNC"}))

	require.NoError(t, mode.Validate(model.StringValue("SYNC")))
	require.Error(t, mode.Validate(model.StringValue("sync")))
	require.NoError(t, mode.Validate(model.ExpressionValue("${mode:BOGUS}")))

	require.Error(t, mode.NoExpression().Validate(model.ExpressionValue("${mode:SYNC}")))
	require.False(t, NewAttribute("roles", TypeList).AllowExpression)
}

// TestAttribute_ListConversion verifies space separated strings become lists validated per element.
func TestAttribute_ListConversion(t *testing.T) {
	perms := NewAttribute("permissions", TypeList).WithValidator(ListValidator{Element: Enum([]string{"READ", "WRITE"})})

	v, err := perms.ResolveValue(model.StringValue("READ WRITE"), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"READ", "WRITE"}, v.AsStrings())

	_, err = perms.ResolveValue(model.StringList("READ", "EXEC"), nil)
	require.Error(t, err)
}

// TestAttribute_ResolveHelpers verifies the typed helpers read attributes of a resource.
func TestAttribute_ResolveHelpers(t *testing.T) {
	r := model.NewResource()
	r.Set(CapacityFactor, model.StringValue("0.5"))
	r.Set(Batching, model.ExpressionValue("${batching:true}"))

	f, err := DistCapacityFactor.ResolveDouble(r, nil)
	require.NoError(t, err)
	require.InDelta(t, 0.5, f, 1e-9)

	b, err := CacheBatching.ResolveBool(r, nil)
	require.NoError(t, err)
	require.True(t, b)

	owners, err := DistOwners.ResolveInt(r, nil)
	require.NoError(t, err)
	require.Equal(t, 2, owners)

	timeout, err := ClusteredRemoteTimeout.ResolveLong(nil, nil)
	require.NoError(t, err)
	require.EqualValues(t, 17500, timeout)
}
