package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func addr(t *testing.T, s string) PathAddress {
	t.Helper()
	a, err := ParseAddress(s)
	require.NoError(t, err)
	return a
}

// TestPathAddress verifies parsing, rendering and navigation of addresses.
func TestPathAddress(t *testing.T) {
	a := addr(t, "/subsystem=infinispan/cache-container=c/local-cache=x")
	require.Len(t, a, 3)
	require.Equal(t, "/subsystem=infinispan/cache-container=c/local-cache=x", a.String())
	require.Equal(t, Element("local-cache", "x"), a.Last())
	require.Equal(t, "c", a.Value("cache-container"))
	require.True(t, a.Parent().Equal(addr(t, "/subsystem=infinispan/cache-container=c")))
	require.True(t, a.Matches(Address(Element("subsystem", "infinispan"), WildcardElement("cache-container"), WildcardElement("local-cache"))))
	require.False(t, a.Matches(Address(Element("subsystem", "infinispan"), WildcardElement("cache-container"), WildcardElement("distributed-cache"))))

	appended := a.Parent().Append(Element("local-cache", "y"))
	require.Equal(t, "x", a.Last().Value)
	require.Equal(t, "y", appended.Last().Value)

	_, err := ParseAddress("/subsystem")
	require.Error(t, err)
	empty, err := ParseAddress("/")
	require.NoError(t, err)
	require.Empty(t, empty)
}

// TestPathAddress_JSON verifies both the list and the string forms are accepted.
func TestPathAddress_JSON(t *testing.T) {
	a := addr(t, "/subsystem=infinispan/cache-container=c")
	b, err := json.Marshal(a)
	require.NoError(t, err)
	require.JSONEq(t, `[{"subsystem":"infinispan"},{"cache-container":"c"}]`, string(b))

	var back PathAddress
	require.NoError(t, json.Unmarshal(b, &back))
	require.True(t, a.Equal(back))

	require.NoError(t, json.Unmarshal([]byte(`"/subsystem=infinispan"`), &back))
	require.Equal(t, "/subsystem=infinispan", back.String())

	require.Error(t, json.Unmarshal([]byte(`[{"a":"b","c":"d"}]`), &back))
}

// TestValue_Conversions verifies scalar conversions between kinds.
func TestValue_Conversions(t *testing.T) {
	n, err := StringValue(" 42 ").AsLong()
	require.NoError(t, err)
	require.EqualValues(t, 42, n)

	f, err := IntValue(3).AsDouble()
	require.NoError(t, err)
	require.InDelta(t, 3.0, f, 1e-9)

	b, err := StringValue("TRUE").AsBool()
	require.NoError(t, err)
	require.True(t, b)

	_, err = StringValue("yes").AsBool()
	require.ErrorIs(t, err, ErrNotConvertible)
	_, err = NewObject().AsLong()
	require.ErrorIs(t, err, ErrNotConvertible)

	require.Equal(t, "0.5", DoubleValue(0.5).AsString())
	require.Equal(t, "", Value{}.AsString())
	require.Equal(t, []string{"x"}, StringValue("x").AsStrings())
	require.True(t, Parse("${a:b}").IsExpression())
	require.Equal(t, String, Parse("$a").Kind())
}

// TestValue_Object verifies objects keep insertion order and compare regardless of it.
func TestValue_Object(t *testing.T) {
	var v Value
	v.Set("b", IntValue(1))
	v.Set("a", StringList("x", "y"))
	v.Set("b", IntValue(2))
	require.Equal(t, []string{"b", "a"}, v.Keys())
	require.Equal(t, 2, v.Len())

	o := NewObject()
	o.Set("a", StringList("x", "y"))
	o.Set("b", IntValue(2))
	require.True(t, v.Equal(o))

	c := v.Clone()
	c.Set("c", BoolValue(true))
	require.False(t, v.Has("c"))
	require.False(t, v.Equal(c))

	v.Remove("b")
	require.Equal(t, []string{"a"}, v.Keys())
	require.False(t, IntValue(1).Equal(LongValue(1)))
}

// TestValue_JSON verifies the JSON form keeps kinds that survive a round trip.
func TestValue_JSON(t *testing.T) {
	v := NewObject()
	v.Set("name", StringValue("c"))
	v.Set("owners", LongValue(2))
	v.Set("ratio", DoubleValue(0.75))
	v.Set("enabled", BoolValue(true))
	v.Set("aliases", StringList("a", "b"))
	v.Set("unset", Value{})

	b, err := json.Marshal(v)
	require.NoError(t, err)
	require.Equal(t, `{"name":"c","owners":2,"ratio":0.75,"enabled":true,"aliases":["a","b"],"unset":null}`, string(b))

	var back Value
	require.NoError(t, json.Unmarshal(b, &back))
	require.Equal(t, v.Keys(), back.Keys())
	require.Equal(t, "c", back.Get("name").AsString())
	owners, err := back.Get("owners").AsLong()
	require.NoError(t, err)
	require.EqualValues(t, 2, owners)
	require.Equal(t, []string{"a", "b"}, back.Get("aliases").AsStrings())
	require.False(t, back.Get("unset").IsDefined())
}

// TestModel verifies create, read, remove and snapshot restore of the resource tree.
func TestModel(t *testing.T) {
	m := NewModel()
	sub := addr(t, "/subsystem=infinispan")
	container := sub.Append(Element("cache-container", "c"))

	_, err := m.Create(container)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = m.Create(sub)
	require.NoError(t, err)
	r, err := m.Create(container)
	require.NoError(t, err)
	r.Set("default-cache", StringValue("x"))
	_, err = m.Create(container)
	require.ErrorIs(t, err, ErrDuplicate)

	snapshot := m.Snapshot()
	_, err = m.Create(container.Append(Element("local-cache", "x")))
	require.NoError(t, err)
	_, err = m.Create(sub.Append(Element("cache-container", "b")))
	require.NoError(t, err)

	root, err := m.Read(sub)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b"}, root.ChildNames("cache-container"))

	var visited []string
	require.NoError(t, m.Walk(func(a PathAddress, _ *Resource) error {
		visited = append(visited, a.String())
		return nil
	}))
	require.Equal(t, []string{
		"/",
		"/subsystem=infinispan",
		"/subsystem=infinispan/cache-container=c",
		"/subsystem=infinispan/cache-container=c/local-cache=x",
		"/subsystem=infinispan/cache-container=b",
	}, visited)

	m.Restore(snapshot)
	require.False(t, m.Exists(container.Append(Element("local-cache", "x"))))
	r, err = m.Read(container)
	require.NoError(t, err)
	require.Equal(t, "x", r.Get("default-cache").AsString())

	_, err = m.Remove(container)
	require.NoError(t, err)
	root, err = m.Read(sub)
	require.NoError(t, err)
	require.Empty(t, root.ChildTypes())
	_, err = m.Remove(container)
	require.ErrorIs(t, err, ErrNotFound)
}

// TestResource_ToValue verifies read-resource rendering with and without recursion.
func TestResource_ToValue(t *testing.T) {
	r := NewResource()
	r.Set("statistics", BoolValue(true))
	child := NewResource()
	child.Set("owners", IntValue(2))
	require.NoError(t, r.AddChild(Element("distributed-cache", "d"), child))

	flat := r.ToValue(false)
	require.True(t, flat.Get("distributed-cache").Has("d"))
	require.False(t, flat.Get("distributed-cache").Get("d").IsDefined())

	deep := r.ToValue(true)
	owners, err := deep.Get("distributed-cache").Get("d").Get("owners").AsInt()
	require.NoError(t, err)
	require.Equal(t, 2, owners)
}

// TestOperation_JSON verifies operations decode from the management API form.
func TestOperation_JSON(t *testing.T) {
	var op Operation
	require.NoError(t, json.Unmarshal([]byte(`{"operation":"write-attribute","address":"/subsystem=infinispan","name":"x","value":3}`), &op))
	require.Equal(t, OpWriteAttribute, op.Name)
	require.Equal(t, "/subsystem=infinispan:write-attribute", op.String())
	require.Equal(t, []string{"name", "value"}, op.Params.Keys())

	b, err := json.Marshal(op)
	require.NoError(t, err)
	require.JSONEq(t, `{"operation":"write-attribute","address":[{"subsystem":"infinispan"}],"name":"x","value":3}`, string(b))

	require.Error(t, json.Unmarshal([]byte(`{"address":[]}`), &op))
	require.Error(t, json.Unmarshal([]byte(`[1]`), &op))
}
