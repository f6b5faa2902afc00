package model

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound  = errors.New("resource not found")
	ErrDuplicate = errors.New("duplicate resource")
)

// Resource is a node of the management tree: an attribute object plus typed, ordered children.
type Resource struct {
	attrs    Value
	types    []string
	children map[string]*childSet
}

type childSet struct {
	names  []string
	byName map[string]*Resource
}

func NewResource() *Resource {
	return &Resource{attrs: NewObject(), children: map[string]*childSet{}}
}

// Get returns the attribute value; undefined when absent.
func (r *Resource) Get(name string) Value { return r.attrs.Get(name) }

func (r *Resource) Set(name string, v Value) { r.attrs.Set(name, v) }

func (r *Resource) Undefine(name string) { r.attrs.Remove(name) }

func (r *Resource) IsDefined(name string) bool { return r.attrs.Get(name).IsDefined() }

// Attributes returns a copy of the attribute object.
func (r *Resource) Attributes() Value { return r.attrs.Clone() }

func (r *Resource) AttributeNames() []string { return r.attrs.Keys() }

func (r *Resource) Child(e PathElement) (*Resource, bool) {
	set, ok := r.children[e.Key]
	if !ok {
		return nil, false
	}
	c, ok := set.byName[e.Value]
	return c, ok
}

func (r *Resource) HasChild(e PathElement) bool {
	_, ok := r.Child(e)
	return ok
}

func (r *Resource) AddChild(e PathElement, c *Resource) error {
	set, ok := r.children[e.Key]
	if !ok {
		set = &childSet{byName: map[string]*Resource{}}
		r.children[e.Key] = set
		r.types = append(r.types, e.Key)
	}
	if _, dup := set.byName[e.Value]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicate, e)
	}
	set.names = append(set.names, e.Value)
	set.byName[e.Value] = c
	return nil
}

func (r *Resource) RemoveChild(e PathElement) (*Resource, bool) {
	set, ok := r.children[e.Key]
	if !ok {
		return nil, false
	}
	c, ok := set.byName[e.Value]
	if !ok {
		return nil, false
	}
	delete(set.byName, e.Value)
	for i, n := range set.names {
		if n == e.Value {
			set.names = append(set.names[:i], set.names[i+1:]...)
			break
		}
	}
	if len(set.names) == 0 {
		delete(r.children, e.Key)
		for i, t := range r.types {
			if t == e.Key {
				r.types = append(r.types[:i], r.types[i+1:]...)
				break
			}
		}
	}
	return c, true
}

// ChildTypes returns child types in the order they were first added.
func (r *Resource) ChildTypes() []string {
	out := make([]string, len(r.types))
	copy(out, r.types)
	return out
}

func (r *Resource) ChildNames(typ string) []string {
	set, ok := r.children[typ]
	if !ok {
		return nil
	}
	out := make([]string, len(set.names))
	copy(out, set.names)
	return out
}

func (r *Resource) Clone() *Resource {
	out := &Resource{attrs: r.attrs.Clone(), children: make(map[string]*childSet, len(r.children))}
	out.types = append(out.types, r.types...)
	for typ, set := range r.children {
		cs := &childSet{names: append([]string(nil), set.names...), byName: make(map[string]*Resource, len(set.byName))}
		for n, c := range set.byName {
			cs.byName[n] = c.Clone()
		}
		out.children[typ] = cs
	}
	return out
}

// ToValue renders the resource recursively as read-resource does.
func (r *Resource) ToValue(recursive bool) Value {
	out := r.attrs.Clone()
	if out.kind == Undefined {
		out = NewObject()
	}
	for _, typ := range r.types {
		set := r.children[typ]
		holder := NewObject()
		for _, n := range set.names {
			if recursive {
				holder.Set(n, set.byName[n].ToValue(true))
			} else {
				holder.Set(n, Value{})
			}
		}
		out.Set(typ, holder)
	}
	return out
}

// Model is the management resource tree. It is not safe for concurrent use; the operation
// controller serializes access.
type Model struct {
	root *Resource
}

func NewModel() *Model { return &Model{root: NewResource()} }

func (m *Model) Root() *Resource { return m.root }

func (m *Model) Read(addr PathAddress) (*Resource, error) {
	cur := m.root
	for _, e := range addr {
		next, ok := cur.Child(e)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
		}
		cur = next
	}
	return cur, nil
}

func (m *Model) Exists(addr PathAddress) bool {
	_, err := m.Read(addr)
	return err == nil
}

// Create adds an empty resource; the parent must exist.
func (m *Model) Create(addr PathAddress) (*Resource, error) {
	if len(addr) == 0 {
		return nil, fmt.Errorf("%w: root", ErrDuplicate)
	}
	parent, err := m.Read(addr.Parent())
	if err != nil {
		return nil, fmt.Errorf("parent of %s: %w", addr, err)
	}
	r := NewResource()
	if err = parent.AddChild(addr.Last(), r); err != nil {
		return nil, err
	}
	return r, nil
}

func (m *Model) Remove(addr PathAddress) (*Resource, error) {
	if len(addr) == 0 {
		return nil, errors.New("cannot remove the root resource")
	}
	parent, err := m.Read(addr.Parent())
	if err != nil {
		return nil, err
	}
	r, ok := parent.RemoveChild(addr.Last())
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
	return r, nil
}

// Snapshot deep copies the tree; Restore puts a snapshot back.
func (m *Model) Snapshot() *Resource { return m.root.Clone() }
func (m *Model) Restore(r *Resource) { m.root = r }

// Walk visits every resource depth first, parents before children.
func (m *Model) Walk(fn func(addr PathAddress, r *Resource) error) error {
	return walk(PathAddress{}, m.root, fn)
}

func walk(addr PathAddress, r *Resource, fn func(PathAddress, *Resource) error) error {
	if err := fn(addr, r); err != nil {
		return err
	}
	for _, typ := range r.types {
		set := r.children[typ]
		for _, n := range set.names {
			if err := walk(addr.Append(Element(typ, n)), set.byName[n], fn); err != nil {
				return err
			}
		}
	}
	return nil
}
