package subsystem

import (
	"time"

	"github.com/infinispan/infinispan-subsystem/internal/model"
	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

// attrReader resolves attribute values against a resolver and keeps the first failure, so a
// builder can read a whole section and check once.
type attrReader struct {
	res schema.Resolver
	err error
}

func (a *attrReader) value(r *model.Resource, d *schema.AttributeDefinition) model.Value {
	if a.err != nil {
		return model.Value{}
	}
	v, err := d.Resolve(r, a.res)
	if err != nil {
		a.err = err
	}
	return v
}

func (a *attrReader) str(r *model.Resource, d *schema.AttributeDefinition) string {
	return a.value(r, d).AsString()
}

func (a *attrReader) strings(r *model.Resource, d *schema.AttributeDefinition) []string {
	return a.value(r, d).AsStrings()
}

func (a *attrReader) long(r *model.Resource, d *schema.AttributeDefinition) int64 {
	v := a.value(r, d)
	if !v.IsDefined() {
		return 0
	}
	n, _ := v.AsLong()
	return n
}

func (a *attrReader) integer(r *model.Resource, d *schema.AttributeDefinition) int {
	return int(a.long(r, d))
}

func (a *attrReader) millis(r *model.Resource, d *schema.AttributeDefinition) time.Duration {
	return time.Duration(a.long(r, d)) * time.Millisecond
}

func (a *attrReader) double(r *model.Resource, d *schema.AttributeDefinition) float64 {
	v := a.value(r, d)
	if !v.IsDefined() {
		return 0
	}
	f, _ := v.AsDouble()
	return f
}

func (a *attrReader) boolean(r *model.Resource, d *schema.AttributeDefinition) bool {
	v := a.value(r, d)
	if !v.IsDefined() {
		return false
	}
	b, _ := v.AsBool()
	return b
}

// child returns the fixed child key=name of r.
func child(r *model.Resource, key, name string) (*model.Resource, bool) {
	if r == nil {
		return nil, false
	}
	return r.Child(model.Element(key, name))
}

// children returns the named children of type key, in model order.
func children(r *model.Resource, key string) ([]string, []*model.Resource) {
	names := r.ChildNames(key)
	out := make([]*model.Resource, 0, len(names))
	for _, n := range names {
		c, _ := r.Child(model.Element(key, n))
		out = append(out, c)
	}
	return names, out
}

// overlay returns a copy of base with the attributes and children of over applied on top.
func overlay(base, over *model.Resource) *model.Resource {
	out := base.Clone()
	for _, n := range over.AttributeNames() {
		out.Set(n, over.Get(n))
	}
	for _, typ := range over.ChildTypes() {
		for _, name := range over.ChildNames(typ) {
			e := model.Element(typ, name)
			oc, _ := over.Child(e)
			merged := oc.Clone()
			if bc, ok := out.Child(e); ok {
				merged = overlay(bc, oc)
				out.RemoveChild(e)
			}
			_ = out.AddChild(e, merged)
		}
	}
	return out
}
