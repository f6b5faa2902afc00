package schema

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/infinispan/infinispan-subsystem/internal/model"
)

// Type is the declared value type of an attribute.
type Type uint8

const (
	TypeString Type = iota
	TypeInt
	TypeLong
	TypeDouble
	TypeBool
	TypeList
	TypeObject
)

// Flag declares what a write-attribute change requires from running services.
type Flag uint8

const (
	RestartAllServices Flag = 1 << iota
	RestartResourceServices
	ReloadRequired
	StorageRuntime
)

// OperationFailedError aborts a single management operation.
type OperationFailedError struct {
	Msg   string
	Cause error
}

func (e *OperationFailedError) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *OperationFailedError) Unwrap() error { return e.Cause }

// Failed builds an OperationFailedError.
func Failed(cause error, format string, args ...any) error {
	return &OperationFailedError{Msg: fmt.Sprintf(format, args...), Cause: cause}
}

var ErrRequired = errors.New("required attribute is undefined")

// Validator checks a resolved (expression free) value.
type Validator interface {
	Validate(name string, v model.Value) error
}

// AttributeDefinition is static metadata for a resource attribute.
type AttributeDefinition struct {
	Name            string
	XMLName         string
	Type            Type
	Default         model.Value
	Required        bool
	AllowExpression bool
	Validator       Validator
	Flags           Flag
	// DeprecatedSince is the first namespace version where the attribute is no longer accepted.
	DeprecatedSince int
}

// NewAttribute starts an optional attribute that restarts all services when written.
func NewAttribute(name string, typ Type) *AttributeDefinition {
	return &AttributeDefinition{Name: name, XMLName: name, Type: typ, AllowExpression: typ != TypeList && typ != TypeObject, Flags: RestartAllServices}
}

func (a *AttributeDefinition) WithDefault(v model.Value) *AttributeDefinition {
	a.Default = v
	return a
}

func (a *AttributeDefinition) WithXMLName(n string) *AttributeDefinition {
	a.XMLName = n
	return a
}

func (a *AttributeDefinition) WithValidator(v Validator) *AttributeDefinition {
	a.Validator = v
	return a
}

func (a *AttributeDefinition) WithFlags(f Flag) *AttributeDefinition {
	a.Flags = f
	return a
}

func (a *AttributeDefinition) Require() *AttributeDefinition {
	a.Required = true
	return a
}

func (a *AttributeDefinition) NoExpression() *AttributeDefinition {
	a.AllowExpression = false
	return a
}

func (a *AttributeDefinition) Deprecated(since int) *AttributeDefinition {
	a.DeprecatedSince = since
	return a
}

func (a *AttributeDefinition) Has(f Flag) bool { return a.Flags&f != 0 }

// Validate checks a raw value as supplied by an add or write-attribute operation.
// Expressions are accepted as is when allowed and checked on resolution.
func (a *AttributeDefinition) Validate(v model.Value) error {
	if !v.IsDefined() {
		if a.Required {
			return Failed(ErrRequired, "%s", a.Name)
		}
		return nil
	}
	if v.IsExpression() {
		if !a.AllowExpression {
			return Failed(nil, "attribute %s does not support expressions", a.Name)
		}
		return nil
	}
	cv, err := a.convert(v)
	if err != nil {
		return err
	}
	if a.Validator != nil {
		if err = a.Validator.Validate(a.Name, cv); err != nil {
			return Failed(err, "invalid value %q for attribute %s", v.AsString(), a.Name)
		}
	}
	return nil
}

// Resolve returns the attribute value of r with expressions resolved and the default applied.
func (a *AttributeDefinition) Resolve(r *model.Resource, res Resolver) (model.Value, error) {
	var v model.Value
	if r != nil {
		v = r.Get(a.Name)
	}
	return a.ResolveValue(v, res)
}

// ResolveValue resolves a raw value as Resolve does.
func (a *AttributeDefinition) ResolveValue(v model.Value, res Resolver) (model.Value, error) {
	if v.IsExpression() {
		if res == nil {
			res = NopResolver{}
		}
		s, err := res.Resolve(v.AsString())
		if err != nil {
			return model.Value{}, Failed(err, "cannot resolve expression for attribute %s", a.Name)
		}
		v = model.StringValue(s)
	}
	if !v.IsDefined() {
		v = a.Default
	}
	if !v.IsDefined() {
		if a.Required {
			return model.Value{}, Failed(ErrRequired, "%s", a.Name)
		}
		return v, nil
	}
	out, err := a.convert(v)
	if err != nil {
		return model.Value{}, err
	}
	if a.Validator != nil {
		if err = a.Validator.Validate(a.Name, out); err != nil {
			return model.Value{}, Failed(err, "invalid value %q for attribute %s", out.AsString(), a.Name)
		}
	}
	return out, nil
}

func (a *AttributeDefinition) convert(v model.Value) (model.Value, error) {
	var err error
	switch a.Type {
	case TypeString:
		return model.StringValue(v.AsString()), nil
	case TypeInt:
		var n int
		if n, err = v.AsInt(); err == nil {
			return model.IntValue(n), nil
		}
	case TypeLong:
		var n int64
		if n, err = v.AsLong(); err == nil {
			return model.LongValue(n), nil
		}
	case TypeDouble:
		var f float64
		if f, err = v.AsDouble(); err == nil {
			return model.DoubleValue(f), nil
		}
	case TypeBool:
		var b bool
		if b, err = v.AsBool(); err == nil {
			return model.BoolValue(b), nil
		}
	case TypeList:
		if v.Kind() == model.List {
			return v, nil
		}
		return model.StringList(strings.Fields(v.AsString())...), nil
	case TypeObject:
		if v.Kind() == model.Object {
			return v, nil
		}
		err = fmt.Errorf("%w: %s to object", model.ErrNotConvertible, v.Kind())
	}
	return model.Value{}, Failed(err, "invalid value for attribute %s", a.Name)
}

func (a *AttributeDefinition) ResolveString(r *model.Resource, res Resolver) (string, error) {
	v, err := a.Resolve(r, res)
	return v.AsString(), err
}

func (a *AttributeDefinition) ResolveInt(r *model.Resource, res Resolver) (int, error) {
	v, err := a.Resolve(r, res)
	if err != nil || !v.IsDefined() {
		return 0, err
	}
	return v.AsInt()
}

func (a *AttributeDefinition) ResolveLong(r *model.Resource, res Resolver) (int64, error) {
	v, err := a.Resolve(r, res)
	if err != nil || !v.IsDefined() {
		return 0, err
	}
	return v.AsLong()
}

func (a *AttributeDefinition) ResolveDouble(r *model.Resource, res Resolver) (float64, error) {
	v, err := a.Resolve(r, res)
	if err != nil || !v.IsDefined() {
		return 0, err
	}
	return v.AsDouble()
}

func (a *AttributeDefinition) ResolveBool(r *model.Resource, res Resolver) (bool, error) {
	v, err := a.Resolve(r, res)
	if err != nil || !v.IsDefined() {
		return false, err
	}
	return v.AsBool()
}

func (a *AttributeDefinition) ResolveStrings(r *model.Resource, res Resolver) ([]string, error) {
	v, err := a.Resolve(r, res)
	if err != nil {
		return nil, err
	}
	return v.AsStrings(), nil
}

// EnumValidator accepts one of a fixed set of values, case sensitive.
type EnumValidator []string

func Enum(vs []string) EnumValidator { return EnumValidator(vs) }

func (e EnumValidator) Validate(_ string, v model.Value) error {
	if slices.Contains(e, v.AsString()) {
		return nil
	}
	return fmt.Errorf("expected one of %s", strings.Join(e, ", "))
}

// RangeValidator bounds numeric values inclusively.
type RangeValidator struct {
	Min, Max float64
}

func Range(lo, hi float64) RangeValidator { return RangeValidator{Min: lo, Max: hi} }

func (r RangeValidator) Validate(_ string, v model.Value) error {
	f, err := v.AsDouble()
	if err != nil {
		return err
	}
	if f < r.Min || f > r.Max {
		return fmt.Errorf("value %v out of range [%v, %v]", f, r.Min, r.Max)
	}
	return nil
}

// ListValidator applies an element validator to each list element.
type ListValidator struct {
	Element Validator
}

func (l ListValidator) Validate(name string, v model.Value) error {
	for _, e := range v.AsList() {
		if err := l.Element.Validate(name, e); err != nil {
			return err
		}
	}
	return nil
}
