package model

import (
	"encoding/json"
	"fmt"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Generic operation names understood by every resource.
const (
	OpAdd                     = "add"
	OpRemove                  = "remove"
	OpWriteAttribute          = "write-attribute"
	OpUndefineAttribute       = "undefine-attribute"
	OpReadAttribute           = "read-attribute"
	OpReadResource            = "read-resource"
	OpReadResourceDescription = "read-resource-description"
	OpReadChildrenNames       = "read-children-names"
	OpReload                  = "reload"
)

// Operation is a management request against a resource address.
type Operation struct {
	Name    string
	Address PathAddress
	Params  Value
}

func NewOperation(name string, addr PathAddress) Operation {
	return Operation{Name: name, Address: addr, Params: NewObject()}
}

// With sets a parameter and returns the operation for chaining.
func (o Operation) With(name string, v Value) Operation {
	if !o.Params.IsDefined() {
		o.Params = NewObject()
	}
	o.Params.Set(name, v)
	return o
}

func (o Operation) Param(name string) Value { return o.Params.Get(name) }

func (o Operation) String() string { return fmt.Sprintf("%s:%s", o.Address, o.Name) }

// MarshalJSON writes {"operation":..., "address":[...], <params>}.
func (o Operation) MarshalJSON() ([]byte, error) {
	out := NewObject()
	out.Set("operation", StringValue(o.Name))
	addr := ListValue()
	for _, e := range o.Address {
		el := NewObject()
		el.Set(e.Key, StringValue(e.Value))
		addr.Add(el)
	}
	out.Set("address", addr)
	for _, k := range o.Params.Keys() {
		out.Set(k, o.Params.Get(k))
	}
	return out.MarshalJSON()
}

func (o *Operation) UnmarshalJSON(data []byte) error {
	var v Value
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	if v.Kind() != Object {
		return fmt.Errorf("operation must be an object, got %s", v.Kind())
	}
	o.Name = v.Get("operation").AsString()
	if o.Name == "" {
		return fmt.Errorf("operation name is required")
	}
	o.Address = nil
	if raw := v.Get("address"); raw.IsDefined() {
		b, err := raw.MarshalJSON()
		if err != nil {
			return err
		}
		if err = json.Unmarshal(b, &o.Address); err != nil {
			return err
		}
	}
	o.Params = NewObject()
	for _, k := range v.Keys() {
		if k == "operation" || k == "address" {
			continue
		}
		o.Params.Set(k, v.Get(k))
	}
	return nil
}

// Result is the outcome of an operation.
type Result struct {
	Outcome            string `json:"outcome"`
	Result             Value  `json:"result"`
	FailureDescription string `json:"failure-description,omitempty"`
	// ResponseHeaders carries process state such as a pending reload.
	ResponseHeaders map[string]any `json:"response-headers,omitempty"`
}

func Success(v Value) Result { return Result{Outcome: OutcomeSuccess, Result: v} }

func Failure(format string, args ...any) Result {
	return Result{Outcome: OutcomeFailed, FailureDescription: fmt.Sprintf(format, args...)}
}

func (r Result) Failed() bool { return r.Outcome == OutcomeFailed }
