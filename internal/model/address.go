package model

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Wildcard matches any value of a path element.
const Wildcard = "*"

// PathElement is a single key=value step of a resource address.
type PathElement struct {
	Key   string
	Value string
}

func Element(key, value string) PathElement { return PathElement{Key: key, Value: value} }

// WildcardElement matches every child of the given type.
func WildcardElement(key string) PathElement { return PathElement{Key: key, Value: Wildcard} }

func (e PathElement) IsWildcard() bool { return e.Value == Wildcard }

func (e PathElement) Matches(o PathElement) bool {
	return e.Key == o.Key && (e.IsWildcard() || o.IsWildcard() || e.Value == o.Value)
}

func (e PathElement) String() string { return e.Key + "=" + e.Value }

// PathAddress locates a resource from the root of the model.
type PathAddress []PathElement

func Address(elems ...PathElement) PathAddress {
	out := make(PathAddress, len(elems))
	copy(out, elems)
	return out
}

// Append returns a new address; the receiver is never modified.
func (a PathAddress) Append(elems ...PathElement) PathAddress {
	out := make(PathAddress, 0, len(a)+len(elems))
	out = append(out, a...)
	return append(out, elems...)
}

func (a PathAddress) Parent() PathAddress {
	if len(a) == 0 {
		return a
	}
	return Address(a[:len(a)-1]...)
}

func (a PathAddress) Last() PathElement {
	if len(a) == 0 {
		return PathElement{}
	}
	return a[len(a)-1]
}

// Value returns the value of the first element with the given key.
func (a PathAddress) Value(key string) string {
	for _, e := range a {
		if e.Key == key {
			return e.Value
		}
	}
	return ""
}

func (a PathAddress) Equal(o PathAddress) bool {
	if len(a) != len(o) {
		return false
	}
	for i := range a {
		if a[i] != o[i] {
			return false
		}
	}
	return true
}

// Matches reports whether a matches pattern element by element, honouring wildcards.
func (a PathAddress) Matches(pattern PathAddress) bool {
	if len(a) != len(pattern) {
		return false
	}
	for i := range a {
		if !pattern[i].Matches(a[i]) {
			return false
		}
	}
	return true
}

func (a PathAddress) String() string {
	if len(a) == 0 {
		return "/"
	}
	var sb strings.Builder
	for _, e := range a {
		sb.WriteByte('/')
		sb.WriteString(e.String())
	}
	return sb.String()
}

// ParseAddress parses the "/key=value/key=value" form.
func ParseAddress(s string) (PathAddress, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "/" {
		return PathAddress{}, nil
	}
	parts := strings.Split(strings.TrimPrefix(s, "/"), "/")
	out := make(PathAddress, 0, len(parts))
	for _, p := range parts {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" || v == "" {
			return nil, fmt.Errorf("invalid address element %q in %q", p, s)
		}
		out = append(out, Element(k, v))
	}
	return out, nil
}

// MarshalJSON writes the management API form: a list of single-key objects.
func (a PathAddress) MarshalJSON() ([]byte, error) {
	l := make([]map[string]string, 0, len(a))
	for _, e := range a {
		l = append(l, map[string]string{e.Key: e.Value})
	}
	return json.Marshal(l)
}

func (a *PathAddress) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := ParseAddress(s)
		if err != nil {
			return err
		}
		*a = parsed
		return nil
	}
	var l []map[string]string
	if err := json.Unmarshal(data, &l); err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	out := make(PathAddress, 0, len(l))
	for _, m := range l {
		if len(m) != 1 {
			return fmt.Errorf("address element must have exactly one key, got %d", len(m))
		}
		for k, v := range m {
			out = append(out, Element(k, v))
		}
	}
	*a = out
	return nil
}
