package msc

import "strings"

// ServiceName is a dot separated hierarchical service identifier.
type ServiceName []string

// Name builds a service name from its segments.
func Name(parts ...string) ServiceName {
	out := make(ServiceName, len(parts))
	copy(out, parts)
	return out
}

// JBoss is the root of every service name installed by the server.
var JBoss = Name("jboss")

func (n ServiceName) Append(parts ...string) ServiceName {
	out := make(ServiceName, 0, len(n)+len(parts))
	out = append(out, n...)
	return append(out, parts...)
}

func (n ServiceName) Parent() ServiceName {
	if len(n) == 0 {
		return n
	}
	return Name(n[:len(n)-1]...)
}

func (n ServiceName) SimpleName() string {
	if len(n) == 0 {
		return ""
	}
	return n[len(n)-1]
}

func (n ServiceName) IsParentOf(o ServiceName) bool {
	if len(n) >= len(o) {
		return false
	}
	for i := range n {
		if n[i] != o[i] {
			return false
		}
	}
	return true
}

func (n ServiceName) Equal(o ServiceName) bool { return n.String() == o.String() }

func (n ServiceName) String() string { return strings.Join(n, ".") }

// ParseName splits a canonical dotted name.
func ParseName(s string) ServiceName {
	if s == "" {
		return nil
	}
	return Name(strings.Split(s, ".")...)
}
