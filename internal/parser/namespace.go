// Package parser reads and writes the infinispan subsystem XML document.
//
// A document in any supported namespace version is read into the ordered list of add
// operations that rebuilds it; the writer walks a model and always emits the current
// namespace.
package parser

import (
	"fmt"
	"strings"

	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

const namespacePrefix = "urn:infinispan:server:core:"

// Namespace is a supported schema version of the subsystem document.
type Namespace struct {
	URI     string
	Version int
}

var (
	Namespace70 = Namespace{URI: namespacePrefix + "7.0", Version: schema.Version70}
	Namespace80 = Namespace{URI: namespacePrefix + "8.0", Version: schema.Version80}
	Namespace81 = Namespace{URI: namespacePrefix + "8.1", Version: schema.Version81}
	Namespace90 = Namespace{URI: namespacePrefix + "9.0", Version: schema.Version90}
	Namespace92 = Namespace{URI: namespacePrefix + "9.2", Version: schema.Version92}
	Namespace94 = Namespace{URI: namespacePrefix + "9.4", Version: schema.Version94}

	// Current is the namespace the writer emits.
	Current = Namespace94
)

// Namespaces lists the supported namespaces, oldest first.
var Namespaces = []Namespace{Namespace70, Namespace80, Namespace81, Namespace90, Namespace92, Namespace94}

// NamespaceOf returns the namespace with the given URI.
func NamespaceOf(uri string) (Namespace, error) {
	for _, ns := range Namespaces {
		if ns.URI == uri {
			return ns, nil
		}
	}
	return Namespace{}, fmt.Errorf("unsupported namespace %q", uri)
}

// Since reports whether the namespace is at least the given version.
func (n Namespace) Since(version int) bool { return n.Version >= version }

func (n Namespace) String() string { return strings.TrimPrefix(n.URI, namespacePrefix) }
