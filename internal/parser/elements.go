package parser

import (
	"encoding/xml"
	"slices"

	"github.com/infinispan/infinispan-subsystem/internal/model"
	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

type elementKind uint8

const (
	// resourceElement adds a child resource whose attributes are the element's attributes.
	resourceElement elementKind = iota
	// wrapperElement groups child elements of the enclosing resource.
	wrapperElement
	// valueElement sets attributes of the enclosing resource.
	valueElement
	// cacheElement declares a cache configuration and, unless it is a template, a cache using it.
	cacheElement
)

// element maps one XML element onto the management model. The same table drives the reader
// and the writer, so child order is the order the writer emits.
type element struct {
	name string
	kind elementKind
	// since is the first namespace version accepting the element.
	since int

	// path is the resource added by a resourceElement; a wildcard value is taken from the
	// nameAttr attribute or, when absent, defaultName.
	path        model.PathElement
	nameAttr    string
	defaultName string
	// text names the attribute holding the character data of the element.
	text string
	// attrSince gates single attributes by namespace version.
	attrSince map[string]int
	// implied resources are added together with the element's own resource.
	implied []model.PathElement

	// claims are the enclosing resource attributes set by a valueElement.
	claims []string
	read   func(d *decoder, se xml.StartElement, params *model.Value) error
	write  func(e *encoder, r *model.Resource) error

	// config is the configuration resource element of a cacheElement.
	config   *element
	template bool

	children []*element
}

func (el *element) child(name string) *element {
	for _, c := range el.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// claimed reports whether a value child element sets the named attribute.
func (el *element) claimed(name string) bool {
	for _, c := range el.children {
		switch c.kind {
		case valueElement:
			if slices.Contains(c.claims, name) {
				return true
			}
		case wrapperElement:
			if c.claimed(name) {
				return true
			}
		}
	}
	return false
}

// xmlAttributes returns the resource attributes written as XML attributes of el.
func (el *element) xmlAttributes(def *schema.ResourceDefinition) []*schema.AttributeDefinition {
	out := make([]*schema.AttributeDefinition, 0, len(def.Attributes))
	for _, a := range def.Attributes {
		if a.Type == schema.TypeObject || a.Name == el.text || el.claimed(a.Name) {
			continue
		}
		out = append(out, a)
	}
	return out
}

func resourceEl(name string, path model.PathElement, children ...*element) *element {
	el := &element{name: name, kind: resourceElement, path: path, children: children}
	if path.IsWildcard() {
		el.nameAttr = schema.Name
	}
	return el
}

// fixed is a singleton child resource named after its element.
func fixed(name, value string, children ...*element) *element {
	return resourceEl(name, model.Element(name, value), children...)
}

// named is a wildcard child resource named by the name attribute.
func named(name string, children ...*element) *element {
	return resourceEl(name, model.WildcardElement(name), children...)
}

func wrapper(name string, children ...*element) *element {
	return &element{name: name, kind: wrapperElement, children: children}
}

func (el *element) from(version int) *element {
	el.since = version
	return el
}

// field maps an XML attribute of a value element onto a resource attribute.
type field struct {
	xml  string
	attr *schema.AttributeDefinition
}

// inline is an element whose attributes belong to the enclosing resource.
func inline(name string, fields ...field) *element {
	el := &element{name: name, kind: valueElement}
	for _, f := range fields {
		el.claims = append(el.claims, f.attr.Name)
	}
	el.read = func(d *decoder, se xml.StartElement, params *model.Value) error {
		if err := d.readFields(se, fields, params); err != nil {
			return err
		}
		return d.empty()
	}
	el.write = func(e *encoder, r *model.Resource) error {
		attrs := fieldAttrs(r, fields)
		if len(attrs) == 0 {
			return nil
		}
		return e.empty(name, attrs...)
	}
	return el
}

// marker is an element whose presence sets attr to value, with optional extra fields.
func marker(name string, attr *schema.AttributeDefinition, value string, fields ...field) *element {
	el := &element{name: name, kind: valueElement, claims: []string{attr.Name}}
	for _, f := range fields {
		el.claims = append(el.claims, f.attr.Name)
	}
	el.read = func(d *decoder, se xml.StartElement, params *model.Value) error {
		if params.Has(attr.Name) {
			return d.errorf("duplicate %s definition %s", attr.Name, se.Name.Local)
		}
		params.Set(attr.Name, model.StringValue(value))
		if err := d.readFields(se, fields, params); err != nil {
			return err
		}
		for _, f := range fields {
			if !params.Has(f.attr.Name) {
				return d.missing(f.xml)
			}
		}
		return d.empty()
	}
	el.write = func(e *encoder, r *model.Resource) error {
		if r.Get(attr.Name).AsString() != value {
			return nil
		}
		return e.empty(name, fieldAttrs(r, fields)...)
	}
	return el
}

func fieldAttrs(r *model.Resource, fields []field) []xml.Attr {
	var out []xml.Attr
	for _, f := range fields {
		if v := r.Get(f.attr.Name); v.IsDefined() {
			out = append(out, attr(f.xml, format(v)))
		}
	}
	return out
}

// objectSpec maps an element and its nested elements onto an object value.
type objectSpec struct {
	name     string
	keys     []string
	required []string
	nested   []*objectSpec
}

func (s *objectSpec) read(d *decoder, se xml.StartElement) (model.Value, error) {
	obj := model.NewObject()
	for _, a := range d.attributes(se) {
		if !slices.Contains(s.keys, a.Name.Local) {
			return model.Value{}, d.unexpectedAttribute(se, a)
		}
		obj.Set(a.Name.Local, model.Parse(a.Value))
	}
	for _, k := range s.required {
		if !obj.Has(k) {
			return model.Value{}, d.missing(k)
		}
	}
	for {
		c, err := d.next()
		if err != nil || c == nil {
			return obj, err
		}
		i := slices.IndexFunc(s.nested, func(n *objectSpec) bool { return n.name == c.Name.Local })
		if i < 0 {
			return model.Value{}, d.unexpectedElement(*c)
		}
		if obj.Has(c.Name.Local) {
			return model.Value{}, d.duplicate(*c)
		}
		v, err := s.nested[i].read(d, *c)
		if err != nil {
			return model.Value{}, err
		}
		obj.Set(c.Name.Local, v)
	}
}

func (s *objectSpec) write(e *encoder, v model.Value) error {
	var attrs []xml.Attr
	for _, k := range s.keys {
		if kv := v.Get(k); kv.IsDefined() {
			attrs = append(attrs, attr(k, kv.AsString()))
		}
	}
	if err := e.start(s.name, attrs...); err != nil {
		return err
	}
	for _, n := range s.nested {
		if nv := v.Get(n.name); nv.IsDefined() {
			if err := n.write(e, nv); err != nil {
				return err
			}
		}
	}
	return e.end(s.name)
}

// object stores an element as an object attribute of the enclosing resource.
func object(a *schema.AttributeDefinition, spec *objectSpec) *element {
	return &element{
		name:   spec.name,
		kind:   valueElement,
		claims: []string{a.Name},
		read: func(d *decoder, se xml.StartElement, params *model.Value) error {
			if params.Has(a.Name) {
				return d.duplicate(se)
			}
			v, err := spec.read(d, se)
			if err != nil {
				return err
			}
			params.Set(a.Name, v)
			return nil
		},
		write: func(e *encoder, r *model.Resource) error {
			if v := r.Get(a.Name); v.IsDefined() {
				return spec.write(e, v)
			}
			return nil
		},
	}
}

// listItem appends the value of one XML attribute per element to a list attribute.
func listItem(name, key string, listAttr string) *element {
	return &element{
		name:   name,
		kind:   valueElement,
		claims: []string{listAttr},
		read: func(d *decoder, se xml.StartElement, params *model.Value) error {
			var item string
			for _, a := range d.attributes(se) {
				if a.Name.Local != key {
					return d.unexpectedAttribute(se, a)
				}
				item = a.Value
			}
			if item == "" {
				return d.missing(key)
			}
			l := params.Get(listAttr)
			l.Add(model.StringValue(item))
			params.Set(listAttr, l)
			return d.empty()
		},
		write: func(e *encoder, r *model.Resource) error {
			for _, item := range r.Get(listAttr).AsStrings() {
				if err := e.empty(name, attr(key, item)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// indexedEntities reads <indexed-entities><indexed-entity>class</indexed-entity></indexed-entities>.
func indexedEntities() *element {
	const item = "indexed-entity"
	return &element{
		name:   "indexed-entities",
		kind:   valueElement,
		claims: []string{schema.IndexedEntities},
		read: func(d *decoder, se xml.StartElement, params *model.Value) error {
			if params.Has(schema.IndexedEntities) {
				return d.duplicate(se)
			}
			l := model.ListValue()
			for {
				c, err := d.next()
				if err != nil {
					return err
				}
				if c == nil {
					break
				}
				if c.Name.Local != item {
					return d.unexpectedElement(*c)
				}
				s, err := d.text()
				if err != nil {
					return err
				}
				l.Add(model.StringValue(s))
			}
			params.Set(schema.IndexedEntities, l)
			return nil
		},
		write: func(e *encoder, r *model.Resource) error {
			entities := r.Get(schema.IndexedEntities)
			if !entities.IsDefined() {
				return nil
			}
			if err := e.start("indexed-entities"); err != nil {
				return err
			}
			for _, s := range entities.AsStrings() {
				if err := e.textElement(item, s); err != nil {
					return err
				}
			}
			return e.end("indexed-entities")
		},
	}
}

// properties collects <property name="k">v</property> into an object attribute.
func properties(objAttr string) *element {
	return &element{
		name:   schema.Property,
		kind:   valueElement,
		claims: []string{objAttr},
		read: func(d *decoder, se xml.StartElement, params *model.Value) error {
			var key string
			for _, a := range d.attributes(se) {
				if a.Name.Local != schema.Name {
					return d.unexpectedAttribute(se, a)
				}
				key = a.Value
			}
			if key == "" {
				return d.missing(schema.Name)
			}
			s, err := d.text()
			if err != nil {
				return err
			}
			obj := params.Get(objAttr)
			if !obj.IsDefined() {
				obj = model.NewObject()
			}
			if obj.Has(key) {
				return d.errorf("duplicate property %s", key)
			}
			obj.Set(key, model.Parse(s))
			params.Set(objAttr, obj)
			return nil
		},
		write: func(e *encoder, r *model.Resource) error {
			obj := r.Get(objAttr)
			for _, k := range obj.Keys() {
				if err := e.textElement(schema.Property, obj.Get(k).AsString(), attr(schema.Name, k)); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func propertyEl() *element {
	el := named(schema.Property)
	el.text = schema.Value
	return el
}

var (
	pathLocation = func(name string) *objectSpec {
		return &objectSpec{name: name, keys: []string{schema.Path, schema.RelativeTo}, required: []string{schema.Path}}
	}
	column = func(name string) *objectSpec {
		return &objectSpec{name: name, keys: []string{schema.Name, schema.TypeKey}}
	}
	table = func(name string) *objectSpec {
		return &objectSpec{
			name:   name,
			keys:   []string{schema.Prefix, schema.BatchSize, schema.FetchSize},
			nested: []*objectSpec{column(schema.IDColumn), column(schema.DataColumn), column(schema.TimestampColumn)},
		}
	}
)

func storeEl(typ string, children ...*element) *element {
	el := named(typ, append([]*element{fixed(schema.WriteBehind, schema.WriteBehindName), propertyEl()}, children...)...)
	el.defaultName = schema.DefaultStoreName(typ)
	return el
}

func loaderEl(typ string) *element {
	el := named(typ, propertyEl())
	el.defaultName = schema.DefaultStoreName(typ)
	return el
}

func configurationElement(cacheType string) *element {
	backup := named(schema.Backup,
		inline("take-offline",
			field{xml: schema.AfterFailures, attr: schema.BackupAfterFailures},
			field{xml: schema.MinWait, attr: schema.BackupMinWait},
		),
		fixed(schema.StateTransfer, schema.StateTransferName),
	)
	backup.nameAttr = "site"

	remoteServer := listItem("remote-server", schema.OutboundSocketBinding, schema.RemoteServers)
	children := []*element{
		wrapper("backups", backup),
		inline(schema.BackupFor,
			field{xml: schema.RemoteCache, attr: schema.CacheRemoteCache},
			field{xml: schema.RemoteSite, attr: schema.CacheRemoteSite},
		),
		fixed(schema.Locking, schema.LockingName),
		fixed(schema.TransactionKey, schema.TransactionName),
		fixed(schema.EvictionKey, schema.EvictionName),
		fixed(schema.ExpirationKey, schema.ExpirationName),
		fixed(schema.Compatibility, schema.CompatibilityName),
		fixed(schema.Security, schema.SecurityName, fixed(schema.Authorization, schema.AuthorizationName)),
		fixed(schema.IndexingKey, schema.IndexingName, properties(schema.IndexingProps), indexedEntities()),
	}
	if cacheType == schema.ReplicatedCache || cacheType == schema.DistributedCache {
		children = append(children,
			fixed(schema.StateTransfer, schema.StateTransferName),
			fixed(schema.PartitionHandling, schema.PartitionHandlingName),
		)
	}
	children = append(children,
		loaderEl(schema.Loader),
		loaderEl(schema.ClusterLoader),
		storeEl(schema.Store),
		storeEl(schema.FileStore),
		storeEl(schema.StringKeyedJDBCStore, object(schema.JDBCStringKeyedTable, table(schema.StringKeyedTable))),
		storeEl(schema.BinaryKeyedJDBCStore, object(schema.JDBCBinaryKeyedTable, table(schema.BinaryKeyedTable))),
		storeEl(schema.MixedKeyedJDBCStore,
			object(schema.JDBCStringKeyedTable, table(schema.StringKeyedTable)),
			object(schema.JDBCBinaryKeyedTable, table(schema.BinaryKeyedTable)),
		),
		storeEl(schema.RemoteStore, remoteServer),
		storeEl(schema.LevelDBStore,
			fixed(schema.ExpirationKey, schema.ExpirationName),
			fixed(schema.Compression, schema.CompressionName),
		),
		storeEl(schema.RestStore, fixed(schema.ConnectionPool, schema.ConnectionPoolName), remoteServer),
	)
	el := named(schema.ConfigurationType(cacheType), children...)
	el.attrSince = map[string]int{schema.Configuration: schema.Version80}
	return el
}

func threadPoolElements() []*element {
	out := make([]*element, 0, len(schema.ThreadPoolNames))
	for _, pool := range schema.ThreadPoolNames {
		out = append(out, resourceEl(pool+"-thread-pool", model.Element(schema.ThreadPool, pool)).from(schema.Version80))
	}
	return out
}

func containerElement() *element {
	authorization := fixed(schema.Authorization, schema.AuthorizationName,
		marker(string(schema.MapperIdentity), schema.AuthzMapper, string(schema.MapperIdentity)),
		marker(string(schema.MapperCommonName), schema.AuthzMapper, string(schema.MapperCommonName)),
		marker(string(schema.MapperCluster), schema.AuthzMapper, string(schema.MapperCluster)),
		marker(string(schema.MapperCustom), schema.AuthzMapper, string(schema.MapperCustom),
			field{xml: schema.Class, attr: schema.AuthzMapperClass}),
		named(schema.Role),
	)
	globalState := fixed(schema.GlobalState, schema.GlobalStateName,
		object(schema.GSPersistentLocation, pathLocation(schema.PersistentLocation)),
		object(schema.GSSharedPersistentLocation, pathLocation(schema.SharedPersistentLocation)),
		object(schema.GSTemporaryLocation, pathLocation(schema.TemporaryLocation)),
	).from(schema.Version81)
	for _, s := range []schema.ConfigurationStorage{schema.StorageImmutable, schema.StorageVolatileC, schema.StorageOverlay, schema.StorageManaged} {
		globalState.children = append(globalState.children,
			marker(storageElementName(s), schema.GSConfigurationStorage, string(s)))
	}
	globalState.children = append(globalState.children,
		marker(storageElementName(schema.StorageCustom), schema.GSConfigurationStorage, string(schema.StorageCustom),
			field{xml: schema.Class, attr: schema.GSConfigurationStorageCls}))

	children := []*element{
		fixed(schema.Transport, schema.TransportName),
		fixed(schema.Security, schema.SecurityName, authorization),
		globalState,
	}
	children = append(children, threadPoolElements()...)
	for _, typ := range schema.CacheTypes {
		config := configurationElement(typ)
		children = append(children,
			&element{name: typ, kind: cacheElement, path: model.WildcardElement(typ), config: config},
			&element{name: config.name, kind: cacheElement, path: model.WildcardElement(typ), config: config, template: true, since: schema.Version80},
		)
	}
	children = append(children, fixed(schema.CountersKey, schema.CountersName,
		named(schema.StrongCounter,
			inline("lower-bound", field{xml: schema.Value, attr: schema.CounterLowerBound}),
			inline("upper-bound", field{xml: schema.Value, attr: schema.CounterUpperBound}),
		),
		named(schema.WeakCounter),
	).from(schema.Version92))

	el := named(schema.CacheContainer, children...)
	el.implied = []model.PathElement{model.Element(schema.Configurations, schema.ConfigurationsName)}
	return el
}

func storageElementName(s schema.ConfigurationStorage) string {
	switch s {
	case schema.StorageImmutable:
		return "immutable-configuration-storage"
	case schema.StorageVolatileC:
		return "volatile-configuration-storage"
	case schema.StorageOverlay:
		return "overlay-configuration-storage"
	case schema.StorageManaged:
		return "managed-configuration-storage"
	}
	return "custom-configuration-storage"
}

var (
	registry = schema.NewRegistry()
	root     = &element{name: schema.Subsystem, kind: resourceElement, path: model.Element(schema.Subsystem, schema.SubsystemName), children: []*element{containerElement()}}
)
