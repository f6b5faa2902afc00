package parser

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/infinispan/infinispan-subsystem/internal/model"
	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

// Write emits the subsystem resource as a document in the current namespace. Only defined
// attributes are written.
func Write(w io.Writer, subsystem *model.Resource) error {
	e := &encoder{enc: xml.NewEncoder(w)}
	e.enc.Indent("", "    ")
	addr := model.Address(root.path)
	start := xml.StartElement{Name: xml.Name{Space: Current.URI, Local: root.name}}
	if err := e.enc.EncodeToken(start); err != nil {
		return err
	}
	if err := e.children(root, subsystem, addr); err != nil {
		return err
	}
	if err := e.enc.EncodeToken(start.End()); err != nil {
		return err
	}
	if err := e.enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

type encoder struct {
	enc *xml.Encoder
}

func attr(name, value string) xml.Attr {
	return xml.Attr{Name: xml.Name{Local: name}, Value: value}
}

// format renders a value as an XML attribute. Lists are space separated.
func format(v model.Value) string {
	if v.Kind() == model.List {
		return strings.Join(v.AsStrings(), " ")
	}
	return v.AsString()
}

func (e *encoder) start(name string, attrs ...xml.Attr) error {
	return e.enc.EncodeToken(xml.StartElement{Name: xml.Name{Local: name}, Attr: attrs})
}

func (e *encoder) end(name string) error {
	return e.enc.EncodeToken(xml.EndElement{Name: xml.Name{Local: name}})
}

func (e *encoder) empty(name string, attrs ...xml.Attr) error {
	if err := e.start(name, attrs...); err != nil {
		return err
	}
	return e.end(name)
}

func (e *encoder) textElement(name, text string, attrs ...xml.Attr) error {
	if err := e.start(name, attrs...); err != nil {
		return err
	}
	if err := e.enc.EncodeToken(xml.CharData(text)); err != nil {
		return err
	}
	return e.end(name)
}

// resource writes r as element el under the given tag.
func (e *encoder) resource(el *element, tag string, r *model.Resource, addr model.PathAddress) error {
	def, err := registry.Lookup(addr)
	if err != nil {
		return err
	}
	var attrs []xml.Attr
	if el.path.IsWildcard() {
		attrs = append(attrs, attr(el.nameAttr, addr.Last().Value))
	}
	for _, a := range el.xmlAttributes(def) {
		if v := r.Get(a.Name); v.IsDefined() && a.DeprecatedSince == 0 {
			attrs = append(attrs, attr(a.XMLName, format(v)))
		}
	}
	if el.text != "" {
		return e.textElement(tag, r.Get(el.text).AsString(), attrs...)
	}
	if err = e.start(tag, attrs...); err != nil {
		return err
	}
	if err = e.children(el, r, addr); err != nil {
		return err
	}
	return e.end(tag)
}

func (e *encoder) children(el *element, r *model.Resource, addr model.PathAddress) error {
	for _, c := range el.children {
		var err error
		switch c.kind {
		case resourceElement:
			err = e.resources(c, r, addr)
		case wrapperElement:
			if !hasContent(c, r) {
				continue
			}
			if err = e.start(c.name); err == nil {
				if err = e.children(c, r, addr); err == nil {
					err = e.end(c.name)
				}
			}
		case valueElement:
			err = c.write(e, r)
		case cacheElement:
			if !c.template {
				err = e.caches(c, r, addr)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// resources writes every child of r matching a resource element.
func (e *encoder) resources(el *element, r *model.Resource, addr model.PathAddress) error {
	names := []string{el.path.Value}
	if el.path.IsWildcard() {
		names = r.ChildNames(el.path.Key)
	}
	for _, n := range names {
		p := model.Element(el.path.Key, n)
		c, ok := r.Child(p)
		if !ok {
			continue
		}
		if err := e.resource(el, el.name, c, addr.Append(p)); err != nil {
			return err
		}
	}
	return nil
}

func hasContent(el *element, r *model.Resource) bool {
	for _, c := range el.children {
		if c.kind == resourceElement && len(r.ChildNames(c.path.Key)) > 0 {
			return true
		}
	}
	return false
}

// caches writes the configurations of one cache type followed by the caches using them. A
// configuration used only by the cache of the same name is written in identity form.
func (e *encoder) caches(el *element, container *model.Resource, addr model.PathAddress) error {
	holderPath := model.Element(schema.Configurations, schema.ConfigurationsName)
	holder, ok := container.Child(holderPath)
	if !ok {
		return nil
	}
	cacheType := el.path.Key
	users := make(map[string][]string)
	for _, name := range container.ChildNames(cacheType) {
		c, _ := container.Child(model.Element(cacheType, name))
		ref := c.Get(schema.Configuration).AsString()
		users[ref] = append(users[ref], name)
	}
	cfgType := schema.ConfigurationType(cacheType)
	for _, name := range holder.ChildNames(cfgType) {
		p := model.Element(cfgType, name)
		cfg, _ := holder.Child(p)
		caches := users[name]
		identity := len(caches) == 1 && caches[0] == name && !bareReference(cfg)
		tag := el.config.name
		if identity {
			tag = el.name
		}
		if err := e.resource(el.config, tag, cfg, addr.Append(holderPath, p)); err != nil {
			return err
		}
		if identity {
			continue
		}
		for _, cache := range caches {
			if err := e.empty(el.name, attr(schema.Name, cache), attr(schema.Configuration, name)); err != nil {
				return err
			}
		}
	}
	for ref, caches := range users {
		if _, ok := holder.Child(model.Element(cfgType, ref)); !ok {
			return fmt.Errorf("%s %s uses undefined configuration %s", cacheType, caches[0], ref)
		}
	}
	return nil
}

// bareReference reports whether a configuration only names its template, which in identity
// form would read back as a reference to that template.
func bareReference(cfg *model.Resource) bool {
	if len(cfg.ChildTypes()) > 0 {
		return false
	}
	defined := 0
	for _, n := range cfg.AttributeNames() {
		if cfg.IsDefined(n) {
			defined++
		}
	}
	return defined == 1 && cfg.IsDefined(schema.Configuration)
}
