package parser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/infinispan/infinispan-subsystem/internal/model"
	"github.com/infinispan/infinispan-subsystem/internal/schema"
)

// ParseError reports the first problem found in a document.
type ParseError struct {
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at [row,col]:[%d,%d]: %s", e.Line, e.Column, e.Msg)
}

// Reader turns subsystem documents into add operations.
type Reader struct {
	logger zerolog.Logger
}

func NewReader(logger zerolog.Logger) *Reader {
	return &Reader{logger: logger.With().Str("component", "xml-reader").Logger()}
}

// Read parses one document. The first operation adds the subsystem; every resource is added
// after its parent. On error no operation is returned.
func (r *Reader) Read(in io.Reader) ([]model.Operation, error) {
	d := &decoder{
		dec:    xml.NewDecoder(in),
		logger: r.logger,
		seen:   make(map[string]struct{}),
	}
	se, err := d.next()
	if err != nil {
		return nil, err
	}
	if se == nil {
		return nil, d.errorf("empty document")
	}
	if se.Name.Local != root.name {
		return nil, d.unexpectedElement(*se)
	}
	if d.ns, err = NamespaceOf(se.Name.Space); err != nil {
		return nil, d.errorf("%v", err)
	}
	if err = d.readResource(root, se.Name.Local, nil, *se); err != nil {
		return nil, err
	}
	d.logger.Debug().Str("namespace", d.ns.String()).Int("operations", len(d.ops)).Msg("subsystem document read")
	return d.ops, nil
}

// ReadBytes is Read over an in-memory document.
func (r *Reader) ReadBytes(b []byte) ([]model.Operation, error) {
	return r.Read(bytes.NewReader(b))
}

type decoder struct {
	dec    *xml.Decoder
	ns     Namespace
	logger zerolog.Logger

	ops []model.Operation
	// pending cache instances are added once every configuration of their container is.
	pending []model.Operation
	seen    map[string]struct{}
	// peeked is a child element read ahead by readCache.
	peeked *xml.StartElement

	line, col int
}

func (d *decoder) errorf(format string, args ...any) error {
	return &ParseError{Line: d.line, Column: d.col, Msg: fmt.Sprintf(format, args...)}
}

func (d *decoder) unexpectedElement(se xml.StartElement) error {
	return d.errorf("unexpected element '%s' encountered", se.Name.Local)
}

func (d *decoder) unexpectedAttribute(se xml.StartElement, a xml.Attr) error {
	return d.errorf("unexpected attribute '%s' encountered on element '%s'", a.Name.Local, se.Name.Local)
}

func (d *decoder) missing(names ...string) error {
	return d.errorf("missing required attribute(s): %s", strings.Join(names, ", "))
}

func (d *decoder) duplicate(se xml.StartElement) error {
	return d.errorf("duplicate element '%s' encountered", se.Name.Local)
}

// token returns the next token that is not a comment, processing instruction or directive.
func (d *decoder) token() (xml.Token, error) {
	for {
		d.line, d.col = d.dec.InputPos()
		t, err := d.dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, d.errorf("unexpected end of document")
			}
			var se *xml.SyntaxError
			if errors.As(err, &se) {
				return nil, &ParseError{Line: se.Line, Column: d.col, Msg: se.Msg}
			}
			return nil, d.errorf("%v", err)
		}
		switch t.(type) {
		case xml.Comment, xml.ProcInst, xml.Directive:
			continue
		}
		return xml.CopyToken(t), nil
	}
}

// next returns the next child element of the current element, or nil at its end.
func (d *decoder) next() (*xml.StartElement, error) {
	if se := d.peeked; se != nil {
		d.peeked = nil
		return se, nil
	}
	for {
		t, err := d.token()
		if err != nil {
			return nil, err
		}
		switch t := t.(type) {
		case xml.StartElement:
			if d.ns.URI != "" && t.Name.Space != d.ns.URI {
				return nil, d.unexpectedElement(t)
			}
			return &t, nil
		case xml.EndElement:
			return nil, nil
		case xml.CharData:
			if len(bytes.TrimSpace(t)) > 0 {
				return nil, d.errorf("unexpected text %q", strings.TrimSpace(string(t)))
			}
		}
	}
}

// empty consumes the end of an element that has no content.
func (d *decoder) empty() error {
	se, err := d.next()
	if err != nil {
		return err
	}
	if se != nil {
		return d.unexpectedElement(*se)
	}
	return nil
}

// text returns the trimmed character data of an element without children.
func (d *decoder) text() (string, error) {
	var sb strings.Builder
	for {
		t, err := d.token()
		if err != nil {
			return "", err
		}
		switch t := t.(type) {
		case xml.StartElement:
			return "", d.unexpectedElement(t)
		case xml.EndElement:
			return strings.TrimSpace(sb.String()), nil
		case xml.CharData:
			sb.Write(t)
		}
	}
}

func (d *decoder) attributes(se xml.StartElement) []xml.Attr {
	out := make([]xml.Attr, 0, len(se.Attr))
	for _, a := range se.Attr {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		out = append(out, a)
	}
	return out
}

// value converts a raw XML attribute into a typed model value.
func (d *decoder) value(a *schema.AttributeDefinition, raw string) (model.Value, error) {
	if a.Type == schema.TypeList {
		v := model.StringList(strings.Fields(raw)...)
		if err := a.Validate(v); err != nil {
			return model.Value{}, d.errorf("%v", err)
		}
		return v, nil
	}
	v := model.Parse(raw)
	if v.IsExpression() {
		if !a.AllowExpression {
			return model.Value{}, d.errorf("attribute '%s' does not support expressions", a.XMLName)
		}
		return v, nil
	}
	out, err := a.ResolveValue(v, nil)
	if err != nil {
		return model.Value{}, d.errorf("invalid value '%s' for attribute '%s'", raw, a.XMLName)
	}
	return out, nil
}

func (d *decoder) readFields(se xml.StartElement, fields []field, params *model.Value) error {
	for _, a := range d.attributes(se) {
		var f *field
		for i := range fields {
			if fields[i].xml == a.Name.Local {
				f = &fields[i]
			}
		}
		if f == nil {
			return d.unexpectedAttribute(se, a)
		}
		v, err := d.value(f.attr, a.Value)
		if err != nil {
			return err
		}
		params.Set(f.attr.Name, v)
	}
	return nil
}

func (d *decoder) claim(addr model.PathAddress, se xml.StartElement) error {
	key := addr.String()
	if _, ok := d.seen[key]; ok {
		return d.duplicate(se)
	}
	d.seen[key] = struct{}{}
	return nil
}

// readResource reads an element adding a resource under parent.
func (d *decoder) readResource(el *element, tag string, parent model.PathAddress, se xml.StartElement) error {
	attrs := d.attributes(se)
	name := el.path.Value
	if el.path.IsWildcard() {
		name = el.defaultName
		rest := attrs[:0:0]
		for _, a := range attrs {
			if a.Name.Local == el.nameAttr {
				name = a.Value
				continue
			}
			rest = append(rest, a)
		}
		attrs = rest
		if name == "" {
			return d.missing(el.nameAttr)
		}
	}
	addr := parent.Append(model.Element(el.path.Key, name))
	if err := d.claim(addr, se); err != nil {
		return err
	}
	def, err := registry.Lookup(addr)
	if err != nil {
		return d.errorf("%v", err)
	}

	op := model.NewOperation(model.OpAdd, addr)
	known := el.xmlAttributes(def)
	for _, a := range attrs {
		ad := lookupXML(known, a.Name.Local)
		if ad == nil || !d.ns.Since(el.attrSince[ad.Name]) {
			return d.unexpectedAttribute(se, a)
		}
		if ad.DeprecatedSince > 0 {
			if d.ns.Since(ad.DeprecatedSince) {
				return d.unexpectedAttribute(se, a)
			}
			d.logger.Warn().Int("line", d.line).Str("attribute", a.Name.Local).Str("element", tag).
				Msg("attribute is deprecated and has no effect, please update your configuration file")
			continue
		}
		v, err := d.value(ad, a.Value)
		if err != nil {
			return err
		}
		op.Params.Set(ad.Name, v)
	}
	var missing []string
	for _, a := range known {
		if a.Required && !op.Params.Has(a.Name) {
			missing = append(missing, a.XMLName)
		}
	}
	if len(missing) > 0 {
		return d.missing(missing...)
	}

	i := len(d.ops)
	d.ops = append(d.ops, op)
	for _, p := range el.implied {
		d.ops = append(d.ops, model.NewOperation(model.OpAdd, addr.Append(p)))
		d.seen[addr.Append(p).String()] = struct{}{}
	}

	if el.text != "" {
		s, err := d.text()
		if err != nil {
			return err
		}
		if s != "" {
			ad, _ := def.Attribute(el.text)
			v, err := d.value(ad, s)
			if err != nil {
				return err
			}
			d.ops[i].Params.Set(el.text, v)
		}
	} else if err = d.readChildren(el, addr, i); err != nil {
		return err
	}

	for _, a := range def.Attributes {
		if a.Required && !d.ops[i].Params.Has(a.Name) {
			if a.Name == el.text {
				return d.errorf("element '%s' requires a value", tag)
			}
			return d.errorf("missing required %s for element '%s'", a.XMLName, tag)
		}
	}
	if len(d.pending) > 0 && el.path.Key == schema.CacheContainer {
		d.ops = append(d.ops, d.pending...)
		d.pending = nil
	}
	return nil
}

func lookupXML(as []*schema.AttributeDefinition, name string) *schema.AttributeDefinition {
	for _, a := range as {
		if a.XMLName == name {
			return a
		}
	}
	return nil
}

// readChildren reads the child elements of el, whose resource is the operation at index i.
func (d *decoder) readChildren(el *element, addr model.PathAddress, i int) error {
	for {
		se, err := d.next()
		if err != nil {
			return err
		}
		if se == nil {
			return nil
		}
		c := el.child(se.Name.Local)
		if c == nil || !d.ns.Since(c.since) {
			return d.unexpectedElement(*se)
		}
		switch c.kind {
		case resourceElement:
			err = d.readResource(c, se.Name.Local, addr, *se)
		case wrapperElement:
			if as := d.attributes(*se); len(as) > 0 {
				return d.unexpectedAttribute(*se, as[0])
			}
			err = d.readChildren(c, addr, i)
		case valueElement:
			err = c.read(d, *se, &d.ops[i].Params)
		case cacheElement:
			err = d.readCache(c, addr, *se)
		}
		if err != nil {
			return err
		}
	}
}

// readCache reads a cache or configuration template element of a container.
//
// A template only adds its configuration. A cache element with no content besides its name
// and configuration refers to an existing template; any other cache element declares its own
// configuration, named after the cache, which inherits from the configuration attribute if
// given.
func (d *decoder) readCache(el *element, container model.PathAddress, se xml.StartElement) error {
	cacheType := el.path.Key
	if !el.template && d.ns.Since(schema.Version80) {
		if name, ref, ok := reference(d.attributes(se)); ok {
			c, err := d.next()
			if err != nil {
				return err
			}
			if c == nil {
				return d.addCache(container, cacheType, name, ref, se)
			}
			d.peeked = c
		}
	}

	configurations := container.Append(model.Element(schema.Configurations, schema.ConfigurationsName))
	start := len(d.ops)
	if err := d.readResource(el.config, se.Name.Local, configurations, se); err != nil {
		return err
	}
	op := d.ops[start]
	if !d.ns.Since(schema.Version80) && schema.IsClustered(cacheType) && !op.Params.Has(schema.ModeKey) {
		return d.missing(schema.ModeKey)
	}
	if el.template {
		return nil
	}
	name := op.Address.Last().Value
	return d.addCache(container, cacheType, name, name, se)
}

// reference returns the name and configuration of a cache element carrying nothing else.
func reference(attrs []xml.Attr) (name, ref string, ok bool) {
	if len(attrs) != 2 {
		return "", "", false
	}
	for _, a := range attrs {
		switch a.Name.Local {
		case schema.Name:
			name = a.Value
		case schema.Configuration:
			ref = a.Value
		}
	}
	return name, ref, name != "" && ref != ""
}

func (d *decoder) addCache(container model.PathAddress, cacheType, name, ref string, se xml.StartElement) error {
	if err := d.claim(container.Append(model.Element("cache", name)), se); err != nil {
		return err
	}
	cache := container.Append(model.Element(cacheType, name))
	d.pending = append(d.pending, model.NewOperation(model.OpAdd, cache).With(schema.Configuration, model.StringValue(ref)))
	return nil
}
