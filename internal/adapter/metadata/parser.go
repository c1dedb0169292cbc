// Package metadata builds entity metadata from format-agnostic trees and
// serves it through an in-memory provider.
//
// An entity document looks like this (YAML shown, any [domain.TreeNode]
// format works):
//
//	name: person
//	defaultVersion: "2"
//	backend: memory
//	constraints:
//	  - requiredFields: [name]
//	hooks:
//	  - name: audit
//	    actions: [insert, update]
//	    config: {target: log}
//	versions:
//	  - version: "2"
//	    access:
//	      find: [anyone]
//	      update: [admin]
//	    fields:
//	      name: string
//	      age:
//	        type: integer
//	        constraints:
//	          - minimum: 0
//	      tags:
//	        type: array
//	        items: string
//	      owner:
//	        type: reference
//	        entity: person
//	        version: "1"
package metadata

import (
	"fmt"

	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/constraint"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/decoder"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/tree"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/types"
)

// Kinds of fields that are not simple types.
const (
	TypeObject    = "object"
	TypeArray     = "array"
	TypeReference = "reference"
)

// Parser reads entity metadata.
type Parser struct {
	types            map[string]domain.Type
	constraints      map[string]domain.ConstraintParser
	hooks            map[string]domain.Hook
	defaultFieldType string
	defaultBackend   string
	decoder          domain.Decoder
}

// NewParser returns a parser. By default it knows the default types and
// constraints, no hooks, and untyped fields are strings.
func NewParser(options ...domain.MetadataParserOption) *Parser {
	dec := decoder.NewDecoder()
	opts := domain.MetadataParserOptions{
		Types:            types.Default(),
		Constraints:      constraint.Parsers(dec),
		Hooks:            map[string]domain.Hook{},
		DefaultFieldType: types.String,
		Decoder:          dec,
	}
	for _, option := range options {
		option(&opts)
	}
	return &Parser{
		types:            opts.Types,
		constraints:      opts.Constraints,
		hooks:            opts.Hooks,
		defaultFieldType: opts.DefaultFieldType,
		defaultBackend:   opts.DefaultBackend,
		decoder:          opts.Decoder,
	}
}

func parseErr(where string, format string, args ...any) error {
	return domain.ErrParse{Where: where, Reason: fmt.Sprintf(format, args...)}
}

// Parse reads an entity document and returns the metadata of each of its
// versions.
func (p *Parser) Parse(n domain.TreeNode) ([]*domain.EntityMetadata, error) {
	info, err := p.ParseInfo(n)
	if err != nil {
		return nil, err
	}
	vs, ok := n.Child("versions")
	if !ok || !vs.IsList() || len(vs.Elements()) == 0 {
		return nil, parseErr(info.Name, "entity needs a list of versions")
	}
	res := make([]*domain.EntityMetadata, 0, len(vs.Elements()))
	for _, v := range vs.Elements() {
		schema, err := p.ParseSchema(info.Name, v)
		if err != nil {
			return nil, err
		}
		res = append(res, &domain.EntityMetadata{Info: info, Schema: schema})
	}
	if info.DefaultVersion == "" {
		for _, md := range res {
			md.Info.DefaultVersion = res[len(res)-1].Schema.Version
		}
	}
	return res, nil
}

// ParseInfo reads the unversioned part of an entity document.
func (p *Parser) ParseInfo(n domain.TreeNode) (domain.EntityInfo, error) {
	var info domain.EntityInfo
	if n == nil || !n.IsObject() {
		return info, parseErr("entity", "expected an object")
	}
	var err error
	if info.Name, err = p.requiredString(n, "entity", "name"); err != nil {
		return info, err
	}
	if info.DefaultVersion, err = p.optionalString(n, info.Name, "defaultVersion"); err != nil {
		return info, err
	}
	if info.Backend, err = p.optionalString(n, info.Name, "backend"); err != nil {
		return info, err
	}
	if info.Backend == "" {
		info.Backend = p.defaultBackend
	}
	if c, ok := n.Child("constraints"); ok {
		if info.Constraints, err = p.parseConstraints(c, info.Name+".constraints"); err != nil {
			return info, err
		}
	}
	if h, ok := n.Child("hooks"); ok {
		if info.Hooks, err = p.parseHooks(h, info.Name+".hooks"); err != nil {
			return info, err
		}
	}
	return info, nil
}

// ParseSchema reads one version of an entity.
func (p *Parser) ParseSchema(entity string, n domain.TreeNode) (domain.EntitySchema, error) {
	schema := domain.EntitySchema{Name: entity}
	if !n.IsObject() {
		return schema, parseErr(entity, "version must be an object")
	}
	var err error
	if schema.Version, err = p.requiredString(n, entity, "version"); err != nil {
		return schema, err
	}
	where := entity + ":" + schema.Version
	if a, ok := n.Child("access"); ok {
		if schema.Access, err = p.parseAccess(a, where+".access"); err != nil {
			return schema, err
		}
	}
	f, ok := n.Child("fields")
	if !ok {
		return schema, parseErr(where, "missing fields")
	}
	root, err := p.parseObjectFields("", f, where+".fields")
	if err != nil {
		return schema, err
	}
	schema.Fields = root
	return schema, nil
}

func (p *Parser) requiredString(n domain.TreeNode, where, key string) (string, error) {
	s, err := p.optionalString(n, where, key)
	if err == nil && s == "" {
		return "", parseErr(where, "missing %s", key)
	}
	return s, err
}

func (p *Parser) optionalString(n domain.TreeNode, where, key string) (string, error) {
	c, ok := n.Child(key)
	if !ok {
		return "", nil
	}
	if !c.IsValue() {
		return "", parseErr(where, "%s must be a string", key)
	}
	switch v := c.Value().(type) {
	case string:
		return v, nil
	case int64, float64:
		// versions are often written as bare numbers in YAML
		return fmt.Sprint(v), nil
	}
	return "", parseErr(where, "%s must be a string", key)
}

func (p *Parser) parseAccess(n domain.TreeNode, where string) (domain.Access, error) {
	var a domain.Access
	v, err := tree.ToValue(n)
	if err != nil {
		return a, err
	}
	if err := p.decoder.Decode(v, &a); err != nil {
		return a, parseErr(where, "%s", err)
	}
	return a, nil
}

func (p *Parser) parseConstraints(n domain.TreeNode, where string) ([]domain.Constraint, error) {
	if !n.IsList() {
		return nil, parseErr(where, "expected a list")
	}
	res := make([]domain.Constraint, 0, len(n.Elements()))
	for i, e := range n.Elements() {
		w := fmt.Sprintf("%s[%d]", where, i)
		if !e.IsObject() {
			return nil, parseErr(w, "constraint must be an object with a single key")
		}
		count := 0
		for name, raw := range e.Fields() {
			count++
			if count > 1 {
				return nil, parseErr(w, "constraint must be an object with a single key")
			}
			parse, ok := p.constraints[name]
			if !ok {
				return nil, parseErr(w, "unknown constraint %q", name)
			}
			v, err := parse(raw)
			if err != nil {
				return nil, parseErr(w, "%s: %s", name, err)
			}
			res = append(res, domain.Constraint{Type: name, Value: v})
		}
		if count == 0 {
			return nil, parseErr(w, "empty constraint")
		}
	}
	return res, nil
}

func (p *Parser) parseHooks(n domain.TreeNode, where string) ([]domain.HookDef, error) {
	if !n.IsList() {
		return nil, parseErr(where, "expected a list")
	}
	res := make([]domain.HookDef, 0, len(n.Elements()))
	for i, e := range n.Elements() {
		w := fmt.Sprintf("%s[%d]", where, i)
		if !e.IsObject() {
			return nil, parseErr(w, "hook must be an object")
		}
		name, err := p.requiredString(e, w, "name")
		if err != nil {
			return nil, err
		}
		hook, ok := p.hooks[name]
		if !ok {
			return nil, parseErr(w, "unknown hook %q", name)
		}
		def := domain.HookDef{Name: name}
		if a, ok := e.Child("actions"); ok {
			if !a.IsList() {
				return nil, parseErr(w, "actions must be a list")
			}
			for _, an := range a.Elements() {
				s, _ := an.Value().(string)
				op, ok := domain.ParseOperation(s)
				if !an.IsValue() || !ok {
					return nil, parseErr(w, "unknown action %v", an.Value())
				}
				def.Actions = append(def.Actions, op)
			}
		}
		raw, _ := e.Child("config")
		if raw == nil {
			raw = tree.FromValue(nil)
		}
		if def.Config, err = hook.Configure(raw); err != nil {
			return nil, parseErr(w, "configuring %s: %s", name, err)
		}
		res = append(res, def)
	}
	return res, nil
}

func (p *Parser) parseObjectFields(name string, n domain.TreeNode, where string) (*domain.ObjectField, error) {
	if !n.IsObject() {
		return nil, parseErr(where, "fields must be an object")
	}
	obj := &domain.ObjectField{FieldName: name}
	for k, c := range n.Fields() {
		f, err := p.parseField(k, c, where+"."+k)
		if err != nil {
			return nil, err
		}
		obj.Fields = append(obj.Fields, f)
	}
	return obj, nil
}

func (p *Parser) parseField(name string, n domain.TreeNode, where string) (domain.FieldNode, error) {
	// shorthand: "field: type"
	if n.IsValue() {
		typ, ok := n.Value().(string)
		if n.Value() == nil {
			typ, ok = p.defaultFieldType, true
		}
		if !ok {
			return nil, parseErr(where, "field must be a type name or an object")
		}
		return p.simpleField(name, typ, nil, where)
	}
	if !n.IsObject() {
		return nil, parseErr(where, "field must be a type name or an object")
	}
	typ, err := p.optionalString(n, where, "type")
	if err != nil {
		return nil, err
	}
	var cons []domain.Constraint
	if c, ok := n.Child("constraints"); ok {
		if cons, err = p.parseConstraints(c, where+".constraints"); err != nil {
			return nil, err
		}
	}

	switch typ {
	case TypeObject:
		f, ok := n.Child("fields")
		if !ok {
			return nil, parseErr(where, "object field needs fields")
		}
		obj, err := p.parseObjectFields(name, f, where+".fields")
		if err != nil {
			return nil, err
		}
		obj.FieldConstraints = cons
		return obj, nil
	case TypeArray:
		items, ok := n.Child("items")
		if !ok {
			return nil, parseErr(where, "array field needs items")
		}
		elem, err := p.parseField("", items, where+".items")
		if err != nil {
			return nil, err
		}
		return &domain.ArrayField{FieldName: name, Element: elem, FieldConstraints: cons}, nil
	case TypeReference:
		entity, err := p.requiredString(n, where, "entity")
		if err != nil {
			return nil, err
		}
		version, err := p.optionalString(n, where, "version")
		if err != nil {
			return nil, err
		}
		return &domain.ReferenceField{FieldName: name, Entity: entity, Version: version, FieldConstraints: cons}, nil
	case "":
		typ = p.defaultFieldType
	}
	return p.simpleField(name, typ, cons, where)
}

func (p *Parser) simpleField(name, typ string, cons []domain.Constraint, where string) (domain.FieldNode, error) {
	t, ok := p.types[typ]
	if !ok {
		return nil, fmt.Errorf("%s: %w", where, domain.ErrUnknownType{Type: typ})
	}
	return &domain.SimpleField{FieldName: name, Type: t, FieldConstraints: cons}, nil
}
