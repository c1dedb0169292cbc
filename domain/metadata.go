package domain

import (
	"slices"

	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

// EntityVersion identifies a versioned entity schema.
type EntityVersion struct {
	Name    string
	Version string
}

// String implements [fmt.Stringer].
func (e EntityVersion) String() string {
	if e.Version == "" {
		return e.Name
	}
	return e.Name + ":" + e.Version
}

// EntityMetadata is the complete description of an entity version. It is
// read-only once built and may be shared between requests.
type EntityMetadata struct {
	Info   EntityInfo
	Schema EntitySchema
}

// EntityInfo holds the unversioned part of the metadata.
type EntityInfo struct {
	Name           string
	DefaultVersion string
	// Backend is the name of the controller that stores the entity.
	Backend     string
	Hooks       []HookDef
	Constraints []Constraint
}

// EntitySchema holds the versioned part of the metadata.
type EntitySchema struct {
	Name    string
	Version string
	Access  Access
	Fields  *ObjectField
}

// Access lists the roles allowed to run each operation. An empty list allows
// everyone.
type Access struct {
	Find   []string
	Insert []string
	Update []string
	Delete []string
}

// Allowed reports whether any of roles may run op.
func (a Access) Allowed(op Operation, roles []string) bool {
	var allowed []string
	switch op {
	case OpFind:
		allowed = a.Find
	case OpInsert:
		allowed = a.Insert
	case OpSave, OpUpdate:
		allowed = a.Update
	case OpDelete:
		allowed = a.Delete
	}
	if len(allowed) == 0 || slices.Contains(allowed, "anyone") {
		return true
	}
	for _, r := range roles {
		if slices.Contains(allowed, r) {
			return true
		}
	}
	return false
}

// Constraint is a constraint declaration. Value is the parsed configuration
// returned by the constraint's [ConstraintParser].
type Constraint struct {
	Type  string
	Value any
}

// HookConfiguration is the parsed configuration of a hook.
type HookConfiguration any

// HookDef is a hook declared on an entity.
type HookDef struct {
	Name    string
	Actions []Operation
	Config  HookConfiguration
}

// Triggers reports whether the hook must run for op.
func (h HookDef) Triggers(op Operation) bool {
	return len(h.Actions) == 0 || slices.Contains(h.Actions, op)
}

// FieldKind identifies the kind of a [FieldNode].
type FieldKind uint8

// Field kinds.
const (
	KindSimple FieldKind = iota
	KindObject
	KindArray
	KindReference
)

// FieldNode is a node of an entity field tree.
type FieldNode interface {
	Name() string
	Kind() FieldKind
	Constraints() []Constraint
}

// SimpleField is a scalar field with a type.
type SimpleField struct {
	FieldName        string
	Type             Type
	FieldConstraints []Constraint
}

// ObjectField is a field holding an object. Fields keep declaration order.
type ObjectField struct {
	FieldName        string
	Fields           []FieldNode
	FieldConstraints []Constraint
}

// ArrayField is a field holding an array whose elements are described by
// Element.
type ArrayField struct {
	FieldName        string
	Element          FieldNode
	FieldConstraints []Constraint
}

// ReferenceField points to another entity. References are resolved when
// metadata is loaded but never joined.
type ReferenceField struct {
	FieldName        string
	Entity           string
	Version          string
	FieldConstraints []Constraint
}

// Name implements [FieldNode].
func (f *SimpleField) Name() string { return f.FieldName }

// Kind implements [FieldNode].
func (f *SimpleField) Kind() FieldKind { return KindSimple }

// Constraints implements [FieldNode].
func (f *SimpleField) Constraints() []Constraint { return f.FieldConstraints }

// Name implements [FieldNode].
func (f *ObjectField) Name() string { return f.FieldName }

// Kind implements [FieldNode].
func (f *ObjectField) Kind() FieldKind { return KindObject }

// Constraints implements [FieldNode].
func (f *ObjectField) Constraints() []Constraint { return f.FieldConstraints }

// Child returns the direct child with the given name.
func (f *ObjectField) Child(name string) (FieldNode, bool) {
	for _, c := range f.Fields {
		if c.Name() == name {
			return c, true
		}
	}
	return nil, false
}

// Name implements [FieldNode].
func (f *ArrayField) Name() string { return f.FieldName }

// Kind implements [FieldNode].
func (f *ArrayField) Kind() FieldKind { return KindArray }

// Constraints implements [FieldNode].
func (f *ArrayField) Constraints() []Constraint { return f.FieldConstraints }

// Name implements [FieldNode].
func (f *ReferenceField) Name() string { return f.FieldName }

// Kind implements [FieldNode].
func (f *ReferenceField) Kind() FieldKind { return KindReference }

// Constraints implements [FieldNode].
func (f *ReferenceField) Constraints() []Constraint { return f.FieldConstraints }

// ResolveField finds the node at p relative to node. Field segments descend
// into objects and index or wildcard segments descend into array elements.
func ResolveField(node FieldNode, p path.Path) (FieldNode, error) {
	curr := node
	for i := range p.Len() {
		seg := p.Segment(i)
		switch t := curr.(type) {
		case *ObjectField:
			if seg.Kind() != path.Field {
				return nil, ErrUnknownField{Field: p}
			}
			child, ok := t.Child(seg.Name())
			if !ok {
				return nil, ErrUnknownField{Field: p}
			}
			curr = child
		case *ArrayField:
			if seg.Kind() == path.Field {
				return nil, ErrUnknownField{Field: p}
			}
			curr = t.Element
		default:
			return nil, ErrUnknownField{Field: p}
		}
	}
	return curr, nil
}

// Resolve finds the field at p of the entity.
func (m *EntityMetadata) Resolve(p path.Path) (FieldNode, error) {
	if m.Schema.Fields == nil {
		return nil, ErrUnknownField{Field: p}
	}
	return ResolveField(m.Schema.Fields, p)
}

// Walk calls fn for every field of the tree in declaration order. Array
// elements are reported with a wildcard segment.
func (m *EntityMetadata) Walk(fn func(path.Path, FieldNode)) {
	if m.Schema.Fields == nil {
		return
	}
	walkField(path.Empty, m.Schema.Fields, fn)
}

func walkField(p path.Path, node FieldNode, fn func(path.Path, FieldNode)) {
	switch t := node.(type) {
	case *ObjectField:
		for _, c := range t.Fields {
			cp := p.Field(c.Name())
			fn(cp, c)
			walkField(cp, c, fn)
		}
	case *ArrayField:
		cp := p.Append(path.AnySegment())
		fn(cp, t.Element)
		walkField(cp, t.Element, fn)
	}
}

// References returns the entities referenced by the field tree, in
// declaration order and without duplicates.
func (m *EntityMetadata) References() []EntityVersion {
	var res []EntityVersion
	m.Walk(func(_ path.Path, f FieldNode) {
		ref, ok := f.(*ReferenceField)
		if !ok {
			return
		}
		ev := EntityVersion{Name: ref.Entity, Version: ref.Version}
		if !slices.Contains(res, ev) {
			res = append(res, ev)
		}
	})
	return res
}

// HasConstraints reports whether any entity or field constraint is declared.
func (m *EntityMetadata) HasConstraints() bool {
	if len(m.Info.Constraints) > 0 {
		return true
	}
	found := false
	m.Walk(func(_ path.Path, f FieldNode) {
		found = found || len(f.Constraints()) > 0
	})
	return found
}
