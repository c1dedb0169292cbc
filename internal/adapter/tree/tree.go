// Package tree contains the format adapters of [domain.TreeNode]: Go values
// (including documents), YAML nodes and JSON text.
package tree

import (
	"fmt"
	"iter"
	"reflect"
	"slices"

	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/data"
	"gopkg.in/yaml.v3"
)

// valueNode adapts a Go value.
type valueNode struct {
	v any
}

// FromValue returns a [domain.TreeNode] over a Go value. Documents and
// map[string]any are objects, slices are lists, everything else is a value.
// Map fields are visited in sorted key order.
func FromValue(v any) domain.TreeNode {
	return valueNode{v: v}
}

// ParseJSON parses JSON text keeping object key order.
func ParseJSON(b []byte) (domain.TreeNode, error) {
	v, err := data.ParseJSON(b)
	if err != nil {
		return nil, err
	}
	return FromValue(v), nil
}

func (n valueNode) IsObject() bool {
	switch n.v.(type) {
	case domain.Document, map[string]any:
		return true
	}
	return false
}

func (n valueNode) IsList() bool {
	if _, ok := n.v.([]any); ok {
		return true
	}
	if n.v == nil {
		return false
	}
	return reflect.TypeOf(n.v).Kind() == reflect.Slice
}

func (n valueNode) IsValue() bool { return !n.IsObject() && !n.IsList() }

func (n valueNode) Value() any { return n.v }

func (n valueNode) Child(name string) (domain.TreeNode, bool) {
	switch t := n.v.(type) {
	case domain.Document:
		if !t.Has(name) {
			return nil, false
		}
		return valueNode{v: t.Get(name)}, true
	case map[string]any:
		v, ok := t[name]
		if !ok {
			return nil, false
		}
		return valueNode{v: v}, true
	}
	return nil, false
}

func (n valueNode) Fields() iter.Seq2[string, domain.TreeNode] {
	return func(yield func(string, domain.TreeNode) bool) {
		switch t := n.v.(type) {
		case domain.Document:
			for k, v := range t.Iter() {
				if !yield(k, valueNode{v: v}) {
					return
				}
			}
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			for _, k := range keys {
				if !yield(k, valueNode{v: t[k]}) {
					return
				}
			}
		}
	}
}

func (n valueNode) Elements() []domain.TreeNode {
	if t, ok := n.v.([]any); ok {
		res := make([]domain.TreeNode, len(t))
		for i, e := range t {
			res[i] = valueNode{v: e}
		}
		return res
	}
	if !n.IsList() {
		return nil
	}
	r := reflect.ValueOf(n.v)
	res := make([]domain.TreeNode, r.Len())
	for i := range r.Len() {
		res[i] = valueNode{v: r.Index(i).Interface()}
	}
	return res
}

// yamlNode adapts a yaml.v3 node.
type yamlNode struct {
	n *yaml.Node
}

// ParseYAML parses YAML text. Mapping key order is kept.
func ParseYAML(b []byte) (domain.TreeNode, error) {
	var n yaml.Node
	if err := yaml.Unmarshal(b, &n); err != nil {
		return nil, err
	}
	return FromYAML(&n), nil
}

// FromYAML returns a [domain.TreeNode] over a YAML node. Document and alias
// nodes are resolved to their content.
func FromYAML(n *yaml.Node) domain.TreeNode {
	for n != nil {
		switch {
		case n.Kind == yaml.DocumentNode && len(n.Content) > 0:
			n = n.Content[0]
		case n.Kind == yaml.AliasNode && n.Alias != nil:
			n = n.Alias
		default:
			return yamlNode{n: n}
		}
	}
	return yamlNode{n: &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null"}}
}

func (y yamlNode) IsObject() bool { return y.n.Kind == yaml.MappingNode }

func (y yamlNode) IsList() bool { return y.n.Kind == yaml.SequenceNode }

func (y yamlNode) IsValue() bool { return y.n.Kind == yaml.ScalarNode }

// Value decodes a scalar using the YAML core schema: null, bool, int
// (as int64), float and string.
func (y yamlNode) Value() any {
	if y.n.Kind != yaml.ScalarNode {
		return nil
	}
	var v any
	if err := y.n.Decode(&v); err != nil {
		return y.n.Value
	}
	if i, ok := v.(int); ok {
		return int64(i)
	}
	return v
}

func (y yamlNode) Child(name string) (domain.TreeNode, bool) {
	if y.n.Kind != yaml.MappingNode {
		return nil, false
	}
	for i := 0; i+1 < len(y.n.Content); i += 2 {
		if y.n.Content[i].Value == name {
			return FromYAML(y.n.Content[i+1]), true
		}
	}
	return nil, false
}

func (y yamlNode) Fields() iter.Seq2[string, domain.TreeNode] {
	return func(yield func(string, domain.TreeNode) bool) {
		if y.n.Kind != yaml.MappingNode {
			return
		}
		for i := 0; i+1 < len(y.n.Content); i += 2 {
			if !yield(y.n.Content[i].Value, FromYAML(y.n.Content[i+1])) {
				return
			}
		}
	}
}

func (y yamlNode) Elements() []domain.TreeNode {
	if y.n.Kind != yaml.SequenceNode {
		return nil
	}
	res := make([]domain.TreeNode, len(y.n.Content))
	for i, c := range y.n.Content {
		res[i] = FromYAML(c)
	}
	return res
}

// ToValue materializes a node into a document tree: objects become
// [data.Object] values, lists become []any and values are normalized.
func ToValue(n domain.TreeNode) (any, error) {
	switch {
	case n == nil:
		return nil, nil
	case n.IsObject():
		obj := data.NewObject(0)
		for k, c := range n.Fields() {
			v, err := ToValue(c)
			if err != nil {
				return nil, err
			}
			obj.Set(k, v)
		}
		return obj, nil
	case n.IsList():
		elems := n.Elements()
		res := make([]any, len(elems))
		for i, e := range elems {
			v, err := ToValue(e)
			if err != nil {
				return nil, err
			}
			res[i] = v
		}
		return res, nil
	default:
		v, err := data.Normalize(n.Value())
		if err != nil {
			return nil, fmt.Errorf("materializing value: %w", err)
		}
		return v, nil
	}
}

// ToDocument materializes an object node into a document built by docFac.
func ToDocument(n domain.TreeNode, docFac domain.DocumentFactory) (domain.Document, error) {
	if n == nil || !n.IsObject() {
		return nil, domain.ErrParse{Reason: "expected an object"}
	}
	v, err := ToValue(n)
	if err != nil {
		return nil, err
	}
	return docFac(v)
}
