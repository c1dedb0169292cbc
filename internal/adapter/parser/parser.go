// Package parser builds query, projection and update expressions from
// format-agnostic [domain.TreeNode] values.
package parser

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/spf13/cast"
	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/tree"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

func parseErr(where string, format string, args ...any) error {
	return domain.ErrParse{Where: where, Reason: fmt.Sprintf(format, args...)}
}

// ParsePath reads a path written either in dot notation ("a.*.b") or as a
// JSONPath expression ("$.a[*].b").
func ParsePath(s string) (path.Path, error) {
	if s == "$" || strings.HasPrefix(s, "$.") || strings.HasPrefix(s, "$[") {
		return path.ParseJSONPath(s)
	}
	return path.Parse(s)
}

func child(n domain.TreeNode, where, name string) (domain.TreeNode, bool, error) {
	if !n.IsObject() {
		return nil, false, parseErr(where, "expected an object")
	}
	c, ok := n.Child(name)
	return c, ok, nil
}

func stringValue(n domain.TreeNode, where string) (string, error) {
	if !n.IsValue() {
		return "", parseErr(where, "expected a string")
	}
	s, ok := n.Value().(string)
	if !ok {
		return "", parseErr(where, "expected a string, got %T", n.Value())
	}
	return s, nil
}

func pathValue(n domain.TreeNode, where string) (path.Path, error) {
	s, err := stringValue(n, where)
	if err != nil {
		return path.Empty, err
	}
	p, err := ParsePath(s)
	if err != nil {
		return path.Empty, parseErr(where, "invalid path %q: %s", s, err)
	}
	return p, nil
}

func boolValue(n domain.TreeNode, where string) (bool, error) {
	if n.IsValue() {
		if b, ok := n.Value().(bool); ok {
			return b, nil
		}
	}
	return false, parseErr(where, "expected a boolean")
}

func intValue(n domain.TreeNode, where string) (int, error) {
	if !n.IsValue() {
		return 0, parseErr(where, "expected an integer")
	}
	switch v := n.Value().(type) {
	case bool, string, nil:
		return 0, parseErr(where, "expected an integer, got %T", v)
	case float64:
		if v != math.Trunc(v) {
			return 0, parseErr(where, "expected an integer, got %v", v)
		}
	}
	i, err := cast.ToIntE(n.Value())
	if err != nil {
		return 0, parseErr(where, "expected an integer: %s", err)
	}
	return i, nil
}

func literal(n domain.TreeNode, where string) (any, error) {
	v, err := tree.ToValue(n)
	if err != nil {
		return nil, parseErr(where, "%s", err)
	}
	return v, nil
}

func literalList(n domain.TreeNode, where string) ([]any, error) {
	if !n.IsList() {
		return nil, parseErr(where, "expected a list")
	}
	elems := n.Elements()
	res := make([]any, len(elems))
	for i, e := range elems {
		v, err := literal(e, fmt.Sprintf("%s[%d]", where, i))
		if err != nil {
			return nil, err
		}
		res[i] = v
	}
	return res, nil
}

func join(where, name string) string {
	if where == "" {
		return name
	}
	return where + "." + name
}

func knownKeys(n domain.TreeNode, where string, keys ...string) error {
	for k := range n.Fields() {
		if !slices.Contains(keys, k) {
			return parseErr(where, "unexpected key %q", k)
		}
	}
	return nil
}
