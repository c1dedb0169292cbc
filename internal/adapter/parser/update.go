package parser

import (
	"fmt"
	"strings"

	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

type updateParser func(n domain.TreeNode, where string) ([]domain.Update, error)

var updateOps map[string]updateParser

func init() {
	updateOps = map[string]updateParser{
		"$set":      parseSet,
		"$unset":    parseUnset,
		"$add":      parseIncrement,
		"$inc":      parseIncrement,
		"$addToSet": parseAddToSet,
		"$insert":   parseInsert,
		"$append":   parseAppend,
		"$remove":   parseRemove,
		"$foreach":  parseForEach,
	}
}

// ParseUpdate builds an update from a single operation object or an ordered
// list of them. An object with several operators is applied in key order.
func ParseUpdate(n domain.TreeNode) (domain.Update, error) {
	return parseUpdate(n, "update")
}

func parseUpdate(n domain.TreeNode, where string) (domain.Update, error) {
	if n == nil {
		return nil, parseErr(where, "missing update")
	}
	var items []domain.Update
	if n.IsList() {
		for i, e := range n.Elements() {
			u, err := parseUpdateObject(e, fmt.Sprintf("%s[%d]", where, i))
			if err != nil {
				return nil, err
			}
			items = append(items, u...)
		}
	} else {
		u, err := parseUpdateObject(n, where)
		if err != nil {
			return nil, err
		}
		items = u
	}
	if len(items) == 1 {
		return items[0], nil
	}
	return domain.UpdateList{Items: items}, nil
}

func parseUpdateObject(n domain.TreeNode, where string) ([]domain.Update, error) {
	if !n.IsObject() {
		return nil, parseErr(where, "update must be an object")
	}
	var res []domain.Update
	for k, c := range n.Fields() {
		fn, ok := updateOps[k]
		if !ok {
			return nil, parseErr(where, "unknown update operator %q", k)
		}
		u, err := fn(c, join(where, k))
		if err != nil {
			return nil, err
		}
		res = append(res, u...)
	}
	if len(res) == 0 {
		return nil, parseErr(where, "empty update")
	}
	return res, nil
}

// fieldMap iterates an object of field paths.
func fieldMap(n domain.TreeNode, where string, fn func(p path.Path, c domain.TreeNode, where string) error) error {
	if !n.IsObject() {
		return parseErr(where, "expected an object of fields")
	}
	for k, c := range n.Fields() {
		p, err := ParsePath(k)
		if err != nil {
			return parseErr(where, "invalid path %q: %s", k, err)
		}
		if err := fn(p, c, join(where, k)); err != nil {
			return err
		}
	}
	return nil
}

func parseSet(n domain.TreeNode, where string) ([]domain.Update, error) {
	var res []domain.Update
	err := fieldMap(n, where, func(p path.Path, c domain.TreeNode, where string) error {
		if from, ok, err := valueOf(c, where); err != nil {
			return err
		} else if ok {
			res = append(res, domain.SetValue{Field: p, Value: domain.RValue{CopyFrom: from, IsCopy: true}})
			return nil
		}
		v, err := literal(c, where)
		if err != nil {
			return err
		}
		res = append(res, domain.SetValue{Field: p, Value: domain.RValue{Literal: v}})
		return nil
	})
	return res, err
}

// valueOf reads {"$valueof": "path"}.
func valueOf(n domain.TreeNode, where string) (path.Path, bool, error) {
	if !n.IsObject() {
		return path.Empty, false, nil
	}
	c, ok := n.Child("$valueof")
	if !ok {
		return path.Empty, false, nil
	}
	if err := knownKeys(n, where, "$valueof"); err != nil {
		return path.Empty, false, err
	}
	p, err := pathValue(c, join(where, "$valueof"))
	return p, err == nil, err
}

func parseUnset(n domain.TreeNode, where string) ([]domain.Update, error) {
	nodes := []domain.TreeNode{n}
	if n.IsList() {
		nodes = n.Elements()
	}
	res := make([]domain.Update, 0, len(nodes))
	for i, e := range nodes {
		p, err := pathValue(e, fmt.Sprintf("%s[%d]", where, i))
		if err != nil {
			return nil, err
		}
		res = append(res, domain.Unset{Field: p})
	}
	return res, nil
}

func parseIncrement(n domain.TreeNode, where string) ([]domain.Update, error) {
	var res []domain.Update
	err := fieldMap(n, where, func(p path.Path, c domain.TreeNode, where string) error {
		v, err := literal(c, where)
		if err != nil {
			return err
		}
		switch v.(type) {
		case int64, float64:
		default:
			return parseErr(where, "increment must be a number, got %T", v)
		}
		res = append(res, domain.Increment{Field: p, Delta: v})
		return nil
	})
	return res, err
}

// eachValues reads either {"$each": [...]} or a single literal.
func eachValues(n domain.TreeNode, where string) ([]any, error) {
	if n.IsObject() {
		if c, ok := n.Child("$each"); ok {
			if err := knownKeys(n, where, "$each"); err != nil {
				return nil, err
			}
			return literalList(c, join(where, "$each"))
		}
	}
	v, err := literal(n, where)
	if err != nil {
		return nil, err
	}
	return []any{v}, nil
}

func parseAddToSet(n domain.TreeNode, where string) ([]domain.Update, error) {
	var res []domain.Update
	err := fieldMap(n, where, func(p path.Path, c domain.TreeNode, where string) error {
		values, err := eachValues(c, where)
		if err != nil {
			return err
		}
		res = append(res, domain.AddToSet{Field: p, Values: values})
		return nil
	})
	return res, err
}

func parseInsert(n domain.TreeNode, where string) ([]domain.Update, error) {
	var res []domain.Update
	err := fieldMap(n, where, func(p path.Path, c domain.TreeNode, where string) error {
		if p.IsEmpty() || p.Last().Kind() != path.Index {
			return parseErr(where, "insert position must end with an index")
		}
		var values []any
		var err error
		if c.IsList() {
			values, err = literalList(c, where)
		} else {
			values, err = eachValues(c, where)
		}
		if err != nil {
			return err
		}
		res = append(res, domain.ArrayInsert{
			Field:  p.Parent(),
			Index:  p.Last().Index(),
			Values: values,
		})
		return nil
	})
	return res, err
}

func parseAppend(n domain.TreeNode, where string) ([]domain.Update, error) {
	var res []domain.Update
	err := fieldMap(n, where, func(p path.Path, c domain.TreeNode, where string) error {
		values, err := eachValues(c, where)
		if err != nil {
			return err
		}
		res = append(res, domain.ArrayInsert{Field: p, Append: true, Values: values})
		return nil
	})
	return res, err
}

func parseRemove(n domain.TreeNode, where string) ([]domain.Update, error) {
	var res []domain.Update
	err := fieldMap(n, where, func(p path.Path, c domain.TreeNode, where string) error {
		if IsQuery(c) {
			q, err := parseQuery(c, where)
			if err != nil {
				return err
			}
			res = append(res, domain.ArrayRemove{Field: p, Match: q})
			return nil
		}
		v, err := literal(c, where)
		if err != nil {
			return err
		}
		res = append(res, domain.ArrayRemove{Field: p, Value: v})
		return nil
	})
	return res, err
}

func parseForEach(n domain.TreeNode, where string) ([]domain.Update, error) {
	if !n.IsObject() {
		return nil, parseErr(where, "foreach must be an object")
	}
	var (
		field    path.Path
		fieldSet bool
		match    domain.Query
		upd      domain.Update
		remove   bool
		hasOp    bool
	)
	for k, c := range n.Fields() {
		if k == "$update" {
			hasOp = true
			if c.IsValue() {
				s, _ := c.Value().(string)
				if s != "$remove" {
					return nil, parseErr(join(where, k), "expected an update or \"$remove\"")
				}
				remove = true
				continue
			}
			u, err := parseUpdate(c, join(where, k))
			if err != nil {
				return nil, err
			}
			upd = u
			continue
		}
		if strings.HasPrefix(k, "$") && k != "$this" {
			return nil, parseErr(where, "unexpected key %q", k)
		}
		if fieldSet {
			return nil, parseErr(where, "foreach accepts a single array")
		}
		p, err := ParsePath(k)
		if err != nil {
			return nil, parseErr(where, "invalid path %q: %s", k, err)
		}
		field, fieldSet = p, true
		if c.IsValue() {
			s, _ := c.Value().(string)
			if s != "$all" {
				return nil, parseErr(join(where, k), "expected a query or \"$all\"")
			}
			continue
		}
		q, err := parseQuery(c, join(where, k))
		if err != nil {
			return nil, err
		}
		match = q
	}
	if !fieldSet {
		return nil, parseErr(where, "foreach needs an array")
	}
	if !hasOp {
		return nil, parseErr(where, "foreach needs an $update")
	}
	return []domain.Update{domain.ForEach{Field: field, Match: match, Update: upd, Remove: remove}}, nil
}
