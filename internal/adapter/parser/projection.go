package parser

import (
	"fmt"

	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

// ParseProjection builds a projection from a single rule or an ordered list
// of rules.
func ParseProjection(n domain.TreeNode) (domain.Projection, error) {
	return parseProjection(n, "projection")
}

func parseProjection(n domain.TreeNode, where string) (domain.Projection, error) {
	if n == nil {
		return nil, parseErr(where, "missing projection")
	}
	if n.IsList() {
		elems := n.Elements()
		items := make([]domain.Projection, len(elems))
		for i, e := range elems {
			p, err := parseRule(e, fmt.Sprintf("%s[%d]", where, i))
			if err != nil {
				return nil, err
			}
			items[i] = p
		}
		return domain.ProjectionList{Items: items}, nil
	}
	return parseRule(n, where)
}

func parseRule(n domain.TreeNode, where string) (domain.Projection, error) {
	if !n.IsObject() {
		return nil, parseErr(where, "projection rule must be an object")
	}
	err := knownKeys(n, where, "field", "include", "recursive", "range", "match", "matched", "project")
	if err != nil {
		return nil, err
	}
	f, ok := n.Child("field")
	if !ok {
		return nil, parseErr(where, "projection rule needs a field")
	}
	field, err := pathValue(f, join(where, "field"))
	if err != nil {
		return nil, err
	}

	include := true
	if c, ok := n.Child("include"); ok {
		if include, err = boolValue(c, join(where, "include")); err != nil {
			return nil, err
		}
	}

	var nested domain.Projection
	if c, ok := n.Child("project"); ok {
		if nested, err = parseProjection(c, join(where, "project")); err != nil {
			return nil, err
		}
	}

	_, hasRange := n.Child("range")
	_, hasMatch := n.Child("match")
	_, hasMatched := n.Child("matched")
	selectors := 0
	for _, b := range []bool{hasRange, hasMatch, hasMatched} {
		if b {
			selectors++
		}
	}
	if selectors > 1 {
		return nil, parseErr(where, "range, match and matched cannot be combined")
	}

	switch {
	case hasRange:
		return parseRange(n, where, field, include, nested)
	case hasMatch:
		c, _ := n.Child("match")
		q, err := parseQuery(c, join(where, "match"))
		if err != nil {
			return nil, err
		}
		return domain.ArrayQueryProjection{Field: field, Include: include, Match: q, Project: nested}, nil
	case hasMatched:
		c, _ := n.Child("matched")
		matched, err := boolValue(c, join(where, "matched"))
		if err != nil {
			return nil, err
		}
		if !matched {
			return nil, parseErr(join(where, "matched"), "only true is accepted")
		}
		return domain.ArrayQueryProjection{Field: field, Include: include, Project: nested}, nil
	}

	recursive := true
	if c, ok := n.Child("recursive"); ok {
		if recursive, err = boolValue(c, join(where, "recursive")); err != nil {
			return nil, err
		}
	}
	return domain.FieldProjection{
		Field:     field,
		Include:   include,
		Recursive: recursive,
		Project:   nested,
	}, nil
}

func parseRange(n domain.TreeNode, where string, field path.Path, include bool, nested domain.Projection) (domain.Projection, error) {
	c, _ := n.Child("range")
	where = join(where, "range")
	if !c.IsList() || len(c.Elements()) != 2 {
		return nil, parseErr(where, "range must be a list of two integers")
	}
	from, err := intValue(c.Elements()[0], where+"[0]")
	if err != nil {
		return nil, err
	}
	to, err := intValue(c.Elements()[1], where+"[1]")
	if err != nil {
		return nil, err
	}
	return domain.ArrayRangeProjection{
		Field:   field,
		Include: include,
		From:    from,
		To:      to,
		Project: nested,
	}, nil
}
