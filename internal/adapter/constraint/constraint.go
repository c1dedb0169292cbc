// Package constraint contains the default constraint parsers and checkers.
package constraint

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/tree"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

// Names of the default constraints.
const (
	Required       = "required"
	MinLength      = "minLength"
	MaxLength      = "maxLength"
	Minimum        = "minimum"
	Maximum        = "maximum"
	Enum           = "enum"
	RequiredFields = "requiredFields"
)

// CheckerFunc adapts a function to [domain.ConstraintChecker].
type CheckerFunc func(ctx context.Context, doc domain.Document, p path.Path, c domain.Constraint) ([]domain.Violation, error)

// Check implements [domain.ConstraintChecker].
func (f CheckerFunc) Check(ctx context.Context, doc domain.Document, p path.Path, c domain.Constraint) ([]domain.Violation, error) {
	return f(ctx, doc, p, c)
}

// Parsers returns the parsers of every default constraint. dec decodes the
// field list of requiredFields.
func Parsers(dec domain.Decoder) map[string]domain.ConstraintParser {
	return map[string]domain.ConstraintParser{
		Required:       parseBool,
		MinLength:      parseLength,
		MaxLength:      parseLength,
		Minimum:        parseNumber,
		Maximum:        parseNumber,
		Enum:           parseList,
		RequiredFields: func(raw domain.TreeNode) (any, error) { return parsePaths(raw, dec) },
	}
}

func parseBool(raw domain.TreeNode) (any, error) {
	if raw.IsValue() {
		if b, ok := raw.Value().(bool); ok {
			return b, nil
		}
	}
	return nil, fmt.Errorf("expected a boolean")
}

func parseLength(raw domain.TreeNode) (any, error) {
	v, err := tree.ToValue(raw)
	if err != nil {
		return nil, err
	}
	n, ok := v.(int64)
	if !ok || n < 0 {
		return nil, fmt.Errorf("expected a non-negative integer, got %v", v)
	}
	return int(n), nil
}

func parseNumber(raw domain.TreeNode) (any, error) {
	v, err := tree.ToValue(raw)
	if err != nil {
		return nil, err
	}
	switch v.(type) {
	case int64, float64:
		return v, nil
	}
	return nil, fmt.Errorf("expected a number, got %T", v)
}

func parseList(raw domain.TreeNode) (any, error) {
	if !raw.IsList() {
		return nil, fmt.Errorf("expected a list")
	}
	return tree.ToValue(raw)
}

func parsePaths(raw domain.TreeNode, dec domain.Decoder) (any, error) {
	v, err := tree.ToValue(raw)
	if err != nil {
		return nil, err
	}
	var names []string
	if err := dec.Decode(v, &names); err != nil {
		return nil, err
	}
	res := make([]path.Path, len(names))
	for i, name := range names {
		if res[i], err = path.Parse(name); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Checkers returns the checkers of every default constraint.
func Checkers(fn domain.FieldNavigator, cmp domain.Comparer) map[string]domain.ConstraintChecker {
	c := &checker{fn: fn, cmp: cmp}
	return map[string]domain.ConstraintChecker{
		Required:       CheckerFunc(c.required),
		MinLength:      CheckerFunc(c.length),
		MaxLength:      CheckerFunc(c.length),
		Minimum:        CheckerFunc(c.bound),
		Maximum:        CheckerFunc(c.bound),
		Enum:           CheckerFunc(c.enum),
		RequiredFields: CheckerFunc(c.requiredFields),
	}
}

type checker struct {
	fn  domain.FieldNavigator
	cmp domain.Comparer
}

func violation(p path.Path, c domain.Constraint, format string, args ...any) domain.Violation {
	return domain.Violation{Field: p, Constraint: c.Type, Message: fmt.Sprintf(format, args...)}
}

// present calls fn for every defined, non-null value found at p. Paths
// under arrays are only checked for the elements that exist.
func (ch *checker) present(doc domain.Document, p path.Path, fn func(path.Path, any)) error {
	fields, err := ch.fn.GetField(doc, p)
	if err != nil {
		return err
	}
	for _, f := range fields {
		if v, defined := f.Get(); defined && v != nil {
			fn(f.Path, v)
		}
	}
	return nil
}

func (ch *checker) required(_ context.Context, doc domain.Document, p path.Path, c domain.Constraint) ([]domain.Violation, error) {
	if req, _ := c.Value.(bool); !req || p.IsEmpty() || p.Last().Kind() != path.Field {
		return nil, nil
	}
	parents, err := ch.fn.GetField(doc, p.Parent())
	if err != nil {
		return nil, err
	}
	var res []domain.Violation
	for _, parent := range parents {
		v, defined := parent.Get()
		obj, ok := v.(domain.Document)
		if !defined || !ok {
			continue
		}
		if obj.Get(p.Last().Name()) == nil {
			res = append(res, violation(parent.Path.Append(p.Last()), c, "field is required"))
		}
	}
	return res, nil
}

func (ch *checker) length(_ context.Context, doc domain.Document, p path.Path, c domain.Constraint) ([]domain.Violation, error) {
	limit, ok := c.Value.(int)
	if !ok {
		return nil, fmt.Errorf("%s expects an integer configuration", c.Type)
	}
	var res []domain.Violation
	err := ch.present(doc, p, func(cp path.Path, v any) {
		var n int
		switch t := v.(type) {
		case string:
			n = utf8.RuneCountInString(t)
		case []any:
			n = len(t)
		default:
			res = append(res, violation(cp, c, "value has no length"))
			return
		}
		if c.Type == MinLength && n < limit {
			res = append(res, violation(cp, c, "length %d is below %d", n, limit))
		}
		if c.Type == MaxLength && n > limit {
			res = append(res, violation(cp, c, "length %d is above %d", n, limit))
		}
	})
	return res, err
}

func (ch *checker) bound(_ context.Context, doc domain.Document, p path.Path, c domain.Constraint) ([]domain.Violation, error) {
	var res []domain.Violation
	var cmpErr error
	err := ch.present(doc, p, func(cp path.Path, v any) {
		if !ch.cmp.Comparable(v, c.Value) {
			res = append(res, violation(cp, c, "%v is not a number", v))
			return
		}
		n, err := ch.cmp.Compare(v, c.Value)
		if err != nil {
			cmpErr = err
			return
		}
		if c.Type == Minimum && n < 0 {
			res = append(res, violation(cp, c, "%v is below %v", v, c.Value))
		}
		if c.Type == Maximum && n > 0 {
			res = append(res, violation(cp, c, "%v is above %v", v, c.Value))
		}
	})
	if err != nil {
		return nil, err
	}
	return res, cmpErr
}

func (ch *checker) enum(_ context.Context, doc domain.Document, p path.Path, c domain.Constraint) ([]domain.Violation, error) {
	allowed, ok := c.Value.([]any)
	if !ok {
		return nil, fmt.Errorf("%s expects a list configuration", c.Type)
	}
	var res []domain.Violation
	err := ch.present(doc, p, func(cp path.Path, v any) {
		for _, a := range allowed {
			if !ch.cmp.Comparable(v, a) {
				continue
			}
			if n, err := ch.cmp.Compare(v, a); err == nil && n == 0 {
				return
			}
		}
		res = append(res, violation(cp, c, "%v is not one of %v", v, allowed))
	})
	return res, err
}

func (ch *checker) requiredFields(_ context.Context, doc domain.Document, _ path.Path, c domain.Constraint) ([]domain.Violation, error) {
	fields, ok := c.Value.([]path.Path)
	if !ok {
		return nil, fmt.Errorf("%s expects a list of paths", c.Type)
	}
	var res []domain.Violation
	for _, f := range fields {
		locs, err := ch.fn.GetField(doc, f)
		if err != nil {
			return nil, err
		}
		found := false
		for _, l := range locs {
			if v, defined := l.Get(); defined && v != nil {
				found = true
				break
			}
		}
		if !found {
			res = append(res, violation(path.Empty, c, "missing %q", f))
		}
	}
	return res, nil
}
