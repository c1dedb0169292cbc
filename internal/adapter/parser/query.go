package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

var binaryOps = map[string]domain.BinaryOp{
	"=":    domain.Eq,
	"$eq":  domain.Eq,
	"!=":   domain.Ne,
	"$ne":  domain.Ne,
	"<":    domain.Lt,
	"$lt":  domain.Lt,
	"<=":   domain.Lte,
	"$lte": domain.Lte,
	">":    domain.Gt,
	"$gt":  domain.Gt,
	">=":   domain.Gte,
	"$gte": domain.Gte,
}

var setOps = map[string]bool{
	"$in":     false,
	"$nin":    true,
	"$not_in": true,
}

var logicalOps = map[string]domain.LogicalOp{
	"$and": domain.And,
	"$all": domain.And,
	"$or":  domain.Or,
	"$any": domain.Or,
}

var containsModes = map[string]domain.ContainsMode{
	"$any":  domain.ContainsAny,
	"$all":  domain.ContainsAll,
	"$none": domain.ContainsNone,
}

// ParseQuery builds a query expression.
func ParseQuery(n domain.TreeNode) (domain.Query, error) {
	return parseQuery(n, "query")
}

// IsQuery reports whether n has the shape of a query object. It is used to
// tell queries from literals where both are accepted.
func IsQuery(n domain.TreeNode) bool {
	if n == nil || !n.IsObject() {
		return false
	}
	for k := range n.Fields() {
		if _, ok := logicalOps[k]; ok || k == "$not" {
			return true
		}
	}
	_, hasField := n.Child("field")
	_, hasArray := n.Child("array")
	return hasField || hasArray
}

func parseQuery(n domain.TreeNode, where string) (domain.Query, error) {
	if n == nil || !n.IsObject() {
		return nil, parseErr(where, "query must be an object")
	}
	for k, c := range n.Fields() {
		if !strings.HasPrefix(k, "$") {
			continue
		}
		if err := knownKeys(n, where, k); err != nil {
			return nil, fmt.Errorf("logical operators must be alone: %w", err)
		}
		if k == "$not" {
			q, err := parseQuery(c, join(where, k))
			if err != nil {
				return nil, err
			}
			return domain.Not{Query: q}, nil
		}
		op, ok := logicalOps[k]
		if !ok {
			return nil, parseErr(where, "unknown operator %q", k)
		}
		return parseLogical(op, c, join(where, k))
	}
	if a, ok := n.Child("array"); ok {
		return parseArrayQuery(n, a, where)
	}
	f, ok := n.Child("field")
	if !ok {
		return nil, parseErr(where, "query needs a field, an array or a logical operator")
	}
	field, err := pathValue(f, join(where, "field"))
	if err != nil {
		return nil, err
	}

	if e, ok := n.Child("exists"); ok {
		if err := knownKeys(n, where, "field", "exists"); err != nil {
			return nil, err
		}
		exists, err := boolValue(e, join(where, "exists"))
		if err != nil {
			return nil, err
		}
		return domain.FieldExists{Field: field, Exists: exists}, nil
	}

	if r, ok := n.Child("regex"); ok {
		return parseRegex(n, r, where, field)
	}

	o, ok := n.Child("op")
	if !ok {
		return nil, parseErr(where, "comparison needs an op")
	}
	opName, err := stringValue(o, join(where, "op"))
	if err != nil {
		return nil, err
	}

	if negate, ok := setOps[opName]; ok {
		if err := knownKeys(n, where, "field", "op", "values"); err != nil {
			return nil, err
		}
		v, ok := n.Child("values")
		if !ok {
			return nil, parseErr(where, "%s needs values", opName)
		}
		values, err := literalList(v, join(where, "values"))
		if err != nil {
			return nil, err
		}
		return domain.SetMembership{Field: field, Negate: negate, Values: values}, nil
	}

	op, ok := binaryOps[opName]
	if !ok {
		return nil, parseErr(where, "unknown operator %q", opName)
	}
	if rf, ok := n.Child("rfield"); ok {
		if err := knownKeys(n, where, "field", "op", "rfield"); err != nil {
			return nil, err
		}
		rfield, err := pathValue(rf, join(where, "rfield"))
		if err != nil {
			return nil, err
		}
		return domain.FieldComparison{Field: field, Op: op, RField: rfield}, nil
	}
	if err := knownKeys(n, where, "field", "op", "rvalue"); err != nil {
		return nil, err
	}
	rv, ok := n.Child("rvalue")
	if !ok {
		return nil, parseErr(where, "comparison needs an rvalue or an rfield")
	}
	value, err := literal(rv, join(where, "rvalue"))
	if err != nil {
		return nil, err
	}
	return domain.ValueComparison{Field: field, Op: op, Value: value}, nil
}

func parseLogical(op domain.LogicalOp, n domain.TreeNode, where string) (domain.Query, error) {
	if !n.IsList() {
		return nil, parseErr(where, "expected a list of queries")
	}
	elems := n.Elements()
	if len(elems) == 0 {
		return nil, parseErr(where, "expected at least one query")
	}
	qs := make([]domain.Query, len(elems))
	for i, e := range elems {
		q, err := parseQuery(e, fmt.Sprintf("%s[%d]", where, i))
		if err != nil {
			return nil, err
		}
		qs[i] = q
	}
	return domain.NaryLogical{Op: op, Queries: qs}, nil
}

func parseArrayQuery(n, a domain.TreeNode, where string) (domain.Query, error) {
	arr, err := pathValue(a, join(where, "array"))
	if err != nil {
		return nil, err
	}
	if em, ok := n.Child("elemMatch"); ok {
		if err := knownKeys(n, where, "array", "elemMatch"); err != nil {
			return nil, err
		}
		q, err := parseQuery(em, join(where, "elemMatch"))
		if err != nil {
			return nil, err
		}
		return domain.ElemMatch{Array: arr, Query: q}, nil
	}
	if err := knownKeys(n, where, "array", "contains", "values"); err != nil {
		return nil, err
	}
	c, ok := n.Child("contains")
	if !ok {
		return nil, parseErr(where, "array query needs elemMatch or contains")
	}
	modeName, err := stringValue(c, join(where, "contains"))
	if err != nil {
		return nil, err
	}
	mode, ok := containsModes[modeName]
	if !ok {
		return nil, parseErr(where, "unknown contains mode %q", modeName)
	}
	v, ok := n.Child("values")
	if !ok {
		return nil, parseErr(where, "contains needs values")
	}
	values, err := literalList(v, join(where, "values"))
	if err != nil {
		return nil, err
	}
	return domain.ArrayContains{Array: arr, Mode: mode, Values: values}, nil
}

func parseRegex(n, r domain.TreeNode, where string, field path.Path) (domain.Query, error) {
	if err := knownKeys(n, where, "field", "regex", "caseInsensitive", "multiline", "extended", "dotall"); err != nil {
		return nil, err
	}
	pattern, err := stringValue(r, join(where, "regex"))
	if err != nil {
		return nil, err
	}
	flags := ""
	for _, f := range []struct {
		key  string
		flag string
	}{{"caseInsensitive", "i"}, {"multiline", "m"}, {"dotall", "s"}, {"extended", "x"}} {
		c, ok := n.Child(f.key)
		if !ok {
			continue
		}
		set, err := boolValue(c, join(where, f.key))
		if err != nil {
			return nil, err
		}
		if set {
			flags += f.flag
		}
	}
	compiled := pattern
	if strings.Contains(flags, "x") {
		compiled = stripExtended(compiled)
		flags = strings.ReplaceAll(flags, "x", "")
	}
	if flags != "" {
		compiled = "(?" + flags + ")" + compiled
	}
	rgx, err := regexp.Compile(compiled)
	if err != nil {
		return nil, parseErr(join(where, "regex"), "%s", err)
	}
	return domain.RegexMatch{Field: field, Pattern: pattern, Regex: rgx}, nil
}

// stripExtended removes unescaped whitespace and comments outside character
// classes, which is what the extended flag means.
func stripExtended(p string) string {
	var b strings.Builder
	inClass, escaped, comment := false, false, false
	for _, r := range p {
		switch {
		case comment:
			if r == '\n' {
				comment = false
			}
			continue
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case inClass:
			if r == ']' {
				inClass = false
			}
		case r == '[':
			inClass = true
		case r == '#':
			comment = true
			continue
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
