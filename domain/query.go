package domain

import (
	"regexp"

	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

// BinaryOp is a comparison operator.
type BinaryOp uint8

// Comparison operators.
const (
	Eq BinaryOp = iota
	Ne
	Lt
	Lte
	Gt
	Gte
)

// String implements [fmt.Stringer].
func (o BinaryOp) String() string {
	switch o {
	case Ne:
		return "!="
	case Lt:
		return "<"
	case Lte:
		return "<="
	case Gt:
		return ">"
	case Gte:
		return ">="
	default:
		return "="
	}
}

// Apply reports whether a comparison result satisfies the operator.
func (o BinaryOp) Apply(c int) bool {
	switch o {
	case Ne:
		return c != 0
	case Lt:
		return c < 0
	case Lte:
		return c <= 0
	case Gt:
		return c > 0
	case Gte:
		return c >= 0
	default:
		return c == 0
	}
}

// LogicalOp is an n-ary logical operator.
type LogicalOp uint8

// Logical operators.
const (
	And LogicalOp = iota
	Or
)

// ContainsMode selects how [ArrayContains] combines its values.
type ContainsMode uint8

// Array containment modes.
const (
	ContainsAny ContainsMode = iota
	ContainsAll
	ContainsNone
)

// Query is an immutable query expression node. Nodes are built once by a
// parser and may be evaluated concurrently.
type Query interface {
	isQuery()
}

// ValueComparison compares a field with a literal.
type ValueComparison struct {
	Field path.Path
	Op    BinaryOp
	Value any
}

// FieldComparison compares two fields of the same document.
type FieldComparison struct {
	Field  path.Path
	Op     BinaryOp
	RField path.Path
}

// RegexMatch matches a string field against a regular expression.
type RegexMatch struct {
	Field   path.Path
	Pattern string
	Regex   *regexp.Regexp
}

// SetMembership checks whether a field is (or is not) one of the values.
type SetMembership struct {
	Field  path.Path
	Negate bool
	Values []any
}

// FieldExists checks whether a field is present. It is the only node that
// matches absent fields.
type FieldExists struct {
	Field  path.Path
	Exists bool
}

// ElemMatch matches when at least one element of Array satisfies Query,
// evaluated with the element as root.
type ElemMatch struct {
	Array path.Path
	Query Query
}

// ArrayContains checks an array of scalars against a set of values.
type ArrayContains struct {
	Array  path.Path
	Mode   ContainsMode
	Values []any
}

// NaryLogical combines queries with AND or OR.
type NaryLogical struct {
	Op      LogicalOp
	Queries []Query
}

// Not negates a query.
type Not struct {
	Query Query
}

func (ValueComparison) isQuery() {}
func (FieldComparison) isQuery() {}
func (RegexMatch) isQuery()      {}
func (SetMembership) isQuery()   {}
func (FieldExists) isQuery()     {}
func (ElemMatch) isQuery()       {}
func (ArrayContains) isQuery()   {}
func (NaryLogical) isQuery()     {}
func (Not) isQuery()             {}
