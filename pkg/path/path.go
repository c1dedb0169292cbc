// Package path contains the addressing primitive used to reach locations in a
// document tree: an immutable sequence of field names, array indices and
// "any index" wildcards.
package path

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ohler55/ojg/jp"
)

const (
	// Any is the textual form of the wildcard segment.
	Any = "*"
	// This is the textual form of the empty (current node) path.
	This = "$this"
)

var (
	// ErrEmptySegment is returned when a dot notation path contains an
	// empty field name, such as "a..b".
	ErrEmptySegment = errors.New("empty path segment")
	// ErrNegativeIndex is returned when a JSONPath expression addresses a
	// negative array index.
	ErrNegativeIndex = errors.New("negative array index")
)

// ErrUnsupportedFragment is returned by [ParseJSONPath] when the expression
// uses something other than child, index or wildcard fragments.
type ErrUnsupportedFragment struct {
	Fragment string
}

// Error implements [error].
func (e ErrUnsupportedFragment) Error() string {
	return fmt.Sprintf("unsupported jsonpath fragment %q", e.Fragment)
}

// Kind identifies the type of a [Segment].
type Kind uint8

// Segment kinds.
const (
	Field Kind = iota
	Index
	AnyIndex
)

// Segment is a single step of a [Path].
type Segment struct {
	kind  Kind
	name  string
	index int
}

// FieldSegment returns a segment that selects a field of an object.
func FieldSegment(name string) Segment { return Segment{kind: Field, name: name} }

// IndexSegment returns a segment that selects an array element.
func IndexSegment(i int) Segment { return Segment{kind: Index, index: i} }

// AnySegment returns a segment that selects every element of an array.
func AnySegment() Segment { return Segment{kind: AnyIndex} }

// Kind returns the segment kind.
func (s Segment) Kind() Kind { return s.kind }

// Name returns the field name of a [Field] segment.
func (s Segment) Name() string { return s.name }

// Index returns the array index of an [Index] segment.
func (s Segment) Index() int { return s.index }

// String implements [fmt.Stringer].
func (s Segment) String() string {
	switch s.kind {
	case Index:
		return strconv.Itoa(s.index)
	case AnyIndex:
		return Any
	default:
		return s.name
	}
}

// Path is an immutable sequence of segments. The zero value is the empty
// path, which addresses the node it is resolved against.
type Path struct {
	segs []Segment
}

// Empty is the path with no segments.
var Empty = Path{}

// New returns a path made of the given segments.
func New(segs ...Segment) Path {
	if len(segs) == 0 {
		return Empty
	}
	return Path{segs: append([]Segment(nil), segs...)}
}

// Parse reads a dot notation path. Numeric segments are array indices and
// "*" is the any-index wildcard. "$this" and "" parse to the empty path.
func Parse(s string) (Path, error) {
	if s == "" || s == This {
		return Empty, nil
	}
	parts := strings.Split(s, ".")
	segs := make([]Segment, 0, len(parts))
	for _, part := range parts {
		switch {
		case part == "":
			return Empty, fmt.Errorf("%w in %q", ErrEmptySegment, s)
		case part == Any:
			segs = append(segs, AnySegment())
		case isIndex(part):
			i, err := strconv.Atoi(part)
			if err != nil {
				return Empty, err
			}
			segs = append(segs, IndexSegment(i))
		default:
			segs = append(segs, FieldSegment(part))
		}
	}
	return Path{segs: segs}, nil
}

// MustParse is like [Parse] but panics on error. Meant for literals.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func isIndex(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ParseJSONPath reads the child/index/wildcard subset of JSONPath, such as
// "$.orders[*].lines[0]".
func ParseJSONPath(s string) (Path, error) {
	x, err := jp.ParseString(s)
	if err != nil {
		return Empty, fmt.Errorf("invalid jsonpath %q: %w", s, err)
	}
	segs := make([]Segment, 0, len(x))
	for _, frag := range x {
		switch f := frag.(type) {
		case jp.Root:
		case jp.Child:
			segs = append(segs, FieldSegment(string(f)))
		case jp.Nth:
			if f < 0 {
				return Empty, fmt.Errorf("%w in %q", ErrNegativeIndex, s)
			}
			segs = append(segs, IndexSegment(int(f)))
		case jp.Wildcard:
			segs = append(segs, AnySegment())
		default:
			return Empty, ErrUnsupportedFragment{Fragment: fmt.Sprintf("%v", frag)}
		}
	}
	return New(segs...), nil
}

// Len returns the number of segments.
func (p Path) Len() int { return len(p.segs) }

// IsEmpty reports whether p has no segments.
func (p Path) IsEmpty() bool { return len(p.segs) == 0 }

// Segment returns the segment at position i.
func (p Path) Segment(i int) Segment { return p.segs[i] }

// Last returns the last segment. Must not be called on the empty path.
func (p Path) Last() Segment { return p.segs[len(p.segs)-1] }

// Segments returns a copy of the segments.
func (p Path) Segments() []Segment { return append([]Segment(nil), p.segs...) }

// Append returns a new path with the segments added to the end.
func (p Path) Append(segs ...Segment) Path {
	if len(segs) == 0 {
		return p
	}
	res := make([]Segment, 0, len(p.segs)+len(segs))
	res = append(append(res, p.segs...), segs...)
	return Path{segs: res}
}

// Field is a shortcut for appending a [FieldSegment].
func (p Path) Field(name string) Path { return p.Append(FieldSegment(name)) }

// Index is a shortcut for appending an [IndexSegment].
func (p Path) Index(i int) Path { return p.Append(IndexSegment(i)) }

// Concat returns p followed by the segments of o.
func (p Path) Concat(o Path) Path { return p.Append(o.segs...) }

// Prefix returns the first n segments.
func (p Path) Prefix(n int) Path {
	n = max(0, min(n, len(p.segs)))
	return New(p.segs[:n]...)
}

// Suffix returns the path without its first n segments.
func (p Path) Suffix(n int) Path {
	n = max(0, min(n, len(p.segs)))
	return New(p.segs[n:]...)
}

// Parent returns the path without its last segment.
func (p Path) Parent() Path { return p.Prefix(len(p.segs) - 1) }

// IsWildcard reports whether any segment is [AnyIndex].
func (p Path) IsWildcard() bool {
	for _, s := range p.segs {
		if s.kind == AnyIndex {
			return true
		}
	}
	return false
}

// Equal reports whether both paths have the same segments.
func (p Path) Equal(o Path) bool {
	if len(p.segs) != len(o.segs) {
		return false
	}
	for i := range p.segs {
		if p.segs[i] != o.segs[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether the first segments of p match prefix. Wildcard
// segments in prefix match any index in p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix.segs) > len(p.segs) {
		return false
	}
	for i, s := range prefix.segs {
		if !s.matches(p.segs[i]) {
			return false
		}
	}
	return true
}

// Matches reports whether the concrete path c is one of the locations
// addressed by p.
func (p Path) Matches(c Path) bool {
	return len(p.segs) == len(c.segs) && c.HasPrefix(p)
}

func (s Segment) matches(c Segment) bool {
	switch s.kind {
	case AnyIndex:
		return c.kind == Index || c.kind == AnyIndex
	case Index:
		return c.kind == Index && c.index == s.index
	default:
		return c.kind == Field && c.name == s.name
	}
}

// Normalize returns p with every index replaced by the wildcard, which is the
// form used to look fields up in metadata.
func (p Path) Normalize() Path {
	res := make([]Segment, len(p.segs))
	for i, s := range p.segs {
		if s.kind == Index {
			s = AnySegment()
		}
		res[i] = s
	}
	return Path{segs: res}
}

// String implements [fmt.Stringer] using dot notation.
func (p Path) String() string {
	if len(p.segs) == 0 {
		return ""
	}
	var b strings.Builder
	for i, s := range p.segs {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s.String())
	}
	return b.String()
}

// Key returns a rendering of p in which no two distinct paths collide, such
// as `."a.b"[0]`. Field names are quoted and indices bracketed.
func (p Path) Key() string {
	var b strings.Builder
	for _, s := range p.segs {
		switch s.kind {
		case Index:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(s.index))
			b.WriteByte(']')
		case AnyIndex:
			b.WriteString("[*]")
		default:
			b.WriteByte('.')
			b.WriteString(strconv.Quote(s.name))
		}
	}
	return b.String()
}

// Expr returns the JSONPath form of p, such as "$.a[1]". Wildcards become
// "[*]".
func (p Path) Expr() jp.Expr {
	x := jp.R()
	for _, s := range p.segs {
		switch s.kind {
		case Index:
			x = x.N(s.index)
		case AnyIndex:
			x = x.W()
		default:
			x = x.C(s.name)
		}
	}
	return x
}
