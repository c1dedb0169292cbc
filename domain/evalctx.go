package domain

import (
	"slices"

	"github.com/RoaringBitmap/roaring"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

// Decision is the outcome of a projection for one path.
type Decision uint8

// Projection decisions.
const (
	Undecided Decision = iota
	Include
	Exclude
)

// String implements [fmt.Stringer].
func (d Decision) String() string {
	switch d {
	case Include:
		return "include"
	case Exclude:
		return "exclude"
	default:
		return "undecided"
	}
}

// EvalContext records, for each concrete array path visited while evaluating
// a query, the element indices that satisfied it. It belongs to a single
// evaluation of a single document and must never be shared or attached to a
// compiled expression.
type EvalContext struct {
	// keyed by [path.Path.Key]
	matches map[string]*arrayMatch
}

type arrayMatch struct {
	array   path.Path
	indices *roaring.Bitmap
	// set by an elemMatch; must not be widened by wildcard comparisons.
	authoritative bool
}

func (m *arrayMatch) clone(array path.Path) *arrayMatch {
	return &arrayMatch{array: array, indices: m.indices.Clone(), authoritative: m.authoritative}
}

// NewEvalContext returns an empty context.
func NewEvalContext() *EvalContext {
	return &EvalContext{matches: make(map[string]*arrayMatch)}
}

func (c *EvalContext) match(array path.Path) *arrayMatch {
	key := array.Key()
	m, ok := c.matches[key]
	if !ok {
		m = &arrayMatch{array: array, indices: roaring.New()}
		c.matches[key] = m
	}
	return m
}

// Record marks the element index of the array at the concrete path array as
// matched by a wildcard comparison. Arrays already decided by an elemMatch are
// left untouched.
func (c *EvalContext) Record(array path.Path, index int) {
	m := c.match(array)
	if m.authoritative {
		return
	}
	m.indices.Add(uint32(index))
}

// RecordElemMatch replaces the index set of array with the given indices. The
// set becomes authoritative for the rest of the evaluation.
func (c *EvalContext) RecordElemMatch(array path.Path, indices []int) {
	bm := roaring.New()
	for _, i := range indices {
		bm.Add(uint32(i))
	}
	c.matches[array.Key()] = &arrayMatch{array: array, indices: bm, authoritative: true}
}

// Merge adds every record of o to c. Authoritative sets in o replace the
// ones in c; non authoritative sets are unioned unless c already holds an
// authoritative set for that array.
func (c *EvalContext) Merge(o *EvalContext) {
	if o == nil {
		return
	}
	for key, om := range o.matches {
		m, ok := c.matches[key]
		switch {
		case om.authoritative || !ok:
			c.matches[key] = om.clone(om.array)
		case m.authoritative:
		default:
			m.indices.Or(om.indices)
		}
	}
}

// Rebase returns a copy of c with every array path prefixed by base. It is
// used to lift the records of a query evaluated against a nested element to
// the coordinates of the enclosing document.
func (c *EvalContext) Rebase(base path.Path) *EvalContext {
	res := NewEvalContext()
	for _, m := range c.matches {
		array := base.Concat(m.array)
		res.matches[array.Key()] = m.clone(array)
	}
	return res
}

// Matched reports whether the element index of the array at the concrete
// path array was matched. decided is false when nothing was recorded for
// that array.
func (c *EvalContext) Matched(array path.Path, index int) (matched, decided bool) {
	m, ok := c.matches[array.Key()]
	if !ok {
		return false, false
	}
	return m.indices.Contains(uint32(index)), true
}

// Indices returns the matched indices of array in ascending order.
func (c *EvalContext) Indices(array path.Path) ([]int, bool) {
	m, ok := c.matches[array.Key()]
	if !ok {
		return nil, false
	}
	res := make([]int, 0, m.indices.GetCardinality())
	it := m.indices.Iterator()
	for it.HasNext() {
		res = append(res, int(it.Next()))
	}
	return res, true
}

// Arrays returns the path of every recorded array, ordered by key.
func (c *EvalContext) Arrays() []path.Path {
	keys := make([]string, 0, len(c.matches))
	for key := range c.matches {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	res := make([]path.Path, len(keys))
	for i, key := range keys {
		res[i] = c.matches[key].array
	}
	return res
}

// Equal reports whether both contexts hold the same records.
func (c *EvalContext) Equal(o *EvalContext) bool {
	if len(c.matches) != len(o.matches) {
		return false
	}
	for key, m := range c.matches {
		other, ok := o.matches[key]
		if !ok || !m.indices.Equals(other.indices) || m.authoritative != other.authoritative {
			return false
		}
	}
	return true
}
