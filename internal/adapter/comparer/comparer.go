// Package comparer orders document values.
//
// Values of different kinds are ordered by kind: undefined, null, numbers,
// strings, booleans, dates, arrays, documents and, last, values of any
// other Go type. Numbers compare by value whatever their Go type.
package comparer

import (
	"cmp"
	"fmt"
	"math"
	"math/big"
	"slices"
	"time"

	"github.com/vinicius-lino-figueiredo/gedal/domain"
)

type kind uint8

const (
	kindUndefined kind = iota
	kindNull
	kindNumber
	kindString
	kindBool
	kindTime
	kindArray
	kindDoc
	kindUnknown
)

// Comparer implements [domain.Comparer].
type Comparer struct{}

// NewComparer returns a new implementation of [domain.Comparer].
func NewComparer() domain.Comparer {
	return &Comparer{}
}

// Comparable implements [domain.Comparer]. Two values are comparable when
// both are defined and of the same known kind.
func (c *Comparer) Comparable(a, b any) bool {
	ka, kb := kindOf(a), kindOf(b)
	return ka == kb && ka != kindUndefined && ka != kindUnknown
}

// Compare implements [domain.Comparer]. Only two values of unknown types,
// or containers holding them at the deciding position, fail to compare.
func (c *Comparer) Compare(a, b any) (int, error) {
	ka, kb := kindOf(a), kindOf(b)
	if ka != kb {
		return cmp.Compare(ka, kb), nil
	}
	a, b = unwrap(a), unwrap(b)
	switch ka {
	case kindUndefined, kindNull:
		return 0, nil
	case kindNumber:
		x, _ := number(a)
		y, _ := number(b)
		return x.Cmp(y), nil
	case kindString:
		return cmp.Compare(a.(string), b.(string)), nil
	case kindBool:
		return compareBool(a.(bool), b.(bool)), nil
	case kindTime:
		return a.(time.Time).Compare(b.(time.Time)), nil
	case kindArray:
		return c.compareArrays(a.([]any), b.([]any))
	case kindDoc:
		return c.compareDocs(a.(domain.Document), b.(domain.Document))
	}
	return 0, fmt.Errorf("cannot compare unexpected types %T and %T", a, b)
}

// compareArrays compares element by element; when the common part is equal
// the shorter array is smaller.
func (c *Comparer) compareArrays(a, b []any) (int, error) {
	for i := range min(len(a), len(b)) {
		if n, err := c.Compare(a[i], b[i]); err != nil || n != 0 {
			return n, err
		}
	}
	return cmp.Compare(len(a), len(b)), nil
}

// compareDocs compares the values of both documents in key order, then
// their sizes and last their key names.
func (c *Comparer) compareDocs(a, b domain.Document) (int, error) {
	ak, bk := slices.Sorted(a.Keys()), slices.Sorted(b.Keys())
	for i := range min(len(ak), len(bk)) {
		if n, err := c.Compare(a.Get(ak[i]), b.Get(bk[i])); err != nil || n != 0 {
			return n, err
		}
	}
	if n := cmp.Compare(len(ak), len(bk)); n != 0 {
		return n, nil
	}
	return slices.Compare(ak, bk), nil
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return 1
	default:
		return -1
	}
}

func kindOf(v any) kind {
	if g, ok := v.(domain.Getter); ok {
		val, defined := g.Get()
		if !defined {
			return kindUndefined
		}
		v = val
	}
	switch v.(type) {
	case nil:
		return kindNull
	case string:
		return kindString
	case bool:
		return kindBool
	case time.Time:
		return kindTime
	case []any:
		return kindArray
	case domain.Document:
		return kindDoc
	}
	if _, ok := number(v); ok {
		return kindNumber
	}
	return kindUnknown
}

func unwrap(v any) any {
	if g, ok := v.(domain.Getter); ok {
		v, _ = g.Get()
	}
	return v
}

// number converts any Go number to a big.Float, so that int64 and float64
// values compare without losing precision.
func number(v any) (*big.Float, bool) {
	r := new(big.Float)
	switch n := v.(type) {
	case int:
		r.SetInt64(int64(n))
	case int8:
		r.SetInt64(int64(n))
	case int16:
		r.SetInt64(int64(n))
	case int32:
		r.SetInt64(int64(n))
	case int64:
		r.SetInt64(n)
	case uint:
		r.SetUint64(uint64(n))
	case uint8:
		r.SetUint64(uint64(n))
	case uint16:
		r.SetUint64(uint64(n))
	case uint32:
		r.SetUint64(uint64(n))
	case uint64:
		r.SetUint64(n)
	case float32:
		return number(float64(n))
	case float64:
		// NaN has no order
		if math.IsNaN(n) {
			return nil, false
		}
		r.SetFloat64(n)
	default:
		return nil, false
	}
	return r, true
}
