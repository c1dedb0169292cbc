// Package modifier contains the default update evaluator.
package modifier

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/spf13/cast"

	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/comparer"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/data"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/fieldnavigator"
	"github.com/vinicius-lino-figueiredo/gedal/internal/adapter/matcher"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

// Operator names used in errors.
const (
	OpSet      = "$set"
	OpUnset    = "$unset"
	OpAdd      = "$add"
	OpAddToSet = "$addToSet"
	OpInsert   = "$insert"
	OpRemove   = "$remove"
	OpForEach  = "$foreach"
)

var (
	errNotArray   = errors.New("value is not an array")
	errNotNumber  = errors.New("value is not a number")
	errCopySource = errors.New("copy source must resolve to exactly one defined value")
)

// modFunc applies one compiled operation to doc. base is the concrete path
// the operation paths are relative to.
type modFunc func(doc domain.Document, md domain.FieldNode, base path.Path) (bool, error)

// Modifier compiles updates into [domain.Updater] values.
type Modifier struct {
	comparer       domain.Comparer
	fieldNavigator domain.FieldNavigator
	queryCompiler  domain.QueryCompiler
}

// NewModifier returns a new Modifier.
func NewModifier(options ...domain.ModifierOption) *Modifier {
	opts := domain.ModifierOptions{
		Comparer:        comparer.NewComparer(),
		DocumentFactory: data.NewDocument,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.FieldNavigator == nil {
		opts.FieldNavigator = fieldnavigator.NewFieldNavigator(opts.DocumentFactory)
	}
	if opts.QueryCompiler == nil {
		opts.QueryCompiler = matcher.NewMatcher(
			domain.WithMatcherComparer(opts.Comparer),
			domain.WithMatcherFieldNavigator(opts.FieldNavigator),
		).Compile
	}
	return &Modifier{
		comparer:       opts.Comparer,
		fieldNavigator: opts.FieldNavigator,
		queryCompiler:  opts.QueryCompiler,
	}
}

// updater implements [domain.Updater].
type updater struct {
	mods []modFunc
}

// Update implements [domain.Updater].
func (u *updater) Update(doc domain.Document, contextMetadata domain.FieldNode, contextPath path.Path) (bool, error) {
	changed := false
	var errs []error
	for _, mod := range u.mods {
		ok, err := mod(doc, contextMetadata, contextPath)
		changed = changed || ok
		if err != nil {
			errs = append(errs, err)
		}
	}
	return changed, errors.Join(errs...)
}

// Compile returns an updater for u. A nil update changes nothing.
func (m *Modifier) Compile(u domain.Update) (domain.Updater, error) {
	if u == nil {
		return &updater{}, nil
	}
	mods, err := m.compile(u)
	if err != nil {
		return nil, err
	}
	return &updater{mods: mods}, nil
}

func (m *Modifier) compile(u domain.Update) ([]modFunc, error) {
	switch t := u.(type) {
	case domain.UpdateList:
		var res []modFunc
		for _, item := range t.Items {
			mods, err := m.compile(item)
			if err != nil {
				return nil, err
			}
			res = append(res, mods...)
		}
		return res, nil
	case domain.SetValue:
		return []modFunc{m.set(t)}, nil
	case domain.Unset:
		return []modFunc{m.unset(t)}, nil
	case domain.Increment:
		if _, ok := asFloat(t.Delta); !ok {
			return nil, domain.EvaluationError{Path: t.Field, Reason: "increment must be a number"}
		}
		return []modFunc{m.increment(t)}, nil
	case domain.AddToSet:
		return []modFunc{m.addToSet(t)}, nil
	case domain.ArrayInsert:
		if t.Index < 0 {
			return nil, domain.EvaluationError{Path: t.Field, Reason: "negative insert index"}
		}
		return []modFunc{m.insert(t)}, nil
	case domain.ArrayRemove:
		return m.remove(t)
	case domain.ForEach:
		return m.forEach(t)
	default:
		return nil, domain.EvaluationError{Reason: fmt.Sprintf("unknown update node %T", u)}
	}
}

// cast converts v to the native form of the field at p. Without metadata
// values are only normalized.
func (m *Modifier) cast(md domain.FieldNode, p path.Path, v any) (any, error) {
	v, err := data.Normalize(v)
	if err != nil || md == nil {
		return v, err
	}
	node, err := domain.ResolveField(md, p.Normalize())
	if err != nil {
		return nil, err
	}
	return CastValue(node, v)
}

// CastValue converts v to the native form described by node. Objects and
// arrays are cast element by element, in place.
func CastValue(node domain.FieldNode, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t := node.(type) {
	case *domain.SimpleField:
		return t.Type.ToNative(v)
	case *domain.ObjectField:
		doc, ok := v.(domain.Document)
		if !ok {
			return nil, domain.CastError{Type: "object", Value: v}
		}
		for k, cv := range doc.Iter() {
			child, ok := t.Child(k)
			if !ok {
				return nil, domain.ErrUnknownField{Field: path.New(path.FieldSegment(k))}
			}
			nv, err := CastValue(child, cv)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			doc.Set(k, nv)
		}
		return doc, nil
	case *domain.ArrayField:
		arr, ok := v.([]any)
		if !ok {
			return nil, domain.CastError{Type: "array", Value: v}
		}
		for i, e := range arr {
			nv, err := CastValue(t.Element, e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = nv
		}
		return arr, nil
	default:
		return v, nil
	}
}

func (m *Modifier) set(u domain.SetValue) modFunc {
	return func(doc domain.Document, md domain.FieldNode, base path.Path) (bool, error) {
		target := base.Concat(u.Field)
		fail := func(err error) (bool, error) {
			return false, domain.UpdateError{Op: OpSet, Field: target, Err: err}
		}
		v := u.Value.Literal
		if u.Value.IsCopy {
			src, err := m.fieldNavigator.GetField(doc, base.Concat(u.Value.CopyFrom))
			if err != nil {
				return fail(err)
			}
			if len(src) != 1 {
				return fail(errCopySource)
			}
			var defined bool
			if v, defined = src[0].Get(); !defined {
				return fail(errCopySource)
			}
		}
		v, err := m.cast(md, target, data.Copy(v))
		if err != nil {
			return fail(err)
		}
		fields, err := m.fieldNavigator.EnsureField(doc, target)
		if err != nil {
			return fail(err)
		}
		changed := false
		for _, f := range fields {
			if old, defined := f.Get(); defined && data.Equal(old, v) {
				continue
			}
			f.Set(data.Copy(v))
			changed = true
		}
		return changed, nil
	}
}

func (m *Modifier) unset(u domain.Unset) modFunc {
	return func(doc domain.Document, _ domain.FieldNode, base path.Path) (bool, error) {
		target := base.Concat(u.Field)
		fields, err := m.fieldNavigator.GetField(doc, target)
		if err != nil {
			return false, domain.UpdateError{Op: OpUnset, Field: target, Err: err}
		}
		changed := false
		for _, f := range fields {
			if _, defined := f.Get(); defined {
				f.Unset()
				changed = true
			}
		}
		return changed, nil
	}
}

func asInt(v any) (int64, bool) {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32:
		n, err := cast.ToInt64E(v)
		return n, err == nil
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		f, err := cast.ToFloat64E(v)
		return f, err == nil
	}
	return 0, false
}

// add sums two numbers. Integers stay integers unless the sum overflows.
func add(a, b any) (any, error) {
	ai, aok := asInt(a)
	bi, bok := asInt(b)
	if aok && bok {
		sum := new(big.Int).Add(big.NewInt(ai), big.NewInt(bi))
		if sum.IsInt64() {
			return sum.Int64(), nil
		}
		f, _ := new(big.Float).SetInt(sum).Float64()
		return f, nil
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return nil, errNotNumber
	}
	return af + bf, nil
}

func (m *Modifier) increment(u domain.Increment) modFunc {
	return func(doc domain.Document, md domain.FieldNode, base path.Path) (bool, error) {
		target := base.Concat(u.Field)
		fail := func(err error) (bool, error) {
			return false, domain.UpdateError{Op: OpAdd, Field: target, Err: err}
		}
		if _, err := m.cast(md, target, u.Delta); err != nil {
			return fail(err)
		}
		fields, err := m.fieldNavigator.EnsureField(doc, target)
		if err != nil {
			return fail(err)
		}
		changed := false
		var errs []error
		for _, f := range fields {
			old, _ := f.Get()
			if old == nil {
				old = int64(0)
			}
			sum, err := add(old, u.Delta)
			if err == nil {
				sum, err = m.cast(md, f.Path, sum)
			}
			if err != nil {
				errs = append(errs, domain.UpdateError{Op: OpAdd, Field: f.Path, Err: err})
				continue
			}
			f.Set(sum)
			changed = true
		}
		return changed, errors.Join(errs...)
	}
}

// arrayAt returns the array held by f. Undefined and null values count as
// empty arrays.
func arrayAt(f domain.Field) ([]any, error) {
	v, _ := f.Get()
	if v == nil {
		return []any{}, nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, errNotArray
	}
	return arr, nil
}

// castElements casts values to the element type of the array at p.
func (m *Modifier) castElements(md domain.FieldNode, p path.Path, values []any) ([]any, error) {
	res := make([]any, len(values))
	for i, v := range values {
		nv, err := m.cast(md, p.Append(path.AnySegment()), data.Copy(v))
		if err != nil {
			return nil, err
		}
		res[i] = nv
	}
	return res, nil
}

func (m *Modifier) contains(arr []any, v any) (bool, error) {
	for _, e := range arr {
		if !m.comparer.Comparable(e, v) {
			continue
		}
		c, err := m.comparer.Compare(e, v)
		if err != nil || c == 0 {
			return c == 0, err
		}
	}
	return false, nil
}

// eachArray runs fn for every location of target, replacing the array when fn
// returns a new one.
func (m *Modifier) eachArray(doc domain.Document, target path.Path, op string, ensure bool, fn func(path.Path, []any) ([]any, bool, error)) (bool, error) {
	get := m.fieldNavigator.GetField
	if ensure {
		get = m.fieldNavigator.EnsureField
	}
	fields, err := get(doc, target)
	if err != nil {
		return false, domain.UpdateError{Op: op, Field: target, Err: err}
	}
	changed := false
	var errs []error
	for _, f := range fields {
		if _, defined := f.Get(); !defined && !ensure {
			continue
		}
		arr, err := arrayAt(f)
		if err != nil {
			errs = append(errs, domain.UpdateError{Op: op, Field: f.Path, Err: err})
			continue
		}
		res, ok, err := fn(f.Path, arr)
		if err != nil {
			errs = append(errs, domain.UpdateError{Op: op, Field: f.Path, Err: err})
			continue
		}
		if ok {
			f.Set(res)
			changed = true
		}
	}
	return changed, errors.Join(errs...)
}

func (m *Modifier) addToSet(u domain.AddToSet) modFunc {
	return func(doc domain.Document, md domain.FieldNode, base path.Path) (bool, error) {
		target := base.Concat(u.Field)
		values, err := m.castElements(md, target, u.Values)
		if err != nil {
			return false, domain.UpdateError{Op: OpAddToSet, Field: target, Err: err}
		}
		return m.eachArray(doc, target, OpAddToSet, true, func(_ path.Path, arr []any) ([]any, bool, error) {
			added := false
			for _, v := range values {
				found, err := m.contains(arr, v)
				if err != nil {
					return nil, false, err
				}
				if !found {
					arr = append(arr, data.Copy(v))
					added = true
				}
			}
			return arr, added, nil
		})
	}
}

func (m *Modifier) insert(u domain.ArrayInsert) modFunc {
	op := OpInsert
	if u.Append {
		op = "$append"
	}
	return func(doc domain.Document, md domain.FieldNode, base path.Path) (bool, error) {
		target := base.Concat(u.Field)
		values, err := m.castElements(md, target, u.Values)
		if err != nil {
			return false, domain.UpdateError{Op: op, Field: target, Err: err}
		}
		return m.eachArray(doc, target, op, true, func(_ path.Path, arr []any) ([]any, bool, error) {
			if len(values) == 0 {
				return nil, false, nil
			}
			idx := u.Index
			if u.Append {
				idx = len(arr)
			}
			// inserting past the end pads with nulls
			res := make([]any, max(idx, len(arr))+len(values))
			copy(res, arr[:min(idx, len(arr))])
			for i, v := range values {
				res[idx+i] = data.Copy(v)
			}
			if idx < len(arr) {
				copy(res[idx+len(values):], arr[idx:])
			}
			return res, true, nil
		})
	}
}

// selector reports whether an array element is targeted. Every element is
// evaluated before the array changes.
type selector func(elem any) (bool, error)

func (m *Modifier) selector(match domain.Query, value any, all bool) (selector, error) {
	if match != nil {
		q, err := m.queryCompiler(match)
		if err != nil {
			return nil, err
		}
		return func(elem any) (bool, error) {
			return q.Evaluate(elem, domain.NewEvalContext())
		}, nil
	}
	if all {
		return func(any) (bool, error) { return true, nil }, nil
	}
	return func(elem any) (bool, error) {
		return m.contains([]any{elem}, value)
	}, nil
}

func selected(sel selector, arr []any) ([]bool, error) {
	res := make([]bool, len(arr))
	for i, e := range arr {
		ok, err := sel(e)
		if err != nil {
			return nil, err
		}
		res[i] = ok
	}
	return res, nil
}

func without(arr []any, drop []bool) ([]any, bool) {
	res := make([]any, 0, len(arr))
	for i, e := range arr {
		if !drop[i] {
			res = append(res, e)
		}
	}
	return res, len(res) != len(arr)
}

func (m *Modifier) remove(u domain.ArrayRemove) ([]modFunc, error) {
	value, err := data.Normalize(u.Value)
	if err != nil {
		return nil, domain.EvaluationError{Path: u.Field, Reason: err.Error()}
	}
	sel, err := m.selector(u.Match, value, false)
	if err != nil {
		return nil, err
	}
	return []modFunc{func(doc domain.Document, _ domain.FieldNode, base path.Path) (bool, error) {
		return m.eachArray(doc, base.Concat(u.Field), OpRemove, false, func(_ path.Path, arr []any) ([]any, bool, error) {
			drop, err := selected(sel, arr)
			if err != nil {
				return nil, false, err
			}
			res, changed := without(arr, drop)
			return res, changed, nil
		})
	}}, nil
}

func (m *Modifier) forEach(u domain.ForEach) ([]modFunc, error) {
	sel, err := m.selector(u.Match, nil, true)
	if err != nil {
		return nil, err
	}
	var sub domain.Updater
	if !u.Remove {
		if sub, err = m.Compile(u.Update); err != nil {
			return nil, err
		}
	}
	return []modFunc{func(doc domain.Document, md domain.FieldNode, base path.Path) (bool, error) {
		target := base.Concat(u.Field)
		if u.Remove {
			return m.eachArray(doc, target, OpForEach, false, func(_ path.Path, arr []any) ([]any, bool, error) {
				drop, err := selected(sel, arr)
				if err != nil {
					return nil, false, err
				}
				res, changed := without(arr, drop)
				return res, changed, nil
			})
		}
		fields, err := m.fieldNavigator.GetField(doc, target)
		if err != nil {
			return false, domain.UpdateError{Op: OpForEach, Field: target, Err: err}
		}
		changed := false
		var errs []error
		for _, f := range fields {
			v, _ := f.Get()
			arr, ok := v.([]any)
			if !ok {
				continue
			}
			targets, err := selected(sel, arr)
			if err != nil {
				errs = append(errs, domain.UpdateError{Op: OpForEach, Field: f.Path, Err: err})
				continue
			}
			for i, t := range targets {
				if !t {
					continue
				}
				ok, err := sub.Update(doc, md, f.Path.Index(i))
				changed = changed || ok
				if err != nil {
					errs = append(errs, err)
				}
			}
		}
		return changed, errors.Join(errs...)
	}}, nil
}
