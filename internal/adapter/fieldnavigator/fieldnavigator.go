package fieldnavigator

import (
	"fmt"

	"github.com/vinicius-lino-figueiredo/gedal/domain"
	"github.com/vinicius-lino-figueiredo/gedal/pkg/path"
)

// FieldNavigator implements [domain.FieldNavigator].
type FieldNavigator struct {
	docFac domain.DocumentFactory
}

// NewFieldNavigator returns a new instance of [domain.FieldNavigator]. docFac
// creates the intermediate objects added by EnsureField.
func NewFieldNavigator(docFac domain.DocumentFactory) domain.FieldNavigator {
	return &FieldNavigator{
		docFac: docFac,
	}
}

type location struct {
	path    path.Path
	v       any
	defined bool
	gs      domain.GetSetter
}

// GetField implements [domain.FieldNavigator].
func (fn *FieldNavigator) GetField(obj any, p path.Path) ([]domain.Field, error) {
	return fn.getField(obj, p, false)
}

// EnsureField implements [domain.FieldNavigator].
func (fn *FieldNavigator) EnsureField(obj any, p path.Path) ([]domain.Field, error) {
	return fn.getField(obj, p, true)
}

func (fn *FieldNavigator) getField(obj any, p path.Path, ensure bool) ([]domain.Field, error) {
	curr := []location{{path: path.Empty, gs: missingSlot{}}}
	if obj != nil {
		curr[0] = location{
			path:    path.Empty,
			v:       obj,
			defined: true,
			gs:      rootSlot{v: obj},
		}
	}

	for idx := range p.Len() {
		seg := p.Segment(idx)
		next := make([]location, 0, len(curr))
		for _, loc := range curr {
			expanded, err := fn.step(loc, seg, p, idx, ensure)
			if err != nil {
				return nil, err
			}
			next = append(next, expanded...)
		}
		curr = next
	}

	res := make([]domain.Field, len(curr))
	for n, loc := range curr {
		res[n] = domain.Field{Path: loc.path, GetSetter: loc.gs}
	}
	return res, nil
}

func (fn *FieldNavigator) step(loc location, seg path.Segment, p path.Path, idx int, ensure bool) ([]location, error) {
	child := loc.path.Append(seg)
	undefined := []location{{path: child, gs: missingSlot{}}}

	if !loc.defined {
		return undefined, nil
	}

	// explicit nulls are replaced by containers when writing
	if ensure && loc.v == nil {
		if seg.Kind() == path.AnyIndex {
			return nil, nil
		}
		v, err := fn.container(seg)
		if err != nil {
			return nil, err
		}
		loc.gs.Set(v)
		if got, _ := loc.gs.Get(); got == nil {
			return nil, fn.notTraversable(p, child, nil)
		}
		loc.v = v
	}

	switch seg.Kind() {
	case path.Field:
		doc, ok := loc.v.(domain.Document)
		if !ok {
			if ensure {
				return nil, fn.notTraversable(p, child, loc.v)
			}
			return undefined, nil
		}
		if !doc.Has(seg.Name()) {
			if !ensure {
				return undefined, nil
			}
			if idx == p.Len()-1 {
				return []location{{path: child, gs: docSlot{doc: doc, key: seg.Name()}}}, nil
			}
			if p.Segment(idx+1).Kind() == path.AnyIndex {
				return nil, nil
			}
			v, err := fn.container(p.Segment(idx + 1))
			if err != nil {
				return nil, err
			}
			doc.Set(seg.Name(), v)
		}
		return []location{{
			path:    child,
			v:       doc.Get(seg.Name()),
			defined: true,
			gs:      docSlot{doc: doc, key: seg.Name()},
		}}, nil

	case path.Index:
		arr, ok := loc.v.([]any)
		if !ok {
			if ensure {
				return nil, fn.notTraversable(p, child, loc.v)
			}
			return undefined, nil
		}
		i := seg.Index()
		if i >= len(arr) {
			if !ensure {
				return undefined, nil
			}
			grown := make([]any, i+1)
			copy(grown, arr)
			if idx < p.Len()-1 {
				v, err := fn.container(p.Segment(idx + 1))
				if err != nil {
					return nil, err
				}
				grown[i] = v
			}
			loc.gs.Set(grown)
			arr = grown
		}
		return []location{{
			path:    child,
			v:       arr[i],
			defined: true,
			gs:      arraySlot{arr: arr, index: i},
		}}, nil

	default:
		arr, ok := loc.v.([]any)
		if !ok {
			if ensure {
				return nil, fn.notTraversable(p, child, loc.v)
			}
			return undefined, nil
		}
		res := make([]location, len(arr))
		for i, v := range arr {
			res[i] = location{
				path:    loc.path.Index(i),
				v:       v,
				defined: true,
				gs:      arraySlot{arr: arr, index: i},
			}
		}
		return res, nil
	}
}

// container returns the empty value that can hold the given segment.
func (fn *FieldNavigator) container(seg path.Segment) (any, error) {
	if seg.Kind() == path.Field {
		return fn.docFac(nil)
	}
	return []any{}, nil
}

func (fn *FieldNavigator) notTraversable(p, at path.Path, v any) error {
	return domain.EvaluationError{
		Path:   p,
		Reason: fmt.Sprintf("cannot traverse %T at %q", v, at.Parent()),
	}
}
